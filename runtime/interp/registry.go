package interp

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aledsdavies/rexxgo/core/types"
)

// Callable is the capability-based registry contract spec.md §9 calls for:
// "name -> async fn(args) -> Value" rather than dynamic global lookup. Args
// is keyed by uppercased parameter name for named arguments; positional
// arguments arrive separately, in call order, in positional. Each Callable
// resolves a parameter from either form itself (runtime/builtins does this
// with its arg helper).
type Callable func(ctx context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error)

// BuiltinRegistry is a plain map[string]Callable owned per-Interpreter, per
// spec.md §9's note that only the REQUIRE metadata registry is
// intentionally process-wide. REQUIRE-loaded library functions register
// into the same map as built-ins; there is no separate "library function"
// table, matching the language's own "everything callable looks the same
// to the evaluator" contract.
type BuiltinRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Callable
}

// NewBuiltinRegistry returns an empty registry. Callers seed it with
// runtime/builtins.RegisterAll before running a script.
func NewBuiltinRegistry() *BuiltinRegistry {
	return &BuiltinRegistry{funcs: make(map[string]Callable)}
}

// Register adds or replaces the callable for name, case-insensitively.
func (r *BuiltinRegistry) Register(name string, fn Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[strings.ToUpper(name)] = fn
}

// Lookup returns the callable registered for name and whether it exists.
func (r *BuiltinRegistry) Lookup(name string) (Callable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[strings.ToUpper(name)]
	return fn, ok
}

// Names returns every registered name, sorted, for "did you mean" fuzzy
// matching.
func (r *BuiltinRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FunctionMeta is the metadata one registered function/library/ADDRESS
// target exposes per spec.md §4.6: module, category, description,
// parameters, returns, examples.
type FunctionMeta struct {
	Name        string
	Module      string
	Category    string
	Description string
	Parameters  []string
	Returns     string
	Examples    []string
}

// MetadataRegistry is the one intentionally process-wide component named
// in spec.md §9 ("multiple interpreter instances share a function
// catalog"). It is never reached from interpreter/evaluator logic as a
// bare package global — each *Interpreter holds an explicit reference to
// an instance, injected at construction, so tests can build a fresh
// registry rather than pollute a shared one. Grounded on the
// "database/sql driver" Register/Global() shape; the ADDRESS router in
// address.go uses the same Register/lookup half without a global instance.
type MetadataRegistry struct {
	mu       sync.RWMutex
	entries  map[string]FunctionMeta
	byModule map[string][]string
	byCat    map[string][]string
}

var (
	globalMetadata     *MetadataRegistry
	globalMetadataOnce sync.Once
)

// GlobalMetadata returns the process-wide metadata registry, creating it
// on first use. Interpreters are not required to use it; NewMetadataRegistry
// builds an isolated instance for tests.
func GlobalMetadata() *MetadataRegistry {
	globalMetadataOnce.Do(func() { globalMetadata = NewMetadataRegistry() })
	return globalMetadata
}

// NewMetadataRegistry returns a fresh, unshared registry.
func NewMetadataRegistry() *MetadataRegistry {
	return &MetadataRegistry{
		entries:  make(map[string]FunctionMeta),
		byModule: make(map[string][]string),
		byCat:    make(map[string][]string),
	}
}

// Register records meta under its own Name, case-insensitively.
func (m *MetadataRegistry) Register(meta FunctionMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToUpper(meta.Name)
	m.entries[key] = meta
	if meta.Module != "" {
		m.byModule[meta.Module] = append(m.byModule[meta.Module], key)
	}
	if meta.Category != "" {
		m.byCat[meta.Category] = append(m.byCat[meta.Category], key)
	}
}

// RegisterModule registers every entry in exports under moduleName, with
// an optional name prefix, per spec.md §4.6's register_module contract.
func (m *MetadataRegistry) RegisterModule(exports []FunctionMeta, moduleName, prefix string) {
	for _, meta := range exports {
		meta.Module = moduleName
		if prefix != "" {
			meta.Name = prefix + meta.Name
		}
		m.Register(meta)
	}
}

// Get looks up meta by name, case-insensitively.
func (m *MetadataRegistry) Get(name string) (FunctionMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.entries[strings.ToUpper(name)]
	return meta, ok
}

// ByCategory returns every meta registered under category, in
// registration order.
func (m *MetadataRegistry) ByCategory(category string) []FunctionMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FunctionMeta
	for _, name := range m.byCat[category] {
		out = append(out, m.entries[name])
	}
	return out
}

// ByModule returns every meta registered under module, in registration
// order.
func (m *MetadataRegistry) ByModule(module string) []FunctionMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []FunctionMeta
	for _, name := range m.byModule[module] {
		out = append(out, m.entries[name])
	}
	return out
}

// Names returns every registered name, sorted, for the `describe` CLI
// surface's unfiltered listing (SPEC_FULL.md §4.10).
func (m *MetadataRegistry) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.entries))
	for name := range m.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
