package interp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/ast"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// LoadedLibrary is everything a successfully resolved REQUIRE candidate can
// expose, per spec.md §4.6: callable functions, ADDRESS target handlers, and
// queryable metadata. A library may populate any subset of the three.
type LoadedLibrary struct {
	Functions map[string]Callable
	Addresses map[string]AddressHandler
	Metadata  []FunctionMeta
}

// LibraryProvider resolves one already-classified, already-authorized
// candidate reference into its exports. Built-in-source providers (the
// internal registry of spec.md §4.6's built-in-source resolution) are
// registered by the host through RegisterSource; local/central/direct-source
// providers are host-injected the same way ADDRESS targets are, since this
// interpreter does not load or execute arbitrary third-party Go code at
// runtime.
type LibraryProvider func(ctx context.Context, ref string) (*LoadedLibrary, error)

// manifestSchema is the JSON Schema a local/central/direct-source library's
// declared metadata manifest must satisfy, validated with
// santhosh-tekuri/jsonschema/v5 the way the teacher's core/types/
// validation.go validates decorator parameter schemas.
const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "functions"],
  "properties": {
    "name": {"type": "string"},
    "module": {"type": "string"},
    "functions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "category": {"type": "string"},
          "description": {"type": "string"},
          "parameters": {"type": "array", "items": {"type": "string"}},
          "returns": {"type": "string"},
          "examples": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`

var (
	manifestSchema     *jsonschema.Schema
	manifestSchemaOnce sync.Once
	manifestSchemaErr  error
)

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("library-manifest.json", strings.NewReader(manifestSchemaJSON)); err != nil {
			manifestSchemaErr = err
			return
		}
		manifestSchema, manifestSchemaErr = compiler.Compile("library-manifest.json")
	})
	return manifestSchema, manifestSchemaErr
}

// libraryManifest is the declarative shape a local/central/direct-source
// library's metadata file is unmarshaled into once it passes schema
// validation.
type libraryManifest struct {
	Name      string `json:"name"`
	Module    string `json:"module"`
	Functions []struct {
		Name        string   `json:"name"`
		Category    string   `json:"category"`
		Description string   `json:"description"`
		Parameters  []string `json:"parameters"`
		Returns     string   `json:"returns"`
		Examples    []string `json:"examples"`
	} `json:"functions"`
}

// RequireRequest/RequireResponse mirror spec.md §6's remote REQUIRE message
// channel field-for-field, marshaled with encoding/json since this is a
// fixed wire shape rather than ad hoc JSON construction (see DESIGN.md for
// why this corner does not reach for gjson/sjson).
type RequireRequest struct {
	Type        string `json:"type"`
	LibraryName string `json:"libraryName"`
	RequireID   string `json:"requireId"`
	Timestamp   int64  `json:"timestamp"`
}

type RequireResponse struct {
	Type        string `json:"type"`
	RequireID   string `json:"requireId"`
	Success     bool   `json:"success"`
	LibraryCode string `json:"libraryCode,omitempty"`
	LibraryName string `json:"libraryName"`
	Error       string `json:"error,omitempty"`
}

// RemoteRequireTransport is the host's half of the remote REQUIRE channel:
// Send delivers a request through the streaming progress callback, and
// Responses is the host event channel the loader selects on. Per spec.md
// §6, if either half is absent the load resolves as
// `{success: false, error: "no_communication_channel"}`.
type RemoteRequireTransport struct {
	Send      func(req RequireRequest) error
	Responses <-chan RequireResponse
	Timeout   time.Duration
}

// RequireLoader implements spec.md §4.6/§8-P7: comma-separated preference
// list resolution, trying each candidate in order until one loads. Grounded
// on the same "database/sql driver" registration shape the ADDRESS router
// (address.go) and metadata registry (registry.go) use.
type RequireLoader struct {
	driver *Driver
	meta   *MetadataRegistry

	mu             sync.RWMutex
	builtinSources map[string]LibraryProvider
	providers      map[string]LibraryProvider

	Remote *RemoteRequireTransport
}

// NewRequireLoader wires a loader against d (for security policy and
// script-path context) and meta (the metadata registry to populate).
func NewRequireLoader(d *Driver, meta *MetadataRegistry) *RequireLoader {
	if meta == nil {
		meta = GlobalMetadata()
	}
	return &RequireLoader{
		driver:         d,
		meta:           meta,
		builtinSources: make(map[string]LibraryProvider),
		providers:      make(map[string]LibraryProvider),
	}
}

// RegisterSource wires a built-in-source provider under the internal
// virtual path a `./src/...` or `../src/...` REQUIRE candidate resolves to
// (e.g. "./src/math"). The host embedding layer reaches it through
// rexx.Interpreter.RegisterRequireSource.
func (l *RequireLoader) RegisterSource(virtualPath string, provider LibraryProvider) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.builtinSources[virtualPath] = provider
}

// RegisterProvider wires a provider for one exact local/central/direct-
// source candidate reference string, the way RegisterAddressTarget wires
// an ADDRESS handler. The host embedding layer (runtime/rexx) is expected
// to call this for any library it wants resolvable without a manifest
// file.
func (l *RequireLoader) RegisterProvider(ref string, provider LibraryProvider) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providers[ref] = provider
}

func (l *RequireLoader) lookupSource(virtualPath string) (LibraryProvider, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.builtinSources[virtualPath]
	return p, ok
}

func (l *RequireLoader) lookupProvider(ref string) (LibraryProvider, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.providers[ref]
	return p, ok
}

// execRequire implements the REQUIRE command: try each candidate in order,
// stopping at the first that classifies, authorizes, and resolves
// successfully. Overall failure reports every attempt, per P7.
func (d *Driver) execRequire(ctx context.Context, frameID string, c *ast.RequireCmd) (flowResult, error) {
	var attempts []string
	for _, list := range c.Candidates {
		for _, raw := range strings.Split(list, ",") {
			ref := strings.TrimSpace(raw)
			if ref == "" {
				continue
			}
			lib, err := d.require.resolve(ctx, ref, d.scriptPath)
			if err != nil {
				attempts = append(attempts, fmt.Sprintf("%s (%v)", ref, err))
				continue
			}
			d.require.register(lib)
			return flowResult{kind: ctrlNone}, nil
		}
	}
	return flowResult{}, rexxerrors.Newf(rexxerrors.KindResolution, "REQUIRE failed, all candidates exhausted: %s", strings.Join(attempts, "; "))
}

// resolve classifies, authorizes, and loads a single candidate reference.
func (l *RequireLoader) resolve(ctx context.Context, ref, scriptPath string) (*LoadedLibrary, error) {
	isKnownBuiltin := func(name string) bool {
		_, ok := l.driver.registry.Lookup(name)
		return ok
	}
	class := ClassifyReference(ref, isKnownBuiltin)
	if err := l.driver.security.Authorize(ref, class); err != nil {
		return nil, err
	}

	switch class {
	case ClassBuiltin:
		// Already present in the built-in registry; REQUIRE of a true
		// built-in is a no-op success.
		return &LoadedLibrary{}, nil

	case ClassBuiltinSource:
		provider, ok := l.lookupSource(normalizeBuiltinSourcePath(ref))
		if !ok {
			return nil, rexxerrors.Newf(rexxerrors.KindResolution, "no built-in-source module registered for %q", ref)
		}
		return provider(ctx, ref)

	case ClassLocalSource:
		if scriptPath == "" {
			return nil, rexxerrors.New(rexxerrors.KindResolution,
				"cannot resolve local-source reference: no script file context (provide an absolute path, a cwd-relative path, or a root-relative path instead)")
		}
		resolved := filepath.Join(filepath.Dir(scriptPath), ref)
		return l.loadManifestOrProvider(ctx, ref, resolved)

	case ClassCentralRegistry, ClassDirectSource, ClassUnknown:
		if provider, ok := l.lookupProvider(ref); ok {
			return provider(ctx, ref)
		}
		return l.loadRemote(ctx, strings.TrimPrefix(ref, "central:"))

	default:
		return nil, rexxerrors.Newf(rexxerrors.KindResolution, "cannot classify REQUIRE reference %q", ref)
	}
}

// normalizeBuiltinSourcePath trims a `./` or `../` prefix so
// "./src/math" and "../src/math" both key the same registered module.
func normalizeBuiltinSourcePath(ref string) string {
	ref = strings.TrimPrefix(ref, "../")
	ref = strings.TrimPrefix(ref, "./")
	return ref
}

// loadManifestOrProvider reads a JSON manifest file at resolvedPath
// (schema-validated), and merges in any host-registered provider exports
// for the same candidate reference, so a library can supply metadata via a
// checked-in manifest and implementations via RegisterProvider.
func (l *RequireLoader) loadManifestOrProvider(ctx context.Context, ref, resolvedPath string) (*LoadedLibrary, error) {
	lib := &LoadedLibrary{}
	if provider, ok := l.lookupProvider(ref); ok {
		loaded, err := provider(ctx, ref)
		if err != nil {
			return nil, err
		}
		lib = loaded
	}

	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		if lib.Functions != nil || lib.Addresses != nil || lib.Metadata != nil {
			// A provider already supplied exports; a missing manifest file
			// just means no extra declared metadata.
			return lib, nil
		}
		return nil, rexxerrors.Wrap(rexxerrors.KindFile, fmt.Sprintf("local-source library not found: %s", resolvedPath), err)
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, rexxerrors.Wrap(rexxerrors.KindResolution, "library manifest is not valid JSON: "+resolvedPath, err)
	}
	schema, err := compiledManifestSchema()
	if err != nil {
		return nil, rexxerrors.Wrap(rexxerrors.KindResolution, "internal: library manifest schema failed to compile", err)
	}
	if err := schema.Validate(raw); err != nil {
		return nil, rexxerrors.Wrap(rexxerrors.KindResolution, "library manifest failed schema validation: "+resolvedPath, err)
	}

	var manifest libraryManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, rexxerrors.Wrap(rexxerrors.KindResolution, "library manifest decode failed", err)
	}
	for _, fn := range manifest.Functions {
		lib.Metadata = append(lib.Metadata, FunctionMeta{
			Name:        fn.Name,
			Module:      manifest.Module,
			Category:    fn.Category,
			Description: fn.Description,
			Parameters:  fn.Parameters,
			Returns:     fn.Returns,
			Examples:    fn.Examples,
		})
	}
	return lib, nil
}

// loadRemote implements the central-registry/direct-source external load
// path over the message-based channel of spec.md §6: a request is sent
// through the streaming progress callback, and the loader blocks on the
// host response channel bounded by a timeout, per §5's
// context.WithTimeout-bounded select contract.
func (l *RequireLoader) loadRemote(ctx context.Context, libraryName string) (*LoadedLibrary, error) {
	if l.Remote == nil || l.Remote.Send == nil || l.Remote.Responses == nil {
		return nil, rexxerrors.Newf(rexxerrors.KindResolution, "cannot load %q: no_communication_channel", libraryName)
	}
	requireID := uuid.NewString()
	req := RequireRequest{
		Type:        "require_request",
		LibraryName: libraryName,
		RequireID:   requireID,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err := l.Remote.Send(req); err != nil {
		return nil, rexxerrors.Wrap(rexxerrors.KindResolution, "failed to send require_request for "+libraryName, err)
	}

	timeout := l.Remote.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-timeoutCtx.Done():
			return nil, rexxerrors.Newf(rexxerrors.KindTimeout, "REQUIRE %q timed out", libraryName)
		case resp, ok := <-l.Remote.Responses:
			if !ok {
				return nil, rexxerrors.Newf(rexxerrors.KindResolution, "cannot load %q: no_communication_channel", libraryName)
			}
			if resp.RequireID != requireID {
				continue
			}
			if !resp.Success {
				return nil, rexxerrors.Newf(rexxerrors.KindResolution, "REQUIRE %q failed: %s", libraryName, resp.Error)
			}
			return &LoadedLibrary{
				Metadata: []FunctionMeta{{Name: resp.LibraryName}},
			}, nil
		}
	}
}

// register installs a resolved library's exports into the driver's
// registries: functions into the BuiltinRegistry, ADDRESS handlers into the
// AddressRouter, and metadata into the MetadataRegistry.
func (l *RequireLoader) register(lib *LoadedLibrary) {
	for name, fn := range lib.Functions {
		l.driver.registry.Register(name, fn)
	}
	for target, handler := range lib.Addresses {
		l.driver.address.Register(target, handler)
	}
	for _, meta := range lib.Metadata {
		l.meta.Register(meta)
	}
}
