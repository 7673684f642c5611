// Package builtins is the language's stdlib surface: one file per concern
// (strings, numerics, arrays/stems, JSON), each registering its functions
// at init() time the way the teacher's runtime/decorators/builtin/*.go
// files self-register into a package-level table. The difference from the
// teacher's pattern is deliberate: a builtin registry here is owned
// per-Interpreter, not a bare package global (spec.md §9), so init() only
// appends to this package's own registration list; RegisterAll copies that
// list into a caller-supplied *interp.BuiltinRegistry and
// *interp.MetadataRegistry at construction time, one instance at a time.
package builtins

import "github.com/aledsdavies/rexxgo/runtime/interp"

type registration struct {
	name string
	fn   interp.Callable
	meta interp.FunctionMeta
}

var registrations []registration

// register appends a builtin's implementation and metadata to the
// package-wide registration list; called from each concern file's init().
func register(name string, fn interp.Callable, meta interp.FunctionMeta) {
	meta.Name = name
	meta.Module = "builtins"
	registrations = append(registrations, registration{name: name, fn: fn, meta: meta})
}

// RegisterAll copies every builtin registered at package init time into
// funcs (and, if non-nil, meta). Call once per *interp.Driver at
// construction.
func RegisterAll(funcs *interp.BuiltinRegistry, meta *interp.MetadataRegistry) {
	for _, r := range registrations {
		funcs.Register(r.name, r.fn)
		if meta != nil {
			meta.Register(r.meta)
		}
	}
}
