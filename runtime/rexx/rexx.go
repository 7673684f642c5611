// Package rexx is the public host-embedding facade, grounded on the
// teacher's runtime/runtime.go Execute/ExecuteWithProgram entrypoint shape
// (parse -> validate -> build context -> run), generalized from devcmd's
// single-command-by-name execution to this language's whole-program Run.
// It is the only package outside runtime/interp that a host embedding this
// interpreter is expected to import.
package rexx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aledsdavies/rexxgo/core/ast"
	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/builtins"
	"github.com/aledsdavies/rexxgo/runtime/interp"
	"github.com/aledsdavies/rexxgo/runtime/parser"
)

// Re-exported so a host never needs to import runtime/interp directly.
type (
	RunResult         = interp.RunResult
	RunMeta           = interp.RunMeta
	AddressHandler    = interp.AddressHandler
	SourceContext     = interp.SourceContext
	Callable          = interp.Callable
	FunctionMeta      = interp.FunctionMeta
	PolicyName        = interp.PolicyName
	ApprovalRequest   = interp.ApprovalRequest
	ApprovalResponse  = interp.ApprovalResponse
	ApprovalExchanger = interp.ApprovalExchanger
	RequireRequest    = interp.RequireRequest
	RequireResponse   = interp.RequireResponse
)

const (
	PolicyStrict     = interp.PolicyStrict
	PolicyModerate   = interp.PolicyModerate
	PolicyDefault    = interp.PolicyDefault
	PolicyPermissive = interp.PolicyPermissive
)

// Parse tokenizes and parses source, returning every accumulated parse
// error joined into one, line-annotated error value — the Go shape of
// spec.md §6's "Throws with line-annotated messages on failure."
func Parse(source string) (*ast.Program, error) {
	program, errs := parser.Parse([]byte(source))
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return program, nil
}

// OutputHandler is the base sink every SAY line is delivered to, per
// spec.md §6's output handler contract. Write/WriteLine/WriteError are
// optional, narrower capabilities a handler may additionally implement;
// CompositeOutputHandler checks for them with a type assertion rather than
// requiring every handler to implement the full set.
type OutputHandler interface {
	Output(text string)
}

type Writer interface {
	Write(text string) error
}

type LineWriter interface {
	WriteLine(text string) error
}

type ErrorWriter interface {
	WriteError(text string) error
}

// CompositeOutputHandler fans SAY output out to named sub-handlers (e.g.
// "console", "log", "rpc", "file"). Every sub-handler receives the line,
// through WriteLine, else Write, else Output, regardless of whether an
// earlier one errors; per-sink failures are
// aggregated into one "Output handler errors: ..." error rather than
// aborting delivery to the remaining siblings.
type CompositeOutputHandler struct {
	Handlers map[string]OutputHandler
}

func (c *CompositeOutputHandler) Output(text string) {
	if err := c.deliver(text); err != nil {
		// There is no error return on the OutputHandler.Output contract
		// itself (spec.md's output(text) is fire-and-forget); a caller
		// that needs the aggregated error should call deliver directly
		// through a narrower handler, or inspect via WriteError below.
		for _, h := range c.Handlers {
			if ew, ok := h.(ErrorWriter); ok {
				_ = ew.WriteError(err.Error())
			}
		}
	}
}

func (c *CompositeOutputHandler) deliver(text string) error {
	var failures []string
	for name, h := range c.Handlers {
		if err := c.deliverOne(h, text); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", name, err))
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return fmt.Errorf("Output handler errors: %s", strings.Join(failures, ", "))
}

func (c *CompositeOutputHandler) deliverOne(h OutputHandler, text string) error {
	if lw, ok := h.(LineWriter); ok {
		return lw.WriteLine(text)
	}
	if w, ok := h.(Writer); ok {
		return w.Write(text)
	}
	h.Output(text)
	return nil
}

// Interpreter is the host-facing wrapper around a *interp.Driver: one
// instance per running script, owning its own store/registry/address
// router/security policy, with the process-wide metadata registry
// injected (or defaulted to interp.GlobalMetadata()).
type Interpreter struct {
	driver *interp.Driver
	meta   *interp.MetadataRegistry
}

// Option configures an Interpreter at construction time.
type Option func(*Interpreter)

// WithMetadataRegistry injects a specific *interp.MetadataRegistry rather
// than the process-wide default, e.g. so tests can build an isolated
// catalog.
func WithMetadataRegistry(meta *interp.MetadataRegistry) Option {
	return func(i *Interpreter) {
		i.meta = meta
	}
}

// NewInterpreter builds an Interpreter with every built-in from
// runtime/builtins registered, per spec.md §9's registry-ownership note.
func NewInterpreter(opts ...Option) *Interpreter {
	i := &Interpreter{meta: interp.GlobalMetadata()}
	for _, opt := range opts {
		opt(i)
	}
	i.driver = interp.NewDriver(i.meta)
	builtins.RegisterAll(i.driver.Registry(), i.meta)
	return i
}

// Run executes program to completion (or to its first unhandled RETURN at
// the true top level, EXIT, or a propagated error), per spec.md §6.
func (i *Interpreter) Run(ctx context.Context, program *ast.Program, meta RunMeta) (RunResult, error) {
	return i.driver.Run(ctx, program, meta)
}

// RegisterAddressTarget wires handler under target's case-insensitive
// name, per spec.md §6's register_address_target.
func (i *Interpreter) RegisterAddressTarget(target string, handler AddressHandler) {
	i.driver.Address().Register(target, handler)
}

// RegisterBuiltin adds or replaces a single callable, per spec.md §6's
// register_builtin — for ad hoc host functions that don't warrant a whole
// runtime/builtins concern file.
func (i *Interpreter) RegisterBuiltin(name string, fn Callable) {
	i.driver.Registry().Register(name, fn)
}

// SecurityPolicy is re-exported so a host can build one without importing
// runtime/interp directly.
type SecurityPolicy = interp.SecurityPolicy

// NewSecurityPolicy constructs a policy under name ("strict", "moderate",
// "default", or "permissive"), per spec.md §4.6's REQUIRE approval rules.
func NewSecurityPolicy(name PolicyName) *SecurityPolicy {
	return interp.NewSecurityPolicy(name)
}

// SetSecurityPolicy installs policy, replacing the interpreter's default.
func (i *Interpreter) SetSecurityPolicy(policy *SecurityPolicy) {
	i.driver.SetSecurityPolicy(policy)
}

// SetOutputHandler wires h so every SAY line reaches it, per spec.md §6's
// set_output_handler.
func (i *Interpreter) SetOutputHandler(h OutputHandler) {
	i.driver.SetOutputFunc(func(line string) {
		if h != nil {
			h.Output(line)
		}
	})
}

// SetStreamingProgressCallback wires the remote REQUIRE request channel's
// send half, per spec.md §6: the interpreter sends require_request
// messages through this callback while listening for responses on the
// host event channel configured via SetRemoteRequireTransport.
func (i *Interpreter) SetStreamingProgressCallback(cb func(event string, data interface{})) {
	loader := i.driver.Require()
	if loader.Remote == nil {
		loader.Remote = &interp.RemoteRequireTransport{}
	}
	loader.Remote.Send = func(req RequireRequest) error {
		cb("require_request", req)
		return nil
	}
}

// SetRemoteRequireTransport wires the host's response channel (and
// optional timeout) for remote REQUIRE loads, completing the half
// SetStreamingProgressCallback does not cover.
func (i *Interpreter) SetRemoteRequireTransport(responses <-chan RequireResponse, timeout time.Duration) {
	loader := i.driver.Require()
	if loader.Remote == nil {
		loader.Remote = &interp.RemoteRequireTransport{}
	}
	loader.Remote.Responses = responses
	loader.Remote.Timeout = timeout
}

// SetApprovalExchanger wires the host's answer to unknown/moderate-policy
// REQUIRE approval requests.
func (i *Interpreter) SetApprovalExchanger(exchange ApprovalExchanger) {
	// Security policy is owned by the driver; an Interpreter built with
	// the default policy gets one mutated in place so callers don't have
	// to construct their own SecurityPolicy just to wire an exchanger.
	i.driver.Security().Exchange = exchange
}

// RegisterRequireSource wires a built-in-source REQUIRE provider under a
// virtual `./src/...` path, per spec.md §4.6.
func (i *Interpreter) RegisterRequireSource(virtualPath string, provider interp.LibraryProvider) {
	i.driver.Require().RegisterSource(virtualPath, provider)
}

// RegisterRequireProvider wires a provider for one exact local/central/
// direct-source REQUIRE candidate reference string.
func (i *Interpreter) RegisterRequireProvider(ref string, provider interp.LibraryProvider) {
	i.driver.Require().RegisterProvider(ref, provider)
}

// GetVariable reads a top-level (global frame) variable, per spec.md §6's
// get_variable.
func (i *Interpreter) GetVariable(name string) (types.Value, bool) {
	return i.driver.Store().Get(i.driver.Store().RootFrame(), name, nil)
}

// SetVariable writes a top-level (global frame) variable, per spec.md §6's
// set_variable.
func (i *Interpreter) SetVariable(name string, value types.Value) {
	i.driver.Store().Set(i.driver.Store().RootFrame(), name, nil, value)
}

// EnableTrace turns on `>> <line> <text>` trace emission, optionally
// mirroring each line to sink in addition to the slog "trace" channel.
func (i *Interpreter) EnableTrace(sink func(line string)) {
	i.driver.Tracer().Enable(sink)
}

func (i *Interpreter) DisableTrace() {
	i.driver.Tracer().Disable()
}

// MetadataRegistry returns the registry backing `describe`/introspection
// queries (see cmd/rexxgo).
func (i *Interpreter) MetadataRegistry() *interp.MetadataRegistry {
	return i.meta
}
