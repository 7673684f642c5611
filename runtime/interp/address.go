package interp

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/aledsdavies/rexxgo/core/ast"
	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
)

// AddressHandler is the ADDRESS target contract of spec.md §6: an async
// (ctx-threaded) handler receiving a command-or-method string, a
// parameter object, and a source context, returning a Value.
type AddressHandler func(ctx context.Context, commandOrMethod string, params *types.Object, source SourceContext) (types.Value, error)

// SourceContext carries the originating line number and the String()
// rendering of the command a handler is being asked to run (not the raw
// source line), so a handler can report
// errors back with the script's own coordinates.
type SourceContext struct {
	Line int
	Text string
}

// Introspectable is the optional `_introspect({format, protocol})` pseudo-
// method contract spec.md §6 allows a handler to implement.
type Introspectable interface {
	Introspect(format, protocol string) (types.Value, error)
}

// addressEntry is one registered ADDRESS target, the way decorator.Entry
// pairs an implementation with auto-inferred roles; ADDRESS targets here
// only ever need a single role (the async handler contract), so role
// inference collapses to a plain existence check per SPEC_FULL.md §4.5.
type addressEntry struct {
	handler AddressHandler
}

// AddressRouter is the ADDRESS subsystem's target registry and active
// current_address, per spec.md §4.5. Grounded on the teacher's
// core/decorator/registry.go "database/sql
// driver" registration pattern (mutex-protected map, Register/Lookup),
// adapted so the registry instance is owned per-Driver rather than a bare
// package-level global the way the teacher's decorator registry is.
//
// MATCHING note: the parser collects a MATCHING run's lines eagerly at
// parse time (ast.AddressCmd.Lines) rather than the driver evaluating
// each subsequent bare source line against the pattern as the program
// executes it — every line a MATCHING clause will ever dispatch is known
// by the time an AddressCmd reaches the driver. What the driver still
// does at dispatch time is apply the pattern's extraction/accumulation
// algorithm itself (execAddressSingleLineMatching / execAddressMultiline-
// Matching below): single-line mode joins one already-extracted run into
// one dispatch, MULTILINE mode walks the raw collected lines applying the
// full accumulate-flush-dispatch algorithm spec.md §4.5 describes. The
// router itself only needs to remember the active target name; it
// carries no MATCHING state of its own.
type AddressRouter struct {
	mu      sync.RWMutex
	targets map[string]addressEntry

	current string
}

// NewAddressRouter returns an AddressRouter with no registered targets and
// no active current_address.
func NewAddressRouter() *AddressRouter {
	return &AddressRouter{targets: make(map[string]addressEntry)}
}

// Register adds or replaces the handler for target, case-insensitively.
func (r *AddressRouter) Register(target string, handler AddressHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[strings.ToUpper(target)] = addressEntry{handler: handler}
}

func (r *AddressRouter) lookup(target string) (addressEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.targets[strings.ToUpper(target)]
	return e, ok
}

// Current returns the active target name, or "" if none is set.
func (r *AddressRouter) Current() string { return r.current }

func (r *AddressRouter) dispatch(ctx context.Context, target, payload string, params *types.Object, src SourceContext) (types.Value, error) {
	entry, ok := r.lookup(target)
	if !ok {
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindResolution, "no ADDRESS target registered for %q", target)
	}
	return entry.handler(ctx, payload, params, src)
}

// execAddress handles every ADDRESS command form spec.md §4.5 names:
// switching current_address, a one-shot quoted dispatch that leaves
// current_address untouched, and the HEREDOC/MATCHING forms that both
// set current_address and dispatch their pre-collected payload lines
// immediately (single-line mode — see the MATCHING note on AddressRouter).
func (d *Driver) execAddress(ctx context.Context, frameID string, c *ast.AddressCmd) (flowResult, error) {
	src := SourceContext{Line: c.Pos.Line, Text: c.String()}

	switch c.Mode {
	case ast.AddressCommand:
		if c.Payload != nil {
			// One-shot `ADDRESS target "literal"`: dispatch without
			// changing current_address.
			v, err := d.evaluator.Eval(ctx, frameID, c.Payload)
			if err != nil {
				return flowResult{}, err
			}
			return flowResult{kind: ctrlNone}, d.dispatchAddressLine(ctx, c.Target, v.String(), nil, src)
		}
		d.address.mu.Lock()
		d.address.current = c.Target
		d.address.mu.Unlock()
		return flowResult{kind: ctrlNone}, nil

	case ast.AddressHeredoc:
		d.address.mu.Lock()
		d.address.current = c.Target
		d.address.mu.Unlock()
		payload := strings.Join(c.Lines, "\n")
		return flowResult{kind: ctrlNone}, d.dispatchAddressLine(ctx, c.Target, payload, nil, src)

	case ast.AddressMatching:
		d.address.mu.Lock()
		d.address.current = c.Target
		d.address.mu.Unlock()
		if c.Multiline {
			return flowResult{kind: ctrlNone}, d.execAddressMultilineMatching(ctx, c, src)
		}
		return flowResult{kind: ctrlNone}, d.execAddressSingleLineMatching(ctx, c, src)

	default:
		return flowResult{}, rexxerrors.Newf(rexxerrors.KindExpression, "unknown ADDRESS mode at line %d", c.Pos.Line)
	}
}

// execAddressSingleLineMatching dispatches a non-MULTILINE MATCHING run:
// c.Lines already holds each matching line's extracted content (collected
// eagerly by the parser), so the whole contiguous run becomes one payload
// joined by "\n" — spec.md §8 scenario 2's worked example (no MULTILINE,
// one handler call for a multi-line indented block, prefix extracted).
func (d *Driver) execAddressSingleLineMatching(ctx context.Context, c *ast.AddressCmd, src SourceContext) error {
	if len(c.Lines) == 0 {
		return nil
	}
	params := types.NewObject()
	params.Set("_addressMatchingPattern", types.String(c.Pattern))
	payload := strings.Join(c.Lines, "\n")
	return d.dispatchAddressLine(ctx, c.Target, payload, params, src)
}

// execAddressMultilineMatching walks c.Lines' raw (unextracted) text
// applying spec.md §4.5's MULTILINE algorithm: blank lines are dropped;
// matching lines with non-empty extracted content accumulate; a
// non-matching, non-blank line flushes the accumulated buffer as one
// dispatch (if non-empty) and then is itself dispatched verbatim; any
// remaining buffer flushes once more at end-of-run.
func (d *Driver) execAddressMultilineMatching(ctx context.Context, c *ast.AddressCmd, src SourceContext) error {
	re, err := regexp.Compile(c.Pattern)
	if err != nil {
		return rexxerrors.Newf(rexxerrors.KindExpression, "invalid MATCHING pattern %q at line %d: %v", c.Pattern, c.Pos.Line, err)
	}

	params := func() *types.Object {
		p := types.NewObject()
		p.Set("_addressMatchingPattern", types.String(c.Pattern))
		return p
	}

	var buffer []string
	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		payload := strings.Join(buffer, "\n")
		buffer = nil
		return d.dispatchAddressLine(ctx, c.Target, payload, params(), src)
	}

	for _, line := range c.Lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := re.FindStringSubmatch(line); m != nil {
			content := ""
			if len(m) > 1 {
				content = m[1]
			}
			if content != "" {
				buffer = append(buffer, content)
			}
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		if err := d.dispatchAddressLine(ctx, c.Target, line, params(), src); err != nil {
			return err
		}
	}
	return flush()
}

// execAddressCommand dispatches a bare command line to whichever target
// is currently active, per spec.md §4.5 routing rule 4.
func (d *Driver) execAddressCommand(ctx context.Context, frameID string, c *ast.AddressCommandCmd) (flowResult, error) {
	v, err := d.evaluator.Eval(ctx, frameID, c.Text)
	if err != nil {
		return flowResult{}, err
	}
	current := d.address.Current()
	if current == "" {
		return flowResult{}, rexxerrors.Newf(rexxerrors.KindResolution, "no ADDRESS target is active at line %d", c.Pos.Line)
	}
	src := SourceContext{Line: c.Pos.Line, Text: c.String()}
	return flowResult{kind: ctrlNone}, d.dispatchAddressLine(ctx, current, v.String(), nil, src)
}

// dispatchAddressLine invokes the handler and applies the RC/RESULT
// propagation contract of spec.md §4.5: the whole returned Value becomes
// RESULT; a "success"/"rc" field on an Object result sets RC, otherwise a
// successful call sets RC = 0 and a returned error sets a nonzero RC.
func (d *Driver) dispatchAddressLine(ctx context.Context, target, payload string, params *types.Object, src SourceContext) error {
	if params == nil {
		params = types.NewObject()
	}
	v, err := d.address.dispatch(ctx, target, payload, params, src)
	if err != nil {
		d.store.SetRC(1)
		return rexxerrors.Wrap(rexxerrors.KindHandler, "ADDRESS "+target+" handler failed", err)
	}
	d.store.SetResult(v)
	rc := 0.0
	if v.Kind == types.KindObject && v.Object() != nil {
		if rcVal, ok := v.Object().Get("rc"); ok {
			rc, _ = rcVal.ToNumber()
		} else if successVal, ok := v.Object().Get("success"); ok && !successVal.IsTruthy() {
			rc = 1
		}
	}
	d.store.SetRC(rc)
	return nil
}

