package interp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aledsdavies/rexxgo/core/ast"
	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
)

// MaxCallDepth bounds the call stack the way spec.md §4.4 requires;
// exceeding it yields a StackOverflow error whose message contains
// "Maximum call stack", the exact substring §4.4/§8 contract on.
const MaxCallDepth = 1000

// ctrl is the driver's internal control-flow signal, returned alongside
// (or instead of) a Go error from every command dispatch. It is the
// explicit equivalent of the teacher's tree_runner.go switch-on-node-type
// executor loop (runtime/executor/tree_runner.go), generalized from exit
// codes to the richer RETURN/EXIT/SIGNAL/LEAVE/ITERATE vocabulary this
// language's control flow needs.
type ctrl int

const (
	ctrlNone ctrl = iota
	ctrlReturn
	ctrlExit
	ctrlSignal
	ctrlLeave
	ctrlIterate
)

type flowResult struct {
	kind        ctrl
	returnValue types.Value
	exitCode    float64
	signalLabel string
}

// RunResult is the outcome of Driver.Run, mirroring spec.md §6's
// `{ type: 'RETURN'|'EXIT'|'NORMAL', value?, code? }` contract.
type RunResult struct {
	Type  string // "RETURN", "EXIT", or "NORMAL"
	Value types.Value
	Code  int
}

// RunMeta carries the ambient context a top-level run (or an external
// script call) needs beyond the parsed program: the CLI-style positional
// arguments PARSE ARG destructures at top level, the script's own file
// path for relative REQUIRE/external-call resolution, and the
// remote-orchestration flags spec.md §6 requires be visible to scripts as
// SCRO_REMOTE/SCRO_ORCHESTRATION_ID.
type RunMeta struct {
	Args            []types.Value
	ScriptPath      string
	Remote          bool
	OrchestrationID string
}

// callStackFrame is one CALL activation: the positional/named arguments
// bound for ARG/PARSE ARG to read, and the frame id subroutine code
// resolves variables against. Every plain CALL shares the caller's own
// frame id (spec.md §3: "Subroutines share the variable store with the
// caller"); external-call frames use an isolated frame id instead (see
// external.go).
type callStackFrame struct {
	frameID    string
	positional []types.Value
	named      map[string]types.Value
}

// Driver is the tree-walking interpreter core: program counter over a
// flat top-level command list, call stack, ADDRESS router state, and the
// special RC/RESULT bookkeeping the store owns. Grounded on the teacher's
// executor/tree_runner.go dispatch-by-node-type loop, generalized from a
// shell-pipeline tree to a line-numbered REXX command list with labels,
// CALL/SIGNAL, and loop control.
type Driver struct {
	store     *Store
	evaluator *Evaluator
	registry  *BuiltinRegistry
	address   *AddressRouter
	security  *SecurityPolicy
	require   *RequireLoader
	tracer    *Tracer

	cmds       []ast.Command
	labelIndex map[string]int

	callStack []callStackFrame
	topArgs   []types.Value

	scriptPath     string
	outputFn       func(string)
	externalStack  []string
}

// NewDriver wires a fresh Store, Evaluator, BuiltinRegistry, AddressRouter,
// SecurityPolicy, RequireLoader, and Tracer into one Driver. meta is an
// optional MetadataRegistry shared across interpreter instances per
// spec.md §9; pass GlobalMetadata() or a fresh NewMetadataRegistry().
func NewDriver(meta *MetadataRegistry) *Driver {
	store := NewStore()
	registry := NewBuiltinRegistry()
	evaluator := NewEvaluator(store, registry)
	d := &Driver{
		store:     store,
		evaluator: evaluator,
		registry:  registry,
		address:   NewAddressRouter(),
		security:  NewSecurityPolicy(PolicyDefault),
		tracer:    NewTracer(),
	}
	d.require = NewRequireLoader(d, meta)
	evaluator.driver = d
	return d
}

func (d *Driver) Store() *Store                       { return d.store }
func (d *Driver) Registry() *BuiltinRegistry          { return d.registry }
func (d *Driver) Address() *AddressRouter             { return d.address }
func (d *Driver) SetSecurityPolicy(p *SecurityPolicy) { d.security = p }
func (d *Driver) Security() *SecurityPolicy           { return d.security }
func (d *Driver) Require() *RequireLoader             { return d.require }
func (d *Driver) Tracer() *Tracer                     { return d.tracer }

// Run executes program from its first top-level command, per spec.md §6.
func (d *Driver) Run(ctx context.Context, program *ast.Program, meta RunMeta) (RunResult, error) {
	d.cmds = program.Commands
	d.labelIndex = buildLabelIndex(d.cmds)
	d.topArgs = meta.Args
	d.scriptPath = meta.ScriptPath
	d.store.Set(d.store.RootFrame(), "SCRO_REMOTE", nil, types.Bool(meta.Remote))
	d.store.Set(d.store.RootFrame(), "SCRO_ORCHESTRATION_ID", nil, types.String(meta.OrchestrationID))

	result, err := d.execFrom(ctx, d.store.RootFrame(), 0)
	if err != nil {
		return RunResult{}, err
	}
	switch result.kind {
	case ctrlReturn:
		return RunResult{Type: "RETURN", Value: result.returnValue}, nil
	case ctrlExit:
		return RunResult{Type: "EXIT", Code: int(result.exitCode)}, nil
	default:
		return RunResult{Type: "NORMAL"}, nil
	}
}

// labelNames returns every label in the current program, sorted, for
// SIGNAL's "did you mean" suggestion.
func (d *Driver) labelNames() []string {
	out := make([]string, 0, len(d.labelIndex))
	for name := range d.labelIndex {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func buildLabelIndex(cmds []ast.Command) map[string]int {
	idx := make(map[string]int)
	for i, c := range cmds {
		if lbl, ok := c.(*ast.LabelCmd); ok {
			idx[strings.ToUpper(lbl.Name)] = i + 1
		}
	}
	return idx
}

// execFrom runs the flat top-level command list starting at pc until a
// RETURN/EXIT is hit (propagated to the caller), the list runs out (an
// implicit RETURN with Undefined for a subroutine, or NORMAL completion
// at the true top level), or a SIGNAL resolves to a new pc within this
// same loop. SIGNAL deliberately does not create a new callStack entry:
// it is a flat jump within whichever call-stack frame is currently
// active, exactly like classical REXX's SIGNAL.
func (d *Driver) execFrom(ctx context.Context, frameID string, pc int) (flowResult, error) {
	for pc < len(d.cmds) {
		if err := ctx.Err(); err != nil {
			return flowResult{}, err
		}
		cmd := d.cmds[pc]
		if _, ok := cmd.(*ast.LabelCmd); ok {
			pc++
			continue
		}
		result, err := d.execCommand(ctx, frameID, cmd)
		if err != nil {
			return flowResult{}, err
		}
		switch result.kind {
		case ctrlNone, ctrlLeave, ctrlIterate:
			// LEAVE/ITERATE with no enclosing DO loop is silently a NOP
			// per spec.md §4.4.
			pc++
		case ctrlSignal:
			idx, ok := d.labelIndex[strings.ToUpper(result.signalLabel)]
			if !ok {
				label := strings.ToUpper(result.signalLabel)
				msg := withSuggestion(fmt.Sprintf("Label %s not found", label), label, d.labelNames())
				return flowResult{}, rexxerrors.New(rexxerrors.KindResolution, msg)
			}
			pc = idx
		case ctrlReturn, ctrlExit:
			return result, nil
		}
	}
	return flowResult{kind: ctrlNone}, nil
}

// execCommands runs a nested block body (IF/DO/SELECT branch) in order,
// propagating the first non-NONE control-flow signal immediately.
func (d *Driver) execCommands(ctx context.Context, frameID string, cmds []ast.Command) (flowResult, error) {
	for _, cmd := range cmds {
		result, err := d.execCommand(ctx, frameID, cmd)
		if err != nil {
			return flowResult{}, err
		}
		if result.kind != ctrlNone {
			return result, nil
		}
	}
	return flowResult{kind: ctrlNone}, nil
}

func (d *Driver) execCommand(ctx context.Context, frameID string, cmd ast.Command) (flowResult, error) {
	d.tracer.Trace(cmd)

	switch c := cmd.(type) {
	case *ast.LabelCmd:
		return flowResult{kind: ctrlNone}, nil

	case *ast.SayCmd:
		return d.execSay(ctx, frameID, c)

	case *ast.LetCmd:
		v, err := d.evaluator.Eval(ctx, frameID, c.Expr)
		if err != nil {
			return flowResult{}, err
		}
		d.store.Set(frameID, c.Name, c.Path, v)
		return flowResult{kind: ctrlNone}, nil

	case *ast.AssignCmd:
		v, err := d.evaluator.Eval(ctx, frameID, c.Expr)
		if err != nil {
			return flowResult{}, err
		}
		d.store.Set(frameID, c.Name, c.Path, v)
		return flowResult{kind: ctrlNone}, nil

	case *ast.DropCmd:
		for _, name := range c.Names {
			d.store.Drop(frameID, name)
		}
		return flowResult{kind: ctrlNone}, nil

	case *ast.CallCmd:
		return d.execCall(ctx, frameID, c)

	case *ast.ReturnCmd:
		if c.Value == nil {
			return flowResult{kind: ctrlReturn, returnValue: types.Undefined}, nil
		}
		v, err := d.evaluator.Eval(ctx, frameID, c.Value)
		if err != nil {
			return flowResult{}, err
		}
		return flowResult{kind: ctrlReturn, returnValue: v}, nil

	case *ast.ExitCmd:
		code := 0.0
		if c.Code != nil {
			v, err := d.evaluator.Eval(ctx, frameID, c.Code)
			if err != nil {
				return flowResult{}, err
			}
			code, _ = v.ToNumber()
		}
		return flowResult{kind: ctrlExit, exitCode: code}, nil

	case *ast.SignalCmd:
		return flowResult{kind: ctrlSignal, signalLabel: c.Label}, nil

	case *ast.LeaveCmd:
		return flowResult{kind: ctrlLeave}, nil

	case *ast.IterateCmd:
		return flowResult{kind: ctrlIterate}, nil

	case *ast.NopCmd:
		return flowResult{kind: ctrlNone}, nil

	case *ast.ParseArgCmd:
		return d.execParseArg(frameID, c)

	case *ast.RequireCmd:
		return d.execRequire(ctx, frameID, c)

	case *ast.IfCmd:
		return d.execIf(ctx, frameID, c)

	case *ast.DoBlockCmd:
		return d.execDo(ctx, frameID, c)

	case *ast.SelectCmd:
		return d.execSelect(ctx, frameID, c)

	case *ast.AddressCmd:
		return d.execAddress(ctx, frameID, c)

	case *ast.AddressCommandCmd:
		return d.execAddressCommand(ctx, frameID, c)

	default:
		return flowResult{}, rexxerrors.Newf(rexxerrors.KindExpression, "unexecutable command node %T at line %d", cmd, cmd.Line())
	}
}

func (d *Driver) execSay(ctx context.Context, frameID string, c *ast.SayCmd) (flowResult, error) {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		v, err := d.evaluator.Eval(ctx, frameID, a)
		if err != nil {
			return flowResult{}, err
		}
		parts[i] = v.String()
	}
	d.output(strings.Join(parts, " "))
	return flowResult{kind: ctrlNone}, nil
}

// output is overridden by SetOutputHandler in rexx.go; the zero value
// writes nowhere so a Driver built directly (as in this package's own
// tests) stays silent rather than reaching for os.Stdout, which belongs
// to the host embedding layer, not the interpreter core.
func (d *Driver) output(line string) {
	if d.outputFn != nil {
		d.outputFn(line)
	}
}

// SetOutputFunc wires the host's OutputHandler into the driver; called by
// rexx.Interpreter.SetOutputHandler.
func (d *Driver) SetOutputFunc(fn func(string)) { d.outputFn = fn }

func (d *Driver) execCall(ctx context.Context, frameID string, c *ast.CallCmd) (flowResult, error) {
	if isExternalTarget(c.Target) {
		return d.execExternalCall(ctx, frameID, c)
	}

	canon := strings.ToUpper(c.Target)
	if idx, ok := d.labelIndex[canon]; ok {
		if len(d.callStack) >= MaxCallDepth {
			return flowResult{}, rexxerrors.New(rexxerrors.KindStackOverflow, "Maximum call stack size exceeded")
		}
		positional, named, err := d.evalArgs(ctx, frameID, c.Args)
		if err != nil {
			return flowResult{}, err
		}
		d.callStack = append(d.callStack, callStackFrame{frameID: frameID, positional: positional, named: named})
		inner, err := d.execFrom(ctx, frameID, idx)
		d.callStack = d.callStack[:len(d.callStack)-1]
		if err != nil {
			return flowResult{}, err
		}
		switch inner.kind {
		case ctrlExit:
			return inner, nil
		case ctrlReturn:
			d.store.SetResult(inner.returnValue)
		default:
			d.store.SetResult(types.Undefined)
		}
		return flowResult{kind: ctrlNone}, nil
	}

	v, err := d.evaluator.dispatchCall(ctx, frameID, c.Target, c.Args)
	if err != nil {
		return flowResult{}, err
	}
	d.store.SetResult(v)
	return flowResult{kind: ctrlNone}, nil
}

func (d *Driver) evalArgs(ctx context.Context, frameID string, args []ast.NamedArg) ([]types.Value, map[string]types.Value, error) {
	positional := make([]types.Value, 0, len(args))
	named := make(map[string]types.Value, len(args))
	for _, a := range args {
		v, err := d.evaluator.Eval(ctx, frameID, a.Value)
		if err != nil {
			return nil, nil, err
		}
		if a.Name == "" {
			positional = append(positional, v)
		} else {
			named[strings.ToUpper(a.Name)] = v
		}
	}
	return positional, named, nil
}

// callSubroutineAsFunction is the evaluator's hook for spec.md §4.3's
// second dispatch tier ("subroutine table, as callable"): a function-call
// expression whose name matches a label is executed exactly like CALL,
// and the subroutine's RETURN value becomes this expression's value
// rather than going through RESULT.
func (d *Driver) callSubroutineAsFunction(ctx context.Context, frameID, name string, positional []types.Value, named map[string]types.Value) (types.Value, bool, error) {
	idx, ok := d.labelIndex[strings.ToUpper(name)]
	if !ok {
		return types.Undefined, false, nil
	}
	if len(d.callStack) >= MaxCallDepth {
		return types.Undefined, true, rexxerrors.New(rexxerrors.KindStackOverflow, "Maximum call stack size exceeded")
	}
	d.callStack = append(d.callStack, callStackFrame{frameID: frameID, positional: positional, named: named})
	inner, err := d.execFrom(ctx, frameID, idx)
	d.callStack = d.callStack[:len(d.callStack)-1]
	if err != nil {
		return types.Undefined, true, err
	}
	if inner.kind == ctrlReturn {
		return inner.returnValue, true, nil
	}
	return types.Undefined, true, nil
}

func (d *Driver) execParseArg(frameID string, c *ast.ParseArgCmd) (flowResult, error) {
	var values []types.Value
	if len(d.callStack) > 0 {
		values = d.callStack[len(d.callStack)-1].positional
	} else {
		values = d.topArgs
	}
	for i, target := range c.Targets {
		if i < len(values) {
			d.store.Set(frameID, target, nil, values[i])
		} else {
			d.store.Set(frameID, target, nil, types.Undefined)
		}
	}
	return flowResult{kind: ctrlNone}, nil
}

func (d *Driver) execIf(ctx context.Context, frameID string, c *ast.IfCmd) (flowResult, error) {
	cond, err := d.evaluator.Eval(ctx, frameID, c.Cond)
	if err != nil {
		return flowResult{}, err
	}
	if cond.IsTruthy() {
		return d.execCommands(ctx, frameID, c.Then)
	}
	if len(c.Else) > 0 {
		return d.execCommands(ctx, frameID, c.Else)
	}
	return flowResult{kind: ctrlNone}, nil
}

func (d *Driver) execSelect(ctx context.Context, frameID string, c *ast.SelectCmd) (flowResult, error) {
	for _, when := range c.Whens {
		cond, err := d.evaluator.Eval(ctx, frameID, when.Cond)
		if err != nil {
			return flowResult{}, err
		}
		if cond.IsTruthy() {
			d.tracer.TraceLine(when.Pos.Line, "WHEN "+when.Cond.String()+" THEN")
			return d.execCommands(ctx, frameID, when.Body)
		}
	}
	if len(c.Otherwise) > 0 {
		d.tracer.TraceLine(c.Pos.Line, "OTHERWISE")
		return d.execCommands(ctx, frameID, c.Otherwise)
	}
	return flowResult{kind: ctrlNone}, nil
}

func (d *Driver) execDo(ctx context.Context, frameID string, c *ast.DoBlockCmd) (flowResult, error) {
	switch c.Kind {
	case ast.DoPlain:
		result, err := d.execCommands(ctx, frameID, c.Body)
		if err != nil {
			return flowResult{}, err
		}
		if result.kind == ctrlLeave || result.kind == ctrlIterate {
			return flowResult{kind: ctrlNone}, nil
		}
		return result, nil

	case ast.DoCount:
		n, err := d.evaluator.Eval(ctx, frameID, c.Count)
		if err != nil {
			return flowResult{}, err
		}
		count, _ := n.ToNumber()
		for i := 0; i < int(count); i++ {
			result, err := d.execCommands(ctx, frameID, c.Body)
			if err != nil {
				return flowResult{}, err
			}
			if result.kind == ctrlLeave {
				break
			}
			if result.kind == ctrlIterate {
				continue
			}
			if result.kind != ctrlNone {
				return result, nil
			}
		}
		return flowResult{kind: ctrlNone}, nil

	case ast.DoRange:
		startV, err := d.evaluator.Eval(ctx, frameID, c.Start)
		if err != nil {
			return flowResult{}, err
		}
		endV, err := d.evaluator.Eval(ctx, frameID, c.End)
		if err != nil {
			return flowResult{}, err
		}
		step := 1.0
		if c.Step != nil {
			stepV, err := d.evaluator.Eval(ctx, frameID, c.Step)
			if err != nil {
				return flowResult{}, err
			}
			step, _ = stepV.ToNumber()
		}
		start, _ := startV.ToNumber()
		end, _ := endV.ToNumber()
		for i := start; (step > 0 && i <= end) || (step < 0 && i >= end); i += step {
			d.store.Set(frameID, c.Var, nil, types.Number(i))
			result, err := d.execCommands(ctx, frameID, c.Body)
			if err != nil {
				return flowResult{}, err
			}
			if result.kind == ctrlLeave {
				break
			}
			if result.kind == ctrlIterate {
				continue
			}
			if result.kind != ctrlNone {
				return result, nil
			}
		}
		return flowResult{kind: ctrlNone}, nil

	case ast.DoWhile:
		for {
			cond, err := d.evaluator.Eval(ctx, frameID, c.Cond)
			if err != nil {
				return flowResult{}, err
			}
			if !cond.IsTruthy() {
				break
			}
			result, err := d.execCommands(ctx, frameID, c.Body)
			if err != nil {
				return flowResult{}, err
			}
			if result.kind == ctrlLeave {
				break
			}
			if result.kind == ctrlIterate {
				continue
			}
			if result.kind != ctrlNone {
				return result, nil
			}
		}
		return flowResult{kind: ctrlNone}, nil

	case ast.DoUntil:
		for {
			result, err := d.execCommands(ctx, frameID, c.Body)
			if err != nil {
				return flowResult{}, err
			}
			if result.kind == ctrlLeave {
				break
			}
			if result.kind != ctrlNone && result.kind != ctrlIterate {
				return result, nil
			}
			cond, err := d.evaluator.Eval(ctx, frameID, c.Cond)
			if err != nil {
				return flowResult{}, err
			}
			if cond.IsTruthy() {
				break
			}
		}
		return flowResult{kind: ctrlNone}, nil

	default:
		return flowResult{}, rexxerrors.Newf(rexxerrors.KindExpression, "unknown DO block kind %d at line %d", c.Kind, c.Line())
	}
}
