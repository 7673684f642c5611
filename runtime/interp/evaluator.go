package interp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aledsdavies/rexxgo/core/ast"
	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
)

// Evaluator is the async-shaped (ctx-threaded) expression evaluator: a
// single struct dispatching by AST node type, holding the registries it
// needs to resolve a call, the way the teacher's NodeEvaluator holds a
// *decorators.Registry and dispatches ExecuteAction/ExecuteBlock by node
// kind (runtime/execution/evaluator.go). Evaluator does not own a Store
// directly — every Eval call is told which call frame to resolve
// identifiers against, so the same Evaluator instance serves every frame
// on the call stack.
type Evaluator struct {
	store    *Store
	registry *BuiltinRegistry

	// driver is set once both halves exist (see NewDriver); it supplies
	// subroutine-as-callable-function dispatch, the second tier of
	// spec.md §4.3's function dispatch order.
	driver *Driver

	// ExternalDispatch is the injected send(namespace, name, args) host
	// collaborator spec.md §4.3 calls the fallback dispatch tier. nil
	// means no host collaborator is wired; the call fails with
	// ResolutionError the way an unresolvable builtin does.
	ExternalDispatch func(ctx context.Context, namespace, name string, args []types.Value) (types.Value, error)
}

// NewEvaluator builds an Evaluator bound to store and registry. The
// driver back-reference is wired in by NewDriver after construction.
func NewEvaluator(store *Store, registry *BuiltinRegistry) *Evaluator {
	return &Evaluator{store: store, registry: registry}
}

// Eval dispatches expr by concrete type and returns its Value within
// frameID's scope chain.
func (e *Evaluator) Eval(ctx context.Context, frameID string, expr ast.Expression) (types.Value, error) {
	switch n := expr.(type) {
	case *ast.NumberLit:
		return types.Number(n.Value), nil
	case *ast.StringLit:
		return types.String(n.Value), nil
	case *ast.BooleanLit:
		return types.Bool(n.Value), nil
	case *ast.Identifier:
		return e.evalIdentifier(frameID, n), nil
	case *ast.ArrayLit:
		return e.evalArrayLit(ctx, frameID, n)
	case *ast.ObjectLit:
		return e.evalObjectLit(ctx, frameID, n)
	case *ast.UnaryExpr:
		return e.evalUnary(ctx, frameID, n)
	case *ast.BinaryExpr:
		return e.evalBinary(ctx, frameID, n)
	case *ast.DotAccess:
		return e.evalDotAccess(ctx, frameID, n)
	case *ast.CallExpr:
		return e.evalCall(ctx, frameID, n)
	default:
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "unevaluatable expression node %T", expr)
	}
}

// evalIdentifier implements symbol resolution per spec.md §4.3: a defined
// variable resolves to its value; an undefined one evaluates to its own
// uppercased name as a string (classical REXX).
func (e *Evaluator) evalIdentifier(frameID string, id *ast.Identifier) types.Value {
	if v, ok := e.store.Get(frameID, id.Name, nil); ok {
		return v
	}
	return types.String(strings.ToUpper(id.Name))
}

func (e *Evaluator) evalArrayLit(ctx context.Context, frameID string, lit *ast.ArrayLit) (types.Value, error) {
	items := make([]types.Value, len(lit.Elements))
	for i, elem := range lit.Elements {
		v, err := e.Eval(ctx, frameID, elem)
		if err != nil {
			return types.Undefined, err
		}
		items[i] = v
	}
	return types.Array(items), nil
}

func (e *Evaluator) evalObjectLit(ctx context.Context, frameID string, lit *ast.ObjectLit) (types.Value, error) {
	obj := types.NewObject()
	for i, key := range lit.Keys {
		v, err := e.Eval(ctx, frameID, lit.Values[i])
		if err != nil {
			return types.Undefined, err
		}
		obj.Set(key, v)
	}
	return types.ObjectValue(obj), nil
}

func (e *Evaluator) evalUnary(ctx context.Context, frameID string, u *ast.UnaryExpr) (types.Value, error) {
	v, err := e.Eval(ctx, frameID, u.Operand)
	if err != nil {
		return types.Undefined, err
	}
	switch u.Op {
	case "-":
		n, ok := v.ToNumber()
		if !ok {
			return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "cannot negate non-numeric value %q", v.String())
		}
		return types.Number(-n), nil
	case "+":
		n, ok := v.ToNumber()
		if !ok {
			return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "cannot apply unary + to non-numeric value %q", v.String())
		}
		return types.Number(n), nil
	case "¬", "NOT":
		return types.Bool(!v.IsTruthy()), nil
	default:
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "unknown unary operator %q", u.Op)
	}
}

// evalBinary implements every operator in spec.md §4.3's precedence table,
// including the pipe `x |> f` / `x |> f(a, b)` rewrite: the left-hand
// value is inserted as the callee's first positional argument.
func (e *Evaluator) evalBinary(ctx context.Context, frameID string, b *ast.BinaryExpr) (types.Value, error) {
	if b.Op == "|>" {
		return e.evalPipe(ctx, frameID, b)
	}

	left, err := e.Eval(ctx, frameID, b.Left)
	if err != nil {
		return types.Undefined, err
	}

	switch b.Op {
	case "&":
		if !left.IsTruthy() {
			return types.Bool(false), nil
		}
		right, err := e.Eval(ctx, frameID, b.Right)
		if err != nil {
			return types.Undefined, err
		}
		return types.Bool(right.IsTruthy()), nil
	case "|":
		if left.IsTruthy() {
			return types.Bool(true), nil
		}
		right, err := e.Eval(ctx, frameID, b.Right)
		if err != nil {
			return types.Undefined, err
		}
		return types.Bool(right.IsTruthy()), nil
	}

	right, err := e.Eval(ctx, frameID, b.Right)
	if err != nil {
		return types.Undefined, err
	}

	switch b.Op {
	case "||":
		return types.String(left.String() + right.String()), nil
	case "=", "==":
		return types.Bool(left.Equals(right)), nil
	case "<>":
		return types.Bool(!left.Equals(right)), nil
	case "<", "<=", ">", ">=":
		return evalNumericComparison(b.Op, left, right)
	case "+", "-", "*", "/", "//", "%", "**":
		return evalArithmetic(b.Op, left, right)
	default:
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "unknown binary operator %q", b.Op)
	}
}

func evalNumericComparison(op string, left, right types.Value) (types.Value, error) {
	ln, lok := left.ToNumber()
	rn, rok := right.ToNumber()
	if !lok || !rok {
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "cannot compare non-numeric values %q %s %q", left.String(), op, right.String())
	}
	switch op {
	case "<":
		return types.Bool(ln < rn), nil
	case "<=":
		return types.Bool(ln <= rn), nil
	case ">":
		return types.Bool(ln > rn), nil
	case ">=":
		return types.Bool(ln >= rn), nil
	}
	return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "unknown comparison operator %q", op)
}

func evalArithmetic(op string, left, right types.Value) (types.Value, error) {
	ln, lok := left.ToNumber()
	rn, rok := right.ToNumber()
	if !lok || !rok {
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "cannot apply %q to non-numeric values %q, %q", op, left.String(), right.String())
	}
	switch op {
	case "+":
		return types.Number(ln + rn), nil
	case "-":
		return types.Number(ln - rn), nil
	case "*":
		return types.Number(ln * rn), nil
	case "/":
		if rn == 0 {
			return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "division by zero")
		}
		return types.Number(ln / rn), nil
	case "//":
		if rn == 0 {
			return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "division by zero")
		}
		return types.Number(float64(int64(ln) / int64(rn))), nil
	case "%":
		if rn == 0 {
			return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "division by zero")
		}
		return types.Number(float64(int64(ln) % int64(rn))), nil
	case "**":
		return types.Number(power(ln, rn)), nil
	}
	return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "unknown arithmetic operator %q", op)
}

func power(base, exp float64) float64 {
	if exp == 0 {
		return 1
	}
	result := 1.0
	neg := exp < 0
	n := int(exp)
	if neg {
		n = -n
	}
	for i := 0; i < n; i++ {
		result *= base
	}
	if neg {
		return 1 / result
	}
	return result
}

// evalPipe implements x |> f and x |> f(a, b): f must be a CallExpr (bare
// identifier piping, x |> NAME, is sugar for x |> NAME()).
func (e *Evaluator) evalPipe(ctx context.Context, frameID string, b *ast.BinaryExpr) (types.Value, error) {
	piped, err := e.Eval(ctx, frameID, b.Left)
	if err != nil {
		return types.Undefined, err
	}

	var call *ast.CallExpr
	switch rhs := b.Right.(type) {
	case *ast.CallExpr:
		call = rhs
	case *ast.Identifier:
		call = &ast.CallExpr{Name: rhs.Name, Pos: rhs.Pos}
	default:
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "right-hand side of |> must be a function call or name, got %s", b.Right.String())
	}

	args := append([]ast.NamedArg{{Value: pipedLiteral(piped)}}, call.Args...)
	return e.dispatchCall(ctx, frameID, call.Name, args)
}

// pipedLiteral wraps an already-evaluated Value as a pseudo-expression so
// it can be threaded through the normal argument-evaluation path without
// re-evaluating anything.
type valueExpr struct{ v types.Value }

func (valueExpr) Position() ast.Position { return ast.Position{} }
func (e valueExpr) String() string       { return e.v.String() }
func (valueExpr) expressionNode()        {}

func pipedLiteral(v types.Value) ast.Expression { return valueExpr{v: v} }

func (e *Evaluator) evalCall(ctx context.Context, frameID string, c *ast.CallExpr) (types.Value, error) {
	return e.dispatchCall(ctx, frameID, c.Name, c.Args)
}

// dispatchCall implements spec.md §4.3's function dispatch order: built-in
// registry, then subroutine table (as callable), then external dispatch.
// Named-argument labels are taken verbatim from args[i].Name and are never
// looked up through the store (invariant P3) — only args[i].Value is
// evaluated.
func (e *Evaluator) dispatchCall(ctx context.Context, frameID, name string, args []ast.NamedArg) (types.Value, error) {
	positional := make([]types.Value, 0, len(args))
	named := make(map[string]types.Value, len(args))
	for _, a := range args {
		var v types.Value
		var err error
		if ve, ok := a.Value.(valueExpr); ok {
			v = ve.v
		} else {
			v, err = e.Eval(ctx, frameID, a.Value)
			if err != nil {
				return types.Undefined, err
			}
		}
		if a.Name == "" {
			positional = append(positional, v)
		} else {
			named[strings.ToUpper(a.Name)] = v
		}
	}

	// SYMBOL('name') is classified against frameID's own scope chain, which
	// the Callable contract (name -> fn(args) -> Value, no frame parameter,
	// per spec.md §9) has no way to express; it is resolved here, directly
	// against e.Symbol, rather than through the registry like every other
	// built-in.
	if strings.EqualFold(name, "SYMBOL") && len(positional) == 1 {
		return types.String(e.Symbol(frameID, positional[0].String())), nil
	}

	if fn, ok := e.registry.Lookup(name); ok {
		return fn(ctx, named, positional)
	}

	if e.driver != nil {
		if v, ok, err := e.driver.callSubroutineAsFunction(ctx, frameID, name, positional, named); ok || err != nil {
			return v, err
		}
	}

	if e.ExternalDispatch != nil {
		v, err := e.ExternalDispatch(ctx, "", name, positional)
		if err == nil {
			return v, nil
		}
	}

	msg := withSuggestion(fmt.Sprintf("function %s is not defined", strings.ToUpper(name)), name, e.registry.Names())
	return types.Undefined, rexxerrors.New(rexxerrors.KindResolution, msg)
}

// evalDotAccess implements spec.md §4.3's dot-path rules. A bare-identifier
// base that currently holds an Array or Object value is navigated
// structurally (arr.0, arr.1, ... zero-based, the documented arr[i]
// workaround); otherwise the identifier plus its path segments form one
// classic-REXX compound-variable name, looked up (or reported undefined)
// as a single store entry. A non-identifier base (e.g. F().field) is
// always navigated structurally.
func (e *Evaluator) evalDotAccess(ctx context.Context, frameID string, d *ast.DotAccess) (types.Value, error) {
	if id, ok := d.Base.(*ast.Identifier); ok {
		if v, found := e.store.Get(frameID, id.Name, nil); found && (v.Kind == types.KindArray || v.Kind == types.KindObject) {
			return navigatePath(v, d.Path)
		}
		if v, found := e.store.Get(frameID, id.Name, d.Path); found {
			return v, nil
		}
		return types.String(CanonicalName(id.Name, d.Path)), nil
	}

	base, err := e.Eval(ctx, frameID, d.Base)
	if err != nil {
		return types.Undefined, err
	}
	return navigatePath(base, d.Path)
}

func navigatePath(v types.Value, path []string) (types.Value, error) {
	cur := v
	for _, seg := range path {
		switch cur.Kind {
		case types.KindArray:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "array index %q is not an integer", seg)
			}
			items := cur.Items()
			if idx < 0 || idx >= len(items) {
				cur = types.Undefined
				continue
			}
			cur = items[idx]
		case types.KindObject:
			obj := cur.Object()
			if obj == nil {
				cur = types.Undefined
				continue
			}
			val, ok := obj.Get(seg)
			if !ok {
				val, ok = obj.Get(strings.ToUpper(seg))
			}
			if !ok {
				cur = types.Undefined
				continue
			}
			cur = val
		default:
			return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "cannot access field %q on a %s value", seg, cur.Kind)
		}
	}
	return cur, nil
}

// Symbol implements the SYMBOL('name') built-in's classification logic;
// dispatchCall calls it directly, since it needs frameID's scope chain.
func (e *Evaluator) Symbol(frameID, name string) string {
	if !isValidIdentifier(name) {
		return "BAD"
	}
	if _, ok := e.store.Get(frameID, name, nil); ok {
		return "VAR"
	}
	return "LIT"
}

func isValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit && r != '.' {
			return false
		}
	}
	return true
}
