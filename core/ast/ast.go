// Package ast defines the line-numbered command tree the parser produces
// and the tree-walking interpreter consumes. Every Command carries its
// source Position so the tracer can always report a line number — the
// spec's P1 invariant — and every Expression carries enough structure for
// the evaluator to do precedence-climbing without re-parsing text.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aledsdavies/rexxgo/core/types"
)

// Position locates a node in the original source text.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Node is implemented by every AST node, command or expression.
type Node interface {
	String() string
	Position() Position
}

// Command is implemented by every statement-level node. Line is always
// > 0: the parser never emits a zero line number, satisfying the tracer's
// requirement that every executed line can be reported.
type Command interface {
	Node
	commandNode()
	Line() int
}

// Expression is implemented by every value-producing node.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root of a parsed script: an ordered list of top-level
// commands (labels, assignments, control flow, ADDRESS blocks, ...).
type Program struct {
	Commands []Command
	Pos      Position
}

func (p *Program) Position() Position { return p.Pos }
func (p *Program) String() string {
	parts := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		parts[i] = c.String()
	}
	return strings.Join(parts, "\n")
}

// Walk visits every command in a program, recursing into nested blocks
// (IF/DO/SELECT bodies) in source order.
func Walk(prog *Program, visit func(Command)) {
	var walkAll func(cmds []Command)
	walkAll = func(cmds []Command) {
		for _, c := range cmds {
			visit(c)
			switch n := c.(type) {
			case *IfCmd:
				walkAll(n.Then)
				walkAll(n.Else)
			case *DoBlockCmd:
				walkAll(n.Body)
			case *SelectCmd:
				for _, w := range n.Whens {
					walkAll(w.Body)
				}
				walkAll(n.Otherwise)
			}
		}
	}
	walkAll(prog.Commands)
}

// --- literals & simple expressions -----------------------------------

type NumberLit struct {
	Value float64
	Raw   string
	Pos   Position
}

func (n *NumberLit) Position() Position { return n.Pos }
func (n *NumberLit) String() string     { return n.Raw }
func (*NumberLit) expressionNode()      {}

// StringLit is a REXX literal string. Interpolation does not exist in
// classic REXX string literals (that's what concatenation/expressions are
// for), so this is a flat text payload.
type StringLit struct {
	Value string
	Pos   Position
}

func (s *StringLit) Position() Position { return s.Pos }
func (s *StringLit) String() string     { return strconv.Quote(s.Value) }
func (*StringLit) expressionNode()      {}

type BooleanLit struct {
	Value bool
	Pos   Position
}

func (b *BooleanLit) Position() Position { return b.Pos }
func (b *BooleanLit) String() string {
	if b.Value {
		return "1"
	}
	return "0"
}
func (*BooleanLit) expressionNode() {}

// Identifier is a bare, undotted variable reference, e.g. COUNT, resolved
// through the variable store. Dotted names such as arr.1 are parsed as a
// DotAccess whose Base is an Identifier.
type Identifier struct {
	Name string
	Pos  Position
}

func (i *Identifier) Position() Position { return i.Pos }
func (i *Identifier) String() string     { return i.Name }
func (*Identifier) expressionNode()      {}

// ArrayLit is a literal array expression, e.g. [1, 2, 3].
type ArrayLit struct {
	Elements []Expression
	Pos      Position
}

func (a *ArrayLit) Position() Position { return a.Pos }
func (a *ArrayLit) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (*ArrayLit) expressionNode() {}

// ObjectLit is a literal key/value expression preserving source order,
// e.g. {name: "x", count: 1}.
type ObjectLit struct {
	Keys   []string
	Values []Expression
	Pos    Position
}

func (o *ObjectLit) Position() Position { return o.Pos }
func (o *ObjectLit) String() string {
	parts := make([]string, len(o.Keys))
	for i, k := range o.Keys {
		parts[i] = fmt.Sprintf("%s: %s", k, o.Values[i].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (*ObjectLit) expressionNode() {}

// BinaryExpr is a two-operand operator application. Op is the lexer's
// literal operator text (e.g. "+", "||", "|>", "=", "&").
type BinaryExpr struct {
	Op    string
	Left  Expression
	Right Expression
	Pos   Position
}

func (b *BinaryExpr) Position() Position { return b.Pos }
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Op, b.Right.String())
}
func (*BinaryExpr) expressionNode() {}

// UnaryExpr is a prefix operator application: -, +, or ¬ (NOT).
type UnaryExpr struct {
	Op      string
	Operand Expression
	Pos     Position
}

func (u *UnaryExpr) Position() Position { return u.Pos }
func (u *UnaryExpr) String() string     { return fmt.Sprintf("(%s%s)", u.Op, u.Operand.String()) }
func (*UnaryExpr) expressionNode()      {}

// NamedArg is one argument of a function call. Name is empty for a
// positional argument. Critically (invariant P3), Name is a literal label
// copied from the call site's source text — it is never itself resolved
// as a variable reference.
type NamedArg struct {
	Name  string
	Value Expression
}

// CallExpr is a function call, either to a registered builtin or to a
// REQUIRE-loaded library function. Arguments may mix positional and named
// forms in source order.
type CallExpr struct {
	Name string
	Args []NamedArg
	Pos  Position
}

func (c *CallExpr) Position() Position { return c.Pos }
func (c *CallExpr) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		if a.Name != "" {
			parts[i] = fmt.Sprintf("%s=%s", a.Name, a.Value.String())
		} else {
			parts[i] = a.Value.String()
		}
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(parts, ", "))
}
func (*CallExpr) expressionNode() {}

// DotAccess is stem-array / object field access by dotted path, e.g.
// arr.1 or config.server.port. Classic REXX bracket indexing (arr[1]) is
// a forbidden syntax the parser rejects; this is the only access form.
type DotAccess struct {
	Base Expression
	Path []string
	Pos  Position
}

func (d *DotAccess) Position() Position { return d.Pos }
func (d *DotAccess) String() string {
	return d.Base.String() + "." + strings.Join(d.Path, ".")
}
func (*DotAccess) expressionNode() {}

// --- commands -----------------------------------------------------------

// SayCmd is a SAY statement: SAY expr [expr ...], joined with a space on
// output the way concatenated SAY arguments are in classic REXX.
type SayCmd struct {
	Args []Expression
	Pos  Position
}

func (s *SayCmd) Position() Position { return s.Pos }
func (s *SayCmd) Line() int          { return s.Pos.Line }
func (s *SayCmd) String() string {
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		parts[i] = a.String()
	}
	return "SAY " + strings.Join(parts, " ")
}
func (*SayCmd) commandNode() {}

// LetCmd is an explicit `LET name = expr` assignment.
type LetCmd struct {
	Name string
	Path []string // non-empty for stem-qualified targets, e.g. arr.1
	Expr Expression
	Pos  Position
}

func (l *LetCmd) Position() Position { return l.Pos }
func (l *LetCmd) Line() int          { return l.Pos.Line }
func (l *LetCmd) String() string {
	target := l.Name
	if len(l.Path) > 0 {
		target += "." + strings.Join(l.Path, ".")
	}
	return fmt.Sprintf("LET %s = %s", target, l.Expr.String())
}
func (*LetCmd) commandNode() {}

// AssignCmd is a bare `name = expr` assignment (no LET keyword).
type AssignCmd struct {
	Name string
	Path []string
	Expr Expression
	Pos  Position
}

func (a *AssignCmd) Position() Position { return a.Pos }
func (a *AssignCmd) Line() int          { return a.Pos.Line }
func (a *AssignCmd) String() string {
	target := a.Name
	if len(a.Path) > 0 {
		target += "." + strings.Join(a.Path, ".")
	}
	return fmt.Sprintf("%s = %s", target, a.Expr.String())
}
func (*AssignCmd) commandNode() {}

// DropCmd removes one or more variables from the current frame: DROP a b c.
type DropCmd struct {
	Names []string
	Pos   Position
}

func (d *DropCmd) Position() Position { return d.Pos }
func (d *DropCmd) Line() int          { return d.Pos.Line }
func (d *DropCmd) String() string     { return "DROP " + strings.Join(d.Names, " ") }
func (*DropCmd) commandNode()         {}

// CallCmd invokes a subroutine (internal label) or an external script,
// pushing a call-stack frame. Target beginning with "./" or "../" denotes
// an external script call per the spec's external-call isolation rule.
type CallCmd struct {
	Target string
	Args   []NamedArg
	Pos    Position
}

func (c *CallCmd) Position() Position { return c.Pos }
func (c *CallCmd) Line() int          { return c.Pos.Line }
func (c *CallCmd) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.Value.String()
	}
	return fmt.Sprintf("CALL %s %s", c.Target, strings.Join(parts, " "))
}
func (*CallCmd) commandNode() {}

// ReturnCmd exits the current subroutine frame with an optional value.
type ReturnCmd struct {
	Value Expression // nil when bare RETURN
	Pos   Position
}

func (r *ReturnCmd) Position() Position { return r.Pos }
func (r *ReturnCmd) Line() int          { return r.Pos.Line }
func (r *ReturnCmd) String() string {
	if r.Value == nil {
		return "RETURN"
	}
	return "RETURN " + r.Value.String()
}
func (*ReturnCmd) commandNode() {}

// ExitCmd terminates the whole program with an optional exit code.
type ExitCmd struct {
	Code Expression // nil when bare EXIT
	Pos  Position
}

func (e *ExitCmd) Position() Position { return e.Pos }
func (e *ExitCmd) Line() int          { return e.Pos.Line }
func (e *ExitCmd) String() string {
	if e.Code == nil {
		return "EXIT"
	}
	return "EXIT " + e.Code.String()
}
func (*ExitCmd) commandNode() {}

// SignalCmd transfers control unconditionally to a label.
type SignalCmd struct {
	Label string
	Pos   Position
}

func (s *SignalCmd) Position() Position { return s.Pos }
func (s *SignalCmd) Line() int          { return s.Pos.Line }
func (s *SignalCmd) String() string     { return "SIGNAL " + s.Label }
func (*SignalCmd) commandNode()         {}

// LabelCmd marks a CALL/SIGNAL target; it performs no action when reached
// by fall-through execution.
type LabelCmd struct {
	Name string
	Pos  Position
}

func (l *LabelCmd) Position() Position { return l.Pos }
func (l *LabelCmd) Line() int          { return l.Pos.Line }
func (l *LabelCmd) String() string     { return l.Name + ":" }
func (*LabelCmd) commandNode()         {}

// LeaveCmd breaks out of the nearest enclosing DO block.
type LeaveCmd struct{ Pos Position }

func (l *LeaveCmd) Position() Position { return l.Pos }
func (l *LeaveCmd) Line() int          { return l.Pos.Line }
func (l *LeaveCmd) String() string     { return "LEAVE" }
func (*LeaveCmd) commandNode()         {}

// IterateCmd skips to the next iteration of the nearest enclosing DO block.
type IterateCmd struct{ Pos Position }

func (i *IterateCmd) Position() Position { return i.Pos }
func (i *IterateCmd) Line() int          { return i.Pos.Line }
func (i *IterateCmd) String() string     { return "ITERATE" }
func (*IterateCmd) commandNode()         {}

// NopCmd is an explicit no-op statement.
type NopCmd struct{ Pos Position }

func (n *NopCmd) Position() Position { return n.Pos }
func (n *NopCmd) Line() int          { return n.Pos.Line }
func (n *NopCmd) String() string     { return "NOP" }
func (*NopCmd) commandNode()         {}

// ParseArgCmd destructures the current subroutine's argument list, or the
// program's CLI arguments at top level, into named variables: PARSE ARG a b c.
type ParseArgCmd struct {
	Targets []string
	Pos     Position
}

func (p *ParseArgCmd) Position() Position { return p.Pos }
func (p *ParseArgCmd) Line() int          { return p.Pos.Line }
func (p *ParseArgCmd) String() string     { return "PARSE ARG " + strings.Join(p.Targets, " ") }
func (*ParseArgCmd) commandNode()         {}

// RequireCmd loads an external library by preference-ordered candidate
// names, gated by the active security policy.
type RequireCmd struct {
	Candidates []string
	As         string // optional alias; empty when unaliased
	Pos        Position
}

func (r *RequireCmd) Position() Position { return r.Pos }
func (r *RequireCmd) Line() int          { return r.Pos.Line }
func (r *RequireCmd) String() string {
	s := "REQUIRE " + strings.Join(r.Candidates, " | ")
	if r.As != "" {
		s += " AS " + r.As
	}
	return s
}
func (*RequireCmd) commandNode() {}

// IfCmd is IF/THEN/ELSE with block bodies.
type IfCmd struct {
	Cond Expression
	Then []Command
	Else []Command // nil/empty when no ELSE clause
	Pos  Position
}

func (c *IfCmd) Position() Position { return c.Pos }
func (c *IfCmd) Line() int          { return c.Pos.Line }
func (c *IfCmd) String() string     { return fmt.Sprintf("IF %s THEN ...", c.Cond.String()) }
func (*IfCmd) commandNode()         {}

// DoBlockKind distinguishes the forms of DO loop the parser recognizes.
type DoBlockKind int

const (
	DoPlain DoBlockKind = iota // DO ... END, no iteration clause
	DoCount                    // DO n
	DoRange                    // DO i = start TO end [BY step]
	DoWhile                    // DO WHILE cond
	DoUntil                    // DO UNTIL cond
)

// DoBlockCmd is a DO/END block, optionally iterating.
type DoBlockCmd struct {
	Kind  DoBlockKind
	Var   string // loop variable for DoRange
	Count Expression
	Start Expression
	End   Expression
	Step  Expression // nil when BY omitted (defaults to 1)
	Cond  Expression // loop condition for DoWhile/DoUntil
	Body  []Command
	Pos   Position
}

func (d *DoBlockCmd) Position() Position { return d.Pos }
func (d *DoBlockCmd) Line() int          { return d.Pos.Line }
func (d *DoBlockCmd) String() string     { return "DO ... END" }
func (*DoBlockCmd) commandNode()         {}

// WhenClause is one WHEN branch of a SELECT command.
type WhenClause struct {
	Cond Expression
	Body []Command
	Pos  Position
}

// SelectCmd is SELECT/WHEN/OTHERWISE/END.
type SelectCmd struct {
	Whens     []WhenClause
	Otherwise []Command // nil when no OTHERWISE clause
	Pos       Position
}

func (s *SelectCmd) Position() Position { return s.Pos }
func (s *SelectCmd) Line() int          { return s.Pos.Line }
func (s *SelectCmd) String() string     { return "SELECT ... END" }
func (*SelectCmd) commandNode()         {}

// AddressMode distinguishes the three ways an ADDRESS block collects its
// payload for the active handler.
type AddressMode int

const (
	AddressCommand AddressMode = iota // single quoted string or bare command line
	AddressHeredoc                    // <<TAG ... TAG block, sent as one payload
	AddressMatching                   // MATCHING-collected run of contiguous lines
)

// AddressCmd switches the active ADDRESS target for subsequent bare
// command lines, or immediately dispatches a single payload when it
// carries one (quoted string / HEREDOC / MATCHING group).
type AddressCmd struct {
	Target  string
	Mode    AddressMode
	Pattern string // MATCHING pattern text, when Mode == AddressMatching
	// Multiline is true when MATCHING carried the MULTILINE keyword: Lines
	// then holds the raw, unextracted source lines of the whole run (blank
	// and non-matching lines included) for the driver to accumulate/flush
	// at runtime. When false, Lines already holds each matching line's
	// extracted content (the pattern's capture group, or "" without one),
	// collected eagerly by the parser over the single contiguous run of
	// matching lines that follows.
	Multiline bool
	Payload   Expression
	Lines     []string // see Multiline doc above for what each element holds
	Pos       Position
}

func (a *AddressCmd) Position() Position { return a.Pos }
func (a *AddressCmd) Line() int          { return a.Pos.Line }
func (a *AddressCmd) String() string     { return "ADDRESS " + a.Target }
func (*AddressCmd) commandNode()         {}

// AddressCommandCmd is a bare command line dispatched to whichever target
// the nearest preceding AddressCmd selected.
type AddressCommandCmd struct {
	Text Expression
	Pos  Position
}

func (a *AddressCommandCmd) Position() Position { return a.Pos }
func (a *AddressCommandCmd) Line() int          { return a.Pos.Line }
func (a *AddressCommandCmd) String() string     { return a.Text.String() }
func (*AddressCommandCmd) commandNode()         {}

// LiteralKind returns the static type of a literal expression when known
// without evaluation; general expressions are typed at evaluation time by
// the evaluator, not here.
func LiteralKind(e Expression) (types.Kind, bool) {
	switch e.(type) {
	case *NumberLit:
		return types.KindNumber, true
	case *StringLit:
		return types.KindString, true
	case *BooleanLit:
		return types.KindBoolean, true
	case *ArrayLit:
		return types.KindArray, true
	case *ObjectLit:
		return types.KindObject, true
	default:
		return types.KindUndefined, false
	}
}
