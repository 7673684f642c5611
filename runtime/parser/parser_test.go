package parser

import (
	"testing"

	"github.com/aledsdavies/rexxgo/core/ast"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, errs := Parse([]byte(src))
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors for %q: %v", src, errs)
	}
	return prog
}

func TestParseAssignment(t *testing.T) {
	prog := mustParse(t, "count = 1 + 2\n")
	if len(prog.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(prog.Commands))
	}
	assign, ok := prog.Commands[0].(*ast.AssignCmd)
	if !ok {
		t.Fatalf("expected *ast.AssignCmd, got %T", prog.Commands[0])
	}
	if assign.Name != "count" {
		t.Fatalf("expected name count, got %s", assign.Name)
	}
	if assign.Line() != 1 {
		t.Fatalf("expected line 1, got %d", assign.Line())
	}
}

func TestParseStemAssignment(t *testing.T) {
	prog := mustParse(t, "arr.1 = \"x\"\n")
	assign := prog.Commands[0].(*ast.AssignCmd)
	if assign.Name != "arr" || len(assign.Path) != 1 || assign.Path[0] != "1" {
		t.Fatalf("unexpected stem assignment: %+v", assign)
	}
}

func TestParseSayMultipleArgs(t *testing.T) {
	prog := mustParse(t, "say \"hi\" 1 2\n")
	say := prog.Commands[0].(*ast.SayCmd)
	if len(say.Args) != 3 {
		t.Fatalf("expected 3 args, got %d", len(say.Args))
	}
}

func TestParseEveryCommandReportsALineNumber(t *testing.T) {
	src := `say 1
count = 2
drop count
if 1 then say "y"
do 3
  say "loop"
end
`
	prog := mustParse(t, src)
	for i, cmd := range prog.Commands {
		if cmd.Line() <= 0 {
			t.Fatalf("command %d (%T) has non-positive line %d", i, cmd, cmd.Line())
		}
	}
}

func TestParseIfThenElseDoBlocks(t *testing.T) {
	src := `if x > 1 then do
  say "big"
end
else do
  say "small"
end
`
	prog := mustParse(t, src)
	ifc := prog.Commands[0].(*ast.IfCmd)
	if len(ifc.Then) != 1 || len(ifc.Else) != 1 {
		t.Fatalf("expected one statement in each branch, got then=%d else=%d", len(ifc.Then), len(ifc.Else))
	}
}

func TestParseDoRangeWithBy(t *testing.T) {
	prog := mustParse(t, "do i = 1 to 10 by 2\n  say i\nend\n")
	do := prog.Commands[0].(*ast.DoBlockCmd)
	if do.Kind != ast.DoRange {
		t.Fatalf("expected DoRange, got %v", do.Kind)
	}
	if do.Var != "i" {
		t.Fatalf("expected loop var i, got %s", do.Var)
	}
	if do.Step == nil {
		t.Fatal("expected a BY step expression")
	}
}

func TestParseDoWhile(t *testing.T) {
	prog := mustParse(t, "do while x < 10\n  x = x + 1\nend\n")
	do := prog.Commands[0].(*ast.DoBlockCmd)
	if do.Kind != ast.DoWhile {
		t.Fatalf("expected DoWhile, got %v", do.Kind)
	}
}

func TestParseSelectWhenOtherwise(t *testing.T) {
	src := `select
when x = 1 then say "one"
when x = 2 then say "two"
otherwise
  say "other"
end
`
	prog := mustParse(t, src)
	sel := prog.Commands[0].(*ast.SelectCmd)
	if len(sel.Whens) != 2 {
		t.Fatalf("expected 2 WHEN clauses, got %d", len(sel.Whens))
	}
	if len(sel.Otherwise) != 1 {
		t.Fatalf("expected 1 OTHERWISE statement, got %d", len(sel.Otherwise))
	}
}

func TestParseLabelAndCallAndReturn(t *testing.T) {
	src := `call greet name = "world"
exit
greet:
say "hi " name
return
`
	prog := mustParse(t, src)
	call := prog.Commands[0].(*ast.CallCmd)
	if call.Target != "greet" || len(call.Args) != 1 || call.Args[0].Name != "name" {
		t.Fatalf("unexpected call: %+v", call)
	}
	label := prog.Commands[2].(*ast.LabelCmd)
	if label.Name != "greet" {
		t.Fatalf("expected label greet, got %s", label.Name)
	}
}

func TestParseNamedArgumentLabelIsNotResolvedAsIdentifier(t *testing.T) {
	prog := mustParse(t, "call foo bar = 1\n")
	call := prog.Commands[0].(*ast.CallCmd)
	if call.Args[0].Name != "bar" {
		t.Fatalf("expected literal label 'bar', got %q", call.Args[0].Name)
	}
	if _, isIdent := call.Args[0].Value.(*ast.Identifier); isIdent {
		t.Fatalf("argument value should be the literal 1, not an identifier reference")
	}
}

func TestParseRequireWithFallbackAndAlias(t *testing.T) {
	prog := mustParse(t, "require \"./local.rexx\" | \"std:math\" as math\n")
	req := prog.Commands[0].(*ast.RequireCmd)
	if len(req.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(req.Candidates))
	}
	if req.As != "math" {
		t.Fatalf("expected alias math, got %q", req.As)
	}
}

func TestParseForbiddenBracketIndexingIsRejected(t *testing.T) {
	_, errs := Parse([]byte("x = arr[1]\n"))
	if len(errs) == 0 {
		t.Fatal("expected an error for bracket indexing")
	}
	found := false
	for _, e := range errs {
		if pe, ok := e.(*ParseError); ok {
			if containsAll(pe.Message, "bracket indexing", "dotted-path") {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected bracket-indexing error message, got %v", errs)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(sub) == 0 || (len(s) >= len(sub) && indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestParseExpressionPrecedence(t *testing.T) {
	prog := mustParse(t, "x = 2 + 3 * 4\n")
	assign := prog.Commands[0].(*ast.AssignCmd)
	bin, ok := assign.Expr.(*ast.BinaryExpr)
	if !ok || bin.Op != "+" {
		t.Fatalf("expected top-level '+', got %#v", assign.Expr)
	}
	right, ok := bin.Right.(*ast.BinaryExpr)
	if !ok || right.Op != "*" {
		t.Fatalf("expected '*' nested under '+', got %#v", bin.Right)
	}
}

func TestParsePipeIsLoosestBinding(t *testing.T) {
	prog := mustParse(t, "x = 5 + 3 |> ABS\n")
	assign := prog.Commands[0].(*ast.AssignCmd)
	pipe, ok := assign.Expr.(*ast.BinaryExpr)
	if !ok || pipe.Op != "|>" {
		t.Fatalf("expected top-level pipe, got %#v", assign.Expr)
	}
	if _, ok := pipe.Left.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected left side of pipe to be the additive expr, got %#v", pipe.Left)
	}
}

func TestParsePowerIsRightAssociative(t *testing.T) {
	prog := mustParse(t, "x = 2 ** 3 ** 2\n")
	assign := prog.Commands[0].(*ast.AssignCmd)
	top, ok := assign.Expr.(*ast.BinaryExpr)
	if !ok || top.Op != "**" {
		t.Fatalf("expected top-level '**', got %#v", assign.Expr)
	}
	if _, ok := top.Right.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected right-associative nesting, got %#v", top.Right)
	}
	if _, ok := top.Left.(*ast.NumberLit); !ok {
		t.Fatalf("expected left operand to be a flat literal, got %#v", top.Left)
	}
}

func TestParseDotPathAccess(t *testing.T) {
	prog := mustParse(t, "x = config.server.port\n")
	assign := prog.Commands[0].(*ast.AssignCmd)
	dot, ok := assign.Expr.(*ast.DotAccess)
	if !ok {
		t.Fatalf("expected *ast.DotAccess, got %#v", assign.Expr)
	}
	if len(dot.Path) != 2 || dot.Path[0] != "server" || dot.Path[1] != "port" {
		t.Fatalf("unexpected dot path: %+v", dot.Path)
	}
}

func TestParseArrayAndObjectLiterals(t *testing.T) {
	prog := mustParse(t, "x = [1, 2, 3]\ny = {name: \"a\", count: 1}\n")
	arr := prog.Commands[0].(*ast.AssignCmd).Expr.(*ast.ArrayLit)
	if len(arr.Elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(arr.Elements))
	}
	obj := prog.Commands[1].(*ast.AssignCmd).Expr.(*ast.ObjectLit)
	if len(obj.Keys) != 2 || obj.Keys[0] != "name" || obj.Keys[1] != "count" {
		t.Fatalf("unexpected object keys: %+v", obj.Keys)
	}
}

func TestParseAddressQuotedCommandDispatch(t *testing.T) {
	prog := mustParse(t, "address system \"echo hi\"\n")
	addr := prog.Commands[0].(*ast.AddressCmd)
	if addr.Target != "system" || addr.Mode != ast.AddressCommand {
		t.Fatalf("unexpected address command: %+v", addr)
	}
	if addr.Payload == nil {
		t.Fatal("expected an immediate payload for quoted ADDRESS dispatch")
	}
}

func TestParseAddressBareCommandRoutesToActiveTarget(t *testing.T) {
	src := "address system\nls -la\n"
	prog := mustParse(t, src)
	if len(prog.Commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(prog.Commands))
	}
	bare, ok := prog.Commands[1].(*ast.AddressCommandCmd)
	if !ok {
		t.Fatalf("expected *ast.AddressCommandCmd, got %T", prog.Commands[1])
	}
	text := bare.Text.(*ast.StringLit).Value
	if text != "ls -la" {
		t.Fatalf("expected raw command text 'ls -la', got %q", text)
	}
}

func TestParseAddressHeredocCollectsBodyUntilTag(t *testing.T) {
	src := "address sql <<SQL\nselect 1\nselect 2\nSQL\nsay \"done\"\n"
	prog := mustParse(t, src)
	addr := prog.Commands[0].(*ast.AddressCmd)
	if addr.Mode != ast.AddressHeredoc {
		t.Fatalf("expected AddressHeredoc, got %v", addr.Mode)
	}
	if len(addr.Lines) != 2 || addr.Lines[0] != "select 1" || addr.Lines[1] != "select 2" {
		t.Fatalf("unexpected heredoc lines: %+v", addr.Lines)
	}
	if _, ok := prog.Commands[1].(*ast.SayCmd); !ok {
		t.Fatalf("expected normal statement parsing to resume after heredoc, got %T", prog.Commands[1])
	}
}

func TestParseAddressMatchingCollectsContiguousLines(t *testing.T) {
	src := "address log matching \"ERR (.*)\"\nERR one\nERR two\nnot matching\n"
	prog := mustParse(t, src)
	addr := prog.Commands[0].(*ast.AddressCmd)
	if addr.Mode != ast.AddressMatching {
		t.Fatalf("expected AddressMatching, got %v", addr.Mode)
	}
	if addr.Multiline {
		t.Fatalf("expected Multiline false without the MULTILINE keyword")
	}
	if len(addr.Lines) != 2 || addr.Lines[0] != "one" || addr.Lines[1] != "two" {
		t.Fatalf("unexpected extracted matching lines: %+v", addr.Lines)
	}
	if _, ok := prog.Commands[1].(*ast.AddressCommandCmd); !ok {
		t.Fatalf("expected the non-matching line to fall through to ordinary parsing, got %T", prog.Commands[1])
	}
}

func TestParseAddressMatchingWithoutCaptureGroupExtractsEmptyString(t *testing.T) {
	src := "address log matching \"ERR\"\nERR one\nERR two\n"
	prog := mustParse(t, src)
	addr := prog.Commands[0].(*ast.AddressCmd)
	if len(addr.Lines) != 2 || addr.Lines[0] != "" || addr.Lines[1] != "" {
		t.Fatalf("expected empty extracted content with no capture group, got: %+v", addr.Lines)
	}
}

func TestParseAddressMatchingMultilineKeywordBeforePattern(t *testing.T) {
	src := "address testhandler matching multiline \"  (.*)\"\n  line one\n  line two\n"
	prog := mustParse(t, src)
	addr := prog.Commands[0].(*ast.AddressCmd)
	if !addr.Multiline {
		t.Fatalf("expected Multiline true")
	}
	if addr.Pattern != "  (.*)" {
		t.Fatalf("expected pattern preserved, got %q", addr.Pattern)
	}
	if len(addr.Lines) != 2 {
		t.Fatalf("expected 2 raw collected lines, got %d: %+v", len(addr.Lines), addr.Lines)
	}
}

func TestParseAddressMatchingMultilineKeywordAfterPattern(t *testing.T) {
	src := "address testhandler matching \"  (.*)\" multiline\n  line one\n"
	prog := mustParse(t, src)
	addr := prog.Commands[0].(*ast.AddressCmd)
	if !addr.Multiline {
		t.Fatalf("expected Multiline true when MULTILINE follows the pattern")
	}
}

func TestParseAddressMatchingMultilineCollectsUntilAddressChange(t *testing.T) {
	src := "address testhandler matching multiline \"  (.*)\"\n" +
		"  line one\n" +
		"  line two\n" +
		"  line three\n" +
		"not indented\n" +
		"  second block line one\n" +
		"  second block line two\n" +
		"address other\n" +
		"say \"done\"\n"
	prog := mustParse(t, src)
	addr := prog.Commands[0].(*ast.AddressCmd)
	if len(addr.Lines) != 6 {
		t.Fatalf("expected 6 raw lines collected up to the ADDRESS change, got %d: %+v", len(addr.Lines), addr.Lines)
	}
	next, ok := prog.Commands[1].(*ast.AddressCmd)
	if !ok {
		t.Fatalf("expected the ADDRESS change to resume ordinary parsing, got %T", prog.Commands[1])
	}
	if next.Target != "other" {
		t.Fatalf("expected target 'other', got %q", next.Target)
	}
}

func TestParseUnterminatedDoReportsMissingEnd(t *testing.T) {
	_, errs := Parse([]byte("do\n  say 1\n"))
	if len(errs) == 0 {
		t.Fatal("expected an unterminated-block error")
	}
}

func TestParseLeaveIterateNop(t *testing.T) {
	prog := mustParse(t, "leave\niterate\nnop\n")
	if _, ok := prog.Commands[0].(*ast.LeaveCmd); !ok {
		t.Fatalf("expected LeaveCmd, got %T", prog.Commands[0])
	}
	if _, ok := prog.Commands[1].(*ast.IterateCmd); !ok {
		t.Fatalf("expected IterateCmd, got %T", prog.Commands[1])
	}
	if _, ok := prog.Commands[2].(*ast.NopCmd); !ok {
		t.Fatalf("expected NopCmd, got %T", prog.Commands[2])
	}
}

func TestParseSignalAndExitWithCode(t *testing.T) {
	prog := mustParse(t, "signal cleanup\nexit 1\n")
	sig := prog.Commands[0].(*ast.SignalCmd)
	if sig.Label != "cleanup" {
		t.Fatalf("expected label cleanup, got %s", sig.Label)
	}
	exitCmd := prog.Commands[1].(*ast.ExitCmd)
	if exitCmd.Code == nil {
		t.Fatal("expected an exit code expression")
	}
}

func TestParseParseArgTargets(t *testing.T) {
	prog := mustParse(t, "parse arg a b c\n")
	pa := prog.Commands[0].(*ast.ParseArgCmd)
	if len(pa.Targets) != 3 {
		t.Fatalf("expected 3 targets, got %d", len(pa.Targets))
	}
}
