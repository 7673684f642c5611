// Package parser implements a recursive-descent parser that turns REXX
// source into the line-numbered command tree defined by core/ast. Every
// command the parser emits carries the line of its first token, and every
// syntax error it returns cites the offending token's exact position.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aledsdavies/rexxgo/core/ast"
	"github.com/aledsdavies/rexxgo/runtime/lexer"
)

// Parser holds the single-token-lookahead state a recursive-descent REXX
// parser needs. It never buffers more than the current token: lookahead
// is always a fresh, non-destructive lexer.Peek() call, which is what
// makes it safe to flip the lexer's Mode mid-parse (HEREDOC/MATCHING
// bodies) without a stale cached token from the old mode leaking through.
type Parser struct {
	lex    *lexer.Lexer
	source string
	cur    lexer.Token

	currentAddress string // "" until an ADDRESS command has run
	blocks         BlockTracker
	errs           []error

	config    *ParserConfig
	telemetry *ParseTelemetry
}

// Parse tokenizes and parses source, returning the program and any parse
// errors accumulated along the way. Parsing does not stop at the first
// error: the parser recovers to the next line so later errors are still
// reported, the way the teacher's parser collects diagnostics in one pass.
func Parse(source []byte, opts ...ParserOpt) (*ast.Program, []error) {
	config := &ParserConfig{}
	for _, opt := range opts {
		opt(config)
	}

	var telemetry *ParseTelemetry
	var startTotal time.Time
	if config.telemetry >= TelemetryBasic {
		telemetry = &ParseTelemetry{}
		if config.telemetry >= TelemetryTiming {
			startTotal = time.Now()
		}
	}

	lx := lexer.New(strings.NewReader(string(source)))
	p := &Parser{lex: lx, source: string(source), config: config, telemetry: telemetry}
	p.advance()

	prog := &ast.Program{Pos: ast.Position{Line: 1, Column: 1}}
	for p.cur.Type != lexer.EOF {
		p.skipSeparators()
		if p.cur.Type == lexer.EOF {
			break
		}
		cmd := p.parseCommand()
		if cmd != nil {
			prog.Commands = append(prog.Commands, cmd)
		}
		p.skipToLineEnd()
	}

	for _, b := range p.blocks.Unclosed() {
		p.errorf(b.Token, "unterminated %s block: missing END", b.Keyword)
	}

	if telemetry != nil {
		telemetry.ErrorCount = len(p.errs)
		if config.telemetry >= TelemetryTiming {
			telemetry.TotalTime = time.Since(startTotal)
		}
	}

	return prog, p.errs
}

func (p *Parser) advance() {
	p.cur = p.lex.NextToken()
	for p.cur.Type == lexer.COMMENT {
		p.cur = p.lex.NextToken()
	}
}

func (p *Parser) peek() lexer.Token {
	tok := p.lex.Peek()
	for tok.Type == lexer.COMMENT {
		// COMMENT can't itself be peeked past without consuming it, and
		// Peek is non-destructive, so this re-peek returns the same COMMENT
		// token: a comment right after the current token is returned as is.
		tok = p.lex.Peek()
		break
	}
	return tok
}

func (p *Parser) skipSeparators() {
	for p.cur.Type == lexer.NEWLINE || p.cur.Type == lexer.SEMICOLON {
		p.advance()
	}
}

func (p *Parser) skipToLineEnd() {
	for p.cur.Type != lexer.NEWLINE && p.cur.Type != lexer.SEMICOLON && p.cur.Type != lexer.EOF {
		p.advance()
	}
}

func (p *Parser) errorf(tok lexer.Token, format string, args ...interface{}) {
	p.errs = append(p.errs, &ParseError{Message: fmt.Sprintf(format, args...), Token: tok})
}

func pos(tok lexer.Token) ast.Position {
	return ast.Position{Line: tok.Position.Line, Column: tok.Position.Column, Offset: tok.Position.Offset}
}

// restOfLineText returns the raw, unlexed source text from fromOffset to
// the end of the current physical line, trimmed of trailing whitespace.
// ADDRESS command-line dispatch uses this to preserve a bare command's
// exact text rather than re-serializing it from parsed tokens.
func (p *Parser) restOfLineText(fromOffset int) string {
	rest := p.source[fromOffset:]
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		rest = rest[:idx]
	}
	return strings.TrimRight(rest, " \t\r")
}

// parseCommand dispatches on the current token to the construct it
// introduces. Returning nil means a recoverable error was recorded; the
// caller advances to the next line and continues.
func (p *Parser) parseCommand() ast.Command {
	tok := p.cur

	if tok.Type == lexer.IDENTIFIER && p.peek().Type == lexer.COLON {
		name := tok.Text
		p.advance() // identifier
		p.advance() // colon
		return &ast.LabelCmd{Name: name, Pos: pos(tok)}
	}

	switch tok.Type {
	case lexer.SAY:
		return p.parseSay()
	case lexer.LET:
		return p.parseLet()
	case lexer.DROP:
		return p.parseDrop()
	case lexer.CALL:
		return p.parseCall()
	case lexer.RETURN:
		return p.parseReturn()
	case lexer.EXIT:
		return p.parseExit()
	case lexer.SIGNAL:
		return p.parseSignal()
	case lexer.PARSE:
		return p.parseParseArg()
	case lexer.REQUIRE:
		return p.parseRequire()
	case lexer.IF:
		return p.parseIf()
	case lexer.DO:
		return p.parseDo()
	case lexer.SELECT:
		return p.parseSelect()
	case lexer.LEAVE:
		p.advance()
		return &ast.LeaveCmd{Pos: pos(tok)}
	case lexer.ITERATE:
		p.advance()
		return &ast.IterateCmd{Pos: pos(tok)}
	case lexer.NOP:
		p.advance()
		return &ast.NopCmd{Pos: pos(tok)}
	case lexer.NUMERIC:
		// NUMERIC DIGITS/FORM settings affect arithmetic precision only;
		// the evaluator uses float64 throughout, so this is accepted and
		// discarded rather than rejected, matching classic REXX's
		// forward-compatible stance on settings it doesn't model.
		p.skipToLineEnd()
		return &ast.NopCmd{Pos: pos(tok)}
	case lexer.ADDRESS:
		return p.parseAddress()
	case lexer.IDENTIFIER:
		return p.parseAssignOrAddressLine()
	default:
		p.errorf(tok, "unexpected token %q", tok.Text)
		return nil
	}
}

func (p *Parser) parseExprList() []ast.Expression {
	var args []ast.Expression
	args = append(args, p.parseExpr())
	for p.cur.Type != lexer.NEWLINE && p.cur.Type != lexer.SEMICOLON && p.cur.Type != lexer.EOF {
		args = append(args, p.parseExpr())
	}
	return args
}

func (p *Parser) parseSay() ast.Command {
	tok := p.cur
	p.advance()
	return &ast.SayCmd{Args: p.parseExprList(), Pos: pos(tok)}
}

func (p *Parser) parseDotPath() []string {
	var path []string
	for p.cur.Type == lexer.DOT {
		p.advance()
		if p.cur.Type != lexer.IDENTIFIER && p.cur.Type != lexer.NUMBER {
			p.errorf(p.cur, "expected name after '.', got %q", p.cur.Text)
			return path
		}
		path = append(path, p.cur.Text)
		p.advance()
	}
	return path
}

func (p *Parser) parseLet() ast.Command {
	tok := p.cur
	p.advance()
	if p.cur.Type != lexer.IDENTIFIER {
		p.errorf(p.cur, "expected variable name after LET, got %q", p.cur.Text)
		return nil
	}
	name := p.cur.Text
	p.advance()
	path := p.parseDotPath()
	if p.cur.Type != lexer.EQUALS {
		p.errorf(p.cur, "expected '=' in LET statement, got %q", p.cur.Text)
		return nil
	}
	p.advance()
	expr := p.parseExpr()
	return &ast.LetCmd{Name: name, Path: path, Expr: expr, Pos: pos(tok)}
}

func (p *Parser) parseDrop() ast.Command {
	tok := p.cur
	p.advance()
	var names []string
	for p.cur.Type == lexer.IDENTIFIER {
		names = append(names, p.cur.Text)
		p.advance()
	}
	if len(names) == 0 {
		p.errorf(tok, "DROP requires at least one variable name")
	}
	return &ast.DropCmd{Names: names, Pos: pos(tok)}
}

// parseAssignOrAddressLine handles a statement beginning with a bare
// identifier: either `name[.path] = expr` or, when an ADDRESS target is
// active and the line is not an assignment, a bare command line routed to
// that target.
func (p *Parser) parseAssignOrAddressLine() ast.Command {
	tok := p.cur
	name := tok.Text
	p.advance()
	path := p.parseDotPath()

	if p.cur.Type == lexer.EQUALS {
		p.advance()
		expr := p.parseExpr()
		return &ast.AssignCmd{Name: name, Path: path, Expr: expr, Pos: pos(tok)}
	}

	if p.currentAddress != "" {
		text := p.restOfLineText(tok.Position.Offset)
		p.skipToLineEnd()
		return &ast.AddressCommandCmd{
			Text: &ast.StringLit{Value: text, Pos: pos(tok)},
			Pos:  pos(tok),
		}
	}

	p.errorf(tok, "unexpected token %q: not an assignment and no ADDRESS target is active", name)
	return nil
}

func (p *Parser) parseCallArgs() []ast.NamedArg {
	var args []ast.NamedArg
	for p.cur.Type != lexer.NEWLINE && p.cur.Type != lexer.SEMICOLON && p.cur.Type != lexer.EOF {
		if p.cur.Type == lexer.IDENTIFIER && p.peek().Type == lexer.EQUALS {
			name := p.cur.Text
			p.advance()
			p.advance()
			args = append(args, ast.NamedArg{Name: name, Value: p.parseExpr()})
		} else {
			args = append(args, ast.NamedArg{Value: p.parseExpr()})
		}
		if p.cur.Type == lexer.COMMA {
			p.advance()
		}
	}
	return args
}

func (p *Parser) parseCall() ast.Command {
	tok := p.cur
	p.advance()
	if p.cur.Type != lexer.IDENTIFIER {
		p.errorf(p.cur, "expected a target after CALL, got %q", p.cur.Text)
		return nil
	}
	target := p.cur.Text
	p.advance()
	return &ast.CallCmd{Target: target, Args: p.parseCallArgs(), Pos: pos(tok)}
}

func (p *Parser) parseReturn() ast.Command {
	tok := p.cur
	p.advance()
	if p.cur.Type == lexer.NEWLINE || p.cur.Type == lexer.SEMICOLON || p.cur.Type == lexer.EOF {
		return &ast.ReturnCmd{Pos: pos(tok)}
	}
	return &ast.ReturnCmd{Value: p.parseExpr(), Pos: pos(tok)}
}

func (p *Parser) parseExit() ast.Command {
	tok := p.cur
	p.advance()
	if p.cur.Type == lexer.NEWLINE || p.cur.Type == lexer.SEMICOLON || p.cur.Type == lexer.EOF {
		return &ast.ExitCmd{Pos: pos(tok)}
	}
	return &ast.ExitCmd{Code: p.parseExpr(), Pos: pos(tok)}
}

func (p *Parser) parseSignal() ast.Command {
	tok := p.cur
	p.advance()
	if p.cur.Type != lexer.IDENTIFIER {
		p.errorf(p.cur, "expected a label after SIGNAL, got %q", p.cur.Text)
		return nil
	}
	label := p.cur.Text
	p.advance()
	return &ast.SignalCmd{Label: label, Pos: pos(tok)}
}

func (p *Parser) parseParseArg() ast.Command {
	tok := p.cur
	p.advance()
	if p.cur.Type != lexer.ARG {
		p.errorf(p.cur, "expected ARG after PARSE, got %q", p.cur.Text)
		return nil
	}
	p.advance()
	var targets []string
	for p.cur.Type == lexer.IDENTIFIER {
		targets = append(targets, p.cur.Text)
		p.advance()
	}
	return &ast.ParseArgCmd{Targets: targets, Pos: pos(tok)}
}

func (p *Parser) parseRequire() ast.Command {
	tok := p.cur
	p.advance()
	var candidates []string
	for {
		if p.cur.Type != lexer.STRING && p.cur.Type != lexer.IDENTIFIER {
			p.errorf(p.cur, "expected a library name in REQUIRE, got %q", p.cur.Text)
			break
		}
		candidates = append(candidates, p.cur.Text)
		p.advance()
		if p.cur.Type != lexer.OR_OP {
			break
		}
		p.advance()
	}
	as := ""
	if p.cur.Type == lexer.AS {
		p.advance()
		if p.cur.Type != lexer.IDENTIFIER {
			p.errorf(p.cur, "expected an alias after AS, got %q", p.cur.Text)
		} else {
			as = p.cur.Text
			p.advance()
		}
	}
	return &ast.RequireCmd{Candidates: candidates, As: as, Pos: pos(tok)}
}

// parseBlockBody parses statements until it sees one of the given
// terminator keywords at the current nesting level, leaving cur on the
// terminator without consuming it.
func (p *Parser) parseBlockBody(terminators ...lexer.TokenType) []ast.Command {
	var body []ast.Command
	for {
		p.skipSeparators()
		if p.cur.Type == lexer.EOF {
			return body
		}
		for _, t := range terminators {
			if p.cur.Type == t {
				return body
			}
		}
		cmd := p.parseCommand()
		if cmd != nil {
			body = append(body, cmd)
		}
		p.skipToLineEnd()
	}
}

func (p *Parser) parseIf() ast.Command {
	tok := p.cur
	p.advance()
	cond := p.parseExpr()
	if p.cur.Type != lexer.THEN {
		p.errorf(p.cur, "expected THEN after IF condition, got %q", p.cur.Text)
		return nil
	}
	p.advance()
	p.skipSeparators()

	var thenBody, elseBody []ast.Command
	if p.cur.Type == lexer.DO {
		p.blocks.Push("DO", p.cur)
		p.advance()
		thenBody = p.parseBlockBody(lexer.END, lexer.ELSE)
		if p.cur.Type == lexer.END {
			p.blocks.Pop()
			p.advance()
		}
	} else {
		thenBody = []ast.Command{p.parseCommand()}
		p.skipToLineEnd()
	}

	// Step over separators only while they lead to an ELSE, so that the
	// first token of a following statement is not consumed here.
	for p.cur.Type == lexer.NEWLINE || p.cur.Type == lexer.SEMICOLON {
		next := p.peek().Type
		if next != lexer.ELSE && next != lexer.NEWLINE && next != lexer.SEMICOLON {
			break
		}
		p.advance()
	}
	if p.cur.Type == lexer.ELSE {
		p.advance()
		p.skipSeparators()
		if p.cur.Type == lexer.DO {
			p.blocks.Push("DO", p.cur)
			p.advance()
			elseBody = p.parseBlockBody(lexer.END)
			if p.cur.Type == lexer.END {
				p.blocks.Pop()
				p.advance()
			}
		} else {
			elseBody = []ast.Command{p.parseCommand()}
			p.skipToLineEnd()
		}
	}

	return &ast.IfCmd{Cond: cond, Then: thenBody, Else: elseBody, Pos: pos(tok)}
}

func (p *Parser) parseDo() ast.Command {
	tok := p.cur
	p.blocks.Push("DO", tok)
	p.advance()

	cmd := &ast.DoBlockCmd{Kind: ast.DoPlain, Pos: pos(tok)}

	switch {
	case p.cur.Type == lexer.WHILE:
		p.advance()
		cmd.Kind = ast.DoWhile
		cmd.Cond = p.parseExpr()
	case p.cur.Type == lexer.UNTIL:
		p.advance()
		cmd.Kind = ast.DoUntil
		cmd.Cond = p.parseExpr()
	case p.cur.Type == lexer.IDENTIFIER && p.peek().Type == lexer.EQUALS:
		cmd.Var = p.cur.Text
		p.advance()
		p.advance() // '='
		cmd.Kind = ast.DoRange
		cmd.Start = p.parseExpr()
		if p.cur.Type != lexer.TO {
			p.errorf(p.cur, "expected TO in DO range, got %q", p.cur.Text)
		} else {
			p.advance()
			cmd.End = p.parseExpr()
		}
		if p.cur.Type == lexer.BY {
			p.advance()
			cmd.Step = p.parseExpr()
		}
	case p.cur.Type != lexer.NEWLINE && p.cur.Type != lexer.SEMICOLON:
		cmd.Kind = ast.DoCount
		cmd.Count = p.parseExpr()
	}

	cmd.Body = p.parseBlockBody(lexer.END)
	if p.cur.Type == lexer.END {
		p.blocks.Pop()
		p.advance()
		if p.cur.Type == lexer.IDENTIFIER {
			p.advance() // optional loop-variable echo on END
		}
	}
	return cmd
}

func (p *Parser) parseSelect() ast.Command {
	tok := p.cur
	p.blocks.Push("SELECT", tok)
	p.advance()
	p.skipSeparators()

	cmd := &ast.SelectCmd{Pos: pos(tok)}
	for p.cur.Type == lexer.WHEN {
		whenTok := p.cur
		p.advance()
		cond := p.parseExpr()
		if p.cur.Type != lexer.THEN {
			p.errorf(p.cur, "expected THEN after WHEN condition, got %q", p.cur.Text)
		} else {
			p.advance()
		}
		p.skipSeparators()
		var body []ast.Command
		if p.cur.Type == lexer.DO {
			p.blocks.Push("DO", p.cur)
			p.advance()
			body = p.parseBlockBody(lexer.END)
			if p.cur.Type == lexer.END {
				p.blocks.Pop()
				p.advance()
			}
		} else {
			body = []ast.Command{p.parseCommand()}
			p.skipToLineEnd()
		}
		cmd.Whens = append(cmd.Whens, ast.WhenClause{Cond: cond, Body: body, Pos: pos(whenTok)})
		p.skipSeparators()
	}

	if p.cur.Type == lexer.OTHERWISE {
		p.advance()
		p.skipSeparators()
		cmd.Otherwise = p.parseBlockBody(lexer.END)
	}

	if p.cur.Type == lexer.END {
		p.blocks.Pop()
		p.advance()
	} else {
		p.errorf(p.cur, "expected END to close SELECT, got %q", p.cur.Text)
	}
	return cmd
}

func (p *Parser) parseAddress() ast.Command {
	tok := p.cur
	p.advance()
	if p.cur.Type != lexer.IDENTIFIER {
		p.errorf(p.cur, "expected a target name after ADDRESS, got %q", p.cur.Text)
		return nil
	}
	target := p.cur.Text
	p.advance()

	switch {
	case p.cur.Type == lexer.MATCHING:
		p.advance()
		// MULTILINE may precede the pattern (the form spec.md §8 scenario 3
		// uses) or follow it (the form spec.md §4.2's grammar shows); accept
		// either so both documented orderings parse.
		multiline := false
		if p.cur.Type == lexer.MULTILINE {
			multiline = true
			p.advance()
		}
		if p.cur.Type != lexer.STRING {
			p.errorf(p.cur, "expected a quoted pattern after MATCHING, got %q", p.cur.Text)
			return nil
		}
		pattern := p.cur.Text
		p.advance()
		if !multiline && p.cur.Type == lexer.MULTILINE {
			multiline = true
			p.advance()
		}
		p.currentAddress = target
		var lines []string
		if multiline {
			lines = p.collectMultilineMatchingLines()
		} else {
			lines = p.collectMatchingLines(pattern)
		}
		return &ast.AddressCmd{Target: target, Mode: ast.AddressMatching, Pattern: pattern, Multiline: multiline, Lines: lines, Pos: pos(tok)}

	case p.cur.Type == lexer.HEREDOC_START:
		tag := p.cur.Text
		p.advance() // consume HEREDOC_START, cur becomes NEWLINE (still StatementMode; safe, not peeked)
		p.lex.SetMode(lexer.RawLineMode)
		p.advance() // first body line lexed fresh in RawLineMode
		var lines []string
		for p.cur.Type == lexer.HEREDOC_TEXT && strings.TrimSpace(p.cur.Text) != tag {
			lines = append(lines, p.cur.Text)
			p.advance()
		}
		p.lex.SetMode(lexer.StatementMode)
		// The tag line (or EOF) was already fully consumed by lexRawLine,
		// including its trailing newline, so the lexer now sits exactly at
		// the next statement's first byte. Leave a synthetic NEWLINE in cur
		// rather than advancing again: advancing here would lex that next
		// statement's first token and hand it to skipToLineEnd below, which
		// would silently discard it as if it were this line's trailing text.
		p.cur = lexer.Token{Type: lexer.NEWLINE, Text: "\n", Position: p.cur.Position}
		p.currentAddress = target
		return &ast.AddressCmd{Target: target, Mode: ast.AddressHeredoc, Lines: lines, Pos: pos(tok)}

	case p.cur.Type == lexer.STRING:
		payload := &ast.StringLit{Value: p.cur.Text, Pos: pos(p.cur)}
		p.advance()
		return &ast.AddressCmd{Target: target, Mode: ast.AddressCommand, Payload: payload, Pos: pos(tok)}

	default:
		p.currentAddress = target
		return &ast.AddressCmd{Target: target, Mode: ast.AddressCommand, Pos: pos(tok)}
	}
}

// matchingPattern compiles pattern as a regular expression per spec.md
// §4.5: a line matches when the pattern matches anywhere in its raw
// (untrimmed) text, and the extracted content is the pattern's first
// capture group, or "" when the pattern has no capture group. An
// unparseable pattern degenerates to one that matches nothing, so a
// malformed MATCHING pattern ends the run immediately rather than
// panicking the parser.
func matchingPattern(pattern string) *regexp.Regexp {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return regexp.MustCompile(`[^\x{0}-\x{10FFFF}]`) // matches nothing
	}
	return re
}

// extractMatch reports whether line matches re and, if so, the extracted
// content: re's first capture group, or "" if re has none.
func extractMatch(re *regexp.Regexp, line string) (content string, matched bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return m[1], true
	}
	return "", true
}

// collectMatchingLines gathers the contiguous run of raw lines matching
// pattern (single-line / non-MULTILINE mode), switching the lexer into
// RawLineMode for the duration. A blank line, a non-matching line, or EOF
// ends the run. Each element of the returned slice is the line's already-
// extracted content (not the raw text), since single-line MATCHING joins
// the whole run into one dispatch. Each candidate line is inspected with a
// non-destructive Peek before it is actually consumed, so the line that
// ends the run is never swallowed: it is left untouched for ordinary
// statement parsing to pick up afterward.
func (p *Parser) collectMatchingLines(pattern string) []string {
	re := matchingPattern(pattern)
	p.lex.SetMode(lexer.RawLineMode)
	var lines []string
	for {
		next := p.lex.Peek()
		if next.Type != lexer.HEREDOC_TEXT {
			break
		}
		if strings.TrimSpace(next.Text) == "" {
			break
		}
		content, matched := extractMatch(re, next.Text)
		if !matched {
			break
		}
		p.advance()
		lines = append(lines, content)
	}
	p.lex.SetMode(lexer.StatementMode)
	// See the matching comment in the HEREDOC branch above: the lexer
	// already sits at the first byte of the line that ended the run, so a
	// synthetic NEWLINE (rather than a real advance) keeps that line intact
	// for the next parseCommand call instead of skipToLineEnd eating it.
	p.cur = lexer.Token{Type: lexer.NEWLINE, Text: "\n", Position: p.cur.Position}
	return lines
}

// collectMultilineMatchingLines gathers every raw line following a MATCHING
// MULTILINE clause, untouched, up to (but not including) the next line that
// opens a new ADDRESS statement, or EOF. Unlike collectMatchingLines it does
// not stop at blank or non-matching lines: spec.md §4.5's MULTILINE mode
// needs to see those too, to interleave flush-and-dispatch-verbatim events
// with accumulated matching runs, so extraction is deferred to the driver
// (runtime/interp/address.go).
var addressKeywordRE = regexp.MustCompile(`(?i)^\s*address(\s|$)`)

func (p *Parser) collectMultilineMatchingLines() []string {
	p.lex.SetMode(lexer.RawLineMode)
	var lines []string
	for {
		next := p.lex.Peek()
		if next.Type != lexer.HEREDOC_TEXT {
			break
		}
		if addressKeywordRE.MatchString(next.Text) {
			break
		}
		p.advance()
		lines = append(lines, p.cur.Text)
	}
	p.lex.SetMode(lexer.StatementMode)
	p.cur = lexer.Token{Type: lexer.NEWLINE, Text: "\n", Position: p.cur.Position}
	return lines
}

// --- expressions ---------------------------------------------------------
//
// Precedence, loosest to tightest:
//   pipe (|>) -> or (|) -> and (&) -> comparison -> concat (||) ->
//   additive (+ -) -> multiplicative (* / // %) -> power (**, right-assoc) ->
//   unary (- + ¬) -> postfix (dot-path, calls) -> primary

func (p *Parser) parseExpr() ast.Expression { return p.parsePipe() }

func (p *Parser) parsePipe() ast.Expression {
	left := p.parseOr()
	for p.cur.Type == lexer.PIPE {
		tok := p.cur
		p.advance()
		right := p.parseOr()
		left = &ast.BinaryExpr{Op: "|>", Left: left, Right: right, Pos: pos(tok)}
	}
	return left
}

func (p *Parser) parseOr() ast.Expression {
	left := p.parseAnd()
	for p.cur.Type == lexer.OR_OP {
		tok := p.cur
		p.advance()
		right := p.parseAnd()
		left = &ast.BinaryExpr{Op: "|", Left: left, Right: right, Pos: pos(tok)}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expression {
	left := p.parseComparison()
	for p.cur.Type == lexer.AND_OP {
		tok := p.cur
		p.advance()
		right := p.parseComparison()
		left = &ast.BinaryExpr{Op: "&", Left: left, Right: right, Pos: pos(tok)}
	}
	return left
}

var comparisonOps = map[lexer.TokenType]string{
	lexer.EQ: "==", lexer.EQUALS: "=", lexer.NE: "<>",
	lexer.LT: "<", lexer.LE: "<=", lexer.GT: ">", lexer.GE: ">=",
}

func (p *Parser) parseComparison() ast.Expression {
	left := p.parseConcat()
	for {
		op, ok := comparisonOps[p.cur.Type]
		if !ok {
			return left
		}
		tok := p.cur
		p.advance()
		right := p.parseConcat()
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right, Pos: pos(tok)}
	}
}

func (p *Parser) parseConcat() ast.Expression {
	left := p.parseAdditive()
	for p.cur.Type == lexer.CONCAT {
		tok := p.cur
		p.advance()
		right := p.parseAdditive()
		left = &ast.BinaryExpr{Op: "||", Left: left, Right: right, Pos: pos(tok)}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expression {
	left := p.parseMultiplicative()
	for p.cur.Type == lexer.PLUS || p.cur.Type == lexer.MINUS {
		tok := p.cur
		op := tok.Text
		p.advance()
		right := p.parseMultiplicative()
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right, Pos: pos(tok)}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expression {
	left := p.parsePower()
	for p.cur.Type == lexer.STAR || p.cur.Type == lexer.SLASH || p.cur.Type == lexer.DSLASH || p.cur.Type == lexer.PCT {
		tok := p.cur
		op := tok.Text
		p.advance()
		right := p.parsePower()
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right, Pos: pos(tok)}
	}
	return left
}

// parsePower is right-associative: 2 ** 3 ** 2 == 2 ** (3 ** 2).
func (p *Parser) parsePower() ast.Expression {
	left := p.parseUnary()
	if p.cur.Type == lexer.POW {
		tok := p.cur
		p.advance()
		right := p.parsePower()
		return &ast.BinaryExpr{Op: "**", Left: left, Right: right, Pos: pos(tok)}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expression {
	if p.cur.Type == lexer.MINUS || p.cur.Type == lexer.PLUS || p.cur.Type == lexer.NOT_OP {
		tok := p.cur
		op := tok.Text
		p.advance()
		operand := p.parseUnary()
		return &ast.UnaryExpr{Op: op, Operand: operand, Pos: pos(tok)}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	for p.cur.Type == lexer.DOT {
		tok := p.cur
		path := p.parseDotPath()
		expr = &ast.DotAccess{Base: expr, Path: path, Pos: pos(tok)}
	}
	return expr
}

func (p *Parser) parsePrimary() ast.Expression {
	tok := p.cur

	switch tok.Type {
	case lexer.NUMBER:
		p.advance()
		val, _ := strconv.ParseFloat(tok.Text, 64)
		return &ast.NumberLit{Value: val, Raw: tok.Text, Pos: pos(tok)}

	case lexer.STRING:
		p.advance()
		return &ast.StringLit{Value: tok.Text, Pos: pos(tok)}

	case lexer.LPAREN:
		p.advance()
		inner := p.parseExpr()
		if p.cur.Type != lexer.RPAREN {
			p.errorf(p.cur, "expected ')', got %q", p.cur.Text)
		} else {
			p.advance()
		}
		return inner

	case lexer.LBRACKET:
		p.advance()
		lit := &ast.ArrayLit{Pos: pos(tok)}
		for p.cur.Type != lexer.RBRACKET && p.cur.Type != lexer.EOF {
			lit.Elements = append(lit.Elements, p.parseExpr())
			if p.cur.Type == lexer.COMMA {
				p.advance()
			}
		}
		if p.cur.Type == lexer.RBRACKET {
			p.advance()
		} else {
			p.errorf(p.cur, "expected ']' to close array literal, got %q", p.cur.Text)
		}
		return lit

	case lexer.LBRACE:
		p.advance()
		lit := &ast.ObjectLit{Pos: pos(tok)}
		for p.cur.Type != lexer.RBRACE && p.cur.Type != lexer.EOF {
			if p.cur.Type != lexer.IDENTIFIER && p.cur.Type != lexer.STRING {
				p.errorf(p.cur, "expected a key in object literal, got %q", p.cur.Text)
				break
			}
			key := p.cur.Text
			p.advance()
			if p.cur.Type != lexer.COLON {
				p.errorf(p.cur, "expected ':' after object key %q, got %q", key, p.cur.Text)
				break
			}
			p.advance()
			lit.Keys = append(lit.Keys, key)
			lit.Values = append(lit.Values, p.parseExpr())
			if p.cur.Type == lexer.COMMA {
				p.advance()
			}
		}
		if p.cur.Type == lexer.RBRACE {
			p.advance()
		} else {
			p.errorf(p.cur, "expected '}' to close object literal, got %q", p.cur.Text)
		}
		return lit

	case lexer.IDENTIFIER:
		name := tok.Text
		p.advance()
		if p.cur.Type == lexer.LPAREN {
			return p.parseCallExprArgs(name, tok)
		}
		if p.cur.Type == lexer.LBRACKET {
			p.errorf(p.cur, "bracket indexing %s[...] is not supported; use dotted-path access (%s.1) instead", name, name)
			// Recover by consuming the bracket group so the rest of the line
			// can still be parsed and reported on.
			p.advance()
			for p.cur.Type != lexer.RBRACKET && p.cur.Type != lexer.NEWLINE && p.cur.Type != lexer.EOF {
				p.advance()
			}
			if p.cur.Type == lexer.RBRACKET {
				p.advance()
			}
			return &ast.Identifier{Name: name, Pos: pos(tok)}
		}
		return &ast.Identifier{Name: name, Pos: pos(tok)}

	default:
		p.errorf(tok, "unexpected token %q in expression", tok.Text)
		p.advance()
		return &ast.Identifier{Name: "", Pos: pos(tok)}
	}
}

// parseCallExprArgs parses the parenthesized argument list of a function
// call. A named argument's label is taken verbatim from the IDENTIFIER
// token at the call site; it is never itself looked up as a variable.
func (p *Parser) parseCallExprArgs(name string, tok lexer.Token) ast.Expression {
	p.advance() // '('
	call := &ast.CallExpr{Name: name, Pos: pos(tok)}
	for p.cur.Type != lexer.RPAREN && p.cur.Type != lexer.EOF {
		if p.cur.Type == lexer.IDENTIFIER && p.peek().Type == lexer.EQUALS {
			argName := p.cur.Text
			p.advance()
			p.advance()
			call.Args = append(call.Args, ast.NamedArg{Name: argName, Value: p.parseExpr()})
		} else {
			call.Args = append(call.Args, ast.NamedArg{Value: p.parseExpr()})
		}
		if p.cur.Type == lexer.COMMA {
			p.advance()
		}
	}
	if p.cur.Type == lexer.RPAREN {
		p.advance()
	} else {
		p.errorf(p.cur, "expected ')' to close call to %s, got %q", name, p.cur.Text)
	}
	return call
}
