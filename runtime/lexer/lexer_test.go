package lexer

import (
	"strings"
	"testing"
)

func tokenTypes(tokens []Token) []TokenType {
	types := make([]TokenType, 0, len(tokens))
	for _, t := range tokens {
		if t.Type == NEWLINE {
			continue
		}
		types = append(types, t.Type)
	}
	return types
}

func TestLexKeywordsAreCaseInsensitive(t *testing.T) {
	for _, src := range []string{"say x", "SAY x", "Say x"} {
		l := New(strings.NewReader(src))
		tok := l.NextToken()
		if tok.Type != SAY {
			t.Fatalf("source %q: expected SAY, got %s", src, tok.Type)
		}
	}
}

func TestLexAssignmentAndExpression(t *testing.T) {
	l := New(strings.NewReader("count = 1 + 2"))
	tokens := l.TokenizeToSlice()
	got := tokenTypes(tokens)
	want := []TokenType{IDENTIFIER, EQUALS, NUMBER, PLUS, NUMBER, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLexOperators(t *testing.T) {
	l := New(strings.NewReader("a <> b & c | d || e |> f"))
	tokens := l.TokenizeToSlice()
	got := tokenTypes(tokens)
	want := []TokenType{
		IDENTIFIER, NE, IDENTIFIER, AND_OP, IDENTIFIER, OR_OP, IDENTIFIER,
		CONCAT, IDENTIFIER, PIPE, IDENTIFIER, EOF,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLexStringLiteralWithEscapedQuote(t *testing.T) {
	l := New(strings.NewReader(`"say ""hi"""`))
	tok := l.NextToken()
	if tok.Type != STRING {
		t.Fatalf("expected STRING, got %s", tok.Type)
	}
	if tok.Text != `say "hi"` {
		t.Fatalf("unexpected string content %q", tok.Text)
	}
}

func TestLexLineAndBlockComments(t *testing.T) {
	l := New(strings.NewReader("-- a comment\n/* block\ncomment */\nsay 1"))
	tokens := l.TokenizeToSlice()
	var sawSay bool
	for _, tok := range tokens {
		if tok.Type == SAY {
			sawSay = true
		}
		if tok.Type == IDENTIFIER {
			t.Fatalf("comment text leaked as identifier: %q", tok.Text)
		}
	}
	if !sawSay {
		t.Fatal("expected SAY token after comments")
	}
}

func TestLexHeredocStart(t *testing.T) {
	l := New(strings.NewReader("<<EOF\n"))
	tok := l.NextToken()
	if tok.Type != HEREDOC_START {
		t.Fatalf("expected HEREDOC_START, got %s", tok.Type)
	}
	if tok.Text != "EOF" {
		t.Fatalf("expected tag EOF, got %q", tok.Text)
	}
}

func TestLexRawLineMode(t *testing.T) {
	l := New(strings.NewReader("first raw line\nsecond raw line\n"))
	l.SetMode(RawLineMode)
	tok := l.NextToken()
	if tok.Type != HEREDOC_TEXT || tok.Text != "first raw line" {
		t.Fatalf("unexpected raw line token: %+v", tok)
	}
	tok = l.NextToken()
	if tok.Type != HEREDOC_TEXT || tok.Text != "second raw line" {
		t.Fatalf("unexpected second raw line token: %+v", tok)
	}
}

func TestLexNumberForms(t *testing.T) {
	cases := []string{"42", "3.14", "1e6", "2.5e-3"}
	for _, src := range cases {
		l := New(strings.NewReader(src))
		tok := l.NextToken()
		if tok.Type != NUMBER {
			t.Fatalf("source %q: expected NUMBER, got %s", src, tok.Type)
		}
		if tok.Text != src {
			t.Fatalf("source %q: expected full match, got %q", src, tok.Text)
		}
	}
}

func TestLexForbiddenBracketIsTokenizedNotSwallowed(t *testing.T) {
	l := New(strings.NewReader("arr[1]"))
	tokens := l.TokenizeToSlice()
	got := tokenTypes(tokens)
	want := []TokenType{IDENTIFIER, LBRACKET, NUMBER, RBRACKET, EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
