package lexer

// ASCII character lookup tables for fast classification (zero-allocation).
//
//	if ch < 128 && isLetter[ch] { ... }
var (
	isWhitespace [128]bool // space, tab, carriage return
	isLetter     [128]bool // a-z, A-Z, _
	isDigit      [128]bool // 0-9
	isIdentStart [128]bool // letter or _
	isIdentPart  [128]bool // letter, digit, or _
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)
		isWhitespace[i] = ch == ' ' || ch == '\t' || ch == '\r'
		isLetter[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isDigit[i] = '0' <= ch && ch <= '9'
		isIdentStart[i] = isLetter[i]
		isIdentPart[i] = isLetter[i] || isDigit[i]
	}
}

// Identifier specification: [a-zA-Z_][a-zA-Z0-9_]*. Dotted stem names
// (arr.1, config.server.port) are not single identifiers at the lexer
// level — each dot-separated segment lexes as its own IDENTIFIER/NUMBER
// token joined by DOT, and the parser reassembles the dotted path.

// isValidASCIIIdentifier reports whether s is a valid bare identifier.
func isValidASCIIIdentifier(s string) bool {
	if s == "" {
		return false
	}
	first := s[0]
	if first >= 128 || !isIdentStart[first] {
		return false
	}
	for i := 1; i < len(s); i++ {
		ch := s[i]
		if ch >= 128 || !isIdentPart[ch] {
			return false
		}
	}
	return true
}
