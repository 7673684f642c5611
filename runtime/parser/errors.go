package parser

import (
	"fmt"

	"github.com/aledsdavies/rexxgo/runtime/lexer"
)

// ParseError carries a message and the exact token where parsing failed,
// so every reported error can cite a line number the way the rest of the
// interpreter's diagnostics do.
type ParseError struct {
	Message string
	Token   lexer.Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Token.Position.Line, e.Token.Position.Column, e.Message)
}

// BlockTracker tracks open DO/SELECT/IF...THEN DO blocks so the parser can
// report which opening keyword is missing its END when input runs out.
type BlockTracker struct {
	stack []BlockInfo
}

// BlockInfo records one open block's introducing keyword and position.
type BlockInfo struct {
	Keyword string
	Token   lexer.Token
}

func (bt *BlockTracker) Push(keyword string, tok lexer.Token) {
	bt.stack = append(bt.stack, BlockInfo{Keyword: keyword, Token: tok})
}

func (bt *BlockTracker) Pop() (BlockInfo, bool) {
	if len(bt.stack) == 0 {
		return BlockInfo{}, false
	}
	top := bt.stack[len(bt.stack)-1]
	bt.stack = bt.stack[:len(bt.stack)-1]
	return top, true
}

func (bt *BlockTracker) Unclosed() []BlockInfo {
	return bt.stack
}
