package compiler

import (
	"fmt"

	"github.com/chazu/brain/vm"
)

// ---------------------------------------------------------------------------
// Token types for the tile lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber   // 42, 3.5
	TokenString   // "hello"
	TokenWord     // tile ids: move, quickly, speed
	TokenVariable // $hp

	// Reserved words
	TokenTrue
	TokenFalse
	TokenNil

	// Delimiters
	TokenLParen // (
	TokenRParen // )
	TokenDot    // .

	// Operators
	TokenAssign  // =
	TokenOr      // ||
	TokenAnd     // &&
	TokenEq      // ==
	TokenNotEq   // !=
	TokenLess    // <
	TokenLessEq  // <=
	TokenGreater // >
	TokenGreatEq // >=
	TokenPlus    // +
	TokenMinus   // -
	TokenStar    // *
	TokenSlash   // /
	TokenPercent // %
	TokenBang    // !
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "EOF",
	TokenError:    "ERROR",
	TokenNumber:   "NUMBER",
	TokenString:   "STRING",
	TokenWord:     "WORD",
	TokenVariable: "VARIABLE",
	TokenTrue:     "true",
	TokenFalse:    "false",
	TokenNil:      "nil",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenDot:      ".",
	TokenAssign:   "=",
	TokenOr:       "||",
	TokenAnd:      "&&",
	TokenEq:       "==",
	TokenNotEq:    "!=",
	TokenLess:     "<",
	TokenLessEq:   "<=",
	TokenGreater:  ">",
	TokenGreatEq:  ">=",
	TokenPlus:     "+",
	TokenMinus:    "-",
	TokenStar:     "*",
	TokenSlash:    "/",
	TokenPercent:  "%",
	TokenBang:     "!",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text (without $ or quotes)
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"true":  TokenTrue,
	"false": TokenFalse,
	"nil":   TokenNil,
}

// binaryOps maps operator tokens to operator ids and binding power.
var binaryOps = map[TokenType]struct {
	op    vm.OpID
	power int
}{
	TokenOr:      {vm.OpOr, precOr},
	TokenAnd:     {vm.OpAnd, precAnd},
	TokenEq:      {vm.OpEq, precEquality},
	TokenNotEq:   {vm.OpNe, precEquality},
	TokenLess:    {vm.OpLt, precRelational},
	TokenLessEq:  {vm.OpLe, precRelational},
	TokenGreater: {vm.OpGt, precRelational},
	TokenGreatEq: {vm.OpGe, precRelational},
	TokenPlus:    {vm.OpAdd, precAdditive},
	TokenMinus:   {vm.OpSub, precAdditive},
	TokenStar:    {vm.OpMul, precMultiplicative},
	TokenSlash:   {vm.OpDiv, precMultiplicative},
	TokenPercent: {vm.OpMod, precMultiplicative},
}

// Binding powers, lowest first.
const (
	precLowest = iota
	precAssign
	precOr
	precAnd
	precEquality
	precRelational
	precAdditive
	precMultiplicative
	precUnary
)
