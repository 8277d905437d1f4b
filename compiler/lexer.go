package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for tile rows
// ---------------------------------------------------------------------------

// Lexer tokenizes one rule row.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// Tokenize returns every token of the input, ending with EOF.
func (l *Lexer) Tokenize() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	for unicode.IsSpace(l.ch) {
		l.readChar()
	}
	pos := l.position()

	two := func(next rune, pair, single TokenType, pairLit, singleLit string) Token {
		if l.peekChar() == next {
			l.readChar()
			l.readChar()
			return Token{Type: pair, Literal: pairLit, Pos: pos}
		}
		l.readChar()
		return Token{Type: single, Literal: singleLit, Pos: pos}
	}

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}
	case l.ch == ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}
	case l.ch == '.' && !isDigit(l.peekChar()):
		l.readChar()
		return Token{Type: TokenDot, Literal: ".", Pos: pos}

	case l.ch == '=':
		return two('=', TokenEq, TokenAssign, "==", "=")
	case l.ch == '!':
		return two('=', TokenNotEq, TokenBang, "!=", "!")
	case l.ch == '<':
		return two('=', TokenLessEq, TokenLess, "<=", "<")
	case l.ch == '>':
		return two('=', TokenGreatEq, TokenGreater, ">=", ">")
	case l.ch == '|':
		if l.peekChar() == '|' {
			return two('|', TokenOr, TokenError, "||", "|")
		}
		l.readChar()
		return Token{Type: TokenError, Literal: "unexpected '|'", Pos: pos}
	case l.ch == '&':
		if l.peekChar() == '&' {
			return two('&', TokenAnd, TokenError, "&&", "&")
		}
		l.readChar()
		return Token{Type: TokenError, Literal: "unexpected '&'", Pos: pos}

	case l.ch == '+':
		l.readChar()
		return Token{Type: TokenPlus, Literal: "+", Pos: pos}
	case l.ch == '-':
		l.readChar()
		return Token{Type: TokenMinus, Literal: "-", Pos: pos}
	case l.ch == '*':
		l.readChar()
		return Token{Type: TokenStar, Literal: "*", Pos: pos}
	case l.ch == '/':
		l.readChar()
		return Token{Type: TokenSlash, Literal: "/", Pos: pos}
	case l.ch == '%':
		l.readChar()
		return Token{Type: TokenPercent, Literal: "%", Pos: pos}

	case l.ch == '"':
		return l.readString(pos)
	case l.ch == '$':
		l.readChar()
		name := l.readIdent()
		if name == "" {
			return Token{Type: TokenError, Literal: "expected variable name after '$'", Pos: pos}
		}
		return Token{Type: TokenVariable, Literal: name, Pos: pos}
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(pos)
	case isIdentStart(l.ch):
		word := l.readIdent()
		if tt, ok := reservedWords[word]; ok {
			return Token{Type: tt, Literal: word, Pos: pos}
		}
		return Token{Type: TokenWord, Literal: word, Pos: pos}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + string(ch), Pos: pos}
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for isIdentStart(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	seenDot := false
	for isDigit(l.ch) || (l.ch == '.' && !seenDot && isDigit(l.peekChar())) {
		if l.ch == '.' {
			seenDot = true
		}
		l.readChar()
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

func (l *Lexer) readString(pos Position) Token {
	l.readChar() // opening quote
	var sb strings.Builder
	for l.ch != '"' {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 0:
				return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
			default:
				sb.WriteRune(l.ch)
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
