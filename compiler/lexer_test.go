package compiler

import (
	"testing"
)

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		input string
		want  []TokenType
	}{
		{"", []TokenType{TokenEOF}},
		{"42 3.5 .5", []TokenType{TokenNumber, TokenNumber, TokenNumber, TokenEOF}},
		{`"hi"`, []TokenType{TokenString, TokenEOF}},
		{"$hp", []TokenType{TokenVariable, TokenEOF}},
		{"move quickly", []TokenType{TokenWord, TokenWord, TokenEOF}},
		{"true false nil", []TokenType{TokenTrue, TokenFalse, TokenNil, TokenEOF}},
		{"( ) .", []TokenType{TokenLParen, TokenRParen, TokenDot, TokenEOF}},
		{"= == != ! < <= > >=", []TokenType{
			TokenAssign, TokenEq, TokenNotEq, TokenBang,
			TokenLess, TokenLessEq, TokenGreater, TokenGreatEq, TokenEOF,
		}},
		{"+ - * / %", []TokenType{TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenEOF}},
		{"&& ||", []TokenType{TokenAnd, TokenOr, TokenEOF}},
		{"$pos.x", []TokenType{TokenVariable, TokenDot, TokenWord, TokenEOF}},
		{"&", []TokenType{TokenError, TokenEOF}},
		{"#", []TokenType{TokenError, TokenEOF}},
	}

	for _, tt := range tests {
		toks := NewLexer(tt.input).Tokenize()
		if len(toks) != len(tt.want) {
			t.Errorf("%q: got %d tokens %v, want %d", tt.input, len(toks), toks, len(tt.want))
			continue
		}
		for i, tok := range toks {
			if tok.Type != tt.want[i] {
				t.Errorf("%q: token %d = %s, want %s", tt.input, i, tok.Type, tt.want[i])
			}
		}
	}
}

func TestLexerLiterals(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{"12.25", TokenNumber, "12.25"},
		{`"a\"b\n"`, TokenString, "a\"b\n"},
		{"$speed_2", TokenVariable, "speed_2"},
		{"quickly", TokenWord, "quickly"},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.lit {
			t.Errorf("%q: got %s %q, want %s %q", tt.input, tok.Type, tok.Literal, tt.typ, tt.lit)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []string{`"open`, "$", "|"}
	for _, input := range tests {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("%q: got %s, want ERROR", input, tok)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	toks := NewLexer("move  $x").Tokenize()
	if toks[0].Pos.Column != 1 || toks[1].Pos.Column != 7 {
		t.Errorf("columns = %d, %d; want 1, 7", toks[0].Pos.Column, toks[1].Pos.Column)
	}
	if toks[1].Pos.Offset != 6 {
		t.Errorf("offset = %d, want 6", toks[1].Pos.Offset)
	}
}
