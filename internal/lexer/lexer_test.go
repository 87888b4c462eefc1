package lexer

import (
	"testing"

	"skyhetu-vm/internal/token"
)

func TestNextToken(t *testing.T) {
	input := `let five = 5
state counter = 0
counter -> counter + 1
fn add(a, b) {
	return a + b
}
if counter >= 2 and counter != 3 {
	print("big")
}
let xs = [1, 2.5, 3]
let f = |n| n * 2
`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.LET, "let"},
		{token.IDENTIFIER, "five"},
		{token.ASSIGN, "="},
		{token.NUMBER, "5"},
		{token.NEWLINE, "\\n"},
		{token.STATE, "state"},
		{token.IDENTIFIER, "counter"},
		{token.ASSIGN, "="},
		{token.NUMBER, "0"},
		{token.NEWLINE, "\\n"},
		{token.IDENTIFIER, "counter"},
		{token.ARROW, "->"},
		{token.IDENTIFIER, "counter"},
		{token.PLUS, "+"},
		{token.NUMBER, "1"},
		{token.NEWLINE, "\\n"},
		{token.FN, "fn"},
		{token.IDENTIFIER, "add"},
		{token.LPAREN, "("},
		{token.IDENTIFIER, "a"},
		{token.COMMA, ","},
		{token.IDENTIFIER, "b"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.NEWLINE, "\\n"},
		{token.RETURN, "return"},
		{token.IDENTIFIER, "a"},
		{token.PLUS, "+"},
		{token.IDENTIFIER, "b"},
		{token.NEWLINE, "\\n"},
		{token.RBRACE, "}"},
		{token.NEWLINE, "\\n"},
		{token.IF, "if"},
		{token.IDENTIFIER, "counter"},
		{token.GTE, ">="},
		{token.NUMBER, "2"},
		{token.AND, "and"},
		{token.IDENTIFIER, "counter"},
		{token.NEQ, "!="},
		{token.NUMBER, "3"},
		{token.LBRACE, "{"},
		{token.NEWLINE, "\\n"},
		{token.IDENTIFIER, "print"},
		{token.LPAREN, "("},
		{token.STRING, "big"},
		{token.RPAREN, ")"},
		{token.NEWLINE, "\\n"},
		{token.RBRACE, "}"},
		{token.NEWLINE, "\\n"},
		{token.LET, "let"},
		{token.IDENTIFIER, "xs"},
		{token.ASSIGN, "="},
		{token.LBRACKET, "["},
		{token.NUMBER, "1"},
		{token.COMMA, ","},
		{token.NUMBER, "2.5"},
		{token.COMMA, ","},
		{token.NUMBER, "3"},
		{token.RBRACKET, "]"},
		{token.NEWLINE, "\\n"},
		{token.LET, "let"},
		{token.IDENTIFIER, "f"},
		{token.ASSIGN, "="},
		{token.PIPE, "|"},
		{token.IDENTIFIER, "n"},
		{token.PIPE, "|"},
		{token.IDENTIFIER, "n"},
		{token.STAR, "*"},
		{token.NUMBER, "2"},
		{token.NEWLINE, "\\n"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - wrong token type. expected=%q, got=%q (%q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - wrong literal. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	l := New(`"a\nb\t\"c\\"`)
	tok := l.NextToken()
	if tok.Type != token.STRING {
		t.Fatalf("expected STRING, got %q", tok.Type)
	}
	if tok.Literal != "a\nb\t\"c\\" {
		t.Fatalf("wrong escape handling: %q", tok.Literal)
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"abc`)
	tok := l.NextToken()
	if tok.Type != token.ILLEGAL {
		t.Fatalf("expected ILLEGAL, got %q", tok.Type)
	}
	if tok.Literal != "unterminated string" {
		t.Fatalf("wrong literal: %q", tok.Literal)
	}
}

func TestComments(t *testing.T) {
	l := New("1 // comment to end of line\n2")
	if tok := l.NextToken(); tok.Type != token.NUMBER || tok.Literal != "1" {
		t.Fatalf("expected number 1, got %v", tok)
	}
	if tok := l.NextToken(); tok.Type != token.NEWLINE {
		t.Fatalf("expected newline, got %v", tok)
	}
	if tok := l.NextToken(); tok.Type != token.NUMBER || tok.Literal != "2" {
		t.Fatalf("expected number 2, got %v", tok)
	}
}

func TestLineTracking(t *testing.T) {
	l := New("a\nbb\n  c")
	a := l.NextToken()
	l.NextToken() // newline
	bb := l.NextToken()
	l.NextToken() // newline
	c := l.NextToken()

	if a.Span.Line != 1 {
		t.Errorf("a on line %d, want 1", a.Span.Line)
	}
	if bb.Span.Line != 2 || bb.Span.Column != 1 {
		t.Errorf("bb at %d:%d, want 2:1", bb.Span.Line, bb.Span.Column)
	}
	if c.Span.Line != 3 || c.Span.Column != 3 {
		t.Errorf("c at %d:%d, want 3:3", c.Span.Line, c.Span.Column)
	}
}
