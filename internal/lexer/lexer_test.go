package lexer

import (
	"testing"

	"github.com/kolkov/stackgen/internal/token"
)

func scanAll(src string) []Token {
	l := NewFromString(src)
	var toks []Token
	for {
		tok := l.Scan()
		if tok.Type == token.EOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func TestScan(t *testing.T) {
	tests := []struct {
		src   string
		typ   token.Token
		value string
	}{
		{"(", token.LPAREN, "("},
		{")", token.RPAREN, ")"},
		{"foo", token.SYMBOL, "foo"},
		{"Int.plus", token.SYMBOL, "Int.plus"},
		{"Fn<Int,String?>", token.SYMBOL, "Fn<Int,String?>"},
		{"main$lambda$1", token.SYMBOL, "main$lambda$1"},
		{"!==", token.SYMBOL, "!=="},
		{"^", token.SYMBOL, "^"},
		{":label", token.KEYWORD, "label"},
		{"42", token.INT, "42"},
		{"-7", token.INT, "-7"},
		{"5L", token.LONG, "5"},
		{"1.5f", token.FLOAT, "1.5"},
		{"2F", token.FLOAT, "2"},
		{"3.25", token.DOUBLE, "3.25"},
		{"1e10", token.DOUBLE, "1e10"},
		{"2.5E-3", token.DOUBLE, "2.5E-3"},
		{`"a b"`, token.STRING, "a b"},
		{`"tab\there"`, token.STRING, "tab\there"},
		{`"A\$"`, token.STRING, "A$"},
		{`'x'`, token.CHAR, "x"},
		{`'\n'`, token.CHAR, "\n"},
		{`'\''`, token.CHAR, "'"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			toks := scanAll(tt.src)
			if len(toks) != 1 {
				t.Fatalf("got %d tokens %v, want 1", len(toks), toks)
			}
			if toks[0].Type != tt.typ || toks[0].Value != tt.value {
				t.Errorf("got %s %q, want %s %q", toks[0].Type, toks[0].Value, tt.typ, tt.value)
			}
		})
	}
}

func TestScanIllegal(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"open`, "unterminated string"},
		{`"bad \q"`, "invalid escape"},
		{`''`, "empty char literal"},
		{`'ab'`, "unterminated char literal"},
		{":", "empty keyword"},
		{"12abc", "malformed number 12abc"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tok := NewFromString(tt.src).Scan()
			if tok.Type != token.ILLEGAL || tok.Value != tt.want {
				t.Errorf("got %s %q, want illegal %q", tok.Type, tok.Value, tt.want)
			}
		})
	}
}

func TestScanPositionsAndComments(t *testing.T) {
	toks := scanAll("(unit u ; comment (ignored)\n  (fun))")
	want := []struct {
		typ       token.Token
		line, col int
	}{
		{token.LPAREN, 1, 1},
		{token.SYMBOL, 1, 2},
		{token.SYMBOL, 1, 7},
		{token.LPAREN, 2, 3},
		{token.SYMBOL, 2, 4},
		{token.RPAREN, 2, 7},
		{token.RPAREN, 2, 8},
	}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(toks), len(want), toks)
	}
	for i, w := range want {
		if toks[i].Type != w.typ || toks[i].Pos.Line != w.line || toks[i].Pos.Column != w.col {
			t.Errorf("token %d = %s at %s, want %s at %d:%d", i, toks[i].Type, toks[i].Pos, w.typ, w.line, w.col)
		}
	}
}
