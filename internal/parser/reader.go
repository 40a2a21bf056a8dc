package parser

import (
	"github.com/kolkov/stackgen/internal/lexer"
	"github.com/kolkov/stackgen/internal/token"
)

// sexp is one datum: an atom (tok) or a list (items).
type sexp struct {
	tok   lexer.Token
	list  bool
	items []*sexp
}

func (s *sexp) pos() token.Position { return s.tok.Pos }

// head returns the symbol at the front of a list, or "".
func (s *sexp) head() string {
	if !s.list || len(s.items) == 0 || s.items[0].list || s.items[0].tok.Type != token.SYMBOL {
		return ""
	}
	return s.items[0].tok.Value
}

// isSymbol reports whether s is the atom symbol name.
func (s *sexp) isSymbol(name string) bool {
	return !s.list && s.tok.Type == token.SYMBOL && s.tok.Value == name
}

func (s *sexp) String() string {
	if !s.list {
		return s.tok.Value
	}
	out := "("
	for i, it := range s.items {
		if i > 0 {
			out += " "
		}
		out += it.String()
	}
	return out + ")"
}

// reader turns tokens into data.
type reader struct {
	lexer  *lexer.Lexer
	tok    lexer.Token
	errors *ErrorList
}

func (r *reader) next() {
	r.tok = r.lexer.Scan()
}

// readAll reads data until EOF.
func (r *reader) readAll() []*sexp {
	var out []*sexp
	for r.tok.Type != token.EOF {
		if d := r.read(); d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (r *reader) read() *sexp {
	tok := r.tok
	switch tok.Type {
	case token.LPAREN:
		r.next()
		d := &sexp{tok: tok, list: true}
		for r.tok.Type != token.RPAREN {
			if r.tok.Type == token.EOF {
				r.errors.Add(tok.Pos, "unclosed list")
				return d
			}
			if it := r.read(); it != nil {
				d.items = append(d.items, it)
			}
		}
		r.next()
		return d
	case token.RPAREN:
		r.errors.Add(tok.Pos, "unexpected )")
		r.next()
		return nil
	case token.ILLEGAL:
		r.errors.Add(tok.Pos, "%s", tok.Value)
		r.next()
		return nil
	}
	r.next()
	return &sexp{tok: tok}
}
