// Package lexer tokenizes the s-expression dump of a resolved program.
package lexer

import (
	"strings"
	"unicode/utf8"

	"github.com/kolkov/stackgen/internal/token"
)

// Lexer tokenizes dump source.
type Lexer struct {
	src     []byte         // Source code
	ch      rune           // Current character (-1 at EOF)
	offset  int            // Byte offset after ch
	pos     token.Position // Position of ch
	nextPos token.Position // Position of the next character
}

const eof = -1

// New creates a new Lexer for the given source code.
func New(src []byte) *Lexer {
	l := &Lexer{
		src: src,
		nextPos: token.Position{
			Line:   1,
			Column: 1,
		},
	}
	l.next() // Initialize first character
	return l
}

// NewFromString creates a new Lexer from a string.
func NewFromString(src string) *Lexer {
	return New([]byte(src))
}

// Token represents a scanned token with its position and value.
// For STRING and CHAR the value is unescaped; for KEYWORD the leading
// colon is dropped; numbers keep their suffix stripped.
type Token struct {
	Type  token.Token
	Pos   token.Position
	Value string
}

// Scan scans and returns the next token.
func (l *Lexer) Scan() Token {
	l.skipSpaceAndComments()
	pos := l.pos

	switch {
	case l.ch == eof:
		return Token{Type: token.EOF, Pos: pos}
	case l.ch == '(':
		l.next()
		return Token{Type: token.LPAREN, Pos: pos, Value: "("}
	case l.ch == ')':
		l.next()
		return Token{Type: token.RPAREN, Pos: pos, Value: ")"}
	case l.ch == '"':
		return l.scanString(pos)
	case l.ch == '\'':
		return l.scanChar(pos)
	case isDigit(l.ch) || (l.ch == '-' && isDigit(l.peek())):
		return l.scanNumber(pos)
	case l.ch == ':':
		l.next()
		word := l.scanWord()
		if word == "" {
			return Token{Type: token.ILLEGAL, Pos: pos, Value: "empty keyword"}
		}
		return Token{Type: token.KEYWORD, Pos: pos, Value: word}
	}
	word := l.scanWord()
	if word == "" {
		ch := l.ch
		l.next()
		return Token{Type: token.ILLEGAL, Pos: pos, Value: string(ch)}
	}
	return Token{Type: token.SYMBOL, Pos: pos, Value: word}
}

func (l *Lexer) skipSpaceAndComments() {
	for {
		switch l.ch {
		case ' ', '\t', '\n', '\r':
			l.next()
		case ';':
			for l.ch != '\n' && l.ch != eof {
				l.next()
			}
		default:
			return
		}
	}
}

func (l *Lexer) scanWord() string {
	var sb strings.Builder
	for isWordChar(l.ch) {
		sb.WriteRune(l.ch)
		l.next()
	}
	return sb.String()
}

func (l *Lexer) scanNumber(pos token.Position) Token {
	var sb strings.Builder
	if l.ch == '-' {
		sb.WriteRune(l.ch)
		l.next()
	}
	typ := token.INT
	for isDigit(l.ch) {
		sb.WriteRune(l.ch)
		l.next()
	}
	if l.ch == '.' && isDigit(l.peek()) {
		typ = token.DOUBLE
		sb.WriteRune(l.ch)
		l.next()
		for isDigit(l.ch) {
			sb.WriteRune(l.ch)
			l.next()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		typ = token.DOUBLE
		sb.WriteRune(l.ch)
		l.next()
		if l.ch == '+' || l.ch == '-' {
			sb.WriteRune(l.ch)
			l.next()
		}
		for isDigit(l.ch) {
			sb.WriteRune(l.ch)
			l.next()
		}
	}
	switch l.ch {
	case 'L':
		if typ == token.INT {
			typ = token.LONG
			l.next()
		}
	case 'f', 'F':
		typ = token.FLOAT
		l.next()
	}
	if isWordChar(l.ch) {
		bad := sb.String() + l.scanWord()
		return Token{Type: token.ILLEGAL, Pos: pos, Value: "malformed number " + bad}
	}
	return Token{Type: typ, Pos: pos, Value: sb.String()}
}

func (l *Lexer) scanString(pos token.Position) Token {
	l.next() // opening quote
	var sb strings.Builder
	for l.ch != '"' {
		if l.ch == eof {
			return Token{Type: token.ILLEGAL, Pos: pos, Value: "unterminated string"}
		}
		if l.ch == '\\' {
			r, ok := l.scanEscape()
			if !ok {
				return Token{Type: token.ILLEGAL, Pos: pos, Value: "invalid escape"}
			}
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(l.ch)
		l.next()
	}
	l.next() // closing quote
	return Token{Type: token.STRING, Pos: pos, Value: sb.String()}
}

func (l *Lexer) scanChar(pos token.Position) Token {
	l.next() // opening quote
	r := l.ch
	if r == '\\' {
		var ok bool
		if r, ok = l.scanEscape(); !ok {
			return Token{Type: token.ILLEGAL, Pos: pos, Value: "invalid escape"}
		}
	} else {
		if r == eof || r == '\'' {
			return Token{Type: token.ILLEGAL, Pos: pos, Value: "empty char literal"}
		}
		l.next()
	}
	if l.ch != '\'' {
		return Token{Type: token.ILLEGAL, Pos: pos, Value: "unterminated char literal"}
	}
	l.next()
	return Token{Type: token.CHAR, Pos: pos, Value: string(r)}
}

// scanEscape consumes a backslash escape and returns the rune it denotes.
func (l *Lexer) scanEscape() (rune, bool) {
	l.next() // backslash
	ch := l.ch
	l.next()
	switch ch {
	case 'n':
		return '\n', true
	case 't':
		return '\t', true
	case 'r':
		return '\r', true
	case '0':
		return 0, true
	case '\\', '"', '\'', '$':
		return ch, true
	case 'u':
		var r rune
		for i := 0; i < 4; i++ {
			d := hexVal(l.ch)
			if d < 0 {
				return 0, false
			}
			r = r<<4 | rune(d)
			l.next()
		}
		return r, true
	}
	return 0, false
}

func (l *Lexer) next() {
	if l.offset >= len(l.src) {
		l.pos = l.nextPos
		l.ch = eof
		return
	}

	l.pos = l.nextPos
	r, size := rune(l.src[l.offset]), 1
	if r >= utf8.RuneSelf {
		r, size = utf8.DecodeRune(l.src[l.offset:])
	}
	l.offset += size
	l.nextPos.Offset = l.offset
	if r == '\n' {
		l.nextPos.Line++
		l.nextPos.Column = 1
	} else {
		l.nextPos.Column += size
	}
	l.ch = r
}

func (l *Lexer) peek() rune {
	if l.offset >= len(l.src) {
		return eof
	}
	r, _ := utf8.DecodeRune(l.src[l.offset:])
	return r
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isWordChar(ch rune) bool {
	switch ch {
	case eof, ' ', '\t', '\n', '\r', '(', ')', '"', '\'', ';':
		return false
	}
	return true
}

func hexVal(ch rune) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'f':
		return int(ch-'a') + 10
	case ch >= 'A' && ch <= 'F':
		return int(ch-'A') + 10
	}
	return -1
}
