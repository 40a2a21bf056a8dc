// Package token defines lexical tokens for the resolved program dump format.
package token

//go:generate stringer -type=Token -linecomment

// Token represents a lexical token type.
type Token uint8

const (
	// Special tokens
	ILLEGAL Token = iota // <illegal>
	EOF                  // EOF

	// Delimiters
	LPAREN // (
	RPAREN // )

	// Literals
	literalStart
	SYMBOL  // symbol
	KEYWORD // keyword
	INT     // int
	LONG    // long
	FLOAT   // float
	DOUBLE  // double
	STRING  // string
	CHAR    // char
	literalEnd
)

var names = [...]string{
	ILLEGAL: "<illegal>",
	EOF:     "EOF",
	LPAREN:  "(",
	RPAREN:  ")",
	SYMBOL:  "symbol",
	KEYWORD: "keyword",
	INT:     "int",
	LONG:    "long",
	FLOAT:   "float",
	DOUBLE:  "double",
	STRING:  "string",
	CHAR:    "char",
}

// String returns the token's display name.
func (t Token) String() string {
	if int(t) < len(names) && names[t] != "" {
		return names[t]
	}
	return "<unknown>"
}

// IsLiteral returns true if the token is an atom (symbol, keyword, number, string, char).
func (t Token) IsLiteral() bool {
	return t > literalStart && t < literalEnd
}

// IsNumber returns true if the token is a numeric literal.
func (t Token) IsNumber() bool {
	return t == INT || t == LONG || t == FLOAT || t == DOUBLE
}
