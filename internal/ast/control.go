package ast

import (
	"github.com/kolkov/stackgen/internal/token"
	"github.com/kolkov/stackgen/internal/types"
)

// BlockExpr is a sequence of expressions; its value is the last one.
// Variables declared directly in the block are scoped to it.
type BlockExpr struct {
	BaseExpr
	Stmts []Expr
}

// IfExpr is if/else; Else may be nil.
type IfExpr struct {
	BaseExpr
	Cond Expr
	Then Expr
	Else Expr
}

// WhileExpr is a pre-tested loop.
type WhileExpr struct {
	BaseExpr
	Label string
	Cond  Expr
	Body  Expr
}

// DoWhileExpr is a post-tested loop. Variables declared in the body are
// visible in the condition.
type DoWhileExpr struct {
	BaseExpr
	Label string
	Body  Expr
	Cond  Expr
}

// ForExpr iterates Var over Range. The iterator callables are set when Range
// is neither a native array nor an integer interval.
type ForExpr struct {
	BaseExpr
	Label    string
	Var      *Var
	Range    Expr
	Body     Expr
	Iterator *Callable
	HasNext  *Callable
	Next     *Callable
}

// BreakExpr leaves the innermost loop, or the loop named Label.
type BreakExpr struct {
	BaseExpr
	Label string
}

// ContinueExpr restarts the innermost loop, or the loop named Label.
type ContinueExpr struct {
	BaseExpr
	Label string
}

// ReturnExpr returns from the enclosing function.
type ReturnExpr struct {
	BaseExpr
	Value Expr
}

// ThrowExpr raises an exception.
type ThrowExpr struct {
	BaseExpr
	X Expr
}

// CatchClause handles exceptions assignable to Var.Type.
type CatchClause struct {
	StartPos token.Position
	Var      *Var
	Body     Expr
}

func (c *CatchClause) Pos() token.Position { return c.StartPos }

// TryExpr is try/catch/finally. Its value is the value of the try block or
// of the catch clause that ran.
type TryExpr struct {
	BaseExpr
	Body    Expr
	Catches []*CatchClause
	Finally Expr
}

// WhenExpr is a multi-way conditional. Subject may be nil, in which case each
// condition is an ExprPattern holding a Boolean expression.
type WhenExpr struct {
	BaseExpr
	Subject Expr
	Entries []*WhenEntry
}

// HasElse reports whether an else entry is present.
func (w *WhenExpr) HasElse() bool {
	for _, e := range w.Entries {
		if e.Else {
			return true
		}
	}
	return false
}

// WhenEntry is one arm. Its conditions are alternatives.
type WhenEntry struct {
	StartPos   token.Position
	Conditions []Pattern
	Else       bool
	Body       Expr
}

func (e *WhenEntry) Pos() token.Position { return e.StartPos }

// -----------------------------------------------------------------------------
// Patterns
// -----------------------------------------------------------------------------

// Pattern is a when condition or the right side of an is-expression.
type Pattern interface {
	Node
	// IsNegated reports whether the pattern matches when its test fails.
	IsNegated() bool
	patternNode()
}

// BasePattern provides position and negation for patterns.
type BasePattern struct {
	StartPos token.Position
	Negated  bool
}

func (b *BasePattern) Pos() token.Position { return b.StartPos }
func (b *BasePattern) IsNegated() bool     { return b.Negated }
func (b *BasePattern) patternNode()        {}

// TypePattern is an instance test against Type.
type TypePattern struct {
	BasePattern
	Type types.Type
}

// ExprPattern tests the subject for equality with X, or evaluates X as a
// condition when the when has no subject.
type ExprPattern struct {
	BasePattern
	X Expr
}

// RangePattern tests membership of the subject in Range.
type RangePattern struct {
	BasePattern
	Range    Expr
	Contains *Callable
}

// TuplePattern destructures a TupleN subject component-wise.
type TuplePattern struct {
	BasePattern
	Elems []Pattern
}

// WildcardPattern matches anything.
type WildcardPattern struct {
	BasePattern
}

// BindPattern binds the subject to Var, then evaluates the optional Guard.
type BindPattern struct {
	BasePattern
	Var   *Var
	Guard Expr
}

var (
	_ Expr    = (*BlockExpr)(nil)
	_ Expr    = (*IfExpr)(nil)
	_ Expr    = (*WhileExpr)(nil)
	_ Expr    = (*DoWhileExpr)(nil)
	_ Expr    = (*ForExpr)(nil)
	_ Expr    = (*BreakExpr)(nil)
	_ Expr    = (*ContinueExpr)(nil)
	_ Expr    = (*ReturnExpr)(nil)
	_ Expr    = (*ThrowExpr)(nil)
	_ Expr    = (*TryExpr)(nil)
	_ Expr    = (*WhenExpr)(nil)
	_ Pattern = (*TypePattern)(nil)
	_ Pattern = (*ExprPattern)(nil)
	_ Pattern = (*RangePattern)(nil)
	_ Pattern = (*TuplePattern)(nil)
	_ Pattern = (*WildcardPattern)(nil)
	_ Pattern = (*BindPattern)(nil)
)
