// Package ast defines the Resolved Program Model consumed by the lowering
// engine: typed expression nodes whose names are bound to declarations and
// whose calls are bound to callables.
//
// Every expression carries resolved facts (Info): its static type and, when
// the front end folded it, a compile-time constant.
//
// Node hierarchy:
//
//	Node (interface)
//	├── Expr (interface) - everything that is lowered to instructions
//	│   ├── ConstExpr, TemplateExpr, TupleExpr - literals
//	│   ├── NameExpr, ThisExpr, ReceiverExpr, PropExpr, IndexExpr - references
//	│   ├── CallExpr, InvokeExpr, SafeExpr - calls
//	│   ├── CompareExpr, LogicalExpr, NotExpr, ElvisExpr, InExpr, RangeExpr - operators
//	│   ├── IsExpr, CastExpr, NotNullExpr - type operations
//	│   ├── VarDecl, AssignExpr, AugAssignExpr, IncDecExpr - stores
//	│   ├── BlockExpr, IfExpr, WhenExpr, TryExpr - compound
//	│   ├── WhileExpr, DoWhileExpr, ForExpr - loops
//	│   ├── BreakExpr, ContinueExpr, ReturnExpr, ThrowExpr - jumps
//	│   └── LambdaExpr, ObjectExpr, LocalFunExpr, NewArrayExpr - allocation
//	├── Pattern (interface) - when/is conditions
//	└── Unit, ClassDecl, FunDecl, GlobalDecl - declarations
package ast

import (
	"github.com/kolkov/stackgen/internal/token"
	"github.com/kolkov/stackgen/internal/types"
)

// Node is the interface implemented by all model nodes.
type Node interface {
	// Pos returns the position of the node's opening form.
	Pos() token.Position
}

// Expr is the interface for all expression nodes.
type Expr interface {
	Node
	// Info returns the node's resolved facts.
	Info() *Info
	exprNode() // marker method to prevent external implementations
}

// Info holds the resolved facts attached to an expression.
type Info struct {
	Type  types.Type // static type; types.Void for statements
	Const *Constant  // compile-time value, nil if not folded
}

// Constant is a folded compile-time value: int64, float64, bool, rune,
// string or nil.
type Constant struct {
	Value any
}

// BaseExpr provides position and facts for all expression nodes.
type BaseExpr struct {
	StartPos token.Position
	Facts    Info
}

func (b *BaseExpr) Pos() token.Position { return b.StartPos }
func (b *BaseExpr) Info() *Info         { return &b.Facts }
func (b *BaseExpr) exprNode()           {}

// MakeBaseExpr creates a BaseExpr with the given position and type.
func MakeBaseExpr(pos token.Position, t types.Type) BaseExpr {
	return BaseExpr{StartPos: pos, Facts: Info{Type: t}}
}

// TypeOf returns the static type of e.
func TypeOf(e Expr) types.Type {
	return e.Info().Type
}

// IsLValue reports whether e can be the target of an assignment.
func IsLValue(e Expr) bool {
	switch e.(type) {
	case *NameExpr, *PropExpr, *IndexExpr:
		return true
	default:
		return false
	}
}

// IsEmpty reports whether e is nil or an empty block.
func IsEmpty(e Expr) bool {
	if e == nil {
		return true
	}
	b, ok := e.(*BlockExpr)
	return ok && len(b.Stmts) == 0
}

// Simplify strips nested single-statement blocks.
func Simplify(e Expr) Expr {
	for {
		b, ok := e.(*BlockExpr)
		if !ok || len(b.Stmts) != 1 {
			return e
		}
		e = b.Stmts[0]
	}
}
