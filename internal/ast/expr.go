package ast

import (
	"github.com/kolkov/stackgen/internal/types"
)

// -----------------------------------------------------------------------------
// Literals
// -----------------------------------------------------------------------------

// ConstExpr is a literal. Its value is in Info().Const.
type ConstExpr struct {
	BaseExpr
}

// TemplateExpr is a string template; literal parts are ConstExprs.
type TemplateExpr struct {
	BaseExpr
	Parts []Expr
}

// TupleExpr builds a tuple; zero elements yields the Unit sentinel.
type TupleExpr struct {
	BaseExpr
	Elems []Expr
}

// -----------------------------------------------------------------------------
// References
// -----------------------------------------------------------------------------

// NameExpr refers to a local variable or parameter.
type NameExpr struct {
	BaseExpr
	Name string
	Var  *Var
}

// ThisKind tells which implicit receiver a ThisExpr denotes.
type ThisKind uint8

const (
	ThisInstance ThisKind = iota // the enclosing class instance
	ThisReceiver                 // the enclosing extension receiver
)

// ThisExpr is the implicit receiver.
type ThisExpr struct {
	BaseExpr
	Kind ThisKind
}

// ReceiverExpr stands for the receiver threaded into a selector, such as the
// qualifier of a safe call.
type ReceiverExpr struct {
	BaseExpr
}

// PropExpr reads or writes a field or property. Receiver is nil for static
// targets and for members of the implicit this.
type PropExpr struct {
	BaseExpr
	Receiver Expr
	Field    *FieldRef
	// Backing reads the backing field directly, bypassing accessors.
	Backing bool
}

// IndexExpr is an index operator. Get and Set are nil for native arrays.
type IndexExpr struct {
	BaseExpr
	X     Expr
	Index []Expr
	Get   *Callable
	Set   *Callable
}

// -----------------------------------------------------------------------------
// Calls
// -----------------------------------------------------------------------------

// CallExpr is a resolved call, including operators bound to callables and
// constructor calls.
type CallExpr struct {
	BaseExpr
	Call ResolvedCall
}

// InvokeExpr calls a function-typed value.
type InvokeExpr struct {
	BaseExpr
	Fn   Expr
	Args []Expr
}

// SafeExpr is Receiver?.Selector. Selector refers to the receiver through a
// ReceiverExpr.
type SafeExpr struct {
	BaseExpr
	Receiver Expr
	Selector Expr
}

// -----------------------------------------------------------------------------
// Operators
// -----------------------------------------------------------------------------

// CompareOp is a comparison or equality operator.
type CompareOp uint8

const (
	OpLess CompareOp = iota
	OpLessEq
	OpGreater
	OpGreaterEq
	OpEq
	OpNotEq
	OpIdentity
	OpNotIdentity
)

var compareOpNames = [...]string{"<", "<=", ">", ">=", "==", "!=", "===", "!=="}

// String returns the operator spelling.
func (op CompareOp) String() string {
	if int(op) < len(compareOpNames) {
		return compareOpNames[op]
	}
	return "?"
}

// IsEquality reports whether op is == or !=.
func (op CompareOp) IsEquality() bool { return op == OpEq || op == OpNotEq }

// IsIdentity reports whether op is === or !==.
func (op CompareOp) IsIdentity() bool { return op == OpIdentity || op == OpNotIdentity }

// CompareExpr compares two operands; its type is Boolean.
type CompareExpr struct {
	BaseExpr
	Op          CompareOp
	Left, Right Expr
	// CompareTo is used for ordering comparisons of non-primitive operands.
	CompareTo *Callable
}

// LogicalExpr is a short-circuit && or ||.
type LogicalExpr struct {
	BaseExpr
	And         bool
	Left, Right Expr
}

// NotExpr negates a Boolean.
type NotExpr struct {
	BaseExpr
	X Expr
}

// ElvisExpr is Left ?: Right.
type ElvisExpr struct {
	BaseExpr
	Left, Right Expr
}

// RangeExpr is lo..hi, or hi downTo lo when Reversed.
type RangeExpr struct {
	BaseExpr
	From, To Expr
	Reversed bool
}

// InExpr tests membership. Contains is nil for native integer intervals.
type InExpr struct {
	BaseExpr
	Negated  bool
	X        Expr
	Range    Expr
	Contains *Callable
}

// IsExpr matches X against a pattern.
type IsExpr struct {
	BaseExpr
	X       Expr
	Pattern Pattern
}

// CastExpr is "X as Target" or, when Safe, "X as? Target".
type CastExpr struct {
	BaseExpr
	X      Expr
	Target types.Type
	Safe   bool
}

// NotNullExpr is X!!.
type NotNullExpr struct {
	BaseExpr
	X Expr
}

// -----------------------------------------------------------------------------
// Stores
// -----------------------------------------------------------------------------

// VarDecl declares a local variable in the enclosing block.
type VarDecl struct {
	BaseExpr
	Var  *Var
	Init Expr
}

// AssignExpr is Target = Value.
type AssignExpr struct {
	BaseExpr
	Target Expr
	Value  Expr
}

// AugAssignExpr is Target op= Value. When Op's name ends in "Assign" the
// operator mutates Target in place; otherwise the result is stored back.
type AugAssignExpr struct {
	BaseExpr
	Op     *Callable
	Target Expr
	Value  Expr
}

// IncDecExpr is ++/-- in prefix or postfix position. Op is nil for
// primitive numeric targets.
type IncDecExpr struct {
	BaseExpr
	Target Expr
	Prefix bool
	Delta  int
	Op     *Callable
}

// -----------------------------------------------------------------------------
// Allocation
// -----------------------------------------------------------------------------

// NewArrayExpr allocates a native array of Info().Type, optionally filled by
// an initializer function of the index.
type NewArrayExpr struct {
	BaseExpr
	Size Expr
	Init Expr
}

// LambdaExpr is a function literal.
type LambdaExpr struct {
	BaseExpr
	Fun      *FunDecl
	Captures *Captures
}

// ObjectExpr is an object literal: an instance of an anonymous class.
type ObjectExpr struct {
	BaseExpr
	Class     *ClassDecl
	SuperArgs []Expr
	Captures  *Captures
}

// LocalFunExpr declares a named local function stored in Var.
type LocalFunExpr struct {
	BaseExpr
	Var    *Var
	Lambda *LambdaExpr
}

// Compile-time interface checks.
var (
	_ Expr = (*ConstExpr)(nil)
	_ Expr = (*TemplateExpr)(nil)
	_ Expr = (*TupleExpr)(nil)
	_ Expr = (*NameExpr)(nil)
	_ Expr = (*ThisExpr)(nil)
	_ Expr = (*ReceiverExpr)(nil)
	_ Expr = (*PropExpr)(nil)
	_ Expr = (*IndexExpr)(nil)
	_ Expr = (*CallExpr)(nil)
	_ Expr = (*InvokeExpr)(nil)
	_ Expr = (*SafeExpr)(nil)
	_ Expr = (*CompareExpr)(nil)
	_ Expr = (*LogicalExpr)(nil)
	_ Expr = (*NotExpr)(nil)
	_ Expr = (*ElvisExpr)(nil)
	_ Expr = (*RangeExpr)(nil)
	_ Expr = (*InExpr)(nil)
	_ Expr = (*IsExpr)(nil)
	_ Expr = (*CastExpr)(nil)
	_ Expr = (*NotNullExpr)(nil)
	_ Expr = (*VarDecl)(nil)
	_ Expr = (*AssignExpr)(nil)
	_ Expr = (*AugAssignExpr)(nil)
	_ Expr = (*IncDecExpr)(nil)
	_ Expr = (*NewArrayExpr)(nil)
	_ Expr = (*LambdaExpr)(nil)
	_ Expr = (*ObjectExpr)(nil)
	_ Expr = (*LocalFunExpr)(nil)
)
