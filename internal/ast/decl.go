package ast

import (
	"github.com/kolkov/stackgen/internal/token"
	"github.com/kolkov/stackgen/internal/types"
)

// Unit is one compilation unit: top-level functions and globals live in a
// facade class named after the unit.
type Unit struct {
	StartPos  token.Position
	Name      string
	Classes   []*ClassDecl
	Functions []*FunDecl
	Globals   []*GlobalDecl
}

func (u *Unit) Pos() token.Position { return u.StartPos }

// ClassDecl declares a class or interface. Fields form the primary
// constructor's parameter list, after the superclass's own fields.
type ClassDecl struct {
	StartPos   token.Position
	Name       string
	Super      *ClassDecl // nil for classes extending Any or a library class
	SuperName  string
	Interfaces []string
	Interface  bool
	Fields     []*FieldDecl
	Properties []*PropertyDecl
	Methods    []*FunDecl

	// Synthetic is set for classes created for object literals.
	Synthetic bool
}

func (c *ClassDecl) Pos() token.Position { return c.StartPos }

// CtorFields returns the primary constructor's fields, inherited ones first.
func (c *ClassDecl) CtorFields() []*FieldDecl {
	var fields []*FieldDecl
	if c.Super != nil {
		fields = append(fields, c.Super.CtorFields()...)
	}
	return append(fields, c.Fields...)
}

// FieldDecl is a backing field.
type FieldDecl struct {
	StartPos token.Position
	Name     string
	Type     types.Type
	Ref      *FieldRef
}

func (f *FieldDecl) Pos() token.Position { return f.StartPos }

// PropertyDecl is a property with accessor functions and a backing field.
type PropertyDecl struct {
	StartPos token.Position
	Name     string
	Type     types.Type
	Getter   *FunDecl
	Setter   *FunDecl
	Ref      *FieldRef
}

func (p *PropertyDecl) Pos() token.Position { return p.StartPos }

// GlobalDecl is a top-level property stored in a static field of the unit class.
type GlobalDecl struct {
	StartPos token.Position
	Name     string
	Type     types.Type
	Init     Expr
	Ref      *FieldRef
}

func (g *GlobalDecl) Pos() token.Position { return g.StartPos }

// FunDecl declares a function: top-level, method, accessor, lambda body or
// local function.
type FunDecl struct {
	StartPos token.Position
	Name     string
	Owner    string      // declaring class, or the unit name for top-level functions
	Receiver *types.Type // extension receiver, passed as the first argument
	Params   []*Param
	Return   types.Type
	Body     Expr // nil for interface methods
	Static   bool
	Callable *Callable

	// Class is the declaring class for methods.
	Class *ClassDecl
	// Outer is the lexically enclosing function of a lambda or local function.
	Outer *FunDecl
}

func (f *FunDecl) Pos() token.Position { return f.StartPos }

// HasDefaults reports whether any parameter has a default value.
func (f *FunDecl) HasDefaults() bool {
	for _, p := range f.Params {
		if p.Default != nil {
			return true
		}
	}
	return false
}

// Param is a function parameter.
type Param struct {
	Var     *Var
	Default Expr
	Vararg  bool
}

// VarKind classifies a variable.
type VarKind uint8

const (
	VarLocal VarKind = iota
	VarParam
	VarLoop
	VarCatch
	VarPattern
	VarFunction // local named function
)

// Var is the identity of a local variable. Every NameExpr referring to the
// same declaration holds the same *Var.
type Var struct {
	Name    string
	Type    types.Type
	Kind    VarKind
	Mutable bool
	Pos     token.Position

	// Fun is the function whose frame holds the variable.
	Fun *FunDecl

	// Captured is set when a nested lambda or object reads the variable.
	Captured bool
	// Assigned is set when the variable is stored after its declaration.
	Assigned bool
	// Shared is set when the variable lives in a heap cell so closures and
	// the declaring function observe each other's stores.
	Shared bool
}

// FieldRef describes a field or property access target.
type FieldRef struct {
	Owner  string
	Name   string
	Type   types.Type
	Static bool
	Getter *Callable
	Setter *Callable
	// Interface is set when accessors dispatch through an interface.
	Interface bool
}

// CallKind is the dispatch kind of a callable.
type CallKind uint8

const (
	CallStatic CallKind = iota
	CallVirtual
	CallInterface
	CallConstructor
	CallSpecial
)

// String returns the dispatch name.
func (k CallKind) String() string {
	switch k {
	case CallStatic:
		return "static"
	case CallVirtual:
		return "virtual"
	case CallInterface:
		return "interface"
	case CallConstructor:
		return "constructor"
	case CallSpecial:
		return "special"
	default:
		return "unknown"
	}
}

// ParamInfo describes one parameter of a callable's signature.
type ParamInfo struct {
	Name       string
	Type       types.Type
	HasDefault bool
	Vararg     bool
}

// Callable is a call target with its signature already substituted.
type Callable struct {
	Owner    string
	Name     string
	Kind     CallKind
	Receiver *types.Type // extension receiver type for static extension functions
	Params   []ParamInfo
	Return   types.Type

	// Intrinsic names a specialized expansion; empty for regular calls.
	Intrinsic string
	// Decl is the declaration for callables defined in the unit.
	Decl *FunDecl
}

// FullName returns "Owner.Name".
func (c *Callable) FullName() string {
	return c.Owner + "." + c.Name
}

// ArgKind classifies the binding of one parameter at a call site.
type ArgKind uint8

const (
	ArgExpr    ArgKind = iota // a plain argument expression
	ArgDefault                // the parameter's default value applies
	ArgVararg                 // zero or more elements packed into an array
)

// Arg binds one parameter.
type Arg struct {
	Kind   ArgKind
	Expr   Expr   // ArgExpr
	Elems  []Expr // ArgVararg
	Spread []bool // ArgVararg: Elems[i] is an array spread into the varargs
}

// ResolvedCall is a call bound to a callable. Receiver is nil for static
// calls and for instance calls on the implicit this.
type ResolvedCall struct {
	Callee   *Callable
	Receiver Expr
	Args     []Arg
}

// Captures is the capture set of a lambda or object literal, in the
// order the synthesized constructor takes them.
type Captures struct {
	This         bool
	ThisClass    string
	Receiver     bool
	ReceiverType types.Type
	Vars         []*Var
}

// Empty reports whether the literal captures nothing.
func (c *Captures) Empty() bool {
	return c == nil || (!c.This && !c.Receiver && len(c.Vars) == 0)
}

// Has reports whether v is in the capture set.
func (c *Captures) Has(v *Var) bool {
	if c == nil {
		return false
	}
	for _, x := range c.Vars {
		if x == v {
			return true
		}
	}
	return false
}
