package compiler

import (
	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

// Operand is an argument of a call or intrinsic that is lowered only when
// the expansion asks for it, coerced to the type it needs.
type Operand struct {
	Type  types.Type
	expr  ast.Expr
	value StackValue
}

func (g *Generator) exprOperand(e ast.Expr) Operand {
	return Operand{Type: ast.TypeOf(e), expr: e}
}

// valueOperand wraps a value whose receivers are already on the stack.
func valueOperand(v StackValue) Operand {
	return Operand{Type: v.Type, value: v}
}

// Put pushes the operand coerced to t.
func (o Operand) Put(g *Generator, t types.Type) {
	if o.expr != nil {
		g.genTo(o.expr, t)
		return
	}
	o.value.Put(g.e, t)
}

// Const returns the folded value of the operand, if any.
func (o Operand) Const() (any, bool) {
	if o.expr != nil {
		if c := o.expr.Info().Const; c != nil {
			return c.Value, true
		}
		return nil, false
	}
	if o.value.Kind == ValueConstant {
		return o.value.Const, true
	}
	return nil, false
}

const (
	spreadBuilder = "SpreadBuilder"
	defaultSuffix = "$default"
)

// call lowers a resolved call: an intrinsic expansion, a constructor, a
// call through the default-argument bridge or a plain invocation.
func (g *Generator) call(n *ast.CallExpr) StackValue {
	rc := n.Call
	c := rc.Callee
	if plainArgs(rc.Args) {
		if exp, ok := g.u.intrinsics.Lookup(c); ok {
			var ops []Operand
			if rc.Receiver != nil {
				ops = append(ops, g.exprOperand(rc.Receiver))
			}
			for _, a := range rc.Args {
				ops = append(ops, g.exprOperand(a.Expr))
			}
			return exp(g, c, ops, c.Return)
		}
	}

	if c.Kind == ast.CallConstructor {
		g.e.New(c.Owner)
		g.e.Dup(1)
		g.args(c, rc.Args)
		g.e.Invoke(c)
		return OnStack(types.Class(c.Owner))
	}

	if hasDefaults(rc.Args) {
		return g.callDefault(n)
	}

	g.receiver(c, rc.Receiver)
	g.args(c, rc.Args)
	return g.result(c)
}

func plainArgs(args []ast.Arg) bool {
	for _, a := range args {
		if a.Kind != ast.ArgExpr {
			return false
		}
	}
	return true
}

func hasDefaults(args []ast.Arg) bool {
	for _, a := range args {
		if a.Kind == ast.ArgDefault {
			return true
		}
	}
	return false
}

// receiver pushes the receiver of c, if it takes one.
func (g *Generator) receiver(c *ast.Callable, recv ast.Expr) {
	if recv == nil {
		return
	}
	if c.Kind == ast.CallStatic && c.Receiver == nil {
		g.genTo(recv, types.Void)
		return
	}
	g.genTo(recv, receiverTarget(c, ast.TypeOf(recv)))
}

// receiverTarget is the type a receiver of type t is passed as to c.
func receiverTarget(c *ast.Callable, t types.Type) types.Type {
	if c.Kind == ast.CallStatic && c.Receiver != nil {
		return *c.Receiver
	}
	return receiverType(t).NonNull()
}

// args pushes one value per parameter of c.
func (g *Generator) args(c *ast.Callable, args []ast.Arg) {
	for i, a := range args {
		p := c.Params[i]
		switch a.Kind {
		case ast.ArgExpr:
			g.genTo(a.Expr, p.Type)
		case ast.ArgDefault:
			g.e.Const(zeroValue(p.Type), p.Type)
		case ast.ArgVararg:
			g.varargs(a, p.Type)
		}
	}
}

// result emits the invocation of c and describes its result.
func (g *Generator) result(c *ast.Callable) StackValue {
	g.e.Invoke(c)
	return g.returned(ReturnType(c))
}

func (g *Generator) returned(rt types.Type) StackValue {
	switch {
	case rt.IsVoid():
		return None()
	case rt.IsNothing() && !rt.Nullable:
		g.e.Op(Throw)
		return Nothing()
	}
	return OnStack(rt)
}

// callDefault calls the bridge that fills in omitted arguments. Bit i of
// the trailing mask is set when parameter i takes its default.
func (g *Generator) callDefault(n *ast.CallExpr) StackValue {
	rc := n.Call
	c := rc.Callee
	if c.Decl == nil {
		g.fail(n, "%s has no default values", c.FullName())
	}
	if len(c.Params) > 31 {
		g.fail(n, "too many parameters with defaults in %s", c.FullName())
	}
	argc := len(c.Params) + 1
	if rc.Receiver != nil && !(c.Kind == ast.CallStatic && c.Receiver == nil) {
		argc++
	}
	g.receiver(c, rc.Receiver)
	g.args(c, rc.Args)
	mask := int64(0)
	for i, a := range rc.Args {
		if a.Kind == ast.ArgDefault {
			mask |= 1 << i
		}
	}
	g.e.Const(mask, types.Int)
	g.e.Call(InvokeStatic, c.Owner, c.Name+defaultSuffix, argc, ReturnType(c))
	return g.returned(ReturnType(c))
}

// varargs packs the elements of a vararg parameter into an array of at.
// Spread elements are copied through a SpreadBuilder.
func (g *Generator) varargs(a ast.Arg, at types.Type) {
	elem := *at.Elem
	spread := false
	for _, s := range a.Spread {
		spread = spread || s
	}
	if !spread {
		g.e.Const(int64(len(a.Elems)), types.Int)
		g.e.TypedOp(NewArray, at)
		for i, x := range a.Elems {
			g.e.Dup(1)
			g.e.Const(int64(i), types.Int)
			g.genTo(x, elem)
			g.e.TypedOp(ArrayStore, elem)
		}
		return
	}
	g.e.New(spreadBuilder)
	g.e.Dup(1)
	g.e.Const(int64(len(a.Elems)), types.Int)
	g.e.Call(InvokeSpecial, spreadBuilder, "<init>", 1, types.Void)
	for i, x := range a.Elems {
		g.e.Dup(1)
		if a.Spread[i] {
			g.genTo(x, types.NullableAny)
			g.e.Call(InvokeVirtual, spreadBuilder, "addSpread", 1, types.Void)
		} else {
			g.genTo(x, types.NullableAny)
			g.e.Call(InvokeVirtual, spreadBuilder, "add", 1, types.Void)
		}
	}
	g.e.Const(at.String(), types.String)
	g.e.Call(InvokeVirtual, spreadBuilder, "toArray", 1, at)
}

// callOperands calls c with operands that are already lowered or lazily
// lowered: the receiver first unless c is a plain static function.
func (g *Generator) callOperands(c *ast.Callable, ops ...Operand) StackValue {
	if exp, ok := g.u.intrinsics.Lookup(c); ok {
		return exp(g, c, ops, c.Return)
	}
	i := 0
	if c.Kind != ast.CallStatic || c.Receiver != nil {
		ops[0].Put(g, receiverTarget(c, ops[0].Type))
		i = 1
	}
	for j, p := range c.Params {
		if i+j >= len(ops) {
			g.e.Const(zeroValue(p.Type), p.Type)
			continue
		}
		ops[i+j].Put(g, p.Type)
	}
	return g.result(c)
}

// invoke calls a function value through its FunctionN interface.
func (g *Generator) invoke(n *ast.InvokeExpr) StackValue {
	ft := ast.TypeOf(n.Fn)
	g.genTo(n.Fn, ft)
	for _, a := range n.Args {
		g.genTo(a, types.NullableAny)
	}
	g.e.Call(InvokeInterface, types.FunctionClass(len(n.Args)), "invoke", len(n.Args), types.NullableAny)
	rt := ft.ReturnType()
	if rt.IsNothing() && !rt.Nullable {
		g.e.Op(Throw)
		return Nothing()
	}
	return OnStack(types.NullableAny)
}
