package compiler

import (
	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

const anyClass = types.AnyName

func isNullLiteral(e ast.Expr) bool {
	c := e.Info().Const
	return c != nil && c.Value == nil
}

// compare lowers a comparison. Primitive operands and identity tests stay
// pending so a consumer can branch on them directly; equality of references
// goes through equals with the null checks around it.
func (g *Generator) compare(n *ast.CompareExpr) StackValue {
	lt, rt := ast.TypeOf(n.Left), ast.TypeOf(n.Right)
	op := n.Op
	negated := op == ast.OpNotEq || op == ast.OpNotIdentity

	if op.IsEquality() || op.IsIdentity() {
		switch {
		case isNullLiteral(n.Right):
			return g.nullTest(n.Left, negated)
		case isNullLiteral(n.Left):
			return g.nullTest(n.Right, negated)
		}
	}

	if lt.IsPrimitive() && rt.IsPrimitive() {
		ot := promote(lt, rt)
		g.genTo(n.Left, ot)
		g.genTo(n.Right, ot)
		return Compare(op, ot)
	}

	switch {
	case op.IsIdentity():
		g.genTo(n.Left, receiverType(lt))
		g.genTo(n.Right, receiverType(rt))
		return Compare(op, types.NullableAny)

	case op.IsEquality():
		g.genTo(n.Left, receiverType(lt))
		g.genTo(n.Right, types.NullableAny)
		g.equalsOnStack(lt, rt)
		if negated {
			return Not(OnStack(types.Boolean))
		}
		return OnStack(types.Boolean)
	}

	if n.CompareTo == nil {
		g.fail(n, "no compareTo for %s %s %s", lt, op, rt)
	}
	g.callOperands(n.CompareTo, g.exprOperand(n.Left), g.exprOperand(n.Right)).Put(g.e, types.Int)
	return CompareZero(op)
}

// nullTest compares x against the null literal.
func (g *Generator) nullTest(x ast.Expr, negated bool) StackValue {
	xt := ast.TypeOf(x)
	if !xt.IsReference() {
		g.genTo(x, types.Void)
		return Constant(negated, types.Boolean)
	}
	g.genTo(x, xt)
	if negated {
		return CompareNull(ast.OpNotEq)
	}
	return CompareNull(ast.OpEq)
}

// equalsOnStack consumes the two operands on the stack and pushes whether
// they are equal. A null left operand equals only a null right operand and
// is never the receiver of equals.
func (g *Generator) equalsOnStack(lt, rt types.Type) {
	leftNullable := lt.IsReference() && lt.Nullable
	rightNullable := rt.IsReference() && rt.Nullable
	if !leftNullable {
		g.e.Call(InvokeVirtual, anyClass, "equals", 1, types.Boolean)
		return
	}
	leftNull, end := g.e.NewLabel(), g.e.NewLabel()
	g.e.Op(Swap)
	g.e.Dup(1)
	g.e.Jump(IfNull, leftNull)
	g.e.Op(Swap)
	g.e.Call(InvokeVirtual, anyClass, "equals", 1, types.Boolean)
	g.e.Jump(Jump, end)

	g.e.Mark(leftNull)
	g.e.Op(Pop)
	if rightNullable {
		bothNull := g.e.NewLabel()
		g.e.Jump(IfNull, bothNull)
		g.e.Const(false, types.Boolean)
		g.e.Jump(Jump, end)
		g.e.Mark(bothNull)
		g.e.Const(true, types.Boolean)
	} else {
		g.e.Op(Pop)
		g.e.Const(false, types.Boolean)
	}
	g.e.Mark(end)
}

// logical lowers && and || as a condition that short-circuits through
// jumps. A constant left operand decides statically.
func (g *Generator) logical(n *ast.LogicalExpr) StackValue {
	if c := n.Left.Info().Const; c != nil {
		if b, ok := c.Value.(bool); ok {
			if b == n.And {
				return g.gen(n.Right)
			}
			return Constant(b, types.Boolean)
		}
	}
	return Branch(func(l Label, jumpIfFalse bool) {
		// And jumps to l when either side is false; Or when either is true.
		if n.And == jumpIfFalse {
			g.cond(n.Left, l, jumpIfFalse)
			g.cond(n.Right, l, jumpIfFalse)
			return
		}
		skip := g.e.NewLabel()
		g.cond(n.Left, skip, !jumpIfFalse)
		g.cond(n.Right, l, jumpIfFalse)
		g.e.Mark(skip)
	})
}

// in lowers a membership test. Literal intervals are tested inline.
func (g *Generator) in(n *ast.InExpr) StackValue {
	var v StackValue
	if r, ok := ast.Simplify(n.Range).(*ast.RangeExpr); ok && n.Contains == nil {
		mark := g.frame.Mark()
		subj := g.subject(n.X)
		v = g.rangeTest(subj, r)
		g.frame.Rollback(mark)
	} else {
		if n.Contains == nil {
			g.fail(n, "membership test without contains")
		}
		v = g.callOperands(n.Contains, g.exprOperand(n.Range), g.exprOperand(n.X))
	}
	if n.Negated {
		return Not(v)
	}
	return v
}

// rangeTest pushes whether subj lies in the interval r. The bounds are
// evaluated in source order; a subject that is not statically numeric
// is first tested for being a boxed Int.
func (g *Generator) rangeTest(subj StackValue, r *ast.RangeExpr) StackValue {
	st := subj.Type
	ot := types.Int
	if st.IsPrimitive() && st.IsNumeric() {
		ot = promote(st, types.Int)
	}

	mark := g.frame.Mark()
	bound := func(e ast.Expr) StackValue {
		if c := e.Info().Const; c != nil {
			return Constant(c.Value, ast.TypeOf(e))
		}
		slot := g.frame.EnterTemp(ot)
		g.genTo(e, ot)
		g.e.Store(ot, slot)
		return Local(slot, ot)
	}
	from := bound(r.From)
	to := bound(r.To)
	lo, hi := from, to
	if r.Reversed {
		lo, hi = to, from
	}

	notInt, end := g.e.NewLabel(), g.e.NewLabel()
	if !st.IsPrimitive() {
		subj.Put(g.e, types.NullableAny)
		g.e.TypedOp(InstanceOf, types.Int.Boxed())
		g.e.Jump(IfEq, notInt)
	}
	g.boundCheck(subj, lo, ast.OpGreaterEq, ot)
	g.boundCheck(subj, hi, ast.OpLessEq, ot)
	g.e.TypedOp(And, types.Boolean)
	if !st.IsPrimitive() {
		g.e.Jump(Jump, end)
		g.e.Mark(notInt)
		g.e.Const(false, types.Boolean)
	}
	g.e.Mark(end)
	g.frame.Rollback(mark)
	return OnStack(types.Boolean)
}

// boundCheck pushes subj op bound: a true sentinel that is replaced by
// false when the comparison fails.
func (g *Generator) boundCheck(subj, bound StackValue, op ast.CompareOp, ot types.Type) {
	ok := g.e.NewLabel()
	g.e.Const(true, types.Boolean)
	subj.Put(g.e, ot)
	bound.Put(g.e, ot)
	Compare(op, ot).CondJump(g.e, ok, false)
	g.e.Op(Pop)
	g.e.Const(false, types.Boolean)
	g.e.Mark(ok)
}

// subject evaluates x once into a value that can be read repeatedly:
// constants and plain locals as they are, anything else into a temporary
// the caller releases.
func (g *Generator) subject(x ast.Expr) StackValue {
	t := ast.TypeOf(x)
	if c := x.Info().Const; c != nil {
		return Constant(c.Value, t)
	}
	if n, ok := x.(*ast.NameExpr); ok && n.Var != nil && !n.Var.Shared {
		if slot, ok := g.frame.Slot(n.Var); ok {
			return Local(slot, t)
		}
	}
	slot := g.frame.EnterTemp(t)
	g.genTo(x, t)
	g.e.Store(t, slot)
	return Local(slot, t)
}
