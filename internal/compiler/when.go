package compiler

import (
	"strconv"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

const noPatternMatched = "NoPatternMatchedException"

// when lowers a multi-way conditional. The subject is evaluated once.
// Entries are tested in order and the conditions of one entry are
// alternatives. A when without an else entry raises
// NoPatternMatchedException when nothing matched, whether or not its value
// is used.
func (g *Generator) when(n *ast.WhenExpr, t types.Type) {
	g.openScope()
	var subj StackValue
	hasSubject := n.Subject != nil
	if hasSubject {
		subj = g.subject(n.Subject)
	}
	end := g.e.NewLabel()
	exhaustive := false
	for _, entry := range n.Entries {
		g.openScope()
		var next Label
		if entry.Else {
			exhaustive = true
		} else {
			next = g.e.NewLabel()
			body := g.e.NewLabel()
			last := len(entry.Conditions) - 1
			for i, p := range entry.Conditions {
				if i == last {
					g.match(subj, p, next, hasSubject)
					break
				}
				alt := g.e.NewLabel()
				g.match(subj, p, alt, hasSubject)
				g.e.Jump(Jump, body)
				g.e.Mark(alt)
			}
			g.e.Mark(body)
		}
		g.line(entry)
		g.genTo(entry.Body, t)
		g.closeScope()
		g.jumpTo(end)
		if entry.Else {
			break
		}
		g.e.Mark(next)
	}
	if !exhaustive {
		g.e.Throw(noPatternMatched, "no branch matched")
	}
	g.e.Mark(end)
	g.closeScope()
}

// is lowers an is-expression. A test against a non-null type is a single
// instance check; other patterns become a condition over a subject.
func (g *Generator) is(n *ast.IsExpr) StackValue {
	if tp, ok := n.Pattern.(*ast.TypePattern); ok && !tp.Type.Nullable {
		v := g.typeTest(g.push(n.X, ast.TypeOf(n.X)), tp.Type)
		if tp.Negated {
			return Not(v)
		}
		return v
	}
	return Branch(func(l Label, jumpIfFalse bool) {
		subj := g.subject(n.X)
		if jumpIfFalse {
			g.match(subj, n.Pattern, l, true)
			return
		}
		fail := g.e.NewLabel()
		g.match(subj, n.Pattern, fail, true)
		g.e.Jump(Jump, l)
		g.e.Mark(fail)
	})
}

// match falls through when subj matches p and jumps to fail otherwise,
// leaving the stack as it found it on both paths.
func (g *Generator) match(subj StackValue, p ast.Pattern, fail Label, hasSubject bool) {
	switch p := p.(type) {
	case *ast.TuplePattern:
		if !p.Negated {
			g.matchTuple(subj, p, fail)
			return
		}
		mismatch := g.e.NewLabel()
		g.matchTuple(subj, p, mismatch)
		g.e.Jump(Jump, fail)
		g.e.Mark(mismatch)

	case *ast.BindPattern:
		v := g.declare(p.Var)
		v.Store(g.e, func(t types.Type) { subj.Put(g.e, t) })
		switch {
		case p.Guard != nil:
			g.cond(p.Guard, fail, !p.Negated)
		case p.Negated:
			g.e.Jump(Jump, fail)
		}

	default:
		g.patternCond(subj, p, hasSubject).CondJump(g.e, fail, !p.IsNegated())
	}
}

// patternCond returns the test of a simple pattern, ignoring negation.
func (g *Generator) patternCond(subj StackValue, p ast.Pattern, hasSubject bool) StackValue {
	if _, ok := p.(*ast.WildcardPattern); ok {
		return Constant(true, types.Boolean)
	}
	if x, ok := p.(*ast.ExprPattern); ok && !hasSubject {
		return g.gen(x.X)
	}
	if !hasSubject {
		g.fail(p, "%T needs a subject", p)
	}
	switch p := p.(type) {
	case *ast.TypePattern:
		return g.typePattern(subj, p.Type)
	case *ast.ExprPattern:
		return g.valueEquals(subj, p.X)
	case *ast.RangePattern:
		if r, ok := ast.Simplify(p.Range).(*ast.RangeExpr); ok && p.Contains == nil {
			return g.rangeTest(subj, r)
		}
		if p.Contains == nil {
			g.fail(p, "range pattern without contains")
		}
		return g.callOperands(p.Contains, g.exprOperand(p.Range), valueOperand(subj))
	}
	g.fail(p, "cannot lower pattern %T", p)
	return None()
}

// typeTest tests the reference on the stack against a non-null type.
func (g *Generator) typeTest(v StackValue, t types.Type) StackValue {
	st := v.Type
	if st.IsPrimitive() {
		v.Put(g.e, types.Void)
		return Constant(g.e.hierarchy.IsSubtype(st.Boxed(), t.NonNull()), types.Boolean)
	}
	v.Put(g.e, types.NullableAny)
	g.e.TypedOp(InstanceOf, receiverType(t.NonNull()))
	return OnStack(types.Boolean)
}

// typePattern tests subj against t; null satisfies a nullable t.
func (g *Generator) typePattern(subj StackValue, t types.Type) StackValue {
	if !t.Nullable || !subj.Type.IsReference() {
		return g.typeTest(subj, t)
	}
	isNull, end := g.e.NewLabel(), g.e.NewLabel()
	subj.Put(g.e, types.NullableAny)
	g.e.Dup(1)
	g.e.Jump(IfNull, isNull)
	g.e.TypedOp(InstanceOf, receiverType(t.NonNull()))
	g.e.Jump(Jump, end)
	g.e.Mark(isNull)
	g.e.Op(Pop)
	g.e.Const(true, types.Boolean)
	g.e.Mark(end)
	return OnStack(types.Boolean)
}

// valueEquals compares subj with x under value equality.
func (g *Generator) valueEquals(subj StackValue, x ast.Expr) StackValue {
	st, xt := subj.Type, ast.TypeOf(x)
	switch {
	case isNullLiteral(x):
		if !st.IsReference() {
			return Constant(false, types.Boolean)
		}
		subj.Put(g.e, st)
		return CompareNull(ast.OpEq)
	case st.IsPrimitive() && xt.IsPrimitive():
		ot := promote(st, xt)
		subj.Put(g.e, ot)
		g.genTo(x, ot)
		return Compare(ast.OpEq, ot)
	}
	subj.Put(g.e, receiverType(st))
	g.genTo(x, types.NullableAny)
	g.equalsOnStack(st, xt)
	return OnStack(types.Boolean)
}

// matchTuple checks the arity class of subj, then matches each component
// in order, failing on the first mismatch.
func (g *Generator) matchTuple(subj StackValue, p *ast.TuplePattern, fail Label) {
	cls := types.TupleClass(len(p.Elems))
	ct := types.Class(cls)
	ok := g.e.NewLabel()
	subj.Put(g.e, types.NullableAny)
	g.e.Dup(1)
	g.e.TypedOp(InstanceOf, ct)
	g.e.Jump(IfNe, ok)
	g.e.Op(Pop)
	g.e.Jump(Jump, fail)
	g.e.Mark(ok)
	g.e.TypedOp(CheckCast, ct)
	tmp := g.frame.EnterTemp(ct)
	g.e.Store(ct, tmp)
	for i, elem := range p.Elems {
		comp := Composed(FieldValue(cls, tupleField(i), types.NullableAny, false), Local(tmp, ct))
		g.match(comp, elem, fail, true)
	}
}

// tupleField names component i of a tuple class.
func tupleField(i int) string {
	return "_" + strconv.Itoa(i+1)
}
