package compiler

import (
	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

// block lowers the statements of b in a scope of their own; the last one
// provides the value.
func (g *Generator) block(b *ast.BlockExpr, t types.Type) {
	if len(b.Stmts) == 0 {
		None().Put(g.e, t)
		return
	}
	g.openScope()
	last := len(b.Stmts) - 1
	for i, s := range b.Stmts {
		if i < last {
			g.statement(s, types.Void)
			continue
		}
		switch s.(type) {
		case *ast.VarDecl, *ast.LocalFunExpr:
			g.statement(s, types.Void)
			None().Put(g.e, t)
		default:
			g.statement(s, t)
		}
	}
	g.closeScope()
}

func (g *Generator) scoped(e ast.Expr, t types.Type) {
	g.openScope()
	g.genTo(e, t)
	g.closeScope()
}

// ifExpr lowers if/else. A constant condition lowers only the branch taken.
func (g *Generator) ifExpr(n *ast.IfExpr, t types.Type) {
	if c := n.Cond.Info().Const; c != nil {
		if b, ok := c.Value.(bool); ok {
			switch {
			case b:
				g.scoped(n.Then, t)
			case n.Else != nil:
				g.scoped(n.Else, t)
			default:
				None().Put(g.e, t)
			}
			return
		}
	}
	if ast.IsEmpty(n.Then) && ast.IsEmpty(n.Else) {
		g.gen(n.Cond).Put(g.e, types.Void)
		None().Put(g.e, t)
		return
	}
	elseL, end := g.e.NewLabel(), g.e.NewLabel()
	g.cond(n.Cond, elseL, true)
	if n.Else == nil {
		g.scoped(n.Then, types.Void)
		g.e.Mark(elseL)
		None().Put(g.e, t)
		return
	}
	g.scoped(n.Then, t)
	g.jumpTo(end)
	g.e.Mark(elseL)
	g.scoped(n.Else, t)
	g.e.Mark(end)
}

// -----------------------------------------------------------------------------
// Loops
// -----------------------------------------------------------------------------

func (g *Generator) while(n *ast.WhileExpr) {
	cond, body, end := g.e.NewLabel(), g.e.NewLabel(), g.e.NewLabel()
	g.e.Jump(Jump, cond)
	g.e.Mark(body)
	f := g.blocks.PushLoop(n.Label, end, cond)
	g.scoped(n.Body, types.Void)
	g.blocks.Pop(f)
	g.e.Mark(cond)
	g.cond(n.Cond, body, false)
	g.e.Mark(end)
}

// doWhile shares the body's scope with the condition.
func (g *Generator) doWhile(n *ast.DoWhileExpr) {
	body, cond, end := g.e.NewLabel(), g.e.NewLabel(), g.e.NewLabel()
	g.e.Mark(body)
	f := g.blocks.PushLoop(n.Label, end, cond)
	g.openScope()
	if b, ok := n.Body.(*ast.BlockExpr); ok {
		for _, s := range b.Stmts {
			g.statement(s, types.Void)
		}
	} else {
		g.statement(n.Body, types.Void)
	}
	g.blocks.Pop(f)
	g.e.Mark(cond)
	g.cond(n.Cond, body, false)
	g.closeScope()
	g.e.Mark(end)
}

func (g *Generator) forExpr(n *ast.ForExpr) {
	mark := g.frame.Mark()
	rt := ast.TypeOf(n.Range)
	r, literal := ast.Simplify(n.Range).(*ast.RangeExpr)
	switch {
	case n.Iterator != nil:
		g.forIterator(n)
	case literal:
		g.forInterval(n, func() {
			g.genTo(r.From, types.Int)
			g.genTo(r.To, types.Int)
		}, r.Reversed)
	case rt.IsArray():
		g.forArray(n, rt)
	case rt.IsClass(types.IntRangeName):
		g.forRange(n)
	default:
		g.fail(n, "cannot iterate over %s", rt)
	}
	g.frame.Rollback(mark)
}

// loopBody declares the loop variable, stores the element produced by
// put and lowers the body.
func (g *Generator) loopBody(n *ast.ForExpr, put func(t types.Type), brk, cont Label) {
	g.openScope()
	v := g.declare(n.Var)
	v.Store(g.e, put)
	f := g.blocks.PushLoop(n.Label, brk, cont)
	g.scoped(n.Body, types.Void)
	g.blocks.Pop(f)
	g.closeScope()
}

// forInterval iterates the bounds pushed by bounds, inclusive, up or down.
func (g *Generator) forInterval(n *ast.ForExpr, bounds func(), reversed bool) {
	cur := g.frame.EnterTemp(types.Int)
	last := g.frame.EnterTemp(types.Int)
	bounds()
	g.e.Store(types.Int, last)
	g.e.Store(types.Int, cur)

	end := g.e.NewLabel()
	g.e.Load(types.Int, cur)
	g.e.Load(types.Int, last)
	if reversed {
		g.e.Jump(IfCmpLt, end)
	} else {
		g.e.Jump(IfCmpGt, end)
	}
	step := 1
	if reversed {
		step = -1
	}
	g.countedLoop(n, cur, last, end, func() {
		g.e.Emit(Instr{Op: Inc, Slot: cur, Arg: step})
	})
}

// countedLoop runs the body for cur up to and including last. The loop
// stops on equality, so the final element cannot overflow; advance moves
// cur by one step.
func (g *Generator) countedLoop(n *ast.ForExpr, cur, last int, end Label, advance func()) {
	loop, cont := g.e.NewLabel(), g.e.NewLabel()
	g.e.Mark(loop)
	g.loopBody(n, func(t types.Type) { Local(cur, types.Int).Put(g.e, t) }, end, cont)
	g.e.Mark(cont)
	g.e.Load(types.Int, cur)
	g.e.Load(types.Int, last)
	g.e.Jump(IfCmpEq, end)
	advance()
	g.e.Jump(Jump, loop)
	g.e.Mark(end)
}

// forRange iterates an IntRange object by its bounds and direction.
func (g *Generator) forRange(n *ast.ForExpr) {
	rng := g.frame.EnterTemp(types.IntRange)
	cur := g.frame.EnterTemp(types.Int)
	last := g.frame.EnterTemp(types.Int)
	step := g.frame.EnterTemp(types.Int)
	get := func(name string, t types.Type) {
		g.e.Load(types.IntRange, rng)
		g.e.Call(InvokeVirtual, types.IntRangeName, name, 0, t)
	}
	g.genTo(n.Range, types.IntRange)
	g.e.Store(types.IntRange, rng)

	end, up := g.e.NewLabel(), g.e.NewLabel()
	get("isEmpty", types.Boolean)
	g.e.Jump(IfNe, end)
	get("getStart", types.Int)
	g.e.Store(types.Int, cur)
	get("getEnd", types.Int)
	g.e.Store(types.Int, last)
	g.e.Const(int64(1), types.Int)
	g.e.Store(types.Int, step)
	get("getIsReversed", types.Boolean)
	g.e.Jump(IfEq, up)
	g.e.Const(int64(-1), types.Int)
	g.e.Store(types.Int, step)
	g.e.Mark(up)

	g.countedLoop(n, cur, last, end, func() {
		g.e.Load(types.Int, cur)
		g.e.Load(types.Int, step)
		g.e.TypedOp(Add, types.Int)
		g.e.Store(types.Int, cur)
	})
}

func (g *Generator) forArray(n *ast.ForExpr, at types.Type) {
	elem := *at.Elem
	arr := g.frame.EnterTemp(at)
	i := g.frame.EnterTemp(types.Int)
	g.genTo(n.Range, at)
	g.e.Store(at, arr)
	g.e.Const(int64(0), types.Int)
	g.e.Store(types.Int, i)

	cond, body, cont, end := g.e.NewLabel(), g.e.NewLabel(), g.e.NewLabel(), g.e.NewLabel()
	g.e.Jump(Jump, cond)
	g.e.Mark(body)
	g.loopBody(n, func(t types.Type) {
		g.e.Load(at, arr)
		g.e.Load(types.Int, i)
		ArrayElement(elem).Put(g.e, t)
	}, end, cont)
	g.e.Mark(cont)
	g.e.Emit(Instr{Op: Inc, Slot: i, Arg: 1})
	g.e.Mark(cond)
	g.e.Load(types.Int, i)
	g.e.Load(at, arr)
	g.e.Op(ArrayLength)
	g.e.Jump(IfCmpLt, body)
	g.e.Mark(end)
}

// forIterator drives an iterator obtained once from the range.
func (g *Generator) forIterator(n *ast.ForExpr) {
	it := n.Iterator.Return
	slot := g.frame.EnterTemp(it)
	g.callOperands(n.Iterator, g.exprOperand(n.Range)).Put(g.e, it)
	g.e.Store(it, slot)
	iter := Local(slot, it)

	cond, body, end := g.e.NewLabel(), g.e.NewLabel(), g.e.NewLabel()
	g.e.Jump(Jump, cond)
	g.e.Mark(body)
	g.loopBody(n, func(t types.Type) {
		g.callOperands(n.Next, valueOperand(iter)).Put(g.e, t)
	}, end, cond)
	g.e.Mark(cond)
	g.callOperands(n.HasNext, valueOperand(iter)).CondJump(g.e, body, false)
	g.e.Mark(end)
}

// -----------------------------------------------------------------------------
// Jumps
// -----------------------------------------------------------------------------

// jump lowers break and continue. Every finally block between the jump and
// its loop is replayed first, and the replays are excluded from the
// handlers of the regions they leave.
func (g *Generator) jump(n ast.Node, label string, isBreak bool) {
	loop, crossed, ok := g.blocks.FindLoop(label)
	if !ok {
		if label != "" {
			g.fail(n, "unknown loop label %s", label)
		}
		g.fail(n, "break or continue outside a loop")
	}
	target := loop.Continue
	if isBreak {
		target = loop.Break
	}
	g.leave(crossed, func() { g.e.Jump(Jump, target) })
}

// leave replays the finally blocks of the frames at positions crossed,
// innermost first, then emits exit.
func (g *Generator) leave(crossed []int, exit func()) {
	if len(crossed) == 0 {
		exit()
		return
	}
	start := g.e.NewLabel()
	g.e.Mark(start)
	for _, i := range crossed {
		g.blocks.Replay(i, func(finally ast.Expr) {
			g.scoped(finally, types.Void)
		})
	}
	exit()
	end := g.e.NewLabel()
	g.e.Mark(end)
	for _, i := range crossed {
		f := g.blocks.Frame(i)
		f.Gaps = append(f.Gaps, [2]Label{start, end})
	}
}

func (g *Generator) ret(n *ast.ReturnExpr) {
	cleanups := g.blocks.Cleanups()
	if g.unitResult || g.retDesc.IsVoid() {
		if n.Value != nil {
			g.genTo(n.Value, types.Void)
		}
		g.leave(cleanups, g.returnUnit)
		return
	}
	if n.Value == nil {
		g.e.Unit()
		g.e.Coerce(types.Unit, g.retDesc)
	} else {
		g.genTo(n.Value, g.retDesc)
	}
	if len(cleanups) == 0 {
		g.e.TypedOp(Return, g.retDesc)
		return
	}
	g.frame.WithTemp(g.retDesc, func(slot int) {
		g.e.Store(g.retDesc, slot)
		g.leave(cleanups, func() {
			g.e.Load(g.retDesc, slot)
			g.e.TypedOp(Return, g.retDesc)
		})
	})
}

// -----------------------------------------------------------------------------
// Exceptions
// -----------------------------------------------------------------------------

// try lowers try/catch/finally. The value of the body or of the catch that
// ran is kept in a temporary while finally runs. Normal exits replay the
// finally block; a catch-all handler runs it for exceptions and rethrows.
func (g *Generator) try(n *ast.TryExpr, t types.Type) {
	mark := g.frame.Mark()
	result := -1
	if !t.IsVoid() {
		result = g.frame.EnterTemp(t)
	}
	var cleanup *BlockFrame
	if n.Finally != nil {
		cleanup = g.blocks.PushCleanup(n.Finally)
	}

	after := g.e.NewLabel()
	exit := func() {
		if !g.mb.Reachable() {
			return
		}
		if result >= 0 {
			g.e.Store(t, result)
		}
		if cleanup != nil {
			g.blocks.Replay(g.blocks.Depth()-1, func(finally ast.Expr) {
				start := g.e.NewLabel()
				g.e.Mark(start)
				g.scoped(finally, types.Void)
				end := g.e.NewLabel()
				g.e.Mark(end)
				cleanup.Gaps = append(cleanup.Gaps, [2]Label{start, end})
			})
		}
		g.jumpTo(after)
	}

	start := g.e.NewLabel()
	g.e.Mark(start)
	g.scoped(n.Body, t)
	end := g.e.NewLabel()
	g.e.Mark(end)
	exit()

	catchEnd := end
	if len(n.Catches) > 0 {
		var gaps [][2]Label
		if cleanup != nil {
			gaps = append(gaps, cleanup.Gaps...)
		}
		for _, c := range n.Catches {
			handler := g.e.NewLabel()
			g.e.Mark(handler)
			g.openScope()
			v := g.declare(c.Var)
			if v.Kind == ValueShared {
				tmp := g.frame.EnterTemp(c.Var.Type)
				g.e.Store(c.Var.Type, tmp)
				v.Store(g.e, func(vt types.Type) { Local(tmp, c.Var.Type).Put(g.e, vt) })
			} else {
				v.StoreTop(g.e)
			}
			g.line(c)
			g.genTo(c.Body, t)
			g.closeScope()
			exit()
			g.protect(start, end, handler, c.Var.Type.ClassName(), gaps)
		}
		catchEnd = g.e.NewLabel()
		g.e.Mark(catchEnd)
	}

	if cleanup != nil {
		g.blocks.Pop(cleanup)
		handler := g.e.NewLabel()
		g.e.Mark(handler)
		g.frame.WithTemp(types.Throwable, func(exc int) {
			g.e.Store(types.Throwable, exc)
			g.scoped(n.Finally, types.Void)
			g.e.Load(types.Throwable, exc)
			g.e.Op(Throw)
		})
		g.protect(start, catchEnd, handler, "", cleanup.Gaps)
	}

	g.e.Mark(after)
	if result >= 0 {
		g.e.Load(t, result)
	}
	g.frame.Rollback(mark)
}

// protect registers handler for [start, end) minus the gaps.
func (g *Generator) protect(start, end, handler Label, class string, gaps [][2]Label) {
	lo, _ := g.mb.Position(start)
	hi, _ := g.mb.Position(end)
	pos := lo
	for _, gap := range gaps {
		gs, ok1 := g.mb.Position(gap[0])
		ge, ok2 := g.mb.Position(gap[1])
		if !ok1 || !ok2 || ge <= pos || gs >= hi {
			continue
		}
		if gs > pos {
			g.e.TryCatch(g.mb.LabelAt(pos), g.mb.LabelAt(gs), handler, class)
		}
		pos = ge
	}
	if pos < hi {
		g.e.TryCatch(g.mb.LabelAt(pos), g.mb.LabelAt(hi), handler, class)
	}
}
