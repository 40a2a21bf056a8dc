package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/token"
	"github.com/kolkov/stackgen/internal/types"
)

// LoweringError reports a node the engine cannot lower. It aborts the
// generation of the enclosing method.
type LoweringError struct {
	Message string
	Pos     token.Position
	Node    ast.Node
	Method  string // owner.name of the method being generated
}

func (e *LoweringError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: in %s: %s", e.Pos, e.Method, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// cancelled carries a host cancellation out of a generation pass.
type cancelled struct{ err error }

// Generator lowers the body of one method. It owns the slot manager, the
// control-flow frames and the line marker of that method and is never
// shared between passes.
type Generator struct {
	ctx    context.Context
	u      *unitContext
	e      *Emitter
	mb     *MethodBuilder
	method *Method
	fun    *ast.FunDecl
	frame  *FrameMap
	blocks BlockStack
	scopes []*scope

	// receivers holds the threaded receivers of enclosing safe calls.
	receivers []StackValue
	// closure describes the captured fields when lowering a literal's body.
	closure *closureContext
	// prefix names the closure classes synthesized by this pass.
	prefix string
	// out collects the classes synthesized by the pass and its children.
	out *[]*Class

	retDesc      types.Type // descriptor result
	unitResult   bool       // declared Unit: values are discarded
	receiverSlot int        // extension receiver, -1 when none
	lastLine     int
	node         ast.Node // innermost node entered, for error reports
}

// scope records the variables declared in one lexical block.
type scope struct {
	mark FrameMark
	vars []scopedVar
}

type scopedVar struct {
	v     *ast.Var
	slot  int
	start Label
}

func newGenerator(ctx context.Context, u *unitContext, m *Method, fun *ast.FunDecl, prefix string, out *[]*Class) *Generator {
	mb := NewMethodBuilder(m)
	return &Generator{
		ctx:          ctx,
		u:            u,
		e:            NewEmitter(mb, u.hierarchy),
		mb:           mb,
		method:       m,
		fun:          fun,
		frame:        NewFrameMap(),
		prefix:       prefix,
		out:          out,
		retDesc:      m.Return,
		unitResult:   fun != nil && fun.Return.IsUnit(),
		receiverSlot: -1,
	}
}

// child starts the pass of a method synthesized while lowering g's body.
func (g *Generator) child(m *Method, fun *ast.FunDecl, closure *closureContext, prefix string) *Generator {
	c := newGenerator(g.ctx, g.u, m, fun, prefix, g.out)
	c.closure = closure
	return c
}

// run generates the method at the boundary of a job. Lowering failures and
// cancellation raised by panics are returned as errors.
func (g *Generator) run(fn func()) (m *Method, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			switch x := g.wrap(r).(type) {
			case cancelled:
				err = x.err
			case *LoweringError:
				err = x
			}
		}
	}()
	return g.generate(fn), nil
}

// nested generates a synthesized method inside the pass of its parent.
// Failures propagate to the parent's boundary.
func (g *Generator) nested(fn func()) *Method {
	defer func() {
		if r := recover(); r != nil {
			panic(g.wrap(r))
		}
	}()
	return g.generate(fn)
}

func (g *Generator) generate(fn func()) *Method {
	g.openScope()
	fn()
	g.closeScope()
	m, err := g.mb.Finish(g.frame.MaxLocals())
	if err != nil {
		panic(&LoweringError{Message: err.Error(), Method: g.method.FullName()})
	}
	log.Debugf("lowered %s: %d instructions, %d locals", m.FullName(), len(m.Code), m.MaxLocals)
	return m
}

// wrap turns a recovered panic into a LoweringError unless it already is
// one or carries a cancellation.
func (g *Generator) wrap(r any) any {
	switch x := r.(type) {
	case cancelled:
		return x
	case *LoweringError:
		if x.Method == "" {
			x.Method = g.method.FullName()
		}
		return x
	}
	le := &LoweringError{Message: fmt.Sprint(r), Node: g.node, Method: g.method.FullName()}
	if g.node != nil {
		le.Pos = g.node.Pos()
	}
	return le
}

// fail aborts the pass with a lowering error at n.
func (g *Generator) fail(n ast.Node, format string, args ...any) {
	le := &LoweringError{Message: fmt.Sprintf(format, args...), Node: n, Method: g.method.FullName()}
	if n != nil {
		le.Pos = n.Pos()
	}
	panic(le)
}

// -----------------------------------------------------------------------------
// Statements and scopes
// -----------------------------------------------------------------------------

// statement lowers e at a statement boundary, where cancellation is
// checked and line markers are placed.
func (g *Generator) statement(e ast.Expr, t types.Type) {
	if err := g.ctx.Err(); err != nil {
		panic(cancelled{err})
	}
	g.line(e)
	g.genTo(e, t)
}

// line records the source line of n unless it repeats the previous one.
func (g *Generator) line(n ast.Node) {
	if !g.u.opts.LineNumbers {
		return
	}
	line := n.Pos().Line
	if line <= 0 || line == g.lastLine {
		return
	}
	g.e.LineNumber(line)
	g.lastLine = line
}

func (g *Generator) openScope() {
	g.scopes = append(g.scopes, &scope{mark: g.frame.Mark()})
}

// closeScope releases the slots of the innermost scope and records the
// debug ranges of its variables.
func (g *Generator) closeScope() {
	s := g.scopes[len(g.scopes)-1]
	g.scopes = g.scopes[:len(g.scopes)-1]
	if g.u.opts.LocalVariables && len(s.vars) > 0 {
		end := g.e.NewLabel()
		g.e.Mark(end)
		for _, sv := range s.vars {
			t := sv.v.Type
			if sv.v.Shared {
				t = refType
			}
			g.e.LocalVariable(sv.v.Name, t, sv.slot, sv.start, end)
		}
	}
	g.frame.Rollback(s.mark)
}

// declare allocates v in the innermost scope. A shared variable gets a
// fresh cell.
func (g *Generator) declare(v *ast.Var) StackValue {
	slot := g.frame.Enter(v)
	if v.Shared {
		g.e.New(types.RefName)
		g.e.Dup(1)
		g.e.Call(InvokeSpecial, types.RefName, "<init>", 0, types.Void)
		g.e.Store(refType, slot)
	}
	g.record(v, slot)
	return g.local(v, slot)
}

func (g *Generator) record(v *ast.Var, slot int) {
	start := g.e.NewLabel()
	g.e.Mark(start)
	s := g.scopes[len(g.scopes)-1]
	s.vars = append(s.vars, scopedVar{v: v, slot: slot, start: start})
}

func (g *Generator) local(v *ast.Var, slot int) StackValue {
	if v.Shared {
		return Shared(slot, v.Type)
	}
	return Local(slot, v.Type)
}

// prologue lays out the parameters of f after this and the extension
// receiver, followed by extra anonymous slots whose first index is
// returned. Shared parameters are moved into cells once the layout is
// fixed.
func (g *Generator) prologue(f *ast.FunDecl, extra int) int {
	if !f.Static {
		g.frame.Reserve(1)
	}
	if f.Receiver != nil && f.Static {
		g.receiverSlot = g.frame.Reserve(max(f.Receiver.Size(), 1))
	}
	raw := make([]int, len(f.Params))
	for i, p := range f.Params {
		if p.Var.Shared {
			raw[i] = g.frame.Reserve(max(p.Var.Type.Size(), 1))
			continue
		}
		raw[i] = g.frame.Enter(p.Var)
		g.record(p.Var, raw[i])
	}
	first := g.frame.Reserve(extra)
	for i, p := range f.Params {
		if !p.Var.Shared {
			continue
		}
		v := g.declare(p.Var)
		v.Store(g.e, func(t types.Type) { Local(raw[i], p.Var.Type).Put(g.e, t) })
	}
	return first
}

// body lowers a function body and returns its value.
func (g *Generator) body(b ast.Expr) {
	if g.unitResult || g.retDesc.IsVoid() {
		g.genTo(b, types.Void)
		if g.mb.Reachable() {
			g.returnUnit()
		}
		return
	}
	g.genTo(b, g.retDesc)
	if g.mb.Reachable() {
		g.e.TypedOp(Return, g.retDesc)
	}
}

func (g *Generator) returnUnit() {
	if g.retDesc.IsVoid() {
		g.e.Op(ReturnVoid)
		return
	}
	g.e.Unit()
	g.e.TypedOp(Return, g.retDesc)
}

// jumpTo emits a jump unless the current position is unreachable.
func (g *Generator) jumpTo(l Label) {
	if g.mb.Reachable() {
		g.e.Jump(Jump, l)
	}
}

// cond lowers a Boolean expression as a conditional jump.
func (g *Generator) cond(e ast.Expr, l Label, jumpIfFalse bool) {
	g.gen(e).CondJump(g.e, l, jumpIfFalse)
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// genTo lowers e and leaves its value coerced to t on the stack. Compound
// expressions lower their branches straight to t.
func (g *Generator) genTo(e ast.Expr, t types.Type) {
	if c := e.Info().Const; c != nil {
		Constant(c.Value, ast.TypeOf(e)).Put(g.e, t)
		return
	}
	g.node = e
	switch n := e.(type) {
	case *ast.BlockExpr:
		g.block(n, t)
	case *ast.IfExpr:
		g.ifExpr(n, t)
	case *ast.WhenExpr:
		g.when(n, t)
	case *ast.TryExpr:
		g.try(n, t)
	case *ast.SafeExpr:
		g.safe(n, t)
	case *ast.ElvisExpr:
		g.elvis(n, t)
	case *ast.IncDecExpr:
		g.incDec(n, t)
	default:
		g.gen(e).Put(g.e, t)
	}
}

// push lowers e to t and describes the result as on the stack.
func (g *Generator) push(e ast.Expr, t types.Type) StackValue {
	g.genTo(e, t)
	return OnStack(t)
}

// gen lowers e and returns where its value lives. Receivers the result
// needs are pushed before gen returns; the caller consumes the value before
// lowering anything else.
func (g *Generator) gen(e ast.Expr) StackValue {
	if c := e.Info().Const; c != nil {
		return Constant(c.Value, ast.TypeOf(e))
	}
	g.node = e
	switch n := e.(type) {
	case *ast.ConstExpr:
		g.fail(n, "literal without a value")
	case *ast.TemplateExpr:
		return g.template(n)
	case *ast.TupleExpr:
		return g.tuple(n)
	case *ast.NameExpr:
		return g.varValue(n, n.Var)
	case *ast.ThisExpr:
		return g.thisValue(n, n.Kind, ast.TypeOf(n))
	case *ast.ReceiverExpr:
		if len(g.receivers) == 0 {
			g.fail(n, "receiver outside a safe call")
		}
		return g.receivers[len(g.receivers)-1]
	case *ast.PropExpr:
		return g.prop(n)
	case *ast.IndexExpr:
		return g.index(n)
	case *ast.CallExpr:
		return g.call(n)
	case *ast.InvokeExpr:
		return g.invoke(n)
	case *ast.CompareExpr:
		return g.compare(n)
	case *ast.LogicalExpr:
		return g.logical(n)
	case *ast.NotExpr:
		return Not(g.gen(n.X))
	case *ast.RangeExpr:
		return g.rangeValue(n)
	case *ast.InExpr:
		return g.in(n)
	case *ast.IsExpr:
		return g.is(n)
	case *ast.CastExpr:
		return g.cast(n)
	case *ast.NotNullExpr:
		return g.notNull(n)
	case *ast.VarDecl:
		g.varDecl(n)
		return None()
	case *ast.AssignExpr:
		g.assign(n)
		return None()
	case *ast.AugAssignExpr:
		g.augAssign(n)
		return None()
	case *ast.NewArrayExpr:
		return g.newArray(n)
	case *ast.LambdaExpr:
		return g.lambda(n)
	case *ast.ObjectExpr:
		return g.object(n)
	case *ast.LocalFunExpr:
		g.localFun(n)
		return None()
	case *ast.WhileExpr:
		g.while(n)
		return None()
	case *ast.DoWhileExpr:
		g.doWhile(n)
		return None()
	case *ast.ForExpr:
		g.forExpr(n)
		return None()
	case *ast.BreakExpr:
		g.jump(n, n.Label, true)
		return Nothing()
	case *ast.ContinueExpr:
		g.jump(n, n.Label, false)
		return Nothing()
	case *ast.ReturnExpr:
		g.ret(n)
		return Nothing()
	case *ast.ThrowExpr:
		g.genTo(n.X, ast.TypeOf(n.X))
		g.e.Op(Throw)
		return Nothing()
	case *ast.BlockExpr, *ast.IfExpr, *ast.WhenExpr, *ast.TryExpr, *ast.SafeExpr, *ast.ElvisExpr, *ast.IncDecExpr:
		return g.push(e, ast.TypeOf(e))
	}
	g.fail(e, "cannot lower %T", e)
	return None()
}

// -----------------------------------------------------------------------------
// Literals
// -----------------------------------------------------------------------------

const stringBuilder = "StringBuilder"

func (g *Generator) template(n *ast.TemplateExpr) StackValue {
	folded := true
	var sb strings.Builder
	for _, p := range n.Parts {
		c := p.Info().Const
		if c == nil {
			folded = false
			break
		}
		sb.WriteString(formatConst(c.Value, ast.TypeOf(p)))
	}
	if folded {
		return Constant(sb.String(), types.String)
	}
	if len(n.Parts) == 1 && ast.TypeOf(n.Parts[0]).Equal(types.String) {
		return g.gen(n.Parts[0])
	}
	g.newBuilder()
	for _, p := range n.Parts {
		if c := p.Info().Const; c != nil {
			g.e.Const(formatConst(c.Value, ast.TypeOf(p)), types.String)
		} else {
			g.genTo(p, types.NullableAny)
		}
		g.appendBuilder()
	}
	g.e.Call(InvokeVirtual, stringBuilder, "toString", 0, types.String)
	return OnStack(types.String)
}

func (g *Generator) newBuilder() {
	g.e.New(stringBuilder)
	g.e.Dup(1)
	g.e.Call(InvokeSpecial, stringBuilder, "<init>", 0, types.Void)
}

func (g *Generator) appendBuilder() {
	g.e.Call(InvokeVirtual, stringBuilder, "append", 1, types.Class(stringBuilder))
}

// formatConst renders a constant the way toString would at run time.
func formatConst(c any, t types.Type) string {
	switch x := c.(type) {
	case nil:
		return "null"
	case string:
		return x
	}
	k := t.Unboxed().Kind
	if !t.Unboxed().IsPrimitiveKind() {
		switch c.(type) {
		case bool:
			k = types.KindBoolean
		case rune:
			k = types.KindChar
		case float64:
			k = types.KindDouble
		default:
			k = types.KindLong
		}
	}
	return types.FormatPrimitive(types.FromConst(c, types.Type{Kind: k}), k)
}

func (g *Generator) tuple(n *ast.TupleExpr) StackValue {
	if len(n.Elems) == 0 {
		return None()
	}
	cls := types.TupleClass(len(n.Elems))
	g.e.New(cls)
	g.e.Dup(1)
	for _, x := range n.Elems {
		g.genTo(x, types.NullableAny)
	}
	g.e.Call(InvokeSpecial, cls, "<init>", len(n.Elems), types.Void)
	return OnStack(ast.TypeOf(n))
}

func (g *Generator) rangeValue(n *ast.RangeExpr) StackValue {
	g.e.New(types.IntRangeName)
	g.e.Dup(1)
	g.genTo(n.From, types.Int)
	g.genTo(n.To, types.Int)
	g.e.Const(n.Reversed, types.Boolean)
	g.e.Call(InvokeSpecial, types.IntRangeName, "<init>", 3, types.Void)
	return OnStack(types.IntRange)
}

func (g *Generator) newArray(n *ast.NewArrayExpr) StackValue {
	at := ast.TypeOf(n)
	if n.Init == nil {
		g.genTo(n.Size, types.Int)
		g.e.TypedOp(NewArray, at)
		return OnStack(at)
	}
	elem := *at.Elem
	fn := ast.TypeOf(n.Init)
	mark := g.frame.Mark()
	size := g.frame.EnterTemp(types.Int)
	arr := g.frame.EnterTemp(at)
	init := g.frame.EnterTemp(fn)
	i := g.frame.EnterTemp(types.Int)

	g.genTo(n.Size, types.Int)
	g.e.Store(types.Int, size)
	g.e.Load(types.Int, size)
	g.e.TypedOp(NewArray, at)
	g.e.Store(at, arr)
	g.genTo(n.Init, fn)
	g.e.Store(fn, init)
	g.e.Const(int64(0), types.Int)
	g.e.Store(types.Int, i)

	loop, end := g.e.NewLabel(), g.e.NewLabel()
	g.e.Mark(loop)
	g.e.Load(types.Int, i)
	g.e.Load(types.Int, size)
	g.e.Jump(IfCmpGe, end)
	g.e.Load(at, arr)
	g.e.Load(types.Int, i)
	g.e.Load(fn, init)
	g.e.Load(types.Int, i)
	g.e.Coerce(types.Int, types.NullableAny)
	g.e.Call(InvokeInterface, types.FunctionClass(1), "invoke", 1, types.NullableAny)
	g.e.Coerce(types.NullableAny, elem)
	g.e.TypedOp(ArrayStore, elem)
	g.e.Emit(Instr{Op: Inc, Slot: i, Arg: 1})
	g.e.Jump(Jump, loop)
	g.e.Mark(end)
	g.e.Load(at, arr)
	g.frame.Rollback(mark)
	return OnStack(at)
}

// -----------------------------------------------------------------------------
// References
// -----------------------------------------------------------------------------

// varValue returns the storage of v: a slot of this method or a field of
// the closure it was captured into.
func (g *Generator) varValue(n ast.Node, v *ast.Var) StackValue {
	if v == nil {
		g.fail(n, "unresolved variable")
	}
	if slot, ok := g.frame.Slot(v); ok {
		return g.local(v, slot)
	}
	if f, ok := g.closure.lookup(v); ok {
		self := Local(0, types.Class(g.closure.class))
		if v.Shared {
			return Composed(SharedField(g.closure.class, f.name, v.Type), self)
		}
		return Composed(FieldValue(g.closure.class, f.name, f.typ, false), self)
	}
	g.fail(n, "variable %s is not accessible here", v.Name)
	return None()
}

// varCell returns the cell of a shared variable.
func (g *Generator) varCell(n ast.Node, v *ast.Var) StackValue {
	if slot, ok := g.frame.Slot(v); ok {
		return Local(slot, refType)
	}
	if f, ok := g.closure.lookup(v); ok {
		return Composed(FieldValue(g.closure.class, f.name, refType, false), Local(0, types.Class(g.closure.class)))
	}
	g.fail(n, "variable %s is not accessible here", v.Name)
	return None()
}

// thisValue returns the instance or extension receiver of type t, from
// slot 0, the receiver slot or the closure's captured fields.
func (g *Generator) thisValue(n ast.Node, kind ast.ThisKind, t types.Type) StackValue {
	f := g.fun
	switch kind {
	case ast.ThisInstance:
		if f != nil && f.Class != nil && !f.Static && f.Class.Name == t.Name {
			return Local(0, t)
		}
		if c, ok := g.closure.special(captureThis); ok {
			return Composed(FieldValue(g.closure.class, c.name, c.typ, false), Local(0, types.Class(g.closure.class)))
		}
		if f != nil && f.Class != nil && !f.Static {
			return Local(0, types.Class(f.Class.Name))
		}
	case ast.ThisReceiver:
		if g.receiverSlot >= 0 {
			return Local(g.receiverSlot, t)
		}
		if c, ok := g.closure.special(captureReceiver); ok {
			return Composed(FieldValue(g.closure.class, c.name, c.typ, false), Local(0, types.Class(g.closure.class)))
		}
	}
	g.fail(n, "this is not available here")
	return None()
}

func (g *Generator) prop(n *ast.PropExpr) StackValue {
	ref := n.Field
	if n.Receiver != nil {
		if ref.Static {
			g.genTo(n.Receiver, types.Void)
		} else {
			g.genTo(n.Receiver, receiverType(ast.TypeOf(n.Receiver)))
		}
	}
	if n.Backing || (ref.Getter == nil && ref.Setter == nil) {
		return FieldValue(ref.Owner, ref.Name, ref.Type, ref.Static)
	}
	return Property(ref)
}

// receiverType is the form a receiver of type t is pushed in: primitives
// are boxed so members of Any apply.
func receiverType(t types.Type) types.Type {
	if t.IsPrimitiveKind() {
		return t.Boxed().NonNull()
	}
	return t
}

// nonNullRef is the type of a reference of type t known not to be null.
func nonNullRef(t types.Type) types.Type {
	return t.Boxed().NonNull()
}

func (g *Generator) index(n *ast.IndexExpr) StackValue {
	xt := ast.TypeOf(n.X)
	g.genTo(n.X, receiverType(xt))
	if n.Get == nil && n.Set == nil {
		if !xt.IsArray() || len(n.Index) != 1 {
			g.fail(n, "index of %s without an operator", xt)
		}
		g.genTo(n.Index[0], types.Int)
		return ArrayElement(*xt.Elem)
	}
	sig := n.Get
	if sig == nil {
		sig = n.Set
	}
	for i, x := range n.Index {
		g.genTo(x, sig.Params[i].Type)
	}
	return CollectionElement(ast.TypeOf(n), n.Get, n.Set, len(n.Index))
}

// lvalue returns the storage an assignment writes to.
func (g *Generator) lvalue(e ast.Expr) StackValue {
	g.node = e
	var v StackValue
	switch n := e.(type) {
	case *ast.NameExpr:
		v = g.varValue(n, n.Var)
	case *ast.PropExpr:
		v = g.prop(n)
	case *ast.IndexExpr:
		v = g.index(n)
	default:
		g.fail(e, "%T is not assignable", e)
	}
	if !v.IsStorable() {
		g.fail(e, "%s is not assignable", v)
	}
	return v
}

// -----------------------------------------------------------------------------
// Stores
// -----------------------------------------------------------------------------

func (g *Generator) varDecl(n *ast.VarDecl) {
	v := g.declare(n.Var)
	if n.Init != nil {
		v.Store(g.e, func(t types.Type) { g.genTo(n.Init, t) })
	}
}

func (g *Generator) assign(n *ast.AssignExpr) {
	target := g.lvalue(n.Target)
	target.Store(g.e, func(t types.Type) { g.genTo(n.Value, t) })
}

func (g *Generator) augAssign(n *ast.AugAssignExpr) {
	op := n.Op
	if strings.HasSuffix(op.Name, "Assign") {
		g.callOperands(op, g.exprOperand(n.Target), g.exprOperand(n.Value)).Put(g.e, types.Void)
		return
	}
	tt := ast.TypeOf(n.Target)
	target := g.lvalue(n.Target)
	if delta, ok := g.slotIncrement(target, tt, op, n.Value); ok {
		g.e.Emit(Instr{Op: Inc, Slot: target.Slot, Arg: delta})
		return
	}
	s := target.DupReceiver(g.e)
	g.callOperands(op, valueOperand(s), g.exprOperand(n.Value)).Put(g.e, tt)
	s.StoreTop(g.e)
}

// slotIncrement recognizes x += c and x -= c on a plain Int slot.
func (g *Generator) slotIncrement(target StackValue, tt types.Type, op *ast.Callable, value ast.Expr) (int, bool) {
	if target.Kind != ValueLocal || !tt.IsPrimitive() || tt.Kind != types.KindInt {
		return 0, false
	}
	if op.Intrinsic != intrinsicArith || (op.Name != "plus" && op.Name != "minus") {
		return 0, false
	}
	c := value.Info().Const
	if c == nil {
		return 0, false
	}
	n, ok := c.Value.(int64)
	if !ok {
		return 0, false
	}
	if op.Name == "minus" {
		n = -n
	}
	if n < -32768 || n > 32767 {
		return 0, false
	}
	return int(n), true
}

func (g *Generator) incDec(n *ast.IncDecExpr, t types.Type) {
	tt := ast.TypeOf(n.Target)
	target := g.lvalue(n.Target)
	want := !t.IsVoid()

	if target.Kind == ValueLocal && tt.IsPrimitive() && tt.Kind == types.KindInt &&
		(n.Op == nil || n.Op.Intrinsic == intrinsicIncDec) {
		if want && !n.Prefix {
			g.e.Load(types.Int, target.Slot)
		}
		g.e.Emit(Instr{Op: Inc, Slot: target.Slot, Arg: n.Delta})
		if want && n.Prefix {
			g.e.Load(types.Int, target.Slot)
		}
		if want {
			g.e.Coerce(types.Int, t)
		}
		return
	}

	s := target.DupReceiver(g.e)
	s.Put(g.e, tt)
	if want && !n.Prefix {
		g.e.Emit(Instr{Op: DupX, Arg: s.ReceiverSize()})
	}
	if n.Op != nil {
		g.callOperands(n.Op, valueOperand(OnStack(tt))).Put(g.e, tt)
	} else {
		ot := promote(tt.Unboxed(), tt.Unboxed())
		g.e.Coerce(tt, ot)
		g.e.Const(int64(n.Delta), ot)
		g.e.TypedOp(Add, ot)
		g.e.Coerce(ot, tt)
	}
	if want && n.Prefix {
		g.e.Emit(Instr{Op: DupX, Arg: s.ReceiverSize()})
	}
	s.StoreTop(g.e)
	if want {
		g.e.Coerce(tt, t)
	}
}

// -----------------------------------------------------------------------------
// Null handling and casts
// -----------------------------------------------------------------------------

func (g *Generator) safe(n *ast.SafeExpr, t types.Type) {
	rt := ast.TypeOf(n.Receiver)
	if !rt.IsReference() || !rt.Nullable {
		g.receivers = append(g.receivers, g.push(n.Receiver, rt))
		g.genTo(n.Selector, t)
		g.receivers = g.receivers[:len(g.receivers)-1]
		return
	}
	mark := g.frame.Mark()
	recv := g.gen(n.Receiver)
	slot := recv.Slot
	if recv.Kind != ValueLocal {
		slot = g.frame.EnterTemp(rt)
		recv.Put(g.e, rt)
		g.e.Store(rt, slot)
	}
	nullL, end := g.e.NewLabel(), g.e.NewLabel()
	g.e.Load(rt, slot)
	g.e.Jump(IfNull, nullL)
	g.receivers = append(g.receivers, Local(slot, rt))
	if t.IsVoid() {
		g.genTo(n.Selector, types.Void)
		g.e.Mark(nullL)
	} else {
		result := ast.TypeOf(n)
		g.genTo(n.Selector, result)
		g.jumpTo(end)
		g.e.Mark(nullL)
		g.e.Op(ConstNull)
		g.e.Mark(end)
		g.e.Coerce(result, t)
	}
	g.receivers = g.receivers[:len(g.receivers)-1]
	g.frame.Rollback(mark)
}

func (g *Generator) elvis(n *ast.ElvisExpr, t types.Type) {
	lt := ast.TypeOf(n.Left)
	if !lt.IsReference() || !lt.Nullable {
		g.genTo(n.Left, t)
		return
	}
	nonNull, end := g.e.NewLabel(), g.e.NewLabel()
	g.genTo(n.Left, lt)
	g.e.Dup(1)
	g.e.Jump(IfNonNull, nonNull)
	g.e.Op(Pop)
	g.genTo(n.Right, t)
	g.jumpTo(end)
	g.e.Mark(nonNull)
	g.e.Coerce(nonNullRef(lt), t)
	g.e.Mark(end)
}

const (
	typeCastException = "TypeCastException"
	intrinsicsClass   = "Intrinsics"
)

func (g *Generator) cast(n *ast.CastExpr) StackValue {
	xt := ast.TypeOf(n.X)
	target := n.Target
	if n.Safe {
		rt := receiverType(xt)
		ok := g.e.NewLabel()
		g.genTo(n.X, rt)
		g.e.Dup(1)
		g.e.TypedOp(InstanceOf, target.NonNull())
		g.e.Jump(IfNe, ok)
		g.e.Op(Pop)
		g.e.Op(ConstNull)
		g.e.Mark(ok)
		return OnStack(ast.TypeOf(n))
	}
	g.genTo(n.X, xt)
	if xt.IsReference() && xt.Nullable && !target.Nullable {
		ok := g.e.NewLabel()
		g.e.Dup(1)
		g.e.Jump(IfNonNull, ok)
		g.e.Throw(typeCastException, "null cannot be cast to non-null type "+target.String())
		g.e.Mark(ok)
		xt = nonNullRef(xt)
	}
	g.e.Coerce(xt, target)
	return OnStack(target)
}

func (g *Generator) notNull(n *ast.NotNullExpr) StackValue {
	xt := ast.TypeOf(n.X)
	if !xt.IsReference() || !xt.Nullable {
		return g.gen(n.X)
	}
	ok := g.e.NewLabel()
	g.genTo(n.X, xt)
	g.e.Dup(1)
	g.e.Jump(IfNonNull, ok)
	g.e.Call(InvokeStatic, intrinsicsClass, "throwNpe", 0, types.Void)
	g.e.Mark(ok)
	return OnStack(nonNullRef(xt))
}
