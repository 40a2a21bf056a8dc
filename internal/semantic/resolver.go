package semantic

import (
	"fmt"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/token"
	"github.com/kolkov/stackgen/internal/types"
)

// Resolver performs semantic analysis on a decoded unit.
type Resolver struct {
	unit    *ast.Unit
	classes *ClassTable
	facade  *ClassInfo // the unit's own class: top-level functions and globals
	errors  ErrorList

	// Current context
	scope     *Scope
	fun       *ast.FunDecl // nil while resolving global initializers
	loops     []string     // labels of the enclosing loops of the current function
	receivers []types.Type // receiver types of the enclosing safe calls

	// captures maps the body of every lambda and object method to the
	// capture set of its literal.
	captures map[*ast.FunDecl]*ast.Captures

	vars        []*ast.Var
	initialized map[*ast.Var]bool
	selfRef     map[*ast.Var]bool // local functions that capture themselves
	objects     int
}

// Resolve performs semantic analysis on unit, completing the model in
// place: names and calls are bound, types filled in and captures computed.
func Resolve(unit *ast.Unit) error {
	r := &Resolver{
		unit:        unit,
		classes:     NewClassTable(),
		captures:    make(map[*ast.FunDecl]*ast.Captures),
		initialized: make(map[*ast.Var]bool),
		selfRef:     make(map[*ast.Var]bool),
	}

	// Phase 1: Declare classes, functions and globals
	r.declareUnit()
	if err := r.errors.Err(); err != nil {
		return err
	}

	// Phase 2: Resolve initializers and bodies
	r.resolveUnit()

	// Phase 3: Decide which captured variables live in shared cells
	r.finalize()

	return r.errors.Err()
}

func (r *Resolver) errorf(pos token.Position, format string, args ...any) {
	r.errors.Add(pos, format, args...)
}

// -----------------------------------------------------------------------------
// Declarations
// -----------------------------------------------------------------------------

func (r *Resolver) declareUnit() {
	u := r.unit
	r.facade = newClassInfo(u.Name, types.AnyName)
	if !r.classes.Define(r.facade) {
		r.errorf(u.Pos(), errDuplicateClass, u.Name)
	}
	for _, g := range u.Globals {
		r.facade.Fields[g.Name] = g.Ref
	}
	for _, f := range u.Functions {
		if _, dup := r.facade.Methods[f.Name]; dup {
			r.errorf(f.Pos(), errDuplicateFunc, u.Name+"."+f.Name)
			continue
		}
		r.facade.Methods[f.Name] = declareFun(f, ast.CallStatic)
	}
	for _, c := range u.Classes {
		r.declareClass(c)
	}
	for _, c := range u.Classes {
		r.linkClass(c)
	}
}

func (r *Resolver) declareClass(c *ast.ClassDecl) {
	super := c.SuperName
	if super == "" && !c.Interface {
		super = types.AnyName
	}
	info := newClassInfo(c.Name, super)
	info.Interfaces = c.Interfaces
	info.Interface = c.Interface
	info.Decl = c
	if !r.classes.Define(info) {
		r.errorf(c.Pos(), errDuplicateClass, c.Name)
		return
	}

	kind := ast.CallVirtual
	if c.Interface {
		kind = ast.CallInterface
	}
	for _, f := range c.Fields {
		info.Fields[f.Name] = f.Ref
	}
	for _, p := range c.Properties {
		p.Ref.Interface = c.Interface
		if p.Getter != nil {
			p.Ref.Getter = declareFun(p.Getter, kind)
			info.Methods[p.Getter.Name] = p.Ref.Getter
		}
		if p.Setter != nil {
			p.Ref.Setter = declareFun(p.Setter, kind)
			info.Methods[p.Setter.Name] = p.Ref.Setter
		}
		info.Fields[p.Name] = p.Ref
	}
	for _, m := range c.Methods {
		if _, dup := info.Methods[m.Name]; dup {
			r.errorf(m.Pos(), errDuplicateFunc, c.Name+"."+m.Name)
			continue
		}
		k := kind
		if m.Static {
			k = ast.CallStatic
		}
		info.Methods[m.Name] = declareFun(m, k)
	}
}

// linkClass binds the superclass and builds the primary constructor once
// every class of the unit is known.
func (r *Resolver) linkClass(c *ast.ClassDecl) {
	info, ok := r.classes.Lookup(c.Name)
	if !ok || info.Decl != c {
		return
	}
	if c.SuperName != "" {
		super, ok := r.classes.Lookup(c.SuperName)
		switch {
		case !ok:
			r.errorf(c.Pos(), errUndefinedClass, c.SuperName)
		case super.Decl != nil:
			c.Super = super.Decl
		}
	}
	for _, name := range c.Interfaces {
		if _, ok := r.classes.Lookup(name); !ok {
			r.errorf(c.Pos(), errUndefinedClass, name)
		}
	}
	if c.Interface {
		return
	}
	init := &ast.Callable{Owner: c.Name, Name: "<init>", Kind: ast.CallConstructor, Return: types.Class(c.Name)}
	for _, f := range c.CtorFields() {
		init.Params = append(init.Params, ast.ParamInfo{Name: f.Name, Type: f.Type})
	}
	info.Methods["<init>"] = init
}

// declareFun builds the callable of a declared function.
func declareFun(f *ast.FunDecl, kind ast.CallKind) *ast.Callable {
	c := &ast.Callable{
		Owner:    f.Owner,
		Name:     f.Name,
		Kind:     kind,
		Receiver: f.Receiver,
		Return:   f.Return,
		Decl:     f,
	}
	for _, p := range f.Params {
		c.Params = append(c.Params, ast.ParamInfo{
			Name:       p.Var.Name,
			Type:       p.Var.Type,
			HasDefault: p.Default != nil,
			Vararg:     p.Vararg,
		})
	}
	f.Callable = c
	return c
}

// -----------------------------------------------------------------------------
// Bodies
// -----------------------------------------------------------------------------

func (r *Resolver) resolveUnit() {
	for _, g := range r.unit.Globals {
		if g.Init == nil {
			continue
		}
		r.scope, r.fun = NewScope(nil), nil
		g.Init = r.expr(g.Init)
	}
	for _, f := range r.unit.Functions {
		r.function(f, nil)
	}
	for _, c := range r.unit.Classes {
		for _, p := range c.Properties {
			if p.Getter != nil {
				r.function(p.Getter, nil)
			}
			if p.Setter != nil {
				r.function(p.Setter, nil)
			}
		}
		for _, m := range c.Methods {
			r.function(m, nil)
		}
	}
}

// function resolves a function body in a fresh scope nested in parent.
// Lambdas and object methods pass the scope they appear in.
func (r *Resolver) function(f *ast.FunDecl, parent *Scope) {
	if f.Receiver != nil && r.captures[f] != nil && f.Class == nil {
		r.errorf(f.Pos(), "lambdas with a receiver are not supported")
	}
	savedScope, savedFun, savedLoops, savedRecv := r.scope, r.fun, r.loops, r.receivers
	r.scope, r.fun, r.loops, r.receivers = NewScope(parent), f, nil, nil
	defer func() {
		r.scope, r.fun, r.loops, r.receivers = savedScope, savedFun, savedLoops, savedRecv
	}()

	for _, p := range f.Params {
		if p.Default != nil {
			p.Default = r.expr(p.Default)
		}
		r.declareVar(p.Var)
		r.initialized[p.Var] = true
	}
	if f.Body != nil {
		f.Body = r.expr(f.Body)
	}
}

func (r *Resolver) declareVar(v *ast.Var) {
	v.Fun = r.fun
	if !r.scope.Declare(v) {
		r.errorf(v.Pos, errDuplicateVar, v.Name)
		return
	}
	r.vars = append(r.vars, v)
}

func (r *Resolver) scoped(fn func()) {
	saved := r.scope
	r.scope = NewScope(saved)
	fn()
	r.scope = saved
}

func (r *Resolver) loop(label string, fn func()) {
	r.loops = append(r.loops, label)
	fn()
	r.loops = r.loops[:len(r.loops)-1]
}

// complete sets the static type of e unless the dump already gave one.
func complete(e ast.Expr, t types.Type) {
	info := e.Info()
	if info.Type.Kind == types.KindVoid && info.Type.Name == "" {
		info.Type = t
	}
}

func (r *Resolver) exprs(list []ast.Expr) {
	for i, e := range list {
		list[i] = r.expr(e)
	}
}

// expr resolves e and returns the node that replaces it. Names of globals
// become property reads and implicit receivers become explicit this.
func (r *Resolver) expr(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.ConstExpr:
		// literal

	case *ast.TemplateExpr:
		r.exprs(n.Parts)

	case *ast.TupleExpr:
		r.exprs(n.Elems)

	case *ast.NameExpr:
		return r.name(n)

	case *ast.ThisExpr:
		ctx, ok := r.findThis(func(types.Type) bool { return true })
		if !ok {
			r.errorf(n.Pos(), errThisOutside)
			complete(n, types.NullableAny)
			break
		}
		r.commitThis(ctx)
		n.Kind = ctx.kind
		complete(n, ctx.typ)

	case *ast.ReceiverExpr:
		if len(r.receivers) == 0 {
			r.errorf(n.Pos(), errReceiverOutside)
			complete(n, types.NullableAny)
			break
		}
		complete(n, r.receivers[len(r.receivers)-1])

	case *ast.PropExpr:
		r.prop(n)

	case *ast.IndexExpr:
		r.index(n)

	case *ast.CallExpr:
		r.call(n)

	case *ast.InvokeExpr:
		n.Fn = r.expr(n.Fn)
		r.exprs(n.Args)
		ft := ast.TypeOf(n.Fn)
		if !ft.IsFunction() {
			r.errorf(n.Pos(), errNotFunction, ft)
			complete(n, types.NullableAny)
			break
		}
		if len(ft.ParamTypes()) != len(n.Args) {
			r.errorf(n.Pos(), errArgCount, ft, len(ft.ParamTypes()), len(n.Args))
		}
		complete(n, ft.ReturnType())

	case *ast.SafeExpr:
		n.Receiver = r.expr(n.Receiver)
		r.receivers = append(r.receivers, ast.TypeOf(n.Receiver).NonNull())
		n.Selector = r.expr(n.Selector)
		r.receivers = r.receivers[:len(r.receivers)-1]
		st := ast.TypeOf(n.Selector)
		if st.IsVoid() {
			st = types.Unit
		}
		complete(n, st.Boxed().AsNullable())

	case *ast.CompareExpr:
		n.Left = r.expr(n.Left)
		n.Right = r.expr(n.Right)
		switch {
		case n.CompareTo != nil:
			n.CompareTo = r.callable(n.CompareTo, n.Pos())
		case !n.Op.IsEquality() && !n.Op.IsIdentity():
			lt, rt := ast.TypeOf(n.Left), ast.TypeOf(n.Right)
			if !lt.IsPrimitiveKind() || !rt.IsPrimitiveKind() {
				n.CompareTo = r.member(lt, "compareTo", n.Pos())
			}
		}

	case *ast.LogicalExpr:
		n.Left = r.expr(n.Left)
		n.Right = r.expr(n.Right)

	case *ast.NotExpr:
		n.X = r.expr(n.X)

	case *ast.ElvisExpr:
		n.Left = r.expr(n.Left)
		n.Right = r.expr(n.Right)
		complete(n, common(ast.TypeOf(n.Left).NonNull(), ast.TypeOf(n.Right)))

	case *ast.RangeExpr:
		n.From = r.expr(n.From)
		n.To = r.expr(n.To)

	case *ast.InExpr:
		n.X = r.expr(n.X)
		n.Range = r.expr(n.Range)
		n.Contains = r.contains(n.Range, n.Contains, n.Pos())

	case *ast.IsExpr:
		n.X = r.expr(n.X)
		n.Pattern = r.pattern(n.Pattern)

	case *ast.CastExpr:
		n.X = r.expr(n.X)
		r.checkType(n.Target, n.Pos())

	case *ast.NotNullExpr:
		n.X = r.expr(n.X)
		complete(n, ast.TypeOf(n.X).NonNull())

	case *ast.VarDecl:
		if n.Init != nil {
			n.Init = r.expr(n.Init)
			r.initialized[n.Var] = true
		}
		r.declareVar(n.Var)

	case *ast.AssignExpr:
		n.Value = r.expr(n.Value)
		n.Target = r.target(n.Target)

	case *ast.AugAssignExpr:
		n.Value = r.expr(n.Value)
		n.Target = r.target(n.Target)
		n.Op = r.callable(n.Op, n.Pos())

	case *ast.IncDecExpr:
		n.Target = r.target(n.Target)
		if n.Op != nil {
			n.Op = r.callable(n.Op, n.Pos())
		}
		complete(n, ast.TypeOf(n.Target))

	case *ast.NewArrayExpr:
		n.Size = r.expr(n.Size)
		if n.Init != nil {
			n.Init = r.expr(n.Init)
		}

	case *ast.LambdaExpr:
		r.lambda(n)

	case *ast.ObjectExpr:
		r.object(n)

	case *ast.LocalFunExpr:
		r.declareVar(n.Var)
		r.initialized[n.Var] = true
		r.lambda(n.Lambda)
		if n.Lambda.Captures.Has(n.Var) {
			r.selfRef[n.Var] = true
		}

	case *ast.BlockExpr:
		r.scoped(func() { r.exprs(n.Stmts) })
		complete(n, blockType(n))

	case *ast.IfExpr:
		n.Cond = r.expr(n.Cond)
		r.scoped(func() { n.Then = r.expr(n.Then) })
		if n.Else == nil {
			complete(n, types.Unit)
			break
		}
		r.scoped(func() { n.Else = r.expr(n.Else) })
		complete(n, common(ast.TypeOf(n.Then), ast.TypeOf(n.Else)))

	case *ast.WhileExpr:
		n.Cond = r.expr(n.Cond)
		r.loop(n.Label, func() { r.scoped(func() { n.Body = r.expr(n.Body) }) })

	case *ast.DoWhileExpr:
		r.loop(n.Label, func() { r.scoped(func() { n.Body = r.expr(n.Body) }) })
		n.Cond = r.expr(n.Cond)

	case *ast.ForExpr:
		r.forExpr(n)

	case *ast.BreakExpr:
		r.jump(n.Label, n.Pos(), "break")

	case *ast.ContinueExpr:
		r.jump(n.Label, n.Pos(), "continue")

	case *ast.ReturnExpr:
		if r.fun == nil {
			r.errorf(n.Pos(), errReturnOutside)
		}
		if n.Value != nil {
			n.Value = r.expr(n.Value)
		}

	case *ast.ThrowExpr:
		n.X = r.expr(n.X)

	case *ast.TryExpr:
		r.scoped(func() { n.Body = r.expr(n.Body) })
		t := ast.TypeOf(n.Body)
		for _, c := range n.Catches {
			r.scoped(func() {
				r.declareVar(c.Var)
				r.checkType(c.Var.Type, c.Pos())
				c.Body = r.expr(c.Body)
			})
			t = common(t, ast.TypeOf(c.Body))
		}
		if n.Finally != nil {
			r.scoped(func() { n.Finally = r.expr(n.Finally) })
		}
		complete(n, t)

	case *ast.WhenExpr:
		r.when(n)

	default:
		panic(fmt.Sprintf("unexpected expression type: %T", e))
	}
	return e
}

func blockType(b *ast.BlockExpr) types.Type {
	if len(b.Stmts) == 0 {
		return types.Unit
	}
	switch last := b.Stmts[len(b.Stmts)-1].(type) {
	case *ast.VarDecl, *ast.LocalFunExpr:
		return types.Unit
	default:
		return ast.TypeOf(last)
	}
}

// common returns the type of an expression whose value comes from one of
// two branches.
func common(a, b types.Type) types.Type {
	if a.IsVoid() {
		a = types.Unit
	}
	if b.IsVoid() {
		b = types.Unit
	}
	switch {
	case a.Equal(b):
		return a
	case a.IsNothing() && !a.Nullable:
		return b
	case b.IsNothing() && !b.Nullable:
		return a
	case a.IsNothing():
		return b.AsNullable()
	case b.IsNothing():
		return a.AsNullable()
	case a.NonNull().Equal(b.NonNull()):
		return a.AsNullable()
	case a.Nullable || b.Nullable:
		return types.NullableAny
	}
	return types.Any
}

func (r *Resolver) checkType(t types.Type, pos token.Position) {
	for t.IsArray() {
		t = *t.Elem
	}
	if t.Kind != types.KindClass {
		return
	}
	if _, ok := r.classes.Lookup(t.Name); !ok {
		r.errorf(pos, errUndefinedClass, t.Name)
	}
}

// -----------------------------------------------------------------------------
// References
// -----------------------------------------------------------------------------

func (r *Resolver) name(n *ast.NameExpr) ast.Expr {
	v, ok := r.scope.Lookup(n.Name)
	if !ok {
		if ref, ok := r.facade.Fields[n.Name]; ok {
			p := &ast.PropExpr{BaseExpr: n.BaseExpr, Field: ref}
			complete(p, ref.Type)
			return p
		}
		if p := r.implicitField(n); p != nil {
			return p
		}
		r.errorf(n.Pos(), errUndefinedVar, n.Name)
		complete(n, types.NullableAny)
		return n
	}
	n.Var = v
	if v.Fun != r.fun {
		r.capture(v)
	}
	complete(n, v.Type)
	return n
}

// implicitField resolves a bare name to a field of the enclosing this.
func (r *Resolver) implicitField(n *ast.NameExpr) ast.Expr {
	var ref *ast.FieldRef
	ctx, ok := r.findThis(func(t types.Type) bool {
		f, ok := r.classes.Field(t.ClassName(), n.Name)
		if ok && !f.Static {
			ref = f
		}
		return ref != nil
	})
	if !ok {
		return nil
	}
	r.commitThis(ctx)
	this := &ast.ThisExpr{BaseExpr: ast.MakeBaseExpr(n.Pos(), ctx.typ), Kind: ctx.kind}
	p := &ast.PropExpr{BaseExpr: n.BaseExpr, Receiver: this, Field: ref}
	complete(p, ref.Type)
	return p
}

// capture records v in the capture set of every literal between the
// current function and the function that declares v.
func (r *Resolver) capture(v *ast.Var) {
	for f := r.fun; f != nil && f != v.Fun; f = f.Outer {
		caps := r.captures[f]
		if caps == nil {
			break
		}
		if !caps.Has(v) {
			caps.Vars = append(caps.Vars, v)
		}
	}
	v.Captured = true
}

// thisContext is the outcome of resolving this: the function providing it
// and the literals crossed on the way, which must capture it.
type thisContext struct {
	kind    ast.ThisKind
	typ     types.Type
	crossed []*ast.FunDecl
}

// findThis walks outward from the current function to the nearest
// enclosing class instance or extension receiver accepted by match.
func (r *Resolver) findThis(match func(types.Type) bool) (thisContext, bool) {
	var crossed []*ast.FunDecl
	for f := r.fun; f != nil; f = f.Outer {
		if f.Receiver != nil && match(*f.Receiver) {
			return thisContext{kind: ast.ThisReceiver, typ: *f.Receiver, crossed: crossed}, true
		}
		if f.Class != nil && !f.Static {
			t := types.Class(f.Class.Name)
			if match(t) {
				return thisContext{kind: ast.ThisInstance, typ: t, crossed: crossed}, true
			}
		}
		if r.captures[f] == nil {
			break
		}
		crossed = append(crossed, f)
	}
	return thisContext{}, false
}

func (r *Resolver) commitThis(ctx thisContext) {
	for _, f := range ctx.crossed {
		caps := r.captures[f]
		if ctx.kind == ast.ThisInstance {
			caps.This = true
			caps.ThisClass = ctx.typ.Name
		} else {
			caps.Receiver = true
			caps.ReceiverType = ctx.typ
		}
	}
}

// implicitThis builds the receiver of a member access without one.
func (r *Resolver) implicitThis(owner string, pos token.Position) (ast.Expr, bool) {
	ctx, ok := r.findThis(func(t types.Type) bool {
		return r.classes.IsSubclass(t.ClassName(), owner)
	})
	if !ok {
		return nil, false
	}
	r.commitThis(ctx)
	return &ast.ThisExpr{BaseExpr: ast.MakeBaseExpr(pos, ctx.typ), Kind: ctx.kind}, true
}

func (r *Resolver) prop(n *ast.PropExpr) {
	if n.Receiver != nil {
		n.Receiver = r.expr(n.Receiver)
	}
	if _, ok := r.classes.Lookup(n.Field.Owner); !ok {
		r.errorf(n.Pos(), errUndefinedClass, n.Field.Owner)
		complete(n, types.NullableAny)
		return
	}
	ref, ok := r.classes.Field(n.Field.Owner, n.Field.Name)
	if !ok {
		r.errorf(n.Pos(), errUndefinedField, n.Field.Owner+"."+n.Field.Name)
		complete(n, types.NullableAny)
		return
	}
	n.Field = ref
	if n.Receiver == nil && !ref.Static {
		this, ok := r.implicitThis(ref.Owner, n.Pos())
		if !ok {
			r.errorf(n.Pos(), errThisOutside)
		}
		n.Receiver = this
	}
	complete(n, ref.Type)
}

func (r *Resolver) index(n *ast.IndexExpr) {
	n.X = r.expr(n.X)
	r.exprs(n.Index)
	xt := ast.TypeOf(n.X)
	if xt.IsArray() {
		complete(n, *xt.Elem)
		return
	}
	if n.Get != nil {
		n.Get = r.callable(n.Get, n.Pos())
	} else {
		n.Get = r.member(xt, "get", n.Pos())
	}
	if n.Set != nil {
		n.Set = r.callable(n.Set, n.Pos())
	} else if m, ok := r.classes.Method(xt.ClassName(), "set"); ok {
		n.Set = m
	}
	if n.Get != nil {
		complete(n, n.Get.Return)
	} else {
		complete(n, types.NullableAny)
	}
}

// target resolves the left-hand side of an assignment.
func (r *Resolver) target(e ast.Expr) ast.Expr {
	e = r.expr(e)
	if n, ok := e.(*ast.NameExpr); ok && n.Var != nil {
		v := n.Var
		if !v.Mutable && (v.Kind != ast.VarLocal || r.initialized[v]) {
			r.errorf(n.Pos(), errAssignVal, v.Name)
		}
		r.initialized[v] = true
		v.Assigned = true
	}
	return e
}

// -----------------------------------------------------------------------------
// Calls
// -----------------------------------------------------------------------------

// callable binds an Owner.name reference.
func (r *Resolver) callable(c *ast.Callable, pos token.Position) *ast.Callable {
	if c == nil {
		return nil
	}
	if _, ok := r.classes.Lookup(c.Owner); !ok {
		r.errorf(pos, errUndefinedClass, c.Owner)
		return nil
	}
	m, ok := r.classes.Method(c.Owner, c.Name)
	if !ok {
		r.errorf(pos, errUndefinedCallable, c.FullName())
		return nil
	}
	return m
}

// member finds a method on the class of t.
func (r *Resolver) member(t types.Type, name string, pos token.Position) *ast.Callable {
	owner := t.ClassName()
	if t.IsArray() {
		owner = "Array"
	}
	m, ok := r.classes.Method(owner, name)
	if !ok {
		r.errorf(pos, errUndefinedCallable, owner+"."+name)
		return nil
	}
	return m
}

func (r *Resolver) call(n *ast.CallExpr) {
	callee := r.callable(n.Call.Callee, n.Pos())
	if n.Call.Receiver != nil {
		n.Call.Receiver = r.expr(n.Call.Receiver)
	}
	for i := range n.Call.Args {
		a := &n.Call.Args[i]
		if a.Expr != nil {
			a.Expr = r.expr(a.Expr)
		}
		r.exprs(a.Elems)
	}
	if callee == nil {
		complete(n, types.NullableAny)
		return
	}
	n.Call.Callee = callee

	if n.Call.Receiver == nil {
		owner := ""
		switch {
		case callee.Receiver != nil:
			owner = callee.Receiver.ClassName()
		case callee.Kind == ast.CallVirtual || callee.Kind == ast.CallInterface:
			owner = callee.Owner
		}
		if owner != "" {
			this, ok := r.implicitThis(owner, n.Pos())
			if !ok {
				r.errorf(n.Pos(), "call to %s needs a receiver", callee.FullName())
			}
			n.Call.Receiver = this
		}
	}

	n.Call.Args = r.bind(callee, n.Call.Args, n.Pos())
	if callee.Kind == ast.CallConstructor {
		complete(n, types.Class(callee.Owner))
		return
	}
	complete(n, callee.Return)
}

// bind matches call-site arguments to the callee's parameters. The result
// has exactly one Arg per parameter.
func (r *Resolver) bind(callee *ast.Callable, raw []ast.Arg, pos token.Position) []ast.Arg {
	params := callee.Params
	out := make([]ast.Arg, len(params))
	ri := 0
	for i, prm := range params {
		if prm.Vararg {
			n := len(raw) - ri - (len(params) - 1 - i)
			if n < 0 {
				n = 0
			}
			va := ast.Arg{Kind: ast.ArgVararg}
			for _, a := range raw[ri : ri+n] {
				switch a.Kind {
				case ast.ArgExpr:
					va.Elems = append(va.Elems, a.Expr)
					va.Spread = append(va.Spread, false)
				case ast.ArgVararg:
					va.Elems = append(va.Elems, a.Elems...)
					va.Spread = append(va.Spread, a.Spread...)
				default:
					r.errorf(pos, errNoDefault, prm.Name, callee.FullName())
				}
			}
			ri += n
			out[i] = va
			continue
		}
		if ri >= len(raw) {
			if !prm.HasDefault {
				r.errorf(pos, errNotEnoughArgs, callee.FullName(), prm.Name)
			}
			out[i] = ast.Arg{Kind: ast.ArgDefault}
			continue
		}
		a := raw[ri]
		ri++
		switch {
		case a.Kind == ast.ArgDefault && !prm.HasDefault:
			r.errorf(pos, errNoDefault, prm.Name, callee.FullName())
		case a.Kind == ast.ArgVararg:
			r.errorf(pos, errSpreadNonVararg, prm.Name, callee.FullName())
		}
		out[i] = a
	}
	if ri < len(raw) {
		r.errorf(pos, errTooManyArgs, callee.FullName())
	}
	return out
}

// contains binds the membership test of an in-expression or pattern.
// Range literals are tested inline and need no callable.
func (r *Resolver) contains(rng ast.Expr, c *ast.Callable, pos token.Position) *ast.Callable {
	if c != nil {
		return r.callable(c, pos)
	}
	if _, ok := rng.(*ast.RangeExpr); ok {
		return nil
	}
	return r.member(ast.TypeOf(rng), "contains", pos)
}

// -----------------------------------------------------------------------------
// Literals
// -----------------------------------------------------------------------------

func (r *Resolver) lambda(n *ast.LambdaExpr) {
	caps := &ast.Captures{}
	n.Captures = caps
	r.captures[n.Fun] = caps
	r.function(n.Fun, r.scope)
}

func (r *Resolver) object(n *ast.ObjectExpr) {
	r.objects++
	c := n.Class
	c.Name = fmt.Sprintf("%s$object$%d", r.unit.Name, r.objects)
	for _, m := range c.Methods {
		m.Owner = c.Name
	}
	r.declareClass(c)
	r.linkClass(c)

	r.exprs(n.SuperArgs)
	if c.Super != nil {
		if want := len(c.Super.CtorFields()); want != len(n.SuperArgs) {
			r.errorf(n.Pos(), errArgCount, c.SuperName, want, len(n.SuperArgs))
		}
	}

	caps := &ast.Captures{}
	n.Captures = caps
	for _, m := range c.Methods {
		r.captures[m] = caps
	}
	for _, m := range c.Methods {
		r.function(m, r.scope)
	}
	complete(n, types.Class(c.Name))
}

// -----------------------------------------------------------------------------
// Control flow
// -----------------------------------------------------------------------------

func (r *Resolver) jump(label string, pos token.Position, what string) {
	if len(r.loops) == 0 {
		r.errorf(pos, errBreakOutsideLoop, what)
		return
	}
	if label == "" {
		return
	}
	for _, l := range r.loops {
		if l == label {
			return
		}
	}
	r.errorf(pos, errUnknownLabel, label)
}

func (r *Resolver) forExpr(n *ast.ForExpr) {
	n.Range = r.expr(n.Range)
	rt := ast.TypeOf(n.Range)
	_, literal := n.Range.(*ast.RangeExpr)
	switch {
	case n.Iterator != nil:
		n.Iterator = r.callable(n.Iterator, n.Pos())
		n.HasNext = r.callable(n.HasNext, n.Pos())
		n.Next = r.callable(n.Next, n.Pos())
	case literal || rt.IsArray() || rt.IsClass(types.IntRangeName):
		// counted loops
	default:
		n.Iterator = r.member(rt, "iterator", n.Pos())
		if n.Iterator == nil {
			r.errorf(n.Pos(), errNotIterable, rt)
			break
		}
		it := n.Iterator.Return
		n.HasNext = r.member(it, "hasNext", n.Pos())
		n.Next = r.member(it, "next", n.Pos())
	}
	if n.Iterator != nil && (n.HasNext == nil || n.Next == nil) {
		r.errorf(n.Pos(), errNotIterable, rt)
	}
	r.scoped(func() {
		r.declareVar(n.Var)
		r.initialized[n.Var] = true
		r.loop(n.Label, func() { n.Body = r.expr(n.Body) })
	})
}

func (r *Resolver) when(n *ast.WhenExpr) {
	if n.Subject != nil {
		n.Subject = r.expr(n.Subject)
	}
	var result types.Type
	for i, entry := range n.Entries {
		r.scoped(func() {
			for j, c := range entry.Conditions {
				entry.Conditions[j] = r.pattern(c)
			}
			entry.Body = r.expr(entry.Body)
		})
		if i == 0 {
			result = ast.TypeOf(entry.Body)
		} else {
			result = common(result, ast.TypeOf(entry.Body))
		}
	}
	if len(n.Entries) == 0 {
		result = types.Unit
	}
	complete(n, result)
}

// pattern resolves a when or is condition. Bind patterns declare their
// variable in the current scope.
func (r *Resolver) pattern(p ast.Pattern) ast.Pattern {
	switch n := p.(type) {
	case *ast.TypePattern:
		r.checkType(n.Type, n.Pos())
	case *ast.ExprPattern:
		n.X = r.expr(n.X)
	case *ast.RangePattern:
		n.Range = r.expr(n.Range)
		n.Contains = r.contains(n.Range, n.Contains, n.Pos())
	case *ast.TuplePattern:
		for i, e := range n.Elems {
			n.Elems[i] = r.pattern(e)
		}
	case *ast.WildcardPattern:
	case *ast.BindPattern:
		r.declareVar(n.Var)
		r.initialized[n.Var] = true
		if n.Guard != nil {
			n.Guard = r.expr(n.Guard)
		}
	default:
		panic(fmt.Sprintf("unexpected pattern type: %T", p))
	}
	return p
}

// finalize marks the variables that need shared cells: mutable locals
// assigned after capture, and local functions that call themselves.
func (r *Resolver) finalize() {
	for _, v := range r.vars {
		v.Shared = v.Captured && ((v.Mutable && v.Assigned) || r.selfRef[v])
	}
}
