package compiler

import (
	"strconv"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

type captureKind uint8

const (
	captureThis captureKind = iota
	captureReceiver
	captureVar
)

// captureField is one constructor parameter of a closure class, stored in
// a field of the same name.
type captureField struct {
	kind captureKind
	v    *ast.Var
	name string
	typ  types.Type
}

// closureContext describes the class a literal's body runs in.
type closureContext struct {
	class  string
	fields []captureField
}

func (c *closureContext) lookup(v *ast.Var) (captureField, bool) {
	if c == nil {
		return captureField{}, false
	}
	for _, f := range c.fields {
		if f.kind == captureVar && f.v == v {
			return f, true
		}
	}
	return captureField{}, false
}

func (c *closureContext) special(k captureKind) (captureField, bool) {
	if c == nil {
		return captureField{}, false
	}
	for _, f := range c.fields {
		if f.kind == k {
			return f, true
		}
	}
	return captureField{}, false
}

// captureFields lays out the fields for caps: the enclosing instance, the
// extension receiver, then the variables in capture order. A shared
// variable is captured as its cell.
func captureFields(caps *ast.Captures) []captureField {
	if caps == nil {
		return nil
	}
	var fields []captureField
	if caps.This {
		fields = append(fields, captureField{kind: captureThis, name: "this$0", typ: types.Class(caps.ThisClass)})
	}
	if caps.Receiver {
		fields = append(fields, captureField{kind: captureReceiver, name: "receiver$0", typ: caps.ReceiverType})
	}
	used := make(map[string]int)
	for _, v := range caps.Vars {
		name := "$" + v.Name
		if n := used[v.Name]; n > 0 {
			name += "$" + strconv.Itoa(n+1)
		}
		used[v.Name]++
		t := v.Type
		if v.Shared {
			t = refType
		}
		fields = append(fields, captureField{kind: captureVar, v: v, name: name, typ: t})
	}
	return fields
}

func classFields(fields []captureField) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = Field{Name: f.name, Type: f.typ}
	}
	return out
}

// pushCaptures pushes the current values of fields, in order, as seen
// from the enclosing method.
func (g *Generator) pushCaptures(n ast.Node, fields []captureField) {
	for _, f := range fields {
		switch f.kind {
		case captureThis:
			g.thisValue(n, ast.ThisInstance, f.typ).Put(g.e, f.typ)
		case captureReceiver:
			g.thisValue(n, ast.ThisReceiver, f.typ).Put(g.e, f.typ)
		default:
			if f.v.Shared {
				g.varCell(n, f.v).Put(g.e, refType)
			} else {
				g.varValue(n, f.v).Put(g.e, f.typ)
			}
		}
	}
}

// buildConstructor synthesizes the primary constructor of owner. It takes
// the superclass's parameters followed by one per own field, calls the
// superclass constructor with the former (and zero values for extra) and
// stores the latter.
func buildConstructor(h *Hierarchy, owner, super string, superParams, extra []types.Type, own []Field) *Method {
	m := &Method{Owner: owner, Name: "<init>", Return: types.Void}
	m.Params = append(m.Params, superParams...)
	for _, f := range own {
		m.Params = append(m.Params, f.Type)
	}
	mb := NewMethodBuilder(m)
	e := NewEmitter(mb, h)
	self := types.Class(owner)

	e.Load(self, 0)
	slot := 1
	for _, t := range superParams {
		e.Load(t, slot)
		slot += t.Size()
	}
	for _, t := range extra {
		e.Const(zeroValue(t), t)
	}
	e.Call(InvokeSpecial, super, "<init>", len(superParams)+len(extra), types.Void)
	for _, f := range own {
		e.Load(self, 0)
		e.Load(f.Type, slot)
		e.Field(PutField, owner, f.Name, f.Type)
		slot += f.Type.Size()
	}
	e.Op(ReturnVoid)
	m, err := mb.Finish(slot)
	if err != nil {
		panic(&LoweringError{Message: err.Error(), Method: owner + ".<init>"})
	}
	return m
}

// instanceField holds the shared instance of a capture-free lambda.
const instanceField = "$instance"

// lambda synthesizes a FunctionN class for n and pushes an instance. The
// invoke method takes and returns references; parameters are cast into
// typed slots on entry.
func (g *Generator) lambda(n *ast.LambdaExpr) StackValue {
	f := n.Fun
	name := g.u.nextName(g.prefix + "$lambda")
	arity := len(f.Params)
	iface := types.FunctionClass(arity)
	fields := captureFields(n.Captures)
	self := types.Class(name)

	cls := &Class{
		Name:       name,
		Super:      anyClass,
		Interfaces: []string{iface},
		Synthetic:  true,
		Fields:     classFields(fields),
	}
	cls.Methods = append(cls.Methods, buildConstructor(g.e.hierarchy, name, anyClass, nil, nil, cls.Fields))

	params := make([]types.Type, arity)
	for i := range params {
		params[i] = types.NullableAny
	}
	invoke := &Method{Owner: name, Name: "invoke", Params: params, Return: types.NullableAny}
	closure := &closureContext{class: name, fields: fields}
	cg := g.child(invoke, f, closure, name)
	cls.Methods = append(cls.Methods, cg.nested(func() {
		cg.frame.Reserve(1 + arity)
		for i, p := range f.Params {
			v := cg.declare(p.Var)
			raw := Local(1+i, types.NullableAny)
			v.Store(cg.e, func(t types.Type) { raw.Put(cg.e, t) })
		}
		cg.line(f)
		cg.body(f.Body)
	}))

	if len(fields) == 0 {
		cls.Fields = append(cls.Fields, Field{Name: instanceField, Type: self, Static: true})
		clinit := &Method{Owner: name, Name: "<clinit>", Return: types.Void, Static: true}
		mb := NewMethodBuilder(clinit)
		e := NewEmitter(mb, g.e.hierarchy)
		e.New(name)
		e.Dup(1)
		e.Call(InvokeSpecial, name, "<init>", 0, types.Void)
		e.Field(PutStatic, name, instanceField, self)
		e.Op(ReturnVoid)
		if _, err := mb.Finish(0); err != nil {
			g.fail(n, "%v", err)
		}
		cls.Methods = append(cls.Methods, clinit)
		g.emitClass(cls)
		g.e.Field(GetStatic, name, instanceField, self)
		return OnStack(ast.TypeOf(n))
	}

	g.emitClass(cls)
	g.e.New(name)
	g.e.Dup(1)
	g.pushCaptures(n, fields)
	g.e.Call(InvokeSpecial, name, "<init>", len(fields), types.Void)
	return OnStack(ast.TypeOf(n))
}

// object synthesizes the class of an object literal and pushes its
// instance. The constructor takes the superclass arguments, then the
// captured values.
func (g *Generator) object(n *ast.ObjectExpr) StackValue {
	c := n.Class
	h := g.e.hierarchy
	fields := captureFields(n.Captures)

	super := c.SuperName
	ifaces := append([]string(nil), c.Interfaces...)
	if super == "" {
		super = anyClass
	} else if h.IsInterface(super) {
		ifaces = append(ifaces, super)
		super = anyClass
	}
	var superParams []types.Type
	if c.Super != nil {
		for _, fd := range c.Super.CtorFields() {
			superParams = append(superParams, fd.Type)
		}
	} else if init, ok := h.Constructor(super); ok {
		for _, p := range init.Params {
			superParams = append(superParams, p.Type)
		}
	}
	if len(n.SuperArgs) > len(superParams) {
		g.fail(n, "%s takes %d constructor arguments, got %d", super, len(superParams), len(n.SuperArgs))
	}

	cls := &Class{
		Name:       c.Name,
		Super:      super,
		Interfaces: ifaces,
		Synthetic:  true,
		Fields:     classFields(fields),
	}
	cls.Methods = append(cls.Methods, buildConstructor(h, c.Name, super, superParams, nil, cls.Fields))

	closure := &closureContext{class: c.Name, fields: fields}
	for _, m := range c.Methods {
		cls.Methods = append(cls.Methods, g.objectMethod(m, closure))
		if m.HasDefaults() && m.Body != nil {
			bg := g.child(bridgeMethod(m), m, closure, closure.class+"$"+m.Name+defaultSuffix)
			cls.Methods = append(cls.Methods, bg.nested(func() { bg.defaultBridge(m) }))
		}
	}
	g.emitClass(cls)

	g.e.New(c.Name)
	g.e.Dup(1)
	for i, t := range superParams {
		if i < len(n.SuperArgs) {
			g.genTo(n.SuperArgs[i], t)
		} else {
			g.e.Const(zeroValue(t), t)
		}
	}
	g.pushCaptures(n, fields)
	g.e.Call(InvokeSpecial, c.Name, "<init>", len(superParams)+len(fields), types.Void)
	return OnStack(types.Class(c.Name))
}

func (g *Generator) objectMethod(f *ast.FunDecl, closure *closureContext) *Method {
	m := &Method{
		Owner:    closure.class,
		Name:     f.Name,
		Params:   descriptorParams(f),
		Return:   descriptorReturn(f.Return),
		Abstract: f.Body == nil,
	}
	if f.Body == nil {
		return m
	}
	cg := g.child(m, f, closure, closure.class+"$"+f.Name)
	return cg.nested(func() {
		cg.prologue(f, 0)
		cg.line(f)
		cg.body(f.Body)
	})
}

// localFun binds a named local function. The variable is declared before
// the literal is built so a recursive function captures its own cell.
func (g *Generator) localFun(n *ast.LocalFunExpr) {
	v := g.declare(n.Var)
	v.Store(g.e, func(t types.Type) { g.lambda(n.Lambda).Put(g.e, t) })
}

// emitClass adds a synthesized class to the output of the pass.
func (g *Generator) emitClass(c *Class) {
	*g.out = append(*g.out, c)
	log.Debugf("synthesized %s with %d captured fields", c.Name, len(c.Fields))
}
