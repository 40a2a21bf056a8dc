package compiler

import (
	"context"
	"strconv"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

var log = commonlog.GetLogger("stackgen.compiler")

// Options control code generation.
type Options struct {
	// LineNumbers records source lines for the instructions of each
	// statement.
	LineNumbers bool
	// LocalVariables records the slot ranges of named variables.
	LocalVariables bool
	// Workers bounds the number of methods generated concurrently.
	// Values below 2 generate sequentially.
	Workers int
	// Intrinsics overrides the default expansion table.
	Intrinsics *IntrinsicTable
}

// unitContext is the state shared by the passes of one unit.
type unitContext struct {
	unit       *ast.Unit
	hierarchy  *Hierarchy
	intrinsics *IntrinsicTable
	opts       Options

	mu       sync.Mutex
	counters map[string]int
}

// nextName returns prefix$N with N counting from 1 per prefix. Every pass
// uses prefixes of its own, so names do not depend on scheduling.
func (u *unitContext) nextName(prefix string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counters[prefix]++
	return prefix + "$" + strconv.Itoa(u.counters[prefix])
}

// job generates one method and the classes synthesized for its literals.
type job struct {
	class *Class
	gen   func(ctx context.Context, out *[]*Class) (*Method, error)

	method *Method
	out    []*Class
}

// Compile lowers a resolved unit. Methods are generated by independent
// passes, concurrently when opts.Workers allows; the result does not
// depend on the number of workers. Cancelling ctx aborts generation and
// returns ctx's error.
func Compile(ctx context.Context, unit *ast.Unit, opts Options) (*Program, error) {
	if opts.Intrinsics == nil {
		opts.Intrinsics = DefaultIntrinsics()
	}
	u := &unitContext{
		unit:       unit,
		hierarchy:  NewHierarchy(unit),
		intrinsics: opts.Intrinsics,
		opts:       opts,
		counters:   make(map[string]int),
	}
	p := &Program{Unit: unit.Name}

	// Phase 1: the facade class with globals and top-level functions.
	facade := &Class{Name: unit.Name, Super: anyClass}
	p.Classes = append(p.Classes, facade)
	var jobs []*job
	var inits []*ast.GlobalDecl
	for _, gd := range unit.Globals {
		facade.Fields = append(facade.Fields, Field{Name: gd.Name, Type: gd.Type, Static: true})
		if gd.Init != nil {
			inits = append(inits, gd)
		}
	}
	for _, f := range unit.Functions {
		jobs = append(jobs, u.functionJobs(facade, f)...)
	}
	if len(inits) > 0 {
		jobs = append(jobs, &job{class: facade, gen: func(ctx context.Context, out *[]*Class) (*Method, error) {
			return u.classInit(ctx, facade.Name, inits, out)
		}})
	}

	// Phase 2: declared classes.
	for _, c := range unit.Classes {
		cls := u.declareClass(c)
		p.Classes = append(p.Classes, cls)
		for _, f := range u.members(c) {
			jobs = append(jobs, u.functionJobs(cls, f)...)
		}
	}

	// Phase 3: generate.
	if err := u.run(ctx, jobs); err != nil {
		return nil, err
	}

	// Phase 4: assemble in declaration order.
	for _, j := range jobs {
		j.class.Methods = append(j.class.Methods, j.method)
	}
	for _, j := range jobs {
		p.Classes = append(p.Classes, j.out...)
	}
	log.Debugf("compiled %s: %d classes, %d methods", unit.Name, len(p.Classes), len(jobs))
	return p, nil
}

func (u *unitContext) run(ctx context.Context, jobs []*job) error {
	if u.opts.Workers < 2 {
		for _, j := range jobs {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := j.gen(ctx, &j.out)
			if err != nil {
				return err
			}
			j.method = m
		}
		return nil
	}
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(u.opts.Workers)
	for _, j := range jobs {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := j.gen(gctx, &j.out)
			if err != nil {
				return err
			}
			j.method = m
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// declareClass builds the class shell of c: fields, backing fields of
// properties and the primary constructor.
func (u *unitContext) declareClass(c *ast.ClassDecl) *Class {
	cls := &Class{
		Name:       c.Name,
		Interfaces: c.Interfaces,
		Interface:  c.Interface,
		Synthetic:  c.Synthetic,
	}
	for _, f := range c.Fields {
		cls.Fields = append(cls.Fields, Field{Name: f.Name, Type: f.Type})
	}
	for _, prop := range c.Properties {
		cls.Fields = append(cls.Fields, Field{Name: prop.Name, Type: prop.Type})
	}
	if c.Interface {
		return cls
	}

	cls.Super = c.SuperName
	if cls.Super == "" {
		cls.Super = anyClass
	}
	var superParams, extra []types.Type
	if c.Super != nil {
		for _, f := range c.Super.CtorFields() {
			superParams = append(superParams, f.Type)
		}
	} else if init, ok := u.hierarchy.Constructor(cls.Super); ok {
		for _, p := range init.Params {
			extra = append(extra, p.Type)
		}
	}
	own := make([]Field, len(c.Fields))
	copy(own, cls.Fields)
	cls.Methods = append(cls.Methods, buildConstructor(u.hierarchy, c.Name, cls.Super, superParams, extra, own))
	return cls
}

// members lists the functions generated into c: accessors, then methods.
func (u *unitContext) members(c *ast.ClassDecl) []*ast.FunDecl {
	var fns []*ast.FunDecl
	for _, prop := range c.Properties {
		if prop.Getter != nil {
			fns = append(fns, prop.Getter)
		}
		if prop.Setter != nil {
			fns = append(fns, prop.Setter)
		}
	}
	return append(fns, c.Methods...)
}

// functionJobs returns the job generating f, plus the one generating its
// default-argument bridge.
func (u *unitContext) functionJobs(cls *Class, f *ast.FunDecl) []*job {
	jobs := []*job{{class: cls, gen: func(ctx context.Context, out *[]*Class) (*Method, error) {
		return u.function(ctx, f, out)
	}}}
	if f.HasDefaults() && f.Body != nil {
		jobs = append(jobs, &job{class: cls, gen: func(ctx context.Context, out *[]*Class) (*Method, error) {
			g := newGenerator(ctx, u, bridgeMethod(f), f, f.Owner+"$"+f.Name+defaultSuffix, out)
			return g.run(func() { g.defaultBridge(f) })
		}})
	}
	return jobs
}

func methodFor(f *ast.FunDecl) *Method {
	return &Method{
		Owner:    f.Owner,
		Name:     f.Name,
		Params:   descriptorParams(f),
		Return:   descriptorReturn(f.Return),
		Static:   f.Static,
		Abstract: f.Body == nil,
	}
}

func (u *unitContext) function(ctx context.Context, f *ast.FunDecl, out *[]*Class) (*Method, error) {
	m := methodFor(f)
	if f.Body == nil {
		return m, nil
	}
	g := newGenerator(ctx, u, m, f, f.Owner+"$"+f.Name, out)
	return g.run(func() {
		g.prologue(f, 0)
		g.line(f.Body)
		g.body(f.Body)
	})
}

// classInit generates the static initializer storing the initial values
// of globals in declaration order.
func (u *unitContext) classInit(ctx context.Context, owner string, inits []*ast.GlobalDecl, out *[]*Class) (*Method, error) {
	m := &Method{Owner: owner, Name: "<clinit>", Return: types.Void, Static: true}
	g := newGenerator(ctx, u, m, nil, owner+"$clinit", out)
	return g.run(func() {
		for _, gd := range inits {
			g.statement(gd.Init, gd.Type)
			g.e.Field(PutStatic, owner, gd.Name, gd.Type)
		}
		g.e.Op(ReturnVoid)
	})
}

// bridgeMethod describes the static bridge of f: the receiver, the
// parameters and a mask whose bit i selects the default of parameter i.
func bridgeMethod(f *ast.FunDecl) *Method {
	var params []types.Type
	if !f.Static {
		params = append(params, types.Class(f.Owner))
	}
	params = append(params, descriptorParams(f)...)
	params = append(params, types.Int)
	return &Method{
		Owner:  f.Owner,
		Name:   f.Name + defaultSuffix,
		Params: params,
		Return: descriptorReturn(f.Return),
		Static: true,
	}
}

// defaultBridge evaluates the defaults selected by the mask into the
// parameter slots and calls f with the completed argument list. The
// bridge's layout matches f's with the mask in the slot after the last
// parameter, so defaults may refer to earlier parameters and this.
func (g *Generator) defaultBridge(f *ast.FunDecl) {
	mask := g.prologue(f, 1)
	for i, p := range f.Params {
		if p.Default == nil {
			continue
		}
		if i >= 31 {
			g.fail(p.Default, "too many parameters with defaults in %s", f.Callable.FullName())
		}
		skip := g.e.NewLabel()
		g.e.Load(types.Int, mask)
		g.e.Const(int64(1)<<i, types.Int)
		g.e.TypedOp(And, types.Int)
		g.e.Jump(IfEq, skip)
		g.line(p.Default)
		v := g.local(p.Var, mustSlot(g, p.Var))
		v.Store(g.e, func(t types.Type) { g.genTo(p.Default, t) })
		g.e.Mark(skip)
	}
	if !f.Static {
		g.e.Load(types.Class(f.Owner), 0)
	}
	if g.receiverSlot >= 0 {
		g.e.Load(*f.Receiver, g.receiverSlot)
	}
	for _, p := range f.Params {
		g.local(p.Var, mustSlot(g, p.Var)).Put(g.e, p.Var.Type)
	}
	rt := ReturnType(f.Callable)
	g.e.Invoke(f.Callable)
	if rt.IsVoid() {
		g.e.Op(ReturnVoid)
		return
	}
	g.e.TypedOp(Return, rt)
}

func mustSlot(g *Generator, v *ast.Var) int {
	slot, ok := g.frame.Slot(v)
	if !ok {
		g.fail(nil, "parameter %s has no slot", v.Name)
	}
	return slot
}
