// Package vm is the reference interpreter for lowered programs. It runs
// the instructions of compiler.Program methods over an operand stack per
// frame, with exception tables, lazily initialized classes and the
// library runtime classes implemented natively.
package vm

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tliron/commonlog"

	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/types"
)

var log = commonlog.GetLogger("stackgen.vm")

const (
	// DefaultStackSize is the initial operand stack capacity of a frame.
	DefaultStackSize = 16

	// DefaultMaxCallDepth bounds recursion when Config leaves it unset.
	DefaultMaxCallDepth = 1024
)

// ThrownError reports an exception no handler caught.
type ThrownError struct {
	Class     string
	Message   string
	Exception types.Value
	// Trace lists the methods the exception unwound, innermost first.
	Trace []string
}

func (e *ThrownError) Error() string {
	if e.Message == "" {
		return "uncaught " + e.Class
	}
	return fmt.Sprintf("uncaught %s: %s", e.Class, e.Message)
}

// RuntimeError reports a fault of the machine itself: a malformed program
// or a missing method, never a condition the program could catch.
type RuntimeError struct {
	Method  string
	PC      int
	Line    int
	Message string
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d (pc %d): %s", e.Method, e.Line, e.PC, e.Message)
	}
	if e.Method != "" {
		return fmt.Sprintf("%s (pc %d): %s", e.Method, e.PC, e.Message)
	}
	return e.Message
}

// thrown carries an exception object up through Go calls until a frame
// with a matching handler is found.
type thrown struct {
	exc   types.Value
	trace []string
}

func (t *thrown) Error() string { return "thrown " + classOf(t.exc) }

// Config holds VM configuration options.
type Config struct {
	// Output receives io.print and io.println; os.Stdout when nil.
	Output io.Writer
	// MaxCallDepth bounds nested calls; DefaultMaxCallDepth when zero.
	MaxCallDepth int
}

// VM executes one program. It is not safe for concurrent use.
type VM struct {
	program *compiler.Program
	classes map[string]*class
	h       *hierarchy
	out     io.Writer

	libStatics map[string]types.Value
	unit       *Object

	ctx      context.Context
	depth    int
	maxDepth int
	nextID   int
}

// New creates a VM for prog.
func New(prog *compiler.Program, cfg Config) *VM {
	vm := &VM{
		program:    prog,
		classes:    make(map[string]*class, len(prog.Classes)),
		out:        cfg.Output,
		libStatics: make(map[string]types.Value),
		maxDepth:   cfg.MaxCallDepth,
		ctx:        context.Background(),
	}
	if vm.out == nil {
		vm.out = os.Stdout
	}
	if vm.maxDepth <= 0 {
		vm.maxDepth = DefaultMaxCallDepth
	}
	for _, c := range prog.Classes {
		vm.classes[c.Name] = newClass(c)
	}
	vm.h = &hierarchy{program: vm.classes, library: semantic.NewClassTable()}
	vm.unit = vm.newObject(types.UnitName)
	vm.libStatics[types.UnitName+".INSTANCE"] = types.Ref(vm.unit)
	return vm
}

// Unit returns the Unit sentinel.
func (vm *VM) Unit() types.Value { return types.Ref(vm.unit) }

// Call runs the static method owner.name with args, one per parameter,
// and returns its result (the zero Value for methods returning nothing).
func (vm *VM) Call(ctx context.Context, owner, name string, args ...types.Value) (types.Value, error) {
	c, ok := vm.classes[owner]
	if !ok {
		return types.Value{}, &RuntimeError{Message: fmt.Sprintf("no class %s", owner)}
	}
	m, ok := c.methods[name]
	if !ok || !m.Static {
		return types.Value{}, &RuntimeError{Message: fmt.Sprintf("no static method %s.%s", owner, name)}
	}
	if len(args) != len(m.Params) {
		return types.Value{}, &RuntimeError{Message: fmt.Sprintf("%s takes %d arguments, got %d", m.FullName(), len(m.Params), len(args))}
	}
	vm.ctx = ctx
	defer func() { vm.ctx = context.Background() }()
	log.Debugf("calling %s", m.FullName())

	res, err := vm.run(owner, m, args)
	if t, ok := err.(*thrown); ok {
		return types.Value{}, vm.uncaught(t)
	}
	return res, err
}

func (vm *VM) run(owner string, m *compiler.Method, args []types.Value) (types.Value, error) {
	if err := vm.initClass(owner); err != nil {
		return types.Value{}, err
	}
	return vm.invoke(m, args)
}

func (vm *VM) uncaught(t *thrown) *ThrownError {
	e := &ThrownError{Class: classOf(t.exc), Exception: t.exc, Trace: t.trace}
	if o, ok := t.exc.Ref().(*Object); ok {
		if msg, ok := o.Fields["message"].AsString(); ok {
			e.Message = msg
		}
	}
	return e
}

// initClass runs the static initializer of a program class once.
func (vm *VM) initClass(name string) error {
	c, ok := vm.classes[name]
	if !ok || c.initialized {
		return nil
	}
	c.initialized = true
	if c.decl.Super != "" {
		if err := vm.initClass(c.decl.Super); err != nil {
			return err
		}
	}
	m, ok := c.methods["<clinit>"]
	if !ok {
		return nil
	}
	log.Debugf("initializing %s", name)
	_, err := vm.invoke(m, nil)
	return err
}

func (vm *VM) newObject(class string) *Object {
	vm.nextID++
	return &Object{Class: class, Fields: make(map[string]types.Value), id: vm.nextID}
}

// newThrowable allocates a library exception with message.
func (vm *VM) newThrowable(class, message string) types.Value {
	o := vm.newObject(class)
	o.Fields["message"] = types.Str(message)
	return types.Ref(o)
}

// throw returns the error raising a new library exception.
func (vm *VM) throw(class, format string, args ...any) error {
	return &thrown{exc: vm.newThrowable(class, fmt.Sprintf(format, args...))}
}

func (vm *VM) npe(what string) error {
	return vm.throw("NullPointerException", "%s on a null reference", what)
}

// -----------------------------------------------------------------------------
// Calls
// -----------------------------------------------------------------------------

// invoke runs m with args laid out in its parameter slots.
func (vm *VM) invoke(m *compiler.Method, args []types.Value) (types.Value, error) {
	if m.Abstract {
		return types.Value{}, &RuntimeError{Method: m.FullName(), Message: "abstract method called"}
	}
	if vm.depth >= vm.maxDepth {
		return types.Value{}, &RuntimeError{Method: m.FullName(), Message: fmt.Sprintf("call depth exceeds %d", vm.maxDepth)}
	}
	if err := vm.ctx.Err(); err != nil {
		return types.Value{}, err
	}
	vm.depth++
	defer func() { vm.depth-- }()

	locals := make([]types.Value, max(m.MaxLocals, m.ParamSlots()))
	slot, i := 0, 0
	if !m.Static {
		locals[0] = args[0]
		slot, i = 1, 1
	}
	for _, p := range m.Params {
		locals[slot] = args[i]
		slot += p.Size()
		i++
	}
	return vm.execute(m, locals)
}

// dispatch performs the call described by in with args, the receiver
// first for instance calls.
func (vm *VM) dispatch(in *compiler.Instr, args []types.Value) (types.Value, error) {
	switch in.Op {
	case compiler.InvokeStatic:
		if c, ok := vm.classes[in.Owner]; ok {
			if m, ok := c.methods[in.Name]; ok {
				if err := vm.initClass(in.Owner); err != nil {
					return types.Value{}, err
				}
				return vm.invoke(m, args)
			}
		}
		return vm.callNative(in, args, vm.h.chain(in.Owner))

	case compiler.InvokeSpecial:
		if c, ok := vm.classes[in.Owner]; ok {
			if m, ok := c.methods[in.Name]; ok {
				return vm.invoke(m, args)
			}
		}
		return vm.callNative(in, args, vm.h.chain(in.Owner))
	}

	recv := args[0]
	if recv.IsNull() {
		return types.Value{}, vm.npe(in.Owner + "." + in.Name)
	}
	chain := vm.h.chain(classOf(recv))
	if m := vm.virtual(chain, in.Name); m != nil {
		return vm.invoke(m, args)
	}
	return vm.callNative(in, args, append(chain, vm.h.chain(in.Owner)...))
}

// virtual finds the program method name overriding along chain.
func (vm *VM) virtual(chain []string, name string) *compiler.Method {
	for _, cn := range chain {
		c, ok := vm.classes[cn]
		if !ok {
			continue
		}
		if m, ok := c.methods[name]; ok && !m.Static && !m.Abstract {
			return m
		}
	}
	return nil
}

func (vm *VM) callNative(in *compiler.Instr, args []types.Value, chain []string) (types.Value, error) {
	for _, cn := range chain {
		if fn, ok := lookupNative(cn, in.Name); ok {
			return fn(vm, args)
		}
	}
	return types.Value{}, &RuntimeError{Message: fmt.Sprintf("no method %s.%s/%d", in.Owner, in.Name, in.Arg)}
}

// callMethod invokes name on a receiver from native code.
func (vm *VM) callMethod(recv types.Value, name string, args ...types.Value) (types.Value, bool, error) {
	m := vm.virtual(vm.h.chain(classOf(recv)), name)
	if m == nil {
		return types.Value{}, false, nil
	}
	v, err := vm.invoke(m, append([]types.Value{recv}, args...))
	return v, true, err
}

// -----------------------------------------------------------------------------
// Interpreter loop
// -----------------------------------------------------------------------------

func (vm *VM) execute(m *compiler.Method, locals []types.Value) (types.Value, error) {
	stack := make([]types.Value, 0, DefaultStackSize)
	push := func(v types.Value) { stack = append(stack, v) }
	pop := func() types.Value {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	fault := func(pc int, format string, args ...any) error {
		return &RuntimeError{Method: m.FullName(), PC: pc, Line: m.LineAt(pc), Message: fmt.Sprintf(format, args...)}
	}

	pc := 0
	for {
		if pc < 0 || pc >= len(m.Code) {
			return types.Value{}, fault(pc, "execution ran off the code")
		}
		at := pc
		in := &m.Code[pc]
		pc++
		var err error

		switch in.Op {
		case compiler.Nop:

		case compiler.Const:
			if in.Type.IsPrimitive() {
				push(types.FromConst(in.Const, in.Type))
			} else {
				push(boxConst(in.Const, in.Type))
			}
		case compiler.ConstNull:
			push(types.Null())

		case compiler.Load:
			push(locals[in.Slot])
		case compiler.Store:
			locals[in.Slot] = pop()
		case compiler.Inc:
			locals[in.Slot] = types.IntVal(locals[in.Slot].AsInt() + int32(in.Arg))

		case compiler.Pop:
			pop()
		case compiler.Dup:
			stack = append(stack, stack[len(stack)-in.Arg:]...)
		case compiler.DupX:
			top := stack[len(stack)-1]
			i := len(stack) - 1 - in.Arg
			stack = append(stack, types.Value{})
			copy(stack[i+1:], stack[i:len(stack)-1])
			stack[i] = top
		case compiler.Swap:
			n := len(stack)
			stack[n-1], stack[n-2] = stack[n-2], stack[n-1]

		case compiler.Add, compiler.Sub, compiler.Mul, compiler.Div, compiler.Rem,
			compiler.And, compiler.Or, compiler.Xor, compiler.Shl, compiler.Shr, compiler.Ushr:
			b := pop()
			a := pop()
			var r types.Value
			r, err = vm.arith(in.Op, in.Type.Kind, a, b)
			if err == nil {
				push(r)
			}
		case compiler.Neg:
			push(negate(in.Type.Kind, pop()))
		case compiler.Convert:
			push(types.Convert(pop(), in.Type.Kind, in.To.Kind))
		case compiler.Cmp:
			b := pop()
			a := pop()
			push(types.IntVal(compare(in.Type.Kind, a, b, int32(in.Arg))))

		case compiler.Jump:
			if in.Target <= at {
				err = vm.ctx.Err()
			}
			pc = in.Target
		case compiler.IfEq, compiler.IfNe, compiler.IfLt, compiler.IfGe, compiler.IfGt, compiler.IfLe:
			if branch(in.Op, pop().AsInt(), 0) {
				pc = in.Target
			}
		case compiler.IfCmpEq, compiler.IfCmpNe, compiler.IfCmpLt, compiler.IfCmpGe, compiler.IfCmpGt, compiler.IfCmpLe:
			b := pop()
			a := pop()
			if branch(in.Op-(compiler.IfCmpEq-compiler.IfEq), a.AsInt(), b.AsInt()) {
				pc = in.Target
			}
		case compiler.IfRefEq, compiler.IfRefNe:
			b := pop()
			a := pop()
			if (a == b) == (in.Op == compiler.IfRefEq) {
				pc = in.Target
			}
		case compiler.IfNull, compiler.IfNonNull:
			if pop().IsNull() == (in.Op == compiler.IfNull) {
				pc = in.Target
			}

		case compiler.GetField:
			obj := pop()
			var o *Object
			if o, err = vm.object(obj, in.Name); err == nil {
				v, ok := o.Fields[in.Name]
				if !ok {
					v = zero(in.Type)
				}
				push(v)
			}
		case compiler.PutField:
			v := pop()
			obj := pop()
			var o *Object
			if o, err = vm.object(obj, in.Name); err == nil {
				o.Fields[in.Name] = v
			}
		case compiler.GetStatic:
			var v types.Value
			if v, err = vm.getStatic(in.Owner, in.Name, in.Type); err == nil {
				push(v)
			}
		case compiler.PutStatic:
			err = vm.putStatic(in.Owner, in.Name, pop())

		case compiler.InvokeStatic, compiler.InvokeVirtual, compiler.InvokeInterface, compiler.InvokeSpecial:
			n := in.Arg
			if in.Op != compiler.InvokeStatic {
				n++
			}
			if n > len(stack) {
				return types.Value{}, fault(at, "%s needs %d operands, stack has %d", in, n, len(stack))
			}
			args := make([]types.Value, n)
			copy(args, stack[len(stack)-n:])
			stack = stack[:len(stack)-n]
			var r types.Value
			if r, err = vm.dispatch(in, args); err == nil && !in.Type.IsVoid() {
				push(r)
			}

		case compiler.New:
			if err = vm.initClass(in.Owner); err == nil {
				push(types.Ref(vm.newObject(in.Owner)))
			}
		case compiler.NewArray:
			n := pop().AsInt()
			if n < 0 {
				err = vm.throw("IllegalArgumentException", "negative array size %d", n)
				break
			}
			push(types.Ref(newArray(*in.Type.Elem, int(n))))
		case compiler.ArrayLength:
			var a *Array
			if a, err = vm.array(pop()); err == nil {
				push(types.IntVal(int32(len(a.Data))))
			}
		case compiler.ArrayLoad:
			i := pop().AsInt()
			var a *Array
			if a, err = vm.array(pop()); err == nil {
				if err = vm.checkIndex(a, i); err == nil {
					push(a.Data[i])
				}
			}
		case compiler.ArrayStore:
			v := pop()
			i := pop().AsInt()
			var a *Array
			if a, err = vm.array(pop()); err == nil {
				if err = vm.checkIndex(a, i); err == nil {
					a.Data[i] = v
				}
			}
		case compiler.InstanceOf:
			push(types.BoolVal(vm.h.isInstance(pop(), in.Type)))
		case compiler.CheckCast:
			v := stack[len(stack)-1]
			if !v.IsNull() && !vm.h.isInstance(v, in.Type) {
				err = vm.throw("ClassCastException", "%s cannot be cast to %s", classOf(v), in.Type.NonNull())
			}
		case compiler.Box:
			push(box(pop(), in.Type.Kind))
		case compiler.Unbox:
			v := pop()
			b, ok := v.Ref().(Boxed)
			switch {
			case v.IsNull():
				err = vm.npe("unboxing")
			case !ok:
				err = vm.throw("ClassCastException", "%s cannot be cast to %s", classOf(v), in.Type.Kind)
			default:
				push(types.Convert(b.Value, b.Kind, in.Type.Kind))
			}

		case compiler.Throw:
			v := pop()
			if v.IsNull() {
				err = vm.npe("throw")
			} else {
				err = &thrown{exc: v}
			}
		case compiler.Return:
			return pop(), nil
		case compiler.ReturnVoid:
			return types.Value{}, nil

		default:
			return types.Value{}, fault(at, "unknown opcode %s", in.Op)
		}

		if err == nil {
			continue
		}
		t, ok := err.(*thrown)
		if !ok {
			return types.Value{}, err
		}
		h, found := vm.handler(m, at, t.exc)
		if !found {
			t.trace = append(t.trace, m.FullName())
			return types.Value{}, t
		}
		stack = append(stack[:0], t.exc)
		pc = h
	}
}

// handler returns the target of the first entry of m's exception table
// covering pc that accepts exc.
func (vm *VM) handler(m *compiler.Method, pc int, exc types.Value) (int, bool) {
	for _, h := range m.Handlers {
		if pc < h.Start || pc >= h.End {
			continue
		}
		if h.Class == "" || vm.h.isSubclass(classOf(exc), h.Class) {
			return h.Target, true
		}
	}
	return 0, false
}

func (vm *VM) object(v types.Value, field string) (*Object, error) {
	if v.IsNull() {
		return nil, vm.npe("field " + field)
	}
	o, ok := v.Ref().(*Object)
	if !ok {
		return nil, &RuntimeError{Message: fmt.Sprintf("field %s of %s", field, classOf(v))}
	}
	return o, nil
}

func (vm *VM) array(v types.Value) (*Array, error) {
	if v.IsNull() {
		return nil, vm.npe("array access")
	}
	a, ok := v.Ref().(*Array)
	if !ok {
		return nil, &RuntimeError{Message: fmt.Sprintf("%s is not an array", classOf(v))}
	}
	return a, nil
}

func (vm *VM) checkIndex(a *Array, i int32) error {
	if i < 0 || int(i) >= len(a.Data) {
		return vm.throw("IndexOutOfBoundsException", "Index %d out of bounds for length %d", i, len(a.Data))
	}
	return nil
}

func newArray(elem types.Type, n int) *Array {
	a := &Array{Elem: elem, Data: make([]types.Value, n)}
	z := zero(elem)
	for i := range a.Data {
		a.Data[i] = z
	}
	return a
}

func (vm *VM) getStatic(owner, name string, t types.Type) (types.Value, error) {
	c, ok := vm.classes[owner]
	if !ok {
		if v, ok := vm.libStatics[owner+"."+name]; ok {
			return v, nil
		}
		return types.Value{}, &RuntimeError{Message: fmt.Sprintf("no static field %s.%s", owner, name)}
	}
	if err := vm.initClass(owner); err != nil {
		return types.Value{}, err
	}
	v, ok := c.statics[name]
	if !ok {
		return zero(t), nil
	}
	return v, nil
}

func (vm *VM) putStatic(owner, name string, v types.Value) error {
	c, ok := vm.classes[owner]
	if !ok {
		return &RuntimeError{Message: fmt.Sprintf("no static field %s.%s", owner, name)}
	}
	if err := vm.initClass(owner); err != nil {
		return err
	}
	c.statics[name] = v
	return nil
}

// -----------------------------------------------------------------------------
// Arithmetic
// -----------------------------------------------------------------------------

func (vm *VM) arith(op compiler.Opcode, k types.Kind, a, b types.Value) (types.Value, error) {
	switch k {
	case types.KindLong:
		x, y := a.AsLong(), b.AsLong()
		s := uint(b.AsInt()) & 63
		switch op {
		case compiler.Add:
			return types.LongVal(x + y), nil
		case compiler.Sub:
			return types.LongVal(x - y), nil
		case compiler.Mul:
			return types.LongVal(x * y), nil
		case compiler.Div, compiler.Rem:
			if y == 0 {
				return types.Value{}, vm.throw("ArithmeticException", "/ by zero")
			}
			if op == compiler.Div {
				return types.LongVal(x / y), nil
			}
			return types.LongVal(x % y), nil
		case compiler.And:
			return types.LongVal(x & y), nil
		case compiler.Or:
			return types.LongVal(x | y), nil
		case compiler.Xor:
			return types.LongVal(x ^ y), nil
		case compiler.Shl:
			return types.LongVal(x << s), nil
		case compiler.Shr:
			return types.LongVal(x >> s), nil
		case compiler.Ushr:
			return types.LongVal(int64(uint64(x) >> s)), nil
		}

	case types.KindFloat, types.KindDouble:
		x, y := a.AsDouble(), b.AsDouble()
		var r float64
		switch op {
		case compiler.Add:
			r = x + y
		case compiler.Sub:
			r = x - y
		case compiler.Mul:
			r = x * y
		case compiler.Div:
			r = x / y
		case compiler.Rem:
			r = math.Mod(x, y)
		default:
			return types.Value{}, &RuntimeError{Message: fmt.Sprintf("%s on %s", op, k)}
		}
		if k == types.KindFloat {
			return types.FloatVal(float32(r)), nil
		}
		return types.DoubleVal(r), nil

	default:
		x, y := a.AsInt(), b.AsInt()
		s := uint(y) & 31
		switch op {
		case compiler.Add:
			return types.IntVal(x + y), nil
		case compiler.Sub:
			return types.IntVal(x - y), nil
		case compiler.Mul:
			return types.IntVal(x * y), nil
		case compiler.Div, compiler.Rem:
			if y == 0 {
				return types.Value{}, vm.throw("ArithmeticException", "/ by zero")
			}
			if op == compiler.Div {
				return types.IntVal(x / y), nil
			}
			return types.IntVal(x % y), nil
		case compiler.And:
			return types.IntVal(x & y), nil
		case compiler.Or:
			return types.IntVal(x | y), nil
		case compiler.Xor:
			return types.IntVal(x ^ y), nil
		case compiler.Shl:
			return types.IntVal(x << s), nil
		case compiler.Shr:
			return types.IntVal(x >> s), nil
		case compiler.Ushr:
			return types.IntVal(int32(uint32(x) >> s)), nil
		}
	}
	return types.Value{}, &RuntimeError{Message: fmt.Sprintf("%s on %s", op, k)}
}

func negate(k types.Kind, v types.Value) types.Value {
	switch k {
	case types.KindLong:
		return types.LongVal(-v.AsLong())
	case types.KindFloat:
		return types.FloatVal(-float32(v.AsDouble()))
	case types.KindDouble:
		return types.DoubleVal(-v.AsDouble())
	}
	return types.IntVal(-v.AsInt())
}

// compare returns -1, 0 or 1; nan is the result when either floating
// operand is NaN.
func compare(k types.Kind, a, b types.Value, nan int32) int32 {
	switch k {
	case types.KindFloat, types.KindDouble:
		x, y := a.AsDouble(), b.AsDouble()
		switch {
		case math.IsNaN(x) || math.IsNaN(y):
			return nan
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	x, y := a.AsLong(), b.AsLong()
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// branch evaluates the single-operand condition op on a against b.
func branch(op compiler.Opcode, a, b int32) bool {
	switch op {
	case compiler.IfEq:
		return a == b
	case compiler.IfNe:
		return a != b
	case compiler.IfLt:
		return a < b
	case compiler.IfGe:
		return a >= b
	case compiler.IfGt:
		return a > b
	case compiler.IfLe:
		return a <= b
	}
	return false
}
