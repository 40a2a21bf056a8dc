package compiler

import (
	"fmt"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

// Label is a branch target. It is bound to an instruction index by Mark.
type Label int

// Sink receives the instructions of one method.
type Sink interface {
	// NewLabel returns a fresh unbound label.
	NewLabel() Label
	// Mark binds l to the position of the next instruction.
	Mark(l Label)
	// Emit appends an instruction.
	Emit(in Instr)
	// LineNumber records that the following instructions belong to line.
	LineNumber(line int)
	// LocalVariable records a debug range for a slot.
	LocalVariable(name string, t types.Type, slot int, start, end Label)
	// TryCatch registers an exception handler for [start, end).
	TryCatch(start, end, handler Label, class string)
}

// MethodBuilder is the Sink that assembles a Method.
type MethodBuilder struct {
	method *Method
	labels []int // label -> pc, -1 while unbound
	locals []pendingLocal
	tries  []pendingTry
}

type pendingLocal struct {
	name       string
	typ        types.Type
	slot       int
	start, end Label
}

type pendingTry struct {
	start, end, handler Label
	class               string
}

var _ Sink = (*MethodBuilder)(nil)

// NewMethodBuilder starts assembling m.
func NewMethodBuilder(m *Method) *MethodBuilder {
	return &MethodBuilder{method: m}
}

func (b *MethodBuilder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

func (b *MethodBuilder) Mark(l Label) {
	if b.labels[l] >= 0 {
		panic(fmt.Sprintf("label %d marked twice", l))
	}
	b.labels[l] = len(b.method.Code)
}

func (b *MethodBuilder) Emit(in Instr) {
	b.method.Code = append(b.method.Code, in)
}

func (b *MethodBuilder) LineNumber(line int) {
	pc := len(b.method.Code)
	lines := b.method.Lines
	if n := len(lines); n > 0 && lines[n-1].PC == pc {
		lines[n-1].Line = line
		return
	}
	b.method.Lines = append(lines, LineEntry{PC: pc, Line: line})
}

func (b *MethodBuilder) LocalVariable(name string, t types.Type, slot int, start, end Label) {
	b.locals = append(b.locals, pendingLocal{name, t, slot, start, end})
}

func (b *MethodBuilder) TryCatch(start, end, handler Label, class string) {
	b.tries = append(b.tries, pendingTry{start, end, handler, class})
}

// PC returns the index of the next instruction.
func (b *MethodBuilder) PC() int {
	return len(b.method.Code)
}

// Reachable reports whether the next instruction can be reached: the last
// instruction falls through, or a label is bound to the next position.
func (b *MethodBuilder) Reachable() bool {
	n := len(b.method.Code)
	if n == 0 || !b.method.Code[n-1].Op.IsTerminal() {
		return true
	}
	for _, pc := range b.labels {
		if pc == n {
			return true
		}
	}
	return false
}

// Position returns the instruction index l is bound to.
func (b *MethodBuilder) Position(l Label) (int, bool) {
	pc, err := b.resolve(l)
	return pc, err == nil
}

// LabelAt returns a label bound to instruction index pc.
func (b *MethodBuilder) LabelAt(pc int) Label {
	b.labels = append(b.labels, pc)
	return Label(len(b.labels) - 1)
}

// Finish resolves labels and returns the method. Empty protected ranges and
// empty debug ranges are dropped.
func (b *MethodBuilder) Finish(maxLocals int) (*Method, error) {
	m := b.method
	m.MaxLocals = maxLocals
	for i := range m.Code {
		in := &m.Code[i]
		if !in.Op.IsJump() {
			continue
		}
		pc, err := b.resolve(Label(in.Label))
		if err != nil {
			return nil, fmt.Errorf("%s: instruction %d: %w", m.FullName(), i, err)
		}
		in.Target = pc
		in.Label = 0
	}
	for _, t := range b.tries {
		start, err1 := b.resolve(t.start)
		end, err2 := b.resolve(t.end)
		target, err3 := b.resolve(t.handler)
		for _, err := range []error{err1, err2, err3} {
			if err != nil {
				return nil, fmt.Errorf("%s: handler: %w", m.FullName(), err)
			}
		}
		if start < end {
			m.Handlers = append(m.Handlers, Handler{Start: start, End: end, Target: target, Class: t.class})
		}
	}
	for _, l := range b.locals {
		start, err1 := b.resolve(l.start)
		end, err2 := b.resolve(l.end)
		if err1 != nil || err2 != nil || start >= end {
			continue
		}
		m.Locals = append(m.Locals, LocalVar{Name: l.name, Type: l.typ, Slot: l.slot, Start: start, End: end})
	}
	return m, nil
}

func (b *MethodBuilder) resolve(l Label) (int, error) {
	if int(l) < 0 || int(l) >= len(b.labels) {
		return 0, fmt.Errorf("unknown label %d", l)
	}
	if b.labels[l] < 0 {
		return 0, fmt.Errorf("label %d never marked", l)
	}
	return b.labels[l], nil
}

// -----------------------------------------------------------------------------
// Emitter
// -----------------------------------------------------------------------------

// Emitter wraps a Sink with the instruction helpers shared by the stack
// values and the generator.
type Emitter struct {
	Sink
	hierarchy *Hierarchy
}

// NewEmitter returns an Emitter writing to sink.
func NewEmitter(sink Sink, h *Hierarchy) *Emitter {
	return &Emitter{Sink: sink, hierarchy: h}
}

// Op emits an instruction without operands.
func (e *Emitter) Op(op Opcode) {
	e.Emit(Instr{Op: op})
}

// TypedOp emits an instruction operating on values of t.
func (e *Emitter) TypedOp(op Opcode, t types.Type) {
	e.Emit(Instr{Op: op, Type: t})
}

// Jump emits a branch to l.
func (e *Emitter) Jump(op Opcode, l Label) {
	e.Emit(Instr{Op: op, Label: int(l)})
}

// Load pushes slot.
func (e *Emitter) Load(t types.Type, slot int) {
	e.Emit(Instr{Op: Load, Type: t, Slot: slot})
}

// Store pops into slot.
func (e *Emitter) Store(t types.Type, slot int) {
	e.Emit(Instr{Op: Store, Type: t, Slot: slot})
}

// Dup duplicates the top n entries; n == 0 emits nothing.
func (e *Emitter) Dup(n int) {
	if n > 0 {
		e.Emit(Instr{Op: Dup, Arg: n})
	}
}

// Unit pushes the Unit sentinel.
func (e *Emitter) Unit() {
	e.Emit(Instr{Op: GetStatic, Owner: types.UnitName, Name: "INSTANCE", Type: types.Unit})
}

// Field emits a field access.
func (e *Emitter) Field(op Opcode, owner, name string, t types.Type) {
	e.Emit(Instr{Op: op, Owner: owner, Name: name, Type: t})
}

// New allocates an instance of class.
func (e *Emitter) New(class string) {
	e.Emit(Instr{Op: New, Owner: class})
}

// Invoke emits a call of c with argc arguments besides the receiver.
func (e *Emitter) Invoke(c *ast.Callable) {
	op := InvokeVirtual
	switch c.Kind {
	case ast.CallStatic:
		op = InvokeStatic
	case ast.CallInterface:
		op = InvokeInterface
	case ast.CallConstructor, ast.CallSpecial:
		op = InvokeSpecial
	}
	argc := len(c.Params)
	if c.Receiver != nil && c.Kind == ast.CallStatic {
		argc++
	}
	e.Call(op, c.Owner, c.Name, argc, ReturnType(c))
}

// Call emits an invocation by name.
func (e *Emitter) Call(op Opcode, owner, name string, argc int, ret types.Type) {
	e.Emit(Instr{Op: op, Owner: owner, Name: name, Arg: argc, Type: ret})
}

// Throw allocates class with a constant message and throws it.
func (e *Emitter) Throw(class, message string) {
	e.New(class)
	e.Dup(1)
	e.Const(message, types.String)
	e.Call(InvokeSpecial, class, "<init>", 1, types.Void)
	e.Op(Throw)
}

// Const pushes constant v of static type t, which may be a reference type
// holding a primitive (the VM boxes it).
func (e *Emitter) Const(v any, t types.Type) {
	if v == nil {
		e.Op(ConstNull)
		return
	}
	e.Emit(Instr{Op: Const, Type: t, Const: normalizeValue(v, t)})
}

// ReturnType returns the descriptor result of c: Void for Unit and
// constructors.
func ReturnType(c *ast.Callable) types.Type {
	if c.Kind == ast.CallConstructor || c.Return.IsUnit() || c.Return.IsVoid() {
		return types.Void
	}
	return c.Return
}
