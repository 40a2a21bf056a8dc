package compiler

import (
	"fmt"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

// ValueKind tags the variants of StackValue.
type ValueKind uint8

const (
	ValueNone              ValueKind = iota // statement context, no value
	ValueConstant                           // compile-time constant
	ValueOnStack                            // already on the operand stack
	ValueLocal                              // slot
	ValueShared                             // shared cell held in a slot
	ValueSharedField                        // shared cell held in a field of the receiver
	ValueField                              // instance or static field
	ValueProperty                           // accessor calls, or the backing field
	ValueArrayElement                       // native array element
	ValueCollectionElement                  // element reached through get/set calls
	ValueComposed                           // prefixes evaluated first, then the suffix
	ValueCompare                            // pending comparison of operands on the stack
	ValueNot                                // negated condition
	ValueBranch                             // condition lowered straight to jumps
)

var valueKindNames = [...]string{
	ValueNone:              "None",
	ValueConstant:          "Constant",
	ValueOnStack:           "OnStack",
	ValueLocal:             "Local",
	ValueShared:            "Shared",
	ValueSharedField:       "SharedField",
	ValueField:             "Field",
	ValueProperty:          "Property",
	ValueArrayElement:      "ArrayElement",
	ValueCollectionElement: "CollectionElement",
	ValueComposed:          "Composed",
	ValueCompare:           "Compare",
	ValueNot:               "Not",
	ValueBranch:            "Branch",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", k)
}

// CompareForm tells which operands a pending comparison has on the stack.
type CompareForm uint8

const (
	FormTwo  CompareForm = iota // two operands of the operand type
	FormZero                    // one Int against zero
	FormNull                    // one reference against null
)

// refType is the type of a shared cell.
var refType = types.Class(types.RefName)

// refElement is the field of a shared cell holding the value.
const refElement = "element"

// StackValue describes a value and how to load it, store it and branch on
// it. Receivers a variant needs (the object of a field, the array and index
// of an element) are already on the stack below, except for Composed,
// whose prefixes push them.
type StackValue struct {
	Kind ValueKind
	Type types.Type

	Const any // Constant

	Slot int // Local, Shared

	Owner  string // Field, SharedField
	Name   string
	Static bool // Field, Property

	Getter *ast.Callable // Property; CollectionElement get
	Setter *ast.Callable // Property; CollectionElement set
	Ref    *ast.FieldRef // Property
	Index  int           // CollectionElement: number of index entries

	Prefix []StackValue // Composed
	Suffix *StackValue

	Op      ast.CompareOp // Compare
	Form    CompareForm
	Operand types.Type

	Inner *StackValue // Not

	branch func(l Label, jumpIfFalse bool) // Branch
}

// None is the value of a statement. Nothing marks code after a jump.
func None() StackValue { return StackValue{Kind: ValueNone, Type: types.Void} }

// Nothing is the value of an expression that never completes.
func Nothing() StackValue { return StackValue{Kind: ValueNone, Type: types.Nothing} }

// Constant is a compile-time value.
func Constant(v any, t types.Type) StackValue {
	return StackValue{Kind: ValueConstant, Type: t, Const: v}
}

// OnStack is a value already pushed.
func OnStack(t types.Type) StackValue {
	return StackValue{Kind: ValueOnStack, Type: t}
}

// Local is a value held in slot.
func Local(slot int, t types.Type) StackValue {
	return StackValue{Kind: ValueLocal, Type: t, Slot: slot}
}

// Shared is a value held in the shared cell stored in slot.
func Shared(slot int, t types.Type) StackValue {
	return StackValue{Kind: ValueShared, Type: t, Slot: slot}
}

// SharedField is a value held in the shared cell stored in owner.name of
// the receiver on the stack.
func SharedField(owner, name string, t types.Type) StackValue {
	return StackValue{Kind: ValueSharedField, Type: t, Owner: owner, Name: name}
}

// FieldValue is owner.name, of the receiver on the stack unless static.
func FieldValue(owner, name string, t types.Type, static bool) StackValue {
	return StackValue{Kind: ValueField, Type: t, Owner: owner, Name: name, Static: static}
}

// Property is a property read through its accessors. Missing accessors
// fall back to the backing field.
func Property(ref *ast.FieldRef) StackValue {
	return StackValue{Kind: ValueProperty, Type: ref.Type, Owner: ref.Owner, Name: ref.Name,
		Static: ref.Static, Getter: ref.Getter, Setter: ref.Setter, Ref: ref}
}

// ArrayElement is an element of the array and index on the stack.
func ArrayElement(elem types.Type) StackValue {
	return StackValue{Kind: ValueArrayElement, Type: elem}
}

// CollectionElement is an element read by get and written by set, with
// the receiver and n index values on the stack.
func CollectionElement(t types.Type, get, set *ast.Callable, n int) StackValue {
	return StackValue{Kind: ValueCollectionElement, Type: t, Getter: get, Setter: set, Index: n}
}

// Composed evaluates prefix values, each to its own type, then behaves as
// suffix.
func Composed(suffix StackValue, prefix ...StackValue) StackValue {
	if len(prefix) == 0 {
		return suffix
	}
	return StackValue{Kind: ValueComposed, Type: suffix.Type, Prefix: prefix, Suffix: &suffix}
}

// Compare is a pending comparison of operands of type operand on the stack.
func Compare(op ast.CompareOp, operand types.Type) StackValue {
	return StackValue{Kind: ValueCompare, Type: types.Boolean, Op: op, Form: FormTwo, Operand: operand}
}

// CompareZero is a pending comparison of the Int on the stack against zero.
func CompareZero(op ast.CompareOp) StackValue {
	return StackValue{Kind: ValueCompare, Type: types.Boolean, Op: op, Form: FormZero, Operand: types.Int}
}

// CompareNull is a pending null test of the reference on the stack; op is
// OpEq or OpNotEq.
func CompareNull(op ast.CompareOp) StackValue {
	return StackValue{Kind: ValueCompare, Type: types.Boolean, Op: op, Form: FormNull, Operand: types.NullableAny}
}

// Not negates a Boolean value.
func Not(v StackValue) StackValue {
	if v.Kind == ValueNot {
		return *v.Inner
	}
	if v.Kind == ValueConstant {
		if b, ok := v.Const.(bool); ok {
			return Constant(!b, types.Boolean)
		}
	}
	return StackValue{Kind: ValueNot, Type: types.Boolean, Inner: &v}
}

// Branch is a condition that emits its own jumps. fn is called once.
func Branch(fn func(l Label, jumpIfFalse bool)) StackValue {
	return StackValue{Kind: ValueBranch, Type: types.Boolean, branch: fn}
}

func (v StackValue) String() string {
	switch v.Kind {
	case ValueConstant:
		return fmt.Sprintf("Constant(%v %s)", v.Const, v.Type)
	case ValueLocal, ValueShared:
		return fmt.Sprintf("%s(%d %s)", v.Kind, v.Slot, v.Type)
	case ValueField, ValueSharedField, ValueProperty:
		return fmt.Sprintf("%s(%s.%s %s)", v.Kind, v.Owner, v.Name, v.Type)
	}
	return fmt.Sprintf("%s(%s)", v.Kind, v.Type)
}

// -----------------------------------------------------------------------------
// Load
// -----------------------------------------------------------------------------

// Put pushes the value coerced to t. A Void t evaluates only what has
// side effects or consumes receivers already on the stack.
func (v StackValue) Put(e *Emitter, t types.Type) {
	switch v.Kind {
	case ValueNone:
		e.Coerce(v.Type, t)

	case ValueConstant:
		v.putConstant(e, t)

	case ValueOnStack:
		e.Coerce(v.Type, t)

	case ValueLocal:
		if t.IsVoid() {
			return
		}
		e.Load(v.Type, v.Slot)
		e.Coerce(v.Type, t)

	case ValueShared:
		if t.IsVoid() {
			return
		}
		e.Load(refType, v.Slot)
		e.Field(GetField, types.RefName, refElement, types.NullableAny)
		v.fromCell(e, t)

	case ValueSharedField:
		e.Field(GetField, v.Owner, v.Name, refType)
		e.Field(GetField, types.RefName, refElement, types.NullableAny)
		v.fromCell(e, t)

	case ValueField:
		if v.Static {
			if t.IsVoid() {
				return
			}
			e.Field(GetStatic, v.Owner, v.Name, v.Type)
		} else {
			e.Field(GetField, v.Owner, v.Name, v.Type)
		}
		e.Coerce(v.Type, t)

	case ValueProperty:
		if v.Getter == nil {
			FieldValue(v.Owner, v.Name, v.Type, v.Static).Put(e, t)
			return
		}
		e.Invoke(v.Getter)
		e.Coerce(ReturnType(v.Getter), t)

	case ValueArrayElement:
		e.TypedOp(ArrayLoad, v.Type)
		e.Coerce(v.Type, t)

	case ValueCollectionElement:
		e.Invoke(v.Getter)
		e.Coerce(ReturnType(v.Getter), t)

	case ValueComposed:
		for _, p := range v.Prefix {
			p.Put(e, p.Type)
		}
		v.Suffix.Put(e, t)

	case ValueCompare:
		if t.IsVoid() {
			for range v.operands() {
				e.Op(Pop)
			}
			return
		}
		v.materialize(e, t)

	case ValueNot:
		if t.IsVoid() {
			v.Inner.Put(e, t)
			return
		}
		v.materialize(e, t)

	case ValueBranch:
		if t.IsVoid() {
			l := e.NewLabel()
			v.branch(l, true)
			e.Mark(l)
			return
		}
		v.materialize(e, t)

	default:
		panic(fmt.Sprintf("put of %s", v))
	}
}

// fromCell converts the Any? read from a shared cell to t.
func (v StackValue) fromCell(e *Emitter, t types.Type) {
	if t.IsReference() && !t.IsPrimitiveKind() && e.hierarchy.IsSubtype(v.Type.Boxed(), t) {
		return
	}
	e.Coerce(types.NullableAny, v.Type)
	e.Coerce(v.Type, t)
}

func (v StackValue) putConstant(e *Emitter, t types.Type) {
	switch {
	case t.IsVoid():
		return
	case v.Const == nil:
		e.Op(ConstNull)
	case t.IsPrimitive():
		e.Const(v.Const, t)
	case v.Type.IsPrimitiveKind():
		// One instruction: the VM boxes a primitive constant of a reference type.
		boxed := v.Type.Boxed().NonNull()
		if u := t.Unboxed(); u.IsPrimitive() {
			boxed = u.Boxed()
		}
		e.Const(v.Const, boxed)
	default:
		e.Const(v.Const, v.Type.NonNull())
	}
}

// materialize pushes the Boolean outcome of a condition.
func (v StackValue) materialize(e *Emitter, t types.Type) {
	falseL, end := e.NewLabel(), e.NewLabel()
	v.CondJump(e, falseL, true)
	e.Const(true, types.Boolean)
	e.Jump(Jump, end)
	e.Mark(falseL)
	e.Const(false, types.Boolean)
	e.Mark(end)
	e.Coerce(types.Boolean, t)
}

func (v StackValue) operands() []struct{} {
	if v.Form == FormTwo {
		return make([]struct{}, 2)
	}
	return make([]struct{}, 1)
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store writes the value pushed by put, which is called with the type to
// push at the point the value belongs in the sequence.
func (v StackValue) Store(e *Emitter, put func(t types.Type)) {
	switch v.Kind {
	case ValueLocal:
		put(v.Type)
		e.Store(v.Type, v.Slot)

	case ValueShared:
		e.Load(refType, v.Slot)
		put(v.Type)
		e.Coerce(v.Type, types.NullableAny)
		e.Field(PutField, types.RefName, refElement, types.NullableAny)

	case ValueSharedField:
		e.Field(GetField, v.Owner, v.Name, refType)
		put(v.Type)
		e.Coerce(v.Type, types.NullableAny)
		e.Field(PutField, types.RefName, refElement, types.NullableAny)

	case ValueComposed:
		for _, p := range v.Prefix {
			p.Put(e, p.Type)
		}
		v.Suffix.Store(e, put)

	case ValueField, ValueProperty, ValueArrayElement, ValueCollectionElement:
		put(v.Type)
		v.StoreTop(e)

	default:
		panic(fmt.Sprintf("store to %s", v))
	}
}

// StoreTop writes the value of v.Type on top of the stack, with v's
// receivers below it.
func (v StackValue) StoreTop(e *Emitter) {
	switch v.Kind {
	case ValueLocal:
		e.Store(v.Type, v.Slot)

	case ValueShared:
		e.Coerce(v.Type, types.NullableAny)
		e.Load(refType, v.Slot)
		e.Op(Swap)
		e.Field(PutField, types.RefName, refElement, types.NullableAny)

	case ValueSharedField:
		e.Coerce(v.Type, types.NullableAny)
		e.Op(Swap)
		e.Field(GetField, v.Owner, v.Name, refType)
		e.Op(Swap)
		e.Field(PutField, types.RefName, refElement, types.NullableAny)

	case ValueField:
		if v.Static {
			e.Field(PutStatic, v.Owner, v.Name, v.Type)
		} else {
			e.Field(PutField, v.Owner, v.Name, v.Type)
		}

	case ValueProperty:
		if v.Setter == nil {
			FieldValue(v.Owner, v.Name, v.Type, v.Static).StoreTop(e)
			return
		}
		e.Coerce(v.Type, v.Setter.Params[0].Type)
		e.Invoke(v.Setter)
		e.Coerce(ReturnType(v.Setter), types.Void)

	case ValueArrayElement:
		e.TypedOp(ArrayStore, v.Type)

	case ValueCollectionElement:
		if v.Setter == nil {
			panic(fmt.Sprintf("store to %s without a set operator", v))
		}
		e.Coerce(v.Type, v.Setter.Params[len(v.Setter.Params)-1].Type)
		e.Invoke(v.Setter)
		e.Coerce(ReturnType(v.Setter), types.Void)

	case ValueComposed:
		v.Suffix.StoreTop(e)

	default:
		panic(fmt.Sprintf("store to %s", v))
	}
}

// -----------------------------------------------------------------------------
// Branch
// -----------------------------------------------------------------------------

// CondJump consumes the Boolean value and jumps to l when it is false
// (jumpIfFalse) or true (!jumpIfFalse).
func (v StackValue) CondJump(e *Emitter, l Label, jumpIfFalse bool) {
	switch v.Kind {
	case ValueConstant:
		if b, ok := v.Const.(bool); ok {
			if b != jumpIfFalse {
				e.Jump(Jump, l)
			}
			return
		}
	case ValueNot:
		v.Inner.CondJump(e, l, !jumpIfFalse)
		return
	case ValueBranch:
		v.branch(l, jumpIfFalse)
		return
	case ValueCompare:
		v.compareJump(e, l, jumpIfFalse)
		return
	case ValueComposed:
		for _, p := range v.Prefix {
			p.Put(e, p.Type)
		}
		v.Suffix.CondJump(e, l, jumpIfFalse)
		return
	}
	v.Put(e, types.Boolean)
	if jumpIfFalse {
		e.Jump(IfEq, l)
	} else {
		e.Jump(IfNe, l)
	}
}

func (v StackValue) compareJump(e *Emitter, l Label, jumpIfFalse bool) {
	var op Opcode
	switch v.Form {
	case FormNull:
		op = IfNull
		if v.Op == ast.OpNotEq || v.Op == ast.OpNotIdentity {
			op = IfNonNull
		}
	case FormZero:
		op = zeroBranch(v.Op)
	default:
		t := v.Operand
		switch {
		case t.IsReference():
			op = IfRefEq
			if v.Op == ast.OpNotEq || v.Op == ast.OpNotIdentity {
				op = IfRefNe
			}
		case t.IsIntLike():
			op = intBranch(v.Op)
		default:
			nan := 1
			if v.Op == ast.OpGreater || v.Op == ast.OpGreaterEq {
				nan = -1
			}
			e.Emit(Instr{Op: Cmp, Type: t, Arg: nan})
			op = zeroBranch(v.Op)
		}
	}
	if jumpIfFalse {
		op = op.Negate()
	}
	e.Jump(op, l)
}

func zeroBranch(op ast.CompareOp) Opcode {
	switch op {
	case ast.OpLess:
		return IfLt
	case ast.OpLessEq:
		return IfLe
	case ast.OpGreater:
		return IfGt
	case ast.OpGreaterEq:
		return IfGe
	case ast.OpNotEq, ast.OpNotIdentity:
		return IfNe
	}
	return IfEq
}

func intBranch(op ast.CompareOp) Opcode {
	switch op {
	case ast.OpLess:
		return IfCmpLt
	case ast.OpLessEq:
		return IfCmpLe
	case ast.OpGreater:
		return IfCmpGt
	case ast.OpGreaterEq:
		return IfCmpGe
	case ast.OpNotEq, ast.OpNotIdentity:
		return IfCmpNe
	}
	return IfCmpEq
}

// -----------------------------------------------------------------------------
// Receivers
// -----------------------------------------------------------------------------

// ReceiverSize returns how many stack entries v consumes besides its value.
func (v StackValue) ReceiverSize() int {
	switch v.Kind {
	case ValueField, ValueProperty:
		if v.Static {
			return 0
		}
		return 1
	case ValueSharedField:
		return 1
	case ValueArrayElement:
		return 2
	case ValueCollectionElement:
		return 1 + v.Index
	case ValueComposed:
		return v.Suffix.ReceiverSize()
	}
	return 0
}

// DupReceiver pushes the receivers of v and duplicates them, so the value
// can be read and then written back without evaluating them twice. It
// returns the value to use for both.
func (v StackValue) DupReceiver(e *Emitter) StackValue {
	s := v
	for s.Kind == ValueComposed {
		for _, p := range s.Prefix {
			p.Put(e, p.Type)
		}
		s = *s.Suffix
	}
	e.Dup(s.ReceiverSize())
	return s
}

// IsStorable reports whether Store and StoreTop are defined for v.
func (v StackValue) IsStorable() bool {
	switch v.Kind {
	case ValueLocal, ValueShared, ValueSharedField, ValueField, ValueProperty, ValueArrayElement:
		return true
	case ValueCollectionElement:
		return v.Setter != nil
	case ValueComposed:
		return v.Suffix.IsStorable()
	}
	return false
}
