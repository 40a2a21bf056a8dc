// Package compiler lowers a resolved program into instructions for a
// stack-based virtual machine.
package compiler

import "fmt"

// Opcode represents a virtual machine instruction.
// Operands live in the fields of Instr; the comment on each opcode names
// the fields it reads.
type Opcode int32

const (
	// Nop does nothing.
	Nop Opcode = iota

	// Constants
	Const     // Push constant: Const (Type, Const)
	ConstNull // Push null reference

	// Local slots
	Load  // Push slot: Load (Type, Slot)
	Store // Pop into slot: Store (Type, Slot)
	Inc   // Add constant to an Int slot: Inc (Slot, Arg=delta)

	// Stack manipulation. Every value occupies one stack entry.
	Pop  // Discard top
	Dup  // Duplicate the top Arg entries: [a b] Dup 2 -> [a b a b]
	DupX // Copy top below the Arg entries under it: [a b c] DupX 2 -> [c a b c]
	Swap // Swap top two entries

	// Arithmetic on primitives of Type
	Add
	Sub
	Mul
	Div
	Rem
	Neg
	And
	Or
	Xor
	Shl  // Shift left; the shift count is an Int
	Shr  // Arithmetic shift right
	Ushr // Logical shift right

	Convert // Primitive conversion: Convert (Type -> To)
	Cmp     // Three-way compare of two Type values to -1/0/1; Arg is the NaN result

	// Branches. Label names the target until the method is finished,
	// Target holds the instruction index afterwards.
	Jump
	IfEq // Int against zero
	IfNe
	IfLt
	IfGe
	IfGt
	IfLe
	IfCmpEq // Two Ints
	IfCmpNe
	IfCmpLt
	IfCmpGe
	IfCmpGt
	IfCmpLe
	IfRefEq // Two references, identity
	IfRefNe
	IfNull
	IfNonNull

	// Fields: (Owner, Name, Type)
	GetField
	PutField
	GetStatic
	PutStatic

	// Calls: (Owner, Name, Arg=argument count without receiver, Type=result)
	// Type is Void when the callee returns nothing.
	InvokeStatic
	InvokeVirtual
	InvokeInterface
	InvokeSpecial // Exact target: constructors and superclass calls

	// Objects and arrays
	New         // Allocate instance of Owner
	NewArray    // Allocate array of Type (length on stack)
	ArrayLength // Push length of array
	ArrayLoad   // [array index] -> element
	ArrayStore  // [array index value] ->
	InstanceOf  // Test against Type, push Boolean
	CheckCast   // Fail unless null or instance of Type
	Box         // Box primitive of Type
	Unbox       // Unbox to primitive Type, fails on null

	Throw      // Throw top
	Return     // Return top
	ReturnVoid // Return nothing
)

var opcodeNames = [...]string{
	Nop:             "Nop",
	Const:           "Const",
	ConstNull:       "ConstNull",
	Load:            "Load",
	Store:           "Store",
	Inc:             "Inc",
	Pop:             "Pop",
	Dup:             "Dup",
	DupX:            "DupX",
	Swap:            "Swap",
	Add:             "Add",
	Sub:             "Sub",
	Mul:             "Mul",
	Div:             "Div",
	Rem:             "Rem",
	Neg:             "Neg",
	And:             "And",
	Or:              "Or",
	Xor:             "Xor",
	Shl:             "Shl",
	Shr:             "Shr",
	Ushr:            "Ushr",
	Convert:         "Convert",
	Cmp:             "Cmp",
	Jump:            "Jump",
	IfEq:            "IfEq",
	IfNe:            "IfNe",
	IfLt:            "IfLt",
	IfGe:            "IfGe",
	IfGt:            "IfGt",
	IfLe:            "IfLe",
	IfCmpEq:         "IfCmpEq",
	IfCmpNe:         "IfCmpNe",
	IfCmpLt:         "IfCmpLt",
	IfCmpGe:         "IfCmpGe",
	IfCmpGt:         "IfCmpGt",
	IfCmpLe:         "IfCmpLe",
	IfRefEq:         "IfRefEq",
	IfRefNe:         "IfRefNe",
	IfNull:          "IfNull",
	IfNonNull:       "IfNonNull",
	GetField:        "GetField",
	PutField:        "PutField",
	GetStatic:       "GetStatic",
	PutStatic:       "PutStatic",
	InvokeStatic:    "InvokeStatic",
	InvokeVirtual:   "InvokeVirtual",
	InvokeInterface: "InvokeInterface",
	InvokeSpecial:   "InvokeSpecial",
	New:             "New",
	NewArray:        "NewArray",
	ArrayLength:     "ArrayLength",
	ArrayLoad:       "ArrayLoad",
	ArrayStore:      "ArrayStore",
	InstanceOf:      "InstanceOf",
	CheckCast:       "CheckCast",
	Box:             "Box",
	Unbox:           "Unbox",
	Throw:           "Throw",
	Return:          "Return",
	ReturnVoid:      "ReturnVoid",
}

// String returns a human-readable name for the opcode.
func (op Opcode) String() string {
	if op >= 0 && int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", op)
}

// IsJump reports whether op transfers control to a label.
func (op Opcode) IsJump() bool {
	return op >= Jump && op <= IfNonNull
}

// IsConditional reports whether op is a conditional branch.
func (op Opcode) IsConditional() bool {
	return op > Jump && op <= IfNonNull
}

// IsInvoke reports whether op is a call.
func (op Opcode) IsInvoke() bool {
	return op >= InvokeStatic && op <= InvokeSpecial
}

// IsTerminal reports whether control never falls through op.
func (op Opcode) IsTerminal() bool {
	switch op {
	case Jump, Throw, Return, ReturnVoid:
		return true
	}
	return false
}

// Negate returns the conditional branch taken exactly when op is not.
func (op Opcode) Negate() Opcode {
	switch op {
	case IfEq:
		return IfNe
	case IfNe:
		return IfEq
	case IfLt:
		return IfGe
	case IfGe:
		return IfLt
	case IfGt:
		return IfLe
	case IfLe:
		return IfGt
	case IfCmpEq:
		return IfCmpNe
	case IfCmpNe:
		return IfCmpEq
	case IfCmpLt:
		return IfCmpGe
	case IfCmpGe:
		return IfCmpLt
	case IfCmpGt:
		return IfCmpLe
	case IfCmpLe:
		return IfCmpGt
	case IfRefEq:
		return IfRefNe
	case IfRefNe:
		return IfRefEq
	case IfNull:
		return IfNonNull
	case IfNonNull:
		return IfNull
	}
	panic(fmt.Sprintf("cannot negate %s", op))
}

// Pops returns how many stack entries a conditional branch consumes.
func (op Opcode) Pops() int {
	switch op {
	case IfEq, IfNe, IfLt, IfGe, IfGt, IfLe, IfNull, IfNonNull:
		return 1
	case IfCmpEq, IfCmpNe, IfCmpLt, IfCmpGe, IfCmpGt, IfCmpLe, IfRefEq, IfRefNe:
		return 2
	}
	return 0
}
