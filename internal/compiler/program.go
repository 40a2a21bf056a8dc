package compiler

import (
	"fmt"
	"strings"

	"github.com/kolkov/stackgen/internal/types"
)

// Program represents a lowered compilation unit ready for VM execution.
type Program struct {
	// Unit is the name of the facade class holding top-level functions
	// and globals.
	Unit string `cbor:"unit"`

	// Classes contains the facade class, declared classes and the classes
	// synthesized for function and object literals, in generation order.
	Classes []*Class `cbor:"classes"`
}

// Class is a lowered class.
type Class struct {
	Name       string    `cbor:"name"`
	Super      string    `cbor:"super,omitempty"`
	Interfaces []string  `cbor:"ifaces,omitempty"`
	Interface  bool      `cbor:"iface,omitempty"`
	Synthetic  bool      `cbor:"synthetic,omitempty"`
	Fields     []Field   `cbor:"fields,omitempty"`
	Methods    []*Method `cbor:"methods,omitempty"`
}

// Field is a field of a lowered class.
type Field struct {
	Name   string     `cbor:"name"`
	Type   types.Type `cbor:"type"`
	Static bool       `cbor:"static,omitempty"`
}

// Method is a lowered method. Instance methods receive this in slot 0;
// parameters follow in declaration order, Long and Double taking two slots.
type Method struct {
	Owner    string       `cbor:"owner"`
	Name     string       `cbor:"name"`
	Params   []types.Type `cbor:"params,omitempty"`
	Return   types.Type   `cbor:"ret"` // types.Void when nothing is returned
	Static   bool         `cbor:"static,omitempty"`
	Abstract bool         `cbor:"abstract,omitempty"`

	MaxLocals int         `cbor:"locals"`
	Code      []Instr     `cbor:"code,omitempty"`
	Lines     []LineEntry `cbor:"lines,omitempty"`
	Locals    []LocalVar  `cbor:"vars,omitempty"`
	Handlers  []Handler   `cbor:"handlers,omitempty"`
}

// Instr is one instruction. Only the fields named by the opcode are set.
type Instr struct {
	Op     Opcode     `cbor:"op"`
	Type   types.Type `cbor:"t,omitempty"`
	To     types.Type `cbor:"to,omitempty"`
	Slot   int        `cbor:"slot,omitempty"`
	Arg    int        `cbor:"arg,omitempty"`
	Owner  string     `cbor:"owner,omitempty"`
	Name   string     `cbor:"name,omitempty"`
	Const  any        `cbor:"k,omitempty"` // int64, float64, string
	Label  int        `cbor:"-"`
	Target int        `cbor:"target,omitempty"`
}

// LineEntry maps the instruction at PC and those following it to a source line.
type LineEntry struct {
	PC   int `cbor:"pc"`
	Line int `cbor:"line"`
}

// LocalVar is a debug range: slot Slot holds Name in [Start, End).
type LocalVar struct {
	Name  string     `cbor:"name"`
	Type  types.Type `cbor:"type"`
	Slot  int        `cbor:"slot"`
	Start int        `cbor:"start"`
	End   int        `cbor:"end"`
}

// Handler is an exception table entry: exceptions of Class (any when
// empty) raised in [Start, End) transfer to Target with the exception as
// the only stack entry.
type Handler struct {
	Start  int    `cbor:"start"`
	End    int    `cbor:"end"`
	Target int    `cbor:"target"`
	Class  string `cbor:"class,omitempty"`
}

// Class returns the class with the given name.
func (p *Program) Class(name string) *Class {
	for _, c := range p.Classes {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Method returns the method with the given name declared by c.
func (c *Class) Method(name string) *Method {
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Field returns the field with the given name declared by c.
func (c *Class) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FullName returns "Owner.Name".
func (m *Method) FullName() string {
	return m.Owner + "." + m.Name
}

// Signature returns the method descriptor, such as "(Int,String?)Boolean".
func (m *Method) Signature() string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ",") + ")" + m.Return.String()
}

// ParamSlots returns the number of slots taken by this and the parameters.
func (m *Method) ParamSlots() int {
	n := 0
	if !m.Static {
		n = 1
	}
	for _, p := range m.Params {
		n += p.Size()
	}
	return n
}

// LineAt returns the source line of the instruction at pc, or 0.
func (m *Method) LineAt(pc int) int {
	line := 0
	for _, e := range m.Lines {
		if e.PC > pc {
			break
		}
		line = e.Line
	}
	return line
}

// Count returns how many instructions of m satisfy pred.
func (m *Method) Count(pred func(Instr) bool) int {
	n := 0
	for _, in := range m.Code {
		if pred(in) {
			n++
		}
	}
	return n
}

// Disassemble returns a human-readable disassembly of the program.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for i, c := range p.Classes {
		if i > 0 {
			sb.WriteString("\n")
		}
		c.disassemble(&sb, nil)
	}
	return sb.String()
}

// DisassembleFunc is like Disassemble but only lists methods accepted by keep.
func (p *Program) DisassembleFunc(keep func(*Method) bool) string {
	var sb strings.Builder
	for _, c := range p.Classes {
		c.disassemble(&sb, keep)
	}
	return sb.String()
}

func (c *Class) disassemble(sb *strings.Builder, keep func(*Method) bool) {
	if keep == nil {
		kind := "class"
		if c.Interface {
			kind = "interface"
		}
		fmt.Fprintf(sb, "=== %s %s", kind, c.Name)
		if c.Super != "" {
			fmt.Fprintf(sb, " : %s", c.Super)
		}
		if len(c.Interfaces) > 0 {
			fmt.Fprintf(sb, " (%s)", strings.Join(c.Interfaces, ", "))
		}
		sb.WriteString(" ===\n")
		for _, f := range c.Fields {
			if f.Static {
				fmt.Fprintf(sb, "  static field %s %s\n", f.Name, f.Type)
			} else {
				fmt.Fprintf(sb, "  field %s %s\n", f.Name, f.Type)
			}
		}
	}
	for _, m := range c.Methods {
		if keep != nil && !keep(m) {
			continue
		}
		m.disassemble(sb, keep != nil)
	}
}

func (m *Method) disassemble(sb *strings.Builder, qualified bool) {
	name := m.Name
	if qualified {
		name = m.FullName()
	}
	prefix := ""
	if m.Static {
		prefix = "static "
	}
	if m.Abstract {
		fmt.Fprintf(sb, "  %sabstract %s%s\n", prefix, name, m.Signature())
		return
	}
	fmt.Fprintf(sb, "  %s%s%s locals=%d\n", prefix, name, m.Signature(), m.MaxLocals)
	line := 0
	for i, in := range m.Code {
		l := m.LineAt(i)
		if l != line {
			fmt.Fprintf(sb, "    ; line %d\n", l)
			line = l
		}
		fmt.Fprintf(sb, "    %04d: %s\n", i, in)
	}
	for _, h := range m.Handlers {
		class := h.Class
		if class == "" {
			class = "any"
		}
		fmt.Fprintf(sb, "    try %04d-%04d -> %04d %s\n", h.Start, h.End, h.Target, class)
	}
	for _, v := range m.Locals {
		fmt.Fprintf(sb, "    local [%d] %s %s %04d-%04d\n", v.Slot, v.Name, v.Type, v.Start, v.End)
	}
}

// String formats the instruction with the operands its opcode uses.
func (in Instr) String() string {
	op := in.Op.String()
	switch in.Op {
	case Const:
		if s, ok := in.Const.(string); ok {
			return fmt.Sprintf("%s %s %q", op, in.Type, s)
		}
		return fmt.Sprintf("%s %s %v", op, in.Type, in.Const)
	case Load, Store:
		return fmt.Sprintf("%s %s [%d]", op, in.Type, in.Slot)
	case Inc:
		return fmt.Sprintf("%s [%d] %+d", op, in.Slot, in.Arg)
	case Dup, DupX:
		return fmt.Sprintf("%s %d", op, in.Arg)
	case Add, Sub, Mul, Div, Rem, Neg, And, Or, Xor, Shl, Shr, Ushr:
		return fmt.Sprintf("%s %s", op, in.Type)
	case Convert:
		return fmt.Sprintf("%s %s -> %s", op, in.Type, in.To)
	case Cmp:
		return fmt.Sprintf("%s %s nan=%d", op, in.Type, in.Arg)
	case GetField, PutField, GetStatic, PutStatic:
		return fmt.Sprintf("%s %s.%s %s", op, in.Owner, in.Name, in.Type)
	case InvokeStatic, InvokeVirtual, InvokeInterface, InvokeSpecial:
		return fmt.Sprintf("%s %s.%s/%d %s", op, in.Owner, in.Name, in.Arg, in.Type)
	case New:
		return fmt.Sprintf("%s %s", op, in.Owner)
	case NewArray, InstanceOf, CheckCast, Box, Unbox:
		return fmt.Sprintf("%s %s", op, in.Type)
	}
	if in.Op.IsJump() {
		return fmt.Sprintf("%s -> %04d", op, in.Target)
	}
	return op
}

// NormalizeConsts restores the Go representation of constants after
// decoding: integers become int64 and floating-point values float64.
func (p *Program) NormalizeConsts() {
	for _, c := range p.Classes {
		for _, m := range c.Methods {
			for i := range m.Code {
				in := &m.Code[i]
				if in.Op == Const {
					in.Const = normalizeConst(in.Const, in.Type)
				}
			}
		}
	}
}

func normalizeConst(v any, t types.Type) any {
	switch x := v.(type) {
	case uint64:
		return normalizeConst(int64(x), t)
	case int64:
		if t.Unboxed().Kind == types.KindFloat || t.Unboxed().Kind == types.KindDouble {
			return float64(x)
		}
		return x
	case float32:
		return float64(x)
	case float64:
		k := t.Unboxed().Kind
		if k != types.KindFloat && k != types.KindDouble {
			return int64(x)
		}
		return x
	}
	return v
}
