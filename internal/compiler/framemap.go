package compiler

import (
	"fmt"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

// FrameMap assigns slots to the variables and temporaries of one method.
// Allocation is a stack: variables and temporaries are released in the
// reverse order they were acquired, so a released slot is always the
// topmost one and the next allocation reuses it.
type FrameMap struct {
	slots   map[*ast.Var]int
	entries []frameEntry
	top     int // first free slot
	max     int // high-water mark
}

type frameEntry struct {
	v    *ast.Var // nil for temporaries
	slot int
	size int
}

// FrameMark is a saved allocation depth, see Mark and Rollback.
type FrameMark int

// NewFrameMap creates an empty frame map.
func NewFrameMap() *FrameMap {
	return &FrameMap{slots: make(map[*ast.Var]int)}
}

// Reserve allocates n anonymous slots that live for the whole method,
// such as the one holding this.
func (m *FrameMap) Reserve(n int) int {
	slot := m.top
	m.entries = append(m.entries, frameEntry{slot: slot, size: n})
	m.grow(n)
	return slot
}

// Enter allocates a slot for v. A variable kept in a shared cell takes
// one slot regardless of its type.
func (m *FrameMap) Enter(v *ast.Var) int {
	if _, dup := m.slots[v]; dup {
		panic(fmt.Sprintf("variable %s entered twice", v.Name))
	}
	size := slotSize(v)
	slot := m.top
	m.entries = append(m.entries, frameEntry{v: v, slot: slot, size: size})
	m.slots[v] = slot
	m.grow(size)
	return slot
}

// Leave releases the slot of v, which must be the last allocation.
func (m *FrameMap) Leave(v *ast.Var) {
	n := len(m.entries)
	if n == 0 || m.entries[n-1].v != v {
		panic(fmt.Sprintf("variable %s left out of order", v.Name))
	}
	m.pop()
}

// EnterTemp allocates a temporary slot for a value of type t.
func (m *FrameMap) EnterTemp(t types.Type) int {
	slot := m.top
	size := max(t.Size(), 1)
	m.entries = append(m.entries, frameEntry{slot: slot, size: size})
	m.grow(size)
	return slot
}

// LeaveTemp releases the temporary at slot, which must be the last allocation.
func (m *FrameMap) LeaveTemp(slot int) {
	n := len(m.entries)
	if n == 0 || m.entries[n-1].v != nil || m.entries[n-1].slot != slot {
		panic(fmt.Sprintf("temporary %d left out of order", slot))
	}
	m.pop()
}

// WithTemp runs fn with a temporary slot for t and releases it afterwards.
func (m *FrameMap) WithTemp(t types.Type, fn func(slot int)) {
	slot := m.EnterTemp(t)
	fn(slot)
	m.LeaveTemp(slot)
}

// Slot returns the slot of v.
func (m *FrameMap) Slot(v *ast.Var) (int, bool) {
	slot, ok := m.slots[v]
	return slot, ok
}

// Mark returns the current allocation depth.
func (m *FrameMap) Mark() FrameMark {
	return FrameMark(len(m.entries))
}

// Rollback releases every allocation made since mark and returns the
// variables released, innermost first.
func (m *FrameMap) Rollback(mark FrameMark) []*ast.Var {
	var released []*ast.Var
	for FrameMark(len(m.entries)) > mark {
		if v := m.entries[len(m.entries)-1].v; v != nil {
			released = append(released, v)
		}
		m.pop()
	}
	return released
}

// MaxLocals returns the number of slots the method needs.
func (m *FrameMap) MaxLocals() int {
	return m.max
}

func (m *FrameMap) grow(n int) {
	m.top += n
	if m.top > m.max {
		m.max = m.top
	}
}

func (m *FrameMap) pop() {
	e := m.entries[len(m.entries)-1]
	m.entries = m.entries[:len(m.entries)-1]
	if e.v != nil {
		delete(m.slots, e.v)
	}
	m.top = e.slot
}

func slotSize(v *ast.Var) int {
	if v.Shared {
		return 1
	}
	return max(v.Type.Size(), 1)
}
