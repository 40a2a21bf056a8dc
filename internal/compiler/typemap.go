package compiler

import (
	"sync"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/types"
)

// Hierarchy answers subtype questions about the classes of a unit and the
// library, so coercions can skip casts that always succeed.
// It is shared by concurrent function passes.
type Hierarchy struct {
	mu    sync.Mutex // the table synthesizes tuple and function classes on lookup
	table *semantic.ClassTable
}

// NewHierarchy returns the hierarchy of the library classes plus the
// classes declared in unit and those of its object literals.
func NewHierarchy(unit *ast.Unit) *Hierarchy {
	h := &Hierarchy{table: semantic.NewClassTable()}
	ast.Walk(unit, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.ClassDecl:
			h.declare(n)
		case *ast.ObjectExpr:
			h.declare(n.Class)
		}
		return true
	})
	return h
}

func (h *Hierarchy) declare(c *ast.ClassDecl) {
	super := c.SuperName
	if super == "" && !c.Interface {
		super = types.AnyName
	}
	h.table.Define(&semantic.ClassInfo{Name: c.Name, Super: super, Interfaces: c.Interfaces, Interface: c.Interface, Decl: c})
}

// IsSubtype reports whether every non-null value of sub is a value of sup
// without a runtime check.
func (h *Hierarchy) IsSubtype(sub, sup types.Type) bool {
	if sup.IsClass(types.AnyName) {
		return true
	}
	if sub.IsNothing() {
		return true
	}
	if sub.Kind == types.KindArray || sup.Kind == types.KindArray {
		return sub.Kind == sup.Kind && sub.Elem.NonNull().Equal(sup.Elem.NonNull())
	}
	subName, supName := sub.ClassName(), sup.ClassName()
	if subName == supName {
		return true
	}
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.IsSubclass(subName, supName)
}

// IsInterface reports whether name is a known interface.
func (h *Hierarchy) IsInterface(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.table.Lookup(name)
	return ok && c.Interface
}

// Constructor returns the constructor class declares itself.
func (h *Hierarchy) Constructor(class string) (*ast.Callable, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.table.Lookup(class)
	if !ok {
		return nil, false
	}
	init, ok := c.Methods["<init>"]
	return init, ok
}

// Coerce converts the value of type from on top of the stack to type to.
//
// Rules, in order: Nothing is unreachable and needs nothing; a Void target
// discards; a Void source pushes the Unit sentinel; primitives convert
// between kinds; a primitive flowing into a reference is boxed; a reference
// flowing into a primitive is unboxed, checking the class first when the
// source is not the boxed form; references are cast unless the source is
// statically a subtype.
func (e *Emitter) Coerce(from, to types.Type) {
	switch {
	case from.IsNothing() && !from.Nullable:
		return
	case to.IsVoid():
		if !from.IsVoid() {
			e.Op(Pop)
		}
		return
	case from.IsVoid():
		e.Unit()
		e.Coerce(types.Unit, to)
		return
	}

	switch {
	case from.IsPrimitive() && to.IsPrimitive():
		e.convert(from, to)

	case from.IsPrimitive():
		target := to.Unboxed()
		if to.IsPrimitiveKind() || (target.IsPrimitive() && to.Kind == types.KindClass) {
			e.convert(from, target)
			e.TypedOp(Box, target)
			return
		}
		e.TypedOp(Box, from)
		if !e.hierarchy.IsSubtype(from.Boxed(), to) {
			e.TypedOp(CheckCast, to.NonNull())
		}

	case to.IsPrimitive():
		src := from.Unboxed()
		if src.IsPrimitive() {
			e.TypedOp(Unbox, src)
			e.convert(src, to)
			return
		}
		e.TypedOp(CheckCast, to.Boxed())
		e.TypedOp(Unbox, to)

	default:
		if from.IsNothing() || e.hierarchy.IsSubtype(from.NonNull(), to.NonNull()) {
			return
		}
		e.TypedOp(CheckCast, to.NonNull())
	}
}

// convert converts between primitive kinds. Widening within the 32-bit
// integer kinds is free.
func (e *Emitter) convert(from, to types.Type) {
	if from.Kind == to.Kind {
		return
	}
	if from.IsIntLike() && (to.Kind == types.KindInt || (to.Kind == types.KindShort && from.Kind == types.KindByte)) {
		return
	}
	e.Emit(Instr{Op: Convert, Type: types.Type{Kind: from.Kind}, To: types.Type{Kind: to.Kind}})
}

// normalizeValue converts constant c to the Go representation used by
// instructions of type t.
func normalizeValue(c any, t types.Type) any {
	k := t.Unboxed().Kind
	switch x := c.(type) {
	case bool:
		return x
	case rune:
		return normalizeValue(int64(x), t)
	case int:
		return normalizeValue(int64(x), t)
	case int64:
		switch k {
		case types.KindFloat, types.KindDouble:
			return float64(x)
		case types.KindByte:
			return int64(int8(x))
		case types.KindShort:
			return int64(int16(x))
		case types.KindChar:
			return int64(uint16(x))
		case types.KindInt:
			return int64(int32(x))
		}
		return x
	case float64:
		switch k {
		case types.KindFloat:
			return float64(float32(x))
		case types.KindDouble:
			return x
		case types.KindClass, types.KindArray, types.KindVoid:
			return x
		}
		return int64(x)
	}
	return c
}

// descriptorParams returns the parameter types of f as seen by callers:
// the extension receiver first for static extension functions.
func descriptorParams(f *ast.FunDecl) []types.Type {
	var params []types.Type
	if f.Receiver != nil && f.Static {
		params = append(params, *f.Receiver)
	}
	for _, p := range f.Params {
		params = append(params, p.Var.Type)
	}
	return params
}

// descriptorReturn maps Unit results to Void.
func descriptorReturn(t types.Type) types.Type {
	if t.IsUnit() || t.IsVoid() {
		return types.Void
	}
	return t
}

// zeroValue returns the constant standing in for an omitted argument of t.
func zeroValue(t types.Type) any {
	if !t.IsPrimitive() {
		return nil
	}
	switch t.Kind {
	case types.KindBoolean:
		return false
	case types.KindFloat, types.KindDouble:
		return float64(0)
	}
	return int64(0)
}
