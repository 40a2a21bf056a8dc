package vm

import (
	"fmt"
	"math"
	"strings"

	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/types"
)

// Object is an instance of a program or library class. Library classes
// keep their host state in Native.
type Object struct {
	Class  string
	Fields map[string]types.Value
	Native any
	id     int
}

// Array is a native array.
type Array struct {
	Elem types.Type
	Data []types.Value
}

// Boxed is the reference form of a primitive. Boxes compare equal by
// value, so identity of equal boxes holds.
type Boxed struct {
	Kind  types.Kind
	Value types.Value
}

// class is the runtime view of a program class.
type class struct {
	decl    *compiler.Class
	methods map[string]*compiler.Method
	statics map[string]types.Value
	// initialized is set before <clinit> runs so recursive use proceeds.
	initialized bool
}

func newClass(c *compiler.Class) *class {
	rc := &class{
		decl:    c,
		methods: make(map[string]*compiler.Method, len(c.Methods)),
		statics: make(map[string]types.Value),
	}
	for _, m := range c.Methods {
		rc.methods[m.Name] = m
	}
	for _, f := range c.Fields {
		if f.Static {
			rc.statics[f.Name] = zero(f.Type)
		}
	}
	return rc
}

// zero returns the default value of a slot, field or element of type t.
func zero(t types.Type) types.Value {
	if !t.IsPrimitive() {
		return types.Null()
	}
	switch t.Kind {
	case types.KindLong:
		return types.LongVal(0)
	case types.KindFloat:
		return types.FloatVal(0)
	case types.KindDouble:
		return types.DoubleVal(0)
	}
	return types.IntVal(0)
}

// hierarchy resolves the superclasses of program and library classes.
type hierarchy struct {
	program map[string]*class
	library *semantic.ClassTable
}

func (h *hierarchy) supers(name string) (string, []string) {
	if c, ok := h.program[name]; ok {
		return c.decl.Super, c.decl.Interfaces
	}
	if c, ok := h.library.Lookup(name); ok {
		return c.Super, c.Interfaces
	}
	return "", nil
}

// isSubclass reports whether sub is sup or one of its subtypes.
func (h *hierarchy) isSubclass(sub, sup string) bool {
	if sup == types.AnyName || sub == sup {
		return true
	}
	seen := map[string]bool{}
	var visit func(string) bool
	visit = func(name string) bool {
		if name == "" || seen[name] {
			return false
		}
		seen[name] = true
		if name == sup {
			return true
		}
		super, ifaces := h.supers(name)
		if visit(super) {
			return true
		}
		for _, i := range ifaces {
			if visit(i) {
				return true
			}
		}
		return false
	}
	return visit(sub)
}

// chain lists name followed by its superclasses.
func (h *hierarchy) chain(name string) []string {
	var out []string
	for name != "" && len(out) < 64 {
		out = append(out, name)
		name, _ = h.supers(name)
	}
	return out
}

// classOf returns the runtime class name of a non-null reference.
func classOf(v types.Value) string {
	switch x := v.Ref().(type) {
	case *Object:
		return x.Class
	case string:
		return types.StringName
	case Boxed:
		return x.Kind.String()
	case *Array:
		return types.ArrayOf(x.Elem).String()
	}
	return types.AnyName
}

// isInstance reports whether v is a non-null value of t.
func (h *hierarchy) isInstance(v types.Value, t types.Type) bool {
	if v.IsNull() {
		return false
	}
	if t.Kind == types.KindArray {
		a, ok := v.Ref().(*Array)
		if !ok {
			return false
		}
		want, have := t.Elem.NonNull(), a.Elem.NonNull()
		if want.IsPrimitive() || have.IsPrimitive() {
			return want.Kind == have.Kind
		}
		return want.IsClass(types.AnyName) || h.isSubclass(have.ClassName(), want.ClassName())
	}
	if _, ok := v.Ref().(*Array); ok {
		return t.IsClass(types.AnyName)
	}
	return h.isSubclass(classOf(v), t.ClassName())
}

func box(v types.Value, k types.Kind) types.Value {
	return types.Ref(Boxed{Kind: k, Value: v})
}

// boxConst boxes a constant pushed with a reference type.
func boxConst(c any, t types.Type) types.Value {
	u := t.Unboxed()
	if u.IsPrimitive() {
		return box(types.FromConst(c, u), u.Kind)
	}
	switch x := c.(type) {
	case nil:
		return types.Null()
	case string:
		return types.Str(x)
	case bool:
		return box(types.BoolVal(x), types.KindBoolean)
	case float64:
		return box(types.DoubleVal(x), types.KindDouble)
	case int64:
		return box(types.IntVal(int32(x)), types.KindInt)
	}
	return types.Ref(c)
}

// primitiveEqual compares two boxes of the same kind. Floating-point
// boxes compare by bits so NaN equals itself.
func primitiveEqual(a, b Boxed) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case types.KindFloat, types.KindDouble:
		return math.Float64bits(a.Value.AsDouble()) == math.Float64bits(b.Value.AsDouble())
	case types.KindLong:
		return a.Value.AsLong() == b.Value.AsLong()
	}
	return a.Value.AsInt() == b.Value.AsInt()
}

// -----------------------------------------------------------------------------
// Library object state
// -----------------------------------------------------------------------------

type intRange struct {
	first, last int32
	reversed    bool
}

func (r *intRange) empty() bool {
	if r.reversed {
		return r.first < r.last
	}
	return r.first > r.last
}

func (r *intRange) size() int32 {
	if r.empty() {
		return 0
	}
	if r.reversed {
		return r.first - r.last + 1
	}
	return r.last - r.first + 1
}

func (r *intRange) contains(x int32) bool {
	lo, hi := r.first, r.last
	if r.reversed {
		lo, hi = hi, lo
	}
	return lo <= x && x <= hi
}

func (r *intRange) String() string {
	if r.reversed {
		return fmt.Sprintf("%d downTo %d", r.first, r.last)
	}
	return fmt.Sprintf("%d..%d", r.first, r.last)
}

// iterator is the host state of an Iterator object.
type iterator interface {
	hasNext() bool
	next() types.Value
}

type rangeIterator struct {
	r    *intRange
	cur  int64
	done bool
}

func newRangeIterator(r *intRange) *rangeIterator {
	return &rangeIterator{r: r, cur: int64(r.first), done: r.empty()}
}

func (it *rangeIterator) hasNext() bool { return !it.done }

func (it *rangeIterator) next() types.Value {
	v := int32(it.cur)
	if v == it.r.last {
		it.done = true
	} else if it.r.reversed {
		it.cur--
	} else {
		it.cur++
	}
	return box(types.IntVal(v), types.KindInt)
}

type listIterator struct {
	list *[]types.Value
	i    int
}

func (it *listIterator) hasNext() bool { return it.i < len(*it.list) }

func (it *listIterator) next() types.Value {
	v := (*it.list)[it.i]
	it.i++
	return v
}

func joinValues(vm *VM, vals []types.Value, open, sep, close string) (string, error) {
	var sb strings.Builder
	sb.WriteString(open)
	for i, v := range vals {
		if i > 0 {
			sb.WriteString(sep)
		}
		s, err := vm.stringify(v)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	sb.WriteString(close)
	return sb.String(), nil
}
