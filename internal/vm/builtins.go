package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kolkov/stackgen/internal/types"
)

// native implements a library method. args holds the receiver first for
// instance methods.
type native func(vm *VM, args []types.Value) (types.Value, error)

// natives maps "Class.method" to its implementation. Lookups walk the
// receiver's superclasses, so Exception.<init> resolves to Throwable's.
var natives map[string]native

func init() {
	natives = map[string]native{
		"Any.<init>":   nop,
		"Any.equals":   nativeEquals,
		"Any.hashCode": nativeHashCode,
		"Any.toString": nativeToString,
		"Ref.<init>":   nop,

		"Comparable.compareTo": nativeCompareTo,

		"Throwable.<init>": func(vm *VM, args []types.Value) (types.Value, error) {
			self(args).Fields["message"] = args[1]
			return types.Value{}, nil
		},
		"Throwable.getMessage": func(vm *VM, args []types.Value) (types.Value, error) {
			return self(args).Fields["message"], nil
		},

		"String.length": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.IntVal(int32(len(runes(args[0])))), nil
		},
		"String.get": func(vm *VM, args []types.Value) (types.Value, error) {
			r := runes(args[0])
			i := args[1].AsInt()
			if i < 0 || int(i) >= len(r) {
				return types.Value{}, vm.throw("IndexOutOfBoundsException", "index %d, length %d", i, len(r))
			}
			return types.IntVal(r[i]), nil
		},
		"String.compareTo": nativeCompareTo,
		"String.substring": func(vm *VM, args []types.Value) (types.Value, error) {
			r := runes(args[0])
			from, to := args[1].AsInt(), args[2].AsInt()
			if from < 0 || to > int32(len(r)) || from > to {
				return types.Value{}, vm.throw("IndexOutOfBoundsException", "begin %d, end %d, length %d", from, to, len(r))
			}
			return types.Str(string(r[from:to])), nil
		},
		"String.contains": func(vm *VM, args []types.Value) (types.Value, error) {
			s, _ := args[0].AsString()
			if args[1].IsNull() {
				return types.Value{}, vm.npe("contains")
			}
			sub, _ := args[1].AsString()
			return types.BoolVal(strings.Contains(s, sub)), nil
		},
		"String.plus": func(vm *VM, args []types.Value) (types.Value, error) {
			s, _ := args[0].AsString()
			t, err := vm.stringify(args[1])
			if err != nil {
				return types.Value{}, err
			}
			return types.Str(s + t), nil
		},

		"StringBuilder.<init>": func(vm *VM, args []types.Value) (types.Value, error) {
			self(args).Native = &strings.Builder{}
			return types.Value{}, nil
		},
		"StringBuilder.append": func(vm *VM, args []types.Value) (types.Value, error) {
			s, err := vm.stringify(args[1])
			if err != nil {
				return types.Value{}, err
			}
			builder(args).WriteString(s)
			return args[0], nil
		},
		"StringBuilder.length": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.IntVal(int32(len([]rune(builder(args).String())))), nil
		},

		"ArrayList.<init>": func(vm *VM, args []types.Value) (types.Value, error) {
			self(args).Native = &[]types.Value{}
			return types.Value{}, nil
		},
		"ArrayList.add": func(vm *VM, args []types.Value) (types.Value, error) {
			l := list(args)
			*l = append(*l, args[1])
			return types.BoolVal(true), nil
		},
		"ArrayList.get": func(vm *VM, args []types.Value) (types.Value, error) {
			l := list(args)
			i := args[1].AsInt()
			if err := vm.checkListIndex(*l, i); err != nil {
				return types.Value{}, err
			}
			return (*l)[i], nil
		},
		"ArrayList.set": func(vm *VM, args []types.Value) (types.Value, error) {
			l := list(args)
			i := args[1].AsInt()
			if err := vm.checkListIndex(*l, i); err != nil {
				return types.Value{}, err
			}
			old := (*l)[i]
			(*l)[i] = args[2]
			return old, nil
		},
		"ArrayList.size": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.IntVal(int32(len(*list(args)))), nil
		},
		"ArrayList.isEmpty": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.BoolVal(len(*list(args)) == 0), nil
		},
		"ArrayList.contains": func(vm *VM, args []types.Value) (types.Value, error) {
			for _, x := range *list(args) {
				eq, err := vm.equals(x, args[1])
				if err != nil || eq {
					return types.BoolVal(eq), err
				}
			}
			return types.BoolVal(false), nil
		},
		"ArrayList.iterator": func(vm *VM, args []types.Value) (types.Value, error) {
			return vm.newIterator(&listIterator{list: list(args)}), nil
		},

		"IntRange.<init>": func(vm *VM, args []types.Value) (types.Value, error) {
			self(args).Native = &intRange{first: args[1].AsInt(), last: args[2].AsInt(), reversed: args[3].AsBool()}
			return types.Value{}, nil
		},
		"IntRange.getStart": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.IntVal(rangeOf(args).first), nil
		},
		"IntRange.getEnd": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.IntVal(rangeOf(args).last), nil
		},
		"IntRange.getSize": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.IntVal(rangeOf(args).size()), nil
		},
		"IntRange.getIsReversed": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.BoolVal(rangeOf(args).reversed), nil
		},
		"IntRange.contains": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.BoolVal(rangeOf(args).contains(args[1].AsInt())), nil
		},
		"IntRange.isEmpty": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.BoolVal(rangeOf(args).empty()), nil
		},
		"IntRange.iterator": func(vm *VM, args []types.Value) (types.Value, error) {
			return vm.newIterator(newRangeIterator(rangeOf(args))), nil
		},

		"Iterator.hasNext": func(vm *VM, args []types.Value) (types.Value, error) {
			it, ok := self(args).Native.(iterator)
			if !ok {
				return types.Value{}, &RuntimeError{Message: classOf(args[0]) + " is not an iterator"}
			}
			return types.BoolVal(it.hasNext()), nil
		},
		"Iterator.next": func(vm *VM, args []types.Value) (types.Value, error) {
			it, ok := self(args).Native.(iterator)
			if !ok {
				return types.Value{}, &RuntimeError{Message: classOf(args[0]) + " is not an iterator"}
			}
			if !it.hasNext() {
				return types.Value{}, vm.throw("IllegalStateException", "iterator exhausted")
			}
			return it.next(), nil
		},

		"SpreadBuilder.<init>": func(vm *VM, args []types.Value) (types.Value, error) {
			l := make([]types.Value, 0, args[1].AsInt())
			self(args).Native = &l
			return types.Value{}, nil
		},
		"SpreadBuilder.add": func(vm *VM, args []types.Value) (types.Value, error) {
			l := list(args)
			*l = append(*l, args[1])
			return types.Value{}, nil
		},
		"SpreadBuilder.addSpread": func(vm *VM, args []types.Value) (types.Value, error) {
			a, err := vm.array(args[1])
			if err != nil {
				return types.Value{}, err
			}
			l := list(args)
			for _, x := range a.Data {
				if a.Elem.IsPrimitive() {
					x = box(x, a.Elem.Kind)
				}
				*l = append(*l, x)
			}
			return types.Value{}, nil
		},
		"SpreadBuilder.toArray": func(vm *VM, args []types.Value) (types.Value, error) {
			desc, _ := args[1].AsString()
			t, err := types.Parse(desc)
			if err != nil || t.Kind != types.KindArray {
				return types.Value{}, &RuntimeError{Message: fmt.Sprintf("bad array type %q", desc)}
			}
			l := *list(args)
			a := &Array{Elem: *t.Elem, Data: make([]types.Value, len(l))}
			for i, x := range l {
				if b, ok := x.Ref().(Boxed); ok && a.Elem.IsPrimitive() {
					x = types.Convert(b.Value, b.Kind, a.Elem.Kind)
				}
				a.Data[i] = x
			}
			return types.Ref(a), nil
		},

		"Intrinsics.throwNpe": func(vm *VM, args []types.Value) (types.Value, error) {
			return types.Value{}, vm.throw("NullPointerException", "null asserted non-null")
		},

		"io.println": func(vm *VM, args []types.Value) (types.Value, error) {
			return vm.print(args[0], "\n")
		},
		"io.print": func(vm *VM, args []types.Value) (types.Value, error) {
			return vm.print(args[0], "")
		},
	}
}

// lookupNative finds the implementation of class.name. Tuple constructors
// are shared by every arity.
func lookupNative(class, name string) (native, bool) {
	if fn, ok := natives[class+"."+name]; ok {
		return fn, true
	}
	if name == "<init>" && isTuple(class) {
		return tupleInit, true
	}
	return nil, false
}

func isTuple(class string) bool {
	if !strings.HasPrefix(class, types.TuplePrefix) {
		return false
	}
	_, err := strconv.Atoi(class[len(types.TuplePrefix):])
	return err == nil
}

func nop(*VM, []types.Value) (types.Value, error) { return types.Value{}, nil }

func tupleInit(vm *VM, args []types.Value) (types.Value, error) {
	o := self(args)
	for i, x := range args[1:] {
		o.Fields["_"+strconv.Itoa(i+1)] = x
	}
	return types.Value{}, nil
}

func self(args []types.Value) *Object {
	o, _ := args[0].Ref().(*Object)
	if o == nil {
		o = &Object{Fields: map[string]types.Value{}}
	}
	return o
}

func runes(v types.Value) []rune {
	s, _ := v.AsString()
	return []rune(s)
}

func builder(args []types.Value) *strings.Builder {
	sb, _ := self(args).Native.(*strings.Builder)
	if sb == nil {
		sb = &strings.Builder{}
		self(args).Native = sb
	}
	return sb
}

func list(args []types.Value) *[]types.Value {
	o := self(args)
	l, _ := o.Native.(*[]types.Value)
	if l == nil {
		l = &[]types.Value{}
		o.Native = l
	}
	return l
}

func rangeOf(args []types.Value) *intRange {
	r, _ := self(args).Native.(*intRange)
	if r == nil {
		r = &intRange{first: 1}
	}
	return r
}

func (vm *VM) checkListIndex(l []types.Value, i int32) error {
	if i < 0 || int(i) >= len(l) {
		return vm.throw("IndexOutOfBoundsException", "Index %d out of bounds for length %d", i, len(l))
	}
	return nil
}

func (vm *VM) newIterator(it iterator) types.Value {
	o := vm.newObject("Iterator")
	o.Native = it
	return types.Ref(o)
}

func (vm *VM) print(v types.Value, end string) (types.Value, error) {
	s, err := vm.stringify(v)
	if err != nil {
		return types.Value{}, err
	}
	if _, err := io.WriteString(vm.out, s+end); err != nil {
		return types.Value{}, &RuntimeError{Message: err.Error()}
	}
	return types.Value{}, nil
}

// -----------------------------------------------------------------------------
// Any
// -----------------------------------------------------------------------------

func nativeEquals(vm *VM, args []types.Value) (types.Value, error) {
	eq, err := vm.structEqual(args[0], args[1])
	return types.BoolVal(eq), err
}

func nativeHashCode(vm *VM, args []types.Value) (types.Value, error) {
	switch x := args[0].Ref().(type) {
	case Boxed:
		switch x.Kind {
		case types.KindLong:
			n := x.Value.AsLong()
			return types.IntVal(int32(n ^ int64(uint64(n)>>32))), nil
		case types.KindFloat, types.KindDouble:
			return types.IntVal(int32(int64(x.Value.AsDouble() * 31))), nil
		}
		return types.IntVal(x.Value.AsInt()), nil
	case string:
		var h int32
		for _, r := range x {
			h = 31*h + r
		}
		return types.IntVal(h), nil
	case *Object:
		return types.IntVal(int32(x.id)), nil
	}
	return types.IntVal(0), nil
}

func nativeToString(vm *VM, args []types.Value) (types.Value, error) {
	s, err := vm.render(args[0])
	return types.Str(s), err
}

func nativeCompareTo(vm *VM, args []types.Value) (types.Value, error) {
	a, b := args[0], args[1]
	if b.IsNull() {
		return types.Value{}, vm.npe("compareTo")
	}
	if s, ok := a.AsString(); ok {
		t, ok := b.AsString()
		if !ok {
			return types.Value{}, vm.throw("ClassCastException", "%s cannot be cast to String", classOf(b))
		}
		return types.IntVal(int32(strings.Compare(s, t))), nil
	}
	x, ok1 := a.Ref().(Boxed)
	y, ok2 := b.Ref().(Boxed)
	if !ok1 || !ok2 {
		return types.Value{}, vm.throw("ClassCastException", "%s is not comparable with %s", classOf(a), classOf(b))
	}
	k := max(x.Kind, y.Kind)
	xv := types.Convert(x.Value, x.Kind, k)
	yv := types.Convert(y.Value, y.Kind, k)
	return types.IntVal(compare(k, xv, yv, 1)), nil
}

// stringify converts v the way string templates and print do, calling a
// program override of toString when there is one.
func (vm *VM) stringify(v types.Value) (string, error) {
	if v.IsNull() {
		return "null", nil
	}
	if _, ok := v.Ref().(*Object); ok {
		r, found, err := vm.callMethod(v, "toString")
		if err != nil {
			return "", err
		}
		if found {
			s, _ := r.AsString()
			return s, nil
		}
	}
	return vm.render(v)
}

// Render returns the string form the program itself would print for v.
func (vm *VM) Render(v types.Value) (string, error) { return vm.render(v) }

// render is the library toString of v.
func (vm *VM) render(v types.Value) (string, error) {
	switch x := v.Ref().(type) {
	case nil:
		if v.IsNull() {
			return "null", nil
		}
		return v.String(), nil
	case string:
		return x, nil
	case Boxed:
		return types.FormatPrimitive(x.Value, x.Kind), nil
	case *Array:
		return joinValues(vm, x.Data, "[", ", ", "]")
	case *Object:
		switch n := x.Native.(type) {
		case *strings.Builder:
			return n.String(), nil
		case *[]types.Value:
			return joinValues(vm, *n, "[", ", ", "]")
		case *intRange:
			return n.String(), nil
		}
		switch {
		case x == vm.unit:
			return "kotlin.Unit", nil
		case isTuple(x.Class):
			return joinValues(vm, tupleElems(x), "(", ", ", ")")
		case vm.h.isSubclass(x.Class, types.ThrowableName):
			msg, ok := x.Fields["message"].AsString()
			if !ok {
				return x.Class, nil
			}
			return x.Class + ": " + msg, nil
		}
		return fmt.Sprintf("%s@%x", x.Class, x.id), nil
	}
	return fmt.Sprint(v.Ref()), nil
}

func tupleElems(o *Object) []types.Value {
	var out []types.Value
	for i := 1; ; i++ {
		v, ok := o.Fields["_"+strconv.Itoa(i)]
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

// equals is ==: null-safe, dispatching to a program override of equals.
func (vm *VM) equals(a, b types.Value) (bool, error) {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull(), nil
	}
	if _, ok := a.Ref().(*Object); ok {
		r, found, err := vm.callMethod(a, "equals", b)
		if err != nil || found {
			return r.AsBool(), err
		}
	}
	return vm.structEqual(a, b)
}

// structEqual is the library equals: value equality for boxes, strings,
// tuples and ranges, identity otherwise.
func (vm *VM) structEqual(a, b types.Value) (bool, error) {
	switch x := a.Ref().(type) {
	case Boxed:
		y, ok := b.Ref().(Boxed)
		return ok && primitiveEqual(x, y), nil
	case string:
		y, ok := b.AsString()
		return ok && x == y, nil
	case *Object:
		y, ok := b.Ref().(*Object)
		if !ok {
			return false, nil
		}
		if x == y {
			return true, nil
		}
		if r, ok := x.Native.(*intRange); ok {
			s, ok := y.Native.(*intRange)
			return ok && *r == *s, nil
		}
		if x.Class != y.Class || !isTuple(x.Class) {
			return false, nil
		}
		xs, ys := tupleElems(x), tupleElems(y)
		if len(xs) != len(ys) {
			return false, nil
		}
		for i := range xs {
			eq, err := vm.equals(xs[i], ys[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}
	return a == b, nil
}
