package vm

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/types"
)

// program wraps code in a static method T.f returning ret.
func program(ret types.Type, maxLocals int, code []compiler.Instr, handlers ...compiler.Handler) *compiler.Program {
	m := &compiler.Method{
		Owner:     "T",
		Name:      "f",
		Return:    ret,
		Static:    true,
		MaxLocals: maxLocals,
		Code:      code,
		Handlers:  handlers,
	}
	return &compiler.Program{Unit: "T", Classes: []*compiler.Class{{Name: "T", Super: "Any", Methods: []*compiler.Method{m}}}}
}

func iconst(n int64) compiler.Instr {
	return compiler.Instr{Op: compiler.Const, Type: types.Int, Const: n}
}

func op(o compiler.Opcode, t types.Type) compiler.Instr {
	return compiler.Instr{Op: o, Type: t}
}

func TestArith(t *testing.T) {
	vm := New(&compiler.Program{}, Config{})
	tests := []struct {
		name string
		op   compiler.Opcode
		kind types.Kind
		a, b types.Value
		want types.Value
	}{
		{"int wraps", compiler.Add, types.KindInt, types.IntVal(math.MaxInt32), types.IntVal(1), types.IntVal(math.MinInt32)},
		{"int rem sign", compiler.Rem, types.KindInt, types.IntVal(-7), types.IntVal(3), types.IntVal(-1)},
		{"int div truncates", compiler.Div, types.KindInt, types.IntVal(-7), types.IntVal(2), types.IntVal(-3)},
		{"int shift masks", compiler.Shl, types.KindInt, types.IntVal(1), types.IntVal(33), types.IntVal(2)},
		{"int ushr", compiler.Ushr, types.KindInt, types.IntVal(-1), types.IntVal(28), types.IntVal(15)},
		{"int shr keeps sign", compiler.Shr, types.KindInt, types.IntVal(-16), types.IntVal(2), types.IntVal(-4)},
		{"long shift masks", compiler.Shl, types.KindLong, types.LongVal(1), types.IntVal(65), types.LongVal(2)},
		{"long ushr", compiler.Ushr, types.KindLong, types.LongVal(-1), types.IntVal(60), types.LongVal(15)},
		{"long mul", compiler.Mul, types.KindLong, types.LongVal(1 << 40), types.LongVal(4), types.LongVal(1 << 42)},
		{"double div", compiler.Div, types.KindDouble, types.DoubleVal(1), types.DoubleVal(4), types.DoubleVal(0.25)},
		{"double div zero", compiler.Div, types.KindDouble, types.DoubleVal(1), types.DoubleVal(0), types.DoubleVal(math.Inf(1))},
		{"float rounds", compiler.Add, types.KindFloat, types.FloatVal(0.1), types.FloatVal(0.2), types.FloatVal(float32(float32(0.1) + float32(0.2)))},
		{"double rem", compiler.Rem, types.KindDouble, types.DoubleVal(7.5), types.DoubleVal(2), types.DoubleVal(1.5)},
		{"boolean xor", compiler.Xor, types.KindBoolean, types.BoolVal(true), types.BoolVal(true), types.BoolVal(false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.arith(tt.op, tt.kind, tt.a, tt.b)
			if err != nil {
				t.Fatalf("arith error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	vm := New(&compiler.Program{}, Config{})
	for _, k := range []types.Kind{types.KindInt, types.KindLong} {
		_, err := vm.arith(compiler.Div, k, types.IntVal(1), types.IntVal(0))
		var th *thrown
		if !errors.As(err, &th) || classOf(th.exc) != "ArithmeticException" {
			t.Errorf("%s: got %v, want ArithmeticException", k, err)
		}
	}
}

func TestCompare(t *testing.T) {
	nan := types.DoubleVal(math.NaN())
	tests := []struct {
		kind types.Kind
		a, b types.Value
		nan  int32
		want int32
	}{
		{types.KindInt, types.IntVal(1), types.IntVal(2), 1, -1},
		{types.KindLong, types.LongVal(5), types.LongVal(5), 1, 0},
		{types.KindDouble, types.DoubleVal(3), types.DoubleVal(2), 1, 1},
		{types.KindDouble, nan, types.DoubleVal(2), 1, 1},
		{types.KindDouble, types.DoubleVal(2), nan, -1, -1},
	}
	for _, tt := range tests {
		if got := compare(tt.kind, tt.a, tt.b, tt.nan); got != tt.want {
			t.Errorf("compare(%s, %v, %v) = %d, want %d", tt.kind, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestStackShuffles(t *testing.T) {
	tests := []struct {
		name string
		code []compiler.Instr
		want int32
	}{
		{
			name: "dupx moves copy under",
			code: []compiler.Instr{
				iconst(1), iconst(2), iconst(3),
				{Op: compiler.DupX, Arg: 2}, // 3 1 2 3
				op(compiler.Pop, types.Void), op(compiler.Pop, types.Void), op(compiler.Pop, types.Void),
				op(compiler.Return, types.Int),
			},
			want: 3,
		},
		{
			name: "dup two",
			code: []compiler.Instr{
				iconst(4), iconst(5),
				{Op: compiler.Dup, Arg: 2}, // 4 5 4 5
				op(compiler.Sub, types.Int),
				op(compiler.Add, types.Int),
				op(compiler.Sub, types.Int),
				op(compiler.Return, types.Int),
			},
			want: 4 - (5 + (4 - 5)),
		},
		{
			name: "swap",
			code: []compiler.Instr{
				iconst(10), iconst(3),
				op(compiler.Swap, types.Void),
				op(compiler.Sub, types.Int),
				op(compiler.Return, types.Int),
			},
			want: -7,
		},
		{
			name: "inc local",
			code: []compiler.Instr{
				iconst(40), {Op: compiler.Store, Type: types.Int, Slot: 0},
				{Op: compiler.Inc, Slot: 0, Arg: 2},
				{Op: compiler.Load, Type: types.Int, Slot: 0},
				op(compiler.Return, types.Int),
			},
			want: 42,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := program(types.Int, 1, tt.code)
			if err := Verify(p); err != nil {
				t.Fatalf("verify: %v", err)
			}
			got, err := New(p, Config{}).Call(context.Background(), "T", "f")
			if err != nil {
				t.Fatalf("call: %v", err)
			}
			if got.AsInt() != tt.want {
				t.Errorf("got %d, want %d", got.AsInt(), tt.want)
			}
		})
	}
}

func TestExceptionTable(t *testing.T) {
	code := []compiler.Instr{
		iconst(1), iconst(0),
		op(compiler.Div, types.Int),
		op(compiler.Return, types.Int),
		// handler
		op(compiler.Pop, types.Void),
		iconst(-1),
		op(compiler.Return, types.Int),
	}

	t.Run("caught", func(t *testing.T) {
		p := program(types.Int, 0, code, compiler.Handler{Start: 0, End: 4, Target: 4, Class: "RuntimeException"})
		got, err := New(p, Config{}).Call(context.Background(), "T", "f")
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if got.AsInt() != -1 {
			t.Errorf("got %d, want -1", got.AsInt())
		}
	})

	t.Run("class mismatch", func(t *testing.T) {
		p := program(types.Int, 0, code, compiler.Handler{Start: 0, End: 4, Target: 4, Class: "IllegalStateException"})
		_, err := New(p, Config{}).Call(context.Background(), "T", "f")
		var te *ThrownError
		if !errors.As(err, &te) {
			t.Fatalf("got %v, want ThrownError", err)
		}
		if te.Class != "ArithmeticException" || te.Message != "/ by zero" {
			t.Errorf("got %s: %s", te.Class, te.Message)
		}
		if len(te.Trace) != 1 || te.Trace[0] != "T.f" {
			t.Errorf("trace = %v", te.Trace)
		}
	})

	t.Run("outside range", func(t *testing.T) {
		p := program(types.Int, 0, code, compiler.Handler{Start: 3, End: 4, Target: 4})
		_, err := New(p, Config{}).Call(context.Background(), "T", "f")
		var te *ThrownError
		if !errors.As(err, &te) {
			t.Fatalf("got %v, want ThrownError", err)
		}
	})
}

func TestBoxing(t *testing.T) {
	code := []compiler.Instr{
		iconst(7),
		op(compiler.Box, types.Int),
		{Op: compiler.InstanceOf, Type: types.Class("Number")},
		{Op: compiler.IfEq, Target: 7},
		{Op: compiler.Const, Type: types.NullableAny, Const: int64(9)},
		op(compiler.Unbox, types.Long),
		op(compiler.Return, types.Long),
		// not a Number
		{Op: compiler.Const, Type: types.Long, Const: int64(-1)},
		op(compiler.Return, types.Long),
	}
	p := program(types.Long, 0, code)
	if err := Verify(p); err != nil {
		t.Fatalf("verify: %v", err)
	}
	got, err := New(p, Config{}).Call(context.Background(), "T", "f")
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got.AsLong() != 9 {
		t.Errorf("got %d, want 9", got.AsLong())
	}
}

func TestCheckCastFails(t *testing.T) {
	code := []compiler.Instr{
		{Op: compiler.Const, Type: types.String, Const: "x"},
		{Op: compiler.CheckCast, Type: types.Class("Int")},
		op(compiler.Return, types.NullableAny),
	}
	_, err := New(program(types.NullableAny, 0, code), Config{}).Call(context.Background(), "T", "f")
	var te *ThrownError
	if !errors.As(err, &te) || te.Class != "ClassCastException" {
		t.Fatalf("got %v, want ClassCastException", err)
	}
}

func TestArrays(t *testing.T) {
	arr := types.ArrayOf(types.Int)
	code := []compiler.Instr{
		iconst(3),
		op(compiler.NewArray, arr),
		{Op: compiler.Store, Type: arr, Slot: 0},
		{Op: compiler.Load, Type: arr, Slot: 0},
		iconst(1), iconst(5),
		op(compiler.ArrayStore, types.Int),
		{Op: compiler.Load, Type: arr, Slot: 0},
		iconst(1),
		op(compiler.ArrayLoad, types.Int),
		{Op: compiler.Load, Type: arr, Slot: 0},
		op(compiler.ArrayLength, types.Int),
		op(compiler.Add, types.Int),
		{Op: compiler.Load, Type: arr, Slot: 0},
		iconst(3),
		op(compiler.ArrayLoad, types.Int),
		op(compiler.Add, types.Int),
		op(compiler.Return, types.Int),
	}
	_, err := New(program(types.Int, 1, code), Config{}).Call(context.Background(), "T", "f")
	var te *ThrownError
	if !errors.As(err, &te) || te.Class != "IndexOutOfBoundsException" {
		t.Fatalf("got %v, want IndexOutOfBoundsException", err)
	}
	if te.Message != "Index 3 out of bounds for length 3" {
		t.Errorf("message = %q", te.Message)
	}
}

func TestCancellation(t *testing.T) {
	p := program(types.Void, 0, []compiler.Instr{{Op: compiler.Jump, Target: 0}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(p, Config{}).Call(ctx, "T", "f")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestCallDepth(t *testing.T) {
	code := []compiler.Instr{
		{Op: compiler.InvokeStatic, Owner: "T", Name: "f", Type: types.Void},
		op(compiler.ReturnVoid, types.Void),
	}
	_, err := New(program(types.Void, 0, code), Config{MaxCallDepth: 50}).Call(context.Background(), "T", "f")
	var re *RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("got %v, want RuntimeError", err)
	}
}

func TestCallErrors(t *testing.T) {
	p := program(types.Void, 0, []compiler.Instr{op(compiler.ReturnVoid, types.Void)})
	vm := New(p, Config{})
	tests := []struct {
		owner, name string
		args        []types.Value
	}{
		{"Missing", "f", nil},
		{"T", "g", nil},
		{"T", "f", []types.Value{types.IntVal(1)}},
	}
	for _, tt := range tests {
		if _, err := vm.Call(context.Background(), tt.owner, tt.name, tt.args...); err == nil {
			t.Errorf("Call(%s.%s) succeeded, want error", tt.owner, tt.name)
		}
	}
}

func TestVerifyRejects(t *testing.T) {
	tests := []struct {
		name string
		code []compiler.Instr
	}{
		{"underflow", []compiler.Instr{op(compiler.Pop, types.Void), op(compiler.ReturnVoid, types.Void)}},
		{"falls off", []compiler.Instr{iconst(1), op(compiler.Pop, types.Void)}},
		{"bad target", []compiler.Instr{{Op: compiler.Jump, Target: 9}}},
		{"bad slot", []compiler.Instr{{Op: compiler.Load, Type: types.Int, Slot: 4}, op(compiler.Return, types.Int)}},
		{"inconsistent heights", []compiler.Instr{
			iconst(1),
			{Op: compiler.IfEq, Target: 3},
			iconst(2),
			op(compiler.ReturnVoid, types.Void),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(program(types.Void, 1, tt.code))
			var ve *VerifyError
			if !errors.As(err, &ve) {
				t.Fatalf("got %v, want VerifyError", err)
			}
		})
	}
}

func TestVerifyMaxStack(t *testing.T) {
	p := program(types.Int, 0, []compiler.Instr{
		iconst(1), iconst(2), iconst(3),
		op(compiler.Add, types.Int),
		op(compiler.Add, types.Int),
		op(compiler.Return, types.Int),
	})
	n, err := VerifyMethod(p.Classes[0].Methods[0])
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if n != 3 {
		t.Errorf("max stack = %d, want 3", n)
	}
}

func TestRender(t *testing.T) {
	vm := New(&compiler.Program{}, Config{})
	list := vm.newObject("ArrayList")
	list.Native = &[]types.Value{box(types.IntVal(1), types.KindInt), types.Str("a"), types.Null()}
	tuple := vm.newObject("Tuple2")
	tuple.Fields["_1"] = box(types.BoolVal(true), types.KindBoolean)
	tuple.Fields["_2"] = box(types.IntVal('x'), types.KindChar)
	exc := vm.newThrowable("IllegalStateException", "bad")

	tests := []struct {
		v    types.Value
		want string
	}{
		{types.Null(), "null"},
		{box(types.DoubleVal(1), types.KindDouble), "1.0"},
		{box(types.LongVal(-3), types.KindLong), "-3"},
		{types.Ref(list), "[1, a, null]"},
		{types.Ref(tuple), "(true, x)"},
		{vm.Unit(), "kotlin.Unit"},
		{exc, "IllegalStateException: bad"},
	}
	for _, tt := range tests {
		got, err := vm.stringify(tt.v)
		if err != nil {
			t.Fatalf("stringify(%v): %v", tt.v, err)
		}
		if got != tt.want {
			t.Errorf("stringify(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestStructEqual(t *testing.T) {
	vm := New(&compiler.Program{}, Config{})
	t1, t2 := vm.newObject("Tuple2"), vm.newObject("Tuple2")
	for _, o := range []*Object{t1, t2} {
		o.Fields["_1"] = types.Str("k")
		o.Fields["_2"] = box(types.IntVal(2), types.KindInt)
	}
	nan := box(types.DoubleVal(math.NaN()), types.KindDouble)

	tests := []struct {
		name string
		a, b types.Value
		want bool
	}{
		{"equal boxes", box(types.IntVal(3), types.KindInt), box(types.IntVal(3), types.KindInt), true},
		{"kinds differ", box(types.IntVal(3), types.KindInt), box(types.LongVal(3), types.KindLong), false},
		{"nan box", nan, nan, true},
		{"strings", types.Str("ab"), types.Str("ab"), true},
		{"tuples", types.Ref(t1), types.Ref(t2), true},
		{"distinct objects", types.Ref(vm.newObject("Any")), types.Ref(vm.newObject("Any")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.equals(tt.a, tt.b)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("equals = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRangeIterator(t *testing.T) {
	tests := []struct {
		r    intRange
		want []int32
	}{
		{intRange{first: 1, last: 4}, []int32{1, 2, 3, 4}},
		{intRange{first: 3, last: 1, reversed: true}, []int32{3, 2, 1}},
		{intRange{first: 2, last: 1}, nil},
		{intRange{first: math.MaxInt32 - 1, last: math.MaxInt32}, []int32{math.MaxInt32 - 1, math.MaxInt32}},
	}
	for _, tt := range tests {
		var got []int32
		it := newRangeIterator(&tt.r)
		for it.hasNext() {
			b := it.next().Ref().(Boxed)
			got = append(got, b.Value.AsInt())
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.r.String(), got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.r.String(), got, tt.want)
				break
			}
		}
		if int(tt.r.size()) != len(tt.want) {
			t.Errorf("%s: size %d, want %d", tt.r.String(), tt.r.size(), len(tt.want))
		}
	}
}
