package types

import (
	"math"
	"testing"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []string{
		"Int",
		"Int?",
		"String",
		"String?",
		"IntArray",
		"DoubleArray",
		"Array<String?>",
		"Array<IntArray>",
		"Fn<Int>",
		"Fn<Int,String,Boolean?>",
		"Fn<Fn<Int,Int>,Unit>",
		"Tuple2",
		"Void",
	}
	for _, src := range tests {
		typ, err := Parse(src)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", src, err)
			continue
		}
		if got := typ.String(); got != src {
			t.Errorf("Parse(%q).String() = %q", src, got)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"", "Array<Int", "Array<Int,Int>", "Fn<>", "Int>", "?"} {
		if _, err := Parse(src); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", src)
		}
	}
}

func TestFunctionTypes(t *testing.T) {
	fn := MustParse("Fn<Int,Long,String>")
	if !fn.IsFunction() || fn.Name != "Function2" {
		t.Fatalf("%s: IsFunction = %v, Name = %q", fn, fn.IsFunction(), fn.Name)
	}
	if ps := fn.ParamTypes(); len(ps) != 2 || !ps[1].Equal(Long) {
		t.Errorf("ParamTypes = %v", ps)
	}
	if !fn.ReturnType().Equal(String) {
		t.Errorf("ReturnType = %s", fn.ReturnType())
	}
	if Int.IsFunction() || !Int.ReturnType().IsVoid() {
		t.Error("Int treated as a function type")
	}
}

func TestTypeSize(t *testing.T) {
	tests := []struct {
		typ  Type
		want int
	}{
		{Void, 0},
		{Int, 1},
		{Boolean, 1},
		{Long, 2},
		{Double, 2},
		{Long.AsNullable(), 1},
		{String, 1},
		{ArrayOf(Double), 1},
	}
	for _, tt := range tests {
		if got := tt.typ.Size(); got != tt.want {
			t.Errorf("%s.Size() = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestBoxing(t *testing.T) {
	boxed := Int.AsNullable().Boxed()
	if boxed.Kind != KindClass || boxed.Name != "Int" || !boxed.Nullable {
		t.Errorf("Int?.Boxed() = %+v", boxed)
	}
	if !boxed.Unboxed().Equal(Int) {
		t.Errorf("Unboxed() = %s, want Int", boxed.Unboxed())
	}
	if !String.Boxed().Equal(String) {
		t.Error("Boxed changed a reference type")
	}
	if !Int.AsNullable().IsReference() || Int.IsReference() {
		t.Error("nullable primitives are references, plain ones are not")
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		v        Value
		from, to Kind
		want     Value
	}{
		{"int to byte wraps", IntVal(200), KindInt, KindByte, IntVal(-56)},
		{"int to short wraps", IntVal(40000), KindInt, KindShort, IntVal(-25536)},
		{"int to char is unsigned", IntVal(-1), KindInt, KindChar, IntVal(65535)},
		{"long to int truncates", LongVal(1<<32 + 5), KindLong, KindInt, IntVal(5)},
		{"int to long", IntVal(-3), KindInt, KindLong, LongVal(-3)},
		{"double to int saturates", DoubleVal(1e20), KindDouble, KindInt, IntVal(math.MaxInt32)},
		{"double to int negative", DoubleVal(-1e20), KindDouble, KindInt, IntVal(math.MinInt32)},
		{"nan to int", DoubleVal(math.NaN()), KindDouble, KindInt, IntVal(0)},
		{"double to long truncates", DoubleVal(-2.7), KindDouble, KindLong, LongVal(-2)},
		{"double to float rounds", DoubleVal(0.1), KindDouble, KindFloat, FloatVal(0.1)},
		{"int to double", IntVal(7), KindInt, KindDouble, DoubleVal(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Convert(tt.v, tt.from, tt.to); got != tt.want {
				t.Errorf("Convert(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestFormatPrimitive(t *testing.T) {
	tests := []struct {
		v    Value
		k    Kind
		want string
	}{
		{IntVal(-12), KindInt, "-12"},
		{LongVal(1 << 40), KindLong, "1099511627776"},
		{BoolVal(true), KindBoolean, "true"},
		{IntVal('x'), KindChar, "x"},
		{DoubleVal(1), KindDouble, "1.0"},
		{DoubleVal(2.5), KindDouble, "2.5"},
		{DoubleVal(0.1), KindDouble, "0.1"},
		{DoubleVal(1e7), KindDouble, "1.0E7"},
		{DoubleVal(1.5e-5), KindDouble, "1.5E-5"},
		{DoubleVal(math.Inf(-1)), KindDouble, "-Infinity"},
		{DoubleVal(math.NaN()), KindDouble, "NaN"},
		{FloatVal(0.1), KindFloat, "0.1"},
		{FloatVal(3), KindFloat, "3.0"},
	}
	for _, tt := range tests {
		if got := FormatPrimitive(tt.v, tt.k); got != tt.want {
			t.Errorf("FormatPrimitive(%v, %s) = %q, want %q", tt.v, tt.k, got, tt.want)
		}
	}
}

func TestFromConst(t *testing.T) {
	tests := []struct {
		c    any
		typ  Type
		want Value
	}{
		{nil, NullType, Null()},
		{true, Boolean, BoolVal(true)},
		{'a', Char, IntVal('a')},
		{int64(5), Int, IntVal(5)},
		{int64(5), Long, LongVal(5)},
		{int64(5), Double, DoubleVal(5)},
		{1.5, Float, FloatVal(1.5)},
		{1.5, Double, DoubleVal(1.5)},
		{"s", String, Str("s")},
	}
	for _, tt := range tests {
		if got := FromConst(tt.c, tt.typ); got != tt.want {
			t.Errorf("FromConst(%#v, %s) = %v, want %v", tt.c, tt.typ, got, tt.want)
		}
	}
}
