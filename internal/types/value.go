package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind is the runtime representation tag of a Value.
type ValueKind uint8

const (
	ValNull   ValueKind = iota // null reference
	ValInt                     // Boolean, Char, Byte, Short, Int
	ValLong                    // Long
	ValFloat                   // Float
	ValDouble                  // Double
	ValRef                     // any non-null reference (string, object, array, boxed)
)

// String returns a string representation of the kind.
func (k ValueKind) String() string {
	switch k {
	case ValNull:
		return "null"
	case ValInt:
		return "int"
	case ValLong:
		return "long"
	case ValFloat:
		return "float"
	case ValDouble:
		return "double"
	case ValRef:
		return "ref"
	default:
		return "unknown"
	}
}

// Value is a VM operand-stack entry or slot content.
// Tagged union: wide primitives still occupy one entry on the operand stack.
type Value struct {
	kind ValueKind
	n    int64
	f    float64
	ref  any
}

// Constructors

// Null returns the null reference.
func Null() Value { return Value{kind: ValNull} }

// IntVal creates a 32-bit integer value.
func IntVal(n int32) Value { return Value{kind: ValInt, n: int64(n)} }

// LongVal creates a 64-bit integer value.
func LongVal(n int64) Value { return Value{kind: ValLong, n: n} }

// FloatVal creates a 32-bit float value.
func FloatVal(f float32) Value { return Value{kind: ValFloat, f: float64(f)} }

// DoubleVal creates a 64-bit float value.
func DoubleVal(f float64) Value { return Value{kind: ValDouble, f: f} }

// BoolVal creates an integer 1 or 0.
func BoolVal(b bool) Value {
	if b {
		return IntVal(1)
	}
	return IntVal(0)
}

// Ref wraps a non-nil reference. A nil x yields Null.
func Ref(x any) Value {
	if x == nil {
		return Null()
	}
	return Value{kind: ValRef, ref: x}
}

// Str creates a string reference.
func Str(s string) Value { return Value{kind: ValRef, ref: s} }

// Accessors

// Kind returns the representation tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool { return v.kind == ValNull }

// AsInt returns the value as a 32-bit integer.
func (v Value) AsInt() int32 {
	switch v.kind {
	case ValFloat, ValDouble:
		return int32(v.f)
	}
	return int32(v.n)
}

// AsLong returns the value as a 64-bit integer.
func (v Value) AsLong() int64 {
	switch v.kind {
	case ValFloat, ValDouble:
		return int64(v.f)
	}
	return v.n
}

// AsDouble returns the value as a float64.
func (v Value) AsDouble() float64 {
	switch v.kind {
	case ValFloat, ValDouble:
		return v.f
	}
	return float64(v.n)
}

// AsBool reports whether the integer value is non-zero.
func (v Value) AsBool() bool { return v.n != 0 }

// Ref returns the reference payload, nil for null and primitives.
func (v Value) Ref() any { return v.ref }

// AsString returns the payload of a string reference.
func (v Value) AsString() (string, bool) {
	s, ok := v.ref.(string)
	return s, ok
}

// Convert performs a primitive conversion from kind "from" to kind "to",
// with two's-complement truncation for narrowing integer conversions.
func Convert(v Value, from, to Kind) Value {
	switch to {
	case KindByte:
		return IntVal(int32(int8(v.AsLong())))
	case KindShort:
		return IntVal(int32(int16(v.AsLong())))
	case KindChar:
		return IntVal(int32(uint16(v.AsLong())))
	case KindInt, KindBoolean:
		if from == KindFloat || from == KindDouble {
			return IntVal(saturateInt32(v.f))
		}
		return IntVal(int32(v.AsLong()))
	case KindLong:
		if from == KindFloat || from == KindDouble {
			return LongVal(saturateInt64(v.f))
		}
		return LongVal(v.AsLong())
	case KindFloat:
		return FloatVal(float32(v.AsDouble()))
	case KindDouble:
		return DoubleVal(v.AsDouble())
	}
	return v
}

func saturateInt32(f float64) int32 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

func saturateInt64(f float64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// FromConst converts a compile-time constant of static type t into a Value.
// Constants are int64, float64, bool, rune, string or nil.
func FromConst(c any, t Type) Value {
	switch x := c.(type) {
	case nil:
		return Null()
	case bool:
		return BoolVal(x)
	case string:
		return Str(x)
	case rune:
		return IntVal(x)
	case int64:
		switch t.Kind {
		case KindLong:
			return LongVal(x)
		case KindFloat:
			return FloatVal(float32(x))
		case KindDouble:
			return DoubleVal(float64(x))
		}
		return IntVal(int32(x))
	case int:
		return FromConst(int64(x), t)
	case float64:
		if t.Kind == KindFloat {
			return FloatVal(float32(x))
		}
		return DoubleVal(x)
	}
	return Ref(c)
}

// FormatPrimitive renders a primitive of kind k the way toString does.
func FormatPrimitive(v Value, k Kind) string {
	switch k {
	case KindBoolean:
		return strconv.FormatBool(v.AsBool())
	case KindChar:
		return string(rune(v.AsInt()))
	case KindFloat:
		return formatFloat(v.f, 32)
	case KindDouble:
		return formatFloat(v.f, 64)
	case KindLong:
		return strconv.FormatInt(v.n, 10)
	}
	return strconv.FormatInt(int64(v.AsInt()), 10)
}

func formatFloat(f float64, bits int) string {
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if math.IsNaN(f) {
		return "NaN"
	}
	if abs := math.Abs(f); abs >= 1e7 || (abs < 1e-3 && f != 0) {
		mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'E', -1, bits), "E")
		if !strings.Contains(mant, ".") {
			mant += ".0"
		}
		e, _ := strconv.Atoi(exp)
		return mant + "E" + strconv.Itoa(e)
	}
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// String returns a debug representation of the value.
func (v Value) String() string {
	switch v.kind {
	case ValInt:
		return fmt.Sprintf("Int(%d)", v.n)
	case ValLong:
		return fmt.Sprintf("Long(%d)", v.n)
	case ValFloat:
		return fmt.Sprintf("Float(%s)", formatFloat(v.f, 32))
	case ValDouble:
		return fmt.Sprintf("Double(%s)", formatFloat(v.f, 64))
	case ValRef:
		if s, ok := v.ref.(string); ok {
			return fmt.Sprintf("Str(%q)", s)
		}
		return fmt.Sprintf("Ref(%v)", v.ref)
	default:
		return "Null()"
	}
}
