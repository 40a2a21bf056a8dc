// Package types defines the static type model of the resolved program and
// the runtime value representation used by the reference VM.
package types

import (
	"fmt"
	"strings"
)

// Kind classifies a static type.
type Kind uint8

const (
	KindVoid Kind = iota // no value (statement context, Unit-returning calls)
	KindBoolean
	KindChar
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindClass // reference to an instance of a named class
	KindArray // native array, see Elem
)

var kindNames = [...]string{
	KindVoid:    "Void",
	KindBoolean: "Boolean",
	KindChar:    "Char",
	KindByte:    "Byte",
	KindShort:   "Short",
	KindInt:     "Int",
	KindLong:    "Long",
	KindFloat:   "Float",
	KindDouble:  "Double",
	KindClass:   "Class",
	KindArray:   "Array",
}

// String returns the source name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Well-known class names.
const (
	AnyName        = "Any"
	StringName     = "String"
	UnitName       = "Unit"
	NothingName    = "Nothing"
	ThrowableName  = "Throwable"
	IntRangeName   = "IntRange"
	RefName        = "Ref"
	FunctionPrefix = "Function"
	TuplePrefix    = "Tuple"
)

// Type is a static type. Primitive kinds ignore Name. Function types are
// class types named FunctionN whose Args hold the parameter types followed
// by the return type.
type Type struct {
	Kind     Kind
	Name     string
	Elem     *Type
	Args     []Type
	Nullable bool
}

// Predeclared types.
var (
	Void    = Type{Kind: KindVoid}
	Boolean = Type{Kind: KindBoolean}
	Char    = Type{Kind: KindChar}
	Byte    = Type{Kind: KindByte}
	Short   = Type{Kind: KindShort}
	Int     = Type{Kind: KindInt}
	Long    = Type{Kind: KindLong}
	Float   = Type{Kind: KindFloat}
	Double  = Type{Kind: KindDouble}

	Any         = Class(AnyName)
	NullableAny = Class(AnyName).AsNullable()
	String      = Class(StringName)
	Unit        = Class(UnitName)
	Nothing     = Class(NothingName)
	NullType    = Class(NothingName).AsNullable()
	Throwable   = Class(ThrowableName)
	IntRange    = Class(IntRangeName)
)

// Class returns a non-null reference type of the named class.
func Class(name string) Type {
	return Type{Kind: KindClass, Name: name}
}

// ArrayOf returns a native array type with the given element type.
func ArrayOf(elem Type) Type {
	e := elem
	return Type{Kind: KindArray, Elem: &e}
}

// FunctionOf returns the function type (params...) -> ret.
func FunctionOf(params []Type, ret Type) Type {
	args := make([]Type, 0, len(params)+1)
	args = append(args, params...)
	args = append(args, ret)
	return Type{Kind: KindClass, Name: FunctionClass(len(params)), Args: args}
}

// FunctionClass returns the interface name implemented by closures of the given arity.
func FunctionClass(arity int) string {
	return fmt.Sprintf("%s%d", FunctionPrefix, arity)
}

// TupleClass returns the class name of an n-component tuple.
func TupleClass(n int) string {
	return fmt.Sprintf("%s%d", TuplePrefix, n)
}

// AsNullable returns t marked nullable.
func (t Type) AsNullable() Type {
	t.Nullable = true
	return t
}

// NonNull returns t without the nullable mark.
func (t Type) NonNull() Type {
	t.Nullable = false
	return t
}

// IsVoid reports whether t carries no value.
func (t Type) IsVoid() bool { return t.Kind == KindVoid }

// IsPrimitive reports whether t is a non-null primitive.
func (t Type) IsPrimitive() bool {
	return t.Kind >= KindBoolean && t.Kind <= KindDouble && !t.Nullable
}

// IsPrimitiveKind reports whether t has a primitive kind, nullable or not.
func (t Type) IsPrimitiveKind() bool {
	return t.Kind >= KindBoolean && t.Kind <= KindDouble
}

// IsIntLike reports whether t is stored as a 32-bit integer.
func (t Type) IsIntLike() bool {
	switch t.Kind {
	case KindBoolean, KindChar, KindByte, KindShort, KindInt:
		return true
	}
	return false
}

// IsNumeric reports whether t is a numeric primitive kind.
func (t Type) IsNumeric() bool {
	return t.Kind >= KindChar && t.Kind <= KindDouble
}

// IsReference reports whether values of t are heap references.
func (t Type) IsReference() bool {
	return t.Kind == KindClass || t.Kind == KindArray || (t.IsPrimitiveKind() && t.Nullable)
}

// IsClass reports whether t is the named class type.
func (t Type) IsClass(name string) bool {
	return t.Kind == KindClass && t.Name == name
}

// IsUnit reports whether t is the Unit type.
func (t Type) IsUnit() bool { return t.IsClass(UnitName) }

// IsNothing reports whether t is Nothing or Nothing? (the type of null).
func (t Type) IsNothing() bool { return t.IsClass(NothingName) }

// IsArray reports whether t is a native array.
func (t Type) IsArray() bool { return t.Kind == KindArray }

// IsFunction reports whether t is a function type.
func (t Type) IsFunction() bool {
	return t.Kind == KindClass && strings.HasPrefix(t.Name, FunctionPrefix) && len(t.Args) > 0
}

// ParamTypes returns the parameter types of a function type.
func (t Type) ParamTypes() []Type {
	if !t.IsFunction() {
		return nil
	}
	return t.Args[:len(t.Args)-1]
}

// ReturnType returns the result type of a function type.
func (t Type) ReturnType() Type {
	if !t.IsFunction() {
		return Void
	}
	return t.Args[len(t.Args)-1]
}

// Size returns the number of slots a value of t occupies.
func (t Type) Size() int {
	switch t.Kind {
	case KindVoid:
		return 0
	case KindLong, KindDouble:
		if t.Nullable {
			return 1
		}
		return 2
	}
	return 1
}

// BoxedName returns the class name of the boxed form of a primitive kind.
func (t Type) BoxedName() string {
	if t.IsPrimitiveKind() {
		return t.Kind.String()
	}
	return t.Name
}

// Boxed returns the reference form of t. Reference types are returned unchanged.
func (t Type) Boxed() Type {
	if t.IsPrimitiveKind() {
		return Type{Kind: KindClass, Name: t.Kind.String(), Nullable: t.Nullable}
	}
	return t
}

// Unboxed returns the primitive kind named by a boxed class type, or t.
func (t Type) Unboxed() Type {
	if t.Kind == KindClass {
		if k, ok := primitiveNames[t.Name]; ok {
			return Type{Kind: k}
		}
	}
	return t.NonNull()
}

// ClassName returns the runtime class used for instance tests and casts.
func (t Type) ClassName() string {
	switch {
	case t.IsPrimitiveKind():
		return t.Kind.String()
	case t.Kind == KindArray:
		return t.String()
	}
	return t.Name
}

// Equal reports whether a and b denote the same type, nullability included.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind || t.Name != o.Name || t.Nullable != o.Nullable || len(t.Args) != len(o.Args) {
		return false
	}
	if (t.Elem == nil) != (o.Elem == nil) || (t.Elem != nil && !t.Elem.Equal(*o.Elem)) {
		return false
	}
	for i := range t.Args {
		if !t.Args[i].Equal(o.Args[i]) {
			return false
		}
	}
	return true
}

// String returns the source spelling of t, the inverse of Parse.
func (t Type) String() string {
	var s string
	switch t.Kind {
	case KindClass:
		switch {
		case t.IsFunction():
			parts := make([]string, len(t.Args))
			for i, a := range t.Args {
				parts[i] = a.String()
			}
			s = "Fn<" + strings.Join(parts, ",") + ">"
		default:
			s = t.Name
		}
	case KindArray:
		if t.Elem.IsPrimitive() {
			s = t.Elem.Kind.String() + "Array"
		} else {
			s = "Array<" + t.Elem.String() + ">"
		}
	default:
		s = t.Kind.String()
	}
	if t.Nullable {
		s += "?"
	}
	return s
}

var primitiveNames = map[string]Kind{
	"Boolean": KindBoolean,
	"Char":    KindChar,
	"Byte":    KindByte,
	"Short":   KindShort,
	"Int":     KindInt,
	"Long":    KindLong,
	"Float":   KindFloat,
	"Double":  KindDouble,
}

// Parse parses a type spelled in the dump format: Int, String?, IntArray,
// Array<Any?>, Fn<Int,Unit>.
func Parse(s string) (Type, error) {
	t, rest, err := parseType(s)
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("unexpected %q after type in %q", rest, s)
	}
	return t, nil
}

// MustParse is like Parse but panics on malformed input.
func MustParse(s string) Type {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func parseType(s string) (Type, string, error) {
	i := 0
	for i < len(s) && s[i] != '<' && s[i] != '>' && s[i] != ',' && s[i] != '?' {
		i++
	}
	name, rest := s[:i], s[i:]
	if name == "" {
		return Type{}, "", fmt.Errorf("missing type name in %q", s)
	}
	var args []Type
	if strings.HasPrefix(rest, "<") {
		rest = rest[1:]
		for {
			a, r, err := parseType(rest)
			if err != nil {
				return Type{}, "", err
			}
			args = append(args, a)
			rest = r
			if strings.HasPrefix(rest, ",") {
				rest = rest[1:]
				continue
			}
			if !strings.HasPrefix(rest, ">") {
				return Type{}, "", fmt.Errorf("unterminated type arguments in %q", s)
			}
			rest = rest[1:]
			break
		}
	}
	var t Type
	switch {
	case name == "Array":
		if len(args) != 1 {
			return Type{}, "", fmt.Errorf("Array takes one type argument")
		}
		t = ArrayOf(args[0])
	case name == "Fn":
		if len(args) == 0 {
			return Type{}, "", fmt.Errorf("Fn needs a return type")
		}
		t = FunctionOf(args[:len(args)-1], args[len(args)-1])
	case strings.HasSuffix(name, "Array") && primitiveNames[strings.TrimSuffix(name, "Array")] != 0:
		t = ArrayOf(Type{Kind: primitiveNames[strings.TrimSuffix(name, "Array")]})
	case primitiveNames[name] != 0:
		t = Type{Kind: primitiveNames[name]}
	case name == "Void":
		t = Void
	default:
		t = Class(name)
		t.Args = args
	}
	if strings.HasPrefix(rest, "?") {
		t.Nullable = true
		rest = rest[1:]
	}
	return t, rest, nil
}
