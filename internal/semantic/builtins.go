package semantic

import (
	"strings"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/types"
)

// Intrinsic keys attached to library callables. The compiler's intrinsic
// table expands calls carrying one of these keys inline.
const (
	IntrinsicArith      = "arith"      // binary arithmetic, bitwise and logical operators
	IntrinsicUnary      = "unary"      // unaryMinus, unaryPlus, inv, not
	IntrinsicIncDec     = "incdec"     // inc, dec
	IntrinsicConvert    = "convert"    // toInt, toLong, ...
	IntrinsicCompareTo  = "compareTo"  // primitive compareTo
	IntrinsicRangeTo    = "rangeTo"    // Int.rangeTo
	IntrinsicDownTo     = "downTo"     // Int.downTo
	IntrinsicStringPlus = "stringPlus" // String.plus
	IntrinsicArraySize  = "arraySize"  // Array.size
)

// libMethod describes a library callable. sig is "(P1,P2)R".
type libMethod struct {
	name      string
	sig       string
	kind      ast.CallKind
	intrinsic string
}

// libField describes a library field or getter-backed property.
type libField struct {
	name   string
	typ    string
	getter string
	static bool
}

type libClass struct {
	name       string
	super      string
	interfaces []string
	iface      bool
	methods    []libMethod
	fields     []libField
}

func virtual(name, sig string) libMethod { return libMethod{name: name, sig: sig, kind: ast.CallVirtual} }
func abstract(name, sig string) libMethod {
	return libMethod{name: name, sig: sig, kind: ast.CallInterface}
}
func static(name, sig string) libMethod { return libMethod{name: name, sig: sig, kind: ast.CallStatic} }
func ctor(sig string) libMethod         { return libMethod{name: "<init>", sig: sig, kind: ast.CallConstructor} }
func intrinsic(name, sig, key string) libMethod {
	return libMethod{name: name, sig: sig, kind: ast.CallVirtual, intrinsic: key}
}

// exceptions lists the library throwable classes with their superclass.
var exceptions = [][2]string{
	{"Exception", "Throwable"},
	{"RuntimeException", "Exception"},
	{"IllegalStateException", "RuntimeException"},
	{"IllegalArgumentException", "RuntimeException"},
	{"NullPointerException", "RuntimeException"},
	{"ArithmeticException", "RuntimeException"},
	{"IndexOutOfBoundsException", "RuntimeException"},
	{"ClassCastException", "RuntimeException"},
	{"TypeCastException", "ClassCastException"},
	{"NoPatternMatchedException", "RuntimeException"},
}

func libraryClasses() []libClass {
	classes := []libClass{
		{name: "Any", methods: []libMethod{
			virtual("equals", "(Any?)Boolean"),
			virtual("hashCode", "()Int"),
			virtual("toString", "()String"),
		}},
		{name: "Unit", super: "Any", fields: []libField{{name: "INSTANCE", typ: "Unit", static: true}}},
		{name: "Nothing", super: "Any"},
		{name: "Number", super: "Any"},
		{name: "Comparable", iface: true, methods: []libMethod{abstract("compareTo", "(Any?)Int")}},
		{name: "Iterable", iface: true, methods: []libMethod{abstract("iterator", "()Iterator")}},
		{name: "Iterator", iface: true, methods: []libMethod{
			abstract("hasNext", "()Boolean"),
			abstract("next", "()Any?"),
		}},
		{name: "Collection", iface: true, interfaces: []string{"Iterable"}, methods: []libMethod{
			abstract("size", "()Int"),
			abstract("contains", "(Any?)Boolean"),
			abstract("isEmpty", "()Boolean"),
		}, fields: []libField{{name: "size", typ: "Int", getter: "size"}}},
		{name: "String", super: "Any", interfaces: []string{"Comparable"}, methods: []libMethod{
			intrinsic("plus", "(Any?)String", IntrinsicStringPlus),
			virtual("length", "()Int"),
			virtual("get", "(Int)Char"),
			virtual("compareTo", "(String)Int"),
			virtual("substring", "(Int,Int)String"),
			virtual("contains", "(String)Boolean"),
		}, fields: []libField{{name: "length", typ: "Int", getter: "length"}}},
		{name: "StringBuilder", super: "Any", methods: []libMethod{
			ctor("()StringBuilder"),
			virtual("append", "(Any?)StringBuilder"),
			virtual("length", "()Int"),
		}},
		{name: "ArrayList", super: "Any", interfaces: []string{"Collection"}, methods: []libMethod{
			ctor("()ArrayList"),
			virtual("add", "(Any?)Boolean"),
			virtual("get", "(Int)Any?"),
			virtual("set", "(Int,Any?)Any?"),
			virtual("size", "()Int"),
			virtual("contains", "(Any?)Boolean"),
			virtual("isEmpty", "()Boolean"),
			virtual("iterator", "()Iterator"),
		}},
		{name: "IntRange", super: "Any", interfaces: []string{"Iterable"}, methods: []libMethod{
			ctor("(Int,Int,Boolean)IntRange"),
			virtual("getStart", "()Int"),
			virtual("getEnd", "()Int"),
			virtual("getSize", "()Int"),
			virtual("getIsReversed", "()Boolean"),
			virtual("contains", "(Int)Boolean"),
			virtual("isEmpty", "()Boolean"),
			virtual("iterator", "()Iterator"),
		}, fields: []libField{
			{name: "start", typ: "Int", getter: "getStart"},
			{name: "end", typ: "Int", getter: "getEnd"},
			{name: "size", typ: "Int", getter: "getSize"},
		}},
		{name: "Ref", super: "Any", methods: []libMethod{ctor("()Ref")},
			fields: []libField{{name: "element", typ: "Any?"}}},
		{name: "Array", super: "Any", methods: []libMethod{intrinsic("size", "()Int", IntrinsicArraySize)}},
		{name: "Throwable", super: "Any", methods: []libMethod{
			ctor("(String?)Throwable"),
			virtual("getMessage", "()String?"),
		}, fields: []libField{{name: "message", typ: "String?", getter: "getMessage"}}},
		{name: "io", super: "Any", methods: []libMethod{
			static("println", "(Any?)Unit"),
			static("print", "(Any?)Unit"),
		}},
	}
	for _, e := range exceptions {
		classes = append(classes, libClass{name: e[0], super: e[1], methods: []libMethod{ctor("(String?)" + e[0])}})
	}
	classes = append(classes, primitiveClasses()...)
	return classes
}

// primitiveClasses describes the operators of the primitive types. The
// boxed class of each primitive shares its name.
func primitiveClasses() []libClass {
	numeric := []string{"Int", "Long", "Float", "Double", "Short", "Byte"}
	convs := []string{"Int", "Long", "Float", "Double", "Short", "Byte", "Char"}
	var classes []libClass
	for _, n := range numeric {
		res := n
		if n == "Short" || n == "Byte" {
			res = "Int"
		}
		c := libClass{name: n, super: "Number", interfaces: []string{"Comparable"}}
		for _, op := range []string{"plus", "minus", "times", "div", "rem"} {
			c.methods = append(c.methods, intrinsic(op, "("+n+")"+res, IntrinsicArith))
		}
		c.methods = append(c.methods,
			intrinsic("unaryMinus", "()"+res, IntrinsicUnary),
			intrinsic("unaryPlus", "()"+res, IntrinsicUnary),
			intrinsic("inc", "()"+n, IntrinsicIncDec),
			intrinsic("dec", "()"+n, IntrinsicIncDec),
			intrinsic("compareTo", "("+n+")Int", IntrinsicCompareTo),
		)
		for _, to := range convs {
			c.methods = append(c.methods, intrinsic("to"+to, "()"+to, IntrinsicConvert))
		}
		if n == "Int" || n == "Long" {
			for _, op := range []string{"and", "or", "xor"} {
				c.methods = append(c.methods, intrinsic(op, "("+n+")"+n, IntrinsicArith))
			}
			for _, op := range []string{"shl", "shr", "ushr"} {
				c.methods = append(c.methods, intrinsic(op, "(Int)"+n, IntrinsicArith))
			}
			c.methods = append(c.methods, intrinsic("inv", "()"+n, IntrinsicUnary))
		}
		if n == "Int" {
			c.methods = append(c.methods,
				intrinsic("rangeTo", "(Int)IntRange", IntrinsicRangeTo),
				intrinsic("downTo", "(Int)IntRange", IntrinsicDownTo),
			)
		}
		classes = append(classes, c)
	}
	classes = append(classes,
		libClass{name: "Char", super: "Any", interfaces: []string{"Comparable"}, methods: []libMethod{
			intrinsic("plus", "(Int)Char", IntrinsicArith),
			intrinsic("inc", "()Char", IntrinsicIncDec),
			intrinsic("dec", "()Char", IntrinsicIncDec),
			intrinsic("compareTo", "(Char)Int", IntrinsicCompareTo),
			intrinsic("toInt", "()Int", IntrinsicConvert),
		}},
		libClass{name: "Boolean", super: "Any", interfaces: []string{"Comparable"}, methods: []libMethod{
			intrinsic("not", "()Boolean", IntrinsicUnary),
			intrinsic("and", "(Boolean)Boolean", IntrinsicArith),
			intrinsic("or", "(Boolean)Boolean", IntrinsicArith),
			intrinsic("xor", "(Boolean)Boolean", IntrinsicArith),
			intrinsic("compareTo", "(Boolean)Int", IntrinsicCompareTo),
		}},
	)
	return classes
}

// library builds the member tables of the library catalog.
func library() []*ClassInfo {
	var out []*ClassInfo
	for _, lc := range libraryClasses() {
		c := newClassInfo(lc.name, lc.super)
		c.Interfaces = lc.interfaces
		c.Interface = lc.iface
		for _, m := range lc.methods {
			params, ret := parseSig(m.sig)
			callable := &ast.Callable{Owner: lc.name, Name: m.name, Kind: m.kind, Return: ret, Intrinsic: m.intrinsic}
			for i, t := range params {
				callable.Params = append(callable.Params, ast.ParamInfo{Name: paramName(i), Type: t})
			}
			c.Methods[m.name] = callable
		}
		for _, f := range lc.fields {
			ref := &ast.FieldRef{Owner: lc.name, Name: f.name, Type: types.MustParse(f.typ), Static: f.static}
			if f.getter != "" {
				ref.Getter = c.Methods[f.getter]
				ref.Interface = lc.iface
			}
			c.Fields[f.name] = ref
		}
		out = append(out, c)
	}
	return out
}

func paramName(i int) string {
	return string(rune('a' + i))
}

// parseSig splits "(P1,P2)R" into parameter and result types.
func parseSig(sig string) ([]types.Type, types.Type) {
	end := strings.LastIndexByte(sig, ')')
	var params []types.Type
	for _, p := range splitTop(sig[1:end]) {
		params = append(params, types.MustParse(p))
	}
	return params, types.MustParse(sig[end+1:])
}

// splitTop splits s at commas outside angle brackets.
func splitTop(s string) []string {
	if s == "" {
		return nil
	}
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
