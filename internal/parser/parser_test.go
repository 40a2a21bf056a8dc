package parser_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/parser"
	"github.com/kolkov/stackgen/internal/token"
	"github.com/kolkov/stackgen/internal/types"
)

// TestParseUnit tests decoding the declarations of a unit.
func TestParseUnit(t *testing.T) {
	src := `
; top-level declarations
(unit demo
  (global counter Int 0)
  (global label String?)
  (class Shape :interface (fun area () Double))
  (class Rect :super Base :implements (Shape)
    (field w Double)
    (field h Double)
    (property square Boolean (get (== w h)))
    (fun area () Double (op Double.times w h)))
  (fun main () Unit (call io.println "hi"))
  (fun len :receiver String () Int (call String.length :recv this)))
`
	unit, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if unit.Name != "demo" {
		t.Errorf("Name = %q, want demo", unit.Name)
	}
	if len(unit.Globals) != 2 || unit.Globals[0].Init == nil || unit.Globals[1].Init != nil {
		t.Fatalf("Globals = %v", unit.Globals)
	}
	if !unit.Globals[1].Type.Nullable {
		t.Errorf("label type = %s, want String?", unit.Globals[1].Type)
	}
	if len(unit.Classes) != 2 {
		t.Fatalf("Classes = %d, want 2", len(unit.Classes))
	}

	shape := unit.Classes[0]
	if !shape.Interface || len(shape.Methods) != 1 || shape.Methods[0].Body != nil {
		t.Errorf("Shape = %+v, want interface with one abstract method", shape)
	}

	rect := unit.Classes[1]
	if rect.SuperName != "Base" || len(rect.Interfaces) != 1 || rect.Interfaces[0] != "Shape" {
		t.Errorf("Rect header = super %q implements %v", rect.SuperName, rect.Interfaces)
	}
	if len(rect.Fields) != 2 || len(rect.Properties) != 1 || len(rect.Methods) != 1 {
		t.Fatalf("Rect members = %d fields, %d properties, %d methods",
			len(rect.Fields), len(rect.Properties), len(rect.Methods))
	}
	if g := rect.Properties[0].Getter; g == nil || g.Name != "getSquare" || g.Owner != "Rect" {
		t.Errorf("getter = %+v", g)
	}
	if rect.Methods[0].Class != rect {
		t.Error("method not linked to its class")
	}

	if len(unit.Functions) != 2 {
		t.Fatalf("Functions = %d, want 2", len(unit.Functions))
	}
	for _, f := range unit.Functions {
		if !f.Static || f.Owner != "demo" {
			t.Errorf("%s: Static = %v, Owner = %q", f.Name, f.Static, f.Owner)
		}
	}
	if r := unit.Functions[1].Receiver; r == nil || !r.Equal(types.String) {
		t.Errorf("receiver = %v, want String", r)
	}
}

// TestParseParams tests parameter decoding.
func TestParseParams(t *testing.T) {
	unit, err := parser.Parse(`(unit u
		(fun f ((a Int) (b String :default "x") (rest IntArray :vararg)) Unit (return)))`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	f := unit.Functions[0]
	if len(f.Params) != 3 {
		t.Fatalf("Params = %d, want 3", len(f.Params))
	}
	if !f.HasDefaults() || f.Params[1].Default == nil {
		t.Error("default argument lost")
	}
	if !f.Params[2].Vararg || !f.Params[2].Var.Type.IsArray() {
		t.Errorf("rest = %+v, want IntArray vararg", f.Params[2])
	}
	for _, prm := range f.Params {
		if prm.Var.Kind != ast.VarParam || prm.Var.Fun != f {
			t.Errorf("%s: Kind = %v, Fun = %v", prm.Var.Name, prm.Var.Kind, prm.Var.Fun)
		}
	}
}

// TestParseExpr tests the expression forms by their printed shape.
func TestParseExpr(t *testing.T) {
	tests := []struct {
		src  string
		want string // first line of ast.String
	}{
		{"42", "Const : Int = 42"},
		{"5L", "Const : Long = 5"},
		{"1.5f", "Const : Float = 1.5"},
		{"2.25", "Const : Double = 2.25"},
		{`"hi"`, `Const : String = "hi"`},
		{"'c'", "Const : Char = 99"},
		{"true", "Const : Boolean = true"},
		{"null", "Const : Nothing? = <nil>"},
		{"x", "Name x : Void"},
		{"this", "This : Void"},
		{"(const Long 7)", "Const : Long = 7"},
		{"(range 1 10)", "Range : IntRange"},
		{"(downto 10 1)", "DownTo : IntRange"},
		{"(< a b)", "Compare < : Boolean"},
		{"(!== a b)", "Compare !== : Boolean"},
		{"(and a b)", "And : Boolean"},
		{"(or a b)", "Or : Boolean"},
		{"(!in x (range 1 2))", "NotIn : Boolean"},
		{"(as String x)", "Cast String : String"},
		{"(as? String x)", "SafeCast String : String?"},
		{"(while true (break) :label outer)", "While @outer : Unit"},
		{"(break outer)", "Break @outer : Nothing"},
		{"(for (i Int) (range 1 3) (continue))", "For i : Unit"},
		{"(postinc x)", "IncDec post +1 : Void"},
		{"(predec x)", "IncDec pre -1 : Void"},
		{"(var n Int 0)", "Var n: Int : Unit"},
		{"(str a b)", "Template : String"},
		{"(tuple)", "Tuple : Unit"},
		{"(tuple 1 2)", "Tuple : Tuple2"},
		{"(newarray IntArray 3)", "NewArray : IntArray"},
		{"(new Point 1 2)", "Call Point.<init> [static] : Point"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := parser.ParseExpr(tt.src)
			if err != nil {
				t.Fatalf("ParseExpr() error = %v", err)
			}
			got, _, _ := strings.Cut(ast.String(e), "\n")
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// TestParseTypeOverride tests the :type keyword accepted by every form.
func TestParseTypeOverride(t *testing.T) {
	e, err := parser.ParseExpr("(if c 1 null :type Int?)")
	if err != nil {
		t.Fatalf("ParseExpr() error = %v", err)
	}
	if got := e.Info().Type; !got.Equal(types.Int.AsNullable()) {
		t.Errorf("type = %s, want Int?", got)
	}
}

// TestParseWhen tests subject and subject-less when forms.
func TestParseWhen(t *testing.T) {
	e, err := parser.ParseExpr(`(when x
		(case 1 2 "small")
		(case (!is String) "not a string")
		(case (in (range 5 9)) "mid")
		(case (bind (n Int) (> n 100)) "big")
		(case (tuple _ (eq y)) "pair")
		(else "other"))`)
	if err != nil {
		t.Fatalf("ParseExpr() error = %v", err)
	}
	w := e.(*ast.WhenExpr)
	if w.Subject == nil || len(w.Entries) != 6 || !w.HasElse() {
		t.Fatalf("when = %+v", w)
	}
	if n := len(w.Entries[0].Conditions); n != 2 {
		t.Errorf("first entry has %d alternatives, want 2", n)
	}
	if tp, ok := w.Entries[1].Conditions[0].(*ast.TypePattern); !ok || !tp.IsNegated() {
		t.Errorf("entry 1 = %#v, want negated type pattern", w.Entries[1].Conditions[0])
	}
	if _, ok := w.Entries[2].Conditions[0].(*ast.RangePattern); !ok {
		t.Errorf("entry 2 = %T, want range pattern", w.Entries[2].Conditions[0])
	}
	if bp, ok := w.Entries[3].Conditions[0].(*ast.BindPattern); !ok || bp.Guard == nil {
		t.Errorf("entry 3 = %#v, want guarded binding", w.Entries[3].Conditions[0])
	}
	if tp, ok := w.Entries[4].Conditions[0].(*ast.TuplePattern); !ok || len(tp.Elems) != 2 {
		t.Errorf("entry 4 = %#v, want two-element tuple pattern", w.Entries[4].Conditions[0])
	}

	e, err = parser.ParseExpr(`(when (case (> a 1) "a") (else "b"))`)
	if err != nil {
		t.Fatalf("ParseExpr() error = %v", err)
	}
	w = e.(*ast.WhenExpr)
	if w.Subject != nil {
		t.Error("subject-less when got a subject")
	}
	if _, ok := w.Entries[0].Conditions[0].(*ast.ExprPattern); !ok {
		t.Errorf("condition = %T, want expression pattern", w.Entries[0].Conditions[0])
	}
}

// TestParseTry tests catch and finally clauses.
func TestParseTry(t *testing.T) {
	e, err := parser.ParseExpr(`(try (call u.f)
		(catch (e IllegalStateException) 1)
		(catch (e Exception) 2)
		(finally (call u.g)))`)
	if err != nil {
		t.Fatalf("ParseExpr() error = %v", err)
	}
	tr := e.(*ast.TryExpr)
	if len(tr.Catches) != 2 || tr.Finally == nil {
		t.Fatalf("try = %+v", tr)
	}
	if v := tr.Catches[0].Var; v.Kind != ast.VarCatch || v.Type.Name != "IllegalStateException" {
		t.Errorf("catch var = %+v", v)
	}
}

// TestParseCallArgs tests argument markers.
func TestParseCallArgs(t *testing.T) {
	e, err := parser.ParseExpr(`(call u.f 1 (default) (spread xs) :recv r)`)
	if err != nil {
		t.Fatalf("ParseExpr() error = %v", err)
	}
	call := e.(*ast.CallExpr).Call
	if call.Callee.Owner != "u" || call.Callee.Name != "f" || call.Receiver == nil {
		t.Fatalf("call = %+v", call)
	}
	kinds := []ast.ArgKind{ast.ArgExpr, ast.ArgDefault, ast.ArgVararg}
	if len(call.Args) != len(kinds) {
		t.Fatalf("Args = %d, want %d", len(call.Args), len(kinds))
	}
	for i, k := range kinds {
		if call.Args[i].Kind != k {
			t.Errorf("arg %d kind = %v, want %v", i, call.Args[i].Kind, k)
		}
	}
}

// TestParseLocalFunctions tests lambdas, local functions and object literals.
func TestParseLocalFunctions(t *testing.T) {
	unit, err := parser.Parse(`(unit u (fun main () Unit (do
		(val f Fn<Int,Int> (lambda ((x Int)) Int x))
		(fun twice ((x Int)) Int (op Int.times x 2))
		(val o Any (object :super Base :args (1) (fun toString () String "o"))))))`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	main := unit.Functions[0]
	stmts := main.Body.(*ast.BlockExpr).Stmts

	lambda := stmts[0].(*ast.VarDecl).Init.(*ast.LambdaExpr)
	if lambda.Fun.Name != "invoke" || lambda.Fun.Outer != main {
		t.Errorf("lambda fun = %s, outer %v", lambda.Fun.Name, lambda.Fun.Outer)
	}
	if !lambda.Info().Type.IsFunction() {
		t.Errorf("lambda type = %s, want a function type", lambda.Info().Type)
	}

	local := stmts[1].(*ast.LocalFunExpr)
	if local.Var.Name != "twice" || local.Var.Kind != ast.VarFunction || local.Lambda.Fun.Name != "invoke" {
		t.Errorf("local fun = %+v", local.Var)
	}

	obj := stmts[2].(*ast.VarDecl).Init.(*ast.ObjectExpr)
	if obj.Class == nil || obj.Class.SuperName != "Base" || len(obj.Class.Methods) != 1 || len(obj.SuperArgs) != 1 {
		t.Errorf("object = %+v", obj)
	}
}

// TestParseErrors tests error reporting.
func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"empty", "", "missing (unit ...)"},
		{"not a unit", "(fun f () Unit)", "expected (unit ...)"},
		{"two units", "(unit a) (unit b)", "more than one unit"},
		{"unclosed", "(unit a", ""},
		{"bad decl", "(unit a (field x Int))", "expected class, fun or global"},
		{"bad arity", "(unit a (fun f () Unit (if c)))", "(if ...) takes 2 to 3 arguments"},
		{"unknown form", "(unit a (fun f () Unit (frob 1)))", "unknown form (frob ...)"},
		{"bad type", "(unit a (global x Array<Int))", "unterminated type arguments"},
		{"bad ref", "(unit a (fun f () Unit (call f)))", "expected Owner.name"},
		{"bad lvalue", "(unit a (fun f () Unit (set 1 2)))", "cannot assign"},
		{"int overflow", "(unit a (global x Int 3000000000))", "int literal out of range"},
		{"vararg", "(unit a (fun f ((x Int :vararg)) Unit))", "must have an array type"},
		{"dangling keyword", "(unit a (fun f () Unit (while c b :label)))", "needs a value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.src)
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			var list parser.ErrorList
			if !errors.As(err, &list) || len(list) == 0 {
				t.Fatalf("error %T is not an ErrorList", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.msg)
			}
		})
	}
}

// TestParseFilePositions tests that positions carry the file name.
func TestParseFilePositions(t *testing.T) {
	_, err := parser.ParseFile("prog.sexp", []byte("(unit a\n  (frob))"))
	var list parser.ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("error = %v, want ErrorList", err)
	}
	pos := list[0].Pos
	if pos.Filename != "prog.sexp" || pos.Line != 2 || pos.Column != 3 {
		t.Errorf("position = %s, want prog.sexp:2:3", pos)
	}
}

// TestErrorList tests ErrorList formatting.
func TestErrorList(t *testing.T) {
	var el parser.ErrorList
	if el.Err() != nil {
		t.Error("empty list reports an error")
	}
	el.Add(token.NoPos, "first")
	el.Add(token.NoPos, "second")
	if got := el.Error(); got != "first (and 1 more errors)" {
		t.Errorf("Error() = %q", got)
	}
}
