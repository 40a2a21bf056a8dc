package semantic_test

import (
	"strings"
	"testing"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/parser"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/types"
)

func resolve(t *testing.T, src string) *ast.Unit {
	t.Helper()
	unit, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := semantic.Resolve(unit); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return unit
}

func body(u *ast.Unit, fn string) []ast.Expr {
	for _, f := range u.Functions {
		if f.Name == fn {
			if b, ok := f.Body.(*ast.BlockExpr); ok {
				return b.Stmts
			}
			return []ast.Expr{f.Body}
		}
	}
	return nil
}

// TestResolveCalls tests binding of declared and library callables.
func TestResolveCalls(t *testing.T) {
	u := resolve(t, `(unit main
		(fun f ((a Int) (b Int :default 2)) Int (op Int.plus a b))
		(fun main () Unit (do
			(call main.f 1)
			(call io.println "x")
			(op Int.times 3 4))))`)
	stmts := body(u, "main")

	call := stmts[0].(*ast.CallExpr).Call
	if call.Callee.Kind != ast.CallStatic || call.Callee.Decl == nil || call.Callee.Decl.Name != "f" {
		t.Errorf("main.f bound to %+v", call.Callee)
	}
	if len(call.Args) != 2 || call.Args[1].Kind != ast.ArgDefault {
		t.Errorf("args = %+v, want [expr default]", call.Args)
	}
	if got := ast.TypeOf(stmts[0]); !got.Equal(types.Int) {
		t.Errorf("call type = %s, want Int", got)
	}

	println := stmts[1].(*ast.CallExpr).Call.Callee
	if println.Decl != nil || println.Owner != "io" {
		t.Errorf("io.println bound to %+v", println)
	}

	times := stmts[2].(*ast.CallExpr).Call.Callee
	if times.Intrinsic != semantic.IntrinsicArith {
		t.Errorf("Int.times intrinsic = %q, want %q", times.Intrinsic, semantic.IntrinsicArith)
	}
}

// TestResolveVarargs tests packing of vararg arguments.
func TestResolveVarargs(t *testing.T) {
	u := resolve(t, `(unit main
		(fun sum ((xs IntArray :vararg)) Int 0)
		(fun main () Unit (do
			(val a IntArray (newarray IntArray 2))
			(call main.sum 1 2 3)
			(call main.sum)
			(call main.sum 1 (spread a)))))`)
	stmts := body(u, "main")
	tests := []struct {
		stmt   int
		elems  int
		spread []bool
	}{
		{1, 3, []bool{false, false, false}},
		{2, 0, nil},
		{3, 2, []bool{false, true}},
	}
	for _, tt := range tests {
		args := stmts[tt.stmt].(*ast.CallExpr).Call.Args
		if len(args) != 1 || args[0].Kind != ast.ArgVararg {
			t.Fatalf("stmt %d: args = %+v, want one vararg", tt.stmt, args)
		}
		if len(args[0].Elems) != tt.elems {
			t.Errorf("stmt %d: %d elements, want %d", tt.stmt, len(args[0].Elems), tt.elems)
		}
		for i, s := range tt.spread {
			if args[0].Spread[i] != s {
				t.Errorf("stmt %d: spread[%d] = %v, want %v", tt.stmt, i, args[0].Spread[i], s)
			}
		}
	}
}

// TestResolveNames tests local, global and implicit field references.
func TestResolveNames(t *testing.T) {
	u := resolve(t, `(unit main
		(global total Int 0)
		(class Box (field v Int) (fun get () Int v))
		(fun main () Unit (do
			(val x Int 1)
			(set total x))))`)
	stmts := body(u, "main")
	assign := stmts[1].(*ast.AssignExpr)
	if p, ok := assign.Target.(*ast.PropExpr); !ok || !p.Field.Static || p.Field.Owner != "main" {
		t.Errorf("global target = %#v", assign.Target)
	}
	if n, ok := assign.Value.(*ast.NameExpr); !ok || n.Var == nil || n.Var.Name != "x" {
		t.Errorf("value = %#v, want bound name x", assign.Value)
	}
	if stmts[0].(*ast.VarDecl).Var.Assigned {
		t.Error("x marked assigned by its initializer")
	}

	get := u.Classes[0].Methods[0]
	p, ok := get.Body.(*ast.PropExpr)
	if !ok {
		t.Fatalf("v resolved to %T, want an implicit field access", get.Body)
	}
	if this, ok := p.Receiver.(*ast.ThisExpr); !ok || this.Kind != ast.ThisInstance {
		t.Errorf("receiver = %#v, want implicit this", p.Receiver)
	}
}

// TestResolveCaptures tests capture analysis and shared cells.
func TestResolveCaptures(t *testing.T) {
	u := resolve(t, `(unit main (fun main () Unit (do
		(var count Int 0)
		(val step Int 2)
		(var untouched Int 5)
		(val bump Fn<Unit> (lambda () Unit (set count (op Int.plus count step))))
		(val peek Fn<Int> (lambda () Int untouched))
		(invoke bump)
		(call io.println (invoke peek)))))`)
	stmts := body(u, "main")
	count := stmts[0].(*ast.VarDecl).Var
	step := stmts[1].(*ast.VarDecl).Var
	untouched := stmts[2].(*ast.VarDecl).Var
	bump := stmts[3].(*ast.VarDecl).Init.(*ast.LambdaExpr)

	if !count.Captured || !count.Shared {
		t.Errorf("count: Captured = %v, Shared = %v, want both", count.Captured, count.Shared)
	}
	if !step.Captured || step.Shared {
		t.Errorf("step: Captured = %v, Shared = %v, want captured by value", step.Captured, step.Shared)
	}
	if !untouched.Captured || untouched.Shared {
		t.Errorf("untouched: Captured = %v, Shared = %v, want captured by value", untouched.Captured, untouched.Shared)
	}
	if !bump.Captures.Has(count) || !bump.Captures.Has(step) || bump.Captures.Has(untouched) {
		t.Errorf("bump captures %v", bump.Captures.Vars)
	}
}

// TestResolveObjects tests naming of object literal classes.
func TestResolveObjects(t *testing.T) {
	u := resolve(t, `(unit demo
		(class Greeter :interface (fun greet () String))
		(fun main () Unit (do
			(val a Greeter (object :super Greeter (fun greet () String "a")))
			(val b Greeter (object :super Greeter (fun greet () String "b"))))))`)
	stmts := body(u, "main")
	for i, want := range []string{"demo$object$1", "demo$object$2"} {
		obj := stmts[i].(*ast.VarDecl).Init.(*ast.ObjectExpr)
		if obj.Class.Name != want {
			t.Errorf("object %d named %q, want %q", i, obj.Class.Name, want)
		}
		if got := ast.TypeOf(obj); got.Name != want {
			t.Errorf("object %d type = %s", i, got)
		}
	}
}

// TestResolveTypes tests type completion of compound expressions.
func TestResolveTypes(t *testing.T) {
	u := resolve(t, `(unit main (fun main ((c Boolean) (s String?)) Unit (do
		(if c 1 2)
		(if c "a" null)
		(elvis s "d")
		(when (case c 1L) (else 2L))
		(try 1 (catch (e Exception) 2)))))`)
	stmts := body(u, "main")
	want := []types.Type{
		types.Int,
		types.String.AsNullable(),
		types.String,
		types.Long,
		types.Int,
	}
	for i, w := range want {
		if got := ast.TypeOf(stmts[i]); !got.Equal(w) {
			t.Errorf("stmt %d: type = %s, want %s", i, got, w)
		}
	}
}

// TestResolveErrors tests error detection.
func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"undefined variable", "(call io.println y)", `undefined variable "y"`},
		{"unresolved callable", "(call main.nope)", "unresolved callable main.nope"},
		{"too many arguments", "(call main.one 1 2)", "too many arguments"},
		{"not enough arguments", "(call main.one)", "not enough arguments"},
		{"assign to val", "(do (val x Int 1) (set x 2))", `cannot assign to val "x"`},
		{"break outside loop", "(break)", "break outside of a loop"},
		{"unknown label", "(while true (break outer))", `unknown loop label "outer"`},
		{"this outside", "(call io.println this)", "this used outside"},
		{"undefined class", "(new Nope)", "Nope"},
		{"duplicate variable", "(do (val x Int 1) (val x Int 2))", "already declared"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := `(unit main
				(fun one ((a Int)) Int a)
				(fun main () Unit ` + tt.body + `))`
			unit, err := parser.Parse(src)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			err = semantic.Resolve(unit)
			if err == nil {
				t.Fatal("Resolve() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.msg)
			}
		})
	}
}
