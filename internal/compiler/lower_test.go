package compiler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/parser"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/vm"
)

func compile(t *testing.T, src string, opts compiler.Options) *compiler.Program {
	t.Helper()
	unit, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if err := semantic.Resolve(unit); err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	prog, err := compiler.Compile(context.Background(), unit, opts)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if err := vm.Verify(prog); err != nil {
		t.Fatalf("%v\n%s", err, prog.Disassemble())
	}
	return prog
}

// run compiles src and runs main.main, returning what it printed.
func run(t *testing.T, src string) (string, error) {
	t.Helper()
	prog := compile(t, src, compiler.Options{LineNumbers: true, LocalVariables: true})
	var out bytes.Buffer
	_, err := vm.New(prog, vm.Config{Output: &out}).Call(context.Background(), "main", "main")
	return out.String(), err
}

func TestLowering(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "hello",
			src:  `(unit main (fun main () Unit (call io.println "hello")))`,
			want: "hello\n",
		},
		{
			name: "locals and widening",
			src: `(unit main (fun main () Unit (do
				(val x Int 7)
				(var y Long 3L)
				(set y (op Long.times y (op Int.toLong x)))
				(call io.println y))))`,
			want: "21\n",
		},
		{
			name: "recursion",
			src: `(unit main
				(fun fib ((n Int)) Int
					(if (< n 2) n (op Int.plus (call main.fib (op Int.minus n 1)) (call main.fib (op Int.minus n 2)))))
				(fun main () Unit (call io.println (call main.fib 10))))`,
			want: "55\n",
		},
		{
			name: "loops",
			src: `(unit main (fun main () Unit (do
				(var s Int 0)
				(for (i Int) (range 1 10) (set s (op Int.plus s i)))
				(var n Int 0)
				(while true (do (set n (op Int.plus n 1)) (if (>= n 5) (break))))
				(var acc String "")
				(for (i Int) (downto 3 1) (set acc (str acc i)))
				(call io.println (str s " " n " " acc)))))`,
			want: "55 5 321\n",
		},
		{
			name: "when",
			src: `(unit main
				(fun describe ((x Int)) String
					(when x (case 1 "one") (case (in (range 2 5)) "few") (else "many")))
				(fun main () Unit (do
					(call io.println (call main.describe 1))
					(call io.println (call main.describe 3))
					(call io.println (call main.describe 9)))))`,
			want: "one\nfew\nmany\n",
		},
		{
			name: "try catch",
			src: `(unit main (fun main () Unit (do
				(var z Int 0)
				(val r Int (try (op Int.div 10 z)
					(catch (e ArithmeticException) (do (call io.println (call Throwable.getMessage :recv e)) -1))))
				(call io.println r))))`,
			want: "/ by zero\n-1\n",
		},
		{
			name: "finally",
			src: `(unit main (fun main () Unit
				(try (call io.println "body") (finally (call io.println "cleanup")))))`,
			want: "body\ncleanup\n",
		},
		{
			name: "class",
			src: `(unit main
				(class Point (field x Int) (field y Int) (fun sum () Int (op Int.plus x y)))
				(fun main () Unit (do
					(val p Point (new Point 1 2))
					(call io.println (call Point.sum :recv p)))))`,
			want: "3\n",
		},
		{
			name: "shared capture",
			src: `(unit main (fun main () Unit (do
				(var count Int 0)
				(val bump Fn<Int,Unit> (lambda ((k Int)) Unit (set count (op Int.plus count k))))
				(invoke bump 2)
				(invoke bump 3)
				(call io.println count))))`,
			want: "5\n",
		},
		{
			name: "capture-free lambda",
			src: `(unit main (fun main () Unit (do
				(val sq Fn<Int,Int> (lambda ((x Int)) Int (op Int.times x x)))
				(call io.println (invoke sq 7)))))`,
			want: "49\n",
		},
		{
			name: "default arguments",
			src: `(unit main
				(fun greet ((name String :default "world")) String (str "hi " name))
				(fun main () Unit (do
					(call io.println (call main.greet))
					(call io.println (call main.greet "bob")))))`,
			want: "hi world\nhi bob\n",
		},
		{
			name: "elvis",
			src: `(unit main (fun main () Unit (do
				(val s String? null)
				(call io.println (elvis s "none")))))`,
			want: "none\n",
		},
		{
			name: "tuple",
			src:  `(unit main (fun main () Unit (call io.println (tuple 1 "a"))))`,
			want: "(1, a)\n",
		},
		{
			name: "object literal",
			src: `(unit main
				(class Greeter :interface (fun greet () String))
				(fun main () Unit (do
					(val g Greeter (object :super Greeter (fun greet () String "hey")))
					(call io.println (call Greeter.greet :recv g)))))`,
			want: "hey\n",
		},
		{
			name: "labelled break through finally",
			src: `(unit main (fun main () Unit (do
				(while true (do
					(for (i Int) (range 1 3)
						(try
							(try (do (call io.println "body") (break outer))
								(finally (call io.println "inner")))
							(finally (call io.println "outer"))))
					(call io.println "unreached")) :label outer)
				(call io.println "done"))))`,
			want: "body\ninner\nouter\ndone\n",
		},
		{
			name: "return through finally",
			src: `(unit main
				(fun f () Int (try (return 7) (finally (call io.println "cleanup"))))
				(fun main () Unit (call io.println (call main.f))))`,
			want: "cleanup\n7\n",
		},
		{
			name: "rethrow through finally",
			src: `(unit main (fun main () Unit
				(try
					(try (throw (new IllegalStateException "boom")) (finally (call io.println "cleanup")))
					(catch (e IllegalStateException) (call io.println (call Throwable.getMessage :recv e))))))`,
			want: "cleanup\nboom\n",
		},
		{
			name: "nullable equality",
			src: `(unit main
				(fun eq ((a String?) (b String?)) String (str (== a b) " " (!= a b)))
				(fun main () Unit (do
					(call io.println (call main.eq null null))
					(call io.println (call main.eq null "x"))
					(call io.println (call main.eq "x" null))
					(call io.println (call main.eq "x" "x"))
					(call io.println (call main.eq "x" "y")))))`,
			want: "true false\nfalse true\nfalse true\ntrue false\nfalse true\n",
		},
		{
			name: "short circuit",
			src: `(unit main
				(fun f () Boolean (do (call io.println "f called") true))
				(fun main () Unit (do
					(var no Boolean false)
					(if (and false (call main.f)) (call io.println "and") (call io.println "no and"))
					(if (or true (call main.f)) (call io.println "or") (call io.println "no or"))
					(if (and no (call main.f)) (call io.println "and") (call io.println "no and"))
					(if (or (not no) (call main.f)) (call io.println "or") (call io.println "no or")))))`,
			want: "no and\nor\nno and\nor\n",
		},
		{
			name: "iterable for",
			src: `(unit main (fun main () Unit (do
				(val xs ArrayList (new ArrayList))
				(call ArrayList.add :recv xs "a")
				(call ArrayList.add :recv xs "b")
				(for (x Any?) xs (call io.println x)))))`,
			want: "a\nb\n",
		},
		{
			name: "capture sees later assignment",
			src: `(unit main (fun main () Unit (do
				(var n Int 1)
				(val peek Fn<Int> (lambda () Int n))
				(set n 42)
				(call io.println (invoke peek)))))`,
			want: "42\n",
		},
		{
			name: "constant conditions",
			src: `(unit main (fun main () Unit (do
				(if true (call io.println "then") (call io.println "else"))
				(if false (call io.println "then") (call io.println "else"))
				(if false (call io.println "never")))))`,
			want: "then\nelse\n",
		},
		{
			name: "when without else matched",
			src: `(unit main (fun main () Unit (do
				(val x Int 2)
				(when x (case 1 (call io.println "one")) (case 2 (call io.println "two")))
				(call io.println "after"))))`,
			want: "two\nafter\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.src)
			if err != nil {
				t.Fatalf("run error: %v", err)
			}
			if got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUncaughtException(t *testing.T) {
	_, err := run(t, `(unit main (fun main () Unit (throw (new IllegalStateException "boom"))))`)
	var te *vm.ThrownError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want ThrownError", err)
	}
	if te.Class != "IllegalStateException" || te.Message != "boom" {
		t.Errorf("got %s: %s", te.Class, te.Message)
	}
}

const closures = `(unit main
	(fun a ((n Int)) Fn<Int,Int> (lambda ((x Int)) Int (op Int.plus x n)))
	(fun b () Fn<Int,Int> (lambda ((x Int)) Int (op Int.times x 2)))
	(fun c ((n Int)) Int (do
		(val f Fn<Int,Int> (lambda ((x Int)) Int (op Int.minus x n)))
		(val g Fn<Int,Int> (lambda ((x Int)) Int (op Int.minus n x)))
		(op Int.plus (invoke f 1) (invoke g 2))))
	(fun main () Unit (call io.println (call main.c 3))))`

func TestWorkersDeterministic(t *testing.T) {
	want := compile(t, closures, compiler.Options{Workers: 1}).Disassemble()
	for i := 0; i < 5; i++ {
		got := compile(t, closures, compiler.Options{Workers: 4}).Disassemble()
		if got != want {
			t.Fatalf("parallel output differs:\n%s\nwant:\n%s", got, want)
		}
	}
}

func TestCompileCancelled(t *testing.T) {
	unit, err := parser.Parse(closures)
	if err != nil {
		t.Fatal(err)
	}
	if err := semantic.Resolve(unit); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, workers := range []int{1, 4} {
		if _, err := compiler.Compile(ctx, unit, compiler.Options{Workers: workers}); !errors.Is(err, context.Canceled) {
			t.Errorf("workers %d: got %v, want context.Canceled", workers, err)
		}
	}
}

func TestCompareBranchesDirectly(t *testing.T) {
	prog := compile(t, `(unit main (fun lt ((a Int) (b Int)) Int (if (< a b) 1 2)))`, compiler.Options{})
	m := prog.Class("main").Method("lt")
	if n := m.Count(func(in compiler.Instr) bool { return in.Op == compiler.Cmp }); n != 0 {
		t.Errorf("%d Cmp instructions, want none:\n%s", n, prog.Disassemble())
	}
	branches := m.Count(func(in compiler.Instr) bool {
		return in.Op == compiler.IfCmpGe || in.Op == compiler.IfCmpLt
	})
	if branches != 1 {
		t.Errorf("%d int compare branches, want 1:\n%s", branches, prog.Disassemble())
	}
}

func TestCaptureFreeLambdaIsShared(t *testing.T) {
	prog := compile(t, closures, compiler.Options{})
	cls := prog.Class("main$b$lambda$1")
	if cls == nil {
		t.Fatalf("no lambda class for b:\n%s", prog.Disassemble())
	}
	if _, ok := cls.Field("$instance"); !ok {
		t.Errorf("%s has no $instance field", cls.Name)
	}
	b := prog.Class("main").Method("b")
	if n := b.Count(func(in compiler.Instr) bool { return in.Op == compiler.New }); n != 0 {
		t.Errorf("b allocates %d objects, want none", n)
	}

	capturing := prog.Class("main$a$lambda$1")
	if capturing == nil {
		t.Fatal("no lambda class for a")
	}
	if _, ok := capturing.Field("$n"); !ok {
		t.Errorf("%s does not capture n: %v", capturing.Name, capturing.Fields)
	}
}

func TestTemplateUsesBuilder(t *testing.T) {
	prog := compile(t, `(unit main (fun f ((n Int)) String (str "n=" n "!")))`, compiler.Options{})
	dis := prog.Disassemble()
	if !strings.Contains(dis, "StringBuilder") {
		t.Errorf("template not lowered through StringBuilder:\n%s", dis)
	}
}

func TestWhenWithoutElseThrows(t *testing.T) {
	src := `(unit main (fun main () Unit (do
		(val x Int 9)
		(call io.println "before")
		(when x (case 1 (call io.println "one")) (case 2 (call io.println "two")))
		(call io.println "fell through"))))`
	out, err := run(t, src)
	var te *vm.ThrownError
	if !errors.As(err, &te) || te.Class != "NoPatternMatchedException" {
		t.Fatalf("got %v, want NoPatternMatchedException", err)
	}
	if out != "before\n" {
		t.Errorf("output = %q, want %q", out, "before\n")
	}

	m := compile(t, src, compiler.Options{}).Class("main").Method("main")
	throws := m.Count(func(in compiler.Instr) bool {
		return in.Op == compiler.New && in.Owner == "NoPatternMatchedException"
	})
	if throws != 1 {
		t.Errorf("%d fault sites, want 1", throws)
	}
}

func isBranch(in compiler.Instr) bool {
	return in.Op >= compiler.Jump && in.Op <= compiler.IfNonNull
}

func TestLoweringShape(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		methods []string
		check   func(m *compiler.Method) string
	}{
		{
			name:    "fold emits a single constant",
			src:     `(unit main (fun f () Int (fold Int 3 (op Int.plus 1 2))))`,
			methods: []string{"f"},
			check: func(m *compiler.Method) string {
				other := m.Count(func(in compiler.Instr) bool { return in.Op != compiler.Const && in.Op != compiler.Return })
				if m.Count(func(in compiler.Instr) bool { return in.Op == compiler.Const }) != 1 || other != 0 {
					return "want one Const and a return"
				}
				return ""
			},
		},
		{
			name:    "constant condition lowers one branch",
			src:     `(unit main (fun f () Int (if true 1 2)) (fun g () Int (if false 1 2)))`,
			methods: []string{"f", "g"},
			check: func(m *compiler.Method) string {
				if n := m.Count(isBranch); n != 0 {
					return "branches on a constant condition"
				}
				return ""
			},
		},
		{
			name:    "empty if pushes Unit once",
			src:     `(unit main (fun f ((c Boolean)) Any (if c (do) (do))))`,
			methods: []string{"f"},
			check: func(m *compiler.Method) string {
				units := m.Count(func(in compiler.Instr) bool {
					return in.Op == compiler.GetStatic && in.Owner == "Unit" && in.Name == "INSTANCE"
				})
				if units != 1 || m.Count(isBranch) != 0 {
					return "want a single Unit.INSTANCE and no branches"
				}
				return ""
			},
		},
		{
			name: "iterable for asks for one iterator",
			src: `(unit main (fun f ((xs ArrayList)) Unit
				(for (x Any?) xs (call io.println x))))`,
			methods: []string{"f"},
			check: func(m *compiler.Method) string {
				if n := m.Count(func(in compiler.Instr) bool { return in.Name == "iterator" }); n != 1 {
					return "want exactly one iterator call"
				}
				return ""
			},
		},
		{
			name: "short circuit on a constant skips the call",
			src: `(unit main
				(fun g () Boolean true)
				(fun f () Boolean (or (and false (call main.g)) (and true (or true (call main.g))))))`,
			methods: []string{"f"},
			check: func(m *compiler.Method) string {
				if n := m.Count(func(in compiler.Instr) bool { return in.Name == "g" }); n != 0 {
					return "g is called"
				}
				return ""
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := compile(t, tt.src, compiler.Options{})
			for _, name := range tt.methods {
				m := prog.Class("main").Method(name)
				if m == nil {
					t.Fatalf("no method %s", name)
				}
				if msg := tt.check(m); msg != "" {
					t.Errorf("%s: %s\n%s", m.FullName(), msg, prog.Disassemble())
				}
			}
		})
	}
}

func TestDefaultBeyondMask(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("(unit main (fun wide (")
	for i := 0; i < 32; i++ {
		fmt.Fprintf(&sb, "(p%d Int", i)
		if i == 31 {
			sb.WriteString(" :default 0")
		}
		sb.WriteString(")")
	}
	sb.WriteString(") Int p0))")

	unit, err := parser.Parse(sb.String())
	if err != nil {
		t.Fatal(err)
	}
	if err := semantic.Resolve(unit); err != nil {
		t.Fatal(err)
	}
	_, err = compiler.Compile(context.Background(), unit, compiler.Options{})
	var le *compiler.LoweringError
	if !errors.As(err, &le) || !strings.Contains(le.Message, "too many parameters with defaults") {
		t.Fatalf("got %v, want a LoweringError for the default of p31", err)
	}
}
