package stackgen_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kolkov/stackgen"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name   string
		source string
		entry  string
		config *stackgen.Config
		want   string
	}{
		{
			name:   "hello",
			source: `(unit main (fun main () Unit (call io.println "hello")))`,
			entry:  "main",
			want:   "hello\n",
		},
		{
			name:   "qualified entry",
			source: `(unit app (fun start () Unit (call io.print "go")))`,
			entry:  "app.start",
			want:   "go",
		},
		{
			name: "loop and template",
			source: `(unit main (fun main () Unit (do
				(var s Long 0L)
				(for (i Int) (range 1 4) (set s (op Long.plus s (op Int.toLong i))))
				(call io.println (str "sum=" s)))))`,
			entry: "main",
			want:  "sum=10\n",
		},
		{
			name: "doubles",
			source: `(unit main (fun main () Unit (do
				(call io.println (op Double.div 1.0 4.0))
				(call io.println 1e7))))`,
			entry: "main",
			want:  "0.25\n1.0E7\n",
		},
		{
			name: "sequential and parallel lowering agree",
			source: `(unit main
				(fun twice ((f Fn<Int,Int>) (x Int)) Int (invoke f (invoke f x)))
				(fun main () Unit (do
					(val k Int 3)
					(call io.println (call main.twice (lambda ((x Int)) Int (op Int.plus x k)) 1)))))`,
			entry:  "main",
			config: &stackgen.Config{Workers: 4},
			want:   "7\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stackgen.Run(context.Background(), tt.source, tt.entry, tt.config)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Run() = %q, want %q", got, tt.want)
			}
		})
	}
}

const calc = `(unit calc
	(fun add ((a Int) (b Int)) Int (op Int.plus a b))
	(fun twice ((s String)) String (str s s))
	(fun big ((x Long)) Long (op Long.times x 2L))
	(fun half ((x Double)) Double (op Double.div x 2.0))
	(fun flip ((b Boolean)) Boolean (not b))
	(fun orElse ((x Int?)) Int (elvis x -1))
	(fun none () Unit (call io.print ""))
	(fun pair () Any (tuple 1 "a")))`

func TestCall(t *testing.T) {
	prog := stackgen.MustCompile(calc)
	tests := []struct {
		entry string
		args  []any
		want  any
	}{
		{"add", []any{2, 3}, 5},
		{"calc.add", []any{int32(-2), int64(3)}, 1},
		{"twice", []any{"ab"}, "abab"},
		{"big", []any{int64(21)}, int64(42)},
		{"half", []any{3.0}, 1.5},
		{"flip", []any{true}, false},
		{"orElse", []any{nil}, -1},
		{"orElse", []any{7}, 7},
		{"none", nil, nil},
		{"pair", nil, "(1, a)"},
	}
	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			got, err := prog.Call(context.Background(), tt.entry, tt.args...)
			if err != nil {
				t.Fatalf("Call(%s) error = %v", tt.entry, err)
			}
			if got != tt.want {
				t.Errorf("Call(%s) = %#v, want %#v", tt.entry, got, tt.want)
			}
		})
	}
}

func TestCallErrors(t *testing.T) {
	prog := stackgen.MustCompile(calc)
	tests := []struct {
		name  string
		entry string
		args  []any
		msg   string
	}{
		{"missing function", "nope", nil, "no static method calc.nope"},
		{"missing class", "Nope.add", []any{1, 2}, "no static method Nope.add"},
		{"argument count", "add", []any{1}, "takes 2 arguments, got 1"},
		{"string for Int", "add", []any{"1", 2}, "string passed for Int"},
		{"null for Int", "add", []any{nil, 2}, "null passed for Int"},
		{"number for Boolean", "flip", []any{1}, "cannot pass int as Boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := prog.Call(context.Background(), tt.entry, tt.args...)
			var re *stackgen.RuntimeError
			if !errors.As(err, &re) {
				t.Fatalf("Call() error = %v, want RuntimeError", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("error = %q, want it to contain %q", err, tt.msg)
			}
		})
	}
}

func TestThrownError(t *testing.T) {
	src := `(unit main
		(fun fail () Unit (throw (new IllegalStateException "boom")))
		(fun main () Unit (do (call io.println "before") (call main.fail))))`
	out, err := stackgen.Run(context.Background(), src, "main", nil)
	if out != "before\n" {
		t.Errorf("output = %q, want output up to the throw", out)
	}
	var te *stackgen.ThrownError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want ThrownError", err)
	}
	if te.Class != "IllegalStateException" || te.Message != "boom" {
		t.Errorf("got %s: %s", te.Class, te.Message)
	}
	if class, ok := stackgen.IsThrown(err); !ok || class != "IllegalStateException" {
		t.Errorf("IsThrown() = %q, %v", class, ok)
	}
	if _, ok := stackgen.IsThrown(errors.New("other")); ok {
		t.Error("IsThrown() accepted a plain error")
	}
}

func TestCallDepth(t *testing.T) {
	src := `(unit main (fun down ((n Int)) Int (op Int.plus (call main.down n) 1)))`
	prog, err := stackgen.Compile(context.Background(), src, &stackgen.Config{MaxCallDepth: 50})
	if err != nil {
		t.Fatal(err)
	}
	_, err = prog.Call(context.Background(), "down", 1)
	var re *stackgen.RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("Call() error = %v, want RuntimeError", err)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		line   int
		msg    string
	}{
		{"unclosed", "(unit main\n  (fun main () Unit", 0, ""},
		{"undefined variable", "(unit main\n  (fun main () Unit (call io.println y)))", 2, `undefined variable "y"`},
		{"unresolved call", "(unit main\n\n  (fun main () Unit (call main.nope)))", 3, "unresolved callable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stackgen.Compile(context.Background(), tt.source, nil)
			var pe *stackgen.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Compile() error = %v, want ParseError", err)
			}
			if tt.line > 0 && pe.Line != tt.line {
				t.Errorf("line = %d, want %d", pe.Line, tt.line)
			}
			if !strings.Contains(pe.Message, tt.msg) {
				t.Errorf("message = %q, want it to contain %q", pe.Message, tt.msg)
			}
		})
	}
}

func TestCompileBadIntrinsic(t *testing.T) {
	_, err := stackgen.Compile(context.Background(), calc, &stackgen.Config{Intrinsics: []string{"calc.add=nope"}})
	if err == nil || !strings.Contains(err.Error(), `unknown intrinsic "nope"`) {
		t.Errorf("Compile() error = %v, want unknown intrinsic", err)
	}
}

func TestIntrinsicAlias(t *testing.T) {
	src := `(unit main
		(fun same ((x Int)) Int (op Int.plus x 100))
		(fun main () Unit (call io.println (call main.same 1))))`
	tests := []struct {
		name       string
		intrinsics []string
		want       string
	}{
		{"none", nil, "101\n"},
		{"alias", []string{"main.same=identity"}, "1\n"},
		{"pattern", []string{`main\.s\w+=identity`}, "1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stackgen.Run(context.Background(), src, "main", &stackgen.Config{Intrinsics: tt.intrinsics})
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Run() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := stackgen.Compile(ctx, calc, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Compile() error = %v, want context.Canceled", err)
	}
}

func TestMustCompile(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustCompile() did not panic on invalid source")
		}
	}()
	stackgen.MustCompile("(unit")
}

func TestOutputWriter(t *testing.T) {
	var buf bytes.Buffer
	prog, err := stackgen.Compile(context.Background(), `(unit main (fun main () Unit (call io.println "x")))`,
		&stackgen.Config{Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	got, err := prog.Run(context.Background(), "main")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" || buf.String() != "x\n" {
		t.Errorf("Run() = %q, writer got %q", got, buf.String())
	}
}

const program = `(unit main
	(fun scale ((x Long)) Double (op Double.times (op Long.toDouble x) 1.5))
	(fun helper ((n Int)) Fn<Int,Int> (lambda ((x Int)) Int (op Int.plus x n)))
	(fun main () Unit (do
		(call io.println (call main.scale 4L))
		(call io.println (invoke (call main.helper 2) 40))
		(call io.println 'c'))))`

func TestCBORRoundTrip(t *testing.T) {
	ctx := context.Background()
	prog := stackgen.MustCompile(program)
	data, err := prog.MarshalCBOR()
	if err != nil {
		t.Fatalf("MarshalCBOR() error = %v", err)
	}
	again, err := prog.MarshalCBOR()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, again) {
		t.Error("encoding is not deterministic")
	}

	loaded, err := stackgen.UnmarshalProgram(data, nil)
	if err != nil {
		t.Fatalf("UnmarshalProgram() error = %v", err)
	}
	if got, want := loaded.Disassemble(), prog.Disassemble(); got != want {
		t.Errorf("disassembly differs after round trip:\n%s\nwant:\n%s", got, want)
	}
	want, err := prog.Run(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Run(ctx, "main")
	if err != nil {
		t.Fatalf("Run() of decoded program error = %v", err)
	}
	if got != want || got != "6.0\n42\nc\n" {
		t.Errorf("decoded program printed %q, original %q", got, want)
	}
}

func TestUnmarshalProgramErrors(t *testing.T) {
	if _, err := stackgen.UnmarshalProgram([]byte{0xff, 0x00}, nil); err == nil {
		t.Error("UnmarshalProgram() accepted malformed data")
	}
}

func TestClasses(t *testing.T) {
	prog := stackgen.MustCompile(program)
	classes := prog.Classes()
	if len(classes) < 2 || classes[0] != "main" {
		t.Fatalf("Classes() = %v, want the unit class first", classes)
	}
	found := false
	for _, c := range classes {
		if c == "main$helper$lambda$1" {
			found = true
		}
	}
	if !found {
		t.Errorf("Classes() = %v, missing the lambda class", classes)
	}
	if prog.Unit() != "main" {
		t.Errorf("Unit() = %q", prog.Unit())
	}
}

func TestDisassembleMatching(t *testing.T) {
	prog := stackgen.MustCompile(program)
	got, err := prog.DisassembleMatching(`main\.s\w*`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "main.scale") {
		t.Errorf("listing misses main.scale:\n%s", got)
	}
	if strings.Contains(got, "main.helper") || strings.Contains(got, "===") {
		t.Errorf("listing contains unmatched methods or class headers:\n%s", got)
	}
	if _, err := prog.DisassembleMatching("("); err == nil {
		t.Error("DisassembleMatching() accepted an invalid pattern")
	}
	if !strings.Contains(prog.Disassemble(), "=== class main") {
		t.Error("Disassemble() has no class header")
	}
}
