package parser_test

import (
	"testing"

	"github.com/kolkov/stackgen/internal/parser"
)

// FuzzParser tests the parser with random inputs to find crashes.
func FuzzParser(f *testing.F) {
	// Add seed corpus with valid units
	seeds := []string{
		// Minimal
		"(unit u)",
		"(unit u (fun main () Unit))",
		"(unit u (fun main () Unit (do)))",

		// Globals and classes
		"(unit u (global g Int 1))",
		"(unit u (global g String?))",
		"(unit u (class C (field x Int)))",
		"(unit u (class I :interface (fun f () Int)))",
		"(unit u (class C :super B :implements (I J) (fun f () Int 1)))",
		"(unit u (class C (field n Int) (property p Int (get n) (set (v) (set n v)))))",

		// Functions
		"(unit u (fun f ((a Int)) Int a))",
		`(unit u (fun f ((a Int) (b String :default "x")) Unit))`,
		"(unit u (fun f ((xs IntArray :vararg)) Unit))",
		"(unit u (fun f :receiver String () Int (call String.length :recv this)))",
		"(unit u (fun f :static () Unit))",

		// Statements
		"(unit u (fun f () Unit (do (var x Int 0) (set x 1) (postinc x))))",
		"(unit u (fun f () Unit (while true (break) :label l)))",
		"(unit u (fun f () Unit (dowhile (continue) false)))",
		"(unit u (fun f () Unit (for (i Int) (range 1 10) (call io.println i))))",
		"(unit u (fun f () Unit (for (i Int) (downto 10 1) (return))))",
		"(unit u (fun f () Int (try 1 (catch (e Exception) 2) (finally (call io.println 3)))))",
		`(unit u (fun f () Unit (throw (new IllegalStateException "x"))))`,

		// Expressions
		`(unit u (fun f ((x Int)) String (when x (case 1 "a") (case (in (range 2 3)) "b") (else "c"))))`,
		"(unit u (fun f ((x Any?)) Boolean (is x String)))",
		"(unit u (fun f ((x Any?)) Boolean (!is x (tuple Int Int))))",
		"(unit u (fun f ((x String?)) Int (elvis (safe x (call String.length :recv ^)) 0)))",
		"(unit u (fun f ((x Any?)) String (as String x)))",
		"(unit u (fun f ((x String?)) String (!! x)))",
		`(unit u (fun f ((x Int)) String (str "x=" x)))`,
		"(unit u (fun f () Fn<Int,Int> (lambda ((x Int)) Int (op Int.plus x 1))))",
		"(unit u (fun f () Any (object :super B :args (1) (fun g () Int 2))))",
		"(unit u (fun f ((a IntArray)) Int (index a 0)))",
		"(unit u (fun f () IntArray (newarray IntArray 3)))",
		"(unit u (fun f () Int (fold Int 3 (op Int.plus 1 2))))",
		"(unit u (fun f ((x Int)) Unit (augset Int.plus x 1)))",

		// Literals
		"(unit u (global a Long 5L))",
		"(unit u (global a Float 1.5f))",
		"(unit u (global a Double 1e10))",
		`(unit u (global a Char '\n'))`,
		`(unit u (global a String "A\t"))`,
	}

	for _, seed := range seeds {
		f.Add(seed)
	}

	// Add some invalid inputs to ensure graceful error handling
	invalid := []string{
		"(",                                   // Unclosed list
		")",                                   // Stray paren
		"(unit)",                              // Missing name
		"(unit u (fun))",                      // Missing signature
		"(unit u (global g Array<))",          // Malformed type
		"(unit u (global g Int 99999999999))", // Overflow
		`(unit u (global g Char ''))`,         // Empty char
		`(unit u (global g String "\q"))`,     // Bad escape
		"(unit u (property p))",               // Member outside class
		"(unit u (fun f () Unit (set 1 2)))",  // Bad assignment target
	}

	for _, inv := range invalid {
		f.Add(inv)
	}

	// Fuzz function
	f.Fuzz(func(t *testing.T, src string) {
		// Limit input size to prevent timeouts
		const maxLen = 10000
		if len(src) > maxLen {
			return
		}

		// Parser should not panic on any input
		_, _ = parser.Parse(src)

		// ParseExpr should also not panic
		_, _ = parser.ParseExpr(src)
	})
}

// FuzzParseExpr specifically tests expression parsing.
func FuzzParseExpr(f *testing.F) {
	// Seed with valid expressions
	exprs := []string{
		"42",
		"-7",
		"3.14",
		"2.5f",
		"9L",
		`"hello"`,
		"'x'",
		"x",
		"this",
		"null",
		"(op Int.plus a b)",
		"(call u.f a (default) (spread b))",
		"(< a b)",
		"(== a b :via Any.equals)",
		"(and a (not b))",
		"(or a b)",
		"(if c a b)",
		"(when (case a 1) (else 2))",
		"(in x (range 1 2))",
		"(preinc x :via Int.inc)",
		"(index m k :get Map.get :set Map.set)",
		"(prop p Point.x)",
		"(field Point.x)",
		"(invoke f 1 2)",
		"(tuple)",
		"(fun g () Int 1)",
	}

	for _, expr := range exprs {
		f.Add(expr)
	}

	f.Fuzz(func(t *testing.T, src string) {
		const maxLen = 1000
		if len(src) > maxLen {
			return
		}
		_, _ = parser.ParseExpr(src)
	})
}
