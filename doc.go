// Package stackgen lowers resolved programs to instructions for a
// typed stack machine and runs them.
//
// The input is a textual dump of a resolved program: declarations and
// expressions whose calls are already bound to their targets and whose
// types are known. stackgen reads the dump, lowers every function,
// property accessor, function literal and object literal to methods of
// generated classes, verifies the operand stack discipline of the result
// and executes it on a small reference machine.
//
// # Quick Start
//
// For simple one-off execution:
//
//	out, err := stackgen.Run(ctx, `(unit main
//	    (fun main () Unit (call io.println "hello")))`, "main", nil)
//
// # Compiled Programs
//
// For repeated calls of the same program:
//
//	prog, err := stackgen.Compile(ctx, src, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sum, err := prog.Call(ctx, "add", 2, 3) // sum: 5
//
// A compiled program can be stored with [Program.MarshalCBOR] and loaded
// again with [UnmarshalProgram].
//
// # Configuration
//
// The [Config] type controls debug information, the number of methods
// lowered concurrently, extra intrinsic definitions and execution
// limits. [LoadConfig] reads it from a TOML file and STACKGEN_*
// environment variables.
//
// # Error Handling
//
// Errors are returned as specific types for detailed handling:
//   - [ParseError]: malformed or unresolvable program dumps
//   - [LoweringError]: constructs that cannot be lowered
//   - [RuntimeError]: faults of the machine during execution
//   - [ThrownError]: exceptions the program did not catch
//
// Cancelling the context passed to Compile or Call returns the context's
// error unchanged.
package stackgen
