package stackgen

import (
	"context"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/parser"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/vm"
)

// Version is the stackgen version string.
const Version = "0.1.0"

var log = commonlog.GetLogger("stackgen")

// Run compiles a program dump and runs its entry function, returning
// what the program printed. This is a convenience function for one-off
// execution; use Compile followed by Program.Run or Program.Call to run
// the same program repeatedly.
//
// Example:
//
//	out, err := stackgen.Run(ctx, `(unit main (fun main () Unit (call io.println "hi")))`, "main", nil)
//	// out: "hi\n"
func Run(ctx context.Context, source, entry string, config *Config) (string, error) {
	prog, err := Compile(ctx, source, config)
	if err != nil {
		return "", err
	}
	return prog.Run(ctx, entry)
}

// Compile reads, resolves and lowers a program dump. The generated code
// is verified before it is returned. A nil config selects the defaults.
//
// Example:
//
//	prog, err := stackgen.Compile(ctx, src, &stackgen.Config{Workers: 4})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(prog.Disassemble())
func Compile(ctx context.Context, source string, config *Config) (*Program, error) {
	unit, err := parser.Parse(source)
	if err != nil {
		return nil, publicError(err)
	}
	return compileUnit(ctx, unit, config)
}

// CompileFile is like Compile but reads the dump from path. Error
// positions carry the file name in their messages.
func CompileFile(ctx context.Context, path string, config *Config) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	unit, err := parser.ParseFile(path, src)
	if err != nil {
		return nil, publicError(err)
	}
	return compileUnit(ctx, unit, config)
}

func compileUnit(ctx context.Context, unit *ast.Unit, config *Config) (*Program, error) {
	var c Config
	if config != nil {
		c = *config
	}
	c.applyDefaults()
	opts, err := c.options()
	if err != nil {
		return nil, err
	}

	if err := semantic.Resolve(unit); err != nil {
		return nil, publicError(err)
	}
	compiled, err := compiler.Compile(ctx, unit, opts)
	if err != nil {
		return nil, publicError(err)
	}
	if err := vm.Verify(compiled); err != nil {
		return nil, publicError(err)
	}
	log.Debugf("compiled unit %s: %d classes", compiled.Unit, len(compiled.Classes))
	return &Program{compiled: compiled, config: c}, nil
}

// MustCompile is like Compile but panics if the program cannot be
// compiled. It simplifies initialization of global program variables.
func MustCompile(source string) *Program {
	prog, err := Compile(context.Background(), source, nil)
	if err != nil {
		panic(err)
	}
	return prog
}
