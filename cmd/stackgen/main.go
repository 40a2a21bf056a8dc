// stackgen - lower resolved program dumps to stack machine code
//
// Reads a program dump, lowers it, and disassembles, encodes or runs the
// result. Uses manual argument parsing so flags may carry their value
// without a space (-j4, -vv).
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/kolkov/stackgen"
	"github.com/kolkov/stackgen/internal/ast"
	"github.com/kolkov/stackgen/internal/parser"
	"github.com/kolkov/stackgen/internal/semantic"
)

// version is set at build time via -ldflags.
// For development builds, it will be "dev".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var log = commonlog.GetLogger("stackgen.cli")

const (
	shortUsage = "usage: stackgen [-c config] [-d | -da [-only regex]] [-o out.cbor] [-run entry] [-j N] [-v] file"
	longUsage  = `Input:
  file              program dump, or a program encoded with -o (*.cbor)
  -c config         load settings from a TOML file (default: $STACKGEN_CONFIG)

Output:
  -run entry        run entry ("name" or "Class.name", default: main)
  -o out.cbor       write the lowered program in CBOR instead of running it
  -g                omit line numbers and local variable ranges

Performance options:
  -j N              lower N methods concurrently (default: 1 = sequential)

Debugging arguments:
  -d                print the resolved program to stderr and exit
  -da               print the generated code to stderr and exit
  -only regex       with -da, list only methods whose Owner.name matches
  -v                more log output (repeatable: -vv)

Other:
  -h, --help        show this help message
  -version          show stackgen version and exit
`
)

//nolint:gocyclo,funlen // CLI argument parsing is inherently complex
func main() {
	configPath := ""
	entry := "main"
	outPath := ""
	only := ""
	debug := false
	debugAsm := false
	noDebugInfo := false
	verbosity := 0
	workers := 0

	var i int
	for i = 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		if arg == "--" {
			i++
			break
		}
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			break
		}

		switch arg {
		case "-c":
			configPath = flagValue(&i, arg)
		case "-run":
			entry = flagValue(&i, arg)
		case "-o":
			outPath = flagValue(&i, arg)
		case "-only":
			only = flagValue(&i, arg)
		case "-d":
			debug = true
		case "-da":
			debugAsm = true
		case "-g":
			noDebugInfo = true
		case "-j":
			workers = parseWorkers(flagValue(&i, arg))
		case "-h", "--help":
			fmt.Printf("stackgen %s\n\n%s\n\n%s", version, shortUsage, longUsage)
			os.Exit(0)
		case "-version", "--version":
			fmt.Printf("stackgen version %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
			os.Exit(0)
		default:
			switch {
			case strings.HasPrefix(arg, "-v") && strings.Trim(arg[1:], "v") == "":
				verbosity += len(arg) - 1
			case strings.HasPrefix(arg, "-j"):
				workers = parseWorkers(arg[2:])
			default:
				errorExitf("flag provided but not defined: %s", arg)
			}
		}
	}

	args := os.Args[i:]
	if len(args) != 1 {
		errorExitf(shortUsage)
	}
	file := args[0]
	commonlog.Configure(verbosity, nil)

	config, err := stackgen.LoadConfig(configPath)
	if err != nil {
		errorExit(err)
	}
	if workers > 0 {
		config.Workers = workers
	}
	if noDebugInfo {
		f := false
		config.LineNumbers = &f
		config.LocalVariables = &f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if debug {
		printResolved(file)
		os.Exit(0)
	}

	stdout := bufio.NewWriter(os.Stdout)
	defer stdout.Flush()
	config.Output = stdout

	prog := load(ctx, file, config)

	if debugAsm {
		listing := prog.Disassemble()
		if only != "" {
			listing, err = prog.DisassembleMatching(only)
			if err != nil {
				errorExit(err)
			}
		}
		fmt.Fprint(os.Stderr, listing)
		os.Exit(0)
	}

	if outPath != "" {
		data, err := prog.MarshalCBOR()
		if err != nil {
			errorExit(err)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			errorExitf("cannot write %s: %v", outPath, err)
		}
		log.Infof("wrote %s (%d bytes, %d classes)", outPath, len(data), len(prog.Classes()))
		return
	}

	log.Debugf("running %s", entry)
	if _, err := prog.Run(ctx, entry); err != nil {
		stdout.Flush()
		var te *stackgen.ThrownError
		if errors.As(err, &te) && len(te.Trace) > 0 {
			fmt.Fprintf(os.Stderr, "stackgen: %v\n", err)
			for _, m := range te.Trace {
				fmt.Fprintf(os.Stderr, "\tat %s\n", m)
			}
			os.Exit(1)
		}
		errorExit(err)
	}
}

// load compiles a program dump, or decodes a program written with -o.
func load(ctx context.Context, file string, config *stackgen.Config) *stackgen.Program {
	if filepath.Ext(file) == ".cbor" {
		data, err := os.ReadFile(file)
		if err != nil {
			errorExitf("cannot read %s: %v", file, err)
		}
		prog, err := stackgen.UnmarshalProgram(data, config)
		if err != nil {
			errorExit(err)
		}
		return prog
	}
	prog, err := stackgen.CompileFile(ctx, file, config)
	if err != nil {
		errorExit(err)
	}
	return prog
}

// printResolved prints the program model after name resolution.
func printResolved(file string) {
	src, err := os.ReadFile(file)
	if err != nil {
		errorExitf("cannot read %s: %v", file, err)
	}
	unit, err := parser.ParseFile(file, src)
	if err != nil {
		errorExit(err)
	}
	if err := semantic.Resolve(unit); err != nil {
		errorExit(err)
	}
	if err := ast.NewPrinter(os.Stderr).Print(unit); err != nil {
		errorExit(err)
	}
}

// flagValue returns the argument following the flag at *i.
func flagValue(i *int, flag string) string {
	if *i+1 >= len(os.Args) {
		errorExitf("flag needs an argument: %s", flag)
	}
	*i++
	return os.Args[*i]
}

func parseWorkers(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		errorExitf("invalid number of workers: %s", s)
	}
	return n
}

// errorExitf prints formatted error message and exits with code 1
func errorExitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "stackgen: "+format+"\n", args...)
	os.Exit(1)
}

// errorExit prints error and exits with code 1
func errorExit(err error) {
	fmt.Fprintf(os.Stderr, "stackgen: %v\n", err)
	os.Exit(1)
}
