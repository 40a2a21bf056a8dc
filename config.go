package stackgen

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/vm"
)

// Environment variables consulted by LoadConfig. They override the
// configuration file.
const (
	EnvConfig         = "STACKGEN_CONFIG"
	EnvWorkers        = "STACKGEN_WORKERS"
	EnvLineNumbers    = "STACKGEN_LINE_NUMBERS"
	EnvLocalVariables = "STACKGEN_LOCAL_VARIABLES"
	EnvMaxCallDepth   = "STACKGEN_MAX_CALL_DEPTH"
)

// Config holds configuration options for compiling and running programs.
type Config struct {
	// LineNumbers records the source line of each statement in the
	// generated methods (default: true).
	LineNumbers *bool

	// LocalVariables records the slot ranges of named variables
	// (default: true).
	LocalVariables *bool

	// Workers is the number of methods generated concurrently.
	// 1 (the default) generates sequentially. The generated code does
	// not depend on it.
	Workers int

	// Intrinsics lists extra intrinsic definitions of the form
	// "Owner.name=key". A name containing regular expression syntax
	// matches every callable whose full name it matches.
	// Example: []string{"Util.same=identity", `Text\w*\.concat=stringPlus`}
	Intrinsics []string

	// Output receives io.print and io.println.
	// If nil, Run captures the output and returns it; Call writes to
	// os.Stdout.
	Output io.Writer

	// MaxCallDepth bounds nested calls during execution (default: 1024).
	MaxCallDepth int
}

// applyDefaults fills in default values for unset Config fields.
func (c *Config) applyDefaults() {
	if c.LineNumbers == nil {
		t := true
		c.LineNumbers = &t
	}
	if c.LocalVariables == nil {
		t := true
		c.LocalVariables = &t
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxCallDepth <= 0 {
		c.MaxCallDepth = vm.DefaultMaxCallDepth
	}
}

// options returns the code generation options c describes.
func (c *Config) options() (compiler.Options, error) {
	table := compiler.DefaultIntrinsics()
	for _, def := range c.Intrinsics {
		if err := table.ParseAlias(def); err != nil {
			return compiler.Options{}, fmt.Errorf("config: %w", err)
		}
	}
	return compiler.Options{
		LineNumbers:    *c.LineNumbers,
		LocalVariables: *c.LocalVariables,
		Workers:        c.Workers,
		Intrinsics:     table,
	}, nil
}

// fileConfig is the layout of a stackgen.toml file.
type fileConfig struct {
	LineNumbers    *bool `toml:"line_numbers"`
	LocalVariables *bool `toml:"local_variables"`
	Workers        int   `toml:"workers"`
	MaxCallDepth   int   `toml:"max_call_depth"`
	Intrinsics     struct {
		Aliases []string `toml:"aliases"`
	} `toml:"intrinsics"`
}

// LoadConfig reads the TOML configuration file at path and applies the
// STACKGEN_* environment overrides. An empty path names the file given
// by STACKGEN_CONFIG, if any, so LoadConfig("") with no environment
// returns the defaults. The environment is reread on every call.
//
// Example stackgen.toml:
//
//	line_numbers = true
//	workers = 4
//	max_call_depth = 512
//
//	[intrinsics]
//	aliases = ["Util.same=identity"]
func LoadConfig(path string) (*Config, error) {
	env.Load()
	if path == "" {
		path = env.Str(EnvConfig)
	}
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		c.LineNumbers = fc.LineNumbers
		c.LocalVariables = fc.LocalVariables
		c.Workers = fc.Workers
		c.MaxCallDepth = fc.MaxCallDepth
		c.Intrinsics = fc.Intrinsics.Aliases
	}
	c.applyEnv()
	return c, nil
}

// applyEnv overrides c with the STACKGEN_* variables that are set.
func (c *Config) applyEnv() {
	if env.Has(EnvLineNumbers) {
		b := env.Bool(EnvLineNumbers)
		c.LineNumbers = &b
	}
	if env.Has(EnvLocalVariables) {
		b := env.Bool(EnvLocalVariables)
		c.LocalVariables = &b
	}
	if env.Has(EnvWorkers) {
		c.Workers = env.Int(EnvWorkers, c.Workers)
	}
	if env.Has(EnvMaxCallDepth) {
		c.MaxCallDepth = env.Int(EnvMaxCallDepth, c.MaxCallDepth)
	}
}
