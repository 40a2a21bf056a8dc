package stackgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/kolkov/stackgen/internal/compiler"
	"github.com/kolkov/stackgen/internal/parser"
	"github.com/kolkov/stackgen/internal/semantic"
	"github.com/kolkov/stackgen/internal/vm"
)

// ParseError reports a program dump that cannot be read or whose names
// and calls cannot be resolved.
type ParseError struct {
	Line    int    // 1-based line number
	Column  int    // 1-based column number
	Message string // Error description
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// LoweringError reports a construct that cannot be lowered to
// instructions, or generated code that fails verification.
type LoweringError struct {
	Line    int    // 1-based line number, 0 when unknown
	Column  int    // 1-based column number, 0 when unknown
	Method  string // Owner.name of the method being generated
	Message string // Error description
}

func (e *LoweringError) Error() string {
	switch {
	case e.Line > 0 && e.Method != "":
		return fmt.Sprintf("lowering error at %d:%d in %s: %s", e.Line, e.Column, e.Method, e.Message)
	case e.Method != "":
		return fmt.Sprintf("lowering error in %s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("lowering error at %d:%d: %s", e.Line, e.Column, e.Message)
}

// RuntimeError reports a fault of the machine while executing a program,
// such as a missing method or exhausted call depth. Exceptions the
// program throws are reported as ThrownError instead.
type RuntimeError struct {
	Method  string // Owner.name of the executing method
	Line    int    // Source line, 0 when unknown
	Message string // Error description
}

func (e *RuntimeError) Error() string {
	switch {
	case e.Line > 0:
		return fmt.Sprintf("runtime error in %s at line %d: %s", e.Method, e.Line, e.Message)
	case e.Method != "":
		return fmt.Sprintf("runtime error in %s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("runtime error: %s", e.Message)
}

// ThrownError reports an exception that no handler caught.
type ThrownError struct {
	Class   string   // Class of the exception object
	Message string   // Exception message, empty when none
	Trace   []string // Methods the exception unwound, innermost first
}

func (e *ThrownError) Error() string {
	if e.Message == "" {
		return "uncaught " + e.Class
	}
	return fmt.Sprintf("uncaught %s: %s", e.Class, e.Message)
}

// IsThrown reports whether err is a ThrownError and returns the class
// of the exception.
func IsThrown(err error) (string, bool) {
	var te *ThrownError
	if errors.As(err, &te) {
		return te.Class, true
	}
	return "", false
}

// publicError converts errors of the internal packages to the public
// types. Cancellation is returned unchanged.
func publicError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var (
		pe  *parser.ParseError
		pel parser.ErrorList
		se  *semantic.Error
		sel semantic.ErrorList
		le  *compiler.LoweringError
		ve  *vm.VerifyError
		te  *vm.ThrownError
		re  *vm.RuntimeError
	)
	switch {
	case errors.As(err, &pe):
		return &ParseError{Line: pe.Pos.Line, Column: pe.Pos.Column, Message: pe.Message}
	case errors.As(err, &pel) && len(pel) > 0:
		return &ParseError{Line: pel[0].Pos.Line, Column: pel[0].Pos.Column, Message: pel[0].Message}
	case errors.As(err, &se):
		return &ParseError{Line: se.Pos.Line, Column: se.Pos.Column, Message: se.Message}
	case errors.As(err, &sel) && len(sel) > 0:
		return &ParseError{Line: sel[0].Pos.Line, Column: sel[0].Pos.Column, Message: sel[0].Message}
	case errors.As(err, &le):
		return &LoweringError{Line: le.Pos.Line, Column: le.Pos.Column, Method: le.Method, Message: le.Message}
	case errors.As(err, &ve):
		return &LoweringError{Method: ve.Method, Message: fmt.Sprintf("pc %d: %s", ve.PC, ve.Message)}
	case errors.As(err, &te):
		return &ThrownError{Class: te.Class, Message: te.Message, Trace: te.Trace}
	case errors.As(err, &re):
		return &RuntimeError{Method: re.Method, Line: re.Line, Message: re.Message}
	}
	return err
}
