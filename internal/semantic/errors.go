// Package semantic binds a decoded unit into the Resolved Program Model.
//
// The resolver performs:
//   - Name resolution: binding identifiers to their variable declarations
//   - Call resolution: binding Owner.name references to callables, either
//     declared in the unit or taken from the library catalog
//   - Argument binding: matching call arguments to parameters, including
//     defaults and varargs
//   - Type completion: filling in static types the dump leaves implicit
//   - Capture analysis: computing the capture set of every lambda and
//     object literal and deciding which variables need shared cells
package semantic

import (
	"fmt"
	"strings"

	"github.com/kolkov/stackgen/internal/token"
)

// Error represents a semantic analysis error with source location.
type Error struct {
	Pos     token.Position
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// ErrorList is a collection of semantic errors.
type ErrorList []*Error

// Add appends an error to the list.
func (el *ErrorList) Add(pos token.Position, format string, args ...any) {
	*el = append(*el, &Error{
		Pos:     pos,
		Message: fmt.Sprintf(format, args...),
	})
}

// Err returns an error if the list is non-empty, nil otherwise.
func (el ErrorList) Err() error {
	if len(el) == 0 {
		return nil
	}
	return el
}

// Error implements the error interface for ErrorList.
func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	default:
		var sb strings.Builder
		sb.WriteString(el[0].Error())
		for _, e := range el[1:] {
			sb.WriteByte('\n')
			sb.WriteString(e.Error())
		}
		return sb.String()
	}
}

// Common error messages as constants for consistency.
const (
	errUndefinedVar      = "undefined variable %q"
	errUndefinedCallable = "unresolved callable %s"
	errUndefinedField    = "unresolved field %s"
	errUndefinedClass    = "undefined class %q"
	errDuplicateVar      = "variable %q already declared in this scope"
	errDuplicateClass    = "class %q already declared"
	errDuplicateFunc     = "function %s already declared"
	errTooManyArgs       = "too many arguments in call to %s"
	errNotEnoughArgs     = "not enough arguments in call to %s: missing %s"
	errNoDefault         = "parameter %s of %s has no default value"
	errSpreadNonVararg   = "spread argument for non-vararg parameter %s of %s"
	errAssignVal         = "cannot assign to val %q"
	errThisOutside       = "this used outside of a class or extension function"
	errReceiverOutside   = "^ used outside of a safe call"
	errBreakOutsideLoop  = "%s outside of a loop"
	errUnknownLabel      = "unknown loop label %q"
	errNotIterable       = "cannot iterate over %s"
	errNotFunction       = "cannot invoke value of type %s"
	errArgCount          = "%s expects %d arguments, got %d"
	errReturnOutside     = "return outside of a function"
)
