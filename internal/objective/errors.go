package objective

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by the engine. Every error returned by this
// package wraps exactly one of them, so callers can test with errors.Is.
var (
	// ErrDimensionMismatch is returned when a variable is registered again
	// with a different dimension, when a term argument's registered dimension
	// differs from the dimension the term declares for that position, when a
	// Rebind block has the wrong length, or when a global vector has the wrong
	// length.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrUnknownVariable is returned when a handle was never issued by the
	// registry it is used with.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrBlockInUse is returned when Rebind is given storage already
	// registered as another variable.
	ErrBlockInUse = errors.New("block registered to another variable")

	// ErrArityMismatch is returned when the number of arguments given to
	// AddTerm differs from the term's declared number of variables.
	ErrArityMismatch = errors.New("incorrect number of arguments")

	// ErrTermPanic is returned when a term panics during evaluation.
	ErrTermPanic = errors.New("term panicked")
)

// Error represents an engine error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error, one of the package sentinels.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// newError builds an *Error for op in component wrapping sentinel.
func newError(component, op string, sentinel error, format string, args ...interface{}) *Error {
	return &Error{
		Message:   fmt.Sprintf(format, args...),
		Op:        op,
		Component: component,
		Err:       sentinel,
	}
}

// AsError reports whether err is, or wraps, an *Error and returns it.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
