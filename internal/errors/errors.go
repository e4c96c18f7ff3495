// Package errors provides request errors and HTTP error middleware for the
// sumfunc objective server.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is a server-side error message, optionally wrapping the failure it
// reports. Wrapped errors carry the stack of the Wrap call so server faults
// can be logged where they were raised.
type Error struct {
	Err     error
	Message string
	Stack   []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with a message. Plain messages describe bad input and
// carry no stack.
func New(msg string) *Error {
	return &Error{Message: msg}
}

// Errorf creates an error with a formatted message.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a message and the caller's stack. The wrapped error
// stays reachable through Unwrap.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, Message: msg, Stack: callers()}
}

// Wrapf wraps err with a formatted message and the caller's stack.
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, Message: fmt.Sprintf(format, args...), Stack: callers()}
}

// StackTrace returns the stack of the outermost wrapped Error in err's chain.
func StackTrace(err error) []string {
	for err != nil {
		if e, ok := err.(*Error); ok && len(e.Stack) > 0 {
			return e.Stack
		}
		err = stderrors.Unwrap(err)
	}
	return nil
}

// callers returns the stack above the wrapping constructor.
func callers() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, callers, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return stack
}
