package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Is and As re-export the standard helpers so callers match kinds
// without a second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Kind categorizes a binding failure
type Kind string

const (
	KindArgument      Kind = "argument"       // host argument the codec cannot convert
	KindCrossContext  Kind = "cross_context"  // handle mixed across contexts
	KindException     Kind = "exception"      // thrown by JavaScript code
	KindStackOverflow Kind = "stack_overflow" // native stack exhausted
	KindConstruction  Kind = "construction"   // context/function creation failed
	KindClosed        Kind = "closed"         // released context touched
	KindEngine        Kind = "engine"         // wasm-level failure below the JS engine
)

// Error is the structured error type surfaced by the binding
type Error struct {
	Cause  error
	Kind   Kind
	Detail string
	Stack  string // JS backtrace, when the engine provides one
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Kind))
	b.WriteString("] ")
	b.WriteString(e.Detail)

	if e.Stack != "" {
		b.WriteByte('\n')
		b.WriteString(e.Stack)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinel values for errors.Is matching by kind.
var (
	ErrArgument      = &Error{Kind: KindArgument}
	ErrCrossContext  = &Error{Kind: KindCrossContext}
	ErrException     = &Error{Kind: KindException}
	ErrStackOverflow = &Error{Kind: KindStackOverflow}
	ErrConstruction  = &Error{Kind: KindConstruction}
	ErrClosed        = &Error{Kind: KindClosed}
	ErrEngine        = &Error{Kind: KindEngine}
)

// Argument creates an argument conversion error
func Argument(format string, args ...any) *Error {
	return &Error{
		Kind:   KindArgument,
		Detail: fmt.Sprintf(format, args...),
	}
}

// CrossContext creates an error for a handle used with a foreign context
func CrossContext(detail string) *Error {
	return &Error{
		Kind:   KindCrossContext,
		Detail: detail,
	}
}

// Construction creates a context/function construction error
func Construction(detail string, cause error) *Error {
	return &Error{
		Kind:   KindConstruction,
		Detail: detail,
		Cause:  cause,
	}
}

// Closed creates an error for an operation against a released context
func Closed(what string) *Error {
	return &Error{
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Engine wraps a failure in the wasm layer itself, below JavaScript:
// a trap, an instantiation failure, a missing export.
func Engine(detail string, cause error) *Error {
	return &Error{
		Kind:   KindEngine,
		Detail: detail,
		Cause:  cause,
	}
}

// Thrown converts an exception raised inside the engine. QuickJS reports
// native stack exhaustion as an InternalError whose message starts with
// "stack overflow"; that case gets its own kind since it asks the caller
// to reduce work rather than fix a logic bug. Everything else, including
// memory-cap and deadline overruns, stays a generic engine exception
// carrying the engine's message text.
func Thrown(message, stack string) *Error {
	kind := KindException
	if isStackOverflow(message) {
		kind = KindStackOverflow
	}
	return &Error{
		Kind:   kind,
		Detail: message,
		Stack:  stack,
	}
}

func isStackOverflow(message string) bool {
	msg := message
	if i := strings.IndexByte(msg, ':'); i >= 0 && strings.HasPrefix(msg, "InternalError") {
		msg = strings.TrimSpace(msg[i+1:])
	}
	return strings.HasPrefix(msg, "stack overflow")
}
