package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "exception with stack",
			err: &Error{
				Kind:   KindException,
				Detail: "ReferenceError: 'missing' is not defined",
				Stack:  "    at <eval> (<input>:1)",
			},
			contains: []string{"[exception]", "ReferenceError", "at <eval>"},
		},
		{
			name: "minimal error",
			err: &Error{
				Kind:   KindCrossContext,
				Detail: "object belongs to a different context",
			},
			contains: []string{"[cross_context]", "different context"},
		},
		{
			name: "error with cause",
			err: &Error{
				Kind:   KindConstruction,
				Detail: "create context",
				Cause:  errors.New("instantiate module"),
			},
			contains: []string{"[construction]", "create context", "caused by", "instantiate module"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err := Argument("unsupported type %T", struct{}{})

	if !errors.Is(err, ErrArgument) {
		t.Error("argument error did not match ErrArgument")
	}
	if errors.Is(err, ErrException) {
		t.Error("argument error matched ErrException")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Construction("create runtime", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestThrown(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    Kind
	}{
		{"plain exception", "ReferenceError: 'x' is not defined", KindException},
		{"interrupted", "InternalError: interrupted", KindException},
		{"oom", "null", KindException},
		{"stack overflow bare", "stack overflow", KindStackOverflow},
		{"stack overflow internal", "InternalError: stack overflow", KindStackOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Thrown(tt.message, "")
			if err.Kind != tt.want {
				t.Errorf("Thrown(%q).Kind = %v, want %v", tt.message, err.Kind, tt.want)
			}
		})
	}
}

func TestClosed(t *testing.T) {
	err := Closed("context")
	if !errors.Is(err, ErrClosed) {
		t.Error("closed error did not match ErrClosed")
	}
	if !strings.Contains(err.Error(), "context is closed") {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
