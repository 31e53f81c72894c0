package mcp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies registry failures. Validation and registry misuse
// are never retried; only handler failures are candidates for retry at the
// orchestrator layer.
type ErrorKind string

const (
	ErrKindDuplicateTool ErrorKind = "duplicate_tool"
	ErrKindInvalidSchema ErrorKind = "invalid_schema"
	ErrKindUnknownTool   ErrorKind = "unknown_tool"
	ErrKindValidation    ErrorKind = "validation"
	ErrKindHandler       ErrorKind = "handler"
)

// Error is the structured error type for all registry failures.
type Error struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Kind, e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Tool, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, tool, message string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, Message: message, Err: err}
}

// KindOf returns the registry error kind, or "" when err is not a registry
// error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
