// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-worker.

package api

import "fmt"

// Common errors used across the library.
var (
	ErrTransportClosed = fmt.Errorf("transport is closed")
	ErrFrameTooLarge   = fmt.Errorf("frame exceeds maximum allowed size")
	ErrMalformedFrame  = fmt.Errorf("malformed frame")
	ErrDecode          = fmt.Errorf("message decode failed")
	ErrProtocol        = fmt.Errorf("protocol violation")
	ErrLoopClosed      = fmt.Errorf("loop is closed")
	ErrAlreadyReplied  = fmt.Errorf("request already replied")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrNotSupported    = fmt.Errorf("operation not supported")
	ErrAlreadyExists   = fmt.Errorf("resource already exists")
	ErrNotFound        = fmt.Errorf("resource not found")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap maps the code to its sentinel so errors.Is works on both.
func (e *Error) Unwrap() error {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return ErrInvalidArgument
	case ErrCodeNotSupported:
		return ErrNotSupported
	case ErrCodeAlreadyExists:
		return ErrAlreadyExists
	case ErrCodeNotFound:
		return ErrNotFound
	}
	return nil
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// InvariantError is the panic value raised when internal state is found
// corrupted. The reactor never swallows it.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Detail)
}

// Invariant panics with an *InvariantError.
func Invariant(op, format string, args ...any) {
	panic(&InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)})
}
