// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-bridge.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrChannelClosed      = errors.New("channel is closed")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationTimeout   = errors.New("operation timeout")
	ErrNotSupported       = errors.New("operation not supported")
	ErrNotRegistered      = errors.New("channel is not registered")
	ErrNotYetConnected    = errors.New("channel is not yet connected")
	ErrIncompatibleLoop   = errors.New("event loop is incompatible with channel")
	ErrUnsupportedMessage = errors.New("unsupported message type")
	ErrWrappedChannel     = errors.New("operation not supported on wrapped connection")
	ErrAlreadyReleased    = errors.New("buffer already released")
	ErrDoubleFree         = errors.New("handle already freed")
	ErrCancelled          = errors.New("operation cancelled")
	ErrAlreadyCompleted   = errors.New("promise already completed")
	ErrShutdown           = errors.New("worker is shut down")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeTimeout
	ErrCodeNotSupported
	ErrCodeClosed
	ErrCodeIO
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Cause }

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

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// CodeOf extracts the ErrorCode of err, or ErrCodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
