// File: transport/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-bridge/api"
)

// ChannelError reports a rejected option or a channel-level misuse.
type ChannelError struct {
	Op     string
	Option api.Option
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Option.IsZero() {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Option, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// IOError wraps a failure returned by the provider while moving bytes.
// The channel is closed when one reaches the read or write path.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

func ioFailure(op string, err error) error {
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Err: err}
}

func isIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}

// panicError converts a recovered value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return api.NewError(api.ErrCodeInternal, fmt.Sprint(r))
}

var (
	errAlreadyRegistered = api.NewError(api.ErrCodeInvalidArgument, "channel already registered").WithCause(api.ErrInvalidArgument)
	errAlreadyConnected  = api.NewError(api.ErrCodeInvalidArgument, "channel already connected").WithCause(api.ErrInvalidArgument)
	errConnectPending    = api.NewError(api.ErrCodeInvalidArgument, "connection attempt already pending").WithCause(api.ErrInvalidArgument)
	errAlreadyBound      = api.NewError(api.ErrCodeInvalidArgument, "server channel already bound").WithCause(api.ErrInvalidArgument)
)
