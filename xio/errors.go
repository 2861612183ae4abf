// File: xio/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package xio

import "errors"

var (
	// ErrUnsupportedOption is returned for options a channel does not handle.
	ErrUnsupportedOption = errors.New("xio: unsupported option")

	// ErrInvalidOptionValue is returned when an option value has the wrong type or range.
	ErrInvalidOptionValue = errors.New("xio: invalid option value")

	// ErrClosed is returned by operations on a closed connection or half.
	ErrClosed = errors.New("xio: channel closed")

	// ErrInvalidThreadCount is returned for a worker configured without threads.
	ErrInvalidThreadCount = errors.New("xio: invalid io thread count")
)
