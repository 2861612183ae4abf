// File: xio/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package xio

import (
	"fmt"
	"syscall"

	"github.com/momentics/hioload-bridge/api"
)

const (
	defaultStageSize = 64 << 10
	minStageSize     = 1 << 10
)

// socketControl applies pre-bind/pre-connect options to the raw socket.
func socketControl(opts *api.OptionMap) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		if v, ok := opts.Get(api.OptReuseAddresses); ok {
			on, err := boolValue(api.OptReuseAddresses, v)
			if err != nil {
				return err
			}
			if err := rawControl(c, func(fd uintptr) error { return setReuseAddr(fd, on) }); err != nil {
				return err
			}
		}
		if v, ok := opts.Get(api.OptTrafficClass); ok {
			tc, err := intValue(api.OptTrafficClass, v, 0, 255)
			if err != nil {
				return err
			}
			if err := rawControl(c, func(fd uintptr) error { return setTrafficClass(fd, tc) }); err != nil {
				return err
			}
		}
		return nil
	}
}

func rawControl(c syscall.RawConn, fn func(fd uintptr) error) error {
	var serr error
	if err := c.Control(func(fd uintptr) { serr = fn(fd) }); err != nil {
		return err
	}
	return serr
}

func boolValue(opt api.Option, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s wants bool, got %T", ErrInvalidOptionValue, opt, v)
	}
	return b, nil
}

func intValue(opt api.Option, v any, min, max int) (int, error) {
	n, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("%w: %s wants int, got %T", ErrInvalidOptionValue, opt, v)
	}
	if n < min || (max > 0 && n > max) {
		return 0, fmt.Errorf("%w: %s out of range: %d", ErrInvalidOptionValue, opt, n)
	}
	return n, nil
}

func unsupported(opt api.Option) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedOption, opt)
}
