//go:build !unix

// File: xio/sockopt_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package xio

func setReuseAddr(uintptr, bool) error { return ErrUnsupportedOption }

func setTrafficClass(uintptr, int) error { return ErrUnsupportedOption }

func getTrafficClass(uintptr) (int, error) { return 0, ErrUnsupportedOption }
