//go:build unix

// File: xio/sockopt_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw socket options not exposed by the net package.

package xio

import (
	"golang.org/x/sys/unix"
)

func setReuseAddr(fd uintptr, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
}

// setTrafficClass sets IP_TOS, falling back to IPV6_TCLASS on v6 sockets.
func setTrafficClass(fd uintptr, tc int) error {
	err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tc)
	if err == nil {
		return nil
	}
	if err6 := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tc); err6 == nil {
		return nil
	}
	return err
}

func getTrafficClass(fd uintptr) (int, error) {
	v, err := unix.GetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS)
	if err == nil {
		return v, nil
	}
	return unix.GetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS)
}
