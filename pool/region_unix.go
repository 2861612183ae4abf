//go:build unix

// File: pool/region_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Native regions come from anonymous private mappings. A failed mapping falls
// back to the Go heap so allocation never fails on mmap limits alone.

package pool

import (
	"os"

	"golang.org/x/sys/unix"
)

var pageSize = os.Getpagesize()

// region is a contiguous native memory block.
type region struct {
	raw    []byte // full mapping, page aligned
	mapped bool
}

func mapRegion(n int) region {
	if n <= 0 {
		return region{raw: []byte{}}
	}
	length := ((n + pageSize - 1) / pageSize) * pageSize
	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return region{raw: make([]byte, n)}
	}
	return region{raw: data, mapped: true}
}

func (r region) unmap() error {
	if !r.mapped {
		return nil
	}
	return unix.Munmap(r.raw)
}
