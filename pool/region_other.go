//go:build !unix

// File: pool/region_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Heap-backed regions for platforms without mmap.

package pool

type region struct {
	raw    []byte
	mapped bool
}

func mapRegion(n int) region {
	if n < 0 {
		n = 0
	}
	return region{raw: make([]byte, n)}
}

func (r region) unmap() error { return nil }
