// File: pool/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "errors"

var (
	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrPoolExhausted is returned by bounded sources with no slab left.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrNegativeCapacity is returned for negative allocation requests.
	ErrNegativeCapacity = errors.New("pool: negative capacity")
)

// DefaultSlabSize matches the provider's default socket buffer slab.
const DefaultSlabSize = 16 << 10
