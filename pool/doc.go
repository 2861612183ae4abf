// Package pool
// Author: momentics <momentics@gmail.com>
//
// Native buffer layer for hioload-bridge.
// Two slab sources (mapped SlabPool, heap ChanPool) sit behind one Handle type
// tagged with its origin, so callers free memory through a single entry point.
// DirectBuffer turns a Handle into a reference-counted framework buffer whose
// deallocation hook frees the handle exactly once.
package pool
