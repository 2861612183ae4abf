// File: transport/recvalloc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Receive buffer size estimators. The adaptive estimator walks a size table:
// it jumps up after a read that filled the guess and steps down only after two
// consecutive reads that would have fit the next smaller size.

package transport

import (
	"math"
	"sort"

	"github.com/momentics/hioload-bridge/api"
)

const (
	DefaultMinRecvSize     = 64
	DefaultInitialRecvSize = 1024
	DefaultMaxRecvSize     = 65536

	indexIncrement = 4
	indexDecrement = 1
)

var sizeTable = func() []int {
	var t []int
	for i := 16; i < 512; i += 16 {
		t = append(t, i)
	}
	for i := 512; i > 0 && i <= math.MaxInt32/2; i <<= 1 {
		t = append(t, i)
	}
	return t
}()

// sizeIndex returns the index of the smallest table entry >= size.
func sizeIndex(size int) int {
	i := sort.SearchInts(sizeTable, size)
	if i >= len(sizeTable) {
		return len(sizeTable) - 1
	}
	return i
}

// AdaptiveRecvAllocator sizes receive buffers from recent read volumes.
type AdaptiveRecvAllocator struct {
	minIndex, maxIndex int
	initial            int
}

// NewAdaptiveRecvAllocator bounds guesses to [minSize, maxSize], starting at initial.
func NewAdaptiveRecvAllocator(minSize, initial, maxSize int) (*AdaptiveRecvAllocator, error) {
	if minSize <= 0 || initial < minSize || maxSize < initial {
		return nil, &ChannelError{Op: "recv allocator", Option: api.OptRecvAllocator, Err: api.ErrInvalidArgument}
	}
	a := &AdaptiveRecvAllocator{initial: initial}
	a.minIndex = sizeIndex(minSize)
	if sizeTable[a.minIndex] < minSize {
		a.minIndex++
	}
	a.maxIndex = sizeIndex(maxSize)
	if sizeTable[a.maxIndex] > maxSize {
		a.maxIndex--
	}
	return a, nil
}

// DefaultRecvAllocator returns the 64/1024/65536 adaptive estimator.
func DefaultRecvAllocator() *AdaptiveRecvAllocator {
	a, _ := NewAdaptiveRecvAllocator(DefaultMinRecvSize, DefaultInitialRecvSize, DefaultMaxRecvSize)
	return a
}

func (a *AdaptiveRecvAllocator) NewHandle() api.RecvHandle {
	return &adaptiveHandle{
		minIndex: a.minIndex,
		maxIndex: a.maxIndex,
		index:    sizeIndex(a.initial),
		next:     a.initial,
	}
}

type adaptiveHandle struct {
	minIndex, maxIndex int
	index              int
	next               int
	decreaseNow        bool
}

func (h *adaptiveHandle) Guess() int { return h.next }

func (h *adaptiveHandle) Record(actual int) {
	if actual <= sizeTable[max(0, h.index-indexDecrement-1)] {
		if h.decreaseNow {
			h.index = max(h.index-indexDecrement, h.minIndex)
			h.next = sizeTable[h.index]
			h.decreaseNow = false
		} else {
			h.decreaseNow = true
		}
		return
	}
	if actual >= h.next {
		h.index = min(h.index+indexIncrement, h.maxIndex)
		h.next = sizeTable[h.index]
		h.decreaseNow = false
	}
}

// FixedRecvAllocator always guesses the same size.
type FixedRecvAllocator int

func (f FixedRecvAllocator) NewHandle() api.RecvHandle { return fixedHandle(f) }

type fixedHandle int

func (h fixedHandle) Guess() int { return int(h) }
func (h fixedHandle) Record(int) {}

var (
	_ api.RecvAllocator = (*AdaptiveRecvAllocator)(nil)
	_ api.RecvAllocator = FixedRecvAllocator(0)
)
