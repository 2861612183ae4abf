// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"sync"

	"github.com/momentics/hioload-bridge/pool"
)

// CountingSource is a heap-backed pool.Source that tracks outstanding slabs.
// Limit, when positive, makes Acquire fail once that many slabs are out.
type CountingSource struct {
	Size  int
	Limit int

	mu       sync.Mutex
	out      int
	acquired int64
	recycled int64
}

// NewCountingSource returns a source of size-byte slabs.
func NewCountingSource(size int) *CountingSource {
	return &CountingSource{Size: size}
}

func (s *CountingSource) SlabSize() int { return s.Size }

func (s *CountingSource) Acquire() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Limit > 0 && s.out >= s.Limit {
		return nil, pool.ErrPoolExhausted
	}
	s.out++
	s.acquired++
	return make([]byte, s.Size), nil
}

func (s *CountingSource) Recycle([]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out--
	s.recycled++
}

// Outstanding returns the slabs acquired and not yet recycled.
func (s *CountingSource) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

func (s *CountingSource) Stats() pool.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pool.Stats{SlabSize: s.Size, Acquired: s.acquired, Recycled: s.recycled}
}

func (s *CountingSource) Close() error { return nil }

var _ pool.Source = (*CountingSource)(nil)
