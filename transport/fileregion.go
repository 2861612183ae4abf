// File: transport/fileregion.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"os"
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
)

// DefaultFileRegion sends [position, position+count) of a RegionSource through
// the sink's transfer primitive. The source is closed when the last
// reference is released.
type DefaultFileRegion struct {
	src         api.RegionSource
	position    int64
	count       int64
	transferred int64
	refs        atomic.Int32
}

// NewFileRegion returns a region over src with one reference.
func NewFileRegion(src api.RegionSource, position, count int64) *DefaultFileRegion {
	r := &DefaultFileRegion{src: src, position: position, count: count}
	r.refs.Store(1)
	return r
}

// OpenFileRegion opens path and covers the whole file.
func OpenFileRegion(path string) (*DefaultFileRegion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return NewFileRegion(f, 0, st.Size()), nil
}

func (r *DefaultFileRegion) Position() int64    { return r.position }
func (r *DefaultFileRegion) Count() int64       { return r.count }
func (r *DefaultFileRegion) Transferred() int64 { return r.transferred }

// TransferTo moves the next chunk into sink.
func (r *DefaultFileRegion) TransferTo(sink api.SinkChannel) (int64, error) {
	left := r.count - r.transferred
	if left <= 0 {
		return 0, nil
	}
	if r.refs.Load() <= 0 {
		return 0, api.ErrAlreadyReleased
	}
	n, err := sink.TransferFrom(r.src, r.position+r.transferred, left)
	r.transferred += n
	return n, err
}

// Retain adds a reference.
func (r *DefaultFileRegion) Retain() *DefaultFileRegion {
	r.refs.Add(1)
	return r
}

func (r *DefaultFileRegion) Release() error {
	switch n := r.refs.Add(-1); {
	case n == 0:
		return r.src.Close()
	case n < 0:
		r.refs.Store(0)
		return api.ErrAlreadyReleased
	}
	return nil
}

var _ api.FileRegion = (*DefaultFileRegion)(nil)
