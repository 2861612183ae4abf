// Package fake
// Author: momentics <momentics@gmail.com>
//
// Recording pipeline handler.

package fake

import (
	"sync"

	"github.com/momentics/hioload-bridge/api"
)

// Recorder is an api.Handler that logs every event and consumes reads.
// Buffers read are copied and released unless Keep is set.
type Recorder struct {
	mu     sync.Mutex
	events []string
	reads  []any
	data   []byte
	errs   []error

	// Keep stores read messages as is instead of releasing buffers.
	Keep bool
	// OnRead, when set, runs for every read after it is recorded.
	OnRead func(ctx api.HandlerContext, msg any)
}

func (r *Recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) ChannelRegistered(api.HandlerContext)   { r.add("registered") }
func (r *Recorder) ChannelActive(api.HandlerContext)       { r.add("active") }
func (r *Recorder) ChannelInactive(api.HandlerContext)     { r.add("inactive") }
func (r *Recorder) ChannelReadComplete(api.HandlerContext) { r.add("readComplete") }

func (r *Recorder) ChannelRead(ctx api.HandlerContext, msg any) {
	r.mu.Lock()
	r.events = append(r.events, "read")
	if b, ok := msg.(api.Buffer); ok && !r.Keep {
		r.data = append(r.data, b.Bytes()...)
		r.reads = append(r.reads, len(b.Bytes()))
		r.mu.Unlock()
		_ = b.Release()
	} else {
		r.reads = append(r.reads, msg)
		r.mu.Unlock()
	}
	if r.OnRead != nil {
		r.OnRead(ctx, msg)
	}
}

func (r *Recorder) ExceptionCaught(_ api.HandlerContext, err error) {
	r.mu.Lock()
	r.events = append(r.events, "exception")
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Events returns the recorded event names in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Count returns how many times ev was recorded.
func (r *Recorder) Count(ev string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == ev {
			n++
		}
	}
	return n
}

// Reads returns the read messages; released buffers appear as their length.
func (r *Recorder) Reads() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.reads...)
}

// Data returns the concatenated bytes of released buffers.
func (r *Recorder) Data() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}

// Errors returns the exceptions seen.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

var _ api.Handler = (*Recorder)(nil)
