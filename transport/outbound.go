// File: transport/outbound.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// OutboundBuffer queues written messages until they are flushed and fully
// handed to the sink. It is owned by the channel's event loop; only the
// pending byte count and writability may be read from other goroutines.

package transport

import (
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-bridge/api"
)

type outboundEntry struct {
	msg      any
	promise  api.Promise
	size     int64
	progress int64
}

// OutboundBuffer is the per-channel write queue.
type OutboundBuffer struct {
	unflushed *queue.Queue // of *outboundEntry
	flushed   *queue.Queue // of *outboundEntry

	pending  atomic.Int64
	writable atomic.Bool
	high     atomic.Int64
	low      atomic.Int64
	closed   bool
}

// NewOutboundBuffer returns an empty buffer with the given water marks.
func NewOutboundBuffer(high, low int) *OutboundBuffer {
	b := &OutboundBuffer{unflushed: queue.New(), flushed: queue.New()}
	b.writable.Store(true)
	b.SetWaterMarks(high, low)
	return b
}

// SetWaterMarks updates the writability thresholds.
func (b *OutboundBuffer) SetWaterMarks(high, low int) {
	b.high.Store(int64(high))
	b.low.Store(int64(low))
	b.updateWritability()
}

// messageSize is the number of bytes msg contributes to the pending count.
func messageSize(msg any) int64 {
	switch m := msg.(type) {
	case api.Buffer:
		return int64(m.ReadableBytes())
	case api.FileRegion:
		return m.Count() - m.Transferred()
	}
	return 0
}

// AddMessage queues msg as unflushed.
func (b *OutboundBuffer) AddMessage(msg any, size int64, promise api.Promise) {
	if b.closed {
		releaseMessage(msg)
		promise.TryFailure(api.ErrChannelClosed)
		return
	}
	b.unflushed.Add(&outboundEntry{msg: msg, promise: promise, size: size})
	b.pending.Add(size)
	b.updateWritability()
}

// AddFlush marks every unflushed message as flushed.
func (b *OutboundBuffer) AddFlush() {
	for b.unflushed.Length() > 0 {
		e := b.unflushed.Remove().(*outboundEntry)
		// A cancelled write is dropped before it reaches the sink.
		if !e.promise.SetUncancellable() {
			b.pending.Add(-(e.size - e.progress))
			releaseMessage(e.msg)
			continue
		}
		b.flushed.Add(e)
	}
	b.updateWritability()
}

func (b *OutboundBuffer) head() *outboundEntry {
	if b.flushed.Length() == 0 {
		return nil
	}
	return b.flushed.Peek().(*outboundEntry)
}

// Current returns the first flushed message, or nil.
func (b *OutboundBuffer) Current() any {
	if e := b.head(); e != nil {
		return e.msg
	}
	return nil
}

// SetCurrent replaces the first flushed message, releasing the old one.
func (b *OutboundBuffer) SetCurrent(msg any) {
	e := b.head()
	if e == nil {
		return
	}
	if old := e.msg; old != msg {
		releaseMessage(old)
	}
	e.msg = msg
}

// Progress records n bytes of the current message as written.
func (b *OutboundBuffer) Progress(n int64) {
	e := b.head()
	if e == nil || n <= 0 {
		return
	}
	e.progress += n
	b.pending.Add(-n)
	b.updateWritability()
}

// Remove completes the current message successfully.
func (b *OutboundBuffer) Remove() bool {
	e := b.head()
	if e == nil {
		return false
	}
	b.flushed.Remove()
	b.pending.Add(-(e.size - e.progress))
	releaseMessage(e.msg)
	b.updateWritability()
	e.promise.TrySuccess(nil)
	return true
}

// RemoveError fails the current message with err.
func (b *OutboundBuffer) RemoveError(err error) bool {
	e := b.head()
	if e == nil {
		return false
	}
	b.flushed.Remove()
	b.pending.Add(-(e.size - e.progress))
	releaseMessage(e.msg)
	b.updateWritability()
	e.promise.TryFailure(err)
	return true
}

// RemoveBytes accounts for written bytes across the leading buffer messages:
// fully written ones are removed, a partly written one has its reader index advanced.
func (b *OutboundBuffer) RemoveBytes(written int64) {
	for written > 0 {
		buf, ok := b.Current().(api.Buffer)
		if !ok {
			return
		}
		readable := int64(buf.ReadableBytes())
		if readable <= written {
			written -= readable
			b.Progress(readable)
			b.Remove()
			continue
		}
		buf.SetReaderIndex(buf.ReaderIndex() + int(written))
		b.Progress(written)
		return
	}
	// Drop empty buffers the write already covered.
	for {
		buf, ok := b.Current().(api.Buffer)
		if !ok || buf.IsReadable() {
			return
		}
		b.Remove()
	}
}

// Buffers returns the readable segments of the leading run of flushed
// buffer messages, how many messages they span and their total length.
// Empty buffers in the run are counted but contribute no segment.
func (b *OutboundBuffer) Buffers(maxCount int) (segs [][]byte, count int, total int64) {
	n := b.flushed.Length()
	for i := 0; i < n && (maxCount <= 0 || count < maxCount); i++ {
		e := b.flushed.Get(i).(*outboundEntry)
		buf, ok := e.msg.(api.Buffer)
		if !ok {
			break
		}
		count++
		if p := buf.Bytes(); len(p) > 0 {
			segs = append(segs, p)
			total += int64(len(p))
		}
	}
	return segs, count, total
}

// Size is the number of flushed messages.
func (b *OutboundBuffer) Size() int { return b.flushed.Length() }

// IsEmpty reports whether no flushed message remains.
func (b *OutboundBuffer) IsEmpty() bool { return b.flushed.Length() == 0 }

// TotalPending is the number of queued bytes not yet written.
func (b *OutboundBuffer) TotalPending() int64 { return b.pending.Load() }

// IsWritable reports false once pending bytes crossed the high water mark,
// until they fall back below the low water mark.
func (b *OutboundBuffer) IsWritable() bool { return b.writable.Load() }

func (b *OutboundBuffer) updateWritability() {
	p := b.pending.Load()
	switch {
	case p > b.high.Load():
		b.writable.Store(false)
	case p < b.low.Load() || p == 0:
		b.writable.Store(true)
	}
}

// FailFlushed fails every flushed message with err.
func (b *OutboundBuffer) FailFlushed(err error) {
	for b.RemoveError(err) {
	}
}

// Close fails every queued message and rejects later additions.
func (b *OutboundBuffer) Close(err error) {
	b.closed = true
	b.FailFlushed(err)
	for b.unflushed.Length() > 0 {
		e := b.unflushed.Remove().(*outboundEntry)
		b.pending.Add(-(e.size - e.progress))
		releaseMessage(e.msg)
		e.promise.TryFailure(err)
	}
	b.updateWritability()
}

func releaseMessage(msg any) {
	switch m := msg.(type) {
	case api.Buffer:
		if m.RefCnt() > 0 {
			_ = m.Release()
		}
	case api.FileRegion:
		_ = m.Release()
	}
}
