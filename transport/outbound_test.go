package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/pool"
)

func addBuf(b *OutboundBuffer, s string) (*pool.HeapBuffer, *concurrency.Promise) {
	buf := pool.CopiedString(s)
	p := concurrency.NewPromise()
	b.AddMessage(buf, messageSize(buf), p)
	return buf, p
}

func TestOutbound_FlushMovesUnflushed(t *testing.T) {
	b := NewOutboundBuffer(1024, 512)
	_, p1 := addBuf(b, "abc")
	assert.True(t, b.IsEmpty())
	assert.EqualValues(t, 3, b.TotalPending())

	b.AddFlush()
	_, p2 := addBuf(b, "de")
	assert.Equal(t, 1, b.Size())
	assert.EqualValues(t, 5, b.TotalPending())
	assert.False(t, p1.IsCancellable())
	assert.True(t, p2.IsCancellable())
}

func TestOutbound_CancelledWriteDroppedOnFlush(t *testing.T) {
	b := NewOutboundBuffer(1024, 512)
	buf, p := addBuf(b, "gone")
	require.True(t, p.Cancel())

	b.AddFlush()
	assert.True(t, b.IsEmpty())
	assert.Zero(t, b.TotalPending())
	assert.EqualValues(t, 0, buf.RefCnt())
}

func TestOutbound_RemoveBytesAcrossBuffers(t *testing.T) {
	b := NewOutboundBuffer(1024, 512)
	_, p1 := addBuf(b, "abc")
	second, p2 := addBuf(b, "defg")
	_, p3 := addBuf(b, "")
	b.AddFlush()

	segs, count, total := b.Buffers(0)
	assert.Equal(t, 3, count)
	assert.Len(t, segs, 2)
	assert.EqualValues(t, 7, total)

	b.RemoveBytes(5)
	assert.True(t, p1.IsSuccess())
	assert.False(t, p2.IsDone())
	assert.Equal(t, "fg", string(second.Bytes()))
	assert.EqualValues(t, 2, b.TotalPending())

	b.RemoveBytes(2)
	assert.True(t, p2.IsSuccess())
	assert.True(t, p3.IsSuccess(), "empty trailing buffer completes with the write")
	assert.True(t, b.IsEmpty())
}

func TestOutbound_BuffersStopsAtNonBuffer(t *testing.T) {
	b := NewOutboundBuffer(1024, 512)
	addBuf(b, "ab")
	b.AddMessage("text", 0, concurrency.NewPromise())
	addBuf(b, "cd")
	b.AddFlush()

	segs, count, total := b.Buffers(0)
	assert.Equal(t, 1, count)
	assert.Equal(t, [][]byte{[]byte("ab")}, segs)
	assert.EqualValues(t, 2, total)

	_, count, _ = b.Buffers(1)
	assert.Equal(t, 1, count)
}

func TestOutbound_WaterMarks(t *testing.T) {
	b := NewOutboundBuffer(8, 4)
	addBuf(b, "12345")
	assert.True(t, b.IsWritable())
	addBuf(b, "6789")
	assert.False(t, b.IsWritable())

	b.AddFlush()
	b.RemoveBytes(5)
	assert.False(t, b.IsWritable(), "still above the low water mark")
	b.RemoveBytes(2)
	assert.True(t, b.IsWritable())

	b.SetWaterMarks(1, 0)
	assert.False(t, b.IsWritable())
}

func TestOutbound_SetCurrentReleasesReplaced(t *testing.T) {
	b := NewOutboundBuffer(1024, 512)
	heap, p := addBuf(b, "data")
	b.AddFlush()

	alloc := pool.NewAllocator(nil)
	d, err := alloc.Direct(4)
	require.NoError(t, err)
	require.NoError(t, d.WriteBytes(heap.Bytes()))
	b.SetCurrent(d)
	assert.EqualValues(t, 0, heap.RefCnt())
	assert.Same(t, d, b.Current())

	b.Progress(4)
	d.SetReaderIndex(4)
	assert.True(t, b.Remove())
	assert.True(t, p.IsSuccess())
	assert.EqualValues(t, 0, d.RefCnt())
	assert.Zero(t, alloc.Stats().Live)
}

func TestOutbound_CloseFailsEverything(t *testing.T) {
	b := NewOutboundBuffer(1024, 512)
	_, flushed := addBuf(b, "a")
	b.AddFlush()
	_, unflushed := addBuf(b, "b")

	b.Close(api.ErrChannelClosed)
	assert.ErrorIs(t, flushed.Err(), api.ErrChannelClosed)
	assert.ErrorIs(t, unflushed.Err(), api.ErrChannelClosed)
	assert.Zero(t, b.TotalPending())

	_, late := addBuf(b, "c")
	assert.ErrorIs(t, late.Err(), api.ErrChannelClosed)
	assert.Zero(t, b.TotalPending())
}

func TestOutbound_RemoveError(t *testing.T) {
	b := NewOutboundBuffer(1024, 512)
	_, p := addBuf(b, "x")
	b.AddFlush()

	assert.True(t, b.RemoveError(api.ErrUnsupportedMessage))
	assert.ErrorIs(t, p.Err(), api.ErrUnsupportedMessage)
	assert.False(t, b.RemoveError(api.ErrUnsupportedMessage))
	assert.False(t, b.Remove())
	assert.Nil(t, b.Current())
}
