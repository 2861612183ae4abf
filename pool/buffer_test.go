package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/pool"
)

func newTestAllocator(slab int) *pool.Allocator {
	return pool.NewAllocator(pool.NewChanPool(slab, 16))
}

func TestDirectBuffer_ReleaseFreesOnce(t *testing.T) {
	a := newTestAllocator(256)
	b, err := a.Direct(100)
	require.NoError(t, err)
	assert.True(t, b.IsDirect())
	assert.Equal(t, 100, b.Capacity())

	b.Retain()
	require.NoError(t, b.Release())
	assert.Equal(t, int64(0), a.Stats().Frees, "still referenced")
	require.NoError(t, b.Release())
	assert.Equal(t, int64(1), a.Stats().Frees)
	assert.ErrorIs(t, b.Release(), api.ErrAlreadyReleased)
	assert.Equal(t, int64(1), a.Stats().Frees)
	assert.Zero(t, a.Stats().Live)
}

func TestDirectBuffer_GrowWithinSlabKeepsHandle(t *testing.T) {
	a := newTestAllocator(256)
	buf, err := a.Direct(16)
	require.NoError(t, err)
	b := buf.(*pool.DirectBuffer)
	h := b.Handle()

	require.NoError(t, b.WriteBytes([]byte("hello")))
	require.NoError(t, b.SetCapacity(200))
	assert.Same(t, h, b.Handle(), "no replacement needed")
	assert.Equal(t, "hello", string(b.Bytes()))
	assert.Equal(t, int64(0), a.Stats().Frees)
	require.NoError(t, b.Release())
}

func TestDirectBuffer_GrowPastSlabReplacesHandle(t *testing.T) {
	a := newTestAllocator(64)
	buf, err := a.Direct(32)
	require.NoError(t, err)
	b := buf.(*pool.DirectBuffer)
	old := b.Handle()

	require.NoError(t, b.WriteBytes([]byte("0123456789")))
	b.SetReaderIndex(2)
	require.NoError(t, b.SetCapacity(1000))

	assert.NotSame(t, old, b.Handle())
	assert.True(t, old.Freed(), "old handle freed after the copy")
	assert.False(t, b.Handle().Freed())
	assert.Equal(t, pool.Standalone, b.Handle().Origin())
	assert.Equal(t, "23456789", string(b.Bytes()))

	st := a.Stats()
	assert.Equal(t, int64(1), st.Pooled)
	assert.Equal(t, int64(1), st.Standalone)
	assert.Equal(t, int64(1), st.Frees)

	require.NoError(t, b.Release())
	assert.Equal(t, int64(2), a.Stats().Frees)
}

func TestDirectBuffer_ShrinkClampsIndices(t *testing.T) {
	a := newTestAllocator(64)
	buf, err := a.Direct(32)
	require.NoError(t, err)
	require.NoError(t, buf.WriteBytes([]byte("abcdefghij")))
	require.NoError(t, buf.SetCapacity(4))
	assert.Equal(t, 4, buf.WriterIndex())
	assert.Equal(t, "abcd", string(buf.Bytes()))
	require.NoError(t, buf.Release())
	assert.ErrorIs(t, buf.SetCapacity(10), api.ErrAlreadyReleased)
}

func TestDirectBuffer_WriteBytesGrows(t *testing.T) {
	a := newTestAllocator(64)
	buf, err := a.Direct(8)
	require.NoError(t, err)
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, buf.WriteBytes(payload))
	assert.Equal(t, payload, buf.Bytes())
	assert.GreaterOrEqual(t, buf.Capacity(), 300)
	require.NoError(t, buf.Release())
	st := a.Stats()
	assert.Equal(t, st.Pooled+st.Standalone, st.Frees)
}

func TestHeapBuffer(t *testing.T) {
	b := pool.Copied([]byte("xyz"))
	assert.False(t, b.IsDirect())
	assert.Equal(t, 3, b.ReadableBytes())
	require.NoError(t, b.WriteBytes([]byte("!")))
	assert.Equal(t, "xyz!", string(b.Bytes()))
	b.SetReaderIndex(1)
	assert.Equal(t, "yz!", string(b.Bytes()))
	require.NoError(t, b.Release())
	assert.ErrorIs(t, b.Release(), api.ErrAlreadyReleased)
}

func TestAllocator_IsDirectPooled(t *testing.T) {
	assert.True(t, newTestAllocator(64).IsDirectPooled())
	assert.False(t, pool.NewAllocator(nil).IsDirectPooled())
}
