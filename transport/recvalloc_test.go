package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
)

func TestRecvAlloc_GrowsQuicklyShrinksSlowly(t *testing.T) {
	h := DefaultRecvAllocator().NewHandle()
	assert.Equal(t, 1024, h.Guess())

	h.Record(1024)
	assert.Equal(t, 16384, h.Guess())
	h.Record(16384)
	assert.Equal(t, 65536, h.Guess())
	h.Record(65536)
	assert.Equal(t, 65536, h.Guess(), "capped at the maximum")

	h.Record(10)
	assert.Equal(t, 65536, h.Guess(), "one small read is not enough")
	h.Record(10)
	assert.Equal(t, 32768, h.Guess())
}

func TestRecvAlloc_PartialReadKeepsGuess(t *testing.T) {
	h := DefaultRecvAllocator().NewHandle()
	h.Record(800)
	h.Record(800)
	assert.Equal(t, 1024, h.Guess())
}

func TestRecvAlloc_FloorAtMinimum(t *testing.T) {
	h := DefaultRecvAllocator().NewHandle()
	for i := 0; i < 200; i++ {
		h.Record(1)
	}
	assert.Equal(t, DefaultMinRecvSize, h.Guess())
}

func TestRecvAlloc_HandlesAreIndependent(t *testing.T) {
	a := DefaultRecvAllocator()
	h1, h2 := a.NewHandle(), a.NewHandle()
	h1.Record(1024)
	assert.Equal(t, 16384, h1.Guess())
	assert.Equal(t, 1024, h2.Guess())
}

func TestRecvAlloc_InvalidBounds(t *testing.T) {
	for _, b := range [][3]int{{0, 10, 100}, {64, 32, 100}, {64, 128, 100}} {
		_, err := NewAdaptiveRecvAllocator(b[0], b[1], b[2])
		assert.ErrorIs(t, err, api.ErrInvalidArgument)
	}

	a, err := NewAdaptiveRecvAllocator(100, 1000, 5000)
	require.NoError(t, err)
	h := a.NewHandle()
	assert.Equal(t, 1000, h.Guess())
	h.Record(1000)
	assert.Equal(t, 4096, h.Guess())
}

func TestRecvAlloc_Fixed(t *testing.T) {
	h := FixedRecvAllocator(256).NewHandle()
	h.Record(1 << 20)
	assert.Equal(t, 256, h.Guess())
}
