package pool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/pool"
)

func TestSlabPool_CarvesChunks(t *testing.T) {
	sp := pool.NewSlabPool(4096, 128)
	defer sp.Close()

	b, err := sp.Acquire()
	require.NoError(t, err)
	assert.Len(t, b, 4096)
	assert.Equal(t, 4096, cap(b), "slab must not expose its neighbours")

	st := sp.Stats()
	assert.Greater(t, st.Allocated, int64(1), "a chunk holds several slabs")
	assert.Equal(t, int(st.Allocated)-1, st.Idle)

	sp.Recycle(b)
	assert.Equal(t, int(st.Allocated), sp.Stats().Idle)
}

func TestSlabPool_RejectsForeignSlices(t *testing.T) {
	sp := pool.NewSlabPool(1024, 16)
	defer sp.Close()
	sp.Recycle(make([]byte, 10))
	assert.Zero(t, sp.Stats().Recycled)
}

func TestSlabPool_Concurrent(t *testing.T) {
	sp := pool.NewSlabPool(512, 1024)
	defer sp.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b, err := sp.Acquire()
				if err != nil {
					t.Error(err)
					return
				}
				b[0] = byte(i)
				sp.Recycle(b)
			}
		}()
	}
	wg.Wait()
	st := sp.Stats()
	assert.Equal(t, int64(4000), st.Acquired)
	assert.Equal(t, int64(4000), st.Recycled)
}

func TestSlabPool_Close(t *testing.T) {
	sp := pool.NewSlabPool(1024, 16)
	_, err := sp.Acquire()
	require.NoError(t, err)
	require.NoError(t, sp.Close())
	require.NoError(t, sp.Close())
	_, err = sp.Acquire()
	assert.ErrorIs(t, err, pool.ErrPoolClosed)
}
