package pool_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/pool"
)

// countingSource wraps a Source and counts slabs handed out and returned.
type countingSource struct {
	pool.Source
	acquired, recycled int
}

func (c *countingSource) Acquire() ([]byte, error) {
	c.acquired++
	return c.Source.Acquire()
}

func (c *countingSource) Recycle(b []byte) {
	c.recycled++
	c.Source.Recycle(b)
}

func TestAllocate_OriginBySize(t *testing.T) {
	src := pool.NewChanPool(1024, 8)

	h, err := pool.Allocate(src, 1024)
	require.NoError(t, err)
	assert.Equal(t, pool.Pooled, h.Origin())

	big, err := pool.Allocate(src, 1025)
	require.NoError(t, err)
	assert.Equal(t, pool.Standalone, big.Origin())
	assert.Equal(t, 1025, big.Cap(), "standalone region is sized exactly")

	require.NoError(t, h.Free())
	require.NoError(t, big.Free())
	assert.ErrorIs(t, h.Free(), api.ErrDoubleFree)
	assert.ErrorIs(t, big.Free(), api.ErrDoubleFree)

	_, err = pool.Allocate(src, -1)
	assert.ErrorIs(t, err, pool.ErrNegativeCapacity)
}

func TestAllocate_RandomizedExactlyOnceFree(t *testing.T) {
	for _, src := range []pool.Source{pool.NewChanPool(2048, 64), pool.NewSlabPool(2048, 64)} {
		cs := &countingSource{Source: src}
		rng := rand.New(rand.NewSource(7))
		var handles []*pool.Handle
		pooled, standalone := 0, 0
		for i := 0; i < 500; i++ {
			n := rng.Intn(4096)
			h, err := pool.Allocate(cs, n)
			require.NoError(t, err)
			if n <= 2048 {
				require.Equal(t, pool.Pooled, h.Origin(), "size %d", n)
				pooled++
			} else {
				require.Equal(t, pool.Standalone, h.Origin(), "size %d", n)
				standalone++
			}
			handles = append(handles, h)
		}
		rng.Shuffle(len(handles), func(i, j int) { handles[i], handles[j] = handles[j], handles[i] })
		for _, h := range handles {
			require.NoError(t, h.Free())
			require.ErrorIs(t, h.Free(), api.ErrDoubleFree)
		}
		assert.Equal(t, pooled, cs.acquired)
		assert.Equal(t, pooled, cs.recycled)
		assert.Equal(t, 500, pooled+standalone)
		require.NoError(t, src.Close())
	}
}

func TestAllocate_NilSourceIsStandalone(t *testing.T) {
	h, err := pool.Allocate(nil, 16)
	require.NoError(t, err)
	assert.Equal(t, pool.Standalone, h.Origin())
	assert.Equal(t, "standalone", h.Origin().String())
	require.NoError(t, h.Free())
}
