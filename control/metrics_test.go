package control_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/control"
	"github.com/momentics/hioload-bridge/pool"
)

func TestMetrics_TransportEvents(t *testing.T) {
	m := control.NewMetrics()
	m.BytesRead(10)
	m.BytesRead(0)
	m.BytesWritten(7)
	m.BytesWritten(0)
	m.PartialWrite()
	m.WriteInterest()
	m.Accepted()
	m.Exception()
	m.ChannelActive()
	m.ChannelActive()
	m.ChannelInactive()

	s := m.GetSnapshot()
	assert.Equal(t, 10.0, s["hioload_bridge_channel_read_bytes_total"])
	assert.Equal(t, 1.0, s["hioload_bridge_channel_reads_total"])
	assert.Equal(t, 7.0, s["hioload_bridge_channel_written_bytes_total"])
	assert.Equal(t, 1.0, s["hioload_bridge_channel_writes_total"])
	assert.Equal(t, 1.0, s["hioload_bridge_channel_partial_writes_total"])
	assert.Equal(t, 1.0, s["hioload_bridge_channel_write_interest_total"])
	assert.Equal(t, 1.0, s["hioload_bridge_server_accepted_total"])
	assert.Equal(t, 1.0, s["hioload_bridge_channel_exceptions_total"])
	assert.Equal(t, 1.0, s["hioload_bridge_channel_active"])
}

func TestMetrics_PoolRecorder(t *testing.T) {
	m := control.NewMetrics()
	alloc := pool.NewAllocator(pool.NewChanPool(1024, 4)).WithRecorder(m)

	small, err := alloc.Direct(64)
	require.NoError(t, err)
	big, err := alloc.Direct(4096)
	require.NoError(t, err)
	s := m.GetSnapshot()
	assert.Equal(t, 1.0, s["hioload_bridge_pool_allocations_total{origin=pooled}"])
	assert.Equal(t, 1.0, s["hioload_bridge_pool_allocations_total{origin=standalone}"])
	assert.Equal(t, 2.0, s["hioload_bridge_pool_live_handles"])

	require.NoError(t, small.Release())
	require.NoError(t, big.Release())
	s = m.GetSnapshot()
	assert.Equal(t, 1.0, s["hioload_bridge_pool_frees_total{origin=pooled}"])
	assert.Equal(t, 0.0, s["hioload_bridge_pool_live_handles"])
}

func TestMetrics_Handler(t *testing.T) {
	m := control.NewMetrics()
	m.Accepted()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "hioload_bridge_server_accepted_total 1")
}
