package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-bridge/api"
)

func TestOptionMap_KeepsInsertionOrder(t *testing.T) {
	m := api.NewOptionMap().
		Set(api.OptBacklog, 128).
		Set(api.OptAutoRead, false).
		Set(api.OptBacklog, 256)
	assert.Equal(t, 2, m.Len())

	var names []string
	m.Each(func(opt api.Option, v any) bool {
		names = append(names, opt.Name())
		return true
	})
	assert.Equal(t, []string{"BACKLOG", "AUTO_READ"}, names)
	assert.Equal(t, 256, m.IntOption(api.OptBacklog, 0))
	assert.False(t, m.BoolOption(api.OptAutoRead, true))
}

func TestOptionMap_TypedDefaults(t *testing.T) {
	m := api.NewOptionMap().Set(api.OptWriteSpinCount, "sixteen")
	assert.Equal(t, 7, m.IntOption(api.OptWriteSpinCount, 7))
	assert.Equal(t, 3, m.IntOption(api.OptMaxMessagesPerRead, 3))
	assert.True(t, m.BoolOption(api.OptKeepAlive, true))
}

func TestOptionMap_NilAndZeroValue(t *testing.T) {
	var nilMap *api.OptionMap
	_, ok := nilMap.Get(api.OptBacklog)
	assert.False(t, ok)
	assert.Zero(t, nilMap.Len())
	assert.Zero(t, nilMap.Clone().Len())

	var zero api.OptionMap
	zero.Set(api.OptTCPNoDelay, true)
	v, ok := zero.Get(api.OptTCPNoDelay)
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestOptionMap_CloneIsIndependent(t *testing.T) {
	m := api.NewOptionMap().Set(api.OptSendBuffer, 1024)
	c := m.Clone()
	c.Set(api.OptSendBuffer, 2048)
	assert.Equal(t, 1024, m.IntOption(api.OptSendBuffer, 0))
	assert.Equal(t, 2048, c.IntOption(api.OptSendBuffer, 0))
}

func TestOption_Scope(t *testing.T) {
	assert.True(t, api.OptReuseAddresses.IsProvider())
	assert.False(t, api.OptConnectTimeout.IsProvider())
	assert.Equal(t, "CONNECT_TIMEOUT", api.OptConnectTimeout.String())
	assert.True(t, api.Option{}.IsZero())
	assert.Equal(t, `api.Option("BACKLOG")`, api.OptBacklog.GoString())
}
