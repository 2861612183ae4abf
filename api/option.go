// File: api/option.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Option identities shared by channel configs and provider connections.

package api

import (
	"fmt"
	"sync"
)

// OptionScope tells who interprets an option.
type OptionScope uint8

const (
	// FrameworkScope options are held by the channel configuration.
	FrameworkScope OptionScope = iota
	// ProviderScope options are forwarded to the provider connection or server.
	ProviderScope
)

// Option is a comparable option identity.
type Option struct {
	name  string
	scope OptionScope
}

// NewOption declares an option.
func NewOption(name string, scope OptionScope) Option {
	return Option{name: name, scope: scope}
}

func (o Option) Name() string       { return o.name }
func (o Option) Scope() OptionScope { return o.scope }
func (o Option) IsProvider() bool   { return o.scope == ProviderScope }
func (o Option) String() string     { return o.name }
func (o Option) IsZero() bool       { return o.name == "" }
func (o Option) GoString() string   { return fmt.Sprintf("api.Option(%q)", o.name) }

// Framework options.
var (
	OptMaxMessagesPerRead       = NewOption("MAX_MESSAGES_PER_READ", FrameworkScope)
	OptWriteSpinCount           = NewOption("WRITE_SPIN_COUNT", FrameworkScope)
	OptAutoRead                 = NewOption("AUTO_READ", FrameworkScope)
	OptConnectTimeout           = NewOption("CONNECT_TIMEOUT", FrameworkScope)
	OptWriteBufferHighWaterMark = NewOption("WRITE_BUFFER_HIGH_WATER_MARK", FrameworkScope)
	OptWriteBufferLowWaterMark  = NewOption("WRITE_BUFFER_LOW_WATER_MARK", FrameworkScope)
	OptAllocator                = NewOption("ALLOCATOR", FrameworkScope)
	OptRecvAllocator            = NewOption("RCVBUF_ALLOCATOR", FrameworkScope)

	// Recognised but not supported by this transport.
	OptSoLinger               = NewOption("SO_LINGER", FrameworkScope)
	OptAllowHalfClosure       = NewOption("ALLOW_HALF_CLOSURE", FrameworkScope)
	OptPerformancePreferences = NewOption("PERFORMANCE_PREFERENCES", FrameworkScope)
)

// Provider options.
var (
	OptTCPNoDelay     = NewOption("TCP_NODELAY", ProviderScope)
	OptKeepAlive      = NewOption("KEEP_ALIVE", ProviderScope)
	OptSendBuffer     = NewOption("SEND_BUFFER", ProviderScope)
	OptReceiveBuffer  = NewOption("RECEIVE_BUFFER", ProviderScope)
	OptReuseAddresses = NewOption("REUSE_ADDRESSES", ProviderScope)
	OptTrafficClass   = NewOption("IP_TRAFFIC_CLASS", ProviderScope)
	OptBacklog        = NewOption("BACKLOG", ProviderScope)

	OptConnectionHighWater  = NewOption("CONNECTION_HIGH_WATER", ProviderScope)
	OptConnectionLowWater   = NewOption("CONNECTION_LOW_WATER", ProviderScope)
	OptBalancingTokens      = NewOption("BALANCING_TOKENS", ProviderScope)
	OptBalancingConnections = NewOption("BALANCING_CONNECTIONS", ProviderScope)
	OptWorkerIOThreads      = NewOption("WORKER_IO_THREADS", ProviderScope)

	// OptDirectAcceptDelivery makes a server invoke its accept listener on the
	// acceptor goroutine instead of its I/O thread.
	OptDirectAcceptDelivery = NewOption("DIRECT_ACCEPT_DELIVERY", ProviderScope)
)

// OptionMap is an insertion-ordered option set, safe for concurrent use.
type OptionMap struct {
	mu   sync.RWMutex
	keys []Option
	vals map[Option]any
}

// NewOptionMap returns an empty map.
func NewOptionMap() *OptionMap {
	return &OptionMap{vals: make(map[Option]any)}
}

// Set stores v under opt and returns the map for chaining.
func (m *OptionMap) Set(opt Option, v any) *OptionMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = make(map[Option]any)
	}
	if _, ok := m.vals[opt]; !ok {
		m.keys = append(m.keys, opt)
	}
	m.vals[opt] = v
	return m
}

// Get returns the stored value; a nil map yields nothing.
func (m *OptionMap) Get(opt Option) (any, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[opt]
	return v, ok
}

// Len returns the number of options.
func (m *OptionMap) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

// Each visits options in insertion order until fn returns false.
func (m *OptionMap) Each(fn func(opt Option, v any) bool) {
	if m == nil {
		return
	}
	m.mu.RLock()
	keys := append([]Option(nil), m.keys...)
	vals := make([]any, len(keys))
	for i, k := range keys {
		vals[i] = m.vals[k]
	}
	m.mu.RUnlock()
	for i, k := range keys {
		if !fn(k, vals[i]) {
			return
		}
	}
}

// Clone returns an independent copy.
func (m *OptionMap) Clone() *OptionMap {
	out := NewOptionMap()
	m.Each(func(opt Option, v any) bool {
		out.Set(opt, v)
		return true
	})
	return out
}

// IntOption reads an int-valued option.
func (m *OptionMap) IntOption(opt Option, def int) int {
	v, ok := m.Get(opt)
	if !ok {
		return def
	}
	if n, ok := v.(int); ok {
		return n
	}
	return def
}

// BoolOption reads a bool-valued option.
func (m *OptionMap) BoolOption(opt Option, def bool) bool {
	v, ok := m.Get(opt)
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}
