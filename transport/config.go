// File: transport/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel configuration. Framework options live in Config; provider options
// are handed to the channel, which buffers them until a connection exists.

package transport

import (
	"sync"
	"time"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/pool"
)

// Config holds the framework-side options of one channel.
type Config struct {
	MaxMessagesPerRead       int           `yaml:"max_messages_per_read" mapstructure:"max_messages_per_read"`
	WriteSpinCount           int           `yaml:"write_spin_count" mapstructure:"write_spin_count"`
	AutoRead                 bool          `yaml:"auto_read" mapstructure:"auto_read"`
	ConnectTimeout           time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	WriteBufferHighWaterMark int           `yaml:"write_buffer_high_water_mark" mapstructure:"write_buffer_high_water_mark"`
	WriteBufferLowWaterMark  int           `yaml:"write_buffer_low_water_mark" mapstructure:"write_buffer_low_water_mark"`

	Allocator     api.BufferAllocator `yaml:"-" mapstructure:"-"`
	RecvAllocator api.RecvAllocator   `yaml:"-" mapstructure:"-"`
	Recorder      Recorder            `yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns the stock channel configuration.
func DefaultConfig() Config {
	return Config{
		MaxMessagesPerRead:       16,
		WriteSpinCount:           16,
		AutoRead:                 true,
		ConnectTimeout:           30 * time.Second,
		WriteBufferHighWaterMark: 64 << 10,
		WriteBufferLowWaterMark:  32 << 10,
	}
}

var (
	defaultAllocOnce sync.Once
	defaultAlloc     *pool.Allocator
)

// DefaultAllocator is the process-wide allocator over a mapped slab pool.
func DefaultAllocator() *pool.Allocator {
	defaultAllocOnce.Do(func() {
		defaultAlloc = pool.NewAllocator(pool.NewSlabPool(pool.DefaultSlabSize, 1024))
	})
	return defaultAlloc
}

// normalized fills unset fields.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxMessagesPerRead <= 0 {
		c.MaxMessagesPerRead = d.MaxMessagesPerRead
	}
	if c.WriteSpinCount <= 0 {
		c.WriteSpinCount = d.WriteSpinCount
	}
	if c.WriteBufferHighWaterMark <= 0 {
		c.WriteBufferHighWaterMark = d.WriteBufferHighWaterMark
	}
	if c.WriteBufferLowWaterMark <= 0 || c.WriteBufferLowWaterMark > c.WriteBufferHighWaterMark {
		c.WriteBufferLowWaterMark = c.WriteBufferHighWaterMark / 2
	}
	if c.Allocator == nil {
		c.Allocator = DefaultAllocator()
	}
	if c.RecvAllocator == nil {
		c.RecvAllocator = DefaultRecvAllocator()
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	return c
}

// providerOptions is the channel side of option delegation.
type providerOptions interface {
	setProviderOption(opt api.Option, v any) error
	providerOption(opt api.Option) (any, error)
}

// channelConfig is the per-channel, concurrency-safe view of Config.
type channelConfig struct {
	mu         sync.RWMutex
	cfg        Config
	provider   providerOptions
	onAutoRead func(on bool)
	onWater    func(high, low int)
}

func newChannelConfig(cfg Config, provider providerOptions) *channelConfig {
	return &channelConfig{cfg: cfg.normalized(), provider: provider}
}

func (c *channelConfig) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *channelConfig) MaxMessagesPerRead() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.MaxMessagesPerRead
}

func (c *channelConfig) WriteSpinCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.WriteSpinCount
}

func (c *channelConfig) AutoRead() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.AutoRead
}

func (c *channelConfig) ConnectTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.ConnectTimeout
}

func (c *channelConfig) Allocator() api.BufferAllocator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Allocator
}

func (c *channelConfig) RecvAllocator() api.RecvAllocator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.RecvAllocator
}

func (c *channelConfig) Recorder() Recorder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Recorder
}

func (c *channelConfig) waterMarks() (high, low int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.WriteBufferHighWaterMark, c.cfg.WriteBufferLowWaterMark
}

// Set applies one option. Provider options go to the channel; rejected values
// come back as *ChannelError.
func (c *channelConfig) Set(opt api.Option, v any) error {
	if opt.IsProvider() {
		if c.provider == nil {
			return &ChannelError{Op: "set", Option: opt, Err: api.ErrNotSupported}
		}
		if err := c.provider.setProviderOption(opt, v); err != nil {
			return &ChannelError{Op: "set", Option: opt, Err: err}
		}
		return nil
	}
	invalid := &ChannelError{Op: "set", Option: opt, Err: api.ErrInvalidArgument}

	c.mu.Lock()
	var autoRead, water bool
	switch opt {
	case api.OptMaxMessagesPerRead:
		n, ok := v.(int)
		if !ok || n <= 0 {
			c.mu.Unlock()
			return invalid
		}
		c.cfg.MaxMessagesPerRead = n
	case api.OptWriteSpinCount:
		n, ok := v.(int)
		if !ok || n <= 0 {
			c.mu.Unlock()
			return invalid
		}
		c.cfg.WriteSpinCount = n
	case api.OptAutoRead:
		on, ok := v.(bool)
		if !ok {
			c.mu.Unlock()
			return invalid
		}
		autoRead = on && !c.cfg.AutoRead
		c.cfg.AutoRead = on
	case api.OptConnectTimeout:
		d, ok := v.(time.Duration)
		if !ok || d < 0 {
			c.mu.Unlock()
			return invalid
		}
		c.cfg.ConnectTimeout = d
	case api.OptWriteBufferHighWaterMark:
		n, ok := v.(int)
		if !ok || n < c.cfg.WriteBufferLowWaterMark {
			c.mu.Unlock()
			return invalid
		}
		c.cfg.WriteBufferHighWaterMark = n
		water = true
	case api.OptWriteBufferLowWaterMark:
		n, ok := v.(int)
		if !ok || n < 0 || n > c.cfg.WriteBufferHighWaterMark {
			c.mu.Unlock()
			return invalid
		}
		c.cfg.WriteBufferLowWaterMark = n
		water = true
	case api.OptAllocator:
		a, ok := v.(api.BufferAllocator)
		if !ok || a == nil {
			c.mu.Unlock()
			return invalid
		}
		c.cfg.Allocator = a
	case api.OptRecvAllocator:
		a, ok := v.(api.RecvAllocator)
		if !ok || a == nil {
			c.mu.Unlock()
			return invalid
		}
		c.cfg.RecvAllocator = a
	default:
		c.mu.Unlock()
		return &ChannelError{Op: "set", Option: opt, Err: api.ErrNotSupported}
	}
	high, low := c.cfg.WriteBufferHighWaterMark, c.cfg.WriteBufferLowWaterMark
	onAutoRead, onWater := c.onAutoRead, c.onWater
	c.mu.Unlock()

	if autoRead && onAutoRead != nil {
		onAutoRead(true)
	}
	if water && onWater != nil {
		onWater(high, low)
	}
	return nil
}

// Get returns the current value of opt.
func (c *channelConfig) Get(opt api.Option) (any, error) {
	if opt.IsProvider() {
		if c.provider == nil {
			return nil, &ChannelError{Op: "get", Option: opt, Err: api.ErrNotSupported}
		}
		v, err := c.provider.providerOption(opt)
		if err != nil {
			return nil, &ChannelError{Op: "get", Option: opt, Err: err}
		}
		return v, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch opt {
	case api.OptMaxMessagesPerRead:
		return c.cfg.MaxMessagesPerRead, nil
	case api.OptWriteSpinCount:
		return c.cfg.WriteSpinCount, nil
	case api.OptAutoRead:
		return c.cfg.AutoRead, nil
	case api.OptConnectTimeout:
		return c.cfg.ConnectTimeout, nil
	case api.OptWriteBufferHighWaterMark:
		return c.cfg.WriteBufferHighWaterMark, nil
	case api.OptWriteBufferLowWaterMark:
		return c.cfg.WriteBufferLowWaterMark, nil
	case api.OptAllocator:
		return c.cfg.Allocator, nil
	case api.OptRecvAllocator:
		return c.cfg.RecvAllocator, nil
	}
	return nil, &ChannelError{Op: "get", Option: opt, Err: api.ErrNotSupported}
}
