// File: control/bridge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import (
	"fmt"

	"github.com/momentics/hioload-bridge/pool"
	"github.com/momentics/hioload-bridge/transport"
	"github.com/momentics/hioload-bridge/xio"
)

// PoolConfig sizes the shared direct-buffer slab pool.
type PoolConfig struct {
	SlabSize int  `yaml:"slab_size" mapstructure:"slab_size"`
	Capacity int  `yaml:"capacity" mapstructure:"capacity"`
	Channel  bool `yaml:"channel" mapstructure:"channel"` // use the channel-backed pool
}

// BridgeConfig is the full process configuration for a bridge deployment.
type BridgeConfig struct {
	Listen      string           `yaml:"listen" mapstructure:"listen"`
	MetricsAddr string           `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	Worker      xio.WorkerConfig `yaml:"worker" mapstructure:"worker"`
	Pool        PoolConfig       `yaml:"pool" mapstructure:"pool"`
	Server      transport.Config `yaml:"server" mapstructure:"server"`
	Child       transport.Config `yaml:"child" mapstructure:"child"`
}

// DefaultBridgeConfig returns stock values for every section.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Listen:      "127.0.0.1:7000",
		MetricsAddr: "127.0.0.1:9100",
		Worker:      xio.DefaultWorkerConfig(),
		Pool:        PoolConfig{SlabSize: pool.DefaultSlabSize, Capacity: 1024},
		Server:      transport.DefaultConfig(),
		Child:       transport.DefaultConfig(),
	}
}

// BridgeConfig decodes the store over the defaults.
func (cs *ConfigStore) BridgeConfig() (BridgeConfig, error) {
	c := DefaultBridgeConfig()
	if err := cs.Decode("", &c); err != nil {
		return c, err
	}
	if c.Worker.IoThreads <= 0 {
		return c, fmt.Errorf("control: worker.io_threads must be positive, got %d", c.Worker.IoThreads)
	}
	if c.Pool.SlabSize <= 0 {
		return c, fmt.Errorf("control: pool.slab_size must be positive, got %d", c.Pool.SlabSize)
	}
	return c, nil
}

// NewSource builds the slab source the pool section describes.
func (p PoolConfig) NewSource() pool.Source {
	if p.Channel {
		return pool.NewChanPool(p.SlabSize, p.Capacity)
	}
	return pool.NewSlabPool(p.SlabSize, p.Capacity)
}
