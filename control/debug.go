// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime debug handler and probe reflector for internal inspection.

package control

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/momentics/hioload-bridge/pool"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// Handler serves DumpState as JSON.
func (dp *DebugProbes) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(dp.DumpState()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

// RegisterPoolProbes exposes allocator and slab accounting.
func RegisterPoolProbes(dp *DebugProbes, alloc *pool.Allocator) {
	dp.RegisterProbe("pool.handles", func() any { return alloc.Stats() })
	if src := alloc.Source(); src != nil {
		dp.RegisterProbe("pool.slabs", func() any { return src.Stats() })
	}
}

// RegisterMetricsProbe mirrors the metrics snapshot into the probe output.
func RegisterMetricsProbe(dp *DebugProbes, m *Metrics) {
	dp.RegisterProbe("metrics", func() any { return m.GetSnapshot() })
}
