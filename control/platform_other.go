//go:build !linux && !windows

package control

import "runtime"

// RegisterPlatformProbes sets the portable debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
}
