// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags. Callers must hold runtime.LockOSThread,
// otherwise the pinned thread may stop running the calling goroutine.

package affinity

import (
	"errors"
	"runtime"
)

// ErrNotSupported is returned on platforms without thread affinity control.
var ErrNotSupported = errors.New("affinity: not supported on this platform")

// SetAffinity pins the current OS thread to a logical CPU.
func SetAffinity(cpuID int) error {
	if cpuID < 0 {
		return errors.New("affinity: negative cpu id")
	}
	return setAffinityPlatform(cpuID)
}

// CPUFor maps a thread index onto the available CPUs.
func CPUFor(index int) int {
	n := runtime.NumCPU()
	if n <= 0 {
		return 0
	}
	return index % n
}
