//go:build windows

// File: affinity/affinity_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows implementation on SetThreadAffinityMask for the calling thread.

package affinity

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var procSetThreadAffinityMask = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadAffinityMask")

func setAffinityPlatform(cpuID int) error {
	mask := uintptr(1) << uint(cpuID)
	ret, _, err := procSetThreadAffinityMask.Call(uintptr(windows.CurrentThread()), mask)
	if ret == 0 {
		return fmt.Errorf("affinity: SetThreadAffinityMask cpu %d: %w", cpuID, err)
	}
	return nil
}
