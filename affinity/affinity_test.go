package affinity

import (
	"runtime"
	"testing"
)

func TestCPUFor(t *testing.T) {
	n := runtime.NumCPU()
	if got := CPUFor(n + 1); got != 1%n {
		t.Fatalf("CPUFor(%d) = %d", n+1, got)
	}
}

func TestSetAffinityRejectsNegative(t *testing.T) {
	if err := SetAffinity(-1); err == nil {
		t.Fatal("expected error for negative cpu")
	}
}

func TestSetAffinityCurrentThread(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux only")
	}
	// left locked on purpose: the pinned thread exits with this goroutine
	runtime.LockOSThread()
	if err := SetAffinity(0); err != nil {
		t.Skipf("affinity unavailable in this environment: %v", err)
	}
}
