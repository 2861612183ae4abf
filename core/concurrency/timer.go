// File: core/concurrency/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Removable timer keys ordered in a min-heap by deadline, FIFO among equal deadlines.

package concurrency

import (
	"container/heap"
	"time"
)

// TimerKey identifies one pending ExecuteAfter task.
type TimerKey struct {
	loop  *TaskLoop
	when  time.Time
	seq   uint64
	task  func()
	index int // heap position, -1 once fired or removed
}

// Remove cancels the timer. It returns false when the timer already fired or was removed.
func (k *TimerKey) Remove() bool {
	if k == nil || k.loop == nil {
		return false
	}
	l := k.loop
	l.mu.Lock()
	defer l.mu.Unlock()
	if k.index < 0 {
		return false
	}
	heap.Remove(&l.timers, k.index)
	k.task = nil
	return true
}

// Deadline returns the scheduled fire time.
func (k *TimerKey) Deadline() time.Time { return k.when }

type timerHeap []*TimerKey

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	k := x.(*TimerKey)
	k.index = len(*h)
	*h = append(*h, k)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	k := old[n-1]
	old[n-1] = nil
	k.index = -1
	*h = old[:n-1]
	return k
}
