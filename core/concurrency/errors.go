// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrLoopStopped indicates the task loop no longer accepts work
	ErrLoopStopped = errors.New("task loop is stopped")

	// ErrNilTask indicates a nil task was submitted
	ErrNilTask = errors.New("nil task")
)
