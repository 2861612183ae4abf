// File: core/concurrency/goid.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// GoroutineID returns the id of the calling goroutine, parsed from its stack header
// ("goroutine 42 [running]:"). It returns 0 if the header cannot be parsed.
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
