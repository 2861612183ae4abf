// File: transport/recorder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

// Recorder observes channel activity. control.Metrics implements it.
type Recorder interface {
	BytesRead(n int)
	BytesWritten(n int64)
	PartialWrite()
	WriteInterest()
	Accepted()
	Exception()
	ChannelActive()
	ChannelInactive()
}

type nopRecorder struct{}

func (nopRecorder) BytesRead(int)      {}
func (nopRecorder) BytesWritten(int64) {}
func (nopRecorder) PartialWrite()      {}
func (nopRecorder) WriteInterest()     {}
func (nopRecorder) Accepted()          {}
func (nopRecorder) Exception()         {}
func (nopRecorder) ChannelActive()     {}
func (nopRecorder) ChannelInactive()   {}
