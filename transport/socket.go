// File: transport/socket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// socketChannel moves bytes between a provider StreamConnection and the
// pipeline. All read and write state below is owned by the event loop.

package transport

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// maxGatherSegments bounds the number of buffers handed to one gathering write.
const maxGatherSegments = 1024

type socketChannel struct {
	baseChannel

	connMu  sync.RWMutex
	conn    api.StreamConnection
	pending *api.OptionMap

	outbound    *OutboundBuffer
	inFlush     bool
	readPending bool
	allocHandle api.RecvHandle
	closed      atomic.Bool
	onClose     func()
}

func (c *socketChannel) initSocket(self api.Channel, parent api.Channel, cfg Config) {
	c.init(self, parent, cfg, c)
	high, low := c.cfg.waterMarks()
	c.outbound = NewOutboundBuffer(high, low)
	c.cfg.onWater = c.outbound.SetWaterMarks
	c.cfg.onAutoRead = func(on bool) {
		if on {
			c.Read()
		}
	}
}

func (c *socketChannel) connection() api.StreamConnection {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// attach installs the connection and its listeners, then re-applies
// provider options buffered before the connection existed.
func (c *socketChannel) attach(conn api.StreamConnection) error {
	c.connMu.Lock()
	c.conn = conn
	var err error
	c.pending.Each(func(opt api.Option, v any) bool {
		if !conn.SupportsOption(opt) {
			err = &ChannelError{Op: "set", Option: opt, Err: api.ErrNotSupported}
			return false
		}
		if _, err = conn.SetOption(opt, v); err != nil {
			err = &ChannelError{Op: "set", Option: opt, Err: err}
			return false
		}
		return true
	})
	c.pending = nil
	c.connMu.Unlock()

	conn.Source().SetReadListener(c.handleRead)
	conn.Sink().SetWriteListener(c.handleWritable)
	conn.SetCloseListener(c.handleConnClosed)
	return err
}

func (c *socketChannel) setProviderOption(opt api.Option, v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		if c.pending == nil {
			c.pending = api.NewOptionMap()
		}
		c.pending.Set(opt, v)
		return nil
	}
	if !c.conn.SupportsOption(opt) {
		return api.ErrNotSupported
	}
	_, err := c.conn.SetOption(opt, v)
	return err
}

func (c *socketChannel) providerOption(opt api.Option) (any, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.conn == nil {
		v, _ := c.pending.Get(opt)
		return v, nil
	}
	if !c.conn.SupportsOption(opt) {
		return nil, api.ErrNotSupported
	}
	return c.conn.Option(opt)
}

func (c *socketChannel) compatible(l *EventLoop) bool {
	if !c.compatibleParent(l) {
		return false
	}
	conn := c.connection()
	return conn == nil || conn.IoThread() == l.IoThread()
}

func (c *socketChannel) afterRegister() {
	if c.IsActive() {
		c.fireActive()
		if c.cfg.AutoRead() {
			c.beginRead()
		}
	}
}

func (c *socketChannel) IsOpen() bool {
	conn := c.connection()
	return (conn == nil || conn.IsOpen()) && !c.closed.Load()
}

func (c *socketChannel) IsActive() bool {
	conn := c.connection()
	return conn != nil && conn.IsOpen() && !c.closed.Load()
}

func (c *socketChannel) IsWritable() bool {
	return c.IsActive() && c.outbound.IsWritable()
}

// IsInputShutdown reports whether the read half is closed.
func (c *socketChannel) IsInputShutdown() bool {
	conn := c.connection()
	return conn == nil || conn.IsReadShutdown()
}

// IsOutputShutdown reports whether the write half is closed.
func (c *socketChannel) IsOutputShutdown() bool {
	conn := c.connection()
	return conn == nil || conn.IsWriteShutdown()
}

func (c *socketChannel) LocalAddr() net.Addr {
	if conn := c.connection(); conn != nil {
		return conn.LocalAddr()
	}
	return nil
}

func (c *socketChannel) RemoteAddr() net.Addr {
	if conn := c.connection(); conn != nil {
		return conn.RemoteAddr()
	}
	return nil
}

// Outbound exposes the write queue, mostly for inspection.
func (c *socketChannel) Outbound() *OutboundBuffer { return c.outbound }

// Read asks for another read cycle.
func (c *socketChannel) Read() { _ = c.runOnLoop(c.beginRead) }

func (c *socketChannel) beginRead() {
	if !c.IsActive() {
		return
	}
	c.readPending = true
	src := c.connection().Source()
	if !src.IsReadResumed() {
		src.ResumeReads()
	}
}

// handleRead is the source read listener.
func (c *socketChannel) handleRead(src api.SourceChannel) {
	if c.closed.Load() {
		return
	}
	cfg := c.cfg
	if c.allocHandle == nil {
		c.allocHandle = cfg.RecvAllocator().NewHandle()
	}
	h := c.allocHandle
	alloc := cfg.Allocator()
	maxMessages := cfg.MaxMessagesPerRead()

	defer func() {
		if !cfg.AutoRead() && !c.readPending {
			src.SuspendReads()
		}
	}()

	var (
		buf        api.Buffer
		total      int
		messages   int
		closeAfter bool
		err        error
	)
	for {
		guess := h.Guess()
		if buf, err = alloc.IOBuffer(guess); err != nil {
			buf = nil
			break
		}
		room := len(buf.Writable())
		n, rerr := src.Read(buf.Writable())
		if n > 0 {
			buf.SetWriterIndex(buf.WriterIndex() + n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				closeAfter = true
				if buf.IsReadable() {
					c.fireRead(buf, n, &total)
				} else {
					_ = buf.Release()
				}
				buf = nil
			} else {
				err = ioFailure("read", rerr)
			}
			break
		}
		if n == 0 {
			_ = buf.Release()
			buf = nil
			break
		}
		messages++
		c.fireRead(buf, n, &total)
		buf = nil
		if c.closed.Load() || !cfg.AutoRead() || n < room || messages >= maxMessages {
			break
		}
	}

	h.Record(total)
	cfg.Recorder().BytesRead(total)
	if err == nil {
		c.pipeline.FireChannelReadComplete()
		if closeAfter {
			c.close0(nil)
		}
		return
	}

	if buf != nil {
		if buf.IsReadable() {
			c.fireRead(buf, buf.ReadableBytes(), &total)
		} else {
			_ = buf.Release()
		}
	}
	c.pipeline.FireChannelReadComplete()
	c.fireException(err)
	if closeAfter || isIOError(err) {
		c.close0(nil)
	}
}

func (c *socketChannel) fireRead(buf api.Buffer, n int, total *int) {
	if *total > math.MaxInt-n {
		*total = math.MaxInt
	} else {
		*total += n
	}
	c.readPending = false
	c.pipeline.FireChannelRead(buf)
}

// handleWritable is the sink write listener.
func (c *socketChannel) handleWritable(api.SinkChannel) { c.forceFlush() }

func (c *socketChannel) handleConnClosed(api.StreamConnection) {
	c.runOrDefer(func() { c.close0(nil) })
}

func (c *socketChannel) Write(msg any) api.Future {
	p := concurrency.NewPromise()
	if err := c.runOnLoop(func() { c.write0(msg, p) }); err != nil {
		releaseMessage(msg)
		p.TryFailure(err)
	}
	return p
}

func (c *socketChannel) write0(msg any, p api.Promise) {
	if c.closed.Load() {
		releaseMessage(msg)
		p.TryFailure(api.ErrChannelClosed)
		return
	}
	c.outbound.AddMessage(msg, messageSize(msg), p)
}

func (c *socketChannel) Flush() {
	_ = c.runOnLoop(func() {
		c.outbound.AddFlush()
		c.flush0()
	})
}

func (c *socketChannel) WriteAndFlush(msg any) api.Future {
	p := concurrency.NewPromise()
	err := c.runOnLoop(func() {
		c.write0(msg, p)
		c.outbound.AddFlush()
		c.flush0()
	})
	if err != nil {
		releaseMessage(msg)
		p.TryFailure(err)
	}
	return p
}

// flush0 leaves the work to the write listener while write interest is armed.
func (c *socketChannel) flush0() {
	if conn := c.connection(); conn != nil && conn.Sink().IsWriteResumed() {
		return
	}
	c.forceFlush()
}

func (c *socketChannel) forceFlush() {
	if c.inFlush || c.outbound.IsEmpty() {
		return
	}
	if !c.IsActive() {
		if c.IsOpen() {
			c.outbound.FailFlushed(api.ErrNotYetConnected)
		} else {
			c.outbound.FailFlushed(api.ErrChannelClosed)
		}
		return
	}
	c.inFlush = true
	err := c.doWrite(c.connection())
	c.inFlush = false
	if err != nil {
		c.outbound.FailFlushed(err)
		c.cfg.Recorder().Exception()
		if isIOError(err) {
			c.close0(nil)
		}
	}
}

func (c *socketChannel) doWrite(conn api.StreamConnection) error {
	sink := conn.Sink()
	spin := c.cfg.WriteSpinCount()
	alloc := c.cfg.Allocator()
	rec := c.cfg.Recorder()

	for {
		if c.outbound.IsEmpty() {
			sink.SuspendWrites()
			return nil
		}

		if segs, count, total := c.outbound.Buffers(maxGatherSegments); count > 1 {
			if total == 0 {
				for i := 0; i < count; i++ {
					c.outbound.Remove()
				}
				continue
			}
			written, full, err := gatherWrite(sink, segs, total, spin)
			if written > 0 {
				rec.BytesWritten(written)
			}
			if err != nil {
				c.outbound.RemoveBytes(written)
				return ioFailure("write", err)
			}
			if written == total {
				c.outbound.RemoveBytes(written)
				continue
			}
			c.outbound.RemoveBytes(written)
			c.incompleteWrite(conn, full)
			return nil
		}

		switch m := c.outbound.Current().(type) {
		case api.Buffer:
			if !m.IsReadable() {
				c.outbound.Remove()
				continue
			}
			if !m.IsDirect() && alloc.IsDirectPooled() {
				if d, err := alloc.Direct(m.ReadableBytes()); err == nil {
					if err := d.WriteBytes(m.Bytes()); err == nil {
						c.outbound.SetCurrent(d)
						m = d
					} else {
						_ = d.Release()
					}
				}
			}
			done, full := false, false
			for i := 0; i < spin; i++ {
				n, err := sink.Write([][]byte{m.Bytes()})
				if n > 0 {
					m.SetReaderIndex(m.ReaderIndex() + int(n))
					c.outbound.Progress(n)
					rec.BytesWritten(n)
				}
				if err != nil {
					return ioFailure("write", err)
				}
				if !m.IsReadable() {
					done = true
					break
				}
				if n == 0 {
					full = true
					break
				}
			}
			if done {
				c.outbound.Remove()
				continue
			}
			c.incompleteWrite(conn, full)
			return nil

		case api.FileRegion:
			if m.Transferred() >= m.Count() {
				c.outbound.Remove()
				continue
			}
			done, full := false, false
			for i := 0; i < spin; i++ {
				n, err := m.TransferTo(sink)
				if n > 0 {
					c.outbound.Progress(n)
					rec.BytesWritten(n)
				}
				if err != nil {
					return ioFailure("transfer", err)
				}
				if m.Transferred() >= m.Count() {
					done = true
					break
				}
				if n == 0 {
					full = true
					break
				}
			}
			if done {
				c.outbound.Remove()
				continue
			}
			c.incompleteWrite(conn, full)
			return nil

		default:
			c.outbound.RemoveError(fmt.Errorf("%w: %T", api.ErrUnsupportedMessage, m))
		}
	}
}

// gatherWrite spins a gathering write until total bytes are accepted,
// the sink reports full, or the spin budget runs out.
func gatherWrite(sink api.SinkChannel, segs [][]byte, total int64, spin int) (written int64, full bool, err error) {
	for i := 0; i < spin && written < total; i++ {
		n, err := sink.Write(segs)
		written += n
		if err != nil {
			return written, false, err
		}
		if n == 0 {
			return written, true, nil
		}
		segs = advanceSegments(segs, n)
	}
	return written, false, nil
}

func advanceSegments(segs [][]byte, n int64) [][]byte {
	for len(segs) > 0 && n > 0 {
		if int64(len(segs[0])) > n {
			segs[0] = segs[0][n:]
			return segs
		}
		n -= int64(len(segs[0]))
		segs = segs[1:]
	}
	return segs
}

// incompleteWrite arms write interest when the sink is full; otherwise the
// spin budget ran out and the flush continues in a later task.
func (c *socketChannel) incompleteWrite(conn api.StreamConnection, full bool) {
	rec := c.cfg.Recorder()
	rec.PartialWrite()
	sink := conn.Sink()
	if full {
		rec.WriteInterest()
		sink.ResumeWrites()
		return
	}
	sink.SuspendWrites()
	if err := conn.IoThread().Execute(c.flush0); err != nil {
		logf("flush task rejected: %v", err)
	}
}

func (c *socketChannel) Close() api.Future {
	p := concurrency.NewPromise()
	c.runOrDefer(func() { c.close0(p) })
	return p
}

// close0 runs the close path once; later calls complete with the first close.
func (c *socketChannel) close0(p api.Promise) {
	if !c.closed.CompareAndSwap(false, true) {
		if p != nil {
			c.closeFuture.AddListener(func(api.Future) { p.TrySuccess(nil) })
		}
		return
	}
	var closeErr error
	if conn := c.connection(); conn != nil {
		conn.Source().SuspendReads()
		conn.Sink().SuspendWrites()
		if err := conn.Close(); err != nil {
			closeErr = ioFailure("close", err)
		}
	}
	c.outbound.Close(api.ErrChannelClosed)
	if c.onClose != nil {
		c.onClose()
	}
	c.fireInactive()
	c.closeFuture.TrySuccess(nil)
	if p == nil {
		return
	}
	if closeErr != nil {
		p.TryFailure(closeErr)
		return
	}
	p.TrySuccess(nil)
}
