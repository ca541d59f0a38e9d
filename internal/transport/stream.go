package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// StreamOptions tunes a StreamChannel.
type StreamOptions struct {
	// WriteTimeout bounds one Send when ctx has no earlier deadline and the
	// stream supports write deadlines. Zero means no bound.
	WriteTimeout time.Duration

	// Filter sees every decoded frame before the sink. Returning false
	// drops the frame. It runs on the read goroutine.
	Filter func(protocol.Frame) bool
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// StreamChannel runs the frame codec over a byte stream such as a TCP
// connection or a serial port. One goroutine reads frames and calls the
// sink, so Deliver calls arrive in wire order and Lost follows the last of
// them.
type StreamChannel struct {
	ep   Endpoint
	rw   io.ReadWriteCloser
	sink Sink
	opts StreamOptions

	writeMu sync.Mutex
	done    *CloseOnce

	mu      sync.Mutex
	closed  bool
	local   bool
	lostErr error
}

// NewStreamChannel starts reading from rw. The channel owns rw from now on.
func NewStreamChannel(ep Endpoint, rw io.ReadWriteCloser, sink Sink, opts StreamOptions) *StreamChannel {
	c := &StreamChannel{
		ep:   ep,
		rw:   rw,
		sink: sink,
		opts: opts,
		done: NewCloseOnce(),
	}
	go c.readLoop()
	return c
}

// Endpoint implements Channel.
func (c *StreamChannel) Endpoint() Endpoint { return c.ep }

// Done is closed once the channel is closed or lost.
func (c *StreamChannel) Done() <-chan struct{} { return c.done.Done() }

// Send implements Channel.
func (c *StreamChannel) Send(ctx context.Context, f protocol.Frame) error {
	if c.done.Closed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := protocol.Encode(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if wd, ok := c.rw.(writeDeadliner); ok {
		_ = wd.SetWriteDeadline(c.writeDeadline(ctx)) //nolint:errcheck // write error reported below
	}
	if _, err := c.rw.Write(b); err != nil {
		if c.done.Closed() {
			return ErrClosed
		}
		c.Fail(fmt.Errorf("write: %w", err))
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return nil
}

func (c *StreamChannel) writeDeadline(ctx context.Context) time.Time {
	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if c.opts.WriteTimeout > 0 {
		wd := time.Now().Add(c.opts.WriteTimeout)
		if deadline.IsZero() || wd.Before(deadline) {
			deadline = wd
		}
	}
	return deadline
}

// Close implements Channel. It never waits for the read goroutine, so a
// sink may call it from inside Deliver. The sink is not told about a local
// close.
func (c *StreamChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.local = true
	c.mu.Unlock()

	c.done.Close()
	return c.rw.Close()
}

// Fail drops the link with err. The sink receives Lost(err) once the read
// goroutine has stopped. Calls after Close or an earlier Fail do nothing.
func (c *StreamChannel) Fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.lostErr = err
	c.mu.Unlock()

	c.done.Close()
	_ = c.rw.Close() //nolint:errcheck // unblocks the reader
}

func (c *StreamChannel) readLoop() {
	for {
		f, err := protocol.ReadFrame(c.rw)
		if err != nil {
			// A payload checksum failure leaves the stream aligned.
			if errors.Is(err, protocol.ErrPayloadChecksum) && !c.done.Closed() {
				continue
			}
			c.finish(err)
			return
		}
		if c.opts.Filter != nil && !c.opts.Filter(f) {
			continue
		}
		c.sink.Deliver(f)
	}
}

func (c *StreamChannel) finish(readErr error) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.lostErr = fmt.Errorf("read: %w", readErr)
	}
	local, lostErr := c.local, c.lostErr
	c.mu.Unlock()

	c.done.Close()
	_ = c.rw.Close() //nolint:errcheck // already failed or closed
	if !local {
		c.sink.Lost(lostErr)
	}
}
