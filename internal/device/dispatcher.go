package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// GetMethod selects how a command result is delivered.
type GetMethod int

// Delivery modes.
const (
	// Block suspends the caller until the result is known.
	Block GetMethod = iota
	// NonBlock returns immediately and delivers the result to a callback.
	NonBlock
)

// Response is a successful command result.
type Response struct {
	Opcode  protocol.Opcode
	Payload []byte
	Latency time.Duration
}

// ResultFunc receives the outcome of a NonBlock command. Exactly one of
// resp and err is meaningful.
type ResultFunc func(resp Response, err error)

type result struct {
	resp Response
	err  error
}

// pending is one request from enqueue to resolution.
type pending struct {
	seq     uint32
	op      protocol.Opcode
	payload []byte
	timeout time.Duration
	issued  time.Time

	// Exactly one of wait and cb is set.
	wait chan result
	cb   ResultFunc

	// abandoned is set when a Block caller gave up; the result is dropped.
	abandoned atomic.Bool

	reply chan protocol.Frame
}

// sendFunc writes one frame to the transport.
type sendFunc func(ctx context.Context, f protocol.Frame) error

// dispatcher serialises commands for one device.
//
// Requests are queued FIFO and sent one at a time. The next request is not
// sent until the current one is answered, times out, or the link closes.
// Responses are matched on the sequence number of the in-flight request;
// anything else is stale and dropped.
//
// Thread Safety:
//   - call, callAsync, deliver and close are safe for concurrent use.
//   - NonBlock callbacks run on the worker goroutine, in issue order.
type dispatcher struct {
	send    sendFunc
	opts    *Options
	logger  Logger
	metrics Metrics

	seq atomic.Uint32

	mu       sync.Mutex
	queue    chan *pending
	inflight *pending
	closed   bool
	closeErr error

	done    chan struct{}
	stopped chan struct{}
}

func newDispatcher(send sendFunc, opts *Options) *dispatcher {
	d := &dispatcher{
		send:    send,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		queue:   make(chan *pending, opts.QueueDepth),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go d.worker()
	return d
}

// enqueue registers p for sending. The queue never blocks: a full queue is
// reported as CodeBusy.
func (d *dispatcher) enqueue(p *pending) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &CommError{Code: CodeOther, Opcode: p.op, Err: d.closeErr}
	}

	p.seq = d.seq.Add(1)
	p.issued = time.Now()
	p.timeout = d.opts.timeout(p.op)
	p.reply = make(chan protocol.Frame, 1)

	select {
	case d.queue <- p:
		return nil
	default:
		return &CommError{Code: CodeBusy, Opcode: p.op, Err: ErrQueueFull}
	}
}

// call sends op and blocks until the result is known or ctx is done.
func (d *dispatcher) call(ctx context.Context, op protocol.Opcode, payload []byte) (Response, error) {
	p := &pending{op: op, payload: payload, wait: make(chan result, 1)}
	if err := d.enqueue(p); err != nil {
		d.metrics.CommandCompleted(op, CodeOf(err), 0)
		return Response{}, err
	}

	select {
	case r := <-p.wait:
		return r.resp, r.err
	case <-ctx.Done():
		p.abandoned.Store(true)
		return Response{}, &CommError{Code: CodeOther, Opcode: op, Err: ctx.Err()}
	}
}

// callAsync queues op and returns. cb is invoked exactly once unless an
// error is returned here, in which case it is never invoked.
func (d *dispatcher) callAsync(op protocol.Opcode, payload []byte, cb ResultFunc) error {
	if cb == nil {
		cb = func(Response, error) {}
	}
	p := &pending{op: op, payload: payload, cb: cb}
	if err := d.enqueue(p); err != nil {
		d.metrics.CommandCompleted(op, CodeOf(err), 0)
		return err
	}
	return nil
}

// deliver routes a response frame from the I/O goroutine.
func (d *dispatcher) deliver(f protocol.Frame) {
	d.mu.Lock()
	p := d.inflight
	if p == nil || p.seq != f.Seq {
		d.mu.Unlock()
		d.logger.Debug("dropping stale response", "seq", f.Seq, "opcode", f.Opcode.String())
		return
	}
	d.inflight = nil
	d.mu.Unlock()

	// reply has capacity 1 and only the matching response reaches it.
	p.reply <- f
}

// close stops accepting commands and resolves everything pending with err.
// It returns after the worker goroutine has exited.
func (d *dispatcher) close(err error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	d.closeErr = err
	d.mu.Unlock()

	close(d.done)
	<-d.stopped
}

// pendingCount returns the queued plus in-flight request count.
func (d *dispatcher) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	if d.inflight != nil {
		n++
	}
	return n
}

func (d *dispatcher) worker() {
	defer close(d.stopped)

	for {
		select {
		case <-d.done:
			d.drain()
			return
		case p := <-d.queue:
			d.process(p)
		}
	}
}

func (d *dispatcher) process(p *pending) {
	if p.abandoned.Load() {
		return
	}
	select {
	case <-d.done:
		d.complete(p, Response{}, d.closedError(p.op))
		return
	default:
	}

	d.mu.Lock()
	d.inflight = p
	d.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
	err := d.send(sendCtx, protocol.NewRequest(p.seq, p.op, p.payload))
	cancel()
	if err != nil {
		d.clearInflight(p)
		d.complete(p, Response{}, &CommError{Code: CodeOther, Opcode: p.op, Err: fmt.Errorf("send: %w", err)})
		return
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case f := <-p.reply:
		code := codeFromWire(f.Code)
		if code != CodeNone {
			d.complete(p, Response{}, &CommError{Code: code, Opcode: p.op, Err: fmt.Errorf("device returned %d", f.Code)})
			return
		}
		d.complete(p, Response{Opcode: p.op, Payload: f.Payload, Latency: time.Since(p.issued)}, nil)

	case <-timer.C:
		d.clearInflight(p)
		d.complete(p, Response{}, &CommError{Code: CodeTimeout, Opcode: p.op, Err: fmt.Errorf("no response after %s", p.timeout)})

	case <-d.done:
		d.clearInflight(p)
		d.complete(p, Response{}, d.closedError(p.op))
	}
}

func (d *dispatcher) clearInflight(p *pending) {
	d.mu.Lock()
	if d.inflight == p {
		d.inflight = nil
	}
	d.mu.Unlock()
}

func (d *dispatcher) closedError(op protocol.Opcode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &CommError{Code: CodeOther, Opcode: op, Err: d.closeErr}
}

// drain resolves every queued request after close.
func (d *dispatcher) drain() {
	for {
		select {
		case p := <-d.queue:
			d.complete(p, Response{}, d.closedError(p.op))
		default:
			return
		}
	}
}

func (d *dispatcher) complete(p *pending, resp Response, err error) {
	d.metrics.CommandCompleted(p.op, CodeOf(err), time.Since(p.issued))
	if err != nil && !p.abandoned.Load() {
		d.logger.Debug("command failed", "opcode", p.op.String(), "seq", p.seq, "error", err)
	}

	if p.wait != nil {
		p.wait <- result{resp: resp, err: err}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command callback panicked", "opcode", p.op.String(), "panic", r)
		}
	}()
	p.cb(resp, err)
}
