package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/transport"
)

// Device is one connected camera.
//
// A Device is only ever handed out fully constructed: Open returns after
// the identity handshake, with the status cache and transfer manager in
// place.
type Device struct {
	opts   Options
	logger Logger

	disp      *dispatcher
	cache     *StatusCache
	transfers *TransferManager
	events    eventNotifier

	chMu sync.RWMutex
	ch   transport.Channel

	mu   sync.RWMutex
	info Info

	ready     atomic.Bool
	dead      atomic.Bool
	closeOnce sync.Once
}

// linkSink adapts a Device to transport.Sink without exporting the hooks.
type linkSink struct{ d *Device }

func (s linkSink) Deliver(f protocol.Frame) { s.d.handleFrame(f) }
func (s linkSink) Lost(err error)           { s.d.handleLost(err) }

// Open connects to ep over tr and runs the identity handshake.
//
// Parameters:
//   - ctx: bounds the open and the handshake
//   - tr: transport that owns ep
//   - ep: endpoint from a previous Enumerate
//   - opts: device options; the zero value is usable
//
// Returns:
//   - *Device: a ready device
//   - error: transport open failure, or ErrHandshake wrapping the cause
func Open(ctx context.Context, tr transport.Transport, ep transport.Endpoint, opts Options) (*Device, error) {
	opts.applyDefaults()
	d := &Device{
		opts:   opts,
		logger: opts.Logger,
		events: eventNotifier{metrics: opts.Metrics},
	}
	d.disp = newDispatcher(d.send, &d.opts)
	d.transfers = newTransferManager(d.Call, &d.opts)

	ch, err := tr.Open(ctx, ep, linkSink{d})
	if err != nil {
		d.shutdown(ErrClosed)
		return nil, fmt.Errorf("open %s: %w", ep, err)
	}
	d.chMu.Lock()
	d.ch = ch
	d.chMu.Unlock()

	info, err := d.handshake(ctx, ep)
	if err != nil {
		d.shutdown(ErrClosed)
		return nil, fmt.Errorf("%w: %s: %w", ErrHandshake, ep, err)
	}
	d.mu.Lock()
	d.info = info
	d.mu.Unlock()

	d.cache = newStatusCache(info.Product.Layout(), opts.RefreshPeriod, d.fetchStatus, &d.opts)
	d.ready.Store(true)

	// A loss during the handshake was not reported to OnLost.
	if d.dead.Load() {
		d.shutdown(ErrClosed)
		return nil, fmt.Errorf("%w: %s: %w", ErrHandshake, ep, ErrLinkLost)
	}

	d.logger.Info("device opened",
		"sn", info.SN,
		"uuid", info.UUID.String(),
		"product", info.Product.String(),
		"endpoint", ep.String(),
	)
	return d, nil
}

func (d *Device) handshake(ctx context.Context, ep transport.Endpoint) (Info, error) {
	resp, err := d.disp.call(ctx, protocol.OpGetDeviceInfo, nil)
	if err != nil {
		return Info{}, err
	}
	var w protocol.DeviceInfo
	if err := w.UnmarshalBinary(resp.Payload); err != nil {
		return Info{}, err
	}
	info := infoFromWire(ep, w)
	if info.UUID.IsZero() {
		return Info{}, errors.New("device reported an empty uuid")
	}
	return info, nil
}

func (d *Device) send(ctx context.Context, f protocol.Frame) error {
	d.chMu.RLock()
	ch := d.ch
	d.chMu.RUnlock()
	if ch == nil {
		return transport.ErrClosed
	}
	return ch.Send(ctx, f)
}

func (d *Device) fetchStatus(cb ResultFunc) error {
	return d.disp.callAsync(protocol.OpGetStatus, nil, cb)
}

// handleFrame runs on the channel's I/O goroutine.
func (d *Device) handleFrame(f protocol.Frame) {
	switch f.Kind {
	case protocol.KindResponse:
		d.disp.deliver(f)
	case protocol.KindStatusTick:
		if d.ready.Load() && !d.dead.Load() {
			d.cache.Tick()
		}
	case protocol.KindEvent:
		if d.ready.Load() && !d.dead.Load() {
			d.events.deliver(f.Code, f.Payload)
		}
	case protocol.KindHeartbeat:
		// Liveness is tracked by the transport.
	default:
		d.logger.Debug("ignoring frame", "frame", f.String())
	}
}

// handleLost runs on the I/O goroutine, so teardown happens elsewhere.
func (d *Device) handleLost(err error) {
	d.dead.Store(true)
	go func() {
		lost := fmt.Errorf("%w: %w", ErrLinkLost, err)
		if !d.shutdown(lost) {
			return
		}
		d.logger.Warn("device link lost", "sn", d.SN(), "error", err)
		if d.opts.OnLost != nil && d.ready.Load() {
			d.opts.OnLost(d, err)
		}
	}()
}

// shutdown marks the device dead, resolves every pending command with
// cause, fails active transfers and closes the channel. It reports whether
// this call did the work.
func (d *Device) shutdown(cause error) bool {
	did := false
	d.closeOnce.Do(func() {
		did = true
		d.dead.Store(true)

		d.chMu.Lock()
		ch := d.ch
		d.chMu.Unlock()
		if ch != nil {
			_ = ch.Close()
		}

		d.disp.close(cause)
		d.transfers.Close()
	})
	return did
}

// Close tears the device down. Pending commands fail with ErrClosed and
// OnLost is not called. Close may be called from event, download and
// upload callbacks. It must not be called from a NonBlock command callback
// or a status push callback: both run on the dispatcher goroutine, which
// Close waits for.
func (d *Device) Close() error {
	if d.shutdown(ErrClosed) {
		d.logger.Info("device closed", "sn", d.SN())
	}
	return nil
}

// Alive reports whether the device can still accept commands.
func (d *Device) Alive() bool { return !d.dead.Load() }

// Identity returns the immutable identity.
func (d *Device) Identity() Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info.Identity
}

// Info returns the handshake info with the current name.
func (d *Device) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// UUID returns the canonical key.
func (d *Device) UUID() UUID { return d.Identity().UUID }

// SN returns the serial number.
func (d *Device) SN() string { return d.Identity().SN }

// Name returns the current device name.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info.Name
}

// Endpoint returns the transport endpoint.
func (d *Device) Endpoint() transport.Endpoint { return d.Identity().Endpoint }

// Product returns the product type.
func (d *Device) Product() ProductType { return d.Info().Product }

// Call sends op and blocks until the response, the opcode timeout, link
// loss, or ctx is done. It never retries.
func (d *Device) Call(ctx context.Context, op protocol.Opcode, payload []byte) (Response, error) {
	return d.disp.call(ctx, op, payload)
}

// CallAsync queues op and returns. cb runs exactly once on the dispatcher
// goroutine unless an error is returned here.
func (d *Device) CallAsync(op protocol.Opcode, payload []byte, cb ResultFunc) error {
	return d.disp.callAsync(op, payload, cb)
}

// Invoke is Call or CallAsync selected by method. With Block, cb receives
// the result before Invoke returns.
func (d *Device) Invoke(ctx context.Context, method GetMethod, op protocol.Opcode, payload []byte, cb ResultFunc) error {
	if method == NonBlock {
		return d.CallAsync(op, payload, cb)
	}
	resp, err := d.Call(ctx, op, payload)
	if cb != nil {
		cb(resp, err)
	}
	return err
}

// PendingCommands returns the number of queued and in-flight commands.
func (d *Device) PendingCommands() int { return d.disp.pendingCount() }

// Status returns the cached status snapshot without I/O.
func (d *Device) Status() Snapshot { return d.cache.Read() }

// StatusCache exposes refresh control.
func (d *Device) StatusCache() *StatusCache { return d.cache }

// EnableStatusPush installs cb and turns status pushes on or off.
func (d *Device) EnableStatusPush(cb StatusFunc, enabled bool) {
	d.cache.EnablePush(cb, enabled)
}

// SetEventCallback installs the single event subscriber. nil removes it.
func (d *Device) SetEventCallback(cb EventFunc) { d.events.set(cb) }

// Transfers returns the file transfer manager.
func (d *Device) Transfers() *TransferManager { return d.transfers }

func (d *Device) setName(name string) {
	d.mu.Lock()
	d.info.Name = name
	d.mu.Unlock()
}
