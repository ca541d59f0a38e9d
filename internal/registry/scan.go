package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/transport"
)

// scanner is the discovery state of one family.
type scanner struct {
	tr       transport.Transport
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}

	// passing is set while a discovery pass runs.
	passing atomic.Bool
}

func (s *scanner) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// stopLoop stops the loop if it runs and waits for it to exit.
func (s *scanner) stopLoop() bool {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return false
	}
	close(stop)
	<-done
	return true
}

func (r *Registry) lookup(f transport.Family) (*scanner, error) {
	sc, ok := r.scanners[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, f)
	}
	return sc, nil
}

// Start launches the discovery loop of every family. The loops stop when
// ctx is done; connected devices stay connected until Close.
func (r *Registry) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, f := range r.Families() {
		if err := r.StartScan(f); err != nil {
			return err
		}
	}
	context.AfterFunc(ctx, func() {
		for _, f := range r.Families() {
			_ = r.StopScan(f)
		}
	})
	return nil
}

// StartScan launches the background discovery loop for family. The first
// pass runs immediately.
//
// Returns ErrScanBusy if the loop is already running.
func (r *Registry) StartScan(f transport.Family) error {
	sc, err := r.lookup(f)
	if err != nil {
		return err
	}
	if r.ctx.Err() != nil {
		return ErrClosed
	}

	sc.mu.Lock()
	if sc.stop != nil {
		sc.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScanBusy, f)
	}
	stop, done := make(chan struct{}), make(chan struct{})
	sc.stop, sc.done = stop, done
	sc.mu.Unlock()

	r.logger.Info("discovery started", "family", string(f), "interval", sc.interval.String())
	go r.loop(sc, stop, done)
	return nil
}

// StopScan stops the discovery loop for family and waits for it to exit.
// Devices already connected stay connected.
func (r *Registry) StopScan(f transport.Family) error {
	sc, err := r.lookup(f)
	if err != nil {
		return err
	}
	if !sc.stopLoop() {
		return fmt.Errorf("%w: %s", ErrScanNotRunning, f)
	}
	r.logger.Info("discovery stopped", "family", string(f))
	return nil
}

// Scanning reports whether the loop for family runs.
func (r *Registry) Scanning(f transport.Family) bool {
	sc, err := r.lookup(f)
	return err == nil && sc.running()
}

// ScanNow runs one discovery pass for family on the calling goroutine.
//
// Returns ErrScanBusy if a pass for the family is already running, or the
// enumeration error. Handshake failures are not errors.
func (r *Registry) ScanNow(ctx context.Context, f transport.Family) error {
	sc, err := r.lookup(f)
	if err != nil {
		return err
	}
	if r.ctx.Err() != nil {
		return ErrClosed
	}
	return r.pass(ctx, sc)
}

func (r *Registry) loop(sc *scanner, stop, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		if err := r.pass(ctx, sc); err != nil && ctx.Err() == nil {
			r.logger.Debug("discovery pass failed", "family", string(sc.tr.Family()), "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pass runs one enumerate, diff, handshake cycle.
func (r *Registry) pass(ctx context.Context, sc *scanner) error {
	family := sc.tr.Family()
	if !sc.passing.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrScanBusy, family)
	}
	defer sc.passing.Store(false)

	eps, err := sc.tr.Enumerate(ctx)
	if err != nil {
		r.metrics.ScanCompleted(family, false)
		return fmt.Errorf("enumerate %s: %w", family, err)
	}

	seen := make(map[string]bool, len(eps))
	for _, ep := range eps {
		seen[ep.Key()] = true
	}

	// Vanished endpoints first, so a device that moved is freed before it
	// reappears under its new endpoint. Families that track liveness on
	// the channel report loss through onLost instead.
	if !transport.TracksLiveness(sc.tr) {
		for _, d := range r.All() {
			ep := d.Endpoint()
			if ep.Family == family && !seen[ep.Key()] {
				r.detach(d)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxConcurrentHandshakes)
	for _, ep := range eps {
		if d, bound := r.boundTo(ep.Key()); bound && d.Alive() {
			continue
		}
		g.Go(func() error {
			r.attach(gctx, sc, ep)
			return nil
		})
	}
	_ = g.Wait()

	r.metrics.ScanCompleted(family, true)
	return nil
}

// attach opens ep and inserts the device. Every failure is silent; the
// endpoint is retried on the next pass.
func (r *Registry) attach(ctx context.Context, sc *scanner, ep transport.Endpoint) {
	if err := r.limiter.Wait(ctx); err != nil {
		return
	}

	hctx, cancel := context.WithTimeout(ctx, r.opts.HandshakeTimeout)
	defer cancel()

	opts := r.opts.Device
	opts.OnLost = r.onLost
	d, err := device.Open(hctx, sc.tr, ep, opts)
	if err != nil {
		r.metrics.HandshakeFailed(ep.Family)
		r.logger.Debug("handshake failed", "endpoint", ep.String(), "error", err)
		return
	}

	if !r.insert(d) {
		if d.Alive() {
			r.logger.Warn("duplicate device rejected", "sn", d.SN(), "uuid", d.UUID().String(), "endpoint", ep.String())
		} else {
			r.logger.Debug("device lost before it was listed", "sn", d.SN(), "endpoint", ep.String())
		}
		_ = d.Close()
		return
	}
	r.logger.Info("device connected", "sn", d.SN(), "product", d.Product().String(), "endpoint", ep.String())
}

// detach tears down a device whose endpoint vanished.
func (r *Registry) detach(d *device.Device) {
	_ = d.Close()
	if r.remove(d) {
		r.logger.Info("device disconnected", "sn", d.SN(), "endpoint", d.Endpoint().String(), "reason", "endpoint vanished")
	}
}
