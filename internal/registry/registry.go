package registry

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/transport"
)

// Registry is the live device set plus the discovery machinery that fills
// it. Create one with New; there is no package-level instance.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Lookups take a read lock only and never wait for I/O.
type Registry struct {
	opts    Options
	logger  Logger
	metrics Metrics
	limiter *rate.Limiter
	notify  *notifier

	scanners map[transport.Family]*scanner

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	byUUID     map[device.UUID]*device.Device
	bySN       map[string]*device.Device
	byEndpoint map[string]*device.Device
	closed     bool
}

// New builds a registry over opts.Transports. Discovery does not start
// until Start or StartScan is called.
func New(opts Options) *Registry {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		opts:       opts,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		limiter:    rate.NewLimiter(opts.HandshakeRate, opts.HandshakeBurst),
		notify:     newNotifier(opts.Logger),
		scanners:   make(map[transport.Family]*scanner, len(opts.Transports)),
		ctx:        ctx,
		cancel:     cancel,
		byUUID:     make(map[device.UUID]*device.Device),
		bySN:       make(map[string]*device.Device),
		byEndpoint: make(map[string]*device.Device),
	}
	for _, tr := range opts.Transports {
		r.scanners[tr.Family()] = &scanner{tr: tr, interval: opts.interval(tr.Family())}
	}
	return r
}

// Families returns the families with a transport, sorted.
func (r *Registry) Families() []transport.Family {
	out := make([]transport.Family, 0, len(r.scanners))
	for f := range r.scanners {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetChangeCallback installs the single change subscriber. nil removes it.
// The callback runs on the registry's notifier goroutine.
func (r *Registry) SetChangeCallback(cb ChangeFunc) {
	r.notify.setCallback(cb)
}

// All returns a point-in-time snapshot of live devices sorted by serial
// number.
func (r *Registry) All() []*device.Device {
	r.mu.RLock()
	out := make([]*device.Device, 0, len(r.byUUID))
	for _, d := range r.byUUID {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SN() < out[j].SN() })
	return out
}

// ByUUID looks up a device by its canonical key.
func (r *Registry) ByUUID(u device.UUID) (*device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byUUID[u]
	return d, ok
}

// BySN looks up a device by serial number.
func (r *Registry) BySN(sn string) (*device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.bySN[sn]
	return d, ok
}

// ByName returns the first device, in serial number order, whose current
// name is name. Names are mutable and not unique.
func (r *Registry) ByName(name string) (*device.Device, bool) {
	for _, d := range r.All() {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Count returns the number of live devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUUID)
}

// Contains reports whether a device with u is live.
func (r *Registry) Contains(u device.UUID) bool {
	_, ok := r.ByUUID(u)
	return ok
}

// insert adds d unless d is already dead or a live device holds its UUID.
// It reports whether d was inserted. A device that dies after insert is
// removed by onLost.
func (r *Registry) insert(d *device.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !d.Alive() {
		return false
	}
	if existing, ok := r.byUUID[d.UUID()]; ok {
		if existing.Alive() {
			return false
		}
		// The old binding is dead but its loss has not been processed yet.
		r.removeLocked(existing)
	}

	r.byUUID[d.UUID()] = d
	r.bySN[d.SN()] = d
	r.byEndpoint[d.Endpoint().Key()] = d
	r.notify.push(d.SN(), true)
	r.reportCountLocked(d.Endpoint().Family)
	return true
}

// remove drops d if it is still the bound device for its UUID.
func (r *Registry) remove(d *device.Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUUID[d.UUID()] != d {
		return false
	}
	r.removeLocked(d)
	return true
}

// removeLocked fires the disconnect and then drops every index entry.
func (r *Registry) removeLocked(d *device.Device) {
	r.notify.push(d.SN(), false)
	delete(r.byUUID, d.UUID())
	if r.bySN[d.SN()] == d {
		delete(r.bySN, d.SN())
	}
	if r.byEndpoint[d.Endpoint().Key()] == d {
		delete(r.byEndpoint, d.Endpoint().Key())
	}
	r.reportCountLocked(d.Endpoint().Family)
}

func (r *Registry) reportCountLocked(f transport.Family) {
	n := 0
	for _, d := range r.byUUID {
		if d.Endpoint().Family == f {
			n++
		}
	}
	r.metrics.DevicesConnected(f, n)
}

// boundTo returns the device bound to an endpoint key.
func (r *Registry) boundTo(key string) (*device.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byEndpoint[key]
	return d, ok
}

// onLost is installed as every device's OnLost hook. The device is already
// dead and its pending work resolved.
func (r *Registry) onLost(d *device.Device, err error) {
	if r.remove(d) {
		r.logger.Info("device disconnected", "sn", d.SN(), "endpoint", d.Endpoint().String(), "error", err)
	}
}

// Close stops every scan loop, tears down every device, delivers the
// resulting disconnects and stops the notifier.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	for _, sc := range r.scanners {
		sc.stopLoop()
	}

	for _, d := range r.All() {
		_ = d.Close()
		r.remove(d)
	}
	r.notify.close()
	return nil
}
