package device

import (
	"sync"
	"time"
)

// Snapshot is a cached HardwareStatus with its receipt time. A zero
// ReceivedAt means no fetch has succeeded yet and Status holds the layout
// default.
type Snapshot struct {
	Status     HardwareStatus
	ReceivedAt time.Time
}

// Valid reports whether the snapshot came from the device.
func (s Snapshot) Valid() bool { return !s.ReceivedAt.IsZero() }

// StatusFunc receives each successfully refreshed snapshot.
type StatusFunc func(Snapshot)

// fetchFunc issues one asynchronous status fetch.
type fetchFunc func(cb ResultFunc) error

// StatusCache holds the latest HardwareStatus of a device.
//
// Refresh is driven by the device's status ticks, not by wall-clock time.
// Each tick decrements a counter; when it reaches zero a status fetch is
// issued and the counter is reset to the refresh period.
//
// Thread Safety:
//   - Read never blocks on I/O and may run concurrently with a refresh.
//   - Tick is called from the I/O goroutine; fetch results arrive on the
//     dispatcher goroutine.
type StatusCache struct {
	layout  Layout
	fetch   fetchFunc
	logger  Logger
	metrics Metrics
	now     func() time.Time

	mu   sync.RWMutex
	snap Snapshot

	ctlMu    sync.Mutex
	period   int
	counter  int
	reload   bool
	fetching bool

	pushMu  sync.RWMutex
	push    StatusFunc
	enabled bool
}

func newStatusCache(layout Layout, period int, fetch fetchFunc, opts *Options) *StatusCache {
	return &StatusCache{
		layout:  layout,
		fetch:   fetch,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     time.Now,
		snap:    Snapshot{Status: DefaultStatus(layout)},
		period:  period,
		counter: period,
	}
}

// Layout returns the fixed layout of this cache.
func (c *StatusCache) Layout() Layout { return c.layout }

// Read returns the last cached snapshot. It never triggers a fetch.
func (c *StatusCache) Read() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// SetRefreshPeriod changes the countdown target. The running countdown is
// not restarted: on the next tick it is clamped to n if it is longer, and
// every later reset uses n. Values below 1 are ignored.
func (c *StatusCache) SetRefreshPeriod(n int) {
	if n < 1 {
		return
	}
	c.ctlMu.Lock()
	c.period = n
	c.reload = true
	c.ctlMu.Unlock()
}

// RefreshPeriod returns the countdown target.
func (c *StatusCache) RefreshPeriod() int {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()
	return c.period
}

// Counter returns the ticks left before the next fetch.
func (c *StatusCache) Counter() int {
	c.ctlMu.Lock()
	defer c.ctlMu.Unlock()
	return c.counter
}

// EnablePush installs cb and turns delivery on or off. Disabling keeps the
// refresh running. A nil cb with enabled set keeps the previous callback.
func (c *StatusCache) EnablePush(cb StatusFunc, enabled bool) {
	c.pushMu.Lock()
	if cb != nil {
		c.push = cb
	}
	c.enabled = enabled
	c.pushMu.Unlock()
}

// PushEnabled reports whether snapshots are delivered.
func (c *StatusCache) PushEnabled() bool {
	c.pushMu.RLock()
	defer c.pushMu.RUnlock()
	return c.enabled && c.push != nil
}

// Tick counts down one status tick and starts a fetch when due.
func (c *StatusCache) Tick() {
	c.ctlMu.Lock()
	if c.reload {
		c.reload = false
		if c.counter > c.period {
			c.counter = c.period
		}
	}
	c.counter--
	due := c.counter <= 0
	if due {
		c.counter = c.period
	}
	c.ctlMu.Unlock()

	if due {
		c.startFetch()
	}
}

// RefreshNow fetches immediately without touching the countdown. It returns
// false if a fetch is already in flight or could not be queued.
func (c *StatusCache) RefreshNow() bool {
	return c.startFetch()
}

func (c *StatusCache) startFetch() bool {
	c.ctlMu.Lock()
	if c.fetching {
		c.ctlMu.Unlock()
		return false
	}
	c.fetching = true
	c.ctlMu.Unlock()

	if err := c.fetch(c.onFetched); err != nil {
		c.finishFetch()
		c.metrics.StatusRefreshed(false)
		c.logger.Debug("status fetch not queued", "error", err)
		return false
	}
	return true
}

func (c *StatusCache) finishFetch() {
	c.ctlMu.Lock()
	c.fetching = false
	c.ctlMu.Unlock()
}

func (c *StatusCache) onFetched(resp Response, err error) {
	defer c.finishFetch()

	if err != nil {
		c.metrics.StatusRefreshed(false)
		c.logger.Debug("status fetch failed", "error", err)
		return
	}
	status, err := ParseStatus(c.layout, resp.Payload)
	if err != nil {
		c.metrics.StatusRefreshed(false)
		c.logger.Warn("status parse failed", "error", err)
		return
	}

	snap := Snapshot{Status: status, ReceivedAt: c.now()}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	c.metrics.StatusRefreshed(true)

	c.pushMu.RLock()
	cb, enabled := c.push, c.enabled
	c.pushMu.RUnlock()
	if enabled && cb != nil {
		cb(snap)
	}
}
