package device

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// manualFetch captures fetch requests so a test can answer them.
type manualFetch struct {
	mu      sync.Mutex
	pending []ResultFunc
	err     error
}

func (m *manualFetch) fetch(cb ResultFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pending = append(m.pending, cb)
	return nil
}

func (m *manualFetch) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *manualFetch) answer(resp Response, err error) {
	m.mu.Lock()
	cb := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	cb(resp, err)
}

func newTestCache(period int) (*StatusCache, *manualFetch) {
	opts := Options{}
	opts.applyDefaults()
	f := &manualFetch{}
	return newStatusCache(LayoutMeet, period, f.fetch, &opts), f
}

func meetRecord(zoom uint16) []byte {
	b, _ := (&MeetStatus{Zoom: zoom, DevStatus: 1}).MarshalBinary()
	return b
}

func TestCacheCountdown(t *testing.T) {
	c, f := newTestCache(3)

	snap := c.Read()
	if snap.Valid() || snap.Status.Layout() != LayoutMeet {
		t.Fatalf("initial snapshot = %+v", snap)
	}

	c.Tick()
	c.Tick()
	if f.count() != 0 || c.Counter() != 1 {
		t.Fatalf("fetches=%d counter=%d after 2 ticks", f.count(), c.Counter())
	}
	c.Tick()
	if f.count() != 1 || c.Counter() != 3 {
		t.Fatalf("fetches=%d counter=%d after 3 ticks", f.count(), c.Counter())
	}

	f.answer(Response{Payload: meetRecord(40)}, nil)
	snap = c.Read()
	if !snap.Valid() || snap.Status.ZoomRatio() != 40 {
		t.Errorf("snapshot after refresh = %+v", snap)
	}
}

func TestCacheFailedRefreshKeepsSnapshot(t *testing.T) {
	c, f := newTestCache(1)
	var pushes int
	c.EnablePush(func(Snapshot) { pushes++ }, true)

	c.Tick()
	f.answer(Response{Payload: meetRecord(10)}, nil)
	first := c.Read()

	c.Tick()
	f.answer(Response{}, &CommError{Code: CodeTimeout})
	c.Tick()
	f.answer(Response{Payload: []byte{1, 2}}, nil) // too short to parse

	if got := c.Read(); got.ReceivedAt != first.ReceivedAt || got.Status.ZoomRatio() != 10 {
		t.Errorf("snapshot changed after failures: %+v", got)
	}
	if pushes != 1 {
		t.Errorf("pushes = %d, want 1", pushes)
	}
}

func TestCacheOneFetchInFlight(t *testing.T) {
	c, f := newTestCache(1)
	c.Tick()
	c.Tick()
	c.Tick()
	if f.count() != 1 {
		t.Fatalf("fetches in flight = %d, want 1", f.count())
	}
	if c.RefreshNow() {
		t.Error("RefreshNow() = true while a fetch is in flight")
	}
	f.answer(Response{Payload: meetRecord(1)}, nil)
	if !c.RefreshNow() || f.count() != 1 {
		t.Error("RefreshNow() did not start a fetch")
	}
}

func TestCacheFetchNotQueued(t *testing.T) {
	c, f := newTestCache(1)
	f.err = &CommError{Code: CodeBusy, Err: ErrQueueFull}
	c.Tick()
	f.err = nil
	c.Tick()
	if f.count() != 1 {
		t.Errorf("fetches = %d; a failed enqueue must not block later fetches", f.count())
	}
}

func TestCacheSetRefreshPeriod(t *testing.T) {
	c, f := newTestCache(10)
	c.Tick() // counter 9

	c.SetRefreshPeriod(3)
	if c.Counter() != 9 {
		t.Errorf("counter changed before the next tick: %d", c.Counter())
	}
	c.Tick() // clamped to 3, then 2
	if c.Counter() != 2 {
		t.Errorf("counter = %d, want 2", c.Counter())
	}
	c.Tick()
	c.Tick()
	if f.count() != 1 || c.Counter() != 3 {
		t.Errorf("fetches=%d counter=%d", f.count(), c.Counter())
	}

	c.SetRefreshPeriod(0)
	if c.RefreshPeriod() != 3 {
		t.Errorf("period = %d after invalid update", c.RefreshPeriod())
	}
}

func TestCachePushToggle(t *testing.T) {
	c, f := newTestCache(1)
	var got []time.Time
	c.EnablePush(func(s Snapshot) { got = append(got, s.ReceivedAt) }, true)

	c.Tick()
	f.answer(Response{Payload: meetRecord(1)}, nil)

	c.EnablePush(nil, false)
	c.Tick()
	f.answer(Response{Payload: meetRecord(2)}, nil)

	if len(got) != 1 {
		t.Errorf("pushes = %d, want 1", len(got))
	}
	if c.Read().Status.ZoomRatio() != 2 {
		t.Error("refresh stopped while push was disabled")
	}

	c.EnablePush(nil, true)
	if !c.PushEnabled() {
		t.Error("re-enabling without a callback should keep the old one")
	}
}

func TestCacheFetchErrorIsNotFatal(t *testing.T) {
	c, f := newTestCache(1)
	f.err = errors.New("closed")
	c.Tick()
	if c.Read().Valid() {
		t.Error("snapshot populated after failed fetch")
	}
}
