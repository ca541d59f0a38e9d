package influxdb

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

type recordingWriter struct {
	mu      sync.Mutex
	lines   []string
	flushes int
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.lines = append(w.lines, write.PointToLineProtocol(p, time.Second))
	w.mu.Unlock()
}

func (w *recordingWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func (w *recordingWriter) count(measurement string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, l := range w.lines {
		if strings.HasPrefix(l, measurement+",") {
			n++
		}
	}
	return n
}

func newTestClient(keepalive time.Duration) (*Client, *recordingWriter, *time.Time) {
	w := &recordingWriter{}
	c := newClient(w, keepalive)
	c.connected = true
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	return c, w, &now
}

func TestWriteStatusThinsRepeats(t *testing.T) {
	c, w, now := newTestClient(time.Minute)
	zoom := func(v int) map[string]any { return map[string]any{"zoom": v, "charging": true} }

	steps := []struct {
		name    string
		sn      string
		fields  map[string]any
		advance time.Duration
		want    int
	}{
		{"first sample", "SN1", zoom(10), 0, 1},
		{"unchanged", "SN1", zoom(10), 5 * time.Second, 1},
		{"other camera", "SN2", zoom(10), 0, 2},
		{"changed", "SN1", zoom(20), 5 * time.Second, 3},
		{"unchanged again", "SN1", zoom(20), 5 * time.Second, 3},
		{"keepalive due", "SN1", zoom(20), time.Minute, 4},
		{"empty fields", "SN1", map[string]any{}, 0, 4},
	}
	for _, s := range steps {
		*now = now.Add(s.advance)
		c.WriteStatus(s.sn, "tail_air", s.fields)
		if got := w.count(MeasurementStatus); got != s.want {
			t.Fatalf("%s: status points = %d, want %d", s.name, got, s.want)
		}
	}
	if skipped, _ := c.Stats(); skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
}

func TestWriteStatusKeepsOwnCopy(t *testing.T) {
	c, w, now := newTestClient(time.Minute)
	fields := map[string]any{"zoom": 10}
	c.WriteStatus("SN1", "tiny_2", fields)

	fields["zoom"] = 30
	*now = now.Add(time.Second)
	c.WriteStatus("SN1", "tiny_2", fields)
	if got := w.count(MeasurementStatus); got != 2 {
		t.Errorf("status points = %d, want 2 after caller mutated its map", got)
	}
}

func TestTransfersAndEventsAlwaysWritten(t *testing.T) {
	c, w, _ := newTestClient(time.Minute)
	for range 3 {
		c.WriteTransfer("SN1", "image0", "download", 0)
		c.WriteEvent("SN1", "info", 2001)
	}
	if got := w.count(MeasurementTransfer); got != 3 {
		t.Errorf("transfer points = %d, want 3", got)
	}
	if got := w.count(MeasurementEvent); got != 3 {
		t.Errorf("event points = %d, want 3", got)
	}
}

func TestCloseFlushesOnceAndDropsLaterWrites(t *testing.T) {
	c, w, _ := newTestClient(0)
	if c.keepalive != defaultKeepalive {
		t.Errorf("keepalive = %s, want default", c.keepalive)
	}

	c.WriteEvent("SN1", "tip", 3001)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	c.Close()
	c.WriteEvent("SN1", "tip", 3002)
	c.Flush()

	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}
	if got := w.count(MeasurementEvent); got != 1 {
		t.Errorf("event points = %d, want 1", got)
	}
}

func TestWatchErrors(t *testing.T) {
	c, _, _ := newTestClient(time.Minute)
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	errs <- ErrConnectionFailed
	close(errs)
	c.watchErrors(errs)

	if err := <-got; err != ErrConnectionFailed {
		t.Errorf("callback error = %v", err)
	}
	if _, failed := c.Stats(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}
