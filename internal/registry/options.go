package registry

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/transport"
)

// Default scan intervals per family.
var defaultIntervals = map[transport.Family]time.Duration{
	transport.FamilyUSB:      time.Second,
	transport.FamilyNetwork:  3 * time.Second,
	transport.FamilyBLE:      5 * time.Second,
	transport.FamilyLoopback: 500 * time.Millisecond,
}

const (
	defaultHandshakeTimeout = 5 * time.Second
	defaultMaxHandshakes    = 4
	defaultHandshakeRate    = rate.Limit(20)
	defaultHandshakeBurst   = 8
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics receives discovery counters.
type Metrics interface {
	ScanCompleted(family transport.Family, ok bool)
	HandshakeFailed(family transport.Family)
	DevicesConnected(family transport.Family, n int)
}

type noopMetrics struct{}

func (noopMetrics) ScanCompleted(transport.Family, bool)   {}
func (noopMetrics) HandshakeFailed(transport.Family)       {}
func (noopMetrics) DevicesConnected(transport.Family, int) {}

// Options configures a Registry.
type Options struct {
	// Transports lists one transport per family to scan.
	Transports []transport.Transport

	// Intervals overrides the per-family scan interval.
	Intervals map[transport.Family]time.Duration

	// Device is the template for every opened device. OnLost is owned by
	// the registry and overwritten.
	Device device.Options

	// HandshakeTimeout bounds open plus identity handshake. Default: 5s.
	HandshakeTimeout time.Duration

	// MaxConcurrentHandshakes bounds handshakes within one pass. Default: 4.
	MaxConcurrentHandshakes int

	// HandshakeRate and HandshakeBurst throttle handshake attempts across
	// all families. Default: 20/s, burst 8.
	HandshakeRate  rate.Limit
	HandshakeBurst int

	Logger  Logger
	Metrics Metrics
}

func (o *Options) applyDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.MaxConcurrentHandshakes <= 0 {
		o.MaxConcurrentHandshakes = defaultMaxHandshakes
	}
	if o.HandshakeRate <= 0 {
		o.HandshakeRate = defaultHandshakeRate
	}
	if o.HandshakeBurst <= 0 {
		o.HandshakeBurst = defaultHandshakeBurst
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
}

func (o *Options) interval(f transport.Family) time.Duration {
	if d, ok := o.Intervals[f]; ok && d > 0 {
		return d
	}
	if d, ok := defaultIntervals[f]; ok {
		return d
	}
	return time.Second
}
