package device

import (
	"time"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// Defaults applied by Open.
const (
	// DefaultQueueDepth bounds the number of commands waiting per device.
	DefaultQueueDepth = 32

	// DefaultRefreshPeriod is the number of status ticks between status
	// fetches.
	DefaultRefreshPeriod = 100

	// DefaultChunkSize is the transfer chunk size.
	DefaultChunkSize = 16 << 10
)

// Logger defines the logging interface used by a Device.
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

// Metrics receives counters from the device core. The Prometheus adapter
// lives in internal/infrastructure/metrics.
type Metrics interface {
	CommandCompleted(op protocol.Opcode, code ErrorCode, latency time.Duration)
	StatusRefreshed(ok bool)
	TransferFinished(dir Direction, code int)
	EventReceived(cat EventCategory)
}

type noopMetrics struct{}

func (noopMetrics) CommandCompleted(protocol.Opcode, ErrorCode, time.Duration) {}
func (noopMetrics) StatusRefreshed(bool)                                       {}
func (noopMetrics) TransferFinished(Direction, int)                            {}
func (noopMetrics) EventReceived(EventCategory)                                {}

// Options configures a Device. The zero value is usable.
type Options struct {
	Logger  Logger
	Metrics Metrics

	// QueueDepth bounds queued commands. Default: 32.
	QueueDepth int

	// Timeouts overrides the per-opcode response timeout.
	Timeouts map[protocol.Opcode]time.Duration

	// DefaultTimeout replaces protocol.DefaultTimeout for every opcode
	// that has no catalog-specific timeout.
	DefaultTimeout time.Duration

	// RefreshPeriod is the initial status countdown. Default: 100 ticks.
	RefreshPeriod int

	// ChunkSize is the transfer chunk size. Default: 16 KiB.
	ChunkSize int

	// OnLost is called once, after teardown, when the transport reports
	// permanent loss. It is not called after Close.
	OnLost func(d *Device, err error)
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = DefaultQueueDepth
	}
	if o.RefreshPeriod <= 0 {
		o.RefreshPeriod = DefaultRefreshPeriod
	}
	if o.ChunkSize <= 0 || o.ChunkSize > protocol.MaxChunkData {
		o.ChunkSize = DefaultChunkSize
	}
}

func (o *Options) timeout(op protocol.Opcode) time.Duration {
	if d, ok := o.Timeouts[op]; ok && d > 0 {
		return d
	}
	t := protocol.Timeout(op)
	if t == protocol.DefaultTimeout && o.DefaultTimeout > 0 {
		return o.DefaultTimeout
	}
	return t
}
