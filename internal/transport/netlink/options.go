package netlink

import "time"

// Defaults applied by New.
const (
	DefaultDiscoveryPort     = 7788
	DefaultDevicePort        = 7789
	DefaultBroadcastAddress  = "255.255.255.255"
	DefaultListenWindow      = time.Second
	DefaultHeartbeatInterval = 3 * time.Second
	DefaultDialTimeout       = 2 * time.Second

	// missedHeartbeats is how many intervals a link may stay silent.
	missedHeartbeats = 3

	// dialAttempts bounds the backoff retries of one Open.
	dialAttempts = 3

	writeTimeout = 2 * time.Second
	maxDatagram  = 2048
)

// Logger defines the logging interface used by the transport.
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

// Options configures a Transport. Zero fields take the defaults above.
type Options struct {
	// DiscoveryPort is the UDP port cameras listen on for probes.
	DiscoveryPort int

	// DevicePort is the TCP control port of every camera.
	DevicePort int

	// BroadcastAddress receives the discovery probe.
	BroadcastAddress string

	// StaticHosts are probed directly as well, for networks that drop
	// broadcasts.
	StaticHosts []string

	ListenWindow      time.Duration
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration

	// AllowList restricts discovery to the listed hosts, addresses or
	// serial numbers. Empty allows every camera.
	AllowList []string

	Logger Logger
}

func (o *Options) applyDefaults() {
	if o.DiscoveryPort == 0 {
		o.DiscoveryPort = DefaultDiscoveryPort
	}
	if o.DevicePort == 0 {
		o.DevicePort = DefaultDevicePort
	}
	if o.BroadcastAddress == "" {
		o.BroadcastAddress = DefaultBroadcastAddress
	}
	if o.ListenWindow <= 0 {
		o.ListenWindow = DefaultListenWindow
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
}
