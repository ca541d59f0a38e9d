package transport

import (
	"context"
	"fmt"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// Family names a transport family. Each family is scanned by its own
// discovery loop.
type Family string

// Supported families.
const (
	FamilyUSB      Family = "usb"
	FamilyNetwork  Family = "network"
	FamilyBLE      Family = "ble"
	FamilyLoopback Family = "loopback"
)

// ParseFamily validates a family name from configuration or an API path.
func ParseFamily(s string) (Family, error) {
	switch f := Family(s); f {
	case FamilyUSB, FamilyNetwork, FamilyBLE, FamilyLoopback:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFamily, s)
	}
}

// Endpoint is one reachable candidate device as seen by a transport.
// Address is unique within the family and stable for as long as the device
// stays attached (serial port path, host:port, BLE MAC).
type Endpoint struct {
	Family  Family
	Address string
	Name    string
	Meta    map[string]string
}

// Key identifies the endpoint across discovery passes.
func (e Endpoint) Key() string {
	return string(e.Family) + "|" + e.Address
}

func (e Endpoint) String() string {
	if e.Name != "" {
		return fmt.Sprintf("%s:%s (%s)", e.Family, e.Address, e.Name)
	}
	return fmt.Sprintf("%s:%s", e.Family, e.Address)
}

// Sink receives inbound traffic for one channel.
type Sink interface {
	Deliver(f protocol.Frame)
	Lost(err error)
}

// Channel is an open link to one device.
type Channel interface {
	// Send writes one frame. It blocks until the frame is handed to the OS
	// or ctx is done.
	Send(ctx context.Context, f protocol.Frame) error
	Endpoint() Endpoint
	Close() error
}

// Enumerator lists the endpoints currently visible for a family.
type Enumerator interface {
	Family() Family
	Enumerate(ctx context.Context) ([]Endpoint, error)
}

// Transport enumerates endpoints and opens channels to them.
type Transport interface {
	Enumerator
	Open(ctx context.Context, ep Endpoint, sink Sink) (Channel, error)
}

// LivenessTracker is implemented by transports whose channels detect a
// dead peer on their own, for example by heartbeat. For such a family a
// discovery pass that misses an endpoint is not evidence of loss.
type LivenessTracker interface {
	TracksLiveness() bool
}

// TracksLiveness reports whether t implements LivenessTracker and returns
// true.
func TracksLiveness(t Enumerator) bool {
	lt, ok := t.(LivenessTracker)
	return ok && lt.TracksLiveness()
}

// SinkFuncs adapts two functions to the Sink interface. Nil fields are
// ignored.
type SinkFuncs struct {
	OnFrame func(protocol.Frame)
	OnLost  func(error)
}

// Deliver implements Sink.
func (s SinkFuncs) Deliver(f protocol.Frame) {
	if s.OnFrame != nil {
		s.OnFrame(f)
	}
}

// Lost implements Sink.
func (s SinkFuncs) Lost(err error) {
	if s.OnLost != nil {
		s.OnLost(err)
	}
}
