package transport

import "errors"

// Transport errors shared by every implementation.
var (
	// ErrClosed is returned by Send after the channel is closed.
	ErrClosed = errors.New("transport: channel closed")

	// ErrUnknownFamily is returned for an unrecognised family name.
	ErrUnknownFamily = errors.New("transport: unknown family")

	// ErrEndpointGone is returned by Open when the endpoint disappeared
	// between enumeration and open.
	ErrEndpointGone = errors.New("transport: endpoint not present")

	// ErrHeartbeatLost is reported through Sink.Lost when a link stops
	// answering heartbeats.
	ErrHeartbeatLost = errors.New("transport: heartbeat lost")
)
