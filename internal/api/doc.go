// Package api implements the HTTP REST API and WebSocket server for camlinkd.
//
// This package provides:
//   - REST endpoints for connected cameras, cached status, commands,
//     status refresh control and file transfers
//   - Discovery control per transport family and the audit log
//   - WebSocket hub for real-time device events
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// Handlers talk to devices directly through the registry; there is no
// intermediate bus. Commands block until the camera answers, so a slow or
// busy camera surfaces as a 503 or 504 rather than a queued job. The bridge
// package owns the device callbacks and feeds the WebSocket hub.
//
// # Event stream
//
// /api/v1/ws carries the bridge channels device.changed, device.status,
// device.event and device.transfer. A client subscribes with
//
//	{"type":"subscribe","payload":{"channels":["device.status"],"sn":["SN1"]}}
//
// and receives {"type":"event","channel":...,"sn":...,"payload":...}
// frames. Leaving out "sn" follows every camera. Events for a client whose
// buffer is full are dropped.
//
// # Security
//
// Every route except /api/v1/health and /metrics requires a bearer token
// whose role grants the route's permission (see package auth). WebSocket
// connections use single-use tickets to prevent token leakage in URLs.
//
// # Graceful Degradation
//
// The server operates without the audit store or the bridge; the routes
// that need them answer 503.
package api
