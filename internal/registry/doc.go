// Package registry owns the set of live devices.
//
// A Registry runs one discovery loop per transport family. Each pass
// enumerates the family's endpoints, opens and handshakes every endpoint
// not yet bound to a live device, and tears down devices whose endpoint
// vanished. Handshake failures are retried silently on the next pass.
//
// Lookups by UUID, serial number or name never block on I/O and never see
// a half-constructed device: a device is inserted only after Open has
// returned it ready.
//
// Connect and disconnect transitions are delivered to a single change
// callback on a dedicated goroutine, in the order they happened.
package registry
