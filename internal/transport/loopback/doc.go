// Package loopback provides an in-memory transport whose endpoints are
// simulated cameras.
//
// A SimDevice answers the core opcode catalog the way firmware does: device
// info, status snapshots, run status, zoom, gimbal, AI mode and the file
// transfer exchange. Tests and the daemon's simulation mode drive it with
// Tick, EmitEvent, SetStatus and Hub.Unplug.
package loopback
