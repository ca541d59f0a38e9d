// Package control is the command and view layer shared by the HTTP API and
// the MQTT bridge.
//
// Commands are addressed by name ("set_zoom", "gimbal_reset", ...) with JSON
// parameters, so both surfaces accept the same payloads:
//
//	{"id": "c-1", "command": "set_zoom", "params": {"ratio": 40}}
//
// Views are the JSON shapes published for devices, status snapshots, events
// and transfers.
package control
