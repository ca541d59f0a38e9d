// Package ble reaches cameras over Bluetooth Low Energy.
//
// Enumerate runs one advertisement scan for a fixed window and reports the
// peripherals whose local name starts with the configured prefix. Open
// connects, finds the control service and subscribes to its notify
// characteristic. Inbound notifications are reassembled into frames by the
// shared stream codec; outbound frames are split into MTU-sized writes
// without response.
//
// The radio sits behind the Adapter interface. NewAdapter wraps the host
// adapter from tinygo.org/x/bluetooth.
package ble
