// Package serial reaches cameras attached over USB.
//
// A camera exposes a CDC-ACM serial port. Enumerate lists the system's
// serial ports, keeps the USB ones whose vendor ID is on the configured
// list and reports each port path as an endpoint address. Open configures
// the port (8N1 at the configured baud rate) and runs the frame codec over
// it.
package serial
