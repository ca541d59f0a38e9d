// Package protocol defines the logical frame model shared by every camlink
// transport, the opcode catalog, and the binary frame codec used on stream
// transports (network and serial).
//
// # Frame Model
//
// Everything exchanged with a camera is a Frame:
//
//	Request    host -> device, carries an opcode and a sequence number
//	Response   device -> host, echoes the request's sequence number
//	StatusTick device -> host, periodic heartbeat of the status stream
//	Event      device -> host, unsolicited notification (Code = event code)
//	Heartbeat  either direction, link liveness only
//
// # Wire Format
//
//	+--------+-----+------+-----+--------+------+--------+--------+---------+-------+
//	| magic  | ver | kind | seq | opcode | code | length | crc16  | payload | crc32 |
//	| 2      | 1   | 1    | 4   | 2      | 4    | 4      | 2      | length  | 4     |
//	+--------+-----+------+-----+--------+------+--------+--------+---------+-------+
//
// All integers are big-endian. The header checksum is CRC16-MODBUS over the
// first 18 bytes; the trailer is CRC32-IEEE over the payload.
//
// Thread Safety: all functions are pure and safe for concurrent use.
package protocol
