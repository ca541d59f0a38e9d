// Package transport defines the contract between the device core and the
// physical links that reach a camera.
//
// A Transport belongs to one family (USB, network, BLE or the in-memory
// loopback). It enumerates candidate endpoints on demand and opens a Channel
// to one endpoint. Inbound frames and permanent link loss are reported to a
// Sink supplied at open time.
//
// Delivery contract:
//   - Sink.Deliver is called once per inbound frame, in wire order, from a
//     single goroutine owned by the channel.
//   - Sink.Lost is called at most once, after the last Deliver, and only when
//     the link fails on its own. A local Close never produces Lost.
//   - Channel.Close is idempotent and safe to call from any goroutine,
//     including from inside a Sink callback.
//
// Byte-level framing is each implementation's concern; the core only sees
// protocol.Frame values.
package transport
