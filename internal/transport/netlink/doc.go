// Package netlink reaches cameras over the local network.
//
// Discovery broadcasts a device-info request as one UDP datagram and
// collects the replies for a listen window. Each reply names a camera whose
// TCP control port is then dialled with exponential backoff. Frames on the
// TCP link use the same codec as every other family.
//
// A heartbeat frame is sent on every open link at a configurable interval.
// A link that stays silent for three intervals is reported lost with
// transport.ErrHeartbeatLost.
package netlink
