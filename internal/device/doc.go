// Package device implements one connected camera: the command dispatcher,
// the status cache, the file transfer manager and the event notifier that
// sit on top of a single transport channel.
//
// A Device is created by Open, which binds a transport channel and performs
// the identity handshake. From then on:
//
//   - Call and CallAsync send commands through a strict FIFO dispatcher with
//     one outstanding request at a time, correlated by sequence number.
//   - Every status tick from the device counts down the status cache, which
//     fetches a fresh HardwareStatus when the counter reaches zero.
//   - Transfers() drives downloads and uploads, one job per resource slot.
//   - Unsolicited events are categorised by code range and handed to the
//     event callback.
//
// Lifecycle:
//
// When the transport reports link loss the device is marked dead, every
// queued and in-flight request resolves with ErrLinkLost, every active
// transfer fails, and only then is the OnLost hook invoked. Close does the
// same without invoking the hook.
//
// Thread Safety:
//
// All exported methods are safe for concurrent use. Callbacks run on
// goroutines owned by the device and must return promptly. A NonBlock
// callback runs on the dispatcher goroutine and must not issue a blocking
// Call on the same device.
package device
