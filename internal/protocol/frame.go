package protocol

import "fmt"

// Kind identifies the role of a frame.
type Kind uint8

// Frame kinds.
const (
	KindRequest    Kind = 1
	KindResponse   Kind = 2
	KindStatusTick Kind = 3
	KindEvent      Kind = 4
	KindHeartbeat  Kind = 5
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindStatusTick:
		return "status_tick"
	case KindEvent:
		return "event"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Result codes a device places in Frame.Code of a response. They share the
// numbering of the communication error enumeration; a timeout is never sent
// on the wire.
const (
	CodeOK        int32 = 0
	CodeFailed    int32 = -1
	CodeRejected  int32 = -2
	CodeBusy      int32 = -4
	CodeBadLength int32 = -5
	CodeNotInited int32 = -6
	CodeWrongMode int32 = -7
)

// Frame is one logical message on a device link.
//
// Code is the device result code on responses (0 on success, negative
// values follow the communication error enumeration) and the event code on
// event frames. It is zero on requests.
type Frame struct {
	Kind    Kind
	Seq     uint32
	Opcode  Opcode
	Code    int32
	Payload []byte
}

// NewRequest builds a request frame.
func NewRequest(seq uint32, op Opcode, payload []byte) Frame {
	return Frame{Kind: KindRequest, Seq: seq, Opcode: op, Payload: payload}
}

// NewResponse builds a response frame answering req.
func NewResponse(req Frame, code int32, payload []byte) Frame {
	return Frame{Kind: KindResponse, Seq: req.Seq, Opcode: req.Opcode, Code: code, Payload: payload}
}

// NewEvent builds an unsolicited event frame.
func NewEvent(code int32, payload []byte) Frame {
	return Frame{Kind: KindEvent, Code: code, Payload: payload}
}

// String returns a compact description for logs. The payload is summarised
// by length only.
func (f Frame) String() string {
	return fmt.Sprintf("%s seq=%d op=%s code=%d len=%d", f.Kind, f.Seq, f.Opcode, f.Code, len(f.Payload))
}
