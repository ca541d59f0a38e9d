package device

import (
	"errors"
	"fmt"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// ErrorCode is the closed set of command result codes.
type ErrorCode int

// Command result codes. The values match the codes devices put on the wire.
const (
	CodeNone    ErrorCode = 0
	CodeOther   ErrorCode = -1
	CodeResp    ErrorCode = -2
	CodeTimeout ErrorCode = -3
	CodeBusy    ErrorCode = -4
	CodeLength  ErrorCode = -5
	CodeInited  ErrorCode = -6
	CodeMode    ErrorCode = -7
)

// String returns the code name.
func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeOther:
		return "other"
	case CodeResp:
		return "response"
	case CodeTimeout:
		return "timeout"
	case CodeBusy:
		return "busy"
	case CodeLength:
		return "length"
	case CodeInited:
		return "not_inited"
	case CodeMode:
		return "mode"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// codeFromWire maps a response code to an ErrorCode. Unknown non-zero codes
// count as a device error response.
func codeFromWire(code int32) ErrorCode {
	switch c := ErrorCode(code); c {
	case CodeNone, CodeOther, CodeResp, CodeBusy, CodeLength, CodeInited, CodeMode:
		return c
	default:
		return CodeResp
	}
}

// CommError is the error returned by every failed command.
//
// errors.Is(err, ErrCommTimeout) and friends match on Code alone, so callers
// can test the category without caring about the opcode or cause.
type CommError struct {
	Code   ErrorCode
	Opcode protocol.Opcode
	Err    error
}

func (e *CommError) Error() string {
	msg := "device: "
	if e.Opcode != 0 {
		msg += e.Opcode.String() + ": "
	}
	msg += e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommError) Unwrap() error { return e.Err }

// Is matches a bare sentinel (no opcode, no cause) with the same code.
func (e *CommError) Is(target error) bool {
	t, ok := target.(*CommError)
	if !ok || t.Opcode != 0 || t.Err != nil {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrCommOther   = &CommError{Code: CodeOther}
	ErrCommResp    = &CommError{Code: CodeResp}
	ErrCommTimeout = &CommError{Code: CodeTimeout}
	ErrCommBusy    = &CommError{Code: CodeBusy}
	ErrCommLength  = &CommError{Code: CodeLength}
	ErrCommInited  = &CommError{Code: CodeInited}
	ErrCommMode    = &CommError{Code: CodeMode}
)

// Lifecycle errors.
var (
	// ErrLinkLost is the cause carried by commands that were pending when the
	// transport reported permanent loss.
	ErrLinkLost = errors.New("device: link lost")

	// ErrClosed is the cause carried by commands issued after Close.
	ErrClosed = errors.New("device: closed")

	// ErrQueueFull is the cause of a CodeBusy error when the dispatcher
	// queue has no room.
	ErrQueueFull = errors.New("device: command queue full")

	// ErrHandshake is returned by Open when the identity handshake fails.
	ErrHandshake = errors.New("device: identity handshake failed")

	// ErrInvalidStatus is returned when a status record cannot be parsed.
	ErrInvalidStatus = errors.New("device: invalid status record")

	// ErrInvalidArgument is returned by typed helpers for out-of-range input.
	ErrInvalidArgument = errors.New("device: invalid argument")
)

// CodeOf extracts the result code from err. A nil error is CodeNone; any
// error that is not a CommError is CodeOther.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	var ce *CommError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeOther
}
