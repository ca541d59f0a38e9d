package protocol

import (
	"fmt"
	"time"
)

// Opcode identifies a request and its response.
//
// The catalog below covers the operations the core itself drives. Feature
// codes for image, exposure and AI sub-mode knobs are passed through as
// opaque opcodes and use DefaultTimeout.
type Opcode uint16

// Core opcodes.
const (
	OpGetDeviceInfo Opcode = 0x0001
	OpGetStatus     Opcode = 0x0002
	OpHeartbeat     Opcode = 0x0003

	OpSetRunStatus Opcode = 0x0101
	OpSetName      Opcode = 0x0102

	OpGimbalReset Opcode = 0x0201
	OpGimbalSpeed Opcode = 0x0202
	OpGimbalAngle Opcode = 0x0203

	OpSetZoom Opcode = 0x0301
	OpGetZoom Opcode = 0x0302

	OpSetAIMode     Opcode = 0x0401
	OpSetAITracking Opcode = 0x0402

	OpFileQuery   Opcode = 0x0501
	OpFileRead    Opcode = 0x0502
	OpUploadBegin Opcode = 0x0503
	OpUploadChunk Opcode = 0x0504
	OpUploadEnd   Opcode = 0x0505
)

// DefaultTimeout applies to every opcode without an explicit entry.
const DefaultTimeout = 3 * time.Second

type opcodeSpec struct {
	name    string
	timeout time.Duration
}

var opcodes = map[Opcode]opcodeSpec{
	OpGetDeviceInfo: {"get_device_info", 2 * time.Second},
	OpGetStatus:     {"get_status", DefaultTimeout},
	OpHeartbeat:     {"heartbeat", DefaultTimeout},
	OpSetRunStatus:  {"set_run_status", DefaultTimeout},
	OpSetName:       {"set_name", DefaultTimeout},
	OpGimbalReset:   {"gimbal_reset", 5 * time.Second},
	OpGimbalSpeed:   {"gimbal_speed", DefaultTimeout},
	OpGimbalAngle:   {"gimbal_angle", DefaultTimeout},
	OpSetZoom:       {"set_zoom", DefaultTimeout},
	OpGetZoom:       {"get_zoom", DefaultTimeout},
	OpSetAIMode:     {"set_ai_mode", DefaultTimeout},
	OpSetAITracking: {"set_ai_tracking", DefaultTimeout},
	OpFileQuery:     {"file_query", 10 * time.Second},
	OpFileRead:      {"file_read", 10 * time.Second},
	OpUploadBegin:   {"upload_begin", 10 * time.Second},
	OpUploadChunk:   {"upload_chunk", 10 * time.Second},
	OpUploadEnd:     {"upload_end", 10 * time.Second},
}

// String returns the catalog name, or the hex code for opaque opcodes.
func (o Opcode) String() string {
	if s, ok := opcodes[o]; ok {
		return s.name
	}
	return fmt.Sprintf("op(0x%04X)", uint16(o))
}

// Known reports whether o is part of the core catalog.
func (o Opcode) Known() bool {
	_, ok := opcodes[o]
	return ok
}

// Timeout returns how long a dispatcher waits for the response to o.
func Timeout(o Opcode) time.Duration {
	if s, ok := opcodes[o]; ok {
		return s.timeout
	}
	return DefaultTimeout
}

// ParseOpcode resolves a catalog name back to its opcode.
func ParseOpcode(name string) (Opcode, bool) {
	for op, s := range opcodes {
		if s.name == name {
			return op, true
		}
	}
	return 0, false
}
