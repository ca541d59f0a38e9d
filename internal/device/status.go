package device

import (
	"encoding"
	"fmt"
)

// Layout identifies one of the product-family status record layouts.
type Layout int

// Status layouts.
const (
	LayoutTiny Layout = iota
	LayoutMeet
	LayoutTailAir
)

func (l Layout) String() string {
	switch l {
	case LayoutTiny:
		return "tiny"
	case LayoutMeet:
		return "meet"
	case LayoutTailAir:
		return "tail_air"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// HardwareStatus is a parsed status record. The concrete type is one of
// *TinyStatus, *MeetStatus or *TailAirStatus, fixed by the device's product
// type at handshake.
//
// Multi-byte fields in status records are little-endian.
type HardwareStatus interface {
	encoding.BinaryMarshaler

	Layout() Layout

	// ZoomRatio is the current digital zoom, 0-100.
	ZoomRatio() int

	// AIMode is the raw AI/media mode value of the layout.
	AIMode() int

	// Battery reports capacity in percent and charging state. ok is false on
	// products without a battery.
	Battery() (percent int, charging, ok bool)

	RunState() RunStatus

	hardwareStatus()
}

// ParseStatus decodes raw with the given layout.
func ParseStatus(layout Layout, raw []byte) (HardwareStatus, error) {
	switch layout {
	case LayoutTiny:
		s := new(TinyStatus)
		return s, s.UnmarshalBinary(raw)
	case LayoutMeet:
		s := new(MeetStatus)
		return s, s.UnmarshalBinary(raw)
	case LayoutTailAir:
		s := new(TailAirStatus)
		return s, s.UnmarshalBinary(raw)
	default:
		return nil, fmt.Errorf("%w: unknown layout %d", ErrInvalidStatus, int(layout))
	}
}

// DefaultStatus returns the zero record for layout.
func DefaultStatus(layout Layout) HardwareStatus {
	switch layout {
	case LayoutMeet:
		return new(MeetStatus)
	case LayoutTailAir:
		return new(TailAirStatus)
	default:
		return new(TinyStatus)
	}
}

func checkLen(layout Layout, raw []byte, minLen int) error {
	if len(raw) < minLen {
		return fmt.Errorf("%w: %s record is %d bytes, need %d", ErrInvalidStatus, layout, len(raw), minLen)
	}
	return nil
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
