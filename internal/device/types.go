package device

import (
	"encoding/hex"
	"fmt"

	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/transport"
)

// UUID is the 24-byte device identifier. It is the registry's canonical key.
type UUID [protocol.UUIDSize]byte

// String returns the lowercase hex form.
func (u UUID) String() string { return hex.EncodeToString(u[:]) }

// IsZero reports whether u is unset.
func (u UUID) IsZero() bool { return u == UUID{} }

// ParseUUID parses the hex form produced by String.
func ParseUUID(s string) (UUID, error) {
	var u UUID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(u) {
		return u, fmt.Errorf("%w: uuid %q", ErrInvalidArgument, s)
	}
	copy(u[:], b)
	return u, nil
}

// Identity is the immutable identity of a device.
type Identity struct {
	Endpoint transport.Endpoint
	UUID     UUID
	SN       string
}

// ProductType identifies the camera model.
type ProductType uint8

// Product types, in wire order.
const (
	ProductTiny ProductType = iota
	ProductTiny4k
	ProductTiny2
	ProductTiny2Lite
	ProductTailAir
	ProductMeet
	ProductMeet4k
	ProductMe
	ProductHDMIBox
	ProductNDIBox
	ProductMeet2
	ProductTail2
	ProductTinySE
	ProductMeetSE
)

var productNames = [...]string{
	"tiny", "tiny_4k", "tiny_2", "tiny_2_lite", "tail_air", "meet", "meet_4k",
	"me", "hdmi_box", "ndi_box", "meet_2", "tail_2", "tiny_se", "meet_se",
}

func (p ProductType) String() string {
	if int(p) < len(productNames) {
		return productNames[p]
	}
	return fmt.Sprintf("product(%d)", uint8(p))
}

// Layout selects the status record layout for the product.
func (p ProductType) Layout() Layout {
	switch p {
	case ProductMeet, ProductMeet4k, ProductMeet2, ProductMeetSE:
		return LayoutMeet
	case ProductTailAir, ProductTail2:
		return LayoutTailAir
	default:
		return LayoutTiny
	}
}

// Mode is the link the device was reached over.
type Mode uint8

// Device modes.
const (
	ModeUVC Mode = iota
	ModeNet
	ModeMTP
	ModeBLE
)

func (m Mode) String() string {
	switch m {
	case ModeUVC:
		return "uvc"
	case ModeNet:
		return "net"
	case ModeMTP:
		return "mtp"
	case ModeBLE:
		return "ble"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// SysType is the firmware system the device is running.
type SysType uint8

// System types.
const (
	SysUnknown SysType = 0
	SysMain    SysType = 1
	SysUpgrade SysType = 2
)

// RunStatus is the device power state.
type RunStatus int8

// Run states. RunStatusError is only ever reported, never set.
const (
	RunStatusError   RunStatus = -1
	RunStatusRun     RunStatus = 1
	RunStatusSleep   RunStatus = 3
	RunStatusPrivacy RunStatus = 4
)

func (s RunStatus) String() string {
	switch s {
	case RunStatusError:
		return "error"
	case RunStatusRun:
		return "run"
	case RunStatusSleep:
		return "sleep"
	case RunStatusPrivacy:
		return "privacy"
	default:
		return fmt.Sprintf("run_status(%d)", int8(s))
	}
}

// ParseRunStatus accepts the names returned by String for settable states.
func ParseRunStatus(s string) (RunStatus, error) {
	switch s {
	case "run":
		return RunStatusRun, nil
	case "sleep":
		return RunStatusSleep, nil
	case "privacy":
		return RunStatusPrivacy, nil
	default:
		return 0, fmt.Errorf("%w: run status %q", ErrInvalidArgument, s)
	}
}

// Info is everything the identity handshake reports.
type Info struct {
	Identity
	Product    ProductType
	Name       string
	Version    string
	ModelCode  string
	Branch     string
	Platform   string
	SysType    SysType
	SocVersion uint8
	Mode       Mode
}

func infoFromWire(ep transport.Endpoint, w protocol.DeviceInfo) Info {
	return Info{
		Identity: Identity{
			Endpoint: ep,
			UUID:     UUID(w.UUID),
			SN:       w.SN,
		},
		Product:    ProductType(w.ProductType),
		Name:       w.Name,
		Version:    w.Version,
		ModelCode:  w.ModelCode,
		Branch:     w.Branch,
		Platform:   w.Platform,
		SysType:    SysType(w.SysType),
		SocVersion: w.SocVersion,
		Mode:       Mode(w.Mode),
	}
}
