package protocol

import (
	"encoding/binary"
	"fmt"
)

// UUIDSize is the length of a device UUID in bytes.
const UUIDSize = 24

// DeviceInfo is the payload of an OpGetDeviceInfo response. It carries the
// identity handshake: UUID, product, serial number and firmware details.
type DeviceInfo struct {
	UUID        [UUIDSize]byte
	ProductType uint8
	SysType     uint8
	SocVersion  uint8
	Mode        uint8
	SN          string
	Name        string
	Version     string
	ModelCode   string
	Branch      string
	Platform    string
}

// fixed part: uuid + product + sys + soc + mode
const infoFixedSize = UUIDSize + 4

// MarshalBinary encodes the info payload. Strings are prefixed by a single
// length byte and must not exceed 255 bytes.
func (d DeviceInfo) MarshalBinary() ([]byte, error) {
	strs := d.strings()
	size := infoFixedSize
	for _, s := range strs {
		if len(s) > 0xFF {
			return nil, fmt.Errorf("%w: string field of %d bytes", ErrInvalidInfo, len(s))
		}
		size += 1 + len(s)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, d.UUID[:]...)
	buf = append(buf, d.ProductType, d.SysType, d.SocVersion, d.Mode)
	for _, s := range strs {
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf, nil
}

// UnmarshalBinary decodes an info payload produced by MarshalBinary.
// Trailing bytes after the last string are ignored so newer firmware can
// append fields.
func (d *DeviceInfo) UnmarshalBinary(b []byte) error {
	if len(b) < infoFixedSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidInfo, len(b))
	}

	var out DeviceInfo
	copy(out.UUID[:], b[:UUIDSize])
	out.ProductType = b[UUIDSize]
	out.SysType = b[UUIDSize+1]
	out.SocVersion = b[UUIDSize+2]
	out.Mode = b[UUIDSize+3]

	rest := b[infoFixedSize:]
	fields := []*string{&out.SN, &out.Name, &out.Version, &out.ModelCode, &out.Branch, &out.Platform}
	for i, f := range fields {
		if len(rest) == 0 {
			return fmt.Errorf("%w: missing field %d", ErrInvalidInfo, i)
		}
		n := int(rest[0])
		if len(rest) < 1+n {
			return fmt.Errorf("%w: field %d truncated", ErrInvalidInfo, i)
		}
		*f = string(rest[1 : 1+n])
		rest = rest[1+n:]
	}

	*d = out
	return nil
}

func (d DeviceInfo) strings() []string {
	return []string{d.SN, d.Name, d.Version, d.ModelCode, d.Branch, d.Platform}
}

// PutUint32 encodes v as a 4-byte big-endian payload.
func PutUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// Uint32 reads a big-endian uint32 from the start of b.
func Uint32(b []byte) (uint32, bool) {
	if len(b) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}
