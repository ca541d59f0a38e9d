package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/sigurn/crc16"
)

// Wire constants.
const (
	// Magic0 and Magic1 open every frame.
	Magic0 = 0xCA
	Magic1 = 0x11

	// Version is the only frame version this codec speaks.
	Version = 1

	// headerBodySize is the part of the header covered by the CRC16.
	headerBodySize = 18

	// HeaderSize is the full header including its checksum.
	HeaderSize = headerBodySize + 2

	// TrailerSize is the payload CRC32.
	TrailerSize = 4

	// MaxPayloadSize bounds a single frame payload (64 KiB).
	MaxPayloadSize = 64 << 10
)

var modbusTable = crc16.MakeTable(crc16.CRC16_MODBUS)

func headerChecksum(b []byte) uint16 {
	return crc16.Checksum(b, modbusTable)
}

// Encode serialises f into a single wire frame.
//
// Returns:
//   - []byte: header, payload and trailer
//   - error: ErrFrameTooLarge if the payload exceeds MaxPayloadSize
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Payload))
	}

	buf := make([]byte, HeaderSize+len(f.Payload)+TrailerSize)
	buf[0] = Magic0
	buf[1] = Magic1
	buf[2] = Version
	buf[3] = byte(f.Kind)
	binary.BigEndian.PutUint32(buf[4:8], f.Seq)
	binary.BigEndian.PutUint16(buf[8:10], uint16(f.Opcode))
	binary.BigEndian.PutUint32(buf[10:14], uint32(f.Code)) //nolint:gosec // two's complement round-trips
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Payload)))
	binary.BigEndian.PutUint16(buf[18:20], headerChecksum(buf[:headerBodySize]))

	copy(buf[HeaderSize:], f.Payload)
	binary.BigEndian.PutUint32(buf[HeaderSize+len(f.Payload):], crc32.ChecksumIEEE(f.Payload))

	return buf, nil
}

// parseHeader validates a header and returns the partially filled frame and
// the declared payload length.
func parseHeader(h []byte) (Frame, int, error) {
	if h[0] != Magic0 || h[1] != Magic1 {
		return Frame{}, 0, ErrBadMagic
	}
	if h[2] != Version {
		return Frame{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h[2])
	}
	if got, want := binary.BigEndian.Uint16(h[18:20]), headerChecksum(h[:headerBodySize]); got != want {
		return Frame{}, 0, fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrHeaderChecksum, got, want)
	}

	length := binary.BigEndian.Uint32(h[14:18])
	if length > MaxPayloadSize {
		return Frame{}, 0, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	f := Frame{
		Kind:   Kind(h[3]),
		Seq:    binary.BigEndian.Uint32(h[4:8]),
		Opcode: Opcode(binary.BigEndian.Uint16(h[8:10])),
		Code:   int32(binary.BigEndian.Uint32(h[10:14])), //nolint:gosec // two's complement round-trips
	}
	return f, int(length), nil
}

// ReadFrame reads exactly one frame from r.
//
// Checksum failures leave the stream positioned after the bad frame, so a
// caller may choose to continue. ErrBadMagic and ErrFrameTooLarge mean the
// stream is out of sync and the link should be dropped.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	f, length, err := parseHeader(header[:])
	if err != nil {
		return Frame{}, err
	}

	rest := make([]byte, length+TrailerSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Frame{}, fmt.Errorf("read payload: %w", err)
	}

	payload := rest[:length]
	if got, want := binary.BigEndian.Uint32(rest[length:]), crc32.ChecksumIEEE(payload); got != want {
		return Frame{}, fmt.Errorf("%w: got 0x%08X want 0x%08X", ErrPayloadChecksum, got, want)
	}
	if length > 0 {
		f.Payload = payload
	}

	return f, nil
}

// Decode parses a single frame from a complete buffer, such as one BLE
// notification or one UDP datagram.
//
// Returns:
//   - Frame: the decoded frame
//   - int: number of bytes consumed
//   - error: ErrShortFrame if b does not hold a whole frame
func Decode(b []byte) (Frame, int, error) {
	if len(b) < HeaderSize {
		return Frame{}, 0, ErrShortFrame
	}

	f, length, err := parseHeader(b[:HeaderSize])
	if err != nil {
		return Frame{}, 0, err
	}

	total := HeaderSize + length + TrailerSize
	if len(b) < total {
		return Frame{}, 0, ErrShortFrame
	}

	payload := b[HeaderSize : HeaderSize+length]
	if got, want := binary.BigEndian.Uint32(b[HeaderSize+length:total]), crc32.ChecksumIEEE(payload); got != want {
		return Frame{}, 0, fmt.Errorf("%w: got 0x%08X want 0x%08X", ErrPayloadChecksum, got, want)
	}
	if length > 0 {
		f.Payload = append([]byte(nil), payload...)
	}

	return f, total, nil
}
