package protocol

import "errors"

// Codec errors. Use errors.Is to check for them.
var (
	// ErrBadMagic is returned when a frame does not start with the magic bytes.
	// Stream readers must treat it as a desync and drop the link.
	ErrBadMagic = errors.New("protocol: bad frame magic")

	// ErrUnsupportedVersion is returned for a frame with an unknown version byte.
	ErrUnsupportedVersion = errors.New("protocol: unsupported frame version")

	// ErrHeaderChecksum is returned when the header CRC16 does not match.
	ErrHeaderChecksum = errors.New("protocol: header checksum mismatch")

	// ErrPayloadChecksum is returned when the payload CRC32 does not match.
	ErrPayloadChecksum = errors.New("protocol: payload checksum mismatch")

	// ErrFrameTooLarge is returned when the declared payload exceeds MaxPayloadSize.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrShortFrame is returned when a buffer ends before the frame does.
	ErrShortFrame = errors.New("protocol: short frame")

	// ErrInvalidInfo is returned when a device-info payload cannot be decoded.
	ErrInvalidInfo = errors.New("protocol: invalid device info payload")
)
