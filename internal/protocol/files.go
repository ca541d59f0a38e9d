package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// ErrInvalidFilePayload is returned when a file-transfer payload is malformed.
var ErrInvalidFilePayload = errors.New("protocol: invalid file transfer payload")

// DigestSize is the size of the content digest carried by file queries.
const DigestSize = sha256.Size

// FileQuery asks the device whether a resource exists (request) and reports
// its size and digest (response).
type FileQuery struct {
	FileType uint32
	Exists   bool
	Size     uint64
	Digest   [DigestSize]byte
}

// MarshalRequest encodes the request form: only the file type.
func (q FileQuery) MarshalRequest() []byte {
	return PutUint32(q.FileType)
}

// MarshalResponse encodes type, exists flag, size and digest.
func (q FileQuery) MarshalResponse() []byte {
	b := make([]byte, 4+1+8+DigestSize)
	binary.BigEndian.PutUint32(b[0:4], q.FileType)
	if q.Exists {
		b[4] = 1
	}
	binary.BigEndian.PutUint64(b[5:13], q.Size)
	copy(b[13:], q.Digest[:])
	return b
}

// UnmarshalFileQueryRequest decodes the request form.
func UnmarshalFileQueryRequest(b []byte) (FileQuery, error) {
	t, ok := Uint32(b)
	if !ok {
		return FileQuery{}, ErrInvalidFilePayload
	}
	return FileQuery{FileType: t}, nil
}

// UnmarshalFileQueryResponse decodes the response form.
func UnmarshalFileQueryResponse(b []byte) (FileQuery, error) {
	if len(b) < 4+1+8+DigestSize {
		return FileQuery{}, ErrInvalidFilePayload
	}
	q := FileQuery{
		FileType: binary.BigEndian.Uint32(b[0:4]),
		Exists:   b[4] == 1,
		Size:     binary.BigEndian.Uint64(b[5:13]),
	}
	copy(q.Digest[:], b[13:13+DigestSize])
	return q, nil
}

// FileChunk addresses a byte range of a resource. On OpFileRead requests
// Length is the wanted size and Data is empty; on responses and on
// OpUploadChunk requests Data carries the bytes.
type FileChunk struct {
	FileType uint32
	Offset   uint64
	Length   uint32
	Data     []byte
}

const chunkHeaderSize = 4 + 8 + 4

// MarshalBinary encodes the chunk header followed by Data.
func (c FileChunk) MarshalBinary() ([]byte, error) {
	b := make([]byte, chunkHeaderSize+len(c.Data))
	binary.BigEndian.PutUint32(b[0:4], c.FileType)
	binary.BigEndian.PutUint64(b[4:12], c.Offset)
	length := c.Length
	if len(c.Data) > 0 {
		length = uint32(len(c.Data)) //nolint:gosec // bounded by MaxPayloadSize
	}
	binary.BigEndian.PutUint32(b[12:16], length)
	copy(b[chunkHeaderSize:], c.Data)
	return b, nil
}

// UnmarshalBinary decodes a chunk. Data aliases b.
func (c *FileChunk) UnmarshalBinary(b []byte) error {
	if len(b) < chunkHeaderSize {
		return ErrInvalidFilePayload
	}
	c.FileType = binary.BigEndian.Uint32(b[0:4])
	c.Offset = binary.BigEndian.Uint64(b[4:12])
	c.Length = binary.BigEndian.Uint32(b[12:16])
	c.Data = b[chunkHeaderSize:]
	if len(c.Data) > 0 && int(c.Length) != len(c.Data) {
		return ErrInvalidFilePayload
	}
	return nil
}

// MaxChunkData is the largest Data a single chunk frame may carry.
const MaxChunkData = MaxPayloadSize - chunkHeaderSize

// UploadBegin announces an upload of Size bytes with the given digest.
type UploadBegin struct {
	FileType uint32
	Size     uint64
	Digest   [DigestSize]byte
}

// MarshalBinary encodes the announcement.
func (u UploadBegin) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+8+DigestSize)
	binary.BigEndian.PutUint32(b[0:4], u.FileType)
	binary.BigEndian.PutUint64(b[4:12], u.Size)
	copy(b[12:], u.Digest[:])
	return b, nil
}

// UnmarshalBinary decodes the announcement.
func (u *UploadBegin) UnmarshalBinary(b []byte) error {
	if len(b) < 4+8+DigestSize {
		return ErrInvalidFilePayload
	}
	u.FileType = binary.BigEndian.Uint32(b[0:4])
	u.Size = binary.BigEndian.Uint64(b[4:12])
	copy(u.Digest[:], b[12:12+DigestSize])
	return nil
}
