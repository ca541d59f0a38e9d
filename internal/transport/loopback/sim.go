package loopback

import (
	"bytes"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// HandlerFunc answers one request with a result code and payload.
type HandlerFunc func(req protocol.Frame) (code int32, payload []byte)

// SimDevice is a simulated camera.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type SimDevice struct {
	mu sync.Mutex

	addr string
	info protocol.DeviceInfo

	status    []byte
	runStatus byte
	zoom      uint16
	aiMode    byte
	gimbal    []byte

	busy     bool
	delay    time.Duration
	muted    map[protocol.Opcode]bool
	handlers map[protocol.Opcode]HandlerFunc
	requests map[protocol.Opcode]int

	files   map[uint32][]byte
	uploads map[uint32]*upload
	stored  map[uint32][]byte

	link *simChannel
}

type upload struct {
	size   uint64
	digest [protocol.DigestSize]byte
	buf    bytes.Buffer
}

// NewSimDevice creates a device reachable at addr that reports info during
// the identity handshake. status is the initial raw status record.
func NewSimDevice(addr string, info protocol.DeviceInfo, status []byte) *SimDevice {
	return &SimDevice{
		addr:     addr,
		info:     info,
		status:   append([]byte(nil), status...),
		muted:    make(map[protocol.Opcode]bool),
		handlers: make(map[protocol.Opcode]HandlerFunc),
		requests: make(map[protocol.Opcode]int),
		files:    make(map[uint32][]byte),
		uploads:  make(map[uint32]*upload),
		stored:   make(map[uint32][]byte),
	}
}

// Address returns the endpoint address.
func (d *SimDevice) Address() string { return d.addr }

// Info returns the current device info.
func (d *SimDevice) Info() protocol.DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// SetStatus replaces the raw status record returned by OpGetStatus.
func (d *SimDevice) SetStatus(raw []byte) {
	d.mu.Lock()
	d.status = append([]byte(nil), raw...)
	d.mu.Unlock()
}

// SetBusy makes every request other than device info answer CodeBusy.
func (d *SimDevice) SetBusy(busy bool) {
	d.mu.Lock()
	d.busy = busy
	d.mu.Unlock()
}

// SetDelay delays every response by delay.
func (d *SimDevice) SetDelay(delay time.Duration) {
	d.mu.Lock()
	d.delay = delay
	d.mu.Unlock()
}

// Mute drops requests for op without answering, so callers time out.
func (d *SimDevice) Mute(op protocol.Opcode, muted bool) {
	d.mu.Lock()
	d.muted[op] = muted
	d.mu.Unlock()
}

// Handle overrides the built-in behaviour for op.
func (d *SimDevice) Handle(op protocol.Opcode, h HandlerFunc) {
	d.mu.Lock()
	d.handlers[op] = h
	d.mu.Unlock()
}

// PutFile makes content available for download under the given file type.
func (d *SimDevice) PutFile(fileType uint32, content []byte) {
	d.mu.Lock()
	d.files[fileType] = append([]byte(nil), content...)
	d.mu.Unlock()
}

// Uploaded returns the content of a completed upload.
func (d *SimDevice) Uploaded(fileType uint32) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.stored[fileType]
	return b, ok
}

// Requests returns how many requests for op the device has received.
func (d *SimDevice) Requests(op protocol.Opcode) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[op]
}

// RunStatus returns the last run status written by the host.
func (d *SimDevice) RunStatus() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runStatus
}

// AIMode returns the last AI mode written by the host.
func (d *SimDevice) AIMode() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aiMode
}

// Gimbal returns the payload of the last gimbal command.
func (d *SimDevice) Gimbal() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.gimbal...)
}

// Tick sends n status ticks to the host.
func (d *SimDevice) Tick(n int) {
	for range n {
		d.emit(protocol.Frame{Kind: protocol.KindStatusTick})
	}
}

// EmitEvent sends an unsolicited event frame.
func (d *SimDevice) EmitEvent(code int32, payload []byte) {
	d.emit(protocol.NewEvent(code, payload))
}

// StartTicking sends a status tick every interval until stop is closed.
func (d *SimDevice) StartTicking(interval time.Duration, stop <-chan struct{}) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				d.Tick(1)
			}
		}
	}()
}

func (d *SimDevice) emit(f protocol.Frame) {
	d.mu.Lock()
	link := d.link
	d.mu.Unlock()
	if link != nil {
		link.push(f)
	}
}

func (d *SimDevice) attach(c *simChannel) {
	d.mu.Lock()
	prev := d.link
	d.link = c
	d.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

func (d *SimDevice) detach(c *simChannel) {
	d.mu.Lock()
	if d.link == c {
		d.link = nil
	}
	d.mu.Unlock()
}

// serve computes the answer to one request. ok is false when the request is
// muted and must go unanswered.
func (d *SimDevice) serve(req protocol.Frame) (resp protocol.Frame, delay time.Duration, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.requests[req.Opcode]++
	if d.muted[req.Opcode] {
		return protocol.Frame{}, 0, false
	}
	if d.busy && req.Opcode != protocol.OpGetDeviceInfo {
		return protocol.NewResponse(req, protocol.CodeBusy, nil), d.delay, true
	}
	if h, found := d.handlers[req.Opcode]; found {
		code, payload := h(req)
		return protocol.NewResponse(req, code, payload), d.delay, true
	}

	code, payload := d.builtin(req)
	return protocol.NewResponse(req, code, payload), d.delay, true
}

// builtin is called with d.mu held.
func (d *SimDevice) builtin(req protocol.Frame) (int32, []byte) {
	p := req.Payload

	switch req.Opcode {
	case protocol.OpGetDeviceInfo:
		b, err := d.info.MarshalBinary()
		if err != nil {
			return protocol.CodeFailed, nil
		}
		return protocol.CodeOK, b

	case protocol.OpGetStatus:
		return protocol.CodeOK, append([]byte(nil), d.status...)

	case protocol.OpHeartbeat:
		return protocol.CodeOK, nil

	case protocol.OpSetRunStatus:
		if len(p) != 1 {
			return protocol.CodeBadLength, nil
		}
		d.runStatus = p[0]
		return protocol.CodeOK, nil

	case protocol.OpSetName:
		if len(p) == 0 || len(p) > 64 {
			return protocol.CodeBadLength, nil
		}
		d.info.Name = string(p)
		return protocol.CodeOK, nil

	case protocol.OpGimbalReset, protocol.OpGimbalSpeed, protocol.OpGimbalAngle:
		d.gimbal = append([]byte(nil), p...)
		return protocol.CodeOK, nil

	case protocol.OpSetZoom:
		if len(p) != 2 {
			return protocol.CodeBadLength, nil
		}
		z := uint16(p[0])<<8 | uint16(p[1])
		if z > 100 {
			return protocol.CodeRejected, nil
		}
		d.zoom = z
		return protocol.CodeOK, nil

	case protocol.OpGetZoom:
		return protocol.CodeOK, []byte{byte(d.zoom >> 8), byte(d.zoom)}

	case protocol.OpSetAIMode, protocol.OpSetAITracking:
		if len(p) == 0 {
			return protocol.CodeBadLength, nil
		}
		if req.Opcode == protocol.OpSetAIMode {
			d.aiMode = p[0]
		}
		return protocol.CodeOK, nil

	case protocol.OpFileQuery:
		return d.fileQuery(p)

	case protocol.OpFileRead:
		return d.fileRead(p)

	case protocol.OpUploadBegin:
		var b protocol.UploadBegin
		if err := b.UnmarshalBinary(p); err != nil {
			return protocol.CodeBadLength, nil
		}
		d.uploads[b.FileType] = &upload{size: b.Size, digest: b.Digest}
		return protocol.CodeOK, nil

	case protocol.OpUploadChunk:
		var c protocol.FileChunk
		if err := c.UnmarshalBinary(p); err != nil {
			return protocol.CodeBadLength, nil
		}
		up, found := d.uploads[c.FileType]
		if !found || c.Offset != uint64(up.buf.Len()) {
			return protocol.CodeRejected, nil
		}
		up.buf.Write(c.Data)
		return protocol.CodeOK, nil

	case protocol.OpUploadEnd:
		t, valid := protocol.Uint32(p)
		if !valid {
			return protocol.CodeBadLength, nil
		}
		up, found := d.uploads[t]
		delete(d.uploads, t)
		if !found || uint64(up.buf.Len()) != up.size || sha256.Sum256(up.buf.Bytes()) != up.digest {
			return protocol.CodeRejected, nil
		}
		d.stored[t] = up.buf.Bytes()
		return protocol.CodeOK, nil

	default:
		// Opaque feature codes are acknowledged with their payload echoed.
		return protocol.CodeOK, append([]byte(nil), p...)
	}
}

func (d *SimDevice) fileQuery(p []byte) (int32, []byte) {
	q, err := protocol.UnmarshalFileQueryRequest(p)
	if err != nil {
		return protocol.CodeBadLength, nil
	}
	if content, found := d.files[q.FileType]; found {
		q.Exists = true
		q.Size = uint64(len(content))
		q.Digest = sha256.Sum256(content)
	}
	return protocol.CodeOK, q.MarshalResponse()
}

func (d *SimDevice) fileRead(p []byte) (int32, []byte) {
	var c protocol.FileChunk
	if err := c.UnmarshalBinary(p); err != nil {
		return protocol.CodeBadLength, nil
	}
	content, found := d.files[c.FileType]
	if !found || c.Offset > uint64(len(content)) {
		return protocol.CodeRejected, nil
	}
	end := c.Offset + uint64(c.Length)
	if end > uint64(len(content)) {
		end = uint64(len(content))
	}
	out := protocol.FileChunk{FileType: c.FileType, Offset: c.Offset, Data: content[c.Offset:end]}
	b, _ := out.MarshalBinary()
	return protocol.CodeOK, b
}
