package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeReadFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"request with payload", NewRequest(7, OpSetZoom, []byte{0x00, 0x32})},
		{"response with negative code", NewResponse(Frame{Seq: 9, Opcode: OpGetStatus}, -4, nil)},
		{"event", NewEvent(2006, []byte("file.jpg"))},
		{"opaque opcode", NewRequest(1, Opcode(0x7F10), []byte{1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.frame)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if len(raw) != HeaderSize+len(tt.frame.Payload)+TrailerSize {
				t.Fatalf("Encode() len = %d", len(raw))
			}

			got, err := ReadFrame(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if got.Kind != tt.frame.Kind || got.Seq != tt.frame.Seq || got.Opcode != tt.frame.Opcode || got.Code != tt.frame.Code {
				t.Errorf("ReadFrame() = %v, want %v", got, tt.frame)
			}
			if !bytes.Equal(got.Payload, tt.frame.Payload) {
				t.Errorf("payload = %x, want %x", got.Payload, tt.frame.Payload)
			}
		})
	}
}

func TestReadFrameSequence(t *testing.T) {
	var stream bytes.Buffer
	for i := uint32(1); i <= 3; i++ {
		raw, err := Encode(NewRequest(i, OpHeartbeat, nil))
		if err != nil {
			t.Fatal(err)
		}
		stream.Write(raw)
	}

	for i := uint32(1); i <= 3; i++ {
		f, err := ReadFrame(&stream)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Seq != i {
			t.Errorf("frame %d seq = %d", i, f.Seq)
		}
	}
	if _, err := ReadFrame(&stream); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() at end = %v, want io.EOF", err)
	}
}

func TestReadFrameErrors(t *testing.T) {
	valid, err := Encode(NewRequest(1, OpGetStatus, []byte{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}

	corrupt := func(i int) []byte {
		b := append([]byte(nil), valid...)
		b[i] ^= 0xFF
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"bad magic", corrupt(0), ErrBadMagic},
		{"bad version", corrupt(2), ErrUnsupportedVersion},
		{"header checksum", corrupt(5), ErrHeaderChecksum},
		{"payload checksum", corrupt(HeaderSize), ErrPayloadChecksum},
		{"truncated payload", valid[:len(valid)-2], io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("ReadFrame() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(NewRequest(1, OpUploadChunk, make([]byte, MaxPayloadSize+1)))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Encode() error = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecode(t *testing.T) {
	raw, err := Encode(NewEvent(1004, []byte{0xAA}))
	if err != nil {
		t.Fatal(err)
	}
	buf := append(raw, 0xCA) // start of a following frame

	f, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != len(raw) {
		t.Errorf("Decode() consumed %d, want %d", n, len(raw))
	}
	if f.Kind != KindEvent || f.Code != 1004 {
		t.Errorf("Decode() = %v", f)
	}

	if _, _, err := Decode(raw[:HeaderSize-1]); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Decode(short header) error = %v", err)
	}
	if _, _, err := Decode(raw[:len(raw)-1]); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Decode(short body) error = %v", err)
	}
}

func TestOpcodeTimeouts(t *testing.T) {
	tests := []struct {
		op   Opcode
		name string
		want string
	}{
		{OpGetDeviceInfo, "get_device_info", "2s"},
		{OpGimbalReset, "gimbal_reset", "5s"},
		{OpFileRead, "file_read", "10s"},
		{OpSetZoom, "set_zoom", "3s"},
		{Opcode(0x7F10), "op(0x7F10)", "3s"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.name {
			t.Errorf("String() = %q, want %q", got, tt.name)
		}
		if got := Timeout(tt.op).String(); got != tt.want {
			t.Errorf("Timeout(%s) = %s, want %s", tt.op, got, tt.want)
		}
	}

	if op, ok := ParseOpcode("set_ai_mode"); !ok || op != OpSetAIMode {
		t.Errorf("ParseOpcode(set_ai_mode) = %v, %v", op, ok)
	}
	if _, ok := ParseOpcode("nope"); ok {
		t.Error("ParseOpcode(nope) should fail")
	}
}
