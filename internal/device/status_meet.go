package device

import "encoding/binary"

const meetStatusLen = 29

// MeetStatus is the status record of the Meet family.
type MeetStatus struct {
	MediaMode   uint8
	HDR         uint8
	DevStatus   int8
	FaceAE      uint8
	FOV         uint8
	BgMode      uint8
	Blur        uint8
	AntiFlicker uint8
	Zoom        uint16 // 0-100
	KeyMode     uint8
	NoiseCancel uint8
	Vertical    uint8
	GroupSingle uint8
	CloseUpper  uint8
	AutoSleep   int16
	ImageIndex  uint8
	BgColor     uint8
	FaceAF      uint8
	AF          uint8
	MF          uint8
	MaskDisable uint8
	SleepMicro  uint8
	Flip        uint8
}

func (*MeetStatus) hardwareStatus() {}

// Layout implements HardwareStatus.
func (*MeetStatus) Layout() Layout { return LayoutMeet }

// ZoomRatio implements HardwareStatus.
func (s *MeetStatus) ZoomRatio() int { return clampPercent(int(s.Zoom)) }

// AIMode implements HardwareStatus. Meet cameras report their media mode
// (normal, background, auto-frame) in place of an AI mode.
func (s *MeetStatus) AIMode() int { return int(s.MediaMode) }

// Battery implements HardwareStatus.
func (*MeetStatus) Battery() (int, bool, bool) { return 0, false, false }

// RunState implements HardwareStatus.
func (s *MeetStatus) RunState() RunStatus { return RunStatus(s.DevStatus) }

// UnmarshalBinary parses a meet record.
func (s *MeetStatus) UnmarshalBinary(b []byte) error {
	if err := checkLen(LayoutMeet, b, meetStatusLen); err != nil {
		return err
	}
	le := binary.LittleEndian
	*s = MeetStatus{
		MediaMode:   b[0],
		HDR:         b[1],
		DevStatus:   int8(b[2]),
		FaceAE:      b[3],
		FOV:         b[4],
		BgMode:      b[5],
		Blur:        b[6],
		AntiFlicker: b[7],
		Zoom:        le.Uint16(b[8:10]),
		KeyMode:     b[10],
		NoiseCancel: b[14],
		Vertical:    b[15],
		GroupSingle: b[16],
		CloseUpper:  b[17],
		AutoSleep:   int16(le.Uint16(b[18:20])),
		ImageIndex:  b[20],
		BgColor:     b[22],
		FaceAF:      b[23],
		AF:          b[24],
		MF:          b[25],
		MaskDisable: b[26],
		SleepMicro:  b[27],
		Flip:        b[28],
	}
	return nil
}

// MarshalBinary encodes the record in wire layout.
func (s *MeetStatus) MarshalBinary() ([]byte, error) {
	b := make([]byte, meetStatusLen)
	le := binary.LittleEndian
	b[0] = s.MediaMode
	b[1] = s.HDR
	b[2] = byte(s.DevStatus)
	b[3] = s.FaceAE
	b[4] = s.FOV
	b[5] = s.BgMode
	b[6] = s.Blur
	b[7] = s.AntiFlicker
	le.PutUint16(b[8:10], s.Zoom)
	b[10] = s.KeyMode
	b[14] = s.NoiseCancel
	b[15] = s.Vertical
	b[16] = s.GroupSingle
	b[17] = s.CloseUpper
	le.PutUint16(b[18:20], uint16(s.AutoSleep))
	b[20] = s.ImageIndex
	b[22] = s.BgColor
	b[23] = s.FaceAF
	b[24] = s.AF
	b[25] = s.MF
	b[26] = s.MaskDisable
	b[27] = s.SleepMicro
	b[28] = s.Flip
	return b, nil
}
