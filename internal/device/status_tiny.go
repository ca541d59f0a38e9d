package device

import "encoding/binary"

const tinyStatusLen = 38

// TinyStatus is the status record of the Tiny family and every product
// without a dedicated layout.
type TinyStatus struct {
	AITarget       uint8
	AntiFlicker    uint8
	Zoom           uint16 // 0-100
	HDR            uint8
	FaceAE         uint8
	NoiseCancel    uint8
	DevStatus      int8
	AutoSleep      int16 // seconds, negative disables
	Vertical       uint8
	FaceAF         uint8
	AF             uint8
	MF             uint8
	SleepMicro     uint8
	FOV            uint8
	Flip           uint8
	VoiceLang      uint8
	VoiceCtrl      uint8
	VoiceZoom      uint16
	Mode           uint8
	AudioAutoGain  uint8
	SleepBgType    uint8
	BgImageIndex   uint8
	AISubMode      uint8
	BgMirror       uint8
	HDRSupport     uint8
	FPS            uint8
	BootMode       uint8
	LED            uint8
	AudioOpt       uint8
	BLEStatus      uint8
	AITrackerSpeed uint8
	LiveStreamMode uint8
}

func (*TinyStatus) hardwareStatus() {}

// Layout implements HardwareStatus.
func (*TinyStatus) Layout() Layout { return LayoutTiny }

// ZoomRatio implements HardwareStatus.
func (s *TinyStatus) ZoomRatio() int { return clampPercent(int(s.Zoom)) }

// AIMode implements HardwareStatus.
func (s *TinyStatus) AIMode() int { return int(s.Mode) }

// Battery implements HardwareStatus. Tiny cameras are bus powered.
func (*TinyStatus) Battery() (int, bool, bool) { return 0, false, false }

// RunState implements HardwareStatus.
func (s *TinyStatus) RunState() RunStatus { return RunStatus(s.DevStatus) }

// BLEConnected reports whether a BLE remote is attached.
func (s *TinyStatus) BLEConnected() bool { return s.BLEStatus != 0 }

// UnmarshalBinary parses a tiny record. Bytes past the known fields are
// ignored.
func (s *TinyStatus) UnmarshalBinary(b []byte) error {
	if err := checkLen(LayoutTiny, b, tinyStatusLen); err != nil {
		return err
	}
	le := binary.LittleEndian
	*s = TinyStatus{
		AITarget:       b[0],
		AntiFlicker:    b[3],
		Zoom:           le.Uint16(b[4:6]),
		HDR:            b[6],
		FaceAE:         b[7],
		NoiseCancel:    b[8],
		DevStatus:      int8(b[9]),
		AutoSleep:      int16(le.Uint16(b[10:12])),
		Vertical:       b[12],
		FaceAF:         b[13],
		AF:             b[14],
		MF:             b[15],
		SleepMicro:     b[16],
		FOV:            b[17],
		Flip:           b[19],
		VoiceLang:      b[20],
		VoiceCtrl:      b[21],
		VoiceZoom:      le.Uint16(b[22:24]),
		Mode:           b[24],
		AudioAutoGain:  b[25],
		SleepBgType:    b[26],
		BgImageIndex:   b[27],
		AISubMode:      b[28],
		BgMirror:       b[29],
		HDRSupport:     b[30],
		FPS:            b[31],
		BootMode:       b[32],
		LED:            b[33],
		AudioOpt:       b[34],
		BLEStatus:      b[35],
		AITrackerSpeed: b[36],
		LiveStreamMode: b[37],
	}
	return nil
}

// MarshalBinary encodes the record in wire layout.
func (s *TinyStatus) MarshalBinary() ([]byte, error) {
	b := make([]byte, tinyStatusLen)
	le := binary.LittleEndian
	b[0] = s.AITarget
	b[3] = s.AntiFlicker
	le.PutUint16(b[4:6], s.Zoom)
	b[6] = s.HDR
	b[7] = s.FaceAE
	b[8] = s.NoiseCancel
	b[9] = byte(s.DevStatus)
	le.PutUint16(b[10:12], uint16(s.AutoSleep))
	b[12] = s.Vertical
	b[13] = s.FaceAF
	b[14] = s.AF
	b[15] = s.MF
	b[16] = s.SleepMicro
	b[17] = s.FOV
	b[19] = s.Flip
	b[20] = s.VoiceLang
	b[21] = s.VoiceCtrl
	le.PutUint16(b[22:24], s.VoiceZoom)
	b[24] = s.Mode
	b[25] = s.AudioAutoGain
	b[26] = s.SleepBgType
	b[27] = s.BgImageIndex
	b[28] = s.AISubMode
	b[29] = s.BgMirror
	b[30] = s.HDRSupport
	b[31] = s.FPS
	b[32] = s.BootMode
	b[33] = s.LED
	b[34] = s.AudioOpt
	b[35] = s.BLEStatus
	b[36] = s.AITrackerSpeed
	b[37] = s.LiveStreamMode
	return b, nil
}
