package device

import "encoding/binary"

const (
	tailAirStatusLen     = 45
	tailAirStatusLenFull = 49
)

// Media flag bits of TailAirStatus.MediaFlags.
const (
	mediaHDR         = 1 << 0
	mediaMirror      = 1 << 1
	mediaFlip        = 1 << 2
	mediaPortrait    = 1 << 3
	mediaAntiFlicker = 3 << 4
	mediaFaceAE      = 1 << 6
	mediaFaceAF      = 1 << 7
	mediaAELock      = 1 << 8
	mediaExpFixed    = 1 << 9
	mediaAFMode      = 3 << 10
)

// TailAirStatus is the status record of the Tail Air family. SDLeftMB is
// only present on newer firmware; HasSDLeft reports whether it was sent.
type TailAirStatus struct {
	WorkMode      uint8
	ExternFlag    uint8
	Delay         uint8
	BootMedia     uint8
	MediaFlags    uint16
	AFStatus      uint16
	MediaRunning  uint8
	DigiZoom      uint16 // ratio in bits 0-11, speed in bits 12-15
	HDMIRes       uint8
	SDSpeed       uint8
	HDMISize      uint8
	RecSize       uint8
	NDIRTSP       uint8
	RTMP          uint8
	SensorFPS     uint8
	MFCode        uint8
	SRT           uint8
	SDStatus      uint8
	Brightness    uint8
	Contrast      uint8
	Hue           uint8
	Saturation    uint8
	Sharpness     uint8
	Style         uint8
	USBStatus     uint8
	BatteryRaw    uint8 // capacity in bits 0-6, charging in bit 7
	OnlineStatus  uint16
	SDSizeMB      uint32
	AutoSleep     int16
	ColorTemp     uint16
	AIType        uint8
	BatteryStatus uint8
	EventCount    uint8
	MiscStatus    uint16
	SDLeftMB      uint32
	HasSDLeft     bool
}

func (*TailAirStatus) hardwareStatus() {}

// Layout implements HardwareStatus.
func (*TailAirStatus) Layout() Layout { return LayoutTailAir }

// ZoomRatio implements HardwareStatus.
func (s *TailAirStatus) ZoomRatio() int { return clampPercent(int(s.DigiZoom & 0x0FFF)) }

// ZoomSpeed is the zoom motor speed, 0-15.
func (s *TailAirStatus) ZoomSpeed() int { return int(s.DigiZoom >> 12) }

// AIMode implements HardwareStatus.
func (s *TailAirStatus) AIMode() int { return int(s.AIType) }

// Battery implements HardwareStatus.
func (s *TailAirStatus) Battery() (int, bool, bool) {
	return clampPercent(int(s.BatteryRaw & 0x7F)), s.BatteryRaw&0x80 != 0, true
}

// RunState implements HardwareStatus. The Tail Air has no privacy mode;
// it sleeps whenever no media pipeline is running.
func (s *TailAirStatus) RunState() RunStatus {
	if s.MediaRunning != 0 {
		return RunStatusRun
	}
	return RunStatusSleep
}

// HDR reports whether HDR is on.
func (s *TailAirStatus) HDR() bool { return s.MediaFlags&mediaHDR != 0 }

// Mirror reports whether the image is mirrored.
func (s *TailAirStatus) Mirror() bool { return s.MediaFlags&mediaMirror != 0 }

// Flip reports whether the image is flipped.
func (s *TailAirStatus) Flip() bool { return s.MediaFlags&mediaFlip != 0 }

// Portrait reports portrait orientation.
func (s *TailAirStatus) Portrait() bool { return s.MediaFlags&mediaPortrait != 0 }

// AntiFlicker returns the anti-flicker setting, 0-3.
func (s *TailAirStatus) AntiFlicker() int { return int(s.MediaFlags&mediaAntiFlicker) >> 4 }

// FaceAE reports face auto exposure.
func (s *TailAirStatus) FaceAE() bool { return s.MediaFlags&mediaFaceAE != 0 }

// FaceAF reports face auto focus.
func (s *TailAirStatus) FaceAF() bool { return s.MediaFlags&mediaFaceAF != 0 }

// AELock reports whether exposure is locked.
func (s *TailAirStatus) AELock() bool { return s.MediaFlags&mediaAELock != 0 }

// ExposureFixed reports fixed exposure.
func (s *TailAirStatus) ExposureFixed() bool { return s.MediaFlags&mediaExpFixed != 0 }

// AFMode returns the auto focus mode, 0-3.
func (s *TailAirStatus) AFMode() int { return int(s.MediaFlags&mediaAFMode) >> 10 }

// Online reports bit n of the streaming online mask (NDI, RTMP, SRT ...).
func (s *TailAirStatus) Online(bit uint) bool { return bit < 16 && s.OnlineStatus&(1<<bit) != 0 }

// UnmarshalBinary parses a tail air record.
func (s *TailAirStatus) UnmarshalBinary(b []byte) error {
	if err := checkLen(LayoutTailAir, b, tailAirStatusLen); err != nil {
		return err
	}
	le := binary.LittleEndian
	*s = TailAirStatus{
		WorkMode:      b[1],
		ExternFlag:    b[2],
		Delay:         b[3],
		BootMedia:     b[4],
		MediaFlags:    le.Uint16(b[5:7]),
		AFStatus:      le.Uint16(b[7:9]),
		MediaRunning:  b[9],
		DigiZoom:      le.Uint16(b[10:12]),
		HDMIRes:       b[12],
		SDSpeed:       b[13],
		HDMISize:      b[14],
		RecSize:       b[15],
		NDIRTSP:       b[16],
		RTMP:          b[17],
		SensorFPS:     b[18],
		MFCode:        b[19],
		SRT:           b[20],
		SDStatus:      b[21],
		Brightness:    b[22],
		Contrast:      b[23],
		Hue:           b[24],
		Saturation:    b[25],
		Sharpness:     b[26],
		Style:         b[27],
		USBStatus:     b[28],
		BatteryRaw:    b[29],
		OnlineStatus:  le.Uint16(b[30:32]),
		SDSizeMB:      le.Uint32(b[32:36]),
		AutoSleep:     int16(le.Uint16(b[36:38])),
		ColorTemp:     le.Uint16(b[38:40]),
		AIType:        b[40],
		BatteryStatus: b[41],
		EventCount:    b[42],
		MiscStatus:    le.Uint16(b[43:45]),
	}
	if len(b) >= tailAirStatusLenFull {
		s.SDLeftMB = le.Uint32(b[45:49])
		s.HasSDLeft = true
	}
	return nil
}

// MarshalBinary encodes the record. Byte 0 carries the record length.
func (s *TailAirStatus) MarshalBinary() ([]byte, error) {
	n := tailAirStatusLen
	if s.HasSDLeft {
		n = tailAirStatusLenFull
	}
	b := make([]byte, n)
	le := binary.LittleEndian
	b[0] = byte(n)
	b[1] = s.WorkMode
	b[2] = s.ExternFlag
	b[3] = s.Delay
	b[4] = s.BootMedia
	le.PutUint16(b[5:7], s.MediaFlags)
	le.PutUint16(b[7:9], s.AFStatus)
	b[9] = s.MediaRunning
	le.PutUint16(b[10:12], s.DigiZoom)
	b[12] = s.HDMIRes
	b[13] = s.SDSpeed
	b[14] = s.HDMISize
	b[15] = s.RecSize
	b[16] = s.NDIRTSP
	b[17] = s.RTMP
	b[18] = s.SensorFPS
	b[19] = s.MFCode
	b[20] = s.SRT
	b[21] = s.SDStatus
	b[22] = s.Brightness
	b[23] = s.Contrast
	b[24] = s.Hue
	b[25] = s.Saturation
	b[26] = s.Sharpness
	b[27] = s.Style
	b[28] = s.USBStatus
	b[29] = s.BatteryRaw
	le.PutUint16(b[30:32], s.OnlineStatus)
	le.PutUint32(b[32:36], s.SDSizeMB)
	le.PutUint16(b[36:38], uint16(s.AutoSleep))
	le.PutUint16(b[38:40], s.ColorTemp)
	b[40] = s.AIType
	b[41] = s.BatteryStatus
	b[42] = s.EventCount
	le.PutUint16(b[43:45], s.MiscStatus)
	if s.HasSDLeft {
		le.PutUint32(b[45:49], s.SDLeftMB)
	}
	return b, nil
}
