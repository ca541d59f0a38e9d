package device

import (
	"errors"
	"testing"
)

func TestProductLayout(t *testing.T) {
	tests := []struct {
		product ProductType
		want    Layout
	}{
		{ProductTiny, LayoutTiny},
		{ProductTiny2Lite, LayoutTiny},
		{ProductTinySE, LayoutTiny},
		{ProductHDMIBox, LayoutTiny},
		{ProductMeet, LayoutMeet},
		{ProductMeet4k, LayoutMeet},
		{ProductMeetSE, LayoutMeet},
		{ProductTailAir, LayoutTailAir},
		{ProductTail2, LayoutTailAir},
	}
	for _, tt := range tests {
		if got := tt.product.Layout(); got != tt.want {
			t.Errorf("%s.Layout() = %s, want %s", tt.product, got, tt.want)
		}
	}
}

func TestParseTinyStatus(t *testing.T) {
	raw := make([]byte, 40)
	raw[4], raw[5] = 75, 0 // zoom 75, little-endian
	raw[9] = byte(RunStatusSleep)
	raw[10], raw[11] = 0xFF, 0xFF // auto sleep -1
	raw[24] = 2                   // AI mode
	raw[35] = 1                   // BLE remote attached

	st, err := ParseStatus(LayoutTiny, raw)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	s := st.(*TinyStatus)
	if s.ZoomRatio() != 75 || s.AIMode() != 2 || s.RunState() != RunStatusSleep {
		t.Errorf("zoom=%d ai=%d run=%s", s.ZoomRatio(), s.AIMode(), s.RunState())
	}
	if s.AutoSleep != -1 || !s.BLEConnected() {
		t.Errorf("auto sleep=%d ble=%v", s.AutoSleep, s.BLEConnected())
	}
	if _, _, ok := s.Battery(); ok {
		t.Error("tiny reports a battery")
	}

	out, _ := s.MarshalBinary()
	if len(out) != tinyStatusLen || out[4] != 75 || out[9] != byte(RunStatusSleep) {
		t.Errorf("MarshalBinary() = %x", out)
	}
}

func TestParseMeetStatus(t *testing.T) {
	in := &MeetStatus{MediaMode: 1, DevStatus: int8(RunStatusPrivacy), Zoom: 30, AutoSleep: 600, Flip: 1}
	raw, _ := in.MarshalBinary()

	st, err := ParseStatus(LayoutMeet, raw)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if got := *st.(*MeetStatus); got != *in {
		t.Errorf("ParseStatus() = %+v, want %+v", got, *in)
	}
	if st.RunState() != RunStatusPrivacy || st.AIMode() != 1 {
		t.Errorf("run=%s ai=%d", st.RunState(), st.AIMode())
	}
}

func TestParseTailAirStatus(t *testing.T) {
	raw := make([]byte, tailAirStatusLen)
	raw[5] = mediaHDR | mediaFlip | 2<<4 // anti flicker 2
	raw[6] = (mediaAELock | 1<<10) >> 8  // AE lock, AF mode 1
	raw[9] = 1                           // media running
	raw[10], raw[11] = 0x32, 0x50        // ratio 0x032=50, speed 5
	raw[29] = 0x80 | 64                  // charging, 64%
	raw[40] = 3

	st, err := ParseStatus(LayoutTailAir, raw)
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	s := st.(*TailAirStatus)

	if !s.HDR() || !s.Flip() || s.Mirror() || s.AntiFlicker() != 2 {
		t.Errorf("media flags = 0x%04X", s.MediaFlags)
	}
	if !s.AELock() || s.AFMode() != 1 {
		t.Errorf("ae lock=%v af mode=%d", s.AELock(), s.AFMode())
	}
	if s.ZoomRatio() != 50 || s.ZoomSpeed() != 5 {
		t.Errorf("zoom=%d speed=%d", s.ZoomRatio(), s.ZoomSpeed())
	}
	pct, charging, ok := s.Battery()
	if pct != 64 || !charging || !ok {
		t.Errorf("Battery() = %d, %v, %v", pct, charging, ok)
	}
	if s.RunState() != RunStatusRun || s.AIMode() != 3 {
		t.Errorf("run=%s ai=%d", s.RunState(), s.AIMode())
	}
	if s.HasSDLeft {
		t.Error("short record should not carry sd_left")
	}

	full := append(raw, 0x10, 0x00, 0x00, 0x00)
	st, _ = ParseStatus(LayoutTailAir, full)
	if s := st.(*TailAirStatus); !s.HasSDLeft || s.SDLeftMB != 16 {
		t.Errorf("sd left = %d (%v)", s.SDLeftMB, s.HasSDLeft)
	}
}

func TestParseStatusTooShort(t *testing.T) {
	for _, l := range []Layout{LayoutTiny, LayoutMeet, LayoutTailAir} {
		if _, err := ParseStatus(l, make([]byte, 10)); !errors.Is(err, ErrInvalidStatus) {
			t.Errorf("%s: error = %v", l, err)
		}
	}
}

func TestDefaultStatus(t *testing.T) {
	for _, l := range []Layout{LayoutTiny, LayoutMeet, LayoutTailAir} {
		if got := DefaultStatus(l).Layout(); got != l {
			t.Errorf("DefaultStatus(%s).Layout() = %s", l, got)
		}
	}
}
