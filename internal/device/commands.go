package device

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/camlink-core/internal/protocol"
)

// SetRunStatus switches between run, sleep and privacy.
func (d *Device) SetRunStatus(ctx context.Context, s RunStatus) error {
	switch s {
	case RunStatusRun, RunStatusSleep, RunStatusPrivacy:
	default:
		return fmt.Errorf("%w: run status %d", ErrInvalidArgument, s)
	}
	_, err := d.Call(ctx, protocol.OpSetRunStatus, []byte{byte(s)})
	return err
}

// SetName renames the device. The registry keeps looking devices up by
// their current name.
func (d *Device) SetName(ctx context.Context, name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("%w: name length %d", ErrInvalidArgument, len(name))
	}
	if _, err := d.Call(ctx, protocol.OpSetName, []byte(name)); err != nil {
		return err
	}
	d.setName(name)
	return nil
}

// SetZoom sets the digital zoom ratio, 0-100.
func (d *Device) SetZoom(ctx context.Context, ratio int) error {
	if ratio < 0 || ratio > 100 {
		return fmt.Errorf("%w: zoom %d", ErrInvalidArgument, ratio)
	}
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(ratio))
	_, err := d.Call(ctx, protocol.OpSetZoom, b)
	return err
}

// Zoom reads the zoom ratio from the device rather than the cache.
func (d *Device) Zoom(ctx context.Context) (int, error) {
	resp, err := d.Call(ctx, protocol.OpGetZoom, nil)
	if err != nil {
		return 0, err
	}
	if len(resp.Payload) < 2 {
		return 0, &CommError{Code: CodeLength, Opcode: protocol.OpGetZoom}
	}
	return int(binary.BigEndian.Uint16(resp.Payload)), nil
}

// GimbalReset returns the gimbal to its home position.
func (d *Device) GimbalReset(ctx context.Context) error {
	_, err := d.Call(ctx, protocol.OpGimbalReset, nil)
	return err
}

// SetGimbalSpeed moves the gimbal at the given speeds, -90 to 90 per axis.
// Zero on every axis stops it.
func (d *Device) SetGimbalSpeed(ctx context.Context, pitch, pan, roll int) error {
	for _, v := range []int{pitch, pan, roll} {
		if v < -90 || v > 90 {
			return fmt.Errorf("%w: gimbal speed %d", ErrInvalidArgument, v)
		}
	}
	_, err := d.Call(ctx, protocol.OpGimbalSpeed, []byte{byte(int8(pitch)), byte(int8(pan)), byte(int8(roll))})
	return err
}

// SetGimbalAngle moves the gimbal to absolute angles in degrees. Angles
// are sent in tenths of a degree.
func (d *Device) SetGimbalAngle(ctx context.Context, pitch, pan, roll float64) error {
	b := make([]byte, 6)
	for i, v := range []float64{pitch, pan, roll} {
		if v < -180 || v > 180 {
			return fmt.Errorf("%w: gimbal angle %.1f", ErrInvalidArgument, v)
		}
		binary.BigEndian.PutUint16(b[i*2:], uint16(int16(v*10)))
	}
	_, err := d.Call(ctx, protocol.OpGimbalAngle, b)
	return err
}

// SetAIMode selects the AI mode and sub mode. Values are product specific
// and passed through.
func (d *Device) SetAIMode(ctx context.Context, mode, subMode uint8) error {
	_, err := d.Call(ctx, protocol.OpSetAIMode, []byte{mode, subMode})
	return err
}

// SetAITracking turns target tracking on or off.
func (d *Device) SetAITracking(ctx context.Context, enabled bool) error {
	v := byte(0)
	if enabled {
		v = 1
	}
	_, err := d.Call(ctx, protocol.OpSetAITracking, []byte{v})
	return err
}
