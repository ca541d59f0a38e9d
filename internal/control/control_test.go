package control

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/transport/loopback"
)

func openCamera(t *testing.T, product device.ProductType) (*device.Device, *loopback.SimDevice) {
	t.Helper()
	info := protocol.DeviceInfo{
		ProductType: uint8(product),
		SysType:     uint8(device.SysMain),
		SN:          "SN42",
		Name:        "desk",
		Version:     "1.0.3",
	}
	copy(info.UUID[:], "uuid-SN42")

	raw, err := device.DefaultStatus(product.Layout()).MarshalBinary()
	require.NoError(t, err)

	hub := loopback.NewHub("")
	sim := loopback.NewSimDevice("sim0", info, raw)
	hub.Plug(sim)
	eps, err := hub.Enumerate(context.Background())
	require.NoError(t, err)

	d, err := device.Open(context.Background(), hub, eps[0], device.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d, sim
}

func TestExecute(t *testing.T) {
	d, sim := openCamera(t, device.ProductTiny)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tests := []struct {
		name    string
		req     Request
		wantErr error
		check   func(t *testing.T, result any)
	}{
		{
			name: "set run status",
			req:  Request{Command: "set_run_status", Params: json.RawMessage(`{"status":"sleep"}`)},
			check: func(t *testing.T, _ any) {
				assert.Equal(t, byte(device.RunStatusSleep), sim.RunStatus())
			},
		},
		{
			name:    "bad run status",
			req:     Request{Command: "set_run_status", Params: json.RawMessage(`{"status":"off"}`)},
			wantErr: device.ErrInvalidArgument,
		},
		{
			name: "zoom round trip",
			req:  Request{Command: "set_zoom", Params: json.RawMessage(`{"ratio":40}`)},
		},
		{
			name: "get zoom",
			req:  Request{Command: "get_zoom"},
			check: func(t *testing.T, result any) {
				assert.Equal(t, map[string]int{"ratio": 40}, result)
			},
		},
		{
			name:    "zoom without ratio",
			req:     Request{Command: "set_zoom"},
			wantErr: ErrInvalidParams,
		},
		{
			name:    "malformed params",
			req:     Request{Command: "set_name", Params: json.RawMessage(`[1,2]`)},
			wantErr: ErrInvalidParams,
		},
		{
			name: "rename",
			req:  Request{Command: "set_name", Params: json.RawMessage(`{"name":"stage"}`)},
			check: func(t *testing.T, _ any) {
				assert.Equal(t, "stage", d.Name())
			},
		},
		{
			name: "ai mode",
			req:  Request{Command: "set_ai_mode", Params: json.RawMessage(`{"mode":2,"sub_mode":1}`)},
			check: func(t *testing.T, _ any) {
				assert.Equal(t, byte(2), sim.AIMode())
			},
		},
		{
			name: "gimbal speed",
			req:  Request{Command: "set_gimbal_speed", Params: json.RawMessage(`{"pitch":-10,"pan":20,"roll":0}`)},
			check: func(t *testing.T, _ any) {
				assert.Equal(t, []byte{0xF6, 20, 0}, sim.Gimbal())
			},
		},
		{
			name:    "unknown command",
			req:     Request{Command: "self_destruct"},
			wantErr: ErrUnknownCommand,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Execute(ctx, d, tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsClientError(err))
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, result)
			}
		})
	}
}

func TestCommandsSorted(t *testing.T) {
	names := Commands()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	assert.Contains(t, names, "gimbal_reset")
}

func TestNewAck(t *testing.T) {
	req := Request{ID: "c-1", Command: "set_zoom"}

	tests := []struct {
		name       string
		err        error
		wantStatus AckStatus
		wantCode   int
	}{
		{"ok", nil, AckAccepted, 0},
		{"timeout", &device.CommError{Code: device.CodeTimeout, Opcode: protocol.OpSetZoom}, AckTimeout, -3},
		{"busy", &device.CommError{Code: device.CodeBusy, Opcode: protocol.OpSetZoom}, AckBusy, -4},
		{"other", errors.New("boom"), AckFailed, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := NewAck("SN1", req, nil, tt.err)
			assert.Equal(t, "c-1", ack.ID)
			assert.Equal(t, "SN1", ack.SN)
			assert.Equal(t, tt.wantStatus, ack.Status)
			assert.Equal(t, tt.wantCode, ack.Code)
			assert.Equal(t, tt.err != nil, ack.Error != "")
		})
	}
}

func TestViews(t *testing.T) {
	d, _ := openCamera(t, device.ProductTailAir)

	dv := NewDeviceView(d)
	assert.Equal(t, "SN42", dv.SN)
	assert.Equal(t, "loopback", dv.Family)
	assert.Equal(t, "tail_air", dv.Product)
	assert.True(t, dv.Connected)

	sv := NewStatusView(d.SN(), d.Status())
	assert.Equal(t, "tail_air", sv.Layout)
	assert.False(t, sv.Valid)
	assert.Nil(t, sv.ReceivedAt)
	assert.NotNil(t, sv.Battery)
	assert.Contains(t, sv.Fields(), "battery_percent")

	up := NewUploadView("SN42", device.FileUploadImage1, 50)
	assert.False(t, up.Final)
	assert.Equal(t, "progress", up.Result)
	up = NewUploadView("SN42", device.FileUploadImage1, device.UploadWarn)
	assert.True(t, up.Final)
	assert.Equal(t, "busy", up.Result)

	down := NewDownloadView("SN42", device.FileDownloadLog, device.DownloadTypeErr)
	assert.Equal(t, -3, down.Code)
	assert.Equal(t, "log", down.FileType)

	ev := NewEventView("SN42", device.Event{Code: device.EventWarnSDWriteSlow, Category: device.CategoryWarning})
	assert.Equal(t, "warning", ev.Category)
	assert.Equal(t, int32(1000), ev.Code)
}
