package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/camlink-core/internal/device"
)

// Errors returned by Execute before anything reaches the device.
var (
	ErrUnknownCommand = errors.New("control: unknown command")
	ErrInvalidParams  = errors.New("control: invalid parameters")
)

// Request is one named command with JSON parameters. The HTTP API and the
// MQTT command topic both decode into it.
type Request struct {
	// ID correlates the request with its acknowledgment. Optional.
	ID string `json:"id,omitempty"`

	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`

	// Source records where the command came from ("api", "mqtt").
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome of a command.
type AckStatus string

// Ack statuses.
const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
	AckTimeout  AckStatus = "timeout"
	AckBusy     AckStatus = "busy"
)

// Ack reports the result of a Request.
type Ack struct {
	ID        string    `json:"id,omitempty"`
	SN        string    `json:"sn"`
	Command   string    `json:"command"`
	Status    AckStatus `json:"status"`
	Code      int       `json:"code"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAck builds the acknowledgment for req from Execute's return values.
func NewAck(sn string, req Request, result any, err error) Ack {
	ack := Ack{
		ID:        req.ID,
		SN:        sn,
		Command:   req.Command,
		Status:    AckAccepted,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err == nil {
		return ack
	}
	ack.Error = err.Error()
	ack.Code = int(device.CodeOf(err))
	switch device.CodeOf(err) {
	case device.CodeTimeout:
		ack.Status = AckTimeout
	case device.CodeBusy:
		ack.Status = AckBusy
	default:
		ack.Status = AckFailed
	}
	return ack
}

type handler func(ctx context.Context, d *device.Device, params json.RawMessage) (any, error)

var handlers = map[string]handler{
	"set_run_status": func(ctx context.Context, d *device.Device, p json.RawMessage) (any, error) {
		var in struct {
			Status string `json:"status"`
		}
		if err := decode(p, &in); err != nil {
			return nil, err
		}
		s, err := device.ParseRunStatus(in.Status)
		if err != nil {
			return nil, err
		}
		return nil, d.SetRunStatus(ctx, s)
	},
	"set_name": func(ctx context.Context, d *device.Device, p json.RawMessage) (any, error) {
		var in struct {
			Name string `json:"name"`
		}
		if err := decode(p, &in); err != nil {
			return nil, err
		}
		return nil, d.SetName(ctx, in.Name)
	},
	"set_zoom": func(ctx context.Context, d *device.Device, p json.RawMessage) (any, error) {
		var in struct {
			Ratio *int `json:"ratio"`
		}
		if err := decode(p, &in); err != nil {
			return nil, err
		}
		if in.Ratio == nil {
			return nil, fmt.Errorf("%w: ratio is required", ErrInvalidParams)
		}
		return nil, d.SetZoom(ctx, *in.Ratio)
	},
	"get_zoom": func(ctx context.Context, d *device.Device, _ json.RawMessage) (any, error) {
		z, err := d.Zoom(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"ratio": z}, nil
	},
	"gimbal_reset": func(ctx context.Context, d *device.Device, _ json.RawMessage) (any, error) {
		return nil, d.GimbalReset(ctx)
	},
	"set_gimbal_speed": func(ctx context.Context, d *device.Device, p json.RawMessage) (any, error) {
		var in struct {
			Pitch int `json:"pitch"`
			Pan   int `json:"pan"`
			Roll  int `json:"roll"`
		}
		if err := decode(p, &in); err != nil {
			return nil, err
		}
		return nil, d.SetGimbalSpeed(ctx, in.Pitch, in.Pan, in.Roll)
	},
	"set_gimbal_angle": func(ctx context.Context, d *device.Device, p json.RawMessage) (any, error) {
		var in struct {
			Pitch float64 `json:"pitch"`
			Pan   float64 `json:"pan"`
			Roll  float64 `json:"roll"`
		}
		if err := decode(p, &in); err != nil {
			return nil, err
		}
		return nil, d.SetGimbalAngle(ctx, in.Pitch, in.Pan, in.Roll)
	},
	"set_ai_mode": func(ctx context.Context, d *device.Device, p json.RawMessage) (any, error) {
		var in struct {
			Mode    uint8 `json:"mode"`
			SubMode uint8 `json:"sub_mode"`
		}
		if err := decode(p, &in); err != nil {
			return nil, err
		}
		return nil, d.SetAIMode(ctx, in.Mode, in.SubMode)
	},
	"set_ai_tracking": func(ctx context.Context, d *device.Device, p json.RawMessage) (any, error) {
		var in struct {
			Enabled bool `json:"enabled"`
		}
		if err := decode(p, &in); err != nil {
			return nil, err
		}
		return nil, d.SetAITracking(ctx, in.Enabled)
	},
	"refresh_status": func(_ context.Context, d *device.Device, _ json.RawMessage) (any, error) {
		return map[string]bool{"started": d.StatusCache().RefreshNow()}, nil
	},
}

func decode(p json.RawMessage, v any) error {
	if len(p) == 0 {
		p = json.RawMessage("{}")
	}
	if err := json.Unmarshal(p, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// Commands lists the supported command names, sorted.
func Commands() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs req against d and blocks until the device answers or ctx is
// done. The result is non-nil only for commands that read something back.
func Execute(ctx context.Context, d *device.Device, req Request) (any, error) {
	h, ok := handlers[req.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command)
	}
	return h(ctx, d, req.Params)
}

// IsClientError reports whether err was caused by the request itself rather
// than the device or the link.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrInvalidParams) ||
		errors.Is(err, device.ErrInvalidArgument)
}
