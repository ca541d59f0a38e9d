package control

import (
	"time"

	"github.com/nerrad567/camlink-core/internal/device"
)

// DeviceView is the JSON shape of a connected camera.
type DeviceView struct {
	SN         string    `json:"sn"`
	UUID       string    `json:"uuid"`
	Name       string    `json:"name"`
	Product    string    `json:"product"`
	Family     string    `json:"family"`
	Address    string    `json:"address"`
	Version    string    `json:"version,omitempty"`
	ModelCode  string    `json:"model_code,omitempty"`
	Mode       string    `json:"mode"`
	SocVersion uint8     `json:"soc_version"`
	Connected  bool      `json:"connected"`
	Pending    int       `json:"pending_commands"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewDeviceView snapshots d.
func NewDeviceView(d *device.Device) DeviceView {
	info := d.Info()
	return DeviceView{
		SN:         info.SN,
		UUID:       info.UUID.String(),
		Name:       info.Name,
		Product:    info.Product.String(),
		Family:     string(info.Endpoint.Family),
		Address:    info.Endpoint.Address,
		Version:    info.Version,
		ModelCode:  info.ModelCode,
		Mode:       info.Mode.String(),
		SocVersion: info.SocVersion,
		Connected:  d.Alive(),
		Pending:    d.PendingCommands(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// StateMessage announces a connect or disconnect.
type StateMessage struct {
	SN        string      `json:"sn"`
	Connected bool        `json:"connected"`
	Device    *DeviceView `json:"device,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatusView is the JSON shape of a cached status snapshot.
type StatusView struct {
	SN         string                `json:"sn"`
	Layout     string                `json:"layout"`
	Valid      bool                  `json:"valid"`
	ReceivedAt *time.Time            `json:"received_at,omitempty"`
	ZoomRatio  int                   `json:"zoom_ratio"`
	AIMode     int                   `json:"ai_mode"`
	RunState   string                `json:"run_state"`
	Battery    *BatteryView          `json:"battery,omitempty"`
	Raw        device.HardwareStatus `json:"raw"`
}

// BatteryView is present only for battery powered products.
type BatteryView struct {
	Percent  int  `json:"percent"`
	Charging bool `json:"charging"`
}

// NewStatusView converts a snapshot.
func NewStatusView(sn string, s device.Snapshot) StatusView {
	v := StatusView{
		SN:        sn,
		Layout:    s.Status.Layout().String(),
		Valid:     s.Valid(),
		ZoomRatio: s.Status.ZoomRatio(),
		AIMode:    s.Status.AIMode(),
		RunState:  s.Status.RunState().String(),
		Raw:       s.Status,
	}
	if v.Valid {
		at := s.ReceivedAt.UTC()
		v.ReceivedAt = &at
	}
	if pct, charging, ok := s.Status.Battery(); ok {
		v.Battery = &BatteryView{Percent: pct, Charging: charging}
	}
	return v
}

// Fields returns the numeric status fields written to the time-series
// store.
func (v StatusView) Fields() map[string]any {
	fields := map[string]any{
		"zoom_ratio": v.ZoomRatio,
		"ai_mode":    v.AIMode,
		"run_state":  v.RunState,
	}
	if v.Battery != nil {
		fields["battery_percent"] = v.Battery.Percent
		fields["charging"] = v.Battery.Charging
	}
	return fields
}

// EventView is the JSON shape of a device event.
type EventView struct {
	SN         string    `json:"sn"`
	Code       int32     `json:"code"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Payload    []byte    `json:"payload,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewEventView converts ev.
func NewEventView(sn string, ev device.Event) EventView {
	return EventView{
		SN:         sn,
		Code:       int32(ev.Code),
		Name:       ev.Code.String(),
		Category:   ev.Category.String(),
		Payload:    ev.Payload,
		ReceivedAt: ev.ReceivedAt.UTC(),
	}
}

// TransferView reports transfer progress or a terminal result.
type TransferView struct {
	SN        string    `json:"sn"`
	FileType  string    `json:"file_type"`
	Direction string    `json:"direction"`
	Code      int       `json:"code"`
	Result    string    `json:"result"`
	Final     bool      `json:"final"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDownloadView converts a download result. Downloads report only once.
func NewDownloadView(sn string, t device.FileType, r device.DownloadResult) TransferView {
	return TransferView{
		SN:        sn,
		FileType:  t.String(),
		Direction: device.Download.String(),
		Code:      int(r),
		Result:    r.String(),
		Final:     true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUploadView converts an upload progress code or sentinel.
func NewUploadView(sn string, t device.FileType, code int) TransferView {
	v := TransferView{
		SN:        sn,
		FileType:  t.String(),
		Direction: device.Upload.String(),
		Code:      code,
		Result:    "progress",
		Timestamp: time.Now().UTC(),
	}
	switch code {
	case device.UploadSuccess:
		v.Result, v.Final = "success", true
	case device.UploadError:
		v.Result, v.Final = "error", true
	case device.UploadWarn:
		v.Result, v.Final = "busy", true
	case device.UploadFailure:
		v.Result, v.Final = "rejected", true
	}
	return v
}

// JobView is the JSON shape of one transfer slot.
type JobView struct {
	ID       string `json:"id,omitempty"`
	Slot     int    `json:"slot"`
	FileType string `json:"file_type,omitempty"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	Path     string `json:"path,omitempty"`
}

// NewJobViews converts every slot.
func NewJobViews(jobs []device.JobInfo) []JobView {
	out := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		v := JobView{ID: j.ID, Slot: j.Slot, State: j.State.String(), Progress: j.Progress, Path: j.Path}
		if j.FileType != 0 {
			v.FileType = j.FileType.String()
		}
		out = append(out, v)
	}
	return out
}
