package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camlink-core/internal/audit"
	"github.com/nerrad567/camlink-core/internal/control"
	"github.com/nerrad567/camlink-core/internal/device"
)

// commandTimeout bounds a synchronous command issued over HTTP.
const commandTimeout = 10 * time.Second

// deviceCtx resolves {sn} to a connected device and stores it in the
// request context.
func (s *Server) deviceCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sn := chi.URLParam(r, "sn")
		d, ok := s.registry.BySN(sn)
		if !ok {
			writeNotFound(w, "device not found")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyDevice, d)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceFromContext(ctx context.Context) *device.Device {
	d, _ := ctx.Value(ctxKeyDevice).(*device.Device) //nolint:errcheck // set by deviceCtx
	return d
}

// handleListDevices returns every connected camera.
//
// Query parameters:
//   - family: filter by transport family (usb, network, ble, loopback)
//   - product: filter by product name (tiny_2, meet, tail_air, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	family := r.URL.Query().Get("family")
	product := r.URL.Query().Get("product")

	views := make([]control.DeviceView, 0, s.registry.Count())
	for _, d := range s.registry.All() {
		v := control.NewDeviceView(d)
		if family != "" && v.Family != family {
			continue
		}
		if product != "" && v.Product != product {
			continue
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single camera.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, control.NewDeviceView(deviceFromContext(r.Context())))
}

// handleGetStatus returns the cached hardware status. It never touches the
// device.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())
	writeJSON(w, http.StatusOK, control.NewStatusView(d.SN(), d.Status()))
}

// handleRefreshStatus queries the status immediately instead of waiting for
// the next scheduled refresh. The new snapshot arrives through push.
func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())
	if !d.StatusCache().RefreshNow() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeDeviceBusy, "status query already in flight")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

// handleListCommands lists the command names accepted by POST /commands.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"commands": control.Commands()})
}

// handleCommand executes one named command and waits for the device.
//
// Request body: {"id": "...", "command": "set_zoom", "params": {"ratio": 200}}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())

	var req control.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}
	req.Source = audit.SourceAPI

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	result, err := control.Execute(ctx, d, req)
	ack := control.NewAck(d.SN(), req, result, err)

	s.auditLog(r.Context(), &audit.Entry{
		Action:   audit.ActionCommand,
		SN:       d.SN(),
		Endpoint: d.Endpoint().Address,
		Result:   ack.Code,
		Details:  map[string]any{"command": req.Command, "status": string(ack.Status)},
	})

	if err != nil {
		s.logger.Debug("command failed", "sn", d.SN(), "command", req.Command, "error", err)
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

type refreshPeriodBody struct {
	Period int `json:"period"`
}

// handleGetRefreshPeriod returns the status refresh period in ticks.
func (s *Server) handleGetRefreshPeriod(w http.ResponseWriter, r *http.Request) {
	c := deviceFromContext(r.Context()).StatusCache()
	writeJSON(w, http.StatusOK, map[string]any{"period": c.RefreshPeriod(), "counter": c.Counter()})
}

// handleSetRefreshPeriod changes the refresh period. It applies from the
// next tick; zero or less disables scheduled refreshes.
func (s *Server) handleSetRefreshPeriod(w http.ResponseWriter, r *http.Request) {
	var body refreshPeriodBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	c := deviceFromContext(r.Context()).StatusCache()
	c.SetRefreshPeriod(body.Period)
	writeJSON(w, http.StatusOK, map[string]any{"period": c.RefreshPeriod()})
}

type pushBody struct {
	Enabled bool `json:"enabled"`
}

// handleGetPush reports whether status push is enabled for the device.
func (s *Server) handleGetPush(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "status push not configured")
		return
	}
	sn := deviceFromContext(r.Context()).SN()
	writeJSON(w, http.StatusOK, pushBody{Enabled: s.pusher.StatusPush(sn)})
}

// handleSetPush turns status push on or off.
func (s *Server) handleSetPush(w http.ResponseWriter, r *http.Request) {
	if s.pusher == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "status push not configured")
		return
	}
	var body pushBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	sn := deviceFromContext(r.Context()).SN()
	if err := s.pusher.SetStatusPush(sn, body.Enabled); err != nil {
		writeNotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type resourcePathBody struct {
	Mini     string `json:"mini"`
	Resource string `json:"resource"`
	Path     string `json:"path"` // log only
}

// handleSetResourcePath sets the local paths for one transfer slot.
// {index} is 0-3, or "log" for the device log.
func (s *Server) handleSetResourcePath(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())

	var body resourcePathBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	index := chi.URLParam(r, "index")
	if index == "log" {
		if body.Path == "" {
			writeBadRequest(w, "path is required")
			return
		}
		d.Transfers().SetLocalLogPath(body.Path)
		writeJSON(w, http.StatusOK, body)
		return
	}

	i, err := strconv.Atoi(index)
	if err != nil || i < 0 || i >= device.MaxResourceSlots {
		writeBadRequest(w, fmt.Sprintf("index must be 0-%d or log", device.MaxResourceSlots-1))
		return
	}
	if !d.Transfers().SetLocalResourcePath(body.Mini, body.Resource, i) {
		writeBadRequest(w, "invalid slot")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// handleListTransfers returns the state of every transfer slot.
func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	jobs := deviceFromContext(r.Context()).Transfers().Jobs()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": control.NewJobViews(jobs)})
}

type transferBody struct {
	FileType string `json:"file_type"`
}

// handleStartTransfer starts a download or upload. The direction follows
// from the file type; the result arrives over WebSocket and MQTT.
//
// Request body: {"file_type": "image0"} or {"file_type": "upload_video1"}
func (s *Server) handleStartTransfer(w http.ResponseWriter, r *http.Request) {
	d := deviceFromContext(r.Context())

	var body transferBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	ft, err := device.ParseFileType(body.FileType)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	var started bool
	if ft.Direction() == device.Upload {
		started = d.Transfers().StartUpload(ft)
	} else {
		started = d.Transfers().StartDownload(ft)
	}

	result := 0
	if !started {
		result = -1
	}
	s.auditLog(r.Context(), &audit.Entry{
		Action:   audit.ActionTransfer,
		SN:       d.SN(),
		Endpoint: d.Endpoint().Address,
		Result:   result,
		Details:  map[string]any{"file_type": ft.String(), "started": started},
	})

	if !started {
		writeConflict(w, "transfer already running for this slot or no local path set")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"file_type": ft.String(), "started": true})
}
