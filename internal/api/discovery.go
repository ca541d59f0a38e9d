package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camlink-core/internal/audit"
	"github.com/nerrad567/camlink-core/internal/registry"
	"github.com/nerrad567/camlink-core/internal/transport"
)

// scanNowTimeout bounds a discovery pass run inside a request.
const scanNowTimeout = 30 * time.Second

// ScannerView reports one discovery loop.
type ScannerView struct {
	Family   string `json:"family"`
	Scanning bool   `json:"scanning"`
	Devices  int    `json:"devices"`
}

// handleListScanners reports every configured transport family and whether
// its discovery loop runs.
func (s *Server) handleListScanners(w http.ResponseWriter, _ *http.Request) {
	counts := make(map[transport.Family]int)
	for _, d := range s.registry.All() {
		counts[d.Endpoint().Family]++
	}

	families := s.registry.Families()
	views := make([]ScannerView, 0, len(families))
	for _, f := range families {
		views = append(views, ScannerView{
			Family:   string(f),
			Scanning: s.registry.Scanning(f),
			Devices:  counts[f],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"scanners": views})
}

// familyParam parses {family}, writing a 400 on failure.
func familyParam(w http.ResponseWriter, r *http.Request) (transport.Family, bool) {
	f, err := transport.ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return "", false
	}
	return f, true
}

// handleStartScan starts the background discovery loop of a family.
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	f, ok := familyParam(w, r)
	if !ok {
		return
	}
	err := s.registry.StartScan(f)
	s.auditScan(r.Context(), f, "start", err)
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScannerView{Family: string(f), Scanning: true})
}

// handleStopScan stops the discovery loop of a family. Connected devices
// stay connected.
func (s *Server) handleStopScan(w http.ResponseWriter, r *http.Request) {
	f, ok := familyParam(w, r)
	if !ok {
		return
	}
	err := s.registry.StopScan(f)
	s.auditScan(r.Context(), f, "stop", err)
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScannerView{Family: string(f), Scanning: false})
}

// handleScanNow runs one discovery pass and returns once it completes.
func (s *Server) handleScanNow(w http.ResponseWriter, r *http.Request) {
	f, ok := familyParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), scanNowTimeout)
	defer cancel()

	err := s.registry.ScanNow(ctx, f)
	s.auditScan(r.Context(), f, "now", err)
	if err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"family": string(f), "devices": s.registry.Count()})
}

type heartbeatBody struct {
	IntervalMS int `json:"interval_ms"`
}

// handleSetHeartbeat changes the keep-alive interval of every transport
// that has one.
func (s *Server) handleSetHeartbeat(w http.ResponseWriter, r *http.Request) {
	var body heartbeatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.IntervalMS <= 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "interval_ms must be positive")
		return
	}
	if err := s.registry.SetHeartbeatInterval(time.Duration(body.IntervalMS) * time.Millisecond); err != nil {
		writeScanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type allowListBody struct {
	Addresses []string `json:"addresses"`
}

// handleSetAllowList restricts discovery to the given addresses. An empty
// list lifts the restriction.
func (s *Server) handleSetAllowList(w http.ResponseWriter, r *http.Request) {
	var body allowListBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.registry.SetAllowList(body.Addresses); err != nil {
		writeScanError(w, err)
		return
	}
	if body.Addresses == nil {
		body.Addresses = []string{}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) auditScan(ctx context.Context, f transport.Family, op string, err error) {
	result := 0
	details := map[string]any{"family": string(f), "op": op}
	if err != nil {
		result = -1
		details["error"] = err.Error()
	}
	s.auditLog(ctx, &audit.Entry{Action: audit.ActionScan, Result: result, Details: details})
}

// writeScanError maps registry errors to HTTP responses.
func writeScanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrUnknownFamily):
		writeNotFound(w, err.Error())
	case errors.Is(err, registry.ErrScanBusy), errors.Is(err, registry.ErrScanNotRunning):
		writeConflict(w, err.Error())
	case errors.Is(err, registry.ErrNotSupported):
		writeError(w, http.StatusNotImplemented, ErrCodeBadRequest, err.Error())
	case errors.Is(err, registry.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, err.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeInternal, err.Error())
	}
}
