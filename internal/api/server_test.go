package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/camlink-core/internal/audit"
	"github.com/nerrad567/camlink-core/internal/auth"
	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/infrastructure/config"
	"github.com/nerrad567/camlink-core/internal/infrastructure/logging"
	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/registry"
	"github.com/nerrad567/camlink-core/internal/transport"
	"github.com/nerrad567/camlink-core/internal/transport/loopback"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// ─── Mocks ─────────────────────────────────────────────────────────

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []audit.Entry
	filter  audit.Filter
}

func (m *mockAuditRepo) Create(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, *e)
	m.mu.Unlock()
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
	return &audit.ListResult{Entries: append([]audit.Entry(nil), m.entries...), Total: len(m.entries)}, nil
}

func (m *mockAuditRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type mockPusher struct {
	mu      sync.Mutex
	enabled map[string]bool
}

func (m *mockPusher) SetStatusPush(sn string, enabled bool) error {
	m.mu.Lock()
	m.enabled[sn] = enabled
	m.mu.Unlock()
	return nil
}

func (m *mockPusher) StatusPush(sn string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[sn]
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error { return context.DeadlineExceeded }

// ─── Fixture ───────────────────────────────────────────────────────

type testEnv struct {
	srv    *Server
	router http.Handler
	reg    *registry.Registry
	sim    *loopback.SimDevice
	audit  *mockAuditRepo
	pusher *mockPusher
}

// testServer creates a Server over a registry holding one simulated camera
// with serial number SN1.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	info := protocol.DeviceInfo{
		ProductType: uint8(device.ProductTiny2),
		SysType:     uint8(device.SysMain),
		SN:          "SN1",
		Name:        "desk",
		Version:     "2.1.0",
	}
	copy(info.UUID[:], "uuid-SN1")
	raw, err := device.DefaultStatus(device.ProductTiny2.Layout()).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	hub := loopback.NewHub("")
	sim := loopback.NewSimDevice("sim0", info, raw)
	hub.Plug(sim)

	reg := registry.New(registry.Options{
		Transports:       []transport.Transport{hub},
		HandshakeTimeout: time.Second,
	})
	t.Cleanup(func() { reg.Close() })
	if err := reg.ScanNow(context.Background(), transport.FamilyLoopback); err != nil {
		t.Fatalf("ScanNow: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	env := &testEnv{
		reg:    reg,
		sim:    sim,
		audit:  &mockAuditRepo{},
		pusher: &mockPusher{enabled: make(map[string]bool)},
	}

	env.srv, err = New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testSecret,
				AccessTokenTTL: 15,
			},
		},
		Logger:   log,
		Registry: reg,
		Audit:    env.audit,
		Pusher:   env.pusher,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	env.router = env.srv.Handler()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.srv.hub.Run(ctx)
	go env.srv.drainAuditLog(ctx)

	return env
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken("tester", role, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

// do performs a request as role. An empty role sends no token.
func (e *testEnv) do(t *testing.T, role auth.Role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, "", http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Devices != 1 {
		t.Errorf("devices = %d, want 1", resp.Devices)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
}

func TestHealth_DegradedDependency(t *testing.T) {
	env := testServer(t)
	env.srv.health = map[string]HealthChecker{"mqtt": failingCheck{}}

	w := env.do(t, "", http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var resp HealthResponse
	decodeBody(t, w, &resp)
	if resp.Checks["mqtt"] == "ok" {
		t.Error("failing check reported ok")
	}
}

func TestRequestID(t *testing.T) {
	env := testServer(t)

	w := env.do(t, "", http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// ─── Authentication & Authorisation ────────────────────────────────

func TestAuth(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name   string
		role   auth.Role
		method string
		path   string
		body   string
		want   int
	}{
		{"no token", "", http.MethodGet, "/api/v1/devices", "", http.StatusUnauthorized},
		{"viewer reads", auth.RoleViewer, http.MethodGet, "/api/v1/devices", "", http.StatusOK},
		{"viewer cannot operate", auth.RoleViewer, http.MethodPost, "/api/v1/devices/SN1/commands", `{"command":"gimbal_reset"}`, http.StatusForbidden},
		{"operator cannot scan", auth.RoleOperator, http.MethodPost, "/api/v1/scan/loopback/now", "", http.StatusForbidden},
		{"viewer cannot transfer", auth.RoleViewer, http.MethodPost, "/api/v1/devices/SN1/transfers", `{"file_type":"image0"}`, http.StatusForbidden},
		{"admin reads audit", auth.RoleAdmin, http.MethodGet, "/api/v1/audit", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.role, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	env := testServer(t)

	tok, err := auth.GenerateToken("tester", auth.RoleAdmin, "another-secret-that-is-long-enough!!", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", 1},
		{"?family=loopback", 1},
		{"?family=usb", 0},
		{"?product=tiny_2", 1},
		{"?product=meet", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			var resp struct {
				Count int `json:"count"`
			}
			decodeBody(t, w, &resp)
			if resp.Count != tt.want {
				t.Errorf("count = %d, want %d", resp.Count, tt.want)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/SN1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var v struct {
		SN        string `json:"sn"`
		Name      string `json:"name"`
		Connected bool   `json:"connected"`
	}
	decodeBody(t, w, &v)
	if v.SN != "SN1" || v.Name != "desk" || !v.Connected {
		t.Errorf("device = %+v", v)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/NOPE", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown sn status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestGetStatus(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/SN1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var v struct {
		SN     string `json:"sn"`
		Layout string `json:"layout"`
	}
	decodeBody(t, w, &v)
	if v.SN != "SN1" || v.Layout != "tiny" {
		t.Errorf("status view = %+v", v)
	}
}

func TestRefreshStatus(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/devices/SN1/status/refresh", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

func TestCommand(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"set run status", `{"id":"c1","command":"set_run_status","params":{"status":"sleep"}}`, http.StatusOK},
		{"unknown command", `{"command":"self_destruct"}`, http.StatusBadRequest},
		{"bad params", `{"command":"set_run_status","params":{"status":"dancing"}}`, http.StatusBadRequest},
		{"missing command", `{}`, http.StatusBadRequest},
		{"invalid json", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/devices/SN1/commands", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	if got := env.sim.RunStatus(); got != byte(device.RunStatusSleep) {
		t.Errorf("sim run status = %d, want %d", got, device.RunStatusSleep)
	}
}

func TestCommand_Audited(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/devices/SN1/commands", `{"command":"gimbal_reset"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.audit.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	env.audit.mu.Lock()
	defer env.audit.mu.Unlock()
	if len(env.audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(env.audit.entries))
	}
	e := env.audit.entries[0]
	if e.Action != audit.ActionCommand || e.SN != "SN1" || e.Source != audit.SourceAPI {
		t.Errorf("entry = %+v", e)
	}
	if e.Details["subject"] != "tester" {
		t.Errorf("subject = %v, want tester", e.Details["subject"])
	}
}

func TestCommand_DeviceBusy(t *testing.T) {
	env := testServer(t)
	env.sim.SetBusy(true)

	w := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/devices/SN1/commands", `{"command":"gimbal_reset"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d (body %s)", w.Code, http.StatusServiceUnavailable, w.Body.String())
	}
}

func TestListCommands(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/SN1/commands", "")
	var resp struct {
		Commands []string `json:"commands"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Commands) == 0 {
		t.Fatal("expected commands")
	}
}

func TestRefreshPeriod(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleOperator, http.MethodPut, "/api/v1/devices/SN1/refresh-period", `{"period":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", w.Code)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/SN1/refresh-period", "")
	var resp struct {
		Period int `json:"period"`
	}
	decodeBody(t, w, &resp)
	if resp.Period != 7 {
		t.Errorf("period = %d, want 7", resp.Period)
	}
}

func TestPush(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleOperator, http.MethodPut, "/api/v1/devices/SN1/push", `{"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", w.Code)
	}
	if !env.pusher.StatusPush("SN1") {
		t.Error("push not forwarded to pusher")
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/SN1/push", "")
	var resp pushBody
	decodeBody(t, w, &resp)
	if !resp.Enabled {
		t.Error("GET push = false, want true")
	}
}

func TestPush_NotConfigured(t *testing.T) {
	env := testServer(t)
	env.srv.pusher = nil

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/SN1/push", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// ─── Transfers ─────────────────────────────────────────────────────

func TestStartTransfer_NoPath(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/devices/SN1/transfers", `{"file_type":"image0"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/devices/SN1/transfers", `{"file_type":"jpeg"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad file type status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestStartTransfer_Download(t *testing.T) {
	env := testServer(t)
	content := []byte("jpeg bytes")
	env.sim.PutFile(uint32(device.FileDownloadImage1), content)

	dest := filepath.Join(t.TempDir(), "image1.jpg")
	body, _ := json.Marshal(resourcePathBody{Resource: dest}) //nolint:errcheck // static value
	w := env.do(t, auth.RoleOperator, http.MethodPut, "/api/v1/devices/SN1/resources/1", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("set path status = %d (body %s)", w.Code, w.Body.String())
	}

	w = env.do(t, auth.RoleOperator, http.MethodPost, "/api/v1/devices/SN1/transfers", `{"file_type":"image1"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("start status = %d (body %s)", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, err := os.ReadFile(dest); err == nil && string(got) == string(content) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	got, err := os.ReadFile(dest)
	if err != nil || string(got) != string(content) {
		t.Fatalf("downloaded = %q, %v", got, err)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/SN1/transfers", "")
	var resp struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Jobs) != device.MaxResourceSlots {
		t.Errorf("jobs = %d, want %d", len(resp.Jobs), device.MaxResourceSlots)
	}
}

func TestSetResourcePath_Validation(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		index string
		body  string
		want  int
	}{
		{"0", `{"mini":"/tmp/m0","resource":"/tmp/r0"}`, http.StatusOK},
		{"4", `{"resource":"/tmp/r4"}`, http.StatusBadRequest},
		{"x", `{"resource":"/tmp/r"}`, http.StatusBadRequest},
		{"log", `{"path":"/tmp/device.log"}`, http.StatusOK},
		{"log", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			w := env.do(t, auth.RoleOperator, http.MethodPut, "/api/v1/devices/SN1/resources/"+tt.index, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// ─── Discovery ─────────────────────────────────────────────────────

func TestScan(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"list", http.MethodGet, "/api/v1/scan", "", http.StatusOK},
		{"start", http.MethodPost, "/api/v1/scan/loopback/start", "", http.StatusOK},
		{"start again", http.MethodPost, "/api/v1/scan/loopback/start", "", http.StatusConflict},
		{"stop", http.MethodPost, "/api/v1/scan/loopback/stop", "", http.StatusOK},
		{"stop again", http.MethodPost, "/api/v1/scan/loopback/stop", "", http.StatusConflict},
		{"now", http.MethodPost, "/api/v1/scan/loopback/now", "", http.StatusOK},
		{"unconfigured family", http.MethodPost, "/api/v1/scan/usb/now", "", http.StatusNotFound},
		{"bogus family", http.MethodPost, "/api/v1/scan/zigbee/now", "", http.StatusBadRequest},
		{"heartbeat unsupported", http.MethodPut, "/api/v1/discovery/heartbeat", `{"interval_ms":1000}`, http.StatusNotImplemented},
		{"heartbeat invalid", http.MethodPut, "/api/v1/discovery/heartbeat", `{"interval_ms":0}`, http.StatusBadRequest},
		{"allow list unsupported", http.MethodPut, "/api/v1/discovery/allow-list", `{"addresses":["sim0"]}`, http.StatusNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, auth.RoleAdmin, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// ─── Audit ─────────────────────────────────────────────────────────

func TestListAudit_Filter(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodGet, "/api/v1/audit?action=command&sn=SN1&since=2026-01-02T03:04:05Z&limit=10&offset=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	f := env.audit.filter
	if f.Action != "command" || f.SN != "SN1" || f.Limit != 10 || f.Offset != 5 {
		t.Errorf("filter = %+v", f)
	}
	if want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC); !f.Since.Equal(want) {
		t.Errorf("since = %v, want %v", f.Since, want)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodGet, "/api/v1/audit?since=yesterday", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// ─── System ────────────────────────────────────────────────────────

func TestSystem(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/system", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m SystemMetrics
	decodeBody(t, w, &m)
	if m.Devices.Total != 1 || m.Devices.ByFamily["loopback"] != 1 {
		t.Errorf("devices = %+v", m.Devices)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

func TestWSTicket_SingleUse(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp ticketResponse
	decodeBody(t, w, &resp)
	if resp.Ticket == "" {
		t.Fatal("expected non-empty ticket")
	}

	entry, ok := env.srv.tickets.redeem(resp.Ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.subject != "tester" || entry.role != auth.RoleViewer {
		t.Errorf("entry = %+v", entry)
	}
	if _, ok := env.srv.tickets.redeem(resp.Ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	ts := newTicketStore()
	now := time.Now()
	ts.now = func() time.Time { return now }
	ticket := ts.issue("tester", auth.RoleViewer)

	now = now.Add(ticketTTL + time.Second)
	if _, ok := ts.redeem(ticket); ok {
		t.Error("expired ticket should not be valid")
	}

	ts.issue("tester", auth.RoleViewer)
	ts.clean()
	if len(ts.tickets) != 0 {
		t.Errorf("clean left %d tickets", len(ts.tickets))
	}
}

func TestWebSocket_ReceivesBroadcast(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	ticket := env.srv.tickets.issue("tester", auth.RoleViewer)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, Payload: WSSubscribePayload{Channels: []string{"device.status"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // test deadline
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		env.srv.hub.Broadcast("device.status", "SN1", map[string]any{"zoom": 2})
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == WSTypeEvent && msg.Channel == "device.status" && msg.SN == "SN1" {
			return
		}
	}
	t.Fatal("no broadcast received")
}

func TestWebSocket_RejectsMissingTicket(t *testing.T) {
	env := testServer(t)

	w := env.do(t, "", http.MethodGet, "/api/v1/ws", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	w = env.do(t, "", http.MethodGet, "/api/v1/ws?ticket=forged", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("forged ticket status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── Hub ───────────────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// readFrame returns the next queued frame of c, or fails after a second.
func readFrame(t *testing.T, c *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
	}
	return WSMessage{}
}

func expectSilence(t *testing.T, c *WSClient) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)

	subscribed := newWSClient(hub, nil)
	subscribed.channels["device.changed"] = struct{}{}
	other := newWSClient(hub, nil)
	other.channels["device.event"] = struct{}{}
	hub.Register(subscribed)
	hub.Register(other)
	if hub.ClientCount() != 2 {
		t.Errorf("client count = %d, want 2", hub.ClientCount())
	}

	hub.Broadcast("device.changed", "SN1", map[string]any{"connected": true})

	msg := readFrame(t, subscribed)
	if msg.Type != WSTypeEvent || msg.Channel != "device.changed" || msg.SN != "SN1" {
		t.Errorf("frame = %+v", msg)
	}
	expectSilence(t, other)

	hub.Unregister(subscribed)
	if hub.ClientCount() != 1 {
		t.Errorf("after unregister count = %d, want 1", hub.ClientCount())
	}
	hub.Broadcast("device.changed", "SN1", nil)
	if hub.Dropped() != 0 {
		t.Errorf("Dropped() = %d after unregister, want 0", hub.Dropped())
	}
}

func TestHub_CameraFilter(t *testing.T) {
	hub := newTestHub(t)
	c := newWSClient(hub, nil)
	hub.Register(c)

	c.handleMessage([]byte(`{"type":"subscribe","id":"s1","payload":{"channels":["device.status"],"sn":["SN1"]}}`))
	if resp := readFrame(t, c); resp.Type != WSTypeResponse || resp.ID != "s1" {
		t.Fatalf("subscribe reply = %+v", resp)
	}

	hub.Broadcast("device.status", "SN2", nil)
	expectSilence(t, c)
	hub.Broadcast("device.status", "SN1", nil)
	if msg := readFrame(t, c); msg.SN != "SN1" {
		t.Errorf("frame for %q, want SN1", msg.SN)
	}

	// Removing the last camera from the filter widens it to every camera.
	c.handleMessage([]byte(`{"type":"unsubscribe","id":"u1","payload":{"channels":["device.event"],"sn":["SN1"]}}`))
	readFrame(t, c)
	hub.Broadcast("device.status", "SN2", nil)
	if msg := readFrame(t, c); msg.SN != "SN2" {
		t.Errorf("frame for %q, want SN2", msg.SN)
	}
}

func TestWSClient_Messages(t *testing.T) {
	tests := []struct {
		name     string
		frames   []string
		wantType string
		check    func(t *testing.T, c *WSClient, reply WSMessage)
	}{
		{
			name:     "ping",
			frames:   []string{`{"type":"ping","id":"p1"}`},
			wantType: WSTypePong,
		},
		{
			name:     "invalid json",
			frames:   []string{`{"type":`},
			wantType: WSTypeError,
		},
		{
			name:     "unknown type",
			frames:   []string{`{"type":"shout","id":"x"}`},
			wantType: WSTypeError,
		},
		{
			name:     "only unknown channels",
			frames:   []string{`{"type":"subscribe","id":"s","payload":{"channels":["system.reboot"]}}`},
			wantType: WSTypeError,
			check: func(t *testing.T, c *WSClient, _ WSMessage) {
				if len(c.channels) != 0 {
					t.Errorf("channels = %v, want none", c.channels)
				}
			},
		},
		{
			name:     "unknown channel reported",
			frames:   []string{`{"type":"subscribe","id":"s","payload":{"channels":["device.event","device.gossip"]}}`},
			wantType: WSTypeResponse,
			check: func(t *testing.T, c *WSClient, reply WSMessage) {
				body, _ := reply.Payload.(map[string]any)
				if unknown, _ := body["unknown"].([]any); len(unknown) != 1 || unknown[0] != "device.gossip" {
					t.Errorf("reply = %+v", body)
				}
				if !c.wants("device.event", "SN9") {
					t.Error("device.event not subscribed")
				}
			},
		},
		{
			name: "unsubscribe everything",
			frames: []string{
				`{"type":"subscribe","payload":{"channels":["device.event","device.transfer"],"sn":["SN1"]}}`,
				`{"type":"unsubscribe","payload":{}}`,
			},
			wantType: WSTypeResponse,
			check: func(t *testing.T, c *WSClient, _ WSMessage) {
				if len(c.channels) != 0 || len(c.sns) != 0 {
					t.Errorf("selection left: %v %v", c.channels, c.sns)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newWSClient(newTestHub(t), nil)
			var reply WSMessage
			for _, f := range tt.frames {
				c.handleMessage([]byte(f))
				reply = readFrame(t, c)
			}
			if reply.Type != tt.wantType {
				t.Errorf("reply type = %q, want %q (%+v)", reply.Type, tt.wantType, reply)
			}
			if tt.check != nil {
				tt.check(t, c, reply)
			}
		})
	}
}

func TestHub_DropsForSlowClient(t *testing.T) {
	hub := newTestHub(t)
	c := newWSClient(hub, nil)
	c.channels["device.transfer"] = struct{}{}
	hub.Register(c)

	for range wsSendBufferSize + 3 {
		hub.Broadcast("device.transfer", "SN1", nil)
	}
	if hub.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", hub.Dropped())
	}
}

func TestHub_ServesBridgeChannels(t *testing.T) {
	hub := newTestHub(t)
	for _, ch := range []string{"device.changed", "device.status", "device.event", "device.transfer"} {
		if !hub.known(ch) {
			t.Errorf("%s not served", ch)
		}
	}
	if hub.known("system.status") {
		t.Error("hub serves a channel the bridge never broadcasts")
	}
}
