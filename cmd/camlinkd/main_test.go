package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/camlink-core/internal/auth"
	"github.com/nerrad567/camlink-core/internal/device"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func simConfig(dir string) string {
	return `
node:
  id: test-node
database:
  path: "` + filepath.Join(dir, "camlink.db") + `"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: false
influxdb:
  enabled: false
api:
  enabled: false
logging:
  level: debug
  format: text
  output: stderr
discovery:
  usb:
    enabled: false
  network:
    enabled: false
  loopback:
    enabled: true
    interval: 50ms
    devices: 3
    tick_interval: 5ms
security:
  jwt:
    secret: "` + testSecret + `"
    access_token_ttl: 30
`
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CAMLINK_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_NoTransports(t *testing.T) {
	dir := t.TempDir()
	cfg := strings.Replace(simConfig(dir), "enabled: true\n    interval: 50ms", "enabled: false\n    interval: 50ms", 1)
	t.Setenv("CAMLINK_CONFIG", writeConfig(t, dir, cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "no transport") {
		t.Fatalf("run() error = %v, want no transport error", err)
	}
}

// TestRun_Simulation starts the daemon against simulated cameras and
// verifies it shuts down cleanly.
func TestRun_Simulation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CAMLINK_CONFIG", writeConfig(t, dir, simConfig(dir)))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	if _, err := os.Stat(filepath.Join(dir, "camlink.db")); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestIssueToken(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, simConfig(dir))

	var out strings.Builder
	if err := issueToken(&out, path, "installer", auth.RoleAdmin, 0); err != nil {
		t.Fatalf("issueToken: %v", err)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out.String()), testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "installer" || claims.Role != auth.RoleAdmin {
		t.Errorf("claims = %s/%s, want installer/admin", claims.Subject, claims.Role)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != 30*time.Minute {
		t.Errorf("token lifetime = %s, want configured 30m", ttl)
	}
}

func TestIssueToken_Errors(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, simConfig(dir))

	tests := []struct {
		name string
		path string
		role auth.Role
	}{
		{"unknown role", path, auth.Role("root")},
		{"missing config", filepath.Join(dir, "missing.yaml"), auth.RoleViewer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			if err := issueToken(&out, tt.path, "x", tt.role, time.Minute); err == nil {
				t.Error("issueToken succeeded")
			}
			if out.Len() != 0 {
				t.Errorf("token written on error: %q", out.String())
			}
		})
	}
}

func TestNewSimCamera(t *testing.T) {
	seen := make(map[string]bool)
	for i := range 4 {
		sim, err := newSimCamera(i)
		if err != nil {
			t.Fatalf("newSimCamera(%d): %v", i, err)
		}
		info := sim.Info()
		if seen[info.SN] {
			t.Errorf("duplicate serial %s", info.SN)
		}
		seen[info.SN] = true

		want := simProducts[i%len(simProducts)]
		if device.ProductType(info.ProductType) != want {
			t.Errorf("sim %d product = %s, want %s", i, device.ProductType(info.ProductType), want)
		}
		if info.UUID == ([24]byte{}) {
			t.Errorf("sim %d has a zero UUID", i)
		}
	}
}
