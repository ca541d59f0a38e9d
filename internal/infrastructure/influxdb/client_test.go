package influxdb_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/camlink-core/internal/infrastructure/config"
	"github.com/nerrad567/camlink-core/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "camlink-dev-token",
		Org:           "camlink",
		Bucket:        "cameras",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := influxdb.Connect(testConfig())
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

func TestPointLineProtocol(t *testing.T) {
	at := time.Unix(1700000000, 0)
	tests := []struct {
		name  string
		point *write.Point
		want  []string
	}{
		{
			name:  "status",
			point: influxdb.StatusPoint("SN123", "tail_air", map[string]any{"zoom": 40, "charging": true}, at),
			want:  []string{"camera_status,product=tail_air,sn=SN123 ", "zoom=40i", "charging=true", " 1700000000000000000"},
		},
		{
			name:  "transfer",
			point: influxdb.TransferPoint("SN123", "image1", "download", -1, at),
			want:  []string{"camera_transfer,direction=download,file_type=image1,sn=SN123 code=-1i"},
		},
		{
			name:  "event",
			point: influxdb.EventPoint("SN123", "warning", 2002, at),
			want:  []string{"camera_event,category=warning,sn=SN123 code=2002i"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(tt.point, time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q does not contain %q", line, w)
				}
			}
		})
	}
}

func TestDisconnectedWritesAreDropped(t *testing.T) {
	c := &influxdb.Client{}

	// None of these may touch the nil write API.
	c.WriteStatus("SN123", "tiny_2", map[string]any{"zoom": 1})
	c.WriteTransfer("SN123", "log", "download", 0)
	c.WriteEvent("SN123", "info", 3001)
	c.Flush()

	if c.IsConnected() {
		t.Error("IsConnected() = true for an unconnected client")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectAndWrite(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()
	cfg.BatchSize = 0
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.WriteStatus("SN-TEST", "tiny_2", map[string]any{"zoom": 12, "ai_mode": 1})
	client.WriteStatus("SN-TEST", "tiny_2", map[string]any{"zoom": 12, "ai_mode": 1})
	client.WriteTransfer("SN-TEST", "mini0", "download", 0)
	client.WriteEvent("SN-TEST", "tip", 4001)
	client.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
	mu.Unlock()
	if skipped, _ := client.Stats(); skipped != 1 {
		t.Errorf("skipped = %d, want 1 repeated status", skipped)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
