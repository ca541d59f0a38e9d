package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total           int            `json:"total"`
	ByFamily        map[string]int `json:"by_family"`
	ByProduct       map[string]int `json:"by_product"`
	PendingCommands int            `json:"pending_commands"`
	Scanning        []string       `json:"scanning"`
}

// handleSystem returns runtime and registry statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Devices: DeviceMetrics{
			ByFamily:  make(map[string]int),
			ByProduct: make(map[string]int),
			Scanning:  []string{},
		},
	}

	for _, d := range s.registry.All() {
		metrics.Devices.Total++
		metrics.Devices.ByFamily[string(d.Endpoint().Family)]++
		metrics.Devices.ByProduct[d.Product().String()]++
		metrics.Devices.PendingCommands += d.PendingCommands()
	}
	for _, f := range s.registry.Families() {
		if s.registry.Scanning(f) {
			metrics.Devices.Scanning = append(metrics.Devices.Scanning, string(f))
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
