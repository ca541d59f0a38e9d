// Package metrics exposes Prometheus collectors for the device core and the
// discovery registry. Collectors implements both device.Metrics and
// registry.Metrics so a single value can be handed to each.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/transport"
)

const namespace = "camlink"

// NewRegistry creates a Prometheus registry with the Go runtime and process
// collectors already registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Collectors holds every camlink metric.
type Collectors struct {
	Commands        *prometheus.CounterVec   // labels: opcode, result
	CommandLatency  *prometheus.HistogramVec // labels: opcode
	StatusRefreshes *prometheus.CounterVec   // labels: result
	Transfers       *prometheus.CounterVec   // labels: direction, code
	Events          *prometheus.CounterVec   // labels: category
	Scans           *prometheus.CounterVec   // labels: family, result
	HandshakeFails  *prometheus.CounterVec   // labels: family
	Connected       *prometheus.GaugeVec     // labels: family
	MQTTCommands    *prometheus.CounterVec   // labels: result
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Completed device commands by opcode and result code.",
		}, []string{"opcode", "result"}),
		CommandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time from send to completion of device commands.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"opcode"}),
		StatusRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_refreshes_total",
			Help:      "Status cache refreshes by result.",
		}, []string{"result"}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Finished file transfers by direction and terminal code.",
		}, []string{"direction", "code"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Device events received by category.",
		}, []string{"category"}),
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_passes_total",
			Help:      "Discovery passes by family and result.",
		}, []string{"family", "result"}),
		HandshakeFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Failed identity handshakes by family.",
		}, []string{"family"}),
		Connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_connected",
			Help:      "Currently connected devices by family.",
		}, []string{"family"}),
		MQTTCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_commands_total",
			Help:      "Commands received over MQTT by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		c.Commands, c.CommandLatency, c.StatusRefreshes, c.Transfers,
		c.Events, c.Scans, c.HandshakeFails, c.Connected, c.MQTTCommands,
	)
	return c
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// CommandCompleted implements device.Metrics.
func (c *Collectors) CommandCompleted(op protocol.Opcode, code device.ErrorCode, latency time.Duration) {
	c.Commands.WithLabelValues(op.String(), code.String()).Inc()
	c.CommandLatency.WithLabelValues(op.String()).Observe(latency.Seconds())
}

// StatusRefreshed implements device.Metrics.
func (c *Collectors) StatusRefreshed(ok bool) {
	c.StatusRefreshes.WithLabelValues(result(ok)).Inc()
}

// TransferFinished implements device.Metrics.
func (c *Collectors) TransferFinished(dir device.Direction, code int) {
	c.Transfers.WithLabelValues(dir.String(), strconv.Itoa(code)).Inc()
}

// EventReceived implements device.Metrics.
func (c *Collectors) EventReceived(cat device.EventCategory) {
	c.Events.WithLabelValues(cat.String()).Inc()
}

// ScanCompleted implements registry.Metrics.
func (c *Collectors) ScanCompleted(f transport.Family, ok bool) {
	c.Scans.WithLabelValues(string(f), result(ok)).Inc()
}

// HandshakeFailed implements registry.Metrics.
func (c *Collectors) HandshakeFailed(f transport.Family) {
	c.HandshakeFails.WithLabelValues(string(f)).Inc()
}

// DevicesConnected implements registry.Metrics.
func (c *Collectors) DevicesConnected(f transport.Family, n int) {
	c.Connected.WithLabelValues(string(f)).Set(float64(n))
}

// MQTTCommand counts one command received over MQTT.
func (c *Collectors) MQTTCommand(ok bool) {
	c.MQTTCommands.WithLabelValues(result(ok)).Inc()
}
