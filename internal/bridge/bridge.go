package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/nerrad567/camlink-core/internal/audit"
	"github.com/nerrad567/camlink-core/internal/control"
	"github.com/nerrad567/camlink-core/internal/device"
	"github.com/nerrad567/camlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/camlink-core/internal/registry"
)

// WebSocket channels the bridge broadcasts on.
const (
	ChannelDeviceChanged  = "device.changed"
	ChannelDeviceStatus   = "device.status"
	ChannelDeviceEvent    = "device.event"
	ChannelDeviceTransfer = "device.transfer"
)

// Channels returns every channel the bridge broadcasts on.
func Channels() []string {
	return []string{ChannelDeviceChanged, ChannelDeviceStatus, ChannelDeviceEvent, ChannelDeviceTransfer}
}

const (
	defaultCommandTimeout = 10 * time.Second
	defaultOutboxSize     = 1024
	auditTimeout          = 2 * time.Second
)

// ErrDeviceNotFound is returned for a serial number that is not connected.
var ErrDeviceNotFound = errors.New("bridge: device not connected")

// Publisher is the subset of the MQTT client the bridge needs.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	HandleCommands(h mqtt.CommandHandler) error
}

// TimeSeries receives telemetry points.
type TimeSeries interface {
	WriteStatus(sn, product string, fields map[string]any)
	WriteTransfer(sn, fileType, direction string, code int)
	WriteEvent(sn, category string, code int32)
}

// Broadcaster pushes events about camera sn to WebSocket clients.
type Broadcaster interface {
	Broadcast(channel, sn string, payload any)
}

// CommandCounter counts commands received over MQTT.
type CommandCounter interface {
	MQTTCommand(ok bool)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Bridge. Only Registry is required; every sink left
// nil is skipped.
type Options struct {
	Registry *registry.Registry

	MQTT    Publisher
	TSDB    TimeSeries
	Audit   audit.Repository
	WS      Broadcaster
	Metrics CommandCounter
	Logger  Logger

	// ResourceDir is the root of the default transfer paths. Each device
	// gets {ResourceDir}/{sn}/. Empty leaves paths unset.
	ResourceDir string

	// PushStatus enables status push for every device on connect.
	PushStatus bool

	// CommandTimeout bounds one MQTT command. Default: 10s.
	CommandTimeout time.Duration

	// OutboxSize bounds the fan-out queue. Default: 1024.
	OutboxSize int
}

// Bridge connects the device registry to the daemon's outer surfaces. It is
// the single subscriber of the registry change callback and of every
// device's status, event and transfer callbacks, and fans each
// notification out to MQTT, the time-series store, the audit log, the
// WebSocket hub and metrics.
//
// Device callbacks run on device goroutines, so they only enqueue. A single
// worker drains the outbox in order.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	opts   Options
	reg    *registry.Registry
	logger Logger
	topics mqtt.Topics

	outbox chan func()
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	push   map[string]bool
	closed bool
}

// New creates a bridge. Call Start to begin fan-out.
func New(opts Options) (*Bridge, error) {
	if opts.Registry == nil {
		return nil, errors.New("bridge: registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutboxSize
	}
	return &Bridge{
		opts:   opts,
		reg:    opts.Registry,
		logger: opts.Logger,
		outbox: make(chan func(), opts.OutboxSize),
		push:   make(map[string]bool),
	}, nil
}

// Start installs the bridge on the registry, subscribes to MQTT commands and
// attaches to devices that are already connected.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.drain()

	if b.opts.MQTT != nil {
		if err := b.opts.MQTT.HandleCommands(b.handleCommand); err != nil {
			b.cancel()
			return fmt.Errorf("subscribe commands: %w", err)
		}
	}

	b.reg.SetChangeCallback(b.onChange)
	for _, d := range b.reg.All() {
		b.attach(d)
		b.enqueue(func() { b.announce(d.SN(), true, d) })
	}
	b.logger.Info("bridge started", "devices", b.reg.Count(), "mqtt", b.opts.MQTT != nil)
	return nil
}

// Stop detaches from the registry and flushes the outbox.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.reg.SetChangeCallback(nil)
	if b.cancel != nil {
		b.cancel()
	}
	close(b.outbox)
	b.wg.Wait()
	b.logger.Info("bridge stopped")
}

// SetStatusPush turns status push on or off for one device.
func (b *Bridge) SetStatusPush(sn string, enabled bool) error {
	d, ok := b.reg.BySN(sn)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, sn)
	}
	b.mu.Lock()
	b.push[sn] = enabled
	b.mu.Unlock()
	d.EnableStatusPush(b.statusFunc(d), enabled)
	return nil
}

// StatusPush reports whether push is enabled for sn.
func (b *Bridge) StatusPush(sn string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.push[sn]; ok {
		return v
	}
	return b.opts.PushStatus
}

func (b *Bridge) enqueue(job func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.outbox <- job:
	default:
		b.logger.Warn("bridge outbox full, dropping notification")
	}
}

func (b *Bridge) drain() {
	defer b.wg.Done()
	for job := range b.outbox {
		job()
	}
}

// onChange runs on the registry's notifier goroutine.
func (b *Bridge) onChange(sn string, connected bool) {
	if connected {
		d, ok := b.reg.BySN(sn)
		if !ok {
			return
		}
		b.attach(d)
		b.enqueue(func() { b.announce(sn, true, d) })
		return
	}
	b.enqueue(func() { b.announce(sn, false, nil) })
}

// attach installs the per-device callbacks and default transfer paths.
func (b *Bridge) attach(d *device.Device) {
	sn := d.SN()

	d.SetEventCallback(func(ev device.Event) {
		b.enqueue(func() { b.publishEvent(d, control.NewEventView(sn, ev)) })
	})
	d.EnableStatusPush(b.statusFunc(d), b.StatusPush(sn))

	tm := d.Transfers()
	tm.SetDownloadCallback(func(t device.FileType, r device.DownloadResult) {
		b.enqueue(func() { b.publishTransfer(d, control.NewDownloadView(sn, t, r)) })
	})
	tm.SetUploadCallback(func(t device.FileType, code int) {
		b.enqueue(func() { b.publishTransfer(d, control.NewUploadView(sn, t, code)) })
	})

	if b.opts.ResourceDir != "" {
		dir := filepath.Join(b.opts.ResourceDir, sn)
		for i := 0; i < device.MaxResourceSlots; i++ {
			tm.SetLocalResourcePath(
				filepath.Join(dir, fmt.Sprintf("mini%d.jpg", i)),
				filepath.Join(dir, fmt.Sprintf("resource%d", i)),
				i,
			)
		}
		tm.SetLocalLogPath(filepath.Join(dir, "device.log"))
	}
}

func (b *Bridge) statusFunc(d *device.Device) device.StatusFunc {
	sn := d.SN()
	return func(s device.Snapshot) {
		b.enqueue(func() { b.publishStatus(d, control.NewStatusView(sn, s)) })
	}
}

func (b *Bridge) announce(sn string, connected bool, d *device.Device) {
	msg := control.StateMessage{SN: sn, Connected: connected, Timestamp: time.Now().UTC()}
	entry := &audit.Entry{Action: audit.ActionDisconnect, SN: sn, Source: audit.SourceRegistry}
	if connected && d != nil {
		v := control.NewDeviceView(d)
		msg.Device = &v
		entry.Action = audit.ActionConnect
		entry.Endpoint = d.Endpoint().String()
		entry.Details = map[string]any{"product": v.Product, "uuid": v.UUID, "version": v.Version}
	}

	b.logger.Info("device changed", "sn", sn, "connected", connected)
	b.publish(b.topics.DeviceState(sn), msg, true)
	b.broadcast(ChannelDeviceChanged, sn, msg)
	b.record(entry)
}

func (b *Bridge) publishStatus(d *device.Device, v control.StatusView) {
	b.publish(b.topics.DeviceStatus(v.SN), v, true)
	b.broadcast(ChannelDeviceStatus, v.SN, v)
	if b.opts.TSDB != nil && v.Valid {
		b.opts.TSDB.WriteStatus(v.SN, d.Product().String(), v.Fields())
	}
}

func (b *Bridge) publishEvent(_ *device.Device, v control.EventView) {
	b.publish(b.topics.DeviceEvent(v.SN), v, false)
	b.broadcast(ChannelDeviceEvent, v.SN, v)
	if b.opts.TSDB != nil {
		b.opts.TSDB.WriteEvent(v.SN, v.Category, v.Code)
	}
}

func (b *Bridge) publishTransfer(d *device.Device, v control.TransferView) {
	b.publish(b.topics.DeviceTransfer(v.SN), v, false)
	b.broadcast(ChannelDeviceTransfer, v.SN, v)
	if !v.Final {
		return
	}
	if b.opts.TSDB != nil {
		b.opts.TSDB.WriteTransfer(v.SN, v.FileType, v.Direction, v.Code)
	}
	b.record(&audit.Entry{
		Action:   audit.ActionTransfer,
		SN:       v.SN,
		Endpoint: d.Endpoint().String(),
		Source:   audit.SourceRegistry,
		Result:   v.Code,
		Details:  map[string]any{"file_type": v.FileType, "direction": v.Direction, "result": v.Result},
	})
}

func (b *Bridge) publish(topic string, v any, retained bool) {
	if b.opts.MQTT == nil {
		return
	}
	if err := b.opts.MQTT.PublishJSON(topic, v, retained); err != nil {
		b.logger.Debug("mqtt publish failed", "topic", topic, "error", err)
	}
}

func (b *Bridge) broadcast(channel, sn string, v any) {
	if b.opts.WS != nil {
		b.opts.WS.Broadcast(channel, sn, v)
	}
}

func (b *Bridge) record(e *audit.Entry) {
	if b.opts.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := b.opts.Audit.Create(ctx, e); err != nil {
		b.logger.Warn("audit write failed", "action", e.Action, "sn", e.SN, "error", err)
	}
}

// handleCommand executes a command received on camlink/command/{sn} and
// answers on camlink/ack/{sn}.
func (b *Bridge) handleCommand(sn string, payload []byte) error {
	var req control.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		b.countCommand(false)
		b.publish(b.topics.Ack(sn), control.NewAck(sn, req, nil, fmt.Errorf("%w: %w", control.ErrInvalidParams, err)), false)
		return nil
	}
	req.Source = audit.SourceMQTT

	d, ok := b.reg.BySN(sn)
	if !ok {
		b.countCommand(false)
		b.publish(b.topics.Ack(sn), control.NewAck(sn, req, nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, sn)), false)
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.opts.CommandTimeout)
	defer cancel()

	b.logger.Info("mqtt command", "sn", sn, "command", req.Command, "id", req.ID)
	result, err := control.Execute(ctx, d, req)
	ack := control.NewAck(sn, req, result, err)

	b.countCommand(err == nil)
	b.publish(b.topics.Ack(sn), ack, false)
	b.record(&audit.Entry{
		Action:   audit.ActionCommand,
		SN:       sn,
		Endpoint: d.Endpoint().String(),
		Source:   audit.SourceMQTT,
		Result:   ack.Code,
		Details:  map[string]any{"command": req.Command, "id": req.ID, "status": string(ack.Status)},
	})
	if err != nil {
		b.logger.Warn("mqtt command failed", "sn", sn, "command", req.Command, "error", err)
	}
	return nil
}

func (b *Bridge) countCommand(ok bool) {
	if b.opts.Metrics != nil {
		b.opts.Metrics.MQTTCommand(ok)
	}
}
