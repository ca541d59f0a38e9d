package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Default GATT layout of the camera control service.
const (
	DefaultServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	DefaultWriteUUID   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	DefaultNotifyUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// ErrServiceNotFound is returned when a peripheral lacks the control
// service or one of its characteristics.
var ErrServiceNotFound = errors.New("ble: control service not found")

// Advertisement is one scan hit.
type Advertisement struct {
	Address string
	Name    string
	RSSI    int16
}

// Peripheral is a connected camera's control service.
type Peripheral interface {
	// Subscribe starts delivering notifications to fn.
	Subscribe(fn func([]byte)) error
	// Write sends p as one write without response.
	Write(p []byte) (int, error)
	Disconnect() error
}

// Adapter is the radio used by the transport.
type Adapter interface {
	// Scan reports advertisements to fn until window elapses or ctx is
	// done.
	Scan(ctx context.Context, window time.Duration, fn func(Advertisement)) error
	// Connect opens the control service of the peripheral at addr.
	Connect(ctx context.Context, addr string) (Peripheral, error)
}

// UUIDs names the control service and its characteristics.
type UUIDs struct {
	Service string
	Write   string
	Notify  string
}

// hostAdapter drives the host's default Bluetooth adapter.
type hostAdapter struct {
	a       *bluetooth.Adapter
	service bluetooth.UUID
	write   bluetooth.UUID
	notify  bluetooth.UUID

	enableOnce sync.Once
	enableErr  error

	scanMu sync.Mutex

	mu   sync.Mutex
	seen map[string]bluetooth.Address
}

// NewAdapter wraps bluetooth.DefaultAdapter. Empty UUID fields take the
// defaults.
func NewAdapter(ids UUIDs) (Adapter, error) {
	if ids.Service == "" {
		ids.Service = DefaultServiceUUID
	}
	if ids.Write == "" {
		ids.Write = DefaultWriteUUID
	}
	if ids.Notify == "" {
		ids.Notify = DefaultNotifyUUID
	}

	h := &hostAdapter{a: bluetooth.DefaultAdapter, seen: make(map[string]bluetooth.Address)}
	var err error
	if h.service, err = bluetooth.ParseUUID(ids.Service); err != nil {
		return nil, fmt.Errorf("service uuid: %w", err)
	}
	if h.write, err = bluetooth.ParseUUID(ids.Write); err != nil {
		return nil, fmt.Errorf("write uuid: %w", err)
	}
	if h.notify, err = bluetooth.ParseUUID(ids.Notify); err != nil {
		return nil, fmt.Errorf("notify uuid: %w", err)
	}
	return h, nil
}

func (h *hostAdapter) enable() error {
	h.enableOnce.Do(func() { h.enableErr = h.a.Enable() })
	return h.enableErr
}

func (h *hostAdapter) Scan(ctx context.Context, window time.Duration, fn func(Advertisement)) error {
	if err := h.enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}
	// The host adapter runs one scan at a time.
	h.scanMu.Lock()
	defer h.scanMu.Unlock()

	stop := func() { _ = h.a.StopScan() } //nolint:errcheck // scan may have ended already
	timer := time.AfterFunc(window, stop)
	defer timer.Stop()
	cancel := context.AfterFunc(ctx, stop)
	defer cancel()

	err := h.a.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		addr := r.Address.String()
		h.mu.Lock()
		h.seen[addr] = r.Address
		h.mu.Unlock()
		fn(Advertisement{Address: addr, Name: r.LocalName(), RSSI: r.RSSI})
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (h *hostAdapter) Connect(ctx context.Context, addr string) (Peripheral, error) {
	if err := h.enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	h.mu.Lock()
	address, ok := h.seen[addr]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("address %s not seen in a scan", addr)
	}

	params := bluetooth.ConnectionParams{}
	if d, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(d))
	}
	dev, err := h.a.Connect(address, params)
	if err != nil {
		return nil, err
	}

	services, err := dev.DiscoverServices([]bluetooth.UUID{h.service})
	if err != nil || len(services) == 0 {
		_ = dev.Disconnect() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, err)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{h.write, h.notify})
	if err != nil {
		_ = dev.Disconnect() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %v", ErrServiceNotFound, err)
	}

	p := &hostPeripheral{dev: dev}
	for i := range chars {
		switch chars[i].UUID() {
		case h.write:
			p.write = chars[i]
			p.hasWrite = true
		case h.notify:
			p.notify = chars[i]
			p.hasNotify = true
		}
	}
	if !p.hasNotify || !p.hasWrite {
		_ = dev.Disconnect() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: missing characteristic", ErrServiceNotFound)
	}
	return p, nil
}

type hostPeripheral struct {
	dev       bluetooth.Device
	write     bluetooth.DeviceCharacteristic
	notify    bluetooth.DeviceCharacteristic
	hasWrite  bool
	hasNotify bool
}

func (p *hostPeripheral) Subscribe(fn func([]byte)) error {
	return p.notify.EnableNotifications(fn)
}

func (p *hostPeripheral) Write(b []byte) (int, error) {
	return p.write.WriteWithoutResponse(b)
}

func (p *hostPeripheral) Disconnect() error {
	return p.dev.Disconnect()
}
