package ble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/camlink-core/internal/transport"
)

// Defaults applied by New.
const (
	DefaultScanWindow = 5 * time.Second
	DefaultNamePrefix = "OBSBOT"

	// DefaultWriteSize is the ATT payload of the minimum MTU.
	DefaultWriteSize = 20
)

// Logger defines the logging interface used by the transport.
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

// Options configures a Transport.
type Options struct {
	ScanWindow time.Duration
	NamePrefix string

	// WriteSize caps each GATT write.
	WriteSize int

	// AllowList restricts discovery to the listed MAC addresses. Empty
	// allows every camera.
	AllowList []string

	Logger Logger
}

// Transport scans for cameras and opens GATT channels to them.
//
// Thread Safety: all methods are safe for concurrent use.
type Transport struct {
	adapter Adapter
	opts    Options

	mu    sync.RWMutex
	allow []string
}

// New creates a BLE transport on adapter.
func New(adapter Adapter, opts Options) *Transport {
	if opts.ScanWindow <= 0 {
		opts.ScanWindow = DefaultScanWindow
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = DefaultNamePrefix
	}
	if opts.WriteSize <= 0 {
		opts.WriteSize = DefaultWriteSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	t := &Transport{adapter: adapter, opts: opts}
	t.SetAllowList(opts.AllowList)
	return t
}

// Family implements transport.Enumerator.
func (t *Transport) Family() transport.Family { return transport.FamilyBLE }

// SetAllowList replaces the MAC allow-list. Matching ignores case.
func (t *Transport) SetAllowList(addrs []string) {
	allow := make([]string, 0, len(addrs))
	for _, a := range addrs {
		allow = append(allow, strings.ToUpper(strings.TrimSpace(a)))
	}
	t.mu.Lock()
	t.allow = allow
	t.mu.Unlock()
}

func (t *Transport) allowed(addr string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.allow) == 0 || slices.Contains(t.allow, strings.ToUpper(addr))
}

// Enumerate scans for one window and returns the matching peripherals
// sorted by address.
func (t *Transport) Enumerate(ctx context.Context) ([]transport.Endpoint, error) {
	var mu sync.Mutex
	found := make(map[string]transport.Endpoint)

	err := t.adapter.Scan(ctx, t.opts.ScanWindow, func(ad Advertisement) {
		if !strings.HasPrefix(ad.Name, t.opts.NamePrefix) || !t.allowed(ad.Address) {
			return
		}
		mu.Lock()
		found[ad.Address] = transport.Endpoint{
			Family:  transport.FamilyBLE,
			Address: ad.Address,
			Name:    ad.Name,
			Meta:    map[string]string{"rssi": fmt.Sprint(ad.RSSI)},
		}
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("ble scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	eps := make([]transport.Endpoint, 0, len(found))
	for _, ep := range found {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Address < eps[j].Address })
	return eps, nil
}

// Open connects to ep and starts reading frames from its notifications.
func (t *Transport) Open(ctx context.Context, ep transport.Endpoint, sink transport.Sink) (transport.Channel, error) {
	if sink == nil {
		return nil, errors.New("ble: nil sink")
	}
	p, err := t.adapter.Connect(ctx, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("ble connect %s: %w", ep.Address, err)
	}

	s := newNotifyStream(p, t.opts.WriteSize)
	if err := p.Subscribe(s.push); err != nil {
		_ = p.Disconnect() //nolint:errcheck // already failing
		return nil, fmt.Errorf("ble subscribe %s: %w", ep.Address, err)
	}
	t.opts.Logger.Debug("ble link open", "endpoint", ep.String())
	return transport.NewStreamChannel(ep, s, sink, transport.StreamOptions{}), nil
}

// notifyStream turns GATT notifications into a byte stream and splits
// writes into GATT-sized pieces.
type notifyStream struct {
	p         Peripheral
	writeSize int

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	ready  chan struct{}
	done   *transport.CloseOnce
}

func newNotifyStream(p Peripheral, writeSize int) *notifyStream {
	return &notifyStream{
		p:         p,
		writeSize: writeSize,
		ready:     make(chan struct{}, 1),
		done:      transport.NewCloseOnce(),
	}
}

func (s *notifyStream) push(b []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf.Write(b)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *notifyStream) Read(p []byte) (int, error) {
	for {
		s.mu.Lock()
		if s.buf.Len() > 0 {
			n, _ := s.buf.Read(p) //nolint:errcheck // non-empty buffer
			s.mu.Unlock()
			return n, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return 0, io.EOF
		}

		select {
		case <-s.ready:
		case <-s.done.Done():
		}
	}
}

func (s *notifyStream) Write(b []byte) (int, error) {
	written := 0
	for len(b) > 0 {
		if s.done.Closed() {
			return written, io.ErrClosedPipe
		}
		n := min(len(b), s.writeSize)
		if _, err := s.p.Write(b[:n]); err != nil {
			return written, err
		}
		written += n
		b = b[n:]
	}
	return written, nil
}

func (s *notifyStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.done.Close()
	return s.p.Disconnect()
}
