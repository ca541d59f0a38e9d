package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	sp "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/nerrad567/camlink-core/internal/transport"
)

// DefaultBaudRate is used when Options.BaudRate is zero.
const DefaultBaudRate = 115200

// ErrOpenFailed is returned by Open when the port exists but cannot be
// configured.
var ErrOpenFailed = errors.New("serial: open failed")

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
	// VendorIDs lists accepted USB vendor IDs as hex strings. Empty accepts
	// every USB serial port.
	VendorIDs []string

	BaudRate int
	Logger   Logger
}

// Transport enumerates USB serial ports and opens framed channels on them.
//
// Thread Safety: all methods are safe for concurrent use.
type Transport struct {
	vendors []string
	mode    sp.Mode
	logger  Logger

	// Swapped in tests.
	list func() ([]*enumerator.PortDetails, error)
	open func(name string, mode *sp.Mode) (io.ReadWriteCloser, error)
}

// New creates a serial transport backed by the operating system's ports.
func New(opts Options) *Transport {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	vendors := make([]string, 0, len(opts.VendorIDs))
	for _, v := range opts.VendorIDs {
		vendors = append(vendors, normaliseID(v))
	}
	return &Transport{
		vendors: vendors,
		mode: sp.Mode{
			BaudRate: opts.BaudRate,
			DataBits: 8,
			Parity:   sp.NoParity,
			StopBits: sp.OneStopBit,
		},
		logger: opts.Logger,
		list:   enumerator.GetDetailedPortsList,
		open:   openPort,
	}
}

func openPort(name string, mode *sp.Mode) (io.ReadWriteCloser, error) {
	port, err := sp.Open(name, mode)
	if err != nil {
		return nil, err
	}
	// Drop bytes the camera sent before anyone was listening.
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	return port, nil
}

func normaliseID(id string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
}

// Family implements transport.Enumerator.
func (t *Transport) Family() transport.Family { return transport.FamilyUSB }

// Enumerate returns the matching USB serial ports sorted by path.
func (t *Transport) Enumerate(ctx context.Context) ([]transport.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ports, err := t.list()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	eps := make([]transport.Endpoint, 0, len(ports))
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if len(t.vendors) > 0 && !slices.Contains(t.vendors, normaliseID(p.VID)) {
			continue
		}
		eps = append(eps, transport.Endpoint{
			Family:  transport.FamilyUSB,
			Address: p.Name,
			Name:    p.Product,
			Meta: map[string]string{
				"vid":    normaliseID(p.VID),
				"pid":    normaliseID(p.PID),
				"serial": p.SerialNumber,
			},
		})
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Address < eps[j].Address })
	return eps, nil
}

// Open configures the port at ep.Address and starts reading frames.
func (t *Transport) Open(ctx context.Context, ep transport.Endpoint, sink transport.Sink) (transport.Channel, error) {
	if sink == nil {
		return nil, errors.New("serial: nil sink")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := t.mode
	port, err := t.open(ep.Address, &mode)
	if err != nil {
		if !t.present(ep.Address) {
			return nil, fmt.Errorf("%w: %s", transport.ErrEndpointGone, ep.Address)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, ep.Address, err)
	}
	t.logger.Debug("serial port opened", "port", ep.Address, "baud", mode.BaudRate)

	return transport.NewStreamChannel(ep, port, sink, transport.StreamOptions{}), nil
}

func (t *Transport) present(name string) bool {
	ports, err := t.list()
	if err != nil {
		// Unknown; report the open error itself.
		return true
	}
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}
