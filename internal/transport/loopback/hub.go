package loopback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/transport"
)

const queueSize = 256

// Hub is a transport whose endpoints are the currently plugged SimDevices.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Hub struct {
	family transport.Family

	mu      sync.Mutex
	devices map[string]*SimDevice
	enumErr error
}

var _ transport.Transport = (*Hub)(nil)

// NewHub creates an empty hub reporting family. An empty family means
// transport.FamilyLoopback.
func NewHub(family transport.Family) *Hub {
	if family == "" {
		family = transport.FamilyLoopback
	}
	return &Hub{family: family, devices: make(map[string]*SimDevice)}
}

// Family implements transport.Enumerator.
func (h *Hub) Family() transport.Family { return h.family }

// Plug attaches d so the next enumeration sees it.
func (h *Hub) Plug(d *SimDevice) {
	h.mu.Lock()
	h.devices[d.addr] = d
	h.mu.Unlock()
}

// Unplug detaches the device at addr. An open channel reports link loss.
func (h *Hub) Unplug(addr string) {
	h.mu.Lock()
	d, ok := h.devices[addr]
	delete(h.devices, addr)
	h.mu.Unlock()
	if !ok {
		return
	}

	d.mu.Lock()
	link := d.link
	d.link = nil
	d.mu.Unlock()
	if link != nil {
		link.lose(transport.ErrEndpointGone)
	}
}

// Device returns the plugged device at addr.
func (h *Hub) Device(addr string) (*SimDevice, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[addr]
	return d, ok
}

// SetEnumerateError makes Enumerate fail with err until cleared with nil.
func (h *Hub) SetEnumerateError(err error) {
	h.mu.Lock()
	h.enumErr = err
	h.mu.Unlock()
}

// Enumerate implements transport.Enumerator. Endpoints are sorted by address.
func (h *Hub) Enumerate(ctx context.Context) ([]transport.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enumErr != nil {
		return nil, h.enumErr
	}

	eps := make([]transport.Endpoint, 0, len(h.devices))
	for addr, d := range h.devices {
		eps = append(eps, transport.Endpoint{
			Family:  h.family,
			Address: addr,
			Name:    d.info.Name,
		})
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Address < eps[j].Address })
	return eps, nil
}

// Open implements transport.Transport. Opening a device that already has a
// channel closes the older one.
func (h *Hub) Open(ctx context.Context, ep transport.Endpoint, sink transport.Sink) (transport.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("loopback: nil sink")
	}

	d, ok := h.Device(ep.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrEndpointGone, ep)
	}

	c := &simChannel{
		ep:   ep,
		dev:  d,
		sink: sink,
		in:   make(chan protocol.Frame, queueSize),
		out:  make(chan protocol.Frame, queueSize),
		done: transport.NewCloseOnce(),
		gone: transport.NewCloseOnce(),
	}
	d.attach(c)

	go c.serveLoop()
	go c.deliverLoop()
	return c, nil
}

// simChannel connects one host sink to one SimDevice.
type simChannel struct {
	ep   transport.Endpoint
	dev  *SimDevice
	sink transport.Sink

	in  chan protocol.Frame // host -> device
	out chan protocol.Frame // device -> host

	done *transport.CloseOnce // local close or loss
	gone *transport.CloseOnce // loss only

	lostMu  sync.Mutex
	lostErr error
}

func (c *simChannel) Endpoint() transport.Endpoint { return c.ep }

func (c *simChannel) Send(ctx context.Context, f protocol.Frame) error {
	if c.done.Closed() {
		return transport.ErrClosed
	}
	select {
	case c.in <- f:
		return nil
	case <-c.done.Done():
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close never blocks on the delivery goroutine, so a sink may call it from
// inside Deliver.
func (c *simChannel) Close() error {
	c.done.Close()
	c.dev.detach(c)
	return nil
}

func (c *simChannel) lose(err error) {
	c.lostMu.Lock()
	if c.lostErr == nil {
		c.lostErr = err
	}
	c.lostMu.Unlock()
	c.gone.Close()
	c.done.Close()
}

func (c *simChannel) push(f protocol.Frame) {
	select {
	case c.out <- f:
	case <-c.done.Done():
	}
}

// serveLoop answers requests in arrival order.
func (c *simChannel) serveLoop() {
	for {
		select {
		case <-c.done.Done():
			return
		case req := <-c.in:
			if req.Kind != protocol.KindRequest {
				continue
			}
			resp, delay, ok := c.dev.serve(req)
			if !ok {
				continue
			}
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-c.done.Done():
					return
				}
			}
			c.push(resp)
		}
	}
}

// deliverLoop is the single goroutine that calls the sink.
func (c *simChannel) deliverLoop() {
	for {
		select {
		case f := <-c.out:
			c.sink.Deliver(f)
		case <-c.done.Done():
			if c.gone.Closed() {
				c.lostMu.Lock()
				err := c.lostErr
				c.lostMu.Unlock()
				c.sink.Lost(err)
			}
			return
		}
	}
}
