package netlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/camlink-core/internal/protocol"
	"github.com/nerrad567/camlink-core/internal/transport"
)

// Transport discovers cameras by UDP broadcast and talks to them over TCP.
//
// Thread Safety: all methods are safe for concurrent use.
type Transport struct {
	opts Options

	heartbeat atomic.Int64 // nanoseconds

	mu    sync.RWMutex
	allow []string
}

// New creates a network transport.
func New(opts Options) *Transport {
	opts.applyDefaults()
	t := &Transport{opts: opts, allow: slices.Clone(opts.AllowList)}
	t.heartbeat.Store(int64(opts.HeartbeatInterval))
	return t
}

// Family implements transport.Enumerator.
func (t *Transport) Family() transport.Family { return transport.FamilyNetwork }

// TracksLiveness implements transport.LivenessTracker. A link is lost by
// heartbeat, not by a missed broadcast reply.
func (t *Transport) TracksLiveness() bool { return true }

// SetHeartbeatInterval changes the keep-alive interval of current and
// future links.
func (t *Transport) SetHeartbeatInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, d)
	}
	t.heartbeat.Store(int64(d))
	t.opts.Logger.Info("network heartbeat interval changed", "interval", d.String())
	return nil
}

// HeartbeatInterval returns the current keep-alive interval.
func (t *Transport) HeartbeatInterval() time.Duration {
	return time.Duration(t.heartbeat.Load())
}

// SetAllowList restricts discovery to the given hosts, host:port
// addresses or serial numbers. An empty list lifts the restriction.
func (t *Transport) SetAllowList(addrs []string) {
	t.mu.Lock()
	t.allow = slices.Clone(addrs)
	t.mu.Unlock()
}

func (t *Transport) allowed(keys ...string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.allow) == 0 {
		return true
	}
	for _, k := range keys {
		if slices.Contains(t.allow, k) {
			return true
		}
	}
	return false
}

// Enumerate broadcasts one probe and returns the cameras that answered
// within the listen window, sorted by address.
func (t *Transport) Enumerate(ctx context.Context) ([]transport.Endpoint, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("listen udp: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	probe, err := protocol.Encode(protocol.Frame{Kind: protocol.KindRequest, Opcode: protocol.OpGetDeviceInfo})
	if err != nil {
		return nil, err
	}

	targets := append([]string{t.opts.BroadcastAddress}, t.opts.StaticHosts...)
	sent := 0
	for _, host := range targets {
		addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(t.opts.DiscoveryPort)))
		if err != nil {
			t.opts.Logger.Warn("bad discovery target", "host", host, "error", err)
			continue
		}
		if _, err := conn.WriteToUDP(probe, addr); err != nil {
			t.opts.Logger.Debug("probe not sent", "target", addr.String(), "error", err)
			continue
		}
		sent++
	}
	if sent == 0 {
		return nil, fmt.Errorf("no discovery probe could be sent to %v", targets)
	}

	deadline := time.Now().Add(t.opts.ListenWindow)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	found := make(map[string]transport.Endpoint)
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("read udp: %w", err)
		}
		ep, ok := t.parseReply(buf[:n], from)
		if !ok {
			continue
		}
		found[ep.Address] = ep
	}

	eps := make([]transport.Endpoint, 0, len(found))
	for _, ep := range found {
		eps = append(eps, ep)
	}
	sort.Slice(eps, func(i, j int) bool { return eps[i].Address < eps[j].Address })
	return eps, nil
}

func (t *Transport) parseReply(b []byte, from *net.UDPAddr) (transport.Endpoint, bool) {
	f, _, err := protocol.Decode(b)
	if err != nil {
		t.opts.Logger.Debug("ignoring datagram", "from", from.String(), "error", err)
		return transport.Endpoint{}, false
	}
	if f.Kind != protocol.KindResponse || f.Opcode != protocol.OpGetDeviceInfo || f.Code != protocol.CodeOK {
		return transport.Endpoint{}, false
	}
	var info protocol.DeviceInfo
	if err := info.UnmarshalBinary(f.Payload); err != nil {
		t.opts.Logger.Debug("ignoring reply", "from", from.String(), "error", err)
		return transport.Endpoint{}, false
	}

	host := from.IP.String()
	addr := net.JoinHostPort(host, strconv.Itoa(t.opts.DevicePort))
	if !t.allowed(host, addr, info.SN) {
		return transport.Endpoint{}, false
	}
	return transport.Endpoint{
		Family:  transport.FamilyNetwork,
		Address: addr,
		Name:    info.Name,
		Meta:    map[string]string{"host": host, "sn": info.SN},
	}, true
}

// Open dials ep, retrying with exponential backoff, and starts the
// heartbeat.
func (t *Transport) Open(ctx context.Context, ep transport.Endpoint, sink transport.Sink) (transport.Channel, error) {
	if sink == nil {
		return nil, errors.New("netlink: nil sink")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second

	dial := func() (net.Conn, error) {
		d := net.Dialer{Timeout: t.opts.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", ep.Address)
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return conn, err
	}
	conn, err := backoff.Retry(ctx, dial,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(dialAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.opts.Logger.Debug("dial retry", "endpoint", ep.String(), "error", err, "next", next.String())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDialFailed, ep.Address, err)
	}

	l := &link{t: t}
	l.lastSeen.Store(time.Now().UnixNano())
	l.StreamChannel = transport.NewStreamChannel(ep, conn, sink, transport.StreamOptions{
		WriteTimeout: writeTimeout,
		Filter:       l.observe,
	})
	go l.heartbeatLoop()
	return l, nil
}

// link is one TCP channel plus its heartbeat.
type link struct {
	*transport.StreamChannel
	t        *Transport
	lastSeen atomic.Int64
}

// observe marks the link alive and keeps heartbeat echoes away from the
// device.
func (l *link) observe(f protocol.Frame) bool {
	l.lastSeen.Store(time.Now().UnixNano())
	return f.Kind != protocol.KindHeartbeat
}

func (l *link) heartbeatLoop() {
	interval := l.t.HeartbeatInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint32
	for {
		select {
		case <-l.Done():
			return
		case <-ticker.C:
		}

		if cur := l.t.HeartbeatInterval(); cur != interval {
			interval = cur
			ticker.Reset(interval)
		}

		silent := time.Since(time.Unix(0, l.lastSeen.Load()))
		if silent > missedHeartbeats*interval {
			l.t.opts.Logger.Warn("heartbeat lost", "endpoint", l.Endpoint().String(), "silent", silent.String())
			l.Fail(transport.ErrHeartbeatLost)
			return
		}

		seq++
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := l.Send(ctx, protocol.Frame{Kind: protocol.KindHeartbeat, Seq: seq, Opcode: protocol.OpHeartbeat})
		cancel()
		if err != nil {
			return
		}
	}
}
