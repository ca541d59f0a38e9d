package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/camlink-core/internal/infrastructure/config"
)

const (
	pingTimeout      = 5 * time.Second
	connectAttempts  = 3
	defaultKeepalive = time.Minute
)

// pointWriter is the part of the non-blocking write API the client uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Client records camera telemetry in one InfluxDB bucket.
//
// Cameras refresh their status every few seconds and most refreshes change
// nothing, so a status point is only written when a field differs from the
// last point of that camera or the keepalive has elapsed. Transfer and
// event points are always written.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client    influxdb2.Client
	points    pointWriter
	keepalive time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	connected bool
	onError   func(err error)

	lastMu sync.Mutex
	last   map[string]statusSample

	skipped atomic.Uint64
	failed  atomic.Uint64
}

type statusSample struct {
	fields map[string]any
	at     time.Time
}

// Connect pings the server, retrying briefly, and opens the write API.
//
// Returns ErrDisabled when cfg.Enabled is false and ErrConnectionFailed
// when the server cannot be reached.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := max(cfg.BatchSize, 1)
	flush := max(cfg.FlushInterval, 1)
	// #nosec G115 -- both values are at least 1
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*1000))

	ping := func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		healthy, err := client.Ping(ctx)
		if err != nil {
			return struct{}{}, err
		}
		if !healthy {
			return struct{}{}, fmt.Errorf("server at %s is not healthy", cfg.URL)
		}
		return struct{}{}, nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	if _, err := backoff.Retry(context.Background(), ping,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(connectAttempts),
	); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(writeAPI, time.Duration(cfg.StatusKeepalive)*time.Second)
	c.client = client
	c.connected = true
	go c.watchErrors(writeAPI.Errors())
	return c, nil
}

func newClient(w pointWriter, keepalive time.Duration) *Client {
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	return &Client{
		points:    w,
		keepalive: keepalive,
		now:       time.Now,
		last:      make(map[string]statusSample),
	}
}

func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)
		c.mu.RLock()
		cb := c.onError
		c.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	}
}

// SetOnError installs the callback for failed batch writes.
func (c *Client) SetOnError(cb func(err error)) {
	c.mu.Lock()
	c.onError = cb
	c.mu.Unlock()
}

// IsConnected reports whether Close has not been called yet.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb ping: server not healthy")
	}
	return nil
}

// Stats returns the number of status points skipped as unchanged and the
// number of batch writes that failed.
func (c *Client) Stats() (skipped, failed uint64) {
	return c.skipped.Load(), c.failed.Load()
}

// Flush sends buffered points now.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.points.Flush()
	}
}

// Close flushes buffered points and closes the client. Later writes are
// dropped.
func (c *Client) Close() error {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()
	if !was {
		return nil
	}
	c.points.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
