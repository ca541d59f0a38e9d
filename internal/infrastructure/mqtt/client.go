package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/camlink-core/internal/infrastructure/config"
)

// Logger is the logging interface used by the client.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is camlinkd's link to the broker. It owns the node status topic
// (online on every connect, offline on Close, the will otherwise) and the
// single command subscription, and publishes device output for the bridge.
//
// paho reconnects on its own; the client re-announces the node and
// re-subscribes to commands each time the link comes back.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	node    string
	qos     byte
	started time.Time

	mu           sync.RWMutex
	connected    bool
	commands     CommandHandler
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Connect dials the broker described by cfg and announces the node online.
// The node id is the broker client id. Connect fails with
// ErrConnectionFailed if the first attempt does not succeed within
// connectTimeout; later drops are retried by paho.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		node:    cfg.Broker.ClientID,
		qos:     clampQoS(cfg.QoS),
		started: time.Now(),
	}

	opts := buildClientOptions(cfg)
	setWill(opts, c.node)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.linkUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.linkDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logWarn("mqtt reconnecting", "broker", cfg.Broker.Host, "node", c.node)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no answer from %s within %v", ErrConnectionFailed, cfg.Broker.Host, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// linkUp runs on a paho goroutine and may still be pending.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c, nil
}

func (c *Client) linkUp() {
	c.mu.Lock()
	c.connected = true
	handler := c.commands
	cb := c.onConnect
	c.mu.Unlock()

	c.announce(NodeOnline, "")
	if handler != nil {
		c.subscribeCommands()
	}
	if cb != nil {
		cb()
	}
}

func (c *Client) linkDown(err error) {
	c.mu.Lock()
	c.connected = false
	cb := c.onDisconnect
	c.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// Close announces a graceful shutdown and disconnects. The will is not
// published.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(NodeOffline, ReasonShutdown).WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(disconnectQuiet)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect installs a callback run after every (re)connect, once the
// node has been announced.
func (c *Client) SetOnConnect(cb func()) {
	c.mu.Lock()
	c.onConnect = cb
	c.mu.Unlock()
}

// SetOnDisconnect installs a callback run when the broker link drops.
func (c *Client) SetOnDisconnect(cb func(err error)) {
	c.mu.Lock()
	c.onDisconnect = cb
	c.mu.Unlock()
}

// SetLogger sets the logger for dropped commands and handler failures.
func (c *Client) SetLogger(l Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

func (c *Client) logWarn(msg string, args ...any) {
	c.mu.RLock()
	l := c.logger
	c.mu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) logError(msg string, args ...any) {
	c.mu.RLock()
	l := c.logger
	c.mu.RUnlock()
	if l != nil {
		l.Error(msg, args...)
	}
}
