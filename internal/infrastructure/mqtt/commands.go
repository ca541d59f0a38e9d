package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// CommandHandler runs one command request addressed to camera sn. The
// payload is the raw request body. Returned errors are logged; the handler
// is expected to answer on the ack topic itself.
type CommandHandler func(sn string, payload []byte) error

// HandleCommands subscribes to camlink/command/+ and routes every request to
// h by serial number. The subscription is restored after each reconnect.
// A second call replaces the handler. While the link is down the handler is
// kept, ErrNotConnected is returned and the subscription is made on the
// next connect.
//
// Retained messages on a command topic are dropped: a stale retained
// command would otherwise run again on every reconnect.
func (c *Client) HandleCommands(h CommandHandler) error {
	if h == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	c.mu.Lock()
	c.commands = h
	c.mu.Unlock()

	if !c.IsConnected() {
		// linkUp subscribes once the broker is reachable.
		return ErrNotConnected
	}
	token := c.subscribeCommands()
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

func (c *Client) subscribeCommands() pahomqtt.Token {
	return c.client.Subscribe(Topics{}.AllCommands(), 1, c.routeCommand)
}

// routeCommand is the paho callback for the command subscription.
func (c *Client) routeCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	topic := msg.Topic()
	sn, ok := Topics{}.CommandSN(topic)
	if !ok {
		c.logWarn("mqtt command dropped", "topic", topic, "reason", "not a camera command topic")
		return
	}
	if msg.Retained() {
		c.logWarn("mqtt command dropped", "topic", topic, "reason", "retained")
		return
	}

	c.mu.RLock()
	h := c.commands
	c.mu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("mqtt command handler panicked", "sn", sn, "panic", r)
		}
	}()
	if err := h(sn, msg.Payload()); err != nil {
		c.logWarn("mqtt command handler failed", "sn", sn, "error", err)
	}
}
