package mqtt

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Node states published on camlink/node/{id}/status.
const (
	NodeOnline  = "online"
	NodeOffline = "offline"
)

// Reasons attached to an offline node status.
const (
	ReasonShutdown   = "graceful_shutdown"
	ReasonLinkBroken = "unexpected_disconnect"
)

// NodeStatus is the retained payload of a camlinkd node. Dashboards use it
// to tell a stopped daemon from one whose cameras are all unplugged.
type NodeStatus struct {
	Node      string `json:"node"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Since     string `json:"since,omitempty"`
	Timestamp string `json:"timestamp"`
}

func encodeNodeStatus(node, state, reason string, since time.Time) []byte {
	s := NodeStatus{
		Node:      node,
		State:     state,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if !since.IsZero() {
		s.Since = since.UTC().Format(time.RFC3339)
	}
	b, _ := json.Marshal(s)
	return b
}

// setWill makes the broker publish an offline status when the link breaks
// without Close.
func setWill(opts *pahomqtt.ClientOptions, node string) {
	opts.SetBinaryWill(Topics{}.NodeStatus(node),
		encodeNodeStatus(node, NodeOffline, ReasonLinkBroken, time.Time{}), 1, true)
}

// announce publishes the node status, retained, without waiting.
func (c *Client) announce(state, reason string) pahomqtt.Token {
	var since time.Time
	if state == NodeOnline {
		since = c.started
	}
	return c.client.Publish(Topics{}.NodeStatus(c.node), c.qos, true,
		encodeNodeStatus(c.node, state, reason, since))
}
