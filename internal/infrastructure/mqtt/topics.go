package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every camlink topic.
//
// Device topics are keyed by serial number: camlink/{category}/{sn} for
// command traffic and camlink/device/{sn}/{stream} for device output.
const TopicPrefix = "camlink"

// Topics provides builders for camlink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("SN123")
//	// Returns: "camlink/device/SN123/state"
type Topics struct{}

// DeviceState returns the retained connect/disconnect topic for a camera.
//
// Example: camlink/device/SN123/state
func (Topics) DeviceState(sn string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, sn)
}

// DeviceStatus returns the retained hardware status topic for a camera.
//
// Example: camlink/device/SN123/status
func (Topics) DeviceStatus(sn string) string {
	return fmt.Sprintf("%s/device/%s/status", TopicPrefix, sn)
}

// DeviceEvent returns the topic for device-originated events.
//
// Example: camlink/device/SN123/event
func (Topics) DeviceEvent(sn string) string {
	return fmt.Sprintf("%s/device/%s/event", TopicPrefix, sn)
}

// DeviceTransfer returns the topic for file transfer progress and results.
//
// Example: camlink/device/SN123/transfer
func (Topics) DeviceTransfer(sn string) string {
	return fmt.Sprintf("%s/device/%s/transfer", TopicPrefix, sn)
}

// Command returns the topic on which command requests for a camera arrive.
//
// Example: camlink/command/SN123
func (Topics) Command(sn string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, sn)
}

// Ack returns the topic on which command results are answered.
//
// Example: camlink/ack/SN123
func (Topics) Ack(sn string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, sn)
}

// NodeStatus returns the retained online/offline topic of a camlinkd node.
//
// Example: camlink/node/camlink-001/status
func (Topics) NodeStatus(nodeID string) string {
	return fmt.Sprintf("%s/node/%s/status", TopicPrefix, nodeID)
}

// AllCommands returns a pattern matching command requests for every camera.
//
// Pattern: camlink/command/+
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// AllDeviceStates returns a pattern matching every camera's state topic.
//
// Pattern: camlink/device/+/state
func (Topics) AllDeviceStates() string {
	return TopicPrefix + "/device/+/state"
}

// AllTopics returns a pattern matching all camlink topics.
//
// Pattern: camlink/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// CommandSN extracts the serial number from a command topic.
func (Topics) CommandSN(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
