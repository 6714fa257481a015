package mqtt

import "fmt"

// Topic prefixes for the Haven Core MQTT hierarchy.
//
// Bridge topics use the flat scheme: haven/{category}/{protocol}/{device_id}.
// Core topics carry engine events; system topics carry process status.
const (
	// TopicPrefixBridge is the base for all bridge topics.
	TopicPrefixBridge = "haven"

	// TopicPrefixCore is the base for all core topics.
	TopicPrefixCore = "haven/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "haven/system"
)

// Topics provides builders for Haven Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.Command("zigbee", "light-hall")
//	// Returns: "haven/command/zigbee/light-hall"
type Topics struct{}

// Command returns the topic for commands to a protocol bridge.
//
// Example: haven/command/zigbee/light-hall
func (Topics) Command(protocol, deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// State returns the topic for device state updates from a bridge.
//
// Example: haven/state/zigbee/light-hall
func (Topics) State(protocol, deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// AllStates returns the wildcard pattern matching every device state topic.
//
// Example: haven/state/+/+
func (Topics) AllStates() string {
	return TopicPrefixBridge + "/state/+/+"
}

// Ack returns the topic for command acknowledgements from a bridge.
//
// Example: haven/ack/zigbee/light-hall
func (Topics) Ack(protocol, deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, deviceID)
}

// ExecutionEvents returns the topic for rule engine progress events.
//
// Example: haven/core/executions
func (Topics) ExecutionEvents() string {
	return TopicPrefixCore + "/executions"
}

// Notification returns the topic for a notification recipient group.
//
// Example: haven/core/notify/operators
func (Topics) Notification(recipient string) string {
	return fmt.Sprintf("%s/notify/%s", TopicPrefixCore, recipient)
}

// SystemStatus returns the topic for Core process status (online/offline/LWT).
//
// Example: haven/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
