package mqtt

import "fmt"

// Topic prefixes for the Farsight presence bus.
//
// All topics use the scheme: farsight/{scope}/{...}
// Presence topics are retained so late subscribers immediately learn the
// current availability of every device without waiting for a transition.
const (
	// TopicPrefix is the base for all Farsight topics.
	TopicPrefix = "farsight"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "farsight/device"

	// TopicPrefixCore is the base for broker-wide topics.
	TopicPrefixCore = "farsight/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "farsight/system"
)

// Topics provides builders for Farsight MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	presenceTopic := topics.DevicePresence("kitchen-cam")
//	// Returns: "farsight/device/kitchen-cam/presence"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DevicePresence returns the retained presence topic for a device.
//
// Example: farsight/device/kitchen-cam/presence
func (Topics) DevicePresence(deviceID string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixDevice, topicSegment(deviceID))
}

// DeviceLatency returns the heartbeat latency topic for a device.
//
// Example: farsight/device/kitchen-cam/latency
func (Topics) DeviceLatency(deviceID string) string {
	return fmt.Sprintf("%s/%s/latency", TopicPrefixDevice, topicSegment(deviceID))
}

// =============================================================================
// Core Topics
// =============================================================================

// CoreRoster returns the retained roster snapshot topic.
//
// Example: farsight/core/roster
func (Topics) CoreRoster() string {
	return fmt.Sprintf("%s/roster", TopicPrefixCore)
}

// CoreEvent returns the topic for broker lifecycle events.
//
// Example: farsight/core/event/device_connected
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
// The client publishes a retained "online" payload here on connect and
// registers a matching "offline" Last Will for crash detection.
//
// Example: farsight/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDevicePresence returns a pattern matching every device presence topic.
//
// Pattern: farsight/device/+/presence
func (Topics) AllDevicePresence() string {
	return fmt.Sprintf("%s/+/presence", TopicPrefixDevice)
}

// AllCoreEvents returns a pattern matching all broker lifecycle events.
//
// Pattern: farsight/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllTopics returns a pattern matching all Farsight topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: farsight/#
func (Topics) AllTopics() string {
	return "farsight/#"
}

// topicSegment makes a client-supplied identifier safe for use as a single
// topic level. Device IDs arrive from query parameters and may contain MQTT
// structural characters that would corrupt the hierarchy.
func topicSegment(id string) string {
	out := []rune(id)
	for i, r := range out {
		switch r {
		case '/', '+', '#', '\x00':
			out[i] = '-'
		}
	}
	return string(out)
}
