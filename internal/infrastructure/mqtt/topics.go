package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every avrctl topic.
const TopicPrefix = "avrctl"

// Topics provides builders for avrctl MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Status("192.168.1.50")
//	// Returns: "avrctl/status/192.168.1.50"
type Topics struct{}

// CommandEvent returns the topic for command outcome events.
//
// Example: avrctl/event/command
func (Topics) CommandEvent() string {
	return TopicPrefix + "/event/command"
}

// DiscoveryDevice returns the retained topic for one registry device.
//
// Example: avrctl/discovery/device/0b9c7a4e-...
func (Topics) DiscoveryDevice(deviceID string) string {
	return fmt.Sprintf("%s/discovery/device/%s", TopicPrefix, segment(deviceID))
}

// DiscoveryExpired returns the topic for staleness sweep results.
func (Topics) DiscoveryExpired() string {
	return TopicPrefix + "/discovery/expired"
}

// Status returns the retained topic for a receiver's status.
//
// Example: avrctl/status/192.168.1.50
func (Topics) Status(host string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, segment(host))
}

// Command returns the topic on which a remote command is requested.
//
// Example: avrctl/command/AVR-X2300W/power_on
func (Topics) Command(model, action string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, segment(model), segment(action))
}

// Ack returns the topic on which a remote command's result is published.
//
// Example: avrctl/ack/AVR-X2300W/power_on
func (Topics) Ack(model, action string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, segment(model), segment(action))
}

// SystemStatus returns the retained online/offline topic, also used as
// the Last Will topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllCommands returns the wildcard for every remote command.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+/+"
}

// AllStatus returns the wildcard for every receiver status topic.
func (Topics) AllStatus() string {
	return TopicPrefix + "/status/+"
}

// ParseCommandTopic extracts model and action from a command topic.
func ParseCommandTopic(topic string) (model, action string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "command" {
		return "", "", false
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// segment makes s safe as a single topic level: separators and wildcards
// become underscores.
func segment(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
