package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "astroconsole"

// Command kinds accepted in command topics.
const (
	CommandSwitch = "switch"
	CommandNumber = "number"
)

// INDI device and property names may contain characters that are topic
// separators or wildcards, so each name is escaped into a single level.
var (
	segmentEscaper   = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23")
	segmentUnescaper = strings.NewReplacer("%25", "%", "%2F", "/", "%2B", "+", "%23", "#")
)

// Topics builds and parses the gateway's MQTT topics under a prefix.
//
//	topics := mqtt.NewTopics("astroconsole")
//	topics.State("CCD Simulator", "CCD_EXPOSURE")
//	// Returns: "astroconsole/state/CCD Simulator/CCD_EXPOSURE"
type Topics struct {
	prefix string
}

// NewTopics returns a topic builder for prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// Status returns the retained gateway status topic.
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// State returns the retained state topic for one property.
func (t Topics) State(device, property string) string {
	return fmt.Sprintf("%s/state/%s/%s", t.prefix, EscapeSegment(device), EscapeSegment(property))
}

// Command returns the command topic for one property and kind.
func (t Topics) Command(device, property, kind string) string {
	return fmt.Sprintf("%s/command/%s/%s/%s", t.prefix, EscapeSegment(device), EscapeSegment(property), kind)
}

// AllCommands returns the wildcard subscription for every command topic.
func (t Topics) AllCommands() string {
	return t.prefix + "/command/+/+/+"
}

// ParseCommand splits a command topic into its device, property and kind.
func (t Topics) ParseCommand(topic string) (device, property, kind string, err error) {
	rest, ok := strings.CutPrefix(topic, t.prefix+"/command/")
	if !ok {
		return "", "", "", fmt.Errorf("%w: %q is not a command topic", ErrInvalidTopic, topic)
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	switch parts[2] {
	case CommandSwitch, CommandNumber:
	default:
		return "", "", "", fmt.Errorf("%w: unknown command kind %q", ErrInvalidTopic, parts[2])
	}

	return UnescapeSegment(parts[0]), UnescapeSegment(parts[1]), parts[2], nil
}

// EscapeSegment encodes a name so it occupies exactly one topic level.
func EscapeSegment(s string) string {
	return segmentEscaper.Replace(s)
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(s string) string {
	return segmentUnescaper.Replace(s)
}
