package hvac

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-echonet/internal/bridges/echonet"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "echonet"

// Topic suffixes.
const (
	SuffixCommandPower       = "hvac_command_power"
	SuffixCommandMode        = "hvac_command_mode"
	SuffixCommandFanMode     = "hvac_command_fan_mode"
	SuffixCommandTemperature = "hvac_command_temperature"

	SuffixStatePower           = "hvac_state_power"
	SuffixStateMode            = "hvac_state_mode"
	SuffixStateFanMode         = "hvac_state_fan_mode"
	SuffixStateTemperature     = "hvac_state_temperature"
	SuffixStateRoomTemperature = "hvac_state_room_temperature"
)

// bridgeSegment is the device position used for bridge-level topics.
const bridgeSegment = "bridge"

// Direction says whether a topic carries commands to a device or state from it.
type Direction int

const (
	DirectionCommand Direction = iota
	DirectionState
)

// String returns "command" or "state".
func (d Direction) String() string {
	switch d {
	case DirectionCommand:
		return "command"
	case DirectionState:
		return "state"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// propertyMapping binds a topic suffix to a property code.
type propertyMapping struct {
	Suffix    string
	EPC       echonet.EPC
	Direction Direction
}

// propertyTable is closed. State entries are polled in this order, so
// power must stay first for the power override to see this cycle's value.
var propertyTable = []propertyMapping{
	{SuffixCommandPower, echonet.EPCOperationStatus, DirectionCommand},
	{SuffixCommandMode, echonet.EPCOperationMode, DirectionCommand},
	{SuffixCommandFanMode, echonet.EPCAirFlowRate, DirectionCommand},
	{SuffixCommandTemperature, echonet.EPCTargetTemperature, DirectionCommand},
	{SuffixStatePower, echonet.EPCOperationStatus, DirectionState},
	{SuffixStateMode, echonet.EPCOperationMode, DirectionState},
	{SuffixStateFanMode, echonet.EPCAirFlowRate, DirectionState},
	{SuffixStateTemperature, echonet.EPCTargetTemperature, DirectionState},
	{SuffixStateRoomTemperature, echonet.EPCRoomTemperature, DirectionState},
}

var suffixIndex = func() map[string]propertyMapping {
	m := make(map[string]propertyMapping, len(propertyTable))
	for _, p := range propertyTable {
		m[p.Suffix] = p
	}
	return m
}()

// mappingsFor returns the table entries for one direction, in table order.
func mappingsFor(dir Direction) []propertyMapping {
	out := make([]propertyMapping, 0, len(propertyTable))
	for _, p := range propertyTable {
		if p.Direction == dir {
			out = append(out, p)
		}
	}
	return out
}

// TopicRef is a decoded topic.
type TopicRef struct {
	Device    string
	Suffix    string
	EPC       echonet.EPC
	Direction Direction
}

// TopicCodec maps between topics and property codes.
//
// Topics have the shape /<prefix>/<device>/<suffix>, leading slash included.
type TopicCodec struct {
	prefix string
}

// NewTopicCodec creates a codec. Surrounding slashes are trimmed from the
// prefix; an empty prefix becomes DefaultPrefix.
func NewTopicCodec(prefix string) TopicCodec {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return TopicCodec{prefix: prefix}
}

// Prefix returns the normalised prefix.
func (c TopicCodec) Prefix() string {
	return c.prefix
}

// Decode parses a topic into device name, suffix and property code.
func (c TopicCodec) Decode(topic string) (TopicRef, error) {
	root := "/" + c.prefix + "/"
	rest, ok := strings.CutPrefix(topic, root)
	if !ok {
		return TopicRef{}, fmt.Errorf("%w: %q does not start with %q", ErrUnknownTopic, topic, root)
	}

	device, suffix, ok := strings.Cut(rest, "/")
	if !ok || device == "" || suffix == "" || strings.Contains(suffix, "/") {
		return TopicRef{}, fmt.Errorf("%w: %q is not /%s/<device>/<suffix>", ErrUnknownTopic, topic, c.prefix)
	}

	mapping, ok := suffixIndex[suffix]
	if !ok {
		return TopicRef{}, fmt.Errorf("%w: suffix %q", ErrUnknownTopic, suffix)
	}

	return TopicRef{
		Device:    device,
		Suffix:    suffix,
		EPC:       mapping.EPC,
		Direction: mapping.Direction,
	}, nil
}

// StateTopic builds the topic for a device and suffix.
func (c TopicCodec) StateTopic(device, suffix string) string {
	return "/" + c.prefix + "/" + device + "/" + suffix
}

// CommandTopics returns every command topic of a device.
func (c TopicCodec) CommandTopics(device string) []string {
	return c.topicsFor(device, DirectionCommand)
}

// StateTopics returns every state topic of a device, in poll order.
func (c TopicCodec) StateTopics(device string) []string {
	return c.topicsFor(device, DirectionState)
}

func (c TopicCodec) topicsFor(device string, dir Direction) []string {
	mappings := mappingsFor(dir)
	topics := make([]string, 0, len(mappings))
	for _, m := range mappings {
		topics = append(topics, c.StateTopic(device, m.Suffix))
	}
	return topics
}

// HealthTopic returns the bridge health topic.
func (c TopicCodec) HealthTopic() string {
	return c.StateTopic(bridgeSegment, "health")
}
