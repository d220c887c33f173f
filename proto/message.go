package proto

import (
	"fmt"
	"strconv"
)

// Transport names the framing an outbound message is destined for.
type Transport int

const (
	DeviceLine Transport = iota // newline-terminated text over Serial or TCP
	MqttTopic                   // tagged payload published on an MQTT topic
)

func (t Transport) String() string {
	switch t {
	case DeviceLine:
		return "device"
	case MqttTopic:
		return "mqtt"
	default:
		return "unknown"
	}
}

// OutboundMessage is produced by the reconciler and router and consumed by the
// send method of the channel it is framed for.
type OutboundMessage struct {
	Transport Transport `json:"transport"`
	Topic     string    `json:"topic,omitempty"` // empty for device lines
	Payload   string    `json:"payload"`
}

type UpdateKind int

const (
	UpdateSetpoint UpdateKind = iota
	UpdatePlayback
	UpdateSnapshot
	UpdateMedia
)

// Update is a transport-neutral state change waiting to be framed.
type Update struct {
	Kind    UpdateKind
	Volume  int
	Playing bool
	Media   MediaAction
}

func SetpointUpdate(v int) Update { return Update{Kind: UpdateSetpoint, Volume: v} }

func PlaybackUpdate(playing bool) Update { return Update{Kind: UpdatePlayback, Playing: playing} }

func MediaUpdate(action MediaAction) Update { return Update{Kind: UpdateMedia, Media: action} }

func SnapshotUpdate(playing bool, volume int) Update {
	return Update{Kind: UpdateSnapshot, Playing: playing, Volume: volume}
}

// Frame renders u for the given transport. The second return is false when the
// transport has no representation for the update.
func (u Update) Frame(t Transport, tag string) (OutboundMessage, bool) {
	switch t {
	case DeviceLine:
		switch u.Kind {
		case UpdateSetpoint:
			return OutboundMessage{Transport: DeviceLine, Payload: FrameLine("setpoint=" + strconv.Itoa(u.Volume))}, true
		case UpdatePlayback:
			action := MediaPause
			if u.Playing {
				action = MediaPlay
			}
			return OutboundMessage{Transport: DeviceLine, Payload: FrameLine(string(action))}, true
		case UpdateMedia:
			return OutboundMessage{Transport: DeviceLine, Payload: FrameLine(string(u.Media))}, true
		}
		return OutboundMessage{}, false

	case MqttTopic:
		switch u.Kind {
		case UpdateSetpoint:
			return OutboundMessage{Transport: MqttTopic, Topic: TopicSetpoint, Payload: Tag(tag, "setpoint:"+strconv.Itoa(u.Volume))}, true
		case UpdatePlayback:
			return OutboundMessage{Transport: MqttTopic, Topic: TopicResponse, Payload: Tag(tag, "state:"+PlaybackWord(u.Playing))}, true
		case UpdateSnapshot:
			return OutboundMessage{Transport: MqttTopic, Topic: TopicResponse, Payload: Tag(tag, FormatSnapshot(u.Playing, u.Volume))}, true
		case UpdateMedia:
			return OutboundMessage{Transport: MqttTopic, Topic: TopicControl, Payload: Tag(tag, string(u.Media))}, true
		}
	}
	return OutboundMessage{}, false
}

func PlaybackWord(playing bool) string {
	if playing {
		return "playing"
	}
	return "paused"
}

// FormatSnapshot renders the full state reply body, e.g. "state:paused,volume:72".
func FormatSnapshot(playing bool, volume int) string {
	return fmt.Sprintf("state:%s,volume:%d", PlaybackWord(playing), volume)
}
