package proto

import "strings"

const (
	TopicControl  = "esp32/sound/control"
	TopicSetpoint = "esp32/sound/setpoint"
	TopicResponse = "esp32/sound/response"
	TopicGetState = "esp32/sound/get_state"

	DefaultSenderTag = "PC"
	senderField      = "sender="
)

// Topics is the fixed subscription set.
var Topics = []string{TopicControl, TopicSetpoint, TopicResponse, TopicGetState}

// Tag prefixes body with sender=<tag>, unless the body already carries a
// sender field.
func Tag(tag, body string) string {
	if strings.HasPrefix(body, senderField) {
		return body
	}
	return senderField + tag + "," + body
}

// SplitSender removes every sender= field from a comma separated payload. The
// first sender found is returned; tagged is false when there was none.
func SplitSender(payload string) (sender, body string, tagged bool) {
	parts := strings.Split(payload, ",")
	rest := parts[:0]
	for _, p := range parts {
		field := strings.TrimSpace(p)
		if strings.HasPrefix(field, senderField) {
			if !tagged {
				sender = strings.TrimPrefix(field, senderField)
				tagged = true
			}
			continue
		}
		rest = append(rest, p)
	}
	return sender, strings.TrimSpace(strings.Join(rest, ",")), tagged
}

// IsSelf reports whether any sender field of payload equals tag. An untagged
// payload is never self.
func IsSelf(payload, tag string) bool {
	for _, p := range strings.Split(payload, ",") {
		if strings.TrimSpace(p) == senderField+tag {
			return true
		}
	}
	return false
}

// Inbound is a parsed MQTT message.
type Inbound struct {
	Topic   string
	Sender  string
	Tagged  bool
	Body    string
	Command Command
}

// ParseMQTT classifies a topic/payload pair. Unknown topics and bodies come
// back as CmdUnhandled; only malformed setpoints are errors.
func ParseMQTT(topic, payload string) (Inbound, error) {
	sender, body, tagged := SplitSender(payload)
	in := Inbound{Topic: topic, Sender: sender, Tagged: tagged, Body: body}
	in.Command = Command{Kind: CmdUnhandled, Raw: body}

	switch topic {
	case TopicControl:
		if action, ok := ParseMediaAction(strings.ToLower(body)); ok {
			in.Command.Kind = CmdMedia
			in.Command.Media = action
		}

	case TopicSetpoint:
		raw, ok := strings.CutPrefix(body, "setpoint:")
		if !ok {
			return in, NewError(ParseFailure, "setpoint payload missing prefix: "+body, nil)
		}
		v, err := ParseSetpoint(raw)
		if err != nil {
			return in, err
		}
		in.Command.Kind = CmdSetVolume
		in.Command.Volume = v

	case TopicGetState:
		if strings.Contains(body, "request") {
			in.Command.Kind = CmdStateRequest
		}

	case TopicResponse:
		if playing, ok := parsePlaybackBody(body); ok {
			in.Command.Kind = CmdSetPlayback
			in.Command.Playing = playing
		}
	}
	return in, nil
}

// parsePlaybackBody accepts "state:playing[,volume:n]" as well as the bare
// words the firmware publishes.
func parsePlaybackBody(body string) (bool, bool) {
	state, _, _ := strings.Cut(body, ",")
	state = strings.TrimPrefix(strings.TrimSpace(state), "state:")
	switch state {
	case "playing", "unpaused":
		return true, true
	case "paused":
		return false, true
	}
	return false, false
}
