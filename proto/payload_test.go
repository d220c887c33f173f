package proto

import (
	"errors"
	"testing"
)

func TestTag_Idempotent(t *testing.T) {
	once := Tag("PC", "setpoint:55")
	if once != "sender=PC,setpoint:55" {
		t.Fatalf("Unexpected tagged payload %q", once)
	}
	if twice := Tag("PC", once); twice != once {
		t.Errorf("Expected tagging to be idempotent, got %q", twice)
	}
}

func TestSplitSender(t *testing.T) {
	sender, body, tagged := SplitSender("sender=ESP32,forward")
	if !tagged || sender != "ESP32" || body != "forward" {
		t.Errorf("Unexpected split: %q %q %v", sender, body, tagged)
	}

	sender, body, tagged = SplitSender("play")
	if tagged || sender != "" || body != "play" {
		t.Errorf("Expected untagged payload, got %q %q %v", sender, body, tagged)
	}

	_, body, _ = SplitSender("state:paused,sender=ESP32,volume:10")
	if body != "state:paused,volume:10" {
		t.Errorf("Expected sender field removed from the middle, got %q", body)
	}
}

func TestIsSelf(t *testing.T) {
	if !IsSelf("sender=PC,play", "PC") {
		t.Error("Expected own tag to be recognised")
	}
	if IsSelf("sender=PCX,play", "PC") {
		t.Error("Expected prefix of another tag to not match")
	}
	if IsSelf("play", "PC") {
		t.Error("Untagged payload must never be self")
	}
}

func TestParseMQTT(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		kind    CommandKind
	}{
		{"control forward", TopicControl, "sender=ESP32,forward", CmdMedia},
		{"control untagged", TopicControl, "pause", CmdMedia},
		{"control unknown", TopicControl, "sender=ESP32,dance", CmdUnhandled},
		{"setpoint", TopicSetpoint, "sender=ESP32,setpoint:30", CmdSetVolume},
		{"get state", TopicGetState, "sender=ESP32,request", CmdStateRequest},
		{"get state other", TopicGetState, "sender=ESP32,hello", CmdUnhandled},
		{"response snapshot", TopicResponse, "sender=ESP32,state:playing,volume:20", CmdSetPlayback},
		{"response bare", TopicResponse, "paused", CmdSetPlayback},
		{"unknown topic", "other/topic", "x", CmdUnhandled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := ParseMQTT(tt.topic, tt.payload)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if in.Command.Kind != tt.kind {
				t.Errorf("Expected %v, got %v", tt.kind, in.Command.Kind)
			}
		})
	}
}

func TestParseMQTT_SetpointFailures(t *testing.T) {
	for _, payload := range []string{"sender=ESP32,setpoint:150", "sender=ESP32,30", "setpoint:x"} {
		if _, err := ParseMQTT(TopicSetpoint, payload); !errors.Is(err, ErrParseFailure) {
			t.Errorf("Expected parse failure for %q, got %v", payload, err)
		}
	}
}

func TestUpdateFrame(t *testing.T) {
	msg, ok := SetpointUpdate(55).Frame(DeviceLine, "PC")
	if !ok || msg.Payload != "setpoint=55\n" {
		t.Errorf("Unexpected device setpoint %q", msg.Payload)
	}

	msg, ok = SetpointUpdate(55).Frame(MqttTopic, "PC")
	if !ok || msg.Topic != TopicSetpoint || msg.Payload != "sender=PC,setpoint:55" {
		t.Errorf("Unexpected mqtt setpoint %+v", msg)
	}

	msg, _ = PlaybackUpdate(true).Frame(MqttTopic, "PC")
	if msg.Topic != TopicResponse || msg.Payload != "sender=PC,state:playing" {
		t.Errorf("Unexpected mqtt playback %+v", msg)
	}

	msg, _ = PlaybackUpdate(false).Frame(DeviceLine, "PC")
	if msg.Payload != "pause\n" {
		t.Errorf("Unexpected device playback %q", msg.Payload)
	}

	msg, _ = SnapshotUpdate(false, 72).Frame(MqttTopic, "PC")
	if msg.Payload != "sender=PC,state:paused,volume:72" {
		t.Errorf("Unexpected snapshot %q", msg.Payload)
	}

	if _, ok := SnapshotUpdate(false, 72).Frame(DeviceLine, "PC"); ok {
		t.Error("Device lines have no snapshot framing")
	}
}

func TestUpdateFrame_Media(t *testing.T) {
	msg, _ := MediaUpdate(MediaForward).Frame(DeviceLine, "PC")
	if msg.Payload != "forward\n" {
		t.Errorf("Unexpected device media line %q", msg.Payload)
	}
	msg, _ = MediaUpdate(MediaRewind).Frame(MqttTopic, "PC")
	if msg.Topic != TopicControl || msg.Payload != "sender=PC,rewind" {
		t.Errorf("Unexpected mqtt media message %+v", msg)
	}
}
