package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

func TestReconciler_RemoteSetpointEchoIsSuppressed(t *testing.T) {
	h := newHarness(Options{})

	if err := h.rec.ObserveRemoteSetpoint(30, transport.KindTCP); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v, _ := h.host.Volume(context.Background()); v != 30 {
		t.Errorf("Expected host volume 30, got %d", v)
	}
	if err := h.rec.ObserveLocalVolume(30); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if h.sent() != 0 {
		t.Errorf("Expected no outbound messages, got device=%v mqtt=%v", h.device.Payloads(), h.mqtt.Payloads())
	}
	if got := h.rec.Snapshot().Volume; got.Value != 30 || got.Origin != OriginRemote {
		t.Errorf("Expected canonical 30 from remote, got %+v", got)
	}
}

func TestReconciler_NoFeedbackForAnyValue(t *testing.T) {
	for _, scope := range []Scope{ScopeGlobal, ScopePerValue} {
		h := newHarness(Options{Scope: scope})
		for v := 0; v <= 100; v++ {
			h.rec.ObserveRemoteSetpoint(v, transport.KindMQTT)
			h.rec.ObserveLocalVolume(v)
			h.clock.Advance(time.Second)
		}
		if h.sent() != 0 {
			t.Errorf("Scope %s: expected no outbound setpoints, got device=%v mqtt=%v",
				scope, h.device.Payloads(), h.mqtt.Payloads())
		}
	}
}

func TestReconciler_LocalChangeBroadcasts(t *testing.T) {
	h := newHarness(Options{})

	if err := h.rec.ObserveLocalVolume(55); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	device := h.device.Payloads()
	if len(device) != 1 || device[0] != "setpoint=55\n" {
		t.Errorf("Expected device setpoint=55, got %v", device)
	}
	mqtt := h.mqtt.Messages()
	if len(mqtt) != 1 {
		t.Fatalf("Expected 1 MQTT message, got %d", len(mqtt))
	}
	if mqtt[0].Topic != proto.TopicSetpoint || mqtt[0].Payload != "sender=PC,setpoint:55" {
		t.Errorf("Unexpected MQTT message %+v", mqtt[0])
	}
	if got := h.rec.Snapshot(); got.LastSent != 55 || got.Volume.Origin != OriginLocal {
		t.Errorf("Expected last sent 55 from local, got %+v", got)
	}
}

func TestReconciler_LocalEqualToCanonicalIsNoop(t *testing.T) {
	h := newHarness(Options{})
	before := h.rec.Snapshot()
	h.clock.Advance(time.Minute)

	h.rec.ObserveLocalVolume(40)

	if h.sent() != 0 {
		t.Errorf("Expected no messages, got %d", h.sent())
	}
	if after := h.rec.Snapshot(); after != before {
		t.Errorf("Expected state unchanged, got %+v want %+v", after, before)
	}
}

func TestReconciler_GlobalWindowSuppressesIntermediateValues(t *testing.T) {
	h := newHarness(Options{Scope: ScopeGlobal, Suppression: 100 * time.Millisecond})

	h.rec.ObserveRemoteSetpoint(60, transport.KindTCP)
	h.clock.Advance(20 * time.Millisecond)
	h.rec.ObserveLocalVolume(57)

	if h.sent() != 0 {
		t.Errorf("Expected intermediate value suppressed, got %v", h.device.Payloads())
	}
}

func TestReconciler_PerValueWindowLetsOtherValuesThrough(t *testing.T) {
	h := newHarness(Options{Scope: ScopePerValue, Suppression: 100 * time.Millisecond})

	h.rec.ObserveRemoteSetpoint(60, transport.KindTCP)
	h.clock.Advance(20 * time.Millisecond)
	h.rec.ObserveLocalVolume(57)

	device := h.device.Payloads()
	if len(device) != 1 || device[0] != "setpoint=57\n" {
		t.Errorf("Expected setpoint=57 sent, got %v", device)
	}
}

func TestReconciler_SettleClearsWindow(t *testing.T) {
	h := newHarness(Options{})

	h.rec.ObserveRemoteSetpoint(60, transport.KindTCP)
	if !h.rec.Snapshot().Suppressing {
		t.Fatal("Expected window open after remote setpoint")
	}
	if !h.sched.RunNext() {
		t.Fatal("Expected a settle check to be scheduled")
	}
	if h.rec.Snapshot().Suppressing {
		t.Error("Expected window cleared once the host reports the value")
	}

	h.rec.ObserveLocalVolume(70)
	if got := h.device.Payloads(); len(got) != 1 || got[0] != "setpoint=70\n" {
		t.Errorf("Expected setpoint=70 after settle, got %v", got)
	}
}

func TestReconciler_SettleRearmsUntilBudgetSpent(t *testing.T) {
	h := newHarness(Options{SettleChecks: 3})

	h.rec.ObserveRemoteSetpoint(60, transport.KindTCP)
	h.host.Move(58)

	runs := 0
	for h.sched.RunNext() {
		runs++
	}
	if runs != 3 {
		t.Errorf("Expected 3 settle checks, got %d", runs)
	}
	if h.rec.Snapshot().Suppressing {
		t.Error("Expected window cleared after the last check")
	}
}

func TestReconciler_StaleSettleCheckIgnored(t *testing.T) {
	h := newHarness(Options{})

	h.rec.ObserveRemoteSetpoint(60, transport.KindTCP)
	h.rec.ObserveRemoteSetpoint(70, transport.KindTCP)
	h.host.Move(60)

	h.sched.RunNext() // check for 60, superseded
	if !h.rec.Snapshot().Suppressing {
		t.Error("Expected window for 70 to stay open")
	}
}

func TestReconciler_WindowHardExpiry(t *testing.T) {
	h := newHarness(Options{Suppression: 100 * time.Millisecond, SettleChecks: 2})

	h.rec.ObserveRemoteSetpoint(60, transport.KindTCP)
	h.clock.Advance(301 * time.Millisecond)
	h.rec.ObserveLocalVolume(62)

	if got := h.device.Payloads(); len(got) != 1 || got[0] != "setpoint=62\n" {
		t.Errorf("Expected send after expiry, got %v", got)
	}
}

func TestReconciler_RemoteOutOfRangeRejected(t *testing.T) {
	h := newHarness(Options{})

	for _, v := range []int{-1, 101, 150} {
		err := h.rec.ObserveRemoteSetpoint(v, transport.KindSerial)
		if !errors.Is(err, proto.ErrParseFailure) {
			t.Errorf("Value %d: expected parse failure, got %v", v, err)
		}
	}
	if n := h.host.Count("set_volume"); n != 0 {
		t.Errorf("Expected no host calls, got %d", n)
	}
	if h.rec.Snapshot().Volume.Value != 40 {
		t.Error("Expected canonical volume unchanged")
	}
}

func TestReconciler_RemoteHostFailureLeavesStateAlone(t *testing.T) {
	h := newHarness(Options{})
	h.host.SetErr = errors.New("pactl missing")

	if err := h.rec.ObserveRemoteSetpoint(20, transport.KindMQTT); err == nil {
		t.Fatal("Expected error from host")
	}
	snap := h.rec.Snapshot()
	if snap.Volume.Value != 40 || snap.Suppressing {
		t.Errorf("Expected untouched state and closed window, got %+v", snap)
	}
	if h.sched.Pending() != 0 {
		t.Errorf("Expected no settle check, got %d", h.sched.Pending())
	}
	entries := h.log.Entries(transport.KindMQTT, true)
	if len(entries) != 1 || entries[0].Level != LevelWarning {
		t.Errorf("Expected one warning log entry, got %+v", entries)
	}
}

func TestReconciler_RemoteSetpointNotRelayed(t *testing.T) {
	h := newHarness(Options{})

	h.rec.ObserveRemoteSetpoint(25, transport.KindMQTT)

	if h.sent() != 0 {
		t.Errorf("Expected remote setpoint not relayed, got device=%v", h.device.Payloads())
	}
}

func TestReconciler_LocalPlaybackBroadcastsOnChangeOnly(t *testing.T) {
	h := newHarness(Options{})

	h.rec.ObserveLocalPlayback(audio.MediaState{Playing: true, Player: "spotify"})
	if got := h.device.Payloads(); len(got) != 1 || got[0] != "play\n" {
		t.Errorf("Expected device play, got %v", got)
	}
	mqtt := h.mqtt.Messages()
	if len(mqtt) != 1 || mqtt[0].Topic != proto.TopicResponse || mqtt[0].Payload != "sender=PC,state:playing" {
		t.Errorf("Unexpected MQTT messages %+v", mqtt)
	}

	h.reset()
	h.rec.ObserveLocalPlayback(audio.MediaState{Playing: true, Player: "vlc"})
	if h.sent() != 0 {
		t.Errorf("Expected player rename to stay local, got %d messages", h.sent())
	}
	if h.rec.Snapshot().Playback.Player != "vlc" {
		t.Error("Expected player name updated")
	}
}

func TestReconciler_RemotePlayTogglesAndConfirms(t *testing.T) {
	h := newHarness(Options{})

	if err := h.rec.HandleRemoteMediaCommand(proto.MediaPlay, transport.KindMQTT); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := h.host.Count("play_pause"); n != 1 {
		t.Errorf("Expected one toggle, got %d", n)
	}
	if !h.rec.Snapshot().Playback.IsPlaying {
		t.Error("Expected canonical playing")
	}
	// Confirmed state goes to every channel, the source included.
	if got := h.device.Payloads(); len(got) != 1 || got[0] != "play\n" {
		t.Errorf("Expected device play, got %v", got)
	}
	if got := h.mqtt.Payloads(); len(got) != 1 || got[0] != "sender=PC,state:playing" {
		t.Errorf("Expected MQTT state:playing, got %v", got)
	}

	h.rec.HandleRemoteMediaCommand(proto.MediaPlay, transport.KindMQTT)
	if n := h.host.Count("play_pause"); n != 1 {
		t.Errorf("Expected no toggle while already playing, got %d", n)
	}
}

func TestReconciler_PauseWhenPausedDoesNotToggle(t *testing.T) {
	h := newHarness(Options{})

	h.rec.HandleRemoteMediaCommand(proto.MediaPause, transport.KindTCP)

	if n := h.host.Count("play_pause"); n != 0 {
		t.Errorf("Expected no toggle, got %d", n)
	}
	if got := h.device.Payloads(); len(got) != 1 || got[0] != "pause\n" {
		t.Errorf("Expected confirmed pause, got %v", got)
	}
}

func TestReconciler_ToggleIgnoredReportsActualState(t *testing.T) {
	h := newHarness(Options{})
	h.host.TogglesIgnored = true

	h.rec.HandleRemoteMediaCommand(proto.MediaPlay, transport.KindMQTT)

	if h.rec.Snapshot().Playback.IsPlaying {
		t.Error("Expected canonical state to follow the player, not the request")
	}
	if got := h.mqtt.Payloads(); len(got) != 1 || got[0] != "sender=PC,state:paused" {
		t.Errorf("Expected state:paused, got %v", got)
	}
}

func TestReconciler_MediaWithoutPlayer(t *testing.T) {
	h := newHarness(Options{})
	h.host.SetState(audio.MediaState{})

	err := h.rec.HandleRemoteMediaCommand(proto.MediaPlay, transport.KindMQTT)
	if !errors.Is(err, audio.ErrNoPlayer) {
		t.Errorf("Expected ErrNoPlayer, got %v", err)
	}
	if len(h.host.Calls()) != 0 {
		t.Errorf("Expected no host calls, got %v", h.host.Calls())
	}
	entries := h.log.Entries(transport.KindMQTT, true)
	if len(entries) != 1 || entries[0].Level != LevelWarning {
		t.Errorf("Expected warning entry, got %+v", entries)
	}
}

func TestReconciler_ForwardFollowUpWithoutChange(t *testing.T) {
	h := newHarness(Options{})

	if err := h.rec.HandleRemoteMediaCommand(proto.MediaForward, transport.KindMQTT); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := h.host.Count("next"); n != 1 {
		t.Errorf("Expected next track once, got %d", n)
	}
	if h.sched.Pending() != 1 || h.sched.tasks[0].delay != DefaultFollowUpDelay {
		t.Fatalf("Expected a follow-up poll after %s", DefaultFollowUpDelay)
	}
	h.sched.RunNext()
	if h.sent() != 0 {
		t.Errorf("Expected no broadcast, got device=%v mqtt=%v", h.device.Payloads(), h.mqtt.Payloads())
	}
}

func TestReconciler_RewindFollowUpDetectsChange(t *testing.T) {
	h := newHarness(Options{})

	h.rec.HandleRemoteMediaCommand(proto.MediaRewind, transport.KindTCP)
	h.host.SetState(audio.MediaState{Playing: true, Player: "spotify"})
	h.sched.RunNext()

	if n := h.host.Count("previous"); n != 1 {
		t.Errorf("Expected previous track once, got %d", n)
	}
	if got := h.device.Payloads(); len(got) != 1 || got[0] != "play\n" {
		t.Errorf("Expected play after follow-up, got %v", got)
	}
}

func TestReconciler_LocalForwardAnnounced(t *testing.T) {
	h := newHarness(Options{})

	if err := h.rec.LocalMedia(proto.MediaForward); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := h.device.Payloads(); len(got) != 1 || got[0] != "forward\n" {
		t.Errorf("Expected device forward, got %v", got)
	}
	mqtt := h.mqtt.Messages()
	if len(mqtt) != 1 || mqtt[0].Topic != proto.TopicControl || mqtt[0].Payload != "sender=PC,forward" {
		t.Errorf("Unexpected MQTT messages %+v", mqtt)
	}
}

func TestReconciler_StateRequestRepliesToSourceOnly(t *testing.T) {
	h := newHarness(Options{})
	h.host.Move(72)

	h.rec.HandleStateRequest(transport.KindMQTT)

	mqtt := h.mqtt.Messages()
	if len(mqtt) != 1 {
		t.Fatalf("Expected 1 reply, got %d", len(mqtt))
	}
	if mqtt[0].Topic != proto.TopicResponse || mqtt[0].Payload != "sender=PC,state:paused,volume:72" {
		t.Errorf("Unexpected reply %+v", mqtt[0])
	}
	if len(h.device.Messages()) != 0 {
		t.Errorf("Expected nothing on the device, got %v", h.device.Payloads())
	}
	if h.rec.Snapshot().Volume.Value != 40 {
		t.Error("Expected canonical state untouched by a state request")
	}
}

func TestReconciler_StateRequestFallback(t *testing.T) {
	h := newHarness(Options{})
	h.host.VolumeErr = errors.New("no sink")

	h.rec.HandleStateRequest(transport.KindMQTT)

	if got := h.mqtt.Payloads(); len(got) != 1 || got[0] != "sender=PC,state:paused,volume:50" {
		t.Errorf("Expected fallback reply, got %v", got)
	}
}

func TestReconciler_RemotePlaybackIsDisplayOnly(t *testing.T) {
	h := newHarness(Options{})

	h.rec.ObserveRemotePlayback(true, transport.KindSerial)

	snap := h.rec.Snapshot().Playback
	if !snap.PeerKnown || !snap.PeerPlaying || snap.IsPlaying {
		t.Errorf("Unexpected playback state %+v", snap)
	}
	if h.sent() != 0 || len(h.host.Calls()) != 0 {
		t.Error("Expected no broadcast and no host calls")
	}
}

func TestReconciler_SetLocalVolumeWaitsForPoll(t *testing.T) {
	h := newHarness(Options{})

	if err := h.rec.SetLocalVolume(65); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v, _ := h.host.Volume(context.Background()); v != 65 {
		t.Errorf("Expected host volume 65, got %d", v)
	}
	if h.sent() != 0 {
		t.Error("Expected no broadcast before the poll reports the change")
	}
	if err := h.rec.SetLocalVolume(101); !errors.Is(err, proto.ErrParseFailure) {
		t.Errorf("Expected parse failure, got %v", err)
	}
}

func TestReconciler_SendFailureIsLogged(t *testing.T) {
	h := newHarness(Options{})
	h.mqtt.err = proto.NewError(proto.PublishFailure, "not connected to broker", nil)

	h.rec.ObserveLocalVolume(80)

	if got := h.device.Payloads(); len(got) != 1 {
		t.Errorf("Expected device send despite MQTT failure, got %v", got)
	}
	entries := h.log.Entries(transport.KindMQTT, true)
	if len(entries) != 1 || entries[0].Level != LevelError {
		t.Errorf("Expected one error entry, got %+v", entries)
	}
}

func TestReconciler_NotifiesStateListeners(t *testing.T) {
	h := newHarness(Options{})
	l := &recordingListener{id: "ui"}
	h.notes.Subscribe(TopicState, l)

	h.rec.ObserveLocalVolume(33)

	n, ok := l.Last()
	if !ok {
		t.Fatal("Expected a state notification")
	}
	snap, ok := n.Data.(StateSnapshot)
	if !ok || snap.Volume.Value != 33 {
		t.Errorf("Unexpected notification %+v", n)
	}
}
