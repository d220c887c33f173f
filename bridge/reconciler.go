package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

const (
	DefaultSuppression   = 100 * time.Millisecond
	DefaultSettleChecks  = 5
	DefaultFollowUpDelay = 500 * time.Millisecond
	DefaultCallTimeout   = 2 * time.Second

	// Reply sent to a state request when the host cannot be read.
	fallbackVolume = 50
)

type Origin int

const (
	OriginUnknown Origin = iota
	OriginLocal
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

func (o Origin) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

type VolumeState struct {
	Value         int       `json:"value"`
	Origin        Origin    `json:"origin"`
	LastAppliedAt time.Time `json:"last_applied_at"`
}

type PlaybackState struct {
	IsPlaying bool   `json:"is_playing"`
	Player    string `json:"player"`
	// Peer* hold what the device or broker last reported. Display only.
	PeerPlaying bool `json:"peer_playing"`
	PeerKnown   bool `json:"peer_known"`
}

// StateSnapshot is a copy of the reconciler state for presentation.
type StateSnapshot struct {
	Volume      VolumeState   `json:"volume"`
	Playback    PlaybackState `json:"playback"`
	LastSent    int           `json:"last_sent"`
	HaveSent    bool          `json:"have_sent"`
	Suppressing bool          `json:"suppressing"`
}

type Options struct {
	Tag           string
	Suppression   time.Duration
	Scope         Scope
	SettleChecks  int
	FollowUpDelay time.Duration
	CallTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Tag == "" {
		o.Tag = proto.DefaultSenderTag
	}
	if o.Suppression <= 0 {
		o.Suppression = DefaultSuppression
	}
	if o.SettleChecks <= 0 {
		o.SettleChecks = DefaultSettleChecks
	}
	if o.FollowUpDelay <= 0 {
		o.FollowUpDelay = DefaultFollowUpDelay
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return o
}

// Reconciler holds the canonical volume and playback state and decides what
// goes out on which channel. Every method must run on the control goroutine.
type Reconciler struct {
	opts    Options
	volume  audio.VolumeController
	media   audio.MediaController
	sched   Scheduler
	outlets *OutletRegistry
	notes   *Notifier
	log     *MessageLog
	now     func() time.Time

	vol       VolumeState
	play      PlaybackState
	playKnown bool
	lastSent  int
	haveSent  bool
	window    SuppressionWindow
	settleGen int
}

func NewReconciler(opts Options, volume audio.VolumeController, media audio.MediaController,
	sched Scheduler, outlets *OutletRegistry, notes *Notifier, log *MessageLog) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		opts:    opts,
		volume:  volume,
		media:   media,
		sched:   sched,
		outlets: outlets,
		notes:   notes,
		log:     log,
		now:     time.Now,
		window:  SuppressionWindow{Scope: opts.Scope},
	}
}

func (r *Reconciler) Options() Options { return r.opts }

// PrimeVolume seeds the canonical volume from the first poll without
// broadcasting it.
func (r *Reconciler) PrimeVolume(v int) {
	r.vol = VolumeState{Value: v, Origin: OriginLocal, LastAppliedAt: r.now()}
	slog.Info("Volume primed", "volume", v)
}

func (r *Reconciler) PrimePlayback(s audio.MediaState) {
	r.play.IsPlaying = s.Playing
	r.play.Player = s.Player
	r.playKnown = true
	slog.Info("Playback primed", "playing", s.Playing, "player", s.Player)
}

// ResyncSent marks the canonical volume as already sent. Called when a
// channel connects so the next local change is compared against it.
func (r *Reconciler) ResyncSent() {
	if r.vol.Origin == OriginUnknown {
		r.haveSent = false
		return
	}
	r.lastSent = r.vol.Value
	r.haveSent = true
}

func (r *Reconciler) Snapshot() StateSnapshot {
	return StateSnapshot{
		Volume:      r.vol,
		Playback:    r.play,
		LastSent:    r.lastSent,
		HaveSent:    r.haveSent,
		Suppressing: r.window.Active(r.now()),
	}
}

func (r *Reconciler) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opts.CallTimeout)
}

func checkRange(v int) error {
	if v < proto.MinVolume || v > proto.MaxVolume {
		return proto.NewError(proto.ParseFailure, "volume out of range: "+strconv.Itoa(v), nil)
	}
	return nil
}

// ObserveLocalVolume handles a changed host volume reading.
func (r *Reconciler) ObserveLocalVolume(v int) error {
	if err := checkRange(v); err != nil {
		slog.Warn("Ignoring local volume", "error", err)
		return err
	}
	if r.vol.Origin != OriginUnknown && v == r.vol.Value {
		return nil
	}

	now := r.now()
	r.vol = VolumeState{Value: v, Origin: OriginLocal, LastAppliedAt: now}
	r.notifyState()

	if r.window.Covers(v, now) {
		slog.Debug("Local volume suppressed", "volume", v, "window_value", r.window.Value(), "scope", r.window.Scope.String())
		return nil
	}
	if r.haveSent && v == r.lastSent {
		return nil
	}

	r.lastSent, r.haveSent = v, true
	r.broadcast(proto.SetpointUpdate(v))
	return nil
}

// ObserveRemoteSetpoint applies a setpoint received from source to the host.
// The canonical state changes only once the host accepted the value.
func (r *Reconciler) ObserveRemoteSetpoint(v int, source transport.Kind) error {
	if err := checkRange(v); err != nil {
		r.log.Warn(source, err.Error())
		return err
	}
	if r.vol.Origin != OriginUnknown && v == r.vol.Value {
		slog.Debug("Remote setpoint already applied", "volume", v, "source", source.String())
		return nil
	}

	now := r.now()
	r.settleGen++
	r.window.Open(v, now.Add(r.opts.Suppression*time.Duration(r.opts.SettleChecks+1)))

	ctx, cancel := r.ctx()
	err := r.volume.SetVolume(ctx, v)
	cancel()
	if err != nil {
		r.window.Clear()
		slog.Warn("Failed to apply remote setpoint", "volume", v, "source", source.String(), "error", err)
		r.log.Warn(source, "Failed to set volume to "+strconv.Itoa(v)+": "+err.Error())
		return fmt.Errorf("set volume: %w", err)
	}

	r.vol = VolumeState{Value: v, Origin: OriginRemote, LastAppliedAt: now}
	r.lastSent, r.haveSent = v, true
	r.notifyState()
	slog.Info("Remote setpoint applied", "volume", v, "source", source.String())

	gen := r.settleGen
	r.sched.After(r.opts.Suppression, func() { r.settle(gen, r.opts.SettleChecks) })
	return nil
}

// settle clears the window once the host reports the expected value. A newer
// setpoint bumps settleGen and strands older checks.
func (r *Reconciler) settle(gen, remaining int) {
	if gen != r.settleGen || !r.window.Active(r.now()) {
		return
	}
	ctx, cancel := r.ctx()
	v, err := r.volume.Volume(ctx)
	cancel()
	if err == nil && v == r.window.Value() {
		r.window.Clear()
		slog.Debug("Suppression window settled", "volume", v)
		return
	}
	if remaining <= 1 {
		r.window.Clear()
		slog.Debug("Suppression window expired", "expected", r.window.Value(), "observed", v)
		return
	}
	r.sched.After(r.opts.Suppression, func() { r.settle(gen, remaining-1) })
}

// ObserveLocalPlayback handles a changed media sample. Only a change of the
// playing flag goes out on the channels.
func (r *Reconciler) ObserveLocalPlayback(s audio.MediaState) {
	changed := !r.playKnown || s.Playing != r.play.IsPlaying
	renamed := s.Player != r.play.Player

	r.play.IsPlaying = s.Playing
	r.play.Player = s.Player
	r.playKnown = true

	if changed || renamed {
		r.notifyState()
	}
	if changed {
		slog.Info("Playback changed", "playing", s.Playing, "player", s.Player)
		r.broadcast(proto.PlaybackUpdate(s.Playing))
	}
}

// ObserveRemotePlayback records what a peer says it is doing.
func (r *Reconciler) ObserveRemotePlayback(playing bool, source transport.Kind) {
	r.play.PeerPlaying = playing
	r.play.PeerKnown = true
	r.log.Status(source, "Peer reports "+proto.PlaybackWord(playing))
	r.notifyState()
}

// HandleRemoteMediaCommand runs a media action requested by source.
func (r *Reconciler) HandleRemoteMediaCommand(action proto.MediaAction, source transport.Kind) error {
	return r.runMedia(action, source, false)
}

// LocalMedia runs a media action from the operator. Track skips are also
// announced to the peers.
func (r *Reconciler) LocalMedia(action proto.MediaAction) error {
	return r.runMedia(action, transport.KindLocal, true)
}

func (r *Reconciler) runMedia(action proto.MediaAction, source transport.Kind, announce bool) error {
	ctx, cancel := r.ctx()
	defer cancel()

	st, err := r.media.State(ctx)
	if err == nil && !st.Detected() {
		err = audio.ErrNoPlayer
	}
	if err != nil {
		slog.Warn("Media command dropped", "action", string(action), "source", source.String(), "error", err)
		r.log.Warn(source, "No media player detected for "+string(action))
		return err
	}

	switch action {
	case proto.MediaPlay, proto.MediaPause:
		want := action == proto.MediaPlay
		if st.Playing != want {
			if err := r.media.PlayPause(ctx); err != nil {
				slog.Warn("Play/pause failed", "error", err)
				r.log.Warn(source, "Failed to "+string(action)+": "+err.Error())
				return err
			}
		}
		confirmed, err := r.media.State(ctx)
		if err != nil {
			slog.Warn("Could not confirm playback", "error", err)
			return err
		}
		r.play.IsPlaying = confirmed.Playing
		r.play.Player = confirmed.Player
		r.playKnown = true
		r.notifyState()
		slog.Info("Playback confirmed", "action", string(action), "playing", confirmed.Playing, "source", source.String())
		r.broadcast(proto.PlaybackUpdate(confirmed.Playing))
		return nil

	case proto.MediaForward, proto.MediaRewind:
		skip := r.media.Next
		if action == proto.MediaRewind {
			skip = r.media.Previous
		}
		if err := skip(ctx); err != nil {
			slog.Warn("Track skip failed", "action", string(action), "error", err)
			r.log.Warn(source, "Failed to "+string(action)+": "+err.Error())
			return err
		}
		if announce {
			r.broadcast(proto.MediaUpdate(action))
		}
		r.sched.After(r.opts.FollowUpDelay, r.followUp)
		return nil
	}
	return proto.NewError(proto.ParseFailure, "unknown media action: "+string(action), nil)
}

func (r *Reconciler) followUp() {
	ctx, cancel := r.ctx()
	st, err := r.media.State(ctx)
	cancel()
	if err != nil {
		slog.Debug("Follow-up poll failed", "error", err)
		return
	}
	r.ObserveLocalPlayback(st)
}

// HandleStateRequest replies to source alone with a fresh snapshot of the
// host. Canonical state is left untouched.
func (r *Reconciler) HandleStateRequest(source transport.Kind) {
	ctx, cancel := r.ctx()
	defer cancel()

	playing, volume := false, fallbackVolume
	v, verr := r.volume.Volume(ctx)
	st, merr := r.media.State(ctx)
	if verr == nil && merr == nil {
		playing, volume = st.Playing, v
	} else {
		slog.Warn("State request answered with fallback", "volume_error", verr, "media_error", merr)
	}
	r.sendTo(source, proto.SnapshotUpdate(playing, volume))
}

// SetLocalVolume sets the host volume on behalf of the operator. The volume
// poller reports the change like any other local change.
func (r *Reconciler) SetLocalVolume(v int) error {
	if err := checkRange(v); err != nil {
		return err
	}
	ctx, cancel := r.ctx()
	defer cancel()
	if err := r.volume.SetVolume(ctx, v); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	return nil
}

func (r *Reconciler) notifyState() {
	r.notes.Publish(TopicState, r.Snapshot())
}

func (r *Reconciler) broadcast(u proto.Update) {
	for _, o := range r.outlets.List() {
		r.deliver(o, u)
	}
}

func (r *Reconciler) sendTo(kind transport.Kind, u proto.Update) {
	o, ok := r.outlets.Get(kind)
	if !ok {
		slog.Warn("No outlet for reply", "transport", kind.String())
		return
	}
	r.deliver(o, u)
}

func (r *Reconciler) deliver(o Outlet, u proto.Update) {
	kind := o.Kind()
	msg, ok := u.Frame(framingFor(kind), r.opts.Tag)
	if !ok {
		slog.Warn("Update has no framing for transport", "transport", kind.String(), "update", int(u.Kind))
		return
	}
	if err := o.Deliver(msg); err != nil {
		slog.Error("Send failed", "transport", kind.String(), "payload", msg.Payload, "error", err)
		r.log.Error(kind, "Send failed: "+err.Error())
		return
	}
	text := msg.Payload
	if msg.Topic != "" {
		text = msg.Topic + " " + text
	}
	r.log.Add(kind, LevelSent, trimNewline(text), false)
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
