// Package bridge runs the control loop that keeps the host, the knob and the
// MQTT peers in agreement about volume and playback.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/broker"
	"github.com/mbocsi/qnob/config"
	"github.com/mbocsi/qnob/poll"
	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

var (
	ErrNoDevice = errors.New("no device connected")
	ErrStopped  = errors.New("control loop stopped")
)

const postBuffer = 256

// MQTTSession is the broker channel as seen by the coordinator.
type MQTTSession interface {
	Connect(ctx context.Context, s broker.Settings) error
	Publish(topic, body string) error
	Disconnect()
	Queue() *broker.Queue
	Meta() transport.Metadata
}

type Settings struct {
	Options
	VolumePeriod time.Duration
	MediaPeriod  time.Duration
	LogCapacity  int
	// Scheduler overrides the timer-backed scheduler.
	Scheduler Scheduler
}

// SettingsFrom maps the persisted configuration onto coordinator settings.
func SettingsFrom(cfg config.Config) (Settings, error) {
	scope, err := ParseScope(cfg.Sync.SuppressScope)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Options: Options{
			Tag:           cfg.MQTT.SenderTag,
			Suppression:   cfg.Sync.SuppressWindow(),
			Scope:         scope,
			SettleChecks:  cfg.Sync.SettleChecks,
			FollowUpDelay: cfg.Sync.FollowUpDelay(),
		},
		VolumePeriod: cfg.Sync.VolumePeriod(),
		MediaPeriod:  cfg.Sync.MediaPeriod(),
	}, nil
}

// Coordinator owns the control goroutine. Channel callbacks, samplers and
// timers post closures to it; all bridge state is touched only from there.
type Coordinator struct {
	Session    *SessionContext
	Reconciler *Reconciler
	Router     *Router
	Outlets    *OutletRegistry
	Notifier   *Notifier
	Log        *MessageLog
	Dump       *ConfigDump

	mqtt   MQTTSession
	volume audio.VolumeController
	media  audio.MediaController

	volumeSampler *poll.Sampler[int]
	mediaSampler  *poll.Sampler[audio.MediaState]

	posts   chan func()
	stopped chan struct{}
}

func NewCoordinator(s Settings, volume audio.VolumeController, media audio.MediaController, mqtt MQTTSession) *Coordinator {
	c := &Coordinator{
		Session:  NewSession(),
		Outlets:  NewOutletRegistry(),
		Notifier: NewNotifier(),
		Dump:     &ConfigDump{},
		mqtt:     mqtt,
		volume:   volume,
		media:    media,
		posts:    make(chan func(), postBuffer),
		stopped:  make(chan struct{}),
	}
	c.Log = NewMessageLog(s.LogCapacity, c.Notifier)

	sched := s.Scheduler
	if sched == nil {
		sched = postScheduler{post: func(fn func()) { c.Post(fn) }}
	}
	c.Reconciler = NewReconciler(s.Options, volume, media, sched, c.Outlets, c.Notifier, c.Log)
	c.Router = NewRouter(c.Reconciler, c.Session, c.Dump, c.Log, c.Notifier)

	c.volumeSampler = poll.NewVolume(volume, s.VolumePeriod, func(v int) {
		c.Post(func() { c.Reconciler.ObserveLocalVolume(v) })
	})
	c.mediaSampler = poll.NewMedia(media, s.MediaPeriod, func(st audio.MediaState) {
		c.Post(func() { c.Reconciler.ObserveLocalPlayback(st) })
	})
	return c
}

// Run primes the state from the host and then runs the control loop and the
// samplers until ctx ends.
func (c *Coordinator) Run(ctx context.Context) error {
	c.prime(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.loop(ctx) })
	g.Go(func() error { return c.volumeSampler.Run(ctx) })
	g.Go(func() error { return c.mediaSampler.Run(ctx) })

	err := g.Wait()
	c.shutdown()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Coordinator) prime(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.Reconciler.Options().CallTimeout)
	defer cancel()

	if v, err := c.volume.Volume(ctx); err == nil {
		c.Reconciler.PrimeVolume(v)
		c.volumeSampler.Seed(v)
	} else {
		slog.Warn("Could not read initial volume", "error", err)
	}
	if st, err := c.media.State(ctx); err == nil {
		c.Reconciler.PrimePlayback(st)
		c.mediaSampler.Seed(st)
	} else {
		slog.Warn("Could not read initial playback state", "error", err)
	}
}

func (c *Coordinator) loop(ctx context.Context) error {
	defer close(c.stopped)
	slog.Info("Control loop started")
	queue := c.mqtt.Queue()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Control loop stopping")
			return ctx.Err()
		case fn := <-c.posts:
			fn()
		case <-queue.Notify():
			for _, ev := range queue.Drain() {
				c.handleMQTT(ev)
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	c.mqtt.Disconnect()
	if dev, kind, ok := c.Session.Device(); ok {
		if err := dev.Close(); err != nil {
			slog.Warn("Closing device failed", "transport", kind.String(), "error", err)
		}
	}
}

// Post queues fn for the control goroutine. It reports false once the loop
// has stopped.
func (c *Coordinator) Post(fn func()) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	select {
	case c.posts <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// Do runs fn on the control goroutine and waits for it.
func (c *Coordinator) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !c.Post(func() { fn(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// ConnectDevice connects ch and registers it as the device transport. The
// blocking connect runs on the caller's goroutine.
func (c *Coordinator) ConnectDevice(ctx context.Context, kind transport.Kind, ch transport.Channel) error {
	var err error
	begin := func() {
		if err = c.Session.BeginDevice(kind); err == nil {
			c.Session.Track(ch)
		}
	}
	if derr := c.Do(ctx, begin); derr != nil {
		return derr
	}
	if err != nil {
		return err
	}

	ch.OnLine(func(line string) {
		c.Post(func() { c.Router.HandleLine(kind, line) })
	})
	ch.OnDisconnect(func(err error) {
		c.Post(func() { c.deviceLost(ch, kind, err) })
	})

	if err := ch.Connect(ctx); err != nil {
		c.Post(func() {
			c.Session.DeviceDown(kind)
			c.Log.Error(kind, "Connect failed: "+err.Error())
			c.publishConnection()
		})
		return err
	}

	registered := c.Post(func() {
		if c.Session.Lost(ch) {
			// The read loop already saw the peer hang up.
			c.Session.DeviceDown(kind)
			c.publishConnection()
			go ch.Close()
			return
		}
		meta := ch.Meta()
		c.Session.DeviceUp(kind, ch)
		c.Outlets.Store(deviceOutlet{kind: kind, ch: ch})
		c.Reconciler.ResyncSent()
		c.Log.Status(kind, "Connected to "+meta.Label)
		slog.Info("Device connected", "transport", kind.String(), "label", meta.Label, "address", meta.Address)
		c.publishConnection()
	})
	if !registered {
		ch.Close()
		return ErrStopped
	}
	return nil
}

func (c *Coordinator) deviceLost(ch transport.Channel, kind transport.Kind, err error) {
	dev, _, ok := c.Session.Device()
	if !ok || dev != ch {
		if c.Session.MarkLost(ch) {
			slog.Warn("Device connection lost while connecting", "transport", kind.String(), "error", err)
			c.Log.Error(kind, "Connection lost: "+err.Error())
		}
		return
	}
	c.dropDevice(kind)
	slog.Warn("Device connection lost", "transport", kind.String(), "error", err)
	c.Log.Error(kind, "Connection lost: "+err.Error())
	c.publishConnection()
	go ch.Close()
}

func (c *Coordinator) dropDevice(kind transport.Kind) {
	c.Session.DeviceDown(kind)
	c.Outlets.Delete(kind)
	if c.Dump.Active() {
		c.Dump.Abort()
	}
}

// DisconnectDevice closes the device transport, if one is connected.
func (c *Coordinator) DisconnectDevice(ctx context.Context) error {
	var (
		dev  transport.Channel
		kind transport.Kind
		ok   bool
	)
	err := c.Do(ctx, func() {
		dev, kind, ok = c.Session.Device()
		if !ok {
			return
		}
		c.dropDevice(kind)
		c.Log.Status(kind, "Disconnected")
		c.publishConnection()
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoDevice
	}
	slog.Info("Device disconnected", "transport", kind.String())
	return dev.Close()
}

// ConnectMQTT opens the broker session. Registration happens when the
// connected event reaches the loop.
func (c *Coordinator) ConnectMQTT(ctx context.Context, s broker.Settings) error {
	if err := c.Do(ctx, func() {
		c.Session.SetMQTT(transport.Connecting, s.Broker)
		c.publishConnection()
	}); err != nil {
		return err
	}

	if err := c.mqtt.Connect(ctx, s); err != nil {
		c.Post(func() {
			c.Session.SetMQTT(transport.Disconnected, "")
			c.Log.Error(transport.KindMQTT, "Connect failed: "+err.Error())
			c.publishConnection()
		})
		return err
	}
	return nil
}

func (c *Coordinator) DisconnectMQTT() {
	c.mqtt.Disconnect()
}

func (c *Coordinator) handleMQTT(ev broker.Event) {
	switch ev.Kind {
	case broker.EventConnected:
		meta := c.mqtt.Meta()
		c.Session.SetMQTT(transport.Connected, meta.Label)
		c.Outlets.Store(mqttOutlet{session: c.mqtt})
		c.Reconciler.ResyncSent()
		c.Log.Status(transport.KindMQTT, "Connected to "+meta.Address)
		c.publishConnection()

	case broker.EventDisconnected:
		c.Session.SetMQTT(transport.Disconnected, "")
		c.Outlets.Delete(transport.KindMQTT)
		if ev.Err != nil {
			c.Log.Error(transport.KindMQTT, "Connection lost: "+ev.Err.Error())
		} else {
			c.Log.Status(transport.KindMQTT, "Disconnected")
		}
		c.publishConnection()

	default:
		c.Router.HandleMQTTEvent(ev)
	}
}

// LoadDeviceConfig asks the device for its stored configuration and waits
// for the dump to finish.
func (c *Coordinator) LoadDeviceConfig(ctx context.Context) (map[string]string, error) {
	var (
		wait <-chan map[string]string
		err  error
	)
	derr := c.Do(ctx, func() {
		dev, kind, ok := c.Session.Device()
		if !ok {
			err = ErrNoDevice
			return
		}
		c.Session.ConfigView = true
		c.Dump.Begin()
		wait = c.Dump.Wait()
		if err = dev.Send(proto.CmdListEEPROM); err != nil {
			c.Dump.Abort()
			c.Session.ConfigView = false
			return
		}
		c.Log.Add(kind, LevelSent, proto.CmdListEEPROM, false)
	})
	if derr != nil {
		return nil, derr
	}
	if err != nil {
		return nil, err
	}

	select {
	case values, ok := <-wait:
		if !ok {
			return nil, proto.NewError(proto.UnexpectedDisconnect, "device dropped during configuration dump", nil)
		}
		return values, nil
	case <-ctx.Done():
		c.Post(func() {
			if c.Dump.Active() {
				c.Dump.Abort()
				c.Session.ConfigView = false
			}
		})
		return nil, ctx.Err()
	}
}

// SendRaw writes one line to the device transport as typed by the operator.
func (c *Coordinator) SendRaw(ctx context.Context, line string) error {
	var err error
	derr := c.Do(ctx, func() {
		dev, kind, ok := c.Session.Device()
		if !ok {
			err = ErrNoDevice
			return
		}
		if err = dev.Send(line); err != nil {
			c.Log.Error(kind, "Send failed: "+err.Error())
			return
		}
		c.Log.Add(kind, LevelSent, trimNewline(line), false)
	})
	if derr != nil {
		return derr
	}
	return err
}

// State returns copies of the reconciler and session state.
func (c *Coordinator) State(ctx context.Context) (StateSnapshot, SessionSnapshot, error) {
	var (
		st StateSnapshot
		ss SessionSnapshot
	)
	err := c.Do(ctx, func() {
		st = c.Reconciler.Snapshot()
		ss = c.Session.Snapshot()
	})
	return st, ss, err
}

func (c *Coordinator) SetVolume(ctx context.Context, v int) error {
	var err error
	if derr := c.Do(ctx, func() { err = c.Reconciler.SetLocalVolume(v) }); derr != nil {
		return derr
	}
	return err
}

func (c *Coordinator) Media(ctx context.Context, action proto.MediaAction) error {
	var err error
	if derr := c.Do(ctx, func() { err = c.Reconciler.LocalMedia(action) }); derr != nil {
		return derr
	}
	return err
}

func (c *Coordinator) publishConnection() {
	c.Notifier.Publish(TopicConnection, c.Session.Snapshot())
}

type deviceOutlet struct {
	kind transport.Kind
	ch   transport.Channel
}

func (o deviceOutlet) Kind() transport.Kind { return o.kind }

func (o deviceOutlet) Deliver(msg proto.OutboundMessage) error { return o.ch.Send(msg.Payload) }

type mqttOutlet struct {
	session MQTTSession
}

func (o mqttOutlet) Kind() transport.Kind { return transport.KindMQTT }

func (o mqttOutlet) Deliver(msg proto.OutboundMessage) error {
	return o.session.Publish(msg.Topic, msg.Payload)
}
