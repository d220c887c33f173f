package bridge

import (
	"errors"
	"sync"
	"time"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

// manualScheduler queues deferred work until the test runs it.
type manualScheduler struct {
	tasks []*task
}

type task struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

func (s *manualScheduler) After(d time.Duration, fn func()) func() {
	t := &task{delay: d, fn: fn}
	s.tasks = append(s.tasks, t)
	return func() { t.cancelled = true }
}

// RunNext runs the oldest pending task and reports whether there was one.
func (s *manualScheduler) RunNext() bool {
	for len(s.tasks) > 0 {
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		if t.cancelled {
			continue
		}
		t.fn()
		return true
	}
	return false
}

func (s *manualScheduler) Pending() int { return len(s.tasks) }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingOutlet struct {
	kind transport.Kind
	err  error

	mu   sync.Mutex
	msgs []proto.OutboundMessage
}

func (o *recordingOutlet) Kind() transport.Kind { return o.kind }

func (o *recordingOutlet) Deliver(msg proto.OutboundMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *recordingOutlet) Messages() []proto.OutboundMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]proto.OutboundMessage(nil), o.msgs...)
}

func (o *recordingOutlet) Payloads() []string {
	var out []string
	for _, m := range o.Messages() {
		out = append(out, m.Payload)
	}
	return out
}

func (o *recordingOutlet) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = nil
}

type recordingListener struct {
	id string

	mu    sync.Mutex
	notes []Notification
}

func (l *recordingListener) ID() string { return l.id }

func (l *recordingListener) Notify(n Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notes = append(l.notes, n)
	return nil
}

func (l *recordingListener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.notes)
}

func (l *recordingListener) Last() (Notification, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.notes) == 0 {
		return Notification{}, false
	}
	return l.notes[len(l.notes)-1], true
}

type failingListener struct{}

func (failingListener) ID() string { return "failing" }

func (failingListener) Notify(Notification) error { return errors.New("listener gone") }

type harness struct {
	rec    *Reconciler
	host   *audio.Memory
	sched  *manualScheduler
	clock  *fakeClock
	device *recordingOutlet
	mqtt   *recordingOutlet
	notes  *Notifier
	log    *MessageLog
}

func newHarness(opts Options) *harness {
	h := &harness{
		host:   audio.NewMemory(40, audio.MediaState{Playing: false, Player: "spotify"}),
		sched:  &manualScheduler{},
		clock:  &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)},
		device: &recordingOutlet{kind: transport.KindTCP},
		mqtt:   &recordingOutlet{kind: transport.KindMQTT},
		notes:  NewNotifier(),
	}
	h.log = NewMessageLog(0, h.notes)

	outlets := NewOutletRegistry()
	outlets.Store(h.device)
	outlets.Store(h.mqtt)

	h.rec = NewReconciler(opts, h.host, h.host, h.sched, outlets, h.notes, h.log)
	h.rec.now = h.clock.Now
	h.rec.PrimeVolume(40)
	h.rec.PrimePlayback(audio.MediaState{Playing: false, Player: "spotify"})
	h.rec.ResyncSent()
	return h
}

func (h *harness) sent() int {
	return len(h.device.Messages()) + len(h.mqtt.Messages())
}

func (h *harness) reset() {
	h.device.Reset()
	h.mqtt.Reset()
}
