package bridge

import (
	"log/slog"
	"sync"
	"time"
)

// Notification topics.
const (
	TopicState        = "state"
	TopicLog          = "log"
	TopicConnection   = "connection"
	TopicDeviceConfig = "device_config"
)

type Notification struct {
	Topic string    `json:"topic"`
	At    time.Time `json:"at"`
	Data  any       `json:"data"`
}

// Listener receives notifications. Notify is called on the publisher's
// goroutine and must not block.
type Listener interface {
	ID() string
	Notify(Notification) error
}

// Notifier fans notifications out to the listeners subscribed to a topic.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[Listener]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[Listener]struct{})}
}

func (n *Notifier) Subscribe(topic string, l Listener) {
	slog.Debug("Subscribing listener", "topic", topic, "listener", l.ID())
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs[topic] == nil {
		n.subs[topic] = make(map[Listener]struct{})
	}
	n.subs[topic][l] = struct{}{}
}

func (n *Notifier) Unsubscribe(topic string, l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if subs, ok := n.subs[topic]; ok {
		delete(subs, l)
		if len(subs) == 0 {
			delete(n.subs, topic)
		}
	}
}

// UnsubscribeAll drops l from every topic.
func (n *Notifier) UnsubscribeAll(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for topic, subs := range n.subs {
		delete(subs, l)
		if len(subs) == 0 {
			delete(n.subs, topic)
		}
	}
}

func (n *Notifier) Subscribers(topic string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[topic])
}

func (n *Notifier) Publish(topic string, data any) {
	if n == nil {
		return
	}
	note := Notification{Topic: topic, At: time.Now(), Data: data}

	n.mu.RLock()
	defer n.mu.RUnlock()

	for l := range n.subs[topic] {
		if err := l.Notify(note); err != nil {
			slog.Warn("Listener notification failed", "topic", topic, "listener", l.ID(), "error", err)
		}
	}
}
