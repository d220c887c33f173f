package broker

import (
	"sync"
	"time"

	"github.com/mbocsi/qnob/proto"
)

type EventKind int

const (
	EventMessage      EventKind = iota // inbound publish, parsed unless Self
	EventSent                          // outbound publish handed to the client
	EventPublished                     // broker acknowledged an outbound publish
	EventConnected                     // session established and subscribed
	EventDisconnected                  // session ended, Err set when unexpected
	EventError                         // publish or connection error
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventSent:
		return "sent"
	case EventPublished:
		return "published"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "error"
	}
}

// Event is what the network goroutines hand to the control loop.
type Event struct {
	Kind    EventKind
	At      time.Time
	Topic   string
	Payload string
	Self    bool
	Inbound proto.Inbound
	Err     error
}

// Queue is a multi-producer single-consumer event queue. Producers never
// block; the consumer waits on Notify and then drains everything queued.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Push(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain returns the queued events in push order and empties the queue.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
