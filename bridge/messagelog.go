package bridge

import (
	"sync"
	"time"

	"github.com/mbocsi/qnob/transport"
)

type LogLevel string

const (
	LevelSent     LogLevel = "sent"
	LevelReceived LogLevel = "received"
	LevelStatus   LogLevel = "status"
	LevelWarning  LogLevel = "warning"
	LevelError    LogLevel = "error"
)

const DefaultLogCapacity = 500

// LogEntry is one line of the operator-visible message log.
type LogEntry struct {
	Transport string    `json:"transport"`
	Level     LogLevel  `json:"level"`
	Text      string    `json:"text"`
	Self      bool      `json:"self,omitempty"`
	At        time.Time `json:"at"`
}

// MessageLog keeps the most recent entries per transport and publishes each
// new entry on TopicLog.
type MessageLog struct {
	capacity int
	notifier *Notifier
	now      func() time.Time

	mu      sync.Mutex
	entries map[transport.Kind][]LogEntry
}

func NewMessageLog(capacity int, notifier *Notifier) *MessageLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &MessageLog{
		capacity: capacity,
		notifier: notifier,
		now:      time.Now,
		entries:  make(map[transport.Kind][]LogEntry),
	}
}

func (l *MessageLog) Add(kind transport.Kind, level LogLevel, text string, self bool) LogEntry {
	e := LogEntry{Transport: kind.String(), Level: level, Text: text, Self: self, At: l.now()}

	l.mu.Lock()
	list := append(l.entries[kind], e)
	if len(list) > l.capacity {
		list = list[len(list)-l.capacity:]
	}
	l.entries[kind] = list
	l.mu.Unlock()

	l.notifier.Publish(TopicLog, e)
	return e
}

func (l *MessageLog) Status(kind transport.Kind, text string) { l.Add(kind, LevelStatus, text, false) }

func (l *MessageLog) Warn(kind transport.Kind, text string) { l.Add(kind, LevelWarning, text, false) }

func (l *MessageLog) Error(kind transport.Kind, text string) { l.Add(kind, LevelError, text, false) }

// Entries returns a copy of the entries for kind. With includeSelf false the
// self-echo entries are left out.
func (l *MessageLog) Entries(kind transport.Kind, includeSelf bool) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, 0, len(l.entries[kind]))
	for _, e := range l.entries[kind] {
		if e.Self && !includeSelf {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (l *MessageLog) Clear(kind transport.Kind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, kind)
}
