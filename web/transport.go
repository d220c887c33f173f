package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mbocsi/qnob/bridge"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

var errSlowListener = errors.New("websocket listener is not keeping up")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, any origin
	},
}

var defaultTopics = []string{bridge.TopicState, bridge.TopicConnection, bridge.TopicLog, bridge.TopicDeviceConfig}

// Hub subscribes one listener per websocket to the notifier.
type Hub struct {
	notifier *bridge.Notifier

	mu      sync.RWMutex
	clients map[string]*wsListener
}

func NewHub(notifier *bridge.Notifier) *Hub {
	return &Hub{notifier: notifier, clients: make(map[string]*wsListener)}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and streams notifications as JSON. The
// optional topics query selects a comma separated subset.
func (h *Hub) HandleWS(wr http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(wr, r, nil)
	if err != nil {
		slog.Error("Websocket upgrade failed", "error", err)
		return
	}

	l := &wsListener{
		id:   "ws-" + uuid.NewString()[:8],
		conn: conn,
		send: make(chan bridge.Notification, sendBuffer),
		done: make(chan struct{}),
	}

	topics := defaultTopics
	if raw := r.URL.Query().Get("topics"); raw != "" {
		topics = strings.Split(raw, ",")
	}

	h.mu.Lock()
	h.clients[l.id] = l
	h.mu.Unlock()
	for _, topic := range topics {
		h.notifier.Subscribe(strings.TrimSpace(topic), l)
	}
	slog.Info("Websocket listener connected", "id", l.id, "topics", topics)

	go l.writePump()
	l.readPump()

	h.notifier.UnsubscribeAll(l)
	h.mu.Lock()
	delete(h.clients, l.id)
	h.mu.Unlock()
	l.close()
	slog.Info("Websocket listener disconnected", "id", l.id)
}

type wsListener struct {
	id   string
	conn *websocket.Conn
	send chan bridge.Notification

	done      chan struct{}
	closeOnce sync.Once
}

func (l *wsListener) ID() string { return l.id }

func (l *wsListener) Notify(n bridge.Notification) error {
	select {
	case <-l.done:
		return nil
	default:
	}
	select {
	case l.send <- n:
		return nil
	default:
		return errSlowListener
	}
}

func (l *wsListener) writePump() {
	for {
		select {
		case <-l.done:
			return
		case n := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := l.conn.WriteJSON(n); err != nil {
				slog.Debug("Websocket write failed", "id", l.id, "error", err)
				l.close()
				return
			}
		}
	}
}

// readPump discards inbound frames until the peer goes away.
func (l *wsListener) readPump() {
	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (l *wsListener) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}
