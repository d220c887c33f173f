package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/broker"
	"github.com/mbocsi/qnob/config"
	"github.com/mbocsi/qnob/services"
	"github.com/mbocsi/qnob/transport"
)

type idleSession struct {
	queue *broker.Queue
}

func (s *idleSession) Connect(context.Context, broker.Settings) error { return nil }
func (s *idleSession) Publish(string, string) error                   { return nil }
func (s *idleSession) Disconnect()                                    {}
func (s *idleSession) Queue() *broker.Queue                           { return s.queue }
func (s *idleSession) Meta() transport.Metadata                       { return transport.Metadata{} }

func newTestServer(t *testing.T) (*httptest.Server, *WebClient, *bridge.Coordinator) {
	t.Helper()
	host := audio.NewMemory(40, audio.MediaState{})
	coord := bridge.NewCoordinator(bridge.Settings{VolumePeriod: time.Hour, MediaPeriod: time.Hour},
		host, host, &idleSession{queue: broker.NewQueue()})
	store := services.NewConfigStore(filepath.Join(t.TempDir(), "qnob_config.json"), config.Default())
	sm := services.NewServiceManager(coord, store, services.DefaultChannels())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	client := NewWebClient(sm.GetServices(), sm.Notifier())
	srv := httptest.NewServer(client.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, client, coord
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleState(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var state struct {
		Volume struct {
			Value  int    `json:"value"`
			Origin string `json:"origin"`
		} `json:"volume"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.Volume.Value != 40 {
		t.Errorf("Expected volume 40, got %d", state.Volume.Value)
	}
}

func TestHandleErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPost, "/api/volume", `{"volume":150}`, http.StatusBadRequest},
		{http.MethodPost, "/api/volume", `{}`, http.StatusBadRequest},
		{http.MethodPost, "/api/volume", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/media/shuffle", "", http.StatusBadRequest},
		{http.MethodPost, "/api/media/play", "", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/log/pigeon", "", http.StatusNotFound},
		{http.MethodPut, "/api/config/mqtt", `{"broker":"b.test","port":"abc"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/device/command", `{"line":"getDeviceName"}`, http.StatusServiceUnavailable},
		{http.MethodPost, "/api/transports/tcp", `{"host":"10.0.0.5","port":"twenty"}`, http.StatusBadRequest},
		{http.MethodDelete, "/api/transports/device", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		resp := do(t, tt.method, srv.URL+tt.path, tt.body)
		if resp.StatusCode != tt.status {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.status, resp.StatusCode)
			continue
		}
		var se services.ServiceError
		if err := json.NewDecoder(resp.Body).Decode(&se); err != nil || se.Code == "" {
			t.Errorf("%s %s: expected error body, got %v", tt.method, tt.path, err)
		}
	}
}

func TestHandleSetVolume(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/volume", `{"volume":65}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/api/transports", "")
	var list []services.TransportInfo
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 3 {
		t.Errorf("Expected 3 transports, got %d", len(list))
	}
}

func TestHandleConfigRedactsPassword(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := do(t, http.MethodPut, srv.URL+"/api/config/mqtt", `{"broker":"b.test","port":"8883","username":"u","password":"secret"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/api/config", "")
	var cfg config.Config
	json.NewDecoder(resp.Body).Decode(&cfg)
	if cfg.MQTT.Broker != "b.test" || cfg.MQTT.Password == "secret" {
		t.Errorf("Unexpected config %+v", cfg.MQTT)
	}
}

func TestWebsocketReceivesNotifications(t *testing.T) {
	srv, client, coord := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?topics=state"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for client.hub.Count() == 0 || coord.Notifier.Subscribers(bridge.TopicState) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Listener never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	coord.Notifier.Publish(bridge.TopicLog, "ignored")
	coord.Notifier.Publish(bridge.TopicState, map[string]int{"volume": 12})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var note struct {
		Topic string         `json:"topic"`
		Data  map[string]int `json:"data"`
	}
	if err := conn.ReadJSON(&note); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if note.Topic != bridge.TopicState || note.Data["volume"] != 12 {
		t.Errorf("Unexpected notification %+v", note)
	}

	conn.Close()
	deadline = time.Now().Add(time.Second)
	for client.hub.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Listener never removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := coord.Notifier.Subscribers(bridge.TopicState); n != 0 {
		t.Errorf("Expected listener unsubscribed, got %d", n)
	}
}
