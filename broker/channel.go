package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

const (
	DefaultConnectTimeout = 5 * time.Second
	QoS                   = 1
	disconnectQuiesce     = 250 // ms
)

// Settings identifies the broker session. RootCAs is optional; the system pool
// is used when nil. Certificate verification is always on.
type Settings struct {
	Broker   string
	Port     int
	Username string
	Password string
	RootCAs  *x509.CertPool
}

func (s Settings) Addr() string {
	return net.JoinHostPort(s.Broker, strconv.Itoa(s.Port))
}

type ClientFactory func(*mqtt.ClientOptions) mqtt.Client

// Channel owns one MQTT session. Paho callbacks only push onto the queue; the
// owner drains it on its own goroutine.
type Channel struct {
	ConnectTimeout time.Duration

	tag       string
	queue     *Queue
	newClient ClientFactory

	mu          sync.Mutex
	client      mqtt.Client
	state       transport.ConnectionState
	settings    Settings
	connectedAt time.Time
}

func NewChannel(tag string, queue *Queue) *Channel {
	return NewChannelWithFactory(tag, queue, mqtt.NewClient)
}

func NewChannelWithFactory(tag string, queue *Queue, factory ClientFactory) *Channel {
	if tag == "" {
		tag = proto.DefaultSenderTag
	}
	return &Channel{
		ConnectTimeout: DefaultConnectTimeout,
		tag:            tag,
		queue:          queue,
		newClient:      factory,
	}
}

func (c *Channel) Tag() string { return c.tag }

func (c *Channel) Queue() *Queue { return c.queue }

func (c *Channel) State() transport.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) IsConnected() bool {
	return c.State() == transport.Connected
}

// Connect opens a fresh session and blocks until the broker acknowledges it,
// ConnectTimeout passes or ctx ends. The four sound topics are subscribed
// before Connect returns.
func (c *Channel) Connect(ctx context.Context, s Settings) error {
	c.Disconnect()

	opts := mqtt.NewClientOptions()
	opts.AddBroker("ssl://" + s.Addr())
	opts.SetClientID(c.tag + "-" + uuid.NewString()[:8])
	opts.SetUsername(s.Username)
	opts.SetPassword(s.Password)
	opts.SetTLSConfig(&tls.Config{
		ServerName: s.Broker,
		MinVersion: tls.VersionTLS12,
		RootCAs:    s.RootCAs,
	})
	opts.SetConnectTimeout(c.ConnectTimeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetDefaultPublishHandler(c.onMessage)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	client := c.newClient(opts)

	c.mu.Lock()
	c.client = client
	c.settings = s
	c.state = transport.Connecting
	c.mu.Unlock()

	slog.Info("Connecting to broker", "addr", s.Addr(), "client_id", opts.ClientID)

	if err := c.await(ctx, client.Connect(), "connect to "+s.Addr()); err != nil {
		c.abandon(client)
		return err
	}

	filters := make(map[string]byte, len(proto.Topics))
	for _, topic := range proto.Topics {
		filters[topic] = QoS
	}
	if err := c.await(ctx, client.SubscribeMultiple(filters, c.onMessage), "subscribe"); err != nil {
		c.abandon(client)
		return err
	}

	c.mu.Lock()
	c.state = transport.Connected
	c.connectedAt = time.Now()
	c.mu.Unlock()

	slog.Info("Connected to broker", "addr", s.Addr())
	c.queue.Push(Event{Kind: EventConnected})
	return nil
}

func (c *Channel) await(ctx context.Context, token mqtt.Token, what string) error {
	timer := time.NewTimer(c.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return proto.NewError(proto.ConnectionFailure, what+": timed out", nil)
	case <-ctx.Done():
		return proto.NewError(proto.ConnectionFailure, what+": cancelled", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return proto.NewError(proto.ConnectionFailure, what, err)
	}
	return nil
}

func (c *Channel) abandon(client mqtt.Client) {
	quiesce(client)
	c.mu.Lock()
	if c.client == client {
		c.client = nil
		c.state = transport.Disconnected
	}
	c.mu.Unlock()
}

// Publish tags body with the sender tag and publishes it at QoS 1. It fails
// fast when no session is up; that error is returned to the caller and not
// queued. The broker ack is reported on the queue only.
func (c *Channel) Publish(topic, body string) error {
	c.mu.Lock()
	client, state := c.client, c.state
	c.mu.Unlock()

	if client == nil || state != transport.Connected || !client.IsConnected() {
		err := proto.NewError(proto.PublishFailure, "not connected to broker", nil)
		slog.Debug("Publish refused", "topic", topic, "error", err)
		return err
	}

	payload := proto.Tag(c.tag, body)
	token := client.Publish(topic, QoS, false, payload)
	c.queue.Push(Event{Kind: EventSent, Topic: topic, Payload: payload, Self: true})
	slog.Debug("Published", "topic", topic, "payload", payload)

	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.queue.Push(Event{Kind: EventError, Topic: topic, Payload: payload,
				Err: proto.NewError(proto.PublishFailure, "broker rejected publish", err)})
			return
		}
		c.queue.Push(Event{Kind: EventPublished, Topic: topic, Payload: payload})
	}()
	return nil
}

// Disconnect ends the session. The channel is Disconnected afterwards no
// matter what the client does.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	client := c.client
	wasUp := c.state != transport.Disconnected
	c.client = nil
	c.state = transport.Disconnected
	c.mu.Unlock()

	if client == nil {
		return
	}
	if err := quiesce(client); err != nil {
		slog.Warn("Broker disconnect raised", "error", err)
	}
	if wasUp {
		slog.Info("Disconnected from broker")
		c.queue.Push(Event{Kind: EventDisconnected})
	}
}

func quiesce(client mqtt.Client) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("disconnect panicked: %v", r)
		}
	}()
	client.Disconnect(disconnectQuiesce)
	return nil
}

func (c *Channel) onConnectionLost(client mqtt.Client, err error) {
	c.mu.Lock()
	current := c.client == client
	if current {
		c.client = nil
		c.state = transport.Disconnected
	}
	c.mu.Unlock()
	if !current {
		return
	}
	slog.Warn("Broker connection lost", "error", err)
	c.queue.Push(Event{Kind: EventDisconnected, Err: proto.NewError(proto.UnexpectedDisconnect, "broker connection lost", err)})
}

func (c *Channel) onMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := string(msg.Payload())
	ev := Event{Kind: EventMessage, Topic: msg.Topic(), Payload: payload, Self: proto.IsSelf(payload, c.tag)}
	if !ev.Self {
		ev.Inbound, ev.Err = proto.ParseMQTT(msg.Topic(), payload)
	}
	c.queue.Push(ev)
}

func (c *Channel) Meta() transport.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transport.Metadata{
		ID:          "mqtt-" + c.settings.Addr(),
		Kind:        transport.KindMQTT.String(),
		Label:       c.settings.Broker,
		Address:     c.settings.Addr(),
		ConnectedAt: c.connectedAt,
	}
}
