package bridge

import (
	"github.com/mbocsi/qnob/proto"
	"github.com/mbocsi/qnob/transport"
)

// SessionContext is the connection bookkeeping owned by the control goroutine.
// Channels report transitions to it through the coordinator and never write
// to it directly.
type SessionContext struct {
	states      map[transport.Kind]transport.ConnectionState
	device      transport.Channel
	deviceKind  transport.Kind
	deviceLabel string
	mqttLabel   string

	// pending is the device channel between BeginDevice and DeviceUp.
	pending     transport.Channel
	pendingLost bool

	// ConfigView routes key=value device lines to the configuration dump.
	ConfigView bool
}

type SessionSnapshot struct {
	Serial      transport.ConnectionState `json:"serial"`
	TCP         transport.ConnectionState `json:"tcp"`
	MQTT        transport.ConnectionState `json:"mqtt"`
	DeviceLabel string                    `json:"device_label,omitempty"`
	Broker      string                    `json:"broker,omitempty"`
	ConfigView  bool                      `json:"config_view"`
}

func NewSession() *SessionContext {
	return &SessionContext{states: make(map[transport.Kind]transport.ConnectionState)}
}

func (s *SessionContext) State(k transport.Kind) transport.ConnectionState {
	return s.states[k]
}

// BeginDevice marks kind as connecting. Serial and TCP exclude each other, so
// this fails while the other device transport is not disconnected.
func (s *SessionContext) BeginDevice(kind transport.Kind) error {
	if !kind.IsDevice() {
		return proto.NewError(proto.ConnectionFailure, kind.String()+" is not a device transport", nil)
	}
	other := transport.KindTCP
	if kind == transport.KindTCP {
		other = transport.KindSerial
	}
	if s.states[other] != transport.Disconnected {
		return proto.NewError(proto.ConnectionFailure, "disconnect "+other.String()+" before connecting "+kind.String(), nil)
	}
	if s.states[kind] != transport.Disconnected {
		return proto.NewError(proto.ConnectionFailure, kind.String()+" is already "+s.states[kind].String(), nil)
	}
	s.states[kind] = transport.Connecting
	return nil
}

// Track records ch as the channel of the attempt BeginDevice started.
func (s *SessionContext) Track(ch transport.Channel) {
	s.pending = ch
	s.pendingLost = false
}

// MarkLost notes that ch disconnected before it was registered. It reports
// whether ch is the pending channel.
func (s *SessionContext) MarkLost(ch transport.Channel) bool {
	if s.pending == nil || s.pending != ch {
		return false
	}
	s.pendingLost = true
	return true
}

// Lost reports whether ch dropped while its connect was still in flight.
func (s *SessionContext) Lost(ch transport.Channel) bool {
	return s.pending != nil && s.pending == ch && s.pendingLost
}

func (s *SessionContext) DeviceUp(kind transport.Kind, ch transport.Channel) {
	s.pending = nil
	s.pendingLost = false
	s.states[kind] = transport.Connected
	s.device = ch
	s.deviceKind = kind
	s.deviceLabel = ch.Meta().Label
}

func (s *SessionContext) DeviceDown(kind transport.Kind) {
	s.pending = nil
	s.pendingLost = false
	s.states[kind] = transport.Disconnected
	if s.device != nil && s.deviceKind == kind {
		s.device = nil
		s.deviceLabel = ""
	}
	s.ConfigView = false
}

// Device returns the connected device transport, if any.
func (s *SessionContext) Device() (transport.Channel, transport.Kind, bool) {
	if s.device == nil {
		return nil, 0, false
	}
	return s.device, s.deviceKind, true
}

func (s *SessionContext) SetMQTT(state transport.ConnectionState, broker string) {
	s.states[transport.KindMQTT] = state
	if state == transport.Disconnected {
		broker = ""
	}
	s.mqttLabel = broker
}

func (s *SessionContext) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		Serial:      s.states[transport.KindSerial],
		TCP:         s.states[transport.KindTCP],
		MQTT:        s.states[transport.KindMQTT],
		DeviceLabel: s.deviceLabel,
		Broker:      s.mqttLabel,
		ConfigView:  s.ConfigView,
	}
}
