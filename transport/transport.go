package transport

import (
	"context"
	"time"
)

// Kind identifies where a message came from or goes to. Serial and TCP are
// device transports, MQTT is the broker session and Local is the host itself.
type Kind int

const (
	KindSerial Kind = iota
	KindTCP
	KindMQTT
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindTCP:
		return "tcp"
	case KindMQTT:
		return "mqtt"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

func (k Kind) IsDevice() bool { return k == KindSerial || k == KindTCP }

func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindSerial, KindTCP, KindMQTT} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s ConnectionState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Metadata struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Label       string    `json:"label"`
	Address     string    `json:"address"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Channel is one device connection. OnLine and OnDisconnect are invoked from
// the channel's read goroutine, so implementations of those callbacks must
// hand work over to the owner instead of touching shared state.
type Channel interface {
	Connect(ctx context.Context) error
	Send(line string) error
	Close() error
	OnLine(func(string))
	OnDisconnect(func(error))
	Meta() Metadata
}
