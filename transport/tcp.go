package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/mbocsi/qnob/proto"
)

const (
	DefaultTCPPort        = 23
	DefaultDialTimeout    = 3 * time.Second
	DefaultReadTimeout    = 100 * time.Millisecond
	defaultTCPLabelPrefix = "QNOB @ "
)

// TCP is a device channel over a raw TCP socket.
type TCP struct {
	Host        string
	Port        int
	DialTimeout time.Duration
	ReadTimeout time.Duration
	JoinTimeout time.Duration

	stream
	connectedAt time.Time
}

func NewTCP(host string, port int) *TCP {
	if port == 0 {
		port = DefaultTCPPort
	}
	return &TCP{
		Host:        host,
		Port:        port,
		DialTimeout: DefaultDialTimeout,
		ReadTimeout: DefaultReadTimeout,
		JoinTimeout: defaultJoinTimeout,
		stream:      stream{kind: KindTCP},
	}
}

func (t *TCP) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t *TCP) Connect(ctx context.Context) error {
	if t.connected() {
		return proto.NewError(proto.ConnectionFailure, "tcp already connected", nil)
	}
	slog.Info("Connecting to device", "transport", "tcp", "addr", t.Addr())

	d := net.Dialer{Timeout: t.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.Addr())
	if err != nil {
		return proto.NewError(proto.ConnectionFailure, "connect to "+t.Addr(), err)
	}
	t.connectedAt = time.Now()

	readTimeout := t.ReadTimeout
	t.start(conn, &LineSplitter{}, nil, func(buf []byte) (int, error) {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return 0, err
		}
		n, err := conn.Read(buf)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return n, nil
		}
		return n, err
	})

	slog.Info("Device connected", "transport", "tcp", "addr", t.Addr())
	return nil
}

func (t *TCP) Send(line string) error {
	return t.send(line)
}

func (t *TCP) Close() error {
	slog.Info("Closing device connection", "transport", "tcp", "addr", t.Addr())
	return t.stop(t.JoinTimeout)
}

func (t *TCP) OnLine(fn func(string)) { t.onLine = fn }

func (t *TCP) OnDisconnect(fn func(error)) { t.onDisconnect = fn }

func (t *TCP) Meta() Metadata {
	return Metadata{
		ID:          "tcp-" + t.Addr(),
		Kind:        KindTCP.String(),
		Label:       defaultTCPLabelPrefix + t.Addr(),
		Address:     t.Addr(),
		ConnectedAt: t.connectedAt,
	}
}
