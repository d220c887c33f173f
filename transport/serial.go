package transport

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/mbocsi/qnob/proto"
)

const (
	DefaultBaudRate         = 115200
	DefaultHandshakeTimeout = time.Second
)

var BaudRates = []int{9600, 19200, 38400, 57600, 115200}

// Port is the part of a serial port the channel needs.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

type PortOpener func(name string, baud int) (Port, error)

// OpenSerialPort opens a real port, 8N1 at the given baud rate.
func OpenSerialPort(name string, baud int) (Port, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}

// Serial is a device channel over a serial port. Connect performs the
// getDeviceName handshake and uses the answer as the device label.
type Serial struct {
	PortName         string
	Baud             int
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	JoinTimeout      time.Duration

	open PortOpener
	stream
	label       string
	connectedAt time.Time
}

func NewSerial(portName string, baud int) *Serial {
	return NewSerialWithOpener(portName, baud, OpenSerialPort)
}

func NewSerialWithOpener(portName string, baud int, open PortOpener) *Serial {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &Serial{
		PortName:         portName,
		Baud:             baud,
		ReadTimeout:      DefaultReadTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		JoinTimeout:      defaultJoinTimeout,
		open:             open,
		stream:           stream{kind: KindSerial},
	}
}

func (s *Serial) Connect(ctx context.Context) error {
	if s.connected() {
		return proto.NewError(proto.ConnectionFailure, "serial already connected", nil)
	}
	slog.Info("Opening serial port", "port", s.PortName, "baud", s.Baud)

	port, err := s.open(s.PortName, s.Baud)
	if err != nil {
		return proto.NewError(proto.ConnectionFailure, "open "+s.PortName, err)
	}
	if err := port.SetReadTimeout(s.ReadTimeout); err != nil {
		port.Close()
		return proto.NewError(proto.ConnectionFailure, "configure "+s.PortName, err)
	}

	split := &LineSplitter{}
	label, rest, err := s.handshake(ctx, port, split)
	if err != nil {
		port.Close()
		return err
	}
	s.label = label
	s.connectedAt = time.Now()

	s.start(port, split, rest, port.Read)
	slog.Info("Device connected", "transport", "serial", "port", s.PortName, "device", label)
	return nil
}

// handshake asks for the device name and waits for the first line that is not
// a bracketed log line. Lines that arrived in the same read after the name are
// returned as rest.
func (s *Serial) handshake(ctx context.Context, port Port, split *LineSplitter) (string, []string, error) {
	if _, err := io.WriteString(port, proto.FrameLine(proto.CmdGetDeviceName)); err != nil {
		return "", nil, proto.NewError(proto.ConnectionFailure, "write identification query", err)
	}

	deadline := time.Now().Add(s.HandshakeTimeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", nil, proto.NewError(proto.ConnectionFailure, "handshake cancelled", err)
		}
		n, err := port.Read(buf)
		if err != nil {
			return "", nil, proto.NewError(proto.ConnectionFailure, "read identification", err)
		}
		lines := split.Feed(buf[:n])
		for i, line := range lines {
			if strings.HasPrefix(line, "[") {
				slog.Debug("Ignoring device log line during handshake", "line", line)
				continue
			}
			return line, lines[i+1:], nil
		}
	}
	return "", nil, proto.NewError(proto.HandshakeTimeout, "no answer to "+proto.CmdGetDeviceName+" on "+s.PortName, nil)
}

func (s *Serial) Send(line string) error {
	return s.send(line)
}

func (s *Serial) Close() error {
	slog.Info("Closing serial port", "port", s.PortName)
	return s.stop(s.JoinTimeout)
}

func (s *Serial) OnLine(fn func(string)) { s.onLine = fn }

func (s *Serial) OnDisconnect(fn func(error)) { s.onDisconnect = fn }

func (s *Serial) Meta() Metadata {
	return Metadata{
		ID:          "serial-" + s.PortName,
		Kind:        KindSerial.String(),
		Label:       s.label,
		Address:     s.PortName,
		ConnectedAt: s.connectedAt,
	}
}
