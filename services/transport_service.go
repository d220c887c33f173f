package services

import (
	"context"
	"strings"
	"time"

	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/broker"
	"github.com/mbocsi/qnob/transport"
)

const discoverTimeout = 3 * time.Second

// ChannelFactory builds device channels. Tests swap in fakes.
type ChannelFactory struct {
	Serial func(port string, baud int) transport.Channel
	TCP    func(host string, port int) transport.Channel
}

func DefaultChannels() ChannelFactory {
	return ChannelFactory{
		Serial: func(port string, baud int) transport.Channel { return transport.NewSerial(port, baud) },
		TCP:    func(host string, port int) transport.Channel { return transport.NewTCP(host, port) },
	}
}

// TransportServiceImpl implements TransportService
type TransportServiceImpl struct {
	coord    *bridge.Coordinator
	store    *ConfigStore
	channels ChannelFactory
}

func NewTransportService(coord *bridge.Coordinator, store *ConfigStore, channels ChannelFactory) TransportService {
	return &TransportServiceImpl{coord: coord, store: store, channels: channels}
}

// ListTransports returns the serial, TCP and MQTT channels with their state
func (ts *TransportServiceImpl) ListTransports(ctx context.Context) ([]TransportInfo, error) {
	_, session, err := ts.coord.State(ctx)
	if err != nil {
		return nil, translateError(err, "Failed to read transports")
	}

	result := []TransportInfo{
		{Kind: transport.KindSerial.String(), Status: session.Serial.String()},
		{Kind: transport.KindTCP.String(), Status: session.TCP.String()},
		{Kind: transport.KindMQTT.String(), Status: session.MQTT.String(), Label: session.Broker},
	}
	for i := range result[:2] {
		if result[i].Status != transport.Disconnected.String() {
			result[i].Label = session.DeviceLabel
		}
	}
	return result, nil
}

func (ts *TransportServiceImpl) checkFree(ctx context.Context, kind transport.Kind) error {
	_, session, err := ts.coord.State(ctx)
	if err != nil {
		return translateError(err, "Failed to read transports")
	}
	other, state := transport.KindTCP, session.TCP
	if kind == transport.KindTCP {
		other, state = transport.KindSerial, session.Serial
	}
	if state != transport.Disconnected {
		return ServiceError{Code: ErrCodeConflict, Message: "Disconnect " + other.String() + " before connecting " + kind.String()}
	}
	return nil
}

func (ts *TransportServiceImpl) ConnectSerial(ctx context.Context, port string, baud int) error {
	port = strings.TrimSpace(port)
	if port == "" {
		return invalidInput("Serial port is required", nil)
	}
	if baud == 0 {
		baud = ts.store.Get().Device.BaudRate
	}
	if baud < 0 {
		return invalidInput("Baud rate must be positive", nil)
	}
	if err := ts.checkFree(ctx, transport.KindSerial); err != nil {
		return err
	}
	ch := ts.channels.Serial(port, baud)
	return translateError(ts.coord.ConnectDevice(ctx, transport.KindSerial, ch), "Failed to connect to "+port)
}

func (ts *TransportServiceImpl) ConnectTCP(ctx context.Context, host string, port int) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return invalidInput("Host is required", nil)
	}
	if port == 0 {
		port = ts.store.Get().Device.TCPPort
	}
	if port < 1 || port > 65535 {
		return invalidInput("Port must be in [1,65535]", nil)
	}
	if err := ts.checkFree(ctx, transport.KindTCP); err != nil {
		return err
	}
	ch := ts.channels.TCP(host, port)
	return translateError(ts.coord.ConnectDevice(ctx, transport.KindTCP, ch), "Failed to connect to "+host)
}

func (ts *TransportServiceImpl) DisconnectDevice(ctx context.Context) error {
	return translateError(ts.coord.DisconnectDevice(ctx), "Failed to disconnect device")
}

// ConnectMQTT connects with the broker settings from the configuration.
func (ts *TransportServiceImpl) ConnectMQTT(ctx context.Context) error {
	m := ts.store.Get().MQTT
	if m.Broker == "" {
		return invalidInput("No MQTT broker configured", nil)
	}
	settings := broker.Settings{Broker: m.Broker, Port: m.Port, Username: m.Username, Password: m.Password}
	return translateError(ts.coord.ConnectMQTT(ctx, settings), "Failed to connect to "+settings.Addr())
}

func (ts *TransportServiceImpl) DisconnectMQTT() error {
	ts.coord.DisconnectMQTT()
	return nil
}

func (ts *TransportServiceImpl) ListSerialPorts() ([]string, error) {
	ports, err := transport.ListPorts()
	if err != nil {
		return nil, translateError(err, "Failed to list serial ports")
	}
	return ports, nil
}

// ScanNetwork probes the local /24 for hosts listening on the device port
func (ts *TransportServiceImpl) ScanNetwork(ctx context.Context) ([]string, error) {
	cfg := ts.store.Get()
	hosts, err := transport.ScanSubnet(ctx, cfg.Device.TCPPort, cfg.Discovery.ScanTimeout())
	if err != nil {
		return nil, translateError(err, "Network scan failed")
	}
	return hosts, nil
}

func (ts *TransportServiceImpl) Discover(ctx context.Context) ([]transport.Discovered, error) {
	found, err := transport.Discover(ctx, ts.store.Get().Discovery.MDNSService, discoverTimeout)
	if err != nil {
		return nil, translateError(err, "mDNS lookup failed")
	}
	return found, nil
}
