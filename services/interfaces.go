package services

import (
	"context"

	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/config"
	"github.com/mbocsi/qnob/transport"
)

// StateService reads and drives the synchronized state
type StateService interface {
	GetState(ctx context.Context) (*StateInfo, error)
	SetVolume(ctx context.Context, volume int) error
	Media(ctx context.Context, action string) error
	MessageLog(kind string, includeSelf bool) ([]bridge.LogEntry, error)
	ClearMessageLog(kind string) error
}

// TransportService connects and lists the bridge channels
type TransportService interface {
	ListTransports(ctx context.Context) ([]TransportInfo, error)
	ConnectSerial(ctx context.Context, port string, baud int) error
	ConnectTCP(ctx context.Context, host string, port int) error
	DisconnectDevice(ctx context.Context) error
	ConnectMQTT(ctx context.Context) error
	DisconnectMQTT() error

	// Discovery
	ListSerialPorts() ([]string, error)
	ScanNetwork(ctx context.Context) ([]string, error)
	Discover(ctx context.Context) ([]transport.Discovered, error)
}

// DeviceService talks to the knob over the device transport
type DeviceService interface {
	SendCommand(ctx context.Context, line string) error
	LoadConfig(ctx context.Context) (map[string]string, error)
	SetName(ctx context.Context, name string) error
	ConnectWifi(ctx context.Context, ssid, password string, slot int) error
	SetStaticIP(ctx context.Context, req StaticIPRequest) error
	DisableStaticIP(ctx context.Context) error
	ConfigureSoundMQTT(ctx context.Context, req SoundMQTTRequest) error
}

// ConfigService reads and edits the persisted configuration
type ConfigService interface {
	GetConfig() config.Config
	UpdateMQTT(req MQTTRequest) error
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	State     StateService
	Transport TransportService
	Device    DeviceService
	Config    ConfigService
}
