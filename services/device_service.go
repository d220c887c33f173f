package services

import (
	"context"
	"strings"
	"time"

	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/config"
	"github.com/mbocsi/qnob/proto"
)

const loadConfigTimeout = 5 * time.Second

// DeviceServiceImpl implements DeviceService
type DeviceServiceImpl struct {
	coord *bridge.Coordinator
}

func NewDeviceService(coord *bridge.Coordinator) DeviceService {
	return &DeviceServiceImpl{coord: coord}
}

// SendCommand sends one raw line to the knob.
func (ds *DeviceServiceImpl) SendCommand(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return invalidInput("Command cannot be empty", nil)
	}
	if strings.ContainsAny(line, "\r\n") {
		return invalidInput("Command must be a single line", nil)
	}
	return translateError(ds.coord.SendRaw(ctx, line), "Failed to send command")
}

// LoadConfig reads the knob's stored configuration.
func (ds *DeviceServiceImpl) LoadConfig(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, loadConfigTimeout)
	defer cancel()

	values, err := ds.coord.LoadDeviceConfig(ctx)
	if err != nil {
		return nil, translateError(err, "Failed to load device configuration")
	}
	return values, nil
}

func (ds *DeviceServiceImpl) send(ctx context.Context, cmd string, err error) error {
	if err != nil {
		return invalidInput(err.Error(), err)
	}
	return translateError(ds.coord.SendRaw(ctx, cmd), "Failed to send command")
}

func (ds *DeviceServiceImpl) SetName(ctx context.Context, name string) error {
	cmd, err := proto.SetDeviceName(name)
	return ds.send(ctx, cmd, err)
}

func (ds *DeviceServiceImpl) ConnectWifi(ctx context.Context, ssid, password string, slot int) error {
	cmd, err := proto.ConnectWifi(ssid, password, slot)
	return ds.send(ctx, cmd, err)
}

func (ds *DeviceServiceImpl) SetStaticIP(ctx context.Context, req StaticIPRequest) error {
	ip := proto.DefaultStaticIP(req.IP)
	override(&ip.Gateway, req.Gateway)
	override(&ip.Subnet, req.Subnet)
	override(&ip.DNS1, req.DNS1)
	override(&ip.DNS2, req.DNS2)
	cmd, err := proto.ConfigureStaticIP(ip)
	if serr := ds.send(ctx, cmd, err); serr != nil {
		return serr
	}
	return ds.send(ctx, proto.CmdEnableStaticIP, nil)
}

func (ds *DeviceServiceImpl) DisableStaticIP(ctx context.Context) error {
	return ds.send(ctx, proto.CmdDisableStaticIP, nil)
}

func (ds *DeviceServiceImpl) ConfigureSoundMQTT(ctx context.Context, req SoundMQTTRequest) error {
	port, err := config.ParsePort(req.Port)
	if err != nil {
		return invalidInput(err.Error(), err)
	}
	cmd, err := proto.ConfigureSoundMQTTServer(req.URL, port, req.Username, req.Password)
	return ds.send(ctx, cmd, err)
}

func override(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
