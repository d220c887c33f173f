// Package config loads and saves the bridge's JSON configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const DefaultPath = "qnob_config.json"

type MQTT struct {
	Broker    string `json:"broker"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	SenderTag string `json:"sender_tag,omitempty"`
}

type Device struct {
	SerialPort string `json:"serial_port,omitempty"`
	BaudRate   int    `json:"baud_rate"`
	TCPHost    string `json:"tcp_host,omitempty"`
	TCPPort    int    `json:"tcp_port"`
}

type Sync struct {
	VolumePollMs   int    `json:"volume_poll_ms"`
	MediaPollMs    int    `json:"media_poll_ms"`
	SuppressMs     int    `json:"suppress_ms"`
	SuppressScope  string `json:"suppress_scope"` // "per_value" or "global"
	SettleChecks   int    `json:"settle_checks"`
	FollowUpPollMs int    `json:"follow_up_poll_ms"`
}

type Web struct {
	Addr string `json:"addr"`
}

type Discovery struct {
	MDNSService   string `json:"mdns_service"`
	ScanTimeoutMs int    `json:"scan_timeout_ms"`
}

type Config struct {
	MQTT      MQTT      `json:"mqtt"`
	Device    Device    `json:"device"`
	Sync      Sync      `json:"sync"`
	Web       Web       `json:"web"`
	Discovery Discovery `json:"discovery"`
}

func Default() Config {
	return Config{
		MQTT: MQTT{
			Broker:    "",
			Port:      8883,
			SenderTag: "PC",
		},
		Device: Device{
			BaudRate: 115200,
			TCPPort:  23,
		},
		Sync: Sync{
			VolumePollMs:   100,
			MediaPollMs:    2000,
			SuppressMs:     100,
			SuppressScope:  "global",
			SettleChecks:   5,
			FollowUpPollMs: 500,
		},
		Web: Web{
			Addr: "127.0.0.1:8080",
		},
		Discovery: Discovery{
			MDNSService:   "_qnob._tcp",
			ScanTimeoutMs: 100,
		},
	}
}

func (c *Config) Validate() error {
	if err := c.MQTT.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.MQTT.SenderTag) == "" {
		return errors.New("mqtt.sender_tag is required")
	}
	if strings.ContainsAny(c.MQTT.SenderTag, ",=") {
		return errors.New("mqtt.sender_tag must not contain ',' or '='")
	}
	if c.Device.BaudRate <= 0 {
		return errors.New("device.baud_rate must be > 0")
	}
	if err := checkPort("device.tcp_port", c.Device.TCPPort); err != nil {
		return err
	}
	if c.Sync.VolumePollMs <= 0 || c.Sync.MediaPollMs <= 0 {
		return errors.New("sync poll periods must be > 0")
	}
	if c.Sync.SuppressMs < 0 || c.Sync.FollowUpPollMs < 0 {
		return errors.New("sync delays must be >= 0")
	}
	if c.Sync.SettleChecks < 1 {
		return errors.New("sync.settle_checks must be >= 1")
	}
	switch c.Sync.SuppressScope {
	case "per_value", "global":
	default:
		return fmt.Errorf("sync.suppress_scope must be per_value or global, got %q", c.Sync.SuppressScope)
	}
	if strings.TrimSpace(c.Web.Addr) == "" {
		return errors.New("web.addr is required")
	}
	return nil
}

// Validate checks the broker block. An empty broker is allowed: MQTT is
// simply not connected until one is configured.
func (m MQTT) Validate() error {
	if strings.ContainsAny(m.Broker, " /") {
		return fmt.Errorf("mqtt.broker %q must be a bare host name", m.Broker)
	}
	return checkPort("mqtt.port", m.Port)
}

func checkPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be in [1,65535], got %d", name, port)
	}
	return nil
}

// ParsePort validates a port typed by the operator.
func ParsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", raw)
	}
	if err := checkPort("port", port); err != nil {
		return 0, err
	}
	return port, nil
}

func (s Sync) VolumePeriod() time.Duration   { return time.Duration(s.VolumePollMs) * time.Millisecond }
func (s Sync) MediaPeriod() time.Duration    { return time.Duration(s.MediaPollMs) * time.Millisecond }
func (s Sync) SuppressWindow() time.Duration { return time.Duration(s.SuppressMs) * time.Millisecond }
func (s Sync) FollowUpDelay() time.Duration  { return time.Duration(s.FollowUpPollMs) * time.Millisecond }

func (d Discovery) ScanTimeout() time.Duration {
	return time.Duration(d.ScanTimeoutMs) * time.Millisecond
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Editors on Windows like to add a BOM.
	b = stripBOM(b)

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Ensure loads path, writing the defaults there first if it does not exist.
// The bool reports whether the file was created.
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
