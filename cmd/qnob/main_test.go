package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mbocsi/qnob/config"
)

func TestSetupLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		if err := setupLogger(level); err != nil {
			t.Errorf("Level %s: expected no error, got %v", level, err)
		}
	}
	if err := setupLogger("chatty"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestConfigCommandWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qnob_config.json")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "--config", path})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var cfg config.Config
	if err := json.Unmarshal(out.Bytes(), &cfg); err != nil {
		t.Fatalf("Expected JSON output, got %v", err)
	}
	if cfg.MQTT.SenderTag != "PC" || cfg.Web.Addr == "" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if _, err := config.Load(path); err != nil {
		t.Errorf("Expected defaults written to %s, got %v", path, err)
	}
}
