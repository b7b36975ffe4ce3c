package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MQTT_BROKER", "")
	t.Setenv("BLE_BEARING_HTTP_ADDR", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.BaudRate != BaudRate {
		t.Errorf("BaudRate = %d, want %d", cfg.Serial.BaudRate, BaudRate)
	}
	if cfg.Threshold() != RSSIThreshold {
		t.Errorf("Threshold() = %d, want %d", cfg.Threshold(), RSSIThreshold)
	}
	if cfg.Smoothing.MedianWindow != 3 || cfg.Smoothing.Alpha != 0.6 {
		t.Errorf("smoothing = %+v", cfg.Smoothing)
	}
	if len(cfg.Calibration.Distances) != 4 {
		t.Errorf("distances = %v", cfg.Calibration.Distances)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("BLE_BEARING_HTTP_ADDR", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log:
  level: debug
serial:
  ports:
    north: /dev/ttyUSB0
    west: /dev/ttyUSB3
calibration:
  pose_duration: 2s
  format: sqlite
live:
  rssi_threshold: -70
  allow_list: ["aa:bb:cc:dd:ee:ff"]
smoothing:
  alpha: 0.5
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Serial.Ports["north"] != "/dev/ttyUSB0" || cfg.Serial.Ports["west"] != "/dev/ttyUSB3" {
		t.Errorf("Ports = %v", cfg.Serial.Ports)
	}
	if cfg.Calibration.PoseDuration != 2*time.Second {
		t.Errorf("PoseDuration = %v", cfg.Calibration.PoseDuration)
	}
	if cfg.Calibration.AngleStep != AngleStep {
		t.Errorf("AngleStep = %d, want default", cfg.Calibration.AngleStep)
	}
	if cfg.Threshold() != -70 {
		t.Errorf("Threshold() = %d", cfg.Threshold())
	}
	if cfg.Smoothing.Alpha != 0.5 || cfg.Smoothing.MedianWindow != MedianWindow {
		t.Errorf("smoothing = %+v", cfg.Smoothing)
	}
	if cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("MQTT.Broker = %q, want env override", cfg.MQTT.Broker)
	}
}

func TestLoadNullPorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("serial:\n  ports:\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.Ports == nil {
		t.Fatal("Ports is nil after an empty ports: key")
	}
	cfg.Serial.Ports["north"] = "/dev/ttyUSB0"
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad direction", func(c *Config) { c.Serial.Ports["up"] = "/dev/ttyUSB0" }},
		{"zero baud", func(c *Config) { c.Serial.BaudRate = 0 }},
		{"alpha above one", func(c *Config) { c.Smoothing.Alpha = 1.5 }},
		{"zero window", func(c *Config) { c.Smoothing.MedianWindow = 0 }},
		{"bad format", func(c *Config) { c.Calibration.Format = "xlsx" }},
		{"zero step", func(c *Config) { c.Calibration.AngleStep = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}
