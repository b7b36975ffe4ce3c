package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the runtime configuration. Zero-valued fields in a
// config file keep their defaults.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Serial      SerialConfig      `yaml:"serial"`
	Sync        SyncConfig        `yaml:"sync"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Live        LiveConfig        `yaml:"live"`
	Smoothing   SmoothingConfig   `yaml:"smoothing"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // used while the TUI owns the terminal
}

// SerialConfig represents scanner link configuration
type SerialConfig struct {
	// Ports maps a direction name (north, east, south, west) to a device path.
	// When empty, ports are discovered by probing.
	Ports           map[string]string `yaml:"ports"`
	BaudRate        int               `yaml:"baud_rate"`
	ReadTimeout     time.Duration     `yaml:"read_timeout"`
	DiscoverTimeout time.Duration     `yaml:"discover_timeout"`
}

// SyncConfig represents reboot synchronization configuration
type SyncConfig struct {
	Window    time.Duration `yaml:"window"`
	Tolerance time.Duration `yaml:"tolerance"`
	Skip      bool          `yaml:"skip"`
}

// CalibrationConfig represents calibration sweep configuration
type CalibrationConfig struct {
	PoseDuration time.Duration `yaml:"pose_duration"`
	AngleStep    int           `yaml:"angle_step"`
	OutputDir    string        `yaml:"output_dir"`
	Format       string        `yaml:"format"` // csv or sqlite
	Database     string        `yaml:"database"`
	Beacon       string        `yaml:"beacon"`
	Distances    []Distance    `yaml:"distances"`
}

// LiveConfig represents live estimation configuration
type LiveConfig struct {
	Cadence       time.Duration `yaml:"cadence"`
	RSSIThreshold *int          `yaml:"rssi_threshold"`
	MinDirections int           `yaml:"min_directions"`
	DeviceTimeout time.Duration `yaml:"device_timeout"`
	QueueSize     int           `yaml:"queue_size"`
	AllowList     []string      `yaml:"allow_list"`
	BlockList     []string      `yaml:"block_list"`
}

// SmoothingConfig represents bearing smoother configuration
type SmoothingConfig struct {
	Alpha               float64 `yaml:"alpha"`
	MedianWindow        int     `yaml:"median_window"`
	OutlierThresholdDeg float64 `yaml:"outlier_threshold_deg"`
	HistoryLength       int     `yaml:"history_length"`
}

// MQTTConfig represents the optional bearing publisher
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// HTTPConfig represents the optional bearing API
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	threshold := RSSIThreshold
	return &Config{
		Log: LogConfig{Level: "info"},
		Serial: SerialConfig{
			Ports:           map[string]string{},
			BaudRate:        BaudRate,
			ReadTimeout:     ReadTimeout,
			DiscoverTimeout: DiscoverTimeout,
		},
		Sync: SyncConfig{
			Window:    SyncWindow,
			Tolerance: SyncTolerance,
		},
		Calibration: CalibrationConfig{
			PoseDuration: PoseDuration,
			AngleStep:    AngleStep,
			OutputDir:    OutputDir,
			Format:       "csv",
			Distances:    append([]Distance(nil), Distances...),
		},
		Live: LiveConfig{
			Cadence:       Cadence,
			RSSIThreshold: &threshold,
			MinDirections: MinDirections,
			DeviceTimeout: DeviceTimeout,
			QueueSize:     SampleQueue,
		},
		Smoothing: SmoothingConfig{
			Alpha:               SmoothingAlpha,
			MedianWindow:        MedianWindow,
			OutlierThresholdDeg: OutlierThresholdDeg,
			HistoryLength:       HistoryLength,
		},
		MQTT: MQTTConfig{
			ClientID: "ble-bearing",
			Topic:    "ble-bearing/bearings",
		},
	}
}

// Load reads configuration from a YAML file layered over the defaults, then
// applies environment overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		// An explicit "ports:" with no entries decodes to nil.
		if cfg.Serial.Ports == nil {
			cfg.Serial.Ports = map[string]string{}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("BLE_BEARING_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
}

// Threshold returns the live RSSI threshold.
func (c *Config) Threshold() int {
	if c.Live.RSSIThreshold == nil {
		return RSSIThreshold
	}
	return *c.Live.RSSIThreshold
}

// SetThreshold overrides the live RSSI threshold.
func (c *Config) SetThreshold(v int) {
	c.Live.RSSIThreshold = &v
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Serial.BaudRate <= 0 {
		errs = append(errs, errors.New("serial.baud_rate must be positive"))
	}
	for name := range c.Serial.Ports {
		switch strings.ToLower(name) {
		case "north", "east", "south", "west":
		default:
			errs = append(errs, fmt.Errorf("serial.ports: unknown direction %q", name))
		}
	}
	if c.Sync.Window <= 0 {
		errs = append(errs, errors.New("sync.window must be positive"))
	}
	if c.Calibration.PoseDuration <= 0 {
		errs = append(errs, errors.New("calibration.pose_duration must be positive"))
	}
	if c.Calibration.AngleStep <= 0 || c.Calibration.AngleStep > 360 {
		errs = append(errs, errors.New("calibration.angle_step must be in 1..360"))
	}
	switch c.Calibration.Format {
	case "csv", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("calibration.format: unsupported %q", c.Calibration.Format))
	}
	if c.Live.Cadence <= 0 {
		errs = append(errs, errors.New("live.cadence must be positive"))
	}
	if c.Live.MinDirections < 1 || c.Live.MinDirections > 4 {
		errs = append(errs, errors.New("live.min_directions must be in 1..4"))
	}
	if c.Smoothing.Alpha <= 0 || c.Smoothing.Alpha > 1 {
		errs = append(errs, errors.New("smoothing.alpha must be in (0, 1]"))
	}
	if c.Smoothing.MedianWindow < 1 {
		errs = append(errs, errors.New("smoothing.median_window must be at least 1"))
	}
	if c.Smoothing.OutlierThresholdDeg <= 0 {
		errs = append(errs, errors.New("smoothing.outlier_threshold_deg must be positive"))
	}
	if c.Smoothing.HistoryLength < 1 {
		errs = append(errs, errors.New("smoothing.history_length must be at least 1"))
	}

	return errors.Join(errs...)
}
