// Package config loads the monitor's TOML configuration and exposes it
// through a process-wide singleton.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration values.
type Config struct {
	MQTT    MQTTConfig    `toml:"mqtt"`
	Topics  TopicsConfig  `toml:"topics"`
	Rower   RowerConfig   `toml:"rower"`
	Capture CaptureConfig `toml:"capture"`
	Monitor MonitorConfig `toml:"monitor"`
	Display DisplayConfig `toml:"display"`
	Web     WebConfig     `toml:"web"`
	History HistoryConfig `toml:"history"`
}

type MQTTConfig struct {
	Broker          string `toml:"broker"`
	ClientIDMonitor string `toml:"client_id_monitor"`
	ClientIDConsole string `toml:"client_id_console"`
	ClientIDDisplay string `toml:"client_id_display"`
	ClientIDWeb     string `toml:"client_id_web"`
	ClientIDCtl     string `toml:"client_id_ctl"`
}

type TopicsConfig struct {
	Metrics   string `toml:"metrics"`
	Sample    string `toml:"sample"`
	FTMS      string `toml:"ftms"`
	Control   string `toml:"control"`
	HeartRate string `toml:"heart_rate"`
}

// RowerConfig carries the physical constants and detection thresholds the
// engine runs with. MomentOfInertia and InitialDragCoefficient are starting
// points; both are refined by the calibration procedures at runtime.
type RowerConfig struct {
	MomentOfInertia        float64 `toml:"moment_of_inertia"`        // kg*m^2
	InitialDragCoefficient float64 `toml:"initial_drag_coefficient"` // N*m*s^2
	DriveStartVelocity     float64 `toml:"drive_start_velocity"`     // rad/s
	DriveAccelThreshold    float64 `toml:"drive_accel_threshold"`    // rad/s^2
	RecoveryVelocity       float64 `toml:"recovery_velocity"`        // rad/s
	IdleTimeoutSeconds     float64 `toml:"idle_timeout_seconds"`
	AutoPauseSeconds       float64 `toml:"auto_pause_seconds"`
	MagnetsPerRevolution   int     `toml:"magnets_per_revolution"`
}

type CaptureConfig struct {
	Source      string `toml:"source"` // "gpio", "serial" or "mock"
	FlywheelPin string `toml:"flywheel_pin"`
	SeatPin     string `toml:"seat_pin"`
	SerialPort  string `toml:"serial_port"`
	SerialBaud  uint   `toml:"serial_baud"`
}

type MonitorConfig struct {
	PublishIntervalMillis int `toml:"publish_interval_ms"`
	TickIntervalMillis    int `toml:"tick_interval_ms"`
}

type DisplayConfig struct {
	UpdateIntervalMillis int `toml:"update_interval_ms"`
}

type WebConfig struct {
	Port      int    `toml:"port"`
	StaticDir string `toml:"static_dir"`
}

type HistoryConfig struct {
	DBPath string `toml:"db_path"`
}

// Package-level unexported variables for the singleton pattern. External code
// must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with working defaults for a
// single-board monitor with a local mosquitto broker.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker:          "tcp://localhost:1883",
			ClientIDMonitor: "rowmon-monitor",
			ClientIDConsole: "rowmon-console",
			ClientIDDisplay: "rowmon-display",
			ClientIDWeb:     "rowmon-web",
			ClientIDCtl:     "rowmon-ctl",
		},
		Topics: TopicsConfig{
			Metrics:   "rowmon/metrics",
			Sample:    "rowmon/sample",
			FTMS:      "rowmon/ftms",
			Control:   "rowmon/control",
			HeartRate: "rowmon/hr",
		},
		Rower: RowerConfig{
			MomentOfInertia:        0.101,
			InitialDragCoefficient: 0.000125,
			DriveStartVelocity:     3.0,
			DriveAccelThreshold:    5.0,
			RecoveryVelocity:       2.0,
			IdleTimeoutSeconds:     10,
			AutoPauseSeconds:       10,
			MagnetsPerRevolution:   4,
		},
		Capture: CaptureConfig{
			Source:      "gpio",
			FlywheelPin: "17",
			SeatPin:     "27",
			SerialPort:  "/dev/serial0",
			SerialBaud:  115200,
		},
		Monitor: MonitorConfig{
			PublishIntervalMillis: 500,
			TickIntervalMillis:    250,
		},
		Display: DisplayConfig{
			UpdateIntervalMillis: 250,
		},
		Web: WebConfig{
			Port:      8080,
			StaticDir: "web",
		},
		History: HistoryConfig{
			DBPath: "rowmon.db",
		},
	}
}

// Load reads the TOML configuration file over the defaults. A missing file is
// not an error; the defaults are returned as-is.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that values the engine depends on are physically sane.
func (c *Config) validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.Rower.MomentOfInertia <= 0 {
		return fmt.Errorf("rower.moment_of_inertia must be > 0, got %g", c.Rower.MomentOfInertia)
	}
	if c.Rower.InitialDragCoefficient <= 0 || c.Rower.InitialDragCoefficient > 0.01 {
		return fmt.Errorf("rower.initial_drag_coefficient must be in (0, 0.01], got %g", c.Rower.InitialDragCoefficient)
	}
	if c.Rower.MagnetsPerRevolution < 1 || c.Rower.MagnetsPerRevolution > 16 {
		return fmt.Errorf("rower.magnets_per_revolution must be 1-16, got %d", c.Rower.MagnetsPerRevolution)
	}
	switch c.Capture.Source {
	case "gpio", "serial", "mock":
	default:
		return fmt.Errorf("capture.source must be gpio, serial or mock, got %q", c.Capture.Source)
	}
	if c.Capture.Source == "gpio" && c.Capture.FlywheelPin == "" {
		return fmt.Errorf("capture.flywheel_pin is required for gpio capture")
	}
	if c.Capture.Source == "serial" && c.Capture.SerialPort == "" {
		return fmt.Errorf("capture.serial_port is required for serial capture")
	}
	if c.Monitor.PublishIntervalMillis <= 0 {
		return fmt.Errorf("monitor.publish_interval_ms must be > 0")
	}
	if c.Monitor.TickIntervalMillis <= 0 {
		return fmt.Errorf("monitor.tick_interval_ms must be > 0")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses sync.Once
// so this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
