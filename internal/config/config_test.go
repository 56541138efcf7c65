package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT.Broker = %q, want tcp://localhost:1883", cfg.MQTT.Broker)
	}
	if cfg.Rower.MomentOfInertia != 0.101 {
		t.Errorf("Rower.MomentOfInertia = %v, want 0.101", cfg.Rower.MomentOfInertia)
	}
	if cfg.Rower.InitialDragCoefficient != 0.000125 {
		t.Errorf("Rower.InitialDragCoefficient = %v, want 0.000125", cfg.Rower.InitialDragCoefficient)
	}
	if cfg.Rower.MagnetsPerRevolution != 4 {
		t.Errorf("Rower.MagnetsPerRevolution = %v, want 4", cfg.Rower.MagnetsPerRevolution)
	}
	if cfg.Topics.Metrics != "rowmon/metrics" {
		t.Errorf("Topics.Metrics = %q, want rowmon/metrics", cfg.Topics.Metrics)
	}
	if cfg.Capture.Source != "gpio" {
		t.Errorf("Capture.Source = %q, want gpio", cfg.Capture.Source)
	}

	if err := cfg.validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MQTT.Broker != Default().MQTT.Broker {
		t.Errorf("Broker = %q, want the default", cfg.MQTT.Broker)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowmon.toml")
	body := `
[mqtt]
broker = "tcp://rower.local:1883"

[rower]
moment_of_inertia = 0.085
magnets_per_revolution = 2

[capture]
source = "mock"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MQTT.Broker != "tcp://rower.local:1883" {
		t.Errorf("Broker = %q, want override", cfg.MQTT.Broker)
	}
	if cfg.Rower.MomentOfInertia != 0.085 {
		t.Errorf("MomentOfInertia = %v, want 0.085", cfg.Rower.MomentOfInertia)
	}
	if cfg.Rower.MagnetsPerRevolution != 2 {
		t.Errorf("MagnetsPerRevolution = %v, want 2", cfg.Rower.MagnetsPerRevolution)
	}
	if cfg.Capture.Source != "mock" {
		t.Errorf("Source = %q, want mock", cfg.Capture.Source)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Rower.DriveStartVelocity != 3.0 {
		t.Errorf("DriveStartVelocity = %v, want default 3.0", cfg.Rower.DriveStartVelocity)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %v, want default 8080", cfg.Web.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		errContains string
	}{
		{
			name:        "missing broker",
			mutate:      func(c *Config) { c.MQTT.Broker = "" },
			errContains: "mqtt.broker",
		},
		{
			name:        "non-positive inertia",
			mutate:      func(c *Config) { c.Rower.MomentOfInertia = 0 },
			errContains: "moment_of_inertia",
		},
		{
			name:        "drag coefficient out of band",
			mutate:      func(c *Config) { c.Rower.InitialDragCoefficient = 0.5 },
			errContains: "initial_drag_coefficient",
		},
		{
			name:        "too many magnets",
			mutate:      func(c *Config) { c.Rower.MagnetsPerRevolution = 32 },
			errContains: "magnets_per_revolution",
		},
		{
			name:        "unknown capture source",
			mutate:      func(c *Config) { c.Capture.Source = "bluetooth" },
			errContains: "capture.source",
		},
		{
			name: "gpio without a flywheel pin",
			mutate: func(c *Config) {
				c.Capture.Source = "gpio"
				c.Capture.FlywheelPin = ""
			},
			errContains: "flywheel_pin",
		},
		{
			name: "serial without a port",
			mutate: func(c *Config) {
				c.Capture.Source = "serial"
				c.Capture.SerialPort = ""
			},
			errContains: "serial_port",
		},
		{
			name:        "non-positive publish interval",
			mutate:      func(c *Config) { c.Monitor.PublishIntervalMillis = 0 },
			errContains: "publish_interval_ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not mention %q", err, tt.errContains)
			}
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rowmon.toml")
	body := `
[rower]
moment_of_inertia = -1.0
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected Load to reject an invalid config")
	}
}
