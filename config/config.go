// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package config loads a node's TOML configuration file, the host-side
// counterpart of the fixed radio parameters original_source/ compiles in.
package config

import (
	"fmt"
	"io/ioutil"

	"github.com/BurntSushi/toml"
)

// RadioConfig describes the SPI/GPIO wiring for the ESB radio, mirroring
// cmd/mqttradio's RadioConfig struct-tag style.
type RadioConfig struct {
	SpiBus  int    `toml:"spi_bus"`
	SpiCS   int    `toml:"spi_cs"`
	CEPin   string `toml:"ce_pin"`
	IntrPin string `toml:"intr_pin"`
}

// UARTConfig describes the serial port used to talk to the attached logger
// host.
type UARTConfig struct {
	Device string
	Baud   int
}

// ButtonConfig names the GPIO line wired to the role-select pushbutton.
type ButtonConfig struct {
	Pin string
}

// LEDConfig names the three role-indicator GPIO lines.
type LEDConfig struct {
	RedPin   string `toml:"red_pin"`
	GreenPin string `toml:"green_pin"`
	BluePin  string `toml:"blue_pin"`
}

// OutputConfig names the SYNC and STOP pulse output lines.
type OutputConfig struct {
	SyncPin string `toml:"sync_pin"`
	StopPin string `toml:"stop_pin"`
}

// MqttConfig is the broker a node publishes FleetEvents to. It is optional;
// a zero-value Host disables the status publisher.
type MqttConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// MetricsConfig controls the Prometheus HTTP listener. It is optional; a
// zero-value Listen disables metrics.
type MetricsConfig struct {
	Listen string
}

// Backend names which hostio implementation opens the node's SPI bus and
// GPIO lines.
const (
	BackendPeriph = "periph"
	BackendEmbd   = "embd"
)

// NodeConfig is the top-level TOML document for cmd/wmorenode.
type NodeConfig struct {
	ID      string
	Debug   bool
	Backend string
	Radio   RadioConfig
	UART    UARTConfig
	Button  ButtonConfig
	LED     LEDConfig
	Output  OutputConfig
	Mqtt    MqttConfig
	Metrics MetricsConfig
}

// Load reads and parses the TOML configuration file at path.
func Load(path string) (NodeConfig, error) {
	cfg := NodeConfig{Backend: BackendPeriph}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if cfg.ID == "" {
		return cfg, fmt.Errorf("config: %s: id is required", path)
	}
	switch cfg.Backend {
	case BackendPeriph, BackendEmbd:
	default:
		return cfg, fmt.Errorf("config: %s: unknown backend %q, want %q or %q", path, cfg.Backend, BackendPeriph, BackendEmbd)
	}
	return cfg, nil
}

// MetricsEnabled reports whether a metrics listener was configured.
func (c NodeConfig) MetricsEnabled() bool { return c.Metrics.Listen != "" }

// MqttEnabled reports whether a status-publishing broker was configured.
func (c NodeConfig) MqttEnabled() bool { return c.Mqtt.Host != "" }
