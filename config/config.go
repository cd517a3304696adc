// Package config loads the device table from YAML. The table maps device
// names to their vendor, connection parameters and hardware topology; the
// loader applies defaults and validates, so constructors downstream only
// see usable values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Vendor identifies the driver a device entry binds to.
type Vendor string

const (
	VendorHamilton     Vendor = "hamilton"
	VendorKnauerValve  Vendor = "knauer-valve"
	VendorKnauerPump   Vendor = "knauer-pump"
	VendorAutosampler  Vendor = "knauer-autosampler"
	VendorHuberChiller Vendor = "huber-chiller"
)

var knownVendors = map[Vendor]bool{
	VendorHamilton:     true,
	VendorKnauerValve:  true,
	VendorKnauerPump:   true,
	VendorAutosampler:  true,
	VendorHuberChiller: true,
}

// Config is the root configuration.
type Config struct {
	Devices []DeviceConfig `yaml:"devices"`
	Store   StoreConfig    `yaml:"store"`
	Logging LoggingConfig  `yaml:"logging"`
}

// DeviceConfig describes one device entry.
type DeviceConfig struct {
	Name       string           `yaml:"name"`
	Vendor     Vendor           `yaml:"vendor"`
	Connection ConnectionConfig `yaml:"connection"`

	// SyringeVolumeML is the mounted syringe volume for pump vendors.
	SyringeVolumeML float64 `yaml:"syringe_volume_ml"`

	// ChainIndex selects the pump on a Hamilton daisy chain (0-based).
	ChainIndex int `yaml:"chain_index"`

	// AutosamplerID is the device id a Knauer autosampler answers to.
	AutosamplerID int `yaml:"autosampler_id"`
}

// ConnectionConfig describes the physical channel. Exactly one of
// SerialPort or Host must be set.
type ConnectionConfig struct {
	SerialPort string `yaml:"serial_port"`
	BaudRate   uint   `yaml:"baud_rate"`
	DataBits   uint   `yaml:"data_bits"`
	StopBits   uint   `yaml:"stop_bits"`
	Parity     string `yaml:"parity"`

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Timeouts in milliseconds; zero picks the transport defaults.
	ExchangeTimeoutMS int `yaml:"exchange_timeout_ms"`
	ConnectTimeoutMS  int `yaml:"connect_timeout_ms"`
}

// ExchangeTimeout returns the exchange timeout as a Duration.
func (c *ConnectionConfig) ExchangeTimeout() time.Duration {
	return time.Duration(c.ExchangeTimeoutMS) * time.Millisecond
}

// ConnectTimeout returns the connect timeout as a Duration.
func (c *ConnectionConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// StoreConfig locates the calibration store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path: "./data/calibration.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the whole table. It reports the first problem found.
func (cfg *Config) Validate() error {
	seen := make(map[string]bool, len(cfg.Devices))

	for i := range cfg.Devices {
		dev := &cfg.Devices[i]

		if dev.Name == "" {
			return fmt.Errorf("device %d: name must not be empty", i)
		}
		if seen[dev.Name] {
			return fmt.Errorf("device %q: duplicate name", dev.Name)
		}
		seen[dev.Name] = true

		if !knownVendors[dev.Vendor] {
			return fmt.Errorf("device %q: unknown vendor %q", dev.Name, dev.Vendor)
		}

		if err := dev.applyDefaults(); err != nil {
			return fmt.Errorf("device %q: %w", dev.Name, err)
		}

		if err := dev.Connection.validate(); err != nil {
			return fmt.Errorf("device %q: %w", dev.Name, err)
		}
	}

	return nil
}

func (dev *DeviceConfig) applyDefaults() error {
	conn := &dev.Connection

	if conn.BaudRate == 0 {
		conn.BaudRate = 9600
	}
	if conn.DataBits == 0 {
		conn.DataBits = 8
	}
	if conn.StopBits == 0 {
		conn.StopBits = 1
	}
	if conn.Parity == "" {
		conn.Parity = "none"
	}
	if conn.ExchangeTimeoutMS == 0 {
		conn.ExchangeTimeoutMS = 2000
	}
	if conn.ConnectTimeoutMS == 0 {
		conn.ConnectTimeoutMS = 5000
	}

	switch dev.Vendor {
	case VendorHamilton:
		if dev.SyringeVolumeML <= 0 {
			return fmt.Errorf("syringe_volume_ml must be positive")
		}
		if dev.ChainIndex < 0 {
			return fmt.Errorf("chain_index must not be negative")
		}

	case VendorAutosampler:
		if dev.AutosamplerID == 0 {
			dev.AutosamplerID = 61
		}

	case VendorKnauerValve, VendorKnauerPump:
		if conn.Port == 0 && conn.Host != "" {
			conn.Port = 10001
		}
	}

	return nil
}

func (c *ConnectionConfig) validate() error {
	if c.SerialPort == "" && c.Host == "" {
		return fmt.Errorf("connection needs a serial_port or a host")
	}
	if c.SerialPort != "" && c.Host != "" {
		return fmt.Errorf("connection must not set both serial_port and host")
	}

	if c.Host != "" && (c.Port <= 0 || c.Port > 65535) {
		return fmt.Errorf("port %d out of range [1, 65535]", c.Port)
	}

	switch c.Parity {
	case "none", "odd", "even":
	default:
		return fmt.Errorf("parity %q must be none, odd or even", c.Parity)
	}

	if c.DataBits != 7 && c.DataBits != 8 {
		return fmt.Errorf("data_bits %d must be 7 or 8", c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("stop_bits %d must be 1 or 2", c.StopBits)
	}

	return nil
}
