// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the knxcoupler configuration file.
//
// Values are applied in order: built-in defaults, the YAML file, then
// KNXCOUPLER_* environment variables. Command line flags are applied last by
// the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/knxcoupler/pkg/comobject"
	"github.com/Thermoquad/knxcoupler/pkg/coupler"
	"github.com/Thermoquad/knxcoupler/pkg/dpt"
	"github.com/Thermoquad/knxcoupler/pkg/telegram"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "KNXCOUPLER_"

// Config is the root configuration
type Config struct {
	Serial  SerialConfig   `yaml:"serial"`
	Remote  RemoteConfig   `yaml:"remote"`
	Coupler CouplerConfig  `yaml:"coupler"`
	Objects []ObjectConfig `yaml:"objects"`
	MQTT    MQTTConfig     `yaml:"mqtt"`
	Logging LoggingConfig  `yaml:"logging"`
}

// SerialConfig selects a local TP-UART
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// RemoteConfig selects a websocket serial bridge
type RemoteConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// CouplerConfig holds the bus coupler parameters. Zero durations keep the engine defaults.
type CouplerConfig struct {
	PhysicalAddress string        `yaml:"physical_address"`
	Mode            string        `yaml:"mode"`
	ResetTimeout    time.Duration `yaml:"reset_timeout"`
	ResetAttempts   int           `yaml:"reset_attempts"`
	AckTimeout      time.Duration `yaml:"ack_timeout"`
	EndOfPacketGap  time.Duration `yaml:"end_of_packet_gap"`
	MaxTelegramSize int           `yaml:"max_telegram_size"`
}

// ObjectConfig describes one communication object
type ObjectConfig struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`  // group address, "1/2/3"
	DPT      string `yaml:"dpt"`      // "1.001", "9.001", ...
	Length   int    `yaml:"length"`   // derived from dpt when zero
	Flags    string `yaml:"flags"`    // indicator letters, "CRWTUI"
	Priority string `yaml:"priority"` // system, high, alarm, normal
}

// MQTTConfig holds the broker settings of the bridge
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads path, applies environment overrides and validates the result.
// An empty path yields the defaults with environment overrides.
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
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud: 19200,
		},
		Coupler: CouplerConfig{
			PhysicalAddress: "15.15.255",
			Mode:            "normal",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "knxcoupler",
			TopicPrefix: "knx",
			QoS:         1,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv(EnvPrefix + "SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.Baud = baud
		}
	}
	if v := os.Getenv(EnvPrefix + "REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv(EnvPrefix + "REMOTE_USERNAME"); v != "" {
		cfg.Remote.Username = v
	}
	if v := os.Getenv(EnvPrefix + "PHYSICAL_ADDRESS"); v != "" {
		cfg.Coupler.PhysicalAddress = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv(EnvPrefix + "MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var errs []string

	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}
	if _, err := telegram.ParseIndividualAddress(c.Coupler.PhysicalAddress); err != nil {
		errs = append(errs, fmt.Sprintf("coupler.physical_address: %v", err))
	}
	if _, err := ParseMode(c.Coupler.Mode); err != nil {
		errs = append(errs, fmt.Sprintf("coupler.mode: %v", err))
	}
	if c.Coupler.MaxTelegramSize != 0 &&
		(c.Coupler.MaxTelegramSize < telegram.MinSize || c.Coupler.MaxTelegramSize > telegram.MaxSize) {
		errs = append(errs, fmt.Sprintf("coupler.max_telegram_size must be between %d and %d", telegram.MinSize, telegram.MaxSize))
	}

	names := make(map[string]bool, len(c.Objects))
	for i, o := range c.Objects {
		if names[o.Name] {
			errs = append(errs, fmt.Sprintf("objects[%d]: duplicate name %q", i, o.Name))
		}
		names[o.Name] = true
		if _, err := o.Build(); err != nil {
			errs = append(errs, fmt.Sprintf("objects[%d]: %v", i, err))
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseMode maps "normal" or "monitor" to a coupler mode
func ParseMode(s string) (coupler.Mode, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return coupler.ModeNormal, nil
	case "monitor", "bus-monitor", "busmonitor":
		return coupler.ModeBusMonitor, nil
	}
	return 0, fmt.Errorf("unknown mode %q (valid: normal, monitor)", s)
}

// CouplerConfig converts the coupler section into engine parameters
func (c *Config) CouplerConfig(logger coupler.Logger) (coupler.Config, error) {
	addr, err := telegram.ParseIndividualAddress(c.Coupler.PhysicalAddress)
	if err != nil {
		return coupler.Config{}, err
	}
	mode, err := ParseMode(c.Coupler.Mode)
	if err != nil {
		return coupler.Config{}, err
	}
	return coupler.Config{
		PhysicalAddress: addr,
		Mode:            mode,
		ResetTimeout:    c.Coupler.ResetTimeout,
		ResetAttempts:   c.Coupler.ResetAttempts,
		AckTimeout:      c.Coupler.AckTimeout,
		EndOfPacketGap:  c.Coupler.EndOfPacketGap,
		MaxTelegramSize: c.Coupler.MaxTelegramSize,
		Logger:          logger,
	}, nil
}

// BuildObjects creates the communication objects in configuration order
func (c *Config) BuildObjects() ([]*comobject.ComObject, error) {
	objects := make([]*comobject.ComObject, 0, len(c.Objects))
	for _, o := range c.Objects {
		obj, err := o.Build()
		if err != nil {
			return nil, fmt.Errorf("object %q: %w", o.Name, err)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// Build creates the communication object
func (o ObjectConfig) Build() (*comobject.ComObject, error) {
	if o.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	addr, err := telegram.ParseGroupAddress(o.Address)
	if err != nil {
		return nil, err
	}

	length := o.Length
	if o.DPT != "" {
		format, err := dpt.Parse(o.DPT)
		if err != nil {
			return nil, err
		}
		if length == 0 {
			length = format.ObjectLength()
		}
	}
	if length == 0 {
		length = 1
	}

	flags := comobject.FlagCommunication
	if o.Flags != "" {
		if flags, err = comobject.ParseIndicator(o.Flags); err != nil {
			return nil, err
		}
	}

	obj, err := comobject.New(o.Name, addr, length, flags)
	if err != nil {
		return nil, err
	}
	obj.DPT = o.DPT

	if o.Priority != "" {
		p, ok := telegram.ParsePriority(o.Priority)
		if !ok {
			return nil, fmt.Errorf("unknown priority %q", o.Priority)
		}
		obj.Priority = p
	}
	return obj, nil
}
