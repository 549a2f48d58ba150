// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads servolink settings from TOML or YAML files on top
// of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Thermoquad/servolink/pkg/control"
	"github.com/Thermoquad/servolink/pkg/link"
	"github.com/Thermoquad/servolink/pkg/logging"
	"gopkg.in/yaml.v2"
)

// Axis names one servo and where to reach it
type Axis struct {
	ID      uint8
	Address string
	Name    string
}

// Config is the complete runtime configuration
type Config struct {
	Link link.Options
	Axes []Axis

	Control control.Params

	Impedance       control.ImpedanceParams
	ImpedancePeriod time.Duration

	Log           logging.Options
	TelemetryFile string
}

// Default returns the built-in configuration (no axes)
func Default() Config {
	return Config{
		Link:            link.DefaultOptions(),
		Control:         control.DefaultParams(),
		Impedance:       control.DefaultImpedanceParams(),
		ImpedancePeriod: 20 * time.Millisecond,
		Log:             logging.DefaultOptions(),
	}
}

type fileAxis struct {
	ID      int    `toml:"id" yaml:"id"`
	Address string `toml:"address" yaml:"address"`
	Name    string `toml:"name" yaml:"name"`
}

type fileControl struct {
	Kp             float64 `toml:"kp" yaml:"kp"`
	Kd             float64 `toml:"kd" yaml:"kd"`
	TorqueLimit    float64 `toml:"torque_limit" yaml:"torque_limit"`
	Period         string  `toml:"period" yaml:"period"`
	TorqueConstant float64 `toml:"torque_constant" yaml:"torque_constant"`
}

type fileImpedance struct {
	Kp          float64 `toml:"kp" yaml:"kp"`
	Kd          float64 `toml:"kd" yaml:"kd"`
	OffsetDeg   float64 `toml:"offset_deg" yaml:"offset_deg"`
	VelocityDPS float64 `toml:"velocity_dps" yaml:"velocity_dps"`
	FeedForward float64 `toml:"feed_forward" yaml:"feed_forward"`
	Period      string  `toml:"period" yaml:"period"`
}

type fileLog struct {
	Level      string `toml:"level" yaml:"level"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	NoColor    bool   `toml:"no_color" yaml:"no_color"`
}

type fileTelemetry struct {
	File string `toml:"file" yaml:"file"`
}

type fileConfig struct {
	Driver      string        `toml:"driver" yaml:"driver"`
	Baud        int           `toml:"baud" yaml:"baud"`
	Timeout     string        `toml:"timeout" yaml:"timeout"`
	Username    string        `toml:"username" yaml:"username"`
	NoSSLVerify bool          `toml:"no_ssl_verify" yaml:"no_ssl_verify"`
	Axes        []fileAxis    `toml:"axes" yaml:"axes"`
	Control     fileControl   `toml:"control" yaml:"control"`
	Impedance   fileImpedance `toml:"impedance" yaml:"impedance"`
	Log         fileLog       `toml:"log" yaml:"log"`
	Telemetry   fileTelemetry `toml:"telemetry" yaml:"telemetry"`
}

// Load reads path over Default(). Files ending in .yaml or .yml are YAML,
// everything else is TOML. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = loadYAML(path, &cfg)
	default:
		err = loadTOML(path, &cfg)
	}
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func loadTOML(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown keys %v", undecoded)
	}
	return apply(cfg, raw, meta.IsDefined)
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Seed with current values so omitted keys keep their defaults
	raw := toFile(*cfg)
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return apply(cfg, raw, func(...string) bool { return true })
}

func toFile(cfg Config) fileConfig {
	return fileConfig{
		Driver:      cfg.Link.Driver,
		Baud:        cfg.Link.Baud,
		Timeout:     cfg.Link.Timeout.String(),
		Username:    cfg.Link.Username,
		NoSSLVerify: cfg.Link.SkipTLSVerify,
		Control: fileControl{
			Kp:             cfg.Control.Kp,
			Kd:             cfg.Control.Kd,
			TorqueLimit:    cfg.Control.TorqueLimit,
			Period:         cfg.Control.Period.String(),
			TorqueConstant: cfg.Control.TorqueConstant,
		},
		Impedance: fileImpedance{
			Kp:          cfg.Impedance.Kp,
			Kd:          cfg.Impedance.Kd,
			OffsetDeg:   cfg.Impedance.OffsetDeg,
			VelocityDPS: cfg.Impedance.VelocityDPS,
			FeedForward: cfg.Impedance.FeedForward,
			Period:      cfg.ImpedancePeriod.String(),
		},
		Log: fileLog{
			Level:      cfg.Log.Level,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			NoColor:    cfg.Log.NoColor,
		},
		Telemetry: fileTelemetry{File: cfg.TelemetryFile},
	}
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func apply(cfg *Config, raw fileConfig, defined func(...string) bool) error {
	var err error

	if defined("driver") {
		cfg.Link.Driver = strings.TrimSpace(raw.Driver)
	}
	if defined("baud") {
		cfg.Link.Baud = raw.Baud
	}
	if defined("timeout") {
		if cfg.Link.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
			return err
		}
	}
	if defined("username") {
		cfg.Link.Username = strings.TrimSpace(raw.Username)
	}
	if defined("no_ssl_verify") {
		cfg.Link.SkipTLSVerify = raw.NoSSLVerify
	}

	if defined("axes") {
		cfg.Axes = make([]Axis, 0, len(raw.Axes))
		for i, a := range raw.Axes {
			if a.ID < 0 || a.ID > 255 {
				return fmt.Errorf("axes[%d]: id %d out of range", i, a.ID)
			}
			cfg.Axes = append(cfg.Axes, Axis{
				ID:      uint8(a.ID),
				Address: strings.TrimSpace(a.Address),
				Name:    strings.TrimSpace(a.Name),
			})
		}
	}

	if defined("control", "kp") {
		cfg.Control.Kp = raw.Control.Kp
	}
	if defined("control", "kd") {
		cfg.Control.Kd = raw.Control.Kd
	}
	if defined("control", "torque_limit") {
		cfg.Control.TorqueLimit = raw.Control.TorqueLimit
	}
	if defined("control", "period") {
		if cfg.Control.Period, err = parseDuration("control.period", raw.Control.Period); err != nil {
			return err
		}
	}
	if defined("control", "torque_constant") {
		cfg.Control.TorqueConstant = raw.Control.TorqueConstant
	}

	if defined("impedance", "kp") {
		cfg.Impedance.Kp = raw.Impedance.Kp
	}
	if defined("impedance", "kd") {
		cfg.Impedance.Kd = raw.Impedance.Kd
	}
	if defined("impedance", "offset_deg") {
		cfg.Impedance.OffsetDeg = raw.Impedance.OffsetDeg
	}
	if defined("impedance", "velocity_dps") {
		cfg.Impedance.VelocityDPS = raw.Impedance.VelocityDPS
	}
	if defined("impedance", "feed_forward") {
		cfg.Impedance.FeedForward = raw.Impedance.FeedForward
	}
	if defined("impedance", "period") {
		if cfg.ImpedancePeriod, err = parseDuration("impedance.period", raw.Impedance.Period); err != nil {
			return err
		}
	}

	if defined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if defined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if defined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if defined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if defined("log", "no_color") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if defined("telemetry", "file") {
		cfg.TelemetryFile = strings.TrimSpace(raw.Telemetry.File)
	}

	return nil
}

// Validate checks the link, axis list and control settings. An empty
// axis list is allowed; commands that need axes check for them.
func (c Config) Validate() error {
	switch c.Link.Driver {
	case "", link.DriverSerial, link.DriverTarm:
	default:
		return fmt.Errorf("unknown driver %q", c.Link.Driver)
	}
	if c.Link.Baud <= 0 {
		return fmt.Errorf("baud must be positive, got %d", c.Link.Baud)
	}
	if c.Link.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Link.Timeout)
	}

	seen := make(map[uint8]bool, len(c.Axes))
	for i, a := range c.Axes {
		if err := link.ValidateAxisID(a.ID); err != nil {
			return fmt.Errorf("axes[%d]: %w", i, err)
		}
		if seen[a.ID] {
			return fmt.Errorf("axes[%d]: duplicate axis id %d", i, a.ID)
		}
		seen[a.ID] = true
		if a.Address == "" {
			return fmt.Errorf("axes[%d]: empty address", i)
		}
	}

	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if err := c.Impedance.Validate(); err != nil {
		return fmt.Errorf("impedance: %w", err)
	}
	if c.ImpedancePeriod <= 0 {
		return fmt.Errorf("impedance period must be positive, got %v", c.ImpedancePeriod)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// AxisAddresses returns the axes as link addresses
func (c Config) AxisAddresses() []link.AxisAddress {
	out := make([]link.AxisAddress, len(c.Axes))
	for i, a := range c.Axes {
		out[i] = link.AxisAddress{ID: a.ID, Address: a.Address}
	}
	return out
}
