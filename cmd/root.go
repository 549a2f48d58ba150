// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/servolink/pkg/config"
	"github.com/Thermoquad/servolink/pkg/link"
	"github.com/Thermoquad/servolink/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	axisSpecs  []string

	// Link flags
	driverName  string
	baudRate    int
	readTimeout time.Duration

	// WebSocket bridge flags
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	logLevel string
	logFile  string
)

// Resolved in PersistentPreRunE
var (
	appConfig config.Config
	logger    = zerolog.Nop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "servolink",
	Short: "LK servo link and control loop tool",
	Long: `Servolink - drives LK-protocol servo actuators over serial links.

Each axis is reached through its own channel, given as id@address:
  Serial:    --axis 1@/dev/ttyUSB0 [--baud 115200] [--driver serial|tarm]
  WebSocket: --axis 2@ws://host/path [--username user]

Axes may also be listed in a TOML or YAML file passed with --config.
Flags override file values.

For WebSocket authentication, the password is read from the SERVOLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.toml, .yaml or .yml)")
	rootCmd.PersistentFlags().StringArrayVarP(&axisSpecs, "axis", "a", nil, "Axis as id@address (repeatable)")

	// Link flags
	rootCmd.PersistentFlags().StringVar(&driverName, "driver", link.DriverSerial, "Serial driver (serial or tarm)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().DurationVar(&readTimeout, "timeout", 100*time.Millisecond, "Per-transaction response timeout")

	// WebSocket bridge flags
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
}

// Execute runs the root command
func Execute() error {
	// PersistentPostRun is skipped when RunE fails
	err := rootCmd.Execute()
	closeLog()
	return err
}

func closeLog() {
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	appConfig = cfg

	logger, logCloser, err = logging.Configure(logging.ApplyEnv(cfg.Log))
	if err != nil {
		return err
	}
	return nil
}

// resolveConfig loads the config file (if any) and applies flags that
// were set explicitly
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Link.Driver = driverName
	}
	if flags.Changed("baud") {
		cfg.Link.Baud = baudRate
	}
	if flags.Changed("timeout") {
		cfg.Link.Timeout = readTimeout
	}
	if flags.Changed("username") {
		cfg.Link.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Link.SkipTLSVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}

	if len(axisSpecs) > 0 {
		cfg.Axes = cfg.Axes[:0]
		for _, spec := range axisSpecs {
			addr, err := link.ParseAxisAddress(spec)
			if err != nil {
				return config.Config{}, err
			}
			cfg.Axes = append(cfg.Axes, config.Axis{ID: addr.ID, Address: addr.Address})
		}
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}
