// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the process logger: a console writer on stderr
// and an optional rotated JSON log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Environment overrides
const (
	EnvLevel     = "SERVOLINK_LOG_LEVEL"
	EnvNoColor   = "SERVOLINK_LOG_NOCOLOR"
	EnvTimestamp = "SERVOLINK_LOG_TIMESTAMP"
)

// Options configure the logger
type Options struct {
	Level      string
	NoColor    bool
	Timestamp  bool
	File       string // JSON log file, rotated; empty disables
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Console overrides stderr (tests)
	Console io.Writer
}

// DefaultOptions logs info and above to stderr only
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Timestamp:  true,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// ApplyEnv overrides opts from SERVOLINK_LOG_* variables
func ApplyEnv(opts Options) Options {
	if v := strings.TrimSpace(os.Getenv(EnvLevel)); v != "" {
		opts.Level = v
	}
	if v := os.Getenv(EnvNoColor); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.NoColor = b
		}
	}
	if v := os.Getenv(EnvTimestamp); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.Timestamp = b
		}
	}
	return opts
}

// Configure builds a logger from opts, installs it as the global logger
// and returns a closer for the log file (a no-op without one).
func Configure(opts Options) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out := opts.Console
	if out == nil {
		out = os.Stderr
	}
	console := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !opts.Timestamp {
		console.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	var (
		w      io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		w = zerolog.MultiLevelWriter(console, rotator)
		closer = rotator
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Str("app", "servolink").Logger()
	log.Logger = logger
	return logger, closer, nil
}

// ParseLevel parses a level name; empty means info
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
