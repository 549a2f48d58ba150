// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"trace", zerolog.TraceLevel, false},
		{"loud", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvNoColor, "true")
	t.Setenv(EnvTimestamp, "false")

	opts := ApplyEnv(DefaultOptions())
	if opts.Level != "debug" || !opts.NoColor || opts.Timestamp {
		t.Errorf("opts = %+v", opts)
	}
}

func TestApplyEnv_IgnoresBadBools(t *testing.T) {
	t.Setenv(EnvNoColor, "maybe")

	opts := ApplyEnv(DefaultOptions())
	if opts.NoColor {
		t.Error("invalid bool must not change NoColor")
	}
}

func TestConfigure_ConsoleFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Level = "warn"
	opts.NoColor = true
	opts.Console = &buf

	logger, closer, err := Configure(opts)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	defer closer.Close()

	logger.Info().Msg("hidden")
	logger.Warn().Uint8("axis", 2).Msg("refresh failed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message leaked at warn level:\n%s", out)
	}
	if !strings.Contains(out, "refresh failed") || !strings.Contains(out, "axis=2") {
		t.Errorf("warn message missing:\n%s", out)
	}
}

func TestConfigure_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servolink.log")
	opts := DefaultOptions()
	opts.File = path
	opts.Console = &bytes.Buffer{}

	logger, closer, err := Configure(opts)
	if err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	logger.Info().Uint64("tick", 7).Msg("tick overrun")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, data)
	}
	if entry["message"] != "tick overrun" || entry["tick"] != float64(7) || entry["app"] != "servolink" {
		t.Errorf("entry = %v", entry)
	}
}

func TestConfigure_BadLevel(t *testing.T) {
	opts := DefaultOptions()
	opts.Level = "shouting"
	if _, _, err := Configure(opts); err == nil {
		t.Error("expected error")
	}
}
