// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/resinstat/pkg/printer"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resinstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("", env(nil))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Printer.CommandTimeout)
	assert.Equal(t, time.Second, cfg.Printer.Reconnect.Base)
	assert.Equal(t, 30*time.Second, cfg.Printer.Reconnect.Max)
	assert.Equal(t, ":3000", cfg.Server.Listen)
	assert.Equal(t, 100*time.Millisecond, cfg.Server.MinBroadcastSpacing)
	assert.Equal(t, "sqlite", cfg.Settings.Backend)
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := writeConfig(t, `
printer:
  address: 10.0.0.1
  mainboard_id: fromfile
  command_timeout: 8s
  reconnect:
    base: 2s
    max: 1m
server:
  listen: 127.0.0.1:8080
  allowed_origins: [http://dash.local]
log:
  level: debug
`)

	cfg, err := LoadConfig(path, env(map[string]string{
		"PRINTER_IP": "10.0.0.2",
		"PORT":       "9090",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "10.0.0.2", cfg.Printer.Address, "env beats file")
	assert.Equal(t, "fromfile", cfg.Printer.MainboardID)
	assert.Equal(t, 8*time.Second, cfg.Printer.CommandTimeout)
	assert.Equal(t, 2*time.Second, cfg.Printer.Reconnect.Base)
	assert.Equal(t, time.Minute, cfg.Printer.Reconnect.Max)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen, "PORT keeps the file's host")
	assert.Equal(t, []string{"http://dash.local"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "unset keys keep defaults")
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "unknown key", body: "printer:\n  adress: 10.0.0.1\n"},
		{name: "bad duration", body: "printer:\n  command_timeout: soon\n"},
		{name: "bad port", env: map[string]string{"PORT": "http"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := LoadConfig(path, env(tt.env))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero command timeout", func(c *Config) { c.Printer.CommandTimeout = 0 }},
		{"negative poll interval", func(c *Config) { c.Printer.PollInterval = -time.Second }},
		{"zero reconnect base", func(c *Config) { c.Printer.Reconnect.Base = 0 }},
		{"max below base", func(c *Config) { c.Printer.Reconnect.Max = 500 * time.Millisecond }},
		{"negative attempts", func(c *Config) { c.Printer.Reconnect.MaxAttempts = -1 }},
		{"zero broadcast interval", func(c *Config) { c.Server.BroadcastInterval = 0 }},
		{"listen without port", func(c *Config) { c.Server.Listen = "localhost" }},
		{"unknown backend", func(c *Config) { c.Settings.Backend = "redis" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEngineConfig(t *testing.T) {
	c := DefaultConfig()
	c.Printer.Address = "10.0.0.3"
	c.Printer.Reconnect.MaxAttempts = 4

	ec := engineConfig(c, nil)
	assert.Equal(t, "10.0.0.3", ec.Address)
	assert.Equal(t, 4, ec.Reconnect.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, ec.MinBroadcastSpacing)

	c.Server.MinBroadcastSpacing = 0
	assert.Negative(t, engineConfig(c, nil).MinBroadcastSpacing, "zero spacing disables the limiter")
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("debug", "json", os.Stderr)
	assert.NoError(t, err)
	_, err = newLogger("", "console", os.Stderr)
	assert.NoError(t, err)
	_, err = newLogger("loud", "json", os.Stderr)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", os.Stderr)
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{&printer.ConnectionError{Address: "x", Err: errors.New("refused")}, exitConnection},
		{printer.ErrDeviceUnavailable, exitConnection},
		{&printer.RejectedError{Cmd: 5, Result: 1}, exitCommand},
		{fmt.Errorf("wait: %w", printer.ErrCommandTimeout), exitCommand},
		{errors.New("boom"), exitCommand},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(classify(tt.err)), "%v", tt.err)
	}
}

func TestFormatTicks(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61_000, "1 minute and 1 second"},
		{3_600_000, "1 hour"},
		{2*3_600_000 + 5*60_000 + 9_000, "2 hours, 5 minutes, and 9 seconds"},
		{26 * 3_600_000, "1 day and 2 hours"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTicks(tt.ms))
	}
}
