// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resinstat configuration file
type Config struct {
	Printer  PrinterConfig  `yaml:"printer"`
	Server   ServerConfig   `yaml:"server"`
	Settings SettingsConfig `yaml:"settings"`
	Log      LogConfig      `yaml:"log"`
}

type PrinterConfig struct {
	Address        string          `yaml:"address"`
	MainboardID    string          `yaml:"mainboard_id"`
	CommandTimeout time.Duration   `yaml:"command_timeout"`
	PollInterval   time.Duration   `yaml:"poll_interval"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	Base time.Duration `yaml:"base"`
	Max  time.Duration `yaml:"max"`
	// MaxAttempts 0 retries forever
	MaxAttempts int `yaml:"max_attempts"`
}

type ServerConfig struct {
	Listen              string        `yaml:"listen"`
	AllowedOrigins      []string      `yaml:"allowed_origins"`
	BroadcastInterval   time.Duration `yaml:"broadcast_interval"`
	MinBroadcastSpacing time.Duration `yaml:"min_broadcast_spacing"`
	ControlPerMinute    int           `yaml:"control_per_minute"`
}

type SettingsConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Printer: PrinterConfig{
			CommandTimeout: 5 * time.Second,
			Reconnect: ReconnectConfig{
				Base: time.Second,
				Max:  30 * time.Second,
			},
		},
		Server: ServerConfig{
			Listen:              ":3000",
			BroadcastInterval:   time.Second,
			MinBroadcastSpacing: 100 * time.Millisecond,
			ControlPerMinute:    60,
		},
		Settings: SettingsConfig{Backend: "sqlite"},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// path (optional), then the environment.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeConfig(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}

	if v := strings.TrimSpace(getenv("PRINTER_IP")); v != "" {
		cfg.Printer.Address = v
	}
	if v := strings.TrimSpace(getenv("PRINTER_MAINBOARD_ID")); v != "" {
		cfg.Printer.MainboardID = v
	}
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		host, _, err := net.SplitHostPort(cfg.Server.Listen)
		if err != nil {
			host = ""
		}
		cfg.Server.Listen = net.JoinHostPort(host, strconv.Itoa(port))
	}
	if v := strings.TrimSpace(getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate rejects settings the engine cannot run with
func (c Config) Validate() error {
	var errs []error

	if c.Printer.CommandTimeout <= 0 {
		errs = append(errs, errors.New("printer.command_timeout must be positive"))
	}
	if c.Printer.PollInterval < 0 {
		errs = append(errs, errors.New("printer.poll_interval must not be negative"))
	}
	if c.Printer.Reconnect.Base <= 0 {
		errs = append(errs, errors.New("printer.reconnect.base must be positive"))
	}
	if c.Printer.Reconnect.Max < c.Printer.Reconnect.Base {
		errs = append(errs, errors.New("printer.reconnect.max must not be less than base"))
	}
	if c.Printer.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("printer.reconnect.max_attempts must not be negative"))
	}
	if c.Server.BroadcastInterval <= 0 {
		errs = append(errs, errors.New("server.broadcast_interval must be positive"))
	}
	if c.Server.MinBroadcastSpacing < 0 {
		errs = append(errs, errors.New("server.min_broadcast_spacing must not be negative"))
	}
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen: %w", err))
	}

	switch c.Settings.Backend {
	case "sqlite", "file", "memory":
	default:
		errs = append(errs, fmt.Errorf("settings.backend %q: want sqlite, file or memory", c.Settings.Backend))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want console or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
