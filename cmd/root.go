// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "0.1.0"

var (
	configPath  string
	printerAddr string
	mainboardID string
	logLevel    string
	logFormat   string

	// Loaded by the root PersistentPreRunE
	cfg    Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "resinstat",
	Short: "SDCP resin printer monitor and control daemon",
	Long: `Resinstat - monitor and control SDCP resin printers.

The serve command runs a daemon that keeps one websocket link to the printer,
tracks its state and serves it to dashboards over HTTP and websocket. The
other commands talk to the printer directly or to a running daemon.

Configuration is read from --config (YAML), then the environment
(PRINTER_IP, PRINTER_MAINBOARD_ID, PORT, LOG_LEVEL), then flags.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := LoadConfig(configPath, os.Getenv)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		logger, err = newLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVarP(&printerAddr, "printer", "p", "", "Printer address (host, host:port or ws:// URL)")
	rootCmd.PersistentFlags().StringVar(&mainboardID, "mainboard-id", "", "Printer mainboard ID until the printer reports its own")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
}

// applyFlags overrides cfg with flags set on the command line
func applyFlags(cmd *cobra.Command, c *Config) {
	flags := cmd.Flags()
	if flags.Changed("printer") {
		c.Printer.Address = printerAddr
	}
	if flags.Changed("mainboard-id") {
		c.Printer.MainboardID = mainboardID
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}
	if flags.Changed("listen") {
		c.Server.Listen = serveListen
	}
}

// exitError carries a process exit code
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// ExitCode returns the process exit code for an Execute error
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
