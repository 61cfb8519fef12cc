// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/resinstat/pkg/printer"
	"github.com/Thermoquad/resinstat/pkg/retry"
	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// Exit codes for commands that talk to the printer
const (
	exitOK         = 0
	exitCommand    = 1 // rejected or timed out
	exitConnection = 2 // printer unreachable or link lost
)

const connectTimeout = 15 * time.Second

// engineConfig maps the loaded configuration onto an engine config
func engineConfig(c Config, reg prometheus.Registerer) printer.Config {
	spacing := c.Server.MinBroadcastSpacing
	if spacing == 0 {
		spacing = -1 // engine treats zero as "use the default"
	}
	return printer.Config{
		Address:             c.Printer.Address,
		MainboardID:         c.Printer.MainboardID,
		CommandTimeout:      c.Printer.CommandTimeout,
		PollInterval:        c.Printer.PollInterval,
		BroadcastInterval:   c.Server.BroadcastInterval,
		MinBroadcastSpacing: spacing,
		Reconnect: retry.Policy{
			Base:        c.Printer.Reconnect.Base,
			Max:         c.Printer.Reconnect.Max,
			MaxAttempts: c.Printer.Reconnect.MaxAttempts,
		},
		Logger:     logger.With().Str("component", "engine").Logger(),
		Registerer: reg,
	}
}

// withDevice connects an engine straight to the printer, runs fn and tears
// the engine down. Errors come back as exitErrors.
func withDevice(ctx context.Context, onFrame func(sdcp.Frame), fn func(context.Context, *printer.Engine) error) error {
	if cfg.Printer.Address == "" {
		return &exitError{code: exitConnection, err: errors.New("no printer address: use --printer or PRINTER_IP")}
	}

	ec := engineConfig(cfg, nil)
	ec.OnFrame = onFrame
	engine := printer.New(ec)
	defer engine.Close()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := engine.Connect(connectCtx, ""); err != nil {
		return classify(err)
	}

	if err := fn(ctx, engine); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps engine errors to exit codes
func classify(err error) error {
	var ee *exitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ee):
		return err
	case errors.Is(err, printer.ErrConnection),
		errors.Is(err, printer.ErrDeviceUnavailable),
		errors.Is(err, printer.ErrNoAddress):
		return &exitError{code: exitConnection, err: err}
	case errors.Is(err, printer.ErrCommandRejected),
		errors.Is(err, printer.ErrCommandTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return &exitError{code: exitCommand, err: err}
	default:
		return &exitError{code: exitCommand, err: fmt.Errorf("unexpected error: %w", err)}
	}
}
