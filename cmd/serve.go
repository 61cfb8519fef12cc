// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/resinstat/pkg/api"
	"github.com/Thermoquad/resinstat/pkg/printer"
	"github.com/Thermoquad/resinstat/pkg/retry"
	"github.com/Thermoquad/resinstat/pkg/settings"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the printer daemon",
	Long: `Run the printer state daemon.

Keeps a websocket link to the printer, reconnecting with backoff when it
drops, and serves the printer state to dashboards:

  GET  /api/status        current snapshot
  GET  /ws                push stream of snapshots
  POST /api/print/...     pause, resume, stop, start
  GET  /metrics           prometheus metrics

When a printer address is configured the daemon connects at startup;
otherwise dashboards connect through POST /api/connect.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "HTTP listen address (default :3000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := settings.Open(cfg.Settings.Backend, cfg.Settings.Dir)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	defer store.Close()

	engine := printer.New(engineConfig(cfg, reg))
	defer engine.Close()

	srv := api.New(engine, api.Config{
		Version:          Version,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		ControlPerMinute: cfg.Server.ControlPerMinute,
		Logger:           logger.With().Str("component", "api").Logger(),
		Settings:         store,
		Gatherer:         reg,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("listen", cfg.Server.Listen).Str("version", Version).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		// Closing the engine ends websocket push streams that Shutdown does not track
		engine.Close()
		return err
	})

	if cfg.Printer.Address != "" {
		g.Go(func() error {
			policy := engineConfig(cfg, nil).Reconnect
			err := connectWithRetry(ctx, policy, logger, func(ctx context.Context) error {
				if engine.Link().State != printer.Disconnected {
					// Connected through /api/connect meanwhile
					return nil
				}
				connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
				defer cancel()
				return engine.Connect(connectCtx, "")
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Str("printer", cfg.Printer.Address).
					Msg("Initial printer connection failed, waiting for /api/connect")
			}
			return nil
		})
	}

	return g.Wait()
}

// connectWithRetry calls connect until it succeeds or ctx is done. Only a
// *printer.ConnectionError is retried, with the policy's backoff and budget.
func connectWithRetry(ctx context.Context, policy retry.Policy, log zerolog.Logger, connect func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := connect(ctx)
		var connErr *printer.ConnectionError
		if err == nil || !errors.As(err, &connErr) {
			return err
		}
		if policy.Exhausted(attempt) {
			return err
		}

		log.Info().Err(err).
			Int("attempt", attempt).
			Dur("delay", policy.Delay(attempt)).
			Msg("Printer connection failed, retrying")
		if err := policy.Wait(ctx, attempt); err != nil {
			return err
		}
	}
}
