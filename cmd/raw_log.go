// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/resinstat/pkg/printer"
	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

var (
	rawStatsInterval time.Duration
	rawPollInterval  time.Duration
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display SDCP frames as they arrive from the
printer, with periodic frame statistics.

The link reconnects with backoff when it drops. Press Ctrl+C to exit.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rawLogCmd.Flags().DurationVar(&rawStatsInterval, "stats-interval", 30*time.Second, "Statistics interval (0 disables)")
	rawLogCmd.Flags().DurationVar(&rawPollInterval, "poll", 0, "Request a status frame at this interval (0 disables)")
	rootCmd.AddCommand(rawLogCmd)
}

// frameLog prints frames and keeps statistics. OnFrame runs on the receive
// loop while the statistics ticker runs elsewhere.
type frameLog struct {
	mu    sync.Mutex
	stats *sdcp.Statistics
}

func (l *frameLog) onFrame(f sdcp.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats.Update(f)
	fmt.Print(sdcp.FormatFrame(f))
}

func (l *frameLog) printStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Print(l.stats.String())
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rawPollInterval > 0 {
		cfg.Printer.PollInterval = rawPollInterval
	}
	log := &frameLog{stats: sdcp.NewStatistics()}

	fmt.Printf("Resinstat - Raw Frame Log\n")
	fmt.Printf("Printer: %s\n", cfg.Printer.Address)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err := withDevice(ctx, log.onFrame, func(ctx context.Context, engine *printer.Engine) error {
		var tick <-chan time.Time
		if rawStatsInterval > 0 {
			ticker := time.NewTicker(rawStatsInterval)
			defer ticker.Stop()
			tick = ticker.C
		}

		sub := engine.Subscribe()
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
				log.printStats()
			case _, ok := <-sub.C():
				if !ok {
					return nil
				}
				if link := engine.Link(); link.State == printer.Disconnected {
					return fmt.Errorf("printer link lost: %w", printer.ErrDeviceUnavailable)
				}
			}
		}
	})

	log.printStats()
	return err
}
