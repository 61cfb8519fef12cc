// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/resinstat/pkg/api"
	"github.com/Thermoquad/resinstat/pkg/client"
)

var (
	monitorServer string
	monitorText   bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running daemon",
	Long: `Follow a running resinstat daemon's push stream.

On a terminal this opens an interactive view with job progress, temperatures
and an event log. Keys: p=pause r=resume s=stop c=connect q=quit.

When stdout is not a terminal (or with --text) each state change is printed
as plain text instead.

The stream reconnects with backoff and gives up after five consecutive
failures.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&monitorServer, "server", "s", "http://localhost:3000", "Daemon base URL")
	monitorCmd.Flags().BoolVar(&monitorText, "text", false, "Plain text output even on a terminal")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(monitorServer, client.WithLogger(logger))
	if err != nil {
		return err
	}

	if monitorText || !term.IsTerminal(int(os.Stdout.Fd())) {
		return monitorPlain(ctx, c)
	}
	return monitorTUI(ctx, c)
}

// monitorPlain prints each new state as text
func monitorPlain(ctx context.Context, c *client.Client) error {
	var lastVersion uint64
	var lastConnected bool
	err := c.Stream(ctx, func(st api.StatusPayload) {
		if st.PrinterData.Version == lastVersion && st.Connected == lastConnected {
			return
		}
		lastVersion, lastConnected = st.PrinterData.Version, st.Connected

		fmt.Printf("--- %s (%s) ---\n", valueOr(st.PrinterIP, "no printer"), st.Link.State)
		fmt.Print(formatState(st.PrinterData))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func monitorTUI(ctx context.Context, c *client.Client) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := initialMonitorModel(ctx, c, monitorServer)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	streamDone := make(chan error, 1)
	go func() {
		err := c.Stream(ctx, func(st api.StatusPayload) {
			p.Send(statusMsg(st))
		})
		p.Send(streamEndedMsg{err: err})
		streamDone <- err
	}()

	_, runErr := p.Run()
	cancel()
	streamErr := <-streamDone

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	if errors.Is(streamErr, client.ErrGaveUp) {
		return streamErr
	}
	return nil
}
