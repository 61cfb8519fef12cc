// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/resinstat/pkg/printer"
	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the printer state once",
	Long: `Connect straight to the printer, request a status frame and print the
resulting state.

Exit codes:
  0  state retrieved
  1  status request rejected or timed out, or the printer reports an error
  2  printer unreachable`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the state as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withDevice(cmd.Context(), nil, func(ctx context.Context, engine *printer.Engine) error {
		st, err := fetchStatus(ctx, engine)
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return err
			}
		} else {
			fmt.Print(formatState(st))
		}

		if st.Status == sdcp.StateError {
			return &exitError{code: exitCommand, err: fmt.Errorf("printer reports error %d", st.ErrorNumber)}
		}
		return nil
	})
}

// fetchStatus requests a status frame and waits until one has been merged
func fetchStatus(ctx context.Context, engine *printer.Engine) (printer.State, error) {
	sub := engine.Subscribe()
	defer sub.Close()

	if err := engine.RefreshStatus(ctx); err != nil {
		return printer.State{}, err
	}

	// The result can arrive before the status frame it answers
	deadline := time.After(cfg.Printer.CommandTimeout)
	for {
		st := engine.Snapshot()
		if st.Status != sdcp.StateUnknown {
			return st, nil
		}
		select {
		case <-sub.C():
		case <-deadline:
			if !st.LastUpdate.IsZero() {
				return st, nil
			}
			return st, fmt.Errorf("no status frame received: %w", printer.ErrCommandTimeout)
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}
