// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/resinstat/pkg/printer"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Send a print command to the printer",
	Long: `Connect straight to the printer, send one command and wait for the
printer's result.

Exit codes:
  0  command accepted
  1  command rejected or timed out
  2  printer unreachable or link lost`,
}

// controlAction is one control subcommand
type controlAction struct {
	use   string
	short string
	args  cobra.PositionalArgs
	run   func(ctx context.Context, e *printer.Engine, args []string) error
	done  string
}

var controlActions = []controlAction{
	{
		use:   "pause",
		short: "Pause the running job",
		args:  cobra.NoArgs,
		run:   func(ctx context.Context, e *printer.Engine, _ []string) error { return e.Pause(ctx) },
		done:  "Print paused",
	},
	{
		use:   "resume",
		short: "Resume a paused job",
		args:  cobra.NoArgs,
		run:   func(ctx context.Context, e *printer.Engine, _ []string) error { return e.Resume(ctx) },
		done:  "Print resumed",
	},
	{
		use:   "stop",
		short: "Stop the running job",
		args:  cobra.NoArgs,
		run:   func(ctx context.Context, e *printer.Engine, _ []string) error { return e.Stop(ctx) },
		done:  "Print stopped",
	},
	{
		use:   "refresh",
		short: "Ask the printer for a status frame",
		args:  cobra.NoArgs,
		run:   func(ctx context.Context, e *printer.Engine, _ []string) error { return e.RefreshStatus(ctx) },
		done:  "Status refreshed",
	},
	{
		use:   "start FILE",
		short: "Start printing a file stored on the printer",
		args:  cobra.ExactArgs(1),
		run: func(ctx context.Context, e *printer.Engine, args []string) error {
			return e.StartPrint(ctx, args[0])
		},
		done: "Print started",
	},
}

func init() {
	for _, action := range controlActions {
		controlCmd.AddCommand(&cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  action.args,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDevice(cmd.Context(), nil, func(ctx context.Context, e *printer.Engine) error {
					if err := action.run(ctx, e, args); err != nil {
						return err
					}
					fmt.Println(action.done)
					return nil
				})
			},
		})
	}
	rootCmd.AddCommand(controlCmd)
}
