// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Resinstat - SDCP Resin Printer Monitor
//
// A daemon and CLI that keeps one consistent view of an SDCP resin
// printer's state and serves it to dashboards.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/resinstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
