// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/resinstat/pkg/printer"
)

// formatTicks formats a tick count in milliseconds to a human-friendly string
func formatTicks(ms int64) string {
	if ms <= 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	add := func(n int64, unit string) {
		switch {
		case n == 1:
			parts = append(parts, "1 "+unit)
		case n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
		}
	}
	add(days, "day")
	add(hours, "hour")
	add(minutes, "minute")
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

// formatState renders a snapshot as plain text
func formatState(st printer.State) string {
	var s strings.Builder

	fmt.Fprintf(&s, "Status:     %s\n", st.Status)
	if st.Model != "" || st.FirmwareVersion != "" {
		fmt.Fprintf(&s, "Printer:    %s (firmware %s)\n", valueOr(st.Model, "unknown model"), valueOr(st.FirmwareVersion, "?"))
	}
	if st.FileName != "" {
		fmt.Fprintf(&s, "File:       %s\n", st.FileName)
	}
	if st.TotalLayers > 0 {
		fmt.Fprintf(&s, "Layer:      %d / %d (%.1f%%)\n", st.CurrentLayer, st.TotalLayers, st.Progress)
	}
	if st.TotalTicks > 0 {
		fmt.Fprintf(&s, "Elapsed:    %s\n", formatTicks(st.Elapsed))
		fmt.Fprintf(&s, "Remaining:  %s\n", formatTicks(st.TimeRemaining))
	}

	uv := "off"
	if st.UVLightOn {
		uv = "on"
	}
	fmt.Fprintf(&s, "UV LED:     %.1f °C (%s)\n", st.TempOfUVLED, uv)
	fmt.Fprintf(&s, "Enclosure:  %.1f °C (target %.1f °C)\n", st.TempOfBox, st.TempTargetBox)
	if st.ErrorNumber != 0 {
		fmt.Fprintf(&s, "Error:      %d\n", st.ErrorNumber)
	}
	if !st.LastUpdate.IsZero() {
		fmt.Fprintf(&s, "Updated:    %s\n", st.LastUpdate.Format("15:04:05"))
	}
	return s.String()
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
