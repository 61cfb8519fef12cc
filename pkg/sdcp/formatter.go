// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdcp

import (
	"fmt"
	"strings"
)

// FormatFrame formats a decoded frame into a human-readable string
func FormatFrame(f Frame) string {
	timestamp := f.Received.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s topic=%s\n", timestamp, strings.ToUpper(f.Kind.String()), f.Topic)

	switch f.Kind {
	case KindStatus:
		result += FormatStatus(f.Status)
	case KindAttributes:
		result += formatAttributes(f.Attributes)
	case KindResult:
		result += FormatResult(f.Result)
	case KindMalformed:
		result += fmt.Sprintf("  Error: %v\n", f.Err)
		result += formatRaw(f.Raw)
	}

	return result
}

// FormatStatus formats the fields present in a status object
func FormatStatus(s *RawStatus) string {
	if s == nil {
		return "  (no status)\n"
	}

	var b strings.Builder
	if machine, ok := s.CurrentStatus.First(); ok {
		fmt.Fprintf(&b, "  Machine: %d", machine)
		if s.PreviousStatus != nil {
			fmt.Fprintf(&b, " (previous %d)", *s.PreviousStatus)
		}
		b.WriteString("\n")
	}

	if p := s.PrintInfo; p != nil {
		if p.Status != nil {
			fmt.Fprintf(&b, "  Print: %s (%d)\n", PrintState(*p.Status), *p.Status)
		}
		if layer, total := p.Layer(), p.TotalLayer; layer != nil || total != nil {
			fmt.Fprintf(&b, "  Layer: %s/%s\n", optInt(layer), optInt(total))
		}
		if p.CurrentTicks != nil || p.TotalTicks != nil {
			fmt.Fprintf(&b, "  Ticks: %s/%s\n", optInt64(p.CurrentTicks), optInt64(p.TotalTicks))
		}
		if file := p.File(); file != nil {
			fmt.Fprintf(&b, "  File: %s\n", *file)
		}
		if p.ErrorNumber != nil && *p.ErrorNumber != 0 {
			fmt.Fprintf(&b, "  Error number: %d\n", *p.ErrorNumber)
		}
	}

	if s.TempOfUVLED != nil {
		fmt.Fprintf(&b, "  UV LED: %.1f°C\n", *s.TempOfUVLED)
	}
	if s.TempOfBox != nil {
		fmt.Fprintf(&b, "  Enclosure: %.1f°C", *s.TempOfBox)
		if s.TempTargetBox != nil {
			fmt.Fprintf(&b, " (target %.1f°C)", *s.TempTargetBox)
		}
		b.WriteString("\n")
	}
	if s.UVOn != nil {
		fmt.Fprintf(&b, "  UVOn: %t\n", bool(*s.UVOn))
	}
	if s.UVLEDStatus != nil {
		fmt.Fprintf(&b, "  UVLEDStatus: %d\n", *s.UVLEDStatus)
	}
	if s.ReleaseFilm != nil {
		fmt.Fprintf(&b, "  Release film cycles: %d\n", *s.ReleaseFilm)
	}
	if s.PrintScreen != nil {
		fmt.Fprintf(&b, "  Screen usage: %ds\n", *s.PrintScreen)
	}

	return b.String()
}

// FormatResult formats a command result
func FormatResult(r *Result) string {
	if r == nil {
		return "  (no result)\n"
	}
	outcome := "OK"
	if !r.OK() {
		outcome = fmt.Sprintf("REJECTED result=%d error=%d", r.Code, r.ErrorCode)
	}
	return fmt.Sprintf("  Cmd: %s (%d) RequestID=%s %s\n", CommandName(r.Cmd), r.Cmd, r.RequestID, outcome)
}

func formatAttributes(a *RawAttributes) string {
	if a == nil {
		return "  (no attributes)\n"
	}
	var b strings.Builder
	if a.Name != nil {
		fmt.Fprintf(&b, "  Name: %s\n", *a.Name)
	}
	if a.MachineName != nil {
		fmt.Fprintf(&b, "  Machine: %s\n", *a.MachineName)
	}
	if a.FirmwareVersion != nil {
		fmt.Fprintf(&b, "  Firmware: %s\n", *a.FirmwareVersion)
	}
	if a.MainboardID != nil {
		fmt.Fprintf(&b, "  Mainboard: %s\n", *a.MainboardID)
	}
	return b.String()
}

// formatRaw dumps a truncated copy of an undecodable frame
func formatRaw(raw []byte) string {
	const maxRaw = 160
	s := string(raw)
	if len(s) > maxRaw {
		s = s[:maxRaw] + "..."
	}
	return fmt.Sprintf("  Raw: %q\n", s)
}

func optInt(v *int) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *v)
}

func optInt64(v *int64) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *v)
}
