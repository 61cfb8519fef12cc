// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import "github.com/Thermoquad/resinstat/pkg/sdcp"

// UVTempThreshold is the UV LED temperature (°C) above which a printing
// machine is assumed to be exposing.
const UVTempThreshold = 30.0

// Progress returns current/total as a percentage, or 0 when total is unknown
func Progress(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(current) / float64(total) * 100
}

// TimeRemaining returns totalTicks-currentTicks, clamped at zero
func TimeRemaining(currentTicks, totalTicks int64) int64 {
	if r := totalTicks - currentTicks; r > 0 {
		return r
	}
	return 0
}

// UVEvidence is the input to InferUVLight. Nil flags were never reported.
type UVEvidence struct {
	UVOn          *bool
	UVLEDStatus   *int
	Status        sdcp.State
	MachineStatus int
	TempOfUVLED   float64
}

// InferUVLight decides whether the UV source is lit. The first available
// signal wins: explicit UVOn, explicit UVLEDStatus, exposure-like status,
// then the LED temperature of a printing machine.
func InferUVLight(e UVEvidence) bool {
	switch {
	case e.UVOn != nil:
		return *e.UVOn
	case e.UVLEDStatus != nil:
		return *e.UVLEDStatus == 1
	case sdcp.IsExposureState(e.Status):
		return true
	}
	return e.MachineStatus == sdcp.MachinePrinting && e.TempOfUVLED > UVTempThreshold
}
