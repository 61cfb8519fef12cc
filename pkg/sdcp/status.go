// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdcp

// State is the canonical semantic status of the printer.
type State string

const (
	StateIdle         State = "idle"
	StateHoming       State = "homing"
	StateExposing     State = "exposing"
	StateDropping     State = "dropping"
	StateLifting      State = "lifting"
	StatePausing      State = "pausing"
	StatePaused       State = "paused"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
	StateComplete     State = "complete"
	StateFileChecking State = "file_checking"
	StateError        State = "error"
	StateUnknown      State = "unknown"

	// StatePrinting is never produced by the mapper. It is set locally when a
	// resume is issued and lasts until the next status frame.
	StatePrinting State = "printing"
)

var machineStates = map[int]State{
	MachineIdle:         StateIdle,
	MachineTransferring: StateFileChecking,
}

var printStates = map[int]State{
	PrintIdle:         StateIdle,
	PrintHoming:       StateHoming,
	PrintDropping:     StateDropping,
	PrintExposing:     StateExposing,
	PrintLifting:      StateLifting,
	PrintPausing:      StatePausing,
	PrintPaused:       StatePaused,
	PrintStopping:     StateStopping,
	PrintStopped:      StateStopped,
	PrintComplete:     StateComplete,
	PrintFileChecking: StateFileChecking,
}

// MachineState maps a machine status code. Printing defers to the print
// sub-status, so it maps to StateUnknown here.
func MachineState(code int) State {
	if s, ok := machineStates[code]; ok {
		return s
	}
	return StateUnknown
}

// PrintState maps a print sub-status code.
func PrintState(code int) State {
	if s, ok := printStates[code]; ok {
		return s
	}
	return StateUnknown
}

// MapStatus resolves the canonical state from the machine status, the print
// sub-status and the print error number. It never fails: codes without a
// table entry map to StateUnknown.
func MapStatus(machine, print, errorNumber int) State {
	if machine != MachinePrinting {
		return MachineState(machine)
	}
	if errorNumber != 0 {
		return StateError
	}
	return PrintState(print)
}

// exposureStates are the states during which the UV source is expected to be lit
var exposureStates = map[State]bool{
	StateExposing: true,
	StateLifting:  true,
	StatePausing:  true,
}

// IsExposureState reports whether s belongs to the exposure-like state set
func IsExposureState(s State) bool {
	return exposureStates[s]
}

// IsActive reports whether s describes a job in progress
func (s State) IsActive() bool {
	switch s {
	case StateHoming, StateExposing, StateDropping, StateLifting, StatePausing, StatePaused, StatePrinting:
		return true
	}
	return false
}
