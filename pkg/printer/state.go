// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"sync"
	"time"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

// State is the canonical printer record. Values are copies; holding one
// never observes a later merge.
type State struct {
	Status         sdcp.State `json:"status"`
	MachineStatus  int        `json:"machineStatus"`
	PreviousStatus int        `json:"previousStatus"`
	PrintStatus    int        `json:"printStatus"`

	CurrentLayer int    `json:"currentLayer"`
	TotalLayers  int    `json:"totalLayers"`
	CurrentTicks int64  `json:"currentTicks"`
	TotalTicks   int64  `json:"totalTicks"`
	FileName     string `json:"fileName"`
	TaskID       string `json:"taskId"`
	ErrorNumber  int    `json:"errorNumber"`

	TempOfUVLED   float64 `json:"tempOfUVLED"`
	TempOfBox     float64 `json:"tempOfBox"`
	TempTargetBox float64 `json:"tempTargetBox"`
	ReleaseFilm   int     `json:"releaseFilm"`
	PrintScreen   int     `json:"printScreen"`
	TimeLapse     int     `json:"timeLapse"`

	UVLightOn     bool    `json:"uvLightOn"`
	Progress      float64 `json:"progress"`
	TimeRemaining int64   `json:"timeRemaining"`
	Elapsed       int64   `json:"elapsed"`

	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
	MainboardID     string `json:"mainboardId,omitempty"`

	LastUpdate time.Time `json:"lastUpdate"`
	Version    uint64    `json:"version"`

	// Explicit UV flags, kept once reported
	uvOn        optInt
	uvLEDStatus optInt
}

type optInt struct {
	set   bool
	value int
}

func (o optInt) boolPtr() *bool {
	if !o.set {
		return nil
	}
	v := o.value != 0
	return &v
}

func (o optInt) intPtr() *int {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// Transition is a local state change applied ahead of device confirmation
type Transition struct {
	Status        sdcp.State
	ResetProgress bool
}

// transitionFor returns the optimistic transition of a command, if it has one
func transitionFor(cmd int) (Transition, bool) {
	switch cmd {
	case sdcp.CmdPausePrint:
		return Transition{Status: sdcp.StatePaused}, true
	case sdcp.CmdResume:
		return Transition{Status: sdcp.StatePrinting}, true
	case sdcp.CmdStopPrint:
		return Transition{Status: sdcp.StateIdle, ResetProgress: true}, true
	}
	return Transition{}, false
}

// Store holds the canonical state. Every mutation happens under one lock
// and bumps Version, so a Snapshot is never partially merged.
type Store struct {
	mu       sync.RWMutex
	state    State
	now      func() time.Time
	onChange func()
}

// NewStore creates an empty store. A nil clock uses time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		state: State{Status: sdcp.StateUnknown},
		now:   now,
	}
}

// OnChange registers a callback run after every mutation, outside the lock
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Version returns the current mutation counter
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Version
}

// Merge folds a status object into the state. Fields absent from raw keep
// their previous value. Returns the new version.
func (s *Store) Merge(raw *sdcp.RawStatus) uint64 {
	if raw == nil {
		return s.Version()
	}
	return s.mutate(func(st *State) {
		mergeStatus(st, raw)
	})
}

// MergeAttributes folds device attributes into the state
func (s *Store) MergeAttributes(a *sdcp.RawAttributes, mainboardID string) uint64 {
	return s.mutate(func(st *State) {
		if a != nil {
			switch {
			case a.MachineName != nil:
				st.Model = *a.MachineName
			case a.Name != nil:
				st.Model = *a.Name
			}
			if a.FirmwareVersion != nil {
				st.FirmwareVersion = *a.FirmwareVersion
			}
			if a.MainboardID != nil {
				st.MainboardID = *a.MainboardID
			}
		}
		if mainboardID != "" {
			st.MainboardID = mainboardID
		}
	})
}

// ResetProgress zeroes the job progress fields and leaves everything else
func (s *Store) ResetProgress() uint64 {
	return s.mutate(resetProgress)
}

// Apply performs t and returns the state before it along with the version
// that t produced. The pair is what Restore needs to undo it.
func (s *Store) Apply(t Transition) (State, uint64) {
	var prev State
	version := s.mutate(func(st *State) {
		prev = *st
		applyTransition(st, t)
	})
	return prev, version
}

// Restore puts prev back if nothing has changed the state since version.
// It returns the version the restore produced and whether it happened.
func (s *Store) Restore(prev State, version uint64) (uint64, bool) {
	s.mu.Lock()
	if s.state.Version != version {
		s.mu.Unlock()
		return 0, false
	}
	stamp := s.touch()
	s.state = prev
	s.state.LastUpdate = stamp
	s.state.Version = version + 1
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
	return version + 1, true
}

func (s *Store) mutate(fn func(*State)) uint64 {
	s.mu.Lock()
	fn(&s.state)
	derive(&s.state)
	s.state.LastUpdate = s.touch()
	s.state.Version++
	version := s.state.Version
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return version
}

// touch returns the next lastUpdate value, never earlier than the current one
func (s *Store) touch() time.Time {
	now := s.now()
	if now.Before(s.state.LastUpdate) {
		return s.state.LastUpdate
	}
	return now
}

func mergeStatus(st *State, raw *sdcp.RawStatus) {
	remap := false

	if machine, ok := raw.CurrentStatus.First(); ok {
		st.MachineStatus = machine
		remap = true
	}
	if raw.PreviousStatus != nil {
		st.PreviousStatus = *raw.PreviousStatus
	}

	if p := raw.PrintInfo; p != nil {
		if p.Status != nil {
			st.PrintStatus = *p.Status
			remap = true
		}
		if p.ErrorNumber != nil {
			st.ErrorNumber = *p.ErrorNumber
			remap = true
		}
		if layer := p.Layer(); layer != nil {
			st.CurrentLayer = *layer
		}
		if p.TotalLayer != nil {
			st.TotalLayers = *p.TotalLayer
		}
		if p.CurrentTicks != nil {
			st.CurrentTicks = *p.CurrentTicks
		}
		if p.TotalTicks != nil {
			st.TotalTicks = *p.TotalTicks
		}
		if file := p.File(); file != nil {
			st.FileName = *file
		}
		if p.TaskID != nil {
			st.TaskID = *p.TaskID
		}
	}

	if raw.TempOfUVLED != nil {
		st.TempOfUVLED = *raw.TempOfUVLED
	}
	if raw.TempOfBox != nil {
		st.TempOfBox = *raw.TempOfBox
	}
	if raw.TempTargetBox != nil {
		st.TempTargetBox = *raw.TempTargetBox
	}
	if raw.ReleaseFilm != nil {
		st.ReleaseFilm = *raw.ReleaseFilm
	}
	if raw.PrintScreen != nil {
		st.PrintScreen = *raw.PrintScreen
	}
	if raw.TimeLapseStatus != nil {
		st.TimeLapse = *raw.TimeLapseStatus
	}
	if raw.UVOn != nil {
		st.uvOn = optInt{set: true}
		if *raw.UVOn {
			st.uvOn.value = 1
		}
	}
	if raw.UVLEDStatus != nil {
		st.uvLEDStatus = optInt{set: true, value: *raw.UVLEDStatus}
	}

	if remap {
		st.Status = sdcp.MapStatus(st.MachineStatus, st.PrintStatus, st.ErrorNumber)
	}
}

func applyTransition(st *State, t Transition) {
	if t.Status != "" {
		st.Status = t.Status
	}
	if t.ResetProgress {
		resetProgress(st)
	}
}

// resetProgress clears the tick pair too, so derive yields zero remaining
func resetProgress(st *State) {
	st.CurrentLayer = 0
	st.CurrentTicks = 0
	st.TotalTicks = 0
	st.Progress = 0
	st.TimeRemaining = 0
	st.Elapsed = 0
}

// derive recomputes the signals the printer does not report directly
func derive(st *State) {
	st.Progress = Progress(st.CurrentLayer, st.TotalLayers)
	st.Elapsed = st.CurrentTicks
	st.TimeRemaining = TimeRemaining(st.CurrentTicks, st.TotalTicks)
	st.UVLightOn = InferUVLight(UVEvidence{
		UVOn:          st.uvOn.boolPtr(),
		UVLEDStatus:   st.uvLEDStatus.intPtr(),
		Status:        st.Status,
		MachineStatus: st.MachineStatus,
		TempOfUVLED:   st.TempOfUVLED,
	})
}
