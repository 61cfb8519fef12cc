// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package printer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/resinstat/pkg/sdcp"
)

func rawStatus(t *testing.T, body string) *sdcp.RawStatus {
	t.Helper()
	var st sdcp.RawStatus
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	return &st
}

func boolp(b bool) *bool { return &b }
func intp(i int) *int    { return &i }

func TestProgress(t *testing.T) {
	tests := []struct {
		current, total int
		want           float64
	}{
		{25, 100, 25},
		{1, 3, 100.0 / 3},
		{0, 0, 0},
		{10, 0, 0},
		{5, -1, 0},
		{100, 100, 100},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Progress(tt.current, tt.total), 1e-9, "%d/%d", tt.current, tt.total)
	}
}

func TestTimeRemaining(t *testing.T) {
	assert.Equal(t, int64(1500), TimeRemaining(500, 2000))
	assert.Equal(t, int64(0), TimeRemaining(2500, 2000))
	assert.Equal(t, int64(0), TimeRemaining(0, 0))
}

func TestInferUVLight(t *testing.T) {
	tests := []struct {
		name string
		in   UVEvidence
		want bool
	}{
		{
			name: "explicit off beats led status on",
			in:   UVEvidence{UVOn: boolp(false), UVLEDStatus: intp(1), Status: sdcp.StateExposing},
			want: false,
		},
		{
			name: "explicit on",
			in:   UVEvidence{UVOn: boolp(true), Status: sdcp.StateIdle},
			want: true,
		},
		{
			name: "led status beats exposure state",
			in:   UVEvidence{UVLEDStatus: intp(0), Status: sdcp.StateExposing},
			want: false,
		},
		{
			name: "led status on",
			in:   UVEvidence{UVLEDStatus: intp(1), Status: sdcp.StateIdle},
			want: true,
		},
		{
			name: "exposure state",
			in:   UVEvidence{Status: sdcp.StateLifting},
			want: true,
		},
		{
			name: "hot led while printing",
			in:   UVEvidence{Status: sdcp.StateHoming, MachineStatus: sdcp.MachinePrinting, TempOfUVLED: 31},
			want: true,
		},
		{
			name: "threshold is exclusive",
			in:   UVEvidence{Status: sdcp.StateHoming, MachineStatus: sdcp.MachinePrinting, TempOfUVLED: UVTempThreshold},
			want: false,
		},
		{
			name: "hot led while idle",
			in:   UVEvidence{Status: sdcp.StateIdle, MachineStatus: sdcp.MachineIdle, TempOfUVLED: 60},
			want: false,
		},
		{
			name: "nothing known",
			in:   UVEvidence{Status: sdcp.StateUnknown},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferUVLight(tt.in))
		})
	}
}

func TestStore_MergeRetainsAbsentFields(t *testing.T) {
	s := NewStore(nil)
	s.Merge(rawStatus(t, `{"TempOfBox":30,"TempTargetBox":35,"PrintInfo":{"Filename":"a.ctb","TotalLayer":40}}`))
	s.Merge(rawStatus(t, `{"TempOfUVLED":42}`))

	st := s.Snapshot()
	assert.Equal(t, 30.0, st.TempOfBox)
	assert.Equal(t, 35.0, st.TempTargetBox)
	assert.Equal(t, 42.0, st.TempOfUVLED)
	assert.Equal(t, "a.ctb", st.FileName)
	assert.Equal(t, 40, st.TotalLayers)
}

func TestStore_MergeRemapsStatus(t *testing.T) {
	s := NewStore(nil)
	assert.Equal(t, sdcp.StateUnknown, s.Snapshot().Status)

	s.Merge(rawStatus(t, `{"CurrentStatus":[1],"PrintInfo":{"Status":3}}`))
	assert.Equal(t, sdcp.StateExposing, s.Snapshot().Status)

	// Sub-status only, machine status retained
	s.Merge(rawStatus(t, `{"PrintInfo":{"Status":6}}`))
	assert.Equal(t, sdcp.StatePaused, s.Snapshot().Status)

	s.Merge(rawStatus(t, `{"PrintInfo":{"ErrorNumber":12}}`))
	assert.Equal(t, sdcp.StateError, s.Snapshot().Status)

	s.Merge(rawStatus(t, `{"CurrentStatus":[0],"PrintInfo":{"ErrorNumber":0}}`))
	assert.Equal(t, sdcp.StateIdle, s.Snapshot().Status)

	// Telemetry without status codes leaves the status alone
	s.Apply(Transition{Status: sdcp.StatePrinting})
	s.Merge(rawStatus(t, `{"TempOfBox":28}`))
	assert.Equal(t, sdcp.StatePrinting, s.Snapshot().Status)
}

func TestStore_ExplicitUVFlagRetained(t *testing.T) {
	s := NewStore(nil)
	s.Merge(rawStatus(t, `{"UVOn":false,"UVLEDStatus":1,"CurrentStatus":[1],"PrintInfo":{"Status":3}}`))
	assert.False(t, s.Snapshot().UVLightOn)

	s.Merge(rawStatus(t, `{"TempOfUVLED":50}`))
	assert.False(t, s.Snapshot().UVLightOn, "explicit flag still wins after later frames")

	s.Merge(rawStatus(t, `{"UVOn":1}`))
	assert.True(t, s.Snapshot().UVLightOn)
}

func TestStore_LastUpdateMonotonic(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewStore(func() time.Time { return now })

	s.Merge(rawStatus(t, `{"TempOfBox":1}`))
	first := s.Snapshot().LastUpdate
	assert.Equal(t, now, first)

	now = time.Unix(900, 0)
	s.Merge(rawStatus(t, `{"TempOfBox":2}`))
	assert.Equal(t, first, s.Snapshot().LastUpdate)

	now = time.Unix(1100, 0)
	s.ResetProgress()
	assert.Equal(t, now, s.Snapshot().LastUpdate)
}

func TestStore_ResetProgress(t *testing.T) {
	s := NewStore(nil)
	s.Merge(rawStatus(t, `{"CurrentStatus":[1],"TempOfUVLED":44,"TempOfBox":29,"ReleaseFilm":12,
		"PrintInfo":{"Status":3,"CurrentLayer":50,"TotalLayer":100,"CurrentTicks":10,"TotalTicks":90,"Filename":"x.ctb"}}`))
	before := s.Version()

	after := s.ResetProgress()
	assert.Greater(t, after, before)

	st := s.Snapshot()
	assert.Equal(t, 0, st.CurrentLayer)
	assert.Equal(t, 0.0, st.Progress)
	assert.Equal(t, int64(0), st.TimeRemaining)
	assert.Equal(t, 44.0, st.TempOfUVLED)
	assert.Equal(t, 29.0, st.TempOfBox)
	assert.Equal(t, 12, st.ReleaseFilm)
	assert.Equal(t, 100, st.TotalLayers)
	assert.Equal(t, "x.ctb", st.FileName)
}

func TestStore_RestoreGuardedByVersion(t *testing.T) {
	s := NewStore(nil)
	s.Merge(rawStatus(t, `{"CurrentStatus":[1],"PrintInfo":{"Status":3}}`))

	prev, v := s.Apply(Transition{Status: sdcp.StatePaused})
	assert.Equal(t, sdcp.StatePaused, s.Snapshot().Status)
	restored, ok := s.Restore(prev, v)
	assert.True(t, ok)
	assert.Equal(t, sdcp.StateExposing, s.Snapshot().Status)
	assert.Greater(t, restored, v, "restore is a mutation")
	assert.Equal(t, s.Version(), restored)

	prev, v = s.Apply(Transition{Status: sdcp.StatePaused})
	s.Merge(rawStatus(t, `{"PrintInfo":{"Status":6}}`))
	_, ok = s.Restore(prev, v)
	assert.False(t, ok)
	assert.Equal(t, sdcp.StatePaused, s.Snapshot().Status)
}

func TestStore_RestoreChainsStackedTransitions(t *testing.T) {
	s := NewStore(nil)
	s.Merge(rawStatus(t, `{"CurrentStatus":[1],"PrintInfo":{"Status":3}}`))

	pausePrev, pauseV := s.Apply(Transition{Status: sdcp.StatePaused})
	resumePrev, resumeV := s.Apply(Transition{Status: sdcp.StatePrinting})
	require.Equal(t, pauseV, resumePrev.Version)

	restored, ok := s.Restore(resumePrev, resumeV)
	require.True(t, ok)
	assert.Equal(t, sdcp.StatePaused, s.Snapshot().Status)

	_, ok = s.Restore(pausePrev, pauseV)
	assert.False(t, ok, "the older apply version is stale after a restore")

	_, ok = s.Restore(pausePrev, restored)
	assert.True(t, ok)
	assert.Equal(t, sdcp.StateExposing, s.Snapshot().Status)
}

func TestStore_MergeAttributes(t *testing.T) {
	s := NewStore(nil)
	name, fw := "Mars 4", "V4.1"
	s.MergeAttributes(&sdcp.RawAttributes{Name: &name, FirmwareVersion: &fw}, "mb9")

	st := s.Snapshot()
	assert.Equal(t, "Mars 4", st.Model)
	assert.Equal(t, "V4.1", st.FirmwareVersion)
	assert.Equal(t, "mb9", st.MainboardID)
}

func TestStore_OnChange(t *testing.T) {
	s := NewStore(nil)
	calls := 0
	s.OnChange(func() { calls++ })

	s.Merge(rawStatus(t, `{}`))
	s.ResetProgress()
	s.Merge(nil)
	assert.Equal(t, 2, calls)
}

func TestState_JSONFieldNames(t *testing.T) {
	s := NewStore(nil)
	s.Merge(rawStatus(t, `{"CurrentStatus":[1],"PrintInfo":{"Status":3,"CurrentLayer":1,"TotalLayer":4}}`))

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	for _, key := range []string{"status", "progress", "currentLayer", "totalLayers", "timeRemaining", "uvLightOn", "tempOfUVLED", "lastUpdate"} {
		assert.Contains(t, out, key)
	}
	assert.Equal(t, "exposing", out["status"])
	assert.NotContains(t, out, "uvOn")
}
