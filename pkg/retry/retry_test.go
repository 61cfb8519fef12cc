// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Base: time.Second, Max: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
		{200, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	bounded := Policy{Base: time.Second, Max: time.Minute, MaxAttempts: 5}
	assert.False(t, bounded.Exhausted(5))
	assert.True(t, bounded.Exhausted(6))

	unbounded := Default
	assert.False(t, unbounded.Exhausted(1_000_000))
}

func TestPolicy_WaitCancelled(t *testing.T) {
	p := Policy{Base: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPolicy_WaitElapses(t *testing.T) {
	p := Policy{Base: 5 * time.Millisecond, Max: 5 * time.Millisecond}
	assert.NoError(t, p.Wait(context.Background(), 3))
}
