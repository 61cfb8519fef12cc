// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package retry provides the capped exponential backoff shared by the
// device link and the consumer stream.
package retry

import (
	"context"
	"time"
)

// Policy describes a capped exponential backoff
type Policy struct {
	Base time.Duration
	Max  time.Duration

	// MaxAttempts bounds consecutive failures. Zero retries forever.
	MaxAttempts int
}

// Default is the device link policy: 1s doubling to 30s, unbounded
var Default = Policy{Base: time.Second, Max: 30 * time.Second}

// Delay returns the wait before the given 1-based attempt:
// min(Base * 2^(attempt-1), Max)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max || d <= 0 {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// Exhausted reports whether attempt exceeds the budget
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}

// Wait sleeps for Delay(attempt) or until ctx is done
func (p Policy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Delay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
