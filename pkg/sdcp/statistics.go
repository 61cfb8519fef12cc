// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sdcp

import (
	"fmt"
	"time"
)

// Statistics tracks inbound frame counts and rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	StatusFrames    uint64
	AttributeFrames uint64
	Results         uint64
	Rejections      uint64
	Notices         uint64
	MalformedFrames uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // malformed frames/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts a decoded frame
func (s *Statistics) Update(f Frame) {
	s.TotalFrames++

	switch f.Kind {
	case KindStatus:
		s.StatusFrames++
	case KindAttributes:
		s.AttributeFrames++
	case KindResult:
		s.Results++
		if f.Result != nil && !f.Result.OK() {
			s.Rejections++
		}
	case KindNotice:
		s.Notices++
	default:
		s.MalformedFrames++
	}

	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.MalformedFrames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var malformedPercent float64
	if s.TotalFrames > 0 {
		malformedPercent = float64(s.MalformedFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Status Frames:   %8d\n", s.StatusFrames)
	if s.AttributeFrames > 0 {
		result += fmt.Sprintf("Attributes:      %8d\n", s.AttributeFrames)
	}
	result += fmt.Sprintf("Results:         %8d\n", s.Results)
	if s.Rejections > 0 {
		result += fmt.Sprintf("  Rejected:         %5d\n", s.Rejections)
	}
	if s.Notices > 0 {
		result += fmt.Sprintf("Notices:         %8d\n", s.Notices)
	}
	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, malformedPercent)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
