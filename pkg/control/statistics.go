// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"fmt"
	"sync"
	"time"
)

// TickCounters is a point-in-time copy of loop timing statistics
type TickCounters struct {
	Ticks          uint64
	Skipped        uint64
	Overruns       uint64
	DispatchErrors uint64

	MinElapsed   time.Duration
	MaxElapsed   time.Duration
	TotalElapsed time.Duration
}

// AvgElapsed returns the mean tick work time
func (c TickCounters) AvgElapsed() time.Duration {
	if c.Ticks == 0 {
		return 0
	}
	return c.TotalElapsed / time.Duration(c.Ticks)
}

// TickStatistics accumulates tick reports. Safe for concurrent use.
type TickStatistics struct {
	mu sync.Mutex
	c  TickCounters
}

// NewTickStatistics creates an empty tracker
func NewTickStatistics() *TickStatistics {
	return &TickStatistics{}
}

// Record adds one tick
func (s *TickStatistics) Record(r TickReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Ticks++
	if r.Skipped {
		s.c.Skipped++
	}
	if r.Overrun {
		s.c.Overruns++
	}
	s.c.DispatchErrors += uint64(r.DispatchErrors)

	if s.c.Ticks == 1 || r.Elapsed < s.c.MinElapsed {
		s.c.MinElapsed = r.Elapsed
	}
	if r.Elapsed > s.c.MaxElapsed {
		s.c.MaxElapsed = r.Elapsed
	}
	s.c.TotalElapsed += r.Elapsed
}

// Snapshot returns a copy of the counters
func (s *TickStatistics) Snapshot() TickCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// String returns a formatted summary
func (s *TickStatistics) String() string {
	c := s.Snapshot()

	result := "=== Loop Statistics ===\n"
	result += fmt.Sprintf("Ticks:           %8d\n", c.Ticks)
	result += fmt.Sprintf("Skipped:         %8d\n", c.Skipped)
	result += fmt.Sprintf("Overruns:        %8d\n", c.Overruns)
	if c.DispatchErrors > 0 {
		result += fmt.Sprintf("Dispatch Errors: %8d\n", c.DispatchErrors)
	}
	result += fmt.Sprintf("Elapsed:         min %v / avg %v / max %v\n", c.MinElapsed, c.AvgElapsed(), c.MaxElapsed)
	result += "=======================\n"
	return result
}
