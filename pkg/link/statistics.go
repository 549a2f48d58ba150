// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/servolink/pkg/lkproto"
)

// Counters is a point-in-time copy of link statistics
type Counters struct {
	StartTime time.Time

	Transactions   uint64
	Replies        uint64 // validated responses
	Sends          uint64 // completed exchanges that expect no reply
	Timeouts       uint64
	HeaderErrors   uint64
	ChecksumErrors uint64
	WriteErrors    uint64 // frame build, discard and write failures
	ReadErrors     uint64 // channel failures while reading a reply
	DroppedSends   uint64 // fire-and-forget failures

	TransactionRate float64 // per second
	ErrorRate       float64 // per second
}

// Errors returns the total number of failed exchanges
func (c Counters) Errors() uint64 {
	return c.Timeouts + c.HeaderErrors + c.ChecksumErrors + c.WriteErrors + c.ReadErrors
}

// Statistics tracks exchange outcomes for one or more sessions.
// Safe for concurrent use.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

// Update records the outcome of one exchange. expectReply tells a
// validated response apart from a send that completed without one.
func (s *Statistics) Update(expectReply bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Transactions++

	var (
		timeout  *lkproto.TimeoutError
		header   *lkproto.InvalidHeaderError
		checksum *lkproto.ChecksumError
		tr       *TransportError
	)

	switch {
	case err == nil && expectReply:
		s.c.Replies++
	case err == nil:
		s.c.Sends++
	case errors.As(err, &timeout):
		s.c.Timeouts++
	case errors.As(err, &header):
		s.c.HeaderErrors++
	case errors.As(err, &checksum):
		s.c.ChecksumErrors++
	case errors.As(err, &tr) && tr.Op == OpRead:
		s.c.ReadErrors++
	default:
		s.c.WriteErrors++
	}
}

// Dropped records a fire-and-forget send that failed
func (s *Statistics) Dropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.DroppedSends++
}

// Snapshot returns a copy of the counters with rates filled in
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.c
	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.TransactionRate = float64(c.Transactions) / elapsed
		c.ErrorRate = float64(c.Errors()) / elapsed
	}
	return c
}

// Reset resets all counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Counters{StartTime: time.Now()}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	c := s.Snapshot()

	var okPercent float64
	if c.Transactions > 0 {
		okPercent = float64(c.Transactions-c.Errors()) * 100.0 / float64(c.Transactions)
	}

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", time.Since(c.StartTime).Seconds())
	result += fmt.Sprintf("Transactions:    %8d (%.1f%% ok)\n", c.Transactions, okPercent)
	result += fmt.Sprintf("Replies:         %8d\n", c.Replies)
	if c.Sends > 0 {
		result += fmt.Sprintf("Sends:           %8d\n", c.Sends)
	}

	if c.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", c.Timeouts)
	}
	if c.HeaderErrors > 0 {
		result += fmt.Sprintf("Header Errors:   %8d\n", c.HeaderErrors)
	}
	if c.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", c.ChecksumErrors)
	}
	if c.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", c.WriteErrors)
	}
	if c.ReadErrors > 0 {
		result += fmt.Sprintf("Read Errors:     %8d\n", c.ReadErrors)
	}
	if c.DroppedSends > 0 {
		result += fmt.Sprintf("Dropped Sends:   %8d\n", c.DroppedSends)
	}

	result += fmt.Sprintf("Rate:            %8.1f tx/sec\n", c.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "====================================\n"

	return result
}
