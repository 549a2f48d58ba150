// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure refresh round-trip latency",
	Long: `Run repeated state refreshes (multi-turn angle then status 2) against
every axis and report the min/avg/max latency and the link error counts.

The result bounds how short a control period each link can sustain.`,
	RunE: runBench,
}

var benchCount int

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVarP(&benchCount, "count", "n", 200, "Refreshes per axis")
}

// latency accumulates round-trip times
type latency struct {
	n             int
	failed        int
	min, max, sum time.Duration
}

func (l *latency) add(d time.Duration) {
	if l.n == 0 || d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
	l.sum += d
	l.n++
}

func (l latency) avg() time.Duration {
	if l.n == 0 {
		return 0
	}
	return l.sum / time.Duration(l.n)
}

func runBench(cmd *cobra.Command, args []string) (err error) {
	if benchCount <= 0 {
		return fmt.Errorf("count must be positive, got %d", benchCount)
	}

	set, err := openAxes(appConfig, 1)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, set.Close()) }()

	ctx, stop := signalContext()
	defer stop()

	for _, a := range set.axes {
		var l latency
		for i := 0; i < benchCount && ctx.Err() == nil; i++ {
			start := time.Now()
			if err := a.Refresh(); err != nil {
				l.failed++
				continue
			}
			l.add(time.Since(start))
		}

		fmt.Printf("axis %d: %d ok, %d failed", a.ID(), l.n, l.failed)
		if l.n > 0 {
			fmt.Printf(", min %v avg %v max %v", l.min, l.avg(), l.max)
		}
		fmt.Println()
	}

	fmt.Println()
	fmt.Print(set.stats.String())
	return nil
}
