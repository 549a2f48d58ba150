// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/servolink/pkg/axis"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live table of axis state",
	Long: `Poll every configured axis and show angle, speed, current, temperature,
voltage and error flags in a live table together with the link statistics.

Only read requests are sent. Press r to reset the statistics and q to quit.`,
	RunE: runMonitor,
}

var monitorInterval time.Duration

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 100*time.Millisecond, "Poll interval")
}

func runMonitor(cmd *cobra.Command, args []string) (err error) {
	if monitorInterval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", monitorInterval)
	}

	set, err := openAxes(appConfig, 1)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, set.Close()) }()

	m := initialMonitorModel(set.axes, set.stats, strings.Join(set.infos, ", "))
	p := tea.NewProgram(m, tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pollAxes(ctx, set.axes, monitorInterval, func(msg tea.Msg) { p.Send(msg) })
	}()

	_, err = p.Run()
	cancel()
	<-done
	return err
}

// pollAxes reads every axis each interval until ctx is cancelled
func pollAxes(ctx context.Context, axes []*axis.Axis, interval time.Duration, send func(tea.Msg)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, a := range axes {
			if ctx.Err() != nil {
				return
			}
			send(pollAxis(a))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollAxis takes one full reading of an axis
func pollAxis(a *axis.Axis) axisPollMsg {
	msg := axisPollMsg{id: a.ID(), at: time.Now()}

	if err := a.Refresh(); err != nil {
		msg.err = err
		return msg
	}
	msg.state = a.State()

	s1, err := a.ReadStatus1()
	if err != nil {
		msg.err = err
		return msg
	}
	msg.status1 = &s1

	s2, err := a.ReadStatus2()
	if err != nil {
		msg.err = err
		return msg
	}
	msg.status2 = &s2
	return msg
}
