// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read and print the status of every axis",
	Long: `Read status 1 and 2, the encoder and both angle registers of every
configured axis and print them. Nothing is written to the actuators.

Use --interval to repeat the readout until interrupted.`,
	RunE: runStatus,
}

var statusInterval time.Duration

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 0, "Repeat the readout at this interval")
}

func runStatus(cmd *cobra.Command, args []string) (err error) {
	set, err := openAxes(appConfig, 1)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, set.Close()) }()

	ctx, stop := signalContext()
	defer stop()

	for {
		for _, a := range set.axes {
			printStatus(a)
		}
		if statusInterval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(statusInterval):
		}
	}
}

func printStatus(a *axis.Axis) {
	fmt.Printf("=== Axis %d (%s) ===\n", a.ID(), a.Name())

	if s, err := a.ReadStatus1(); err != nil {
		fmt.Printf("  status 1:   error: %v\n", err)
	} else {
		fmt.Printf("  status 1:   %s\n", lkproto.FormatStatus1(s))
	}

	if s, err := a.ReadStatus2(); err != nil {
		fmt.Printf("  status 2:   error: %v\n", err)
	} else {
		fmt.Printf("  status 2:   %s\n", lkproto.FormatStatus2(s))
	}

	if e, err := a.ReadEncoder(); err != nil {
		fmt.Printf("  encoder:    error: %v\n", err)
	} else {
		fmt.Printf("  encoder:    %s\n", lkproto.FormatEncoder(e))
	}

	if deg, err := a.ReadMultiTurnAngle(); err != nil {
		fmt.Printf("  multi-turn: error: %v\n", err)
	} else {
		fmt.Printf("  multi-turn: %.2f°\n", deg)
	}

	if deg, err := a.ReadSingleTurnAngle(); err != nil {
		fmt.Printf("  single:     error: %v\n", err)
	} else {
		fmt.Printf("  single:     %.2f°\n", deg)
	}
	fmt.Println()
}
