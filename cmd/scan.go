// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/Thermoquad/servolink/pkg/config"
	"github.com/Thermoquad/servolink/pkg/link"
	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <address>",
	Short: "Probe a channel for responding axis ids",
	Long: `Refresh each axis id in turn on a single channel (multi-turn angle then
status 2) and list the ids that answer both reads with valid frames.

Only read requests are sent, so scanning never moves an actuator.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var scanMax uint8

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().Uint8Var(&scanMax, "max", link.MaxAxisID, "Highest axis id to scan")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := link.ValidateAxisID(scanMax); err != nil {
		return err
	}

	cfg := appConfig
	cfg.Axes = []config.Axis{{ID: 1, Address: args[0]}}
	opts, err := linkOptions(cfg)
	if err != nil {
		return err
	}

	ch, info, err := link.Open(args[0], opts)
	if err != nil {
		return err
	}
	defer ch.Close()

	fmt.Printf("Scanning %s (ids 1-%d)\n", info, scanMax)

	found := 0
	for id := uint8(1); id <= scanMax; id++ {
		s, err := link.NewSession(ch, id, opts.Timeout, link.WithLogger(logger))
		if err != nil {
			return err
		}

		a := axis.New(s, axis.WithLogger(logger.Level(zerolog.ErrorLevel)))
		if err := a.Refresh(); err != nil {
			logger.Debug().Uint8("axis", id).Err(err).Msg("no reply")
			continue
		}
		found++
		st := a.State()
		fmt.Printf("  axis %2d: %.2f° %.2f°/s current %.0f\n",
			id, lkproto.RadToDeg(st.Position), lkproto.RadToDeg(st.Velocity), st.Torque)
	}

	fmt.Printf("\nFound %d axis\n", found)
	return nil
}
