// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/servolink/pkg/control"
	"github.com/spf13/cobra"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Bilateral PD mirroring between two axes",
	Long: `Couple two axes so each is driven toward the other's live position and velocity.

Every tick both axes are refreshed in parallel, the PD law computes
  torque1 = Kp*(pos2-pos1) + Kd*(vel2-vel1)
  torque2 = -(same error terms)
with errors in degrees and deg/s and torque in N·m. Each torque is clipped
to ±torque-limit and converted to an iq command through the motor torque
constant (iq = torque / kt * 2048/33), then both
torque commands are dispatched in parallel. A tick where either axis fails
to refresh is skipped.

Exactly two axes are required. Both are enabled and zeroed at start and
disabled on exit (Ctrl+C).`,
	RunE: runMirror,
}

var (
	mirrorFlags loopFlags

	mirrorKp          float64
	mirrorKd          float64
	mirrorTorqueLimit float64
	mirrorTorqueConst float64
	mirrorPeriod      string
)

func init() {
	rootCmd.AddCommand(mirrorCmd)

	d := control.DefaultParams()
	mirrorCmd.Flags().Float64Var(&mirrorKp, "kp", d.Kp, "Proportional gain (N·m per degree)")
	mirrorCmd.Flags().Float64Var(&mirrorKd, "kd", d.Kd, "Derivative gain (N·m per degree/second)")
	mirrorCmd.Flags().Float64Var(&mirrorTorqueLimit, "torque-limit", d.TorqueLimit, "Symmetric torque limit (N·m)")
	mirrorCmd.Flags().Float64Var(&mirrorTorqueConst, "torque-constant", d.TorqueConstant, "Motor torque constant (N·m/A)")
	mirrorCmd.Flags().StringVar(&mirrorPeriod, "period", d.Period.String(), "Tick period")
	mirrorFlags.register(mirrorCmd.Flags())
}

func runMirror(cmd *cobra.Command, args []string) error {
	p := appConfig.Control

	flags := cmd.Flags()
	if flags.Changed("kp") {
		p.Kp = mirrorKp
	}
	if flags.Changed("kd") {
		p.Kd = mirrorKd
	}
	if flags.Changed("torque-limit") {
		p.TorqueLimit = mirrorTorqueLimit
	}
	if flags.Changed("torque-constant") {
		p.TorqueConstant = mirrorTorqueConst
	}
	if flags.Changed("period") {
		d, err := parsePeriod(mirrorPeriod)
		if err != nil {
			return err
		}
		p.Period = d
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if n := len(appConfig.Axes); n != 2 {
		return errExactlyTwoAxes(n)
	}

	logger.Info().Float64("kp", p.Kp).Float64("kd", p.Kd).Float64("limit", p.TorqueLimit).Msg("mirror parameters")
	return runControlLoop(control.NewMirrorLaw(p), p.Period, 2, mirrorFlags)
}
