// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/servolink/pkg/control"
	"github.com/spf13/cobra"
)

var impedanceCmd = &cobra.Command{
	Use:   "impedance",
	Short: "Stream impedance setpoints to one or more axes",
	Long: `Hold each axis at a target with the actuator's onboard impedance loop.

Every tick each axis is refreshed and an impedance command (position,
velocity, Kp, Kd, feed-forward, quantized into 8 bytes) is sent without
waiting for a reply. The actuator computes the torque itself.

By default the target is the position at the first valid tick plus
--offset degrees. Use --target once per axis for absolute targets.`,
	RunE: runImpedance,
}

var (
	impedanceFlags loopFlags

	impedanceKp          float64
	impedanceKd          float64
	impedanceOffset      float64
	impedanceVelocity    float64
	impedanceFeedForward float64
	impedancePeriod      string
	impedanceTargets     []float64
)

func init() {
	rootCmd.AddCommand(impedanceCmd)

	d := control.DefaultImpedanceParams()
	impedanceCmd.Flags().Float64Var(&impedanceKp, "kp", d.Kp, "Stiffness (0-500)")
	impedanceCmd.Flags().Float64Var(&impedanceKd, "kd", d.Kd, "Damping (0-5)")
	impedanceCmd.Flags().Float64Var(&impedanceOffset, "offset", d.OffsetDeg, "Target offset from the starting position (degrees)")
	impedanceCmd.Flags().Float64Var(&impedanceVelocity, "velocity", d.VelocityDPS, "Desired velocity (degrees/second)")
	impedanceCmd.Flags().Float64Var(&impedanceFeedForward, "feed-forward", d.FeedForward, "Feed-forward torque (±33)")
	impedanceCmd.Flags().StringVar(&impedancePeriod, "period", "20ms", "Tick period")
	impedanceCmd.Flags().Float64SliceVar(&impedanceTargets, "target", nil, "Absolute target per axis in degrees (repeatable)")
	impedanceFlags.register(impedanceCmd.Flags())
}

func runImpedance(cmd *cobra.Command, args []string) error {
	p := appConfig.Impedance
	period := appConfig.ImpedancePeriod

	flags := cmd.Flags()
	if flags.Changed("kp") {
		p.Kp = impedanceKp
	}
	if flags.Changed("kd") {
		p.Kd = impedanceKd
	}
	if flags.Changed("offset") {
		p.OffsetDeg = impedanceOffset
	}
	if flags.Changed("velocity") {
		p.VelocityDPS = impedanceVelocity
	}
	if flags.Changed("feed-forward") {
		p.FeedForward = impedanceFeedForward
	}
	if flags.Changed("period") {
		d, err := parsePeriod(impedancePeriod)
		if err != nil {
			return err
		}
		period = d
	}
	if err := p.Validate(); err != nil {
		return err
	}

	law := control.NewImpedanceLaw(p)
	if len(impedanceTargets) > 0 {
		if len(impedanceTargets) != len(appConfig.Axes) {
			return fmt.Errorf("got %d targets for %d axes", len(impedanceTargets), len(appConfig.Axes))
		}
		law = control.NewImpedanceLawWithTargets(p, impedanceTargets)
	}

	return runControlLoop(law, period, 1, impedanceFlags)
}
