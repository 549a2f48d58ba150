// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var driveCmd = &cobra.Command{
	Use:   "drive <mode> [value]",
	Short: "Send a single command to the axes",
	Long: `Send one command to every configured axis (or only --only <id>).

Modes that take a value:
  speed <dps>          Closed-loop speed
  position <deg>       Multi-turn absolute position (--speed limits it)
  single <deg>         Single-turn position (--ccw, --speed)
  incremental <deg>    Move relative to the current position (--speed)
  torque <iq>          Torque current (-2047 to 2047)
  open-loop <power>    Open-loop power (-850 to 850)

Modes without a value:
  stop, enable, disable, clear-error, zero, clear-turns`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDrive,
}

var (
	driveSpeed float64
	driveCCW   bool
	driveOnly  uint8
)

func init() {
	rootCmd.AddCommand(driveCmd)
	driveCmd.Flags().Float64Var(&driveSpeed, "speed", 0, "Speed limit in °/s for position moves (0 for none)")
	driveCmd.Flags().BoolVar(&driveCCW, "ccw", false, "Counter-clockwise for single-turn moves")
	driveCmd.Flags().Uint8Var(&driveOnly, "only", 0, "Drive only this axis id")
}

// driveAction is what a drive mode does to one axis
type driveAction func(a *axis.Axis) error

func sendAction(cmd lkproto.Command) driveAction {
	return func(a *axis.Axis) error { return a.Send(cmd) }
}

// parseDrive resolves a mode and optional value into an action
func parseDrive(mode string, args []string, speed float64, ccw bool) (driveAction, error) {
	mode = strings.ToLower(mode)

	switch mode {
	case "stop":
		return sendAction(lkproto.Stop()), nil
	case "enable":
		return (*axis.Axis).Enable, nil
	case "disable":
		return (*axis.Axis).Disable, nil
	case "clear-error":
		return sendAction(lkproto.ClearError()), nil
	case "zero":
		return (*axis.Axis).Zero, nil
	case "clear-turns":
		return sendAction(lkproto.ClearTurnCount()), nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("mode %q needs a value", mode)
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", args[0], err)
	}

	dir := lkproto.Clockwise
	if ccw {
		dir = lkproto.CounterClockwise
	}

	switch mode {
	case "speed":
		return sendAction(lkproto.Speed(v)), nil
	case "position":
		if speed > 0 {
			return sendAction(lkproto.PositionWithSpeed(v, speed)), nil
		}
		return sendAction(lkproto.Position(v)), nil
	case "single":
		if speed > 0 {
			return sendAction(lkproto.SingleCircleWithSpeed(v, dir, speed)), nil
		}
		return sendAction(lkproto.SingleCircle(v, dir)), nil
	case "incremental":
		if speed > 0 {
			return sendAction(lkproto.IncrementalWithSpeed(v, speed)), nil
		}
		return sendAction(lkproto.Incremental(v)), nil
	case "torque":
		return func(a *axis.Axis) error { return a.SetTorque(int(v)) }, nil
	case "open-loop":
		return sendAction(lkproto.OpenLoop(int(v))), nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

func runDrive(cmd *cobra.Command, args []string) (err error) {
	action, err := parseDrive(args[0], args[1:], driveSpeed, driveCCW)
	if err != nil {
		return err
	}

	cfg := appConfig
	if driveOnly != 0 {
		cfg.Axes = nil
		for _, a := range appConfig.Axes {
			if a.ID == driveOnly {
				cfg.Axes = append(cfg.Axes, a)
			}
		}
		if len(cfg.Axes) == 0 {
			return fmt.Errorf("axis %d is not configured", driveOnly)
		}
	}

	set, err := openAxes(cfg, 1)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, set.Close()) }()

	var errs error
	for _, a := range set.axes {
		if aerr := action(a); aerr != nil {
			logger.Error().Uint8("axis", a.ID()).Err(aerr).Msg("drive failed")
			errs = multierr.Append(errs, fmt.Errorf("axis %d: %w", a.ID(), aerr))
			continue
		}
		fmt.Printf("axis %d: %s ok\n", a.ID(), args[0])
	}
	return errs
}
