// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package control runs fixed-period closed-loop control over a set of axes.
package control

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Thermoquad/servolink/pkg/lkproto"
)

// ErrPrecondition is returned when a control law runs without a valid
// refresh of every axis it reads
var ErrPrecondition = errors.New("control precondition not met")

// Params are the PD mirror gains and loop timing. Immutable for a run.
// The law works on errors in degrees and degrees/second and produces
// torque in N·m.
type Params struct {
	Kp          float64 // N·m per degree
	Kd          float64 // N·m per degree/second
	TorqueLimit float64 // N·m, symmetric
	Period      time.Duration

	// TorqueConstant is the motor's N·m per amp, used to turn the law
	// output into torque current
	TorqueConstant float64
}

// DefaultTorqueConstant is the rated N·m/A of the bench rig's actuators
const DefaultTorqueConstant = 0.0482

// DefaultParams returns the mirror tuning used on the bench rig
func DefaultParams() Params {
	return Params{
		Kp:             2.0 / 2 / 6 / 1.5,
		Kd:             0.01 / 1.5,
		TorqueLimit:    2.5,
		Period:         10 * time.Millisecond,
		TorqueConstant: DefaultTorqueConstant,
	}
}

// TorqueCurrent converts a torque in N·m to the torque command's iq units.
// The command clamps the result to ±MaxTorqueCurrent.
func (p Params) TorqueCurrent(nm float64) int {
	return int(math.Round(nm / p.TorqueConstant * lkproto.IqPerAmp))
}

// Validate checks gains, limits and period
func (p Params) Validate() error {
	switch {
	case !finite(p.Kp) || p.Kp < 0:
		return fmt.Errorf("kp must be a non-negative number, got %v", p.Kp)
	case !finite(p.Kd) || p.Kd < 0:
		return fmt.Errorf("kd must be a non-negative number, got %v", p.Kd)
	case !finite(p.TorqueLimit) || p.TorqueLimit <= 0:
		return fmt.Errorf("torque limit must be positive, got %v", p.TorqueLimit)
	case p.Period <= 0:
		return fmt.Errorf("period must be positive, got %v", p.Period)
	case !finite(p.TorqueConstant) || p.TorqueConstant <= 0:
		return fmt.Errorf("torque constant must be positive, got %v", p.TorqueConstant)
	}
	return nil
}

// ImpedanceParams configure the impedance setpoint stream
type ImpedanceParams struct {
	Kp          float64
	Kd          float64
	OffsetDeg   float64 // target relative to the position at the first valid tick
	VelocityDPS float64
	FeedForward float64
}

// DefaultImpedanceParams returns the gains of the single-axis impedance demo
func DefaultImpedanceParams() ImpedanceParams {
	return ImpedanceParams{
		Kp:        2.0,
		Kd:        0.05,
		OffsetDeg: 20,
	}
}

// Validate checks values against the impedance command's encodable ranges
func (p ImpedanceParams) Validate() error {
	checks := []struct {
		name     string
		v        float64
		min, max float64
	}{
		{"kp", p.Kp, lkproto.ImpedanceKpMin, lkproto.ImpedanceKpMax},
		{"kd", p.Kd, lkproto.ImpedanceKdMin, lkproto.ImpedanceKdMax},
		{"velocity", p.VelocityDPS, lkproto.ImpedanceVelMin, lkproto.ImpedanceVelMax},
		{"feed-forward", p.FeedForward, lkproto.ImpedanceTMin, lkproto.ImpedanceTMax},
	}
	for _, c := range checks {
		if !finite(c.v) || c.v < c.min || c.v > c.max {
			return fmt.Errorf("impedance %s %v outside [%v, %v]", c.name, c.v, c.min, c.max)
		}
	}
	if !finite(p.OffsetDeg) {
		return fmt.Errorf("impedance offset must be a number, got %v", p.OffsetDeg)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
