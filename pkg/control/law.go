// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"fmt"
	"math"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/Thermoquad/servolink/pkg/lkproto"
)

// Output is the command a law produces for one axis in one tick
type Output struct {
	Command lkproto.Command

	// Value is the law's output in its own units: torque in N·m for the
	// mirror, target position in degrees for impedance
	Value float64
}

// Law turns refreshed axis states into one command per axis.
// states[i] belongs to the i-th axis of the loop.
type Law interface {
	Name() string

	// Axes is the number of axes the law drives, or 0 for any number
	Axes() int

	Compute(states []axis.State) ([]Output, error)
}

func requireValid(states []axis.State, n int) error {
	if n > 0 && len(states) != n {
		return fmt.Errorf("%w: need %d axes, got %d", ErrPrecondition, n, len(states))
	}
	for i, st := range states {
		if !st.Valid {
			return fmt.Errorf("%w: axis %d state is invalid", ErrPrecondition, i)
		}
	}
	return nil
}

// Clip bounds v to [-limit, +limit]
func Clip(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}

// ============================================================
// PD mirror
// ============================================================

// MirrorLaw couples two axes bilaterally: each is driven toward the
// other's live position and velocity
type MirrorLaw struct {
	Params Params
}

// NewMirrorLaw creates a mirror law
func NewMirrorLaw(p Params) *MirrorLaw {
	return &MirrorLaw{Params: p}
}

func (m *MirrorLaw) Name() string { return "mirror" }

// Axes implements Law; the mirror always couples a pair
func (m *MirrorLaw) Axes() int { return 2 }

// MirrorTorques returns the clipped torques in N·m for a pair of states.
// Errors are taken in degrees; the second axis uses the negated error of
// the first.
func MirrorTorques(a, b axis.State, p Params) (float64, float64) {
	errPos := lkproto.RadToDeg(b.Position - a.Position)
	errVel := lkproto.RadToDeg(b.Velocity - a.Velocity)

	t1 := p.Kp*errPos + p.Kd*errVel
	t2 := p.Kp*(-errPos) + p.Kd*(-errVel)

	return Clip(t1, p.TorqueLimit), Clip(t2, p.TorqueLimit)
}

// Compute implements Law
func (m *MirrorLaw) Compute(states []axis.State) ([]Output, error) {
	if err := requireValid(states, 2); err != nil {
		return nil, err
	}

	t1, t2 := MirrorTorques(states[0], states[1], m.Params)
	return []Output{
		{Command: lkproto.Torque(m.Params.TorqueCurrent(t1)), Value: t1},
		{Command: lkproto.Torque(m.Params.TorqueCurrent(t2)), Value: t2},
	}, nil
}

// ============================================================
// Impedance
// ============================================================

// ImpedanceLaw streams impedance setpoints; the actuator closes the loop.
// Targets are either fixed, or captured as position + offset on the first
// valid tick.
type ImpedanceLaw struct {
	Params  ImpedanceParams
	targets []float64 // degrees
}

// NewImpedanceLaw holds each axis at its first observed position plus
// the configured offset
func NewImpedanceLaw(p ImpedanceParams) *ImpedanceLaw {
	return &ImpedanceLaw{Params: p}
}

// NewImpedanceLawWithTargets holds each axis at an absolute target in degrees
func NewImpedanceLawWithTargets(p ImpedanceParams, targets []float64) *ImpedanceLaw {
	return &ImpedanceLaw{Params: p, targets: append([]float64(nil), targets...)}
}

func (l *ImpedanceLaw) Name() string { return "impedance" }

// Axes implements Law. Fixed targets bind the axis count.
func (l *ImpedanceLaw) Axes() int { return len(l.targets) }

// Targets returns the current target positions in degrees (nil before capture)
func (l *ImpedanceLaw) Targets() []float64 {
	return append([]float64(nil), l.targets...)
}

// Compute implements Law
func (l *ImpedanceLaw) Compute(states []axis.State) ([]Output, error) {
	if err := requireValid(states, len(l.targets)); err != nil {
		return nil, err
	}

	if l.targets == nil {
		l.targets = make([]float64, len(states))
		for i, st := range states {
			l.targets[i] = lkproto.RadToDeg(st.Position) + l.Params.OffsetDeg
		}
	}

	out := make([]Output, len(states))
	for i, target := range l.targets {
		sp := lkproto.ImpedanceSetpoint{
			Position:    target,
			Velocity:    l.Params.VelocityDPS,
			Kp:          l.Params.Kp,
			Kd:          l.Params.Kd,
			FeedForward: l.Params.FeedForward,
		}
		out[i] = Output{Command: lkproto.Impedance(sp), Value: target}
	}
	return out, nil
}
