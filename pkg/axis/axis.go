// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package axis pairs a device session with the cached state and lifecycle
// phase of one servo axis.
package axis

import (
	"fmt"

	"github.com/Thermoquad/servolink/pkg/link"
	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/rs/zerolog"
)

// Phase is the lifecycle position of an axis
type Phase int

const (
	Disabled Phase = iota
	Enabled
	Zeroed
	Running
)

func (p Phase) String() string {
	switch p {
	case Disabled:
		return "DISABLED"
	case Enabled:
		return "ENABLED"
	case Zeroed:
		return "ZEROED"
	case Running:
		return "RUNNING"
	default:
		return fmt.Sprintf("PHASE(%d)", int(p))
	}
}

// State is the cached motion state of an axis. Position, Velocity and
// Torque are only meaningful when Valid is set; they are always populated
// or cleared together.
type State struct {
	Position float64 // radians, multi-turn
	Velocity float64 // radians/second
	Torque   float64 // raw current proxy from status-2
	Valid    bool
}

// Axis is one servo reached through its own session
type Axis struct {
	name    string
	session *link.Session
	state   State
	phase   Phase
	lastErr error
	log     zerolog.Logger
}

// Option customizes an Axis
type Option func(*Axis)

// WithName sets a display name
func WithName(name string) Option {
	return func(a *Axis) { a.name = name }
}

// WithLogger sets the axis logger
func WithLogger(log zerolog.Logger) Option {
	return func(a *Axis) { a.log = log }
}

// New creates an axis in the Disabled phase with invalid state
func New(session *link.Session, opts ...Option) *Axis {
	a := &Axis{
		session: session,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.name == "" {
		a.name = fmt.Sprintf("axis%d", session.AxisID())
	}
	a.log = a.log.With().Uint8("axis", session.AxisID()).Logger()
	return a
}

func (a *Axis) ID() uint8 { return a.session.AxisID() }

func (a *Axis) Name() string { return a.name }

func (a *Axis) Phase() Phase { return a.phase }

// Session returns the underlying device session
func (a *Axis) Session() *link.Session { return a.session }

// State returns a copy of the cached state
func (a *Axis) State() State { return a.state }

// IsValid reports whether the last refresh fully succeeded
func (a *Axis) IsValid() bool { return a.state.Valid }

// LastError returns the error of the last failed refresh, cleared on success
func (a *Axis) LastError() error { return a.lastErr }

// Refresh reads the multi-turn angle and then status-2. The cached state
// is replaced only when both succeed; any failure invalidates all of it.
func (a *Axis) Refresh() error {
	next, err := a.readState()
	if err != nil {
		a.state = State{}
		a.lastErr = err
		a.log.Warn().Err(err).Msg("refresh failed, state invalidated")
		return err
	}

	a.state = next
	a.lastErr = nil
	return nil
}

func (a *Axis) readState() (State, error) {
	deg, err := a.ReadMultiTurnAngle()
	if err != nil {
		return State{}, err
	}
	st, err := a.ReadStatus2()
	if err != nil {
		return State{}, err
	}
	return State{
		Position: lkproto.DegToRad(deg),
		Velocity: lkproto.DegToRad(st.SpeedDPS()),
		Torque:   float64(st.Current),
		Valid:    true,
	}, nil
}

// Invalidate clears the cached state
func (a *Axis) Invalidate() {
	a.state = State{}
}

// ============================================================
// Lifecycle
// ============================================================

// Enable turns the motor on and moves to Enabled
func (a *Axis) Enable() error {
	if err := a.session.Send(lkproto.Enable()); err != nil {
		return fmt.Errorf("enable axis %d: %w", a.ID(), err)
	}
	a.phase = Enabled
	return nil
}

// Zero stores the current position as the zero point and moves to Zeroed
func (a *Axis) Zero() error {
	if err := a.session.Send(lkproto.SetZero()); err != nil {
		return fmt.Errorf("zero axis %d: %w", a.ID(), err)
	}
	a.phase = Zeroed
	return nil
}

// Start moves a zeroed axis to Running
func (a *Axis) Start() error {
	if a.phase != Zeroed && a.phase != Running {
		return fmt.Errorf("axis %d: cannot run from %s", a.ID(), a.phase)
	}
	a.phase = Running
	return nil
}

// Disable turns the motor off. The phase returns to Disabled even when
// the command fails so the axis is never reported as running afterwards.
func (a *Axis) Disable() error {
	a.phase = Disabled
	a.state = State{}
	if err := a.session.Send(lkproto.Disable()); err != nil {
		return fmt.Errorf("disable axis %d: %w", a.ID(), err)
	}
	return nil
}

// Close closes the underlying session
func (a *Axis) Close() error {
	return a.session.Close()
}
