// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package axis

import (
	"fmt"

	"github.com/Thermoquad/servolink/pkg/lkproto"
)

// Send dispatches any command on this axis
func (a *Axis) Send(cmd lkproto.Command) error {
	if err := a.session.Send(cmd); err != nil {
		return fmt.Errorf("%s on axis %d: %w", cmd.Name(), a.ID(), err)
	}
	return nil
}

// SetTorque commands a torque current (clamped to ±2047)
func (a *Axis) SetTorque(iq int) error {
	return a.Send(lkproto.Torque(iq))
}

// SetImpedance sends an impedance setpoint without waiting for a reply
func (a *Axis) SetImpedance(sp lkproto.ImpedanceSetpoint) {
	a.session.FireAndForget(lkproto.Impedance(sp))
}

func (a *Axis) read(cmd lkproto.Command) ([]byte, error) {
	data, err := a.session.Transact(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s on axis %d: %w", cmd.Name(), a.ID(), err)
	}
	return data, nil
}

// ReadMultiTurnAngle returns the multi-turn angle in degrees
func (a *Axis) ReadMultiTurnAngle() (float64, error) {
	data, err := a.read(lkproto.ReadMultiTurnAngle())
	if err != nil {
		return 0, err
	}
	return lkproto.DecodeMultiTurnAngle(data)
}

// ReadSingleTurnAngle returns the single-turn angle in degrees
func (a *Axis) ReadSingleTurnAngle() (float64, error) {
	data, err := a.read(lkproto.ReadSingleTurnAngle())
	if err != nil {
		return 0, err
	}
	return lkproto.DecodeSingleTurnAngle(data)
}

func (a *Axis) ReadStatus1() (lkproto.Status1, error) {
	data, err := a.read(lkproto.ReadStatus1())
	if err != nil {
		return lkproto.Status1{}, err
	}
	return lkproto.DecodeStatus1(data)
}

func (a *Axis) ReadStatus2() (lkproto.Status2, error) {
	data, err := a.read(lkproto.ReadStatus2())
	if err != nil {
		return lkproto.Status2{}, err
	}
	return lkproto.DecodeStatus2(data)
}

func (a *Axis) ReadEncoder() (lkproto.Encoder, error) {
	data, err := a.read(lkproto.ReadEncoder())
	if err != nil {
		return lkproto.Encoder{}, err
	}
	return lkproto.DecodeEncoder(data)
}

// ReadParam reads a 6-byte parameter block
func (a *Axis) ReadParam(id byte) (lkproto.Param, error) {
	data, err := a.read(lkproto.ParamRead(id))
	if err != nil {
		return lkproto.Param{}, err
	}
	p, err := lkproto.DecodeParam(data)
	if err != nil {
		return lkproto.Param{}, err
	}
	if p.ID != id {
		return lkproto.Param{}, fmt.Errorf("parameter reply for id 0x%02X, requested 0x%02X", p.ID, id)
	}
	return p, nil
}

// WriteParam writes a 6-byte parameter block to RAM, or ROM when rom is set
func (a *Axis) WriteParam(id byte, data []byte, rom bool) error {
	cmd, err := lkproto.ParamWrite(id, data, rom)
	if err != nil {
		return err
	}
	return a.Send(cmd)
}
