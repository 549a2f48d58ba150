// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

// Impedance command quantization ranges
const (
	ImpedancePosMin = -360.0
	ImpedancePosMax = 360.0
	ImpedanceVelMin = -2000.0
	ImpedanceVelMax = 2000.0
	ImpedanceKpMin  = 0.0
	ImpedanceKpMax  = 500.0
	ImpedanceKdMin  = 0.0
	ImpedanceKdMax  = 5.0
	ImpedanceTMin   = -33.0
	ImpedanceTMax   = 33.0

	impedancePosBits = 16
	impedanceBits    = 12

	ImpedancePayloadSize = 8
)

// ImpedanceSetpoint is one MIT-style impedance command.
// The actuator closes the loop: torque = Kp*(Position-pos) + Kd*(Velocity-vel) + FeedForward.
type ImpedanceSetpoint struct {
	Position    float64 // degrees
	Velocity    float64 // degrees per second
	Kp          float64
	Kd          float64
	FeedForward float64 // current-equivalent units
}

// Impedance builds the fire-and-forget impedance command (0xA8)
func Impedance(sp ImpedanceSetpoint) Command {
	return Command{ID: CmdImpedance, Payload: EncodeImpedance(sp), FireAndForget: true}
}

// EncodeImpedance packs a setpoint into the 8-byte payload.
//
// Layout (big-endian bit order within the packed fields):
//
//	byte 0-1: position (16 bits)
//	byte 2:   velocity[11:4]
//	byte 3:   velocity[3:0] | kp[11:8]
//	byte 4:   kp[7:0]
//	byte 5:   kd[11:4]
//	byte 6:   kd[3:0] | torque[11:8]
//	byte 7:   torque[7:0]
func EncodeImpedance(sp ImpedanceSetpoint) []byte {
	p := FloatToUint(sp.Position, ImpedancePosMin, ImpedancePosMax, impedancePosBits)
	v := FloatToUint(sp.Velocity, ImpedanceVelMin, ImpedanceVelMax, impedanceBits)
	kp := FloatToUint(sp.Kp, ImpedanceKpMin, ImpedanceKpMax, impedanceBits)
	kd := FloatToUint(sp.Kd, ImpedanceKdMin, ImpedanceKdMax, impedanceBits)
	t := FloatToUint(sp.FeedForward, ImpedanceTMin, ImpedanceTMax, impedanceBits)

	return []byte{
		byte(p >> 8),
		byte(p),
		byte(v >> 4),
		byte((v&0x0F)<<4) | byte(kp>>8),
		byte(kp),
		byte(kd >> 4),
		byte((kd&0x0F)<<4) | byte(t>>8),
		byte(t),
	}
}

// DecodeImpedance unpacks an impedance payload. Values are recovered to
// within one quantization step of what was encoded.
func DecodeImpedance(payload []byte) (ImpedanceSetpoint, error) {
	if err := needBytes("impedance", payload, ImpedancePayloadSize); err != nil {
		return ImpedanceSetpoint{}, err
	}
	p := uint32(payload[0])<<8 | uint32(payload[1])
	v := uint32(payload[2])<<4 | uint32(payload[3])>>4
	kp := uint32(payload[3]&0x0F)<<8 | uint32(payload[4])
	kd := uint32(payload[5])<<4 | uint32(payload[6])>>4
	t := uint32(payload[6]&0x0F)<<8 | uint32(payload[7])

	return ImpedanceSetpoint{
		Position:    UintToFloat(p, ImpedancePosMin, ImpedancePosMax, impedancePosBits),
		Velocity:    UintToFloat(v, ImpedanceVelMin, ImpedanceVelMax, impedanceBits),
		Kp:          UintToFloat(kp, ImpedanceKpMin, ImpedanceKpMax, impedanceBits),
		Kd:          UintToFloat(kd, ImpedanceKdMin, ImpedanceKdMax, impedanceBits),
		FeedForward: UintToFloat(t, ImpedanceTMin, ImpedanceTMax, impedanceBits),
	}, nil
}
