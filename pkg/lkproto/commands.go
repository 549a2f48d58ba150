// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Command is one request: its command id, encoded payload and the full
// response length the device sends back (0 when no reply is awaited).
type Command struct {
	ID       byte
	Payload  []byte
	ReplyLen int

	// FireAndForget marks commands whose transport failures must never
	// reach the caller (the impedance command).
	FireAndForget bool
}

// Name returns the human-readable command name
func (c Command) Name() string {
	return FormatCommandID(c.ID)
}

// Frame encodes the command for the given axis
func (c Command) Frame(axisID byte) ([]byte, error) {
	return BuildFrame(c.ID, axisID, c.Payload)
}

func action(id byte) Command {
	return Command{ID: id}
}

func read(id byte, replyLen int) Command {
	return Command{ID: id, ReplyLen: replyLen}
}

// Enable starts the motor (0x88)
func Enable() Command { return action(CmdEnable) }

// Disable shuts the motor output off and clears its running state (0x80)
func Disable() Command { return action(CmdDisable) }

// Stop halts the control output without clearing state (0x81)
func Stop() Command { return action(CmdStop) }

// ClearError clears latched error flags (0x9B)
func ClearError() Command { return action(CmdClearError) }

// SetZero stores the current position as the zero point (0x19)
func SetZero() Command { return action(CmdSetZeroROM) }

// SetZeroRAM sets the current position as zero until power off (0x95)
func SetZeroRAM() Command { return action(CmdSetZeroRAM) }

// ClearTurnCount resets the multi-turn counter (0x93)
func ClearTurnCount() Command { return action(CmdClearTurnCount) }

// ReadStatus1 requests temperature, voltage and error flags (0x9A)
func ReadStatus1() Command { return read(CmdReadStatus1, ReplyLenStatus1) }

// ReadStatus2 requests temperature, current, speed and encoder (0x9C)
func ReadStatus2() Command { return read(CmdReadStatus2, ReplyLenStatus2) }

// ReadEncoder requests encoder, raw encoder and offset (0x90)
func ReadEncoder() Command { return read(CmdReadEncoder, ReplyLenEncoder) }

// ReadMultiTurnAngle requests the signed multi-turn angle (0x92)
func ReadMultiTurnAngle() Command { return read(CmdReadMultiTurnAngle, ReplyLenMultiTurnAngle) }

// ReadSingleTurnAngle requests the single-turn angle (0x94)
func ReadSingleTurnAngle() Command { return read(CmdReadSingleTurnAngle, ReplyLenSingleTurnAngle) }

// OpenLoop sets the open-loop output power, clamped to ±850 (0xA0)
func OpenLoop(power int) Command {
	v := clampInt(power, -MaxOpenLoopPower, MaxOpenLoopPower)
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, uint16(int16(v)))
	return Command{ID: CmdOpenLoop, Payload: payload}
}

// Torque sets the torque current iq, clamped to ±2047 (0xA1).
// Out-of-range values are clamped rather than rejected.
func Torque(iq int) Command {
	return Command{ID: CmdTorque, Payload: EncodeTorque(iq)}
}

// EncodeTorque returns the 2-byte torque current payload
func EncodeTorque(iq int) []byte {
	v := clampInt(iq, -MaxTorqueCurrent, MaxTorqueCurrent)
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, uint16(int16(v)))
	return payload
}

// Speed sets the target speed in degrees per second (0xA2)
func Speed(dps float64) Command {
	return Command{ID: CmdSpeed, Payload: encodeInt32(dps)}
}

// Position moves to a multi-turn angle in degrees (0xA3)
func Position(deg float64) Command {
	return Command{ID: CmdPosition, Payload: encodeInt64(deg)}
}

// PositionWithSpeed moves to a multi-turn angle with a speed limit (0xA4)
func PositionWithSpeed(deg, maxDPS float64) Command {
	payload := append(encodeInt64(deg), encodeSpeedLimit(maxDPS)...)
	return Command{ID: CmdPositionWithSpeed, Payload: payload}
}

// SingleCircle moves to an angle within one turn (0xA5).
// The angle is wrapped into [0, 360).
func SingleCircle(deg float64, dir Direction) Command {
	return Command{ID: CmdSingleCircle, Payload: encodeSingleCircle(deg, dir)}
}

// SingleCircleWithSpeed is SingleCircle with a speed limit (0xA6)
func SingleCircleWithSpeed(deg float64, dir Direction, maxDPS float64) Command {
	payload := append(encodeSingleCircle(deg, dir), encodeSpeedLimit(maxDPS)...)
	return Command{ID: CmdSingleCircleWithSpeed, Payload: payload}
}

// Incremental moves by a relative angle in degrees (0xA7)
func Incremental(deltaDeg float64) Command {
	return Command{ID: CmdIncremental, Payload: encodeInt32(deltaDeg)}
}

// IncrementalWithSpeed moves by a relative angle with a speed limit (0xA8)
func IncrementalWithSpeed(deltaDeg, maxDPS float64) Command {
	payload := append(encodeInt32(deltaDeg), encodeSpeedLimit(maxDPS)...)
	return Command{ID: CmdIncrementalWithSpeed, Payload: payload}
}

// ParamRead requests a 6-byte parameter block (0x40)
func ParamRead(paramID byte) Command {
	return Command{ID: CmdParamRead, Payload: []byte{paramID, 0x00}, ReplyLen: ReplyLenParamRead}
}

// ParamWrite writes a 6-byte parameter block to RAM (0x42) or ROM (0x44)
func ParamWrite(paramID byte, data []byte, rom bool) (Command, error) {
	if len(data) != ParamDataSize {
		return Command{}, fmt.Errorf("parameter data must be %d bytes, got %d", ParamDataSize, len(data))
	}
	id := byte(CmdParamWriteRAM)
	if rom {
		id = CmdParamWriteROM
	}
	payload := make([]byte, 0, 1+ParamDataSize)
	payload = append(payload, paramID)
	payload = append(payload, data...)
	return Command{ID: id, Payload: payload}, nil
}

// scale100 converts a value to the protocol's 0.01 unit
func scale100(v float64) float64 {
	return math.Round(v * 100)
}

func encodeInt32(v float64) []byte {
	scaled := clampFloat(scale100(v), math.MinInt32, math.MaxInt32)
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(int32(scaled)))
	return payload
}

func encodeInt64(v float64) []byte {
	// float64 cannot represent MaxInt64 exactly; stay inside it
	scaled := clampFloat(scale100(v), -(1 << 62), 1<<62)
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, uint64(int64(scaled)))
	return payload
}

// encodeSpeedLimit encodes a speed magnitude as uint32 in 0.01 dps
func encodeSpeedLimit(dps float64) []byte {
	scaled := clampFloat(scale100(math.Abs(dps)), 0, math.MaxUint32)
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, uint32(scaled))
	return payload
}

func encodeSingleCircle(deg float64, dir Direction) []byte {
	wrapped := math.Mod(deg, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	angle := uint16(clampFloat(scale100(wrapped), 0, 35999))
	payload := make([]byte, 4)
	payload[0] = byte(dir)
	binary.LittleEndian.PutUint16(payload[1:3], angle)
	payload[3] = 0x00
	return payload
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
