// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lkproto implements the LK servo serial protocol.
//
// Every frame starts with a five byte header (marker, command, axis id,
// payload length, header checksum), optionally followed by the payload and a
// payload checksum. Both checksums are 8-bit additive sums. This package
// builds and validates frames, encodes command payloads and decodes the
// fixed response records.
package lkproto

// Framing
const (
	HeaderByte = 0x3E
	HeaderSize = 5

	MaxPayloadSize = 255
)

// Axis id limits
const (
	MinAxisID = 1
	MaxAxisID = 32
)

// Command ids - actions (no payload)
const (
	CmdDisable        = 0x80
	CmdStop           = 0x81
	CmdEnable         = 0x88
	CmdClearError     = 0x9B
	CmdSetZeroROM     = 0x19
	CmdSetZeroRAM     = 0x95
	CmdClearTurnCount = 0x93
)

// Command ids - reads
const (
	CmdReadEncoder         = 0x90
	CmdReadMultiTurnAngle  = 0x92
	CmdReadSingleTurnAngle = 0x94
	CmdReadStatus1         = 0x9A
	CmdReadStatus2         = 0x9C
)

// Command ids - closed loop setpoints
const (
	CmdOpenLoop              = 0xA0
	CmdTorque                = 0xA1
	CmdSpeed                 = 0xA2
	CmdPosition              = 0xA3
	CmdPositionWithSpeed     = 0xA4
	CmdSingleCircle          = 0xA5
	CmdSingleCircleWithSpeed = 0xA6
	CmdIncremental           = 0xA7
	CmdIncrementalWithSpeed  = 0xA8
	CmdImpedance             = 0xA8 // shares the id with incremental+speed
)

// Command ids - parameters
const (
	CmdParamRead     = 0x40
	CmdParamWriteRAM = 0x42
	CmdParamWriteROM = 0x44
)

// Response lengths (header + data + data checksum)
const (
	ReplyLenStatus1         = 13
	ReplyLenStatus2         = 13
	ReplyLenEncoder         = 12
	ReplyLenMultiTurnAngle  = 14
	ReplyLenSingleTurnAngle = 10
	ReplyLenParamRead       = 13
)

// Setpoint limits
const (
	MaxTorqueCurrent = 2047
	MaxOpenLoopPower = 850
	ParamDataSize    = 6
)

// IqPerAmp is the torque command resolution: iq ±2048 spans ±33 A
const IqPerAmp = 2048.0 / 33.0

// Direction selects the rotation direction for single-circle moves.
type Direction uint8

// Direction values
const (
	Clockwise        Direction = 0x00
	CounterClockwise Direction = 0x01
)
