// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

import (
	"fmt"
	"strings"
)

// FormatCommandID returns the human-readable name for a command id
func FormatCommandID(id byte) string {
	switch id {
	// Actions
	case CmdEnable:
		return "ENABLE"
	case CmdDisable:
		return "DISABLE"
	case CmdStop:
		return "STOP"
	case CmdClearError:
		return "CLEAR_ERROR"
	case CmdSetZeroROM:
		return "SET_ZERO"
	case CmdSetZeroRAM:
		return "SET_ZERO_RAM"
	case CmdClearTurnCount:
		return "CLEAR_TURN_COUNT"

	// Reads
	case CmdReadStatus1:
		return "READ_STATUS_1"
	case CmdReadStatus2:
		return "READ_STATUS_2"
	case CmdReadEncoder:
		return "READ_ENCODER"
	case CmdReadMultiTurnAngle:
		return "READ_MULTI_TURN_ANGLE"
	case CmdReadSingleTurnAngle:
		return "READ_SINGLE_TURN_ANGLE"

	// Setpoints
	case CmdOpenLoop:
		return "OPEN_LOOP"
	case CmdTorque:
		return "TORQUE"
	case CmdSpeed:
		return "SPEED"
	case CmdPosition:
		return "POSITION"
	case CmdPositionWithSpeed:
		return "POSITION_SPEED"
	case CmdSingleCircle:
		return "SINGLE_CIRCLE"
	case CmdSingleCircleWithSpeed:
		return "SINGLE_CIRCLE_SPEED"
	case CmdIncremental:
		return "INCREMENTAL"
	case CmdIncrementalWithSpeed:
		return "INCREMENTAL_SPEED"

	// Parameters
	case CmdParamRead:
		return "PARAM_READ"
	case CmdParamWriteRAM:
		return "PARAM_WRITE_RAM"
	case CmdParamWriteROM:
		return "PARAM_WRITE_ROM"

	default:
		return "UNKNOWN"
	}
}

// FormatHex formats bytes as space separated hex
func FormatHex(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// FormatFrame formats a raw frame as a one line summary
func FormatFrame(frame []byte) string {
	if len(frame) < HeaderSize {
		return fmt.Sprintf("short frame (%d bytes): %s", len(frame), FormatHex(frame))
	}
	result := fmt.Sprintf("%s (0x%02X) axis=%d len=%d", FormatCommandID(frame[1]), frame[1], frame[2], frame[3])
	if len(frame) > HeaderSize {
		result += " data=" + FormatHex(frame[HeaderSize:len(frame)-1])
	}
	return result
}

// FormatStatus1 formats a status-1 record
func FormatStatus1(s Status1) string {
	return fmt.Sprintf("  Temperature: %d°C\n  Voltage: %.2f V\n  Motor State: 0x%02X\n  Error Flags: 0x%02X\n",
		s.Temperature, s.Voltage, s.MotorState, s.ErrorFlags)
}

// FormatStatus2 formats a status-2 record
func FormatStatus2(s Status2) string {
	return fmt.Sprintf("  Temperature: %d°C\n  Current: %d\n  Speed: %.2f °/s\n  Encoder: %d\n",
		s.Temperature, s.Current, s.SpeedDPS(), s.Encoder)
}

// FormatEncoder formats an encoder record
func FormatEncoder(e Encoder) string {
	return fmt.Sprintf("  Encoder: %d\n  Raw: %d\n  Offset: %d\n", e.Position, e.Raw, e.Offset)
}

// FormatParam formats a parameter block
func FormatParam(p Param) string {
	return fmt.Sprintf("  Param 0x%02X: %s\n", p.ID, FormatHex(p.Data[:]))
}
