// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestActionCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		id   byte
	}{
		{"enable", Enable(), 0x88},
		{"disable", Disable(), 0x80},
		{"stop", Stop(), 0x81},
		{"clear error", ClearError(), 0x9B},
		{"set zero", SetZero(), 0x19},
		{"set zero ram", SetZeroRAM(), 0x95},
		{"clear turn count", ClearTurnCount(), 0x93},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cmd.ID != tt.id {
				t.Errorf("ID = 0x%02X, want 0x%02X", tt.cmd.ID, tt.id)
			}
			if len(tt.cmd.Payload) != 0 {
				t.Errorf("Payload = % X, want empty", tt.cmd.Payload)
			}
			if tt.cmd.ReplyLen != 0 {
				t.Errorf("ReplyLen = %d, want 0", tt.cmd.ReplyLen)
			}
		})
	}
}

func TestReadCommands(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		id       byte
		replyLen int
	}{
		{"status 1", ReadStatus1(), 0x9A, 13},
		{"status 2", ReadStatus2(), 0x9C, 13},
		{"encoder", ReadEncoder(), 0x90, 12},
		{"multi-turn", ReadMultiTurnAngle(), 0x92, 14},
		{"single-turn", ReadSingleTurnAngle(), 0x94, 10},
		{"param", ParamRead(0x0A), 0x40, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cmd.ID != tt.id {
				t.Errorf("ID = 0x%02X, want 0x%02X", tt.cmd.ID, tt.id)
			}
			if tt.cmd.ReplyLen != tt.replyLen {
				t.Errorf("ReplyLen = %d, want %d", tt.cmd.ReplyLen, tt.replyLen)
			}
		})
	}
}

func TestTorque_Clamps(t *testing.T) {
	tests := []struct {
		name string
		iq   int
		want int16
	}{
		{"zero", 0, 0},
		{"positive", 100, 100},
		{"negative", -1500, -1500},
		{"upper bound", 2047, 2047},
		{"above upper bound", 3000, 2047},
		{"below lower bound", -5000, -2047},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Torque(tt.iq)
			if cmd.ID != CmdTorque {
				t.Errorf("ID = 0x%02X, want 0x%02X", cmd.ID, CmdTorque)
			}
			got := int16(binary.LittleEndian.Uint16(cmd.Payload))
			if got != tt.want {
				t.Errorf("encoded iq = %d, want %d", got, tt.want)
			}
		})
	}

	if !bytes.Equal(EncodeTorque(3000), EncodeTorque(2047)) {
		t.Error("EncodeTorque(3000) should equal EncodeTorque(2047)")
	}
}

func TestOpenLoop_Clamps(t *testing.T) {
	cmd := OpenLoop(1000)
	if got := int16(binary.LittleEndian.Uint16(cmd.Payload)); got != 850 {
		t.Errorf("encoded power = %d, want 850", got)
	}
	cmd = OpenLoop(-1000)
	if got := int16(binary.LittleEndian.Uint16(cmd.Payload)); got != -850 {
		t.Errorf("encoded power = %d, want -850", got)
	}
}

func TestSpeed(t *testing.T) {
	cmd := Speed(90)
	if len(cmd.Payload) != 4 {
		t.Fatalf("payload length = %d, want 4", len(cmd.Payload))
	}
	if got := int32(binary.LittleEndian.Uint32(cmd.Payload)); got != 9000 {
		t.Errorf("encoded speed = %d, want 9000", got)
	}

	cmd = Speed(-12.34)
	if got := int32(binary.LittleEndian.Uint32(cmd.Payload)); got != -1234 {
		t.Errorf("encoded speed = %d, want -1234", got)
	}
}

func TestPosition(t *testing.T) {
	cmd := Position(-720.5)
	if len(cmd.Payload) != 8 {
		t.Fatalf("payload length = %d, want 8", len(cmd.Payload))
	}
	if got := int64(binary.LittleEndian.Uint64(cmd.Payload)); got != -72050 {
		t.Errorf("encoded position = %d, want -72050", got)
	}
}

func TestPositionWithSpeed(t *testing.T) {
	cmd := PositionWithSpeed(360, 180)
	if cmd.ID != CmdPositionWithSpeed {
		t.Errorf("ID = 0x%02X, want 0x%02X", cmd.ID, CmdPositionWithSpeed)
	}
	if len(cmd.Payload) != 12 {
		t.Fatalf("payload length = %d, want 12", len(cmd.Payload))
	}
	if !bytes.Equal(cmd.Payload[:8], Position(360).Payload) {
		t.Errorf("position part = % X, want % X", cmd.Payload[:8], Position(360).Payload)
	}
	if got := binary.LittleEndian.Uint32(cmd.Payload[8:]); got != 18000 {
		t.Errorf("speed part = %d, want 18000", got)
	}
}

func TestSingleCircle(t *testing.T) {
	tests := []struct {
		name  string
		deg   float64
		dir   Direction
		angle uint16
	}{
		{"clockwise", 90, Clockwise, 9000},
		{"counter-clockwise", 359.99, CounterClockwise, 35999},
		{"wraps full turn", 370, Clockwise, 1000},
		{"wraps negative", -90, Clockwise, 27000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := SingleCircle(tt.deg, tt.dir)
			if len(cmd.Payload) != 4 {
				t.Fatalf("payload length = %d, want 4", len(cmd.Payload))
			}
			if cmd.Payload[0] != byte(tt.dir) {
				t.Errorf("direction = 0x%02X, want 0x%02X", cmd.Payload[0], tt.dir)
			}
			if got := binary.LittleEndian.Uint16(cmd.Payload[1:3]); got != tt.angle {
				t.Errorf("angle = %d, want %d", got, tt.angle)
			}
			if cmd.Payload[3] != 0x00 {
				t.Errorf("reserved byte = 0x%02X, want 0x00", cmd.Payload[3])
			}
		})
	}
}

func TestSingleCircleWithSpeed(t *testing.T) {
	cmd := SingleCircleWithSpeed(45, CounterClockwise, 30)
	if cmd.ID != CmdSingleCircleWithSpeed {
		t.Errorf("ID = 0x%02X, want 0x%02X", cmd.ID, CmdSingleCircleWithSpeed)
	}
	want := append(SingleCircle(45, CounterClockwise).Payload, 0xB8, 0x0B, 0x00, 0x00)
	if !bytes.Equal(cmd.Payload, want) {
		t.Errorf("payload = % X, want % X", cmd.Payload, want)
	}
}

func TestIncremental(t *testing.T) {
	cmd := IncrementalWithSpeed(-10, 50)
	if cmd.ID != CmdIncrementalWithSpeed {
		t.Errorf("ID = 0x%02X, want 0x%02X", cmd.ID, CmdIncrementalWithSpeed)
	}
	if len(cmd.Payload) != 8 {
		t.Fatalf("payload length = %d, want 8", len(cmd.Payload))
	}
	if !bytes.Equal(cmd.Payload[:4], Incremental(-10).Payload) {
		t.Errorf("delta part = % X, want % X", cmd.Payload[:4], Incremental(-10).Payload)
	}
	if got := int32(binary.LittleEndian.Uint32(cmd.Payload[:4])); got != -1000 {
		t.Errorf("delta = %d, want -1000", got)
	}
	if got := binary.LittleEndian.Uint32(cmd.Payload[4:]); got != 5000 {
		t.Errorf("speed = %d, want 5000", got)
	}
}

func TestParamWrite(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}

	cmd, err := ParamWrite(0x0A, data, false)
	if err != nil {
		t.Fatalf("ParamWrite failed: %v", err)
	}
	if cmd.ID != CmdParamWriteRAM {
		t.Errorf("ID = 0x%02X, want 0x%02X", cmd.ID, CmdParamWriteRAM)
	}
	if !bytes.Equal(cmd.Payload, []byte{0x0A, 1, 2, 3, 4, 5, 6}) {
		t.Errorf("payload = % X", cmd.Payload)
	}

	cmd, err = ParamWrite(0x0A, data, true)
	if err != nil {
		t.Fatalf("ParamWrite failed: %v", err)
	}
	if cmd.ID != CmdParamWriteROM {
		t.Errorf("ID = 0x%02X, want 0x%02X", cmd.ID, CmdParamWriteROM)
	}

	if _, err := ParamWrite(0x0A, data[:5], false); err == nil {
		t.Error("expected error for short parameter data")
	}
}

func TestCommandFrame(t *testing.T) {
	frame, err := Enable().Frame(1)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if !bytes.Equal(frame, []byte{0x3E, 0x88, 0x01, 0x00, 0xC7}) {
		t.Errorf("frame = % X", frame)
	}
	if Enable().Name() != "ENABLE" {
		t.Errorf("Name() = %q, want ENABLE", Enable().Name())
	}
}
