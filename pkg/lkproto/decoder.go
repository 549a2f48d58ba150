// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Status1 is the decoded read-status-1 (0x9A) response
type Status1 struct {
	Temperature int8    // °C
	Voltage     float64 // V
	MotorState  byte
	ErrorFlags  byte
}

// Status2 is the decoded read-status-2 (0x9C) response
type Status2 struct {
	Temperature int8  // °C
	Current     int16 // iq or power, device units
	SpeedRaw    int16 // 0.01 °/s
	Encoder     uint16
}

// SpeedDPS returns the speed in degrees per second
func (s Status2) SpeedDPS() float64 {
	return float64(s.SpeedRaw) / 100.0
}

// Encoder is the decoded read-encoder (0x90) response
type Encoder struct {
	Position uint16
	Raw      uint16
	Offset   uint16
}

// Param is the decoded read-parameter (0x40) response
type Param struct {
	ID   byte
	Data [ParamDataSize]byte
}

func needBytes(what string, data []byte, n int) error {
	if len(data) < n {
		return fmt.Errorf("%s needs at least %d data bytes, got %d", what, n, len(data))
	}
	return nil
}

// DecodeStatus1 decodes a validated status-1 data section
func DecodeStatus1(data []byte) (Status1, error) {
	if err := needBytes("status-1", data, 7); err != nil {
		return Status1{}, err
	}
	return Status1{
		Temperature: int8(data[0]),
		Voltage:     float64(binary.LittleEndian.Uint16(data[1:3])) * 0.01,
		MotorState:  data[5],
		ErrorFlags:  data[6],
	}, nil
}

// DecodeStatus2 decodes a validated status-2 data section
func DecodeStatus2(data []byte) (Status2, error) {
	if err := needBytes("status-2", data, 7); err != nil {
		return Status2{}, err
	}
	return Status2{
		Temperature: int8(data[0]),
		Current:     int16(binary.LittleEndian.Uint16(data[1:3])),
		SpeedRaw:    int16(binary.LittleEndian.Uint16(data[3:5])),
		Encoder:     binary.LittleEndian.Uint16(data[5:7]),
	}, nil
}

// DecodeEncoder decodes a validated read-encoder data section
func DecodeEncoder(data []byte) (Encoder, error) {
	if err := needBytes("encoder", data, 6); err != nil {
		return Encoder{}, err
	}
	return Encoder{
		Position: binary.LittleEndian.Uint16(data[0:2]),
		Raw:      binary.LittleEndian.Uint16(data[2:4]),
		Offset:   binary.LittleEndian.Uint16(data[4:6]),
	}, nil
}

// DecodeMultiTurnAngle returns the multi-turn angle in degrees
func DecodeMultiTurnAngle(data []byte) (float64, error) {
	if err := needBytes("multi-turn angle", data, 8); err != nil {
		return 0, err
	}
	raw := int64(binary.LittleEndian.Uint64(data[0:8]))
	return float64(raw) / 100.0, nil
}

// DecodeSingleTurnAngle returns the single-turn angle in degrees
func DecodeSingleTurnAngle(data []byte) (float64, error) {
	if err := needBytes("single-turn angle", data, 4); err != nil {
		return 0, err
	}
	return float64(binary.LittleEndian.Uint32(data[0:4])) / 100.0, nil
}

// DecodeParam decodes a validated read-parameter data section.
// The first byte echoes the parameter id.
func DecodeParam(data []byte) (Param, error) {
	if err := needBytes("parameter", data, 1+ParamDataSize); err != nil {
		return Param{}, err
	}
	p := Param{ID: data[0]}
	copy(p.Data[:], data[1:1+ParamDataSize])
	return p, nil
}

// DegToRad converts degrees to radians
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// RadToDeg converts radians to degrees
func RadToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
