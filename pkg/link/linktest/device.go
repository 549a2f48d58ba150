// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linktest

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/Thermoquad/servolink/pkg/lkproto"
)

// Device simulates the reply side of one servo. Fields may be changed
// between exchanges; access is serialized by the device lock.
type Device struct {
	mu sync.Mutex

	ID          uint8
	AngleDeg    float64 // multi-turn angle
	SpeedRaw    int16   // 0.01 deg/s
	Current     int16
	Temperature int8
	VoltageRaw  uint16 // 0.01 V
	MotorState  byte
	ErrorFlags  byte
	Encoder     lkproto.Encoder
	Params      map[byte][lkproto.ParamDataSize]byte

	silent  map[byte]bool
	corrupt map[byte]bool
	counts  map[byte]int
	frames  [][]byte
}

// NewDevice creates a device answering as axis id
func NewDevice(id uint8) *Device {
	return &Device{
		ID:          id,
		Temperature: 30,
		VoltageRaw:  2400,
		Params:      make(map[byte][lkproto.ParamDataSize]byte),
		silent:      make(map[byte]bool),
		corrupt:     make(map[byte]bool),
		counts:      make(map[byte]int),
	}
}

// Channel returns a new in-memory channel wired to this device
func (d *Device) Channel() *Channel {
	return NewChannel(d.Handle)
}

// Silence makes the device ignore cmdID (true) or answer it again (false)
func (d *Device) Silence(cmdID byte, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent[cmdID] = on
}

// Corrupt makes replies to cmdID carry a bad data checksum
func (d *Device) Corrupt(cmdID byte, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.corrupt[cmdID] = on
}

// SetState updates the motion state reported by angle and status-2 reads
func (d *Device) SetState(angleDeg float64, speedRaw, current int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AngleDeg = angleDeg
	d.SpeedRaw = speedRaw
	d.Current = current
}

// Count returns how many frames with cmdID the device received
func (d *Device) Count(cmdID byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[cmdID]
}

// Frames returns every frame the device received, in order
func (d *Device) Frames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.frames))
	copy(out, d.frames)
	return out
}

// Handle answers one request frame
func (d *Device) Handle(frame []byte) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(frame) < lkproto.HeaderSize || frame[0] != lkproto.HeaderByte {
		return nil
	}
	cmd, axis := frame[1], frame[2]
	d.frames = append(d.frames, frame)
	d.counts[cmd]++

	if axis != d.ID || d.silent[cmd] {
		return nil
	}

	data, ok := d.replyData(cmd, frame[lkproto.HeaderSize:])
	if !ok {
		return nil
	}

	reply := lkproto.MustBuildFrame(cmd, d.ID, data)
	if d.corrupt[cmd] && len(data) > 0 {
		reply[len(reply)-1]++
	}
	return reply
}

func (d *Device) replyData(cmd byte, request []byte) ([]byte, bool) {
	switch cmd {
	case lkproto.CmdReadMultiTurnAngle:
		data := make([]byte, 8)
		binary.LittleEndian.PutUint64(data, uint64(int64(math.Round(d.AngleDeg*100))))
		return data, true

	case lkproto.CmdReadSingleTurnAngle:
		deg := math.Mod(d.AngleDeg, 360)
		if deg < 0 {
			deg += 360
		}
		data := make([]byte, 4)
		binary.LittleEndian.PutUint32(data, uint32(math.Round(deg*100)))
		return data, true

	case lkproto.CmdReadStatus1:
		data := make([]byte, 7)
		data[0] = byte(d.Temperature)
		binary.LittleEndian.PutUint16(data[1:3], d.VoltageRaw)
		data[5] = d.MotorState
		data[6] = d.ErrorFlags
		return data, true

	case lkproto.CmdReadStatus2:
		data := make([]byte, 7)
		data[0] = byte(d.Temperature)
		binary.LittleEndian.PutUint16(data[1:3], uint16(d.Current))
		binary.LittleEndian.PutUint16(data[3:5], uint16(d.SpeedRaw))
		binary.LittleEndian.PutUint16(data[5:7], d.Encoder.Position)
		return data, true

	case lkproto.CmdReadEncoder:
		data := make([]byte, 6)
		binary.LittleEndian.PutUint16(data[0:2], d.Encoder.Position)
		binary.LittleEndian.PutUint16(data[2:4], d.Encoder.Raw)
		binary.LittleEndian.PutUint16(data[4:6], d.Encoder.Offset)
		return data, true

	case lkproto.CmdParamRead:
		if len(request) < 2 {
			return nil, false
		}
		id := request[0]
		block := d.Params[id]
		return append([]byte{id}, block[:]...), true

	case lkproto.CmdParamWriteRAM, lkproto.CmdParamWriteROM:
		if len(request) >= 1+lkproto.ParamDataSize {
			var block [lkproto.ParamDataSize]byte
			copy(block[:], request[1:1+lkproto.ParamDataSize])
			d.Params[request[0]] = block
		}
		return nil, false
	}

	// Actions and setpoints are not acknowledged
	return nil, false
}
