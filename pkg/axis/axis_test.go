// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package axis

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Thermoquad/servolink/pkg/link"
	"github.com/Thermoquad/servolink/pkg/link/linktest"
	"github.com/Thermoquad/servolink/pkg/lkproto"
)

func newTestAxis(t *testing.T, dev *linktest.Device) (*Axis, *linktest.Channel) {
	t.Helper()
	ch := dev.Channel()
	s, err := link.NewSession(ch, dev.ID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return New(s), ch
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============================================================
// Refresh Tests
// ============================================================

func TestRefresh_PopulatesState(t *testing.T) {
	dev := linktest.NewDevice(1)
	dev.SetState(90, 18000, -250) // 180 deg/s
	a, _ := newTestAxis(t, dev)

	if a.IsValid() {
		t.Fatal("new axis must start invalid")
	}
	if err := a.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	st := a.State()
	if !st.Valid || !a.IsValid() {
		t.Fatal("state not valid after refresh")
	}
	if !approx(st.Position, math.Pi/2) {
		t.Errorf("Position = %v, want pi/2", st.Position)
	}
	if !approx(st.Velocity, math.Pi) {
		t.Errorf("Velocity = %v, want pi", st.Velocity)
	}
	if st.Torque != -250 {
		t.Errorf("Torque = %v, want -250", st.Torque)
	}
}

func TestRefresh_OrderOfTransactions(t *testing.T) {
	dev := linktest.NewDevice(2)
	a, _ := newTestAxis(t, dev)

	if err := a.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	frames := dev.Frames()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0][1] != lkproto.CmdReadMultiTurnAngle || frames[1][1] != lkproto.CmdReadStatus2 {
		t.Errorf("commands = 0x%02X, 0x%02X", frames[0][1], frames[1][1])
	}
}

func TestRefresh_AtomicOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		inject func(*linktest.Device)
		check  func(error) bool
	}{
		{
			"second transaction times out",
			func(d *linktest.Device) { d.Silence(lkproto.CmdReadStatus2, true) },
			func(err error) bool { var e *lkproto.TimeoutError; return errors.As(err, &e) },
		},
		{
			"second transaction corrupt",
			func(d *linktest.Device) { d.Corrupt(lkproto.CmdReadStatus2, true) },
			func(err error) bool { var e *lkproto.ChecksumError; return errors.As(err, &e) },
		},
		{
			"first transaction times out",
			func(d *linktest.Device) { d.Silence(lkproto.CmdReadMultiTurnAngle, true) },
			func(err error) bool { var e *lkproto.TimeoutError; return errors.As(err, &e) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := linktest.NewDevice(1)
			dev.SetState(45, 100, 7)
			a, _ := newTestAxis(t, dev)

			if err := a.Refresh(); err != nil {
				t.Fatalf("initial Refresh failed: %v", err)
			}

			dev.SetState(90, 200, 8)
			tt.inject(dev)

			err := a.Refresh()
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.IsValid() {
				t.Error("state still valid after failed refresh")
			}
			if st := a.State(); st != (State{}) {
				t.Errorf("state partially populated: %+v", st)
			}
			if a.LastError() == nil {
				t.Error("LastError not recorded")
			}
		})
	}
}

func TestRefresh_RecoversNextTick(t *testing.T) {
	dev := linktest.NewDevice(1)
	a, _ := newTestAxis(t, dev)

	dev.Silence(lkproto.CmdReadStatus2, true)
	if err := a.Refresh(); err == nil {
		t.Fatal("expected failure")
	}
	dev.Silence(lkproto.CmdReadStatus2, false)
	if err := a.Refresh(); err != nil {
		t.Fatalf("Refresh failed after recovery: %v", err)
	}
	if !a.IsValid() || a.LastError() != nil {
		t.Error("axis did not recover")
	}
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestLifecycle(t *testing.T) {
	dev := linktest.NewDevice(1)
	a, _ := newTestAxis(t, dev)

	if a.Phase() != Disabled {
		t.Fatalf("initial phase = %s", a.Phase())
	}
	if err := a.Start(); err == nil {
		t.Error("Start from Disabled should fail")
	}

	steps := []struct {
		do   func() error
		want Phase
	}{
		{a.Enable, Enabled},
		{a.Zero, Zeroed},
		{a.Start, Running},
		{a.Disable, Disabled},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("step to %s failed: %v", s.want, err)
		}
		if a.Phase() != s.want {
			t.Errorf("phase = %s, want %s", a.Phase(), s.want)
		}
	}

	want := []byte{lkproto.CmdEnable, lkproto.CmdSetZeroROM, lkproto.CmdDisable}
	frames := dev.Frames()
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(frames))
	}
	for i, id := range want {
		if frames[i][1] != id {
			t.Errorf("frame %d command = 0x%02X, want 0x%02X", i, frames[i][1], id)
		}
	}
}

func TestDisable_FailureStillDisables(t *testing.T) {
	dev := linktest.NewDevice(1)
	a, ch := newTestAxis(t, dev)

	a.Enable()
	a.Zero()
	a.Start()
	ch.SetWriteError(errors.New("unplugged"))

	if err := a.Disable(); err == nil {
		t.Fatal("expected disable error")
	}
	if a.Phase() != Disabled {
		t.Errorf("phase = %s, want DISABLED", a.Phase())
	}
}

func TestPhase_String(t *testing.T) {
	if Running.String() != "RUNNING" || Phase(9).String() != "PHASE(9)" {
		t.Error("unexpected Phase strings")
	}
}

// ============================================================
// Command Helper Tests
// ============================================================

func TestReads(t *testing.T) {
	dev := linktest.NewDevice(4)
	dev.AngleDeg = -30.25
	dev.Temperature = -5
	dev.VoltageRaw = 1234
	dev.ErrorFlags = 0x08
	dev.Encoder = lkproto.Encoder{Position: 100, Raw: 200, Offset: 300}
	a, _ := newTestAxis(t, dev)

	s1, err := a.ReadStatus1()
	if err != nil {
		t.Fatalf("ReadStatus1 failed: %v", err)
	}
	if s1.Temperature != -5 || !approx(s1.Voltage, 12.34) || s1.ErrorFlags != 0x08 {
		t.Errorf("status-1 = %+v", s1)
	}

	enc, err := a.ReadEncoder()
	if err != nil {
		t.Fatalf("ReadEncoder failed: %v", err)
	}
	if enc != dev.Encoder {
		t.Errorf("encoder = %+v, want %+v", enc, dev.Encoder)
	}

	single, err := a.ReadSingleTurnAngle()
	if err != nil {
		t.Fatalf("ReadSingleTurnAngle failed: %v", err)
	}
	if !approx(single, 329.75) {
		t.Errorf("single-turn = %v, want 329.75", single)
	}
}

func TestParamReadWrite(t *testing.T) {
	dev := linktest.NewDevice(1)
	a, _ := newTestAxis(t, dev)

	data := []byte{1, 2, 3, 4, 5, 6}
	if err := a.WriteParam(0x0A, data, true); err != nil {
		t.Fatalf("WriteParam failed: %v", err)
	}
	if dev.Count(lkproto.CmdParamWriteROM) != 1 {
		t.Error("ROM write not sent")
	}

	p, err := a.ReadParam(0x0A)
	if err != nil {
		t.Fatalf("ReadParam failed: %v", err)
	}
	if !bytes.Equal(p.Data[:], data) {
		t.Errorf("param data = % X, want % X", p.Data, data)
	}

	if err := a.WriteParam(0x0A, []byte{1, 2}, false); err == nil {
		t.Error("expected error for short parameter data")
	}
}

func TestSetImpedance_NeverBlocks(t *testing.T) {
	dev := linktest.NewDevice(1)
	a, ch := newTestAxis(t, dev)
	ch.SetWriteError(errors.New("down"))

	a.SetImpedance(lkproto.ImpedanceSetpoint{Position: 20, Kp: 2, Kd: 0.05})

	if got := a.Session().Statistics().Snapshot().DroppedSends; got != 1 {
		t.Errorf("DroppedSends = %d, want 1", got)
	}
}

func TestSetTorque_Frame(t *testing.T) {
	dev := linktest.NewDevice(1)
	a, _ := newTestAxis(t, dev)

	if err := a.SetTorque(3000); err != nil {
		t.Fatalf("SetTorque failed: %v", err)
	}
	frames := dev.Frames()
	want := lkproto.MustBuildFrame(lkproto.CmdTorque, 1, lkproto.EncodeTorque(2047))
	if !bytes.Equal(frames[0], want) {
		t.Errorf("frame = % X, want % X", frames[0], want)
	}
}
