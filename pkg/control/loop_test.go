// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/Thermoquad/servolink/pkg/link"
	"github.com/Thermoquad/servolink/pkg/link/linktest"
	"github.com/Thermoquad/servolink/pkg/lkproto"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// fakeClock advances by step on every Now call; Sleep advances by the
// requested duration and records it
type fakeClock struct {
	mu    sync.Mutex
	t     time.Time
	step  time.Duration
	slept []time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0), step: step}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

type rig struct {
	devs  []*linktest.Device
	chans []*linktest.Channel
	axes  []*axis.Axis
}

func newRig(t *testing.T, ids ...uint8) *rig {
	t.Helper()
	r := &rig{}
	for _, id := range ids {
		dev := linktest.NewDevice(id)
		ch := dev.Channel()
		s, err := link.NewSession(ch, id, 5*time.Millisecond)
		if err != nil {
			t.Fatalf("NewSession failed: %v", err)
		}
		r.devs = append(r.devs, dev)
		r.chans = append(r.chans, ch)
		r.axes = append(r.axes, axis.New(s))
	}
	return r
}

type memRecorder struct {
	reports []TickReport
}

func (m *memRecorder) Record(r TickReport) error {
	m.reports = append(m.reports, r)
	return nil
}

func mirrorParams() Params {
	// One iq step per N·m keeps expected frames readable
	return Params{Kp: 1000, Kd: 0, TorqueLimit: 100, Period: 10 * time.Millisecond, TorqueConstant: lkproto.IqPerAmp}
}

// ============================================================
// Tick Tests
// ============================================================

func TestTick_MirrorDispatch(t *testing.T) {
	r := newRig(t, 1, 2)
	r.devs[0].SetState(10, 0, 0)
	r.devs[1].SetState(0, 0, 0)
	clock := newFakeClock(time.Millisecond)

	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	report := l.Tick(context.Background())
	if report.Skipped {
		t.Fatalf("tick skipped: %s", report.SkipReason)
	}
	if report.Axes[0].Output != -100 || report.Axes[1].Output != 100 {
		t.Errorf("outputs = (%v, %v), want (-100, 100)", report.Axes[0].Output, report.Axes[1].Output)
	}

	for i, want := range []int{-100, 100} {
		frames := r.devs[i].Frames()
		last := frames[len(frames)-1]
		expected := lkproto.MustBuildFrame(lkproto.CmdTorque, r.devs[i].ID, lkproto.EncodeTorque(want))
		if !bytes.Equal(last, expected) {
			t.Errorf("axis %d torque frame = % X, want % X", i+1, last, expected)
		}
	}
}

func TestTick_DefaultParamsDriveTorque(t *testing.T) {
	r := newRig(t, 1, 2)
	r.devs[0].SetState(10, 0, 0)
	r.devs[1].SetState(0, 0, 0)
	clock := newFakeClock(time.Millisecond)
	p := DefaultParams()

	l, err := NewLoop(r.axes, NewMirrorLaw(p), p.Period, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	report := l.Tick(context.Background())
	if report.Skipped {
		t.Fatalf("tick skipped: %s", report.SkipReason)
	}

	want := p.TorqueCurrent(10 * p.Kp)
	for i, sign := range []int{-1, 1} {
		frames := r.devs[i].Frames()
		last := frames[len(frames)-1]
		if last[1] != lkproto.CmdTorque {
			t.Fatalf("axis %d: last command 0x%02X, want torque", i+1, last[1])
		}
		iq := int(int16(binary.LittleEndian.Uint16(last[lkproto.HeaderSize:])))
		if iq == 0 {
			t.Errorf("axis %d: zero torque current for a 10° error", i+1)
		}
		if iq != sign*want {
			t.Errorf("axis %d: iq = %d, want %d", i+1, iq, sign*want)
		}
	}
}

func TestTick_RefreshBeforeDispatch(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(time.Millisecond)
	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	l.Tick(context.Background())

	for i, dev := range r.devs {
		frames := dev.Frames()
		if len(frames) != 3 {
			t.Fatalf("axis %d: expected 3 frames, got %d", i+1, len(frames))
		}
		got := []byte{frames[0][1], frames[1][1], frames[2][1]}
		want := []byte{lkproto.CmdReadMultiTurnAngle, lkproto.CmdReadStatus2, lkproto.CmdTorque}
		if !bytes.Equal(got, want) {
			t.Errorf("axis %d command order = % X, want % X", i+1, got, want)
		}
	}
}

func TestTick_SleepsRemainder(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(4 * time.Millisecond)
	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	report := l.Tick(context.Background())
	if report.Overrun {
		t.Error("unexpected overrun")
	}
	if report.Elapsed != 4*time.Millisecond || report.Slept != 6*time.Millisecond {
		t.Errorf("elapsed %v slept %v, want 4ms and 6ms", report.Elapsed, report.Slept)
	}
	if slept := clock.Slept(); len(slept) != 1 || slept[0] != 6*time.Millisecond {
		t.Errorf("sleeps = %v", slept)
	}
}

func TestTick_OverrunNoSleep(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(15 * time.Millisecond)
	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	first := l.Tick(context.Background())
	second := l.Tick(context.Background())

	if !first.Overrun || first.Slept != 0 {
		t.Errorf("first tick: overrun=%v slept=%v", first.Overrun, first.Slept)
	}
	if len(clock.Slept()) != 0 {
		t.Errorf("loop slept after overrun: %v", clock.Slept())
	}
	// Next tick starts immediately: no gap beyond the clock's own step
	if gap := second.Start.Sub(first.Start); gap != 2*15*time.Millisecond {
		t.Errorf("gap between ticks = %v, want 30ms", gap)
	}
	if second.Index != first.Index+1 {
		t.Errorf("tick indices %d, %d", first.Index, second.Index)
	}
	if first.Skipped {
		t.Error("overrun tick must not skip work")
	}

	c := l.Statistics().Snapshot()
	if c.Overruns != 2 || c.Ticks != 2 {
		t.Errorf("statistics = %+v", c)
	}
}

func TestTick_ExactPeriodIsOverrun(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(10 * time.Millisecond)
	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	if report := l.Tick(context.Background()); !report.Overrun {
		t.Error("elapsed == period must report overrun")
	}
}

func TestTick_SkipsOnInvalidAxis(t *testing.T) {
	r := newRig(t, 1, 2)
	r.devs[1].Silence(lkproto.CmdReadStatus2, true)
	clock := newFakeClock(time.Millisecond)
	rec := &memRecorder{}

	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond,
		WithClock(clock.Now, clock.Sleep), WithRecorder(rec))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	report := l.Tick(context.Background())
	if !report.Skipped {
		t.Fatal("tick not skipped")
	}
	if !strings.Contains(report.SkipReason, "2") {
		t.Errorf("skip reason = %q", report.SkipReason)
	}
	if report.Axes[1].Err == nil || report.Axes[1].State.Valid {
		t.Errorf("axis 2 sample = %+v", report.Axes[1])
	}

	for i, dev := range r.devs {
		if n := dev.Count(lkproto.CmdTorque); n != 0 {
			t.Errorf("axis %d received %d torque commands on a skipped tick", i+1, n)
		}
	}
	if len(clock.Slept()) != 1 {
		t.Error("skipped tick must still keep the period")
	}
	if len(rec.reports) != 1 || !rec.reports[0].Skipped {
		t.Errorf("recorded reports = %+v", rec.reports)
	}

	// Recovery on the next tick
	r.devs[1].Silence(lkproto.CmdReadStatus2, false)
	if report := l.Tick(context.Background()); report.Skipped {
		t.Errorf("tick skipped after recovery: %s", report.SkipReason)
	}
	if c := l.Statistics().Snapshot(); c.Skipped != 1 || c.Ticks != 2 {
		t.Errorf("statistics = %+v", c)
	}
}

func TestTick_DispatchErrorIsNotFatal(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(time.Millisecond)
	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	// Fail the torque write only; reads still succeed
	r.chans[0].FailCommand(lkproto.CmdTorque, errors.New("torque write failed"))

	report := l.Tick(context.Background())
	if report.Skipped {
		t.Fatalf("tick skipped: %s", report.SkipReason)
	}
	if report.Axes[0].Commanded || report.Axes[0].Err == nil {
		t.Errorf("axis 1 sample = %+v", report.Axes[0])
	}
	if !report.Axes[1].Commanded {
		t.Error("axis 2 should still be commanded")
	}
	if report.DispatchErrors != 1 {
		t.Errorf("DispatchErrors = %d, want 1", report.DispatchErrors)
	}
}

func TestTick_ImpedanceFireAndForget(t *testing.T) {
	r := newRig(t, 1)
	r.devs[0].SetState(30, 0, 0)
	clock := newFakeClock(time.Millisecond)

	l, err := NewLoop(r.axes, NewImpedanceLaw(DefaultImpedanceParams()), 20*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	report := l.Tick(context.Background())
	if report.Skipped {
		t.Fatalf("tick skipped: %s", report.SkipReason)
	}
	if math.Abs(report.Axes[0].Output-50) > 1e-9 || !report.Axes[0].Commanded {
		t.Errorf("sample = %+v", report.Axes[0])
	}
	if r.devs[0].Count(lkproto.CmdImpedance) != 1 {
		t.Error("impedance command not sent")
	}
}

// ============================================================
// Run / Shutdown Tests
// ============================================================

func TestRun_FullSequence(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(time.Millisecond)
	var hooked int

	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond,
		WithClock(clock.Now, clock.Sleep), WithMaxTicks(3), WithSettleDelay(500*time.Millisecond),
		WithTickHook(func(TickReport) { hooked++ }))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if hooked != 3 {
		t.Errorf("tick hook called %d times, want 3", hooked)
	}

	for i, dev := range r.devs {
		frames := dev.Frames()
		if frames[0][1] != lkproto.CmdEnable || frames[1][1] != lkproto.CmdSetZeroROM {
			t.Errorf("axis %d startup = 0x%02X 0x%02X", i+1, frames[0][1], frames[1][1])
		}
		if last := frames[len(frames)-1]; last[1] != lkproto.CmdDisable {
			t.Errorf("axis %d last command = 0x%02X, want DISABLE", i+1, last[1])
		}
		if dev.Count(lkproto.CmdTorque) != 3 {
			t.Errorf("axis %d torque commands = %d, want 3", i+1, dev.Count(lkproto.CmdTorque))
		}
		if r.axes[i].Phase() != axis.Disabled {
			t.Errorf("axis %d phase = %s", i+1, r.axes[i].Phase())
		}
	}

	slept := clock.Slept()
	if len(slept) < 2 || slept[0] != 500*time.Millisecond || slept[1] != 500*time.Millisecond {
		t.Errorf("settle sleeps = %v", slept)
	}
}

func TestRun_CancelledContextStillDisables(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond,
		WithClock(clock.Now, clock.Sleep), WithTickHook(func(rep TickReport) {
			if rep.Index == 1 {
				cancel()
			}
		}))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := l.Statistics().Snapshot().Ticks; got != 2 {
		t.Errorf("ticks = %d, want 2", got)
	}
	for i, dev := range r.devs {
		if dev.Count(lkproto.CmdDisable) != 1 {
			t.Errorf("axis %d not disabled", i+1)
		}
	}
}

func TestRun_StartupFailureStillDisables(t *testing.T) {
	r := newRig(t, 1, 2)
	clock := newFakeClock(time.Millisecond)
	r.chans[0].FailCommand(lkproto.CmdSetZeroROM, errors.New("zero failed"))

	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}

	err = l.Run(context.Background())
	if err == nil {
		t.Fatal("expected startup error")
	}
	if l.Statistics().Snapshot().Ticks != 0 {
		t.Error("loop ticked after failed startup")
	}
	if r.devs[1].Count(lkproto.CmdDisable) != 1 {
		t.Error("healthy axis not disabled after startup failure")
	}
}

func TestShutdown_ContinuesAfterFailure(t *testing.T) {
	r := newRig(t, 1, 2, 3)
	clock := newFakeClock(time.Millisecond)
	r.chans[0].SetWriteError(errors.New("axis 1 gone"))
	r.chans[2].SetWriteError(errors.New("axis 3 gone"))

	l, err := NewLoop(r.axes, NewImpedanceLaw(DefaultImpedanceParams()), 10*time.Millisecond, WithClock(clock.Now, clock.Sleep))
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	defer l.coord.Close()

	err = l.Shutdown()
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "axis 1 gone") || !strings.Contains(err.Error(), "axis 3 gone") {
		t.Errorf("combined error = %v", err)
	}
	if r.devs[1].Count(lkproto.CmdDisable) != 1 {
		t.Error("axis 2 not disabled")
	}
	for i, a := range r.axes {
		if a.Phase() != axis.Disabled {
			t.Errorf("axis %d phase = %s", i+1, a.Phase())
		}
	}
}

func TestShutdown_AfterCoordinatorClosed(t *testing.T) {
	r := newRig(t, 1, 2)
	l, err := NewLoop(r.axes, NewMirrorLaw(mirrorParams()), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewLoop failed: %v", err)
	}
	l.coord.Close()

	if err := l.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	for i, dev := range r.devs {
		if dev.Count(lkproto.CmdDisable) != 1 {
			t.Errorf("axis %d not disabled", i+1)
		}
	}
}

func TestNewLoop_Validation(t *testing.T) {
	r := newRig(t, 1)
	law := NewMirrorLaw(mirrorParams())

	if _, err := NewLoop(nil, law, time.Millisecond); err == nil {
		t.Error("expected error for no axes")
	}
	if _, err := NewLoop(r.axes, nil, time.Millisecond); err == nil {
		t.Error("expected error for nil law")
	}
	if _, err := NewLoop(r.axes, law, 0); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestNewLoop_LawAxisCount(t *testing.T) {
	one := newRig(t, 1)
	three := newRig(t, 1, 2, 3)

	if _, err := NewLoop(one.axes, NewMirrorLaw(mirrorParams()), time.Millisecond); err == nil {
		t.Error("expected error for mirror over one axis")
	}
	if _, err := NewLoop(three.axes, NewMirrorLaw(mirrorParams()), time.Millisecond); err == nil {
		t.Error("expected error for mirror over three axes")
	}

	fixed := NewImpedanceLawWithTargets(DefaultImpedanceParams(), []float64{0, 90})
	if _, err := NewLoop(three.axes, fixed, time.Millisecond); err == nil {
		t.Error("expected error for two targets over three axes")
	}

	l, err := NewLoop(three.axes, NewImpedanceLaw(DefaultImpedanceParams()), time.Millisecond)
	if err != nil {
		t.Fatalf("captured-target impedance should accept any axis count: %v", err)
	}
	l.coord.Close()
}

func TestTickStatistics_String(t *testing.T) {
	s := NewTickStatistics()
	s.Record(TickReport{Elapsed: 2 * time.Millisecond})
	s.Record(TickReport{Elapsed: 4 * time.Millisecond, Skipped: true})
	s.Record(TickReport{Elapsed: 12 * time.Millisecond, Overrun: true, DispatchErrors: 1})

	c := s.Snapshot()
	if c.MinElapsed != 2*time.Millisecond || c.MaxElapsed != 12*time.Millisecond || c.AvgElapsed() != 6*time.Millisecond {
		t.Errorf("timing = %+v avg %v", c, c.AvgElapsed())
	}
	out := s.String()
	for _, want := range []string{"Ticks:", "Overruns:", "Dispatch Errors:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
