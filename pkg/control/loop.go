// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/servolink/pkg/axis"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// AxisSample is one axis's contribution to a tick
type AxisSample struct {
	ID        uint8
	State     axis.State
	Output    float64
	Commanded bool
	Err       error // refresh or dispatch failure
}

// TickReport describes one completed tick
type TickReport struct {
	Index   uint64
	Start   time.Time
	Elapsed time.Duration // refresh, compute and dispatch
	Slept   time.Duration
	Overrun bool

	Skipped    bool
	SkipReason string

	DispatchErrors int
	Axes           []AxisSample
}

// Recorder persists tick reports
type Recorder interface {
	Record(r TickReport) error
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration)

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Loop is the fixed-period controller. Each tick refreshes every axis,
// checks validity, computes the law and dispatches its commands, with a
// barrier between phases.
type Loop struct {
	coord  *Coordinator
	law    Law
	period time.Duration
	settle time.Duration

	now   func() time.Time
	sleep SleepFunc

	stats    *TickStatistics
	recorder Recorder
	onTick   func(TickReport)
	maxTicks uint64

	tick uint64
	log  zerolog.Logger
}

// LoopOption customizes a Loop
type LoopOption func(*Loop)

// WithLoopLogger sets the loop logger
func WithLoopLogger(log zerolog.Logger) LoopOption {
	return func(l *Loop) { l.log = log }
}

// WithClock replaces the time source and sleeper
func WithClock(now func() time.Time, sleep SleepFunc) LoopOption {
	return func(l *Loop) {
		l.now = now
		l.sleep = sleep
	}
}

// WithSettleDelay waits d after enable and after zeroing
func WithSettleDelay(d time.Duration) LoopOption {
	return func(l *Loop) { l.settle = d }
}

// WithRecorder records every tick report
func WithRecorder(r Recorder) LoopOption {
	return func(l *Loop) { l.recorder = r }
}

// WithTickStatistics shares a statistics tracker with the loop
func WithTickStatistics(s *TickStatistics) LoopOption {
	return func(l *Loop) { l.stats = s }
}

// WithTickHook calls fn after every tick
func WithTickHook(fn func(TickReport)) LoopOption {
	return func(l *Loop) { l.onTick = fn }
}

// WithMaxTicks stops the loop after n ticks (0 runs until cancelled)
func WithMaxTicks(n uint64) LoopOption {
	return func(l *Loop) { l.maxTicks = n }
}

// NewLoop creates a loop over axes. The loop owns a coordinator whose
// workers live until Run returns.
func NewLoop(axes []*axis.Axis, law Law, period time.Duration, opts ...LoopOption) (*Loop, error) {
	if len(axes) == 0 {
		return nil, fmt.Errorf("no axes to control")
	}
	if law == nil {
		return nil, fmt.Errorf("nil control law")
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %v", period)
	}
	if n := law.Axes(); n > 0 && n != len(axes) {
		return nil, fmt.Errorf("%s law drives %d axes, got %d", law.Name(), n, len(axes))
	}

	l := &Loop{
		law:    law,
		period: period,
		now:    time.Now,
		sleep:  sleepContext,
		stats:  NewTickStatistics(),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.coord = NewCoordinator(axes)
	return l, nil
}

// Statistics returns the loop's tick statistics
func (l *Loop) Statistics() *TickStatistics {
	return l.stats
}

// Run enables and zeroes every axis, ticks until ctx is cancelled (or the
// tick limit is reached), then disables every axis. Disable is attempted on
// all axes even when startup failed. The returned error combines startup
// and shutdown failures.
func (l *Loop) Run(ctx context.Context) error {
	defer l.coord.Close()

	startErr := l.Startup(ctx)
	if startErr == nil {
		l.log.Info().Str("law", l.law.Name()).Dur("period", l.period).Int("axes", len(l.coord.Axes())).Msg("control loop running")
		for ctx.Err() == nil {
			if l.maxTicks > 0 && l.tick >= l.maxTicks {
				break
			}
			l.Tick(ctx)
		}
	}

	shutdownErr := l.Shutdown()
	l.log.Info().Uint64("ticks", l.tick).Msg("control loop stopped")
	return multierr.Append(startErr, shutdownErr)
}

// Startup runs Enable, then Zero, on every axis and marks them Running
func (l *Loop) Startup(ctx context.Context) error {
	steps := []struct {
		name string
		fn   PhaseFunc
	}{
		{"enable", func(_ int, a *axis.Axis) error { return a.Enable() }},
		{"zero", func(_ int, a *axis.Axis) error { return a.Zero() }},
		{"start", func(_ int, a *axis.Axis) error { return a.Start() }},
	}

	for _, step := range steps {
		errs, err := l.coord.RunPhase(step.fn)
		if err != nil {
			return err
		}
		if err := multierr.Combine(errs...); err != nil {
			return fmt.Errorf("startup %s: %w", step.name, err)
		}
		if l.settle > 0 && step.name != "start" {
			l.sleep(ctx, l.settle)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// Tick runs one refresh, compute and dispatch cycle, then sleeps out the
// rest of the period. When the work took the whole period or longer the
// tick is reported as an overrun and no sleep happens.
func (l *Loop) Tick(ctx context.Context) TickReport {
	axes := l.coord.Axes()
	report := TickReport{
		Index: l.tick,
		Start: l.now(),
		Axes:  make([]AxisSample, len(axes)),
	}
	l.tick++
	log := l.log.With().Uint64("tick", report.Index).Logger()

	l.refresh(&report, log)
	if !report.Skipped {
		l.dispatch(&report, log)
	}

	report.Elapsed = l.now().Sub(report.Start)
	if report.Elapsed < l.period {
		report.Slept = l.period - report.Elapsed
		l.sleep(ctx, report.Slept)
	} else {
		report.Overrun = true
		log.Warn().Dur("elapsed", report.Elapsed).Dur("period", l.period).Msg("tick overrun")
	}

	l.stats.Record(report)
	if l.recorder != nil {
		if err := l.recorder.Record(report); err != nil {
			log.Warn().Err(err).Msg("failed to record tick")
		}
	}
	if l.onTick != nil {
		l.onTick(report)
	}
	return report
}

func (l *Loop) refresh(report *TickReport, log zerolog.Logger) {
	axes := l.coord.Axes()

	errs, err := l.coord.RunPhase(func(_ int, a *axis.Axis) error {
		return a.Refresh()
	})
	if err != nil {
		report.Skipped = true
		report.SkipReason = err.Error()
		return
	}

	var invalid []int
	for i, a := range axes {
		report.Axes[i] = AxisSample{ID: a.ID(), State: a.State(), Err: errs[i]}
		if !a.IsValid() {
			invalid = append(invalid, int(a.ID()))
		}
	}

	if len(invalid) > 0 {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("invalid axes %v", invalid)
		log.Warn().Ints("axes", invalid).Msg("skipping tick, axis state invalid")
	}
}

func (l *Loop) dispatch(report *TickReport, log zerolog.Logger) {
	states := make([]axis.State, len(report.Axes))
	for i, s := range report.Axes {
		states[i] = s.State
	}

	outputs, err := l.law.Compute(states)
	if err != nil {
		report.Skipped = true
		report.SkipReason = err.Error()
		if !errors.Is(err, ErrPrecondition) {
			log.Error().Err(err).Msg("control law failed")
		} else {
			log.Warn().Err(err).Msg("skipping tick")
		}
		return
	}
	if len(outputs) != len(states) {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("law produced %d outputs for %d axes", len(outputs), len(states))
		log.Error().Msg(report.SkipReason)
		return
	}

	errs, err := l.coord.RunPhase(func(i int, a *axis.Axis) error {
		return a.Send(outputs[i].Command)
	})
	if err != nil {
		report.Skipped = true
		report.SkipReason = err.Error()
		return
	}

	for i := range outputs {
		report.Axes[i].Output = outputs[i].Value
		report.Axes[i].Commanded = errs[i] == nil
		if errs[i] != nil {
			report.Axes[i].Err = errs[i]
			report.DispatchErrors++
			log.Warn().Err(errs[i]).Uint8("axis", report.Axes[i].ID).Msg("dispatch failed")
		}
	}
}

// Shutdown disables every axis. A failure on one axis never prevents the
// others from being disabled; all failures are logged and combined.
func (l *Loop) Shutdown() error {
	axes := l.coord.Axes()

	errs, err := l.coord.RunPhase(func(_ int, a *axis.Axis) error {
		return a.Disable()
	})
	if err != nil {
		// Workers are gone; disable sequentially on this goroutine
		errs = make([]error, len(axes))
		for i, a := range axes {
			errs[i] = a.Disable()
		}
	}

	for i, err := range errs {
		if err != nil {
			l.log.Error().Err(err).Uint8("axis", axes[i].ID()).Msg("failed to disable axis")
		}
	}
	return multierr.Combine(errs...)
}
