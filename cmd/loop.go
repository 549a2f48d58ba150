// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Thermoquad/servolink/pkg/control"
	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/Thermoquad/servolink/pkg/telemetry"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
)

// loopFlags are shared by the control loop commands
type loopFlags struct {
	record string
	ticks  uint64
	settle time.Duration
	quiet  bool
}

func (f *loopFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.record, "record", "", "Record every tick to a CBOR telemetry file")
	flags.Uint64Var(&f.ticks, "ticks", 0, "Stop after this many ticks (0 runs until interrupted)")
	flags.DurationVar(&f.settle, "settle", 500*time.Millisecond, "Delay after enable and after zeroing")
	flags.BoolVar(&f.quiet, "quiet", false, "Do not print per-tick output")
}

// runControlLoop opens the configured axes and runs law until interrupted
func runControlLoop(law control.Law, period time.Duration, minAxes int, f loopFlags) (err error) {
	set, err := openAxes(appConfig, minAxes)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, set.Close()) }()

	for _, info := range set.infos {
		fmt.Println(info)
	}

	opts := []control.LoopOption{
		control.WithLoopLogger(logger),
		control.WithSettleDelay(f.settle),
		control.WithMaxTicks(f.ticks),
	}

	recordPath := f.record
	if recordPath == "" {
		recordPath = appConfig.TelemetryFile
	}
	if recordPath != "" {
		ids := make([]uint8, len(set.axes))
		for i, a := range set.axes {
			ids[i] = a.ID()
		}
		hostname, _ := os.Hostname()
		rec, cerr := telemetry.Create(recordPath, telemetry.Header{
			Law:      law.Name(),
			Period:   period,
			AxisIDs:  ids,
			Started:  time.Now(),
			Hostname: hostname,
		})
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := rec.Close(); cerr != nil {
				err = multierr.Append(err, fmt.Errorf("close telemetry: %w", cerr))
			}
			fmt.Printf("Recorded %d ticks to %s\n", rec.Count(), recordPath)
		}()
		opts = append(opts, control.WithRecorder(rec))
	}

	if !f.quiet {
		opts = append(opts, control.WithTickHook(printTick))
	}

	loop, err := control.NewLoop(set.axes, law, period, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("Running %s at %v (Ctrl+C to stop)\n\n", law.Name(), period)
	runErr := loop.Run(ctx)

	fmt.Println()
	fmt.Print(loop.Statistics().String())
	fmt.Print(set.stats.String())
	return runErr
}

// printTick prints one line per tick, throttled to every 50th tick plus
// every skipped or overrun tick
func printTick(r control.TickReport) {
	if r.Index%50 != 0 && !r.Skipped && !r.Overrun {
		return
	}

	line := fmt.Sprintf("[%6d] %6.2fms", r.Index, float64(r.Elapsed.Microseconds())/1000.0)
	for _, a := range r.Axes {
		if !a.State.Valid {
			line += fmt.Sprintf(" | axis %d: invalid", a.ID)
			continue
		}
		line += fmt.Sprintf(" | axis %d: %+8.2f° %+8.2f°/s out=%+.3f",
			a.ID, lkproto.RadToDeg(a.State.Position), lkproto.RadToDeg(a.State.Velocity), a.Output)
	}
	if r.Overrun {
		line += " OVERRUN"
	}
	if r.Skipped {
		line += " SKIPPED (" + r.SkipReason + ")"
	}
	fmt.Println(line)
}

// parsePeriod accepts a Go duration or a bare number of milliseconds
func parsePeriod(s string) (time.Duration, error) {
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		s = strconv.FormatFloat(ms, 'f', -1, 64) + "ms"
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("period must be positive, got %v", d)
	}
	return d, nil
}

func errExactlyTwoAxes(n int) error {
	return fmt.Errorf("mirror needs exactly 2 axes, have %d", n)
}
