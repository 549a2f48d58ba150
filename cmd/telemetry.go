// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/Thermoquad/servolink/pkg/telemetry"
	"github.com/spf13/cobra"
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Inspect recorded telemetry files",
}

var telemetryDumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the ticks of a telemetry file",
	Long: `Decode a CBOR telemetry file written with --record and print its header,
every tick, and a summary. Use --summary to print only the header and summary.`,
	Args: cobra.ExactArgs(1),
	RunE: runTelemetryDump,
}

var telemetrySummaryOnly bool

func init() {
	rootCmd.AddCommand(telemetryCmd)
	telemetryCmd.AddCommand(telemetryDumpCmd)
	telemetryDumpCmd.Flags().BoolVar(&telemetrySummaryOnly, "summary", false, "Print only the header and summary")
}

func runTelemetryDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := telemetry.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	h := r.Header()
	fmt.Printf("Law:      %s\n", h.Law)
	fmt.Printf("Period:   %v\n", h.Period)
	fmt.Printf("Axes:     %v\n", h.AxisIDs)
	fmt.Printf("Started:  %s\n", h.Started.Format("2006-01-02 15:04:05.000"))
	if h.Hostname != "" {
		fmt.Printf("Host:     %s\n", h.Hostname)
	}
	fmt.Println()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	sum, err := r.Summarize(func(rec telemetry.TickRecord) {
		if !telemetrySummaryOnly {
			fmt.Fprintln(out, formatTickRecord(rec))
		}
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTicks: %d  Skipped: %d  Overruns: %d  Avg: %v  Max: %v\n",
		sum.Ticks, sum.Skipped, sum.Overruns, sum.AvgElapsed, sum.MaxElapsed)
	return nil
}

func formatTickRecord(rec telemetry.TickRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%6d] %s %8v", rec.Index, rec.Start.Format("15:04:05.000"), rec.Elapsed)

	for _, a := range rec.Axes {
		switch {
		case a.Error != "":
			fmt.Fprintf(&b, " | %d: %s", a.ID, a.Error)
		case !a.Valid:
			fmt.Fprintf(&b, " | %d: invalid", a.ID)
		default:
			fmt.Fprintf(&b, " | %d: %+.2f° %+.2f°/s out=%+.3f",
				a.ID, lkproto.RadToDeg(a.Position), lkproto.RadToDeg(a.Velocity), a.Output)
		}
	}
	if rec.Overrun {
		b.WriteString(" OVERRUN")
	}
	if rec.Skipped {
		fmt.Fprintf(&b, " SKIPPED (%s)", rec.SkipReason)
	}
	return b.String()
}
