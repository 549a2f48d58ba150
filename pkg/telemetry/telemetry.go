// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry records control loop ticks as a stream of CBOR
// messages. Each message is a two-element array [msg_type, payload_map]
// with integer map keys.
package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Thermoquad/servolink/pkg/control"
	"github.com/fxamacker/cbor/v2"
)

// Message types
const (
	MsgHeader uint8 = 0x01
	MsgTick   uint8 = 0x02
)

// FormatVersion is written in every header
const FormatVersion = 1

// Header opens a recording
type Header struct {
	Version  int           `cbor:"0,keyasint"`
	Law      string        `cbor:"1,keyasint"`
	Period   time.Duration `cbor:"2,keyasint"`
	AxisIDs  []uint8       `cbor:"3,keyasint"`
	Started  time.Time     `cbor:"4,keyasint"`
	Hostname string        `cbor:"5,keyasint,omitempty"`
}

// AxisSample is one axis in a tick record
type AxisSample struct {
	ID        uint8   `cbor:"0,keyasint"`
	Valid     bool    `cbor:"1,keyasint"`
	Position  float64 `cbor:"2,keyasint"` // radians
	Velocity  float64 `cbor:"3,keyasint"` // radians/second
	Torque    float64 `cbor:"4,keyasint"`
	Output    float64 `cbor:"5,keyasint"`
	Commanded bool    `cbor:"6,keyasint"`
	Error     string  `cbor:"7,keyasint,omitempty"`
}

// TickRecord is one recorded tick
type TickRecord struct {
	Index      uint64        `cbor:"0,keyasint"`
	Start      time.Time     `cbor:"1,keyasint"`
	Elapsed    time.Duration `cbor:"2,keyasint"`
	Slept      time.Duration `cbor:"3,keyasint"`
	Overrun    bool          `cbor:"4,keyasint"`
	Skipped    bool          `cbor:"5,keyasint"`
	SkipReason string        `cbor:"6,keyasint,omitempty"`
	Axes       []AxisSample  `cbor:"7,keyasint"`
}

type envelope struct {
	_       struct{} `cbor:",toarray"`
	Type    uint8
	Payload cbor.RawMessage
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("telemetry: invalid CBOR options: %v", err))
	}
}

// FromReport converts a loop tick report to a record
func FromReport(r control.TickReport) TickRecord {
	rec := TickRecord{
		Index:      r.Index,
		Start:      r.Start,
		Elapsed:    r.Elapsed,
		Slept:      r.Slept,
		Overrun:    r.Overrun,
		Skipped:    r.Skipped,
		SkipReason: r.SkipReason,
		Axes:       make([]AxisSample, len(r.Axes)),
	}
	for i, a := range r.Axes {
		s := AxisSample{
			ID:        a.ID,
			Valid:     a.State.Valid,
			Position:  a.State.Position,
			Velocity:  a.State.Velocity,
			Torque:    a.State.Torque,
			Output:    a.Output,
			Commanded: a.Commanded,
		}
		if a.Err != nil {
			s.Error = a.Err.Error()
		}
		rec.Axes[i] = s
	}
	return rec
}

// ============================================================
// Writer
// ============================================================

// Writer appends messages to a stream. It implements control.Recorder.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	count  uint64
}

var _ control.Recorder = (*Writer)(nil)

// NewWriter writes a header to w and returns a writer for tick records
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	tw := &Writer{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	if h.Version == 0 {
		h.Version = FormatVersion
	}
	if err := tw.write(MsgHeader, h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return tw, nil
}

// Create creates (or truncates) path and writes a header
func Create(path string, h Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create telemetry file: %w", err)
	}
	w, err := NewWriter(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (tw *Writer) write(msgType uint8, v interface{}) error {
	payload, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	data, err := encMode.Marshal(envelope{Type: msgType, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = tw.w.Write(data)
	return err
}

// Record implements control.Recorder
func (tw *Writer) Record(r control.TickReport) error {
	return tw.WriteTick(FromReport(r))
}

// WriteTick appends one tick record
func (tw *Writer) WriteTick(rec TickRecord) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if err := tw.write(MsgTick, rec); err != nil {
		return err
	}
	tw.count++
	return nil
}

// Count returns the number of tick records written
func (tw *Writer) Count() uint64 {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.count
}

// Close flushes buffered records and closes the underlying file, if any
func (tw *Writer) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	err := tw.w.Flush()
	if tw.closer != nil {
		if cerr := tw.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ============================================================
// Reader
// ============================================================

// Reader decodes a recorded stream
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the stream header
func NewReader(r io.Reader) (*Reader, error) {
	tr := &Reader{dec: cbor.NewDecoder(bufio.NewReader(r))}

	msgType, payload, err := tr.next()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if msgType != MsgHeader {
		return nil, fmt.Errorf("expected header message, got type 0x%02X", msgType)
	}
	if err := cbor.Unmarshal(payload, &tr.header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if tr.header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported telemetry version %d", tr.header.Version)
	}
	return tr, nil
}

// Header returns the recording header
func (tr *Reader) Header() Header {
	return tr.header
}

func (tr *Reader) next() (uint8, cbor.RawMessage, error) {
	var env envelope
	if err := tr.dec.Decode(&env); err != nil {
		return 0, nil, err
	}
	return env.Type, env.Payload, nil
}

// Next returns the next tick record, or io.EOF at the end of the stream.
// Unknown message types are skipped.
func (tr *Reader) Next() (TickRecord, error) {
	for {
		msgType, payload, err := tr.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return TickRecord{}, io.EOF
			}
			return TickRecord{}, fmt.Errorf("failed to decode CBOR: %w", err)
		}
		if msgType != MsgTick {
			continue
		}
		var rec TickRecord
		if err := cbor.Unmarshal(payload, &rec); err != nil {
			return TickRecord{}, fmt.Errorf("decode tick: %w", err)
		}
		return rec, nil
	}
}

// Summary aggregates a recording
type Summary struct {
	Ticks      uint64
	Skipped    uint64
	Overruns   uint64
	MaxElapsed time.Duration
	AvgElapsed time.Duration
}

// Summarize reads every remaining record
func (tr *Reader) Summarize(fn func(TickRecord)) (Summary, error) {
	var s Summary
	var total time.Duration
	for {
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, err
		}
		if fn != nil {
			fn(rec)
		}
		s.Ticks++
		if rec.Skipped {
			s.Skipped++
		}
		if rec.Overrun {
			s.Overruns++
		}
		if rec.Elapsed > s.MaxElapsed {
			s.MaxElapsed = rec.Elapsed
		}
		total += rec.Elapsed
	}
	if s.Ticks > 0 {
		s.AvgElapsed = total / time.Duration(s.Ticks)
	}
	return s, nil
}
