// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"

	"github.com/Thermoquad/servolink/pkg/lkproto"
	"github.com/rs/zerolog"
)

// Session runs command/response exchanges for one axis over its own
// channel. A Session is not safe for concurrent use; each axis is driven
// by exactly one goroutine at a time.
type Session struct {
	ch      Channel
	axisID  uint8
	timeout time.Duration
	stats   *Statistics
	log     zerolog.Logger
}

// Option customizes a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithStatistics shares a statistics tracker with the session
func WithStatistics(stats *Statistics) Option {
	return func(s *Session) { s.stats = stats }
}

// NewSession binds ch to axisID. timeout bounds every response read.
func NewSession(ch Channel, axisID uint8, timeout time.Duration, opts ...Option) (*Session, error) {
	if ch == nil {
		return nil, fmt.Errorf("nil channel")
	}
	if err := ValidateAxisID(axisID); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", timeout)
	}

	s := &Session{
		ch:      ch,
		axisID:  axisID,
		timeout: timeout,
		stats:   NewStatistics(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Uint8("axis", axisID).Logger()
	return s, nil
}

// AxisID returns the bound axis id
func (s *Session) AxisID() uint8 {
	return s.axisID
}

// Statistics returns the session's statistics tracker
func (s *Session) Statistics() *Statistics {
	return s.stats
}

// Transact sends cmd and, when it expects a reply, reads and validates the
// response. Returns the response data section (nil when no reply is
// expected). Errors are *lkproto.TimeoutError, *lkproto.InvalidHeaderError,
// *lkproto.ChecksumError, or a wrapped transport error.
func (s *Session) Transact(cmd lkproto.Command) ([]byte, error) {
	payload, err := s.exchange(cmd, cmd.ReplyLen)
	s.stats.Update(cmd.ReplyLen > 0, err)
	if err != nil {
		s.log.Debug().Err(err).Str("cmd", cmd.Name()).Msg("transaction failed")
	}
	return payload, err
}

// FireAndForget writes cmd without awaiting a reply. Transport failures
// are logged and counted, never returned.
func (s *Session) FireAndForget(cmd lkproto.Command) {
	if _, err := s.exchange(cmd, 0); err != nil {
		s.stats.Dropped()
		s.log.Warn().Err(err).Str("cmd", cmd.Name()).Msg("fire-and-forget send failed")
	}
}

// Send dispatches cmd through FireAndForget or Transact depending on the
// command. The returned error is always nil for fire-and-forget commands.
func (s *Session) Send(cmd lkproto.Command) error {
	if cmd.FireAndForget {
		s.FireAndForget(cmd)
		return nil
	}
	_, err := s.Transact(cmd)
	return err
}

func (s *Session) exchange(cmd lkproto.Command, replyLen int) ([]byte, error) {
	frame, err := cmd.Frame(s.axisID)
	if err != nil {
		return nil, err
	}

	// Unread bytes left by an earlier timeout would misalign this reply
	if err := s.ch.DiscardBuffered(); err != nil {
		return nil, &TransportError{Op: OpDiscard, Cmd: cmd.Name(), Err: err}
	}

	n, err := s.ch.Write(frame)
	if err != nil {
		return nil, &TransportError{Op: OpWrite, Cmd: cmd.Name(), Err: err}
	}
	if n != len(frame) {
		return nil, &TransportError{Op: OpWrite, Cmd: cmd.Name(),
			Err: fmt.Errorf("short write %d of %d bytes", n, len(frame))}
	}
	s.log.Trace().Str("tx", lkproto.FormatFrame(frame)).Msg("frame")

	if replyLen <= 0 {
		return nil, nil
	}

	raw, err := s.ch.ReadExactly(replyLen, s.timeout)
	if err != nil {
		return nil, &TransportError{Op: OpRead, Cmd: cmd.Name(), Err: err}
	}
	s.log.Trace().Str("rx", lkproto.FormatHex(raw)).Msg("frame")

	return lkproto.ValidateFrame(raw, replyLen)
}

// Transport operations reported by TransportError
const (
	OpDiscard = "discard"
	OpWrite   = "write"
	OpRead    = "read"
)

// TransportError is a channel failure during one step of an exchange.
// Timeouts raised by the channel stay reachable through errors.As.
type TransportError struct {
	Op  string
	Cmd string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Cmd, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Close closes the underlying channel
func (s *Session) Close() error {
	return s.ch.Close()
}
