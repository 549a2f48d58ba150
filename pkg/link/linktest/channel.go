// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linktest provides in-memory channels and a simulated servo for
// exercising sessions, axes and control loops without hardware.
package linktest

import (
	"sync"
	"time"

	"github.com/Thermoquad/servolink/pkg/link"
)

// Handler produces the bytes a device sends back for a written frame.
// Returning nil models a device that stays silent.
type Handler func(frame []byte) []byte

// Channel is an in-memory link.Channel. Written frames are recorded and
// passed to the handler; its reply is queued for the next read.
type Channel struct {
	mu       sync.Mutex
	handler  Handler
	rx       []byte
	writes   [][]byte
	discards int
	writeErr error
	readErr  error
	failCmd  map[byte]error
	closed   bool
}

var _ link.Channel = (*Channel)(nil)

// NewChannel creates a channel answering writes with h (which may be nil)
func NewChannel(h Handler) *Channel {
	return &Channel{handler: h}
}

// SetHandler replaces the reply handler
func (c *Channel) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetWriteError makes every subsequent Write fail with err (nil clears)
func (c *Channel) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// FailCommand makes writes of frames carrying cmdID fail with err
// (nil clears). Other frames are unaffected.
func (c *Channel) FailCommand(cmdID byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failCmd == nil {
		c.failCmd = make(map[byte]error)
	}
	if err == nil {
		delete(c.failCmd, cmdID)
		return
	}
	c.failCmd[cmdID] = err
}

// SetReadError makes every subsequent ReadExactly fail with err (nil clears)
func (c *Channel) SetReadError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// InjectStale appends bytes to the receive buffer as if left over from an
// earlier exchange
func (c *Channel) InjectStale(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rx = append(c.rx, b...)
}

// Write implements link.Channel
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, link.ErrChannelClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if len(p) > 1 && c.failCmd[p[1]] != nil {
		return 0, c.failCmd[p[1]]
	}

	frame := append([]byte(nil), p...)
	c.writes = append(c.writes, frame)
	if c.handler != nil {
		c.rx = append(c.rx, c.handler(frame)...)
	}
	return len(p), nil
}

// ReadExactly implements link.Channel. It never blocks: whatever is
// buffered (up to n bytes) is returned immediately.
func (c *Channel) ReadExactly(n int, _ time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, link.ErrChannelClosed
	}
	if c.readErr != nil {
		return nil, c.readErr
	}

	k := min(n, len(c.rx))
	out := append([]byte(nil), c.rx[:k]...)
	c.rx = c.rx[k:]
	return out, nil
}

// DiscardBuffered implements link.Channel
func (c *Channel) DiscardBuffered() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return link.ErrChannelClosed
	}
	c.discards++
	c.rx = nil
	return nil
}

// Close implements link.Channel
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Writes returns a copy of every frame written so far
func (c *Channel) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Discards returns how many times buffered input was discarded
func (c *Channel) Discards() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discards
}

// Closed reports whether Close was called
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
