// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link owns the byte channel to one servo axis and the
// request/response session running over it.
package link

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel is a half-duplex byte link to a single axis
type Channel interface {
	// Write sends the whole frame
	Write(p []byte) (int, error)

	// ReadExactly reads up to n bytes, returning early with fewer bytes
	// when timeout elapses. A short read is not an error at this level.
	ReadExactly(n int, timeout time.Duration) ([]byte, error)

	// DiscardBuffered drops any unread input
	DiscardBuffered() error

	Close() error
}

// ErrChannelClosed is returned when using a channel after it was closed
var ErrChannelClosed = errors.New("channel closed")

// MaxAxisID is the highest addressable axis id
const MaxAxisID = 32

// Driver names for serial channels
const (
	DriverSerial = "serial" // go.bug.st/serial
	DriverTarm   = "tarm"   // github.com/tarm/serial
)

// Options configures how channels are opened
type Options struct {
	Driver  string
	Baud    int
	Timeout time.Duration

	// WebSocket bridge
	Username      string
	Password      string
	SkipTLSVerify bool
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Driver:  DriverSerial,
		Baud:    115200,
		Timeout: 100 * time.Millisecond,
	}
}

// IsWebSocketAddress reports whether address names a WebSocket bridge
func IsWebSocketAddress(address string) bool {
	return strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://")
}

// Open opens a channel for address. WebSocket URLs open a bridge
// connection, anything else is treated as a serial device path.
// Returns the channel and a human-readable description.
func Open(address string, opts Options) (Channel, string, error) {
	if strings.TrimSpace(address) == "" {
		return nil, "", fmt.Errorf("empty channel address")
	}

	if IsWebSocketAddress(address) {
		ch, err := OpenWebSocketChannel(address, opts.Username, opts.Password, opts.SkipTLSVerify)
		if err != nil {
			return nil, "", err
		}
		return ch, fmt.Sprintf("WebSocket: %s", address), nil
	}

	switch opts.Driver {
	case "", DriverSerial:
		ch, err := OpenSerialChannel(address, opts.Baud)
		if err != nil {
			return nil, "", err
		}
		return ch, fmt.Sprintf("Serial: %s @ %d baud", address, opts.Baud), nil
	case DriverTarm:
		ch, err := OpenTarmChannel(address, opts.Baud, opts.Timeout)
		if err != nil {
			return nil, "", err
		}
		return ch, fmt.Sprintf("Serial (tarm): %s @ %d baud", address, opts.Baud), nil
	default:
		return nil, "", fmt.Errorf("unknown serial driver %q (use %s or %s)", opts.Driver, DriverSerial, DriverTarm)
	}
}

// AxisAddress binds an axis id to a channel address
type AxisAddress struct {
	ID      uint8
	Address string
}

// String formats the address as id@address
func (a AxisAddress) String() string {
	return fmt.Sprintf("%d@%s", a.ID, a.Address)
}

// ParseAxisAddress parses "id@address", e.g. "1@/dev/ttyUSB0" or
// "2@ws://bridge.local/servo"
func ParseAxisAddress(s string) (AxisAddress, error) {
	idStr, address, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok {
		return AxisAddress{}, fmt.Errorf("invalid axis %q: expected id@address", s)
	}
	id, err := strconv.ParseUint(idStr, 10, 8)
	if err != nil {
		return AxisAddress{}, fmt.Errorf("invalid axis id %q: %w", idStr, err)
	}
	if err := ValidateAxisID(uint8(id)); err != nil {
		return AxisAddress{}, err
	}
	if address == "" {
		return AxisAddress{}, fmt.Errorf("invalid axis %q: empty address", s)
	}
	return AxisAddress{ID: uint8(id), Address: address}, nil
}

// ValidateAxisID checks id is within the protocol's 1-32 range
func ValidateAxisID(id uint8) error {
	if id < 1 || id > MaxAxisID {
		return fmt.Errorf("axis id %d out of range (1-%d)", id, MaxAxisID)
	}
	return nil
}

// readUntil fills a buffer of n bytes by calling read until it is full or
// timeout elapses. read receives the remaining time budget.
func readUntil(n int, timeout time.Duration, read func(p []byte, remaining time.Duration) (int, error)) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(timeout)

	for got < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		k, err := read(buf[got:], remaining)
		got += k
		if err != nil {
			return buf[:got], err
		}
	}

	return buf[:got], nil
}
