// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// TarmChannel wraps a tarm serial port. The read timeout is fixed when the
// port is opened, so ReadExactly polls in slices of it.
type TarmChannel struct {
	port *serial.Port
}

// OpenTarmChannel opens a serial port with the given per-read timeout
func OpenTarmChannel(portName string, baudRate int, readTimeout time.Duration) (*TarmChannel, error) {
	cfg := &serial.Config{
		Name:        portName,
		Baud:        baudRate,
		ReadTimeout: readTimeout,
	}

	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &TarmChannel{port: port}, nil
}

func (t *TarmChannel) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// ReadExactly reads n bytes or until timeout
func (t *TarmChannel) ReadExactly(n int, timeout time.Duration) ([]byte, error) {
	return readUntil(n, timeout, func(p []byte, _ time.Duration) (int, error) {
		k, err := t.port.Read(p)
		if errors.Is(err, io.EOF) {
			// tarm reports an expired read timeout as EOF
			return k, nil
		}
		return k, err
	})
}

// DiscardBuffered flushes the port buffers
func (t *TarmChannel) DiscardBuffered() error {
	return t.port.Flush()
}

func (t *TarmChannel) Close() error {
	return t.port.Close()
}
