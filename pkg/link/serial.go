// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialChannel wraps a go.bug.st serial port
type SerialChannel struct {
	port serial.Port
}

// OpenSerialChannel opens a serial port at 8N1
func OpenSerialChannel(portName string, baudRate int) (*SerialChannel, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialChannel{port: port}, nil
}

func (s *SerialChannel) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// ReadExactly reads n bytes or until timeout
func (s *SerialChannel) ReadExactly(n int, timeout time.Duration) ([]byte, error) {
	return readUntil(n, timeout, func(p []byte, remaining time.Duration) (int, error) {
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return 0, err
		}
		// Zero bytes with no error means the read timed out
		return s.port.Read(p)
	})
}

// DiscardBuffered drops unread input from the driver buffer
func (s *SerialChannel) DiscardBuffered() error {
	return s.port.ResetInputBuffer()
}

func (s *SerialChannel) Close() error {
	return s.port.Close()
}
