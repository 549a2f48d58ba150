// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

import "fmt"

// TimeoutError reports a response that was absent or shorter than expected
type TimeoutError struct {
	Want int
	Got  int
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout or incomplete response: got %d of %d bytes", e.Got, e.Want)
}

// InvalidHeaderError reports a response whose first byte is not the marker
type InvalidHeaderError struct {
	Got byte
}

// Error implements the error interface
func (e *InvalidHeaderError) Error() string {
	return fmt.Sprintf("invalid frame header: 0x%02X (want 0x%02X)", e.Got, HeaderByte)
}

// ChecksumError reports a data section whose trailing checksum does not match
type ChecksumError struct {
	Want byte // calculated
	Got  byte // received
}

// Error implements the error interface
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: calculated 0x%02X, received 0x%02X", e.Want, e.Got)
}
