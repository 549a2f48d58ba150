// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

import "fmt"

// BuildFrame encodes a request frame for the given command and axis.
// The payload section and its checksum are omitted when payload is empty.
func BuildFrame(cmd, axisID byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadSize)
	}

	size := HeaderSize
	if len(payload) > 0 {
		size += len(payload) + 1
	}

	frame := make([]byte, 0, size)
	frame = append(frame, HeaderByte, cmd, axisID, byte(len(payload)))
	frame = append(frame, Checksum(frame))

	if len(payload) > 0 {
		frame = append(frame, payload...)
		frame = append(frame, Checksum(payload))
	}

	return frame, nil
}

// MustBuildFrame is BuildFrame for payloads known to fit.
// Panics on encoding error.
func MustBuildFrame(cmd, axisID byte, payload []byte) []byte {
	frame, err := BuildFrame(cmd, axisID, payload)
	if err != nil {
		panic(fmt.Sprintf("lkproto: build error: %v", err))
	}
	return frame
}

// ValidateFrame checks a raw response against the expected length and
// returns its data section without the trailing checksum.
//
// Only three checks are made, in order: total length, marker byte, and the
// data section checksum. The header checksum is not inspected.
func ValidateFrame(raw []byte, expectedLen int) ([]byte, error) {
	if len(raw) != expectedLen {
		return nil, &TimeoutError{Want: expectedLen, Got: len(raw)}
	}
	if len(raw) == 0 || raw[0] != HeaderByte {
		var got byte
		if len(raw) > 0 {
			got = raw[0]
		}
		return nil, &InvalidHeaderError{Got: got}
	}
	if len(raw) <= HeaderSize {
		return []byte{}, nil
	}

	data := raw[HeaderSize:]
	body := data[:len(data)-1]
	received := data[len(data)-1]
	if calculated := Checksum(body); calculated != received {
		return nil, &ChecksumError{Want: calculated, Got: received}
	}

	payload := make([]byte, len(body))
	copy(payload, body)
	return payload, nil
}

// ReplyLength returns the full frame length of a response carrying n data bytes
func ReplyLength(n int) int {
	if n == 0 {
		return HeaderSize
	}
	return HeaderSize + n + 1
}
