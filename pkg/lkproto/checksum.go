// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

// Checksum returns the 8-bit wraparound sum of data.
//
// The device protocol uses this additive sum for both the header and the
// payload section. It does not detect reordered bytes; wire compatibility
// depends on it staying exactly this.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
