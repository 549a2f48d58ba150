// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lkproto

import "math"

// FloatToUint maps x from [min, max] onto an unsigned integer of the given
// bit width. x is clamped to the range first, so the result is always in
// [0, 2^bits-1] and non-decreasing in x.
func FloatToUint(x, min, max float64, bits uint) uint32 {
	if math.IsNaN(x) {
		x = min
	}
	x = math.Max(min, math.Min(max, x))
	steps := float64(uint64(1)<<bits - 1)
	v := math.Round((x - min) * (steps / (max - min)))
	if v > steps {
		v = steps
	}
	return uint32(v)
}

// UintToFloat is the inverse of FloatToUint, accurate to one quantization step
func UintToFloat(u uint32, min, max float64, bits uint) float64 {
	steps := float64(uint64(1)<<bits - 1)
	return float64(u)*(max-min)/steps + min
}
