// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package divider computes clock divider register values.
//
// Two encodings are supported:
//
//   - Fractional ("7.1"): field N divides by (N+2)/2, N in [0, 255].
//   - Integer ("16"): field N divides by N+1, N in [0, 65535].
//
// Both solve for the smallest N whose output does not exceed the target,
// so the achieved rate is never above the requested rate. The functions
// are pure and safe for concurrent use.
package divider

import "errors"

// ErrOutOfRange is returned when no encodable divider reaches the target.
var ErrOutOfRange = errors.New("divider out of range")

const (
	// FractionalMax is the largest fractional divider field value.
	FractionalMax = 255

	// IntegerMax is the largest integer divider field value.
	IntegerMax = 0xFFFF
)

// DivRoundUp returns ceil(n / d). d must be non-zero.
func DivRoundUp(n, d uint64) uint64 {
	return (n + d - 1) / d
}

// Fractional computes the fractional divider field for parent and target.
//
// Description:
//
//	N = ceil(parent*2 / target) - 2. The output rate parent*2/(N+2) is
//	then the largest representable rate not above target.
//
// Inputs:
//
//	parent - Parent clock rate in Hz.
//	target - Requested rate in Hz. Must be non-zero.
//
// Outputs:
//
//	uint32 - The divider field value.
//	error - ErrOutOfRange if N would be negative or above FractionalMax.
func Fractional(parent, target uint64) (uint32, error) {
	if target == 0 {
		return 0, ErrOutOfRange
	}
	n := int64(DivRoundUp(parent*2, target)) - 2
	if n < 0 || n > FractionalMax {
		return 0, ErrOutOfRange
	}
	return uint32(n), nil
}

// Integer computes the integer divider field for parent and target.
//
// N = ceil(parent / target) - 1, bounded to [0, IntegerMax].
func Integer(parent, target uint64) (uint32, error) {
	if target == 0 {
		return 0, ErrOutOfRange
	}
	n := int64(DivRoundUp(parent, target)) - 1
	if n < 0 || n > IntegerMax {
		return 0, ErrOutOfRange
	}
	return uint32(n), nil
}

// FractionalRate is the rate a fractional divider field n produces.
func FractionalRate(parent uint64, n uint32) uint64 {
	return DivRoundUp(parent*2, uint64(n)+2)
}

// IntegerRate is the rate an integer divider field n produces.
func IntegerRate(parent uint64, n uint32) uint64 {
	return DivRoundUp(parent, uint64(n)+1)
}

// RoundFractional reports the rate achievable for target with a
// fractional divider.
func RoundFractional(parent, target uint64) (uint64, error) {
	n, err := Fractional(parent, target)
	if err != nil {
		return 0, err
	}
	return FractionalRate(parent, n), nil
}

// RoundInteger reports the rate achievable for target with an integer
// divider.
func RoundInteger(parent, target uint64) (uint64, error) {
	n, err := Integer(parent, target)
	if err != nil {
		return 0, err
	}
	return IntegerRate(parent, n), nil
}
