// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"fmt"
	"math/bits"
)

// Register encoders for boards that synthesize a boot register image.

// PLLBaseValue returns the base register value of a running PLL
// programmed from table entry e.
//
// Description:
//
//	Fixed PLLs get the override bit so InitializeAll trusts the
//	programmed dividers. For PLLU a P of 1 sets the post-divider bit and
//	a P of 2 leaves it clear.
//
// Outputs:
//
//	uint32 - The base register value with the enable bit set.
//	error - Wraps ErrInvalidRate when a field does not fit.
func PLLBaseValue(e FreqEntry, flags Flags) (uint32, error) {
	if e.N > pllBaseDivNMask>>pllBaseDivNShift || e.M > pllBaseDivMMask {
		return 0, fmt.Errorf("%w: N %d or M %d out of range", ErrInvalidRate, e.N, e.M)
	}
	v := pllBaseEnable | e.N<<pllBaseDivNShift | e.M<<pllBaseDivMShift
	if flags.Has(FlagPLLFixed) {
		v |= pllBaseOverride
	}
	if flags.Has(FlagPLLU) {
		switch e.P {
		case 1:
			v |= plluBasePostDiv
		case 2:
		default:
			return 0, fmt.Errorf("%w: P %d invalid for PLLU", ErrInvalidRate, e.P)
		}
		return v, nil
	}
	if e.P == 0 || e.P&(e.P-1) != 0 || uint32(bits.TrailingZeros32(e.P)) > pllBaseDivPMask>>pllBaseDivPShift {
		return 0, fmt.Errorf("%w: P %d is not an encodable power of two", ErrInvalidRate, e.P)
	}
	return v | uint32(bits.TrailingZeros32(e.P))<<pllBaseDivPShift, nil
}

// PLLOutputField returns an enabled 16-bit PLL output divider field
// with the given ratio. The output runs at parent*2/(ratio+2).
func PLLOutputField(ratio uint32) uint32 {
	return (ratio<<pllOutRatioShift)&pllOutRatioMask | PLLOutEnableBits
}

// PLLDividerHeld is the misc register bit that holds the display PLL's
// divide-by-two output in reset.
const PLLDividerHeld = plldMiscDivReset

// SuperMuxRunValue returns a super mux register value that runs from
// the input with selector source.
func SuperMuxRunValue(source uint32) uint32 {
	return superStateRun | (source&superSourceMask)<<superRunShift
}
