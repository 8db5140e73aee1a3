// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseRate accepts plain Hz or a k, M or G suffix ("32.768k", "1.2G").
func parseRate(s string) (uint64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Hz")
	mult := 1.0
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'k', 'K':
			mult, s = 1e3, s[:n-1]
		case 'M':
			mult, s = 1e6, s[:n-1]
		case 'G':
			mult, s = 1e9, s[:n-1]
		}
	}
	if mult == 1 {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid rate %q", s)
		}
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	return uint64(f*mult + 0.5), nil
}

// formatHz renders a rate with the largest unit that keeps it exact to
// three decimals.
func formatHz(hz uint64) string {
	switch {
	case hz >= 1_000_000_000:
		return trimUnit(float64(hz)/1e9, "GHz")
	case hz >= 1_000_000:
		return trimUnit(float64(hz)/1e6, "MHz")
	case hz >= 1_000:
		return trimUnit(float64(hz)/1e3, "kHz")
	}
	return fmt.Sprintf("%d Hz", hz)
}

func trimUnit(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return s + " " + unit
}
