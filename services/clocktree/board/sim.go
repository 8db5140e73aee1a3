// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package board

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// ErrNoTiming is returned by the simulated memory controller for rates
// it has no timing set for.
var ErrNoTiming = errors.New("no memory timing for rate")

// Oscillator is a crystal of fixed frequency.
type Oscillator uint64

// MeasureInputFrequency implements tree.OscillatorMeter.
func (o Oscillator) MeasureInputFrequency() uint64 {
	return uint64(o)
}

// Pinmux maps pin groups to the function selected on them.
type Pinmux map[string]uint32

// PinFunction implements tree.PinmuxReader.
func (p Pinmux) PinFunction(pingroup string) (uint32, error) {
	fn, ok := p[pingroup]
	if !ok {
		return 0, fmt.Errorf("pin group %q not configured", pingroup)
	}
	return fn, nil
}

// DefaultPinmux routes cdev1 to clk_m and cdev2 to pll_p_out4.
func DefaultPinmux() Pinmux {
	return Pinmux{"cdev1": 0, "cdev2": 3}
}

// DefaultEMCRates are the memory clock rates with timing tables on the
// simulated board. All of them divide evenly from pll_m at 666 MHz.
var DefaultEMCRates = []uint64{83_250_000, 166_500_000, 333_000_000, 666_000_000}

// MemoryController simulates the external memory controller.
//
// Thread Safety: Safe for concurrent use.
type MemoryController struct {
	mu      sync.Mutex
	rates   []uint64
	current uint64
	changes int
}

// NewMemoryController returns a controller with timings for rates. Nil
// means DefaultEMCRates.
func NewMemoryController(rates []uint64) *MemoryController {
	if rates == nil {
		rates = DefaultEMCRates
	}
	sorted := slices.Clone(rates)
	slices.Sort(sorted)
	return &MemoryController{rates: sorted}
}

// RoundRate returns the lowest timing rate at or above rate, or the
// highest one when rate is above all of them. Zero yields the lowest.
func (m *MemoryController) RoundRate(rate uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rates) == 0 {
		return 0, ErrNoTiming
	}
	for _, r := range m.rates {
		if r >= rate {
			return r, nil
		}
	}
	return m.rates[len(m.rates)-1], nil
}

// SetRate switches the controller's timing set to rate.
func (m *MemoryController) SetRate(rate uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.rates, rate) {
		return fmt.Errorf("%w: %d Hz", ErrNoTiming, rate)
	}
	if rate != m.current {
		m.changes++
	}
	m.current = rate
	return nil
}

// MaxRate returns the highest rate with a timing set.
func (m *MemoryController) MaxRate() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rates) == 0 {
		return 0
	}
	return m.rates[len(m.rates)-1]
}

// Current returns the rate of the last accepted SetRate and how many
// timing switches happened.
func (m *MemoryController) Current() (rate uint64, changes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.changes
}

// Platform returns simulated collaborators for a board with the given
// SKU and crystal.
func Platform(sku uint32, osc uint64) tree.Platform {
	return tree.Platform{
		SKU:        sku,
		Oscillator: Oscillator(osc),
		Pinmux:     DefaultPinmux(),
		Memory:     NewMemoryController(nil),
	}
}

// CPUFrequencies returns the CPU frequency steps for a CPU whose
// ceiling is cpuMax, lowest first.
func CPUFrequencies(cpuMax uint64) []uint64 {
	steps := []uint64{216 * mhz, 312 * mhz, 456 * mhz, 608 * mhz, 760 * mhz, 816 * mhz, 912 * mhz, 1000 * mhz, 1200 * mhz}
	if cpuMax == 750*mhz {
		return []uint64{216 * mhz, 312 * mhz, 456 * mhz, 608 * mhz, 750 * mhz}
	}
	var out []uint64
	for _, s := range steps {
		if s <= cpuMax {
			out = append(out, s)
		}
	}
	return out
}

// EMCVoteForCPU returns the memory bus rate the CPU votes for while it
// runs at cpuRate.
func EMCVoteForCPU(cpuRate uint64) uint64 {
	switch {
	case cpuRate > 1000*mhz:
		return 760 * mhz
	case cpuRate >= 816*mhz:
		return 600 * mhz
	case cpuRate >= 608*mhz:
		return 300 * mhz
	case cpuRate >= 456*mhz:
		return 150 * mhz
	case cpuRate >= 312*mhz:
		return 100 * mhz
	default:
		return 50 * mhz
	}
}
