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
	"log/slog"
	"time"
)

// OscillatorMeter measures the installed crystal frequency.
type OscillatorMeter interface {
	// MeasureInputFrequency returns the oscillator frequency in Hz.
	MeasureInputFrequency() uint64
}

// PinmuxReader reports the function selected on a pin group.
type PinmuxReader interface {
	// PinFunction returns the selector value of the function currently
	// routed to pingroup.
	PinFunction(pingroup string) (uint32, error)
}

// MemoryController is the external memory controller interlock.
//
// The clock engine calls SetRate before it touches the memory clock
// registers so the controller's shadow registers switch together with
// the clock.
type MemoryController interface {
	// RoundRate returns the closest rate the controller has timings for.
	RoundRate(rate uint64) (uint64, error)

	// SetRate prepares the controller for a clock change to rate.
	SetRate(rate uint64) error

	// MaxRate returns the highest rate the controller has timings for.
	// Zero means unknown; the memory clock then keeps its boot rate as
	// its ceiling.
	MaxRate() uint64
}

// Platform bundles the chip-specific collaborators.
type Platform struct {
	// SKU is the running chip's SKU identifier.
	SKU uint32

	Oscillator OscillatorMeter
	Pinmux     PinmuxReader
	Memory     MemoryController
}

// Options configures a Graph.
type Options struct {
	// Logger receives engine events. Nil means slog.Default().
	Logger *slog.Logger

	// Platform supplies the external collaborators.
	Platform Platform

	// Delay waits for a fixed hardware settle time such as a PLL lock
	// delay. Nil means a busy-wait.
	Delay func(d time.Duration)
}

// BusyWait spins until d has elapsed.
func BusyWait(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// ScaledDelay returns a delay function that busy-waits scale * d.
//
// A scale of zero returns immediately, which is what simulated boards
// without real PLLs want.
func ScaledDelay(scale float64) func(time.Duration) {
	return func(d time.Duration) {
		if scale <= 0 {
			return
		}
		BusyWait(time.Duration(float64(d) * scale))
	}
}
