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

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// fixedOps is a clock whose rate never changes: a crystal that needs no
// detection, or a parent-less clock whose ratio other kinds update.
type fixedOps struct{}

// oscillatorOps is the main crystal. Its rate is detected at init.
type oscillatorOps struct{}

func (oscillatorOps) init(g *Graph, c *Clock) error {
	if g.platform.Oscillator == nil {
		return errorf(c, opInit, ErrFatalConfiguration, "no oscillator meter")
	}
	rate := g.platform.Oscillator.MeasureInputFrequency()

	var sel uint32
	switch rate {
	case 12_000_000:
		sel = oscFreq12MHz
	case 13_000_000:
		sel = oscFreq13MHz
	case 19_200_000:
		sel = oscFreq19_2MHz
	case 26_000_000:
		sel = oscFreq26MHz
	default:
		return errorf(c, opInit, ErrFatalConfiguration, "unrecognized oscillator frequency %d Hz", rate)
	}
	g.bank.Modify(regs.ClockReset, RegOscCtrl, OscCtrlFreqMask, sel)

	c.base = rate
	c.state = StateOn
	g.logger.Info("oscillator detected",
		slog.String("clock", c.name),
		slog.Uint64("rate", rate))
	return nil
}

func (oscillatorOps) enable(*Graph, *Clock) error {
	return nil
}

func (oscillatorOps) disable(_ *Graph, c *Clock) {
	panic("clocktree: oscillator " + c.name + " cannot be disabled")
}
