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
	"github.com/AleutianAI/clocktree/services/clocktree/divider"
	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// pllDividerOps is a divider on a PLL output. FlagDivU71 selects the
// programmable 16-bit field at regShift; FlagDiv2 selects the fixed
// divide-by-two held in reset by a misc register bit.
type pllDividerOps struct{}

const pllOutFieldMask uint32 = 0xffff

func (pllDividerOps) init(g *Graph, c *Clock) error {
	val := g.read(c.reg)
	switch {
	case c.flags.Has(FlagDivU71):
		field := (val >> c.regShift) & pllOutFieldMask
		c.state = StateOff
		if field&pllOutClkEn != 0 && field&pllOutResetDisable != 0 {
			c.state = StateOn
		}
		c.mul = 2
		c.div = (field&pllOutRatioMask)>>pllOutRatioShift + 2
	case c.flags.Has(FlagDiv2):
		c.state = StateOn
		if val&plldMiscDivReset != 0 {
			c.state = StateOff
		}
		c.mul, c.div = 1, 2
	default:
		c.state = StateOn
		c.mul, c.div = 1, 1
	}
	return nil
}

// updateField rewrites the 16-bit field of c under the register lock.
func updateField(g *Graph, c *Clock, fn func(field uint32) uint32) {
	g.bank.Update(regs.ClockReset, c.reg, func(val uint32) uint32 {
		field := fn((val >> c.regShift) & pllOutFieldMask)
		val &^= pllOutFieldMask << c.regShift
		return val | (field&pllOutFieldMask)<<c.regShift
	})
}

func (pllDividerOps) enable(g *Graph, c *Clock) error {
	switch {
	case c.flags.Has(FlagDivU71):
		updateField(g, c, func(f uint32) uint32 {
			return f | pllOutClkEn | pllOutResetDisable
		})
		return nil
	case c.flags.Has(FlagDiv2):
		g.bank.Modify(regs.ClockReset, c.reg, plldMiscDivReset, 0)
		return nil
	}
	return newError(c, opEnable, ErrNotSupported)
}

func (pllDividerOps) disable(g *Graph, c *Clock) {
	switch {
	case c.flags.Has(FlagDivU71):
		updateField(g, c, func(f uint32) uint32 {
			return f &^ (pllOutClkEn | pllOutResetDisable)
		})
	case c.flags.Has(FlagDiv2):
		g.bank.Modify(regs.ClockReset, c.reg, 0, plldMiscDivReset)
	}
}

func (pllDividerOps) setRate(g *Graph, c *Clock, rate uint64) error {
	parent := g.rateLocked(c.parent)
	switch {
	case c.flags.Has(FlagDivU71):
		n, err := divider.Fractional(parent, rate)
		if err != nil {
			return errorf(c, opSetRate, ErrInvalidRate, "%v", err)
		}
		updateField(g, c, func(f uint32) uint32 {
			if c.flags.Has(FlagDivU71Fixed) {
				f |= pllOutOverride
			}
			f &^= pllOutRatioMask
			return f | n<<pllOutRatioShift
		})
		c.mul, c.div = 2, n+2
		return nil
	case c.flags.Has(FlagDiv2):
		if parent == rate*2 {
			return nil
		}
	}
	return errorf(c, opSetRate, ErrInvalidRate, "%d Hz not reachable from %d Hz", rate, parent)
}

func (pllDividerOps) roundRate(g *Graph, c *Clock, rate uint64) (uint64, error) {
	parent := g.rateLocked(c.parent)
	switch {
	case c.flags.Has(FlagDivU71):
		got, err := divider.RoundFractional(parent, rate)
		if err != nil {
			return 0, errorf(c, opRoundRate, ErrInvalidRate, "%v", err)
		}
		return got, nil
	case c.flags.Has(FlagDiv2):
		return divider.DivRoundUp(parent, 2), nil
	}
	return 0, newError(c, opRoundRate, ErrInvalidRate)
}
