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
	"time"

	"github.com/AleutianAI/clocktree/services/clocktree/divider"
	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// Peripheral enable and reset helpers shared by the gated kinds.

func enableKey(c *Clock) EnableBit {
	return EnableBit{Block: regs.ClockReset, Index: c.clkNum}
}

// gated reports whether c owns a bit in the enable banks.
func gated(c *Clock) bool {
	return !c.flags.Has(FlagNoEnable) && c.clkNum != 0
}

// readGate returns the enable and reset bits of c.
func readGate(g *Graph, c *Clock) (enabled, inReset bool) {
	bit := enableBitMask(c.clkNum)
	enabled = g.read(RegClkOutEnb+enableRegIndex(c.clkNum))&bit != 0
	inReset = g.read(RegRstDevices+enableRegIndex(c.clkNum))&bit != 0
	return enabled, inReset
}

// periphEnable takes a reference on c's enable bit. The first reference
// sets the enable bit and releases reset.
func periphEnable(g *Graph, c *Clock) {
	if !gated(c) {
		return
	}
	key := enableKey(c)
	g.enableRefs[key]++
	if g.enableRefs[key] > 1 {
		return
	}
	bit := enableBitMask(c.clkNum)
	g.write(RegClkOutEnbSet+enableSetRegIndex(c.clkNum), bit)
	if !c.flags.Has(FlagNoReset) && !c.flags.Has(FlagManualReset) {
		g.write(RegRstDevicesClr+enableSetRegIndex(c.clkNum), bit)
	}
	if c.flags.Has(FlagEMCEnable) {
		g.bank.Modify(regs.ClockReset, c.reg, 0, periphEMCExtraBits)
	}
}

// periphDisable drops a reference on c's enable bit and clears the bit
// with the last one.
func periphDisable(g *Graph, c *Clock) {
	if !gated(c) {
		return
	}
	key := enableKey(c)
	if g.enableRefs[key] > 0 {
		g.enableRefs[key]--
	}
	if g.enableRefs[key] != 0 {
		return
	}
	if c.flags.Has(FlagOnAPB) {
		flushAPB(g)
	}
	g.write(RegClkOutEnbClr+enableSetRegIndex(c.clkNum), enableBitMask(c.clkNum))
}

// flushAPB drains posted writes on the peripheral bus.
func flushAPB(g *Graph) {
	g.bank.Read(regs.Misc, RegMiscHidrev)
}

// periphAdopt counts a running clock's enable bit.
func periphAdopt(g *Graph, c *Clock) {
	if gated(c) {
		g.enableRefs[enableKey(c)]++
	}
}

// periphOps is a gated peripheral clock with an optional source mux and
// an optional fractional or integer divider.
type periphOps struct{}

func (periphOps) init(g *Graph, c *Clock) error {
	var val uint32
	if c.flags.Has(FlagMux) || c.flags.Has(FlagDivU71) || c.flags.Has(FlagDivU16) {
		val = g.read(c.reg)
	}

	if c.flags.Has(FlagMux) {
		sel := (val >> c.muxShift) & c.muxMask
		p, ok := c.inputByValue(sel)
		if !ok {
			return errorf(c, opInit, ErrFatalConfiguration, "no input for mux value %d", sel)
		}
		c.parent = p
	} else if len(c.inputs) > 0 {
		c.parent = c.inputs[0].clock
	}

	switch {
	case c.flags.Has(FlagDivU71):
		c.mul, c.div = 2, val&periphDivU71Mask+2
	case c.flags.Has(FlagDivU16):
		c.mul, c.div = 1, val&periphDivU16Mask+1
	default:
		c.mul, c.div = 1, 1
	}

	c.state = StateOn
	if !gated(c) {
		return nil
	}
	enabled, inReset := readGate(g, c)
	if !enabled || (!c.flags.Has(FlagNoReset) && inReset) {
		c.state = StateOff
	}
	return nil
}

func (periphOps) enable(g *Graph, c *Clock) error {
	periphEnable(g, c)
	return nil
}

func (periphOps) disable(g *Graph, c *Clock) {
	periphDisable(g, c)
}

func (periphOps) adopt(g *Graph, c *Clock) {
	periphAdopt(g, c)
}

func (periphOps) reset(g *Graph, c *Clock, assert bool) error {
	if c.flags.Has(FlagNoEnable) {
		return nil
	}
	if c.clkNum == 0 {
		return newError(c, opReset, ErrNotSupported)
	}
	if c.flags.Has(FlagNoReset) {
		return nil
	}
	if c.flags.Has(FlagOnAPB) {
		flushAPB(g)
	}
	reg := RegRstDevicesClr
	if assert {
		reg = RegRstDevicesSet
	}
	g.write(reg+enableSetRegIndex(c.clkNum), enableBitMask(c.clkNum))
	return nil
}

func (periphOps) setParent(g *Graph, c, p *Clock) error {
	if !c.flags.Has(FlagMux) {
		return newError(c, opSetParent, ErrNotSupported)
	}
	in, _ := c.inputFor(p)
	return g.switchParent(c, p, func() {
		g.bank.Update(regs.ClockReset, c.reg, func(val uint32) uint32 {
			val &^= c.muxMask << c.muxShift
			return val | in.value<<c.muxShift
		})
	})
}

func (periphOps) setRate(g *Graph, c *Clock, rate uint64) error {
	parent := g.rateLocked(c.parent)
	switch {
	case c.flags.Has(FlagDivU71):
		n, err := divider.Fractional(parent, rate)
		if err != nil {
			return errorf(c, opSetRate, ErrInvalidRate, "%v", err)
		}
		g.bank.Modify(regs.ClockReset, c.reg, periphDivU71Mask, n)
		c.mul, c.div = 2, n+2
		return nil
	case c.flags.Has(FlagDivU16):
		n, err := divider.Integer(parent, rate)
		if err != nil {
			return errorf(c, opSetRate, ErrInvalidRate, "%v", err)
		}
		g.bank.Modify(regs.ClockReset, c.reg, periphDivU16Mask, n)
		c.mul, c.div = 1, n+1
		return nil
	case parent <= rate:
		c.mul, c.div = 1, 1
		return nil
	}
	return errorf(c, opSetRate, ErrInvalidRate, "no divider and parent runs at %d Hz", parent)
}

func (periphOps) roundRate(g *Graph, c *Clock, rate uint64) (uint64, error) {
	parent := g.rateLocked(c.parent)
	var (
		got uint64
		err error
	)
	switch {
	case c.flags.Has(FlagDivU71):
		got, err = divider.RoundFractional(parent, rate)
	case c.flags.Has(FlagDivU16):
		got, err = divider.RoundInteger(parent, rate)
	case parent <= rate:
		got = parent
	default:
		return 0, errorf(c, opRoundRate, ErrInvalidRate, "no divider and parent runs at %d Hz", parent)
	}
	if err != nil {
		return 0, errorf(c, opRoundRate, ErrInvalidRate, "%v", err)
	}
	return got, nil
}

// emcOps is the external memory clock. It picks its source by rate and
// hands each change to the memory controller first.
type emcOps struct {
	periphOps
	busHost
}

// emcTolerance is the largest accepted difference between a requested
// and a realized memory clock rate.
const emcTolerance = 2000

const emcSettle = time.Microsecond

func (o *emcOps) init(g *Graph, c *Clock) error {
	if err := o.periphOps.init(g, c); err != nil {
		return err
	}
	g.touch()
	c.max = o.ceiling(g, c)
	return nil
}

// ceiling is the highest rate the memory clock may be asked for: the
// controller's top timing rate, else the rate measured at init. The
// declared maximum bounds both.
func (o *emcOps) ceiling(g *Graph, c *Clock) uint64 {
	limit := g.rateLocked(c)
	if mc := g.platform.Memory; mc != nil {
		if top := mc.MaxRate(); top != 0 {
			limit = top
		}
	}
	if c.max != 0 {
		limit = min(limit, c.max)
	}
	return limit
}

func (o *emcOps) roundRate(g *Graph, c *Clock, rate uint64) (uint64, error) {
	mc := g.platform.Memory
	if mc == nil {
		return c.max, nil
	}
	got, err := mc.RoundRate(rate)
	if err != nil {
		return c.max, nil
	}
	return got, nil
}

// setRate selects the first input that reaches rate within
// emcTolerance through the fractional divider.
func (o *emcOps) setRate(g *Graph, c *Clock, rate uint64) error {
	var (
		p *Clock
		n uint32
	)
	for _, in := range c.inputs {
		inRate := g.rateLocked(in.clock)
		d, err := divider.Fractional(inRate, rate)
		if err != nil {
			continue
		}
		got := divider.FractionalRate(inRate, d)
		if absDiff(got, rate) < emcTolerance {
			p, n = in.clock, d
			break
		}
	}
	if p == nil {
		return errorf(c, opSetRate, ErrInvalidRate, "no source reaches %d Hz", rate)
	}
	if n&1 != 0 {
		return errorf(c, opSetRate, ErrInvalidRate, "odd divider %d for %d Hz", n, rate)
	}

	if mc := g.platform.Memory; mc != nil {
		if err := mc.SetRate(rate); err != nil {
			return newError(c, opSetRate, err)
		}
	}

	if c.parent != p {
		if n != 0 {
			return errorf(c, opSetRate, ErrInvalidRate, "source switch to %s needs divider %d", p.name, n)
		}
		if err := g.setParentLocked(c, p); err != nil {
			return err
		}
		g.delay(emcSettle)
		if c.div != 2 {
			return o.periphOps.setRate(g, c, rate)
		}
		return nil
	}

	err := o.periphOps.setRate(g, c, rate)
	g.delay(emcSettle)
	return err
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// doublerOps doubles its parent. Only the exact doubled rate is valid.
type doublerOps struct{}

func (doublerOps) init(g *Graph, c *Clock) error {
	c.mul, c.div = 2, 1
	c.state = StateOn
	if c.clkNum == 0 {
		return nil
	}
	if enabled, _ := readGate(g, c); !enabled {
		c.state = StateOff
	}
	return nil
}

func (doublerOps) enable(g *Graph, c *Clock) error {
	periphEnable(g, c)
	return nil
}

func (doublerOps) disable(g *Graph, c *Clock) {
	periphDisable(g, c)
}

func (doublerOps) adopt(g *Graph, c *Clock) {
	periphAdopt(g, c)
}

func (doublerOps) setRate(g *Graph, c *Clock, rate uint64) error {
	parent := g.rateLocked(c.parent)
	if rate != 2*parent {
		return errorf(c, opSetRate, ErrInvalidRate, "doubler only runs at %d Hz", 2*parent)
	}
	c.mul, c.div = 2, 1
	return nil
}
