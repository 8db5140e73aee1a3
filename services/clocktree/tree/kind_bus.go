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

// busOps is a 2-bit system bus divider sharing its register with a
// sibling divider at another shift.
type busOps struct{}

func (busOps) init(g *Graph, c *Clock) error {
	val := g.read(c.reg) >> c.regShift
	c.state = StateOn
	if val&busDisable != 0 {
		c.state = StateOff
	}
	c.mul, c.div = 1, val&busDivMask+1
	return nil
}

func (busOps) enable(g *Graph, c *Clock) error {
	g.bank.Modify(regs.ClockReset, c.reg, busDisable<<c.regShift, 0)
	return nil
}

func (busOps) disable(g *Graph, c *Clock) {
	g.bank.Modify(regs.ClockReset, c.reg, 0, busDisable<<c.regShift)
}

// setRate picks the smallest divisor in 1..4 whose output does not
// exceed rate.
func (busOps) setRate(g *Graph, c *Clock, rate uint64) error {
	parent := g.rateLocked(c.parent)
	err := errorf(c, opSetRate, ErrInvalidRate, "%d Hz below %d/4", rate, parent)
	g.bank.Locked(func(p regs.Port) {
		val := p.Read(regs.ClockReset, c.reg)
		for i := uint32(1); i <= 4; i++ {
			if rate >= parent/uint64(i) {
				val &^= busDivMask << c.regShift
				val |= (i - 1) << c.regShift
				p.Write(regs.ClockReset, c.reg, val)
				c.mul, c.div = 1, i
				err = nil
				return
			}
		}
	})
	return err
}

// blinkOps is the 32 kHz blink output of the power-management
// controller. Each timer tick is four input cycles.
type blinkOps struct{}

func (blinkOps) init(g *Graph, c *Clock) error {
	c.state = StateOff
	if g.bank.Read(regs.PowerManagement, pmcCtrl)&pmcCtrlBlinkEnable != 0 {
		c.state = StateOn
	}
	c.mul = 1
	val := g.bank.Read(regs.PowerManagement, c.reg)
	if val&blinkEnable == 0 {
		c.div = 1
		return nil
	}
	onOff := (val >> blinkOnShift) & blinkOnMask
	onOff += (val >> blinkOffShift) & blinkOffMask
	c.div = onOff * 4
	if c.div == 0 {
		c.div = 1
	}
	return nil
}

func (blinkOps) enable(g *Graph, c *Clock) error {
	g.bank.Modify(regs.PowerManagement, pmcDPDPadsOride, 0, pmcDPDPadsOrideBlink)
	g.bank.Modify(regs.PowerManagement, pmcCtrl, 0, pmcCtrlBlinkEnable)
	return nil
}

func (blinkOps) disable(g *Graph, c *Clock) {
	g.bank.Modify(regs.PowerManagement, pmcCtrl, pmcCtrlBlinkEnable, 0)
	g.bank.Modify(regs.PowerManagement, pmcDPDPadsOride, pmcDPDPadsOrideBlink, 0)
}

func (blinkOps) setRate(g *Graph, c *Clock, rate uint64) error {
	if rate == 0 {
		return errorf(c, opSetRate, ErrInvalidRate, "zero rate")
	}
	parent := g.rateLocked(c.parent)
	if rate >= parent {
		c.div = 1
		g.bank.Write(regs.PowerManagement, c.reg, 0)
		return nil
	}
	onOff := uint32(divider.DivRoundUp(parent/8, rate))
	c.div = onOff * 8
	val := (onOff & blinkOnMask) << blinkOnShift
	val |= (onOff & blinkOffMask) << blinkOffShift
	val |= blinkEnable
	g.bank.Write(regs.PowerManagement, c.reg, val)
	return nil
}
