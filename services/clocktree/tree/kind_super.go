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

// superMuxOps is a two-stage CPU or system mux. The source field in use
// depends on whether the mux state machine is in its idle or run phase.
type superMuxOps struct{}

// superShift returns the source field shift for the current phase.
func superShift(c *Clock, op string, val uint32) (uint32, error) {
	switch val & superStateMask {
	case superStateIdle:
		return superIdleShift, nil
	case superStateRun:
		return superRunShift, nil
	}
	return 0, errorf(c, op, ErrFatalConfiguration, "mux in unexpected state %#x", val&superStateMask)
}

func (superMuxOps) init(g *Graph, c *Clock) error {
	val := g.read(c.reg)
	shift, err := superShift(c, opInit, val)
	if err != nil {
		return err
	}
	source := (val >> shift) & superSourceMask
	p, ok := c.inputByValue(source)
	if !ok {
		return errorf(c, opInit, ErrFatalConfiguration, "no input for source %d", source)
	}
	c.parent = p
	c.state = StateOn
	return nil
}

func (superMuxOps) enable(g *Graph, c *Clock) error {
	g.write(c.reg+RegSuperDiv, 0)
	return nil
}

func (superMuxOps) disable(_ *Graph, c *Clock) {
	panic("clocktree: super mux " + c.name + " cannot be disabled")
}

func (superMuxOps) setParent(g *Graph, c, p *Clock) error {
	shift, err := superShift(c, opSetParent, g.read(c.reg))
	if err != nil {
		return err
	}
	in, _ := c.inputFor(p)
	return g.switchParent(c, p, func() {
		g.bank.Update(regs.ClockReset, c.reg, func(val uint32) uint32 {
			val &^= superSourceMask << shift
			return val | in.value<<shift
		})
	})
}

// setRate reprograms the selected source. The mux has no divider of its
// own, so the source must not have other children.
func (superMuxOps) setRate(g *Graph, c *Clock, rate uint64) error {
	if c.parent == nil {
		return newError(c, opSetRate, ErrNotSupported)
	}
	return g.setRateLocked(c.parent, rate)
}

// cpuOps is the virtual CPU clock. It moves the CPU mux to a backup
// source while the main PLL is reprogrammed.
type cpuOps struct {
	main   *Clock
	backup *Clock

	// timer follows the CPU rate. It is parent-less so its rate can be
	// read without the tree lock.
	timer *Clock
}

func (o *cpuOps) init(g *Graph, c *Clock) error {
	c.mul, c.div = 1, 1
	c.state = StateOn
	o.updateTimer(g, c)
	return nil
}

func (o *cpuOps) enable(*Graph, *Clock) error {
	return nil
}

func (o *cpuOps) disable(_ *Graph, c *Clock) {
	panic("clocktree: CPU clock " + c.name + " cannot be disabled")
}

// setRate runs the backup switch sequence.
//
// Description:
//
//	1. Take a reference on the main PLL so it stays up while unused.
//	2. Move the CPU mux to the backup source.
//	3. Reprogram the main PLL unless the target equals the backup rate.
//	4. Move the CPU mux back to the main PLL.
//	5. Update the timer clock from the new CPU rate.
//	6. Drop the main PLL reference.
//
//	A failing step is logged and its error returned after steps 5 and 6.
//	Completed steps are not rolled back. Step 6 runs only when step 1
//	took the reference.
func (o *cpuOps) setRate(g *Graph, c *Clock, rate uint64) error {
	if err := g.enableLocked(o.main); err != nil {
		g.logger.Error("failed to hold CPU main clock",
			slog.String("clock", o.main.name),
			slog.String("error", err.Error()))
		g.touch()
		o.updateTimer(g, c)
		return err
	}
	err := o.switchRate(g, c, rate)
	g.touch()
	o.updateTimer(g, c)
	g.disableLocked(o.main)
	return err
}

func (o *cpuOps) switchRate(g *Graph, c *Clock, rate uint64) error {
	if err := g.setParentLocked(c.parent, o.backup); err != nil {
		g.logger.Error("failed to switch CPU to backup clock",
			slog.String("clock", o.backup.name),
			slog.String("error", err.Error()))
		return err
	}
	if rate != g.rateLocked(o.backup) {
		if err := g.setRateLocked(o.main, rate); err != nil {
			g.logger.Error("failed to change CPU PLL rate",
				slog.Uint64("rate", rate),
				slog.String("error", err.Error()))
			return err
		}
	}
	if err := g.setParentLocked(c.parent, o.main); err != nil {
		g.logger.Error("failed to switch CPU to main clock",
			slog.String("clock", o.main.name),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// updateTimer assigns the timer's rate directly from the CPU rate.
func (o *cpuOps) updateTimer(g *Graph, c *Clock) {
	if o.timer == nil {
		return
	}
	rate := g.rateLocked(c)
	if o.timer.mul != 0 && o.timer.div != 0 {
		rate = rate * uint64(o.timer.mul) / uint64(o.timer.div)
	}
	o.timer.base = rate
	g.touch()
}

// virtualSystemBusOps coordinates the system clock with the peripheral
// bus divided from it. It is also a shared bus.
type virtualSystemBusOps struct {
	busHost
	pclk *Clock
}

func (o *virtualSystemBusOps) init(g *Graph, c *Clock) error {
	c.min, c.max = c.parent.min, c.parent.max
	return nil
}

func (o *virtualSystemBusOps) roundRate(_ *Graph, _ *Clock, rate uint64) (uint64, error) {
	return rate, nil
}

// setRate widens the peripheral bus divider before a rate increase and
// narrows it after a decrease so the peripheral bus never exceeds its
// ceiling.
func (o *virtualSystemBusOps) setRate(g *Graph, c *Clock, rate uint64) error {
	floor := o.pclk.min * 2
	if rate >= floor {
		if err := g.setDivLocked(o.pclk, 2); err != nil {
			g.logger.Error("failed to set 1:2 peripheral bus divider",
				slog.String("clock", o.pclk.name),
				slog.String("error", err.Error()))
			return err
		}
	}
	if err := g.setRateLocked(c.parent, rate); err != nil {
		g.logger.Error("failed to set system clock source",
			slog.String("clock", c.parent.name),
			slog.Uint64("rate", rate),
			slog.String("error", err.Error()))
		return err
	}
	if rate < floor {
		if err := g.setDivLocked(o.pclk, 1); err != nil {
			g.logger.Error("failed to set 1:1 peripheral bus divider",
				slog.String("clock", o.pclk.name),
				slog.String("error", err.Error()))
			return err
		}
	}
	return nil
}

// copOps is the coprocessor reset line.
type copOps struct{}

func (copOps) reset(g *Graph, c *Clock, assert bool) error {
	reg := RegRstDevicesClr
	if assert {
		reg = RegRstDevicesSet
	}
	g.write(reg, copResetBit)
	return nil
}
