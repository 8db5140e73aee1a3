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
	"context"
	"log/slog"

	"github.com/AleutianAI/clocktree/services/clocktree/divider"
	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// Enable takes one enable reference on c.
//
// Description:
//
//	The first reference enables the parent chain first, then the clock's
//	own hardware. On failure the parent reference just taken is
//	released and the clock's state is unchanged.
//
// Inputs:
//
//	ctx - Carries the trace span. The operation itself cannot be cancelled.
//	c - The clock to enable.
//
// Outputs:
//
//	error - The kind-specific failure, unchanged.
//
// Thread Safety: Holds the tree lock for the whole operation.
func (g *Graph) Enable(ctx context.Context, c *Clock) error {
	ctx, span := startOpSpan(ctx, opEnable, c)
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.enableLocked(c)
	g.finishOp(ctx, span, opEnable, c, err)
	return err
}

// Disable releases one enable reference on c.
//
// Disabling a clock with a zero refcount logs a warning and does nothing.
// Disabling an oscillator, super mux or CPU composite panics.
func (g *Graph) Disable(ctx context.Context, c *Clock) {
	ctx, span := startOpSpan(ctx, opDisable, c)
	g.mu.Lock()
	defer g.mu.Unlock()

	g.disableLocked(c)
	g.finishOp(ctx, span, opDisable, c, nil)
}

// SetRate programs c to run at rate, or the closest rate below it the
// clock's encoding can reach.
//
// Outputs:
//
//	error - ErrNotSupported when the kind has no rate control,
//	        ErrInvalidRate when rate is outside [min, max] or unreachable.
func (g *Graph) SetRate(ctx context.Context, c *Clock, rate uint64) error {
	ctx, span := startOpSpan(ctx, opSetRate, c)
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.setRateLocked(c, rate)
	g.finishOp(ctx, span, opSetRate, c, err)
	return err
}

// RoundRate reports the rate SetRate(rate) would produce without
// touching hardware.
func (g *Graph) RoundRate(ctx context.Context, c *Clock, rate uint64) (uint64, error) {
	ctx, span := startOpSpan(ctx, opRoundRate, c)
	g.mu.Lock()
	defer g.mu.Unlock()

	got, err := g.roundRateLocked(c, rate)
	g.finishOp(ctx, span, opRoundRate, c, err)
	return got, err
}

// SetParent switches c to one of its candidate inputs.
//
// Description:
//
//	When c holds enable references the new parent is enabled before the
//	select field is written and the old parent is disabled after, so c
//	always has a running source.
//
// Outputs:
//
//	error - ErrUnknownParent when p is not a candidate, ErrParentCycle
//	        when p descends from c, ErrInvalidRate when the new rate
//	        would exceed c's maximum.
func (g *Graph) SetParent(ctx context.Context, c, p *Clock) error {
	ctx, span := startOpSpan(ctx, opSetParent, c)
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.setParentLocked(c, p)
	g.finishOp(ctx, span, opSetParent, c, err)
	return err
}

// Reset asserts or deasserts c's reset line. It does not touch the
// enable refcount.
func (g *Graph) Reset(ctx context.Context, c *Clock, assert bool) error {
	ctx, span := startOpSpan(ctx, opReset, c)
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	if r, ok := c.ops.(resetter); ok {
		err = r.reset(g, c, assert)
	} else {
		err = newError(c, opReset, ErrNotSupported)
	}
	g.finishOp(ctx, span, opReset, c, err)
	return err
}

// SetTapDelay programs the feedback tap delay of an SD/MMC peripheral
// clock. Values are clamped to the 4-bit field. Clocks not declared with
// FlagTapDelay return ErrNotSupported.
func (g *Graph) SetTapDelay(ctx context.Context, c *Clock, delay int) error {
	ctx, span := startOpSpan(ctx, opTapDelay, c)
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	if c.kind != KindPeripheral || c.reg == 0 || !c.flags.Has(FlagTapDelay) {
		err = newError(c, opTapDelay, ErrNotSupported)
	} else {
		if delay < 0 {
			delay = 0
		}
		if delay > sdmmcDelayMax {
			delay = sdmmcDelayMax
		}
		g.bank.Modify(regs.ClockReset, c.reg, sdmmcDelayMask,
			sdmmcFeedbackSel|uint32(delay)<<sdmmcDelayShift)
	}
	g.finishOp(ctx, span, opTapDelay, c, err)
	return err
}

func (g *Graph) enableLocked(c *Clock) error {
	if c.refcnt == 0 {
		if c.parent != nil {
			if err := g.enableLocked(c.parent); err != nil {
				return err
			}
		}
		if e, ok := c.ops.(enabler); ok {
			if err := e.enable(g, c); err != nil {
				if c.parent != nil {
					g.disableLocked(c.parent)
				}
				return err
			}
		}
		c.state = StateOn
	}
	c.refcnt++
	return nil
}

func (g *Graph) disableLocked(c *Clock) {
	if c.refcnt == 0 {
		g.logger.Warn("disable of clock with zero refcount", slog.String("clock", c.name))
		return
	}
	if c.refcnt == 1 {
		if c.Critical() {
			panic("clocktree: attempt to disable critical clock " + c.name)
		}
		if e, ok := c.ops.(enabler); ok {
			e.disable(g, c)
		}
		if c.parent != nil {
			g.disableLocked(c.parent)
		}
		c.state = StateOff
	}
	c.refcnt--
}

func (g *Graph) setRateLocked(c *Clock, rate uint64) error {
	s, ok := c.ops.(rateSetter)
	if !ok {
		return newError(c, opSetRate, ErrNotSupported)
	}
	if rate < c.min || (c.max != 0 && rate > c.max) {
		return errorf(c, opSetRate, ErrInvalidRate,
			"%d Hz outside [%d, %d]", rate, c.min, c.max)
	}
	if r, ok := c.ops.(rateRounder); ok {
		rounded, err := r.roundRate(g, c, rate)
		if err != nil {
			return err
		}
		rate = rounded
	}
	err := s.setRate(g, c, rate)
	g.touch()
	if err == nil {
		g.logger.Debug("clock rate set",
			slog.String("clock", c.name),
			slog.Uint64("rate", g.rateLocked(c)))
	}
	return err
}

func (g *Graph) roundRateLocked(c *Clock, rate uint64) (uint64, error) {
	r, ok := c.ops.(rateRounder)
	if !ok {
		return 0, newError(c, opRoundRate, ErrNotSupported)
	}
	if c.max != 0 && rate > c.max {
		rate = c.max
	}
	return r.roundRate(g, c, rate)
}

func (g *Graph) setParentLocked(c, p *Clock) error {
	s, ok := c.ops.(parentSetter)
	if !ok {
		return newError(c, opSetParent, ErrNotSupported)
	}
	if _, ok := c.inputFor(p); !ok {
		return errorf(c, opSetParent, ErrUnknownParent, "%s is not an input", p.name)
	}
	for a := p; a != nil; a = a.parent {
		if a == c {
			return newError(c, opSetParent, ErrParentCycle)
		}
	}
	if c.max != 0 {
		predicted := g.rateLocked(p)
		if c.mul != 0 && c.div != 0 {
			predicted = divider.DivRoundUp(predicted*uint64(c.mul), uint64(c.div))
		}
		if predicted > c.max {
			return errorf(c, opSetParent, ErrInvalidRate,
				"%s would run at %d Hz, max %d", p.name, predicted, c.max)
		}
	}
	return s.setParent(g, c, p)
}

// switchParent runs program between enabling p and disabling the old
// parent when c is in use, then records p as the parent.
func (g *Graph) switchParent(c, p *Clock, program func()) error {
	if c.refcnt > 0 {
		if err := g.enableLocked(p); err != nil {
			return err
		}
	}
	program()
	if c.refcnt > 0 && c.parent != nil {
		g.disableLocked(c.parent)
	}
	g.reparent(c, p)
	return nil
}

// setDivLocked sets c to run at its parent rate divided by n. The
// request names a divider, not a rate, so only the ceiling is enforced.
func (g *Graph) setDivLocked(c *Clock, n uint64) error {
	s, ok := c.ops.(rateSetter)
	if !ok {
		return newError(c, opSetRate, ErrNotSupported)
	}
	if c.parent == nil || n == 0 {
		return newError(c, opSetRate, ErrInvalidRate)
	}
	rate := divider.DivRoundUp(g.rateLocked(c.parent), n)
	if c.max != 0 && rate > c.max {
		rate = c.max
	}
	err := s.setRate(g, c, rate)
	g.touch()
	return err
}
