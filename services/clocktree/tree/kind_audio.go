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

// audioSyncOps selects the audio sync source and gates it with a mute
// bit.
type audioSyncOps struct{}

func (audioSyncOps) init(g *Graph, c *Clock) error {
	val := g.read(c.reg)
	c.state = StateOn
	if val&audioSyncMute != 0 {
		c.state = StateOff
	}
	source := val & audioSyncSourceMask
	p, ok := c.inputByValue(source)
	if !ok {
		return errorf(c, opInit, ErrFatalConfiguration, "no input for source %d", source)
	}
	c.parent = p
	return nil
}

func (audioSyncOps) enable(g *Graph, c *Clock) error {
	g.bank.Modify(regs.ClockReset, c.reg, audioSyncMute, 0)
	return nil
}

func (audioSyncOps) disable(g *Graph, c *Clock) {
	g.bank.Modify(regs.ClockReset, c.reg, 0, audioSyncMute)
}

func (audioSyncOps) setParent(g *Graph, c, p *Clock) error {
	in, _ := c.inputFor(p)
	return g.switchParent(c, p, func() {
		g.bank.Modify(regs.ClockReset, c.reg, audioSyncSourceMask, in.value)
	})
}

// extDevOps is a board-routed clock output. Its source is chosen by the
// pin mux, so the parent is resolved on first enable.
type extDevOps struct{}

func (extDevOps) init(g *Graph, c *Clock) error {
	for _, in := range c.inputs {
		c.max = max(c.max, in.clock.max)
	}
	if c.clkNum == 0 {
		return errorf(c, opInit, ErrFatalConfiguration, "no enable bit")
	}
	c.state = StateOn
	if enabled, _ := readGate(g, c); !enabled {
		c.state = StateOff
	}
	return nil
}

func (extDevOps) enable(g *Graph, c *Clock) error {
	if c.parent == nil {
		p, err := resolvePinmuxParent(g, c)
		if err != nil {
			return err
		}
		if err := g.enableLocked(p); err != nil {
			return err
		}
		c.parent = p
		g.touch()
		g.logger.Debug("resolved clock parent from pin mux",
			slog.String("clock", c.name),
			slog.String("parent", p.name),
			slog.String("pingroup", c.pingroup))
	}
	g.write(RegClkOutEnbSet+enableSetRegIndex(c.clkNum), enableBitMask(c.clkNum))
	return nil
}

func (extDevOps) disable(g *Graph, c *Clock) {
	g.write(RegClkOutEnbClr+enableSetRegIndex(c.clkNum), enableBitMask(c.clkNum))
}

func resolvePinmuxParent(g *Graph, c *Clock) (*Clock, error) {
	pm := g.platform.Pinmux
	if pm == nil {
		return nil, errorf(c, opEnable, ErrFatalConfiguration, "no pin mux reader")
	}
	fn, err := pm.PinFunction(c.pingroup)
	if err != nil {
		return nil, errorf(c, opEnable, ErrFatalConfiguration, "pin group %s: %v", c.pingroup, err)
	}
	p, ok := c.inputByValue(fn)
	if !ok {
		return nil, errorf(c, opEnable, ErrFatalConfiguration, "no input for pin function %d", fn)
	}
	return p, nil
}
