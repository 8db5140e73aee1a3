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
	"fmt"
	"log/slog"
)

// InitializeAll reads every clock's hardware configuration.
//
// Description:
//
//	Clocks are initialized in dependency order: a clock's declared
//	parent, the CPU composite's main, backup and timer clocks, the
//	virtual system bus's peripheral bus and the inputs of clocks that
//	read their inputs' rates at init all come first. Clocks without an
//	enable capability are treated as permanently referenced and inherit
//	their parent's state. SKU rate limits are applied before shared-bus
//	users are initialized so users see the final bus ceilings. Finally,
//	refcounted clocks found running are adopted: each takes one
//	reference that also holds its parent chain.
//
// Inputs:
//
//	ctx - Carries the trace span.
//
// Outputs:
//
//	error - Wraps ErrFatalConfiguration at the first clock whose hardware
//	        state cannot be interpreted. The graph must not be used then.
//
// Thread Safety: Holds the tree lock for the whole operation. Calling it
// a second time is a no-op.
func (g *Graph) InitializeAll(ctx context.Context) error {
	ctx, span := startOpSpan(ctx, opInitialize, nil)
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.initializeLocked()
	g.finishOp(ctx, span, opInitialize, nil, err)
	return err
}

func (g *Graph) initializeLocked() error {
	if g.initialized {
		return nil
	}
	order, err := g.initOrder()
	if err != nil {
		return err
	}

	var users []*Clock
	for _, c := range order {
		if c.kind == KindSharedBusUser {
			users = append(users, c)
			continue
		}
		if err := g.initOne(c); err != nil {
			return err
		}
	}
	g.applySKULimits()
	for _, c := range users {
		if err := g.initOne(c); err != nil {
			return err
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		c := order[i]
		if c.state != StateOn || c.refcnt != 0 {
			continue
		}
		if _, ok := c.ops.(enabler); !ok {
			continue
		}
		if c.parent != nil && c.parent.state != StateOn {
			g.logger.Debug("clock running from a stopped parent, marking off",
				slog.String("clock", c.name),
				slog.String("parent", c.parent.name))
			c.state = StateOff
			continue
		}
		g.adoptRef(c)
	}

	g.initialized = true
	g.logger.Info("clock tree initialized", slog.Int("clocks", len(g.clocks)))
	return nil
}

func (g *Graph) initOne(c *Clock) error {
	if i, ok := c.ops.(initializer); ok {
		if err := i.init(g, c); err != nil {
			return err
		}
	}
	if _, ok := c.ops.(enabler); !ok {
		c.refcnt++
		if c.parent != nil {
			c.state = c.parent.state
		} else {
			c.state = StateOn
		}
	}
	if c.state == StateUninitialized {
		c.state = StateOff
	}
	g.touch()

	if c.flags.Has(FlagEnableOnInit) {
		if err := g.enableLocked(c); err != nil {
			return err
		}
	}
	g.logger.Debug("clock initialized",
		slog.String("clock", c.name),
		slog.String("kind", c.kind.String()),
		slog.String("state", c.state.String()),
		slog.Uint64("rate", g.rateLocked(c)))
	return nil
}

// adoptRef takes a boot-time reference on a running clock. The first
// reference on a clock also references its parent.
func (g *Graph) adoptRef(c *Clock) {
	c.refcnt++
	if c.refcnt != 1 {
		return
	}
	if a, ok := c.ops.(adopter); ok {
		a.adopt(g, c)
	}
	if c.parent != nil {
		g.adoptRef(c.parent)
	}
}

// initOrder sorts the arena so every clock follows the clocks its init
// reads. Declaration order breaks ties.
func (g *Graph) initOrder() ([]*Clock, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make([]int, len(g.clocks))
	order := make([]*Clock, 0, len(g.clocks))

	var visit func(c *Clock) error
	visit = func(c *Clock) error {
		switch mark[c.id] {
		case done:
			return nil
		case visiting:
			return errorf(c, opInit, ErrFatalConfiguration, "initialization dependency cycle")
		}
		mark[c.id] = visiting
		for _, d := range g.initDeps(c) {
			if err := visit(d); err != nil {
				return err
			}
		}
		mark[c.id] = done
		order = append(order, c)
		return nil
	}
	for _, c := range g.clocks {
		if err := visit(c); err != nil {
			return nil, fmt.Errorf("ordering clock initialization: %w", err)
		}
	}
	return order, nil
}

func (g *Graph) initDeps(c *Clock) []*Clock {
	var deps []*Clock
	if c.parent != nil {
		deps = append(deps, c.parent)
	}
	switch ops := c.ops.(type) {
	case *cpuOps:
		deps = append(deps, ops.main, ops.backup)
		if ops.timer != nil {
			deps = append(deps, ops.timer)
		}
	case *virtualSystemBusOps:
		deps = append(deps, ops.pclk)
	}
	switch c.kind {
	case KindEMC, KindExternalDevClock:
		for _, in := range c.inputs {
			deps = append(deps, in.clock)
		}
	}
	return deps
}
