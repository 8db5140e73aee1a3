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
	"errors"
	"log/slog"
)

// Aggregator is the vote list of one shared bus. It stores arena IDs,
// so users and bus never hold references to each other.
type Aggregator struct {
	root  int
	users []int
}

// Root returns the arena ID of the bus.
func (a *Aggregator) Root() int {
	return a.root
}

// Users returns the arena IDs of the registered users.
func (a *Aggregator) Users() []int {
	return append([]int(nil), a.users...)
}

func (a *Aggregator) add(root, user int) {
	a.root = root
	for _, id := range a.users {
		if id == user {
			return
		}
	}
	a.users = append(a.users, user)
}

// busHost is embedded by kinds that act as a shared bus.
type busHost struct {
	agg Aggregator
}

func (h *busHost) aggregator() *Aggregator {
	return &h.agg
}

// Vote is one user's request on a shared bus.
type Vote struct {
	Name    string `json:"name" yaml:"name"`
	Rate    uint64 `json:"rate" yaml:"rate"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// sharedBusRootOps is a bare shared bus. It passes rate changes to its
// parent, or holds the rate itself when it has none.
type sharedBusRootOps struct {
	busHost
}

func (o *sharedBusRootOps) setRate(g *Graph, c *Clock, rate uint64) error {
	if c.parent == nil {
		c.base = rate
		return nil
	}
	return g.setRateLocked(c.parent, rate)
}

func (o *sharedBusRootOps) roundRate(g *Graph, c *Clock, rate uint64) (uint64, error) {
	if c.parent == nil {
		return rate, nil
	}
	return roundThrough(g, c.parent, rate)
}

// roundThrough rounds rate on p, passing it through unchanged when p
// cannot round.
func roundThrough(g *Graph, p *Clock, rate uint64) (uint64, error) {
	got, err := g.roundRateLocked(p, rate)
	if errors.Is(err, ErrNotSupported) {
		return rate, nil
	}
	return got, err
}

// sharedUserOps is one consumer's handle on a shared bus.
type sharedUserOps struct {
	rate    uint64
	enabled bool
}

func (o *sharedUserOps) init(g *Graph, c *Clock) error {
	var host sharedBusHost
	if c.parent != nil {
		host, _ = c.parent.ops.(sharedBusHost)
	}
	if host == nil {
		return errorf(c, opInit, ErrFatalConfiguration, "parent is not a shared bus")
	}
	c.max = c.parent.max
	o.rate = c.parent.max
	c.state = StateOff
	host.aggregator().add(c.parent.id, c.id)
	return nil
}

func (o *sharedUserOps) enable(g *Graph, c *Clock) error {
	o.enabled = true
	return g.sharedBusUpdateLocked(c.parent)
}

func (o *sharedUserOps) disable(g *Graph, c *Clock) {
	o.enabled = false
	if err := g.sharedBusUpdateLocked(c.parent); err != nil {
		g.logger.Warn("shared bus update failed on disable",
			slog.String("clock", c.name),
			slog.String("bus", c.parent.name),
			slog.String("error", err.Error()))
	}
}

func (o *sharedUserOps) setRate(g *Graph, c *Clock, rate uint64) error {
	rounded, err := roundThrough(g, c.parent, rate)
	if err != nil {
		return err
	}
	o.rate = rounded
	return g.sharedBusUpdateLocked(c.parent)
}

func (o *sharedUserOps) roundRate(g *Graph, c *Clock, rate uint64) (uint64, error) {
	return roundThrough(g, c.parent, rate)
}

// sharedBusUpdateLocked applies the highest enabled vote to bus.
//
// Description:
//
//	The bus rate becomes max(bus minimum, enabled votes). Nothing is
//	written when that equals the current rate. On the AP25 SKU the
//	memory bus passes through intermediate rates around its bridge and
//	scaling-step rates first; failures of those steps are ignored.
//
// Outputs:
//
//	error - The bus SetRate failure. Votes stay recorded either way, so
//	        a later update with a reachable rate resynchronizes the bus.
func (g *Graph) sharedBusUpdateLocked(bus *Clock) error {
	host, ok := bus.ops.(sharedBusHost)
	if !ok {
		return newError(bus, opBusUpdate, ErrNotSupported)
	}
	rate := bus.min
	for _, id := range host.aggregator().users {
		u := g.clocks[id].ops.(*sharedUserOps)
		if u.enabled {
			rate = max(rate, u.rate)
		}
	}

	old := g.rateLocked(bus)
	if rate == old {
		return nil
	}

	if g.platform.SKU == ap25SKU && bus.flags.Has(FlagEMCEnable) {
		g.stageAP25(bus, old, rate)
	}

	if err := g.setRateLocked(bus, rate); err != nil {
		return err
	}
	sharedBusUpdates.WithLabelValues(bus.name).Inc()
	g.logger.Debug("shared bus rate changed",
		slog.String("bus", bus.name),
		slog.Uint64("from", old),
		slog.Uint64("to", rate))
	return nil
}

// stageAP25 steps the memory bus through its intermediate rates.
func (g *Graph) stageAP25(bus *Clock, old, rate uint64) {
	step := func(r uint64) {
		if err := g.setRateLocked(bus, r); err != nil {
			g.logger.Debug("staged memory bus step failed",
				slog.String("bus", bus.name),
				slog.Uint64("rate", r),
				slog.String("error", err.Error()))
		}
	}
	if old == ap25EMCScalingStep && rate != ap25EMCIntermediate {
		step(ap25EMCIntermediate)
	}
	if (old > ap25EMCBridgeRate && rate < ap25EMCBridgeRate) ||
		(old < ap25EMCBridgeRate && rate > ap25EMCBridgeRate) {
		step(ap25EMCBridgeRate)
	}
	if rate == ap25EMCScalingStep && old != ap25EMCIntermediate {
		step(ap25EMCIntermediate)
	}
}

// SharedBusUsers lists the votes registered on a shared bus.
func (g *Graph) SharedBusUsers(bus *Clock) ([]Vote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	host, ok := bus.ops.(sharedBusHost)
	if !ok {
		return nil, newError(bus, opBusUpdate, ErrNotSupported)
	}
	var votes []Vote
	for _, id := range host.aggregator().users {
		c := g.clocks[id]
		u := c.ops.(*sharedUserOps)
		votes = append(votes, Vote{Name: c.name, Rate: u.rate, Enabled: u.enabled})
	}
	return votes, nil
}
