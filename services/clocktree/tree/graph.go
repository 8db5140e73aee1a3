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
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/clocktree/services/clocktree/divider"
	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// lookupEntry maps a device/connection pair to a clock.
type lookupEntry struct {
	dev   string
	con   string
	clock *Clock
}

// Graph owns every clock of one chip and serializes operations on them.
//
// Thread Safety: Safe for concurrent use. Each public method holds the
// tree lock for its whole duration.
type Graph struct {
	mu sync.Mutex

	clocks  []*Clock
	byName  map[string]*Clock
	lookups []lookupEntry

	bank     *regs.Bank
	logger   *slog.Logger
	platform Platform
	delay    func(time.Duration)

	skuLimits  []SKULimit
	enableRefs map[EnableBit]int

	// gen invalidates every cached rate when bumped.
	gen         uint64
	initialized bool
}

// New builds a Graph from a topology.
//
// Description:
//
//	Validates every declaration, creates one Clock per declaration in
//	arena order, and resolves parent, input, CPU and system references
//	by name. No register is touched; call InitializeAll next.
//
// Inputs:
//
//	topo - The static clock topology.
//	port - Register access for all three blocks.
//	opts - Logger, platform collaborators and delay function.
//
// Outputs:
//
//	*Graph - The constructed graph.
//	error - Wraps ErrFatalConfiguration for invalid or dangling references.
func New(topo Topology, port regs.Port, opts Options) (*Graph, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil register port", ErrFatalConfiguration)
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		byName:     make(map[string]*Clock, len(topo.Clocks)),
		bank:       regs.NewBank(port),
		logger:     opts.Logger,
		platform:   opts.Platform,
		delay:      opts.Delay,
		skuLimits:  append([]SKULimit(nil), topo.SKULimits...),
		enableRefs: make(map[EnableBit]int),
		gen:        1,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.delay == nil {
		g.delay = BusyWait
	}

	for i, d := range topo.Clocks {
		c := newClock(i, d)
		g.clocks = append(g.clocks, c)
		g.byName[d.Name] = c
	}
	for _, c := range g.clocks {
		if err := g.resolve(c); err != nil {
			return nil, err
		}
	}
	for _, c := range g.clocks {
		dev, con := c.decl.Dev, c.decl.Con
		if dev == "" && con == "" {
			con = c.name
		}
		g.lookups = append(g.lookups, lookupEntry{dev: dev, con: con, clock: c})
	}
	for _, a := range topo.Aliases {
		if err := g.addAliasLocked(a); err != nil {
			g.logger.Error("skipping clock alias",
				slog.String("clock", a.Clock),
				slog.String("error", err.Error()))
		}
	}
	return g, nil
}

func newClock(id int, d Declaration) *Clock {
	c := &Clock{
		id:       id,
		name:     d.Name,
		kind:     d.Kind,
		flags:    d.Flags,
		reg:      uint32(d.Reg),
		regShift: d.RegShift,
		muxShift: d.MuxShift,
		muxMask:  uint32(d.MuxMask),
		clkNum:   d.ClkNum,
		pingroup: d.Pingroup,
		mul:      d.Mul,
		div:      d.Div,
		base:     d.Rate,
		min:      d.MinRate,
		max:      d.MaxRate,
		state:    StateUninitialized,
		decl:     d,
	}
	if c.muxMask == 0 {
		c.muxShift, c.muxMask = periphMuxShift, periphMuxMask
	}
	return c
}

// resolve links names to clocks and builds the kind ops.
func (g *Graph) resolve(c *Clock) error {
	d := c.decl
	var err error
	if d.Parent != "" {
		if c.parent, err = g.mustFind(c, d.Parent); err != nil {
			return err
		}
	}
	for _, in := range d.Inputs {
		p, err := g.mustFind(c, in.Clock)
		if err != nil {
			return err
		}
		c.inputs = append(c.inputs, input{clock: p, value: in.Value})
	}

	switch c.kind {
	case KindFixed:
		c.ops = fixedOps{}
	case KindOscillator:
		c.ops = oscillatorOps{}
	case KindPLL:
		ops := &pllOps{params: *d.PLL}
		if c.flags.Has(FlagPLLE) {
			c.ops = &plleOps{pllOps: ops}
		} else {
			c.ops = ops
		}
	case KindPLLOutputDivider:
		c.ops = pllDividerOps{}
	case KindSuperMux:
		c.ops = superMuxOps{}
	case KindBus:
		c.ops = busOps{}
	case KindBlink:
		c.ops = blinkOps{}
	case KindCPUComposite:
		ops := &cpuOps{}
		if ops.main, err = g.mustFind(c, d.CPU.Main); err != nil {
			return err
		}
		if ops.backup, err = g.mustFind(c, d.CPU.Backup); err != nil {
			return err
		}
		if d.CPU.Timer != "" {
			if ops.timer, err = g.mustFind(c, d.CPU.Timer); err != nil {
				return err
			}
		}
		c.ops = ops
	case KindVirtualSystemBus:
		ops := &virtualSystemBusOps{}
		if ops.pclk, err = g.mustFind(c, d.System.PClk); err != nil {
			return err
		}
		c.ops = ops
	case KindCOPReset:
		c.ops = copOps{}
	case KindPeripheral:
		c.ops = periphOps{}
	case KindEMC:
		c.ops = &emcOps{}
	case KindDoubler:
		c.ops = doublerOps{}
	case KindAudioSync:
		c.ops = audioSyncOps{}
	case KindExternalDevClock:
		c.ops = extDevOps{}
	case KindSharedBusRoot:
		c.ops = &sharedBusRootOps{}
	case KindSharedBusUser:
		c.ops = &sharedUserOps{}
	default:
		return errorf(c, opInit, ErrFatalConfiguration, "unknown kind %s", c.kind)
	}
	return nil
}

func (g *Graph) mustFind(c *Clock, name string) (*Clock, error) {
	p, ok := g.byName[name]
	if !ok {
		return nil, errorf(c, opInit, ErrFatalConfiguration, "unknown clock %q", name)
	}
	return p, nil
}

// Lookup returns the clock with the given name.
func (g *Graph) Lookup(name string) (*Clock, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return c, nil
}

// LookupDevice resolves a consumer's device and connection names.
//
// Description:
//
//	Entries match when each non-empty entry field equals the request.
//	A device match outranks a connection match; the best-scoring entry
//	wins and earlier entries win ties.
func (g *Graph) LookupDevice(dev, con string) (*Clock, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	best, bestScore := (*Clock)(nil), -1
	for _, e := range g.lookups {
		score := 0
		if e.dev != "" {
			if e.dev != dev {
				continue
			}
			score += 2
		}
		if e.con != "" {
			if e.con != con {
				continue
			}
			score++
		}
		if score > bestScore {
			best, bestScore = e.clock, score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: dev=%q con=%q", ErrNotFound, dev, con)
	}
	return best, nil
}

// AddAlias registers an existing clock under another lookup name.
func (g *Graph) AddAlias(a Alias) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addAliasLocked(a)
}

func (g *Graph) addAliasLocked(a Alias) error {
	c, ok := g.byName[a.Clock]
	if !ok {
		return fmt.Errorf("%w: alias target %q", ErrNotFound, a.Clock)
	}
	g.lookups = append(g.lookups, lookupEntry{dev: a.Dev, con: a.Con, clock: c})
	return nil
}

// Clocks returns every clock in arena order.
func (g *Graph) Clocks() []*Clock {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Clock(nil), g.clocks...)
}

// Platform returns the platform collaborators the graph was built with.
func (g *Graph) Platform() Platform {
	return g.platform
}

// touch invalidates every cached rate.
func (g *Graph) touch() {
	g.gen++
}

// reparent records a new parent after the hardware switched.
func (g *Graph) reparent(c, p *Clock) {
	c.parent = p
	g.touch()
}

// rateLocked computes a clock's rate, caching it until the next change.
//
// A parent-less clock runs at its base rate. Otherwise the rate is the
// parent rate scaled by mul/div, rounded up; a zero mul or div means the
// clock passes its parent's rate through.
func (g *Graph) rateLocked(c *Clock) uint64 {
	if c.rateGen == g.gen {
		return c.rateCache
	}
	var rate uint64
	if c.parent == nil {
		rate = c.base
	} else {
		rate = g.rateLocked(c.parent)
		if c.mul != 0 && c.div != 0 {
			rate = divider.DivRoundUp(rate*uint64(c.mul), uint64(c.div))
		}
	}
	c.rateCache, c.rateGen = rate, g.gen
	return rate
}

// Rate returns the clock's current rate in Hz.
func (g *Graph) Rate(c *Clock) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rateLocked(c)
}

// Parent returns the clock's current parent, or nil.
func (g *Graph) Parent(c *Clock) *Clock {
	g.mu.Lock()
	defer g.mu.Unlock()
	return c.parent
}

// State returns the clock's hardware state.
func (g *Graph) State(c *Clock) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return c.state
}

// Refcount returns the clock's enable refcount.
func (g *Graph) Refcount(c *Clock) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return c.refcnt
}

// Bounds returns the clock's current minimum and maximum rates.
func (g *Graph) Bounds(c *Clock) (min, max uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return c.min, c.max
}

// Info returns a snapshot of one clock.
func (g *Graph) Info(c *Clock) Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.infoLocked(c)
}

func (g *Graph) infoLocked(c *Clock) Info {
	info := Info{
		ID:       c.id,
		Name:     c.name,
		Kind:     c.kind,
		Rate:     g.rateLocked(c),
		MinRate:  c.min,
		MaxRate:  c.max,
		Mul:      c.mul,
		Div:      c.div,
		State:    c.state,
		Refcount: c.refcnt,
	}
	if c.parent != nil {
		info.Parent = c.parent.name
	}
	return info
}

// Walk visits every clock depth-first from the roots.
//
// Roots are visited in arena order and children in arena order under
// their parent. fn receives the depth, starting at zero for roots.
func (g *Graph) Walk(fn func(depth int, info Info)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	children := make(map[*Clock][]*Clock)
	var roots []*Clock
	for _, c := range g.clocks {
		if c.parent == nil {
			roots = append(roots, c)
			continue
		}
		children[c.parent] = append(children[c.parent], c)
	}
	for _, kids := range children {
		sort.Slice(kids, func(i, j int) bool { return kids[i].id < kids[j].id })
	}

	var visit func(c *Clock, depth int)
	visit = func(c *Clock, depth int) {
		fn(depth, g.infoLocked(c))
		for _, k := range children[c] {
			visit(k, depth+1)
		}
	}
	for _, r := range roots {
		visit(r, 0)
	}
}

// WithRegisters runs fn with the tree lock and register lock held.
//
// Suspend and resume use it to copy raw register words while no clock
// operation can interleave.
func (g *Graph) WithRegisters(fn func(port regs.Port)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bank.Locked(fn)
}

// microseconds converts a hardware delay in µs to a duration.
func microseconds(us uint32) time.Duration {
	return time.Duration(us) * time.Microsecond
}

// read and write address the clock and reset controller.
func (g *Graph) read(offset uint32) uint32 {
	return g.bank.Read(regs.ClockReset, offset)
}

func (g *Graph) write(offset, value uint32) {
	g.bank.Write(regs.ClockReset, offset, value)
}
