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

// input is one resolved candidate parent.
type input struct {
	clock *Clock
	value uint32
}

// Clock is one node of the clock tree.
//
// Description:
//
//	A Clock carries the state common to every kind (parent, ratio,
//	refcount, bounds) plus a kind-specific ops value that implements
//	only the capabilities its kind supports. Fields are guarded by the
//	owning Graph's tree lock; read them through Graph methods.
type Clock struct {
	id       int
	name     string
	kind     Kind
	flags    Flags
	reg      uint32
	regShift uint32
	muxShift uint32
	muxMask  uint32
	clkNum   uint32
	pingroup string

	inputs []input
	parent *Clock
	mul    uint32
	div    uint32

	// base is the rate of a parent-less clock.
	base uint64

	rateCache uint64
	rateGen   uint64

	state  State
	refcnt int
	min    uint64
	max    uint64

	ops  any
	decl Declaration
}

// ID returns the clock's stable arena index.
func (c *Clock) ID() int {
	return c.id
}

// Name returns the clock's unique name.
func (c *Clock) Name() string {
	return c.name
}

// Kind returns the clock's kind.
func (c *Clock) Kind() Kind {
	return c.kind
}

// Flags returns the declared flags.
func (c *Clock) Flags() Flags {
	return c.flags
}

// Reg returns the clock's primary register offset.
func (c *Clock) Reg() uint32 {
	return c.reg
}

// RegShift returns the bit position of the clock's field in Reg.
func (c *Clock) RegShift() uint32 {
	return c.regShift
}

// MiscReg returns the offset of a PLL's misc register.
func (c *Clock) MiscReg() uint32 {
	return pllMiscOffset(c)
}

// Critical reports whether the clock must never be disabled.
//
// Disabling a critical clock is a precondition violation and panics.
func (c *Clock) Critical() bool {
	return c.kind.critical()
}

// Inputs returns the names of the candidate parents in selector order.
func (c *Clock) Inputs() []string {
	names := make([]string, len(c.inputs))
	for i, in := range c.inputs {
		names[i] = in.clock.name
	}
	return names
}

// Declaration returns the declaration the clock was built from.
func (c *Clock) Declaration() Declaration {
	return c.decl
}

// inputFor returns the candidate entry for p.
func (c *Clock) inputFor(p *Clock) (input, bool) {
	for _, in := range c.inputs {
		if in.clock == p {
			return in, true
		}
	}
	return input{}, false
}

// inputByValue returns the last candidate whose selector equals value.
func (c *Clock) inputByValue(value uint32) (*Clock, bool) {
	var found *Clock
	for _, in := range c.inputs {
		if in.value == value {
			found = in.clock
		}
	}
	return found, found != nil
}

// Capability interfaces implemented by kind ops. A missing capability
// surfaces as ErrNotSupported.
type (
	initializer interface {
		init(g *Graph, c *Clock) error
	}

	enabler interface {
		enable(g *Graph, c *Clock) error
		disable(g *Graph, c *Clock)
	}

	rateSetter interface {
		setRate(g *Graph, c *Clock, rate uint64) error
	}

	rateRounder interface {
		roundRate(g *Graph, c *Clock, rate uint64) (uint64, error)
	}

	parentSetter interface {
		setParent(g *Graph, c *Clock, p *Clock) error
	}

	resetter interface {
		reset(g *Graph, c *Clock, assert bool) error
	}

	// adopter accounts for a clock found running at boot.
	adopter interface {
		adopt(g *Graph, c *Clock)
	}

	// sharedBusHost is implemented by kinds that aggregate shared-bus votes.
	sharedBusHost interface {
		aggregator() *Aggregator
	}
)

// Info is a point-in-time view of a clock.
type Info struct {
	ID       int    `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Kind     Kind   `json:"kind" yaml:"kind"`
	Parent   string `json:"parent,omitempty" yaml:"parent,omitempty"`
	Rate     uint64 `json:"rate" yaml:"rate"`
	MinRate  uint64 `json:"min_rate" yaml:"min_rate"`
	MaxRate  uint64 `json:"max_rate" yaml:"max_rate"`
	Mul      uint32 `json:"mul" yaml:"mul"`
	Div      uint32 `json:"div" yaml:"div"`
	State    State  `json:"state" yaml:"state"`
	Refcount int    `json:"refcount" yaml:"refcount"`
}
