// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot saves and restores the clock controller's raw
// register state across a power-down.
//
// A Plan lists the words to capture and the order in which they are
// written back. Resume brings PLLs and secondary dividers up before the
// peripheral source, reset and enable words, because those writes assume
// running PLLs. The secondary dividers are forced enabled during the
// sequence and get their saved values back as the last step.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// ErrIncomplete is returned when a snapshot lacks a word the plan restores.
var ErrIncomplete = errors.New("snapshot does not cover the plan")

// Mode says how an entry's saved word is written back.
type Mode int

const (
	// Saved writes the captured word unchanged.
	Saved Mode = iota

	// Masked captures only Bits and merges them into the live register.
	Masked

	// Forced writes the captured word with Bits set, then writes the
	// captured word alone once everything else is restored.
	Forced

	// Constant writes Bits without capturing anything.
	Constant
)

func (m Mode) String() string {
	switch m {
	case Saved:
		return "saved"
	case Masked:
		return "masked"
	case Forced:
		return "forced"
	case Constant:
		return "constant"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Entry is one register write of the resume sequence.
type Entry struct {
	regs.Address
	Name string
	Mode Mode
	Bits uint32

	// Settle is waited after the write.
	Settle time.Duration
}

// Captured reports whether the entry's word is part of a snapshot.
func (e Entry) Captured() bool {
	return e.Mode != Constant
}

// Plan is the ordered resume sequence.
type Plan struct {
	Entries []Entry
}

// Words returns the number of captured words.
func (p *Plan) Words() int {
	n := 0
	for _, e := range p.Entries {
		if e.Captured() {
			n++
		}
	}
	return n
}

// Layout names the clocks whose registers a plan covers.
type Layout struct {
	// PairedOutputs are PLL output registers holding two dividers. Both
	// halves are forced enabled during resume.
	PairedOutputs []string

	// PLLs get their base and misc registers restored.
	PLLs []string

	// PLLSettle is waited after the last PLL register.
	PLLSettle time.Duration

	// Outputs are single PLL output dividers forced enabled during resume.
	Outputs []string

	// SuperMuxes get their mux and divider registers restored.
	SuperMuxes []string

	// Words are restored as plain registers, after the super muxes.
	Words []string

	// EnableAll is written to the clock enable words before the
	// peripheral sources are restored.
	EnableAll [tree.RegClkOutEnbNum]uint32

	// SourceFirst and SourceLast bound the peripheral source registers.
	// The memory controller's source is skipped.
	SourceFirst uint32
	SourceLast  uint32
}

// Tegra2Layout returns the layout of the built-in board.
func Tegra2Layout() Layout {
	return Layout{
		PairedOutputs: []string{"pll_p_out1", "pll_p_out3"},
		PLLs:          []string{"pll_c", "pll_a", "pll_s", "pll_d", "pll_u"},
		PLLSettle:     time.Millisecond,
		Outputs:       []string{"pll_m_out1", "pll_a_out0", "pll_c_out1"},
		SuperMuxes:    []string{"cclk", "sclk"},
		Words:         []string{"pclk", "audio"},
		EnableAll:     [tree.RegClkOutEnbNum]uint32{0xbffffff9, 0xfefffff7, 0x77f01bff},
		SourceFirst:   0x100,
		SourceLast:    0x1fc,
	}
}

// NewPlan builds the built-in board's plan for g.
func NewPlan(g *tree.Graph) (*Plan, error) {
	return BuildPlan(g, Tegra2Layout())
}

// BuildPlan builds the resume sequence for g.
//
// Description:
//
//	The order is: oscillator control (masked), paired PLL outputs
//	(forced), PLL base and misc words followed by a settle delay, single
//	PLL outputs (forced), super mux and divider words, plain words, the
//	enable-everything constants, peripheral sources, reset words, enable
//	words, the misc clock enable word and the ARM clock mask.
//
// Inputs:
//
//	g - The clock graph. Used to resolve register offsets by name.
//	l - The clocks and register ranges to cover.
//
// Outputs:
//
//	*Plan - The ordered entries.
//	error - Non-nil if a named clock does not exist.
//
// Thread Safety: Safe for concurrent use.
func BuildPlan(g *tree.Graph, l Layout) (*Plan, error) {
	p := &Plan{}
	add := func(off uint32, name string, mode Mode, bits uint32) *Entry {
		p.Entries = append(p.Entries, Entry{
			Address: regs.Address{Block: regs.ClockReset, Offset: off},
			Name:    name,
			Mode:    mode,
			Bits:    bits,
		})
		return &p.Entries[len(p.Entries)-1]
	}
	lookup := func(names []string) ([]*tree.Clock, error) {
		out := make([]*tree.Clock, 0, len(names))
		for _, n := range names {
			c, err := g.Lookup(n)
			if err != nil {
				return nil, fmt.Errorf("snapshot plan: %w", err)
			}
			out = append(out, c)
		}
		return out, nil
	}

	add(tree.RegOscCtrl, "osc_ctrl", Masked, tree.OscCtrlMask)

	paired, err := lookup(l.PairedOutputs)
	if err != nil {
		return nil, err
	}
	for _, c := range paired {
		add(c.Reg(), c.Name(), Forced, tree.PLLOutEnableBits|tree.PLLOutEnableBits<<16)
	}

	plls, err := lookup(l.PLLs)
	if err != nil {
		return nil, err
	}
	for _, c := range plls {
		add(c.Reg(), c.Name()+".base", Saved, 0)
		add(c.MiscReg(), c.Name()+".misc", Saved, 0)
	}
	if len(plls) > 0 {
		p.Entries[len(p.Entries)-1].Settle = l.PLLSettle
	}

	outs, err := lookup(l.Outputs)
	if err != nil {
		return nil, err
	}
	for _, c := range outs {
		add(c.Reg(), c.Name(), Forced, tree.PLLOutEnableBits)
	}

	supers, err := lookup(l.SuperMuxes)
	if err != nil {
		return nil, err
	}
	for _, c := range supers {
		add(c.Reg(), c.Name(), Saved, 0)
		add(c.Reg()+tree.RegSuperDiv, c.Name()+".divider", Saved, 0)
	}

	words, err := lookup(l.Words)
	if err != nil {
		return nil, err
	}
	for _, c := range words {
		add(c.Reg(), c.Name(), Saved, 0)
	}

	for i, v := range l.EnableAll {
		add(tree.RegClkOutEnb+uint32(i)*4, fmt.Sprintf("clk_out_enb[%d]", i), Constant, v)
	}

	sources, skip := sourceNames(g)
	for off := l.SourceFirst; l.SourceFirst != 0 && off <= l.SourceLast; off += 4 {
		if skip[off] {
			continue
		}
		name, ok := sources[off]
		if !ok {
			name = fmt.Sprintf("source@%#03x", off)
		}
		add(off, name, Saved, 0)
	}

	for i := uint32(0); i < tree.RegRstDevicesNum; i++ {
		add(tree.RegRstDevices+i*4, fmt.Sprintf("rst_devices[%d]", i), Saved, 0)
	}
	for i := uint32(0); i < tree.RegClkOutEnbNum; i++ {
		add(tree.RegClkOutEnb+i*4, fmt.Sprintf("clk_out_enb[%d]", i), Saved, 0)
	}
	add(tree.RegMiscClkEnb, "misc_clk_enb", Saved, 0)
	add(tree.RegClkMaskARM, "clk_mask_arm", Saved, 0)
	return p, nil
}

// sourceNames maps peripheral source offsets to the first clock using
// them, and marks the memory controller's sources for skipping.
func sourceNames(g *tree.Graph) (map[uint32]string, map[uint32]bool) {
	names := make(map[uint32]string)
	skip := make(map[uint32]bool)
	for _, c := range g.Clocks() {
		switch c.Kind() {
		case tree.KindEMC:
			skip[c.Reg()] = true
		case tree.KindPeripheral:
			if _, ok := names[c.Reg()]; !ok && c.Reg() != 0 {
				names[c.Reg()] = c.Name()
			}
		}
	}
	return names, skip
}
