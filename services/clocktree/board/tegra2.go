// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package board

import (
	"github.com/AleutianAI/clocktree/services/clocktree/regs"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

const mhz = 1_000_000

// Peripheral source field layouts, packed as mask<<8 | shift.
const (
	mux2At30 = 0x31e
	mux3At28 = 0x71c
)

// Mux input lists shared by the peripheral table.
var (
	muxPLLMPLLCPLLPPLLA = []tree.Input{
		{Clock: "pll_m", Value: 0}, {Clock: "pll_c", Value: 1},
		{Clock: "pll_p", Value: 2}, {Clock: "pll_a_out0", Value: 3},
	}
	muxPLLMPLLCPLLPClkM = []tree.Input{
		{Clock: "pll_m", Value: 0}, {Clock: "pll_c", Value: 1},
		{Clock: "pll_p", Value: 2}, {Clock: "clk_m", Value: 3},
	}
	muxPLLPPLLCPLLMClkM = []tree.Input{
		{Clock: "pll_p", Value: 0}, {Clock: "pll_c", Value: 1},
		{Clock: "pll_m", Value: 2}, {Clock: "clk_m", Value: 3},
	}
	muxPLLAOut0Audio2xPLLPClkM = []tree.Input{
		{Clock: "pll_a_out0", Value: 0}, {Clock: "audio_2x", Value: 1},
		{Clock: "pll_p", Value: 2}, {Clock: "clk_m", Value: 3},
	}
	muxPLLPPLLDPLLCClkM = []tree.Input{
		{Clock: "pll_p", Value: 0}, {Clock: "pll_d_out0", Value: 1},
		{Clock: "pll_c", Value: 2}, {Clock: "clk_m", Value: 3},
	}
	muxPLLPPLLCAudioClkMClk32 = []tree.Input{
		{Clock: "pll_p", Value: 0}, {Clock: "pll_c", Value: 1},
		{Clock: "audio", Value: 2}, {Clock: "clk_m", Value: 3},
		{Clock: "clk_32k", Value: 4},
	}
	muxPLLPPLLCPLLM = []tree.Input{
		{Clock: "pll_p", Value: 0}, {Clock: "pll_c", Value: 1}, {Clock: "pll_m", Value: 2},
	}
	muxClkM      = []tree.Input{{Clock: "clk_m", Value: 0}}
	muxPLLPOut3  = []tree.Input{{Clock: "pll_p_out3", Value: 0}}
	muxPLLDOut0  = []tree.Input{{Clock: "pll_d_out0", Value: 0}}
	muxClk32k    = []tree.Input{{Clock: "clk_32k", Value: 0}}
	muxPClk      = []tree.Input{{Clock: "pclk", Value: 0}}
	muxCCLK      = []tree.Input{
		{Clock: "clk_m", Value: 0}, {Clock: "pll_c", Value: 1}, {Clock: "clk_32k", Value: 2},
		{Clock: "pll_m", Value: 3}, {Clock: "pll_p", Value: 4}, {Clock: "pll_p_out4", Value: 5},
		{Clock: "pll_p_out3", Value: 6}, {Clock: "clk_d", Value: 7}, {Clock: "pll_x", Value: 8},
	}
	muxSCLK = []tree.Input{
		{Clock: "clk_m", Value: 0}, {Clock: "pll_c_out1", Value: 1}, {Clock: "pll_p_out4", Value: 2},
		{Clock: "pll_p_out3", Value: 3}, {Clock: "pll_p_out2", Value: 4}, {Clock: "clk_d", Value: 5},
		{Clock: "clk_32k", Value: 6}, {Clock: "pll_m_out1", Value: 7},
	}
	muxDev1 = []tree.Input{
		{Clock: "clk_m", Value: 0}, {Clock: "pll_a_out0", Value: 1},
		{Clock: "pll_m_out1", Value: 2}, {Clock: "audio", Value: 3},
	}
	muxDev2 = []tree.Input{
		{Clock: "clk_m", Value: 0}, {Clock: "hclk", Value: 1},
		{Clock: "pclk", Value: 2}, {Clock: "pll_p_out4", Value: 3},
	}
	muxAudioSync = []tree.Input{
		{Clock: "spdif_in", Value: 0}, {Clock: "i2s1", Value: 1},
		{Clock: "i2s2", Value: 2}, {Clock: "pll_a_out0", Value: 4},
	}
)

// freq builds one PLL table row for each supported crystal.
func freq(out uint64, rows ...[5]uint32) []tree.FreqEntry {
	inputs := [...]uint64{12 * mhz, 13 * mhz, 19_200_000, 26 * mhz}
	entries := make([]tree.FreqEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, tree.FreqEntry{
			Input:  inputs[r[0]],
			Output: out,
			N:      r[1],
			M:      r[2],
			P:      r[3],
			CPCON:  r[4],
		})
	}
	return entries
}

// Crystal indexes for freq rows.
const (
	x12 = iota
	x13
	x19
	x26
)

func concat(tables ...[]tree.FreqEntry) []tree.FreqEntry {
	var out []tree.FreqEntry
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

var (
	pllCTable = concat(
		freq(480*mhz, [5]uint32{x12, 480, 12, 1, 8}, [5]uint32{x13, 480, 13, 1, 8},
			[5]uint32{x19, 400, 16, 1, 8}, [5]uint32{x26, 480, 26, 1, 8}),
		freq(560*mhz, [5]uint32{x12, 560, 12, 1, 8}, [5]uint32{x13, 560, 13, 1, 8},
			[5]uint32{x19, 350, 12, 1, 6}, [5]uint32{x26, 560, 26, 1, 8}),
		freq(570*mhz, [5]uint32{x12, 570, 12, 1, 8}, [5]uint32{x13, 570, 13, 1, 8},
			[5]uint32{x19, 475, 16, 1, 8}, [5]uint32{x26, 570, 26, 1, 8}),
		freq(586*mhz, [5]uint32{x12, 586, 12, 1, 8}, [5]uint32{x13, 586, 13, 1, 8},
			[5]uint32{x26, 586, 26, 1, 8}),
	)

	pllMTable = concat(
		freq(666*mhz, [5]uint32{x12, 666, 12, 1, 8}, [5]uint32{x13, 666, 13, 1, 8},
			[5]uint32{x19, 555, 16, 1, 8}, [5]uint32{x26, 666, 26, 1, 8}),
		freq(600*mhz, [5]uint32{x12, 600, 12, 1, 8}, [5]uint32{x13, 600, 13, 1, 8},
			[5]uint32{x19, 375, 12, 1, 6}, [5]uint32{x26, 600, 26, 1, 8}),
	)

	pllPTable = concat(
		freq(216*mhz, [5]uint32{x12, 432, 12, 2, 8}, [5]uint32{x13, 432, 13, 2, 8},
			[5]uint32{x19, 90, 4, 2, 1}, [5]uint32{x26, 432, 26, 2, 8}),
		freq(432*mhz, [5]uint32{x12, 432, 12, 1, 8}, [5]uint32{x13, 432, 13, 1, 8},
			[5]uint32{x19, 90, 4, 1, 1}, [5]uint32{x26, 432, 26, 1, 8}),
	)

	// pll_a runs from pll_p_out1 at 28.8 MHz.
	pllATable = []tree.FreqEntry{
		{Input: 28_800_000, Output: 56_448_000, N: 49, M: 25, P: 1, CPCON: 1},
		{Input: 28_800_000, Output: 73_728_000, N: 64, M: 25, P: 1, CPCON: 1},
		{Input: 28_800_000, Output: 24 * mhz, N: 5, M: 6, P: 1, CPCON: 1},
	}

	pllDTable = concat(
		freq(216*mhz, [5]uint32{x12, 216, 12, 1, 4}, [5]uint32{x13, 216, 13, 1, 4},
			[5]uint32{x19, 135, 12, 1, 3}, [5]uint32{x26, 216, 26, 1, 4}),
		freq(5*mhz, [5]uint32{x12, 10, 24, 1, 4}),
		freq(10*mhz, [5]uint32{x12, 10, 12, 1, 4}),
		freq(161_500_000, [5]uint32{x12, 323, 24, 1, 4}),
		freq(162*mhz, [5]uint32{x12, 162, 12, 1, 4}),
		freq(594*mhz, [5]uint32{x12, 594, 12, 1, 8}, [5]uint32{x13, 594, 13, 1, 8},
			[5]uint32{x19, 495, 16, 1, 8}, [5]uint32{x26, 594, 26, 1, 8}),
		freq(1000*mhz, [5]uint32{x12, 1000, 12, 1, 12}, [5]uint32{x13, 1000, 13, 1, 12},
			[5]uint32{x19, 625, 12, 1, 8}, [5]uint32{x26, 1000, 26, 1, 12}),
		freq(504*mhz, [5]uint32{x12, 504, 12, 1, 8}, [5]uint32{x13, 504, 13, 1, 8},
			[5]uint32{x19, 420, 16, 1, 8}, [5]uint32{x26, 504, 26, 1, 8}),
	)

	pllUTable = freq(480*mhz, [5]uint32{x12, 960, 12, 2, 0}, [5]uint32{x13, 960, 13, 2, 0},
		[5]uint32{x19, 200, 4, 2, 0}, [5]uint32{x26, 960, 26, 2, 0})

	pllXTable = concat(
		freq(1200*mhz, [5]uint32{x12, 600, 6, 1, 12}, [5]uint32{x13, 923, 10, 1, 12},
			[5]uint32{x19, 750, 12, 1, 8}, [5]uint32{x26, 600, 13, 1, 12}),
		freq(1000*mhz, [5]uint32{x12, 1000, 12, 1, 12}, [5]uint32{x13, 1000, 13, 1, 12},
			[5]uint32{x19, 625, 12, 1, 8}, [5]uint32{x26, 1000, 26, 1, 12}),
		freq(912*mhz, [5]uint32{x12, 912, 12, 1, 12}, [5]uint32{x13, 912, 13, 1, 12},
			[5]uint32{x19, 760, 16, 1, 8}, [5]uint32{x26, 912, 26, 1, 12}),
		freq(816*mhz, [5]uint32{x12, 816, 12, 1, 12}, [5]uint32{x13, 816, 13, 1, 12},
			[5]uint32{x19, 680, 16, 1, 8}, [5]uint32{x26, 816, 26, 1, 12}),
		freq(760*mhz, [5]uint32{x12, 760, 12, 1, 12}, [5]uint32{x13, 760, 13, 1, 12},
			[5]uint32{x19, 950, 24, 1, 8}, [5]uint32{x26, 760, 26, 1, 12}),
		freq(750*mhz, [5]uint32{x12, 750, 12, 1, 12}, [5]uint32{x13, 750, 13, 1, 12},
			[5]uint32{x19, 625, 16, 1, 8}, [5]uint32{x26, 750, 26, 1, 12}),
		freq(608*mhz, [5]uint32{x12, 608, 12, 1, 12}, [5]uint32{x13, 608, 13, 1, 12},
			[5]uint32{x19, 380, 12, 1, 8}, [5]uint32{x26, 608, 26, 1, 12}),
		freq(456*mhz, [5]uint32{x12, 456, 12, 1, 12}, [5]uint32{x13, 456, 13, 1, 12},
			[5]uint32{x19, 380, 16, 1, 8}, [5]uint32{x26, 456, 26, 1, 12}),
		freq(312*mhz, [5]uint32{x12, 312, 12, 1, 12}, [5]uint32{x13, 312, 13, 1, 12},
			[5]uint32{x19, 260, 16, 1, 8}, [5]uint32{x26, 312, 26, 1, 12}),
	)

	pllETable = freq(100*mhz, [5]uint32{x12, 200, 24, 1, 0})
)

// pllSTable is keyed on the 32 kHz input.
var pllSTable = []tree.FreqEntry{
	{Input: 32768, Output: 12 * mhz, N: 366, M: 1, P: 1},
	{Input: 32768, Output: 13 * mhz, N: 397, M: 1, P: 1},
	{Input: 32768, Output: 19_200_000, N: 586, M: 1, P: 1},
	{Input: 32768, Output: 26 * mhz, N: 793, M: 1, P: 1},
}

func pllParams(inMin, inMax, vcoMin, vcoMax uint64, lock uint32, table []tree.FreqEntry) *tree.PLLParams {
	return &tree.PLLParams{
		InputMin:  inMin,
		InputMax:  inMax,
		VCOMin:    vcoMin,
		VCOMax:    vcoMax,
		LockDelay: lock,
		Table:     table,
	}
}

// periph declares one peripheral clock row.
func periph(name, dev, con string, num, reg, layout uint32, maxRate uint64,
	inputs []tree.Input, flags tree.Flags) tree.Declaration {
	return tree.Declaration{
		Name:     name,
		Kind:     tree.KindPeripheral,
		Dev:      dev,
		Con:      con,
		ClkNum:   num,
		Reg:      regs.Hex(reg),
		MuxShift: layout & 0xff,
		MuxMask:  regs.Hex(layout >> 8),
		MaxRate:  maxRate,
		Inputs:   inputs,
		Flags:    flags,
	}
}

func shared(name, dev, con, bus string) tree.Declaration {
	return tree.Declaration{Name: name, Kind: tree.KindSharedBusUser, Dev: dev, Con: con, Parent: bus}
}

const (
	mux    = tree.FlagMux
	u71    = tree.FlagDivU71
	u16    = tree.FlagDivU16
	apb    = tree.FlagOnAPB
	noRst  = tree.FlagNoReset
	noEnb  = tree.FlagNoEnable
	manRst = tree.FlagManualReset
	tap    = tree.FlagTapDelay
)

func coreClocks() []tree.Declaration {
	return []tree.Declaration{
		{Name: "clk_32k", Kind: tree.KindFixed, Rate: 32768, MaxRate: 32768},
		{Name: "pll_s", Kind: tree.KindPLL, Parent: "clk_32k", Reg: 0xf0, MaxRate: 26 * mhz,
			Flags: tree.FlagPLLAltMisc,
			PLL:   pllParams(32768, 32768, 12*mhz, 26*mhz, 300, pllSTable)},
		{Name: "clk_m", Kind: tree.KindOscillator, MaxRate: 26 * mhz, Flags: tree.FlagEnableOnInit},
		{Name: "pll_m", Kind: tree.KindPLL, Parent: "clk_m", Reg: 0x90, MaxRate: 800 * mhz,
			Flags: tree.FlagPLLHasCPCON | tree.FlagPLLDCCON,
			PLL:   pllParams(2*mhz, 31*mhz, 20*mhz, 1200*mhz, 300, pllMTable)},
		{Name: "pll_m_out1", Kind: tree.KindPLLOutputDivider, Parent: "pll_m", Reg: 0x94,
			MaxRate: 600 * mhz, Flags: u71},
		{Name: "pll_c", Kind: tree.KindPLL, Parent: "clk_m", Reg: 0x80, MaxRate: 600 * mhz,
			Flags: tree.FlagPLLHasCPCON,
			PLL:   pllParams(2*mhz, 31*mhz, 20*mhz, 1400*mhz, 300, pllCTable)},
		{Name: "pll_c_out1", Kind: tree.KindPLLOutputDivider, Parent: "pll_c", Reg: 0x84,
			MaxRate: 600 * mhz, Flags: u71},
		{Name: "pll_p", Kind: tree.KindPLL, Parent: "clk_m", Reg: 0xa0, MaxRate: 432 * mhz,
			Flags: tree.FlagEnableOnInit | tree.FlagPLLFixed | tree.FlagPLLHasCPCON,
			PLL:   pllParams(2*mhz, 31*mhz, 20*mhz, 1400*mhz, 300, pllPTable)},
		pllOut("pll_p_out1", 0xa4, 0),
		pllOut("pll_p_out2", 0xa4, 16),
		pllOut("pll_p_out3", 0xa8, 0),
		pllOut("pll_p_out4", 0xa8, 16),
		{Name: "pll_a", Kind: tree.KindPLL, Parent: "pll_p_out1", Reg: 0xb0, MaxRate: 73_728_000,
			Flags: tree.FlagPLLHasCPCON,
			PLL:   pllParams(2*mhz, 31*mhz, 20*mhz, 1400*mhz, 300, pllATable)},
		{Name: "pll_a_out0", Kind: tree.KindPLLOutputDivider, Parent: "pll_a", Reg: 0xb4,
			MaxRate: 73_728_000, Flags: u71},
		{Name: "pll_d", Kind: tree.KindPLL, Parent: "clk_m", Reg: 0xd0, MaxRate: 1000 * mhz,
			Flags: tree.FlagPLLHasCPCON | tree.FlagPLLD,
			PLL:   pllParams(2*mhz, 40*mhz, 40*mhz, 1000*mhz, 1000, pllDTable)},
		{Name: "pll_d_out0", Kind: tree.KindPLLOutputDivider, Parent: "pll_d", Reg: 0xdc,
			MaxRate: 500 * mhz, Flags: tree.FlagDiv2 | tree.FlagPLLD},
		{Name: "pll_u", Kind: tree.KindPLL, Parent: "clk_m", Reg: 0xc0, MaxRate: 480 * mhz,
			Flags: tree.FlagPLLU,
			PLL:   pllParams(2*mhz, 40*mhz, 480*mhz, 960*mhz, 1000, pllUTable)},
		{Name: "pll_x", Kind: tree.KindPLL, Parent: "clk_m", Reg: 0xe0, MaxRate: 1000 * mhz,
			Flags: tree.FlagPLLHasCPCON | tree.FlagPLLAltMisc | tree.FlagPLLDCCON,
			PLL:   pllParams(2*mhz, 31*mhz, 20*mhz, 1200*mhz, 300, pllXTable)},
		{Name: "pll_e", Kind: tree.KindPLL, Parent: "clk_m", Reg: 0xe8, MaxRate: 100 * mhz,
			Flags: tree.FlagPLLE | tree.FlagPLLAltMisc,
			PLL:   pllParams(12*mhz, 12*mhz, 0, 0, 0, pllETable)},
		{Name: "cclk", Kind: tree.KindSuperMux, Reg: 0x20, MaxRate: 1000 * mhz, Inputs: muxCCLK},
		{Name: "sclk", Kind: tree.KindSuperMux, Reg: 0x28, MinRate: 40 * mhz, MaxRate: 240 * mhz,
			Inputs: muxSCLK},
		{Name: "hclk", Kind: tree.KindBus, Parent: "sclk", Reg: 0x30, RegShift: 4,
			MinRate: 36 * mhz, MaxRate: 300 * mhz},
		{Name: "pclk", Kind: tree.KindBus, Parent: "hclk", Reg: 0x30,
			MinRate: 36 * mhz, MaxRate: 120 * mhz},
		{Name: "clk_d", Kind: tree.KindDoubler, Parent: "clk_m", Reg: 0x34, RegShift: 12,
			ClkNum: 90, MaxRate: 52 * mhz, Flags: noRst},
		{Name: "cdev1", Kind: tree.KindExternalDevClock, ClkNum: 94, Pingroup: "cdev1",
			Flags: mux, Inputs: muxDev1},
		{Name: "cdev2", Kind: tree.KindExternalDevClock, ClkNum: 93, Pingroup: "cdev2",
			Flags: mux, Inputs: muxDev2},
		{Name: "twd", Kind: tree.KindFixed, Mul: 1, Div: 4, MaxRate: 1000 * mhz},
		{Name: "cpu", Kind: tree.KindCPUComposite, Parent: "cclk", MaxRate: 1000 * mhz,
			CPU: &tree.CPUParams{Main: "pll_x", Backup: "pll_p", Timer: "twd"}},
		{Name: "virt_sclk", Kind: tree.KindVirtualSystemBus, Parent: "sclk", MaxRate: 240 * mhz,
			System: &tree.SystemParams{PClk: "pclk"}},
		{Name: "blink", Kind: tree.KindBlink, Parent: "clk_32k", Reg: 0x40, MaxRate: 32768},
		{Name: "cop", Kind: tree.KindCOPReset, Parent: "sclk", MaxRate: 240 * mhz},
		{Name: "emc", Kind: tree.KindEMC, Reg: 0x19c, ClkNum: 57, MaxRate: 800 * mhz,
			Flags: mux | u71 | tree.FlagEMCEnable, Inputs: muxPLLMPLLCPLLPClkM},
		{Name: "audio", Kind: tree.KindAudioSync, Reg: 0x38, MaxRate: 73_728_000,
			Con: "audio", Inputs: muxAudioSync},
		{Name: "audio_2x", Kind: tree.KindDoubler, Parent: "audio", Reg: 0x34, RegShift: 8,
			ClkNum: 89, MaxRate: 48 * mhz, Con: "audio_2x", Flags: noRst},
	}
}

func pllOut(name string, reg, shift uint32) tree.Declaration {
	return tree.Declaration{
		Name:     name,
		Kind:     tree.KindPLLOutputDivider,
		Parent:   "pll_p",
		Reg:      regs.Hex(reg),
		RegShift: shift,
		MaxRate:  432 * mhz,
		Flags:    tree.FlagEnableOnInit | u71 | tree.FlagDivU71Fixed,
	}
}

func peripheralClocks() []tree.Declaration {
	return []tree.Declaration{
		periph("apbdma", "tegra-dma", "", 34, 0, mux2At30, 108*mhz, muxPClk, 0),
		periph("rtc", "rtc-tegra", "", 4, 0, mux2At30, 32768, muxClk32k, noRst|apb),
		periph("kbc", "tegra-kbc", "", 36, 0, mux2At30, 32768, muxClk32k, noRst|apb),
		periph("timer", "timer", "", 5, 0, mux2At30, 26*mhz, muxClkM, 0),
		periph("i2s1", "tegra20-i2s.0", "", 11, 0x100, mux2At30, 26*mhz, muxPLLAOut0Audio2xPLLPClkM, mux|u71|apb),
		periph("i2s2", "tegra20-i2s.1", "", 18, 0x104, mux2At30, 26*mhz, muxPLLAOut0Audio2xPLLPClkM, mux|u71|apb),
		periph("fuse", "fuse-tegra", "fuse", 39, 0, mux2At30, 26*mhz, muxClkM, apb),
		periph("fuse_burn", "fuse-tegra", "fuse_burn", 39, 0, mux2At30, 26*mhz, muxClkM, apb),
		periph("kfuse", "kfuse-tegra", "", 40, 0, mux2At30, 26*mhz, muxClkM, 0),
		periph("spdif_out", "spdif_out", "", 10, 0x108, mux2At30, 100*mhz, muxPLLAOut0Audio2xPLLPClkM, mux|u71|apb),
		periph("spdif_in", "spdif_in", "", 10, 0x10c, mux2At30, 100*mhz, muxPLLPPLLCPLLM, mux|u71|apb),
		periph("pwm", "pwm", "", 17, 0x110, mux3At28, 432*mhz, muxPLLPPLLCAudioClkMClk32, mux|u71|apb),
		periph("spi", "spi", "", 43, 0x114, mux2At30, 40*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("xio", "xio", "", 45, 0x120, mux2At30, 150*mhz, muxPLLPPLLCPLLMClkM, mux|u71),
		periph("twc", "twc", "", 16, 0x12c, mux2At30, 150*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("sbc1", "spi_tegra.0", "spi", 41, 0x134, mux2At30, 160*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("sbc2", "spi_tegra.1", "spi", 44, 0x118, mux2At30, 160*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("sbc3", "spi_tegra.2", "spi", 46, 0x11c, mux2At30, 160*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("sbc4", "spi_tegra.3", "spi", 68, 0x1b4, mux2At30, 160*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("ide", "ide", "", 25, 0x144, mux2At30, 100*mhz, muxPLLPPLLCPLLMClkM, mux|u71),
		periph("ndflash", "tegra_nand", "", 13, 0x160, mux2At30, 164*mhz, muxPLLPPLLCPLLMClkM, mux|u71),
		periph("vfir", "vfir", "", 7, 0x168, mux2At30, 72*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("sdmmc1", "sdhci-tegra.0", "", 14, 0x150, mux2At30, 52*mhz, muxPLLPPLLCPLLMClkM, mux|u71|tap),
		periph("sdmmc2", "sdhci-tegra.1", "", 9, 0x154, mux2At30, 52*mhz, muxPLLPPLLCPLLMClkM, mux|u71|tap),
		periph("sdmmc3", "sdhci-tegra.2", "", 69, 0x1bc, mux2At30, 52*mhz, muxPLLPPLLCPLLMClkM, mux|u71|tap),
		periph("sdmmc4", "sdhci-tegra.3", "", 15, 0x164, mux2At30, 52*mhz, muxPLLPPLLCPLLMClkM, mux|u71|tap),
		periph("vcp", "tegra-avp", "vcp", 29, 0, mux2At30, 250*mhz, muxClkM, 0),
		periph("bsea", "tegra-avp", "bsea", 62, 0, mux2At30, 250*mhz, muxClkM, 0),
		periph("bsev", "tegra-aes", "bsev", 63, 0, mux2At30, 250*mhz, muxClkM, 0),
		periph("vde", "tegra-avp", "vde", 61, 0x1c8, mux2At30, 300*mhz, muxPLLPPLLCPLLMClkM, mux|u71),
		periph("csite", "csite", "", 73, 0x1d4, mux2At30, 144*mhz, muxPLLPPLLCPLLMClkM, mux|u71),
		periph("la", "la", "", 76, 0x1f8, mux2At30, 26*mhz, muxPLLPPLLCPLLMClkM, mux|u71),
		periph("owr", "tegra_w1", "", 71, 0x1cc, mux2At30, 26*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("nor", "tegra-nor", "", 42, 0x1d0, mux2At30, 92*mhz, muxPLLPPLLCPLLMClkM, mux|u71),
		periph("mipi", "mipi", "", 50, 0x174, mux2At30, 60*mhz, muxPLLPPLLCPLLMClkM, mux|u71|apb),
		periph("i2c1", "tegra-i2c.0", "i2c-div", 12, 0x124, mux2At30, 26*mhz, muxPLLPPLLCPLLMClkM, mux|u16|apb),
		periph("i2c2", "tegra-i2c.1", "i2c-div", 54, 0x198, mux2At30, 26*mhz, muxPLLPPLLCPLLMClkM, mux|u16|apb),
		periph("i2c3", "tegra-i2c.2", "i2c-div", 67, 0x1b8, mux2At30, 26*mhz, muxPLLPPLLCPLLMClkM, mux|u16|apb),
		periph("dvc", "tegra-i2c.3", "i2c-div", 47, 0x128, mux2At30, 26*mhz, muxPLLPPLLCPLLMClkM, mux|u16|apb),
		periph("i2c1-fast", "tegra-i2c.0", "i2c-fast", 0, 0, mux2At30, 108*mhz, muxPLLPOut3, noEnb),
		periph("i2c2-fast", "tegra-i2c.1", "i2c-fast", 0, 0, mux2At30, 108*mhz, muxPLLPOut3, noEnb),
		periph("i2c3-fast", "tegra-i2c.2", "i2c-fast", 0, 0, mux2At30, 108*mhz, muxPLLPOut3, noEnb),
		periph("dvc-fast", "tegra-i2c.3", "i2c-fast", 0, 0, mux2At30, 108*mhz, muxPLLPOut3, noEnb),
		periph("uarta", "tegra_uart.0", "", 6, 0x178, mux2At30, 600*mhz, muxPLLPPLLCPLLMClkM, mux|apb),
		periph("uartb", "tegra_uart.1", "", 7, 0x17c, mux2At30, 600*mhz, muxPLLPPLLCPLLMClkM, mux|apb),
		periph("uartc", "tegra_uart.2", "", 55, 0x1a0, mux2At30, 600*mhz, muxPLLPPLLCPLLMClkM, mux|apb),
		periph("uartd", "tegra_uart.3", "", 65, 0x1c0, mux2At30, 600*mhz, muxPLLPPLLCPLLMClkM, mux|apb),
		periph("uarte", "tegra_uart.4", "", 66, 0x1c4, mux2At30, 600*mhz, muxPLLPPLLCPLLMClkM, mux|apb),
		periph("3d", "3d", "", 24, 0x158, mux2At30, 400*mhz, muxPLLMPLLCPLLPPLLA, mux|u71|manRst),
		periph("2d", "2d", "", 21, 0x15c, mux2At30, 300*mhz, muxPLLMPLLCPLLPPLLA, mux|u71),
		periph("vi", "tegra_camera", "vi", 20, 0x148, mux2At30, 150*mhz, muxPLLMPLLCPLLPPLLA, mux|u71),
		periph("vi_sensor", "tegra_camera", "vi_sensor", 20, 0x1a8, mux2At30, 150*mhz, muxPLLMPLLCPLLPPLLA, mux|u71|noRst),
		periph("epp", "epp", "", 19, 0x16c, mux2At30, 300*mhz, muxPLLMPLLCPLLPPLLA, mux|u71),
		periph("mpe", "mpe", "", 60, 0x170, mux2At30, 300*mhz, muxPLLMPLLCPLLPPLLA, mux|u71),
		periph("host1x", "host1x", "", 28, 0x180, mux2At30, 166*mhz, muxPLLMPLLCPLLPPLLA, mux|u71),
		periph("cve", "cve", "", 49, 0x140, mux2At30, 250*mhz, muxPLLPPLLDPLLCClkM, mux|u71),
		periph("tvo", "tvo", "", 49, 0x188, mux2At30, 250*mhz, muxPLLPPLLDPLLCClkM, mux|u71),
		periph("hdmi", "hdmi", "", 51, 0x18c, mux2At30, 600*mhz, muxPLLPPLLDPLLCClkM, mux|u71),
		periph("tvdac", "tvdac", "", 53, 0x194, mux2At30, 250*mhz, muxPLLPPLLDPLLCClkM, mux|u71),
		periph("disp1", "tegradc.0", "", 27, 0x138, mux2At30, 600*mhz, muxPLLPPLLDPLLCClkM, mux),
		periph("disp2", "tegradc.1", "", 26, 0x13c, mux2At30, 600*mhz, muxPLLPPLLDPLLCClkM, mux),
		periph("usbd", "fsl-tegra-udc", "", 22, 0, mux2At30, 480*mhz, muxClkM, 0),
		periph("usb2", "tegra-ehci.1", "", 58, 0, mux2At30, 480*mhz, muxClkM, 0),
		periph("usb3", "tegra-ehci.2", "", 59, 0, mux2At30, 480*mhz, muxClkM, 0),
		periph("dsia", "tegradc.0", "dsia", 48, 0, mux2At30, 500*mhz, muxPLLDOut0, 0),
		periph("dsi1-fixed", "tegradc.0", "dsi-fixed", 0, 0, mux2At30, 108*mhz, muxPLLPOut3, noEnb),
		periph("dsi2-fixed", "tegradc.1", "dsi-fixed", 0, 0, mux2At30, 108*mhz, muxPLLPOut3, noEnb),
		periph("csi", "tegra_camera", "csi", 52, 0, mux2At30, 72*mhz, muxPLLPOut3, 0),
		periph("isp", "tegra_camera", "isp", 23, 0, mux2At30, 150*mhz, muxClkM, 0),
		periph("csus", "tegra_camera", "csus", 92, 0, mux2At30, 150*mhz, muxClkM, noRst),
		periph("pex", "", "pex", 70, 0, mux2At30, 26*mhz, muxClkM, manRst),
		periph("afi", "", "afi", 72, 0, mux2At30, 26*mhz, muxClkM, manRst),
		periph("pcie_xclk", "", "pcie_xclk", 74, 0, mux2At30, 26*mhz, muxClkM, manRst),
		periph("stat_mon", "tegra-stat-mon", "", 37, 0, mux2At30, 26*mhz, muxClkM, 0),
	}
}

func sharedClocks() []tree.Declaration {
	return []tree.Declaration{
		shared("avp.sclk", "tegra-avp", "sclk", "virt_sclk"),
		shared("mon.sclk", "tegra-stat-mon", "sclk", "virt_sclk"),
		shared("bsea.sclk", "tegra-aes", "sclk", "virt_sclk"),
		shared("usbd.sclk", "fsl-tegra-udc", "sclk", "virt_sclk"),
		shared("usb1.sclk", "tegra-ehci.0", "sclk", "virt_sclk"),
		shared("usb2.sclk", "tegra-ehci.1", "sclk", "virt_sclk"),
		shared("usb3.sclk", "tegra-ehci.2", "sclk", "virt_sclk"),
		shared("sbc1.sclk", "spi_tegra.0", "sclk", "virt_sclk"),
		shared("sbc2.sclk", "spi_tegra.1", "sclk", "virt_sclk"),
		shared("sbc3.sclk", "spi_tegra.2", "sclk", "virt_sclk"),
		shared("sbc4.sclk", "spi_tegra.3", "sclk", "virt_sclk"),
		shared("avp.emc", "tegra-avp", "emc", "emc"),
		shared("cpu.emc", "cpu", "emc", "emc"),
		shared("disp1.emc", "tegradc.0", "emc", "emc"),
		shared("disp2.emc", "tegradc.1", "emc", "emc"),
		shared("hdmi.emc", "hdmi", "emc", "emc"),
		shared("3d.emc", "tegra_gr3d", "emc", "emc"),
		shared("2d.emc", "tegra_gr2d", "emc", "emc"),
		shared("mpe.emc", "tegra_mpe", "emc", "emc"),
		shared("usbd.emc", "fsl-tegra-udc", "emc", "emc"),
		shared("usb1.emc", "tegra-ehci.0", "emc", "emc"),
		shared("usb2.emc", "tegra-ehci.1", "emc", "emc"),
		shared("usb3.emc", "tegra-ehci.2", "emc", "emc"),
		shared("camera.emc", "tegra_camera", "emc", "emc"),
	}
}

// duplicates registers clocks used by more than one driver.
var duplicates = []tree.Alias{
	{Clock: "uarta", Dev: "serial8250.0", Con: "uarta"},
	{Clock: "uartb", Dev: "serial8250.0", Con: "uartb"},
	{Clock: "uartc", Dev: "serial8250.0", Con: "uartc"},
	{Clock: "uartd", Dev: "serial8250.0", Con: "uartd"},
	{Clock: "uarte", Dev: "serial8250.0", Con: "uarte"},
	{Clock: "usbd", Dev: "utmip-pad"},
	{Clock: "usbd", Dev: "tegra-ehci.0"},
	{Clock: "usbd", Dev: "tegra-otg"},
	{Clock: "hdmi", Dev: "tegradc.0", Con: "hdmi"},
	{Clock: "hdmi", Dev: "tegradc.1", Con: "hdmi"},
	{Clock: "dsia", Dev: "tegradc.1", Con: "dsia"},
	{Clock: "pwm", Dev: "tegra_pwm.0"},
	{Clock: "pwm", Dev: "tegra_pwm.1"},
	{Clock: "pwm", Dev: "tegra_pwm.2"},
	{Clock: "pwm", Dev: "tegra_pwm.3"},
	{Clock: "host1x", Dev: "tegra_host1x", Con: "host1x"},
	{Clock: "2d", Dev: "tegra_gr2d", Con: "gr2d"},
	{Clock: "3d", Dev: "tegra_gr3d", Con: "gr3d"},
	{Clock: "epp", Dev: "tegra_gr2d", Con: "epp"},
	{Clock: "mpe", Dev: "tegra_mpe", Con: "mpe"},
	{Clock: "cop", Dev: "tegra-avp", Con: "cop"},
	{Clock: "vde", Dev: "tegra-aes", Con: "vde"},
	{Clock: "twd", Dev: "smp_twd"},
	{Clock: "bsea", Dev: "tegra-aes", Con: "bsea"},
}

var (
	skus750MHz  = []uint32{0x07, 0x10}
	skus1GHz    = []uint32{0x04, 0x08, 0x0f}
	skus1200MHz = []uint32{0x14, 0x17, 0x18, 0x1b, 0x1c}
	skusLegacy  = []uint32{0x04, 0x07, 0x08, 0x0f, 0x10}
)

func limit(clock string, maxRate uint64, skus []uint32) tree.SKULimit {
	return tree.SKULimit{Clock: clock, MaxRate: maxRate, SKUs: skus}
}

var skuLimits = []tree.SKULimit{
	limit("cpu", 750*mhz, skus750MHz),
	limit("cclk", 750*mhz, skus750MHz),
	limit("pll_x", 750*mhz, skus750MHz),

	limit("cpu", 1000*mhz, skus1GHz),
	limit("cclk", 1000*mhz, skus1GHz),
	limit("pll_x", 1000*mhz, skus1GHz),

	limit("cpu", 1200*mhz, skus1200MHz),
	limit("cclk", 1200*mhz, skus1200MHz),
	limit("pll_x", 1200*mhz, skus1200MHz),

	limit("sclk", 240*mhz, skusLegacy),
	limit("hclk", 240*mhz, skusLegacy),
	limit("vde", 240*mhz, skusLegacy),
	limit("3d", 400*mhz, skusLegacy),

	limit("host1x", 108*mhz, []uint32{0x0f}),

	limit("sclk", 300*mhz, skus1200MHz),
	limit("virt_sclk", 300*mhz, skus1200MHz),
	limit("hclk", 300*mhz, skus1200MHz),
	limit("pclk", 150*mhz, skus1200MHz),
	limit("vde", 300*mhz, skus1200MHz),
	limit("3d", 400*mhz, skus1200MHz),

	limit("uarta", 800*mhz, skus1200MHz),
	limit("uartb", 800*mhz, skus1200MHz),
	limit("uartc", 800*mhz, skus1200MHz),
	limit("uartd", 800*mhz, skus1200MHz),
	limit("uarte", 800*mhz, skus1200MHz),
}

// Tegra2 returns the built-in Tegra2 clock topology.
//
// Description:
//
//	Core clocks come first, then the peripheral table and the shared-bus
//	users. Each call returns a fresh copy, so callers may edit it.
func Tegra2() tree.Topology {
	var clocks []tree.Declaration
	clocks = append(clocks, coreClocks()...)
	clocks = append(clocks, peripheralClocks()...)
	clocks = append(clocks, sharedClocks()...)
	return tree.Topology{
		Clocks:    clocks,
		Aliases:   append([]tree.Alias(nil), duplicates...),
		SKULimits: append([]tree.SKULimit(nil), skuLimits...),
	}
}
