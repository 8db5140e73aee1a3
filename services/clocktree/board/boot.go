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
	"fmt"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// Enable, reset and oscillator register layout of the clock and reset
// controller.
const (
	regRstDevices    = 0x004
	regRstDevicesSet = 0x300
	regRstDevicesClr = 0x304
	regClkOutEnb     = 0x010
	regClkOutEnbSet  = 0x320
	regClkOutEnbClr  = 0x324
	enableWords      = 3

	regOscCtrl     = 0x050
	oscCtrlXOBP    = 1 << 0
	oscFreqShift   = 30
	periphSrcShift = 30
)

// Boot rates the simulated bootloader leaves the PLLs at.
const (
	bootPLLC = 560 * mhz
	bootPLLM = 666 * mhz
	bootPLLP = 216 * mhz
	bootPLLU = 480 * mhz
	bootPLLX = 1000 * mhz
)

// NewRegisterFile returns an empty simulated register file with the
// enable and reset set/clear aliases wired.
func NewRegisterFile() *regs.Memory {
	m := regs.NewMemory()
	for i := uint32(0); i < enableWords; i++ {
		m.AddSetClearAlias(regs.ClockReset, regClkOutEnbSet+i*8, regClkOutEnbClr+i*8, regClkOutEnb+i*4)
		m.AddSetClearAlias(regs.ClockReset, regRstDevicesSet+i*8, regRstDevicesClr+i*8, regRstDevices+i*4)
	}
	return m
}

// BootImage returns the register state a Tegra2 bootloader leaves
// behind for a crystal of osc Hz.
//
// Description:
//
//	The boot PLLs (pll_c, pll_m, pll_p, pll_u, pll_x) run from their
//	table entries for osc. pll_p feeds its four secondary dividers and
//	pll_a, the CPU runs from pll_x and the system bus from pll_p_out4.
//	The UART, timer, RTC, memory and a handful of always-on peripherals
//	are enabled; everything else is gated.
//
// Inputs:
//
//	osc - Crystal frequency. One of 12, 13, 19.2 or 26 MHz.
//
// Outputs:
//
//	*regs.Memory - The register file, with the log cleared.
//	error - Returned when a boot PLL has no table entry for osc.
func BootImage(osc uint64) (*regs.Memory, error) {
	m := NewRegisterFile()

	boot := []struct {
		reg   uint32
		table []tree.FreqEntry
		rate  uint64
		flags tree.Flags
	}{
		{0x80, pllCTable, bootPLLC, 0},
		{0x90, pllMTable, bootPLLM, 0},
		{0xa0, pllPTable, bootPLLP, tree.FlagPLLFixed},
		{0xc0, pllUTable, bootPLLU, tree.FlagPLLU},
		{0xe0, pllXTable, bootPLLX, 0},
	}
	for _, b := range boot {
		e, ok := tableEntry(b.table, osc, b.rate)
		if !ok {
			return nil, fmt.Errorf("no boot PLL entry at 0x%03x for %d Hz from %d Hz", b.reg, b.rate, osc)
		}
		v, err := tree.PLLBaseValue(e, b.flags)
		if err != nil {
			return nil, fmt.Errorf("encoding PLL at 0x%03x: %w", b.reg, err)
		}
		m.Poke(regs.ClockReset, b.reg, v)
	}

	osel, err := oscSelect(osc)
	if err != nil {
		return nil, err
	}
	m.Poke(regs.ClockReset, regOscCtrl, osel<<oscFreqShift|oscCtrlXOBP)

	// pll_p outputs: 28.8, 48, 72 and 108 MHz.
	m.Poke(regs.ClockReset, 0xa4, tree.PLLOutputField(13)|tree.PLLOutputField(7)<<16)
	m.Poke(regs.ClockReset, 0xa8, tree.PLLOutputField(4)|tree.PLLOutputField(2)<<16)
	m.Poke(regs.ClockReset, 0x94, tree.PLLOutputField(4))

	// pll_a from pll_p_out1 for 44.1 kHz audio.
	a, _ := tableEntry(pllATable, 28_800_000, 56_448_000)
	av, err := tree.PLLBaseValue(a, 0)
	if err != nil {
		return nil, fmt.Errorf("encoding pll_a: %w", err)
	}
	m.Poke(regs.ClockReset, 0xb0, av)
	m.Poke(regs.ClockReset, 0xb4, tree.PLLOutputField(8))
	m.Poke(regs.ClockReset, 0xdc, tree.PLLDividerHeld)

	m.Poke(regs.ClockReset, 0x20, tree.SuperMuxRunValue(8))
	m.Poke(regs.ClockReset, 0x28, tree.SuperMuxRunValue(2))
	m.Poke(regs.ClockReset, 0x30, 1)
	m.Poke(regs.ClockReset, 0x38, 4)

	for reg, v := range bootSources {
		m.Poke(regs.ClockReset, reg, v)
	}

	for i, word := range bootEnables {
		m.Poke(regs.ClockReset, regClkOutEnb+uint32(i)*4, word)
	}

	m.ResetLog()
	return m, nil
}

// bootSources are the peripheral source registers the bootloader
// programs: selector in the top bits, divider field in the low bits.
// Registers left out read as zero, which selects the first input
// undivided.
var bootSources = map[uint32]uint32{
	// i2c1, i2c2, i2c3 and dvc at pll_p / 9.
	0x124: 8,
	0x198: 8,
	0x1b8: 8,
	0x128: 8,

	// sdmmc1..4 at pll_p * 2 / 9.
	0x150: 7,
	0x154: 7,
	0x1bc: 7,
	0x164: 7,

	// host1x from pll_p, ndflash and csite divided down.
	0x180: 2<<periphSrcShift | 2,
	0x160: 4,
	0x1d4: 1,

	// pwm, spi, owr and la from clk_m.
	0x110: 3 << 28,
	0x114: 3 << periphSrcShift,
	0x1cc: 3 << periphSrcShift,
	0x1f8: 3 << periphSrcShift,
}

// bootEnables are the three clock enable words at hand-off: cpu, cop,
// rtc, timer, uarta, i2c1, sdmmc1, usbd and host1x in the low word;
// apbdma, fuse and emc in the high word.
var bootEnables = [enableWords]uint32{
	1<<0 | 1<<1 | 1<<4 | 1<<5 | 1<<6 | 1<<12 | 1<<14 | 1<<22 | 1<<28,
	1<<(34-32) | 1<<(39-32) | 1<<(57-32),
	0,
}

func tableEntry(table []tree.FreqEntry, input, output uint64) (tree.FreqEntry, bool) {
	for _, e := range table {
		if e.Input == input && e.Output == output {
			return e, true
		}
	}
	return tree.FreqEntry{}, false
}

func oscSelect(osc uint64) (uint32, error) {
	switch osc {
	case 13 * mhz:
		return 0, nil
	case 19_200_000:
		return 1, nil
	case 12 * mhz:
		return 2, nil
	case 26 * mhz:
		return 3, nil
	}
	return 0, fmt.Errorf("unsupported crystal %d Hz", osc)
}
