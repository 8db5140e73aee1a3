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
	"time"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// Graphics clock source register fields.
const (
	gclkSrcMask     uint32 = 3 << periphSrcShift
	gclkIdleDivMask uint32 = 0xff << 8
	gclkDivMask     uint32 = 0xff

	gclkSrcPLLC uint32 = 1 << periphSrcShift
	gclkSrcPLLP uint32 = 2 << periphSrcShift
	dclkSrcPLLC uint32 = 2 << periphSrcShift

	preinitSettle = 2 * time.Microsecond
)

// preinitClock is one graphics block brought to a safe source and
// divider before the clock tree is initialized.
type preinitClock struct {
	name    string
	reg     uint32
	word    uint32
	bit     uint32
	src     uint32
	idleDiv bool
	div     uint32
	setDiv  bool

	// divFirst programs the divider before the source.
	divFirst bool
}

var preinitClocks = []preinitClock{
	{name: "vi", reg: 0x148, bit: 1 << 20, src: gclkSrcPLLC, div: 0xa, setDiv: true},
	{name: "3d", reg: 0x158, bit: 1 << 24, src: gclkSrcPLLC, idleDiv: true, div: 0xa, setDiv: true},
	{name: "2d", reg: 0x15c, bit: 1 << 21, src: gclkSrcPLLC, idleDiv: true, div: 0xa, setDiv: true},
	{name: "epp", reg: 0x16c, bit: 1 << 19, src: gclkSrcPLLC, div: 0xa, setDiv: true},
	{name: "mpe", reg: 0x170, word: 1, bit: 1 << 28, src: gclkSrcPLLC, div: 0xa, setDiv: true},
	{name: "host1x", reg: 0x180, bit: 1 << 28, src: gclkSrcPLLP, idleDiv: true, div: 3, setDiv: true, divFirst: true},
	{name: "disp1", reg: 0x138, bit: 1 << 27, src: dclkSrcPLLC},
}

// Preinit moves the graphics and display clocks off whatever the
// bootloader left them on.
//
// Description:
//
//	Each block is held in reset, clocked, given a source and divider,
//	and released. host1x is programmed divider first so it never runs
//	fast on pll_p. A register is only written when its field differs,
//	and every write is followed by a short settle delay. Run it before
//	Graph.InitializeAll so the tree reads the corrected state.
//
// Inputs:
//
//	port - The clock and reset register port.
//	delay - Waits for the settle time. Nil skips waiting.
func Preinit(port regs.Port, delay func(time.Duration)) {
	if delay == nil {
		delay = func(time.Duration) {}
	}
	setBits := func(reg, bits, mask uint32) {
		val := port.Read(regs.ClockReset, reg)
		if val&mask == bits {
			return
		}
		port.Write(regs.ClockReset, reg, val&^mask|bits)
		delay(preinitSettle)
	}

	for _, c := range preinitClocks {
		rst := uint32(regRstDevices) + c.word*4
		enb := uint32(regClkOutEnb) + c.word*4

		setBits(rst, c.bit, c.bit)
		setBits(enb, c.bit, c.bit)
		if c.divFirst {
			setBits(c.reg, c.div, gclkDivMask)
			setBits(c.reg, 0, gclkIdleDivMask)
			setBits(c.reg, c.src, gclkSrcMask)
		} else {
			setBits(c.reg, c.src, gclkSrcMask)
			if c.idleDiv {
				setBits(c.reg, 0, gclkIdleDivMask)
			}
			if c.setDiv {
				setBits(c.reg, c.div, gclkDivMask)
			}
		}
		setBits(rst, 0, c.bit)
	}
}
