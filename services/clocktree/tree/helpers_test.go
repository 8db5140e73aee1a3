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
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

const (
	mhz = 1_000_000
)

type fakeOscillator uint64

func (f fakeOscillator) MeasureInputFrequency() uint64 {
	return uint64(f)
}

type fakePinmux map[string]uint32

func (f fakePinmux) PinFunction(pingroup string) (uint32, error) {
	fn, ok := f[pingroup]
	if !ok {
		return 0, errors.New("no such pin group")
	}
	return fn, nil
}

// fakeMemoryController records every call and the write-log length at
// the time of each SetRate.
type fakeMemoryController struct {
	mu       sync.Mutex
	mem      *regs.Memory
	rounds   []uint64
	sets     []uint64
	setAfter []int
	max      uint64
}

func (f *fakeMemoryController) RoundRate(rate uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds = append(f.rounds, rate)
	if rate == 0 {
		return 216 * mhz, nil
	}
	return rate, nil
}

func (f *fakeMemoryController) MaxRate() uint64 {
	return f.max
}

func (f *fakeMemoryController) SetRate(rate uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, rate)
	if f.mem != nil {
		f.setAfter = append(f.setAfter, len(f.mem.Writes()))
	}
	return nil
}

func pllBase(enabled bool, n, m, divp uint32) uint32 {
	v := n<<pllBaseDivNShift | m<<pllBaseDivMShift | divp<<pllBaseDivPShift
	if enabled {
		v |= pllBaseEnable
	}
	return v
}

var periphInputs = []Input{
	{Clock: "pll_p", Value: 0},
	{Clock: "pll_c", Value: 1},
	{Clock: "pll_m", Value: 2},
	{Clock: "osc", Value: 3},
}

// testTopology is a reduced chip: every kind appears at least once.
func testTopology() Topology {
	return Topology{
		Clocks: []Declaration{
			{Name: "osc", Kind: KindOscillator, MaxRate: 26 * mhz},
			{Name: "clk_32k", Kind: KindFixed, Rate: 32768, MaxRate: 32768},
			{Name: "pll_c", Kind: KindPLL, Parent: "osc", Reg: 0x80, MaxRate: 600 * mhz,
				Flags: FlagPLLHasCPCON,
				PLL:   &PLLParams{VCOMax: 1400 * mhz, LockDelay: 300}},
			{Name: "pll_m", Kind: KindPLL, Parent: "osc", Reg: 0x90, MaxRate: 800 * mhz,
				Flags: FlagPLLHasCPCON | FlagPLLDCCON,
				PLL:   &PLLParams{VCOMax: 1200 * mhz, LockDelay: 300}},
			{Name: "pll_p", Kind: KindPLL, Parent: "osc", Reg: 0xa0, MaxRate: 432 * mhz,
				Flags: FlagEnableOnInit | FlagPLLFixed | FlagPLLHasCPCON,
				PLL: &PLLParams{VCOMax: 1400 * mhz, LockDelay: 300, Table: []FreqEntry{
					{Input: 12 * mhz, Output: 216 * mhz, N: 432, M: 12, P: 2, CPCON: 8},
				}}},
			{Name: "pll_p_out4", Kind: KindPLLOutputDivider, Parent: "pll_p", Reg: 0xa8, RegShift: 16,
				MaxRate: 432 * mhz, Flags: FlagEnableOnInit | FlagDivU71 | FlagDivU71Fixed},
			{Name: "pll_x", Kind: KindPLL, Parent: "osc", Reg: 0xe0, MaxRate: 1000 * mhz,
				Flags: FlagPLLHasCPCON | FlagPLLAltMisc | FlagPLLDCCON,
				PLL: &PLLParams{VCOMax: 1200 * mhz, LockDelay: 300, Table: []FreqEntry{
					{Input: 12 * mhz, Output: 1000 * mhz, N: 1000, M: 12, P: 1, CPCON: 12},
					{Input: 12 * mhz, Output: 912 * mhz, N: 912, M: 12, P: 1, CPCON: 12},
				}}},
			{Name: "pll_e", Kind: KindPLL, Parent: "osc", Reg: 0xe8, MaxRate: 100 * mhz,
				Flags: FlagPLLE | FlagPLLAltMisc,
				PLL: &PLLParams{Table: []FreqEntry{
					{Input: 12 * mhz, Output: 100 * mhz, N: 200, M: 24, P: 1},
				}}},
			{Name: "cclk", Kind: KindSuperMux, Reg: 0x20, MaxRate: 1000 * mhz, Inputs: []Input{
				{Clock: "osc", Value: 0}, {Clock: "pll_c", Value: 1}, {Clock: "clk_32k", Value: 2},
				{Clock: "pll_m", Value: 3}, {Clock: "pll_p", Value: 4}, {Clock: "pll_p_out4", Value: 5},
				{Clock: "pll_x", Value: 8},
			}},
			{Name: "sclk", Kind: KindSuperMux, Reg: 0x28, MinRate: 40 * mhz, MaxRate: 240 * mhz, Inputs: []Input{
				{Clock: "osc", Value: 0}, {Clock: "pll_p_out4", Value: 2},
			}},
			{Name: "twd", Kind: KindFixed, Mul: 1, Div: 4, MaxRate: 1000 * mhz},
			{Name: "cpu", Kind: KindCPUComposite, Parent: "cclk", MaxRate: 1000 * mhz,
				CPU: &CPUParams{Main: "pll_x", Backup: "pll_p", Timer: "twd"}},
			{Name: "hclk", Kind: KindBus, Parent: "sclk", Reg: 0x30, RegShift: 4, MinRate: 36 * mhz, MaxRate: 300 * mhz},
			{Name: "pclk", Kind: KindBus, Parent: "hclk", Reg: 0x30, MinRate: 36 * mhz, MaxRate: 120 * mhz},
			{Name: "virt_sclk", Kind: KindVirtualSystemBus, Parent: "sclk", System: &SystemParams{PClk: "pclk"}},
			{Name: "cop", Kind: KindCOPReset, Parent: "sclk", MaxRate: 240 * mhz},
			{Name: "uarta", Kind: KindPeripheral, Reg: 0x178, ClkNum: 6, MaxRate: 600 * mhz,
				Flags: FlagMux | FlagOnAPB, Inputs: periphInputs},
			{Name: "sdmmc1", Kind: KindPeripheral, Reg: 0x150, ClkNum: 14, MaxRate: 52 * mhz,
				Flags: FlagMux | FlagDivU71 | FlagTapDelay, Inputs: periphInputs},
			{Name: "i2c1", Kind: KindPeripheral, Reg: 0x124, ClkNum: 12, MaxRate: 26 * mhz,
				Flags: FlagMux | FlagDivU16 | FlagOnAPB, Inputs: periphInputs,
				Dev: "tegra-i2c.0", Con: "i2c-div"},
			{Name: "fuse", Kind: KindPeripheral, Parent: "osc", ClkNum: 39, MaxRate: 26 * mhz, Flags: FlagOnAPB},
			{Name: "fuse_burn", Kind: KindPeripheral, Parent: "osc", ClkNum: 39, MaxRate: 26 * mhz, Flags: FlagOnAPB},
			{Name: "emc", Kind: KindEMC, Reg: 0x19c, ClkNum: 57, MaxRate: 800 * mhz,
				Flags: FlagMux | FlagDivU71 | FlagEMCEnable, Inputs: []Input{
					{Clock: "pll_m", Value: 0}, {Clock: "pll_c", Value: 1},
					{Clock: "pll_p", Value: 2}, {Clock: "osc", Value: 3},
				}},
			{Name: "clk_d", Kind: KindDoubler, Parent: "osc", Reg: 0x34, ClkNum: 90, MaxRate: 52 * mhz,
				Flags: FlagNoReset},
			{Name: "audio", Kind: KindAudioSync, Reg: 0x38, MaxRate: 73728000, Inputs: []Input{
				{Clock: "osc", Value: 0}, {Clock: "clk_32k", Value: 1},
			}},
			{Name: "cdev1", Kind: KindExternalDevClock, ClkNum: 94, Pingroup: "cdev1", Inputs: []Input{
				{Clock: "osc", Value: 0}, {Clock: "clk_32k", Value: 1},
			}},
			{Name: "blink", Kind: KindBlink, Parent: "clk_32k", Reg: 0x40, MaxRate: 32768},
			{Name: "cpu.emc", Kind: KindSharedBusUser, Parent: "emc"},
			{Name: "disp1.emc", Kind: KindSharedBusUser, Parent: "emc"},
			{Name: "avp.sclk", Kind: KindSharedBusUser, Parent: "virt_sclk"},
		},
		Aliases: []Alias{
			{Clock: "uarta", Dev: "serial8250.0", Con: "uarta"},
			{Clock: "twd", Dev: "smp_twd"},
		},
	}
}

// bootMemory returns a register file in a plausible post-bootloader
// state for testTopology.
func bootMemory() *regs.Memory {
	m := regs.NewMemory()
	for i := uint32(0); i < RegClkOutEnbNum; i++ {
		m.AddSetClearAlias(regs.ClockReset, RegClkOutEnbSet+i*8, RegClkOutEnbClr+i*8, RegClkOutEnb+i*4)
		m.AddSetClearAlias(regs.ClockReset, RegRstDevicesSet+i*8, RegRstDevicesClr+i*8, RegRstDevices+i*4)
	}

	m.Poke(regs.ClockReset, 0x80, pllBase(false, 600, 12, 0))
	m.Poke(regs.ClockReset, 0x90, pllBase(true, 666, 12, 0))
	m.Poke(regs.ClockReset, 0xa0, pllBase(true, 432, 12, 1)|pllBaseOverride)
	m.Poke(regs.ClockReset, 0xa8, (2<<pllOutRatioShift|PLLOutEnableBits)<<16)
	m.Poke(regs.ClockReset, 0xe0, pllBase(true, 912, 12, 0))
	m.Poke(regs.ClockReset, 0x20, superStateRun|8<<superRunShift)
	m.Poke(regs.ClockReset, 0x28, superStateRun|2<<superRunShift)
	m.Poke(regs.ClockReset, 0x30, 1)
	m.Poke(regs.ClockReset, 0x150, 3<<periphMuxShift)
	m.Poke(regs.ClockReset, 0x124, 3<<periphMuxShift)
	m.Poke(regs.ClockReset, 0x38, audioSyncMute)

	// uarta (6) and emc (57) run at boot.
	m.Poke(regs.ClockReset, RegClkOutEnb, 1<<6)
	m.Poke(regs.ClockReset, RegClkOutEnb+4, 1<<(57-32))
	return m
}

type testEnv struct {
	g   *Graph
	mem *regs.Memory
	mc  *fakeMemoryController
	ctx context.Context
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestGraph builds and initializes testTopology on bootMemory.
func newTestGraph(t *testing.T, sku uint32) *testEnv {
	t.Helper()
	return newTestGraphFrom(t, testTopology(), bootMemory(), sku)
}

func newTestGraphFrom(t *testing.T, topo Topology, mem *regs.Memory, sku uint32) *testEnv {
	t.Helper()
	mc := &fakeMemoryController{mem: mem}
	g, err := New(topo, mem, Options{
		Logger: discardLogger(),
		Platform: Platform{
			SKU:        sku,
			Oscillator: fakeOscillator(12 * mhz),
			Pinmux:     fakePinmux{"cdev1": 1},
			Memory:     mc,
		},
		Delay: ScaledDelay(0),
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, g.InitializeAll(ctx))
	mem.ResetLog()
	return &testEnv{g: g, mem: mem, mc: mc, ctx: ctx}
}

func (e *testEnv) clock(t *testing.T, name string) *Clock {
	t.Helper()
	c, err := e.g.Lookup(name)
	require.NoError(t, err)
	return c
}

func (e *testEnv) rate(t *testing.T, name string) uint64 {
	t.Helper()
	return e.g.Rate(e.clock(t, name))
}

// writeIndex returns the position of the first logged write to offset
// in the clock and reset block, or -1.
func writeIndex(writes []regs.Access, offset uint32) int {
	for i, w := range writes {
		if w.Block == regs.ClockReset && w.Offset == offset {
			return i
		}
	}
	return -1
}

func lastWrite(writes []regs.Access, offset uint32) (uint32, bool) {
	for i := len(writes) - 1; i >= 0; i-- {
		w := writes[i]
		if w.Block == regs.ClockReset && w.Offset == offset {
			return w.Value, true
		}
	}
	return 0, false
}

func countWrites(writes []regs.Access, offset uint32) int {
	n := 0
	for _, w := range writes {
		if w.Block == regs.ClockReset && w.Offset == offset {
			n++
		}
	}
	return n
}
