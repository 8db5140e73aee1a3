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
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

type boardEnv struct {
	g   *tree.Graph
	mem *regs.Memory
	mc  *MemoryController
	ctx context.Context
}

func newBoardGraph(t *testing.T, sku uint32, osc uint64, prep func(m *regs.Memory)) *boardEnv {
	t.Helper()
	mem, err := BootImage(osc)
	require.NoError(t, err)
	if prep != nil {
		prep(mem)
	}
	plat := Platform(sku, osc)
	g, err := tree.New(Tegra2(), mem, tree.Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Platform: plat,
		Delay:    tree.ScaledDelay(0),
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, g.InitializeAll(ctx))
	mem.ResetLog()
	return &boardEnv{g: g, mem: mem, mc: plat.Memory.(*MemoryController), ctx: ctx}
}

func (e *boardEnv) clock(t *testing.T, name string) *tree.Clock {
	t.Helper()
	c, err := e.g.Lookup(name)
	require.NoError(t, err)
	return c
}

func (e *boardEnv) rate(t *testing.T, name string) uint64 {
	t.Helper()
	return e.g.Rate(e.clock(t, name))
}

// TestTegra2_Consistent verifies the built-in topology validates and that
// every alias and SKU limit names a declared clock.
func TestTegra2_Consistent(t *testing.T) {
	topo := Tegra2()
	require.NoError(t, topo.Validate())

	names := make(map[string]bool, len(topo.Clocks))
	for _, d := range topo.Clocks {
		names[d.Name] = true
	}
	for _, a := range topo.Aliases {
		assert.True(t, names[a.Clock], "alias for %s", a.Clock)
	}
	for _, l := range topo.SKULimits {
		assert.True(t, names[l.Clock], "limit for %s", l.Clock)
	}

	t.Run("copies are independent", func(t *testing.T) {
		a := Tegra2()
		a.Clocks[0].Name = "changed"
		a.Aliases[0].Clock = "changed"
		b := Tegra2()
		assert.Equal(t, "clk_32k", b.Clocks[0].Name)
		assert.Equal(t, "uarta", b.Aliases[0].Clock)
	})
}

// TestBootImage_Rates verifies the tree reads the expected rates out of
// the boot register image.
func TestBootImage_Rates(t *testing.T) {
	env := newBoardGraph(t, 0x08, 12*mhz, nil)

	want := map[string]uint64{
		"clk_m":      12 * mhz,
		"clk_32k":    32768,
		"pll_c":      560 * mhz,
		"pll_m":      666 * mhz,
		"pll_m_out1": 222 * mhz,
		"pll_p":      216 * mhz,
		"pll_p_out1": 28_800_000,
		"pll_p_out2": 48 * mhz,
		"pll_p_out3": 72 * mhz,
		"pll_p_out4": 108 * mhz,
		"pll_a":      56_448_000,
		"pll_a_out0": 11_289_600,
		"pll_u":      480 * mhz,
		"pll_x":      1000 * mhz,
		"cclk":       1000 * mhz,
		"cpu":        1000 * mhz,
		"twd":        250 * mhz,
		"sclk":       108 * mhz,
		"hclk":       108 * mhz,
		"pclk":       54 * mhz,
		"audio":      11_289_600,
		"uarta":      216 * mhz,
		"sdmmc1":     48 * mhz,
		"i2c1":       24 * mhz,
		"i2c1-fast":  72 * mhz,
		"pwm":        12 * mhz,
		"host1x":     108 * mhz,
		"emc":        666 * mhz,
	}
	for name, rate := range want {
		assert.Equal(t, rate, env.rate(t, name), name)
	}

	on := []string{"clk_m", "pll_p", "pll_x", "cpu", "uarta", "emc", "host1x", "audio"}
	for _, name := range on {
		assert.Equal(t, tree.StateOn, env.g.State(env.clock(t, name)), name)
	}
	off := []string{"pll_d", "pll_d_out0", "pll_e", "pll_s", "sdmmc2", "cdev1", "3d"}
	for _, name := range off {
		assert.Equal(t, tree.StateOff, env.g.State(env.clock(t, name)), name)
	}

	lo, hi := env.g.Bounds(env.clock(t, "pll_x"))
	assert.Zero(t, lo)
	assert.Equal(t, uint64(1000*mhz), hi)
}

// TestBootImage_Crystals verifies every supported crystal boots to the
// same PLL rates.
func TestBootImage_Crystals(t *testing.T) {
	for _, osc := range []uint64{12 * mhz, 13 * mhz, 19_200_000, 26 * mhz} {
		env := newBoardGraph(t, 0x08, osc, nil)
		assert.Equal(t, osc, env.rate(t, "clk_m"))
		assert.Equal(t, uint64(216*mhz), env.rate(t, "pll_p"), "osc %d", osc)
		assert.Equal(t, uint64(560*mhz), env.rate(t, "pll_c"), "osc %d", osc)
		assert.Equal(t, uint64(666*mhz), env.rate(t, "pll_m"), "osc %d", osc)
		assert.Equal(t, uint64(480*mhz), env.rate(t, "pll_u"), "osc %d", osc)
		assert.Equal(t, uint64(1000*mhz), env.rate(t, "cpu"), "osc %d", osc)
	}

	_, err := BootImage(16_800_000)
	assert.Error(t, err)
}

// TestTegra2_SKULimits verifies the CPU and bus ceilings per SKU.
func TestTegra2_SKULimits(t *testing.T) {
	cases := []struct {
		sku      uint32
		cpu      uint64
		sclk     uint64
		uartaMax uint64
	}{
		{0x07, 750 * mhz, 240 * mhz, 600 * mhz},
		{0x08, 1000 * mhz, 240 * mhz, 600 * mhz},
		{0x17, 1200 * mhz, 300 * mhz, 800 * mhz},
		{0x00, 1000 * mhz, 240 * mhz, 600 * mhz},
	}
	for _, tc := range cases {
		env := newBoardGraph(t, tc.sku, 12*mhz, nil)
		_, hi := env.g.Bounds(env.clock(t, "cpu"))
		assert.Equal(t, tc.cpu, hi, "sku %#x cpu", tc.sku)
		_, hi = env.g.Bounds(env.clock(t, "sclk"))
		assert.Equal(t, tc.sclk, hi, "sku %#x sclk", tc.sku)
		_, hi = env.g.Bounds(env.clock(t, "uarta"))
		assert.Equal(t, tc.uartaMax, hi, "sku %#x uarta", tc.sku)
	}
}

// TestTegra2_Lookup verifies device lookups including duplicates.
func TestTegra2_Lookup(t *testing.T) {
	env := newBoardGraph(t, 0x08, 12*mhz, nil)

	cases := []struct {
		dev, con, want string
	}{
		{"tegra-i2c.0", "i2c-div", "i2c1"},
		{"tegra-i2c.0", "i2c-fast", "i2c1-fast"},
		{"serial8250.0", "uartc", "uartc"},
		{"tegra_uart.1", "", "uartb"},
		{"tegra_pwm.2", "", "pwm"},
		{"smp_twd", "", "twd"},
		{"tegradc.1", "hdmi", "hdmi"},
		{"", "audio_2x", "audio_2x"},
		{"cpu", "emc", "cpu.emc"},
	}
	for _, tc := range cases {
		c, err := env.g.LookupDevice(tc.dev, tc.con)
		require.NoError(t, err, "%s/%s", tc.dev, tc.con)
		assert.Equal(t, tc.want, c.Name(), "%s/%s", tc.dev, tc.con)
	}
}

// TestTegra2_CPUFrequencies verifies the CPU walks its frequency table
// and votes the memory bus accordingly.
func TestTegra2_CPUFrequencies(t *testing.T) {
	env := newBoardGraph(t, 0x08, 12*mhz, nil)
	cpu := env.clock(t, "cpu")
	_, hi := env.g.Bounds(cpu)

	steps := CPUFrequencies(hi)
	require.Equal(t, []uint64{216 * mhz, 312 * mhz, 456 * mhz, 608 * mhz, 760 * mhz, 816 * mhz, 912 * mhz, 1000 * mhz}, steps)
	// The lowest step equals the backup PLL rate, which leaves pll_x
	// untouched, so the walk starts one step up.
	for _, rate := range steps[1:] {
		require.NoError(t, env.g.SetRate(env.ctx, cpu, rate), "%d", rate)
		assert.Equal(t, rate, env.g.Rate(cpu))
		assert.Equal(t, rate/4, env.rate(t, "twd"))
	}

	assert.Len(t, CPUFrequencies(750*mhz), 5)
	assert.Equal(t, uint64(600*mhz), EMCVoteForCPU(912*mhz))
	assert.Equal(t, uint64(760*mhz), EMCVoteForCPU(1200*mhz))
	assert.Equal(t, uint64(50*mhz), EMCVoteForCPU(216*mhz))
}

// TestTegra2_MemoryBusVotes verifies shared-bus votes reach the memory
// controller through its timing table.
func TestTegra2_MemoryBusVotes(t *testing.T) {
	env := newBoardGraph(t, 0x08, 12*mhz, nil)
	disp := env.clock(t, "disp1.emc")
	cpu := env.clock(t, "cpu.emc")

	require.NoError(t, env.g.Enable(env.ctx, disp))
	require.NoError(t, env.g.SetRate(env.ctx, disp, 100*mhz))
	assert.Equal(t, uint64(166_500_000), env.rate(t, "emc"))
	rate, _ := env.mc.Current()
	assert.Equal(t, uint64(166_500_000), rate)

	require.NoError(t, env.g.Enable(env.ctx, cpu))
	require.NoError(t, env.g.SetRate(env.ctx, cpu, EMCVoteForCPU(912*mhz)))
	assert.Equal(t, uint64(666*mhz), env.rate(t, "emc"))

	env.g.Disable(env.ctx, cpu)
	env.g.Disable(env.ctx, disp)
	assert.Equal(t, uint64(83_250_000), env.rate(t, "emc"))
}

// TestMemoryController verifies rounding and timing switches.
func TestMemoryController(t *testing.T) {
	mc := NewMemoryController(nil)

	cases := []struct {
		in, want uint64
	}{
		{0, 83_250_000},
		{83_250_000, 83_250_000},
		{200 * mhz, 333 * mhz},
		{900 * mhz, 666 * mhz},
	}
	for _, tc := range cases {
		got, err := mc.RoundRate(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "round %d", tc.in)
	}

	assert.ErrorIs(t, mc.SetRate(100*mhz), ErrNoTiming)
	require.NoError(t, mc.SetRate(333*mhz))
	require.NoError(t, mc.SetRate(333*mhz))
	rate, changes := mc.Current()
	assert.Equal(t, uint64(333*mhz), rate)
	assert.Equal(t, 1, changes)

	_, err := NewMemoryController([]uint64{}).RoundRate(1)
	assert.ErrorIs(t, err, ErrNoTiming)
}

// TestPinmux verifies external device clocks resolve through the pin mux.
func TestPinmux(t *testing.T) {
	env := newBoardGraph(t, 0x08, 12*mhz, nil)

	cdev2 := env.clock(t, "cdev2")
	require.NoError(t, env.g.Enable(env.ctx, cdev2))
	assert.Equal(t, "pll_p_out4", env.g.Parent(cdev2).Name())
	assert.Equal(t, uint64(108*mhz), env.g.Rate(cdev2))

	_, err := Pinmux{}.PinFunction("cdev1")
	assert.Error(t, err)
}

// TestPreinit verifies the graphics clocks are moved to safe sources.
func TestPreinit(t *testing.T) {
	mem, err := BootImage(12 * mhz)
	require.NoError(t, err)
	mem.Poke(regs.ClockReset, 0x180, 0)

	waits := 0
	Preinit(mem, func(d time.Duration) {
		assert.Equal(t, preinitSettle, d)
		waits++
	})
	writes := mem.Writes()
	assert.Equal(t, len(writes), waits)

	var host1x []uint32
	for _, w := range writes {
		if w.Block == regs.ClockReset && w.Offset == 0x180 {
			host1x = append(host1x, w.Value)
		}
	}
	require.Len(t, host1x, 2)
	assert.Equal(t, uint32(3), host1x[0], "divider before source")
	assert.Equal(t, gclkSrcPLLP|3, host1x[1])

	assert.Equal(t, gclkSrcPLLC|0xa, mem.Peek(regs.ClockReset, 0x158))
	assert.Equal(t, dclkSrcPLLC, mem.Peek(regs.ClockReset, 0x138)&gclkSrcMask)
	assert.Zero(t, mem.Peek(regs.ClockReset, regRstDevices)&(1<<24), "3d out of reset")
	assert.NotZero(t, mem.Peek(regs.ClockReset, regClkOutEnb)&(1<<24), "3d clocked")
	assert.NotZero(t, mem.Peek(regs.ClockReset, regClkOutEnb+4)&(1<<28), "mpe clocked")

	t.Run("second run only pulses resets", func(t *testing.T) {
		mem.ResetLog()
		Preinit(mem, nil)
		for _, w := range mem.Writes() {
			assert.Contains(t, []uint32{regRstDevices, regRstDevices + 4}, w.Offset)
		}
		assert.Zero(t, mem.Peek(regs.ClockReset, regRstDevices)&(1<<24))
	})

	t.Run("tree reads the new sources", func(t *testing.T) {
		env := newBoardGraph(t, 0x08, 12*mhz, func(m *regs.Memory) { Preinit(m, nil) })
		assert.Equal(t, uint64(93_333_334), env.rate(t, "3d"))
		assert.Equal(t, "pll_c", env.g.Parent(env.clock(t, "3d")).Name())
		assert.Equal(t, uint64(86_400_000), env.rate(t, "host1x"))
		assert.Equal(t, "pll_c", env.g.Parent(env.clock(t, "disp1")).Name())
		assert.Equal(t, tree.StateOn, env.g.State(env.clock(t, "3d")))
	})
}

// TestBoardFile verifies a board survives a YAML round trip and that
// Load resolves built-in names and paths.
func TestBoardFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Tegra2()))
	assert.Contains(t, buf.String(), "name: pll_x")
	assert.Contains(t, buf.String(), "kind: super_mux")

	decoded, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, Tegra2(), decoded)

	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, Save(path, decoded))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Clocks, len(Tegra2().Clocks))

	builtin, err := Load(BuiltinTegra2)
	require.NoError(t, err)
	assert.Equal(t, Tegra2(), builtin)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrUnknownBoard)

	_, err = Decode(bytes.NewReader([]byte("clocks:\n  - name: a\n    kind: pll\n    bogus: 1\n")))
	assert.Error(t, err)
}
