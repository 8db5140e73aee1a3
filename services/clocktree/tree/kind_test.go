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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// TestOscillator_Detection verifies each supported crystal selects its
// control field.
func TestOscillator_Detection(t *testing.T) {
	tests := []struct {
		rate uint64
		want uint32
	}{
		{12 * mhz, oscFreq12MHz},
		{13 * mhz, oscFreq13MHz},
		{19_200_000, oscFreq19_2MHz},
		{26 * mhz, oscFreq26MHz},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d Hz", tt.rate), func(t *testing.T) {
			mem := regs.NewMemory()
			mem.Poke(regs.ClockReset, RegOscCtrl, OscCtrlFreqMask|0x1)
			topo := Topology{Clocks: []Declaration{{Name: "osc", Kind: KindOscillator}}}
			g, err := New(topo, mem, Options{
				Logger:   discardLogger(),
				Platform: Platform{Oscillator: fakeOscillator(tt.rate)},
			})
			require.NoError(t, err)
			require.NoError(t, g.InitializeAll(context.Background()))

			v := mem.Peek(regs.ClockReset, RegOscCtrl)
			assert.Equal(t, tt.want, v&OscCtrlFreqMask)
			assert.Equal(t, uint32(0x1), v&^OscCtrlFreqMask)

			c, err := g.Lookup("osc")
			require.NoError(t, err)
			assert.Equal(t, tt.rate, g.Rate(c))
		})
	}
}

// TestBlink verifies the PMC blink timer programming.
func TestBlink(t *testing.T) {
	env := newTestGraph(t, 0)
	blink := env.clock(t, "blink")

	require.NoError(t, env.g.SetRate(env.ctx, blink, 1024))
	assert.Equal(t, uint64(1024), env.g.Rate(blink))
	assert.Equal(t, uint32(4|4<<blinkOffShift)|blinkEnable, env.mem.Peek(regs.PowerManagement, 0x40))

	require.NoError(t, env.g.Enable(env.ctx, blink))
	assert.NotZero(t, env.mem.Peek(regs.PowerManagement, pmcCtrl)&pmcCtrlBlinkEnable)
	assert.NotZero(t, env.mem.Peek(regs.PowerManagement, pmcDPDPadsOride)&pmcDPDPadsOrideBlink)

	env.g.Disable(env.ctx, blink)
	assert.Zero(t, env.mem.Peek(regs.PowerManagement, pmcCtrl)&pmcCtrlBlinkEnable)
	assert.Equal(t, StateOff, env.g.State(blink))

	require.NoError(t, env.g.SetRate(env.ctx, blink, 32768))
	assert.Equal(t, uint64(32768), env.g.Rate(blink))
	assert.Zero(t, env.mem.Peek(regs.PowerManagement, 0x40))

	assert.ErrorIs(t, env.g.SetRate(env.ctx, blink, 0), ErrInvalidRate)
}

// TestBlink_BootState verifies the on/off counts are decoded at init.
func TestBlink_BootState(t *testing.T) {
	mem := bootMemory()
	mem.Poke(regs.PowerManagement, 0x40, 2|2<<blinkOffShift|blinkEnable)
	mem.Poke(regs.PowerManagement, pmcCtrl, pmcCtrlBlinkEnable)
	env := newTestGraphFrom(t, testTopology(), mem, 0)

	blink := env.clock(t, "blink")
	assert.Equal(t, uint64(32768/16), env.g.Rate(blink))
	assert.Equal(t, StateOn, env.g.State(blink))
	assert.Equal(t, 1, env.g.Refcount(blink))
}

// TestDoubler verifies only the doubled rate is accepted.
func TestDoubler(t *testing.T) {
	env := newTestGraph(t, 0)
	clkD := env.clock(t, "clk_d")

	require.NoError(t, env.g.SetRate(env.ctx, clkD, 24*mhz))
	assert.ErrorIs(t, env.g.SetRate(env.ctx, clkD, 20*mhz), ErrInvalidRate)

	require.NoError(t, env.g.Enable(env.ctx, clkD))
	assert.NotZero(t, env.mem.Peek(regs.ClockReset, RegClkOutEnb+8)&enableBitMask(90))
	// No reset line to release.
	assert.Equal(t, -1, writeIndex(env.mem.Writes(), RegRstDevicesClr+16))
}

// TestAudioSync verifies the mute gate and source select.
func TestAudioSync(t *testing.T) {
	env := newTestGraph(t, 0)
	audio := env.clock(t, "audio")

	require.NoError(t, env.g.Enable(env.ctx, audio))
	assert.Zero(t, env.mem.Peek(regs.ClockReset, 0x38)&audioSyncMute)

	require.NoError(t, env.g.SetParent(env.ctx, audio, env.clock(t, "clk_32k")))
	assert.Equal(t, uint32(1), env.mem.Peek(regs.ClockReset, 0x38)&audioSyncSourceMask)
	assert.Equal(t, uint64(32768), env.g.Rate(audio))

	env.g.Disable(env.ctx, audio)
	assert.NotZero(t, env.mem.Peek(regs.ClockReset, 0x38)&audioSyncMute)
	assert.Equal(t, uint32(1), env.mem.Peek(regs.ClockReset, 0x38)&audioSyncSourceMask)
}

// TestExternalDevClock verifies the parent is taken from the pin mux on
// first enable.
func TestExternalDevClock(t *testing.T) {
	t.Run("resolves from the pin mux", func(t *testing.T) {
		env := newTestGraph(t, 0)
		cdev := env.clock(t, "cdev1")
		clk32 := env.clock(t, "clk_32k")
		refs := env.g.Refcount(clk32)

		require.NoError(t, env.g.Enable(env.ctx, cdev))
		assert.Equal(t, "clk_32k", env.g.Parent(cdev).Name())
		assert.Equal(t, uint64(32768), env.g.Rate(cdev))
		assert.Equal(t, refs+1, env.g.Refcount(clk32))
		assert.NotZero(t, env.mem.Peek(regs.ClockReset, RegClkOutEnb+8)&enableBitMask(94))

		env.g.Disable(env.ctx, cdev)
		assert.Equal(t, refs, env.g.Refcount(clk32))
		assert.Zero(t, env.mem.Peek(regs.ClockReset, RegClkOutEnb+8)&enableBitMask(94))
		assert.Equal(t, "clk_32k", env.g.Parent(cdev).Name())
	})

	t.Run("unknown pin group", func(t *testing.T) {
		topo := testTopology()
		for i := range topo.Clocks {
			if topo.Clocks[i].Name == "cdev1" {
				topo.Clocks[i].Pingroup = "cdev2"
			}
		}
		env := newTestGraphFrom(t, topo, bootMemory(), 0)
		cdev := env.clock(t, "cdev1")

		assert.ErrorIs(t, env.g.Enable(env.ctx, cdev), ErrFatalConfiguration)
		assert.Zero(t, env.g.Refcount(cdev))
		assert.Nil(t, env.g.Parent(cdev))
		assert.Empty(t, env.mem.Writes())
	})
}

// TestEMC_SetRate verifies source selection and the memory controller
// handshake.
func TestEMC_SetRate(t *testing.T) {
	t.Run("divider on the current source", func(t *testing.T) {
		env := newTestGraph(t, 0)
		emc := env.clock(t, "emc")

		require.NoError(t, env.g.SetRate(env.ctx, emc, 333*mhz))
		assert.Equal(t, uint64(333*mhz), env.g.Rate(emc))
		assert.Equal(t, []uint64{333 * mhz}, env.mc.sets)

		// The controller is told before the divider moves.
		require.Len(t, env.mc.setAfter, 1)
		div := writeIndex(env.mem.Writes(), 0x19c)
		require.NotEqual(t, -1, div)
		assert.LessOrEqual(t, env.mc.setAfter[0], div)
		assert.Equal(t, uint32(2), env.mem.Peek(regs.ClockReset, 0x19c)&periphDivU71Mask)
	})

	t.Run("source switch", func(t *testing.T) {
		env := newTestGraph(t, 0)
		emc := env.clock(t, "emc")
		pllM := env.clock(t, "pll_m")

		require.NoError(t, env.g.SetRate(env.ctx, emc, 216*mhz))
		assert.Equal(t, uint64(216*mhz), env.g.Rate(emc))
		assert.Equal(t, "pll_p", env.g.Parent(emc).Name())
		assert.Equal(t, uint32(2), env.mem.Peek(regs.ClockReset, 0x19c)>>periphMuxShift)
		assert.Equal(t, StateOff, env.g.State(pllM))
	})

	t.Run("odd divider", func(t *testing.T) {
		env := newTestGraph(t, 0)
		err := env.g.SetRate(env.ctx, env.clock(t, "emc"), 444*mhz)
		assert.ErrorIs(t, err, ErrInvalidRate)
		assert.Empty(t, env.mc.sets)
		assert.Empty(t, env.mem.Writes())
	})

	t.Run("no source in tolerance", func(t *testing.T) {
		env := newTestGraph(t, 0)
		err := env.g.SetRate(env.ctx, env.clock(t, "emc"), 250*mhz)
		assert.ErrorIs(t, err, ErrInvalidRate)
		assert.Empty(t, env.mc.sets)
	})
}

// TestEMC_Ceiling verifies a memory clock booted below its top rate
// takes its ceiling from the controller's timing table.
func TestEMC_Ceiling(t *testing.T) {
	boot := func(top uint64) (*Graph, *Clock) {
		mem := bootMemory()
		// pll_m / 4
		mem.Poke(regs.ClockReset, 0x19c, 6)
		g, err := New(testTopology(), mem, Options{
			Logger: discardLogger(),
			Platform: Platform{
				Oscillator: fakeOscillator(12 * mhz),
				Pinmux:     fakePinmux{"cdev1": 1},
				Memory:     &fakeMemoryController{mem: mem, max: top},
			},
			Delay: ScaledDelay(0),
		})
		require.NoError(t, err)
		require.NoError(t, g.InitializeAll(context.Background()))
		emc, err := g.Lookup("emc")
		require.NoError(t, err)
		return g, emc
	}

	t.Run("timing table", func(t *testing.T) {
		g, emc := boot(666 * mhz)
		assert.Equal(t, uint64(166_500_000), g.Rate(emc))
		_, max := g.Bounds(emc)
		assert.Equal(t, uint64(666*mhz), max)

		user, err := g.Lookup("cpu.emc")
		require.NoError(t, err)
		_, userMax := g.Bounds(user)
		assert.Equal(t, uint64(666*mhz), userMax)

		ctx := context.Background()
		require.NoError(t, g.Enable(ctx, user))
		require.NoError(t, g.SetRate(ctx, user, 666*mhz))
		assert.Equal(t, uint64(666*mhz), g.Rate(emc))
	})

	t.Run("declared maximum bounds the table", func(t *testing.T) {
		g, emc := boot(900 * mhz)
		_, max := g.Bounds(emc)
		assert.Equal(t, uint64(800*mhz), max)
	})

	t.Run("unknown table keeps the boot rate", func(t *testing.T) {
		g, emc := boot(0)
		_, max := g.Bounds(emc)
		assert.Equal(t, uint64(166_500_000), max)
	})
}
