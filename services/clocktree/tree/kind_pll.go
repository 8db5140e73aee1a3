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
	"log/slog"
	"math/bits"
	"time"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// pllOps is a phase-locked loop with a base and a misc register.
//
// Description:
//
//	The base register carries enable, bypass and the M, N and P fields.
//	rate = input * N / (M * 2^P). Rates come from the validated
//	frequency table when the (input, output) pair is listed and are
//	synthesized from a reference comparison frequency otherwise.
type pllOps struct {
	params PLLParams
}

// pllConfig is one resolved M/N/P/CPCON setting. divp is the encoded P
// field, or the post-divider bit for PLLU.
type pllConfig struct {
	m, n, divp, cpcon uint32
	div               uint32
}

// pllMiscOffset returns the misc register of a PLL.
func pllMiscOffset(c *Clock) uint32 {
	if c.flags.Has(FlagPLLAltMisc) {
		return c.reg + 0x4
	}
	return c.reg + 0xc
}

func (o *pllOps) init(g *Graph, c *Clock) error {
	val := g.read(c.reg)
	if val&pllBaseEnable != 0 {
		c.state = StateOn
	} else {
		c.state = StateOff
	}

	switch {
	case c.flags.Has(FlagPLLFixed) && val&pllBaseOverride == 0:
		g.logger.Warn("PLL has unknown fixed frequency, assuming unity",
			slog.String("clock", c.name))
		c.mul, c.div = 1, 1
	case val&pllBaseBypass != 0:
		c.mul, c.div = 1, 1
	default:
		c.mul = (val & pllBaseDivNMask) >> pllBaseDivNShift
		c.div = (val & pllBaseDivMMask) >> pllBaseDivMShift
		if c.flags.Has(FlagPLLU) {
			if val&plluBasePostDiv == 0 {
				c.div *= 2
			}
		} else {
			c.div <<= (val & pllBaseDivPMask) >> pllBaseDivPShift
		}
	}
	return nil
}

func (o *pllOps) enable(g *Graph, c *Clock) error {
	g.bank.Modify(regs.ClockReset, c.reg, pllBaseBypass, pllBaseEnable)
	if c.flags.Has(FlagPLLD) {
		g.bank.Modify(regs.ClockReset, pllMiscOffset(c), 0, plldMiscClkEnable)
	}
	g.delay(microseconds(o.params.LockDelay))
	return nil
}

func (o *pllOps) disable(g *Graph, c *Clock) {
	g.bank.Modify(regs.ClockReset, c.reg, pllBaseBypass|pllBaseEnable, 0)
	if c.flags.Has(FlagPLLD) {
		g.bank.Modify(regs.ClockReset, pllMiscOffset(c), plldMiscClkEnable, 0)
	}
}

// setRate reprograms the PLL.
//
// Description:
//
//	When the new base value equals the programmed one nothing is
//	written. Otherwise a running PLL is disabled, the base and misc
//	registers are written, and the PLL is re-enabled, which waits out
//	the lock delay.
func (o *pllOps) setRate(g *Graph, c *Clock, rate uint64) error {
	input := g.rateLocked(c.parent)
	cfg, err := o.config(g, c, input, rate)
	if err != nil {
		return err
	}

	c.mul, c.div = cfg.n, cfg.div

	old := g.read(c.reg)
	val := old
	if c.flags.Has(FlagPLLFixed) {
		val |= pllBaseOverride
	}
	if c.flags.Has(FlagPLLU) {
		val &^= pllBaseDivMMask | pllBaseDivNMask | plluBasePostDiv
	} else {
		val &^= pllBaseDivMMask | pllBaseDivNMask | pllBaseDivPMask
	}
	val |= cfg.m<<pllBaseDivMShift | cfg.n<<pllBaseDivNShift | cfg.divp
	if val == old {
		return nil
	}

	running := c.state == StateOn
	if running {
		o.disable(g, c)
		val &^= pllBaseBypass | pllBaseEnable
	}
	g.write(c.reg, val)

	if c.flags.Has(FlagPLLHasCPCON) {
		g.bank.Update(regs.ClockReset, pllMiscOffset(c), func(misc uint32) uint32 {
			misc &^= pllMiscCPCONMask
			misc |= cfg.cpcon << pllMiscCPCONShift
			switch {
			case c.flags.Has(FlagPLLU) || c.flags.Has(FlagPLLD):
				misc &^= pllMiscLFCONMask
				if cfg.n >= plldLFCONSetDivN {
					misc |= 1 << pllMiscLFCONShift
				}
			case c.flags.Has(FlagPLLDCCON):
				misc &^= 1 << pllMiscDCCONShift
				if rate >= o.params.VCOMax>>1 {
					misc |= 1 << pllMiscDCCONShift
				}
			}
			return misc
		})
	}

	if running {
		return o.enable(g, c)
	}
	return nil
}

// config resolves the table entry or synthesizes one.
func (o *pllOps) config(g *Graph, c *Clock, input, rate uint64) (pllConfig, error) {
	for _, e := range o.params.Table {
		if e.Input != input || e.Output != rate {
			continue
		}
		cfg := pllConfig{m: e.M, n: e.N, cpcon: e.CPCON, div: e.M * e.P}
		if c.flags.Has(FlagPLLU) {
			switch e.P {
			case 1:
				cfg.divp = plluBasePostDiv
			case 2:
			default:
				return pllConfig{}, errorf(c, opSetRate, ErrInvalidRate, "table P %d invalid for PLLU", e.P)
			}
			return cfg, nil
		}
		if e.P == 0 || e.P&(e.P-1) != 0 {
			return pllConfig{}, errorf(c, opSetRate, ErrInvalidRate, "table P %d is not a power of two", e.P)
		}
		cfg.divp = uint32(bits.TrailingZeros32(e.P)) << pllBaseDivPShift
		return cfg, nil
	}

	if c.flags.Has(FlagPLLU) {
		return pllConfig{}, errorf(c, opSetRate, ErrInvalidRate, "%d Hz from %d Hz is not in the table", rate, input)
	}
	if rate == 0 {
		return pllConfig{}, errorf(c, opSetRate, ErrInvalidRate, "zero rate")
	}

	var cfreq uint64
	switch input {
	case 12_000_000, 26_000_000:
		cfreq = 2_000_000
		if rate <= 1_000_000_000 {
			cfreq = 1_000_000
		}
	case 13_000_000:
		cfreq = 2_600_000
		if rate <= 1_000_000_000 {
			cfreq = 1_000_000
		}
	case 16_800_000, 19_200_000:
		cfreq = 2_400_000
		if rate <= 1_200_000_000 {
			cfreq = 1_200_000
		}
	default:
		if c.parent == nil || !c.parent.flags.Has(FlagDivU71Fixed) || input < 1_000_000 {
			return pllConfig{}, errorf(c, opSetRate, ErrFatalConfiguration, "unexpected reference rate %d Hz", input)
		}
		g.logger.Warn("PLL rate not in table, deriving reference",
			slog.String("clock", c.name),
			slog.Uint64("input", input),
			slog.Uint64("rate", rate))
		cfreq = input / (input / 1_000_000)
	}

	vco, p := rate, uint32(0)
	for vco < 200*cfreq {
		vco <<= 1
		p++
	}
	m := input / cfreq
	n := vco / cfreq
	maxP := pllBaseDivPMask >> pllBaseDivPShift
	if m > uint64(pllBaseDivMMask>>pllBaseDivMShift) ||
		n > uint64(pllBaseDivNMask>>pllBaseDivNShift) ||
		p > maxP ||
		(o.params.VCOMax != 0 && vco > o.params.VCOMax) {
		g.logger.Error("failed to set out-of-table PLL rate",
			slog.String("clock", c.name),
			slog.Uint64("rate", rate))
		return pllConfig{}, errorf(c, opSetRate, ErrInvalidRate, "out-of-table rate %d Hz unreachable", rate)
	}
	return pllConfig{
		m:     uint32(m),
		n:     uint32(n),
		divp:  p << pllBaseDivPShift,
		cpcon: pllOutOfTableCPCON,
		div:   uint32(m) << p,
	}, nil
}

// plleOps is a PLL that must report ready in its base register before
// it can run. It has no disable.
type plleOps struct {
	*pllOps
}

const plleReadyDelay = time.Millisecond

func (o *plleOps) enable(g *Graph, c *Clock) error {
	g.delay(plleReadyDelay)
	if g.read(c.reg)&plleMiscReady == 0 {
		return errorf(c, opEnable, ErrBusy, "PLL not ready")
	}
	g.bank.Modify(regs.ClockReset, c.reg, 0, pllBaseEnable|pllBaseBypass)
	return nil
}

func (o *plleOps) disable(*Graph, *Clock) {}
