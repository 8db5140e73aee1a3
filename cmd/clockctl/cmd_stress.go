// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/clocktree/services/clocktree/board"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// stressConsumers are peripheral clocks the consumer workers cycle.
var stressConsumers = []struct {
	clock string
	rates []uint64
}{
	{"sdmmc1", []uint64{52_000_000, 48_000_000, 25_000_000}},
	{"sdmmc2", []uint64{50_000_000, 26_000_000}},
	{"i2c2", []uint64{12_000_000, 3_000_000}},
	{"sbc1", []uint64{96_000_000, 48_000_000}},
	{"sbc2", []uint64{54_000_000, 12_000_000}},
	{"uartb", []uint64{216_000_000}},
	{"pwm", []uint64{1_000_000, 500_000}},
}

// stressVoters are bus users the consumer workers vote with.
var stressVoters = []string{"usb1.sclk", "sbc1.sclk", "usb1.emc", "2d.emc"}

type stressStats struct {
	ops      atomic.Int64
	cpuSteps atomic.Int64
}

func newStressCmd(a *app) *cobra.Command {
	var (
		workers    int
		iterations int
	)
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent DVFS and consumer traffic against the tree",
		Long: `stress runs one CPU frequency walker that also votes the memory bus
rate for each CPU step, plus consumer workers that enable, program, vote
and disable peripheral clocks. Any operation error stops the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers < 1 || iterations < 1 {
				return fmt.Errorf("--workers and --iterations must be positive")
			}
			a.markDirty()
			start := time.Now()
			stats, err := runStress(cmd.Context(), a.g, workers, iterations)
			if err != nil {
				return err
			}
			cpu, _ := a.g.Lookup("cpu")
			emc, _ := a.g.Lookup("emc")
			fmt.Fprintf(cmd.OutOrStdout(), "%d operations, %d cpu steps in %s; cpu %s, emc %s\n",
				stats.ops.Load(), stats.cpuSteps.Load(), time.Since(start).Round(time.Millisecond),
				formatHz(a.g.Rate(cpu)), formatHz(a.g.Rate(emc)))
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 4, "consumer goroutines")
	cmd.Flags().IntVar(&iterations, "iterations", 10, "rounds per goroutine")
	return cmd
}

// runStress drives g from one CPU walker and workers consumer goroutines.
func runStress(ctx context.Context, g *tree.Graph, workers, iterations int) (*stressStats, error) {
	stats := &stressStats{}
	cpu, err := g.Lookup("cpu")
	if err != nil {
		return nil, err
	}
	cpuEMC, err := g.Lookup("cpu.emc")
	if err != nil {
		return nil, err
	}
	_, cpuMax := g.Bounds(cpu)
	_, emcMax := g.Bounds(cpuEMC)
	steps := board.CPUFrequencies(cpuMax)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := g.Enable(ctx, cpuEMC); err != nil {
			return err
		}
		defer g.Disable(ctx, cpuEMC)
		for range iterations {
			for _, f := range steps {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := g.SetRate(ctx, cpu, f); err != nil {
					return err
				}
				if err := g.SetRate(ctx, cpuEMC, min(board.EMCVoteForCPU(g.Rate(cpu)), emcMax)); err != nil {
					return err
				}
				stats.cpuSteps.Add(1)
				stats.ops.Add(2)
			}
		}
		return nil
	})

	for w := range workers {
		eg.Go(func() error {
			consumer := stressConsumers[w%len(stressConsumers)]
			c, err := g.Lookup(consumer.clock)
			if err != nil {
				return err
			}
			voter, err := g.Lookup(stressVoters[w%len(stressVoters)])
			if err != nil {
				return err
			}
			for i := range iterations {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := g.Enable(ctx, c); err != nil {
					return err
				}
				if err := g.SetRate(ctx, c, consumer.rates[i%len(consumer.rates)]); err != nil {
					g.Disable(ctx, c)
					return err
				}
				if err := g.Enable(ctx, voter); err != nil {
					g.Disable(ctx, c)
					return err
				}
				g.Disable(ctx, voter)
				g.Disable(ctx, c)
				stats.ops.Add(5)
			}
			return nil
		})
	}
	return stats, eg.Wait()
}
