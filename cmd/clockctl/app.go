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
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/clocktree/pkg/logging"
	"github.com/AleutianAI/clocktree/pkg/ux"
	"github.com/AleutianAI/clocktree/services/clocktree/board"
	"github.com/AleutianAI/clocktree/services/clocktree/config"
	"github.com/AleutianAI/clocktree/services/clocktree/regs"
	store "github.com/AleutianAI/clocktree/services/clocktree/storage/badger"
	"github.com/AleutianAI/clocktree/services/clocktree/snapshot"
	"github.com/AleutianAI/clocktree/services/clocktree/telemetry"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// Command annotations read by app.setup.
const (
	// annotSoC set to "none" skips booting the simulated chip.
	annotSoC = "soc"

	// annotMetrics names the metric exporter the command needs.
	annotMetrics = "metrics"
)

// app is the state shared by one invocation's commands.
//
// Thread Safety: mu guards cfg, topo, mem, plat and g, which serve swaps
// when the files it watches change. Commands that run once read them
// directly.
type app struct {
	configPath string
	configFile string
	skuFlag    uint32
	boardFlag  string
	outputFlag string
	overrides  func(*config.Config)

	mu       sync.RWMutex
	cfg      config.Config
	log      *logging.Logger
	out      *ux.Printer
	shutdown func(context.Context) error

	topo  tree.Topology
	mem   *regs.Memory
	plat  tree.Platform
	g     *tree.Graph
	dirty bool

	db *store.DB
}

// setup loads configuration and, unless the command opts out, boots the
// simulated chip.
func (a *app) setup(cmd *cobra.Command) error {
	level, err := ux.ParseLevel(a.outputFlag)
	if err != nil {
		return err
	}
	a.out = ux.NewPrinter(cmd.OutOrStdout(), level)

	path := a.configPath
	if path == "" {
		dir, err := config.DefaultDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, config.FileName)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	a.configFile = path

	skuSet, boardSet := cmd.Flags().Changed("sku"), cmd.Flags().Changed("board")
	a.overrides = func(cfg *config.Config) {
		if skuSet {
			cfg.SKU = a.skuFlag
		}
		if boardSet {
			cfg.Board = a.boardFlag
		}
	}
	cfg, created, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logLevel, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	jsonOut := cfg.Log.JSON
	if f, ok := stderr.(*os.File); ok && !logging.IsTerminal(f) {
		jsonOut = true
	}
	a.log = logging.New(logging.Config{
		Level:   logLevel,
		JSON:    jsonOut,
		Service: "clockctl",
		LogDir:  cfg.Log.Dir,
		Output:  stderr,
	})
	if created {
		a.log.Info("created default config", "path", path)
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = cfg.Telemetry.Exporter
	tcfg.OTLPEndpoint = cfg.Telemetry.Endpoint
	tcfg.Output = stderr
	if m := cmd.Annotations[annotMetrics]; m != "" {
		tcfg.MetricExporter = m
	} else if cfg.Telemetry.Exporter == "stdout" {
		tcfg.MetricExporter = "stdout"
	}
	a.shutdown, err = telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return err
	}

	if cmd.Annotations[annotSoC] == "none" {
		return nil
	}
	return a.boot(cmd.Context())
}

// loadConfig reads the config file and applies the command-line overrides.
func (a *app) loadConfig() (config.Config, bool, error) {
	cfg, created, err := config.Load(a.configFile)
	if err != nil {
		return config.Config{}, false, err
	}
	if a.overrides != nil {
		a.overrides(&cfg)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, false, err
		}
	}
	return cfg, created, nil
}

// boot loads the register image, or synthesizes a fresh boot image, and
// initializes the clock graph from it.
func (a *app) boot(ctx context.Context) error {
	topo, err := board.Load(a.cfg.Board)
	if err != nil {
		return err
	}
	mem, synthesized, err := a.loadImage(a.cfg)
	if err != nil {
		return err
	}
	plat, g, err := a.buildGraph(ctx, a.cfg, topo, mem)
	if err != nil {
		return err
	}
	a.topo, a.mem, a.plat, a.g = topo, mem, plat, g
	if synthesized {
		a.dirty = true
	}
	return nil
}

// loadImage reads cfg.Registers. When the file does not exist a boot image
// is synthesized and preinitialized instead, and the bool result is true.
func (a *app) loadImage(cfg config.Config) (*regs.Memory, bool, error) {
	_, err := os.Stat(cfg.Registers)
	switch {
	case err == nil:
		mem := board.NewRegisterFile()
		if err := mem.LoadFile(cfg.Registers); err != nil {
			return nil, false, err
		}
		return mem, false, nil
	case errors.Is(err, os.ErrNotExist):
		mem, err := board.BootImage(cfg.Oscillator)
		if err != nil {
			return nil, false, err
		}
		board.Preinit(mem, tree.ScaledDelay(cfg.LockDelayScale))
		a.log.Info("synthesized boot register image", "oscillator_hz", cfg.Oscillator)
		return mem, true, nil
	default:
		return nil, false, err
	}
}

// buildGraph initializes a clock graph over mem and replays the saved
// shared bus votes.
func (a *app) buildGraph(ctx context.Context, cfg config.Config, topo tree.Topology, mem *regs.Memory) (tree.Platform, *tree.Graph, error) {
	plat := board.Platform(cfg.SKU, cfg.Oscillator)
	g, err := tree.New(topo, mem, tree.Options{
		Logger:   a.log.Slog(),
		Platform: plat,
		Delay:    tree.ScaledDelay(cfg.LockDelayScale),
	})
	if err != nil {
		return tree.Platform{}, nil, err
	}
	if err := g.InitializeAll(ctx); err != nil {
		return tree.Platform{}, nil, err
	}
	votes, err := loadVotes(votesPath(cfg))
	if err != nil {
		return tree.Platform{}, nil, err
	}
	if err := replayVotes(ctx, g, votes, a.log.Slog()); err != nil {
		return tree.Platform{}, nil, err
	}
	mem.ResetLog()
	return plat, g, nil
}

// graph returns the current clock graph.
func (a *app) graph() *tree.Graph {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.g
}

// markDirty records that the register image must be saved on exit.
func (a *app) markDirty() {
	a.dirty = true
}

// flush saves the register image and the shared bus votes when they
// changed since boot.
func (a *app) flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mem == nil || !a.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.Registers), 0750); err != nil {
		return err
	}
	votes, err := collectVotes(a.g)
	if err != nil {
		return err
	}
	if err := saveVotes(votesPath(a.cfg), votes); err != nil {
		return err
	}
	if err := a.mem.SaveFile(a.cfg.Registers); err != nil {
		return err
	}
	a.dirty = false
	return nil
}

// snapshots opens the snapshot store.
func (a *app) snapshots() (*snapshot.Store, error) {
	if a.db == nil {
		cfg := store.DefaultConfig(a.cfg.SnapshotDir)
		cfg.Logger = a.log.Slog()
		db, err := store.Open(cfg)
		if err != nil {
			return nil, err
		}
		a.db = db
	}
	return snapshot.NewStore(a.db), nil
}

func (a *app) lookup(name string) (*tree.Clock, error) {
	return a.g.Lookup(name)
}

// close persists the register image and releases everything setup opened.
func (a *app) close() {
	if err := a.flush(); err != nil && a.log != nil {
		a.log.Error("saving register image failed", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.log != nil {
			a.log.Warn("closing snapshot store failed", "error", err)
		}
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdown(ctx); err != nil && a.log != nil {
			a.log.Warn("telemetry shutdown failed", "error", err)
		}
	}
	if a.log != nil {
		_ = a.log.Close()
	}
}
