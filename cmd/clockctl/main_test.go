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
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// cli runs clockctl invocations against one temporary config directory.
type cli struct {
	dir    string
	config string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	return &cli{dir: dir, config: filepath.Join(dir, "clockctl.yaml")}
}

func (c *cli) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	err := run(append([]string{"--config", c.config}, args...), &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := c.run(args...)
	require.NoError(t, err, "clockctl %s\n%s", strings.Join(args, " "), errOut)
	return out
}

// TestRun_FirstBoot verifies the first invocation writes a default config
// and a register image, and prints the booted tree.
func TestRun_FirstBoot(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "tree")

	assert.Contains(t, out, "CLOCK")
	assert.Contains(t, out, "pll_p")
	assert.Contains(t, out, "216 MHz")
	assert.FileExists(t, c.config)
	assert.FileExists(t, filepath.Join(c.dir, "registers.yaml"))
}

// TestTreeCmd_JSON verifies --json and --on filter and encode the walk.
func TestTreeCmd_JSON(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "tree", "--json", "--on")

	var infos []tree.Info
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.NotEmpty(t, infos)
	names := map[string]bool{}
	for _, info := range infos {
		assert.Equal(t, tree.StateOn, info.State, info.Name)
		names[info.Name] = true
	}
	assert.True(t, names["cpu"])
	assert.False(t, names["pll_d"])
}

// TestSetRate_Persists verifies a programmed rate survives into the next
// invocation through the register image.
func TestSetRate_Persists(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "set-rate", "sdmmc2", "24M")
	assert.Equal(t, "sdmmc2: 24 MHz\n", out)

	out = c.mustRun(t, "rate", "sdmmc2")
	assert.Contains(t, out, "sdmmc2: 24 MHz (24000000 Hz)")
	assert.Contains(t, out, "parent: pll_p")
	assert.Contains(t, out, ".. 52 MHz")
}

// TestRateCmd verifies lookup by name and by consumer, and --round.
func TestRateCmd(t *testing.T) {
	c := newCLI(t)

	t.Run("round", func(t *testing.T) {
		out := c.mustRun(t, "rate", "sdmmc1", "--round", "52M")
		assert.Contains(t, out, "round(52 MHz): 48 MHz")
	})

	t.Run("by device", func(t *testing.T) {
		out := c.mustRun(t, "rate", "--dev", "tegra_pwm.2")
		assert.True(t, strings.HasPrefix(out, "pwm: 12 MHz"), out)
	})

	t.Run("unknown clock", func(t *testing.T) {
		_, errOut, err := c.run("rate", "nope")
		assert.ErrorIs(t, err, tree.ErrNotFound)
		assert.Contains(t, errOut, "Error: ")
		assert.Contains(t, errOut, "clock not found")
	})

	t.Run("no selector", func(t *testing.T) {
		_, _, err := c.run("rate")
		assert.Error(t, err)
	})
}

// TestEnableDisable verifies refcounted enable and the disable guards.
func TestEnableDisable(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun(t, "enable", "sdmmc2")
	assert.Equal(t, "sdmmc2: on, refcount 1\n", out)

	_, _, err := c.run("disable", "cpu")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must never be disabled")

	// References live only for one invocation.
	_, _, err = c.run("disable", "sdmmc2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no enable references")
}

// TestVoteCmd verifies a memory bus vote raises the bus rate.
func TestVoteCmd(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "vote", "disp1.emc", "100M")

	assert.Contains(t, out, "emc: 166.5 MHz")
	assert.Contains(t, out, "disp1.emc")
	assert.Contains(t, out, "100 MHz")

	_, _, err := c.run("vote", "sdmmc1", "1M")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a shared bus user")
}

// TestVoteCmd_Persists verifies votes carry over between invocations and
// --drop withdraws a vote cast by an earlier one.
func TestVoteCmd_Persists(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun(t, "vote", "cpu.emc", "333M"), "emc: 333 MHz")

	out := c.mustRun(t, "vote", "disp1.emc", "100M")
	assert.Contains(t, out, "emc: 333 MHz")
	assert.Contains(t, out, "cpu.emc")
	assert.Contains(t, out, "disp1.emc")
	assert.FileExists(t, filepath.Join(c.dir, "registers.votes.yaml"))

	out = c.mustRun(t, "vote", "disp1.emc", "--drop")
	assert.Contains(t, out, "emc: 333 MHz")
	assert.NotContains(t, out, "disp1.emc")

	out = c.mustRun(t, "vote", "cpu.emc", "--drop")
	assert.NotContains(t, out, "emc: 333 MHz")
	assert.Contains(t, out, "no votes")
	assert.NoFileExists(t, filepath.Join(c.dir, "registers.votes.yaml"))

	_, _, err := c.run("vote", "cpu.emc", "333M", "--drop")
	assert.Error(t, err)
}

// TestVoteCmd_RaiseAfterRestart verifies the memory bus ceiling comes from
// the timing table, not from the rate the previous invocation left behind.
func TestVoteCmd_RaiseAfterRestart(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun(t, "vote", "cpu.emc", "166.5M"), "emc: 166.5 MHz")

	out := c.mustRun(t, "vote", "cpu.emc", "666M")
	assert.Contains(t, out, "emc: 666 MHz")
	assert.Contains(t, c.mustRun(t, "rate", "emc"), ".. 666 MHz")
}

// TestSuspendResume verifies a snapshot round trip through the store.
func TestSuspendResume(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "tree")

	id := strings.TrimSpace(c.mustRun(t, "suspend", "--label", "boot"))
	require.NotEmpty(t, id)

	c.mustRun(t, "set-rate", "sdmmc2", "12M")

	list := c.mustRun(t, "snapshots")
	assert.Contains(t, list, id)
	assert.Contains(t, list, "boot")

	out := c.mustRun(t, "resume")
	assert.Contains(t, out, "restored "+id)
	assert.Contains(t, c.mustRun(t, "rate", "sdmmc2"), "sdmmc2: 48 MHz")

	out = c.mustRun(t, "snapshots", "delete", id)
	assert.Equal(t, "deleted "+id+"\n", out)
	_, _, err := c.run("resume", id)
	assert.Error(t, err)
}

// TestResetCmd verifies reset assert and release.
func TestResetCmd(t *testing.T) {
	c := newCLI(t)
	assert.Equal(t, "sdmmc2: reset asserted\n", c.mustRun(t, "reset", "sdmmc2"))
	assert.Equal(t, "sdmmc2: reset released\n", c.mustRun(t, "reset", "sdmmc2", "--deassert"))
}

// TestDumpBoard verifies the topology dump and its use as a board file.
func TestDumpBoard(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "dump-board")
	assert.Contains(t, out, "pll_x")
	assert.NoFileExists(t, filepath.Join(c.dir, "registers.yaml"))

	path := filepath.Join(c.dir, "board.yaml")
	_, errOut, err := c.run("dump-board", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, errOut, "clocks to "+path)

	out = c.mustRun(t, "--board", path, "rate", "pll_p")
	assert.Contains(t, out, "pll_p: 216 MHz")
}

// TestStressCmd verifies a short concurrent run completes.
func TestStressCmd(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "stress", "--workers", "8", "--iterations", "2")
	assert.Contains(t, out, "cpu steps")

	_, _, err := c.run("stress", "--workers", "0")
	assert.Error(t, err)
}

// TestHandler verifies the HTTP routes serve health and the clock walk.
func TestHandler(t *testing.T) {
	c := newCLI(t)
	a := &app{configPath: c.config}
	t.Cleanup(a.close)
	cmd := newRootCmd(a)
	cmd.SetContext(context.Background())
	require.NoError(t, a.setup(cmd))

	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/clocks")
	require.NoError(t, err)
	var infos []tree.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	resp.Body.Close()
	assert.Len(t, infos, len(a.g.Clocks()))

	info, code := getClock(t, srv.URL, "pll_p")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, uint64(216_000_000), info.Rate)

	_, code = getClock(t, srv.URL, "nope")
	assert.Equal(t, http.StatusNotFound, code)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func getClock(t *testing.T, base, name string) (tree.Info, int) {
	t.Helper()
	resp, err := http.Get(base + "/clocks/" + name)
	require.NoError(t, err)
	defer resp.Body.Close()
	var info tree.Info
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	}
	return info, resp.StatusCode
}

// TestWatch_ReloadsOnImageChange verifies a served tree picks up a rate
// programmed by another invocation through the register image.
func TestWatch_ReloadsOnImageChange(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "tree")

	a := &app{configPath: c.config}
	t.Cleanup(a.close)
	cmd := newRootCmd(a)
	cmd.SetContext(context.Background())
	require.NoError(t, a.setup(cmd))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := a.watch(ctx)
	require.NoError(t, err)
	defer w.Stop()

	srv := httptest.NewServer(a.handler())
	defer srv.Close()

	info, _ := getClock(t, srv.URL, "sdmmc2")
	require.Equal(t, uint64(48_000_000), info.Rate)

	c.mustRun(t, "set-rate", "sdmmc2", "24M")
	assert.Eventually(t, func() bool {
		info, _ := getClock(t, srv.URL, "sdmmc2")
		return info.Rate == 24_000_000
	}, 5*time.Second, 50*time.Millisecond)
}

// TestWatch_KeepsTreeOnBadImage verifies a corrupt register image leaves
// the served tree in place.
func TestWatch_KeepsTreeOnBadImage(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "tree")

	a := &app{configPath: c.config}
	t.Cleanup(a.close)
	cmd := newRootCmd(a)
	cmd.SetContext(context.Background())
	require.NoError(t, a.setup(cmd))
	before := a.graph()

	a.reload(context.Background(), []string{a.cfg.Registers})
	assert.NotSame(t, before, a.graph())

	current := a.graph()
	require.NoError(t, os.WriteFile(a.cfg.Registers, []byte("words: [\n"), 0640))
	a.reload(context.Background(), []string{a.cfg.Registers})
	assert.Same(t, current, a.graph())
}

// TestServe verifies serve stops cleanly when its context ends.
func TestServe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, serve(ctx, ln, http.NotFoundHandler()))
}
