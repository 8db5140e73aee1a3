// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies the defaults validate and live under home.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/h")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "tegra2", cfg.Board)
	assert.Equal(t, "/h/registers.yaml", cfg.Registers)
	assert.Equal(t, "/h/snapshots", cfg.SnapshotDir)
	assert.Equal(t, "none", cfg.Telemetry.Exporter)
}

// TestLoad_FirstRun verifies a missing file is created with defaults.
func TestLoad_FirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg, created, err := Load(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, DefaultConfig(filepath.Dir(path)), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, created, err := Load(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg, again)
}

// TestLoad_Overrides verifies file values replace defaults field by field.
func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("sku: 0x17\noscillator: 26000000\nlog:\n  level: debug\n"), 0644))

	cfg, created, err := Load(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint32(0x17), cfg.SKU)
	assert.Equal(t, uint64(26_000_000), cfg.Oscillator)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "tegra2", cfg.Board)
	assert.Equal(t, filepath.Join(dir, "registers.yaml"), cfg.Registers)
}

// TestValidate verifies rejected field values.
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unsupported crystal", func(c *Config) { c.Oscillator = 16_800_000 }},
		{"negative delay scale", func(c *Config) { c.LockDelayScale = -1 }},
		{"missing board", func(c *Config) { c.Board = "" }},
		{"bad listen address", func(c *Config) { c.Metrics.Listen = "nope" }},
		{"unknown exporter", func(c *Config) { c.Telemetry.Exporter = "jaeger" }},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.Exporter = "otlp" }},
		{"unknown level", func(c *Config) { c.Log.Level = "trace" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(t.TempDir())
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("otlp with endpoint", func(t *testing.T) {
		cfg := DefaultConfig(t.TempDir())
		cfg.Telemetry = TelemetryConfig{Exporter: "otlp", Endpoint: "localhost:4317"}
		assert.NoError(t, cfg.Validate())
	})
}

// TestLoad_Invalid verifies parse and validation failures surface.
func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("sku: [1"), 0644))
	_, _, err := Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("log:\n  level: loud\n"), 0644))
	_, _, err = Load(invalid)
	assert.Error(t, err)

	assert.Error(t, Save(filepath.Join(dir, "x.yaml"), Config{}))
}
