// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads clockctl's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DirName is the per-user directory holding the config, the register
// image and the snapshot store.
const DirName = ".clocktree"

// FileName is the config file inside DirName.
const FileName = "clockctl.yaml"

var validate = validator.New()

// Config is the clockctl configuration.
type Config struct {
	// Board is "tegra2" or the path of a YAML board file.
	Board string `yaml:"board" validate:"required"`

	// SKU selects the SKU rate ceilings.
	SKU uint32 `yaml:"sku"`

	// Oscillator is the simulated crystal frequency in Hz.
	Oscillator uint64 `yaml:"oscillator" validate:"oneof=12000000 13000000 19200000 26000000"`

	// Registers is the register image carried between invocations.
	Registers string `yaml:"registers" validate:"required"`

	// LockDelayScale scales PLL lock and settle waits. 0 skips them.
	LockDelayScale float64 `yaml:"lock_delay_scale" validate:"gte=0,lte=1000"`

	// SnapshotDir holds the suspend snapshot store.
	SnapshotDir string `yaml:"snapshot_dir" validate:"required"`

	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// MetricsConfig configures `clockctl serve`.
type MetricsConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
}

// TelemetryConfig selects the OpenTelemetry exporter.
type TelemetryConfig struct {
	// Exporter is "none", "stdout" or "otlp".
	Exporter string `yaml:"exporter" validate:"oneof=none stdout otlp"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`

	// Dir receives a JSON log file per run. Empty disables file output.
	Dir string `yaml:"dir,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
//
// Inputs:
//
//	home - The directory holding the register image and snapshots.
func DefaultConfig(home string) Config {
	return Config{
		Board:          "tegra2",
		SKU:            0x08,
		Oscillator:     12_000_000,
		Registers:      filepath.Join(home, "registers.yaml"),
		LockDelayScale: 0,
		SnapshotDir:    filepath.Join(home, "snapshots"),
		Metrics:        MetricsConfig{Listen: "127.0.0.1:9464"},
		Telemetry:      TelemetryConfig{Exporter: "none"},
		Log:            LogConfig{Level: "info"},
	}
}

// DefaultDir returns ~/.clocktree.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads and validates the config at path.
//
// Description:
//
//	When path does not exist the defaults are written there first, with
//	the register image and snapshots placed next to it. Fields missing
//	from the file keep their defaults.
//
// Outputs:
//
//	Config - The loaded configuration.
//	bool - True when the file was created.
//	error - Non-nil on I/O, parse or validation failure.
func Load(path string) (Config, bool, error) {
	cfg := DefaultConfig(filepath.Dir(path))
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return Config{}, false, err
		}
		return cfg, true, nil
	case err != nil:
		return Config{}, false, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, false, nil
}

// Save validates cfg and writes it to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
