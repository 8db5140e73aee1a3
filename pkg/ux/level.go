// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// EnvLevel overrides terminal detection when set.
const EnvLevel = "CLOCKCTL_OUTPUT"

// Level defines how much styling clockctl puts on its output.
type Level string

const (
	// LevelAuto picks standard on a terminal and machine elsewhere.
	LevelAuto Level = "auto"

	// LevelStandard enables colors and bordered tables.
	LevelStandard Level = "standard"

	// LevelMinimal enables colors but prints tables without borders.
	LevelMinimal Level = "minimal"

	// LevelMachine outputs plain tab-separated text for scripting.
	LevelMachine Level = "machine"
)

// ParseLevel converts a string to a Level. The empty string is LevelAuto.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return LevelAuto, nil
	case "standard", "std", "s":
		return LevelStandard, nil
	case "minimal", "min", "m":
		return LevelMinimal, nil
	case "machine", "plain", "q":
		return LevelMachine, nil
	default:
		return "", fmt.Errorf("unknown output level %q", s)
	}
}

// Resolve turns LevelAuto into a concrete level for w. An explicit level
// wins, then EnvLevel, then terminal detection.
func Resolve(level Level, w io.Writer) Level {
	if level != LevelAuto && level != "" {
		return level
	}
	if env := os.Getenv(EnvLevel); env != "" {
		if parsed, err := ParseLevel(env); err == nil && parsed != LevelAuto {
			return parsed
		}
	}
	if isTerminal(w) {
		return LevelStandard
	}
	return LevelMachine
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
