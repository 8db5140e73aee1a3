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
	"bytes"
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"", LevelAuto},
		{"auto", LevelAuto},
		{"standard", LevelStandard},
		{"MIN", LevelMinimal},
		{"machine", LevelMachine},
		{"plain", LevelMachine},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestResolve_NonTerminal(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	if got := Resolve(LevelAuto, &buf); got != LevelMachine {
		t.Errorf("expected machine for a buffer, got %q", got)
	}
	if got := Resolve(LevelMinimal, &buf); got != LevelMinimal {
		t.Errorf("explicit level should win, got %q", got)
	}
}

func TestResolve_Env(t *testing.T) {
	t.Setenv(EnvLevel, "standard")
	if got := Resolve(LevelAuto, &bytes.Buffer{}); got != LevelStandard {
		t.Errorf("expected env level standard, got %q", got)
	}
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_MachineIsPlain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, LevelMachine)

	if got := p.State("on"); got != "on" {
		t.Errorf("State = %q, want plain", got)
	}
	if got := p.Rate("48 MHz"); got != "48 MHz" {
		t.Errorf("Rate = %q, want plain", got)
	}

	p.Result("sdmmc1", "%s, refcount %d", "on", 1)
	p.Field("parent", "pll_p")
	want := "sdmmc1: on, refcount 1\n  parent: pll_p\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestPrinter_MachineTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, LevelMachine)
	err := p.Table([]string{"CLOCK", "RATE"}, [][]string{{"pll_p", "216 MHz"}, {"  pll_p_out1", "28.8 MHz"}})
	if err != nil {
		t.Fatal(err)
	}
	want := "CLOCK\tRATE\npll_p\t216 MHz\n  pll_p_out1\t28.8 MHz\n"
	if buf.String() != want {
		t.Errorf("table = %q, want %q", buf.String(), want)
	}
}

func TestPrinter_StandardTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, LevelStandard)
	if err := p.Table([]string{"ID", "LABEL"}, [][]string{{"abc", "boot"}}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ID", "LABEL", "abc", "boot", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
}

func TestPrinter_MinimalTableHasNoBorder(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, LevelMinimal)
	if err := p.Table([]string{"USER", "RATE"}, [][]string{{"cpu.emc", "333 MHz"}}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "╭") || strings.Contains(out, "│") {
		t.Errorf("minimal table should not draw borders:\n%s", out)
	}
	if !strings.Contains(out, "cpu.emc") {
		t.Errorf("expected row in table:\n%s", out)
	}
}

func TestPrinter_Error(t *testing.T) {
	var plain, rich bytes.Buffer
	NewPrinter(&plain, LevelMachine).Error(errors.New("boom"))
	if plain.String() != "Error: boom\n" {
		t.Errorf("machine error = %q", plain.String())
	}

	NewPrinter(&rich, LevelStandard).Error(errors.New("boom"))
	if !strings.Contains(rich.String(), "✗") || !strings.Contains(rich.String(), "boom") {
		t.Errorf("standard error = %q", rich.String())
	}
}

func TestPrinter_StateStyles(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{}, LevelStandard)
	for _, s := range []string{"on", "off", "uninitialized"} {
		if !strings.Contains(p.State(s), s) {
			t.Errorf("State(%q) lost its text: %q", s, p.State(s))
		}
	}
}
