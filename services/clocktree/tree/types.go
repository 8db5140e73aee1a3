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
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind selects which operation variant a clock uses.
type Kind int

const (
	// KindFixed is a fixed-rate source or a fixed ratio of its parent.
	KindFixed Kind = iota

	// KindOscillator is the crystal oscillator at the root of the tree.
	KindOscillator

	// KindPLL is a phase-locked loop.
	KindPLL

	// KindPLLOutputDivider is a secondary divider on a PLL output.
	KindPLLOutputDivider

	// KindSuperMux is a two-stage CPU or system mux.
	KindSuperMux

	// KindBus is a 1..4 bus divider.
	KindBus

	// KindBlink is the power-management blink timer output.
	KindBlink

	// KindCPUComposite is the virtual CPU clock hiding PLL switching.
	KindCPUComposite

	// KindVirtualSystemBus coordinates the system bus with its divided
	// peripheral bus.
	KindVirtualSystemBus

	// KindCOPReset is the coprocessor reset line.
	KindCOPReset

	// KindPeripheral is a gated peripheral clock.
	KindPeripheral

	// KindEMC is the external memory controller clock.
	KindEMC

	// KindDoubler is a fixed 2x clock.
	KindDoubler

	// KindAudioSync is the audio sync source mux.
	KindAudioSync

	// KindExternalDevClock is a board-routed clock output.
	KindExternalDevClock

	// KindSharedBusRoot is a generic shared-bus aggregation point.
	KindSharedBusRoot

	// KindSharedBusUser is one consumer's vote on a shared bus.
	KindSharedBusUser
)

var kindNames = [...]string{
	KindFixed:            "fixed",
	KindOscillator:       "oscillator",
	KindPLL:              "pll",
	KindPLLOutputDivider: "pll_divider",
	KindSuperMux:         "super_mux",
	KindBus:              "bus",
	KindBlink:            "blink",
	KindCPUComposite:     "cpu",
	KindVirtualSystemBus: "virtual_system_bus",
	KindCOPReset:         "cop",
	KindPeripheral:       "peripheral",
	KindEMC:              "emc",
	KindDoubler:          "doubler",
	KindAudioSync:        "audio_sync",
	KindExternalDevClock: "external_dev",
	KindSharedBusRoot:    "shared_bus",
	KindSharedBusUser:    "shared_bus_user",
}

// String returns the kind name used in topology files.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a topology kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown clock kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// critical reports whether clocks of this kind must never be stopped.
func (k Kind) critical() bool {
	return k == KindOscillator || k == KindSuperMux || k == KindCPUComposite
}

// State is the hardware state of a clock.
type State int

const (
	// StateUninitialized means init has not run yet.
	StateUninitialized State = iota

	// StateOff means the clock is not driving downstream logic.
	StateOff

	// StateOn means the clock is running.
	StateOn
)

// String returns a lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for _, v := range []State{StateUninitialized, StateOff, StateOn} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown clock state %q", text)
}

// Flags modify how a kind programs its registers.
type Flags uint32

const (
	// FlagMux selects the parent from a source field in the clock register.
	FlagMux Flags = 1 << iota

	// FlagDivU71 uses the fractional divider encoding.
	FlagDivU71

	// FlagDivU71Fixed marks a fractional divider on a fixed-rate PLL; its
	// ratio writes set the override bit.
	FlagDivU71Fixed

	// FlagDivU16 uses the integer divider encoding.
	FlagDivU16

	// FlagDiv2 is a fixed divide-by-two PLL output.
	FlagDiv2

	// FlagEnableOnInit enables the clock during InitializeAll.
	FlagEnableOnInit

	// FlagPLLFixed marks a PLL whose output is fixed by the boot ROM
	// unless the override bit is set.
	FlagPLLFixed

	// FlagPLLHasCPCON marks a PLL with charge-pump bits in its misc register.
	FlagPLLHasCPCON

	// FlagPLLAltMisc places the misc register at +0x4 instead of +0xc.
	FlagPLLAltMisc

	// FlagPLLU is the USB PLL with a single post-divider bit.
	FlagPLLU

	// FlagPLLD is the display PLL with a misc clock-enable bit.
	FlagPLLD

	// FlagPLLDCCON sets the DCCON bit for outputs in the upper half of the
	// VCO range.
	FlagPLLDCCON

	// FlagPLLE is the PLL with a ready handshake and no disable.
	FlagPLLE

	// FlagNoEnable marks a peripheral clock without an enable bit.
	FlagNoEnable

	// FlagNoReset marks a peripheral clock without a reset line.
	FlagNoReset

	// FlagManualReset leaves reset deassertion to the driver.
	FlagManualReset

	// FlagOnAPB marks a peripheral behind the APB bus; writes are flushed
	// by a read of the chip-id block before the clock stops.
	FlagOnAPB

	// FlagEMCEnable marks the memory controller clock with two extra
	// enable bits and the staged rate workaround.
	FlagEMCEnable

	// FlagTapDelay marks an SD/MMC clock whose source register carries
	// the feedback tap delay field.
	FlagTapDelay
)

var flagNames = map[Flags]string{
	FlagMux:          "mux",
	FlagDivU71:       "div_u71",
	FlagDivU71Fixed:  "div_u71_fixed",
	FlagDivU16:       "div_u16",
	FlagDiv2:         "div_2",
	FlagEnableOnInit: "enable_on_init",
	FlagPLLFixed:     "pll_fixed",
	FlagPLLHasCPCON:  "pll_has_cpcon",
	FlagPLLAltMisc:   "pll_alt_misc",
	FlagPLLU:         "pllu",
	FlagPLLD:         "plld",
	FlagPLLDCCON:     "pll_dccon",
	FlagPLLE:         "plle",
	FlagNoEnable:     "no_enable",
	FlagNoReset:      "no_reset",
	FlagManualReset:  "manual_reset",
	FlagOnAPB:        "on_apb",
	FlagEMCEnable:    "emc_enable",
	FlagTapDelay:     "tap_delay",
}

// Has reports whether all bits of want are set.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// Names returns the flag names in bit order.
func (f Flags) Names() []string {
	var bits []Flags
	for bit := range flagNames {
		if f&bit != 0 {
			bits = append(bits, bit)
		}
	}
	sort.Slice(bits, func(i, j int) bool { return bits[i] < bits[j] })
	names := make([]string, 0, len(bits))
	for _, bit := range bits {
		names = append(names, flagNames[bit])
	}
	return names
}

// String joins the flag names with "|".
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// ParseFlags converts flag names into Flags.
func ParseFlags(names []string) (Flags, error) {
	var f Flags
	for _, name := range names {
		found := false
		for bit, n := range flagNames {
			if n == name {
				f |= bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown clock flag %q", name)
		}
	}
	return f, nil
}

// MarshalYAML writes flags as a list of names.
func (f Flags) MarshalYAML() (interface{}, error) {
	return f.Names(), nil
}

// UnmarshalYAML reads flags from a list of names.
func (f *Flags) UnmarshalYAML(node *yaml.Node) error {
	var names []string
	if err := node.Decode(&names); err != nil {
		return err
	}
	parsed, err := ParseFlags(names)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
