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
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// declValidate is shared by all topology validation.
var declValidate = validator.New()

// Topology is the static description of a chip's clock tree.
//
// Description:
//
//	Topology is pure data. It lists every clock declaration in
//	initialization order, the extra consumer-facing lookup names, and the
//	SKU-specific rate ceilings applied during InitializeAll. Boards build
//	one in code or load it from YAML.
type Topology struct {
	Clocks    []Declaration `yaml:"clocks" validate:"required,min=1,dive"`
	Aliases   []Alias       `yaml:"aliases,omitempty" validate:"dive"`
	SKULimits []SKULimit    `yaml:"sku_limits,omitempty" validate:"dive"`
}

// Declaration describes one clock.
//
// Only the fields meaningful for Kind are read. Rates are in Hz.
type Declaration struct {
	Name     string   `yaml:"name" validate:"required"`
	Kind     Kind     `yaml:"kind"`
	Parent   string   `yaml:"parent,omitempty"`
	Inputs   []Input  `yaml:"inputs,omitempty" validate:"dive"`
	Reg      regs.Hex `yaml:"reg,omitempty"`
	RegShift uint32   `yaml:"reg_shift,omitempty" validate:"lte=31"`
	MuxShift uint32   `yaml:"mux_shift,omitempty" validate:"lte=31"`
	MuxMask  regs.Hex `yaml:"mux_mask,omitempty"`
	Rate     uint64   `yaml:"rate,omitempty"`
	MinRate  uint64   `yaml:"min_rate,omitempty"`
	MaxRate  uint64   `yaml:"max_rate,omitempty" validate:"omitempty,gtefield=MinRate"`
	Mul      uint32   `yaml:"mul,omitempty"`
	Div      uint32   `yaml:"div,omitempty"`
	ClkNum   uint32   `yaml:"clk_num,omitempty" validate:"lt=96"`
	Flags    Flags    `yaml:"flags,omitempty"`

	// Dev and Con are the device and connection names the clock is
	// registered under. When both are empty the clock name is the
	// connection name.
	Dev string `yaml:"dev,omitempty"`
	Con string `yaml:"con,omitempty"`

	// Pingroup is the pin group queried to resolve an external device
	// clock's parent.
	Pingroup string `yaml:"pingroup,omitempty"`

	PLL    *PLLParams    `yaml:"pll,omitempty"`
	CPU    *CPUParams    `yaml:"cpu,omitempty"`
	System *SystemParams `yaml:"system,omitempty"`
}

// Input is one candidate parent and the selector value that picks it.
type Input struct {
	Clock string `yaml:"clock" validate:"required"`
	Value uint32 `yaml:"value"`
}

// FreqEntry is one validated PLL configuration.
type FreqEntry struct {
	Input  uint64 `yaml:"input" validate:"required"`
	Output uint64 `yaml:"output" validate:"required"`
	N      uint32 `yaml:"n" validate:"required,lte=1023"`
	M      uint32 `yaml:"m" validate:"required,lte=31"`
	P      uint32 `yaml:"p" validate:"required"`
	CPCON  uint32 `yaml:"cpcon" validate:"lte=15"`
}

// PLLParams carries the PLL-specific declaration data.
type PLLParams struct {
	InputMin  uint64      `yaml:"input_min,omitempty"`
	InputMax  uint64      `yaml:"input_max,omitempty"`
	VCOMin    uint64      `yaml:"vco_min,omitempty"`
	VCOMax    uint64      `yaml:"vco_max,omitempty"`
	LockDelay uint32      `yaml:"lock_delay_us,omitempty"`
	Table     []FreqEntry `yaml:"table,omitempty" validate:"dive"`
}

// CPUParams names the clocks a CPU composite switches between.
type CPUParams struct {
	Main   string `yaml:"main" validate:"required"`
	Backup string `yaml:"backup" validate:"required"`

	// Timer is the parent-less watchdog timer clock whose rate follows
	// the CPU rate.
	Timer string `yaml:"timer,omitempty"`
}

// SystemParams names the peripheral bus clock a virtual system bus
// coordinates with.
type SystemParams struct {
	PClk string `yaml:"pclk" validate:"required"`
}

// Alias registers an existing clock under another device/connection name.
type Alias struct {
	Clock string `yaml:"clock" validate:"required"`
	Dev   string `yaml:"dev,omitempty"`
	Con   string `yaml:"con,omitempty"`
}

// SKULimit overrides a clock's maximum rate on the listed SKUs.
type SKULimit struct {
	Clock   string   `yaml:"clock" validate:"required"`
	MaxRate uint64   `yaml:"max_rate" validate:"required"`
	SKUs    []uint32 `yaml:"skus" validate:"required,min=1"`
}

// Validate checks the struct tags and the kind-specific requirements.
//
// Outputs:
//
//	error - Wraps ErrFatalConfiguration when the declaration is unusable.
func (d *Declaration) Validate() error {
	if err := declValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: clock %q: %v", ErrFatalConfiguration, d.Name, err)
	}
	if err := d.validateKind(); err != nil {
		return fmt.Errorf("%w: clock %q: %v", ErrFatalConfiguration, d.Name, err)
	}
	return nil
}

func (d *Declaration) validateKind() error {
	switch d.Kind {
	case KindPLL:
		if d.PLL == nil {
			return errors.New("pll clock needs pll parameters")
		}
		if d.Parent == "" {
			return errors.New("pll clock needs a parent")
		}
	case KindCPUComposite:
		if d.CPU == nil {
			return errors.New("cpu clock needs cpu parameters")
		}
		if d.Parent == "" {
			return errors.New("cpu clock needs a parent mux")
		}
	case KindVirtualSystemBus:
		if d.System == nil {
			return errors.New("virtual system bus needs system parameters")
		}
		if d.Parent == "" {
			return errors.New("virtual system bus needs a parent")
		}
	case KindSuperMux, KindAudioSync, KindExternalDevClock, KindEMC:
		if len(d.Inputs) == 0 {
			return fmt.Errorf("%s clock needs inputs", d.Kind)
		}
	case KindPeripheral:
		if len(d.Inputs) == 0 && d.Parent == "" {
			return errors.New("peripheral clock needs inputs or a parent")
		}
	case KindPLLOutputDivider, KindBus, KindBlink, KindDoubler, KindSharedBusUser, KindCOPReset:
		if d.Parent == "" {
			return fmt.Errorf("%s clock needs a parent", d.Kind)
		}
	case KindFixed, KindOscillator, KindSharedBusRoot:
	default:
		return fmt.Errorf("unknown kind %d", int(d.Kind))
	}
	if d.Kind == KindExternalDevClock {
		if d.Pingroup == "" {
			return errors.New("external device clock needs a pingroup")
		}
		if d.ClkNum == 0 {
			return errors.New("external device clock needs a clock number")
		}
	}
	return nil
}

// Validate checks every declaration and that names are unique.
func (t *Topology) Validate() error {
	if err := declValidate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrFatalConfiguration, err)
	}
	seen := make(map[string]bool, len(t.Clocks))
	for i := range t.Clocks {
		d := &t.Clocks[i]
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: duplicate clock %q", ErrFatalConfiguration, d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}
