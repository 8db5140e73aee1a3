// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package regs provides register access for the clock tree.
//
// The clock engine never touches hardware directly. Every read and write
// goes through a Port, which addresses 32-bit words by (Block, offset).
// A Bank wraps a Port with the single register lock that serializes
// read-modify-write sequences on words shared by unrelated clocks.
//
// # Thread Safety
//
// Port implementations must be safe for concurrent use. Bank.Update holds
// the register lock only for the read-modify-write it performs.
package regs

import (
	"fmt"
	"strings"
	"sync"
)

// Block identifies a hardware register block.
type Block int

const (
	// ClockReset is the clock and reset controller.
	ClockReset Block = iota

	// PowerManagement is the power-management controller.
	PowerManagement

	// Misc is the read-only chip identity and miscellaneous block.
	Misc
)

// String returns the short block name used in logs and register images.
func (b Block) String() string {
	switch b {
	case ClockReset:
		return "car"
	case PowerManagement:
		return "pmc"
	case Misc:
		return "misc"
	default:
		return fmt.Sprintf("block(%d)", int(b))
	}
}

// ParseBlock converts a block name back into a Block.
func ParseBlock(s string) (Block, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "car", "clock", "clock_reset":
		return ClockReset, nil
	case "pmc", "power":
		return PowerManagement, nil
	case "misc", "apb_misc":
		return Misc, nil
	default:
		return 0, fmt.Errorf("unknown register block %q", s)
	}
}

// Port is the narrow interface to the physical register file.
//
// Both operations are assumed infallible; a hardware fault is not modeled.
type Port interface {
	// Read returns the 32-bit word at offset within block.
	Read(block Block, offset uint32) uint32

	// Write stores value at offset within block.
	Write(block Block, offset uint32, value uint32)
}

// Bank serializes read-modify-write sequences against a Port.
//
// Description:
//
//	Several logical clocks keep control bits in the same physical word
//	(bus dividers, PLL output dividers, peripheral enable words). Any
//	non-atomic update of such a word must go through Update, which holds
//	the register lock for the duration of the read-modify-write and no
//	longer. Plain Read and Write do not take the lock.
//
// Thread Safety: Safe for concurrent use.
type Bank struct {
	port Port
	mu   sync.Mutex
}

// NewBank wraps port with a register lock.
func NewBank(port Port) *Bank {
	return &Bank{port: port}
}

// Port returns the underlying register port.
func (b *Bank) Port() Port {
	return b.port
}

// Read reads a register without taking the register lock.
func (b *Bank) Read(block Block, offset uint32) uint32 {
	return b.port.Read(block, offset)
}

// Write writes a register without taking the register lock.
func (b *Bank) Write(block Block, offset uint32, value uint32) {
	b.port.Write(block, offset, value)
}

// Update performs a locked read-modify-write of one register.
//
// Inputs:
//
//	block, offset - The register to update.
//	fn - Computes the new value from the current one. Must not block.
//
// Outputs:
//
//	uint32 - The value written.
//
// Thread Safety: Holds the register lock only while fn runs.
func (b *Bank) Update(block Block, offset uint32, fn func(uint32) uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := fn(b.port.Read(block, offset))
	b.port.Write(block, offset, v)
	return v
}

// Modify clears then sets bits in one register under the register lock.
func (b *Bank) Modify(block Block, offset uint32, clear, set uint32) uint32 {
	return b.Update(block, offset, func(v uint32) uint32 {
		return (v &^ clear) | set
	})
}

// Locked runs fn while holding the register lock.
//
// Use this when one logical update spans a read of one word and a write
// of another, as with set/clear alias registers.
func (b *Bank) Locked(fn func(p Port)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.port)
}
