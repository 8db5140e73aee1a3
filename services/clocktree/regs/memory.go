// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package regs

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

// Address is a (block, offset) register address.
type Address struct {
	Block  Block
	Offset uint32
}

// String formats the address as "block+0xoff".
func (a Address) String() string {
	return fmt.Sprintf("%s+0x%03x", a.Block, a.Offset)
}

// Access is one recorded register write.
type Access struct {
	Address
	Value uint32
}

// aliasKind selects the behavior of a write-only alias register.
type aliasKind int

const (
	aliasSet aliasKind = iota
	aliasClear
)

type alias struct {
	kind   aliasKind
	target Address
}

// Memory is an in-memory register file implementing Port.
//
// Description:
//
//	Memory backs the simulated SoC used by clockctl and the tests. It can
//	model write-only set/clear alias registers, where writing a mask to the
//	alias sets or clears those bits in a target word. Every Write is
//	recorded in order so callers can assert programming sequences.
//
// Thread Safety: Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	words   map[Address]uint32
	aliases map[Address]alias
	writes  []Access
	reads   []Address
}

// NewMemory creates an empty register file. Unwritten words read as zero.
func NewMemory() *Memory {
	return &Memory{
		words:   make(map[Address]uint32),
		aliases: make(map[Address]alias),
	}
}

// AddSetClearAlias registers a pair of alias registers for target.
//
// Writing mask to setOffset ORs mask into target; writing mask to
// clearOffset clears those bits. Both aliases read as zero.
func (m *Memory) AddSetClearAlias(block Block, setOffset, clearOffset, targetOffset uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target := Address{Block: block, Offset: targetOffset}
	m.aliases[Address{Block: block, Offset: setOffset}] = alias{kind: aliasSet, target: target}
	m.aliases[Address{Block: block, Offset: clearOffset}] = alias{kind: aliasClear, target: target}
}

// Read implements Port.
func (m *Memory) Read(block Block, offset uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := Address{Block: block, Offset: offset}
	m.reads = append(m.reads, addr)
	if _, ok := m.aliases[addr]; ok {
		return 0
	}
	return m.words[addr]
}

// Write implements Port.
func (m *Memory) Write(block Block, offset uint32, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr := Address{Block: block, Offset: offset}
	m.writes = append(m.writes, Access{Address: addr, Value: value})
	if a, ok := m.aliases[addr]; ok {
		switch a.kind {
		case aliasSet:
			m.words[a.target] |= value
		case aliasClear:
			m.words[a.target] &^= value
		}
		return
	}
	m.words[addr] = value
}

// Poke stores a value without recording it in the write log.
func (m *Memory) Poke(block Block, offset uint32, value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words[Address{Block: block, Offset: offset}] = value
}

// Peek returns a value without recording a read.
func (m *Memory) Peek(block Block, offset uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[Address{Block: block, Offset: offset}]
}

// Writes returns a copy of the write log.
func (m *Memory) Writes() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Access, len(m.writes))
	copy(out, m.writes)
	return out
}

// Reads returns a copy of the read log.
func (m *Memory) Reads() []Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Address, len(m.reads))
	copy(out, m.reads)
	return out
}

// ResetLog clears the read and write logs.
func (m *Memory) ResetLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
	m.reads = nil
}

// =============================================================================
// Register images
// =============================================================================

// Hex is a uint32 that marshals to YAML as a 0x-prefixed string.
type Hex uint32

// MarshalYAML implements yaml.Marshaler.
func (h Hex) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("0x%08x", uint32(h)), nil
}

// UnmarshalYAML implements yaml.Unmarshaler. Decimal and 0x forms are accepted.
func (h *Hex) UnmarshalYAML(node *yaml.Node) error {
	v, err := strconv.ParseUint(node.Value, 0, 32)
	if err != nil {
		return fmt.Errorf("line %d: invalid register value %q: %w", node.Line, node.Value, err)
	}
	*h = Hex(v)
	return nil
}

// Word is one register in an image.
type Word struct {
	Block  string `yaml:"block"`
	Offset Hex    `yaml:"offset"`
	Value  Hex    `yaml:"value"`
}

// Image is a serializable register file.
type Image struct {
	Registers []Word `yaml:"registers"`
}

// Image returns the current contents as a sorted Image.
func (m *Memory) Image() Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	img := Image{Registers: make([]Word, 0, len(m.words))}
	for addr, v := range m.words {
		img.Registers = append(img.Registers, Word{
			Block:  addr.Block.String(),
			Offset: Hex(addr.Offset),
			Value:  Hex(v),
		})
	}
	sort.Slice(img.Registers, func(i, j int) bool {
		a, b := img.Registers[i], img.Registers[j]
		if a.Block != b.Block {
			return a.Block < b.Block
		}
		return a.Offset < b.Offset
	})
	return img
}

// LoadImage replaces the register contents with img. Logs are not touched.
func (m *Memory) LoadImage(img Image) error {
	words := make(map[Address]uint32, len(img.Registers))
	for _, w := range img.Registers {
		b, err := ParseBlock(w.Block)
		if err != nil {
			return err
		}
		words[Address{Block: b, Offset: uint32(w.Offset)}] = uint32(w.Value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words = words
	return nil
}

// SaveFile writes the register image to path as YAML.
func (m *Memory) SaveFile(path string) error {
	data, err := yaml.Marshal(m.Image())
	if err != nil {
		return fmt.Errorf("marshal register image: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("write register image %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a YAML register image from path.
func (m *Memory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read register image %s: %w", path, err)
	}
	var img Image
	if err := yaml.Unmarshal(data, &img); err != nil {
		return fmt.Errorf("parse register image %s: %w", path, err)
	}
	return m.LoadImage(img)
}

var _ Port = (*Memory)(nil)
