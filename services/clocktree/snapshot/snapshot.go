// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
)

// Word is one captured register.
type Word struct {
	Block  regs.Block `yaml:"block"`
	Offset regs.Hex   `yaml:"offset"`
	Value  regs.Hex   `yaml:"value"`
}

// Snapshot is the register state captured before a power-down.
type Snapshot struct {
	ID      string    `yaml:"id"`
	Label   string    `yaml:"label,omitempty"`
	Board   string    `yaml:"board,omitempty"`
	Created time.Time `yaml:"created"`
	Words   []Word    `yaml:"words"`
}

func (s *Snapshot) index() map[regs.Address]uint32 {
	m := make(map[regs.Address]uint32, len(s.Words))
	for _, w := range s.Words {
		m[regs.Address{Block: w.Block, Offset: uint32(w.Offset)}] = uint32(w.Value)
	}
	return m
}

// Capture reads every captured word of the plan.
//
// Description:
//
//	Masked entries keep only their masked bits. The caller must keep
//	clock operations out while capturing, normally by running Capture
//	inside Graph.WithRegisters.
//
// Inputs:
//
//	port - The register port.
//	p - The plan.
//
// Outputs:
//
//	*Snapshot - The captured words with a fresh ID.
func Capture(port regs.Port, p *Plan) *Snapshot {
	s := &Snapshot{
		ID:      uuid.NewString(),
		Created: time.Now().UTC(),
		Words:   make([]Word, 0, p.Words()),
	}
	for _, e := range p.Entries {
		if !e.Captured() {
			continue
		}
		v := port.Read(e.Block, e.Offset)
		if e.Mode == Masked {
			v &= e.Bits
		}
		s.Words = append(s.Words, Word{Block: e.Block, Offset: regs.Hex(e.Offset), Value: regs.Hex(v)})
	}
	return s
}

// Restore writes a snapshot back in plan order.
//
// Description:
//
//	Every entry is written in order. Forced entries are written with
//	their bits set, and their saved values are written again in plan
//	order after the last entry. Settle delays go through delay.
//
// Inputs:
//
//	ctx - Checked before the first write. Cancellation mid-sequence is
//	      ignored since a half-restored controller is worse than a slow one.
//	port - The register port.
//	p - The plan the snapshot was captured with.
//	s - The snapshot.
//	delay - Waits for settle times. Nil skips waiting.
//	logger - Optional.
//
// Outputs:
//
//	error - ErrIncomplete if s lacks a captured word; nothing is written.
func Restore(ctx context.Context, port regs.Port, p *Plan, s *Snapshot, delay func(time.Duration), logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	saved := s.index()
	for _, e := range p.Entries {
		if _, ok := saved[e.Address]; e.Captured() && !ok {
			return fmt.Errorf("%w: %s at %#x", ErrIncomplete, e.Name, e.Offset)
		}
	}
	if delay == nil {
		delay = func(time.Duration) {}
	}

	var deferred []Entry
	for _, e := range p.Entries {
		v := saved[e.Address]
		switch e.Mode {
		case Masked:
			v = port.Read(e.Block, e.Offset)&^e.Bits | v&e.Bits
		case Forced:
			v |= e.Bits
			deferred = append(deferred, e)
		case Constant:
			v = e.Bits
		}
		port.Write(e.Block, e.Offset, v)
		if e.Settle > 0 {
			delay(e.Settle)
		}
	}
	for _, e := range deferred {
		port.Write(e.Block, e.Offset, saved[e.Address])
	}

	if logger != nil {
		logger.Info("clock registers restored",
			slog.String("snapshot", s.ID),
			slog.Int("words", len(s.Words)))
	}
	return nil
}
