// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree models a system-on-chip clock tree and the operations that
// program it.
//
// The tree package contains the clock node arena (Graph), the per-kind
// operation engine (oscillators, PLLs, dividers, muxes, gated peripheral
// clocks, composite clocks) and the shared-bus aggregator that combines
// rate votes from many consumers into one physical bus rate.
//
// # Ownership Model
//
// A Graph owns every Clock. Clocks are created once by New from a static
// Topology and live as long as the Graph. Callers hold *Clock handles
// obtained from Lookup but must only mutate them through Graph methods.
// Parent links, candidate inputs and shared-bus memberships are plain
// pointers or arena indices into the same Graph; nothing refers across
// graphs.
//
// # Thread Safety
//
// Every public Graph operation holds the tree lock end-to-end, so enable
// refcounts, parent links and shared-bus recomputes are consistent across
// concurrent callers. Register read-modify-write sequences additionally
// take the register lock in regs.Bank, and only for the single word being
// updated. PLL lock delays are busy-waits performed under the tree lock
// but never under the register lock.
//
// # Lifecycle
//
//  1. Build with New(topology, port, options)
//  2. Call InitializeAll to read hardware state into the model
//  3. Use Lookup/LookupDevice and the Enable, SetRate, SetParent family
package tree
