// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package board holds chip descriptions for the clock tree.
//
// A board is a tree.Topology plus the register state a bootloader hands
// over and the platform collaborators the engine consults: the crystal,
// the pin mux and the memory controller. The Tegra2 board is compiled
// in; others load from YAML files with the same schema that Encode
// writes.
package board
