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
	"log/slog"
	"slices"
)

// applySKULimits lowers or raises clock ceilings for the running SKU.
//
// A limit naming an unknown clock is logged and skipped.
func (g *Graph) applySKULimits() {
	sku := g.platform.SKU
	for _, l := range g.skuLimits {
		if !slices.Contains(l.SKUs, sku) {
			continue
		}
		c, ok := g.byName[l.Clock]
		if !ok {
			g.logger.Error("SKU limit for unknown clock",
				slog.String("clock", l.Clock),
				slog.String("sku", skuString(sku)))
			continue
		}
		c.max = l.MaxRate
		g.logger.Debug("applied SKU limit",
			slog.String("clock", c.name),
			slog.Uint64("max_rate", c.max),
			slog.String("sku", skuString(sku)))
	}
}

// SKULimits returns the limits that apply to the running SKU.
func (g *Graph) SKULimits() []SKULimit {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []SKULimit
	for _, l := range g.skuLimits {
		if slices.Contains(l.SKUs, g.platform.SKU) {
			out = append(out, l)
		}
	}
	return out
}

func skuString(sku uint32) string {
	return fmt.Sprintf("0x%02x", sku)
}
