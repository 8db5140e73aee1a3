// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseRate verifies unit suffixes and rejects malformed input.
func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"12000000", 12_000_000},
		{"32.768k", 32_768},
		{"32768Hz", 32_768},
		{"52M", 52_000_000},
		{"1.2G", 1_200_000_000},
		{"11.2896MHz", 11_289_600},
		{" 216M ", 216_000_000},
	}
	for _, tt := range tests {
		got, err := parseRate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "fast", "-1M", "1.5", "M"} {
		_, err := parseRate(bad)
		assert.Error(t, err, bad)
	}
}

// TestFormatHz verifies unit selection and trailing zero trimming.
func TestFormatHz(t *testing.T) {
	assert.Equal(t, "0 Hz", formatHz(0))
	assert.Equal(t, "32.768 kHz", formatHz(32_768))
	assert.Equal(t, "216 MHz", formatHz(216_000_000))
	assert.Equal(t, "11.2896 MHz", formatHz(11_289_600))
	assert.Equal(t, "1.2 GHz", formatHz(1_200_000_000))
}
