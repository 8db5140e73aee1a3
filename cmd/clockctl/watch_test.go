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
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/clocktree/pkg/logging"
)

// TestFileWatcher_Debounce verifies a burst of writes to a watched file is
// delivered once and other files in the directory are ignored.
func TestFileWatcher_Debounce(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "registers.yaml")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0640))

	got := make(chan []string, 4)
	w, err := newFileWatcher([]string{watched}, 50*time.Millisecond, discardLog(),
		func(_ context.Context, paths []string) { got <- paths })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0640))
	for i := range 3 {
		require.NoError(t, os.WriteFile(watched, []byte{byte('b' + i)}, 0640))
	}

	select {
	case paths := <-got:
		assert.Equal(t, []string{watched}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}

	select {
	case paths := <-got:
		t.Fatalf("unexpected second delivery: %v", paths)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestFileWatcher_Stop verifies Stop is idempotent and ends delivery.
func TestFileWatcher_Stop(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "clockctl.yaml")

	got := make(chan []string, 1)
	w, err := newFileWatcher([]string{watched}, 10*time.Millisecond, discardLog(),
		func(_ context.Context, paths []string) { got <- paths })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()

	require.NoError(t, os.WriteFile(watched, []byte("x"), 0640))
	select {
	case paths := <-got:
		t.Fatalf("delivery after Stop: %v", paths)
	case <-time.After(100 * time.Millisecond):
	}
}

func discardLog() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelError, Output: io.Discard})
}
