// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package board

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// BuiltinTegra2 names the compiled-in Tegra2 board.
const BuiltinTegra2 = "tegra2"

// ErrUnknownBoard is returned when a board name is neither built in nor
// a readable file.
var ErrUnknownBoard = errors.New("unknown board")

// Load returns the built-in topology called name, or reads a YAML board
// file when name is a path.
func Load(name string) (tree.Topology, error) {
	if name == BuiltinTegra2 {
		return Tegra2(), nil
	}
	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tree.Topology{}, fmt.Errorf("%w: %s", ErrUnknownBoard, name)
		}
		return tree.Topology{}, fmt.Errorf("opening board file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML topology and validates it. Unknown fields are
// rejected.
func Decode(r io.Reader) (tree.Topology, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var topo tree.Topology
	if err := dec.Decode(&topo); err != nil {
		return tree.Topology{}, fmt.Errorf("decoding board: %w", err)
	}
	if err := topo.Validate(); err != nil {
		return tree.Topology{}, err
	}
	return topo, nil
}

// Encode writes topo as YAML.
func Encode(w io.Writer, topo tree.Topology) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(topo); err != nil {
		return fmt.Errorf("encoding board: %w", err)
	}
	return enc.Close()
}

// Save writes topo to path.
func Save(path string, topo tree.Topology) error {
	var buf bytes.Buffer
	if err := Encode(&buf, topo); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing board file: %w", err)
	}
	return nil
}
