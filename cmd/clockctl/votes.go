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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/clocktree/services/clocktree/config"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

// voteFile is the YAML document holding shared bus votes between
// invocations.
type voteFile struct {
	Votes []tree.Vote `yaml:"votes"`
}

// votesPath returns the vote file kept next to the register image.
func votesPath(cfg config.Config) string {
	base := strings.TrimSuffix(cfg.Registers, filepath.Ext(cfg.Registers))
	return base + ".votes.yaml"
}

// loadVotes reads path. A missing file holds no votes.
func loadVotes(path string) ([]tree.Vote, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read votes %s: %w", path, err)
	}
	var f voteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse votes %s: %w", path, err)
	}
	return f.Votes, nil
}

// saveVotes writes votes to path, removing the file when there are none.
func saveVotes(path string, votes []tree.Vote) error {
	if len(votes) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	data, err := yaml.Marshal(voteFile{Votes: votes})
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("write votes %s: %w", path, err)
	}
	return nil
}

// collectVotes returns every shared bus user that is enabled or asks for
// less than its maximum, sorted by name.
func collectVotes(g *tree.Graph) ([]tree.Vote, error) {
	users := map[string]*tree.Clock{}
	var buses []*tree.Clock
	seen := map[*tree.Clock]bool{}
	for _, c := range g.Clocks() {
		if c.Kind() != tree.KindSharedBusUser {
			continue
		}
		users[c.Name()] = c
		if bus := g.Parent(c); bus != nil && !seen[bus] {
			seen[bus] = true
			buses = append(buses, bus)
		}
	}

	var votes []tree.Vote
	for _, bus := range buses {
		all, err := g.SharedBusUsers(bus)
		if err != nil {
			return nil, err
		}
		for _, v := range all {
			_, max := g.Bounds(users[v.Name])
			if v.Enabled || v.Rate != max {
				votes = append(votes, v)
			}
		}
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].Name < votes[j].Name })
	return votes, nil
}

// replayVotes applies saved votes to a freshly initialized graph. Votes
// naming clocks the board does not have are skipped.
func replayVotes(ctx context.Context, g *tree.Graph, votes []tree.Vote, logger *slog.Logger) error {
	for _, v := range votes {
		u, err := g.Lookup(v.Name)
		if err != nil || u.Kind() != tree.KindSharedBusUser {
			logger.Warn("skipping saved vote", slog.String("user", v.Name))
			continue
		}
		if _, max := g.Bounds(u); v.Rate != max {
			if err := g.SetRate(ctx, u, v.Rate); err != nil {
				return fmt.Errorf("replay vote %s: %w", v.Name, err)
			}
		}
		if v.Enabled {
			if err := g.Enable(ctx, u); err != nil {
				return fmt.Errorf("replay vote %s: %w", v.Name, err)
			}
		}
	}
	return nil
}
