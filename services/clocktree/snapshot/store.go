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
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	store "github.com/AleutianAI/clocktree/services/clocktree/storage/badger"
)

// ErrNotFound is returned when no snapshot has the requested ID.
var ErrNotFound = errors.New("snapshot not found")

const keyPrefix = "snapshot/"

// Summary describes a stored snapshot without its words.
type Summary struct {
	ID      string
	Label   string
	Board   string
	Created time.Time
	Words   int
}

// Store persists snapshots in BadgerDB keyed by ID.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *store.DB
}

// NewStore wraps an open database. The caller keeps ownership of db.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

// Save writes s, replacing any snapshot with the same ID.
//
// Outputs:
//
//	error - Non-nil if the ID is not a UUID or the write fails.
func (st *Store) Save(ctx context.Context, s *Snapshot) error {
	if _, err := uuid.Parse(s.ID); err != nil {
		return fmt.Errorf("snapshot id %q: %w", s.ID, err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", s.ID, err)
	}
	return st.db.Update(ctx, func(txn *badger.Txn) error {
		return txn.Set(key(s.ID), data)
	})
}

// Load returns the snapshot with the given ID.
func (st *Store) Load(ctx context.Context, id string) (*Snapshot, error) {
	var data []byte
	err := st.db.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// List returns every stored snapshot, oldest first.
func (st *Store) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := st.db.Scan(ctx, []byte(keyPrefix), func(_, value []byte) error {
		s, err := decode(value)
		if err != nil {
			return err
		}
		out = append(out, Summary{
			ID:      s.ID,
			Label:   s.Label,
			Board:   s.Board,
			Created: s.Created,
			Words:   len(s.Words),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

// Latest returns the most recently created snapshot.
func (st *Store) Latest(ctx context.Context) (*Snapshot, error) {
	all, err := st.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return st.Load(ctx, all[len(all)-1].ID)
}

// Delete removes the snapshot with the given ID.
func (st *Store) Delete(ctx context.Context, id string) error {
	return st.db.Update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(key(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		return txn.Delete(key(id))
	})
}
