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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/clocktree/services/clocktree/regs"
	"github.com/AleutianAI/clocktree/services/clocktree/snapshot"
	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

func newSuspendCmd(a *app) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "suspend",
		Short: "Capture the clock controller registers into the snapshot store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := snapshot.NewPlan(a.g)
			if err != nil {
				return err
			}
			var snap *snapshot.Snapshot
			a.g.WithRegisters(func(port regs.Port) {
				snap = snapshot.Capture(port, plan)
			})
			snap.Label = label
			snap.Board = a.cfg.Board

			st, err := a.snapshots()
			if err != nil {
				return err
			}
			if err := st.Save(cmd.Context(), snap); err != nil {
				return err
			}
			a.log.Info("clock registers captured", "snapshot", snap.ID, "words", len(snap.Words))
			a.out.Line(snap.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "free-form label stored with the snapshot")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume [snapshot-id]",
		Short: "Write a snapshot back in resume order (latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.snapshots()
			if err != nil {
				return err
			}
			var snap *snapshot.Snapshot
			if len(args) == 1 {
				snap, err = st.Load(ctx, args[0])
			} else {
				snap, err = st.Latest(ctx)
			}
			if err != nil {
				return err
			}
			plan, err := snapshot.NewPlan(a.g)
			if err != nil {
				return err
			}

			a.markDirty()
			delay := tree.ScaledDelay(a.cfg.LockDelayScale)
			a.g.WithRegisters(func(port regs.Port) {
				err = snapshot.Restore(ctx, port, plan, snap, delay, a.log.Slog())
			})
			if err != nil {
				return err
			}
			a.out.Line("restored " + snap.ID + " " + a.out.Muted("("+strconv.Itoa(len(snap.Words))+" words)"))
			return nil
		},
	}
}

func newSnapshotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "snapshots",
		Short:       "List stored snapshots",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotSoC: "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.snapshots()
			if err != nil {
				return err
			}
			all, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(all) == 0 {
				a.out.Line(a.out.Muted("no snapshots"))
				return nil
			}
			rows := make([][]string, 0, len(all))
			for _, s := range all {
				rows = append(rows, []string{s.ID, a.out.Muted(s.Created.Local().Format(time.DateTime)), strconv.Itoa(s.Words), s.Label})
			}
			return a.out.Table([]string{"ID", "CREATED", "WORDS", "LABEL"}, rows)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:         "delete <snapshot-id>",
		Short:       "Delete a stored snapshot",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{annotSoC: "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.snapshots()
			if err != nil {
				return err
			}
			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.out.Line("deleted " + args[0])
			return nil
		},
	})
	return cmd
}
