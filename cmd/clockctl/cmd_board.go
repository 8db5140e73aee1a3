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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/clocktree/services/clocktree/board"
)

func newDumpBoardCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:         "dump-board",
		Short:       "Write the configured board topology as YAML",
		Long:        "Write the configured board topology as YAML. The output can be edited and used as the board setting.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotSoC: "none"},
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := board.Load(a.cfg.Board)
			if err != nil {
				return err
			}
			if out == "" {
				return board.Encode(cmd.OutOrStdout(), topo)
			}
			if err := board.Save(out, topo); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d clocks to %s\n", len(topo.Clocks), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to a file instead of stdout")
	return cmd
}
