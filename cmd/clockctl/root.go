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
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "clockctl",
		Short: "Inspect and program a simulated SoC clock tree",
		Long: `clockctl boots a simulated Tegra2-class clock controller from a
register image, applies one clock operation and saves the image back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.clocktree/clockctl.yaml)")
	root.PersistentFlags().Uint32Var(&a.skuFlag, "sku", 0, "override the configured SKU")
	root.PersistentFlags().StringVar(&a.boardFlag, "board", "", "override the configured board")
	root.PersistentFlags().StringVar(&a.outputFlag, "output", "auto", "output style: auto, standard, minimal or machine")

	root.AddCommand(
		newTreeCmd(a),
		newRateCmd(a),
		newSetRateCmd(a),
		newSetParentCmd(a),
		newEnableCmd(a),
		newDisableCmd(a),
		newResetCmd(a),
		newVoteCmd(a),
		newSuspendCmd(a),
		newResumeCmd(a),
		newSnapshotsCmd(a),
		newServeCmd(a),
		newStressCmd(a),
		newDumpBoardCmd(a),
	)
	return root
}
