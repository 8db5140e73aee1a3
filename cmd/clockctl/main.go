// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command clockctl drives a simulated system-on-chip clock controller.
//
// The register file lives in a YAML image between invocations, so
// programming a rate in one run is visible to the next:
//
//	clockctl set-rate sdmmc1 52M
//	clockctl tree
//	clockctl suspend --label before-dvfs
//	clockctl stress --iterations 20
//	clockctl resume
package main

import (
	"io"
	"os"

	"github.com/AleutianAI/clocktree/pkg/ux"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes one clockctl invocation.
func run(args []string, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if err != nil {
		level, perr := ux.ParseLevel(a.outputFlag)
		if perr != nil {
			level = ux.LevelMachine
		}
		ux.NewPrinter(stderr, level).Error(err)
	}
	return err
}
