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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/clocktree/services/clocktree/tree"
)

func newTreeCmd(a *app) *cobra.Command {
	var asJSON, onlyOn bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the clock tree with rates and states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var infos []tree.Info
			var depths []int
			a.g.Walk(func(depth int, info tree.Info) {
				if onlyOn && info.State != tree.StateOn {
					return
				}
				infos = append(infos, info)
				depths = append(depths, depth)
			})
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			rows := make([][]string, 0, len(infos))
			for i, info := range infos {
				rows = append(rows, []string{
					strings.Repeat("  ", depths[i]) + info.Name,
					info.Kind.String(),
					a.out.State(info.State.String()),
					strconv.Itoa(info.Refcount),
					a.out.Rate(formatHz(info.Rate)),
				})
			}
			return a.out.Table([]string{"CLOCK", "KIND", "STATE", "REFS", "RATE"}, rows)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&onlyOn, "on", false, "only clocks that are running")
	return cmd
}

func newRateCmd(a *app) *cobra.Command {
	var dev, con string
	var round string
	cmd := &cobra.Command{
		Use:   "rate [clock]",
		Short: "Show one clock's rate, parent and bounds",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				c   *tree.Clock
				err error
			)
			switch {
			case len(args) == 1:
				c, err = a.lookup(args[0])
			case dev != "" || con != "":
				c, err = a.g.LookupDevice(dev, con)
			default:
				return fmt.Errorf("name a clock or pass --dev/--con")
			}
			if err != nil {
				return err
			}
			info := a.g.Info(c)
			p := a.out
			p.Result(info.Name, "%s (%d Hz) %s", p.Rate(formatHz(info.Rate)), info.Rate, p.State(info.State.String()))
			if info.Parent != "" {
				p.Field("parent", info.Parent)
			}
			p.Field("bounds", formatHz(info.MinRate)+" .. "+formatHz(info.MaxRate))
			if round != "" {
				want, err := parseRate(round)
				if err != nil {
					return err
				}
				got, err := a.g.RoundRate(cmd.Context(), c, want)
				if err != nil {
					return err
				}
				p.Field("round("+formatHz(want)+")", p.Rate(formatHz(got)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dev, "dev", "", "consumer device name")
	cmd.Flags().StringVar(&con, "con", "", "consumer connection name")
	cmd.Flags().StringVar(&round, "round", "", "also report the rate this request would round to")
	return cmd
}

func newSetRateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-rate <clock> <rate>",
		Short: "Program a clock's rate (Hz, or k/M/G suffix)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			rate, err := parseRate(args[1])
			if err != nil {
				return err
			}
			a.markDirty()
			if err := a.g.SetRate(cmd.Context(), c, rate); err != nil {
				return err
			}
			a.out.Result(c.Name(), "%s", a.out.Rate(formatHz(a.g.Rate(c))))
			return nil
		},
	}
}

func newSetParentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-parent <clock> <parent>",
		Short: "Switch a clock to another input",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			p, err := a.lookup(args[1])
			if err != nil {
				return err
			}
			a.markDirty()
			if err := a.g.SetParent(cmd.Context(), c, p); err != nil {
				return err
			}
			a.out.Result(c.Name(), "parent %s, %s", p.Name(), a.out.Rate(formatHz(a.g.Rate(c))))
			return nil
		},
	}
}

func newEnableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <clock>",
		Short: "Take an enable reference on a clock and its ancestors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			a.markDirty()
			if err := a.g.Enable(cmd.Context(), c); err != nil {
				return err
			}
			a.out.Result(c.Name(), "%s, refcount %d", a.out.State(a.g.State(c).String()), a.g.Refcount(c))
			return nil
		},
	}
}

func newDisableCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <clock>",
		Short: "Drop an enable reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			if c.Critical() {
				return fmt.Errorf("%s must never be disabled", c.Name())
			}
			if a.g.Refcount(c) == 0 {
				return fmt.Errorf("%s holds no enable references", c.Name())
			}
			a.markDirty()
			a.g.Disable(cmd.Context(), c)
			a.out.Result(c.Name(), "%s, refcount %d", a.out.State(a.g.State(c).String()), a.g.Refcount(c))
			return nil
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	var deassert bool
	cmd := &cobra.Command{
		Use:   "reset <clock>",
		Short: "Assert (or with --deassert release) a module reset line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			a.markDirty()
			if err := a.g.Reset(cmd.Context(), c, !deassert); err != nil {
				return err
			}
			state := "asserted"
			if deassert {
				state = "released"
			}
			a.out.Result(c.Name(), "reset %s", state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&deassert, "deassert", false, "release the reset instead of asserting it")
	return cmd
}

func newVoteCmd(a *app) *cobra.Command {
	var drop bool
	cmd := &cobra.Command{
		Use:   "vote <user> [rate]",
		Short: "Cast a shared bus vote and show the resulting bus rate",
		Long: `Cast a shared bus vote and show the resulting bus rate.

Votes are saved next to the register image and replayed on the next
invocation, so a vote holds until it is dropped with --drop.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			if u.Kind() != tree.KindSharedBusUser {
				return fmt.Errorf("%s is not a shared bus user", u.Name())
			}
			ctx := cmd.Context()
			a.markDirty()
			switch {
			case drop:
				if len(args) == 2 {
					return fmt.Errorf("--drop takes no rate")
				}
				if a.g.Refcount(u) > 0 {
					a.g.Disable(ctx, u)
				}
				// A dropped vote no longer asks for anything.
				_, max := a.g.Bounds(u)
				if err := a.g.SetRate(ctx, u, max); err != nil {
					return err
				}
			default:
				if len(args) == 2 {
					rate, err := parseRate(args[1])
					if err != nil {
						return err
					}
					if err := a.g.SetRate(ctx, u, rate); err != nil {
						return err
					}
				}
				if a.g.Refcount(u) == 0 {
					if err := a.g.Enable(ctx, u); err != nil {
						return err
					}
				}
			}
			bus := a.g.Parent(u)
			votes, err := a.g.SharedBusUsers(bus)
			if err != nil {
				return err
			}
			a.out.Result(bus.Name(), "%s", a.out.Rate(formatHz(a.g.Rate(bus))))
			var rows [][]string
			for _, v := range votes {
				if v.Enabled {
					rows = append(rows, []string{v.Name, a.out.Rate(formatHz(v.Rate))})
				}
			}
			if len(rows) == 0 {
				a.out.Line(a.out.Muted("no votes"))
				return nil
			}
			return a.out.Table([]string{"USER", "RATE"}, rows)
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "withdraw the vote")
	return cmd
}
