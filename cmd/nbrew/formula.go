package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/the-maldridge/nbrew/pkg/bottle"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/types"
)

func (c *cli) lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint [formula...]",
		Short: "Check formulae for problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := c.tap().Names()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				want := make(map[string]string, len(args))
				for _, a := range args {
					p, ok := names[a]
					if !ok {
						return errors.Wrap(formula.ErrNoSuchFormula, a)
					}
					want[a] = p
				}
				names = want
			}

			sorted := make([]string, 0, len(names))
			for n := range names {
				sorted = append(sorted, n)
			}
			sort.Strings(sorted)

			out := cmd.OutOrStdout()
			problems := 0
			for _, n := range sorted {
				f, err := formula.Load(filepath.Join(c.cfg.TapPath, filepath.FromSlash(names[n])))
				if err != nil {
					fmt.Fprintf(out, "%s: %v\n", n, err)
					problems++
					continue
				}
				for _, err := range formula.Validate(f, n) {
					fmt.Fprintf(out, "%s: %v\n", n, err)
					problems++
				}
			}
			if problems > 0 {
				return errors.Errorf("%d problems in %d formulae", problems, len(sorted))
			}
			fmt.Fprintf(out, "%d formulae ok\n", len(sorted))
			return nil
		},
	}
}

func (c *cli) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <formula>",
		Short: "Show what is known about a formula",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.graph()
			if err != nil {
				return err
			}
			names, err := canonical(g, args)
			if err != nil {
				return err
			}
			f, err := c.tap().Load(names[0])
			if err != nil {
				return err
			}
			pkgver, err := formula.PkgVer(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", f.Name, pkgver)
			fmt.Fprintln(out, f.Desc)
			fmt.Fprintln(out, f.Homepage)
			if f.License != "" {
				fmt.Fprintf(out, "License: %s\n", f.License)
			}
			if f.KegOnly != "" {
				fmt.Fprintf(out, "Keg-only: %s\n", f.KegOnly)
			}
			if msg, ok := formula.Deprecation(f); ok {
				fmt.Fprintln(out, msg)
			}
			if f.Disabled != nil {
				fmt.Fprintf(out, "Disabled: %s\n", f.Disabled.Because)
			}

			p := c.host()
			for _, kind := range []string{types.DepBuild, types.DepRun, types.DepTest} {
				deps := formula.Dependencies(f, p, kind)
				if len(deps) == 0 {
					continue
				}
				dn := make([]string, len(deps))
				for i, d := range deps {
					dn[i] = d.Name
				}
				fmt.Fprintf(out, "Depends (%s): %s\n", kind, strings.Join(dn, ", "))
			}

			if tag, _, err := bottle.Select(f, p); err == nil {
				fmt.Fprintf(out, "Bottle: %s\n", tag)
			} else {
				fmt.Fprintln(out, "Bottle: none")
			}

			kegs, err := c.builder(cmd).Installed(f.Name)
			if err != nil {
				return err
			}
			if len(kegs) == 0 {
				fmt.Fprintln(out, "Not installed")
			}
			for _, k := range kegs {
				keg := filepath.Join(c.cfg.Cellar, f.Name, k)
				size, err := dirSize(keg)
				if err != nil {
					return err
				}
				line := fmt.Sprintf("%s (%s)", keg, humanize.Bytes(uint64(size)))
				if r, err := c.builder(cmd).Receipt(f.Name, k); err == nil {
					how := "built from source"
					if r.PouredFromBottle {
						how = "poured from bottle"
					}
					line += fmt.Sprintf(", %s %s", how, humanize.Time(r.InstalledAt))
				}
				fmt.Fprintln(out, line)
			}
			if f.Caveats != "" {
				fmt.Fprintf(out, "Caveats:\n%s\n", f.Caveats)
			}
			return nil
		},
	}
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			st, err := os.Lstat(p)
			if err != nil {
				return err
			}
			total += st.Size()
		}
		return nil
	})
	return total, err
}

func kindsFlag(cmd *cobra.Command, def string) *string {
	return cmd.Flags().String("kinds", def, "dependency kinds to follow (build,run,test)")
}

func splitKinds(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (c *cli) depsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps <formula...>",
		Short: "List the dependencies of formulae in install order",
		Args:  cobra.MinimumNArgs(1),
	}
	kinds := kindsFlag(cmd, "build,run")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		g, err := c.graph()
		if err != nil {
			return err
		}
		roots, err := canonical(g, args)
		if err != nil {
			return err
		}
		order, err := g.Order(roots, splitKinds(*kinds)...)
		if err != nil {
			return err
		}
		self := make(map[string]struct{}, len(roots))
		for _, r := range roots {
			self[r] = struct{}{}
		}
		for _, n := range order {
			if _, ok := self[n]; !ok {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		}
		return nil
	}
	return cmd
}

func (c *cli) orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order <formula...>",
		Short: "Show the levels formulae would be installed in",
		Args:  cobra.MinimumNArgs(1),
	}
	kinds := kindsFlag(cmd, "build,run")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		g, err := c.graph()
		if err != nil {
			return err
		}
		roots, err := canonical(g, args)
		if err != nil {
			return err
		}
		levels, err := g.Levels(roots, splitKinds(*kinds)...)
		if err != nil {
			return err
		}
		for i, l := range levels {
			fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, strings.Join(l, " "))
		}
		return nil
	}
	return cmd
}

func (c *cli) usesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uses <formula>",
		Short: "List the formulae that depend on a formula",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.graph()
			if err != nil {
				return err
			}
			names, err := canonical(g, args)
			if err != nil {
				return err
			}
			for _, n := range g.Dependents(names[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func (c *cli) leavesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaves",
		Short: "List the formulae that nothing depends on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.graph()
			if err != nil {
				return err
			}
			for _, n := range g.Leaves() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
