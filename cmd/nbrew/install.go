package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/the-maldridge/nbrew/pkg/builder"
	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/types"
)

func (c *cli) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <formula...>",
		Short: "Download and verify sources and resources into the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs := make(map[string]types.Source)
			for _, n := range args {
				f, err := c.tap().Load(n)
				if err != nil {
					return err
				}
				srcs[f.Name] = f.Source
				for _, r := range f.Resources {
					srcs[f.Name+"--"+r.Name] = r.Source
				}
			}
			fetcher := fetch.New(c.l, c.cfg.Cache, fetch.WithJobs(c.cfg.Jobs))
			paths, err := fetcher.FetchAll(cmd.Context(), srcs)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(paths))
			for n := range paths {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", n, paths[n])
			}
			return nil
		},
	}
}

func (c *cli) installCmd() *cobra.Command {
	var opts builder.Options
	cmd := &cobra.Command{
		Use:   "install <formula...>",
		Short: "Install formulae and their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.graph()
			if err != nil {
				return err
			}
			roots, err := canonical(g, args)
			if err != nil {
				return err
			}
			// Only the named formulae are installed from head.
			depOpts := opts
			depOpts.Head = false
			isRoot := make(map[string]bool, len(roots))
			for _, r := range roots {
				isRoot[r] = true
			}
			b := c.builder(cmd)
			// Build dependencies are followed for every formula
			// that will be compiled here rather than poured.
			fromSource := func(name string) bool {
				f, err := c.tap().Load(name)
				if err != nil {
					return true
				}
				if isRoot[name] {
					return b.WillBuild(f, opts)
				}
				return b.WillBuild(f, depOpts)
			}
			levels, err := g.InstallLevels(roots, fromSource)
			if err != nil {
				return err
			}
			if opts.Head {
				levels = without(levels, roots)
			}
			if err := b.InstallAll(cmd.Context(), levels, c.tap().Load, c.cfg.Jobs, depOpts); err != nil {
				return err
			}
			for _, r := range roots {
				f, err := c.tap().Load(r)
				if err != nil {
					return err
				}
				keg, err := b.Install(cmd.Context(), f, opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), keg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&opts.BuildFromSource, "build-from-source", "s", false, "never pour bottles")
	cmd.Flags().BoolVar(&opts.Head, "head", false, "install the head source of the named formulae")
	cmd.Flags().BoolVar(&opts.KeepTmp, "keep-tmp", false, "keep the build directory")
	return cmd
}

func without(levels [][]string, names []string) [][]string {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	var out [][]string
	for _, l := range levels {
		var kept []string
		for _, n := range l {
			if _, ok := drop[n]; !ok {
				kept = append(kept, n)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

func (c *cli) testCmd() *cobra.Command {
	var head bool
	cmd := &cobra.Command{
		Use:   "test <formula...>",
		Short: "Run the tests of installed formulae",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := c.builder(cmd)
			for _, n := range args {
				f, err := c.tap().Load(n)
				if err != nil {
					return err
				}
				if err := b.Test(cmd.Context(), f, head); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", f.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&head, "head", false, "test the head keg")
	return cmd
}
