package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/the-maldridge/nbrew/pkg/bottle"
	"github.com/the-maldridge/nbrew/pkg/service"
)

func (c *cli) serviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "service <formula>",
		Short: "Print the service descriptor of a formula for this platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.tap().Load(args[0])
			if err != nil {
				return err
			}
			keg, err := c.builder(cmd).KegPath(f, false)
			if err != nil {
				return err
			}
			b, err := service.Render(f, keg, c.host())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func (c *cli) bottleCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "bottle <formula>",
		Short: "Pack the newest installed keg of a formula into a bottle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.tap().Load(args[0])
			if err != nil {
				return err
			}
			kegs, err := c.builder(cmd).Installed(f.Name)
			if err != nil {
				return err
			}
			// HEAD kegs aren't reproducible and never get bottled.
			var pkgver string
			for _, k := range kegs {
				if k != "HEAD" {
					pkgver = k
				}
			}
			if pkgver == "" {
				return errors.Errorf("%s has no bottleable keg installed", f.Name)
			}

			rebuild := 0
			if f.Bottle != nil {
				rebuild = f.Bottle.Rebuild
			}
			tag := c.host().Tag()
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}
			out := filepath.Join(outDir, bottle.FilenameFor(f.Name, pkgver, tag, rebuild))
			sum, err := bottle.Pack(filepath.Join(c.cfg.Cellar, f.Name, pkgver), f.Name, pkgver, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s: %s\n", out, tag, sum)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "directory to write the bottle to")
	return cmd
}
