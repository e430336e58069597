package main

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/the-maldridge/nbrew/pkg/builder"
	"github.com/the-maldridge/nbrew/pkg/config"
	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/formula"
	"github.com/the-maldridge/nbrew/pkg/graph"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// cli holds what every subcommand shares once the persistent flags
// have been parsed.
type cli struct {
	cfgFile  string
	logLevel string
	tapPath  string
	platform string

	l   hclog.Logger
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := new(cli)
	root := &cobra.Command{
		Use:   "nbrew",
		Short: "Build, bottle and install formulae from a tap",
		Long: `nbrew reads declarative formulae from a tap, resolves their
dependencies, and installs them into a cellar by pouring bottles or
building from source.

Examples:
  # Check every formula in the tap
  nbrew lint

  # Show the install order for a formula
  nbrew order hello

  # Build and install from source
  nbrew install --build-from-source hello`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SuggestionsMinimumDistance = 2

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgFile, "config", os.Getenv("NBREW_CONFIG"), "config file (yaml or json)")
	pf.StringVar(&c.logLevel, "log-level", "WARN", "log level")
	pf.StringVar(&c.tapPath, "tap", "", "path to the tap (overrides the config)")
	pf.StringVar(&c.platform, "platform", "", "bottle tag to act for (default: this host)")

	root.AddCommand(
		c.lintCmd(),
		c.infoCmd(),
		c.depsCmd(),
		c.orderCmd(),
		c.usesCmd(),
		c.leavesCmd(),
		c.fetchCmd(),
		c.installCmd(),
		c.testCmd(),
		c.serviceCmd(),
		c.bottleCmd(),
		c.serveCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	c.l = hclog.New(&hclog.LoggerOptions{
		Name:   "nbrew",
		Level:  hclog.LevelFromString(c.logLevel),
		Output: cmd.ErrOrStderr(),
	})
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.tapPath != "" {
		cfg.TapPath = c.tapPath
	}
	// Steps run inside the build directory, so relative cellars
	// would point somewhere else entirely.
	for _, p := range []*string{&cfg.Cellar, &cfg.Cache} {
		if *p, err = filepath.Abs(*p); err != nil {
			return err
		}
	}
	c.cfg = cfg
	return nil
}

func (c *cli) host() types.Platform {
	if c.platform != "" {
		return types.PlatformFromTag(c.platform)
	}
	release := os.Getenv("NBREW_MACOS_RELEASE")
	if release == "" {
		release = "sonoma"
	}
	return types.HostPlatform(release)
}

func (c *cli) tap() *formula.Tap {
	return formula.NewTap(c.cfg.TapPath)
}

// graph imports the whole tap for the selected platform.
func (c *cli) graph() (*graph.PkgGraph, error) {
	g := graph.New(c.l, c.host(), c.tap())
	if err := g.LoadAliases(); err != nil {
		return nil, err
	}
	if err := g.ImportAll(); err != nil {
		return nil, err
	}
	for _, err := range g.Check() {
		c.l.Warn("Graph problem", "error", err)
	}
	return g, nil
}

// canonical maps the names given on the command line to formula
// names, following aliases.
func canonical(g *graph.PkgGraph, names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		p, err := g.ResolvePackage(n)
		if err != nil {
			return nil, err
		}
		out[i] = p.Name
	}
	return out, nil
}

func (c *cli) builder(cmd *cobra.Command) *builder.Builder {
	f := fetch.New(c.l, c.cfg.Cache, fetch.WithJobs(c.cfg.Jobs))
	b := builder.New(c.l, c.cfg.Cellar, f, c.host())
	// Step output goes to stderr so stdout only carries results.
	b.Stdout = cmd.ErrOrStderr()
	return b
}
