package builder

import (
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/nbrew/pkg/fetch"
	"github.com/the-maldridge/nbrew/pkg/types"
)

// ReceiptFile is written into every keg once it is complete.
const ReceiptFile = "INSTALL_RECEIPT.json"

// A Builder installs formulae into a cellar, either by pouring a
// bottle or by building from source.
type Builder struct {
	l hclog.Logger

	Cellar   string
	Fetcher  *fetch.Fetcher
	Platform types.Platform

	// Stdout receives the output of every step as it runs.
	Stdout io.Writer
}

// Options change how a single install happens.
type Options struct {
	BuildFromSource bool
	Head            bool
	KeepTmp         bool
}

// BuildError is returned when a step of an install or a test fails.
// Step is the index of the failing step within its phase.
type BuildError struct {
	Formula  string
	Phase    string
	Step     int
	ExitCode int
	Output   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s: %s step %d failed with exit code %d", e.Formula, e.Phase, e.Step, e.ExitCode)
}

// Receipt records how a keg came to be.
type Receipt struct {
	Name             string
	PkgVer           string
	Platform         string
	PouredFromBottle bool
	Head             bool
	Source           string
	RuntimeDepends   []string
	InstalledAt      time.Time
}
