package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/the-maldridge/nbrew/pkg/types"
)

// NewConfig returns a config object with default structures
// initialized.  The config can be loaded from other sources to
// override the defaults.
func NewConfig() *Config {
	return &Config{
		Platforms: []string{"x86_64_linux"},
		IndexURLs: map[string]map[string]string{
			"x86_64_linux": {
				"core": "file://bottles/x86_64_linux/core/index.tar.zst",
			},
		},
		TapPath:          "tap",
		Cellar:           "Cellar",
		Cache:            "cache",
		Jobs:             4,
		StorageProvider:  "bitcask",
		CapacityProvider: "local",
		BuildSlots: map[string]int{
			"x86_64_linux": 1,
		},
		GraphURL:     "http://localhost:8080/api/graph",
		Bind:         ":8080",
		ReceiverPath: "bottles",
		IdleTimeout:  2 * time.Minute,
	}
}

// LoadFromFile does as the name suggests, and loads the config from a
// file.  JSON files work too since JSON is YAML.
func (c *Config) LoadFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	return nil
}

// ApplyEnv overrides scalar settings from NBREW_* variables.
// NBREW_PLATFORMS is a comma separated list of tags.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"NBREW_TAP_URL":           &c.TapURL,
		"NBREW_TAP_PATH":          &c.TapPath,
		"NBREW_CELLAR":            &c.Cellar,
		"NBREW_CACHE":             &c.Cache,
		"NBREW_STORAGE_PROVIDER":  &c.StorageProvider,
		"NBREW_CAPACITY_PROVIDER": &c.CapacityProvider,
		"NBREW_GRAPH_URL":         &c.GraphURL,
		"NBREW_BIND":              &c.Bind,
		"NBREW_RECEIVER_PATH":     &c.ReceiverPath,
	}
	for k, p := range strs {
		if v, ok := os.LookupEnv(k); ok {
			*p = v
		}
	}
	if v, ok := os.LookupEnv("NBREW_JOBS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "NBREW_JOBS")
		}
		c.Jobs = n
	}
	if v, ok := os.LookupEnv("NBREW_PLATFORMS"); ok {
		c.Platforms = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Platforms = append(c.Platforms, p)
			}
		}
	}
	return nil
}

// PlatformList returns the configured platforms.
func (c *Config) PlatformList() []types.Platform {
	out := make([]types.Platform, len(c.Platforms))
	for i, tag := range c.Platforms {
		out[i] = types.PlatformFromTag(tag)
	}
	return out
}

// Load builds a config from defaults, an optional file and the
// environment, in that order.
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path != "" {
		if err := c.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}
