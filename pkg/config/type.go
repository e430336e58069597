package config

import "time"

// Config represents the complete application configuration that
// nbrew supports.
type Config struct {
	// Platforms are the bottle tags that graphs are kept for.
	Platforms []string `yaml:"platforms"`

	// IndexURLs maps a platform tag to the bottle repositories
	// that are indexed for it, by repository name.
	IndexURLs map[string]map[string]string `yaml:"index_urls"`

	TapURL  string `yaml:"tap_url"`
	TapPath string `yaml:"tap_path"`

	Cellar string `yaml:"cellar"`
	Cache  string `yaml:"cache"`
	Jobs   int    `yaml:"jobs"`

	StorageProvider  string         `yaml:"storage_provider"`
	CapacityProvider string         `yaml:"capacity_provider"`
	BuildSlots       map[string]int `yaml:"build_slots"`

	GraphURL     string `yaml:"graph_url"`
	Bind         string `yaml:"bind"`
	ReceiverPath string `yaml:"receiver_path"`

	// IdleTimeout closes keep-alive connections to the API that
	// have gone quiet, given as a duration such as "90s".
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}
