package config

import (
	"time"

	"github.com/mattjoyce/watchit/internal/watch"
)

// Config represents the complete watchit configuration.
type Config struct {
	Service ServiceConfig      `yaml:"service"`
	History HistoryConfig      `yaml:"history"`
	API     APIConfig          `yaml:"api,omitempty"`
	Include []string           `yaml:"include,omitempty"`
	Presets []watch.Preset     `yaml:"presets,omitempty"`
	Watches []watch.Definition `yaml:"watches"`

	// Path is the absolute path of the root config file.
	Path string `yaml:"-"`
	// Files lists the root file and every included file.
	Files []string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name         string        `yaml:"name"`
	LogLevel     string        `yaml:"log_level"`
	Shell        string        `yaml:"shell"`
	Debounce     time.Duration `yaml:"debounce"`
	MatchTimeout time.Duration `yaml:"match_timeout"`
	IgnoreDirs   []string      `yaml:"ignore_dirs"`
}

// HistoryConfig defines the run history store.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// Defaults returns a Config with every optional field filled in.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:         "watchit",
			LogLevel:     "info",
			Shell:        defaultShell(),
			Debounce:     time.Second,
			MatchTimeout: 5 * time.Second,
			IgnoreDirs:   []string{".git", ".hg", ".svn", "node_modules"},
		},
		History: HistoryConfig{
			Enabled:   true,
			Path:      "~/.local/state/watchit/history.db",
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8765",
		},
	}
}

// Preset returns the preset with the given id.
func (c *Config) Preset(id string) (watch.Preset, bool) {
	for _, p := range c.Presets {
		if p.ID == id {
			return p, true
		}
	}
	return watch.Preset{}, false
}

// Watch returns the watch with the given id.
func (c *Config) Watch(id string) (watch.Definition, bool) {
	for _, w := range c.Watches {
		if w.ID == id {
			return w, true
		}
	}
	return watch.Definition{}, false
}
