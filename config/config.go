// Package config reads and writes a bot's configuration file.
//
// Each namespace (bot name plus optional profile) has its own YAML file,
// <dir>/<namespace>.yaml, holding network credentials and state settings.
// The file is written by the setup wizard and may be edited by hand.
// Environment variables override credentials at runtime; see the service
// packages for their names.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/blacktop/polybot/service/bluesky"
	"github.com/blacktop/polybot/service/mastodon"
	"github.com/blacktop/polybot/service/twitter"
	"github.com/blacktop/polybot/state"
)

// Config is the contents of one bot's configuration file.
type Config struct {
	// Twitter, Mastodon and Bluesky are nil when the network is not set up.
	Twitter  *twitter.Config  `yaml:"twitter,omitempty"`
	Mastodon *mastodon.Config `yaml:"mastodon,omitempty"`
	Bluesky  *bluesky.Config  `yaml:"bluesky,omitempty"`

	// State configures where bot state is persisted.
	State StateConfig `yaml:"state,omitempty"`
}

// StateConfig selects the state backend.
type StateConfig struct {
	// Backend is "file" (default) or "sqlite".
	Backend string `yaml:"backend,omitempty"`

	// Dir holds state files; defaults to the config file's directory.
	Dir string `yaml:"dir,omitempty"`

	// Format is "json" (default) or "cbor". File backend only.
	Format string `yaml:"format,omitempty"`

	// Compression is "none" (default) or "zstd". File backend only.
	Compression string `yaml:"compression,omitempty"`

	// Database is the SQLite file; defaults to <dir>/polybot.sqlite.
	Database string `yaml:"database,omitempty"`
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Path returns the configuration file for a namespace under dir.
func Path(dir string, ns state.Namespace) string {
	return filepath.Join(dir, ns.String()+".yaml")
}

// Load reads the configuration file at path. A missing file yields an empty
// configuration: the bot simply has no networks until setup runs.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the configuration with owner-only permissions, since it holds
// credentials.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := state.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.State.Backend {
	case "", BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	if _, err := state.ParseFormat(c.State.Format); err != nil {
		return err
	}
	if _, err := state.ParseCompression(c.State.Compression); err != nil {
		return err
	}
	return nil
}

// StateDir returns the directory for state, relative to the config dir.
func (c *Config) StateDir(configDir string) string {
	switch {
	case c.State.Dir == "":
		return configDir
	case filepath.IsAbs(c.State.Dir):
		return c.State.Dir
	default:
		return filepath.Join(configDir, c.State.Dir)
	}
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath(configDir string) string {
	switch {
	case c.State.Database == "":
		return filepath.Join(c.StateDir(configDir), "polybot.sqlite")
	case filepath.IsAbs(c.State.Database):
		return c.State.Database
	default:
		return filepath.Join(configDir, c.State.Database)
	}
}

// FileBackend builds the file state backend described by the config.
func (c *Config) FileBackend(configDir string) (state.FileBackend, error) {
	format, err := state.ParseFormat(c.State.Format)
	if err != nil {
		return state.FileBackend{}, err
	}
	compression, err := state.ParseCompression(c.State.Compression)
	if err != nil {
		return state.FileBackend{}, err
	}
	return state.FileBackend{Dir: c.StateDir(configDir), Format: format, Compression: compression}, nil
}
