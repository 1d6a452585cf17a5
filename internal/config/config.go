// Package config loads the shared tool configuration from a TOML file, so
// classes do not have to repeat --org and --token on every invocation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the file-backed defaults. Command-line flags override any of
// these, and the GITHUB_TOKEN environment variable overrides Token.
type Config struct {
	// Token is the GitHub API token.
	Token string `toml:"token"`
	// Org is the organization holding the student repositories.
	Org string `toml:"org"`
	// Prefix is the default repository name prefix to match.
	Prefix string `toml:"prefix"`
	// CacheDir is where cache files live; empty means the current
	// working directory.
	CacheDir string `toml:"cache_dir"`
	// Graders lists the GitHub IDs of the grading staff.
	Graders []string `toml:"graders"`
	// Ignore lists additional GitHub IDs to exclude from grading
	// (professors and the like).
	Ignore []string `toml:"ignore"`
	// RosterPath points at the student CSV roster.
	RosterPath string `toml:"roster"`
}

// DefaultPath returns ~/.classroom-sync/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".classroom-sync", "config.toml"), nil
}

// Load reads the config file at path. A missing file is not an error; it
// returns an empty config so flags and the environment can fill everything.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveToken picks the token from, in order: the --token flag value, the
// GITHUB_TOKEN environment variable, the config file.
func (c *Config) ResolveToken(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("GITHUB_TOKEN"); env != "" {
		return env
	}
	return c.Token
}
