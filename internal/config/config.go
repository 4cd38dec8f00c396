// Package config loads and validates the optional codex-mcp YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for executor configuration.
const (
	DefaultBinary       = "codex"
	DefaultTimeout      = 10 * time.Minute
	DefaultMaxTimeout   = time.Hour
	DefaultMaxLineBytes = 10 << 20 // 10 MiB
)

// FileName is the configuration file looked up in the workspace root.
const FileName = ".codex-mcp.yaml"

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "CODEX_MCP_CONFIG"

// Config holds the parsed .codex-mcp.yaml configuration.
// All fields are optional; zero values represent defaults. It is loaded
// once at process start and passed explicitly into the executor and
// server, never read again from ambient state.
type Config struct {
	Version       int      `yaml:"version"`
	RawBinary     string   `yaml:"binary"`         // codex binary name or path
	RawTimeout    string   `yaml:"timeout"`        // default per-run deadline, e.g. "10m"
	RawMaxTimeout string   `yaml:"max_timeout"`    // ceiling for any requested deadline
	RawMaxLine    int      `yaml:"max_line_bytes"` // per-line bound for both streams
	DefaultArgs   []string `yaml:"default_args"`   // extra codex exec flags for every run
	Instructions  string   `yaml:"instructions"`   // optional supplementary instructions file
}

// Binary returns the configured codex binary or the default.
// The CODEX_BIN environment variable is resolved later, by the executor.
func (c *Config) Binary() string {
	if c.RawBinary != "" {
		return c.RawBinary
	}
	return DefaultBinary
}

// Timeout returns the configured default deadline or the fallback.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxTimeout returns the deadline ceiling or the fallback.
func (c *Config) MaxTimeout() time.Duration {
	if c.RawMaxTimeout != "" {
		d, err := time.ParseDuration(c.RawMaxTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultMaxTimeout
}

// MaxLineBytes returns the per-line bound or the default.
func (c *Config) MaxLineBytes() int {
	if c.RawMaxLine > 0 {
		return c.RawMaxLine
	}
	return DefaultMaxLineBytes
}

// Load reads the configuration file. The path comes from the
// CODEX_MCP_CONFIG environment variable when set, otherwise
// .codex-mcp.yaml in the workspace. A missing file yields defaults;
// a present but unparseable file is an error, as is a missing file
// that was named explicitly.
func Load(workspace string) (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(workspace, FileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}
