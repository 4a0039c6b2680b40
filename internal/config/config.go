// Package config loads the server configuration from YAML or JSON5
// files, with $include composition and environment variable expansion.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/flydevtools/flyserve/internal/limits"
	"github.com/flydevtools/flyserve/internal/observability"
	"github.com/flydevtools/flyserve/internal/pipeline"
	"github.com/flydevtools/flyserve/internal/resources"
)

// Config is the main configuration structure for the server.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Workspace WorkspaceConfig         `yaml:"workspace"`
	Limits    limits.LimiterConfig    `yaml:"limits"`
	Pipeline  pipeline.Config         `yaml:"pipeline"`
	Logging   observability.LogConfig `yaml:"logging"`
}

// ServerConfig identifies the server to clients during the handshake.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// MetricsAddr, when set, serves Prometheus metrics over HTTP on
	// this address (e.g. "127.0.0.1:9090"). Empty disables the
	// listener; stdio serving is unaffected either way.
	MetricsAddr string `yaml:"metrics_addr"`
}

// WorkspaceConfig locates the sandboxed workspace exposed as resources.
type WorkspaceConfig struct {
	// Root is the directory all workspace resource access is confined
	// to. Defaults to the current directory.
	Root string `yaml:"root"`

	Sandbox resources.SandboxRules `yaml:"sandbox"`
}

// Load reads and parses the configuration file, resolving $include
// directives and expanding environment variables before decoding.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "flyserve"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "dev"
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = "."
	}
	if cfg.Limits.MaxGlobal == 0 && cfg.Limits.PerTool == nil {
		cfg.Limits = limits.DefaultLimiterConfig()
	}
	if cfg.Pipeline.DefaultTimeout == 0 {
		cfg.Pipeline.DefaultTimeout = 30 * time.Second
	}
	if cfg.Pipeline.Sizes.MaxParameterBytes == 0 && cfg.Pipeline.Sizes.MaxResultBytes == 0 {
		cfg.Pipeline.Sizes = pipeline.DefaultSizeConfig()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks cross-field constraints the decoder cannot express.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.Workspace.Root) && c.Workspace.Root != "." {
		abs, err := filepath.Abs(c.Workspace.Root)
		if err != nil {
			return fmt.Errorf("workspace root %q: %w", c.Workspace.Root, err)
		}
		c.Workspace.Root = abs
	}
	for tool, cap := range c.Limits.PerTool {
		if cap < 0 {
			return fmt.Errorf("limits.per_tool.%s must not be negative", tool)
		}
	}
	for tool, timeout := range c.Pipeline.ToolTimeouts {
		if timeout < 0 {
			return fmt.Errorf("pipeline.tool_timeouts.%s must not be negative", tool)
		}
	}
	return nil
}
