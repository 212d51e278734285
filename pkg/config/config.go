// Package config loads the project configuration from <root>/.af/config.yml.
//
// Every field has a default, so a project without a config file behaves
// exactly like one created by `af init`.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/autoforge/pkg/storage"
)

const (
	// Dir is the project-private state directory under the root.
	Dir = ".af"
	// FileName is the config file inside Dir.
	FileName = "config.yml"
	// DefaultModel is used when neither flags, env nor config name one.
	DefaultModel = "gpt-4o"
)

// Patch modes accepted by patch.mode.
const (
	PatchModeAuto          = "auto"
	PatchModeWholeFileOnly = "whole-file-only"
	PatchModeHunks         = "hunks"
)

// Config is the on-disk project configuration.
type Config struct {
	// Planner model and endpoint. The API key is never read from this file.
	Model   string `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL string `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`

	// ShellAllowlist is the legacy top-level allowlist; it is merged with
	// Actions.Shell.Allow.
	ShellAllowlist []string `yaml:"shellAllowlist,omitempty" json:"shellAllowlist,omitempty"`

	Actions      ActionsConfig `yaml:"actions" json:"actions"`
	Patch        PatchConfig   `yaml:"patch" json:"patch"`
	DefaultCheck CheckConfig   `yaml:"defaultCheck" json:"defaultCheck"`
	Planner      PlannerConfig `yaml:"planner" json:"planner"`
	Daemon       DaemonConfig  `yaml:"daemon" json:"daemon"`
	Git          GitConfig     `yaml:"git" json:"git"`
	Logging      LoggingConfig `yaml:"logging" json:"logging"`
}

// ActionsConfig groups per-action settings.
type ActionsConfig struct {
	Shell ShellConfig `yaml:"shell" json:"shell"`
}

// ShellConfig controls exec actions.
type ShellConfig struct {
	// Allow lists permitted leading tokens. Empty means anything runs.
	Allow []string `yaml:"allow" json:"allow"`
	// Timeout bounds each exec action; zero means no limit.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// PatchConfig controls the patch engine.
type PatchConfig struct {
	Mode string `yaml:"mode" json:"mode"`
}

// CheckConfig controls check actions.
type CheckConfig struct {
	// RunBuild runs the detected build command; when false, check only
	// reports what it would have run.
	RunBuild bool `yaml:"runBuild" json:"runBuild"`
}

// PlannerConfig controls the phase runner.
type PlannerConfig struct {
	MaxRetries int      `yaml:"maxRetries" json:"maxRetries"`
	CheckPaths []string `yaml:"checkPaths,omitempty" json:"checkPaths,omitempty"`
	SpecFile   string   `yaml:"specFile" json:"specFile"`
}

// DaemonConfig controls the task daemon.
type DaemonConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// GitConfig controls what happens to the tree after a successful run.
type GitConfig struct {
	// AutoCommit commits all changes once a run's checks pass.
	AutoCommit bool `yaml:"autoCommit" json:"autoCommit"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Verbosity controls console logging: quiet, normal, verbose, debug
	Verbosity string `yaml:"verbosity" json:"verbosity"`
}

// DefaultAllowlist is the exec allowlist written by `af init`.
func DefaultAllowlist() []string {
	return []string{
		"pnpm", "npm", "npx", "node", "git", "gh", "vercel", "supabase", "railway",
		"tsc", "eslint", "prettier", "vitest", "pytest", "go", "cargo", "pip", "uv",
		"bun", "yarn",
	}
}

// Default returns a configuration suitable for most projects.
func Default() *Config {
	return &Config{
		Model: DefaultModel,
		Actions: ActionsConfig{
			Shell: ShellConfig{Allow: DefaultAllowlist()},
		},
		Patch:        PatchConfig{Mode: PatchModeAuto},
		DefaultCheck: CheckConfig{RunBuild: true},
		Planner: PlannerConfig{
			MaxRetries: 5,
			SpecFile:   "product.spec.yml",
		},
		Daemon:  DaemonConfig{Interval: 1500 * time.Millisecond},
		Logging: LoggingConfig{Verbosity: "normal"},
	}
}

// Path returns the config file location for root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Load reads root's config file over the defaults. A missing file yields
// Default(); a malformed or invalid one is an error.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", Path(root), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", Path(root), err)
	}
	return cfg, nil
}

// Save writes the configuration to root atomically.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return storage.WriteFileAtomic(Path(root), data, 0644)
}

// Validate validates the configuration, filling empty enum fields with
// their defaults.
func (c *Config) Validate() error {
	if c.Patch.Mode == "" {
		c.Patch.Mode = PatchModeAuto
	}
	switch c.Patch.Mode {
	case PatchModeAuto, PatchModeWholeFileOnly, PatchModeHunks:
	default:
		return fmt.Errorf("invalid patch mode: %s (must be 'auto', 'whole-file-only', or 'hunks')", c.Patch.Mode)
	}

	if c.Actions.Shell.Timeout < 0 {
		return fmt.Errorf("actions.shell.timeout cannot be negative")
	}

	if c.Planner.MaxRetries < 0 {
		return fmt.Errorf("planner.maxRetries cannot be negative")
	}

	if c.Daemon.Interval < 0 {
		return fmt.Errorf("daemon.interval cannot be negative")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[c.Logging.Verbosity] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}

// Allowlist merges actions.shell.allow and shellAllowlist into one set,
// keeping first-seen order.
func (c *Config) Allowlist() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]string{c.Actions.Shell.Allow, c.ShellAllowlist} {
		for _, bin := range list {
			if bin == "" {
				continue
			}
			if _, ok := seen[bin]; ok {
				continue
			}
			seen[bin] = struct{}{}
			out = append(out, bin)
		}
	}
	return out
}

// MaxRetries returns the planner retry budget, at least 1.
func (c *Config) MaxRetries() int {
	if c.Planner.MaxRetries < 1 {
		return 1
	}
	return c.Planner.MaxRetries
}
