// Package config handles spry engine configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the spry configuration file searched for
// by Load.
const ConfigFileName = "spry.yaml"

const (
	defaultMaxFetchBytes   = 10 * 1024 * 1024
	defaultFetchTimeout    = 30 * time.Second
	defaultRecursionLimit  = 9
	defaultRetryMax        = 3
	defaultRetryBaseDelay  = 200 * time.Millisecond
	defaultPlaybookHeading = 2
)

// Config holds the tunables every spry component reads from. Values come
// from (in increasing precedence) built-in defaults, an optional
// spry.yaml found by walking up from the working directory, and direct
// field overrides the caller applies after Load returns.
type Config struct {
	// SpawnableLanguages is the set of fence languages eligible to become
	// tasks. Keys are lowercased language identifiers.
	SpawnableLanguages map[string]bool `yaml:"-"`

	// MaxFetchBytes is the byte-size cap enforced on networked content
	// acquisition (spec C5). Zero means use the built-in default.
	MaxFetchBytes int64 `yaml:"max_fetch_bytes"`

	// FetchTimeout bounds a single networked read.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// AllowedHosts restricts which hosts C5 may fetch from. Empty means
	// no restriction.
	AllowedHosts []string `yaml:"allowed_hosts"`

	// RetryMax is the number of retry attempts for a networked fetch.
	RetryMax int `yaml:"retry_max"`

	// RetryBaseDelay is the base delay for exponential backoff between
	// fetch retries.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// RecursionLimit bounds the interpolator's partial-recursion chain
	// (spec C8).
	RecursionLimit int `yaml:"recursion_limit"`

	// PlaybookHeadingDepth is the default Markdown heading depth treated
	// as a playbook delimiter (spec C3).
	PlaybookHeadingDepth int `yaml:"playbook_heading_depth"`

	// BaseDir is the default base directory spec-block globs resolve
	// against when a block has no `--base` flag (spec §6 Environment).
	BaseDir string `yaml:"-"`

	// ProjectRoot is the directory spry.yaml was found in, or the
	// starting directory if no file was found.
	ProjectRoot string `yaml:"-"`
}

var defaultSpawnableLanguages = map[string]bool{
	"shell": true,
	"sh":    true,
	"bash":  true,
}

// Default returns a Config populated entirely from built-in defaults.
func Default() *Config {
	cwd, _ := os.Getwd()

	langs := make(map[string]bool, len(defaultSpawnableLanguages))
	for k, v := range defaultSpawnableLanguages {
		langs[k] = v
	}

	return &Config{
		SpawnableLanguages:   langs,
		MaxFetchBytes:        defaultMaxFetchBytes,
		FetchTimeout:         defaultFetchTimeout,
		RetryMax:             defaultRetryMax,
		RetryBaseDelay:       defaultRetryBaseDelay,
		RecursionLimit:       defaultRecursionLimit,
		PlaybookHeadingDepth: defaultPlaybookHeading,
		BaseDir:              cwd,
		ProjectRoot:          cwd,
	}
}

// Load searches for spry.yaml starting from the current working
// directory, walking up the directory tree. If found, its values
// override the defaults. If not found, Default() is returned unchanged.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return LoadFromPath(cwd)
}

// LoadFromPath is Load but rooted at startPath instead of the working
// directory.
func LoadFromPath(startPath string) (*Config, error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to resolve absolute path for %q: %w",
			startPath,
			err,
		)
	}

	cfg := Default()
	cfg.BaseDir = absPath
	cfg.ProjectRoot = absPath

	currentPath := absPath
	for {
		configPath := filepath.Join(currentPath, ConfigFileName)

		if _, statErr := os.Stat(configPath); statErr == nil {
			if err := applyConfigFile(cfg, configPath); err != nil {
				return nil, err
			}

			cfg.ProjectRoot = currentPath
			cfg.BaseDir = currentPath

			if err := cfg.validate(); err != nil {
				return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
			}

			return cfg, nil
		}

		parentPath := filepath.Dir(currentPath)
		if parentPath == currentPath {
			break
		}
		currentPath = parentPath
	}

	return cfg, nil
}

// fileConfig mirrors the subset of Config that is YAML-serializable;
// SpawnableLanguages is expressed as a list in the file and folded into
// the map form on load.
type fileConfig struct {
	MaxFetchBytes        int64    `yaml:"max_fetch_bytes"`
	FetchTimeout         string   `yaml:"fetch_timeout"`
	AllowedHosts         []string `yaml:"allowed_hosts"`
	RetryMax             int      `yaml:"retry_max"`
	RetryBaseDelay       string   `yaml:"retry_base_delay"`
	RecursionLimit       int      `yaml:"recursion_limit"`
	PlaybookHeadingDepth int      `yaml:"playbook_heading_depth"`
	SpawnableLanguages   []string `yaml:"spawnable_languages"`
}

func applyConfigFile(cfg *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		var yamlErr *yaml.TypeError
		if errors.As(err, &yamlErr) {
			return fmt.Errorf("invalid YAML syntax: %v", yamlErr.Errors)
		}

		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if fc.MaxFetchBytes > 0 {
		cfg.MaxFetchBytes = fc.MaxFetchBytes
	}
	if fc.FetchTimeout != "" {
		d, err := time.ParseDuration(fc.FetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid fetch_timeout: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if len(fc.AllowedHosts) > 0 {
		cfg.AllowedHosts = fc.AllowedHosts
	}
	if fc.RetryMax > 0 {
		cfg.RetryMax = fc.RetryMax
	}
	if fc.RetryBaseDelay != "" {
		d, err := time.ParseDuration(fc.RetryBaseDelay)
		if err != nil {
			return fmt.Errorf("invalid retry_base_delay: %w", err)
		}
		cfg.RetryBaseDelay = d
	}
	if fc.RecursionLimit > 0 {
		cfg.RecursionLimit = fc.RecursionLimit
	}
	if fc.PlaybookHeadingDepth > 0 {
		cfg.PlaybookHeadingDepth = fc.PlaybookHeadingDepth
	}
	if len(fc.SpawnableLanguages) > 0 {
		for _, lang := range fc.SpawnableLanguages {
			cfg.SpawnableLanguages[strings.ToLower(lang)] = true
		}
	}

	return nil
}

func (c *Config) validate() error {
	if c.RecursionLimit <= 0 {
		return errors.New("recursion_limit must be positive")
	}
	if c.PlaybookHeadingDepth < 1 || c.PlaybookHeadingDepth > 6 {
		return errors.New("playbook_heading_depth must be between 1 and 6")
	}
	if c.MaxFetchBytes <= 0 {
		return errors.New("max_fetch_bytes must be positive")
	}

	return nil
}

// IsSpawnable reports whether language is in the configured spawnable
// set (spec §3, Spawnable).
func (c *Config) IsSpawnable(language string) bool {
	return c.SpawnableLanguages[strings.ToLower(language)]
}
