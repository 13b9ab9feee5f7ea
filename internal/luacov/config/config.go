// Package config provides unified configuration loading for the
// coverage engine: a declarative luacov.toml form and an optional dynamic
// config.lua.sky Starlark form, auto-discovered by walking up the
// directory tree from the working directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config file names in priority order.
const (
	// ConfigSky is the canonical dynamic config filename.
	ConfigSky = "config.lua.sky"
	// ConfigTOML is the declarative TOML config filename.
	ConfigTOML = "luacov.toml"
)

// EnvConfig is the environment variable for specifying config file path.
const EnvConfig = "LUACOV_CONFIG"

// ErrConflict is returned when multiple config files exist in the same directory.
var ErrConflict = errors.New("multiple config files found in the same directory; use only one")

// Config is the unified option set recognized by the engine.
type Config struct {
	Include          []string `json:"include" toml:"include"`
	Exclude          []string `json:"exclude" toml:"exclude"`
	SourceDirs       []string `json:"source_dirs" toml:"source_dirs"`
	TrackAllExecuted bool     `json:"track_all_executed" toml:"track_all_executed"`

	StructuralIsExecutable bool `json:"structural_is_executable" toml:"structural_is_executable"`

	Instrumentation InstrumentationConfig `json:"instrumentation" toml:"instrumentation"`
	Analyzer        AnalyzerConfig        `json:"analyzer" toml:"analyzer"`

	AutoFixBlockRelationships bool `json:"auto_fix_block_relationships" toml:"auto_fix_block_relationships"`
}

// InstrumentationConfig holds the instrumentation.* options.
type InstrumentationConfig struct {
	MaxFileSize      int64 `json:"max_file_size" toml:"max_file_size"`
	CacheEnabled     bool  `json:"cache_enabled" toml:"cache_enabled"`
	StaticImports    bool  `json:"static_imports" toml:"static_imports"`
	SourcemapEnabled bool  `json:"sourcemap_enabled" toml:"sourcemap_enabled"`
}

// AnalyzerConfig holds the analyzer.* budget options.
type AnalyzerConfig struct {
	NodeBudget   int `json:"node_budget" toml:"node_budget"`
	TimeBudgetMS int `json:"time_budget_ms" toml:"time_budget_ms"`
}

// DefaultConfig returns a Config with the engine defaults:
// structural_is_executable=true, instrumentation.max_file_size
// = 1 MiB, sourcemap and static-import preamble on, block
// relationship auto-fix on.
func DefaultConfig() *Config {
	return &Config{
		StructuralIsExecutable: true,
		Instrumentation: InstrumentationConfig{
			MaxFileSize:      1 << 20,
			CacheEnabled:     true,
			StaticImports:    true,
			SourcemapEnabled: true,
		},
		Analyzer: AnalyzerConfig{
			NodeBudget:   100_000,
			TimeBudgetMS: 120_000,
		},
		AutoFixBlockRelationships: true,
	}
}

// LoadConfig loads configuration from path, auto-detecting the format
// from its extension.
func LoadConfig(path string) (*Config, error) {
	switch {
	case strings.HasSuffix(path, ".toml"):
		return LoadTOMLConfig(path)
	case strings.HasSuffix(path, ".sky"):
		return LoadStarlarkConfig(path, DefaultStarlarkTimeout)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s (expected .lua.sky or .toml)", path)
	}
}

// DiscoverConfig searches for a configuration file, starting from
// LUACOV_CONFIG if set, else walking up from startDir, stopping at a
// git repository root if one is found. Returns DefaultConfig with an
// empty path when nothing is found.
func DiscoverConfig(startDir string) (*Config, string, error) {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		cfg, err := LoadConfig(envPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", EnvConfig, err)
		}
		return cfg, envPath, nil
	}

	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("getting working directory: %w", err)
		}
	}

	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}

	gitRoot := findGitRoot(absDir)

	dir := absDir
	for {
		configPath, err := findConfigInDir(dir)
		if err != nil {
			return nil, "", err
		}
		if configPath != "" {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return nil, "", err
			}
			return cfg, configPath, nil
		}

		if gitRoot != "" && dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return DefaultConfig(), "", nil
}

func findConfigInDir(dir string) (string, error) {
	skyPath := filepath.Join(dir, ConfigSky)
	tomlPath := filepath.Join(dir, ConfigTOML)

	skyExists := fileExists(skyPath)
	tomlExists := fileExists(tomlPath)

	if skyExists && tomlExists {
		return "", fmt.Errorf("%w: found %s in %s", ErrConflict, strings.Join([]string{ConfigSky, ConfigTOML}, ", "), dir)
	}
	if skyExists {
		return skyPath, nil
	}
	if tomlExists {
		return tomlPath, nil
	}
	return "", nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func findGitRoot(startDir string) string {
	dir := startDir
	for {
		if fileExists(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Merge merges other into c: the include, exclude and source_dirs lists
// are appended, track_all_executed is turned on when other sets it, and
// non-zero max_file_size, node_budget and time_budget_ms values in other
// override c's. The other boolean options (structural_is_executable,
// auto_fix_block_relationships and the instrumentation switches) keep
// c's values.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if len(other.Include) > 0 {
		c.Include = append(c.Include, other.Include...)
	}
	if len(other.Exclude) > 0 {
		c.Exclude = append(c.Exclude, other.Exclude...)
	}
	if len(other.SourceDirs) > 0 {
		c.SourceDirs = append(c.SourceDirs, other.SourceDirs...)
	}
	if other.TrackAllExecuted {
		c.TrackAllExecuted = true
	}
	if other.Instrumentation.MaxFileSize != 0 {
		c.Instrumentation.MaxFileSize = other.Instrumentation.MaxFileSize
	}
	if other.Analyzer.NodeBudget != 0 {
		c.Analyzer.NodeBudget = other.Analyzer.NodeBudget
	}
	if other.Analyzer.TimeBudgetMS != 0 {
		c.Analyzer.TimeBudgetMS = other.Analyzer.TimeBudgetMS
	}
}
