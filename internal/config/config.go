// Package config loads HexProbe configuration.
//
// Defaults are the base layer, an optional YAML file (~/.hexprobe/config.yaml
// or an explicit path) is merged over them, and HEXPROBE_* environment
// variables override both, e.g. HEXPROBE_DATA_DIR or
// HEXPROBE_GLOBAL_BACKEND.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/hexprobe/internal/global"
	"github.com/HendryAvila/hexprobe/internal/knowledge"
	"github.com/HendryAvila/hexprobe/internal/maintenance"
	"github.com/HendryAvila/hexprobe/internal/probe"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HEXPROBE"

// Config holds all HexProbe configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir"`
	Global   GlobalConfig   `mapstructure:"global" yaml:"global"`
	Learning LearningConfig `mapstructure:"learning" yaml:"learning"`
	Aging    AgingConfig    `mapstructure:"aging" yaml:"aging"`
	Probes   ProbesConfig   `mapstructure:"probes" yaml:"probes"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// GlobalConfig selects the global store backend.
type GlobalConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Dir holds global.db for the sqlite backend. Empty means <data_dir>/global.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// DSN is the postgres connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LearningConfig controls how findings become patterns.
type LearningConfig struct {
	// PatternIDs is "content" (hash of category and description) or "random".
	PatternIDs string `mapstructure:"pattern_ids" yaml:"pattern_ids"`
	// RecurrentMin is the default trigger threshold for recurrent queries.
	RecurrentMin int `mapstructure:"recurrent_min" yaml:"recurrent_min"`
}

// AgingConfig controls pruning.
type AgingConfig struct {
	MaxAgeDays int `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// ProbesConfig configures probe execution.
type ProbesConfig struct {
	// Timeout caps every exec-based probe. Zero keeps per-probe defaults.
	Timeout  time.Duration                 `mapstructure:"timeout" yaml:"timeout"`
	External map[string]probe.ExternalSpec `mapstructure:"external" yaml:"external,omitempty"`
}

// HistoryConfig bounds the run history.
type HistoryConfig struct {
	MaxRuns int `mapstructure:"max_runs" yaml:"max_runs"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	local := knowledge.DefaultConfig()
	return &Config{
		DataDir: local.DataDir,
		Global: GlobalConfig{
			Backend: global.DefaultConfig().Backend,
		},
		Learning: LearningConfig{
			PatternIDs:   string(knowledge.IDRandom),
			RecurrentMin: 5,
		},
		Aging: AgingConfig{
			MaxAgeDays: maintenance.DefaultMaxAgeDays,
		},
		History: HistoryConfig{
			MaxRuns: local.MaxRunHistory,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns ~/.hexprobe/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hexprobe", "config.yaml")
}

// Load reads configuration from path, or from DefaultPath when path is
// empty. A missing file at the default location is not an error; a missing
// explicit path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	path = expandPath(path)

	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults go in as a YAML layer so every key is known to viper and
	// therefore reachable from the environment.
	base, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("config: marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("config: read defaults: %w", err)
	}

	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicit || !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("config: %w", statErr)
	}

	// Example: HEXPROBE_GLOBAL_BACKEND=postgres
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.Global.Dir = expandPath(cfg.Global.Dir)
	if cfg.Global.Dir == "" {
		cfg.Global.Dir = filepath.Join(cfg.DataDir, "global")
	}
	return &cfg, nil
}

// Validate checks the configuration for values the stores and logger
// cannot accept.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	switch c.Global.Backend {
	case global.BackendSQLite:
	case global.BackendPostgres:
		if c.Global.DSN == "" {
			return fmt.Errorf("global.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid global.backend '%s', must be one of: sqlite, postgres", c.Global.Backend)
	}

	switch knowledge.IDMode(c.Learning.PatternIDs) {
	case knowledge.IDContent, knowledge.IDRandom:
	default:
		return fmt.Errorf("invalid learning.pattern_ids '%s', must be one of: content, random", c.Learning.PatternIDs)
	}
	if c.Learning.RecurrentMin < 0 {
		return fmt.Errorf("learning.recurrent_min cannot be negative")
	}

	if c.Aging.MaxAgeDays < 0 {
		return fmt.Errorf("aging.max_age_days cannot be negative")
	}
	if c.Probes.Timeout < 0 {
		return fmt.Errorf("probes.timeout cannot be negative")
	}
	for id, spec := range c.Probes.External {
		if len(spec.Command) == 0 {
			return fmt.Errorf("probes.external.%s.command cannot be empty", id)
		}
	}
	if c.History.MaxRuns <= 0 {
		return fmt.Errorf("history.max_runs must be positive")
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil || c.Logging.Level == "" {
		return fmt.Errorf("invalid logging.level '%s', must be one of: trace, debug, info, warn, error", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging.format '%s', must be 'console' or 'json'", c.Logging.Format)
	}
	return nil
}

// Local returns the local store configuration.
func (c *Config) Local() knowledge.Config {
	return knowledge.Config{
		DataDir:       c.DataDir,
		MaxRunHistory: c.History.MaxRuns,
		Clock:         time.Now,
	}
}

// GlobalStore returns the global store configuration.
func (c *Config) GlobalStore() global.Config {
	return global.Config{
		Backend: c.Global.Backend,
		Dir:     c.Global.Dir,
		DSN:     c.Global.DSN,
	}
}

// ProbeOptions returns the probe registry options.
func (c *Config) ProbeOptions() probe.Options {
	return probe.Options{
		Timeout:  c.Probes.Timeout,
		External: c.Probes.External,
	}
}

// IDMode returns the configured pattern id mode.
func (c *Config) IDMode() knowledge.IDMode {
	return knowledge.IDMode(c.Learning.PatternIDs)
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
