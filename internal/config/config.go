package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/arenalab/tracekit/internal/diag"
)

// Config holds process-wide settings for the trace pipeline.
// It is established once via Configure and treated as immutable after.
type Config struct {
	// TraceDir is the root directory for all persisted records. One
	// subdirectory is created per category.
	TraceDir string `envconfig:"TRACE_DIR" default:"trace" yaml:"trace_dir"`

	// Level is the global default threshold; per-category overrides win.
	Level Level `envconfig:"TRACE_LEVEL" default:"INFO" yaml:"level"`

	// Categories maps a category to its level override.
	Categories map[string]Level `ignored:"true" yaml:"categories"`

	// MaxBytes is the size threshold that triggers rotation of the
	// active file for a (category, component) pair.
	MaxBytes int64 `envconfig:"TRACE_MAX_BYTES" default:"104857600" yaml:"max_bytes"`

	// BackupCount bounds the rotated backlog; older files are pruned.
	BackupCount int `envconfig:"TRACE_BACKUP_COUNT" default:"30" yaml:"backup_count"`

	// Buffered selects the async write path. When false, emits write
	// through synchronously (useful in tests and short-lived tools).
	Buffered bool `envconfig:"TRACE_BUFFERED" default:"true" yaml:"buffered"`

	// BufferSize is the bounded queue capacity per (category, component)
	// pair. A full queue drops new records rather than blocking.
	BufferSize int `envconfig:"TRACE_BUFFER_SIZE" default:"1000" yaml:"buffer_size"`

	// CompressBacklog zstd-compresses rotated files. The active file is
	// always plain jsonl.
	CompressBacklog bool `envconfig:"TRACE_COMPRESS_BACKLOG" default:"false" yaml:"compress_backlog"`
}

// DefaultCategories are the partitions created eagerly under TraceDir.
func DefaultCategories() map[string]Level {
	return map[string]Level{
		"agents":      InfoLevel,
		"simulation":  InfoLevel,
		"performance": DebugLevel,
		"errors":      ErrorLevel,
		"experiments": InfoLevel,
		"integration": InfoLevel,
		"system":      InfoLevel,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TraceDir:    "trace",
		Level:       InfoLevel,
		Categories:  DefaultCategories(),
		MaxBytes:    100 * 1024 * 1024,
		BackupCount: 30,
		Buffered:    true,
		BufferSize:  1000,
	}
}

// FromEnv loads configuration from TRACE_* environment variables,
// falling back to defaults for anything unset.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load trace config: %w", err)
	}
	if cfg.Categories == nil {
		cfg.Categories = DefaultCategories()
	}
	return &cfg, nil
}

// LoadFile reads a YAML configuration file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse trace config %s: %w", path, err)
	}
	return cfg, nil
}

// LevelFor resolves the effective level for a category: the per-category
// override when present, the global default otherwise.
func (c *Config) LevelFor(category string) Level {
	if lvl, ok := c.Categories[category]; ok {
		return lvl
	}
	return c.Level
}

// EnsureDirs creates the trace root and one directory per category.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.TraceDir, 0o755); err != nil {
		return err
	}
	for category := range c.Categories {
		if err := os.MkdirAll(filepath.Join(c.TraceDir, category), 0o755); err != nil {
			return err
		}
	}
	return nil
}

var (
	mu     sync.Mutex
	global *Config
)

// Configure establishes the process-wide configuration on first call and
// creates the category directories. Subsequent calls are a no-op that
// returns the already-established instance; the attempt is noted on the
// diagnostics logger. A nil cfg configures from the environment.
func Configure(cfg *Config) *Config {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		if cfg != nil {
			diag.Default().Warn("trace pipeline already configured, ignoring new configuration")
		}
		return global
	}

	if cfg == nil {
		loaded, err := FromEnv()
		if err != nil {
			diag.Default().Warn("invalid trace environment, using defaults", diag.Error(err))
			loaded = Default()
		}
		cfg = loaded
	}
	if cfg.Categories == nil {
		cfg.Categories = DefaultCategories()
	}
	if err := cfg.EnsureDirs(); err != nil {
		diag.Default().Warn("failed to create trace directories", diag.Error(err))
	}
	global = cfg
	return global
}

// Current returns the process-wide configuration, establishing the
// default one if Configure was never called.
func Current() *Config {
	mu.Lock()
	established := global
	mu.Unlock()
	if established != nil {
		return established
	}
	return Configure(nil)
}
