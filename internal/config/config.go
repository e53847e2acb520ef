// Package config provides configuration types and defaults for skillstore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quarrylabs/skillstore/internal/log"
)

// Config holds all configuration options for skillstore.
type Config struct {
	// Root is the registry root directory holding the index database, the
	// content archive, the lock file, and the transaction journal.
	Root string `mapstructure:"root"`

	// LayerOrder lists precedence layers, lowest first.
	LayerOrder []string `mapstructure:"layer_order"`

	Resolution ResolutionConfig `mapstructure:"resolution"`
	Lock       LockConfig       `mapstructure:"lock"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Tombstones TombstoneConfig  `mapstructure:"tombstones"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Tracing    TracingConfig    `mapstructure:"tracing"`

	// Flags holds feature flags for staged rollout of new behavior.
	Flags map[string]bool `mapstructure:"flags"`
}

// ResolutionConfig controls cross-layer conflict handling.
type ResolutionConfig struct {
	// ConflictStrategy decides the winning layer for a conflicting section.
	// Valid values: "prefer_higher" (default), "prefer_lower", "interactive"
	ConflictStrategy string `mapstructure:"conflict_strategy"`

	// MergeStrategy decides how non-conflicting content combines.
	// Valid values: "auto" (default), "prefer_sections", "replace"
	MergeStrategy string `mapstructure:"merge_strategy"`
}

// LockConfig controls global write lock acquisition.
type LockConfig struct {
	// Timeout bounds how long a writer waits for the global lock.
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig controls the resolved-skill cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// TTL is the lifetime of a cached resolution. Writes flush the cache
	// regardless; the TTL only caps staleness from out-of-process writers.
	TTL time.Duration `mapstructure:"ttl"`
}

// TombstoneConfig controls the explicit purge path.
type TombstoneConfig struct {
	// RetentionDays is the minimum age before a tombstone is purgeable.
	RetentionDays int `mapstructure:"retention_days"`
}

// WatcherConfig controls filesystem watching for cache invalidation.
type WatcherConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Debounce coalesces bursts of filesystem events.
	Debounce time.Duration `mapstructure:"debounce"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active. Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp". Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0). Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultRoot returns ~/.skillstore, or "" if the home dir is unavailable.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".skillstore")
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	root := DefaultRoot()
	if root == "" {
		return ""
	}
	return filepath.Join(root, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Root:       DefaultRoot(),
		LayerOrder: []string{"base", "org", "project", "user"},
		Resolution: ResolutionConfig{
			ConflictStrategy: "prefer_higher",
			MergeStrategy:    "auto",
		},
		Lock: LockConfig{
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
		Tombstones: TombstoneConfig{
			RetentionDays: 30,
		},
		Watcher: WatcherConfig{
			Enabled:  false,
			Debounce: 200 * time.Millisecond,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from root at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the whole configuration for errors.
func (c Config) Validate() error {
	if err := ValidateLayerOrder(c.LayerOrder); err != nil {
		return err
	}
	if err := ValidateResolution(c.Resolution); err != nil {
		return err
	}
	if c.Lock.Timeout < 0 {
		return fmt.Errorf("lock.timeout must not be negative, got %v", c.Lock.Timeout)
	}
	if c.Tombstones.RetentionDays < 0 {
		return fmt.Errorf("tombstones.retention_days must not be negative, got %d", c.Tombstones.RetentionDays)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateLayerOrder checks the configured precedence order.
// Returns nil for an empty order (defaults apply).
func ValidateLayerOrder(layers []string) error {
	seen := make(map[string]bool, len(layers))
	for i, l := range layers {
		if l == "" {
			return fmt.Errorf("layer_order[%d]: layer name must not be empty", i)
		}
		if seen[l] {
			return fmt.Errorf("layer_order: duplicate layer %q", l)
		}
		seen[l] = true
	}
	return nil
}

// ValidateResolution checks the strategy names.
// Empty values are valid and fall back to defaults.
func ValidateResolution(r ResolutionConfig) error {
	switch r.ConflictStrategy {
	case "", "prefer_higher", "prefer_lower", "interactive":
	default:
		return fmt.Errorf("resolution.conflict_strategy must be \"prefer_higher\", \"prefer_lower\", or \"interactive\", got %q", r.ConflictStrategy)
	}
	switch r.MergeStrategy {
	case "", "auto", "prefer_sections", "replace":
	default:
		return fmt.Errorf("resolution.merge_strategy must be \"auto\", \"prefer_sections\", or \"replace\", got %q", r.MergeStrategy)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Skillstore Configuration

# Registry root directory (default: ~/.skillstore)
# Holds the index database, the content archive, the lock file, and the
# transaction journal.
# root: /path/to/registry

# Precedence layers, lowest first. A skill defined at a later layer wins
# section-level conflicts under the default strategy.
layer_order:
  - base
  - org
  - project
  - user

# Cross-layer resolution behavior
resolution:
  # Which layer wins a conflicting section:
  #   prefer_higher  - later layers override earlier ones (default)
  #   prefer_lower   - earlier layers are protected from overrides
  #   interactive    - refuse to auto-resolve; resolution fails with details
  conflict_strategy: prefer_higher

  # How non-conflicting content combines:
  #   auto             - union sections; illustrative sections keep extra
  #                      blocks from losing layers (default)
  #   prefer_sections  - union sections; conflicts take the winner wholesale
  #   replace          - winning layer's definition wholesale
  merge_strategy: auto

# Global write lock
lock:
  # How long a writer waits before giving up with a timeout error.
  timeout: 10s

# Resolved-skill cache. Flushed automatically on every committed write.
cache:
  enabled: true
  ttl: 10m

# Logical deletions are kept as tombstones; purging is explicit.
tombstones:
  retention_days: 30

# Watch the registry for out-of-process writes and invalidate the cache.
watcher:
  enabled: false
  debounce: 200ms

# Feature flags for staged rollout of new behavior.
# flags:
#   auto-repair: false     # Repair index/archive divergence on open
#   verify-on-open: false  # Log (but do not fix) divergence on open

# Distributed tracing
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp
#   file_path: ~/.skillstore/traces/traces.jsonl
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
