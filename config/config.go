package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/INLOpen/nexuschain/core"
	"gopkg.in/yaml.v3"
)

// ChainConfig holds chain storage and resolution settings.
type ChainConfig struct {
	DataDir string `yaml:"data_dir"`
	// Timestamped stamps every issued operation with the store clock.
	Timestamped           bool   `yaml:"timestamped"`
	ResolvedCacheCapacity int    `yaml:"resolved_cache_capacity"`
	ResolveConcurrency    int    `yaml:"resolve_concurrency"`
	LockTimeout           string `yaml:"lock_timeout"`
}

// WALConfig holds Write-Ahead Log specific configurations.
type WALConfig struct {
	SyncMode            string `yaml:"sync_mode"`   // "always" or "disabled"
	Compression         string `yaml:"compression"` // "none", "snappy", "lz4" or "zstd"
	MaxSegmentSizeBytes int64  `yaml:"max_segment_size_bytes"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stdout", "stderr", "file" or "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // e.g., "localhost:4317" for gRPC OTLP collector
	Protocol string `yaml:"protocol"` // "grpc" or "http"
}

// Config is the top-level configuration struct.
type Config struct {
	Chain   ChainConfig   `yaml:"chain"`
	WAL     WALConfig     `yaml:"wal"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			DataDir:               "./data",
			Timestamped:           false,
			ResolvedCacheCapacity: 1024,
			ResolveConcurrency:    4,
			LockTimeout:           "1s",
		},
		WAL: WALConfig{
			SyncMode:            string(core.WALSyncAlways),
			Compression:         "snappy",
			MaxSegmentSizeBytes: core.WALMaxSegmentSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nexuschain.log",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
			Protocol: "grpc",
		},
	}
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	// A nil reader behaves like an empty file.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the chain store cannot run with.
func (c *Config) Validate() error {
	switch core.WALSyncMode(c.WAL.SyncMode) {
	case core.WALSyncAlways, core.WALSyncDisabled:
	default:
		return fmt.Errorf("invalid wal.sync_mode %q", c.WAL.SyncMode)
	}
	if _, err := core.ParseCompressionType(c.WAL.Compression); err != nil {
		return fmt.Errorf("invalid wal.compression: %w", err)
	}
	if c.WAL.MaxSegmentSizeBytes < 0 {
		return fmt.Errorf("wal.max_segment_size_bytes must not be negative, got %d", c.WAL.MaxSegmentSizeBytes)
	}
	if c.Chain.DataDir == "" {
		return fmt.Errorf("chain.data_dir must be set")
	}
	if c.Chain.ResolveConcurrency < 0 {
		return fmt.Errorf("chain.resolve_concurrency must not be negative, got %d", c.Chain.ResolveConcurrency)
	}
	switch c.Tracing.Protocol {
	case "grpc", "http":
	default:
		if c.Tracing.Enabled {
			return fmt.Errorf("invalid tracing.protocol %q", c.Tracing.Protocol)
		}
	}
	return nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}
