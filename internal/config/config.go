// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Package config loads and validates Segmentfold configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML config
// file, then environment variables. Later layers override earlier ones.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Segmentfold server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Sources  SourcesConfig  `koanf:"sources"`
	Segments SegmentsConfig `koanf:"segments"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings for the embedded analytical engine.
type DatabaseConfig struct {
	// Path is the DuckDB database file path. ":memory:" runs fully in-memory,
	// which is the natural fit since loaded tables are ephemeral per process.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage, e.g. "2GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = use runtime.NumCPU().
	Threads int `koanf:"threads"`

	// PreserveInsertionOrder keeps DuckDB's default row ordering behavior.
	// Disabling reduces memory usage for large imports.
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`
}

// SourcesConfig controls fetching of external audience datasets.
type SourcesConfig struct {
	// CacheDir is where fetched source files are staged before import.
	CacheDir string `koanf:"cache_dir"`

	// FetchTimeout bounds a single fetch attempt end to end.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`

	// RetryAttempts is the number of fetch attempts before surfacing an
	// upstream error. Query execution is never retried; only fetches are.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryDelay is the base delay between fetch attempts.
	RetryDelay time.Duration `koanf:"retry_delay"`

	// FetchesPerSecond rate-limits fetch launches process-wide. 0 = unlimited.
	FetchesPerSecond float64 `koanf:"fetches_per_second"`

	// S3 configures access to s3:// sources.
	S3 S3Config `koanf:"s3"`
}

// S3Config holds S3 client settings for s3:// audience sources.
// Credentials should come from the environment or instance profiles;
// the static fields exist for S3-compatible stores (MinIO etc.).
type S3Config struct {
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// SegmentsConfig holds the durable segment store settings.
type SegmentsConfig struct {
	// StorePath is the BadgerDB directory for persisted segment definitions.
	StorePath string `koanf:"store_path"`
}

// APIConfig holds API behavior settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig holds the HTTP edge settings the engine still needs even
// though authentication itself lives in the out-of-scope outer layers.
type SecurityConfig struct {
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Sources.FetchTimeout <= 0 {
		return fmt.Errorf("sources.fetch_timeout must be positive, got %s", c.Sources.FetchTimeout)
	}
	if c.Sources.RetryAttempts < 1 {
		return fmt.Errorf("sources.retry_attempts must be at least 1, got %d", c.Sources.RetryAttempts)
	}
	if c.Segments.StorePath == "" {
		return fmt.Errorf("segments.store_path must not be empty")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must be >= api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	return nil
}
