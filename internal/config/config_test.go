// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

package config

import (
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("default database path = %q, want :memory:", cfg.Database.Path)
	}
	if cfg.API.MaxPageSize != 1000 {
		t.Errorf("default max page size = %d, want 1000", cfg.API.MaxPageSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero fetch timeout", func(c *Config) { c.Sources.FetchTimeout = 0 }},
		{"zero retry attempts", func(c *Config) { c.Sources.RetryAttempts = 0 }},
		{"empty store path", func(c *Config) { c.Segments.StorePath = "" }},
		{"max below default page size", func(c *Config) { c.API.MaxPageSize = 10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation failure, got nil")
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"HTTP_PORT", "server.port"},
		{"DUCKDB_PATH", "database.path"},
		{"SOURCE_FETCH_TIMEOUT", "sources.fetch_timeout"},
		{"S3_ENDPOINT", "sources.s3.endpoint"},
		{"SEGMENT_STORE_PATH", "segments.store_path"},
		{"LOG_LEVEL", "logging.level"},
		{"RANDOM_UNRELATED_VAR", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	// No config file and no mapped env vars in the test environment: Load
	// should return pure defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8710 {
		t.Errorf("port = %d, want 8710", cfg.Server.Port)
	}
	if cfg.Sources.FetchTimeout != 2*time.Minute {
		t.Errorf("fetch timeout = %s, want 2m", cfg.Sources.FetchTimeout)
	}
}
