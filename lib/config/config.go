// Copyright 2026 The AXM Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for AXM commands.
//
// Configuration is loaded from a single YAML file specified by:
//   - AXM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery; without a file the
// normative defaults apply. Resource limits are threaded explicitly
// into the walker and readers rather than living in module-level
// mutable constants, so they are testable and overridable per run.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for AXM.
type Config struct {
	// Limits bounds every read path.
	Limits Limits `yaml:"limits"`
}

// Limits are the pre-declared resource limits gating every read path.
// An oversized or adversarial input is rejected early rather than
// exhausting memory.
type Limits struct {
	// MaxFileBytes is the largest single file hashed or read.
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// MaxTotalBytes caps the bytes scanned across a whole shard walk.
	MaxTotalBytes int64 `yaml:"max_total_bytes"`

	// MaxFileCount caps the number of files in a shard tree.
	MaxFileCount int `yaml:"max_file_count"`

	// MaxManifestBytes caps the size of manifest.json.
	MaxManifestBytes int64 `yaml:"max_manifest_bytes"`

	// MaxTableRows caps the row count of any single shard table.
	MaxTableRows int64 `yaml:"max_table_rows"`

	// MaxStreamPayloadBytes caps a single stream record payload.
	MaxStreamPayloadBytes int64 `yaml:"max_stream_payload_bytes"`
}

// Default returns the normative configuration used when no config
// file is supplied.
func Default() *Config {
	return &Config{
		Limits: Limits{
			MaxFileBytes:          256 << 20,
			MaxTotalBytes:         1 << 30,
			MaxFileCount:          10_000,
			MaxManifestBytes:      1 << 20,
			MaxTableRows:          1_000_000,
			MaxStreamPayloadBytes: 32 << 20,
		},
	}
}

// Load loads configuration from the AXM_CONFIG environment variable,
// falling back to defaults when it is unset.
func Load() (*Config, error) {
	path := os.Getenv("AXM_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. Values not
// present in the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Limits.MaxFileBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_file_bytes must be positive"))
	}
	if c.Limits.MaxTotalBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_total_bytes must be positive"))
	}
	if c.Limits.MaxFileCount <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_file_count must be positive"))
	}
	if c.Limits.MaxManifestBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_manifest_bytes must be positive"))
	}
	if c.Limits.MaxTableRows <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_table_rows must be positive"))
	}
	if c.Limits.MaxStreamPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_stream_payload_bytes must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
