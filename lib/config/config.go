// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config
// flag is passed.
const EnvVar = "WFLDB_CONFIG"

// Config is the server configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `yaml:"listen"`

	// DataDir is the engine's data directory. Required.
	DataDir string `yaml:"data_dir"`

	// Engine tunes the storage engine. Zero fields keep engine
	// defaults.
	Engine EngineConfig `yaml:"engine"`
}

// EngineConfig mirrors the engine options that make sense to set from
// a config file. Durations use Go duration syntax ("60s", "5m").
type EngineConfig struct {
	InlineThresholdBytes int           `yaml:"inline_threshold_bytes"`
	ChunkSizeBytes       int           `yaml:"chunk_size_bytes"`
	BatchMaxOps          int           `yaml:"batch_max_ops"`
	BatchMaxBytes        int64         `yaml:"batch_max_bytes"`
	MaxObjectBytes       int64         `yaml:"max_object_bytes"`
	GCGrace              time.Duration `yaml:"gc_grace"`
	GCInterval           time.Duration `yaml:"gc_interval"`
	MultipartTTL         time.Duration `yaml:"multipart_ttl"`
}

// Load reads and validates the configuration at path. When path is
// empty, the WFLDB_CONFIG environment variable names the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return nil, fmt.Errorf("config: no file specified (pass --config or set %s)", EnvVar)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("config: data_dir is required in %s", path)
	}
	return cfg, nil
}
