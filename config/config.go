// Copyright (C) 2025-2026, ShardKV Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the host-side settings a kepaxosd process needs
// to construct an engine.Engine: its own replica index, the ordered peer
// list, the durable log's connection string, and an optional fast-path
// quorum setting (spec.md §6 "Construction").
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of a replica's settings file.
type Config struct {
	// MyIndex is this replica's index into Peers.
	MyIndex uint8 `yaml:"my_index"`
	// Peers is the ordered list of peer network addresses, including
	// this replica's own address at MyIndex.
	Peers []string `yaml:"peers"`
	// DBDSN is the PostgreSQL connection string for the durable log.
	DBDSN string `yaml:"db_dsn"`
	// FastPathQuorum is parsed and range-checked by Validate (0 to
	// len(Peers)). Nothing else reads it: engine.Config has no matching
	// field, and the engine always uses the bare-majority rule of
	// quorum.Quorum (DESIGN.md open-question decision 1).
	FastPathQuorum int `yaml:"fast_path_quorum,omitempty"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks that c is internally consistent.
func (c *Config) Validate() error {
	if len(c.Peers) == 0 {
		return fmt.Errorf("config: peers must not be empty")
	}
	if int(c.MyIndex) >= len(c.Peers) {
		return fmt.Errorf("config: my_index %d out of range for %d peers", c.MyIndex, len(c.Peers))
	}
	if c.DBDSN == "" {
		return fmt.Errorf("config: db_dsn is required")
	}
	if c.FastPathQuorum < 0 || c.FastPathQuorum > len(c.Peers) {
		return fmt.Errorf("config: fast_path_quorum %d out of range for %d peers", c.FastPathQuorum, len(c.Peers))
	}
	return nil
}
