// Coursematch - Embedding-Based Course Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/coursematch

package recommend

import (
	"fmt"
	"time"
)

// Config contains engine configuration.
type Config struct {
	// DefaultTopN is used when a caller does not ask for a result count.
	DefaultTopN int `json:"default_top_n"`

	// MaxTopN caps any requested result count.
	MaxTopN int `json:"max_top_n"`

	// ModelID identifies the encoder weights. It is stored with snapshots.
	ModelID string `json:"model_id"`

	// PersistOnRefresh saves a snapshot after every successful refresh.
	PersistOnRefresh bool `json:"persist_on_refresh"`

	// KeepSnapshots is how many snapshot versions are retained.
	KeepSnapshots int `json:"keep_snapshots"`

	// RefreshTimeout bounds loading courses from the source. Encoding runs to completion.
	RefreshTimeout time.Duration `json:"refresh_timeout"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultTopN:      5,
		MaxTopN:          100,
		ModelID:          "all-MiniLM-L6-v2",
		PersistOnRefresh: true,
		KeepSnapshots:    3,
		RefreshTimeout:   2 * time.Minute,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTopN < 1 {
		return fmt.Errorf("default_top_n must be positive, got %d", c.DefaultTopN)
	}
	if c.MaxTopN < c.DefaultTopN {
		return fmt.Errorf("max_top_n must be >= default_top_n, got %d < %d", c.MaxTopN, c.DefaultTopN)
	}
	if c.ModelID == "" {
		return fmt.Errorf("model_id is required")
	}
	if c.KeepSnapshots < 1 {
		return fmt.Errorf("keep_snapshots must be positive, got %d", c.KeepSnapshots)
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh_timeout must be positive, got %v", c.RefreshTimeout)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// ClampTopN maps a requested count onto [1, MaxTopN], using DefaultTopN for n <= 0.
func (c *Config) ClampTopN(n int) int {
	if n <= 0 {
		return c.DefaultTopN
	}
	if n > c.MaxTopN {
		return c.MaxTopN
	}
	return n
}
