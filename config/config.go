// Copyright 2025 The loro-go-core Authors
// This file is part of loro-go-core.
//
// loro-go-core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// loro-go-core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with loro-go-core. If not, see <http://www.gnu.org/licenses/>.

// Package config holds the tunable thresholds spec.md leaves as "a size
// exists" open questions (SPEC_FULL.md §9 D2): change-block / SSTable block
// budgets, block-cache size, and undo merge/bound parameters. Values are
// expressed with github.com/c2h5oh/datasize so a TOML file can say "4KiB"
// instead of a bare integer, matching the teacher's config ergonomics.
package config

import (
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/pbnjay/memory"
	"github.com/pelletier/go-toml/v2"
)

// Config collects every tunable named across spec.md §4/§9. Zero-value
// fields are filled in by Default() / Normalize().
type Config struct {
	// MaxChangeBlockSize bounds a ChangeStore ChangeBlock's encoded size
	// before a new block is begun (spec.md §3, §4.5).
	MaxChangeBlockSize datasize.ByteSize `toml:"max_change_block_size"`

	// SSTableBlockSize is the per-block budget SSTableBuilder uses (spec.md
	// §4.1/§4.2).
	SSTableBlockSize datasize.ByteSize `toml:"sstable_block_size"`

	// BlockCacheBudget bounds the SSTable block cache's resident bytes
	// (spec.md §4.2).
	BlockCacheBudget datasize.ByteSize `toml:"block_cache_budget"`

	// AutoSizeCache, when true, derives BlockCacheBudget from a fraction of
	// total system memory (via github.com/pbnjay/memory) instead of using
	// the fixed default, for embedding callers that want a cache that
	// scales with the host.
	AutoSizeCache     bool    `toml:"auto_size_cache"`
	AutoSizeCacheFrac float64 `toml:"auto_size_cache_frac"`

	// UndoMergeIntervalMs is the timestamp window (spec.md §4.9) within
	// which two adjacent local undo-stack entries are merged.
	UndoMergeIntervalMs int64 `toml:"undo_merge_interval_ms"`

	// UndoMaxDepth is the undo stack depth limit (spec.md §4.9 "Bounds");
	// Normalize replaces 0 with the default depth.
	UndoMaxDepth int `toml:"undo_max_depth"`

	// ChangeMergeIntervalMs is the ChangeStore intra-peer RLE-merge window
	// (spec.md §4.5's merge_interval_ms).
	ChangeMergeIntervalMs int64 `toml:"change_merge_interval_ms"`

	// LogLevel selects internal/logging's verbosity for callers that build
	// their logger from this Config rather than supplying their own.
	LogLevel string `toml:"log_level"`
}

const (
	// defaultBlockSize is the 4 KiB default of both MaxChangeBlockSize and
	// SSTableBlockSize (SPEC_FULL.md D2).
	defaultBlockSize  = 4 * datasize.KB
	defaultCacheBytes = 1 * datasize.MB

	defaultUndoMergeIntervalMs   = 1000
	defaultChangeMergeIntervalMs = 1000
	defaultUndoMaxDepth          = 100
)

// Default returns a Config with every field set to SPEC_FULL.md D2's
// chosen tuning defaults.
func Default() Config {
	return Config{
		MaxChangeBlockSize:    defaultBlockSize,
		SSTableBlockSize:      defaultBlockSize,
		BlockCacheBudget:      defaultCacheBytes,
		UndoMergeIntervalMs:   defaultUndoMergeIntervalMs,
		ChangeMergeIntervalMs: defaultChangeMergeIntervalMs,
		UndoMaxDepth:          defaultUndoMaxDepth,
		LogLevel:              "info",
	}
}

// Normalize fills any zero-valued field with its default, and — if
// AutoSizeCache is set — overrides BlockCacheBudget with a fraction of
// github.com/pbnjay/memory.TotalMemory().
func (c *Config) Normalize() {
	def := Default()
	if c.MaxChangeBlockSize == 0 {
		c.MaxChangeBlockSize = def.MaxChangeBlockSize
	}
	if c.SSTableBlockSize == 0 {
		c.SSTableBlockSize = def.SSTableBlockSize
	}
	if c.BlockCacheBudget == 0 {
		c.BlockCacheBudget = def.BlockCacheBudget
	}
	if c.UndoMergeIntervalMs == 0 {
		c.UndoMergeIntervalMs = def.UndoMergeIntervalMs
	}
	if c.ChangeMergeIntervalMs == 0 {
		c.ChangeMergeIntervalMs = def.ChangeMergeIntervalMs
	}
	if c.UndoMaxDepth == 0 {
		c.UndoMaxDepth = def.UndoMaxDepth
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.AutoSizeCache {
		frac := c.AutoSizeCacheFrac
		if frac <= 0 {
			frac = 0.01 // 1% of host memory, a conservative embedding default
		}
		if total := memory.TotalMemory(); total > 0 {
			c.BlockCacheBudget = datasize.ByteSize(float64(total) * frac)
		}
	}
}

// Load reads and parses a TOML config file, then Normalizes it.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := toml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	c.Normalize()
	return c, nil
}
