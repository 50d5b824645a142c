// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"

	"github.com/stratalang/strata/errors"
	"github.com/stratalang/strata/mem"
	"github.com/stratalang/strata/persist"
)

// Config is the host-supplied engine configuration. Values left zero
// fall back to the defaults from NewConfig.
type Config struct {
	// CacheDir is the root directory for the persistent cache.
	CacheDir string `toml:"cache-dir"`

	// CacheMode selects the persistence mode: off/disabled,
	// ro/read-only, rw/read-write/on. Empty defers to the
	// STRATA_CACHE environment override, then the build default.
	CacheMode string `toml:"cache-mode"`

	Memory MemoryConfig `toml:"memory"`
}

// MemoryConfig carries per-category byte budgets and the pressure
// thresholds as fractions of budget.
type MemoryConfig struct {
	QueryCacheBudget  int64 `toml:"query-cache-budget"`
	SyntaxTreesBudget int64 `toml:"syntax-trees-budget"`
	IndexesBudget     int64 `toml:"indexes-budget"`
	TypeInfoBudget    int64 `toml:"type-info-budget"`
	OtherBudget       int64 `toml:"other-budget"`

	MediumFraction   float64 `toml:"medium-fraction"`
	HighFraction     float64 `toml:"high-fraction"`
	CriticalFraction float64 `toml:"critical-fraction"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	cacheDir := "strata"
	if base, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(base, "strata")
	}
	return &Config{
		CacheDir: cacheDir,
		Memory: MemoryConfig{
			QueryCacheBudget:  256 << 20,
			SyntaxTreesBudget: 128 << 20,
			IndexesBudget:     128 << 20,
			TypeInfoBudget:    128 << 20,
			OtherBudget:       64 << 20,
			MediumFraction:    0.8,
			HighFraction:      1.0,
			CriticalFraction:  1.2,
		},
	}
}

// LoadConfig reads a TOML config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// MemConfig translates the memory section into a mem.Config.
func (c *Config) MemConfig() mem.Config {
	m := c.Memory
	return mem.Config{
		Budgets: map[mem.Category]int64{
			mem.CategoryQueryCache:  m.QueryCacheBudget,
			mem.CategorySyntaxTrees: m.SyntaxTreesBudget,
			mem.CategoryIndexes:     m.IndexesBudget,
			mem.CategoryTypeInfo:    m.TypeInfoBudget,
			mem.CategoryOther:       m.OtherBudget,
		},
		MediumFraction:   m.MediumFraction,
		HighFraction:     m.HighFraction,
		CriticalFraction: m.CriticalFraction,
		EnforceRounds:    3,
	}
}

// PersistMode resolves the effective persistence mode: explicit config
// first, then the environment override, then the build default.
func (c *Config) PersistMode() persist.Mode {
	return persist.ResolveMode(c.CacheMode)
}
