// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stratalang/strata"
	"github.com/stratalang/strata/mem"
	"github.com/stratalang/strata/persist"
	"github.com/stratalang/strata/testhook"
)

func TestLoadConfigOverDefaults(t *testing.T) {
	dir, err := testhook.TempDir(t, "strata-config")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	path := filepath.Join(dir, "strata.toml")
	body := `
cache-dir = "/var/cache/strata"
cache-mode = "ro"

[memory]
query-cache-budget = 1048576
medium-fraction = 0.5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := strata.LoadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.CacheDir != "/var/cache/strata" {
		t.Fatalf("cache-dir: got %q", cfg.CacheDir)
	}
	if got := cfg.Memory.QueryCacheBudget; got != 1<<20 {
		t.Fatalf("query-cache-budget: got %d", got)
	}
	// Unset keys keep their defaults.
	if got := cfg.Memory.SyntaxTreesBudget; got != 128<<20 {
		t.Fatalf("syntax-trees-budget default: got %d", got)
	}
	if got := cfg.Memory.CriticalFraction; got != 1.2 {
		t.Fatalf("critical-fraction default: got %v", got)
	}

	mc := cfg.MemConfig()
	if mc.Budgets[mem.CategoryQueryCache] != 1<<20 {
		t.Fatalf("mem config budget: got %d", mc.Budgets[mem.CategoryQueryCache])
	}
	if mc.MediumFraction != 0.5 {
		t.Fatalf("mem config medium fraction: got %v", mc.MediumFraction)
	}

	t.Setenv(persist.EnvOverride, "off")
	// Explicit config beats the environment.
	if got := cfg.PersistMode(); got != persist.ModeReadOnly {
		t.Fatalf("persist mode: got %v, want read-only", got)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := strata.LoadConfig("/does/not/exist.toml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}

	f, err := testhook.TempFile(t, "strata-bad-config")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	if _, err := f.WriteString("cache-dir = [not toml"); err != nil {
		t.Fatalf("writing: %v", err)
	}
	if _, err := strata.LoadConfig(f.Name()); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestConfigPersistModeFallsBackToEnv(t *testing.T) {
	cfg := strata.NewConfig()
	t.Setenv(persist.EnvOverride, "off")
	if got := cfg.PersistMode(); got != persist.ModeDisabled {
		t.Fatalf("persist mode: got %v, want disabled", got)
	}
}
