// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalang/strata/logger"
	"github.com/stratalang/strata/persist"
	"github.com/stratalang/strata/testhook"
)

// seedCache writes a few entries into a fresh cache under a temp dir
// and returns the dir.
func seedCache(t *testing.T) string {
	t.Helper()
	dir, err := testhook.TempDir(t, "stratactl")
	require.NoError(t, err)

	c := persist.Open(dir, persist.ModeReadWrite)
	c.Store("parse", "lib/a.st", 1, persist.FingerprintString("a"), []byte("payload-a"))
	c.Store("parse", "lib/b.st", 1, persist.FingerprintString("b"), []byte("payload-b"))
	c.Store("indexes", "symbols", 2, persist.FingerprintString("idx"), []byte("payload-idx"))
	require.NoError(t, c.Close())
	return dir
}

func TestCacheStatsCommand(t *testing.T) {
	dir := seedCache(t)

	var buf bytes.Buffer
	cmd := NewCacheStatsCommand(logger.NopLogger)
	cmd.Dir = dir
	cmd.stdout = &buf
	require.NoError(t, cmd.Run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "CACHE")
	assert.Contains(t, out, "parse")
	assert.Contains(t, out, "indexes")
	assert.Contains(t, out, "TOTAL")

	// parse has two entries.
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "parse") {
			assert.Contains(t, line, "2")
		}
	}
}

func TestCacheStatsMissingFile(t *testing.T) {
	dir, err := testhook.TempDir(t, "stratactl-empty")
	require.NoError(t, err)
	cmd := NewCacheStatsCommand(logger.NopLogger)
	cmd.Dir = dir
	cmd.stdout = &bytes.Buffer{}
	require.Error(t, cmd.Run(context.Background()))
}

func TestCacheKeysCommand(t *testing.T) {
	dir := seedCache(t)

	var buf bytes.Buffer
	cmd := NewCacheKeysCommand(logger.NopLogger)
	cmd.Dir = dir
	cmd.stdout = &buf
	require.NoError(t, cmd.Run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "key=lib/a.st")
	assert.Contains(t, out, "key=lib/b.st")
	assert.Contains(t, out, "key=symbols")
	assert.Contains(t, out, "schema=2")

	// Filtered to one cache.
	buf.Reset()
	cmd.Cache = "indexes"
	require.NoError(t, cmd.Run(context.Background()))
	out = buf.String()
	assert.Contains(t, out, "key=symbols")
	assert.NotContains(t, out, "lib/a.st")

	// Unknown cache is a usage error.
	cmd.Cache = "nope"
	err := cmd.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, UsageError)
}

func TestCacheKeysHexa(t *testing.T) {
	dir := seedCache(t)

	var buf bytes.Buffer
	cmd := NewCacheKeysCommand(logger.NopLogger)
	cmd.Dir = dir
	cmd.Cache = "indexes"
	cmd.Hexa = true
	cmd.stdout = &buf
	require.NoError(t, cmd.Run(context.Background()))

	want := persist.FingerprintString("idx").String()
	assert.Contains(t, buf.String(), "fp="+want)
}

func TestCacheClearCommand(t *testing.T) {
	dir := seedCache(t)

	var buf bytes.Buffer
	cmd := NewCacheClearCommand(logger.NopLogger)
	cmd.Dir = dir
	cmd.Cache = "parse"
	cmd.stdout = &buf
	require.NoError(t, cmd.Run(context.Background()))
	assert.Contains(t, buf.String(), "cleared cache parse")

	// The cleared cache misses; the untouched one still hits.
	c := persist.Open(dir, persist.ModeReadOnly)
	defer c.Close()
	_, ok := c.Load("parse", "lib/a.st", 1, persist.FingerprintString("a"))
	assert.False(t, ok)
	_, ok = c.Load("indexes", "symbols", 2, persist.FingerprintString("idx"))
	assert.True(t, ok)
}

func TestCacheClearAll(t *testing.T) {
	dir := seedCache(t)

	var buf bytes.Buffer
	cmd := NewCacheClearCommand(logger.NopLogger)
	cmd.Dir = dir
	cmd.stdout = &buf
	require.NoError(t, cmd.Run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "cleared cache parse")
	assert.Contains(t, out, "cleared cache indexes")
}

func TestConfigCommand(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewConfigCommand(logger.NopLogger)
	cmd.stdout = &buf
	require.NoError(t, cmd.Run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "cache-dir")
	assert.Contains(t, out, "query-cache-budget")
	assert.Contains(t, out, "# effective cache mode:")
}
