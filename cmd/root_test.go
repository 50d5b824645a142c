// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalang/strata/persist"
	"github.com/stratalang/strata/testhook"
)

func execCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rc := NewRootCommand(strings.NewReader(""), &stdout, &stderr)
	rc.SetArgs(args)
	err := rc.Execute()
	return stdout.String(), err
}

func TestConfigSubcommand(t *testing.T) {
	out, err := execCommand(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "cache-dir")
	assert.Contains(t, out, "[memory]")
}

func TestCacheSubcommands(t *testing.T) {
	dir, err := testhook.TempDir(t, "stratactl-cmd")
	require.NoError(t, err)
	c := persist.Open(dir, persist.ModeReadWrite)
	c.Store("parse", "main.st", 1, persist.FingerprintString("src"), []byte("tree"))
	require.NoError(t, c.Close())

	out, err := execCommand(t, "cache", "stats", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "parse")

	out, err = execCommand(t, "cache", "keys", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "key=main.st")

	out, err = execCommand(t, "cache", "clear", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared cache parse")
}

func TestCacheStatsRequiresDir(t *testing.T) {
	_, err := execCommand(t, "cache", "stats")
	require.Error(t, err)
}
