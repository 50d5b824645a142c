// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ctl implements the administrative commands behind the
// stratactl binary: inspecting and clearing the persistent cache, and
// printing the effective configuration. The commands operate directly
// on the cache file; dropping or corrupting it is always safe for the
// engine, which treats anything unreadable as a cold cache.
package ctl

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	bolt "go.etcd.io/bbolt"

	"github.com/stratalang/strata/errors"
	"github.com/stratalang/strata/persist"
)

// SetCacheFlags registers the flags shared by the cache subcommands.
func SetCacheFlags(flags *pflag.FlagSet, cacheName *string) {
	flags.StringVar(cacheName, "cache", "", "Restrict to one named cache")
}

// UsageError marks errors caused by bad command-line arguments rather
// than failed operations.
var UsageError = errors.New(errors.ErrUncoded, "usage error")

// openCacheDB opens the cache file under dir. readOnly opens fail on a
// missing file with a coded error instead of creating an empty store.
func openCacheDB(dir string, readOnly bool) (*bolt.DB, error) {
	path := filepath.Join(dir, persist.CacheFileName)
	opts := &bolt.Options{Timeout: 1 * time.Second, ReadOnly: readOnly}
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(err, "no cache at %s", path)
		}
	}
	db, err := bolt.Open(path, 0o666, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache %s", path)
	}
	return db, nil
}
