// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"

	bolt "go.etcd.io/bbolt"

	"github.com/stratalang/strata/logger"
	"github.com/stratalang/strata/persist"
)

// CacheKeysCommand lists the entries stored in the persistent cache.
type CacheKeysCommand struct {
	// Dir is the cache root directory.
	Dir string

	// Cache restricts the listing to one named cache; empty lists all.
	Cache string

	// Hexa prints full fingerprints rather than a truncated prefix.
	Hexa bool

	stdout  io.Writer
	logDest logger.Logger
}

// NewCacheKeysCommand returns a new instance of CacheKeysCommand.
func NewCacheKeysCommand(logdest logger.Logger) *CacheKeysCommand {
	return &CacheKeysCommand{
		stdout:  os.Stdout,
		logDest: logdest,
	}
}

// SetStdout redirects the command's output.
func (cmd *CacheKeysCommand) SetStdout(w io.Writer) { cmd.stdout = w }

// Run lists entries, one per line.
func (cmd *CacheKeysCommand) Run(ctx context.Context) error {
	db, err := openCacheDB(cmd.Dir, true)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		if cmd.Cache != "" {
			b := tx.Bucket([]byte(cmd.Cache))
			if b == nil {
				return fmt.Errorf("%w: no cache named %q", UsageError, cmd.Cache)
			}
			return cmd.listBucket(cmd.Cache, b)
		}
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			return cmd.listBucket(string(name), b)
		})
	})
}

func (cmd *CacheKeysCommand) listBucket(name string, b *bolt.Bucket) error {
	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		info, ok := persist.DescribeEntry(v)
		if !ok {
			cmd.logDest.Warnf("cache %s: undecodable entry %x", name, k)
			continue
		}
		fp := info.Fingerprint.String()
		if !cmd.Hexa {
			fp = fp[:12]
		}
		fmt.Fprintf(cmd.stdout, "cache=%s key=%s schema=%d fp=%s payload=%d\n",
			name, info.Key, info.Schema, fp, info.PayloadBytes)
	}
	return nil
}
