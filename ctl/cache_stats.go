// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	bolt "go.etcd.io/bbolt"

	"github.com/stratalang/strata/logger"
)

// CacheStatsCommand summarizes the on-disk cache: per-cache entry
// counts and byte usage.
type CacheStatsCommand struct {
	// Dir is the cache root directory.
	Dir string

	stdout  io.Writer
	logDest logger.Logger
}

// NewCacheStatsCommand returns a new instance of CacheStatsCommand.
func NewCacheStatsCommand(logdest logger.Logger) *CacheStatsCommand {
	return &CacheStatsCommand{
		stdout:  os.Stdout,
		logDest: logdest,
	}
}

// SetStdout redirects the command's output.
func (cmd *CacheStatsCommand) SetStdout(w io.Writer) { cmd.stdout = w }

// Run prints one line per named cache plus a totals line.
func (cmd *CacheStatsCommand) Run(ctx context.Context) error {
	db, err := openCacheDB(cmd.Dir, true)
	if err != nil {
		return err
	}
	defer db.Close()

	w := tabwriter.NewWriter(cmd.stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintf(w, "CACHE\tENTRIES\tBYTES\n")
	var totalEntries, totalBytes int64
	err = db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			var entries, bytes int64
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				entries++
				bytes += int64(len(k) + len(v))
			}
			totalEntries += entries
			totalBytes += bytes
			fmt.Fprintf(w, "%s\t%d\t%d\n", name, entries, bytes)
			return nil
		})
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "TOTAL\t%d\t%d\n", totalEntries, totalBytes)
	return w.Flush()
}
