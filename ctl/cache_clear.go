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
)

// CacheClearCommand drops cached entries. Clearing is always safe: the
// engine recomputes anything it can no longer load.
type CacheClearCommand struct {
	// Dir is the cache root directory.
	Dir string

	// Cache restricts clearing to one named cache; empty clears all.
	Cache string

	stdout  io.Writer
	logDest logger.Logger
}

// NewCacheClearCommand returns a new instance of CacheClearCommand.
func NewCacheClearCommand(logdest logger.Logger) *CacheClearCommand {
	return &CacheClearCommand{
		stdout:  os.Stdout,
		logDest: logdest,
	}
}

// SetStdout redirects the command's output.
func (cmd *CacheClearCommand) SetStdout(w io.Writer) { cmd.stdout = w }

// Run deletes the selected caches.
func (cmd *CacheClearCommand) Run(ctx context.Context) error {
	db, err := openCacheDB(cmd.Dir, false)
	if err != nil {
		return err
	}
	defer db.Close()

	var cleared []string
	err = db.Update(func(tx *bolt.Tx) error {
		if cmd.Cache != "" {
			if tx.Bucket([]byte(cmd.Cache)) == nil {
				return fmt.Errorf("%w: no cache named %q", UsageError, cmd.Cache)
			}
			cleared = append(cleared, cmd.Cache)
			return tx.DeleteBucket([]byte(cmd.Cache))
		}
		var names [][]byte
		if err := tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			cp := make([]byte, len(name))
			copy(cp, name)
			names = append(names, cp)
			return nil
		}); err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			cleared = append(cleared, string(name))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, name := range cleared {
		fmt.Fprintf(cmd.stdout, "cleared cache %s\n", name)
	}
	return nil
}
