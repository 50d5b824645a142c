// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stratalang/strata/ctl"
	"github.com/stratalang/strata/logger"
)

func newCacheCommand(stdout io.Writer, logdest logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the persistent cache.",
		Long: `
Provides a set of commands operating on a cache directory.
`,
	}
	cmd.AddCommand(newCacheStatsCommand(stdout, logdest))
	cmd.AddCommand(newCacheKeysCommand(stdout, logdest))
	cmd.AddCommand(newCacheClearCommand(stdout, logdest))
	return cmd
}

func cacheDirArg(dir *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("%w: cache directory required", ctl.UsageError)
		} else if len(args) > 1 {
			return fmt.Errorf("%w: too many command line arguments", ctl.UsageError)
		}
		*dir = args[0]
		return nil
	}
}

func newCacheStatsCommand(stdout io.Writer, logdest logger.Logger) *cobra.Command {
	c := ctl.NewCacheStatsCommand(logdest)
	c.SetStdout(stdout)
	cmd := &cobra.Command{
		Use:   "stats [flags] DIR",
		Short: "Summarize the cache: entries and bytes per named cache.",
		Args:  cacheDirArg(&c.Dir),
		RunE: usageErrorWrapper(func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		}),
	}
	return cmd
}

func newCacheKeysCommand(stdout io.Writer, logdest logger.Logger) *cobra.Command {
	c := ctl.NewCacheKeysCommand(logdest)
	c.SetStdout(stdout)
	cmd := &cobra.Command{
		Use:   "keys [flags] DIR",
		Short: "List cache entries with their keys and fingerprints.",
		Args:  cacheDirArg(&c.Dir),
		RunE: usageErrorWrapper(func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		}),
	}
	flags := cmd.Flags()
	ctl.SetCacheFlags(flags, &c.Cache)
	flags.BoolVar(&c.Hexa, "hexa", false, "Print full fingerprints rather than a prefix")
	return cmd
}

func newCacheClearCommand(stdout io.Writer, logdest logger.Logger) *cobra.Command {
	c := ctl.NewCacheClearCommand(logdest)
	c.SetStdout(stdout)
	cmd := &cobra.Command{
		Use:   "clear [flags] DIR",
		Short: "Drop cached entries. Always safe; the engine recomputes.",
		Args:  cacheDirArg(&c.Dir),
		RunE: usageErrorWrapper(func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		}),
	}
	ctl.SetCacheFlags(cmd.Flags(), &c.Cache)
	return cmd
}
