// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cmd wires the ctl commands into a cobra command tree for the
// stratactl binary.
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/stratalang/strata/errors"
	"github.com/stratalang/strata/logger"
)

// NewRootCommand returns the stratactl root command.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	logdest := logger.NewStandardLogger(stderr)
	rc := &cobra.Command{
		Use:   "stratactl",
		Short: "stratactl administers a strata persistent cache.",
		Long: `stratactl administers a strata persistent cache.

It can summarize, list, and clear the on-disk cache, and print the
effective engine configuration. Clearing the cache is always safe:
the engine recomputes anything it cannot load.
`,
		SilenceUsage: true,
	}

	rc.AddCommand(newCacheCommand(stdout, logdest))
	rc.AddCommand(newConfigCommand(stdout, logdest))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// usageErrorWrapper returns RunE middleware that prints usage on
// argument errors and stays quiet on operational ones.
func usageErrorWrapper(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := run(cmd, args)
		if err != nil && errors.Is(err, errors.ErrUncoded) {
			_ = cmd.Usage()
		}
		return err
	}
}
