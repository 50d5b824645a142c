// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/stratalang/strata/ctl"
	"github.com/stratalang/strata/logger"
)

func newConfigCommand(stdout io.Writer, logdest logger.Logger) *cobra.Command {
	c := ctl.NewConfigCommand(logdest)
	c.SetStdout(stdout)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML.",
		Long: `
Prints the defaults, overlaid with a config file when one is given.
`,
		RunE: usageErrorWrapper(func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		}),
	}
	cmd.Flags().StringVarP(&c.Path, "config", "c", "", "Configuration file to read from.")
	return cmd
}
