// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml"

	"github.com/stratalang/strata"
	"github.com/stratalang/strata/logger"
)

// ConfigCommand prints the effective configuration as TOML: the
// defaults, optionally overlaid with a config file. Piping the output
// into a file yields a complete, editable starting config.
type ConfigCommand struct {
	// Path is an optional config file to load over the defaults.
	Path string

	stdout  io.Writer
	logDest logger.Logger
}

// NewConfigCommand returns a new instance of ConfigCommand.
func NewConfigCommand(logdest logger.Logger) *ConfigCommand {
	return &ConfigCommand{
		stdout:  os.Stdout,
		logDest: logdest,
	}
}

// SetStdout redirects the command's output.
func (cmd *ConfigCommand) SetStdout(w io.Writer) { cmd.stdout = w }

// Run prints the resolved configuration.
func (cmd *ConfigCommand) Run(ctx context.Context) error {
	cfg := strata.NewConfig()
	if cmd.Path != "" {
		loaded, err := strata.LoadConfig(cmd.Path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	out, err := toml.Marshal(*cfg)
	if err != nil {
		return err
	}
	if _, err := cmd.stdout.Write(out); err != nil {
		return err
	}
	fmt.Fprintf(cmd.stdout, "\n# effective cache mode: %s\n", cfg.PersistMode())
	return nil
}
