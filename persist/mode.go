// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package persist

import (
	"os"
	"strings"

	"github.com/stratalang/strata/errors"
)

// Mode controls what disk access the cache is allowed. It is resolved
// once when a Cache is opened and never changes for the life of the
// handle.
type Mode int

const (
	// ModeDisabled performs no disk I/O at all.
	ModeDisabled Mode = iota
	// ModeReadOnly may read existing entries but never writes.
	ModeReadOnly
	// ModeReadWrite may both read and write.
	ModeReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeReadOnly:
		return "read-only"
	case ModeReadWrite:
		return "read-write"
	}
	return "unknown"
}

// CanRead reports whether the mode permits loads.
func (m Mode) CanRead() bool { return m != ModeDisabled }

// CanWrite reports whether the mode permits stores.
func (m Mode) CanWrite() bool { return m == ModeReadWrite }

// EnvOverride is the environment variable consulted by ResolveMode when
// no explicit mode is configured.
const EnvOverride = "STRATA_CACHE"

// ParseMode parses a mode string. Recognized values are
// {off, disabled}, {ro, read-only}, and {rw, read-write, on}.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "disabled":
		return ModeDisabled, nil
	case "ro", "read-only":
		return ModeReadOnly, nil
	case "rw", "read-write", "on":
		return ModeReadWrite, nil
	}
	return ModeDisabled, errors.Errorf("unrecognized cache mode %q", s)
}

// ResolveMode resolves the effective mode from, in priority order: the
// explicit configured value, the EnvOverride environment variable, and
// the build-profile default. Unparseable values fall through to the
// next source.
func ResolveMode(explicit string) Mode {
	if explicit != "" {
		if m, err := ParseMode(explicit); err == nil {
			return m
		}
	}
	if env := os.Getenv(EnvOverride); env != "" {
		if m, err := ParseMode(env); err == nil {
			return m
		}
	}
	return defaultMode
}
