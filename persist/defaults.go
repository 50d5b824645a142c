// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build !stratadebug

package persist

// defaultMode is the build-profile default used when neither the
// configuration nor the environment picks a mode. Debug builds (the
// stratadebug tag) default to disabled so tests never touch a shared
// cache by accident.
const defaultMode = ModeReadWrite
