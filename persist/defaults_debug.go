// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

//go:build stratadebug

package persist

const defaultMode = ModeDisabled
