// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"golang.org/x/exp/slices"
)

// memoEvictor implements mem.Evictor over the database's memo tables.
// Eviction is always safe because memoization is a pure cache, never a
// source of truth: anything dropped is recomputed on next demand.
type memoEvictor struct {
	db *DB
}

// Flush runs the database's best-effort flush hook, giving query
// owners a chance to push cold derived values to the persistence layer
// before they are dropped.
func (e *memoEvictor) Flush() {
	if e.db.flush != nil {
		e.db.flush()
	}
}

// Evict reduces memo-table usage to at most target bytes. A target of
// zero discards the entire memo table and rebuilds empty storage,
// which resets every intern table outside the preserve allow-list;
// positive targets trim incrementally, least-recently-verified and
// largest memos first, and never touch intern tables.
func (e *memoEvictor) Evict(target int64) int64 {
	if target <= 0 {
		e.db.rebuildMemoTables()
		return 0
	}
	return e.db.trimMemoTables(target)
}

// TrimMemos drops memos until approximate usage is at most target
// bytes, reporting the usage reached. A target of zero or below is a
// full rebuild. Exposed for hosts that manage memory without a
// mem.Manager; under a manager, Enforce drives the same paths.
func (db *DB) TrimMemos(target int64) int64 {
	if target <= 0 {
		db.rebuildMemoTables()
		return 0
	}
	return db.trimMemoTables(target)
}

// RebuildMemos discards every memo and resets non-preserved intern
// tables.
func (db *DB) RebuildMemos() {
	db.rebuildMemoTables()
}

// rebuildMemoTables discards all memos. Intern tables registered with
// preserve=true keep their contents so identities already handed to
// external consumers remain resolvable; all other intern tables start
// a fresh generation.
func (db *DB) rebuildMemoTables() {
	db.tmu.Lock()
	tables := make([]table, len(db.tables))
	copy(tables, db.tables)
	interns := make([]*internState, len(db.interns))
	copy(interns, db.interns)
	db.tmu.Unlock()

	var freed int64
	for _, t := range tables {
		freed += t.clear()
	}
	for _, is := range interns {
		if !is.preserve {
			is.reset()
		}
	}
	db.log.Infof("memo rebuild freed ~%d bytes", freed)
}

// trimMemoTables drops memos until usage is at most target, preferring
// the least recently verified and, among equals, the most expensive.
func (db *DB) trimMemoTables(target int64) int64 {
	db.tmu.Lock()
	tables := make([]table, len(db.tables))
	copy(tables, db.tables)
	db.tmu.Unlock()

	var usage int64
	var cands []evictCandidate
	for _, t := range tables {
		usage += t.usageBytes()
		cands = append(cands, t.candidates()...)
	}
	if usage <= target {
		return usage
	}
	slices.SortFunc(cands, func(a, b evictCandidate) bool {
		if a.verifiedAt != b.verifiedAt {
			return a.verifiedAt < b.verifiedAt
		}
		return a.cost > b.cost
	})
	for _, c := range cands {
		if usage <= target {
			break
		}
		usage -= c.t.drop(c.arg)
	}
	db.log.Debugf("memo trim reached ~%d bytes (target %d)", usage, target)
	return usage
}
