// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"sort"
	"time"
)

// QueryStats reports execution counters for one query. Counters count
// actual executions of the query function; memo hits and successful
// revalidations don't increment them, which is exactly what makes them
// useful for verifying early cutoff.
type QueryStats struct {
	Name           string
	ExecutionCount uint64
	TotalTime      time.Duration
}

// QueryStats returns per-query execution statistics, sorted by name.
func (db *DB) QueryStats() []QueryStats {
	db.tmu.Lock()
	tables := make([]table, len(db.tables))
	copy(tables, db.tables)
	db.tmu.Unlock()

	out := make([]QueryStats, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QueryStat returns the statistics for a single query by name.
func (db *DB) QueryStat(name string) (QueryStats, bool) {
	for _, s := range db.QueryStats() {
		if s.Name == name {
			return s, true
		}
	}
	return QueryStats{}, false
}

// MemoUsage reports the approximate bytes held by all memo tables.
func (db *DB) MemoUsage() int64 {
	db.tmu.Lock()
	tables := make([]table, len(db.tables))
	copy(tables, db.tables)
	db.tmu.Unlock()

	var total int64
	for _, t := range tables {
		total += t.usageBytes()
	}
	return total
}
