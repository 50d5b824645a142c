// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

/*
Package strata is the demand-driven incremental computation engine
underlying the Strata semantic analysis platform. The host supplies raw
facts (file text, existence flags, project configuration) as input
cells; derived computations register as queries; the engine memoizes
query results, tracks the dependencies each computation reads, and
revalidates memos against a monotonic revision clock so that a query
never returns a stale value and unchanged work is never repeated.

Reads happen through snapshots. A Snapshot pins a revision and can be
used from its own worker goroutine while other snapshots run in
parallel. Writes are exclusive: they first raise the cancellation
signal, which cooperative checkpoints inside running queries observe by
unwinding with a Cancelled error, and then wait for readers to release.
Callers of a query only ever see a value or Cancelled.

Two invisible layers sit beside the memo tables: memory-pressure-driven
eviction (package mem) and a best-effort persistent cache (package
persist). Both are forbidden from affecting what a query returns;
evicted memos are simply recomputed on demand, and every persistence
failure is indistinguishable from a cold cache.
*/
package strata
