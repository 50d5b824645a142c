// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/cespare/xxhash"

	"github.com/stratalang/strata/errors"
	"github.com/stratalang/strata/logger"
	"github.com/stratalang/strata/mem"
	"github.com/stratalang/strata/persist"
)

// Revision is the monotonic counter marking "database time". Every
// write advances it.
type Revision uint64

// inputCell is one raw-fact slot: the current value and the revision
// at which it last changed. Cells live in an immutable map so that
// snapshots share the table structurally with the live database.
type inputCell struct {
	value     interface{}
	changedAt Revision
}

// stringHasher adapts xxhash to the immutable map's hasher contract.
type stringHasher struct{}

func (stringHasher) Hash(key string) uint32 {
	return uint32(xxhash.Sum64String(key))
}

func (stringHasher) Equal(a, b string) bool { return a == b }

// DB is the dependency-tracked memoization database. One exclusive
// writer mutates input cells; any number of snapshots execute queries
// in parallel. All configuration happens through options at New time;
// inputs and queries register against the DB before first use.
type DB struct {
	// mu serializes writes against live snapshots. Snapshots hold the
	// read side for their lifetime, so a write waits for outstanding
	// readers, which the cancellation signal unblocks promptly as long
	// as queries checkpoint.
	mu sync.RWMutex

	// pending counts cancellation requests. Writes bump it before
	// taking mu; checkpoints compare it against the value pinned at
	// snapshot time. Accessed atomically.
	pending uint64

	// Guarded by mu.
	rev    Revision
	inputs *immutable.Map[string, inputCell]
	closed bool

	// tmu guards registration state: query tables, input names,
	// intern tables.
	tmu        sync.Mutex
	tables     []table
	inputNames map[string]struct{}
	interns    []*internState

	snapCount int64 // atomic; live snapshot handles

	log    logger.Logger
	memreg *mem.Registration
	cache  *persist.Cache
	flush  func()
}

// DBOption configures a DB at creation time.
type DBOption func(*DB)

// OptDBLogger sets the database logger.
func OptDBLogger(l logger.Logger) DBOption {
	return func(db *DB) { db.log = l }
}

// OptDBMemoryManager registers the database's memo tables as an
// evictable component of the given manager, under CategoryQueryCache.
func OptDBMemoryManager(m *mem.Manager) DBOption {
	return func(db *DB) {
		db.memreg = m.RegisterEvictor("query-memos", mem.CategoryQueryCache, &memoEvictor{db: db})
	}
}

// OptDBPersistCache attaches a persistent cache, reachable from query
// implementations through QueryContext.Cache. The engine itself never
// consults it; it is a hint individual queries may use.
func OptDBPersistCache(c *persist.Cache) DBOption {
	return func(db *DB) { db.cache = c }
}

// OptDBFlushHook sets a best-effort hook run when the memory manager
// asks the database to flush cold data before eviction.
func OptDBFlushHook(fn func()) DBOption {
	return func(db *DB) { db.flush = fn }
}

// New creates an empty database at revision 0.
func New(opts ...DBOption) *DB {
	db := &DB{
		inputs: immutable.NewMap[string, inputCell](stringHasher{}),
		log:    logger.NopLogger,
	}
	for _, opt := range opts {
		opt(db)
	}
	db.log = db.log.WithPrefix("strata: ")
	return db
}

// Revision reports the current revision of the live database.
func (db *DB) Revision() Revision {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.rev
}

// RequestCancellation raises the cancellation signal without blocking
// on in-flight readers. Queries running against existing snapshots
// observe it at their next checkpoint and unwind with Cancelled.
func (db *DB) RequestCancellation() {
	atomic.AddUint64(&db.pending, 1)
}

// beginWrite raises cancellation and takes the write lock. The caller
// must call db.mu.Unlock when done mutating.
func (db *DB) beginWrite() error {
	db.RequestCancellation()
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return errors.New(errors.ErrClosed, "database is closed")
	}
	return nil
}

// Batch is the handle to an in-progress exclusive write. It is only
// valid inside the function passed to Exclusive.
type Batch struct {
	db *DB
}

// Revision reports the revision as of the latest edit in the batch.
func (b *Batch) Revision() Revision { return b.db.rev }

// Exclusive acquires write access once and runs fn, so a caller can
// apply several input edits while paying for a single
// cancellation/blocking cycle. An error from fn aborts nothing: edits
// already applied through the batch remain, exactly as if they were
// separate writes.
func (db *DB) Exclusive(fn func(b *Batch) error) error {
	if err := db.beginWrite(); err != nil {
		return err
	}
	defer db.mu.Unlock()
	return fn(&Batch{db: db})
}

// Snapshot returns a read-only view pinned at the current revision.
// The snapshot is cheap and does not block other snapshots; it must be
// Released when no longer needed, or writes will wait on it forever.
func (db *DB) Snapshot() (*Snapshot, error) {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return nil, errors.New(errors.ErrClosed, "database is closed")
	}
	atomic.AddInt64(&db.snapCount, 1)
	return &Snapshot{
		db:      db,
		rev:     db.rev,
		pending: atomic.LoadUint64(&db.pending),
		inputs:  db.inputs,
	}, nil
}

// Close shuts the database down. It fails if snapshots are still
// outstanding, in the same way closing a store with open transactions
// fails: the caller owns the leak.
func (db *DB) Close() error {
	if n := atomic.LoadInt64(&db.snapCount); n > 0 {
		return errors.Newf(errors.ErrClosed, "cannot close database: %d snapshot(s) still open", n)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errors.New(errors.ErrClosed, "database already closed")
	}
	db.closed = true
	if db.memreg != nil {
		db.memreg.Close()
	}
	return nil
}

// registerTable records a query table; called from NewQuery.
func (db *DB) registerTable(t table) {
	db.tmu.Lock()
	defer db.tmu.Unlock()
	for _, existing := range db.tables {
		if existing.name() == t.name() {
			panic("strata: duplicate query name " + t.name())
		}
	}
	db.tables = append(db.tables, t)
}

// trackUsage reports a byte delta for the memo tables to the memory
// manager, if one is attached.
func (db *DB) trackUsage(delta int64) {
	if db.memreg != nil {
		db.memreg.Tracker().Add(delta)
	}
}
