// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"sync/atomic"

	"github.com/benbjohnson/immutable"

	"github.com/stratalang/strata/errors"
	"github.com/stratalang/strata/persist"
)

// checkpointInterval is how many Step calls pass between cancellation
// checks. Long-running queries are expected to call Step per logical
// sub-step (per AST node, per collection item); the interval bounds
// how long a cancelled query can keep running.
const checkpointInterval = 16

// Snapshot is an immutable, revision-pinned read handle. Many
// snapshots may coexist and be used concurrently from different
// goroutines; a snapshot never mutates the input table it pinned.
//
// A snapshot holds the read side of the database lock until Release is
// called. Holding one across a write request works: the write raises
// the cancellation signal, queries running against this snapshot
// unwind with Cancelled at their next checkpoint, and the caller is
// expected to Release and take a fresh snapshot.
type Snapshot struct {
	db      *DB
	rev     Revision
	pending uint64
	inputs  *immutable.Map[string, inputCell]

	released uint32 // atomic
}

// Revision reports the revision this snapshot is pinned at.
func (s *Snapshot) Revision() Revision { return s.rev }

// Cancelled reports whether a write has requested cancellation since
// this snapshot was taken.
func (s *Snapshot) Cancelled() bool {
	return atomic.LoadUint64(&s.db.pending) != s.pending
}

// Release releases the snapshot. Values already returned by queries
// remain valid; further use of the snapshot is a bug. Releasing twice
// is harmless.
func (s *Snapshot) Release() {
	if atomic.CompareAndSwapUint32(&s.released, 0, 1) {
		atomic.AddInt64(&s.db.snapCount, -1)
		s.db.mu.RUnlock()
	}
}

// Context returns the top-level query context for this snapshot: the
// catch boundary at which Cancelled errors surface to the caller.
func (s *Snapshot) Context() *QueryContext {
	return &QueryContext{snap: s}
}

// QueryContext carries one computation's execution state: the snapshot
// it reads through and the frame recording which dependencies it has
// read. Query functions receive a child context per invocation; every
// nested Get is recorded as a dependency of the calling frame.
type QueryContext struct {
	snap  *Snapshot
	frame *frame
	steps int
}

// frame is one "currently executing" query invocation.
type frame struct {
	parent *frame
	slot   slotKey
	deps   []ref
}

// slotKey identifies a (query, argument) invocation for cycle
// detection.
type slotKey struct {
	t   table
	arg interface{}
}

// ref identifies one dependency read during a computation, with enough
// information to revalidate it later.
type ref interface {
	// verify revalidates the dependency as of qc's revision, which may
	// recompute it, and reports the revision at which its value last
	// changed.
	verify(qc *QueryContext) (Revision, error)
	describe() string
}

// Snapshot returns the snapshot this context reads through.
func (qc *QueryContext) Snapshot() *Snapshot { return qc.snap }

// Revision reports the pinned revision.
func (qc *QueryContext) Revision() Revision { return qc.snap.rev }

// Cache returns the attached persistent cache, or nil. Query
// implementations may consult it as a hint; the fingerprint gate in
// package persist keeps it from ever changing a result.
func (qc *QueryContext) Cache() *persist.Cache { return qc.snap.db.cache }

// Checkpoint returns a Cancelled error if a write has requested
// cancellation since this context's snapshot was taken. Long-running
// query bodies must call this (or Step) periodically; without
// checkpoints, cancellation cannot terminate work in bounded time.
func (qc *QueryContext) Checkpoint() error {
	if atomic.LoadUint64(&qc.snap.db.pending) != qc.snap.pending {
		return errors.New(errors.ErrCancelled, "query cancelled by pending write")
	}
	return nil
}

// Step counts one logical sub-step and checkpoints every
// checkpointInterval steps. Intended for per-item use in loops.
func (qc *QueryContext) Step() error {
	qc.steps++
	if qc.steps%checkpointInterval == 0 {
		return qc.Checkpoint()
	}
	return nil
}

// record adds a dependency to the executing frame. Top-level reads
// (no frame) have nothing to record into.
func (qc *QueryContext) record(r ref) {
	if qc.frame != nil {
		qc.frame.deps = append(qc.frame.deps, r)
	}
}
