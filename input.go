// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"github.com/stratalang/strata/errors"
)

// Input is a registered input cell: a raw fact supplied by the host,
// such as file text, a file-existence flag, or project configuration.
// Inputs are the leaves of the dependency graph; only the exclusive
// writer mutates them, and every mutation advances the revision clock.
type Input[V any] struct {
	db    *DB
	iname string
}

// NewInput registers an input cell under a unique name. Registering
// the same name twice is a programming error.
func NewInput[V any](db *DB, name string) *Input[V] {
	db.tmu.Lock()
	defer db.tmu.Unlock()
	if db.inputNames == nil {
		db.inputNames = make(map[string]struct{})
	}
	if _, dup := db.inputNames[name]; dup {
		panic("strata: duplicate input name " + name)
	}
	db.inputNames[name] = struct{}{}
	return &Input[V]{db: db, iname: name}
}

// Name returns the input's registered name.
func (in *Input[V]) Name() string { return in.iname }

// Set replaces the cell's value under its own exclusive write. It
// raises the cancellation signal, waits for outstanding snapshots to
// release, advances the revision clock, and stamps the cell. Snapshots
// taken afterward observe the new value. To apply several edits under
// one write acquisition, use DB.Exclusive.
func (in *Input[V]) Set(value V) error {
	return in.db.Exclusive(func(b *Batch) error {
		Set(b, in, value)
		return nil
	})
}

// Set stamps a new value for an input cell inside an exclusive batch.
// Each edit advances the revision clock individually.
func Set[V any](b *Batch, in *Input[V], value V) {
	db := b.db
	db.rev++
	db.inputs = db.inputs.Set(in.iname, inputCell{value: value, changedAt: db.rev})
}

// Value reads the cell through a query context, recording the
// dependency. Reading an input that was never set is an error; file
// existence is modeled as a separate boolean input, not as absence.
func (in *Input[V]) Value(qc *QueryContext) (V, error) {
	cell, ok := qc.snap.inputs.Get(in.iname)
	if !ok {
		var zero V
		return zero, errors.Errorf("input %q has no value at revision %d", in.iname, qc.snap.rev)
	}
	qc.record(inputRef{name: in.iname})
	return cell.value.(V), nil
}

// inputRef records a dependency on an input cell.
type inputRef struct {
	name string
}

func (r inputRef) verify(qc *QueryContext) (Revision, error) {
	cell, ok := qc.snap.inputs.Get(r.name)
	if !ok {
		// A memo can only depend on a cell that existed when it was
		// computed, and cells are never deleted; treat the impossible
		// case as freshly changed so the memo recomputes.
		return qc.snap.rev, nil
	}
	return cell.changedAt, nil
}

func (r inputRef) describe() string { return "input(" + r.name + ")" }
