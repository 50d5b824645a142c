// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"sync"
)

// InternTable assigns dense integer identities to values of a
// reference type (class identities, module paths) in first-seen order.
// Identities are stable for the life of the table generation.
//
// Partial memo eviction never touches intern tables, so identities are
// always stable across trims. A full memo-table rebuild resets every
// intern table that was NOT registered with preserve=true; register
// with preserve=true (the allow-list) when the integer identities are
// handed to long-lived external consumers that must be able to resolve
// them after a rebuild.
type InternTable[T comparable] struct {
	tname    string
	preserve bool

	mu   sync.Mutex
	ids  map[T]uint32
	vals []T
}

// internState is the type-erased registration the DB's rebuild path
// works through.
type internState struct {
	name     string
	preserve bool
	reset    func()
	size     func() int
}

// NewInternTable registers an intern table. preserve marks the table
// as rebuild-stable: a full memo rebuild keeps its contents while
// non-preserved tables start a fresh generation.
func NewInternTable[T comparable](db *DB, name string, preserve bool) *InternTable[T] {
	it := &InternTable[T]{
		tname:    name,
		preserve: preserve,
		ids:      make(map[T]uint32),
	}
	db.tmu.Lock()
	defer db.tmu.Unlock()
	for _, existing := range db.interns {
		if existing.name == name {
			panic("strata: duplicate intern table name " + name)
		}
	}
	db.interns = append(db.interns, &internState{
		name:     name,
		preserve: preserve,
		reset:    it.resetTable,
		size:     it.Len,
	})
	return it
}

// Intern returns the identity for v, assigning the next dense id on
// first sight.
func (it *InternTable[T]) Intern(v T) uint32 {
	it.mu.Lock()
	defer it.mu.Unlock()
	if id, ok := it.ids[v]; ok {
		return id
	}
	id := uint32(len(it.vals))
	it.ids[v] = id
	it.vals = append(it.vals, v)
	return id
}

// Lookup resolves an identity back to its value.
func (it *InternTable[T]) Lookup(id uint32) (T, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if int(id) >= len(it.vals) {
		var zero T
		return zero, false
	}
	return it.vals[id], true
}

// Len reports how many values have been interned in this generation.
func (it *InternTable[T]) Len() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return len(it.vals)
}

// Preserved reports whether this table is on the rebuild allow-list.
func (it *InternTable[T]) Preserved() bool { return it.preserve }

func (it *InternTable[T]) resetTable() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.ids = make(map[T]uint32)
	it.vals = nil
}
