// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata_test

import (
	"strings"
	"testing"

	"github.com/stratalang/strata"
	"github.com/stratalang/strata/errors"
)

// testDB creates a database and registers a cleanup that closes it,
// failing the test if a snapshot was leaked.
func testDB(t *testing.T, opts ...strata.DBOption) *strata.DB {
	db := strata.New(opts...)
	t.Cleanup(func() {
		if err := db.Close(); err != nil && !errors.Is(err, errors.ErrClosed) {
			t.Errorf("closing database: %v", err)
		}
	})
	return db
}

// get runs a query against a fresh snapshot and releases it.
func get[A comparable, V any](t *testing.T, db *strata.DB, q *strata.Query[A, V], arg A) V {
	t.Helper()
	snap, err := db.Snapshot()
	if err != nil {
		t.Fatalf("taking snapshot: %v", err)
	}
	defer snap.Release()
	v, err := strata.Get(snap.Context(), q, arg)
	if err != nil {
		t.Fatalf("getting %s(%v): %v", q.Name(), arg, err)
	}
	return v
}

func execCount(t *testing.T, db *strata.DB, name string) uint64 {
	t.Helper()
	s, ok := db.QueryStat(name)
	if !ok {
		t.Fatalf("no stats for query %q", name)
	}
	return s.ExecutionCount
}

func TestInputRoundTrip(t *testing.T) {
	db := testDB(t)
	text := strata.NewInput[string](db, "text")
	if err := text.Set("class Foo {}"); err != nil {
		t.Fatalf("setting input: %v", err)
	}
	if got, want := db.Revision(), strata.Revision(1); got != want {
		t.Fatalf("revision after one write: got %d, want %d", got, want)
	}

	upper := strata.NewQuery(db, "upper", func(qc *strata.QueryContext, _ struct{}) (string, error) {
		v, err := text.Value(qc)
		if err != nil {
			return "", err
		}
		return strings.ToUpper(v), nil
	})

	if got := get(t, db, upper, struct{}{}); got != "CLASS FOO {}" {
		t.Fatalf("unexpected value: %q", got)
	}
	// Second read is a memo hit.
	if got := get(t, db, upper, struct{}{}); got != "CLASS FOO {}" {
		t.Fatalf("unexpected value: %q", got)
	}
	if n := execCount(t, db, "upper"); n != 1 {
		t.Fatalf("expected one execution, got %d", n)
	}

	// A write invalidates; the next read recomputes.
	if err := text.Set("class Bar {}"); err != nil {
		t.Fatalf("setting input: %v", err)
	}
	if got := get(t, db, upper, struct{}{}); got != "CLASS BAR {}" {
		t.Fatalf("unexpected value after edit: %q", got)
	}
	if n := execCount(t, db, "upper"); n != 2 {
		t.Fatalf("expected two executions, got %d", n)
	}
}

func TestUnsetInputIsAnError(t *testing.T) {
	db := testDB(t)
	missing := strata.NewInput[string](db, "missing")
	q := strata.NewQuery(db, "reads-missing", func(qc *strata.QueryContext, _ struct{}) (string, error) {
		return missing.Value(qc)
	})
	snap, err := db.Snapshot()
	if err != nil {
		t.Fatalf("taking snapshot: %v", err)
	}
	defer snap.Release()
	if _, err := strata.Get(snap.Context(), q, struct{}{}); err == nil {
		t.Fatal("expected an error reading an unset input")
	}
	// Errors are not memoized: the query executes again next time.
	if _, err := strata.Get(snap.Context(), q, struct{}{}); err == nil {
		t.Fatal("expected an error on the second read too")
	}
	if n := execCount(t, db, "reads-missing"); n != 2 {
		t.Fatalf("failed executions should not memoize; got %d executions", n)
	}
}

func TestExclusiveBatch(t *testing.T) {
	db := testDB(t)
	a := strata.NewInput[int](db, "a")
	b := strata.NewInput[int](db, "b")

	err := db.Exclusive(func(batch *strata.Batch) error {
		strata.Set(batch, a, 1)
		strata.Set(batch, b, 2)
		return nil
	})
	if err != nil {
		t.Fatalf("exclusive batch: %v", err)
	}
	// Each edit advances the clock individually.
	if got, want := db.Revision(), strata.Revision(2); got != want {
		t.Fatalf("revision after batch: got %d, want %d", got, want)
	}

	sum := strata.NewQuery(db, "sum", func(qc *strata.QueryContext, _ struct{}) (int, error) {
		av, err := a.Value(qc)
		if err != nil {
			return 0, err
		}
		bv, err := b.Value(qc)
		if err != nil {
			return 0, err
		}
		return av + bv, nil
	})
	if got := get(t, db, sum, struct{}{}); got != 3 {
		t.Fatalf("sum: got %d, want 3", got)
	}
}

func TestCloseWithOpenSnapshot(t *testing.T) {
	db := strata.New()
	snap, err := db.Snapshot()
	if err != nil {
		t.Fatalf("taking snapshot: %v", err)
	}
	if err := db.Close(); err == nil {
		t.Fatal("close should fail with an open snapshot")
	}
	snap.Release()
	snap.Release() // double release is harmless
	if err := db.Close(); err != nil {
		t.Fatalf("close after release: %v", err)
	}
	if _, err := db.Snapshot(); !errors.Is(err, errors.ErrClosed) {
		t.Fatalf("snapshot on closed database: got %v, want Closed", err)
	}
	in := strata.NewInput[int](db, "late")
	if err := in.Set(1); !errors.Is(err, errors.ErrClosed) {
		t.Fatalf("set on closed database: got %v, want Closed", err)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	db := testDB(t)
	strata.NewInput[int](db, "dup")
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic on duplicate input name")
			}
		}()
		strata.NewInput[string](db, "dup")
	}()

	strata.NewQuery(db, "dupq", func(qc *strata.QueryContext, _ int) (int, error) { return 0, nil })
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic on duplicate query name")
			}
		}()
		strata.NewQuery(db, "dupq", func(qc *strata.QueryContext, _ int) (int, error) { return 0, nil })
	}()
}
