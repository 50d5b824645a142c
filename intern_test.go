// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata_test

import (
	"testing"

	"github.com/stratalang/strata"
)

func TestInternAssignsDenseIDsInFirstSeenOrder(t *testing.T) {
	db := testDB(t)
	it := strata.NewInternTable[string](db, "classes", false)

	if id := it.Intern("java.lang.Object"); id != 0 {
		t.Fatalf("first id: got %d, want 0", id)
	}
	if id := it.Intern("java.lang.String"); id != 1 {
		t.Fatalf("second id: got %d, want 1", id)
	}
	// Re-interning is stable.
	if id := it.Intern("java.lang.Object"); id != 0 {
		t.Fatalf("re-intern: got %d, want 0", id)
	}
	if it.Len() != 2 {
		t.Fatalf("len: got %d, want 2", it.Len())
	}

	v, ok := it.Lookup(1)
	if !ok || v != "java.lang.String" {
		t.Fatalf("lookup(1): got %q, %v", v, ok)
	}
	if _, ok := it.Lookup(99); ok {
		t.Fatal("lookup of unassigned id must fail")
	}
	if it.Preserved() {
		t.Fatal("table registered with preserve=false")
	}
}

func TestDuplicateInternTablePanics(t *testing.T) {
	db := testDB(t)
	strata.NewInternTable[string](db, "classes", false)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate intern table name")
		}
	}()
	strata.NewInternTable[int](db, "classes", true)
}
