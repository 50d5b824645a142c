// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package strata

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratalang/strata/errors"
)

// baseMemoCost is the per-entry overhead charged when a query declares
// no cost function. Accounting is approximate by design; the budget it
// feeds is a soft target, not an allocator.
const baseMemoCost = 256

// Query is a registered derived computation. The function must be a
// pure, deterministic function of the inputs and queries it reads
// through the QueryContext; any other ambient state (wall clock, disk)
// is forbidden to affect the returned value. The sanctioned escape
// hatch for disk is QueryContext.Cache, whose fingerprint gate keeps
// it semantically invisible.
type Query[A comparable, V any] struct {
	qname string
	fn    func(*QueryContext, A) (V, error)
	eq    func(V, V) bool
	cost  func(A, V) int64
	t     *queryTable[A, V]
}

// NewQuery registers a query function under a unique name.
func NewQuery[A comparable, V any](db *DB, name string, fn func(*QueryContext, A) (V, error)) *Query[A, V] {
	q := &Query[A, V]{qname: name, fn: fn}
	q.t = &queryTable[A, V]{
		q:     q,
		db:    db,
		memos: make(map[A]*memoEntry[V]),
	}
	db.registerTable(q.t)
	return q
}

// WithEqual declares the equality used for early cutoff. Without it,
// recomputed values are compared with reflect.DeepEqual. Equality must
// be an equivalence relation over values the function can produce;
// "equal" means downstream queries cannot distinguish the two.
func (q *Query[A, V]) WithEqual(eq func(a, b V) bool) *Query[A, V] {
	q.eq = eq
	return q
}

// WithCost declares an approximate byte cost per memoized value, used
// for memory accounting and eviction ordering.
func (q *Query[A, V]) WithCost(cost func(A, V) int64) *Query[A, V] {
	q.cost = cost
	return q
}

// Name returns the query's registered name.
func (q *Query[A, V]) Name() string { return q.qname }

// Get returns the query's value for arg as of qc's revision,
// recomputing only when a dependency actually changed. The error is
// either Cancelled or an error returned by a query function; on error
// nothing is memoized.
func Get[A comparable, V any](qc *QueryContext, q *Query[A, V], arg A) (V, error) {
	e, err := q.t.resolve(qc, arg)
	if err != nil {
		var zero V
		return zero, err
	}
	qc.record(&queryRef[A, V]{t: q.t, arg: arg})
	return e.value, nil
}

// memoEntry is one memoized result. The value and changedAt never
// change after the entry is stored; verifiedAt advances under the
// table lock as the memo is revalidated at later revisions.
type memoEntry[V any] struct {
	value      V
	verifiedAt Revision
	changedAt  Revision
	deps       []ref
	cost       int64
}

// queryTable owns the memos for one query.
type queryTable[A comparable, V any] struct {
	q  *Query[A, V]
	db *DB

	mu    sync.Mutex
	memos map[A]*memoEntry[V]
	bytes int64

	execs     uint64 // atomic
	execNanos int64  // atomic
}

var _ table = (*queryTable[int, int])(nil)

func (t *queryTable[A, V]) name() string { return t.q.qname }

func (t *queryTable[A, V]) describe(arg A) string {
	return fmt.Sprintf("%s(%v)", t.q.qname, arg)
}

// resolve returns a memo entry valid at qc's revision, revalidating or
// recomputing as needed.
func (t *queryTable[A, V]) resolve(qc *QueryContext, arg A) (*memoEntry[V], error) {
	if err := qc.Checkpoint(); err != nil {
		return nil, err
	}
	rev := qc.snap.rev
	t.mu.Lock()
	e := t.memos[arg]
	var verifiedAt Revision
	if e != nil {
		verifiedAt = e.verifiedAt
	}
	t.mu.Unlock()
	if e != nil && verifiedAt >= rev {
		return e, nil
	}
	if e != nil {
		ok, err := t.verifyDeps(qc, e, verifiedAt)
		if err != nil {
			return nil, err
		}
		if ok {
			t.mu.Lock()
			// The entry may have been replaced while we verified;
			// whatever is stored now is at least as fresh.
			if cur := t.memos[arg]; cur != nil {
				if cur.verifiedAt < rev {
					cur.verifiedAt = rev
				}
				e = cur
			} else {
				// Evicted mid-verify; put the verified entry back.
				e.verifiedAt = rev
				t.storeLocked(arg, e)
			}
			t.mu.Unlock()
			return e, nil
		}
	}
	return t.recompute(qc, arg, e)
}

// verifyDeps re-checks a memo's recorded dependencies in the order
// they were read. A dependency whose value changed after the memo was
// last verified invalidates it; verifying a dependency may itself
// recompute that dependency.
func (t *queryTable[A, V]) verifyDeps(qc *QueryContext, e *memoEntry[V], verifiedAt Revision) (bool, error) {
	for _, d := range e.deps {
		changedAt, err := d.verify(qc)
		if err != nil {
			return false, err
		}
		if changedAt > verifiedAt {
			return false, nil
		}
	}
	return true, nil
}

// recompute executes the query function, then stores the result with
// early cutoff: if the new value compares equal to the previous one,
// changedAt is retained so downstream memos stay valid.
func (t *queryTable[A, V]) recompute(qc *QueryContext, arg A, prev *memoEntry[V]) (*memoEntry[V], error) {
	slot := slotKey{t: t, arg: arg}
	for f := qc.frame; f != nil; f = f.parent {
		if f.slot == slot {
			// A broken query graph, not a runtime condition. Abort
			// loudly rather than deadlock.
			panic(errors.Newf(errors.ErrCycle, "dependency cycle detected at %s: %s",
				t.describe(arg), cyclePath(qc.frame, slot)))
		}
	}
	child := &QueryContext{
		snap:  qc.snap,
		frame: &frame{parent: qc.frame, slot: slot},
	}
	start := time.Now()
	v, err := t.q.fn(child, arg)
	atomic.AddUint64(&t.execs, 1)
	atomic.AddInt64(&t.execNanos, int64(time.Since(start)))
	if err != nil {
		return nil, err
	}

	rev := qc.snap.rev
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur := t.memos[arg]; cur != nil && cur.verifiedAt >= rev {
		// A concurrent computation of the same key finished first.
		// Both ran the same pure function at the same revision, so the
		// stored entry is interchangeable with ours.
		return cur, nil
	} else if cur != nil {
		prev = cur
	}
	e := &memoEntry[V]{
		value:      v,
		verifiedAt: rev,
		changedAt:  rev,
		deps:       child.frame.deps,
		cost:       t.costOf(arg, v),
	}
	if prev != nil && t.equal(prev.value, v) {
		e.changedAt = prev.changedAt
		// Keep the old value so downstream consumers holding it keep
		// sharing memory.
		e.value = prev.value
	}
	t.storeLocked(arg, e)
	return e, nil
}

// storeLocked inserts or replaces a memo and keeps byte accounting in
// step. Caller holds t.mu.
func (t *queryTable[A, V]) storeLocked(arg A, e *memoEntry[V]) {
	delta := e.cost
	if old := t.memos[arg]; old != nil {
		delta -= old.cost
	}
	t.memos[arg] = e
	t.bytes += delta
	t.db.trackUsage(delta)
}

func (t *queryTable[A, V]) equal(a, b V) bool {
	if t.q.eq != nil {
		return t.q.eq(a, b)
	}
	return reflect.DeepEqual(a, b)
}

func (t *queryTable[A, V]) costOf(arg A, v V) int64 {
	if t.q.cost != nil {
		return baseMemoCost + t.q.cost(arg, v)
	}
	return baseMemoCost
}

func (t *queryTable[A, V]) usageBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

func (t *queryTable[A, V]) candidates() []evictCandidate {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]evictCandidate, 0, len(t.memos))
	for arg, e := range t.memos {
		out = append(out, evictCandidate{
			t:          t,
			arg:        arg,
			verifiedAt: e.verifiedAt,
			cost:       e.cost,
		})
	}
	return out
}

func (t *queryTable[A, V]) drop(arg interface{}) int64 {
	key, ok := arg.(A)
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.memos[key]
	if e == nil {
		return 0
	}
	delete(t.memos, key)
	t.bytes -= e.cost
	t.db.trackUsage(-e.cost)
	return e.cost
}

func (t *queryTable[A, V]) clear() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	freed := t.bytes
	t.memos = make(map[A]*memoEntry[V])
	t.bytes = 0
	t.db.trackUsage(-freed)
	return freed
}

func (t *queryTable[A, V]) stats() QueryStats {
	return QueryStats{
		Name:           t.q.qname,
		ExecutionCount: atomic.LoadUint64(&t.execs),
		TotalTime:      time.Duration(atomic.LoadInt64(&t.execNanos)),
	}
}

// queryRef records a dependency on another query's memo.
type queryRef[A comparable, V any] struct {
	t   *queryTable[A, V]
	arg A
}

func (r *queryRef[A, V]) verify(qc *QueryContext) (Revision, error) {
	e, err := r.t.resolve(qc, r.arg)
	if err != nil {
		return 0, err
	}
	return e.changedAt, nil
}

func (r *queryRef[A, V]) describe() string { return r.t.describe(r.arg) }

// table is the type-erased view of a queryTable the DB and evictor
// work through.
type table interface {
	name() string
	usageBytes() int64
	candidates() []evictCandidate
	drop(arg interface{}) int64
	clear() int64
	stats() QueryStats
}

// evictCandidate is one memo the evictor may drop.
type evictCandidate struct {
	t          table
	arg        interface{}
	verifiedAt Revision
	cost       int64
}

// cyclePath renders the chain of executing frames from the repeated
// slot down to the current frame, for the cycle panic message.
func cyclePath(f *frame, repeated slotKey) string {
	var chain []string
	for ; f != nil; f = f.parent {
		chain = append(chain, frameDesc(f.slot))
		if f.slot == repeated {
			break
		}
	}
	// Reverse into request order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	path := ""
	for _, step := range chain {
		if path != "" {
			path += " -> "
		}
		path += step
	}
	return path + " -> " + frameDesc(repeated)
}

func frameDesc(s slotKey) string {
	return fmt.Sprintf("%s(%v)", s.t.name(), s.arg)
}
