// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package mem

import (
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEvictor reclaims exactly what it's asked to, down to floor.
type fakeEvictor struct {
	usage   int64
	floor   int64
	flushes int64
}

func (f *fakeEvictor) Flush() { atomic.AddInt64(&f.flushes, 1) }

func (f *fakeEvictor) Evict(target int64) int64 {
	if target < f.floor {
		target = f.floor
	}
	if target < f.usage {
		f.usage = target
	}
	return f.usage
}

func testConfig(budget int64) Config {
	cfg := DefaultConfig()
	cfg.Budgets = map[Category]int64{CategoryQueryCache: budget}
	return cfg
}

func TestPressureLevels(t *testing.T) {
	m := NewManager(testConfig(1000))
	defer m.Close()
	reg := m.Register("memos", CategoryQueryCache)
	defer reg.Close()

	for _, test := range []struct {
		bytes int64
		want  Pressure
	}{
		{0, PressureLow},
		{700, PressureLow},
		{800, PressureMedium},
		{1000, PressureHigh},
		{1200, PressureCritical},
		{5000, PressureCritical},
	} {
		reg.Tracker().Set(test.bytes)
		assert.Equal(t, test.want, m.Pressure(), "at %d bytes", test.bytes)
	}
}

func TestEnforceProportional(t *testing.T) {
	m := NewManager(testConfig(1000))
	defer m.Close()

	// Two evictors in the same category with a 3:1 usage split.
	big := &fakeEvictor{usage: 900}
	small := &fakeEvictor{usage: 300}
	regBig := m.RegisterEvictor("big", CategoryQueryCache, big)
	regSmall := m.RegisterEvictor("small", CategoryQueryCache, small)
	defer regBig.Close()
	defer regSmall.Close()
	regBig.Tracker().Set(big.usage)
	regSmall.Tracker().Set(small.usage)

	// 1200/1000 = critical; target 0.
	require.Equal(t, PressureCritical, m.Pressure())
	m.Enforce()

	assert.Equal(t, int64(0), big.usage)
	assert.Equal(t, int64(0), small.usage)
	assert.Equal(t, int64(1), big.flushes, "flush phase should run before eviction")
	assert.Equal(t, PressureLow, m.Pressure())
}

func TestEnforceMediumTarget(t *testing.T) {
	m := NewManager(testConfig(1000))
	defer m.Close()
	ev := &fakeEvictor{usage: 900}
	reg := m.RegisterEvictor("memos", CategoryQueryCache, ev)
	defer reg.Close()
	reg.Tracker().Set(ev.usage)

	require.Equal(t, PressureMedium, m.Pressure())
	m.Enforce()
	// Medium drives toward 70% of budget.
	assert.LessOrEqual(t, ev.usage, int64(700))
	assert.Equal(t, PressureLow, m.Pressure())
}

func TestEnforceShortfall(t *testing.T) {
	m := NewManager(testConfig(1000))
	defer m.Close()
	// An evictor that can't go below its floor, and a tracker-only
	// component that is skipped entirely.
	ev := &fakeEvictor{usage: 2000, floor: 1500}
	regEv := m.RegisterEvictor("stubborn", CategoryQueryCache, ev)
	defer regEv.Close()
	regEv.Tracker().Set(ev.usage)
	regFixed := m.Register("pinned", CategoryQueryCache)
	defer regFixed.Close()
	regFixed.Tracker().Set(100)

	m.Enforce()
	// Not an error; pressure simply remains elevated.
	assert.Equal(t, int64(1500), ev.usage)
	assert.Equal(t, PressureCritical, m.Pressure())
	rep := m.Report()
	assert.NotEmpty(t, rep.Degraded)
}

func TestRegistrationClose(t *testing.T) {
	m := NewManager(testConfig(1000))
	defer m.Close()
	reg := m.Register("memos", CategoryQueryCache)
	reg.Tracker().Set(5000)
	require.Equal(t, PressureCritical, m.Pressure())

	reg.Close()
	assert.Equal(t, PressureLow, m.Pressure(), "closing a registration zeroes its usage")
	assert.Equal(t, int64(0), reg.Tracker().Bytes())
	reg.Close() // double close is harmless
}

func TestReport(t *testing.T) {
	m := NewManager(testConfig(1000), OptManagerMetrics(prometheus.NewRegistry()))
	defer m.Close()
	regA := m.Register("item-trees", CategorySyntaxTrees)
	defer regA.Close()
	regB := m.Register("memos", CategoryQueryCache)
	defer regB.Close()
	regA.Tracker().Set(123)
	regB.Tracker().Set(456)
	m.UpdateMetrics()

	rep := m.Report()
	assert.Equal(t, int64(456), rep.Usage[CategoryQueryCache])
	assert.Equal(t, int64(123), rep.Usage[CategorySyntaxTrees])
	assert.Equal(t, int64(1000), rep.Budgets[CategoryQueryCache])
	assert.Equal(t, PressureLow, rep.Pressure)
	require.Len(t, rep.ByName, 2)
	assert.Equal(t, "item-trees", rep.ByName[0].Name)
}

func TestGCWatcherStartStop(t *testing.T) {
	m := NewManager(testConfig(1000))
	m.StartGCWatcher()
	m.StartGCWatcher() // idempotent
	m.Close()
	m.Close() // close after stop is harmless
}
