// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package mem tracks approximate byte usage per category across the
// engine's caches, derives a discrete pressure level from configured
// budgets, and drives registered evictors when usage exceeds budget.
// Eviction is always best-effort: a shortfall leaves pressure elevated
// and visible through Report, it is never an error.
package mem

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/stratalang/strata/logger"
)

// Category partitions tracked memory. Budgets and eviction targets are
// applied per category.
type Category int

const (
	CategoryQueryCache Category = iota
	CategorySyntaxTrees
	CategoryIndexes
	CategoryTypeInfo
	CategoryOther

	numCategories
)

func (c Category) String() string {
	switch c {
	case CategoryQueryCache:
		return "query-cache"
	case CategorySyntaxTrees:
		return "syntax-trees"
	case CategoryIndexes:
		return "indexes"
	case CategoryTypeInfo:
		return "type-info"
	case CategoryOther:
		return "other"
	}
	return "invalid"
}

// Categories lists all valid categories in order.
func Categories() []Category {
	out := make([]Category, numCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// Pressure is a discretized memory-usage severity level.
type Pressure int

const (
	PressureLow Pressure = iota
	PressureMedium
	PressureHigh
	PressureCritical
)

func (p Pressure) String() string {
	switch p {
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	}
	return "invalid"
}

// targetFraction is the per-category usage target, as a fraction of
// budget, that Enforce drives toward at each pressure level.
func (p Pressure) targetFraction() float64 {
	switch p {
	case PressureMedium:
		return 0.7
	case PressureHigh:
		return 0.5
	case PressureCritical:
		return 0
	}
	return 1.0
}

// Evictor is a component capable of reclaiming memory from its own
// cached state on request. Eviction must never fail: an evictor that
// cannot reach the target simply reports what it still holds.
type Evictor interface {
	// Flush gives the evictor a chance to write cold data to
	// persistent storage before it is dropped. Best-effort.
	Flush()
	// Evict asks the evictor to reduce its usage to at most target
	// bytes (target 0 means drop everything evictable) and reports its
	// usage afterward.
	Evict(target int64) int64
}

// Config holds the per-category budgets and the pressure thresholds,
// expressed as fractions of budget.
type Config struct {
	// Budgets maps categories to byte budgets. A category with no
	// budget is untracked for pressure purposes.
	Budgets map[Category]int64

	// MediumFraction, HighFraction, CriticalFraction are the
	// usage/budget ratios at which each pressure level begins.
	MediumFraction   float64
	HighFraction     float64
	CriticalFraction float64

	// EnforceRounds bounds how many convergence rounds Enforce runs.
	EnforceRounds int
}

// DefaultConfig returns a Config with the default thresholds and a
// modest default budget for the query cache only.
func DefaultConfig() Config {
	return Config{
		Budgets: map[Category]int64{
			CategoryQueryCache: 256 << 20,
		},
		MediumFraction:   0.8,
		HighFraction:     1.0,
		CriticalFraction: 1.2,
		EnforceRounds:    3,
	}
}

// Tracker is a lightweight counter a component uses to report its
// approximate byte footprint. Many writers, one reader; all methods
// are safe for concurrent use.
type Tracker struct {
	bytes int64
}

// Add adjusts the tracked byte count by delta, which may be negative.
func (t *Tracker) Add(delta int64) { atomic.AddInt64(&t.bytes, delta) }

// Set replaces the tracked byte count.
func (t *Tracker) Set(v int64) { atomic.StoreInt64(&t.bytes, v) }

// Bytes reports the current tracked byte count.
func (t *Tracker) Bytes() int64 { return atomic.LoadInt64(&t.bytes) }

// Registration is the handle returned by Register and
// RegisterEvictor. Closing it unregisters the component and zeroes its
// usage.
type Registration struct {
	m       *Manager
	name    string
	cat     Category
	tracker *Tracker
	evictor Evictor
	closed  bool
}

// Tracker returns the registration's byte counter.
func (r *Registration) Tracker() *Tracker { return r.tracker }

// Close unregisters the component. Usage it reported is zeroed. Safe
// to call more than once.
func (r *Registration) Close() {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.tracker.Set(0)
	for i, reg := range r.m.regs {
		if reg == r {
			r.m.regs = append(r.m.regs[:i], r.m.regs[i+1:]...)
			break
		}
	}
}

// Manager tracks usage, computes pressure, and drives evictors.
type Manager struct {
	cfg Config
	log logger.Logger

	mu   sync.Mutex
	regs []*Registration

	gcw     *gcWatcher
	metrics *managerMetrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// OptManagerLogger sets the manager's logger.
func OptManagerLogger(l logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a Manager with the given config.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	if cfg.EnforceRounds <= 0 {
		cfg.EnforceRounds = 3
	}
	m := &Manager{
		cfg: cfg,
		log: logger.NopLogger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithPrefix("mem: ")
	return m
}

// Close stops the GC watcher, if one was started.
func (m *Manager) Close() {
	if m.gcw != nil {
		m.gcw.stop()
		m.gcw = nil
	}
}

// Register registers a tracker-only component under the given
// category. The returned handle's Tracker reports usage; its Close
// unregisters and zeroes.
func (m *Manager) Register(name string, cat Category) *Registration {
	return m.register(name, cat, nil)
}

// RegisterEvictor registers a component that can also reclaim memory
// on request.
func (m *Manager) RegisterEvictor(name string, cat Category, e Evictor) *Registration {
	return m.register(name, cat, e)
}

func (m *Manager) register(name string, cat Category, e Evictor) *Registration {
	r := &Registration{
		m:       m,
		name:    name,
		cat:     cat,
		tracker: &Tracker{},
		evictor: e,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs = append(m.regs, r)
	return r
}

// SetBudget adjusts one category's budget at runtime. A budget of
// zero or below removes the category from enforcement.
func (m *Manager) SetBudget(cat Category, budget int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.Budgets == nil {
		m.cfg.Budgets = make(map[Category]int64)
	}
	m.cfg.Budgets[cat] = budget
}

func (m *Manager) budgetsSnapshot() map[Category]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Category]int64, len(m.cfg.Budgets))
	for cat, b := range m.cfg.Budgets {
		out[cat] = b
	}
	return out
}

// usageByCategory sums tracked bytes per category. Callers must hold
// m.mu.
func (m *Manager) usageByCategory() map[Category]int64 {
	usage := make(map[Category]int64, numCategories)
	for _, r := range m.regs {
		usage[r.cat] += r.tracker.Bytes()
	}
	return usage
}

func (m *Manager) pressureFor(usage, budget int64) Pressure {
	if budget <= 0 {
		return PressureLow
	}
	ratio := float64(usage) / float64(budget)
	switch {
	case ratio >= m.cfg.CriticalFraction:
		return PressureCritical
	case ratio >= m.cfg.HighFraction:
		return PressureHigh
	case ratio >= m.cfg.MediumFraction:
		return PressureMedium
	}
	return PressureLow
}

// Pressure reports the worst pressure level across all budgeted
// categories.
func (m *Manager) Pressure() Pressure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pressureLocked(m.usageByCategory())
}

func (m *Manager) pressureLocked(usage map[Category]int64) Pressure {
	worst := PressureLow
	for cat, budget := range m.cfg.Budgets {
		if p := m.pressureFor(usage[cat], budget); p > worst {
			worst = p
		}
	}
	return worst
}

// Enforce reduces usage toward the targets implied by the current
// pressure. It first asks every evictor to flush cold data, then asks
// each evictor for a share of the required reduction proportional to
// its current usage within its category, retrying a bounded number of
// rounds to converge. Components without an evictor are skipped;
// shortfall leaves pressure elevated.
func (m *Manager) Enforce() {
	p := m.Pressure()
	if p == PressureLow {
		return
	}
	m.log.Infof("pressure %s, enforcing budgets", p)

	// Flush phase: evictors run outside the lock, since flushing may
	// perform disk I/O.
	for _, r := range m.evictorsSnapshot() {
		r.evictor.Flush()
	}

	frac := p.targetFraction()
	budgets := m.budgetsSnapshot()
	for round := 0; round < m.cfg.EnforceRounds; round++ {
		converged := true
		for cat, budget := range budgets {
			target := int64(float64(budget) * frac)
			evictors := m.evictorsSnapshot()
			m.mu.Lock()
			catUsage := m.usageByCategory()[cat]
			m.mu.Unlock()
			if catUsage <= target {
				continue
			}
			converged = false
			excess := catUsage - target
			for _, r := range evictors {
				if r.cat != cat {
					continue
				}
				mine := r.tracker.Bytes()
				if mine <= 0 || catUsage <= 0 {
					continue
				}
				// Proportional share of the reduction.
				share := excess * mine / catUsage
				after := r.evictor.Evict(mine - share)
				r.tracker.Set(after)
			}
		}
		if converged {
			break
		}
	}
	if m.metrics != nil {
		m.metrics.update(m)
	}
}

func (m *Manager) evictorsSnapshot() []*Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Registration, 0, len(m.regs))
	for _, r := range m.regs {
		if r.evictor != nil {
			out = append(out, r)
		}
	}
	return out
}

// ComponentUsage is one line of a Report's usage breakdown.
type ComponentUsage struct {
	Name     string
	Category Category
	Bytes    int64
}

// Report is a point-in-time view of budgets, usage, pressure, and any
// settings the manager has degraded to shed load.
type Report struct {
	Budgets  map[Category]int64
	Usage    map[Category]int64
	ByName   []ComponentUsage
	Pressure Pressure
	Degraded []string
	System   *SystemMemory
}

// Report assembles the current memory report. Host memory statistics
// are included when they can be read; failure to read them degrades to
// a nil System field rather than an error.
func (m *Manager) Report() Report {
	m.mu.Lock()
	usage := m.usageByCategory()
	byName := make([]ComponentUsage, 0, len(m.regs))
	for _, r := range m.regs {
		byName = append(byName, ComponentUsage{
			Name:     r.name,
			Category: r.cat,
			Bytes:    r.tracker.Bytes(),
		})
	}
	p := m.pressureLocked(usage)
	m.mu.Unlock()

	sort.Slice(byName, func(i, j int) bool { return byName[i].Name < byName[j].Name })

	budgets := m.budgetsSnapshot()
	rep := Report{
		Budgets:  budgets,
		Usage:    usage,
		ByName:   byName,
		Pressure: p,
	}
	if p >= PressureMedium {
		for cat, budget := range budgets {
			cp := m.pressureFor(usage[cat], budget)
			if cp >= PressureMedium {
				rep.Degraded = append(rep.Degraded, cat.String()+": target "+cp.String())
			}
		}
		sort.Strings(rep.Degraded)
	}
	if sys, err := readSystemMemory(); err == nil {
		rep.System = sys
	} else {
		m.log.Debugf("reading system memory: %v", err)
	}
	return rep
}
