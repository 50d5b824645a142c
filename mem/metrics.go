// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package mem

import (
	"github.com/prometheus/client_golang/prometheus"
)

type managerMetrics struct {
	usage    *prometheus.GaugeVec
	pressure prometheus.Gauge
}

// OptManagerMetrics registers per-category usage and pressure gauges
// with the given prometheus registerer. Gauges are refreshed on each
// Enforce and on Gather via the collector callback style used for the
// pressure gauge.
func OptManagerMetrics(reg prometheus.Registerer) ManagerOption {
	return func(m *Manager) {
		mm := &managerMetrics{
			usage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "strata",
				Subsystem: "mem",
				Name:      "usage_bytes",
				Help:      "Tracked bytes by category.",
			}, []string{"category"}),
			pressure: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "strata",
				Subsystem: "mem",
				Name:      "pressure",
				Help:      "Current pressure level (0=low 1=medium 2=high 3=critical).",
			}),
		}
		reg.MustRegister(mm.usage, mm.pressure)
		m.metrics = mm
	}
}

func (mm *managerMetrics) update(m *Manager) {
	m.mu.Lock()
	usage := m.usageByCategory()
	p := m.pressureLocked(usage)
	m.mu.Unlock()
	for _, cat := range Categories() {
		mm.usage.WithLabelValues(cat.String()).Set(float64(usage[cat]))
	}
	mm.pressure.Set(float64(p))
}

// UpdateMetrics refreshes the registered gauges from current usage.
// Harmless no-op when metrics were not enabled.
func (m *Manager) UpdateMetrics() {
	if m.metrics != nil {
		m.metrics.update(m)
	}
}
