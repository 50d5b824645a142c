// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package mem

import (
	"github.com/CAFxX/gcnotifier"
)

// gcWatcher re-evaluates pressure after each garbage collection cycle
// and triggers enforcement when it is elevated. GC is a natural point
// to re-check: tracked usage only changes when caches change, but a GC
// right after a large drop is when reclaimed budget actually becomes
// visible to the rest of the process.
type gcWatcher struct {
	gcn  *gcnotifier.GCNotifier
	done chan struct{}
}

// StartGCWatcher begins watching GC cycles. Call Close on the Manager
// to stop it. Starting twice is a no-op.
func (m *Manager) StartGCWatcher() {
	if m.gcw != nil {
		return
	}
	w := &gcWatcher{
		gcn:  gcnotifier.New(),
		done: make(chan struct{}),
	}
	m.gcw = w
	go func() {
		defer close(w.done)
		for range w.gcn.AfterGC() {
			if m.Pressure() >= PressureHigh {
				m.Enforce()
			}
		}
	}()
}

func (w *gcWatcher) stop() {
	w.gcn.Close()
	<-w.done
}
