// Copyright 2023 Stratalang, Inc. All rights reserved.
// SPDX-License-Identifier: Apache-2.0
package mem

import (
	psmem "github.com/shirou/gopsutil/v3/mem"
)

// SystemMemory describes the host's physical memory, collected with
// gopsutil. It is informational only; pressure is computed from
// tracked usage versus budgets, never from host state.
type SystemMemory struct {
	Total       uint64
	Available   uint64
	Used        uint64
	UsedPercent float64
}

func readSystemMemory() (*SystemMemory, error) {
	vm, err := psmem.VirtualMemory()
	if err != nil {
		return nil, err
	}
	return &SystemMemory{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Used,
		UsedPercent: vm.UsedPercent,
	}, nil
}
