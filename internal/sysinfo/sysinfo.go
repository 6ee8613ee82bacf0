// Package sysinfo reports host load so operators can tell from /health
// whether encoders are saturating the machine.
package sysinfo

import (
	"context"
	"errors"
	"math"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time view of host resources.
type Snapshot struct {
	CPUCount       int     `json:"cpu_count"`
	Load1          float64 `json:"load1"`
	Load5          float64 `json:"load5"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

// Collect reads the current snapshot. Fields the platform cannot report stay
// zero; the joined error lists what was unavailable.
func Collect(ctx context.Context) (Snapshot, error) {
	var (
		snap Snapshot
		errs []error
	)

	if n, err := cpu.CountsWithContext(ctx, true); err != nil {
		errs = append(errs, err)
	} else {
		snap.CPUCount = n
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		snap.Load1 = round2(avg.Load1)
		snap.Load5 = round2(avg.Load5)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		snap.MemUsedPercent = round2(vm.UsedPercent)
	}

	return snap, errors.Join(errs...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
