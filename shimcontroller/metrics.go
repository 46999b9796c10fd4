package shimcontroller

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/boxlite/boxlite/internal/boxerr"
)

// Metrics is a single CPU/memory sample for a shim process.
type Metrics struct {
	CPUPercent float64
	MemRSSByte uint64
}

// cpuMemSampler wraps a gopsutil process.Process handle. gopsutil's own
// Percent implementation is itself stateful (a zero interval diffs against
// the last call's cumulative CPU time instead of blocking to measure one
// fresh), so holding one handle per box across calls is what makes
// delta-based CPU sampling work at all (spec §4.8 "a stateful system handle
// that persists across calls").
type cpuMemSampler struct {
	proc *process.Process
	pid  int
}

func newCPUMemSampler(pid int) *cpuMemSampler {
	return &cpuMemSampler{pid: pid}
}

func (s *cpuMemSampler) sample() (Metrics, error) {
	if s.proc == nil {
		proc, err := process.NewProcess(int32(s.pid)) //nolint:gosec
		if err != nil {
			return Metrics{}, boxerr.Wrapf(boxerr.Engine, err, "open process handle for pid %d", s.pid)
		}
		s.proc = proc
	}

	cpuPct, err := s.proc.Percent(0 * time.Second)
	if err != nil {
		return Metrics{}, boxerr.Wrapf(boxerr.Engine, err, "sample cpu for pid %d", s.pid)
	}
	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		return Metrics{}, boxerr.Wrapf(boxerr.Engine, err, "sample memory for pid %d", s.pid)
	}

	return Metrics{CPUPercent: cpuPct, MemRSSByte: memInfo.RSS}, nil
}
