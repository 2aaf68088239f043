// Package telemetry reports process and pipeline health consumed by the
// control surface's dashboard and by breaker-trip alerting.
package telemetry

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/rs/zerolog"
)

// ProcessHealth is a point-in-time snapshot of the Brain process's resource
// usage.
type ProcessHealth struct {
	CPUPercent    float64
	MemoryPercent float64
	OpenFDs       int32
}

// Reporter samples process and host health on demand. Kept stateless
// beyond its own pid and logger, the same shape as the teacher's
// getSystemStats helper.
type Reporter struct {
	pid int32
	log zerolog.Logger
}

// NewReporter constructs a Reporter bound to the current process.
func NewReporter(log zerolog.Logger) *Reporter {
	return &Reporter{pid: int32(os.Getpid()), log: log.With().Str("component", "telemetry").Logger()}
}

// Sample reads current CPU, RAM, and open-file-descriptor usage. A
// short (100ms) CPU sampling interval keeps this safe to call from a
// request handler without blocking it noticeably, the same tradeoff the
// teacher's system handlers make.
func (r *Reporter) Sample() ProcessHealth {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to read cpu percentage")
		cpuPercent = []float64{0}
	}
	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memPercent := 0.0
	if memStat, err := mem.VirtualMemory(); err != nil {
		r.log.Warn().Err(err).Msg("failed to read memory statistics")
	} else {
		memPercent = memStat.UsedPercent
	}

	var openFDs int32
	if proc, err := process.NewProcess(r.pid); err != nil {
		r.log.Warn().Err(err).Msg("failed to open process handle")
	} else if n, err := proc.NumFDs(); err != nil {
		r.log.Warn().Err(err).Msg("failed to read open file descriptor count")
	} else {
		openFDs = n
	}

	return ProcessHealth{CPUPercent: cpuAvg, MemoryPercent: memPercent, OpenFDs: openFDs}
}
