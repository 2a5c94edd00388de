package collector

import (
	"sort"
	"time"
)

// ProcInfo is one readable process as reported by a ProcessSource.
type ProcInfo struct {
	PID     int32
	Name    string
	CPUTime time.Duration // cumulative user+system processor time
	RSS     uint64        // resident set size in bytes
}

// ProcessSource enumerates the currently running processes.
// Implementations skip individual processes they cannot read (exited,
// permission denied); a returned error means enumeration itself failed.
type ProcessSource interface {
	Processes() ([]ProcInfo, error)
}

// baseline is the previous observation for a pid, used to turn the
// cumulative processor time into a rate.
type baseline struct {
	observedAt time.Time
	cpuTime    time.Duration
}

// ProcessSampler converts cumulative per-process CPU time into
// instantaneous percentages across sampling ticks. Not safe for
// concurrent use; the orchestrator's tick guard serializes access.
type ProcessSampler struct {
	source    ProcessSource
	cores     int
	now       func() time.Time
	baselines map[int32]baseline
	count     int
}

func NewProcessSampler(source ProcessSource, cores int) *ProcessSampler {
	if cores <= 0 {
		cores = 1
	}
	return &ProcessSampler{
		source:    source,
		cores:     cores,
		now:       time.Now,
		baselines: make(map[int32]baseline),
	}
}

// ProcessCount returns the number of processes seen by the last Sample
// call, zero when enumeration failed.
func (s *ProcessSampler) ProcessCount() int { return s.count }

// Sample enumerates live processes, computes each one's CPU percentage
// against its baseline, replaces the baselines, evicts dead pids, and
// returns the topN entries. A process seen for the first time reports
// zero CPU for that tick. On total enumeration failure it returns a
// single sentinel metric instead of an error.
func (s *ProcessSampler) Sample(topN int) []ProcessMetric {
	procs, err := s.source.Processes()
	if err != nil {
		s.count = 0
		return []ProcessMetric{{Name: "process enumeration failed", Err: true}}
	}

	now := s.now()
	live := make(map[int32]bool, len(procs))
	metrics := make([]ProcessMetric, 0, len(procs))
	anyCPU := false

	for _, p := range procs {
		live[p.PID] = true

		var cpuPct float64
		if prev, ok := s.baselines[p.PID]; ok {
			wall := now.Sub(prev.observedAt)
			if wall > 0 {
				cpuDelta := p.CPUTime - prev.cpuTime
				cpuPct = 100 * cpuDelta.Seconds() / (wall.Seconds() * float64(s.cores))
				if cpuPct < 0 {
					// Timing skew between the counter read and the
					// wall clock can produce a small negative.
					cpuPct = 0
				}
			}
		}
		s.baselines[p.PID] = baseline{observedAt: now, cpuTime: p.CPUTime}

		if cpuPct > 0 {
			anyCPU = true
		}
		metrics = append(metrics, ProcessMetric{
			PID:        p.PID,
			Name:       p.Name,
			CPUPercent: cpuPct,
			ResidentMB: p.RSS / (1024 * 1024),
		})
	}

	for pid := range s.baselines {
		if !live[pid] {
			delete(s.baselines, pid)
		}
	}
	s.count = len(metrics)

	// Whole-tick ranking switch: before any delta exists every entry is
	// at zero CPU, so rank by resident memory instead.
	if anyCPU {
		sort.Slice(metrics, func(i, j int) bool {
			return metrics[i].CPUPercent > metrics[j].CPUPercent
		})
	} else {
		sort.Slice(metrics, func(i, j int) bool {
			return metrics[i].ResidentMB > metrics[j].ResidentMB
		})
	}
	if topN > 0 && len(metrics) > topN {
		metrics = metrics[:topN]
	}
	return metrics
}
