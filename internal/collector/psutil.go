package collector

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// PsutilSource enumerates processes through gopsutil.
type PsutilSource struct{}

func (PsutilSource) Processes() ([]ProcInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	out := make([]ProcInfo, 0, len(procs))
	for _, p := range procs {
		// A process that exits or denies access between enumeration and
		// read is skipped for this tick only.
		times, err := p.Times()
		if err != nil {
			continue
		}
		name, err := p.Name()
		if err != nil {
			continue
		}
		var rss uint64
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			rss = mi.RSS
		}
		out = append(out, ProcInfo{
			PID:     p.Pid,
			Name:    name,
			CPUTime: time.Duration((times.User + times.System) * float64(time.Second)),
			RSS:     rss,
		})
	}
	return out, nil
}

// PsutilCounters reads cumulative system counters through gopsutil.
type PsutilCounters struct{}

func (PsutilCounters) CPUTimes() (busy, total float64, err error) {
	ts, err := cpu.Times(false)
	if err != nil {
		return 0, 0, fmt.Errorf("read cpu times: %w", err)
	}
	if len(ts) == 0 {
		return 0, 0, errors.New("no aggregate cpu times")
	}
	t := ts[0]
	total = t.User + t.System + t.Idle + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
	busy = total - t.Idle - t.Iowait
	return busy, total, nil
}

func (PsutilCounters) AvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("read virtual memory: %w", err)
	}
	return vm.Available, nil
}

func (PsutilCounters) DiskIO() (read, write uint64, err error) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0, fmt.Errorf("read disk io counters: %w", err)
	}
	for _, c := range counters {
		read += c.ReadBytes
		write += c.WriteBytes
	}
	return read, write, nil
}

// CoreCount returns the logical CPU count, falling back to
// runtime.NumCPU when gopsutil cannot answer.
func CoreCount() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// TotalPhysicalMemory returns total RAM in bytes. It never returns
// zero: a failed query falls back to one byte so percentage math
// cannot divide by zero.
func TotalPhysicalMemory() uint64 {
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		return vm.Total
	}
	return 1
}
