package collector

import (
	"strings"
	"time"

	"github.com/nvoss/sysmond/internal/sensor"
)

const mib = 1024 * 1024

// gpuPriority is the vendor preference order when several GPU nodes
// are present in the tree: discrete NVIDIA first, then AMD, then
// integrated Intel.
var gpuPriority = []sensor.HardwareKind{
	sensor.KindGpuNvidia,
	sensor.KindGpuAmd,
	sensor.KindGpuIntel,
}

// Aggregator packs refreshed sensors, counters, and process metrics
// into one immutable Snapshot.
type Aggregator struct {
	totalMemory uint64
	now         func() time.Time
}

// NewAggregator captures the total physical memory once. A zero total
// is replaced by one byte so the used-percentage math cannot divide by
// zero.
func NewAggregator(totalMemory uint64) *Aggregator {
	if totalMemory == 0 {
		totalMemory = 1
	}
	return &Aggregator{totalMemory: totalMemory, now: time.Now}
}

func (a *Aggregator) Aggregate(root *sensor.Node, counters Counters, procs []ProcessMetric) Snapshot {
	snap := Snapshot{
		TakenAt:        a.now(),
		CPUUsagePct:    counters.CPUUsagePct,
		RAMAvailableMB: counters.RAMAvailableMB,
		DiskReadMBps:   counters.DiskReadBps / mib,
		DiskWriteMBps:  counters.DiskWriteBps / mib,
		TopProcesses:   procs,
	}

	used := float64(a.totalMemory) - float64(counters.RAMAvailableMB)*mib
	if used < 0 {
		used = 0
	}
	snap.RAMUsedPct = used / float64(a.totalMemory) * 100

	if cpuNode := findNode(root, func(n *sensor.Node) bool { return n.Kind == sensor.KindCPU }); cpuNode != nil {
		snap.CPUTempC = firstValue(cpuNode, sensor.Temperature)
	}

	if gpu := findGPUNode(root); gpu != nil {
		snap.GPUAvailable = true
		if v := coreValue(gpu, sensor.Load); v != nil {
			snap.GPUUsagePct = *v
		}
		snap.GPUTempC = coreValue(gpu, sensor.Temperature)
	}

	if len(procs) == 1 && procs[0].Err {
		snap.Err = procs[0].Name
	}
	return snap
}

// findNode returns the first node matching pred in pre-order.
func findNode(n *sensor.Node, pred func(*sensor.Node) bool) *sensor.Node {
	if n == nil {
		return nil
	}
	if pred(n) {
		return n
	}
	for _, c := range n.Children {
		if m := findNode(c, pred); m != nil {
			return m
		}
	}
	return nil
}

func findGPUNode(root *sensor.Node) *sensor.Node {
	for _, kind := range gpuPriority {
		kind := kind
		if n := findNode(root, func(n *sensor.Node) bool { return n.Kind == kind }); n != nil {
			return n
		}
	}
	return nil
}

// firstValue returns a copy of the first present value of the given
// sensor kind on the node. Copying keeps the snapshot immutable when
// the provider refreshes the tree on the next tick.
func firstValue(n *sensor.Node, kind sensor.SensorKind) *float64 {
	for _, s := range n.Sensors {
		if s.Kind == kind && s.Value != nil {
			v := *s.Value
			return &v
		}
	}
	return nil
}

// coreValue selects the primary core-domain sensor of the given kind.
// A structured role wins outright; without one, the label must name
// the core domain and not a memory-junction or hot-spot sensor.
func coreValue(n *sensor.Node, kind sensor.SensorKind) *float64 {
	for _, s := range n.Sensors {
		if s.Kind == kind && s.Role == sensor.RoleCore && s.Value != nil {
			v := *s.Value
			return &v
		}
	}
	for _, s := range n.Sensors {
		if s.Kind != kind || s.Value == nil || s.Role != sensor.RoleUnspecified {
			continue
		}
		label := strings.ToLower(s.Label)
		if strings.Contains(label, "memory") || strings.Contains(label, "junction") ||
			strings.Contains(label, "hot spot") || strings.Contains(label, "hotspot") {
			continue
		}
		if strings.Contains(label, "core") {
			v := *s.Value
			return &v
		}
	}
	return nil
}
