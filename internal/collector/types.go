package collector

import "time"

// ProcessMetric is one ranked process entry in a snapshot. It is
// derived fresh each tick from a pair of baselines, never stored.
type ProcessMetric struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	ResidentMB uint64  `json:"resident_mb"`
	Err        bool    `json:"err,omitempty"` // sentinel entry: enumeration itself failed
}

// Counters are the rate-normalized system counters read each tick.
// Disk rates are bytes per second.
type Counters struct {
	CPUUsagePct    float64
	RAMAvailableMB uint64
	DiskReadBps    float64
	DiskWriteBps   float64
}

// Snapshot is the immutable aggregate of one sampling tick. Nil
// temperature fields mean the sensor is absent, which is distinct from
// a reading of zero degrees.
type Snapshot struct {
	TakenAt        time.Time       `json:"taken_at"`
	CPUUsagePct    float64         `json:"cpu_usage_pct"`
	CPUTempC       *float64        `json:"cpu_temp_c,omitempty"`
	GPUAvailable   bool            `json:"gpu_available"`
	GPUUsagePct    float64         `json:"gpu_usage_pct"`
	GPUTempC       *float64        `json:"gpu_temp_c,omitempty"`
	RAMAvailableMB uint64          `json:"ram_available_mb"`
	RAMUsedPct     float64         `json:"ram_used_pct"`
	DiskReadMBps   float64         `json:"disk_read_mbps"`
	DiskWriteMBps  float64         `json:"disk_write_mbps"`
	TopProcesses   []ProcessMetric `json:"top_processes"`
	Err            string          `json:"err,omitempty"`
}
