package collector

import "time"

// CounterReader supplies the raw cumulative readings that
// CounterSampler turns into rates. CPU times are cumulative seconds,
// disk IO is cumulative bytes since boot.
type CounterReader interface {
	CPUTimes() (busy, total float64, err error)
	AvailableMemory() (uint64, error)
	DiskIO() (read, write uint64, err error)
}

// CounterSampler rate-normalizes cumulative counters between ticks
// with the same baseline-delta scheme the process sampler uses. Each
// counter primes independently on its first successful read and
// reports a zero rate until then, so a failed read never becomes a
// baseline.
type CounterSampler struct {
	reader CounterReader
	now    func() time.Time

	cpuPrimed bool
	lastBusy  float64
	lastTotal float64

	diskPrimed bool
	diskAt     time.Time
	lastRead   uint64
	lastWrite  uint64
}

func NewCounterSampler(reader CounterReader) *CounterSampler {
	return &CounterSampler{reader: reader, now: time.Now}
}

// Sample returns rates computed against the previous successful
// reading. Individual reader failures leave the corresponding fields
// at zero for this tick; they never abort the sample and never touch
// the baselines.
func (c *CounterSampler) Sample() Counters {
	var out Counters
	now := c.now()

	busy, total, cpuErr := c.reader.CPUTimes()
	if avail, err := c.reader.AvailableMemory(); err == nil {
		out.RAMAvailableMB = avail / (1024 * 1024)
	}
	read, write, diskErr := c.reader.DiskIO()

	if cpuErr == nil {
		if c.cpuPrimed && total > c.lastTotal {
			out.CPUUsagePct = 100 * (busy - c.lastBusy) / (total - c.lastTotal)
			if out.CPUUsagePct < 0 {
				out.CPUUsagePct = 0
			}
			if out.CPUUsagePct > 100 {
				out.CPUUsagePct = 100
			}
		}
		c.lastBusy, c.lastTotal = busy, total
		c.cpuPrimed = true
	}

	if diskErr == nil {
		if wall := now.Sub(c.diskAt).Seconds(); c.diskPrimed && wall > 0 {
			if read >= c.lastRead {
				out.DiskReadBps = float64(read-c.lastRead) / wall
			}
			if write >= c.lastWrite {
				out.DiskWriteBps = float64(write-c.lastWrite) / wall
			}
		}
		c.lastRead, c.lastWrite = read, write
		c.diskAt = now
		c.diskPrimed = true
	}

	return out
}
