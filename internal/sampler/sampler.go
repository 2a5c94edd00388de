// Package sampler drives the periodic collection cycle. The
// orchestrator owns the ticker loop; the actual work of one tick is a
// Collector, and finished snapshots fan out to Sinks.
package sampler

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvoss/sysmond/internal/collector"
	"github.com/nvoss/sysmond/internal/sensor"
)

// MinInterval is the floor for the sampling interval. Requests below it
// are clamped, never rejected.
const MinInterval = time.Second

// MinTickTimeout is the floor for the per-tick timeout. A zero or
// negative timeout would fire before the worker even starts and flag
// every tick as slow.
const MinTickTimeout = time.Second

// Collector produces one snapshot per tick.
type Collector interface {
	Collect() collector.Snapshot
}

// CollectorFunc adapts a function to the Collector interface.
type CollectorFunc func() collector.Snapshot

func (f CollectorFunc) Collect() collector.Snapshot { return f() }

// Sink receives every completed snapshot, in tick order.
type Sink interface {
	Consume(collector.Snapshot)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(collector.Snapshot)

func (f SinkFunc) Consume(s collector.Snapshot) { f(s) }

// Pipeline is the standard tick: refresh the sensor tree, read the
// system counters, sample processes, and aggregate.
type Pipeline struct {
	Root      *sensor.Node
	Counters  *collector.CounterSampler
	Processes *collector.ProcessSampler
	Agg       *collector.Aggregator
	TopN      int
}

func (p *Pipeline) Collect() collector.Snapshot {
	sensor.Refresh(p.Root)
	counters := p.Counters.Sample()
	procs := p.Processes.Sample(p.TopN)
	return p.Agg.Aggregate(p.Root, counters, procs)
}

// Orchestrator runs the collection cycle on a ticker. Ticks never
// overlap: while one is in flight, later fires are dropped rather than
// queued, so a stall cannot build a backlog.
type Orchestrator struct {
	collect Collector
	sinks   []Sink
	timeout time.Duration
	log     *slog.Logger

	mu       sync.Mutex
	interval time.Duration
	running  bool
	stopCh   chan struct{}

	loop     sync.WaitGroup
	ticks    sync.WaitGroup
	inFlight atomic.Bool
}

func New(collect Collector, interval, timeout time.Duration, log *slog.Logger, sinks ...Sink) *Orchestrator {
	return &Orchestrator{
		collect:  collect,
		sinks:    sinks,
		timeout:  floorTimeout(timeout),
		log:      log,
		interval: floorInterval(interval),
	}
}

func floorInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	return d
}

func floorTimeout(d time.Duration) time.Duration {
	if d < MinTickTimeout {
		return MinTickTimeout
	}
	return d
}

// Start launches the ticker loop. Starting a running orchestrator is an
// error and leaves the loop untouched.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return errors.New("sampler already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.loop.Add(1)
	go o.run(o.stopCh)
	return nil
}

// Stop halts the ticker loop and waits for any in-flight tick to
// finish before returning. Stopping a stopped orchestrator is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stopCh)
	o.mu.Unlock()

	o.loop.Wait()
	o.ticks.Wait()
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) Interval() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interval
}

// SetInterval changes the sampling interval, clamped to MinInterval.
// The new interval takes effect after the next fire.
func (o *Orchestrator) SetInterval(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interval = floorInterval(d)
}

func (o *Orchestrator) run(stopCh chan struct{}) {
	defer o.loop.Done()

	ticker := time.NewTicker(o.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.tick()
			ticker.Reset(o.Interval())
		case <-stopCh:
			return
		}
	}
}

// tick runs one collection cycle in a worker goroutine and waits for it
// up to the tick timeout. A worker that outlives the timeout keeps the
// in-flight flag, so subsequent fires are dropped until it returns.
func (o *Orchestrator) tick() {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.log.Debug("previous tick still in flight, dropping", "topic", "tick")
		return
	}

	done := make(chan struct{})
	o.ticks.Add(1)
	go func() {
		defer o.ticks.Done()
		defer o.inFlight.Store(false)
		defer close(done)
		// A panicking tick must not take the loop down or leave the
		// in-flight flag set.
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("tick panicked", "topic", "tick", "panic", r)
			}
		}()

		snap := o.collect.Collect()
		for _, s := range o.sinks {
			s.Consume(snap)
		}
	}()

	select {
	case <-done:
	case <-time.After(o.timeout):
		o.log.Warn("tick exceeded timeout", "topic", "tick", "timeout", o.timeout)
	}
}
