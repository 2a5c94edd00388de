// Package csvlog appends throttled snapshot rows to a CSV file. The
// logger is either stopped or logging; while logging, at most one row
// per throttle window is written and everything in between is dropped.
package csvlog

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/nvoss/sysmond/internal/collector"
)

const (
	header          = "Timestamp,CPU Usage (%),CPU Temp (C),GPU Usage (%),GPU Temp (C),RAM Available (MB)\n"
	DefaultThrottle = 5 * time.Second
)

type Logger struct {
	mu       sync.Mutex
	file     *os.File
	throttle time.Duration
	lastRow  time.Time
	now      func() time.Time
}

// New returns a stopped logger. A non-positive throttle falls back to
// DefaultThrottle.
func New(throttle time.Duration) *Logger {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Logger{throttle: throttle, now: time.Now}
}

// Start opens path for appending and writes the header row. Starting an
// already-logging logger is an error; the open file stays usable.
func (l *Logger) Start(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return fmt.Errorf("csv logger already started")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening csv log: %w", err)
	}
	if _, err := f.WriteString(header); err != nil {
		f.Close()
		return fmt.Errorf("writing csv header: %w", err)
	}
	l.file = f
	l.lastRow = time.Time{}
	return nil
}

// Record writes one row for the snapshot. When stopped, or when the
// last row is younger than the throttle window, the snapshot is
// silently dropped.
func (l *Logger) Record(snap collector.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	now := l.now()
	if !l.lastRow.IsZero() && now.Sub(l.lastRow) < l.throttle {
		return nil
	}
	if _, err := l.file.WriteString(formatRow(snap)); err != nil {
		return fmt.Errorf("writing csv row: %w", err)
	}
	l.lastRow = now
	return nil
}

// Active reports whether the logger currently accepts rows.
func (l *Logger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Stop closes the file and returns the logger to the stopped state.
// Stopping a stopped logger is a no-op.
func (l *Logger) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("closing csv log: %w", err)
	}
	return nil
}

func formatRow(snap collector.Snapshot) string {
	return fmt.Sprintf("%s,%.1f,%s,%.1f,%s,%d\n",
		snap.TakenAt.Format("2006-01-02 15:04:05"),
		snap.CPUUsagePct,
		formatTemp(snap.CPUTempC),
		snap.GPUUsagePct,
		formatTemp(snap.GPUTempC),
		snap.RAMAvailableMB,
	)
}

// formatTemp renders an absent temperature as an empty cell.
func formatTemp(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
