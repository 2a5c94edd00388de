package dbus

import (
	"encoding/json"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/nvoss/sysmond/internal/collector"
	"github.com/nvoss/sysmond/internal/storage"
)

const (
	busName   = "dev.sysmond.Monitor1"
	objPath   = "/dev/sysmond/Monitor1"
	ifaceName = "dev.sysmond.Monitor1"

	// History queries are capped to a year so a bad client cannot ask
	// for the whole table in one call.
	maxRangeSeconds = 86400 * 366

	minIntervalSeconds = 1
	maxIntervalSeconds = 3600
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="GetLatestSnapshot">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHistory">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="SetIntervalSeconds">
      <arg direction="in" type="x" name="seconds"/>
    </method>
    <method name="StartLogging">
      <arg direction="in" type="s" name="csv_path"/>
    </method>
    <method name="StopLogging">
    </method>
    <method name="GetConfig">
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Sampler is the subset of the orchestrator the service drives.
type Sampler interface {
	Interval() time.Duration
	SetInterval(time.Duration)
}

// SnapshotLogger is the subset of the CSV logger the service drives.
type SnapshotLogger interface {
	Start(path string) error
	Stop() error
	Active() bool
}

// Service exposes the monitor over D-Bus.
type Service struct {
	store   *storage.DB
	sampler Sampler
	csv     SnapshotLogger
}

// NewService creates a new D-Bus service.
func NewService(store *storage.DB, sampler Sampler, csv SnapshotLogger) *Service {
	return &Service{store: store, sampler: sampler, csv: csv}
}

// Export registers the service on the system bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	conn.Export(s, objPath, ifaceName)
	conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable")

	reply, err := conn.RequestName(busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", busName)
	}

	return conn, nil
}

// GetLatestSnapshot returns the most recent stored snapshot as JSON.
// An empty database yields the JSON null literal.
func (s *Service) GetLatestSnapshot() (string, *godbus.Error) {
	snap, err := s.store.LatestSnapshot()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetHistory returns stored snapshots in a time range as a JSON array.
func (s *Service) GetHistory(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if dbusErr := validateTimeRange(fromEpoch, toEpoch); dbusErr != nil {
		return "", dbusErr
	}
	snaps, err := s.store.SnapshotsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if snaps == nil {
		snaps = []collector.Snapshot{}
	}
	data, err := json.Marshal(snaps)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// SetIntervalSeconds changes the sampling interval at runtime. The
// change is not persisted to the config file.
func (s *Service) SetIntervalSeconds(seconds int64) *godbus.Error {
	if seconds < minIntervalSeconds || seconds > maxIntervalSeconds {
		return godbus.MakeFailedError(fmt.Errorf("interval must be between %d and %d seconds, got %d",
			minIntervalSeconds, maxIntervalSeconds, seconds))
	}
	s.sampler.SetInterval(time.Duration(seconds) * time.Second)
	return nil
}

// StartLogging begins CSV logging to the given path.
func (s *Service) StartLogging(csvPath string) *godbus.Error {
	if csvPath == "" {
		return godbus.MakeFailedError(fmt.Errorf("csv path must not be empty"))
	}
	if err := s.csv.Start(csvPath); err != nil {
		return godbus.MakeFailedError(err)
	}
	return nil
}

// StopLogging stops CSV logging. Stopping when not logging is a no-op.
func (s *Service) StopLogging() *godbus.Error {
	if err := s.csv.Stop(); err != nil {
		return godbus.MakeFailedError(err)
	}
	return nil
}

// GetConfig returns the current runtime settings as JSON.
func (s *Service) GetConfig() (string, *godbus.Error) {
	state := map[string]any{
		"interval_seconds": int(s.sampler.Interval() / time.Second),
		"logging_active":   s.csv.Active(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

func validateTimeRange(from, to int64) *godbus.Error {
	if from < 0 {
		return godbus.MakeFailedError(fmt.Errorf("from_epoch must not be negative, got %d", from))
	}
	if to < from {
		return godbus.MakeFailedError(fmt.Errorf("to_epoch %d is before from_epoch %d", to, from))
	}
	if to-from > maxRangeSeconds {
		return godbus.MakeFailedError(fmt.Errorf("range exceeds %d seconds", maxRangeSeconds))
	}
	return nil
}
