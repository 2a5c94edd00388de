package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nvoss/sysmond/internal/collector"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	cpu_usage_pct REAL NOT NULL,
	cpu_temp_c REAL,
	gpu_available INTEGER NOT NULL,
	gpu_usage_pct REAL NOT NULL,
	gpu_temp_c REAL,
	ram_available_mb INTEGER NOT NULL,
	ram_used_pct REAL NOT NULL,
	disk_read_mbps REAL NOT NULL,
	disk_write_mbps REAL NOT NULL,
	err TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(timestamp);

CREATE TABLE IF NOT EXISTS top_process_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	snapshot_id INTEGER NOT NULL,
	pid INTEGER NOT NULL,
	name TEXT NOT NULL,
	cpu_percent REAL NOT NULL,
	resident_mb INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_top_process_snapshot ON top_process_samples(snapshot_id);
`

// DB wraps a SQLite database holding the snapshot history.
type DB struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// InsertSnapshot stores a snapshot and its top-process entries in a
// single transaction. Sentinel error entries are recorded in the err
// column only, never as process rows.
func (d *DB) InsertSnapshot(s collector.Snapshot) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	res, err := tx.Exec(
		`INSERT INTO snapshots (timestamp, cpu_usage_pct, cpu_temp_c, gpu_available, gpu_usage_pct, gpu_temp_c,
			ram_available_mb, ram_used_pct, disk_read_mbps, disk_write_mbps, err)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.TakenAt.Unix(), s.CPUUsagePct, nullFloat(s.CPUTempC), boolInt(s.GPUAvailable),
		s.GPUUsagePct, nullFloat(s.GPUTempC), s.RAMAvailableMB, s.RAMUsedPct,
		s.DiskReadMBps, s.DiskWriteMBps, s.Err,
	)
	if err != nil {
		tx.Rollback()
		return err
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO top_process_samples (snapshot_id, pid, name, cpu_percent, resident_mb) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, p := range s.TopProcesses {
		if p.Err {
			continue
		}
		if _, err := stmt.Exec(snapID, p.PID, p.Name, p.CPUPercent, p.ResidentMB); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LatestSnapshot returns the most recent snapshot, or nil when the
// database is empty.
func (d *DB) LatestSnapshot() (*collector.Snapshot, error) {
	row := d.db.QueryRow(selectSnapshot + " ORDER BY timestamp DESC LIMIT 1")
	id, s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.TopProcesses, err = d.processesFor(id); err != nil {
		return nil, err
	}
	return &s, nil
}

// SnapshotsInRange returns snapshots within the given unix epoch range,
// oldest first, with their top-process entries attached.
func (d *DB) SnapshotsInRange(from, to int64) ([]collector.Snapshot, error) {
	rows, err := d.db.Query(selectSnapshot+" WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp", from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []collector.Snapshot
	var ids []int64
	for rows.Next() {
		id, s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, id := range ids {
		if snaps[i].TopProcesses, err = d.processesFor(id); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

// TopProcessRow is one stored process entry with its snapshot time.
type TopProcessRow struct {
	Timestamp int64
	collector.ProcessMetric
}

// TopProcessesInRange returns the stored top-process entries within the
// given unix epoch range, oldest snapshot first.
func (d *DB) TopProcessesInRange(from, to int64) ([]TopProcessRow, error) {
	rows, err := d.db.Query(
		`SELECT s.timestamp, p.pid, p.name, p.cpu_percent, p.resident_mb
		 FROM top_process_samples p JOIN snapshots s ON s.id = p.snapshot_id
		 WHERE s.timestamp >= ? AND s.timestamp <= ? ORDER BY s.timestamp, p.id`,
		from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopProcessRow
	for rows.Next() {
		var r TopProcessRow
		if err := rows.Scan(&r.Timestamp, &r.PID, &r.Name, &r.CPUPercent, &r.ResidentMB); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectSnapshot = `SELECT id, timestamp, cpu_usage_pct, cpu_temp_c, gpu_available, gpu_usage_pct, gpu_temp_c,
	ram_available_mb, ram_used_pct, disk_read_mbps, disk_write_mbps, err FROM snapshots`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (int64, collector.Snapshot, error) {
	var (
		id       int64
		ts       int64
		cpuTemp  sql.NullFloat64
		gpuTemp  sql.NullFloat64
		gpuAvail int
		s        collector.Snapshot
	)
	err := row.Scan(&id, &ts, &s.CPUUsagePct, &cpuTemp, &gpuAvail, &s.GPUUsagePct, &gpuTemp,
		&s.RAMAvailableMB, &s.RAMUsedPct, &s.DiskReadMBps, &s.DiskWriteMBps, &s.Err)
	if err != nil {
		return 0, s, err
	}
	s.TakenAt = time.Unix(ts, 0)
	s.GPUAvailable = gpuAvail != 0
	if cpuTemp.Valid {
		s.CPUTempC = &cpuTemp.Float64
	}
	if gpuTemp.Valid {
		s.GPUTempC = &gpuTemp.Float64
	}
	return id, s, nil
}

func (d *DB) processesFor(snapID int64) ([]collector.ProcessMetric, error) {
	rows, err := d.db.Query(
		"SELECT pid, name, cpu_percent, resident_mb FROM top_process_samples WHERE snapshot_id = ? ORDER BY id",
		snapID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var procs []collector.ProcessMetric
	for rows.Next() {
		var p collector.ProcessMetric
		if err := rows.Scan(&p.PID, &p.Name, &p.CPUPercent, &p.ResidentMB); err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
