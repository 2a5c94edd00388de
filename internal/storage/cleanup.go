package storage

import "fmt"

// DeleteOlderThan deletes snapshots taken before the given unix epoch,
// along with their top-process rows. Returns the total number of
// deleted rows.
func (d *DB) DeleteOlderThan(before int64) (int64, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}

	var total int64
	res, err := tx.Exec(
		"DELETE FROM top_process_samples WHERE snapshot_id IN (SELECT id FROM snapshots WHERE timestamp < ?)",
		before,
	)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("delete top_process_samples: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = tx.Exec("DELETE FROM snapshots WHERE timestamp < ?", before)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}
