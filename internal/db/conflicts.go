package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/attendancex/attendx/internal/models"
)

const conflictColumns = `record_id, event_id, user_id, local_ms, remote_ms, COALESCE(remote_payload, ''),
	COALESCE(resolution, ''), detected_at_ms`

// PutConflict records (or refreshes) a conflict for a local record. An
// existing resolution is preserved. A record with an open (unresolved)
// conflict is held back from sync.
func (db *DB) PutConflict(c *models.SyncConflict) error {
	_, err := db.conn.Exec(`
		INSERT INTO sync_conflicts (record_id, event_id, user_id, local_ms, remote_ms, remote_payload, resolution, detected_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			remote_ms = excluded.remote_ms,
			remote_payload = excluded.remote_payload
	`, c.RecordID, c.EventID, c.UserID, toMillis(c.LocalTimestamp), toMillis(c.RemoteTimestamp),
		c.RemotePayload, c.Resolution, toMillis(c.DetectedAt))
	if err != nil {
		return fmt.Errorf("put conflict %s: %w", c.RecordID, err)
	}
	return nil
}

// GetConflict returns the conflict row for a record, or ErrNotFound
func (db *DB) GetConflict(recordID string) (*models.SyncConflict, error) {
	row := db.conn.QueryRow(`SELECT `+conflictColumns+` FROM sync_conflicts WHERE record_id = ?`, recordID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conflict %s: %w", recordID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict %s: %w", recordID, err)
	}
	return c, nil
}

// ListConflicts returns unresolved conflicts, most recently detected first
func (db *DB) ListConflicts() ([]models.SyncConflict, error) {
	rows, err := db.conn.Query(`SELECT ` + conflictColumns + ` FROM sync_conflicts
		WHERE resolution = '' ORDER BY detected_at_ms DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []models.SyncConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, rows.Err()
}

// ConflictStates maps every record with a conflict row to its resolution
// ("" while the conflict is still open).
func (db *DB) ConflictStates() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT record_id, COALESCE(resolution, '') FROM sync_conflicts`)
	if err != nil {
		return nil, fmt.Errorf("list conflict states: %w", err)
	}
	defer rows.Close()

	states := make(map[string]string)
	for rows.Next() {
		var id, resolution string
		if err := rows.Scan(&id, &resolution); err != nil {
			return nil, err
		}
		states[id] = resolution
	}
	return states, rows.Err()
}

// SetConflictResolution marks a conflict as resolved by a human
func (db *DB) SetConflictResolution(recordID, resolution string) error {
	res, err := db.conn.Exec(`UPDATE sync_conflicts SET resolution = ? WHERE record_id = ?`, resolution, recordID)
	if err != nil {
		return fmt.Errorf("resolve conflict %s: %w", recordID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conflict %s: %w", recordID, ErrNotFound)
	}
	return nil
}

// DeleteConflict removes the conflict row for a record
func (db *DB) DeleteConflict(recordID string) error {
	if _, err := db.conn.Exec(`DELETE FROM sync_conflicts WHERE record_id = ?`, recordID); err != nil {
		return fmt.Errorf("delete conflict %s: %w", recordID, err)
	}
	return nil
}

func scanConflict(s rowScanner) (*models.SyncConflict, error) {
	var c models.SyncConflict
	var localMs, remoteMs, detectedMs int64
	err := s.Scan(&c.RecordID, &c.EventID, &c.UserID, &localMs, &remoteMs, &c.RemotePayload,
		&c.Resolution, &detectedMs)
	if err != nil {
		return nil, err
	}
	c.LocalTimestamp = fromMillis(localMs)
	c.RemoteTimestamp = fromMillis(remoteMs)
	c.DetectedAt = fromMillis(detectedMs)
	return &c, nil
}
