package db

import (
	"fmt"

	"github.com/attendancex/attendx/internal/models"
)

// AppendSyncHistory records one sync attempt outcome
func (db *DB) AppendSyncHistory(e *models.SyncHistoryEntry) error {
	res, err := db.conn.Exec(`
		INSERT INTO sync_history (record_id, event_id, outcome, error, http_status, attempted_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.RecordID, e.EventID, string(e.Outcome), e.Error, e.HTTPStatus, toMillis(e.AttemptedAt))
	if err != nil {
		return fmt.Errorf("append sync history: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// GetSyncHistoryTail returns the last N entries in chronological order (oldest first).
func (db *DB) GetSyncHistoryTail(limit int) ([]models.SyncHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, record_id, event_id, outcome, COALESCE(error, ''), COALESCE(http_status, 0), attempted_at_ms
		FROM sync_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.SyncHistoryEntry
	for rows.Next() {
		var e models.SyncHistoryEntry
		var outcome string
		var ms int64
		if err := rows.Scan(&e.ID, &e.RecordID, &e.EventID, &outcome, &e.Error, &e.HTTPStatus, &ms); err != nil {
			return nil, err
		}
		e.Outcome = models.SyncOutcome(outcome)
		e.AttemptedAt = fromMillis(ms)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// GetRecordHistory returns every attempt logged for one record, oldest first
func (db *DB) GetRecordHistory(recordID string) ([]models.SyncHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, record_id, event_id, outcome, COALESCE(error, ''), COALESCE(http_status, 0), attempted_at_ms
		FROM sync_history
		WHERE record_id = ?
		ORDER BY id
	`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.SyncHistoryEntry
	for rows.Next() {
		var e models.SyncHistoryEntry
		var outcome string
		var ms int64
		if err := rows.Scan(&e.ID, &e.RecordID, &e.EventID, &outcome, &e.Error, &e.HTTPStatus, &ms); err != nil {
			return nil, err
		}
		e.Outcome = models.SyncOutcome(outcome)
		e.AttemptedAt = fromMillis(ms)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
