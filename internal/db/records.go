package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

const recordColumns = `id, event_id, user_id, method, timestamp_ms, COALESCE(qr_code_data, ''),
	location, device_info, synced, sync_attempts, last_sync_attempt_ms, COALESCE(error, ''), created_at_ms`

// InsertRecord stores a new attendance record. The ID must already be set.
func (db *DB) InsertRecord(r *models.AttendanceRecord) error {
	if r.ID == "" {
		return fmt.Errorf("insert record: empty id")
	}
	loc, dev, err := encodeRecordPayload(r)
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err = db.conn.Exec(`
		INSERT INTO attendance_records (id, event_id, user_id, method, timestamp_ms, qr_code_data,
			location, device_info, synced, sync_attempts, last_sync_attempt_ms, error, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.EventID, r.UserID, string(r.Method), toMillis(r.Timestamp), r.QRCodeData,
		loc, dev, boolInt(r.Synced), r.SyncAttempts, nullMillis(r.LastSyncAttempt), nullString(r.Error),
		toMillis(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert record %s: %w", r.ID, err)
	}
	return nil
}

// UpdateRecord persists the sync bookkeeping of a record (upsert)
func (db *DB) UpdateRecord(r *models.AttendanceRecord) error {
	loc, dev, err := encodeRecordPayload(r)
	if err != nil {
		return err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err = db.conn.Exec(`
		INSERT INTO attendance_records (id, event_id, user_id, method, timestamp_ms, qr_code_data,
			location, device_info, synced, sync_attempts, last_sync_attempt_ms, error, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			synced = excluded.synced,
			sync_attempts = MAX(attendance_records.sync_attempts, excluded.sync_attempts),
			last_sync_attempt_ms = excluded.last_sync_attempt_ms,
			error = excluded.error
	`, r.ID, r.EventID, r.UserID, string(r.Method), toMillis(r.Timestamp), r.QRCodeData,
		loc, dev, boolInt(r.Synced), r.SyncAttempts, nullMillis(r.LastSyncAttempt), nullString(r.Error),
		toMillis(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("update record %s: %w", r.ID, err)
	}
	return nil
}

// GetRecord returns a record by ID, or ErrNotFound
func (db *DB) GetRecord(id string) (*models.AttendanceRecord, error) {
	row := db.conn.QueryRow(`SELECT `+recordColumns+` FROM attendance_records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return r, nil
}

// DeleteRecord removes a record. Deleting a missing record is not an error.
func (db *DB) DeleteRecord(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM attendance_records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

// ListRecords returns every record (full-table scan)
func (db *DB) ListRecords() ([]models.AttendanceRecord, error) {
	return db.queryRecords(`SELECT ` + recordColumns + ` FROM attendance_records ORDER BY timestamp_ms`)
}

// ListRecordsBySynced returns records whose synced flag matches
func (db *DB) ListRecordsBySynced(synced bool) ([]models.AttendanceRecord, error) {
	return db.queryRecords(`SELECT `+recordColumns+` FROM attendance_records WHERE synced = ? ORDER BY timestamp_ms`,
		boolInt(synced))
}

// ListRecordsByEvent returns records for one event
func (db *DB) ListRecordsByEvent(eventID string) ([]models.AttendanceRecord, error) {
	return db.queryRecords(`SELECT `+recordColumns+` FROM attendance_records WHERE event_id = ? ORDER BY timestamp_ms`,
		eventID)
}

// ListRecordsBefore returns records with a check-in timestamp strictly before cutoff
func (db *DB) ListRecordsBefore(cutoff time.Time) ([]models.AttendanceRecord, error) {
	return db.queryRecords(`SELECT `+recordColumns+` FROM attendance_records WHERE timestamp_ms < ? ORDER BY timestamp_ms`,
		toMillis(cutoff))
}

// CountRecords returns the number of stored records
func (db *DB) CountRecords() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM attendance_records`).Scan(&n)
	return n, err
}

// queryRecords reads the full result set before returning so callers can
// issue further statements on single-connection pools.
func (db *DB) queryRecords(query string, args ...any) ([]models.AttendanceRecord, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (*models.AttendanceRecord, error) {
	var (
		r           models.AttendanceRecord
		method      string
		tsMs        int64
		loc, dev    sql.NullString
		synced      int
		lastAttempt sql.NullInt64
		createdMs   int64
	)
	err := s.Scan(&r.ID, &r.EventID, &r.UserID, &method, &tsMs, &r.QRCodeData,
		&loc, &dev, &synced, &r.SyncAttempts, &lastAttempt, &r.Error, &createdMs)
	if err != nil {
		return nil, err
	}

	r.Method = models.Method(method)
	r.Timestamp = fromMillis(tsMs)
	r.Synced = synced != 0
	r.LastSyncAttempt = timePtr(lastAttempt)
	r.CreatedAt = fromMillis(createdMs)

	if loc.Valid && loc.String != "" {
		var l models.Location
		if err := json.Unmarshal([]byte(loc.String), &l); err != nil {
			return nil, fmt.Errorf("decode location for %s: %w", r.ID, err)
		}
		r.Location = &l
	}
	if dev.Valid && dev.String != "" {
		var d models.DeviceInfo
		if err := json.Unmarshal([]byte(dev.String), &d); err != nil {
			return nil, fmt.Errorf("decode device info for %s: %w", r.ID, err)
		}
		r.DeviceInfo = &d
	}
	return &r, nil
}

func encodeRecordPayload(r *models.AttendanceRecord) (sql.NullString, sql.NullString, error) {
	var loc, dev sql.NullString
	if r.Location != nil {
		data, err := json.Marshal(r.Location)
		if err != nil {
			return loc, dev, fmt.Errorf("encode location: %w", err)
		}
		loc = sql.NullString{String: string(data), Valid: true}
	}
	if r.DeviceInfo != nil {
		data, err := json.Marshal(r.DeviceInfo)
		if err != nil {
			return loc, dev, fmt.Errorf("encode device info: %w", err)
		}
		dev = sql.NullString{String: string(data), Valid: true}
	}
	return loc, dev, nil
}
