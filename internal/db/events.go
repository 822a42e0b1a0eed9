package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

const eventColumns = `id, title, start_ms, end_ms, COALESCE(qr_token, ''), COALESCE(participants, '[]'), last_updated_ms`

// PutEvent upserts a cached event snapshot
func (db *DB) PutEvent(e *models.CachedEvent) error {
	if e.ID == "" {
		return fmt.Errorf("put event: empty id")
	}
	participants := e.Participants
	if participants == nil {
		participants = []string{}
	}
	data, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}

	_, err = db.conn.Exec(`
		INSERT OR REPLACE INTO cached_events (id, title, start_ms, end_ms, qr_token, participants, last_updated_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Title, zeroableMillis(e.StartTime), zeroableMillis(e.EndTime), e.QRToken, string(data),
		toMillis(e.LastUpdated))
	if err != nil {
		return fmt.Errorf("put event %s: %w", e.ID, err)
	}
	return nil
}

// GetEvent returns a cached event, or nil when it is not cached
func (db *DB) GetEvent(id string) (*models.CachedEvent, error) {
	row := db.conn.QueryRow(`SELECT `+eventColumns+` FROM cached_events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// ListEvents returns all cached events, most recently updated first
func (db *DB) ListEvents() ([]models.CachedEvent, error) {
	return db.queryEvents(`SELECT ` + eventColumns + ` FROM cached_events ORDER BY last_updated_ms DESC`)
}

// ListEventsUpdatedBefore returns cached events whose snapshot is older than cutoff
func (db *DB) ListEventsUpdatedBefore(cutoff time.Time) ([]models.CachedEvent, error) {
	return db.queryEvents(`SELECT `+eventColumns+` FROM cached_events WHERE last_updated_ms < ? ORDER BY last_updated_ms`,
		toMillis(cutoff))
}

// DeleteEvent removes a cached event
func (db *DB) DeleteEvent(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM cached_events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// CountEvents returns the number of cached events
func (db *DB) CountEvents() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM cached_events`).Scan(&n)
	return n, err
}

func (db *DB) queryEvents(query string, args ...any) ([]models.CachedEvent, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.CachedEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func scanEvent(s rowScanner) (*models.CachedEvent, error) {
	var (
		e            models.CachedEvent
		start, end   sql.NullInt64
		participants string
		updatedMs    int64
	)
	if err := s.Scan(&e.ID, &e.Title, &start, &end, &e.QRToken, &participants, &updatedMs); err != nil {
		return nil, err
	}
	if start.Valid {
		e.StartTime = fromMillis(start.Int64)
	}
	if end.Valid {
		e.EndTime = fromMillis(end.Int64)
	}
	e.LastUpdated = fromMillis(updatedMs)
	if err := json.Unmarshal([]byte(participants), &e.Participants); err != nil {
		return nil, fmt.Errorf("decode participants for %s: %w", e.ID, err)
	}
	if len(e.Participants) == 0 {
		e.Participants = nil
	}
	return &e, nil
}

// zeroableMillis stores the zero time as NULL
func zeroableMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
