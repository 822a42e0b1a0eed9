package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

const tokenColumns = `token, event_id, expires_at_ms, cached_at_ms`

// PutQRToken upserts a QR token mapping
func (db *DB) PutQRToken(t *models.CachedQRToken) error {
	if t.Token == "" {
		return fmt.Errorf("put qr token: empty token")
	}
	if t.CachedAt.IsZero() {
		t.CachedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO qr_tokens (token, event_id, expires_at_ms, cached_at_ms)
		VALUES (?, ?, ?, ?)
	`, t.Token, t.EventID, nullMillis(t.ExpiresAt), toMillis(t.CachedAt))
	if err != nil {
		return fmt.Errorf("put qr token for %s: %w", t.EventID, err)
	}
	return nil
}

// GetQRToken returns a token by its exact payload, or nil when it is not cached
func (db *DB) GetQRToken(token string) (*models.CachedQRToken, error) {
	row := db.conn.QueryRow(`SELECT `+tokenColumns+` FROM qr_tokens WHERE token = ?`, token)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get qr token: %w", err)
	}
	return t, nil
}

// ListQRTokens returns every cached token
func (db *DB) ListQRTokens() ([]models.CachedQRToken, error) {
	return db.queryTokens(`SELECT ` + tokenColumns + ` FROM qr_tokens ORDER BY cached_at_ms`)
}

// ListExpiredQRTokens returns tokens whose expiry is before now (index scan on expires_at_ms)
func (db *DB) ListExpiredQRTokens(now time.Time) ([]models.CachedQRToken, error) {
	return db.queryTokens(`SELECT `+tokenColumns+` FROM qr_tokens
		WHERE expires_at_ms IS NOT NULL AND expires_at_ms < ? ORDER BY expires_at_ms`, toMillis(now))
}

// DeleteQRToken removes a cached token
func (db *DB) DeleteQRToken(token string) error {
	if _, err := db.conn.Exec(`DELETE FROM qr_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete qr token: %w", err)
	}
	return nil
}

func (db *DB) queryTokens(query string, args ...any) ([]models.CachedQRToken, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query qr tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.CachedQRToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan qr token: %w", err)
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

func scanToken(s rowScanner) (*models.CachedQRToken, error) {
	var (
		t        models.CachedQRToken
		expires  sql.NullInt64
		cachedMs int64
	)
	if err := s.Scan(&t.Token, &t.EventID, &expires, &cachedMs); err != nil {
		return nil, err
	}
	t.ExpiresAt = timePtr(expires)
	t.CachedAt = fromMillis(cachedMs)
	return &t, nil
}

// CountQRTokens returns the number of cached tokens
func (db *DB) CountQRTokens() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM qr_tokens`).Scan(&n)
	return n, err
}
