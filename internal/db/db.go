package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dataDir = ".attendx"
	dbFile  = "offline.db"
)

// Sentinel errors returned by the store
var (
	// ErrStoreUnavailable means the local store could not be opened or created.
	// Callers treat it as "offline features disabled", never as fatal.
	ErrStoreUnavailable = errors.New("offline store unavailable")
	ErrNotFound         = errors.New("not found")
)

// DB wraps the database connection
type DB struct {
	conn    *sql.DB
	baseDir string
}

// Path returns the database file path for a base directory
func Path(baseDir string) string {
	return filepath.Join(baseDir, dataDir, dbFile)
}

// Open opens an existing store and runs any pending migrations
func Open(baseDir string) (*DB, error) {
	dbPath := Path(baseDir)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run 'attendx init' first", ErrStoreUnavailable)
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn, baseDir: baseDir}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: run migrations: %v", ErrStoreUnavailable, err)
	}
	return db, nil
}

// Initialize creates the store if needed and brings the schema up to date
func Initialize(baseDir string) (*DB, error) {
	dbPath := Path(baseDir)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", ErrStoreUnavailable, err)
	}

	conn, err := openConn(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStoreUnavailable, err)
	}

	db := &DB{conn: conn, baseDir: baseDir}
	if _, err := db.RunMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: run migrations: %v", ErrStoreUnavailable, err)
	}
	return db, nil
}

// FromConn wraps an already-open connection (for example an in-memory
// database in tests) and creates the schema on it. The returned store has no
// base directory, so its flush lease is process-local.
func FromConn(conn *sql.DB) (*DB, error) {
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("%w: create schema: %v", ErrStoreUnavailable, err)
	}
	db := &DB{conn: conn}
	if _, err := db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("%w: run migrations: %v", ErrStoreUnavailable, err)
	}
	return db, nil
}

func openConn(dbPath string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStoreUnavailable, err)
	}

	// Enable WAL mode for concurrent reads while writes are serialized
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %v", ErrStoreUnavailable, err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=2000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %v", ErrStoreUnavailable, err)
	}

	// Slightly faster writes, still safe with WAL
	conn.Exec("PRAGMA synchronous=NORMAL")

	return conn, nil
}

// Close closes the database
func (db *DB) Close() error {
	return db.conn.Close()
}

// BaseDir returns the base directory for the database ("" for wrapped connections)
func (db *DB) BaseDir() string {
	return db.baseDir
}

// Conn returns the underlying *sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// toMillis converts a time to unix milliseconds for storage
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromMillis converts stored unix milliseconds back to UTC time
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
