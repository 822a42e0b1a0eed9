package db

// SchemaVersion is the current database schema version
const SchemaVersion = 2

const schema = `
-- Attendance check-ins captured on this device
CREATE TABLE IF NOT EXISTS attendance_records (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    method TEXT NOT NULL,
    timestamp_ms INTEGER NOT NULL,
    qr_code_data TEXT DEFAULT '',
    location TEXT,
    device_info TEXT,
    synced INTEGER NOT NULL DEFAULT 0,
    sync_attempts INTEGER NOT NULL DEFAULT 0,
    last_sync_attempt_ms INTEGER,
    error TEXT,
    created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_event ON attendance_records(event_id);
CREATE INDEX IF NOT EXISTS idx_records_synced ON attendance_records(synced);
CREATE INDEX IF NOT EXISTS idx_records_timestamp ON attendance_records(timestamp_ms);

-- Read-only snapshots of server events
CREATE TABLE IF NOT EXISTS cached_events (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    start_ms INTEGER,
    end_ms INTEGER,
    qr_token TEXT DEFAULT '',
    participants TEXT DEFAULT '[]',
    last_updated_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_last_updated ON cached_events(last_updated_ms);

-- QR payloads usable without network access
CREATE TABLE IF NOT EXISTS qr_tokens (
    token TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    expires_at_ms INTEGER,
    cached_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_qr_tokens_expires ON qr_tokens(expires_at_ms);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration defines a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add sync_history attempt log and sync_conflicts hold table",
		SQL: `
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    record_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    outcome TEXT NOT NULL,
    error TEXT DEFAULT '',
    http_status INTEGER DEFAULT 0,
    attempted_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_history_record ON sync_history(record_id);

CREATE TABLE IF NOT EXISTS sync_conflicts (
    record_id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    local_ms INTEGER NOT NULL,
    remote_ms INTEGER NOT NULL,
    remote_payload TEXT DEFAULT '',
    resolution TEXT NOT NULL DEFAULT '',
    detected_at_ms INTEGER NOT NULL
);
`,
	},
}
