package models

import "time"

// SyncResult aggregates one sync pass
type SyncResult struct {
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Skipped bool     `json:"skipped,omitempty"` // another process holds the flush lease
	Errors  []string `json:"errors,omitempty"`
}

// ConflictResult aggregates one conflict-resolution pass
type ConflictResult struct {
	Checked    int            `json:"checked"`
	Duplicates int            `json:"duplicates"`
	Conflicts  []SyncConflict `json:"conflicts,omitempty"`
	Errors     []string       `json:"errors,omitempty"`
}

// ForceSyncResult combines conflict resolution, a forced sync pass and cleanup
type ForceSyncResult struct {
	Success   bool           `json:"success"`
	Conflicts ConflictResult `json:"conflicts"`
	Sync      SyncResult     `json:"sync"`
	Cleaned   int            `json:"cleaned"`
	Errors    []string       `json:"errors,omitempty"`
}

// QRValidation is the result of an offline QR check
type QRValidation struct {
	Valid   bool   `json:"valid"`
	EventID string `json:"eventId,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// QR validation reasons
const (
	ReasonExpired  = "expired"
	ReasonNotFound = "not_found"
)

// CheckInValidation is the result of validating a check-in against cached event data
type CheckInValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Check-in validation reasons
const (
	ReasonEventNotCached = "event_not_cached"
	ReasonNotStarted     = "not_started"
	ReasonEnded          = "ended"
	ReasonNotParticipant = "not_participant"
)

// SyncStatus is the compact view the UI shows ("3 pending, 1 failed")
type SyncStatus struct {
	Enabled         bool       `json:"enabled"`
	Online          bool       `json:"online"`
	TotalRecords    int        `json:"totalRecords"`
	PendingRecords  int        `json:"pendingRecords"`
	FailedRecords   int        `json:"failedRecords"`
	OpenConflicts   int        `json:"openConflicts"`
	LastSyncAttempt *time.Time `json:"lastSyncAttempt,omitempty"`
	AutoSync        bool       `json:"autoSync"`
	SyncInProgress  bool       `json:"syncInProgress"`
}

// OfflineStats is the detailed read-only view of the local store
type OfflineStats struct {
	TotalRecords     int            `json:"totalRecords"`
	PendingRecords   int            `json:"pendingRecords"`
	SyncedRecords    int            `json:"syncedRecords"`
	FailedRecords    int            `json:"failedRecords"`
	StalledRecords   int            `json:"stalledRecords"`
	DuplicateRecords int            `json:"duplicateRecords"`
	OldestPending    *time.Time     `json:"oldestPending,omitempty"`
	LastSyncAttempt  *time.Time     `json:"lastSyncAttempt,omitempty"`
	PendingByEvent   map[string]int `json:"pendingByEvent,omitempty"`
	CachedEvents     int            `json:"cachedEvents"`
	CachedTokens     int            `json:"cachedTokens"`
	OpenConflicts    int            `json:"openConflicts"`
	Online           bool           `json:"online"`
}
