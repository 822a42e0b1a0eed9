package models

import (
	"time"
)

// Method represents how a check-in was captured
type Method string

const (
	MethodQR          Method = "qr"
	MethodManual      Method = "manual"
	MethodGeolocation Method = "geolocation"
)

// Methods lists the accepted check-in methods in display order
var Methods = []Method{MethodQR, MethodManual, MethodGeolocation}

// IsValid reports whether m is a known method
func (m Method) IsValid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// ErrorDuplicate is stored on a record the conflict resolver matched to an
// existing server-side check-in. It is the only error value a synced record may carry.
const ErrorDuplicate = "duplicate"

// Location is the optional geolocation payload of a check-in
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// DeviceInfo describes the capturing device
type DeviceInfo struct {
	DeviceID  string `json:"deviceId,omitempty"`
	Platform  string `json:"platform,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// AttendanceRecord is a check-in captured on this device, pending or confirmed
type AttendanceRecord struct {
	ID              string      `json:"id"`
	EventID         string      `json:"eventId"`
	UserID          string      `json:"userId"`
	Method          Method      `json:"method"`
	Timestamp       time.Time   `json:"timestamp"`
	QRCodeData      string      `json:"qrCodeData,omitempty"`
	Location        *Location   `json:"location,omitempty"`
	DeviceInfo      *DeviceInfo `json:"deviceInfo,omitempty"`
	Synced          bool        `json:"synced"`
	SyncAttempts    int         `json:"syncAttempts"`
	LastSyncAttempt *time.Time  `json:"lastSyncAttempt,omitempty"`
	Error           string      `json:"error,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Failed reports whether the last sync attempt left an error on a pending record
func (r *AttendanceRecord) Failed() bool {
	return !r.Synced && r.Error != ""
}

// IsDuplicate reports whether the record was retired as a server-side duplicate
func (r *AttendanceRecord) IsDuplicate() bool {
	return r.Synced && r.Error == ErrorDuplicate
}

// CachedEvent is a read-only snapshot of server event data kept for offline validation
type CachedEvent struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	QRToken      string    `json:"qrToken,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// HasParticipant reports whether userID is on the participant list.
// An empty list means the event is open to everyone.
func (e *CachedEvent) HasParticipant(userID string) bool {
	if len(e.Participants) == 0 {
		return true
	}
	for _, p := range e.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// CachedQRToken maps a QR payload to the event it authorizes
type CachedQRToken struct {
	Token     string     `json:"token"`
	EventID   string     `json:"eventId"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CachedAt  time.Time  `json:"cachedAt"`
}

// Expired reports whether the token has an expiry before now
func (t *CachedQRToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// SyncConflict pairs a local record with a server record that does not match
// closely enough to be treated as a duplicate
type SyncConflict struct {
	RecordID        string    `json:"recordId"`
	EventID         string    `json:"eventId"`
	UserID          string    `json:"userId"`
	LocalTimestamp  time.Time `json:"localTimestamp"`
	RemoteTimestamp time.Time `json:"remoteTimestamp"`
	RemotePayload   string    `json:"remotePayload,omitempty"`
	Resolution      string    `json:"resolution,omitempty"`
	DetectedAt      time.Time `json:"detectedAt"`
}

// ResolutionKeep marks a conflict a human chose to submit anyway
const ResolutionKeep = "keep"

// Drift returns the absolute distance between the local and remote timestamps
func (c *SyncConflict) Drift() time.Duration {
	d := c.RemoteTimestamp.Sub(c.LocalTimestamp)
	if d < 0 {
		return -d
	}
	return d
}

// SyncOutcome is the result of a single sync attempt
type SyncOutcome string

const (
	OutcomeSynced    SyncOutcome = "synced"
	OutcomeFailed    SyncOutcome = "failed"
	OutcomeDuplicate SyncOutcome = "duplicate"
	OutcomeConflict  SyncOutcome = "conflict"
)

// SyncHistoryEntry is one row of the append-only attempt log
type SyncHistoryEntry struct {
	ID          int64       `json:"id"`
	RecordID    string      `json:"recordId"`
	EventID     string      `json:"eventId"`
	Outcome     SyncOutcome `json:"outcome"`
	Error       string      `json:"error,omitempty"`
	HTTPStatus  int         `json:"httpStatus,omitempty"`
	AttemptedAt time.Time   `json:"attemptedAt"`
}
