package offline

import (
	"fmt"
	"time"

	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/models"
)

// Extra carries the optional, method-specific part of a check-in.
type Extra struct {
	QRCodeData string
	Location   *models.Location
	DeviceInfo *models.DeviceInfo
	// Timestamp overrides the capture time (zero means now).
	Timestamp time.Time
}

// RecordOffline stores a new pending check-in and returns its ID. When the
// device is online one sync pass is started in the background; the caller
// never waits for it and never sees its failures.
func (q *Queue) RecordOffline(eventID, userID string, method models.Method, extra Extra) (string, error) {
	if q.store == nil {
		return "", ErrDisabled
	}
	if eventID == "" || userID == "" {
		return "", fmt.Errorf("%w: event and user are required", ErrInvalidRecord)
	}
	if !method.IsValid() {
		return "", fmt.Errorf("%w: unknown method %q", ErrInvalidRecord, method)
	}

	id, err := db.NewRecordID()
	if err != nil {
		return "", fmt.Errorf("generate record id: %w", err)
	}

	now := q.cfg.Now()
	ts := extra.Timestamp
	if ts.IsZero() {
		ts = now
	}
	device := extra.DeviceInfo
	if device == nil {
		device = q.cfg.DeviceInfo
	}

	rec := &models.AttendanceRecord{
		ID:         id,
		EventID:    eventID,
		UserID:     userID,
		Method:     method,
		Timestamp:  ts.UTC(),
		QRCodeData: extra.QRCodeData,
		Location:   extra.Location,
		DeviceInfo: device,
		CreatedAt:  now,
	}
	if err := q.store.InsertRecord(rec); err != nil {
		return "", err
	}
	q.logger.Debug("offline: recorded", "record", id, "event", eventID, "user", userID, "method", method)

	if q.conn.Online() {
		q.trigger("record")
	}
	return id, nil
}

// GetPendingAttendances returns every record not yet confirmed by the
// server, including records past the automatic retry ceiling.
func (q *Queue) GetPendingAttendances() ([]models.AttendanceRecord, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.ListRecordsBySynced(false)
}

// GetPendingForEvent returns the unconfirmed records of one event.
func (q *Queue) GetPendingForEvent(eventID string) ([]models.AttendanceRecord, error) {
	if q.store == nil {
		return nil, nil
	}
	records, err := q.store.ListRecordsByEvent(eventID)
	if err != nil {
		return nil, err
	}
	pending := records[:0]
	for i := range records {
		if !records[i].Synced {
			pending = append(pending, records[i])
		}
	}
	return pending, nil
}

// CountRecords returns how many check-ins the store holds, synced or not.
func (q *Queue) CountRecords() (int, error) {
	if q.store == nil {
		return 0, nil
	}
	return q.store.CountRecords()
}

// GetRecord returns one record by ID.
func (q *Queue) GetRecord(id string) (*models.AttendanceRecord, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.GetRecord(db.NormalizeRecordID(id))
}

// GetSyncHistory returns the last limit attempts across all records, oldest first.
func (q *Queue) GetSyncHistory(limit int) ([]models.SyncHistoryEntry, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.GetSyncHistoryTail(limit)
}

// GetRecordHistory returns every attempt logged for one record.
func (q *Queue) GetRecordHistory(id string) ([]models.SyncHistoryEntry, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.GetRecordHistory(db.NormalizeRecordID(id))
}

// CacheEvent stores a snapshot of server event data. A QR token on the
// event is cached alongside it, expiring when the event ends.
func (q *Queue) CacheEvent(e *models.CachedEvent) error {
	if q.store == nil {
		return nil
	}
	if e.LastUpdated.IsZero() {
		e.LastUpdated = q.cfg.Now()
	}
	if err := q.store.PutEvent(e); err != nil {
		return err
	}
	if e.QRToken != "" {
		var expires *time.Time
		if !e.EndTime.IsZero() {
			end := e.EndTime
			expires = &end
		}
		return q.CacheQRToken(e.ID, e.QRToken, expires)
	}
	return nil
}

// GetCachedEvent returns the cached event, or nil on a miss.
func (q *Queue) GetCachedEvent(id string) (*models.CachedEvent, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.GetEvent(id)
}

// ListCachedEvents returns every cached event, most recently updated first.
func (q *Queue) ListCachedEvents() ([]models.CachedEvent, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.ListEvents()
}

// CacheQRToken maps a QR payload to the event it authorizes.
func (q *Queue) CacheQRToken(eventID, token string, expiresAt *time.Time) error {
	if q.store == nil {
		return nil
	}
	return q.store.PutQRToken(&models.CachedQRToken{
		Token:     token,
		EventID:   eventID,
		ExpiresAt: expiresAt,
		CachedAt:  q.cfg.Now(),
	})
}

// ValidateQRTokenOffline checks a scanned payload against the cached tokens.
// The cache holds tens of tokens at most, so a linear scan is enough.
func (q *Queue) ValidateQRTokenOffline(token string) (models.QRValidation, error) {
	if q.store == nil {
		return models.QRValidation{Reason: models.ReasonNotFound}, nil
	}
	tokens, err := q.store.ListQRTokens()
	if err != nil {
		return models.QRValidation{}, err
	}
	for i := range tokens {
		t := &tokens[i]
		if t.Token != token {
			continue
		}
		if t.Expired(q.cfg.Now()) {
			return models.QRValidation{EventID: t.EventID, Reason: models.ReasonExpired}, nil
		}
		return models.QRValidation{Valid: true, EventID: t.EventID}, nil
	}
	return models.QRValidation{Reason: models.ReasonNotFound}, nil
}

// ValidateCheckInOffline checks a check-in against the cached event: the
// event must be cached, at must fall inside its time window (when one is
// known) and the user must be a participant (when a list is known).
func (q *Queue) ValidateCheckInOffline(eventID, userID string, at time.Time) (models.CheckInValidation, error) {
	if q.store == nil {
		return models.CheckInValidation{Reason: models.ReasonEventNotCached}, nil
	}
	ev, err := q.store.GetEvent(eventID)
	if err != nil {
		return models.CheckInValidation{}, err
	}
	if ev == nil {
		return models.CheckInValidation{Reason: models.ReasonEventNotCached}, nil
	}
	if !ev.StartTime.IsZero() && at.Before(ev.StartTime) {
		return models.CheckInValidation{Reason: models.ReasonNotStarted}, nil
	}
	if !ev.EndTime.IsZero() && at.After(ev.EndTime) {
		return models.CheckInValidation{Reason: models.ReasonEnded}, nil
	}
	if !ev.HasParticipant(userID) {
		return models.CheckInValidation{Reason: models.ReasonNotParticipant}, nil
	}
	return models.CheckInValidation{Valid: true}, nil
}
