package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/syncclient"
)

// Resolution is a human decision on an unresolved conflict.
type Resolution int

const (
	// Keep submits the local record anyway on the next pass.
	Keep Resolution = iota
	// Discard deletes the local record.
	Discard
)

func (r Resolution) String() string {
	switch r {
	case Keep:
		return "keep"
	case Discard:
		return "discard"
	}
	return fmt.Sprintf("Resolution(%d)", int(r))
}

// ResolveConflicts asks the server, for every pending record, whether the
// same check-in already exists. A server record within the duplicate window
// retires the local one without a second submission; one outside the window
// is returned as a conflict and the local record is held back until a human
// resolves it. Records without a server match are left for the sync pass.
func (q *Queue) ResolveConflicts(ctx context.Context) models.ConflictResult {
	var result models.ConflictResult
	if q.store == nil {
		return result
	}

	pending, err := q.store.ListRecordsBySynced(false)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list pending: %v", err))
		return result
	}
	states, err := q.store.ConflictStates()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list conflicts: %v", err))
		return result
	}

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		id := pending[i].ID
		if states[id] == models.ResolutionKeep {
			continue
		}
		if !q.claim(id) {
			continue
		}
		_, held := states[id]
		q.checkRecord(ctx, id, held, &result)
		q.release(id)
	}
	return result
}

func (q *Queue) checkRecord(ctx context.Context, id string, held bool, result *models.ConflictResult) {
	rec, err := q.store.GetRecord(id)
	if errors.Is(err, db.ErrNotFound) {
		return
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
		return
	}
	if rec.Synced {
		return
	}
	result.Checked++

	reqCtx, cancel := context.WithTimeout(ctx, q.cfg.RequestTimeout)
	resp, err := q.client.CheckDuplicate(reqCtx, &syncclient.DuplicateRequest{
		EventID:   rec.EventID,
		UserID:    rec.UserID,
		Timestamp: rec.Timestamp,
	})
	cancel()
	if err != nil {
		q.logger.Warn("conflicts: duplicate check failed", "record", id, "err", err)
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
		return
	}
	if !resp.Exists || resp.Record == nil {
		return
	}

	now := q.cfg.Now()
	conflict := models.SyncConflict{
		RecordID:        rec.ID,
		EventID:         rec.EventID,
		UserID:          rec.UserID,
		LocalTimestamp:  rec.Timestamp,
		RemoteTimestamp: resp.Record.Timestamp.UTC(),
		RemotePayload:   string(resp.Record.Raw),
		DetectedAt:      now,
	}

	if conflict.Drift() <= q.cfg.DuplicateWindow {
		rec.Synced = true
		rec.Error = models.ErrorDuplicate
		if err := q.store.UpdateRecord(rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
			return
		}
		if held {
			if err := q.store.DeleteConflict(rec.ID); err != nil {
				q.logger.Debug("conflicts: clear resolved conflict", "record", id, "err", err)
			}
		}
		q.appendHistory(rec, models.OutcomeDuplicate, now)
		q.logger.Debug("conflicts: duplicate resolved", "record", id, "drift", conflict.Drift())
		result.Duplicates++
		return
	}

	if err := q.store.PutConflict(&conflict); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", id, err))
		return
	}
	if !held {
		q.appendHistory(rec, models.OutcomeConflict, now)
		q.logger.Info("conflicts: unresolved conflict", "record", id, "event", rec.EventID, "user", rec.UserID, "drift", conflict.Drift())
	}
	result.Conflicts = append(result.Conflicts, conflict)
}

// ListConflicts returns the conflicts waiting for a human decision.
func (q *Queue) ListConflicts() ([]models.SyncConflict, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.ListConflicts()
}

// ResolveConflict applies a human decision to an open conflict.
func (q *Queue) ResolveConflict(recordID string, resolution Resolution) error {
	if q.store == nil {
		return ErrDisabled
	}
	recordID = db.NormalizeRecordID(recordID)

	c, err := q.store.GetConflict(recordID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && c.Resolution != "") {
		return fmt.Errorf("%w: %s", ErrConflictNotFound, recordID)
	}
	if err != nil {
		return err
	}

	if !q.claim(recordID) {
		return fmt.Errorf("%w: %s", ErrRecordBusy, recordID)
	}
	defer q.release(recordID)

	switch resolution {
	case Keep:
		return q.store.SetConflictResolution(recordID, models.ResolutionKeep)
	case Discard:
		if err := q.store.DeleteRecord(recordID); err != nil {
			return err
		}
		return q.store.DeleteConflict(recordID)
	default:
		return fmt.Errorf("unknown resolution %d", resolution)
	}
}

func (q *Queue) appendHistory(rec *models.AttendanceRecord, outcome models.SyncOutcome, at time.Time) {
	err := q.store.AppendSyncHistory(&models.SyncHistoryEntry{
		RecordID:    rec.ID,
		EventID:     rec.EventID,
		Outcome:     outcome,
		AttemptedAt: at,
	})
	if err != nil {
		q.logger.Debug("conflicts: append history", "record", rec.ID, "err", err)
	}
}
