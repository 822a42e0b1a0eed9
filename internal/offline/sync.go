package offline

import (
	"context"
	"errors"
	"fmt"

	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/syncclient"
)

// passMode selects how a sync pass treats records past the retry ceiling.
type passMode int

const (
	// passAuto is used by the timer, connectivity and post-record triggers.
	passAuto passMode = iota
	// passForced is the manual "sync now" path; it retries everything.
	passForced
)

type attemptOutcome int

const (
	attemptSkipped attemptOutcome = iota
	attemptSynced
	attemptFailed
)

// SyncPending runs one automatic pass over pending records. Records that
// reached the retry ceiling or have an open conflict are skipped.
func (q *Queue) SyncPending(ctx context.Context) models.SyncResult {
	return q.syncPass(ctx, passAuto)
}

// syncPass submits each pending record at most once. A single record's
// failure never stops the pass.
func (q *Queue) syncPass(ctx context.Context, mode passMode) models.SyncResult {
	var result models.SyncResult
	if q.store == nil {
		return result
	}

	leaseWait := q.cfg.ForceLeaseWait
	if mode == passAuto {
		leaseWait = 0
	}
	lease, err := q.store.TryFlushLease(leaseWait)
	if errors.Is(err, db.ErrLeaseHeld) {
		result.Skipped = true
		return result
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("flush lease: %v", err))
		return result
	}
	defer lease.Release()

	q.activePasses.Add(1)
	defer q.activePasses.Add(-1)

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
		if state, ok := states[id]; ok && state != models.ResolutionKeep {
			continue // held for manual resolution
		}
		if mode == passAuto && pending[i].SyncAttempts >= q.cfg.MaxAutoAttempts {
			continue
		}
		if !q.claim(id) {
			continue // another pass is submitting it
		}
		outcome, errMsg := q.syncRecord(ctx, id, mode, states[id] != "")
		q.release(id)

		switch outcome {
		case attemptSynced:
			result.Synced++
		case attemptFailed:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", id, errMsg))
		}
	}
	return result
}

// syncRecord submits one claimed record. It re-reads the record first so a
// pass working from a stale scan cannot resubmit something another pass
// has already confirmed.
func (q *Queue) syncRecord(ctx context.Context, id string, mode passMode, hasConflictRow bool) (attemptOutcome, string) {
	rec, err := q.store.GetRecord(id)
	if errors.Is(err, db.ErrNotFound) {
		return attemptSkipped, ""
	}
	if err != nil {
		return attemptFailed, err.Error()
	}
	if rec.Synced {
		return attemptSkipped, ""
	}
	if mode == passAuto && rec.SyncAttempts >= q.cfg.MaxAutoAttempts {
		return attemptSkipped, ""
	}

	now := q.cfg.Now()
	rec.SyncAttempts++
	rec.LastSyncAttempt = &now

	// Once sent, the request runs to its own timeout. Cancelling ctx stops
	// the pass between records, never mid-submit, so an accepted check-in is
	// not left looking failed.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.cfg.RequestTimeout)
	_, syncErr := q.client.Sync(reqCtx, syncclient.NewSyncRequest(rec))
	cancel()

	entry := &models.SyncHistoryEntry{
		RecordID:    rec.ID,
		EventID:     rec.EventID,
		AttemptedAt: now,
	}
	if syncErr == nil {
		rec.Synced = true
		rec.Error = ""
		entry.Outcome = models.OutcomeSynced
	} else {
		rec.Error = syncErr.Error()
		entry.Outcome = models.OutcomeFailed
		entry.Error = rec.Error
		entry.HTTPStatus = syncclient.StatusCode(syncErr)
	}

	if err := q.store.UpdateRecord(rec); err != nil {
		// The server may have accepted it; the next pass retries and the
		// duplicate check reconciles.
		q.logger.Warn("sync: persist attempt", "record", rec.ID, "err", err)
		return attemptFailed, fmt.Sprintf("persist: %v", err)
	}
	if err := q.store.AppendSyncHistory(entry); err != nil {
		q.logger.Debug("sync: append history", "record", rec.ID, "err", err)
	}

	if syncErr != nil {
		q.logger.Warn("sync: attempt failed", "record", rec.ID, "attempt", rec.SyncAttempts, "err", syncErr)
		return attemptFailed, rec.Error
	}

	if hasConflictRow {
		if err := q.store.DeleteConflict(rec.ID); err != nil {
			q.logger.Debug("sync: clear kept conflict", "record", rec.ID, "err", err)
		}
	}
	q.logger.Debug("sync: record synced", "record", rec.ID, "attempt", rec.SyncAttempts)
	return attemptSynced, ""
}
