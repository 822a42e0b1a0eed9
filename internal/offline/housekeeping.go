package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

// CleanupSynced deletes confirmed records whose capture time is older than
// olderThanDays. Pending records are never touched.
func (q *Queue) CleanupSynced(olderThanDays int) (int, error) {
	if q.store == nil {
		return 0, nil
	}
	if olderThanDays < 0 {
		olderThanDays = 0
	}
	cutoff := q.cfg.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	old, err := q.store.ListRecordsBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	deleted := 0
	for i := range old {
		if !old[i].Synced {
			continue
		}
		if err := q.store.DeleteRecord(old[i].ID); err != nil {
			return deleted, fmt.Errorf("cleanup: %w", err)
		}
		deleted++
	}
	if deleted > 0 {
		q.logger.Debug("cleanup: removed synced records", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// PruneExpiredTokens drops cached QR tokens past their expiry.
func (q *Queue) PruneExpiredTokens() (int, error) {
	if q.store == nil {
		return 0, nil
	}
	expired, err := q.store.ListExpiredQRTokens(q.cfg.Now())
	if err != nil {
		return 0, fmt.Errorf("prune tokens: %w", err)
	}
	for i := range expired {
		if err := q.store.DeleteQRToken(expired[i].Token); err != nil {
			return i, fmt.Errorf("prune tokens: %w", err)
		}
	}
	return len(expired), nil
}

// PruneStaleEvents drops cached events not refreshed in olderThanDays.
// Their QR tokens expire on their own and are left to PruneExpiredTokens.
func (q *Queue) PruneStaleEvents(olderThanDays int) (int, error) {
	if q.store == nil {
		return 0, nil
	}
	if olderThanDays < 0 {
		olderThanDays = 0
	}
	cutoff := q.cfg.Now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	stale, err := q.store.ListEventsUpdatedBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	for i := range stale {
		if err := q.store.DeleteEvent(stale[i].ID); err != nil {
			return i, fmt.Errorf("prune events: %w", err)
		}
	}
	return len(stale), nil
}

// GetSyncStatus returns the compact counts shown to the user. A disabled
// queue reports itself as such with zero counts.
func (q *Queue) GetSyncStatus() (models.SyncStatus, error) {
	status := models.SyncStatus{
		Enabled:        q.store != nil,
		Online:         q.conn.Online(),
		AutoSync:       q.autoRunning.Load(),
		SyncInProgress: q.activePasses.Load() > 0,
	}
	if q.store == nil {
		return status, nil
	}

	records, err := q.store.ListRecords()
	if err != nil {
		return status, err
	}
	for i := range records {
		r := &records[i]
		status.TotalRecords++
		if !r.Synced {
			status.PendingRecords++
		}
		if r.Failed() {
			status.FailedRecords++
		}
		status.LastSyncAttempt = latest(status.LastSyncAttempt, r.LastSyncAttempt)
	}

	conflicts, err := q.store.ListConflicts()
	if err != nil {
		return status, err
	}
	status.OpenConflicts = len(conflicts)
	return status, nil
}

// GetOfflineStats returns the detailed view of the local store.
func (q *Queue) GetOfflineStats() (models.OfflineStats, error) {
	stats := models.OfflineStats{Online: q.conn.Online()}
	if q.store == nil {
		return stats, nil
	}

	records, err := q.store.ListRecords()
	if err != nil {
		return stats, err
	}
	for i := range records {
		r := &records[i]
		stats.TotalRecords++
		stats.LastSyncAttempt = latest(stats.LastSyncAttempt, r.LastSyncAttempt)

		if r.Synced {
			stats.SyncedRecords++
			if r.IsDuplicate() {
				stats.DuplicateRecords++
			}
			continue
		}

		stats.PendingRecords++
		if r.Failed() {
			stats.FailedRecords++
		}
		if r.SyncAttempts >= q.cfg.MaxAutoAttempts {
			stats.StalledRecords++
		}
		if stats.OldestPending == nil || r.Timestamp.Before(*stats.OldestPending) {
			ts := r.Timestamp
			stats.OldestPending = &ts
		}
		if stats.PendingByEvent == nil {
			stats.PendingByEvent = make(map[string]int)
		}
		stats.PendingByEvent[r.EventID]++
	}

	if stats.CachedEvents, err = q.store.CountEvents(); err != nil {
		return stats, err
	}
	if stats.CachedTokens, err = q.store.CountQRTokens(); err != nil {
		return stats, err
	}
	conflicts, err := q.store.ListConflicts()
	if err != nil {
		return stats, err
	}
	stats.OpenConflicts = len(conflicts)
	return stats, nil
}

// ForceSyncAll is the manual "sync now": conflict resolution, then a sync
// pass that ignores the retry ceiling, then cleanup with the configured
// retention. Success means no step reported an error; conflicts waiting
// for a human are not errors.
func (q *Queue) ForceSyncAll(ctx context.Context) models.ForceSyncResult {
	var result models.ForceSyncResult
	if q.store == nil {
		result.Errors = append(result.Errors, ErrDisabled.Error())
		return result
	}

	result.Conflicts = q.ResolveConflicts(ctx)
	result.Errors = append(result.Errors, result.Conflicts.Errors...)

	result.Sync = q.syncPass(ctx, passForced)
	result.Errors = append(result.Errors, result.Sync.Errors...)
	if result.Sync.Skipped {
		result.Errors = append(result.Errors, "sync skipped: another process is flushing this store")
	}

	cleaned, err := q.CleanupSynced(q.cfg.RetentionDays)
	result.Cleaned = cleaned
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	result.Success = len(result.Errors) == 0
	q.logger.Info("sync: forced sync complete",
		"synced", result.Sync.Synced, "failed", result.Sync.Failed,
		"duplicates", result.Conflicts.Duplicates, "conflicts", len(result.Conflicts.Conflicts),
		"cleaned", cleaned)
	return result
}

func latest(cur, t *time.Time) *time.Time {
	if t == nil {
		return cur
	}
	if cur == nil || t.After(*cur) {
		v := *t
		return &v
	}
	return cur
}
