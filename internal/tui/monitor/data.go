package monitor

import (
	"context"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

// Source is the queue surface the monitor reads from. *offline.Queue implements it.
type Source interface {
	GetSyncStatus() (models.SyncStatus, error)
	GetOfflineStats() (models.OfflineStats, error)
	GetPendingAttendances() ([]models.AttendanceRecord, error)
	GetSyncHistory(limit int) ([]models.SyncHistoryEntry, error)
	ListConflicts() ([]models.SyncConflict, error)
	ForceSyncAll(ctx context.Context) models.ForceSyncResult
}

// historyLimit bounds the attempt log shown in the history panel
const historyLimit = 50

// FetchData retrieves all data needed for the monitor display. The first
// error wins; later reads are still attempted so a partial view renders.
func FetchData(src Source) RefreshDataMsg {
	msg := RefreshDataMsg{
		Timestamp: time.Now(),
	}
	keep := func(err error) {
		if err != nil && msg.Err == nil {
			msg.Err = err
		}
	}

	var err error
	msg.Status, err = src.GetSyncStatus()
	keep(err)
	msg.Stats, err = src.GetOfflineStats()
	keep(err)
	msg.Pending, err = src.GetPendingAttendances()
	keep(err)
	msg.Conflicts, err = src.ListConflicts()
	keep(err)

	history, err := src.GetSyncHistory(historyLimit)
	keep(err)
	// Newest first for display
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	msg.History = history

	return msg
}
