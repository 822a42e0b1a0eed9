package syncharness

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/offline"
)

const event = "event-1"

func baseTime() time.Time {
	return time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
}

func pendingCount(t *testing.T, q *offline.Queue) int {
	t.Helper()
	pending, err := q.GetPendingAttendances()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	return len(pending)
}

func TestEndToEndTwoUsers(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue

	idA := h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{})
	idB := h.Record("client-A", event, "user-B", models.MethodManual, offline.Extra{})
	if idA == idB {
		t.Fatalf("record ids collide: %s", idA)
	}
	if len(h.Posts()) != 0 {
		t.Fatalf("posts while offline: got %d, want 0", len(h.Posts()))
	}

	h.SetOnline("client-A", true)
	q.ForceSyncAll(context.Background())

	// The connectivity transition may still be finishing its own pass
	h.Eventually("all records synced", 5*time.Second, func() bool {
		return pendingCount(t, q) == 0
	})

	for _, id := range []string{idA, idB} {
		rec, err := q.GetRecord(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if !rec.Synced || rec.Error != "" {
			t.Errorf("%s: synced=%v error=%q, want synced with no error", id, rec.Synced, rec.Error)
		}
	}

	status, err := q.GetSyncStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.PendingRecords != 0 {
		t.Errorf("pending records: got %d, want 0", status.PendingRecords)
	}
	if got := h.ServerCount(event, "user-A"); got != 1 {
		t.Errorf("server user-A: got %d, want 1", got)
	}
	if got := h.ServerCount(event, "user-B"); got != 1 {
		t.Errorf("server user-B: got %d, want 1", got)
	}
	h.AssertNoDoubleSubmit()
}

func TestOverlappingPassesNoDoubleSubmit(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue
	base := baseTime()

	users := []string{"user-1", "user-2", "user-3"}
	for i, u := range users {
		h.Record("client-A", event, u, models.MethodQR, offline.Extra{
			QRCodeData: "tok",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		})
	}

	release := h.Gate()
	defer release()

	var (
		wg      sync.WaitGroup
		results [2]models.SyncResult
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = q.SyncPending(context.Background())
	}()
	h.WaitGated(1, 5*time.Second)

	// Second pass skips the record the first one is holding
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = q.SyncPending(context.Background())
	}()
	h.WaitGated(2, 5*time.Second)

	release()
	wg.Wait()

	if total := results[0].Synced + results[1].Synced; total != len(users) {
		t.Errorf("synced across passes: got %d, want %d", total, len(users))
	}
	if got := len(h.Posts()); got != len(users) {
		t.Errorf("posts: got %d, want %d", got, len(users))
	}
	for _, u := range users {
		if got := h.ServerCount(event, u); got != 1 {
			t.Errorf("server %s: got %d, want 1", u, got)
		}
	}
	h.AssertNoDoubleSubmit()
	h.AssertAllSynced("client-A")
}

func TestRetryCeiling(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue

	id := h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{})
	h.FailNext(event, "user-A", http.StatusInternalServerError, 5)

	for i := 0; i < 7; i++ {
		res := q.SyncPending(context.Background())
		if res.Synced != 0 {
			t.Fatalf("pass %d: synced %d, want 0", i, res.Synced)
		}
	}

	rec, err := q.GetRecord(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.SyncAttempts != 5 {
		t.Errorf("attempts: got %d, want 5", rec.SyncAttempts)
	}
	if rec.Synced || rec.Error == "" {
		t.Errorf("synced=%v error=%q, want pending with error", rec.Synced, rec.Error)
	}
	if got := len(h.Posts()); got != 5 {
		t.Errorf("posts: got %d, want 5", got)
	}

	// Still visible to the user and to stats
	if got := pendingCount(t, q); got != 1 {
		t.Errorf("pending: got %d, want 1", got)
	}
	stats, err := q.GetOfflineStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.StalledRecords != 1 || stats.FailedRecords != 1 {
		t.Errorf("stats stalled=%d failed=%d, want 1/1", stats.StalledRecords, stats.FailedRecords)
	}

	// A forced sync ignores the ceiling
	res := q.ForceSyncAll(context.Background())
	if !res.Success {
		t.Fatalf("force sync: %v", res.Errors)
	}
	rec, _ = q.GetRecord(id)
	if !rec.Synced || rec.SyncAttempts != 6 {
		t.Errorf("after force: synced=%v attempts=%d, want true/6", rec.Synced, rec.SyncAttempts)
	}
}

func TestFailedAttemptKeepsServerError(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue

	id := h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{})
	h.FailNext(event, "user-A", http.StatusUnauthorized, 1)

	res := q.SyncPending(context.Background())
	if res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("result: %+v, want one failure", res)
	}
	if !strings.HasPrefix(res.Errors[0], id+": ") {
		t.Errorf("error %q not attributed to %s", res.Errors[0], id)
	}

	rec, _ := q.GetRecord(id)
	if !strings.Contains(rec.Error, "scripted failure") {
		t.Errorf("record error: got %q, want server message", rec.Error)
	}
	if rec.LastSyncAttempt == nil {
		t.Error("last sync attempt not stamped")
	}

	res = q.SyncPending(context.Background())
	if res.Synced != 1 {
		t.Fatalf("second pass: %+v", res)
	}
	rec, _ = q.GetRecord(id)
	if rec.Error != "" {
		t.Errorf("error not cleared on success: %q", rec.Error)
	}
}

func TestDuplicateWithinWindow(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue
	base := baseTime()

	h.SeedServerRecord(event, "user-A", base)
	id := h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{
		Timestamp: base.Add(4 * time.Minute),
	})

	res := q.ForceSyncAll(context.Background())
	if !res.Success {
		t.Fatalf("force sync: %v", res.Errors)
	}
	if res.Conflicts.Duplicates != 1 {
		t.Errorf("duplicates: got %d, want 1", res.Conflicts.Duplicates)
	}

	rec, _ := q.GetRecord(id)
	if !rec.Synced || rec.Error != models.ErrorDuplicate {
		t.Errorf("synced=%v error=%q, want synced duplicate", rec.Synced, rec.Error)
	}
	if rec.SyncAttempts != 0 {
		t.Errorf("attempts: got %d, want 0", rec.SyncAttempts)
	}
	if got := len(h.Posts()); got != 0 {
		t.Errorf("posts: got %d, want 0", got)
	}
	if got := h.ServerCount(event, "user-A"); got != 1 {
		t.Errorf("server records: got %d, want 1", got)
	}
}

func TestConflictOutsideWindowKeep(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue
	base := baseTime()

	h.SeedServerRecord(event, "user-A", base)
	id := h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{
		Timestamp: base.Add(10 * time.Minute),
	})

	res := q.ForceSyncAll(context.Background())
	if len(res.Conflicts.Conflicts) != 1 {
		t.Fatalf("conflicts: got %d, want 1", len(res.Conflicts.Conflicts))
	}
	c := res.Conflicts.Conflicts[0]
	if c.RecordID != id || c.Drift() != 10*time.Minute {
		t.Errorf("conflict %s drift %v, want %s drift 10m", c.RecordID, c.Drift(), id)
	}
	if !strings.Contains(c.RemotePayload, `"userId":"user-A"`) {
		t.Errorf("remote payload not kept: %s", c.RemotePayload)
	}
	if got := len(h.Posts()); got != 0 {
		t.Fatalf("held record was submitted: %d posts", got)
	}

	// A second pass does not report it again as new, but it stays held
	q.ForceSyncAll(context.Background())
	if got := len(h.Posts()); got != 0 {
		t.Fatalf("held record was submitted on second pass: %d posts", got)
	}
	open, err := q.ListConflicts()
	if err != nil || len(open) != 1 {
		t.Fatalf("list conflicts: %v (%d)", err, len(open))
	}

	if err := q.ResolveConflict(id, offline.Keep); err != nil {
		t.Fatalf("keep: %v", err)
	}
	res = q.ForceSyncAll(context.Background())
	if res.Sync.Synced != 1 {
		t.Fatalf("sync after keep: %+v", res.Sync)
	}
	if got := h.ServerCount(event, "user-A"); got != 2 {
		t.Errorf("server records: got %d, want 2", got)
	}
	if _, err := h.Client("client-A").Store.GetConflict(id); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("conflict row after kept sync: got %v, want ErrNotFound", err)
	}
	if err := q.ResolveConflict(id, offline.Keep); !errors.Is(err, offline.ErrConflictNotFound) {
		t.Errorf("resolve twice: got %v, want ErrConflictNotFound", err)
	}
}

func TestConflictDiscard(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue
	base := baseTime()

	h.SeedServerRecord(event, "user-A", base)
	id := h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{
		Timestamp: base.Add(-30 * time.Minute),
	})
	q.ResolveConflicts(context.Background())

	if err := q.ResolveConflict(id, offline.Discard); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := q.GetRecord(id); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("record after discard: got %v, want ErrNotFound", err)
	}
	open, _ := q.ListConflicts()
	if len(open) != 0 {
		t.Errorf("open conflicts: got %d, want 0", len(open))
	}
}

func TestTwoDevicesSameCheckIn(t *testing.T) {
	h := NewHarness(t, 2)
	base := baseTime()

	h.Record("client-A", event, "user-A", models.MethodQR, offline.Extra{Timestamp: base})
	idB := h.Record("client-B", event, "user-A", models.MethodManual, offline.Extra{Timestamp: base.Add(time.Minute)})

	if res := h.Client("client-A").Queue.ForceSyncAll(context.Background()); !res.Success {
		t.Fatalf("client-A: %v", res.Errors)
	}
	if res := h.Client("client-B").Queue.ForceSyncAll(context.Background()); !res.Success {
		t.Fatalf("client-B: %v", res.Errors)
	}

	if got := h.ServerCount(event, "user-A"); got != 1 {
		t.Errorf("server records: got %d, want 1", got)
	}
	rec, _ := h.Client("client-B").Queue.GetRecord(idB)
	if !rec.IsDuplicate() {
		t.Errorf("client-B record: synced=%v error=%q, want duplicate", rec.Synced, rec.Error)
	}
	for _, cid := range h.ClientIDs() {
		h.AssertAllSynced(cid)
	}
}

func TestOnlineTransitionTriggersSync(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue

	h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{})
	time.Sleep(20 * time.Millisecond)
	if got := len(h.Posts()); got != 0 {
		t.Fatalf("posts while offline: %d", got)
	}

	h.SetOnline("client-A", true)
	h.Eventually("sync after reconnect", 5*time.Second, func() bool {
		return pendingCount(t, q) == 0
	})
	h.AssertNoDoubleSubmit()
}

func TestRecordWhileOnlineTriggersSync(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue
	h.SetOnline("client-A", true)

	id, err := q.RecordOffline(event, "user-A", models.MethodGeolocation, offline.Extra{
		Location: &models.Location{Latitude: 47.37, Longitude: 8.54, Accuracy: 12},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	h.Eventually("background sync", 5*time.Second, func() bool {
		rec, err := q.GetRecord(id)
		return err == nil && rec.Synced
	})

	posts := h.Posts()
	if len(posts) != 1 {
		t.Fatalf("posts: got %d, want 1", len(posts))
	}
	if posts[0].Location == nil || posts[0].Location.Accuracy != 12 {
		t.Errorf("location not submitted: %+v", posts[0].Location)
	}
	if posts[0].DeviceInfo == nil || posts[0].DeviceInfo.DeviceID != h.Client("client-A").DeviceID {
		t.Errorf("device info not submitted: %+v", posts[0].DeviceInfo)
	}
}

func TestAutoSyncTimer(t *testing.T) {
	h := NewHarness(t, 1)
	q := h.Client("client-A").Queue

	h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{})
	h.FailNext(event, "user-A", http.StatusBadGateway, 1)

	q.StartAutoSync(20 * time.Millisecond)
	q.StartAutoSync(20 * time.Millisecond)
	defer q.StopAutoSync()
	if !q.AutoSyncRunning() {
		t.Fatal("auto sync not running")
	}

	// Ticks are skipped while offline
	time.Sleep(80 * time.Millisecond)
	if got := len(h.Posts()); got != 0 {
		t.Fatalf("posts while offline: %d", got)
	}

	h.SetOnline("client-A", true)
	h.Eventually("timer retry after failure", 5*time.Second, func() bool {
		return pendingCount(t, q) == 0
	})
	if got := len(h.Posts()); got < 2 {
		t.Errorf("posts: got %d, want at least 2", got)
	}

	q.StopAutoSync()
	q.StopAutoSync()
	if q.AutoSyncRunning() {
		t.Error("auto sync still running after stop")
	}
}

func TestRequestTimeoutFailsAttempt(t *testing.T) {
	h := NewHarness(t, 1, func(c *offline.Config) { c.RequestTimeout = 50 * time.Millisecond })
	q := h.Client("client-A").Queue
	h.SetLatency(time.Second)

	ids := []string{
		h.Record("client-A", event, "user-A", models.MethodManual, offline.Extra{}),
		h.Record("client-A", event, "user-B", models.MethodManual, offline.Extra{}),
	}

	start := time.Now()
	res := q.SyncPending(context.Background())
	elapsed := time.Since(start)

	if elapsed >= 500*time.Millisecond {
		t.Errorf("pass took %v, want well under the backend latency", elapsed)
	}
	if res.Synced != 0 || res.Failed != 2 {
		t.Fatalf("result: synced=%d failed=%d, want 0/2", res.Synced, res.Failed)
	}
	if got := len(h.Posts()); got != 2 {
		t.Errorf("posts: got %d, want 2", got)
	}
	for _, id := range ids {
		rec, err := q.GetRecord(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if rec.Synced || rec.SyncAttempts != 1 {
			t.Errorf("%s: synced=%v attempts=%d, want pending after 1 attempt", id, rec.Synced, rec.SyncAttempts)
		}
		if !strings.Contains(rec.Error, "timed out") {
			t.Errorf("%s: error %q, want a timeout", id, rec.Error)
		}
	}
}
