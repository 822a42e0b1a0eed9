package offline

import (
	"context"
	"time"
)

// StartAutoSync runs an automatic pass every interval while the device is
// online. Calling it again while running, or after Close, is a no-op. A
// non-positive interval uses the configured SyncInterval.
func (q *Queue) StartAutoSync(interval time.Duration) {
	if q.store == nil {
		return
	}
	if interval <= 0 {
		interval = q.cfg.SyncInterval
	}

	q.autoMu.Lock()
	defer q.autoMu.Unlock()
	if q.autoCancel != nil || q.isClosed() {
		return
	}

	ctx, cancel := context.WithCancel(q.ctx)
	done := make(chan struct{})
	q.autoCancel = cancel
	q.autoDone = done
	q.autoRunning.Store(true)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !q.conn.Online() {
					continue
				}
				q.logPass("timer", q.syncPass(ctx, passAuto))
			}
		}
	}()
	q.logger.Debug("autosync: started", "interval", interval)
}

// StopAutoSync stops the timer and waits for a pass it started to finish.
// The pass ends after the record it is submitting.
// Safe to call when auto-sync is not running.
func (q *Queue) StopAutoSync() {
	q.autoMu.Lock()
	cancel, done := q.autoCancel, q.autoDone
	q.autoCancel, q.autoDone = nil, nil
	q.autoRunning.Store(false)
	q.autoMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	q.logger.Debug("autosync: stopped")
}

// AutoSyncRunning reports whether the timer is active.
func (q *Queue) AutoSyncRunning() bool {
	return q.autoRunning.Load()
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
