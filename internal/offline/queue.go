// Package offline captures attendance check-ins while the device has no
// network, keeps them in the local store and reconciles them with the
// attendance backend once connectivity returns.
//
// A Queue is the single owner of the local store. Every sync trigger (the
// periodic timer, a connectivity transition, a fresh recording while online,
// a manual "sync now") converges on the same pass, and an in-memory set of
// records in flight plus a re-read of the synced flag guarantee a record is
// never submitted twice by overlapping passes. A cross-process flush lease
// extends that guarantee to several processes sharing one data directory.
package offline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/attendancex/attendx/internal/connectivity"
	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/syncclient"
)

// Errors returned by the queue.
var (
	// ErrDisabled is returned by RecordOffline when the local store is unavailable.
	ErrDisabled         = errors.New("offline features disabled")
	ErrInvalidRecord    = errors.New("invalid attendance record")
	ErrConflictNotFound = errors.New("no open conflict for record")
	ErrRecordBusy       = errors.New("record is being synced")
)

// Store is the durable store the queue owns. *db.DB implements it.
type Store interface {
	InsertRecord(r *models.AttendanceRecord) error
	UpdateRecord(r *models.AttendanceRecord) error
	GetRecord(id string) (*models.AttendanceRecord, error)
	DeleteRecord(id string) error
	ListRecords() ([]models.AttendanceRecord, error)
	ListRecordsBySynced(synced bool) ([]models.AttendanceRecord, error)
	ListRecordsByEvent(eventID string) ([]models.AttendanceRecord, error)
	ListRecordsBefore(cutoff time.Time) ([]models.AttendanceRecord, error)
	CountRecords() (int, error)

	PutEvent(e *models.CachedEvent) error
	GetEvent(id string) (*models.CachedEvent, error)
	ListEvents() ([]models.CachedEvent, error)
	ListEventsUpdatedBefore(cutoff time.Time) ([]models.CachedEvent, error)
	DeleteEvent(id string) error
	CountEvents() (int, error)

	PutQRToken(t *models.CachedQRToken) error
	ListQRTokens() ([]models.CachedQRToken, error)
	ListExpiredQRTokens(now time.Time) ([]models.CachedQRToken, error)
	DeleteQRToken(token string) error
	CountQRTokens() (int, error)

	AppendSyncHistory(e *models.SyncHistoryEntry) error
	GetSyncHistoryTail(limit int) ([]models.SyncHistoryEntry, error)
	GetRecordHistory(recordID string) ([]models.SyncHistoryEntry, error)

	PutConflict(c *models.SyncConflict) error
	GetConflict(recordID string) (*models.SyncConflict, error)
	ListConflicts() ([]models.SyncConflict, error)
	ConflictStates() (map[string]string, error)
	SetConflictResolution(recordID, resolution string) error
	DeleteConflict(recordID string) error

	TryFlushLease(timeout time.Duration) (db.Lease, error)
	Close() error
}

// Client is the attendance backend. *syncclient.Client implements it.
type Client interface {
	Sync(ctx context.Context, req *syncclient.SyncRequest) (*syncclient.SyncResponse, error)
	CheckDuplicate(ctx context.Context, req *syncclient.DuplicateRequest) (*syncclient.DuplicateResponse, error)
}

// Config tunes the queue. Zero values fall back to DefaultConfig.
type Config struct {
	SyncInterval    time.Duration // auto-sync timer period
	RequestTimeout  time.Duration // bound on each HTTP call
	MaxAutoAttempts int           // automatic passes skip records at or above this
	DuplicateWindow time.Duration // server match within this is a duplicate
	RetentionDays   int           // synced records older than this are cleaned up
	ForceLeaseWait  time.Duration // how long a forced pass waits for the flush lease
	DeviceInfo      *models.DeviceInfo
	Logger          *slog.Logger
	Now             func() time.Time
}

// DefaultConfig returns the default queue settings.
func DefaultConfig() Config {
	return Config{
		SyncInterval:    30 * time.Second,
		RequestTimeout:  10 * time.Second,
		MaxAutoAttempts: 5,
		DuplicateWindow: 5 * time.Minute,
		RetentionDays:   7,
		ForceLeaseWait:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SyncInterval <= 0 {
		c.SyncInterval = d.SyncInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxAutoAttempts <= 0 {
		c.MaxAutoAttempts = d.MaxAutoAttempts
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = d.DuplicateWindow
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.ForceLeaseWait < 0 {
		c.ForceLeaseWait = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Queue is the offline capture and sync context. Create one at startup,
// share it, and Close it on shutdown.
type Queue struct {
	store     Store
	ownsStore bool
	disabled  error
	client    Client
	conn      connectivity.Observer
	cfg       Config
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inFlight map[string]struct{}
	closed   bool
	bg       sync.WaitGroup

	activePasses atomic.Int32

	autoMu      sync.Mutex
	autoCancel  context.CancelFunc
	autoDone    chan struct{}
	autoRunning atomic.Bool

	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a queue over an open store. A nil store yields a disabled
// queue whose operations return empty results.
func New(store Store, client Client, conn connectivity.Observer, cfg Config) *Queue {
	cfg = cfg.withDefaults()
	if conn == nil {
		conn = connectivity.NewStatic(true)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		store:    store,
		client:   client,
		conn:     conn,
		cfg:      cfg,
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]struct{}),
	}
	if store == nil {
		q.disabled = db.ErrStoreUnavailable
		return q
	}

	// Network restored: one pass per offline->online transition
	q.unsubscribe = conn.Subscribe(func(online bool) {
		if online {
			q.trigger("online")
		}
	})
	return q
}

// Open initializes the store under baseDir and returns a queue owning it.
// When the store cannot be opened the queue is returned disabled and the
// cause is available from DisabledReason.
func Open(baseDir string, client Client, conn connectivity.Observer, cfg Config) *Queue {
	store, err := db.Initialize(baseDir)
	if err != nil {
		q := New(nil, client, conn, cfg)
		q.disabled = err
		q.logger.Warn("offline: store unavailable, offline features disabled", "dir", baseDir, "err", err)
		return q
	}
	q := New(store, client, conn, cfg)
	q.ownsStore = true
	return q
}

// Enabled reports whether the local store is usable.
func (q *Queue) Enabled() bool {
	return q.store != nil
}

// DisabledReason returns why the queue is disabled, or nil.
func (q *Queue) DisabledReason() error {
	return q.disabled
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.cfg
}

// Close stops auto-sync, waits for background passes and closes an owned store.
func (q *Queue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		q.StopAutoSync()
		if q.unsubscribe != nil {
			q.unsubscribe()
		}

		// Let triggered passes drain for up to one request timeout before
		// asking them to stop at the next record.
		drained := make(chan struct{})
		go func() {
			q.bg.Wait()
			close(drained)
		}()
		timer := time.NewTimer(q.cfg.RequestTimeout)
		select {
		case <-drained:
		case <-timer.C:
		}
		timer.Stop()

		q.cancel()
		<-drained

		if q.ownsStore && q.store != nil {
			err = q.store.Close()
		}
	})
	return err
}

// claim marks a record as in flight. It returns false when another pass
// already holds it.
func (q *Queue) claim(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, busy := q.inFlight[id]; busy {
		return false
	}
	q.inFlight[id] = struct{}{}
	return true
}

func (q *Queue) release(id string) {
	q.mu.Lock()
	delete(q.inFlight, id)
	q.mu.Unlock()
}

// trigger starts a fire-and-forget automatic pass.
func (q *Queue) trigger(reason string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.bg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.bg.Done()
		res := q.syncPass(q.ctx, passAuto)
		q.logPass(reason, res)
	}()
}

func (q *Queue) logPass(reason string, res models.SyncResult) {
	if res.Skipped {
		q.logger.Debug("sync: pass skipped, lease held elsewhere", "trigger", reason)
		return
	}
	if res.Synced == 0 && res.Failed == 0 {
		return
	}
	q.logger.Debug("sync: pass complete", "trigger", reason, "synced", res.Synced, "failed", res.Failed)
}
