// Package syncharness runs simulated attendance devices against an
// in-process fake backend. Each device owns its own in-memory store and
// offline queue; the backend keeps every accepted check-in in its own
// SQLite database so tests can assert what the server actually received.
package syncharness

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/attendancex/attendx/internal/connectivity"
	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/offline"
	"github.com/attendancex/attendx/internal/syncclient"
)

// serverSchema is the backend's view of accepted check-ins.
const serverSchema = `
CREATE TABLE IF NOT EXISTS server_attendance (
    id TEXT PRIMARY KEY,
    event_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    method TEXT NOT NULL,
    timestamp_ms INTEGER NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_server_attendance_key ON server_attendance(event_id, user_id);
`

var harnessSeq atomic.Int64

// SimulatedClient is one device: its store, its connectivity switch and
// the queue under test.
type SimulatedClient struct {
	DeviceID string
	Store    *db.DB
	Conn     *connectivity.Static
	Queue    *offline.Queue
}

// Harness is a fake backend plus the simulated devices talking to it.
type Harness struct {
	t          *testing.T
	Server     *httptest.Server
	ServerDB   *sql.DB
	Clients    map[string]*SimulatedClient
	clientKeys []string

	mu        sync.Mutex
	failures  map[string][]int // event|user -> scripted statuses, consumed in order
	posts     []syncclient.SyncRequest
	latency   time.Duration
	gate      chan struct{}
	unhealthy bool

	inGate    atomic.Int64
	dupChecks atomic.Int64
	seq       atomic.Int64
}

// NewHarness starts the fake backend and creates numClients devices named
// client-A, client-B, ... Devices start offline so nothing syncs until a
// test asks for it. opts adjust each device's queue config.
func NewHarness(t *testing.T, numClients int, opts ...func(*offline.Config)) *Harness {
	t.Helper()

	h := &Harness{
		t:        t,
		Clients:  make(map[string]*SimulatedClient),
		failures: make(map[string][]int),
	}

	// Shared cache so the handler goroutines see one database
	dsn := fmt.Sprintf("file:attendx-server-%d?mode=memory&cache=shared&_busy_timeout=5000", harnessSeq.Add(1))
	serverDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	serverDB.SetMaxOpenConns(1)
	if _, err := serverDB.Exec(serverSchema); err != nil {
		t.Fatalf("init server schema: %v", err)
	}
	h.ServerDB = serverDB
	t.Cleanup(func() { serverDB.Close() })

	h.Server = httptest.NewServer(h.routes())
	t.Cleanup(h.Server.Close)

	for i := 0; i < numClients; i++ {
		letter := string(rune('A' + i))
		clientID := "client-" + letter
		deviceID := fmt.Sprintf("device-%s-0000-0000-0000-%012d", letter, i+1)

		conn, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			t.Fatalf("open client %s db: %v", clientID, err)
		}
		conn.SetMaxOpenConns(1)
		store, err := db.FromConn(conn)
		if err != nil {
			t.Fatalf("create schema client %s: %v", clientID, err)
		}

		cfg := offline.DefaultConfig()
		cfg.DeviceInfo = &models.DeviceInfo{DeviceID: deviceID, Platform: "harness"}
		cfg.ForceLeaseWait = 0
		for _, opt := range opts {
			opt(&cfg)
		}

		c := &SimulatedClient{
			DeviceID: deviceID,
			Store:    store,
			Conn:     connectivity.NewStatic(false),
		}
		c.Queue = offline.New(store, syncclient.New(h.Server.URL, "test-key", deviceID), c.Conn, cfg)
		t.Cleanup(func() {
			c.Queue.Close()
			store.Close()
		})

		h.Clients[clientID] = c
		h.clientKeys = append(h.clientKeys, clientID)
	}
	return h
}

// Client returns a device by name, failing the test if it does not exist.
func (h *Harness) Client(clientID string) *SimulatedClient {
	h.t.Helper()
	c, ok := h.Clients[clientID]
	if !ok {
		h.t.Fatalf("unknown client: %s", clientID)
	}
	return c
}

// ClientIDs returns the device names in creation order.
func (h *Harness) ClientIDs() []string {
	return append([]string(nil), h.clientKeys...)
}

// Record captures a check-in on a device.
func (h *Harness) Record(clientID, eventID, userID string, method models.Method, extra offline.Extra) string {
	h.t.Helper()
	id, err := h.Client(clientID).Queue.RecordOffline(eventID, userID, method, extra)
	if err != nil {
		h.t.Fatalf("%s: record %s/%s: %v", clientID, eventID, userID, err)
	}
	return id
}

// SetOnline flips a device's connectivity.
func (h *Harness) SetOnline(clientID string, online bool) {
	h.Client(clientID).Conn.Set(online)
}

// --- backend scripting ---

// FailNext makes the next n sync requests for event/user answer with status.
func (h *Harness) FailNext(eventID, userID string, status, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := eventID + "|" + userID
	for i := 0; i < n; i++ {
		h.failures[key] = append(h.failures[key], status)
	}
}

// SetLatency delays every sync and duplicate-check response.
func (h *Harness) SetLatency(d time.Duration) {
	h.mu.Lock()
	h.latency = d
	h.mu.Unlock()
}

// SetHealthy controls the /healthz answer.
func (h *Harness) SetHealthy(healthy bool) {
	h.mu.Lock()
	h.unhealthy = !healthy
	h.mu.Unlock()
}

// Gate holds every sync request at the door until the returned release
// func is called. Release is idempotent.
func (h *Harness) Gate() (release func()) {
	gate := make(chan struct{})
	h.mu.Lock()
	h.gate = gate
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if h.gate == gate {
				h.gate = nil
			}
			h.mu.Unlock()
			close(gate)
		})
	}
}

// WaitGated blocks until n sync requests are waiting at the gate.
func (h *Harness) WaitGated(n int, timeout time.Duration) {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for h.inGate.Load() < int64(n) {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %d gated requests (have %d)", n, h.inGate.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// SeedServerRecord stores a check-in on the backend as if another device
// had submitted it.
func (h *Harness) SeedServerRecord(eventID, userID string, ts time.Time) string {
	h.t.Helper()
	id, err := h.insertServerRecord(&syncclient.SyncRequest{
		EventID:   eventID,
		UserID:    userID,
		Method:    models.MethodManual,
		Timestamp: ts,
	}, "seed")
	if err != nil {
		h.t.Fatalf("seed server record: %v", err)
	}
	return id
}

// --- backend inspection ---

// Posts returns every sync request body the backend accepted or rejected,
// in arrival order.
func (h *Harness) Posts() []syncclient.SyncRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]syncclient.SyncRequest(nil), h.posts...)
}

// DuplicateChecks returns how many duplicate checks the backend answered.
func (h *Harness) DuplicateChecks() int {
	return int(h.dupChecks.Load())
}

// ServerCount returns how many check-ins the backend holds for event/user.
func (h *Harness) ServerCount(eventID, userID string) int {
	h.t.Helper()
	var n int
	err := h.ServerDB.QueryRow(`SELECT COUNT(*) FROM server_attendance WHERE event_id = ? AND user_id = ?`,
		eventID, userID).Scan(&n)
	if err != nil {
		h.t.Fatalf("count server records: %v", err)
	}
	return n
}

// WaitForPosts polls until the backend has seen at least n sync requests.
func (h *Harness) WaitForPosts(n int, timeout time.Duration) {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for len(h.Posts()) < n {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %d posts (have %d)", n, len(h.Posts()))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- assertions ---

// Eventually polls cond until it holds or the timeout expires.
func (h *Harness) Eventually(what string, timeout time.Duration, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// AssertAllSynced fails the test if any record on the device is still pending.
func (h *Harness) AssertAllSynced(clientID string) {
	h.t.Helper()
	pending, err := h.Client(clientID).Queue.GetPendingAttendances()
	if err != nil {
		h.t.Fatalf("%s: pending: %v", clientID, err)
	}
	if len(pending) != 0 {
		ids := make([]string, len(pending))
		for i := range pending {
			ids[i] = pending[i].ID
		}
		h.t.Fatalf("%s: %d records still pending: %v", clientID, len(pending), ids)
	}
}

// AssertNoDoubleSubmit fails the test if the backend holds the same device
// check-in (event, user, timestamp) more than once.
func (h *Harness) AssertNoDoubleSubmit() {
	h.t.Helper()
	rows, err := h.ServerDB.Query(`
		SELECT event_id, user_id, timestamp_ms, COUNT(*)
		FROM server_attendance
		WHERE device_id != 'seed'
		GROUP BY event_id, user_id, timestamp_ms
		HAVING COUNT(*) > 1
	`)
	if err != nil {
		h.t.Fatalf("query server records: %v", err)
	}
	var dupes []string
	for rows.Next() {
		var eventID, userID string
		var ts int64
		var n int
		if err := rows.Scan(&eventID, &userID, &ts, &n); err != nil {
			rows.Close()
			h.t.Fatalf("scan: %v", err)
		}
		dupes = append(dupes, fmt.Sprintf("%s/%s@%d x%d", eventID, userID, ts, n))
	}
	rows.Close()
	if len(dupes) > 0 {
		sort.Strings(dupes)
		h.t.Fatalf("double submissions on server: %v", dupes)
	}
}

// --- HTTP handlers ---

func (h *Harness) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/attendance/sync", h.handleSync)
	mux.HandleFunc("POST /api/attendance/check-duplicate", h.handleCheckDuplicate)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	return mux
}

func (h *Harness) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncclient.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	h.mu.Lock()
	h.posts = append(h.posts, req)
	gate := h.gate
	latency := h.latency
	h.mu.Unlock()

	if gate != nil {
		h.inGate.Add(1)
		select {
		case <-gate:
		case <-r.Context().Done():
		}
		h.inGate.Add(-1)
	}
	if !sleepCtx(r, latency) {
		return
	}

	if status, ok := h.popFailure(req.EventID, req.UserID); ok {
		writeError(w, status, "scripted failure")
		return
	}

	id, err := h.insertServerRecord(&req, r.Header.Get("X-Device-ID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, syncclient.SyncResponse{Success: true, ID: id})
}

func (h *Harness) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req syncclient.DuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	h.dupChecks.Add(1)

	h.mu.Lock()
	latency := h.latency
	h.mu.Unlock()
	if !sleepCtx(r, latency) {
		return
	}

	// The nearest server check-in for the same event and user
	var (
		id     string
		method string
		tsMs   int64
	)
	err := h.ServerDB.QueryRow(`
		SELECT id, method, timestamp_ms FROM server_attendance
		WHERE event_id = ? AND user_id = ?
		ORDER BY ABS(timestamp_ms - ?) LIMIT 1
	`, req.EventID, req.UserID, req.Timestamp.UnixMilli()).Scan(&id, &method, &tsMs)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exists": true,
		"record": map[string]any{
			"id":        id,
			"eventId":   req.EventID,
			"userId":    req.UserID,
			"method":    method,
			"timestamp": time.UnixMilli(tsMs).UTC(),
		},
	})
}

func (h *Harness) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	unhealthy := h.unhealthy
	h.mu.Unlock()
	if unhealthy {
		writeError(w, http.StatusServiceUnavailable, "maintenance")
		return
	}
	writeJSON(w, http.StatusOK, syncclient.HealthResponse{Status: "ok"})
}

func (h *Harness) popFailure(eventID, userID string) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := eventID + "|" + userID
	queue := h.failures[key]
	if len(queue) == 0 {
		return 0, false
	}
	h.failures[key] = queue[1:]
	return queue[0], true
}

func (h *Harness) insertServerRecord(req *syncclient.SyncRequest, deviceID string) (string, error) {
	id := fmt.Sprintf("srv-%06d", h.seq.Add(1))
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	_, err = h.ServerDB.Exec(`
		INSERT INTO server_attendance (id, event_id, user_id, method, timestamp_ms, device_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, req.EventID, req.UserID, string(req.Method), req.Timestamp.UnixMilli(), deviceID, string(payload))
	if err != nil {
		return "", fmt.Errorf("insert server record: %w", err)
	}
	return id, nil
}

func sleepCtx(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
