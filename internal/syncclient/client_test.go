package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

func TestSync_SendsRecord(t *testing.T) {
	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	var got map[string]any
	var auth, device string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/attendance/sync" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		device = r.Header.Get("X-Device-ID")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"id":"srv-1"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "dev-1")
	resp, err := c.Sync(context.Background(), NewSyncRequest(&models.AttendanceRecord{
		ID:         "att-1",
		EventID:    "event-1",
		UserID:     "user-A",
		Method:     models.MethodQR,
		Timestamp:  ts,
		QRCodeData: "tok-1",
	}))
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !resp.Success || resp.ID != "srv-1" {
		t.Errorf("response = %+v", resp)
	}
	if auth != "Bearer secret" || device != "dev-1" {
		t.Errorf("headers: auth=%q device=%q", auth, device)
	}

	want := map[string]any{
		"eventId":    "event-1",
		"userId":     "user-A",
		"method":     "qr",
		"timestamp":  "2026-03-10T09:00:00Z",
		"qrCodeData": "tok-1",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("body[%s] = %v, want %v", k, got[k], v)
		}
	}
	if _, ok := got["id"]; ok {
		t.Error("local record id leaked into the request body")
	}
}

func TestSync_ErrorStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantMsg      string
		unauthorized bool
	}{
		{"server error", http.StatusInternalServerError, `{"error":"db down"}`, "HTTP 500: db down", false},
		{"message field", http.StatusBadRequest, `{"message":"bad event"}`, "HTTP 400: bad event", false},
		{"no body", http.StatusBadGateway, ``, "HTTP 502", false},
		{"unauthorized", http.StatusUnauthorized, `{"error":"token expired"}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", "").Sync(context.Background(), &SyncRequest{EventID: "e", UserID: "u"})
			if err == nil {
				t.Fatal("expected error")
			}
			if code := StatusCode(err); code != tt.status {
				t.Errorf("status = %d, want %d", code, tt.status)
			}
			if errors.Is(err, ErrUnauthorized) != tt.unauthorized {
				t.Errorf("ErrUnauthorized match = %v, want %v (%v)", !tt.unauthorized, tt.unauthorized, err)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestSync_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL, "", "").Sync(ctx, &SyncRequest{EventID: "e", UserID: "u"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestCheckDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req DuplicateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.UserID == "user-new" {
			w.Write([]byte(`{"exists":false}`))
			return
		}
		w.Write([]byte(`{"exists":true,"record":{"id":"srv-9","timestamp":"2026-03-10T08:58:00Z","method":"manual","room":"B2"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "")
	resp, err := c.CheckDuplicate(context.Background(), &DuplicateRequest{EventID: "event-1", UserID: "user-A"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !resp.Exists || resp.Record == nil {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Record.ID != "srv-9" || !resp.Record.Timestamp.Equal(time.Date(2026, 3, 10, 8, 58, 0, 0, time.UTC)) {
		t.Errorf("record = %+v", resp.Record)
	}
	// Fields the client does not model survive in Raw
	var raw map[string]any
	if err := json.Unmarshal(resp.Record.Raw, &raw); err != nil || raw["room"] != "B2" {
		t.Errorf("raw = %s (%v)", resp.Record.Raw, err)
	}

	resp, err = c.CheckDuplicate(context.Background(), &DuplicateRequest{EventID: "event-1", UserID: "user-new"})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.Exists || resp.Record != nil {
		t.Errorf("response = %+v, want no match", resp)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL, "", "").HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}

	srv.Close()
	if _, err := New(srv.URL, "", "").HealthCheck(context.Background()); err == nil {
		t.Error("expected error from closed server")
	}
}
