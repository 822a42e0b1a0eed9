package cmd

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/attendancex/attendx/internal/connectivity"
	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/offline"
)

func TestMethodValue(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Method
		wantErr bool
	}{
		{"qr", models.MethodQR, false},
		{"QR", models.MethodQR, false},
		{" manual ", models.MethodManual, false},
		{"geolocation", models.MethodGeolocation, false},
		{"", "", false},
		{"nfc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var m methodValue
			err := m.Set(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && m.method != tt.want {
				t.Errorf("Set(%q) = %q, want %q", tt.in, m.method, tt.want)
			}
		})
	}

	var m methodValue
	if m.Type() != "method" {
		t.Errorf("Type() = %q", m.Type())
	}
	if err := m.Set("nfc"); err == nil || !strings.Contains(err.Error(), "qr|manual|geolocation") {
		t.Errorf("error should list the methods, got %v", err)
	}
}

func TestInferMethod(t *testing.T) {
	loc := &models.Location{Latitude: 40.44, Longitude: -79.94}
	tests := []struct {
		name  string
		extra offline.Extra
		want  models.Method
	}{
		{"qr wins", offline.Extra{QRCodeData: "tok", Location: loc}, models.MethodQR},
		{"location", offline.Extra{Location: loc}, models.MethodGeolocation},
		{"nothing", offline.Extra{}, models.MethodManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inferMethod(tt.extra); got != tt.want {
				t.Errorf("inferMethod() = %q, want %q", got, tt.want)
			}
		})
	}
}

// newTestQueue returns a queue over an in-memory store with no backend
func newTestQueue(t *testing.T) *offline.Queue {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	store, err := db.FromConn(conn)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}
	q := offline.New(store, nil, connectivity.NewStatic(false), offline.DefaultConfig())
	t.Cleanup(func() {
		q.Close()
		store.Close()
	})
	return q
}

func TestValidateCheckIn(t *testing.T) {
	q := newTestQueue(t)
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	if err := q.CacheEvent(&models.CachedEvent{
		ID: "event-1", Title: "Lecture", StartTime: start, EndTime: end,
		Participants: []string{"user-A"},
	}); err != nil {
		t.Fatalf("CacheEvent: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	if err := q.CacheQRToken("event-1", "tok-old", &past); err != nil {
		t.Fatalf("CacheQRToken: %v", err)
	}
	if err := q.CacheQRToken("event-2", "tok-other", nil); err != nil {
		t.Fatalf("CacheQRToken: %v", err)
	}

	tests := []struct {
		name   string
		event  string
		user   string
		method models.Method
		extra  offline.Extra
		want   []string
	}{
		{"valid manual", "event-1", "user-A", models.MethodManual, offline.Extra{}, nil},
		{"uncached event", "event-9", "user-A", models.MethodManual, offline.Extra{}, nil},
		{"not a participant", "event-1", "user-B", models.MethodManual, offline.Extra{}, []string{"not valid for event-1"}},
		{"outside window", "event-1", "user-A", models.MethodManual, offline.Extra{Timestamp: end.Add(time.Hour)}, []string{"not valid for event-1"}},
		{"expired token", "event-1", "user-A", models.MethodQR, offline.Extra{QRCodeData: "tok-old"}, []string{"QR code"}},
		{"token for another event", "event-1", "user-A", models.MethodQR, offline.Extra{QRCodeData: "tok-other"}, []string{"belongs to event-2"}},
		{"unknown token", "event-1", "user-A", models.MethodQR, offline.Extra{QRCodeData: "tok-unknown"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateCheckIn(q, tt.event, tt.user, tt.method, tt.extra)
			if len(got) != len(tt.want) {
				t.Fatalf("problems = %q, want %d", got, len(tt.want))
			}
			for i, want := range tt.want {
				if !strings.Contains(got[i], want) {
					t.Errorf("problem %d = %q, want it to contain %q", i, got[i], want)
				}
			}
		})
	}
}
