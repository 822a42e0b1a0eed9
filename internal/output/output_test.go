package output

import (
	"strings"
	"testing"
	"time"

	"github.com/attendancex/attendx/internal/models"
)

func TestFormatTimeAgoJustNow(t *testing.T) {
	now := time.Now()
	tests := []time.Time{
		now,
		now.Add(-30 * time.Second),
		now.Add(-59 * time.Second),
	}

	for _, tm := range tests {
		result := FormatTimeAgo(tm)
		if result != "just now" {
			t.Errorf("FormatTimeAgo(%v) = %q, want 'just now'", tm, result)
		}
	}
}

func TestFormatTimeAgoMinutes(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Minute, "1m ago"},
		{2 * time.Minute, "2m ago"},
		{30 * time.Minute, "30m ago"},
		{59 * time.Minute, "59m ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

func TestFormatTimeAgoHours(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{1 * time.Hour, "1h ago"},
		{2 * time.Hour, "2h ago"},
		{12 * time.Hour, "12h ago"},
		{23 * time.Hour, "23h ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

func TestFormatTimeAgoDays(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{24 * time.Hour, "1d ago"},
		{48 * time.Hour, "2d ago"},
		{6 * 24 * time.Hour, "6d ago"},
	}

	for _, tc := range tests {
		tm := time.Now().Add(-tc.duration)
		result := FormatTimeAgo(tm)
		if result != tc.expected {
			t.Errorf("FormatTimeAgo(-%v) = %q, want %q", tc.duration, result, tc.expected)
		}
	}
}

func TestFormatTimeAgoDate(t *testing.T) {
	tm := time.Now().Add(-8 * 24 * time.Hour)
	result := FormatTimeAgo(tm)
	expected := tm.Format("2006-01-02")
	if result != expected {
		t.Errorf("FormatTimeAgo(-8d) = %q, want %q", result, expected)
	}
}

func TestFormatTimeAgoEdgeCases(t *testing.T) {
	// Exactly at minute boundary
	tm := time.Now().Add(-60 * time.Second)
	result := FormatTimeAgo(tm)
	if result != "1m ago" {
		t.Errorf("At 60s boundary: got %q, want '1m ago'", result)
	}

	// Exactly at hour boundary
	tm = time.Now().Add(-60 * time.Minute)
	result = FormatTimeAgo(tm)
	if result != "1h ago" {
		t.Errorf("At 60m boundary: got %q, want '1h ago'", result)
	}

	// Exactly at day boundary
	tm = time.Now().Add(-24 * time.Hour)
	result = FormatTimeAgo(tm)
	if result != "1d ago" {
		t.Errorf("At 24h boundary: got %q, want '1d ago'", result)
	}

	// Exactly at week boundary
	tm = time.Now().Add(-7 * 24 * time.Hour)
	result = FormatTimeAgo(tm)
	expected := tm.Format("2006-01-02")
	if result != expected {
		t.Errorf("At 7d boundary: got %q, want %q", result, expected)
	}
}

func TestSectionHeader(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"history", "\nHISTORY:\n"},
		{"Open Conflicts", "\nOPEN CONFLICTS:\n"},
		{"BLOCKS", "\nBLOCKS:\n"},
	}

	for _, tc := range tests {
		result := SectionHeader(tc.title)
		if result != tc.expected {
			t.Errorf("SectionHeader(%q) = %q, want %q", tc.title, result, tc.expected)
		}
	}
}

func TestIndentLines(t *testing.T) {
	lines := []string{"line1", "line2", "line3"}

	result := IndentLines(lines, 2)

	expected := []string{"  line1", "  line2", "  line3"}
	for i, line := range result {
		if line != expected[i] {
			t.Errorf("IndentLines[%d] = %q, want %q", i, line, expected[i])
		}
	}
}

func TestIndentLinesZero(t *testing.T) {
	lines := []string{"a", "b"}
	result := IndentLines(lines, 0)

	if result[0] != "a" || result[1] != "b" {
		t.Error("Zero indent should not change lines")
	}
}

func TestIndentLinesEmpty(t *testing.T) {
	result := IndentLines([]string{}, 4)
	if len(result) != 0 {
		t.Error("Empty input should return empty output")
	}
}

func TestBulletList(t *testing.T) {
	items := []string{"item 1", "item 2", "item 3"}
	result := BulletList(items, 2)

	expected := []string{"  - item 1", "  - item 2", "  - item 3"}
	for i, line := range result {
		if line != expected[i] {
			t.Errorf("BulletList[%d] = %q, want %q", i, line, expected[i])
		}
	}
}

func TestBulletListNoIndent(t *testing.T) {
	items := []string{"a", "b"}
	result := BulletList(items, 0)

	if result[0] != "- a" || result[1] != "- b" {
		t.Error("Bullet list with 0 indent should have '- ' prefix only")
	}
}

func testRecord() *models.AttendanceRecord {
	return &models.AttendanceRecord{
		ID:        "att-0001",
		EventID:   "event-1",
		UserID:    "user-A",
		Method:    models.MethodQR,
		Timestamp: time.Now().Add(-2 * time.Hour),
	}
}

func TestRecordState(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *models.AttendanceRecord)
		want   SyncState
	}{
		{"fresh", func(r *models.AttendanceRecord) {}, StatePending},
		{"failed once", func(r *models.AttendanceRecord) { r.SyncAttempts, r.Error = 1, "HTTP 500" }, StateFailed},
		{"at ceiling", func(r *models.AttendanceRecord) { r.SyncAttempts, r.Error = 5, "HTTP 500" }, StateStalled},
		{"synced", func(r *models.AttendanceRecord) { r.Synced, r.SyncAttempts = true, 1 }, StateSynced},
		{"duplicate", func(r *models.AttendanceRecord) { r.Synced, r.Error = true, models.ErrorDuplicate }, StateDuplicate},
		{"synced past ceiling", func(r *models.AttendanceRecord) { r.Synced, r.SyncAttempts = true, 7 }, StateSynced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRecord()
			tt.mutate(r)
			if got := RecordState(r, 5); got != tt.want {
				t.Errorf("RecordState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatStateUnknown(t *testing.T) {
	if got := FormatState(SyncState("weird")); got != "weird" {
		t.Errorf("FormatState(unknown) = %q", got)
	}
	if got := FormatState(StatePending); !strings.Contains(got, "[pending]") {
		t.Errorf("FormatState(pending) = %q", got)
	}
}

func TestFormatAttempts(t *testing.T) {
	tests := []struct {
		attempts, max int
		want          string
	}{
		{0, 5, ""},
		{2, 5, "2/5 tries"},
		{3, 0, "3 tries"},
	}
	for _, tt := range tests {
		if got := FormatAttempts(tt.attempts, tt.max); got != tt.want {
			t.Errorf("FormatAttempts(%d, %d) = %q, want %q", tt.attempts, tt.max, got, tt.want)
		}
	}
}

func TestFormatRecordShort(t *testing.T) {
	r := testRecord()
	r.SyncAttempts = 2
	r.Error = "HTTP 502"

	result := FormatRecordShort(r, 5)
	for _, want := range []string{"att-0001", "event-1/user-A", "qr", "2/5 tries", "[failed]"} {
		if !strings.Contains(result, want) {
			t.Errorf("FormatRecordShort missing %q: %q", want, result)
		}
	}
}

func TestFormatRecordLong(t *testing.T) {
	r := testRecord()
	r.Method = models.MethodGeolocation
	r.Location = &models.Location{Latitude: 40.44, Longitude: -79.94, Accuracy: 12}
	r.DeviceInfo = &models.DeviceInfo{DeviceID: "kiosk-7"}
	last := time.Now().Add(-10 * time.Minute)
	r.SyncAttempts = 1
	r.LastSyncAttempt = &last
	r.Error = "HTTP 500: db down"

	history := []models.SyncHistoryEntry{
		{RecordID: r.ID, Outcome: models.OutcomeFailed, HTTPStatus: 500, Error: "db down", AttemptedAt: last},
	}
	result := FormatRecordLong(r, history, 5)

	for _, want := range []string{
		"Event: event-1 | User: user-A | Method: geolocation",
		"Location: 40.44000, -79.94000",
		"Device: kiosk-7",
		"Attempts: 1/5 tries, last 10m ago",
		"Last error: HTTP 500: db down",
		"HISTORY:",
		"failed (HTTP 500)",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("FormatRecordLong missing %q:\n%s", want, result)
		}
	}
}

func TestFormatRecordLongDuplicateHidesError(t *testing.T) {
	r := testRecord()
	r.Synced = true
	r.Error = models.ErrorDuplicate

	result := FormatRecordLong(r, nil, 5)
	if strings.Contains(result, "Last error") {
		t.Errorf("duplicate marker shown as error:\n%s", result)
	}
	if !strings.Contains(result, "[duplicate]") {
		t.Errorf("missing duplicate state:\n%s", result)
	}
	if strings.Contains(result, "HISTORY:") {
		t.Error("history section rendered without entries")
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name   string
		status models.SyncStatus
		want   []string
	}{
		{"disabled", models.SyncStatus{}, []string{"disabled"}},
		{"clean", models.SyncStatus{Enabled: true, TotalRecords: 4}, []string{"all synced"}},
		{"pending and failed", models.SyncStatus{Enabled: true, PendingRecords: 3, FailedRecords: 1}, []string{"3 pending", "1 failed"}},
		{"conflicts only", models.SyncStatus{Enabled: true, OpenConflicts: 2}, []string{"0 pending", "2 conflicts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusLine(tt.status)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("StatusLine() = %q, missing %q", got, w)
				}
			}
		})
	}
}

func TestFormatTimePtr(t *testing.T) {
	if got := FormatTimePtr(nil); got != "never" {
		t.Errorf("FormatTimePtr(nil) = %q", got)
	}
	now := time.Now()
	if got := FormatTimePtr(&now); got != "just now" {
		t.Errorf("FormatTimePtr(now) = %q", got)
	}
}

func TestErrorCodeConstants(t *testing.T) {
	codes := []struct {
		code     string
		expected string
	}{
		{ErrCodeNotFound, "not_found"},
		{ErrCodeInvalidInput, "invalid_input"},
		{ErrCodeConflict, "conflict"},
		{ErrCodeDisabled, "offline_disabled"},
		{ErrCodeDatabaseError, "database_error"},
		{ErrCodeSyncFailed, "sync_failed"},
		{ErrCodeUnauthorized, "unauthorized"},
	}

	for _, tc := range codes {
		if tc.code != tc.expected {
			t.Errorf("Error code %q != %q", tc.code, tc.expected)
		}
	}
}

func TestConflictReport(t *testing.T) {
	if got := ConflictReport(nil); got != "" {
		t.Errorf("ConflictReport(nil) = %q", got)
	}

	local := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	report := ConflictReport([]models.SyncConflict{
		{RecordID: "att-1", EventID: "event-1", UserID: "user-A", LocalTimestamp: local, RemoteTimestamp: local.Add(-10 * time.Minute)},
		{RecordID: "att-2", EventID: "event-1", UserID: "user-B", LocalTimestamp: local, RemoteTimestamp: local.Add(7 * time.Minute), Resolution: models.ResolutionKeep},
	})
	for _, want := range []string{"# Conflicts (2)", "`att-1`", "10m0s", "| open |", "| keep |", "--discard"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
