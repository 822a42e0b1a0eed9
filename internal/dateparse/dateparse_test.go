package dateparse

import (
	"testing"
	"time"
)

// Fixed reference time: Tuesday, 2026-03-10 12:00:00 UTC
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestParseTime_Absolute(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-03-10T09:15:00Z", time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)},
		{"2026-03-09 18:30", time.Date(2026, 3, 9, 18, 30, 0, 0, time.UTC)},
		{"09:15", time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)},
		{"  23:59 ", time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimeFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseTimeFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimeFrom(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseTime_Keywords(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"now", testNow},
		{"NOW", testNow},
		{"today", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimeFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseTimeFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimeFrom(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseTime_Relative(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"-15m", testNow.Add(-15 * time.Minute)},
		{"+2h", testNow.Add(2 * time.Hour)},
		{"2h", testNow.Add(2 * time.Hour)},
		{"-1h30m", testNow.Add(-90 * time.Minute)},
		{"-1d", testNow.AddDate(0, 0, -1)},
		{"+1w", testNow.AddDate(0, 0, 7)},
		{"+0d", testNow},
	}
	for _, tt := range tests {
		got, err := ParseTimeFrom(tt.input, testNow)
		if err != nil {
			t.Errorf("ParseTimeFrom(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimeFrom(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseTime_Invalid(t *testing.T) {
	inputs := []string{"", "   ", "soon", "+", "-xd", "+5y", "25:00", "2026-13-01 10:00"}
	for _, input := range inputs {
		if _, err := ParseTimeFrom(input, testNow); err == nil {
			t.Errorf("ParseTimeFrom(%q): expected error", input)
		}
	}
}

func TestParseOffset(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"2h", 2 * time.Hour, false},
		{"+30m", 30 * time.Minute, false},
		{"-1d", -24 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"later", 0, true},
		{"+5y", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseOffset(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseOffset(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOffset(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
