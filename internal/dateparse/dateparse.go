// Package dateparse parses the absolute and relative times accepted by the
// CLI's --at and --expires flags.
package dateparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTime parses a time input relative to the current time.
//
// Supported formats:
//   - RFC3339: "2026-03-10T09:15:00Z"
//   - Local date and time: "2026-03-10 09:15"
//   - Clock time today: "09:15"
//   - Relative offsets: "-15m", "+2h", "-1d", "+1w"
//   - Keywords: "now", "today", "yesterday", "tomorrow" (midnight local)
func ParseTime(input string) (time.Time, error) {
	return ParseTimeFrom(input, time.Now())
}

// ParseTimeFrom parses a time input relative to the given reference time.
// This variant enables deterministic testing with a fixed "now".
func ParseTimeFrom(input string, now time.Time) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, fmt.Errorf("empty time input")
	}

	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", input, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", input, now.Location()); err == nil {
		y, m, d := now.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, now.Location()), nil
	}

	lower := strings.ToLower(input)
	switch lower {
	case "now":
		return now, nil
	case "today":
		return midnight(now), nil
	case "yesterday":
		return midnight(now).AddDate(0, 0, -1), nil
	case "tomorrow":
		return midnight(now).AddDate(0, 0, 1), nil
	}

	if d, ok, err := parseOffset(lower); ok {
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %q", input)
}

// ParseOffset parses a signed relative offset such as "+2h" or "-1d".
// Unsigned durations are accepted as positive.
func ParseOffset(input string) (time.Duration, error) {
	d, ok, err := parseOffset(strings.ToLower(strings.TrimSpace(input)))
	if !ok {
		return 0, fmt.Errorf("unrecognized offset: %q", input)
	}
	return d, err
}

// parseOffset reports ok when input looks like an offset at all
func parseOffset(input string) (time.Duration, bool, error) {
	if len(input) < 2 {
		return 0, false, nil
	}
	sign := time.Duration(1)
	body := input
	switch input[0] {
	case '+':
		body = input[1:]
	case '-':
		sign = -1
		body = input[1:]
	}
	if body == "" || body[0] < '0' || body[0] > '9' {
		return 0, false, nil
	}

	// Days and weeks are not time.ParseDuration units
	if suffix := body[len(body)-1]; suffix == 'd' || suffix == 'w' {
		n, err := strconv.Atoi(body[:len(body)-1])
		if err != nil {
			return 0, true, fmt.Errorf("invalid offset %q", input)
		}
		unit := 24 * time.Hour
		if suffix == 'w' {
			unit *= 7
		}
		return sign * time.Duration(n) * unit, true, nil
	}

	d, err := time.ParseDuration(body)
	if err != nil {
		return 0, true, fmt.Errorf("invalid offset %q (use s, m, h, d, or w)", input)
	}
	return sign * d, true, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
