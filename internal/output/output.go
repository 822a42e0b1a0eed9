// Package output provides styled terminal output helpers (success, error,
// warning, record formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/attendancex/attendx/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	methodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	stateStyles  = map[SyncState]lipgloss.Style{
		StatePending:   lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		StateFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		StateStalled:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		StateDuplicate: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		StateSynced:    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// SyncState is the display state of a record, derived from its sync fields
type SyncState string

const (
	StatePending   SyncState = "pending"
	StateFailed    SyncState = "failed"
	StateStalled   SyncState = "stalled"
	StateDuplicate SyncState = "duplicate"
	StateSynced    SyncState = "synced"
)

// RecordState derives the display state. maxAttempts is the automatic
// retry ceiling; records at or past it are stalled.
func RecordState(r *models.AttendanceRecord, maxAttempts int) SyncState {
	switch {
	case r.IsDuplicate():
		return StateDuplicate
	case r.Synced:
		return StateSynced
	case maxAttempts > 0 && r.SyncAttempts >= maxAttempts:
		return StateStalled
	case r.Failed():
		return StateFailed
	default:
		return StatePending
	}
}

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeDisabled      = "offline_disabled"
	ErrCodeDatabaseError = "database_error"
	ErrCodeSyncFailed    = "sync_failed"
	ErrCodeUnauthorized  = "unauthorized"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	JSONErrorWithDetails(code, message, nil)
}

// JSONErrorWithDetails outputs an error as JSON with additional context
func JSONErrorWithDetails(code, message string, details map[string]interface{}) {
	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if len(details) > 0 {
		errObj["details"] = details
	}
	result := map[string]interface{}{
		"error": errObj,
	}
	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
}

// FormatState formats a sync state with color
func FormatState(s SyncState) string {
	style, ok := stateStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(fmt.Sprintf("[%s]", s))
}

// FormatMethod formats a capture method
func FormatMethod(m models.Method) string {
	return methodStyle.Render(string(m))
}

// FormatAttempts returns empty string for 0 attempts, otherwise "N/max tries"
func FormatAttempts(attempts, maxAttempts int) string {
	if attempts == 0 {
		return ""
	}
	if maxAttempts <= 0 {
		return fmt.Sprintf("%d tries", attempts)
	}
	return fmt.Sprintf("%d/%d tries", attempts, maxAttempts)
}

// FormatRecordShort formats a record on one line
func FormatRecordShort(r *models.AttendanceRecord, maxAttempts int) string {
	var parts []string
	parts = append(parts, titleStyle.Render(r.ID))
	parts = append(parts, fmt.Sprintf("%s/%s", r.EventID, r.UserID))
	parts = append(parts, FormatMethod(r.Method))
	parts = append(parts, subtleStyle.Render(r.Timestamp.Local().Format("2006-01-02 15:04:05")))

	if a := FormatAttempts(r.SyncAttempts, maxAttempts); a != "" {
		parts = append(parts, subtleStyle.Render(a))
	}
	parts = append(parts, FormatState(RecordState(r, maxAttempts)))

	return strings.Join(parts, "  ")
}

// FormatRecordLong formats a record with all its fields and attempt history
func FormatRecordLong(r *models.AttendanceRecord, history []models.SyncHistoryEntry, maxAttempts int) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(r.ID))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("State: %s\n", FormatState(RecordState(r, maxAttempts))))
	sb.WriteString(fmt.Sprintf("Event: %s | User: %s | Method: %s\n", r.EventID, r.UserID, r.Method))
	sb.WriteString(fmt.Sprintf("Captured: %s (%s)\n", r.Timestamp.Local().Format(time.RFC3339), FormatTimeAgo(r.Timestamp)))

	if r.QRCodeData != "" {
		sb.WriteString(fmt.Sprintf("QR: %s\n", r.QRCodeData))
	}
	if r.Location != nil {
		sb.WriteString(fmt.Sprintf("Location: %.5f, %.5f (±%.0fm)\n", r.Location.Latitude, r.Location.Longitude, r.Location.Accuracy))
	}
	if r.DeviceInfo != nil && r.DeviceInfo.DeviceID != "" {
		sb.WriteString(fmt.Sprintf("Device: %s\n", r.DeviceInfo.DeviceID))
	}

	if r.SyncAttempts > 0 {
		sb.WriteString(fmt.Sprintf("Attempts: %s", FormatAttempts(r.SyncAttempts, maxAttempts)))
		if r.LastSyncAttempt != nil {
			sb.WriteString(fmt.Sprintf(", last %s", FormatTimeAgo(*r.LastSyncAttempt)))
		}
		sb.WriteString("\n")
	}
	if r.Error != "" && !r.IsDuplicate() {
		sb.WriteString(errorStyle.Render("Last error: " + r.Error))
		sb.WriteString("\n")
	}

	if len(history) > 0 {
		sb.WriteString(SectionHeader("history"))
		for _, h := range history {
			line := fmt.Sprintf("  [%s] %s", h.AttemptedAt.Local().Format("01-02 15:04:05"), h.Outcome)
			if h.HTTPStatus != 0 {
				line += fmt.Sprintf(" (HTTP %d)", h.HTTPStatus)
			}
			if h.Error != "" {
				line += " " + subtleStyle.Render(h.Error)
			}
			sb.WriteString(line + "\n")
		}
	}

	return sb.String()
}

// StatusLine summarizes queue counts the way the UI shows them,
// e.g. "3 pending, 1 failed".
func StatusLine(s models.SyncStatus) string {
	if !s.Enabled {
		return warningStyle.Render("offline features disabled")
	}
	if s.PendingRecords == 0 && s.OpenConflicts == 0 {
		return successStyle.Render("all synced")
	}
	parts := []string{fmt.Sprintf("%d pending", s.PendingRecords)}
	if s.FailedRecords > 0 {
		parts = append(parts, errorStyle.Render(fmt.Sprintf("%d failed", s.FailedRecords)))
	}
	if s.OpenConflicts > 0 {
		parts = append(parts, warningStyle.Render(fmt.Sprintf("%d conflicts", s.OpenConflicts)))
	}
	return strings.Join(parts, ", ")
}

// OnlineBadge renders the connectivity state
func OnlineBadge(online bool) string {
	if online {
		return successStyle.Render("● online")
	}
	return subtleStyle.Render("○ offline")
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	default:
		return t.Format("2006-01-02")
	}
}

// FormatTimePtr formats an optional time, "never" when nil
func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return FormatTimeAgo(*t)
}

// SectionHeader returns a formatted section header for CLI output
// e.g., "\nHISTORY:\n"
func SectionHeader(title string) string {
	return fmt.Sprintf("\n%s:\n", strings.ToUpper(title))
}

// IndentLines indents each line by the specified number of spaces
func IndentLines(lines []string, spaces int) []string {
	indent := strings.Repeat(" ", spaces)
	result := make([]string, len(lines))
	for i, line := range lines {
		result[i] = indent + line
	}
	return result
}

// BulletList formats items as a bulleted list with optional indentation
func BulletList(items []string, indent int) []string {
	prefix := strings.Repeat(" ", indent)
	result := make([]string, len(items))
	for i, item := range items {
		result[i] = prefix + "- " + item
	}
	return result
}
