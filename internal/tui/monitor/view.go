package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/output"
)

// renderView renders the complete TUI view
func (m Model) renderView() string {
	if m.Width == 0 || m.Height == 0 {
		return "Loading..."
	}

	// Handle small terminal sizes gracefully
	if m.Width < MinWidth || m.Height < MinHeight {
		return m.renderCompact()
	}

	if m.ShowHelp {
		return m.renderHelp()
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	// Leave room for header and footer
	availableHeight := m.Height - lipgloss.Height(header) - 1
	panelHeight := availableHeight / panelCount

	panels := lipgloss.JoinVertical(lipgloss.Left,
		m.renderPendingPanel(panelHeight),
		m.renderHistoryPanel(panelHeight),
		m.renderConflictsPanel(panelHeight),
	)

	return lipgloss.JoinVertical(lipgloss.Left, header, panels, footer)
}

// renderCompact renders a minimal view for small terminals
func (m Model) renderCompact() string {
	var s strings.Builder

	s.WriteString("attendx monitor (resize for full view)\n\n")
	s.WriteString(formatOnline(m.Status.Online) + "\n")
	s.WriteString(output.StatusLine(m.Status) + "\n")
	if m.Syncing {
		s.WriteString(m.Spinner.View() + " syncing\n")
	}
	s.WriteString("\nq:quit s:sync r:refresh ?:help")

	return s.String()
}

// renderHeader renders the title bar and the counters line
func (m Model) renderHeader() string {
	left := titleStyle.Render("attendx") + "  " + formatOnline(m.Status.Online) + "  " + output.StatusLine(m.Status)

	right := ""
	switch {
	case m.Syncing:
		right = m.Spinner.View() + " syncing"
	case m.Status.SyncInProgress:
		right = subtleStyle.Render("background sync running")
	case m.Status.AutoSync:
		right = subtleStyle.Render("auto-sync on")
	}

	padding := m.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	top := " " + left + strings.Repeat(" ", padding) + right

	st := m.Stats
	counters := fmt.Sprintf(" total %d  synced %d  duplicates %d  stalled %d  cached events %d  tokens %d  last attempt %s",
		st.TotalRecords, st.SyncedRecords, st.DuplicateRecords, st.StalledRecords,
		st.CachedEvents, st.CachedTokens, output.FormatTimePtr(st.LastSyncAttempt))

	lines := []string{top, subtleStyle.Render(ansi.Truncate(counters, m.Width, "…"))}
	if m.Err != nil {
		lines = append(lines, errorTextStyle.Render(ansi.Truncate(" Error: "+m.Err.Error(), m.Width, "…")))
	} else if m.LastForce != nil {
		lines = append(lines, " "+m.formatForceResult(*m.LastForce))
	}
	return strings.Join(lines, "\n")
}

// renderPendingPanel renders unsynced records (Panel 1)
func (m Model) renderPendingPanel(height int) string {
	title := fmt.Sprintf("PENDING (%d)", len(m.Pending))
	if len(m.Pending) == 0 {
		return m.wrapPanel(title, subtleStyle.Render("Nothing waiting to sync"), height, PanelPending)
	}

	var lines []string
	for _, rec := range m.Pending[m.ScrollOffset[PanelPending]:] {
		lines = append(lines, output.FormatRecordShort(&rec, m.MaxAttempts))
	}
	return m.wrapPanel(title, strings.Join(lines, "\n"), height, PanelPending)
}

// renderHistoryPanel renders the attempt log (Panel 2)
func (m Model) renderHistoryPanel(height int) string {
	if len(m.History) == 0 {
		return m.wrapPanel("HISTORY", subtleStyle.Render("No sync attempts yet"), height, PanelHistory)
	}

	var lines []string
	for _, h := range m.History[m.ScrollOffset[PanelHistory]:] {
		lines = append(lines, formatHistoryEntry(h))
	}
	return m.wrapPanel("HISTORY", strings.Join(lines, "\n"), height, PanelHistory)
}

// renderConflictsPanel renders open conflicts (Panel 3)
func (m Model) renderConflictsPanel(height int) string {
	title := fmt.Sprintf("CONFLICTS (%d)", len(m.Conflicts))
	if len(m.Conflicts) == 0 {
		return m.wrapPanel(title, subtleStyle.Render("No conflicts"), height, PanelConflicts)
	}

	var lines []string
	for _, c := range m.Conflicts[m.ScrollOffset[PanelConflicts]:] {
		state := "open"
		if c.Resolution != "" {
			state = c.Resolution
		}
		lines = append(lines, fmt.Sprintf("%s  %s/%s  drift %s  %s",
			c.RecordID, c.EventID, c.UserID, c.Drift().Round(time.Second), subtleStyle.Render(state)))
	}
	return m.wrapPanel(title, strings.Join(lines, "\n"), height, PanelConflicts)
}

// renderFooter renders the key hints and refresh time
func (m Model) renderFooter() string {
	keys := helpStyle.Render("q:quit  tab:switch  ↑↓:scroll  s:sync now  r:refresh  ?:help")

	alert := ""
	if n := m.Status.OpenConflicts; n > 0 {
		alert = conflictAlertStyle.Render(fmt.Sprintf(" [%d CONFLICT] ", n))
	}

	refresh := timestampStyle.Render(fmt.Sprintf("Last: %s", m.LastRefresh.Format("15:04:05")))

	padding := m.Width - lipgloss.Width(keys) - lipgloss.Width(alert) - lipgloss.Width(refresh) - 2
	if padding < 0 {
		padding = 0
	}

	return fmt.Sprintf(" %s%s%s%s", keys, strings.Repeat(" ", padding), alert, refresh)
}

// renderHelp renders the help screen
func (m Model) renderHelp() string {
	help := `
attendx monitor

NAVIGATION:
  tab / shift+tab   Switch panels
  1 / 2 / 3         Jump to pending / history / conflicts
  j / k, ↑ / ↓      Scroll the active panel

ACTIONS:
  s                 Sync now (resolve conflicts, retry all, clean up)
  r                 Refresh
  ?                 Toggle help
  q                 Quit

Conflicts are resolved from the CLI:
  attendx conflicts resolve <record> --keep | --discard
`
	return lipgloss.NewStyle().Padding(1, 2).Render(help)
}

// wrapPanel wraps content in a titled panel, clipped to height and width
func (m Model) wrapPanel(title, content string, height int, panel Panel) string {
	style := panelStyle
	if m.ActivePanel == panel {
		style = activePanelStyle
	}

	titleStr := panelTitleStyle.Render(title)

	contentWidth := m.Width - 4 // border and padding
	lines := strings.Split(content, "\n")
	contentHeight := height - 3 // title and border
	if contentHeight < 1 {
		contentHeight = 1
	}

	for len(lines) < contentHeight {
		lines = append(lines, "")
	}
	if len(lines) > contentHeight {
		lines = lines[:contentHeight]
	}

	for i, line := range lines {
		if lipgloss.Width(line) > contentWidth {
			lines[i] = ansi.Truncate(line, contentWidth, "…")
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, titleStr, strings.Join(lines, "\n"))
	return style.Width(m.Width - 2).Render(inner)
}

// formatForceResult summarizes the last manual sync
func (m Model) formatForceResult(r models.ForceSyncResult) string {
	summary := fmt.Sprintf("sync now: %d synced, %d failed, %d duplicates, %d cleaned",
		r.Sync.Synced, r.Sync.Failed, r.Conflicts.Duplicates, r.Cleaned)
	if r.Success {
		return subtleStyle.Render(summary)
	}
	if len(r.Errors) > 0 {
		summary += ": " + r.Errors[0]
	}
	return errorTextStyle.Render(ansi.Truncate(summary, m.Width-1, "…"))
}

// formatHistoryEntry formats one attempt on a single line
func formatHistoryEntry(h models.SyncHistoryEntry) string {
	line := fmt.Sprintf("%s %s %s %s",
		timestampStyle.Render(h.AttemptedAt.Local().Format("15:04:05")),
		formatOutcome(h.Outcome),
		h.RecordID,
		subtleStyle.Render(h.EventID))
	if h.HTTPStatus != 0 {
		line += fmt.Sprintf(" HTTP %d", h.HTTPStatus)
	}
	if h.Error != "" {
		line += " " + errorTextStyle.Render(h.Error)
	}
	return line
}
