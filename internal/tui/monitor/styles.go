package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/attendancex/attendx/internal/models"
)

var (
	// Base colors
	primaryColor   = lipgloss.Color("212")
	secondaryColor = lipgloss.Color("141")
	mutedColor     = lipgloss.Color("241")
	successColor   = lipgloss.Color("42")
	warningColor   = lipgloss.Color("214")
	errorColor     = lipgloss.Color("196")

	// Panel styles
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(primaryColor).
				Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	// Text styles
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	subtleStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle      = lipgloss.NewStyle().Foreground(mutedColor)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorTextStyle = lipgloss.NewStyle().Foreground(errorColor)
	spinnerStyle   = lipgloss.NewStyle().Foreground(secondaryColor)

	onlineBadge  = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	offlineBadge = lipgloss.NewStyle().Foreground(warningColor).Bold(true)

	conflictAlertStyle = lipgloss.NewStyle().
				Bold(true).
				Background(warningColor).
				Foreground(lipgloss.Color("0"))

	// Outcome styles
	outcomeStyles = map[models.SyncOutcome]lipgloss.Style{
		models.OutcomeSynced:    lipgloss.NewStyle().Foreground(successColor),
		models.OutcomeFailed:    lipgloss.NewStyle().Foreground(errorColor),
		models.OutcomeDuplicate: lipgloss.NewStyle().Foreground(secondaryColor),
		models.OutcomeConflict:  lipgloss.NewStyle().Foreground(warningColor),
	}
)

// formatOutcome renders a sync outcome badge with color
func formatOutcome(o models.SyncOutcome) string {
	label := "[" + string(o) + "]"
	style, ok := outcomeStyles[o]
	if !ok {
		return label
	}
	return style.Render(label)
}

// formatOnline renders the connectivity badge
func formatOnline(online bool) string {
	if online {
		return onlineBadge.Render("ONLINE")
	}
	return offlineBadge.Render("OFFLINE")
}
