package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/attendancex/attendx/internal/models"
)

// Panel represents which panel is active
type Panel int

const (
	PanelPending Panel = iota
	PanelHistory
	PanelConflicts
)

const panelCount = 3

// Model is the main Bubble Tea model for the sync monitor TUI
type Model struct {
	Source Source

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status    models.SyncStatus
	Stats     models.OfflineStats
	Pending   []models.AttendanceRecord
	History   []models.SyncHistoryEntry
	Conflicts []models.SyncConflict

	// UI state
	ActivePanel  Panel
	ScrollOffset map[Panel]int
	ShowHelp     bool
	LastRefresh  time.Time
	Err          error // Last error, if any

	// Manual sync state
	Syncing   bool
	Spinner   spinner.Model
	LastForce *models.ForceSyncResult

	// Configuration
	RefreshInterval time.Duration
	MaxAttempts     int
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 15

// TickMsg triggers a data refresh
type TickMsg time.Time

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Status    models.SyncStatus
	Stats     models.OfflineStats
	Pending   []models.AttendanceRecord
	History   []models.SyncHistoryEntry
	Conflicts []models.SyncConflict
	Err       error
	Timestamp time.Time
}

// ForceSyncDoneMsg carries the result of a manual sync
type ForceSyncDoneMsg struct {
	Result models.ForceSyncResult
}

// NewModel creates a new monitor model
func NewModel(src Source, interval time.Duration, maxAttempts int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		Source:          src,
		RefreshInterval: interval,
		MaxAttempts:     maxAttempts,
		ScrollOffset:    make(map[Panel]int),
		ActivePanel:     PanelPending,
		Spinner:         sp,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case RefreshDataMsg:
		m.Status = msg.Status
		m.Stats = msg.Stats
		m.Pending = msg.Pending
		m.History = msg.History
		m.Conflicts = msg.Conflicts
		m.Err = msg.Err
		m.LastRefresh = msg.Timestamp
		m.clampScroll()
		return m, nil

	case ForceSyncDoneMsg:
		m.Syncing = false
		res := msg.Result
		m.LastForce = &res
		return m, m.fetchData()

	case spinner.TickMsg:
		if !m.Syncing {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		m.ActivePanel = (m.ActivePanel + 1) % panelCount
		return m, nil

	case "shift+tab":
		m.ActivePanel = (m.ActivePanel + panelCount - 1) % panelCount
		return m, nil

	case "1":
		m.ActivePanel = PanelPending
		return m, nil

	case "2":
		m.ActivePanel = PanelHistory
		return m, nil

	case "3":
		m.ActivePanel = PanelConflicts
		return m, nil

	case "j", "down":
		if m.ScrollOffset[m.ActivePanel] < m.panelLen(m.ActivePanel)-1 {
			m.ScrollOffset[m.ActivePanel]++
		}
		return m, nil

	case "k", "up":
		if m.ScrollOffset[m.ActivePanel] > 0 {
			m.ScrollOffset[m.ActivePanel]--
		}
		return m, nil

	case "r":
		return m, m.fetchData()

	case "s":
		if m.Syncing || !m.Status.Enabled {
			return m, nil
		}
		m.Syncing = true
		return m, tea.Batch(m.Spinner.Tick, m.forceSync())

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// panelLen returns the number of rows in a panel
func (m Model) panelLen(p Panel) int {
	switch p {
	case PanelPending:
		return len(m.Pending)
	case PanelHistory:
		return len(m.History)
	case PanelConflicts:
		return len(m.Conflicts)
	}
	return 0
}

// clampScroll keeps offsets inside the refreshed data
func (m *Model) clampScroll() {
	for p := Panel(0); p < panelCount; p++ {
		limit := m.panelLen(p) - 1
		if limit < 0 {
			limit = 0
		}
		if m.ScrollOffset[p] > limit {
			m.ScrollOffset[p] = limit
		}
	}
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that fetches all data and sends a RefreshDataMsg
func (m Model) fetchData() tea.Cmd {
	src := m.Source
	return func() tea.Msg {
		return FetchData(src)
	}
}

// forceSync runs a manual sync off the UI goroutine
func (m Model) forceSync() tea.Cmd {
	src := m.Source
	return func() tea.Msg {
		return ForceSyncDoneMsg{Result: src.ForceSyncAll(context.Background())}
	}
}
