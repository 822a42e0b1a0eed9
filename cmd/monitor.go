package cmd

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/output"
	"github.com/attendancex/attendx/internal/tui/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live TUI dashboard of the sync queue",
	Long: `Launch a live-updating TUI dashboard showing:
- Status: connectivity, pending, failed and conflict counts
- Pending: check-ins waiting to sync
- History: recent sync attempts
- Conflicts: check-ins held back for review

Auto-sync runs while the dashboard is open.

Key bindings:
  Tab/Shift+Tab  Switch panels
  1/2/3          Jump to panel
  j/k            Scroll
  s              Sync now
  r              Force refresh
  ?              Toggle help
  q              Quit`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()
		if !a.queue.Enabled() {
			return fail(output.ErrCodeDisabled, fmt.Errorf("offline store unavailable: %v", a.queue.DisabledReason()))
		}

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		// Log lines would tear the alt screen
		if !debugLog {
			logLevel.Set(slog.LevelError + 4)
		}

		stopProbing := a.startProbing(cmd.Context())
		defer stopProbing()
		a.queue.StartAutoSync(0)
		defer a.queue.StopAutoSync()

		model := monitor.NewModel(a.queue, interval, a.queue.Config().MaxAutoAttempts)
		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running monitor: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval")
}
