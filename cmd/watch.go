package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/output"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the background sync loop until interrupted",
	Long: `Probes the backend and runs automatic sync passes on a timer and on every
offline to online transition. Stops on SIGINT or SIGTERM.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !debugLog && !settings.Debug {
			logLevel.Set(slog.LevelInfo)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := openApp(ctx)
		defer a.Close()
		if !a.queue.Enabled() {
			return fail(output.ErrCodeDisabled, fmt.Errorf("offline store unavailable: %v", a.queue.DisabledReason()))
		}

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = a.queue.Config().SyncInterval
		}

		stopProbing := a.startProbing(ctx)

		a.queue.StartAutoSync(interval)
		slog.Info("watch: started", "dir", getBaseDir(), "interval", interval, "online", a.conn.Online())

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				a.queue.StopAutoSync()
				stopProbing()
				st, _ := a.queue.GetSyncStatus()
				slog.Info("watch: stopped", "pending", st.PendingRecords, "failed", st.FailedRecords)
				return nil
			case <-ticker.C:
				if st, err := a.queue.GetSyncStatus(); err == nil && st.PendingRecords > 0 {
					slog.Info("watch: queue", "pending", st.PendingRecords, "failed", st.FailedRecords, "conflicts", st.OpenConflicts)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 0, "Auto-sync interval (default: configured sync interval)")
}
