package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/output"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show sync status: pending, failed, conflicts, connectivity",
	GroupID: "query",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		st, err := a.queue.GetSyncStatus()
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(st)
		}

		fmt.Printf("%s  %s\n", output.OnlineBadge(st.Online), output.StatusLine(st))
		if !st.Enabled {
			fmt.Printf("  %v\n", a.queue.DisabledReason())
			return nil
		}
		fmt.Printf("Records: %d total, %d pending, %d failed\n", st.TotalRecords, st.PendingRecords, st.FailedRecords)
		fmt.Printf("Last attempt: %s\n", output.FormatTimePtr(st.LastSyncAttempt))
		if st.OpenConflicts > 0 {
			output.Warning("%d open conflicts: run 'attendx conflicts'", st.OpenConflicts)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show detailed statistics of the local store",
	GroupID: "query",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		st, err := a.queue.GetOfflineStats()
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(st)
		}

		fmt.Printf("%s\n", output.OnlineBadge(st.Online))
		fmt.Print(output.SectionHeader("records"))
		fmt.Printf("  Total:      %d\n", st.TotalRecords)
		fmt.Printf("  Pending:    %d\n", st.PendingRecords)
		fmt.Printf("  Failed:     %d\n", st.FailedRecords)
		fmt.Printf("  Stalled:    %d (at %d attempts)\n", st.StalledRecords, a.queue.Config().MaxAutoAttempts)
		fmt.Printf("  Synced:     %d\n", st.SyncedRecords)
		fmt.Printf("  Duplicates: %d\n", st.DuplicateRecords)
		fmt.Printf("  Conflicts:  %d\n", st.OpenConflicts)
		if st.OldestPending != nil {
			fmt.Printf("  Oldest pending: %s\n", output.FormatTimeAgo(*st.OldestPending))
		}
		fmt.Printf("  Last attempt:   %s\n", output.FormatTimePtr(st.LastSyncAttempt))

		if len(st.PendingByEvent) > 0 {
			fmt.Print(output.SectionHeader("pending by event"))
			events := make([]string, 0, len(st.PendingByEvent))
			for id := range st.PendingByEvent {
				events = append(events, id)
			}
			sort.Strings(events)
			for _, id := range events {
				fmt.Printf("  %-24s %d\n", id, st.PendingByEvent[id])
			}
		}

		fmt.Print(output.SectionHeader("cache"))
		fmt.Printf("  Events: %d\n", st.CachedEvents)
		fmt.Printf("  QR tokens: %d\n", st.CachedTokens)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
}
