package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/output"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old synced check-ins and expired cache entries",
	Long: `Deletes synced check-ins captured more than --days ago (default: the
configured retention). Pending check-ins are never deleted.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		days := a.queue.Config().RetentionDays
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}

		result := map[string]int{}
		n, err := a.queue.CleanupSynced(days)
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}
		result["records"] = n

		if tokens, _ := cmd.Flags().GetBool("tokens"); tokens {
			n, err := a.queue.PruneExpiredTokens()
			if err != nil {
				return fail(output.ErrCodeDatabaseError, err)
			}
			result["tokens"] = n
		}
		if eventDays, _ := cmd.Flags().GetInt("events"); eventDays > 0 {
			n, err := a.queue.PruneStaleEvents(eventDays)
			if err != nil {
				return fail(output.ErrCodeDatabaseError, err)
			}
			result["events"] = n
		}

		remaining, err := a.queue.CountRecords()
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}
		result["remaining"] = remaining

		if jsonOutput {
			return output.JSON(result)
		}
		fmt.Printf("Removed %d synced check-ins older than %d days, %d kept\n", result["records"], days, remaining)
		if n, ok := result["tokens"]; ok {
			fmt.Printf("Removed %d expired QR tokens\n", n)
		}
		if n, ok := result["events"]; ok {
			fmt.Printf("Removed %d stale cached events\n", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().Int("days", 0, "Retention in days (default: configured retention)")
	cleanupCmd.Flags().Bool("tokens", false, "Also prune expired QR tokens")
	cleanupCmd.Flags().Int("events", 0, "Also prune cached events not refreshed in this many days")
}
