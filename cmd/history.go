package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/output"
)

var historyCmd = &cobra.Command{
	Use:     "history [record]",
	Short:   "Show recent sync attempts",
	Long:    `Shows the append-only sync attempt log, or every attempt for one record.`,
	GroupID: "query",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		limit, _ := cmd.Flags().GetInt("limit")

		var entries []models.SyncHistoryEntry
		var err error
		if len(args) == 1 {
			entries, err = a.queue.GetRecordHistory(args[0])
		} else {
			entries, err = a.queue.GetSyncHistory(limit)
		}
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No sync attempts logged")
			return nil
		}

		for _, e := range entries {
			line := fmt.Sprintf("%s  %-9s  %s  %s",
				e.AttemptedAt.Local().Format("2006-01-02 15:04:05"), e.Outcome, e.RecordID, e.EventID)
			if e.HTTPStatus != 0 {
				line += fmt.Sprintf("  HTTP %d", e.HTTPStatus)
			}
			if e.Error != "" {
				line += "  " + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Number of attempts to show")
}
