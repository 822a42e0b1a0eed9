package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/output"
)

var pendingCmd = &cobra.Command{
	Use:     "pending",
	Aliases: []string{"ls"},
	Short:   "List check-ins not yet confirmed by the server",
	GroupID: "query",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		var (
			records []models.AttendanceRecord
			err     error
		)
		if eventID, _ := cmd.Flags().GetString("event"); eventID != "" {
			records, err = a.queue.GetPendingForEvent(eventID)
		} else {
			records, err = a.queue.GetPendingAttendances()
		}
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No pending check-ins")
			return nil
		}

		maxAttempts := a.queue.Config().MaxAutoAttempts
		long, _ := cmd.Flags().GetBool("long")
		for i := range records {
			if long {
				history, _ := a.queue.GetRecordHistory(records[i].ID)
				fmt.Println(output.FormatRecordLong(&records[i], history, maxAttempts))
				continue
			}
			fmt.Println(output.FormatRecordShort(&records[i], maxAttempts))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <record>",
	Short:   "Show one check-in with its sync history",
	GroupID: "query",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		rec, err := a.queue.GetRecord(args[0])
		if err != nil {
			return fail(output.ErrCodeNotFound, err)
		}
		if rec == nil {
			return fail(output.ErrCodeDisabled, fmt.Errorf("offline store unavailable"))
		}
		history, err := a.queue.GetRecordHistory(rec.ID)
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(map[string]interface{}{
				"record":  rec,
				"history": history,
			})
		}
		fmt.Print(output.FormatRecordLong(rec, history, a.queue.Config().MaxAutoAttempts))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(showCmd)

	pendingCmd.Flags().BoolP("long", "l", false, "Show every field and the attempt history")
	pendingCmd.Flags().String("event", "", "Only show check-ins for this event")
}
