package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/output"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync now: resolve duplicates, retry every pending check-in, clean up",
	Long: `Runs a forced sync: duplicate detection against the server, one attempt for
every pending check-in (including those past the automatic retry ceiling),
and removal of synced check-ins older than the retention period.

Check-ins with an open conflict are held back until resolved with
'attendx conflicts resolve'.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		if !a.queue.Enabled() {
			return fail(output.ErrCodeDisabled, fmt.Errorf("offline store unavailable: %v", a.queue.DisabledReason()))
		}
		if !a.conn.Online() && !jsonOutput {
			output.Warning("backend unreachable, attempts will fail")
		}

		res := a.queue.ForceSyncAll(cmd.Context())

		if jsonOutput {
			if err := output.JSON(res); err != nil {
				return err
			}
			if !res.Success {
				return reportedError{errors.New("sync incomplete")}
			}
			return nil
		}

		fmt.Printf("Checked %d, duplicates %d, new conflicts %d\n",
			res.Conflicts.Checked, res.Conflicts.Duplicates, len(res.Conflicts.Conflicts))
		fmt.Printf("Synced %d, failed %d, cleaned %d\n", res.Sync.Synced, res.Sync.Failed, res.Cleaned)

		if len(res.Conflicts.Conflicts) > 0 {
			output.Warning("%d check-ins need review: run 'attendx conflicts'", len(res.Conflicts.Conflicts))
		}
		if !res.Success {
			fmt.Print(output.SectionHeader("errors"))
			fmt.Println(strings.Join(output.BulletList(res.Errors, 2), "\n"))
			return fail(output.ErrCodeSyncFailed, fmt.Errorf("%d errors during sync", len(res.Errors)))
		}
		output.Success("SYNC COMPLETE")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
