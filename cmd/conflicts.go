package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/offline"
	"github.com/attendancex/attendx/internal/output"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List check-ins held back by a conflicting server record",
	Long: `Lists conflicts: local check-ins whose user already has a server-side
check-in for the same event more than the duplicate window apart.

With --check, pending check-ins are compared against the server first.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		if check, _ := cmd.Flags().GetBool("check"); check {
			res := a.queue.ResolveConflicts(cmd.Context())
			if !jsonOutput {
				fmt.Printf("Checked %d, duplicates %d\n", res.Checked, res.Duplicates)
				for _, e := range res.Errors {
					output.Warning("%s", e)
				}
			}
		}

		conflicts, err := a.queue.ListConflicts()
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(conflicts)
		}
		if len(conflicts) == 0 {
			fmt.Println("No conflicts")
			return nil
		}

		report := output.ConflictReport(conflicts)
		rendered, err := output.RenderMarkdown(report)
		if err != nil {
			rendered = report
		}
		fmt.Println(rendered)
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <record>",
	Short: "Keep or discard a conflicting check-in",
	Long: `--keep submits the local check-in on the next sync pass.
--discard deletes the local check-in; the server record stands.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetBool("keep")
		discard, _ := cmd.Flags().GetBool("discard")
		if keep == discard {
			return fail(output.ErrCodeInvalidInput, errors.New("exactly one of --keep or --discard is required"))
		}
		resolution := offline.Keep
		if discard {
			resolution = offline.Discard
		}

		a := openApp(cmd.Context())
		defer a.Close()

		err := a.queue.ResolveConflict(args[0], resolution)
		switch {
		case errors.Is(err, offline.ErrConflictNotFound):
			return fail(output.ErrCodeNotFound, err)
		case errors.Is(err, offline.ErrRecordBusy):
			return fail(output.ErrCodeConflict, err)
		case errors.Is(err, offline.ErrDisabled):
			return fail(output.ErrCodeDisabled, err)
		case err != nil:
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(map[string]interface{}{
				"record":     args[0],
				"resolution": resolution.String(),
			})
		}
		if keep {
			output.Success("KEPT %s, it will sync on the next pass", args[0])
		} else {
			output.Success("DISCARDED %s", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)

	conflictsCmd.Flags().Bool("check", false, "Compare pending check-ins against the server first")
	conflictsResolveCmd.Flags().Bool("keep", false, "Submit the local check-in anyway")
	conflictsResolveCmd.Flags().Bool("discard", false, "Delete the local check-in")
}
