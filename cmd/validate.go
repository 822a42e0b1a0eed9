package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/dateparse"
	"github.com/attendancex/attendx/internal/output"
)

var errValidationFailed = errors.New("validation failed")

var validateQRCmd = &cobra.Command{
	Use:     "validate-qr <token>",
	Short:   "Check a QR code against the cached tokens",
	GroupID: "cache",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		v, err := a.queue.ValidateQRTokenOffline(args[0])
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			if err := output.JSON(v); err != nil {
				return err
			}
		} else if v.Valid {
			output.Success("VALID for %s", v.EventID)
		} else {
			msg := v.Reason
			if v.EventID != "" {
				msg += " (" + v.EventID + ")"
			}
			output.Error("INVALID: %s", msg)
		}
		if !v.Valid {
			return reportedError{errValidationFailed}
		}
		return nil
	},
}

var validateCheckInCmd = &cobra.Command{
	Use:     "validate-checkin <event> <user>",
	Short:   "Check a check-in against the cached event window and participants",
	GroupID: "cache",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at := time.Now()
		if s, _ := cmd.Flags().GetString("at"); s != "" {
			t, err := dateparse.ParseTime(s)
			if err != nil {
				return fail(output.ErrCodeInvalidInput, fmt.Errorf("invalid --at: %w", err))
			}
			at = t
		}

		a := openApp(cmd.Context())
		defer a.Close()

		v, err := a.queue.ValidateCheckInOffline(args[0], args[1], at)
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			if err := output.JSON(v); err != nil {
				return err
			}
		} else if v.Valid {
			output.Success("VALID")
		} else {
			output.Error("INVALID: %s", v.Reason)
		}
		if !v.Valid {
			return reportedError{errValidationFailed}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateQRCmd)
	rootCmd.AddCommand(validateCheckInCmd)

	validateCheckInCmd.Flags().String("at", "", "Check-in time: RFC3339, HH:MM or an offset like -15m (default now)")
}
