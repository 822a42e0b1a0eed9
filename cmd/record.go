package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/attendancex/attendx/internal/dateparse"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/offline"
	"github.com/attendancex/attendx/internal/output"
)

// methodValue is a pflag.Value restricted to the known check-in methods
type methodValue struct {
	method models.Method
}

var _ pflag.Value = (*methodValue)(nil)

func (m *methodValue) String() string { return string(m.method) }

// Set parses a method name. An empty value leaves the method to be
// inferred from the other flags.
func (m *methodValue) Set(s string) error {
	v := models.Method(strings.ToLower(strings.TrimSpace(s)))
	if v != "" && !v.IsValid() {
		names := make([]string, len(models.Methods))
		for i, known := range models.Methods {
			names[i] = string(known)
		}
		return fmt.Errorf("must be one of %s", strings.Join(names, "|"))
	}
	m.method = v
	return nil
}

func (m *methodValue) Type() string { return "method" }

var recordMethod methodValue

var recordCmd = &cobra.Command{
	Use:     "record [event] [user]",
	Aliases: []string{"checkin"},
	Short:   "Record a check-in (works offline)",
	Long: `Stores a check-in in the local queue. When the backend is reachable a sync
pass starts immediately; otherwise the record waits for the next pass.

The method defaults to qr when --qr is given, geolocation when --lat/--lng
are given, and manual otherwise.`,
	Example: `  attendx record event-42 user-7 --qr 3f9c...
  attendx record event-42 user-7 --lat 40.4433 --lng -79.9436 --accuracy 12
  attendx record --interactive`,
	GroupID: "capture",
	Args:    cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		interactive, _ := cmd.Flags().GetBool("interactive")
		qr, _ := cmd.Flags().GetString("qr")

		var eventID, userID string
		if len(args) > 0 {
			eventID = args[0]
		}
		if len(args) > 1 {
			userID = args[1]
		}

		method := recordMethod.method
		if interactive {
			if err := runRecordForm(&eventID, &userID, &method, &qr); err != nil {
				return fail(output.ErrCodeInvalidInput, err)
			}
		}
		if eventID == "" || userID == "" {
			return fail(output.ErrCodeInvalidInput, errors.New("event and user are required (or use --interactive)"))
		}

		extra := offline.Extra{QRCodeData: qr}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			acc, _ := cmd.Flags().GetFloat64("accuracy")
			extra.Location = &models.Location{Latitude: lat, Longitude: lng, Accuracy: acc}
		}
		if at, _ := cmd.Flags().GetString("at"); at != "" {
			ts, err := dateparse.ParseTime(at)
			if err != nil {
				return fail(output.ErrCodeInvalidInput, fmt.Errorf("invalid --at: %w", err))
			}
			extra.Timestamp = ts
		}
		if method == "" {
			method = inferMethod(extra)
		}

		a := openApp(cmd.Context())
		defer a.Close()

		strict, _ := cmd.Flags().GetBool("strict")
		if problems := validateCheckIn(a.queue, eventID, userID, method, extra); len(problems) > 0 {
			if strict {
				return fail(output.ErrCodeInvalidInput, errors.New(strings.Join(problems, "; ")))
			}
			if !jsonOutput {
				for _, p := range problems {
					output.Warning("%s", p)
				}
			}
		}

		id, err := a.queue.RecordOffline(eventID, userID, method, extra)
		if err != nil {
			if errors.Is(err, offline.ErrDisabled) {
				return fail(output.ErrCodeDisabled, fmt.Errorf("%w: %v", err, a.queue.DisabledReason()))
			}
			if errors.Is(err, offline.ErrInvalidRecord) {
				return fail(output.ErrCodeInvalidInput, err)
			}
			return fail(output.ErrCodeDatabaseError, err)
		}

		if jsonOutput {
			return output.JSON(map[string]interface{}{
				"id":     id,
				"online": a.conn.Online(),
			})
		}
		output.Success("RECORDED %s", id)
		if !a.conn.Online() {
			fmt.Println("Offline: the check-in will sync when the backend is reachable")
		}
		return nil
	},
}

// inferMethod picks a method from the payload when none was given
func inferMethod(extra offline.Extra) models.Method {
	switch {
	case extra.QRCodeData != "":
		return models.MethodQR
	case extra.Location != nil:
		return models.MethodGeolocation
	default:
		return models.MethodManual
	}
}

// validateCheckIn checks the check-in against cached event data. Problems
// are advisory; the store still accepts the record.
func validateCheckIn(q *offline.Queue, eventID, userID string, method models.Method, extra offline.Extra) []string {
	var problems []string

	at := extra.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	v, err := q.ValidateCheckInOffline(eventID, userID, at)
	if err == nil && !v.Valid && v.Reason != models.ReasonEventNotCached {
		problems = append(problems, fmt.Sprintf("check-in not valid for %s: %s", eventID, v.Reason))
	}

	if method == models.MethodQR && extra.QRCodeData != "" {
		qv, err := q.ValidateQRTokenOffline(extra.QRCodeData)
		switch {
		case err != nil || qv.Reason == models.ReasonNotFound:
			// Unknown tokens are left to the server
		case !qv.Valid:
			problems = append(problems, fmt.Sprintf("QR code %s", qv.Reason))
		case qv.EventID != eventID:
			problems = append(problems, fmt.Sprintf("QR code belongs to %s, not %s", qv.EventID, eventID))
		}
	}
	return problems
}

// runRecordForm collects the check-in fields interactively
func runRecordForm(eventID, userID *string, method *models.Method, qr *string) error {
	required := func(name string) func(string) error {
		return func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s is required", name)
			}
			return nil
		}
	}

	options := make([]huh.Option[string], len(models.Methods))
	for i, m := range models.Methods {
		options[i] = huh.NewOption(string(m), string(m))
	}
	selected := string(*method)
	if selected == "" {
		selected = string(models.MethodManual)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Event").Value(eventID).Validate(required("event")),
			huh.NewInput().Title("User").Value(userID).Validate(required("user")),
			huh.NewSelect[string]().Title("Method").Options(options...).Value(&selected),
		),
		huh.NewGroup(
			huh.NewInput().Title("QR code").Value(qr),
		).WithHideFunc(func() bool { return selected != string(models.MethodQR) }),
	)
	if err := form.Run(); err != nil {
		return err
	}
	*method = models.Method(selected)
	return nil
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().Var(&recordMethod, "method", "Check-in method: qr|manual|geolocation")
	recordCmd.Flags().String("qr", "", "Scanned QR code payload")
	recordCmd.Flags().Float64("lat", 0, "Latitude")
	recordCmd.Flags().Float64("lng", 0, "Longitude")
	recordCmd.Flags().Float64("accuracy", 0, "Location accuracy in meters")
	recordCmd.Flags().String("at", "", "Capture time: RFC3339, HH:MM or an offset like -15m (default now)")
	recordCmd.Flags().Bool("strict", false, "Refuse check-ins that fail offline validation")
	recordCmd.Flags().BoolP("interactive", "i", false, "Prompt for the check-in fields")
}
