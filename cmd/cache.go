package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/dateparse"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	Short:   "Manage cached event data for offline validation",
	GroupID: "cache",
}

var cacheEventCmd = &cobra.Command{
	Use:   "event <file.json|->",
	Short: "Cache one event or a list of events from JSON",
	Long: `Reads an event object, or an array of them, in the server's JSON shape:
{"id", "title", "startTime", "endTime", "qrToken", "participants"}.
The event's QR token is cached too, expiring at the event end.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return fail(output.ErrCodeInvalidInput, err)
		}
		events, err := parseEvents(data)
		if err != nil {
			return fail(output.ErrCodeInvalidInput, err)
		}

		a := openApp(cmd.Context())
		defer a.Close()
		if !a.queue.Enabled() {
			return fail(output.ErrCodeDisabled, fmt.Errorf("offline store unavailable: %v", a.queue.DisabledReason()))
		}

		for i := range events {
			if err := a.queue.CacheEvent(&events[i]); err != nil {
				return fail(output.ErrCodeDatabaseError, err)
			}
		}

		if jsonOutput {
			return output.JSON(map[string]int{"cached": len(events)})
		}
		for _, e := range events {
			fmt.Printf("CACHED %s %q\n", e.ID, e.Title)
		}
		return nil
	},
}

var cacheQRCmd = &cobra.Command{
	Use:   "qr <event> <token>",
	Short: "Cache a QR token for an event",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var expires *time.Time
		if s, _ := cmd.Flags().GetString("expires"); s != "" {
			t, err := parseExpires(s, time.Now())
			if err != nil {
				return fail(output.ErrCodeInvalidInput, err)
			}
			expires = &t
		}

		a := openApp(cmd.Context())
		defer a.Close()
		if !a.queue.Enabled() {
			return fail(output.ErrCodeDisabled, fmt.Errorf("offline store unavailable: %v", a.queue.DisabledReason()))
		}

		if err := a.queue.CacheQRToken(args[0], args[1], expires); err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}
		if jsonOutput {
			return output.JSON(models.CachedQRToken{Token: args[1], EventID: args[0], ExpiresAt: expires})
		}
		if expires != nil {
			output.Success("CACHED token for %s (expires %s)", args[0], expires.Local().Format(time.RFC3339))
		} else {
			output.Success("CACHED token for %s", args[0])
		}
		return nil
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached events",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		events, err := a.queue.ListCachedEvents()
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}
		if jsonOutput {
			return output.JSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No cached events")
			return nil
		}
		for _, e := range events {
			window := "no time window"
			if !e.StartTime.IsZero() && !e.EndTime.IsZero() {
				window = e.StartTime.Local().Format("01-02 15:04") + " - " + e.EndTime.Local().Format("01-02 15:04")
			}
			participants := "open"
			if len(e.Participants) > 0 {
				participants = fmt.Sprintf("%d participants", len(e.Participants))
			}
			fmt.Printf("%-20s %-30s %s  %s  updated %s\n", e.ID, e.Title, window, participants, output.FormatTimeAgo(e.LastUpdated))
		}
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <event>",
	Short: "Show one cached event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := openApp(cmd.Context())
		defer a.Close()

		e, err := a.queue.GetCachedEvent(args[0])
		if err != nil {
			return fail(output.ErrCodeDatabaseError, err)
		}
		if e == nil {
			return fail(output.ErrCodeNotFound, fmt.Errorf("event %s is not cached", args[0]))
		}
		if jsonOutput {
			return output.JSON(e)
		}

		fmt.Printf("%s %s\n", e.ID, e.Title)
		if !e.StartTime.IsZero() {
			fmt.Printf("Starts: %s\n", e.StartTime.Local().Format(time.RFC3339))
		}
		if !e.EndTime.IsZero() {
			fmt.Printf("Ends: %s\n", e.EndTime.Local().Format(time.RFC3339))
		}
		if e.QRToken != "" {
			fmt.Printf("QR token: %s\n", e.QRToken)
		}
		if len(e.Participants) == 0 {
			fmt.Println("Participants: open to everyone")
		} else {
			fmt.Print(output.SectionHeader(fmt.Sprintf("Participants (%d)", len(e.Participants))))
			fmt.Println(strings.Join(output.BulletList(e.Participants, 2), "\n"))
		}
		fmt.Printf("Updated %s\n", output.FormatTimeAgo(e.LastUpdated))
		return nil
	},
}

// readInput reads a file, or stdin for "-"
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// parseEvents accepts a single event object or an array of them
func parseEvents(data []byte) ([]models.CachedEvent, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty event data")
	}

	var events []models.CachedEvent
	if data[0] == '[' {
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parse events: %w", err)
		}
	} else {
		var e models.CachedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("parse event: %w", err)
		}
		events = append(events, e)
	}

	for i := range events {
		if strings.TrimSpace(events[i].ID) == "" {
			return nil, fmt.Errorf("event %d has no id", i)
		}
		if !events[i].EndTime.IsZero() && events[i].EndTime.Before(events[i].StartTime) {
			return nil, fmt.Errorf("event %s ends before it starts", events[i].ID)
		}
	}
	return events, nil
}

// parseExpires accepts an absolute or relative time that lies after now
func parseExpires(s string, now time.Time) (time.Time, error) {
	t, err := dateparse.ParseTimeFrom(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --expires: %w", err)
	}
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("invalid --expires %q: must be in the future", s)
	}
	return t, nil
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheEventCmd)
	cacheCmd.AddCommand(cacheQRCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheShowCmd)

	cacheQRCmd.Flags().String("expires", "", "Expiry: RFC3339, HH:MM, tomorrow or an offset like +2h")
}
