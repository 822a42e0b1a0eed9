package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/connectivity"
	"github.com/attendancex/attendx/internal/models"
	"github.com/attendancex/attendx/internal/offline"
	"github.com/attendancex/attendx/internal/output"
	"github.com/attendancex/attendx/internal/syncclient"
	"github.com/attendancex/attendx/internal/syncconfig"
	"github.com/attendancex/attendx/internal/workdir"
)

var (
	version string

	// Global flags
	dataDirFlag  string
	jsonOutput   bool
	forceOffline bool
	debugLog     bool

	settings *syncconfig.Settings
	logLevel = new(slog.LevelVar)
)

// SetVersion sets the version string
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

var rootCmd = &cobra.Command{
	Use:   "attendx",
	Short: "Offline attendance capture and sync",
	Long: `attendx - Capture attendance check-ins without a network and sync them to the attendance backend when connectivity returns.

Check-ins are stored in a local SQLite store under <dir>/.attendx and submitted at most once each.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// nameWithAliases returns "name, alias1, alias2" if aliases exist, else just "name"
func nameWithAliases(cmd *cobra.Command) string {
	if len(cmd.Aliases) > 0 {
		return cmd.Name() + ", " + strings.Join(cmd.Aliases, ", ")
	}
	return cmd.Name()
}

func init() {
	cobra.AddTemplateFunc("nameWithAliases", nameWithAliases)
	cobra.AddTemplateFunc("add", func(a, b int) int { return a + b })

	// Usage template that shows aliases inline
	usageTemplate := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad (nameWithAliases .) (add .NamePadding 8)}} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.AddGroup(
		&cobra.Group{ID: "capture", Title: "Capture Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "query", Title: "Query Commands:"},
		&cobra.Group{ID: "cache", Title: "Cache Commands:"},
		&cobra.Group{ID: "system", Title: "System Commands:"},
	)
	rootCmd.SetHelpCommandGroupID("system")
	rootCmd.SetCompletionCommandGroupID("system")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&dataDirFlag, "dir", "", "Data directory (default: $ATTENDX_DATA_DIR or the working directory)")
	pf.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	pf.BoolVar(&forceOffline, "offline", false, "Treat the backend as unreachable")
	pf.BoolVar(&debugLog, "debug", false, "Enable debug logging")
}

// loadSettings resolves configuration and installs the stderr logger
func loadSettings(cmd *cobra.Command, args []string) error {
	s, err := syncconfig.Load()
	if err != nil {
		return err
	}
	settings = s

	logLevel.Set(slog.LevelWarn)
	if debugLog || s.Debug {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	return nil
}

// getBaseDir returns the directory holding .attendx: the --dir flag, then
// the configured data dir, then the nearest store above the working directory.
func getBaseDir() string {
	if dataDirFlag != "" {
		return dataDirFlag
	}
	if settings != nil && settings.DataDir != "" {
		return settings.DataDir
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return workdir.ResolveBaseDir(dir)
}

// app bundles what a command needs to talk to the queue
type app struct {
	queue  *offline.Queue
	client *syncclient.Client
	prober *connectivity.Prober
	conn   connectivity.Observer
}

// Close releases the queue and its store
func (a *app) Close() error {
	return a.queue.Close()
}

// startProbing keeps connectivity current in the background. The returned
// func stops the prober and waits for it.
func (a *app) startProbing(ctx context.Context) func() {
	if a.prober == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.prober.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// queueConfig maps settings onto the queue config
func queueConfig(s *syncconfig.Settings) offline.Config {
	cfg := offline.DefaultConfig()
	cfg.SyncInterval = s.SyncInterval
	cfg.RequestTimeout = s.RequestTimeout
	cfg.MaxAutoAttempts = s.MaxAutoAttempts
	cfg.DuplicateWindow = s.DuplicateWindow
	cfg.RetentionDays = s.RetentionDays
	cfg.DeviceInfo = &models.DeviceInfo{
		DeviceID:  s.DeviceID,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		UserAgent: "attendx/" + version,
	}
	cfg.Logger = slog.Default()
	return cfg
}

// openApp opens the queue over the data directory. Connectivity is probed
// once before the queue subscribes, so read-only commands never trigger a
// background pass.
func openApp(ctx context.Context) *app {
	s := settings
	if s == nil {
		s = &syncconfig.Settings{}
	}
	client := syncclient.New(s.ServerURL, s.APIKey, s.DeviceID)

	a := &app{client: client}
	if forceOffline {
		a.conn = connectivity.NewStatic(false)
	} else {
		a.prober = connectivity.NewProber(connectivity.HealthCheckFunc(func(ctx context.Context) error {
			_, err := client.HealthCheck(ctx)
			return err
		}), s.ProbeInterval, s.RequestTimeout, slog.Default())
		a.prober.Probe(ctx)
		a.conn = a.prober
	}

	a.queue = offline.Open(getBaseDir(), client, a.conn, queueConfig(s))
	if !a.queue.Enabled() {
		slog.Debug("offline: queue disabled", "dir", getBaseDir(), "err", a.queue.DisabledReason())
	}
	return a
}

// reportedError marks an error already shown to the user
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// fail reports an error in the active output mode and returns it for RunE
func fail(code string, err error) error {
	if jsonOutput {
		output.JSONError(code, err.Error())
	} else {
		output.Error("%v", err)
	}
	return reportedError{err}
}
