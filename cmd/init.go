package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/attendancex/attendx/internal/db"
	"github.com/attendancex/attendx/internal/output"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize the local offline store",
	Long:    `Creates the .attendx directory and the SQLite store used for offline check-ins.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		if _, err := os.Stat(db.Path(baseDir)); err == nil {
			output.Warning(".attendx/ already exists")
			return nil
		}

		database, err := db.Initialize(baseDir)
		if err != nil {
			return fail(output.ErrCodeDatabaseError, fmt.Errorf("initialize store: %w", err))
		}
		defer database.Close()

		schemaVersion, _ := database.GetSchemaVersion()
		fmt.Printf("INITIALIZED %s (schema v%d)\n", filepath.Join(baseDir, ".attendx"), schemaVersion)
		fmt.Printf("Device: %s\n", settings.DeviceID)

		addToGitignore(filepath.Join(baseDir, ".gitignore"))
		return nil
	},
}

// addToGitignore appends .attendx/ to an existing .gitignore
func addToGitignore(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		return
	}
	if strings.Contains(string(content), ".attendx/") {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		f.WriteString("\n")
	}
	f.WriteString(".attendx/\n")
}

func init() {
	rootCmd.AddCommand(initCmd)
}
