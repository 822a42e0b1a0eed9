package output

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/attendancex/attendx/internal/models"
)

const (
	defaultMarkdownWidth = 80
	minMarkdownWidth     = 20
)

// TerminalWidth returns the current terminal width or a fallback when unavailable.
func TerminalWidth(fallback int) int {
	if fallback <= 0 {
		fallback = defaultMarkdownWidth
	}

	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}

	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}

	return fallback
}

// RenderMarkdown renders markdown using Glamour with terminal-aware wrapping.
func RenderMarkdown(text string) (string, error) {
	return RenderMarkdownWithWidth(text, TerminalWidth(defaultMarkdownWidth))
}

// RenderMarkdownWithWidth renders markdown using Glamour with explicit wrapping.
func RenderMarkdownWithWidth(text string, width int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if width < minMarkdownWidth {
		width = minMarkdownWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}

	rendered, err := renderer.Render(text)
	if err != nil {
		return "", err
	}

	return strings.TrimRight(rendered, "\n"), nil
}

// ConflictReport builds a markdown report of open conflicts for RenderMarkdown.
func ConflictReport(conflicts []models.SyncConflict) string {
	if len(conflicts) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Conflicts (%d)\n\n", len(conflicts))
	sb.WriteString("| Record | Event | User | Local | Server | Drift | State |\n")
	sb.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range conflicts {
		state := "open"
		if c.Resolution != "" {
			state = c.Resolution
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s | %s | %s | %s |\n",
			c.RecordID, c.EventID, c.UserID,
			c.LocalTimestamp.Local().Format("2006-01-02 15:04:05"),
			c.RemoteTimestamp.Local().Format("2006-01-02 15:04:05"),
			c.Drift().Round(time.Second), state)
	}
	sb.WriteString("\nResolve with `attendx conflicts resolve <record> --keep` or `--discard`.\n")
	return sb.String()
}
