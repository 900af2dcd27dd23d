// Package ui renders status lines, tables and prompts for the opsdeck CLI.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00BFFF"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// Status receives status lines. Command output goes to the command's own
// writer so that it can be piped.
var Status io.Writer = os.Stderr

// Styled reports whether w is a terminal that should receive colors.
func Styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func render(w io.Writer, style lipgloss.Style, s string) string {
	if !Styled(w) {
		return s
	}
	return style.Render(s)
}

// Error prints an error status line.
func Error(message string) {
	fmt.Fprintln(Status, render(Status, errorStyle, "✗ "+message))
}

// Success prints a success status line.
func Success(message string) {
	fmt.Fprintln(Status, render(Status, successStyle, "✓ "+message))
}

// Warning prints a warning status line.
func Warning(message string) {
	fmt.Fprintln(Status, render(Status, warningStyle, "⚠ "+message))
}

// Info prints an informational status line.
func Info(message string) {
	fmt.Fprintln(Status, render(Status, infoStyle, "ℹ "+message))
}

// Header prints a section header to w.
func Header(w io.Writer, message string) {
	fmt.Fprintln(w, render(w, headerStyle, message))
}

// Confirm asks a yes/no question on out and reads the answer from in. An
// empty answer or a read error selects the default.
func Confirm(in io.Reader, out io.Writer, message string, defaultYes bool) bool {
	choices := "y/N"
	if defaultYes {
		choices = "Y/n"
	}
	fmt.Fprint(out, render(out, promptStyle, fmt.Sprintf("%s [%s]: ", message, choices)))

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		return defaultYes
	}
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return defaultYes
	}
	return input == "y" || input == "yes"
}
