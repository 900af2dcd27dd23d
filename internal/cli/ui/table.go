package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	columnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	oddRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0E0E0"))
)

// Table is a column-aligned listing.
type Table struct {
	Headers []string
	Rows    [][]string
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow appends a row. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}

func (t *Table) widths() []int {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	return widths
}

// Render lays the table out with two spaces between columns. Styling is
// applied only when styled is set.
func (t *Table) Render(styled bool) string {
	if len(t.Headers) == 0 {
		return ""
	}
	widths := t.widths()

	var sb strings.Builder
	writeRow := func(cells []string, style *lipgloss.Style) {
		var parts []string
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i < len(widths)-1 {
				cell = padRight(cell, widths[i])
			}
			parts = append(parts, cell)
		}
		line := strings.Join(parts, "  ")
		if styled && style != nil {
			line = style.Render(line)
		}
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString("\n")
	}

	writeRow(t.Headers, &columnStyle)
	for i, row := range t.Rows {
		if i%2 == 1 {
			writeRow(row, &oddRowStyle)
		} else {
			writeRow(row, nil)
		}
	}
	return sb.String()
}

// Fprint writes the table to w, styled when w is a terminal.
func (t *Table) Fprint(w io.Writer) error {
	_, err := fmt.Fprint(w, t.Render(Styled(w)))
	return err
}

// padRight pads s with spaces up to width display cells.
func padRight(s string, width int) string {
	n := lipgloss.Width(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
