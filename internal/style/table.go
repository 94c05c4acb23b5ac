// Package style renders the fixed-width tables used by agent/team/session
// listings: agent target, role, and classified state columns. State badges
// (internal/cli's stateBadge) carry emoji, so column padding is
// width-aware rather than byte-length-aware throughout this file.
package style

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column with name and width.
type Column struct {
	Name  string
	Width int
	Align Alignment
	Style lipgloss.Style
}

// Alignment specifies column text alignment.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Table renders a plain/lipgloss-styled fixed-width table.
type Table struct {
	columns     []Column
	rows        [][]string
	headerSep   bool
	indent      string
	headerStyle lipgloss.Style
}

// NewTable creates a new table with the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:     columns,
		headerSep:   true,
		indent:      "  ",
		headerStyle: Bold,
	}
}

// SetIndent sets the left indent for the table.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator enables/disables the header separator line.
func (t *Table) SetHeaderSeparator(enabled bool) *Table {
	t.headerSep = enabled
	return t
}

// AddRow adds a row of values, padding short rows with empty cells.
func (t *Table) AddRow(values ...string) *Table {
	for len(values) < len(t.columns) {
		values = append(values, "")
	}
	t.rows = append(t.rows, values)
	return t
}

func (t *Table) totalWidth() int {
	total := 0
	for i, col := range t.columns {
		total += col.Width
		if i < len(t.columns)-1 {
			total++
		}
	}
	return total
}

// Render returns the formatted table string.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(t.indent)
	for i, col := range t.columns {
		sb.WriteString(t.cell(t.headerStyle.Render(col.Name), col.Width, col.Align))
		if i < len(t.columns)-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("\n")

	if t.headerSep {
		sb.WriteString(t.indent)
		sb.WriteString(Dim.Render(strings.Repeat("─", t.totalWidth())))
		sb.WriteString("\n")
	}

	for _, row := range t.rows {
		sb.WriteString(t.indent)
		for i, col := range t.columns {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			val = truncateVisible(val, col.Width)
			if col.Style.Value() != "" {
				val = col.Style.Render(val)
			}
			sb.WriteString(t.cell(val, col.Width, col.Align))
			if i < len(t.columns)-1 {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// truncateVisible shortens text (which may carry ANSI styling already) to
// at most width display columns, per lipgloss.Width's rune-width-aware
// measurement — a plain byte-length cutoff would split an emoji or a wide
// East-Asian rune mid-sequence.
func truncateVisible(text string, width int) string {
	if lipgloss.Width(text) <= width || width <= 3 {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && lipgloss.Width(string(runes)) > width-3 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}

// cell pads text to width display columns, accounting for the difference
// between its rune/ANSI width and its byte length.
func (t *Table) cell(text string, width int, align Alignment) string {
	visible := lipgloss.Width(text)
	if visible >= width {
		return text
	}
	padding := width - visible

	switch align {
	case AlignRight:
		return strings.Repeat(" ", padding) + text
	case AlignCenter:
		left := padding / 2
		right := padding - left
		return strings.Repeat(" ", left) + text + strings.Repeat(" ", right)
	default:
		return text + strings.Repeat(" ", padding)
	}
}
