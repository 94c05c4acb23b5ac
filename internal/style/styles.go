package style

import "github.com/charmbracelet/lipgloss"

// Bold and Dim are the two text styles Table needs for its header and
// separator line. Kept minimal rather than a full palette since Table is
// this package's only consumer.
var (
	Bold = lipgloss.NewStyle().Bold(true)
	Dim  = lipgloss.NewStyle().Faint(true)
)
