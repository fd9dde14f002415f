package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Row is one key/value line of a table.
type Row struct {
	Key   string
	Value string
	Warn  bool
}

// RenderTable lays rows out as aligned key/value pairs.
func RenderTable(rows []Row) string {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r.Key); w > width {
			width = w
		}
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(keyStyle.Width(width + 2).Render(r.Key))
		if r.Warn {
			b.WriteString(warnStyle.Render(r.Value))
		} else {
			b.WriteString(valueStyle.Render(r.Value))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// OK renders msg in the success color.
func OK(msg string) string {
	return okStyle.Render(msg)
}
