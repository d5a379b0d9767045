package main

import "github.com/charmbracelet/lipgloss"

// Status glyphs convey meaning without relying on color alone.
const (
	glyphOK   = "✓"
	glyphFail = "✗"
	glyphWarn = "⚠"
	glyphErr  = "!"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	failStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)

	classStyles = map[string]lipgloss.Style{
		"front":  lipgloss.NewStyle().Bold(true).Foreground(colorBlue),
		"normal": lipgloss.NewStyle().Foreground(colorDim),
		"back":   lipgloss.NewStyle().Bold(true).Foreground(colorYellow),
	}
)

// classBadge renders an order class in a fixed-width column.
func classBadge(class string) string {
	style, ok := classStyles[class]
	if !ok {
		style = dimStyle
	}
	return style.Width(6).Render(class)
}
