// Package ui renders CLI output: styled when stdout is an interactive
// terminal, plain text for pipes and CI.
package ui

import "github.com/charmbracelet/lipgloss"

// Color palette - single cyan accent.
const (
	ColorCyan     = "51"  // Primary accent - titles, scores
	ColorCyanDim  = "37"  // Dimmed accent - labels
	ColorWhite    = "255" // Important text
	ColorGray     = "245" // Secondary text
	ColorDarkGray = "238" // Separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings, degraded notices
	ColorGreen    = "40"  // Success
)

// Styles holds the render styles.
type Styles struct {
	Title   lipgloss.Style
	Score   lipgloss.Style
	Label   lipgloss.Style
	Snippet lipgloss.Style
	Dim     lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// DefaultStyles returns styled components for terminal output.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorCyan)),
		Score:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorCyanDim)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Snippet: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle(),
		Score:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
		Snippet: lipgloss.NewStyle(),
		Dim:     lipgloss.NewStyle(),
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
