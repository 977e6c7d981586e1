package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary   = lipgloss.Color("39")  // Cyan
	ColorSecondary = lipgloss.Color("212") // Pink
	ColorSuccess   = lipgloss.Color("82")  // Green
	ColorWarning   = lipgloss.Color("214") // Orange
	ColorError     = lipgloss.Color("196") // Red
	ColorMuted     = lipgloss.Color("245") // Gray
	ColorHighlight = lipgloss.Color("226") // Yellow
)

// Styles for various UI elements
var (
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = lipgloss.NewStyle().Foreground(ColorMuted)
	Highlight = lipgloss.NewStyle().Foreground(ColorHighlight)
	Header    = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Success = lipgloss.NewStyle().Foreground(ColorSuccess)
	Warning = lipgloss.NewStyle().Foreground(ColorWarning)
	Error   = lipgloss.NewStyle().Foreground(ColorError)

	// Retrieval result styles
	ResultKey = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)
	ResultScore = lipgloss.NewStyle().
			Foreground(ColorSuccess)
	ResultPreview = lipgloss.NewStyle().
			Foreground(ColorMuted).
			PaddingLeft(2)
	MetadataKey = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SectionTitle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1)
	Divider = lipgloss.NewStyle().
		Foreground(ColorMuted)
)

// HorizontalRule returns a styled horizontal divider.
func HorizontalRule(width int) string {
	return Divider.Render(strings.Repeat("─", width))
}

// FormatScore formats a similarity score as a percentage.
func FormatScore(score float64) string {
	return ResultScore.Render(fmt.Sprintf("(%.1f%% match)", score*100))
}

// FormatResultHeader renders a ranked result line: "[1] Rendang (92.3% match)".
func FormatResultHeader(rank int, key string, score float64) string {
	return fmt.Sprintf("[%d] %s %s", rank, ResultKey.Render(key), FormatScore(score))
}
