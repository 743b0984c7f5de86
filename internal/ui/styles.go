package ui

import "github.com/charmbracelet/lipgloss"

// Palette. Lime is the single accent; everything else is grayscale except
// warnings and errors.
const (
	ColorLime     = "154"
	ColorLimeDim  = "106"
	ColorWhite    = "255"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
)

// Styles is shared by the ingest progress view, the stats report and the
// chat transcript.
type Styles struct {
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style

	// Chat roles.
	User      lipgloss.Style
	Assistant lipgloss.Style
	Sources   lipgloss.Style
}

func colored(c string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Header:  colored(ColorLime).Bold(true),
		Success: colored(ColorLime),
		Warning: colored(ColorYellow),
		Error:   colored(ColorRed),
		Dim:     colored(ColorDarkGray),
		Active:  colored(ColorLime).Bold(true),
		Label:   colored(ColorGray),

		User:      colored(ColorWhite).Bold(true),
		Assistant: colored(ColorLime).Bold(true),
		Sources:   colored(ColorLimeDim).Italic(true),
	}
}

// NoColorStyles renders text unchanged.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Header:    plain,
		Success:   plain,
		Warning:   plain,
		Error:     plain,
		Dim:       plain,
		Active:    plain,
		Label:     plain,
		User:      plain,
		Assistant: plain,
		Sources:   plain,
	}
}

// GetStyles picks the styles for the color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
