package ux

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the text renderers.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Success lipgloss.Style
	Failure lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
	Code    lipgloss.Style
}

// DefaultStyles returns the colored styles.
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")), // Purple
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")), // Blue
		Success: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("2")),
		Failure: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("1")),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")), // Gray
		Code: lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")), // Cyan
	}
}

// PlainStyles renders without color.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:   plain,
		Label:   plain,
		Success: plain,
		Failure: plain,
		Warning: plain,
		Muted:   plain,
		Code:    plain,
	}
}

func stylesFor(noColor bool) Styles {
	if noColor {
		return PlainStyles()
	}
	return DefaultStyles()
}
