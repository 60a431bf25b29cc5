// Package tui renders the chat widget in a terminal.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent  = lipgloss.Color("#8BC34A")
	colorMuted   = lipgloss.Color("#6b7280")
	colorUser    = lipgloss.Color("#2196F3")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
)

// Styles holds the lipgloss styles used by the widget.
type Styles struct {
	Header   lipgloss.Style
	Online   lipgloss.Style
	Offline  lipgloss.Style
	Agent    lipgloss.Style
	User     lipgloss.Style
	System   lipgloss.Style
	Image    lipgloss.Style
	Form     lipgloss.Style
	Label    lipgloss.Style
	Focused  lipgloss.Style
	Status   lipgloss.Style
	Error    lipgloss.Style
	Launcher lipgloss.Style
	Badge    lipgloss.Style
	Help     lipgloss.Style
}

// DefaultStyles returns the widget palette.
func DefaultStyles() Styles {
	return Styles{
		Header:   lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Online:   lipgloss.NewStyle().Foreground(colorAccent),
		Offline:  lipgloss.NewStyle().Foreground(colorMuted),
		Agent:    lipgloss.NewStyle().Padding(0, 1),
		User:     lipgloss.NewStyle().Foreground(colorUser).Padding(0, 1),
		System:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true).Padding(0, 1),
		Image:    lipgloss.NewStyle().Foreground(colorAccent).Underline(true),
		Form:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent).Padding(0, 1),
		Label:    lipgloss.NewStyle().Foreground(colorMuted).Width(10),
		Focused:  lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Width(10),
		Status:   lipgloss.NewStyle().Foreground(colorWarning),
		Error:    lipgloss.NewStyle().Foreground(colorError),
		Launcher: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2),
		Badge:    lipgloss.NewStyle().Background(colorError).Foreground(lipgloss.Color("#ffffff")).Padding(0, 1),
		Help:     lipgloss.NewStyle().Foreground(colorMuted),
	}
}
