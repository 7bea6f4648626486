package ui

import "github.com/charmbracelet/lipgloss"

// Colors for the UI theme - Muted Professional Palette
var (
	ColorPrimary = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorAccent  = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError   = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted   = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorText    = lipgloss.Color("#F1F5F9") // Soft White (Slate 100)
	ColorBorder  = lipgloss.Color("#1E293B") // Subtle Slate Border
)

// Styles holds the rendered styles for the chat view.
type Styles struct {
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemNote     lipgloss.Style
	ErrorNote      lipgloss.Style
	StatusBar      lipgloss.Style
	InputBox       lipgloss.Style
	Spinner        lipgloss.Style
}

// DefaultStyles builds the default style set.
func DefaultStyles() *Styles {
	return &Styles{
		UserLabel: lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true),
		AssistantLabel: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
		SystemNote: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Italic(true),
		ErrorNote: lipgloss.NewStyle().
			Foreground(ColorError),
		StatusBar: lipgloss.NewStyle().
			Foreground(ColorMuted),
		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
		Spinner: lipgloss.NewStyle().
			Foreground(ColorPrimary),
	}
}
