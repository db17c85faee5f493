// Package tui holds the shared look of the arcbox-desktop terminal UI.
package tui

import "github.com/charmbracelet/lipgloss"

// Tokyo Night inspired color palette
var (
	ColorBg       = lipgloss.Color("#1a1b26")
	ColorBgAlt    = lipgloss.Color("#24283b")
	ColorFg       = lipgloss.Color("#c0caf5")
	ColorFgMuted  = lipgloss.Color("#565f89")
	ColorSuccess  = lipgloss.Color("#9ece6a")
	ColorInfo     = lipgloss.Color("#7aa2f7")
	ColorDanger   = lipgloss.Color("#f7768e")
	ColorWarning  = lipgloss.Color("#e0af68")
	ColorInactive = lipgloss.Color("#565f89")
	ColorAccent   = lipgloss.Color("#d4a373")
)

// StateIcons maps entity and daemon states to a status glyph.
var StateIcons = map[string]string{
	"running":    "●",
	"connected":  "●",
	"starting":   "◐",
	"connecting": "◐",
	"restarting": "◐",
	"stopping":   "◑",
	"paused":     "◑",
	"created":    "○",
	"stopped":    "○",
	"failed":     "✗",
	"error":      "✗",
	"dead":       "✗",
}

// StateIcon returns the glyph for state, or a dash.
func StateIcon(state string) string {
	if icon, ok := StateIcons[state]; ok {
		return icon
	}
	return "─"
}

// StatusColor returns the color for a given state
func StatusColor(state string) lipgloss.Color {
	switch state {
	case "running", "connected":
		return ColorSuccess
	case "starting", "connecting", "restarting", "stopping":
		return ColorInfo
	case "failed", "error", "dead":
		return ColorDanger
	case "paused", "created":
		return ColorWarning
	default:
		return ColorInactive
	}
}

// Common styles
var (
	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorFg).
			Bold(true)

	StyleHeader = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			Bold(true)

	StyleColumnHeader = lipgloss.NewStyle().
				Foreground(ColorFgMuted)

	StyleSelected = lipgloss.NewStyle().
			Background(ColorBgAlt).
			Foreground(ColorFg)

	StyleSelectedIndicator = lipgloss.NewStyle().
				Foreground(ColorAccent)

	StyleNormal = lipgloss.NewStyle().
			Foreground(ColorFg)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	StyleAccent = lipgloss.NewStyle().
			Foreground(ColorAccent)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleDivider = lipgloss.NewStyle().
			Foreground(ColorBgAlt)

	StyleEmptyState = lipgloss.NewStyle().
			Foreground(ColorFgMuted).
			Italic(true).
			PaddingLeft(3)

	StyleTabActive = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			Underline(true)

	StyleTabInactive = lipgloss.NewStyle().
				Foreground(ColorFgMuted)

	StyleHelp = lipgloss.NewStyle().
			Foreground(ColorFgMuted)

	StyleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorFgMuted).
			Padding(0, 1)
)

// StatusStyle returns styled text for a state
func StatusStyle(state string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(StatusColor(state))
}

// Logo returns the wordmark shown in the header.
func Logo() string {
	return StyleAccent.Render("▐▛▜▌") + " " + StyleTitle.Render("ArcBox")
}
