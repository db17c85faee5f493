// Package cli formats headless command output: aligned tables, JSON and
// status marks that fall back to plain text off a terminal.
package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Status marks
const (
	CheckMark = "✓"
	CrossMark = "✗"
	Bullet    = "●"
	Circle    = "○"
)

var (
	styleGreen = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleRed   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleGray  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleBold  = lipgloss.NewStyle().Bold(true)
)

// colorsEnabled caches whether colors should be used
var colorsEnabled *bool

// ColorsEnabled reports whether stdout is a terminal and NO_COLOR is unset.
func ColorsEnabled() bool {
	if colorsEnabled != nil {
		return *colorsEnabled
	}
	enabled := term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""
	colorsEnabled = &enabled
	return enabled
}

// ForceColors enables or disables colors regardless of terminal detection.
func ForceColors(enabled bool) {
	colorsEnabled = &enabled
}

func styled(text string, style lipgloss.Style) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

func Green(text string) string { return styled(text, styleGreen) }
func Red(text string) string   { return styled(text, styleRed) }
func Gray(text string) string  { return styled(text, styleGray) }
func Bold(text string) string  { return styled(text, styleBold) }

// Mark renders a success or failure mark. Off a terminal the marks read
// "ok" and "error" so output stays greppable.
func Mark(ok bool) string {
	switch {
	case !ColorsEnabled() && ok:
		return "ok"
	case !ColorsEnabled():
		return "error"
	case ok:
		return Green(CheckMark)
	default:
		return Red(CrossMark)
	}
}

// StateDot renders a filled dot for a running entity and a hollow one
// otherwise.
func StateDot(running bool) string {
	if running {
		return Green(Bullet)
	}
	return Gray(Circle)
}
