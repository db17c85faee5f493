// Package components provides reusable TUI building blocks.
package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/drewfead/arcbox-desktop/internal/tui"
)

// Card is a bordered box with an optional title.
type Card struct {
	Title       string
	Content     []string
	Width       int
	BorderColor lipgloss.Color
}

// NewCard creates a card with default styling.
func NewCard(title string, content ...string) *Card {
	return &Card{
		Title:       title,
		Content:     content,
		BorderColor: tui.ColorFgMuted,
	}
}

// WithWidth sets the card width. Zero sizes it to the content.
func (c *Card) WithWidth(w int) *Card {
	c.Width = w
	return c
}

// WithBorderColor sets the border color.
func (c *Card) WithBorderColor(color lipgloss.Color) *Card {
	c.BorderColor = color
	return c
}

// Render returns the styled card string.
func (c *Card) Render() string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(c.BorderColor).
		Padding(0, 1)
	if c.Width > 0 {
		style = style.Width(c.Width)
	}

	lines := make([]string, 0, len(c.Content)+1)
	if c.Title != "" {
		lines = append(lines, tui.StyleTitle.Render(c.Title))
	}
	lines = append(lines, c.Content...)
	return style.Render(strings.Join(lines, "\n"))
}

// StatusLine is one "label  ● state" row of a StatusCard.
type StatusLine struct {
	Label  string
	State  string // key into tui.StateIcons
	Detail string
}

// StatusCard summarises the daemon and connection when there is nothing
// to list yet.
type StatusCard struct {
	Lines []StatusLine
	Hint  string
	Width int
}

// Render returns the styled status card.
func (s *StatusCard) Render() string {
	labelWidth := 0
	for _, l := range s.Lines {
		labelWidth = max(labelWidth, lipgloss.Width(l.Label))
	}

	content := make([]string, 0, len(s.Lines)+2)
	for _, l := range s.Lines {
		row := tui.StyleMuted.Render(l.Label+strings.Repeat(" ", labelWidth-lipgloss.Width(l.Label))) + "  "
		if l.State != "" {
			row += tui.StatusStyle(l.State).Render(tui.StateIcon(l.State)+" "+l.State) + "  "
		}
		if l.Detail != "" {
			row += tui.StyleMuted.Render(l.Detail)
		}
		content = append(content, strings.TrimRight(row, " "))
	}
	if s.Hint != "" {
		content = append(content, "", tui.StyleHelp.Render(s.Hint))
	}

	border := tui.ColorFgMuted
	for _, l := range s.Lines {
		if tui.StatusColor(l.State) == tui.ColorDanger {
			border = tui.ColorDanger
		}
	}
	return NewCard(tui.Logo(), content...).WithWidth(s.Width).WithBorderColor(border).Render()
}
