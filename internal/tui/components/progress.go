package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"

	"github.com/drewfead/arcbox-desktop/internal/tui"
)

// ProgressBar renders a horizontal fill indicator.
type ProgressBar struct {
	Current   uint64
	Max       uint64
	Width     int
	Color     lipgloss.Color
	ShowLabel bool // percentage
	Label     string
}

// NewProgressBar creates a progress bar with defaults.
func NewProgressBar(current, max uint64) *ProgressBar {
	return &ProgressBar{
		Current: current,
		Max:     max,
		Width:   20,
		Color:   tui.ColorSuccess,
	}
}

// WithWidth sets the bar width.
func (p *ProgressBar) WithWidth(w int) *ProgressBar {
	p.Width = w
	return p
}

// WithColor sets the filled portion color.
func (p *ProgressBar) WithColor(c lipgloss.Color) *ProgressBar {
	p.Color = c
	return p
}

// WithShowLabel enables percentage display.
func (p *ProgressBar) WithShowLabel(show bool) *ProgressBar {
	p.ShowLabel = show
	return p
}

// WithLabel sets a label prefix.
func (p *ProgressBar) WithLabel(label string) *ProgressBar {
	p.Label = label
	return p
}

// Fraction is Current/Max clamped to [0, 1].
func (p *ProgressBar) Fraction() float64 {
	if p.Max == 0 {
		return 0
	}
	return min(1, float64(p.Current)/float64(p.Max))
}

// Render returns the styled progress bar string.
func (p *ProgressBar) Render() string {
	var sb strings.Builder
	if p.Label != "" {
		sb.WriteString(tui.StyleMuted.Render(p.Label))
		sb.WriteString(" ")
	}

	if p.Max == 0 {
		sb.WriteString(tui.StyleMuted.Render(strings.Repeat("░", p.Width)))
		return sb.String()
	}

	pct := p.Fraction()
	filled := int(pct * float64(p.Width))
	sb.WriteString(lipgloss.NewStyle().Foreground(p.Color).Render(strings.Repeat("█", filled)))
	sb.WriteString(tui.StyleMuted.Render(strings.Repeat("░", p.Width-filled)))

	if p.ShowLabel {
		sb.WriteString(tui.StyleMuted.Render(fmt.Sprintf(" %d%%", int(pct*100))))
	}
	return sb.String()
}

// DiskUsage renders how much of the image store is reclaimable.
type DiskUsage struct {
	Total       uint64
	Unused      uint64
	Count       int
	UnusedCount int
	Width       int
}

// Render returns "N images  ███░░  X reclaimable of Y".
func (d *DiskUsage) Render() string {
	color := tui.ColorSuccess
	bar := NewProgressBar(d.Unused, d.Total).WithWidth(max(d.Width, 10))
	if frac := bar.Fraction(); frac > 0.5 {
		color = tui.ColorWarning
	}

	noun := "images"
	if d.Count == 1 {
		noun = "image"
	}
	return fmt.Sprintf("%s  %s  %s",
		tui.StyleNormal.Render(fmt.Sprintf("%d %s", d.Count, noun)),
		bar.WithColor(color).Render(),
		tui.StyleMuted.Render(fmt.Sprintf("%s reclaimable (%d unused) of %s",
			units.HumanSizeWithPrecision(float64(d.Unused), 3), d.UnusedCount,
			units.HumanSizeWithPrecision(float64(d.Total), 3))))
}
