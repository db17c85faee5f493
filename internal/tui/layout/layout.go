// Package layout sizes the entity tables to the terminal.
package layout

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/drewfead/arcbox-desktop/internal/tui"
)

// Spacing constants for visual rhythm
const (
	PaddingLeft  = 3 // room for the selection indicator
	PaddingRight = 2
	ColumnGap    = 2
)

// Column defines a flexible table column
type Column struct {
	Header   string
	MinWidth int
	MaxWidth int // 0 = unlimited
	Flex     int // weight for extra space (0 = fixed)
}

// Table lays out rows of cells in columns that share the terminal width.
type Table struct {
	Columns []Column
	Width   int
	widths  []int
}

// NewTable creates a table with the given columns
func NewTable(columns ...Column) *Table {
	return &Table{Columns: columns}
}

// SetWidth updates the table width and recalculates column widths
func (t *Table) SetWidth(width int) {
	t.Width = width
	t.calculateWidths()
}

// calculateWidths gives every column its minimum, then hands out what is
// left by flex weight. A column capped at MaxWidth drops out of later rounds.
func (t *Table) calculateWidths() {
	t.widths = make([]int, len(t.Columns))
	for i, col := range t.Columns {
		t.widths[i] = col.MinWidth
	}
	if len(t.Columns) == 0 || t.Width <= 0 {
		return
	}

	available := t.Width - PaddingLeft - PaddingRight - ColumnGap*(len(t.Columns)-1)

	for pass := 0; pass < 3; pass++ {
		used, flex := 0, 0
		for i, col := range t.Columns {
			used += t.widths[i]
			if col.Flex > 0 && (col.MaxWidth == 0 || t.widths[i] < col.MaxWidth) {
				flex += col.Flex
			}
		}
		extra := available - used
		if extra <= 0 || flex == 0 {
			break
		}
		for i, col := range t.Columns {
			if col.Flex == 0 || (col.MaxWidth > 0 && t.widths[i] >= col.MaxWidth) {
				continue
			}
			w := t.widths[i] + extra*col.Flex/flex
			if col.MaxWidth > 0 && w > col.MaxWidth {
				w = col.MaxWidth
			}
			t.widths[i] = w
		}
	}
}

// ColumnWidths returns the calculated column widths
func (t *Table) ColumnWidths() []int {
	if len(t.widths) != len(t.Columns) {
		t.calculateWidths()
	}
	return t.widths
}

// RenderHeader returns the formatted header row
func (t *Table) RenderHeader() string {
	headers := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		headers[i] = col.Header
	}
	return tui.StyleColumnHeader.Render(strings.Repeat(" ", PaddingLeft) + t.join(headers))
}

// RenderRow fits cells, which may carry styling, into their columns. The
// selected row gets an indicator and a plain highlighted background.
func (t *Table) RenderRow(cells []string, selected bool) string {
	content := t.join(cells)
	if selected {
		return tui.StyleSelectedIndicator.Render(" ▌ ") + tui.StyleSelected.Render(ansi.Strip(content))
	}
	return strings.Repeat(" ", PaddingLeft) + content
}

func (t *Table) join(cells []string) string {
	widths := t.ColumnWidths()
	parts := make([]string, len(widths))
	for i, w := range widths {
		var cell string
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = Fit(cell, w)
	}
	return strings.Join(parts, strings.Repeat(" ", ColumnGap))
}

// Fit truncates s with an ellipsis or pads it so it is exactly width cells
// wide on screen.
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	w := lipgloss.Width(s)
	if w > width {
		return ansi.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-w)
}

// Divider returns a full-width divider line
func Divider(width int) string {
	if width <= 0 {
		width = 80
	}
	return tui.StyleDivider.Render(strings.Repeat("─", width))
}

// PinFooterToBottom pads content so footer sits on the last terminal line.
// Content that does not fit is cut from the bottom.
func PinFooterToBottom(content, footer string, termHeight int) string {
	contentLines := strings.Split(content, "\n")
	footerLines := strings.Split(footer, "\n")

	padding := termHeight - len(contentLines) - len(footerLines)
	if padding < 0 {
		keep := max(1, termHeight-len(footerLines))
		if keep < len(contentLines) {
			contentLines = contentLines[:keep]
		}
		padding = 0
	}

	var b strings.Builder
	b.WriteString(strings.Join(contentLines, "\n"))
	b.WriteString(strings.Repeat("\n", padding+1))
	b.WriteString(strings.Join(footerLines, "\n"))
	return b.String()
}
