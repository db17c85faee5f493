package layout

import (
	"fmt"
	"strings"

	"github.com/drewfead/arcbox-desktop/internal/tui"
)

// ScrollWindow is the visible slice of a scrollable list.
type ScrollWindow struct {
	Offset      int
	VisibleRows int
	TotalItems  int
	HasMore     bool
	HasLess     bool
}

// CalculateScrollWindow keeps selected in view.
func CalculateScrollWindow(totalItems, selected, visibleRows int) ScrollWindow {
	if totalItems == 0 || visibleRows <= 0 {
		return ScrollWindow{}
	}

	offset := 0
	if selected >= visibleRows {
		offset = selected - visibleRows + 1
	}
	offset = min(offset, max(0, totalItems-visibleRows))

	return ScrollWindow{
		Offset:      offset,
		VisibleRows: visibleRows,
		TotalItems:  totalItems,
		HasMore:     offset+visibleRows < totalItems,
		HasLess:     offset > 0,
	}
}

// ListOptions configures RenderList.
type ListOptions struct {
	Table        *Table
	TotalItems   int
	Selected     int
	Height       int // lines available, header included
	EmptyMessage string
	Row          func(index int) []string
}

// RenderList renders the table header and the rows that fit in Height,
// with "more" markers when rows are scrolled out of view.
func RenderList(opts ListOptions) string {
	if opts.Table == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(opts.Table.RenderHeader())
	b.WriteString("\n")

	if opts.TotalItems == 0 || opts.Row == nil {
		if opts.EmptyMessage != "" {
			b.WriteString(tui.StyleEmptyState.Render(opts.EmptyMessage))
			b.WriteString("\n")
		}
		return b.String()
	}

	// Header plus up to two scroll markers.
	visible := max(1, opts.Height-3)
	scroll := CalculateScrollWindow(opts.TotalItems, opts.Selected, visible)

	if scroll.HasLess {
		b.WriteString(tui.StyleMuted.Render(fmt.Sprintf("   ↑ %d more", scroll.Offset)))
		b.WriteString("\n")
	}

	end := min(scroll.Offset+scroll.VisibleRows, opts.TotalItems)
	for i := scroll.Offset; i < end; i++ {
		b.WriteString(opts.Table.RenderRow(opts.Row(i), i == opts.Selected))
		b.WriteString("\n")
	}

	if scroll.HasMore {
		b.WriteString(tui.StyleMuted.Render(fmt.Sprintf("   ↓ %d more", opts.TotalItems-end)))
		b.WriteString("\n")
	}
	return b.String()
}
