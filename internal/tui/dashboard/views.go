package dashboard

import (
	"fmt"
	"strings"

	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/daemon"
	"github.com/drewfead/arcbox-desktop/internal/service"
	"github.com/drewfead/arcbox-desktop/internal/tui"
	"github.com/drewfead/arcbox-desktop/internal/tui/components"
	"github.com/drewfead/arcbox-desktop/internal/tui/layout"
)

// TabView renders the rows of one entity tab.
type TabView struct {
	Title string
	Empty string
	Row   func(inv *service.Inventory, i int) []string
}

var tabViews = map[service.Kind]TabView{
	service.KindContainer: {Title: "Containers", Empty: "No containers", Row: containerRow},
	service.KindImage:     {Title: "Images", Empty: "No images", Row: imageRow},
	service.KindMachine:   {Title: "Machines", Empty: "No machines", Row: machineRow},
	service.KindNetwork:   {Title: "Networks", Empty: "No networks", Row: networkRow},
	service.KindVolume:    {Title: "Volumes", Empty: "No volumes", Row: volumeRow},
}

func newTables() map[service.Kind]*layout.Table {
	return map[service.Kind]*layout.Table{
		service.KindContainer: layout.NewTable(
			layout.Column{Header: "", MinWidth: 1, MaxWidth: 1},
			layout.Column{Header: "NAME", MinWidth: 12, MaxWidth: 30, Flex: 2},
			layout.Column{Header: "IMAGE", MinWidth: 14, MaxWidth: 40, Flex: 2},
			layout.Column{Header: "STATE", MinWidth: 10, MaxWidth: 10},
			layout.Column{Header: "PORTS", MinWidth: 10, Flex: 1},
			layout.Column{Header: "CREATED", MinWidth: 8, MaxWidth: 10},
		),
		service.KindImage: layout.NewTable(
			layout.Column{Header: "IMAGE", MinWidth: 20, Flex: 3},
			layout.Column{Header: "ID", MinWidth: 12, MaxWidth: 12},
			layout.Column{Header: "SIZE", MinWidth: 8, MaxWidth: 10},
			layout.Column{Header: "CREATED", MinWidth: 8, MaxWidth: 10},
			layout.Column{Header: "USED", MinWidth: 4, MaxWidth: 4},
		),
		service.KindMachine: layout.NewTable(
			layout.Column{Header: "", MinWidth: 1, MaxWidth: 1},
			layout.Column{Header: "NAME", MinWidth: 12, MaxWidth: 30, Flex: 1},
			layout.Column{Header: "DISTRO", MinWidth: 14, MaxWidth: 30, Flex: 1},
			layout.Column{Header: "STATE", MinWidth: 9, MaxWidth: 9},
			layout.Column{Header: "RESOURCES", MinWidth: 20, Flex: 2},
			layout.Column{Header: "IP", MinWidth: 13, MaxWidth: 15},
		),
		service.KindNetwork: layout.NewTable(
			layout.Column{Header: "NAME", MinWidth: 14, Flex: 2},
			layout.Column{Header: "ID", MinWidth: 12, MaxWidth: 12},
			layout.Column{Header: "DRIVER", MinWidth: 14, MaxWidth: 20, Flex: 1},
			layout.Column{Header: "USAGE", MinWidth: 13, MaxWidth: 16},
		),
		service.KindVolume: layout.NewTable(
			layout.Column{Header: "NAME", MinWidth: 14, Flex: 2},
			layout.Column{Header: "DRIVER", MinWidth: 6, MaxWidth: 10},
			layout.Column{Header: "SIZE", MinWidth: 8, MaxWidth: 10},
			layout.Column{Header: "USAGE", MinWidth: 12, Flex: 1},
		),
	}
}

func stateCell(state string) string {
	return tui.StatusStyle(state).Render(tui.StateIcon(state))
}

func containerRow(inv *service.Inventory, i int) []string {
	c := inv.Containers[i]
	return []string{
		stateCell(string(c.State)),
		c.Name,
		c.Image,
		tui.StatusStyle(string(c.State)).Render(c.State.Label()),
		c.PortsDisplay(),
		c.CreatedAgo(),
	}
}

func imageRow(inv *service.Inventory, i int) []string {
	img := inv.Images[i]
	used := tui.StyleMuted.Render("no")
	if img.InUse {
		used = tui.StyleSuccess.Render("yes")
	}
	return []string{img.FullName(), shortID(img.ID), img.SizeDisplay(), img.CreatedAgo(), used}
}

func machineRow(inv *service.Inventory, i int) []string {
	mc := inv.Machines[i]
	ip := mc.IPAddress
	if ip == "" {
		ip = "-"
	}
	distro := mc.Distro.DisplayName
	if distro == "" {
		distro = mc.Distro.Name
	}
	return []string{
		stateCell(string(mc.State)),
		mc.Name,
		distro,
		tui.StatusStyle(string(mc.State)).Render(string(mc.State)),
		mc.ResourcesDisplay(),
		ip,
	}
}

func networkRow(inv *service.Inventory, i int) []string {
	n := inv.Networks[i]
	name := n.Name
	if n.IsSystem() {
		name = tui.StyleMuted.Render(name + " (system)")
	}
	return []string{name, n.ShortID(), n.DriverDisplay(), n.UsageDisplay()}
}

func volumeRow(inv *service.Inventory, i int) []string {
	v := inv.Volumes[i]
	return []string{v.Name, v.Driver, v.SizeDisplay(), v.UsageDisplay()}
}

// entity is the selected row reduced to what actions need.
type entity struct {
	kind   service.Kind
	id     string
	name   string
	system bool
}

func (m Model) selectedEntity() (entity, bool) {
	kind := m.Kind()
	i := m.selected[kind]
	if i < 0 || i >= m.inv.Count(kind) {
		return entity{}, false
	}
	e := entity{kind: kind}
	switch kind {
	case service.KindContainer:
		c := m.inv.Containers[i]
		e.id, e.name = c.ID, c.Name
	case service.KindImage:
		img := m.inv.Images[i]
		e.id, e.name = img.ID, img.FullName()
	case service.KindMachine:
		mc := m.inv.Machines[i]
		e.id, e.name = mc.ID, mc.Name
	case service.KindNetwork:
		n := m.inv.Networks[i]
		e.id, e.name, e.system = n.ID, n.Name, n.IsSystem()
	case service.KindVolume:
		v := m.inv.Volumes[i]
		e.id, e.name = v.Name, v.Name
	}
	return e, true
}

// View implements tea.Model
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(layout.Divider(m.width))
	b.WriteString("\n")

	switch m.mode {
	case ModeLogs:
		b.WriteString(m.logs.View())
		return b.String()
	case ModeDetail:
		b.WriteString(m.renderDetail())
	default:
		b.WriteString(m.renderBody())
	}
	return layout.PinFooterToBottom(strings.TrimRight(b.String(), "\n"), m.renderFooter(), m.height)
}

func (m Model) renderHeader() string {
	st := m.sup.State()
	conn := m.svc.State()

	daemonState := st.Phase.String()
	daemonText := tui.StatusStyle(daemonState).Render(tui.StateIcon(daemonState) + " daemon " + daemonState)
	if st.Phase == daemon.Starting {
		daemonText = m.spinner.View() + tui.StyleMuted.Render(" daemon starting")
	}

	connState := conn.Status.String()
	connText := tui.StatusStyle(connState).Render(tui.StateIcon(connState) + " " + connState)
	if conn.Status == service.Connecting {
		connText = m.spinner.View() + tui.StyleMuted.Render(" connecting")
	}

	return fmt.Sprintf(" %s   %s   %s", tui.Logo(), daemonText, connText)
}

func (m Model) renderTabs() string {
	parts := make([]string, len(service.Kinds))
	for i, kind := range service.Kinds {
		label := fmt.Sprintf("%d %s", i+1, tabViews[kind].Title)
		if m.inv.Loaded(kind) {
			label += fmt.Sprintf(" (%d)", m.inv.Count(kind))
		}
		if i == m.tab {
			parts[i] = tui.StyleTabActive.Render(label)
		} else {
			parts[i] = tui.StyleTabInactive.Render(label)
		}
	}
	return " " + strings.Join(parts, "   ")
}

func (m Model) renderBody() string {
	kind := m.Kind()
	if !m.svc.IsConnected() && !m.inv.Loaded(kind) {
		return m.renderStatusCard()
	}

	view := tabViews[kind]
	height := m.bodyHeight()
	var b strings.Builder
	if kind == service.KindImage && len(m.inv.Images) > 0 {
		stats := control.CalculateImageStats(m.inv.Images)
		usage := &components.DiskUsage{
			Total:       stats.TotalSize,
			Unused:      stats.UnusedSize,
			Count:       stats.TotalCount,
			UnusedCount: stats.UnusedCount,
			Width:       20,
		}
		b.WriteString("   " + usage.Render() + "\n")
		height--
	}

	b.WriteString(layout.RenderList(layout.ListOptions{
		Table:        m.tables[kind],
		TotalItems:   m.inv.Count(kind),
		Selected:     m.selected[kind],
		Height:       height,
		EmptyMessage: view.Empty,
		Row:          func(i int) []string { return view.Row(m.inv, i) },
	}))
	return b.String()
}

func (m Model) renderStatusCard() string {
	st := m.sup.State()
	conn := m.svc.State()

	daemonLine := components.StatusLine{Label: "Daemon", State: st.Phase.String(), Detail: st.Reason}
	if pid := m.sup.PID(); pid > 0 {
		daemonLine.Detail = fmt.Sprintf("pid %d", pid)
	}

	hint := "[S] start daemon"
	switch {
	case st.Phase == daemon.Starting:
		hint = "Waiting for the daemon..."
	case st.Phase == daemon.Running && conn.CanConnect():
		hint = "[c] connect"
	case conn.Status == service.Connecting:
		hint = "Connecting..."
	}

	card := &components.StatusCard{
		Lines: []components.StatusLine{
			daemonLine,
			{Label: "Connection", State: conn.Status.String(), Detail: conn.Reason},
			{Label: "Socket", State: "", Detail: m.svc.Socket()},
		},
		Hint:  hint,
		Width: min(72, max(40, m.width-6)),
	}
	return "\n" + card.Render()
}

func (m Model) renderFooter() string {
	if m.mode == ModeConfirm && m.confirm != nil {
		return tui.StyleError.Render(fmt.Sprintf(" Delete %s %s? [y/n]", m.confirm.kind, m.confirm.label))
	}
	if m.err != nil {
		return tui.StyleError.Render(" ✗ " + m.err.Error())
	}
	if m.statusMsg != "" {
		return tui.StyleSuccess.Render(" ✓ " + m.statusMsg)
	}
	if m.mode == ModeDetail {
		return tui.StyleHelp.Render(" [esc] back  [↑/↓] scroll")
	}
	return " " + m.help.View(m.keys.forKind(m.Kind()))
}
