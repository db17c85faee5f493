package dashboard

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/drewfead/arcbox-desktop/internal/service"
	"github.com/drewfead/arcbox-desktop/internal/tui"
)

type markdownRenderedMsg struct {
	key     string
	content string
}

func detailKey(e entity) string {
	return string(e.kind) + ":" + e.id
}

func (m Model) openDetail(sel entity) (Model, tea.Cmd) {
	m.mode = ModeDetail
	m.detailKey = detailKey(sel)
	m.detailScroll = 0
	m.detailSource = m.markdownFor(sel)
	m.detailRendered = "Rendering..."
	return m, m.renderMarkdownCmd(m.detailKey, m.detailSource)
}

// refreshDetail re-renders the open detail after a reload, or leaves the
// detail view when its entity is gone.
func (m *Model) refreshDetail() tea.Cmd {
	kind, id, _ := strings.Cut(m.detailKey, ":")
	e, ok := m.findEntity(service.Kind(kind), id)
	if !ok {
		m.mode = ModeList
		m.detailKey, m.detailSource, m.detailRendered = "", "", ""
		return nil
	}
	source := m.markdownFor(e)
	if source == m.detailSource {
		return nil
	}
	m.detailSource = source
	return m.renderMarkdownCmd(m.detailKey, source)
}

func (m Model) findEntity(kind service.Kind, id string) (entity, bool) {
	e := entity{kind: kind, id: id}
	switch kind {
	case service.KindContainer:
		for _, c := range m.inv.Containers {
			if c.ID == id {
				e.name = c.Name
				return e, true
			}
		}
	case service.KindImage:
		for _, img := range m.inv.Images {
			if img.ID == id {
				e.name = img.FullName()
				return e, true
			}
		}
	case service.KindMachine:
		for _, mc := range m.inv.Machines {
			if mc.ID == id {
				e.name = mc.Name
				return e, true
			}
		}
	case service.KindNetwork:
		for _, n := range m.inv.Networks {
			if n.ID == id {
				e.name, e.system = n.Name, n.IsSystem()
				return e, true
			}
		}
	case service.KindVolume:
		for _, v := range m.inv.Volumes {
			if v.Name == id {
				e.name = v.Name
				return e, true
			}
		}
	}
	return entity{}, false
}

// markdownFor describes an entity as a markdown document.
func (m Model) markdownFor(e entity) string {
	var b strings.Builder
	field := func(name, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", name, value)
	}
	table := func() { b.WriteString("| | |\n|---|---|\n") }
	when := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04:05")
	}

	switch e.kind {
	case service.KindContainer:
		for _, c := range m.inv.Containers {
			if c.ID != e.id {
				continue
			}
			fmt.Fprintf(&b, "# %s\n\n", c.Name)
			table()
			field("ID", "`"+c.ID+"`")
			field("Image", c.Image)
			field("State", c.State.Label())
			field("Ports", c.PortsDisplay())
			field("Created", when(c.CreatedAt)+" ("+c.CreatedAgo()+")")
			field("Compose project", c.ComposeProject)
			if c.IsRunning() {
				field("CPU", fmt.Sprintf("%.1f%%", c.CPUPercent))
				field("Memory", fmt.Sprintf("%.0f MB / %.0f MB", c.MemoryMB, c.MemoryLimitMB))
			}
		}
	case service.KindImage:
		for _, img := range m.inv.Images {
			if img.ID != e.id {
				continue
			}
			fmt.Fprintf(&b, "# %s\n\n", img.FullName())
			table()
			field("ID", "`"+img.ID+"`")
			field("Size", img.SizeDisplay())
			field("Platform", strings.Trim(img.OS+"/"+img.Architecture, "/"))
			field("Created", when(img.CreatedAt)+" ("+img.CreatedAgo()+")")
			field("In use", fmt.Sprint(img.InUse))
		}
	case service.KindMachine:
		for _, mc := range m.inv.Machines {
			if mc.ID != e.id {
				continue
			}
			fmt.Fprintf(&b, "# %s\n\n", mc.Name)
			table()
			field("ID", "`"+mc.ID+"`")
			field("Distro", strings.TrimSpace(mc.Distro.Name+" "+mc.Distro.Version))
			field("State", string(mc.State))
			field("Resources", mc.ResourcesDisplay())
			field("IP address", mc.IPAddress)
			field("Created", when(mc.CreatedAt))
		}
	case service.KindNetwork:
		for _, n := range m.inv.Networks {
			if n.ID != e.id {
				continue
			}
			fmt.Fprintf(&b, "# %s\n\n", n.Name)
			table()
			field("ID", "`"+n.ID+"`")
			field("Driver", n.DriverDisplay())
			field("Internal", fmt.Sprint(n.Internal))
			field("Attachable", fmt.Sprint(n.Attachable))
			field("Usage", n.UsageDisplay())
			field("Created", when(n.CreatedAt))
			if n.IsSystem() {
				b.WriteString("\n> Built-in network. It cannot be removed.\n")
			}
		}
	case service.KindVolume:
		for _, v := range m.inv.Volumes {
			if v.Name != e.id {
				continue
			}
			fmt.Fprintf(&b, "# %s\n\n", v.Name)
			table()
			field("Driver", v.Driver)
			field("Mount point", "`"+v.MountPoint+"`")
			field("Size", v.SizeDisplay())
			field("Usage", v.UsageDisplay())
			field("Created", when(v.CreatedAt))
			if len(v.ContainerNames) > 0 {
				b.WriteString("\n## Containers\n\n")
				for _, name := range v.ContainerNames {
					fmt.Fprintf(&b, "- %s\n", name)
				}
			}
		}
	}
	return b.String()
}

// renderMarkdownCmd renders markdown off the Update loop. The raw source is
// shown when no renderer can be built.
func (m Model) renderMarkdownCmd(key, source string) tea.Cmd {
	width := max(40, m.width-4)
	theme := m.opts.Theme
	return func() tea.Msg {
		style := glamour.WithAutoStyle()
		if theme != "" && theme != "auto" {
			style = glamour.WithStandardStyle(theme)
		}
		r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
		if err != nil {
			return markdownRenderedMsg{key: key, content: source}
		}
		out, err := r.Render(source)
		if err != nil {
			return markdownRenderedMsg{key: key, content: source}
		}
		return markdownRenderedMsg{key: key, content: out}
	}
}

func (m Model) renderDetail() string {
	lines := strings.Split(strings.TrimRight(m.detailRendered, "\n"), "\n")
	visible := m.bodyHeight()
	offset := min(m.detailScroll, max(0, len(lines)-visible))
	end := min(len(lines), offset+visible)
	out := strings.Join(lines[offset:end], "\n")
	if end < len(lines) {
		out += "\n" + tui.StyleMuted.Render(fmt.Sprintf("   ↓ %d more", len(lines)-end))
	}
	return out
}
