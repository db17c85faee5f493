// Package dashboard provides the main TUI: the daemon and connection status,
// a tab per entity kind, and the log and detail views.
package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/drewfead/arcbox-desktop/internal/config"
	"github.com/drewfead/arcbox-desktop/internal/daemon"
	"github.com/drewfead/arcbox-desktop/internal/service"
	"github.com/drewfead/arcbox-desktop/internal/tui"
	"github.com/drewfead/arcbox-desktop/internal/tui/layout"
	"github.com/drewfead/arcbox-desktop/internal/tui/logview"
)

// Mode is what fills the body of the screen.
type Mode int

const (
	ModeList    Mode = iota // entity table for the current tab
	ModeDetail              // rendered detail of the selected entity
	ModeLogs                // container log stream
	ModeConfirm             // delete confirmation over the list
)

// Options configures the dashboard.
type Options struct {
	AutoStart       bool
	AutoConnect     bool
	RefreshInterval time.Duration // 0 disables periodic refresh
	LogTail         int
	LogMaxLines     int
	Theme           string // glamour style; "" or "auto" follows the terminal
}

// OptionsFromConfig maps config sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AutoStart:       cfg.Daemon.Autostart,
		AutoConnect:     cfg.Daemon.AutoConnect,
		RefreshInterval: cfg.UI.RefreshInterval,
		LogTail:         cfg.Logs.Tail,
		LogMaxLines:     cfg.Logs.MaxLines,
		Theme:           cfg.UI.Theme,
	}
}

// pendingDelete is the entity waiting for a y/n answer.
type pendingDelete struct {
	kind  service.Kind
	id    string
	label string
}

type (
	refreshTickMsg struct{}
	clearErrMsg    struct{}
	clearStatusMsg struct{}
)

// Model is the root bubbletea model.
type Model struct {
	sup  *daemon.Supervisor
	svc  *service.Service
	inv  *service.Inventory
	opts Options

	// Navigation
	tab      int // index into service.Kinds
	selected map[service.Kind]int
	mode     Mode
	tables   map[service.Kind]*layout.Table

	// Detail view
	detailKey      string
	detailSource   string
	detailRendered string
	detailScroll   int

	logs    logview.Model
	confirm *pendingDelete

	// UI state
	width     int
	height    int
	keys      KeyMap
	help      help.Model
	spinner   spinner.Model
	statusMsg string
	err       error
}

// New creates the dashboard. sup and svc are owned by the caller, which
// shuts them down after the program exits.
func New(sup *daemon.Supervisor, svc *service.Service, opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(tui.ColorAccent)

	h := help.New()
	h.Styles.ShortKey = tui.StyleAccent
	h.Styles.ShortDesc = tui.StyleHelp
	h.Styles.FullKey = tui.StyleAccent
	h.Styles.FullDesc = tui.StyleHelp

	return Model{
		sup:      sup,
		svc:      svc,
		inv:      service.NewInventory(),
		opts:     opts,
		selected: make(map[service.Kind]int),
		tables:   newTables(),
		keys:     DefaultKeyMap(),
		help:     h,
		spinner:  sp,
		width:    80,
		height:   24,
	}
}

// Inventory exposes the cached listings.
func (m Model) Inventory() *service.Inventory { return m.inv }

// Mode returns the active body mode.
func (m Model) Mode() Mode { return m.mode }

// Kind is the entity kind of the current tab.
func (m Model) Kind() service.Kind { return service.Kinds[m.tab] }

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.tick()}
	if m.opts.AutoStart {
		cmds = append(cmds, m.sup.Start())
	}
	return tea.Batch(cmds...)
}

func (m Model) tick() tea.Cmd {
	if m.opts.RefreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.opts.RefreshInterval, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}

// Update implements tea.Model. The supervisor, the service and the
// inventory see every message before the dashboard reacts to it.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.sup.Update(msg), m.svc.Update(msg)}
	if m.inv.Update(msg) && m.mode == ModeDetail {
		cmds = append(cmds, m.refreshDetail())
	}

	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m, cmd = m.handleKey(msg)

	case tea.WindowSizeMsg:
		m, cmd = m.handleWindowSize(msg)

	case daemon.StateChangedMsg:
		m, cmd = m.handleDaemonState(msg)

	case service.ConnectionStateChangedMsg:
		m, cmd = m.handleConnectionState(msg)

	case service.EntityMutatedMsg:
		m, cmd = m.handleMutated(msg)

	case service.OperationFailedMsg:
		m, cmd = m.handleFailed(msg)

	case service.LogLineReceivedMsg, service.LogStreamEndedMsg:
		if m.mode == ModeLogs {
			m.logs, cmd = m.logs.Update(msg)
		}

	case refreshTickMsg:
		if m.svc.IsConnected() {
			cmd = m.svc.RefreshAll()
		}
		cmd = tea.Batch(cmd, m.tick())

	case markdownRenderedMsg:
		if msg.key == m.detailKey {
			m.detailRendered = msg.content
		}

	case clearErrMsg:
		m.err = nil

	case clearStatusMsg:
		m.statusMsg = ""

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
	}

	m.clampSelection()
	return m, tea.Batch(append(cmds, cmd)...)
}
