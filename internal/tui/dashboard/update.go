package dashboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/arcbox-desktop/internal/daemon"
	"github.com/drewfead/arcbox-desktop/internal/service"
	"github.com/drewfead/arcbox-desktop/internal/tui/logview"
)

const (
	statusFlash = 3 * time.Second
	errorFlash  = 5 * time.Second

	// header, tab bar and divider above the body; footer below it
	chromeHeight = 5
)

func (m Model) bodyHeight() int {
	return max(3, m.height-chromeHeight)
}

func (m Model) handleWindowSize(msg tea.WindowSizeMsg) (Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.help.Width = msg.Width
	for _, t := range m.tables {
		t.SetWidth(m.width)
	}
	if m.mode == ModeLogs {
		m.logs = m.logs.SetSize(m.width, m.bodyHeight())
	}
	if m.mode == ModeDetail && m.detailSource != "" {
		m.detailRendered = "Rendering..."
		return m, m.renderMarkdownCmd(m.detailKey, m.detailSource)
	}
	return m, nil
}

func (m Model) handleDaemonState(msg daemon.StateChangedMsg) (Model, tea.Cmd) {
	if msg.State.Phase == daemon.Failed {
		cmd := m.showError(errors.New(msg.State.Reason))
		return m, cmd
	}
	if msg.State.Phase == daemon.Running && m.opts.AutoConnect && m.svc.State().CanConnect() {
		return m, m.svc.Connect()
	}
	return m, nil
}

func (m Model) handleConnectionState(msg service.ConnectionStateChangedMsg) (Model, tea.Cmd) {
	switch msg.State.Status {
	case service.Connected:
		flash := m.showStatus("Connected to " + m.svc.Socket())
		return m, tea.Batch(m.svc.RefreshAll(), flash)
	case service.ConnError:
		if m.mode == ModeLogs {
			m.logs = m.logs.Close()
			m.mode = ModeList
		}
		cmd := m.showError(errors.New(msg.State.Reason))
		return m, cmd
	case service.Disconnected:
		m.inv.Clear()
	}
	return m, nil
}

func (m Model) handleMutated(msg service.EntityMutatedMsg) (Model, tea.Cmd) {
	kind := string(msg.Kind)
	text := strings.ToUpper(kind[:1]) + kind[1:] + " " + string(msg.Action)
	if msg.ID != "" {
		text += ": " + shortID(msg.ID)
	}
	cmd := m.showStatus(text)
	return m, cmd
}

func (m Model) handleFailed(msg service.OperationFailedMsg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	if msg.Action == service.ActionLogs && m.mode == ModeLogs {
		m.logs, cmd = m.logs.Update(msg)
	}
	flash := m.showError(msg)
	return m, tea.Batch(cmd, flash)
}

// showStatus displays a temporary status message
func (m *Model) showStatus(text string) tea.Cmd {
	m.statusMsg = text
	return tea.Tick(statusFlash, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// showError flashes err in the footer until it times out.
func (m *Model) showError(err error) tea.Cmd {
	m.err = err
	return tea.Tick(errorFlash, func(time.Time) tea.Msg {
		return clearErrMsg{}
	})
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}

	switch m.mode {
	case ModeConfirm:
		return m.handleConfirmMode(msg)
	case ModeLogs:
		return m.handleLogsMode(msg)
	case ModeDetail:
		return m.handleDetailMode(msg)
	}
	return m.handleListMode(msg)
}

func (m Model) quit() (Model, tea.Cmd) {
	if m.mode == ModeLogs {
		m.logs = m.logs.Close()
	}
	return m, tea.Quit
}

func (m Model) handleListMode(msg tea.KeyMsg) (Model, tea.Cmd) {
	kind := m.Kind()
	keys := m.keys.forKind(kind)

	switch {
	case key.Matches(msg, keys.Quit):
		return m.quit()

	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, keys.Up):
		if m.selected[kind] > 0 {
			m.selected[kind]--
		}
		return m, nil

	case key.Matches(msg, keys.Down):
		if m.selected[kind] < m.inv.Count(kind)-1 {
			m.selected[kind]++
		}
		return m, nil

	case key.Matches(msg, keys.NextTab):
		m.tab = (m.tab + 1) % len(service.Kinds)
		return m, nil

	case key.Matches(msg, keys.PrevTab):
		m.tab = (m.tab + len(service.Kinds) - 1) % len(service.Kinds)
		return m, nil

	case key.Matches(msg, keys.StartDaemon):
		return m, m.sup.Start()

	case key.Matches(msg, keys.Connect):
		if !m.svc.State().CanConnect() {
			return m, nil
		}
		return m, m.svc.Connect()

	case key.Matches(msg, keys.Refresh):
		if !m.svc.IsConnected() {
			cmd := m.showError(service.ErrNotConnected)
			return m, cmd
		}
		return m, m.svc.Refresh(kind)
	}

	// Tabs are also reachable by number.
	if s := msg.String(); len(s) == 1 && s[0] >= '1' && int(s[0]-'1') < len(service.Kinds) {
		m.tab = int(s[0] - '1')
		return m, nil
	}

	sel, ok := m.selectedEntity()
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Detail):
		return m.openDetail(sel)

	case key.Matches(msg, keys.Start):
		return m, m.startEntity(sel)

	case key.Matches(msg, keys.Stop):
		return m, m.stopEntity(sel)

	case key.Matches(msg, keys.Delete):
		if kind == service.KindNetwork && sel.system {
			cmd := m.showError(fmt.Errorf("%s is a built-in network", sel.name))
			return m, cmd
		}
		m.confirm = &pendingDelete{kind: kind, id: sel.id, label: sel.name}
		m.mode = ModeConfirm
		return m, nil

	case key.Matches(msg, keys.Logs):
		return m.openLogs(sel)
	}
	return m, nil
}

func (m Model) handleConfirmMode(msg tea.KeyMsg) (Model, tea.Cmd) {
	pending := m.confirm
	switch msg.String() {
	case "y", "Y":
		m.confirm = nil
		m.mode = ModeList
		if pending == nil {
			return m, nil
		}
		return m, m.removeEntity(pending.kind, pending.id)
	case "n", "N", "esc", "q":
		m.confirm = nil
		m.mode = ModeList
	}
	return m, nil
}

func (m Model) handleLogsMode(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Back) {
		m.logs = m.logs.Close()
		m.mode = ModeList
		return m, nil
	}
	var cmd tea.Cmd
	m.logs, cmd = m.logs.Update(msg)
	return m, cmd
}

func (m Model) handleDetailMode(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = ModeList
		m.detailKey = ""
		m.detailSource = ""
		m.detailRendered = ""
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.detailScroll > 0 {
			m.detailScroll--
		}
	case key.Matches(msg, m.keys.Down):
		m.detailScroll++
	}
	return m, nil
}

func (m Model) openLogs(sel entity) (Model, tea.Cmd) {
	if !m.svc.IsConnected() {
		cmd := m.showError(service.ErrNotConnected)
		return m, cmd
	}
	m.logs = logview.New(m.svc, sel.id, sel.name, m.opts.LogMaxLines, m.opts.LogTail).
		SetSize(m.width, m.bodyHeight())
	var cmd tea.Cmd
	m.logs, cmd = m.logs.Subscribe()
	m.mode = ModeLogs
	return m, cmd
}

func (m Model) startEntity(sel entity) tea.Cmd {
	switch sel.kind {
	case service.KindContainer:
		return m.svc.StartContainer(sel.id)
	case service.KindMachine:
		return m.svc.StartMachine(sel.id)
	}
	return nil
}

func (m Model) stopEntity(sel entity) tea.Cmd {
	switch sel.kind {
	case service.KindContainer:
		return m.svc.StopContainer(sel.id, 0)
	case service.KindMachine:
		return m.svc.StopMachine(sel.id)
	}
	return nil
}

func (m Model) removeEntity(kind service.Kind, id string) tea.Cmd {
	switch kind {
	case service.KindContainer:
		return m.svc.RemoveContainer(id, false)
	case service.KindImage:
		return m.svc.RemoveImage(id, false)
	case service.KindMachine:
		return m.svc.RemoveMachine(id, false)
	case service.KindNetwork:
		return m.svc.RemoveNetwork(id)
	case service.KindVolume:
		return m.svc.RemoveVolume(id, false)
	}
	return nil
}

// clampSelection keeps every tab's cursor inside its list after a reload.
func (m *Model) clampSelection() {
	for _, kind := range service.Kinds {
		n := m.inv.Count(kind)
		switch {
		case n == 0:
			m.selected[kind] = 0
		case m.selected[kind] >= n:
			m.selected[kind] = n - 1
		}
	}
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
