// Package logview shows a container's log stream.
package logview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/service"
	"github.com/drewfead/arcbox-desktop/internal/tui"
)

// DefaultMaxLines caps the buffer when no limit is configured.
const DefaultMaxLines = 10000

// Subscriber opens and closes log subscriptions.
type Subscriber interface {
	SubscribeLogs(service.LogOptions) (*service.LogSubscription, tea.Cmd)
	Unsubscribe(id string)
}

// Line is one displayed line of output.
type Line struct {
	Stream string
	Text   string
	Time   time.Time
}

// Model is the log viewer for one container.
type Model struct {
	svc         Subscriber
	containerID string
	name        string
	tail        int

	sub        *service.LogSubscription
	subscribed bool
	ended      bool
	err        error

	lines      []Line
	maxLines   int
	follow     bool
	timestamps bool

	viewport viewport.Model
	width    int
	height   int
}

// New creates a viewer. Nothing is streamed until Subscribe.
func New(svc Subscriber, containerID, name string, maxLines, tail int) Model {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if name == "" {
		name = containerID
	}
	return Model{
		svc:         svc,
		containerID: containerID,
		name:        name,
		tail:        tail,
		maxLines:    maxLines,
		follow:      true,
		viewport:    viewport.New(80, 20),
	}
}

// Subscribe opens the stream. It does nothing while a subscription is
// already open.
func (m Model) Subscribe() (Model, tea.Cmd) {
	if m.subscribed {
		return m, nil
	}
	sub, cmd := m.svc.SubscribeLogs(service.LogOptions{
		ContainerID: m.containerID,
		Follow:      true,
		Stdout:      true,
		Stderr:      true,
		Timestamps:  true,
		Tail:        m.tail,
	})
	if sub == nil {
		return m, cmd
	}
	m.sub = sub
	m.subscribed = true
	m.ended = false
	m.err = nil
	return m, cmd
}

// Close ends the subscription.
func (m Model) Close() Model {
	if m.sub != nil {
		m.svc.Unsubscribe(m.sub.ID)
	}
	m.sub = nil
	m.subscribed = false
	return m
}

// Subscribed reports whether a stream is open.
func (m Model) Subscribed() bool { return m.subscribed }

// Lines returns the buffered lines, oldest first.
func (m Model) Lines() []Line { return m.lines }

// Following reports whether the view sticks to the newest line.
func (m Model) Following() bool { return m.follow }

// ShowingTimestamps reports whether timestamps are rendered.
func (m Model) ShowingTimestamps() bool { return m.timestamps }

// Err returns the error that ended the stream, if any.
func (m Model) Err() error { return m.err }

// ContainerID is the container being viewed.
func (m Model) ContainerID() string { return m.containerID }

// SetSize fits the viewer into width by height cells.
func (m Model) SetSize(width, height int) Model {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(1, height-3)
	m.refresh()
	return m
}

func (m Model) mine(subID string) bool {
	return m.sub != nil && subID == m.sub.ID
}

// Update handles stream messages and viewer keys.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case service.LogLineReceivedMsg:
		if !m.mine(msg.SubscriptionID) {
			return m, nil
		}
		m.append(msg.Line)
		m.refresh()
		return m, m.sub.Next()

	case service.LogStreamEndedMsg:
		if !m.mine(msg.SubscriptionID) {
			return m, nil
		}
		m.ended = true
		m.err = msg.Err
		m.subscribed = false
		m.sub = nil
		return m, nil

	case service.OperationFailedMsg:
		if msg.Action == service.ActionLogs && msg.ID == m.containerID {
			m.err = msg.Err
		}
		return m, nil

	case tea.WindowSizeMsg:
		return m.SetSize(msg.Width, msg.Height), nil

	case tea.KeyMsg:
		switch msg.String() {
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
			return m, nil
		case "t":
			m.timestamps = !m.timestamps
			m.refresh()
			return m, nil
		case "c":
			m.lines = nil
			m.refresh()
			return m, nil
		case "g":
			m.follow = false
			m.viewport.GotoTop()
			return m, nil
		case "G":
			m.follow = true
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	if _, ok := msg.(tea.KeyMsg); ok && !m.viewport.AtBottom() {
		m.follow = false
	}
	return m, cmd
}

// append splits an entry into lines and drops the oldest past maxLines.
func (m *Model) append(e control.LogEntry) {
	data := strings.TrimSuffix(e.Data, "\n")
	ts := e.Time()
	for _, text := range strings.Split(data, "\n") {
		m.lines = append(m.lines, Line{
			Stream: e.Stream,
			Text:   strings.TrimSuffix(text, "\r"),
			Time:   ts,
		})
	}
	if over := len(m.lines) - m.maxLines; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
}

func (m *Model) refresh() {
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = m.renderLine(l)
	}
	m.viewport.SetContent(strings.Join(rendered, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderLine(l Line) string {
	text := l.Text
	if l.Stream == "stderr" {
		text = tui.StyleError.Render(text)
	}
	if m.timestamps && !l.Time.IsZero() {
		return tui.StyleMuted.Render(l.Time.Format("15:04:05.000")) + " " + text
	}
	return text
}

// View renders the header, the log lines and the key help.
func (m Model) View() string {
	var b strings.Builder

	state := "streaming"
	switch {
	case m.err != nil:
		state = "error"
	case m.ended:
		state = "ended"
	case !m.subscribed:
		state = "idle"
	}
	b.WriteString(fmt.Sprintf("%s  %s  %s\n",
		tui.StyleTitle.Render("Logs"),
		tui.StyleAccent.Render(m.name),
		tui.StatusStyle(viewState(state)).Render(state)))
	b.WriteString(tui.StyleMuted.Render(strings.Repeat("─", max(1, m.width))))
	b.WriteString("\n")

	if len(m.lines) == 0 {
		b.WriteString(tui.StyleEmptyState.Render("No output yet"))
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")
	b.WriteString(m.footer())
	return b.String()
}

func viewState(s string) string {
	switch s {
	case "streaming":
		return "running"
	case "ended":
		return "stopped"
	}
	return s
}

func (m Model) footer() string {
	if m.err != nil {
		return tui.StyleError.Render("✗ " + m.err.Error())
	}
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	return tui.StyleHelp.Render(fmt.Sprintf(
		"[esc] back  [f] follow: %s  [t] timestamps: %s  [c] clear  [g/G] top/bottom  %d lines",
		onOff(m.follow), onOff(m.timestamps), len(m.lines)))
}
