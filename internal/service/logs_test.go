package service

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/control"
)

func TestLogOptionsDefaults(t *testing.T) {
	req := LogOptions{ContainerID: "web"}.request(100)
	assert.Equal(t, control.LogsRequest{ID: "web", Stdout: true, Stderr: true, Tail: 100}, req)

	req = LogOptions{ContainerID: "web", Stderr: true, Tail: -1, Follow: true}.request(100)
	assert.False(t, req.Stdout)
	assert.True(t, req.Stderr)
	assert.True(t, req.Follow)
	assert.Zero(t, req.Tail, "negative tail streams everything")
}

func TestSubscribeLogs(t *testing.T) {
	d := startDaemon(t)

	t.Run("backlog then end", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		h.connect()

		sub, cmd := h.s.SubscribeLogs(LogOptions{ContainerID: "web", Stdout: true, Tail: 6})
		require.NotNil(t, sub)
		h.exec(cmd)

		var lines []control.LogEntry
		for {
			msg := h.waitFor(func(m tea.Msg) bool {
				switch m.(type) {
				case LogLineReceivedMsg, LogStreamEndedMsg:
					return true
				}
				return false
			})
			if line, ok := msg.(LogLineReceivedMsg); ok {
				assert.Equal(t, sub.ID, line.SubscriptionID)
				assert.Equal(t, "web", line.ContainerID)
				lines = append(lines, line.Line)
				h.exec(sub.Next())
				continue
			}
			ended := msg.(LogStreamEndedMsg)
			assert.NoError(t, ended.Err)
			break
		}

		require.NotEmpty(t, lines)
		assert.LessOrEqual(t, len(lines), 6)
		for _, l := range lines {
			assert.Equal(t, "stdout", l.Stream)
		}

		assert.Nil(t, sub.Next()(), "the end is reported once")
		assert.NotContains(t, h.s.subs, sub.ID)
	})

	t.Run("follow until closed", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		h.connect()

		sub, cmd := h.s.SubscribeLogs(LogOptions{ContainerID: "db", Stdout: true, Follow: true, Tail: 1})
		require.NotNil(t, sub)
		h.exec(cmd)

		for i := 0; i < 3; i++ {
			line := waitForType[LogLineReceivedMsg](h)
			assert.True(t, strings.HasPrefix(line.Line.Data, "db: "))
			h.exec(sub.Next())
		}

		h.s.Unsubscribe(sub.ID)
		assert.True(t, sub.Closed())

		got := make(chan tea.Msg, 1)
		go func() { got <- sub.Next()() }()
		select {
		case msg := <-got:
			assert.Nil(t, msg)
		case <-time.After(2 * time.Second):
			t.Fatal("Next blocked after Close")
		}

		// The connection is still usable after the stream was abandoned.
		h.exec(h.s.ListNetworks())
		waitForType[NetworksLoadedMsg](h)
	})

	t.Run("unknown container ends with error", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		h.connect()

		_, cmd := h.s.SubscribeLogs(LogOptions{ContainerID: "ghost"})
		h.exec(cmd)
		ended := waitForType[LogStreamEndedMsg](h)
		var remote *control.RemoteError
		require.ErrorAs(t, ended.Err, &remote)
		assert.Equal(t, "No such container: ghost", remote.Message)
	})

	t.Run("disconnect closes subscriptions", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		h.connect()

		sub, cmd := h.s.SubscribeLogs(LogOptions{ContainerID: "web", Follow: true})
		h.exec(cmd)
		waitForType[LogLineReceivedMsg](h)

		h.s.Disconnect()
		assert.True(t, sub.Closed())
		assert.Empty(t, h.s.subs)
	})

	t.Run("rejected before dispatch", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})

		sub, cmd := h.s.SubscribeLogs(LogOptions{ContainerID: "web"})
		assert.Nil(t, sub)
		failed := cmd().(OperationFailedMsg)
		assert.ErrorIs(t, failed, ErrNotConnected)
		assert.Equal(t, ActionLogs, failed.Action)

		sub, cmd = h.s.SubscribeLogs(LogOptions{})
		assert.Nil(t, sub)
		assert.ErrorIs(t, cmd().(OperationFailedMsg), control.ErrMissingID)
	})
}

func TestSubscriptionQueueIsBounded(t *testing.T) {
	d := startDaemon(t)
	h := newHarness(t, d.RPCSocket(), bridge.Inline{}, WithQueueSize(4), WithDefaultTail(20))
	h.connect()

	sub, cmd := h.s.SubscribeLogs(LogOptions{ContainerID: "web", Follow: true})
	require.NotNil(t, sub)
	h.exec(cmd)
	first := waitForType[LogLineReceivedMsg](h)
	require.NotEmpty(t, first.Line.Data)

	// Nobody calls Next while the backlog arrives. Other calls on the
	// connection are not held up by the full subscription.
	time.Sleep(100 * time.Millisecond)
	h.exec(h.s.ListVolumes())
	waitForType[VolumesLoadedMsg](h)

	// The subscription hands over what it buffered, then ends as lagged.
	lines := 0
	for {
		h.exec(sub.Next())
		msg := h.waitFor(func(msg tea.Msg) bool {
			switch msg.(type) {
			case LogLineReceivedMsg, LogStreamEndedMsg:
				return true
			}
			return false
		})
		if ended, ok := msg.(LogStreamEndedMsg); ok {
			require.ErrorIs(t, ended.Err, control.ErrStreamLagged)
			break
		}
		lines++
	}
	assert.LessOrEqual(t, lines, 4)
}
