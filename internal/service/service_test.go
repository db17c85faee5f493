package service

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/mockd"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startDaemon(t *testing.T) *mockd.Daemon {
	t.Helper()
	dir, err := os.MkdirTemp("", "svc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	d := mockd.New(mockd.Options{
		HealthSocket: filepath.Join(dir, "docker.sock"),
		DataDir:      filepath.Join(dir, "data"),
		Seed:         true,
		LogHistory:   40,
		LogInterval:  10 * time.Millisecond,
	})
	require.NoError(t, d.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d
}

// harness plays the part of the bubbletea runtime: commands run on their own
// goroutines and every message goes through Update on the test goroutine.
type harness struct {
	t    *testing.T
	s    *Service
	inv  *Inventory
	msgs chan tea.Msg
	done chan struct{}
}

func newHarness(t *testing.T, socket string, exec bridge.Executor, opts ...Option) *harness {
	h := &harness{
		t:    t,
		s:    New(socket, exec, opts...),
		inv:  NewInventory(),
		msgs: make(chan tea.Msg, 256),
		done: make(chan struct{}),
	}
	t.Cleanup(func() {
		h.s.Close()
		close(h.done)
	})
	return h
}

func (h *harness) exec(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				h.exec(c)
			}
			return
		}
		if msg == nil {
			return
		}
		select {
		case h.msgs <- msg:
		case <-h.done:
		}
	}()
}

// waitFor feeds messages through Update until match accepts one.
func (h *harness) waitFor(match func(tea.Msg) bool) tea.Msg {
	h.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-h.msgs:
			h.inv.Update(msg)
			h.exec(h.s.Update(msg))
			if match(msg) {
				return msg
			}
		case <-timeout:
			h.t.Fatal("timed out waiting for message")
			return nil
		}
	}
}

func waitForType[T tea.Msg](h *harness) T {
	h.t.Helper()
	msg := h.waitFor(func(m tea.Msg) bool {
		_, ok := m.(T)
		return ok
	})
	return msg.(T)
}

func (h *harness) connect() {
	h.t.Helper()
	h.exec(h.s.Connect())
	msg := h.waitFor(func(m tea.Msg) bool {
		sc, ok := m.(ConnectionStateChangedMsg)
		return ok && sc.State.Status != Connecting
	})
	require.Equal(h.t, Connected, msg.(ConnectionStateChangedMsg).State.Status)
	require.True(h.t, h.s.IsConnected())
}

func TestConnectAndList(t *testing.T) {
	d := startDaemon(t)
	h := newHarness(t, d.RPCSocket(), bridge.Inline{})
	h.connect()

	h.exec(h.s.ListContainers(true))
	loaded := waitForType[ContainersLoadedMsg](h)
	assert.Equal(t, KindContainer, loaded.Kind)
	assert.Len(t, loaded.Items, 3)
	assert.Len(t, h.inv.Containers, 3)
	assert.True(t, h.inv.Loaded(KindContainer))
	assert.False(t, h.inv.Loaded(KindImage))

	h.exec(h.s.RefreshAll())
	waitForType[VolumesLoadedMsg](h)
	require.Eventually(t, func() bool {
		select {
		case msg := <-h.msgs:
			h.inv.Update(msg)
		default:
		}
		for _, k := range Kinds {
			if !h.inv.Loaded(k) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, h.inv.Count(KindNetwork))
	assert.Equal(t, 3, h.inv.Count(KindImage), "listing includes images not in use")
}

func TestConnectFailure(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "nobody.sock")
	h := newHarness(t, socket, bridge.Inline{})

	h.exec(h.s.Connect())
	msg := h.waitFor(func(m tea.Msg) bool {
		sc, ok := m.(ConnectionStateChangedMsg)
		return ok && sc.State.Status == ConnError
	})
	st := msg.(ConnectionStateChangedMsg).State
	assert.Equal(t, "Cannot connect to socket: "+socket, st.Reason)
	assert.True(t, h.s.State().CanConnect(), "a failed attempt can be retried")

	_, err := dial(context.Background(), socket)
	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Equal(t, socket, unreachable.Socket)
	assert.ErrorIs(t, err, syscall.ENOENT, "the dial error is kept")
}

func TestConnectIsGuarded(t *testing.T) {
	d := startDaemon(t)
	h := newHarness(t, d.RPCSocket(), bridge.Inline{})

	first := h.s.Connect()
	require.NotNil(t, first)
	assert.Equal(t, Connecting, h.s.State().Status)
	assert.Nil(t, h.s.Connect(), "second connect while connecting")

	h.exec(first)
	h.waitFor(func(m tea.Msg) bool {
		sc, ok := m.(ConnectionStateChangedMsg)
		return ok && sc.State.Status == Connected
	})
	assert.Nil(t, h.s.Connect(), "connect while connected")
}

func TestStaleConnectResultIsClosed(t *testing.T) {
	d := startDaemon(t)

	t.Run("released attempt", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		cmd := h.s.Connect()
		h.s.Disconnect()
		assert.Equal(t, Disconnected, h.s.State().Status)

		h.exec(cmd)
		select {
		case msg := <-h.msgs:
			sc, ok := msg.(ConnectionStateChangedMsg)
			require.True(t, ok, "only the Connecting transition may arrive, got %T", msg)
			require.Equal(t, Connecting, sc.State.Status)
		case <-time.After(200 * time.Millisecond):
		}
		assert.False(t, h.s.IsConnected())
	})

	t.Run("old generation", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		h.s.Connect()
		gen := h.s.gen
		h.s.Disconnect()

		c, err := control.Dial(context.Background(), d.RPCSocket())
		require.NoError(t, err)
		require.Nil(t, h.s.Update(connectResultMsg{gen: gen, client: c}))

		select {
		case <-c.Done():
		case <-time.After(time.Second):
			t.Fatal("stale client was not closed")
		}
		assert.Equal(t, Disconnected, h.s.State().Status)
	})
}

func TestMutationRefreshesKind(t *testing.T) {
	d := startDaemon(t)
	pool := bridge.NewPool(2)
	t.Cleanup(pool.Close)
	h := newHarness(t, d.RPCSocket(), pool)
	h.connect()

	h.exec(h.s.StartContainer("migrate"))
	mutated := waitForType[EntityMutatedMsg](h)
	assert.Equal(t, EntityMutatedMsg{Kind: KindContainer, Action: ActionStarted, ID: "migrate"}, mutated)

	loaded := waitForType[ContainersLoadedMsg](h)
	require.Len(t, loaded.Items, 3, "refresh lists stopped containers too")
	for _, c := range loaded.Items {
		assert.True(t, c.IsRunning(), c.Name)
	}
	h.expectNoListing(200 * time.Millisecond)

	h.exec(h.s.CreateVolume(control.CreateVolumeRequest{Name: "uploads"}))
	mutated = waitForType[EntityMutatedMsg](h)
	assert.Equal(t, ActionCreated, mutated.Action)
	assert.Equal(t, "uploads", mutated.ID)
	vols := waitForType[VolumesLoadedMsg](h)
	assert.Len(t, vols.Items, 3)

	h.exec(h.s.CreateContainer(control.CreateContainerRequest{Image: "nginx:latest"}))
	mutated = waitForType[EntityMutatedMsg](h)
	assert.Len(t, mutated.ID, 32, "create reports the daemon-assigned ID")
}

// expectNoListing fails if a listing arrives within d.
func (h *harness) expectNoListing(d time.Duration) {
	h.t.Helper()
	deadline := time.After(d)
	for {
		select {
		case msg := <-h.msgs:
			h.inv.Update(msg)
			h.exec(h.s.Update(msg))
			if kind, ok := loadedKind(msg); ok {
				h.t.Fatalf("unexpected %s listing", kind)
			}
		case <-deadline:
			return
		}
	}
}

func TestMutationIssuesOneListing(t *testing.T) {
	d := startDaemon(t)
	h := newHarness(t, d.RPCSocket(), bridge.Inline{})
	h.connect()

	for _, kind := range Kinds {
		cmd := h.s.Update(EntityMutatedMsg{Kind: kind, Action: ActionRemoved, ID: "x"})
		require.NotNil(t, cmd, kind)
		msg := cmd()
		require.NotNil(t, msg, kind)
		_, isBatch := msg.(tea.BatchMsg)
		require.False(t, isBatch, "%s: one command, not a batch", kind)
		got, ok := loadedKind(msg)
		require.True(t, ok, "%s: got %T", kind, msg)
		assert.Equal(t, kind, got)

		// Applying the listing does not trigger another one.
		assert.Nil(t, h.s.Update(msg), kind)
	}
	assert.Nil(t, h.s.Update(OperationFailedMsg{Kind: KindContainer, Action: ActionStopped, ID: "x"}))
}

func TestDisconnectDropsOperationsInFlight(t *testing.T) {
	d := startDaemon(t)
	h := newHarness(t, d.RPCSocket(), bridge.Inline{})
	h.connect()

	// Inline work has already finished; only delivery is pending.
	listing := h.s.ListContainers(true)
	stop := h.s.StopContainer("db", 0)
	h.s.Disconnect()
	h.inv.Clear()

	assert.Nil(t, listing(), "listing delivered after disconnect")
	assert.Nil(t, stop(), "mutation delivered after disconnect")
	assert.False(t, h.inv.Loaded(KindContainer))

	// A fresh connection delivers again.
	h.connect()
	msg := h.s.ListContainers(true)()
	loaded, ok := msg.(ContainersLoadedMsg)
	require.True(t, ok, "got %T", msg)
	assert.Len(t, loaded.Items, 3)
}

func TestStopTimeoutRoundsUp(t *testing.T) {
	assert.Equal(t, uint32(1), stopSeconds(500*time.Millisecond))
	assert.Equal(t, uint32(1), stopSeconds(time.Nanosecond))
	assert.Equal(t, uint32(2), stopSeconds(1500*time.Millisecond))
	assert.Equal(t, uint32(10), stopSeconds(defaultStopTimeout))
}

func TestOperationFailures(t *testing.T) {
	d := startDaemon(t)

	t.Run("invalid input is never dispatched", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		msg := h.s.StartContainer("")()
		failed, ok := msg.(OperationFailedMsg)
		require.True(t, ok)
		assert.ErrorIs(t, failed, control.ErrMissingID)

		msg = h.s.CreateMachine(control.CreateMachineRequest{Name: "bad name!", Distro: "ubuntu"})()
		require.IsType(t, OperationFailedMsg{}, msg)
	})

	t.Run("not connected", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		assert.Nil(t, h.s.ListContainers(true), "listing is a silent no-op")
		assert.Nil(t, h.s.ListVolumes())

		msg := h.s.StopContainer("web", 0)()
		failed := msg.(OperationFailedMsg)
		assert.ErrorIs(t, failed, ErrNotConnected)
		assert.Equal(t, "Failed to stop container: not connected", failed.Error())
	})

	t.Run("daemon refuses", func(t *testing.T) {
		h := newHarness(t, d.RPCSocket(), bridge.Inline{})
		h.connect()
		h.exec(h.s.ListContainers(true))
		waitForType[ContainersLoadedMsg](h)

		h.exec(h.s.RemoveContainer("web", false))
		failed := waitForType[OperationFailedMsg](h)
		var remote *control.RemoteError
		require.ErrorAs(t, failed, &remote)
		assert.Equal(t, control.MethodContainerRemove, remote.Method)
		assert.Equal(t, ActionRemoved, failed.Action)
		assert.Equal(t, "web", failed.ID)

		assert.Len(t, h.inv.Containers, 3, "failure leaves the cached list alone")
		require.NotNil(t, h.inv.LastError)
	})
}

func TestConnectionLost(t *testing.T) {
	d := startDaemon(t)
	h := newHarness(t, d.RPCSocket(), bridge.Inline{})
	h.connect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	waitForType[ConnectionLostMsg](h)
	assert.Equal(t, ConnectionState{Status: ConnError, Reason: "connection lost"}, h.s.State())
	assert.Nil(t, h.s.ListImages(true))
}

func TestConnectionStateStrings(t *testing.T) {
	assert.Equal(t, "disconnected", ConnectionState{}.String())
	assert.Equal(t, "connected", ConnectionState{Status: Connected}.String())
	assert.Equal(t, "error: boom", ConnectionState{Status: ConnError, Reason: "boom"}.String())
	assert.False(t, ConnectionState{Status: Connecting}.CanConnect())
}
