package mockd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/daemon"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startDaemon(t *testing.T, opts Options) *Daemon {
	t.Helper()
	// Unix socket paths are length-limited; keep them short.
	dir, err := os.MkdirTemp("", "mockd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	if opts.DataDir == "" {
		opts.DataDir = filepath.Join(dir, "data")
	}
	if opts.HealthSocket == "" {
		opts.HealthSocket = filepath.Join(dir, "docker.sock")
	}
	d := New(opts)
	require.NoError(t, d.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d
}

func dial(t *testing.T, d *Daemon) *control.Client {
	t.Helper()
	c, err := control.Dial(context.Background(), d.RPCSocket())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHealthPing(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		d := startDaemon(t, Options{Seed: true})
		ctx := context.Background()
		require.True(t, daemon.RawProber{Socket: d.opts.HealthSocket, Timeout: time.Second}.Probe(ctx))
		require.True(t, daemon.EngineProber{Socket: d.opts.HealthSocket, Timeout: time.Second}.Probe(ctx))
	})

	t.Run("still booting", func(t *testing.T) {
		d := startDaemon(t, Options{StartupDelay: 150 * time.Millisecond})
		p := daemon.RawProber{Socket: d.opts.HealthSocket, Timeout: time.Second}
		require.False(t, p.Probe(context.Background()))
		require.Eventually(t, func() bool { return p.Probe(context.Background()) }, 2*time.Second, 20*time.Millisecond)
	})
}

func TestControlOperations(t *testing.T) {
	d := startDaemon(t, Options{Seed: true})
	c := dial(t, d)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	var running, all []control.Container
	require.NoError(t, c.Call(ctx, control.MethodContainerList, control.ListRequest{}, &running))
	require.NoError(t, c.Call(ctx, control.MethodContainerList, control.ListRequest{All: true}, &all))
	assert.Len(t, running, 2)
	assert.Len(t, all, 3)

	var resp control.CreatedResponse
	require.NoError(t, c.Call(ctx, control.MethodContainerCreate, control.CreateContainerRequest{Name: "cache", Image: "alpine:3.20"}, &resp))
	require.NotEmpty(t, resp.ID)

	require.NoError(t, c.Call(ctx, control.MethodContainerStart, control.IDRequest{ID: resp.ID}, nil))
	got, err := d.Store().Container("cache")
	require.NoError(t, err)
	assert.Equal(t, control.ContainerRunning, got.State)

	err = c.Call(ctx, control.MethodContainerRemove, control.RemoveRequest{ID: "cache"}, nil)
	var remote *control.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Contains(t, remote.Message, "cannot remove running container")

	require.NoError(t, c.Call(ctx, control.MethodContainerRemove, control.RemoveRequest{ID: "cache", Force: true}, nil))
	_, err = d.Store().Container("cache")
	require.Error(t, err)

	err = c.Call(ctx, control.MethodContainerStart, control.IDRequest{}, nil)
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, control.ErrMissingID.Error(), remote.Message)

	err = c.Call(ctx, control.MethodContainerStart, control.IDRequest{ID: "nope"}, nil)
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "No such container: nope", remote.Message)

	var vols []control.Volume
	require.NoError(t, c.Call(ctx, control.MethodVolumeList, nil, &vols))
	require.Len(t, vols, 2)
	assert.Equal(t, "52.4MB", vols[0].SizeDisplay())
	assert.Equal(t, "N/A", vols[1].SizeDisplay())
}

func TestLogStream(t *testing.T) {
	d := startDaemon(t, Options{Seed: true, LogHistory: 50, LogInterval: 10 * time.Millisecond})
	c := dial(t, d)
	ctx := context.Background()

	t.Run("tail without follow ends", func(t *testing.T) {
		st, err := c.Stream(ctx, control.MethodContainerLogs, control.LogsRequest{ID: "web", Stdout: true, Stderr: true, Tail: 10})
		require.NoError(t, err)
		defer st.Close()

		var n int
		for {
			var e control.LogEntry
			err := st.Recv(&e)
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 10, n)
	})

	t.Run("stderr only with timestamps", func(t *testing.T) {
		st, err := c.Stream(ctx, control.MethodContainerLogs, control.LogsRequest{ID: "web", Stderr: true, Timestamps: true})
		require.NoError(t, err)
		defer st.Close()

		var e control.LogEntry
		require.NoError(t, st.Recv(&e))
		assert.Equal(t, "stderr", e.Stream)
		assert.False(t, e.Time().IsZero())
	})

	t.Run("follow streams until closed", func(t *testing.T) {
		st, err := c.Stream(ctx, control.MethodContainerLogs, control.LogsRequest{ID: "web", Stdout: true, Follow: true, Tail: 1})
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			var e control.LogEntry
			require.NoError(t, st.Recv(&e))
			assert.True(t, strings.HasPrefix(e.Data, "web: GET"))
		}
		require.NoError(t, st.Close())
		require.NoError(t, c.Ping(ctx))
	})

	t.Run("unknown container", func(t *testing.T) {
		st, err := c.Stream(ctx, control.MethodContainerLogs, control.LogsRequest{ID: "ghost", Stdout: true})
		require.NoError(t, err)
		defer st.Close()

		var e control.LogEntry
		var remote *control.RemoteError
		require.ErrorAs(t, st.Recv(&e), &remote)
		assert.Equal(t, "No such container: ghost", remote.Message)
	})
}

func TestLogGeneratorMultiline(t *testing.T) {
	g := LogGenerator{History: 30}
	e := g.entry(control.Container{Name: "web"}, 24)
	assert.Equal(t, "stderr", e.Stream)
	assert.Len(t, strings.Split(strings.TrimRight(e.Data, "\n"), "\n"), 3)
}

func TestStore(t *testing.T) {
	s := NewStore()
	s.Seed()

	t.Run("image pull and remove", func(t *testing.T) {
		id, err := s.PullImage("redis")
		require.NoError(t, err)
		again, err := s.PullImage("redis:latest")
		require.NoError(t, err)
		assert.Equal(t, id, again)

		require.Error(t, s.RemoveImage("nginx:latest", false), "in use")
		require.NoError(t, s.RemoveImage("redis:latest", false))
		require.Error(t, s.RemoveImage("redis:latest", false))
	})

	t.Run("system networks are permanent", func(t *testing.T) {
		require.ErrorContains(t, s.RemoveNetwork("bridge"), "pre-defined")
		id, err := s.CreateNetwork(control.CreateNetworkRequest{Name: "backend"})
		require.NoError(t, err)
		require.NoError(t, s.RemoveNetwork(id[:6]))
	})

	t.Run("machine lifecycle", func(t *testing.T) {
		id, err := s.CreateMachine(control.CreateMachineRequest{Name: "dev", Distro: "debian"})
		require.NoError(t, err)
		require.NoError(t, s.StartMachine("dev"))
		require.Error(t, s.RemoveMachine(id, false))
		require.NoError(t, s.StopMachine(id))
		require.NoError(t, s.RemoveMachine(id, false))
		assert.Len(t, s.ListMachines(true), 1)
	})

	t.Run("volume create is idempotent", func(t *testing.T) {
		_, err := s.CreateVolume(control.CreateVolumeRequest{Name: "cache"})
		require.NoError(t, err)
		_, err = s.CreateVolume(control.CreateVolumeRequest{Name: "cache"})
		require.NoError(t, err)
		assert.Len(t, s.ListVolumes(), 3)
		require.NoError(t, s.RemoveVolume("cache", false))
	})
}
