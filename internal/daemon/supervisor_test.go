package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingProber answers true from the okAt-th call on. okAt <= 0 never
// succeeds.
type countingProber struct {
	calls atomic.Int32
	okAt  int32
}

func (p *countingProber) Probe(ctx context.Context) bool {
	n := p.calls.Add(1)
	return p.okAt > 0 && n >= p.okAt
}

// writeScript creates an executable shell script standing in for the daemon.
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "arcbox")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func testOptions(t *testing.T) Options {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data")
	return Options{
		Binary:         "arcbox",
		DataDir:        dataDir,
		HealthSocket:   filepath.Join(dataDir, "docker.sock"),
		RPCSocket:      filepath.Join(dataDir, "arcbox.sock"),
		StartupTimeout: 5 * time.Second,
		PingInterval:   10 * time.Millisecond,
		ProbeTimeout:   100 * time.Millisecond,
	}
}

func staticLocator(path string) Locator {
	return LocatorFunc(func() (string, error) { return path, nil })
}

var missingLocator = LocatorFunc(func() (string, error) { return "", errBinaryNotFound })

// runCmd executes cmd, expanding batches, and returns every message produced
// before all commands finish or the timeout passes. Commands still blocked at
// the timeout are left running.
func runCmd(t *testing.T, cmd tea.Cmd, timeout time.Duration) []tea.Msg {
	t.Helper()
	if cmd == nil {
		return nil
	}
	results := make(chan tea.Msg, 16)
	pending := 0
	launch := func(c tea.Cmd) {
		pending++
		go func() { results <- c() }()
	}
	launch(cmd)

	var msgs []tea.Msg
	deadline := time.After(timeout)
	for pending > 0 {
		select {
		case msg := <-results:
			pending--
			if batch, ok := msg.(tea.BatchMsg); ok {
				for _, c := range batch {
					if c != nil {
						launch(c)
					}
				}
				continue
			}
			if msg != nil {
				msgs = append(msgs, msg)
			}
		case <-deadline:
			return msgs
		}
	}
	return msgs
}

// deliver feeds msgs to the supervisor the way the Update loop would and
// returns the commands it produced.
func deliver(s *Supervisor, msgs []tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	for _, m := range msgs {
		if c := s.Update(m); c != nil {
			cmds = append(cmds, c)
		}
	}
	return cmds
}

func stateChanges(msgs []tea.Msg) []State {
	var out []State
	for _, m := range msgs {
		if sc, ok := m.(StateChangedMsg); ok {
			out = append(out, sc.State)
		}
	}
	return out
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	return pid
}

func processGone(pid int) bool {
	return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}

func TestStartIsGuarded(t *testing.T) {
	prober := &countingProber{}
	s := New(testOptions(t), bridge.Inline{}, WithLocator(missingLocator), WithProber(prober))

	cmd := s.Start()
	require.NotNil(t, cmd)
	require.Equal(t, Starting, s.State().Phase)
	require.Nil(t, s.Start(), "start while starting must be a no-op")

	msgs := runCmd(t, cmd, time.Second)
	require.Equal(t, []State{{Phase: Starting}}, stateChanges(msgs))

	out := runCmd(t, tea.Batch(deliver(s, msgs)...), time.Second)
	require.Equal(t, []State{{Phase: Failed, Reason: ReasonBinaryNotFound}}, stateChanges(out))
	require.EqualValues(t, 0, prober.calls.Load(), "a missing binary must not trigger any probe")

	// Failed is restartable.
	require.NotNil(t, s.Start())
}

func TestAlreadyRunningSpawnsNothing(t *testing.T) {
	opts := testOptions(t)
	marker := filepath.Join(t.TempDir(), "spawned")
	bin := writeScript(t, t.TempDir(), "touch "+marker)

	s := New(opts, bridge.Inline{}, WithLocator(staticLocator(bin)), WithProber(&countingProber{okAt: 1}))
	msgs := runCmd(t, s.Start(), time.Second)
	deliver(s, msgs)

	require.Equal(t, State{Phase: Running}, s.State())
	require.Zero(t, s.PID())
	require.NoFileExists(t, marker)
	require.DirExists(t, opts.DataDir)

	require.Nil(t, s.Start(), "start while running must be a no-op")
}

func TestSpawnBecomesHealthy(t *testing.T) {
	opts := testOptions(t)
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := writeScript(t, t.TempDir(), `echo "$@" > `+argsFile+`
echo starting
echo warming up >&2
exec sleep 30`)

	// Stale sockets from a previous run must be cleared before spawning.
	require.NoError(t, os.MkdirAll(opts.DataDir, 0o700))
	require.NoError(t, os.WriteFile(opts.HealthSocket, nil, 0o600))
	require.NoError(t, os.WriteFile(opts.RPCSocket, nil, 0o600))

	prober := &countingProber{okAt: 3}
	s := New(opts, bridge.Inline{}, WithLocator(staticLocator(bin)), WithProber(prober))
	defer s.Shutdown()

	msgs := runCmd(t, s.Start(), 5*time.Second)
	deliver(s, msgs)

	require.Equal(t, State{Phase: Running}, s.State())
	require.EqualValues(t, 3, prober.calls.Load())
	require.NotZero(t, s.PID())
	require.NoFileExists(t, opts.HealthSocket)
	require.NoFileExists(t, opts.RPCSocket)

	want := "daemon --socket " + opts.HealthSocket + " --data-dir " + opts.DataDir + " --foreground"
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(argsFile)
		return err == nil && strings.TrimSpace(string(data)) == want
	}, 5*time.Second, 10*time.Millisecond)

	pid := s.PID()
	s.Shutdown()
	require.True(t, processGone(pid))
	require.Zero(t, s.PID())
}

func TestSpawnedDaemonExitsEarly(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "echo boom >&2\nexit 3")
	s := New(testOptions(t), bridge.Inline{}, WithLocator(staticLocator(bin)), WithProber(&countingProber{}))

	deliver(s, runCmd(t, s.Start(), 5*time.Second))

	require.Equal(t, Failed, s.State().Phase)
	require.Equal(t, "Daemon exited with: exit status 3", s.State().Reason)
	require.Zero(t, s.PID())
}

func TestStartupTimeoutKillsDaemon(t *testing.T) {
	opts := testOptions(t)
	opts.StartupTimeout = 150 * time.Millisecond
	pidFile := filepath.Join(t.TempDir(), "pid")
	bin := writeScript(t, t.TempDir(), "echo $$ > "+pidFile+"\nexec sleep 30")

	s := New(opts, bridge.Inline{}, WithLocator(staticLocator(bin)), WithProber(&countingProber{}))
	deliver(s, runCmd(t, s.Start(), 5*time.Second))

	require.Equal(t, State{Phase: Failed, Reason: ReasonStartupTimeout}, s.State())
	require.True(t, processGone(readPID(t, pidFile)))
}

func TestDataDirFailure(t *testing.T) {
	opts := testOptions(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	opts.DataDir = filepath.Join(blocker, "data")

	bin := writeScript(t, t.TempDir(), "exit 0")
	s := New(opts, bridge.Inline{}, WithLocator(staticLocator(bin)), WithProber(&countingProber{}))
	deliver(s, runCmd(t, s.Start(), time.Second))

	require.Equal(t, Failed, s.State().Phase)
	require.True(t, strings.HasPrefix(s.State().Reason, "Failed to create data dir: "), s.State().Reason)
}

func TestStopDuringStartupKillsChild(t *testing.T) {
	pool := bridge.NewPool(2)
	defer pool.Close()

	pidFile := filepath.Join(t.TempDir(), "pid")
	bin := writeScript(t, t.TempDir(), "echo $$ > "+pidFile+"\nexec sleep 30")
	opts := testOptions(t)
	opts.StartupTimeout = 30 * time.Second

	s := New(opts, pool, WithLocator(staticLocator(bin)), WithProber(&countingProber{}))
	cmd := s.Start()
	require.Equal(t, Starting, s.State().Phase)

	pid := readPID(t, pidFile)
	stopMsgs := runCmd(t, s.Stop(), time.Second)
	require.Equal(t, []State{{Phase: Stopped}}, stateChanges(stopMsgs))

	// The abandoned startup produces no startup result at all.
	msgs := runCmd(t, cmd, 5*time.Second)
	require.Equal(t, []State{{Phase: Starting}}, stateChanges(msgs))
	deliver(s, msgs)
	require.Equal(t, State{Phase: Stopped}, s.State())

	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 10*time.Millisecond)
}

// gateProber fails the already-running check, then holds the first
// post-spawn probe until open is closed and reports healthy.
type gateProber struct {
	calls   atomic.Int32
	entered chan struct{}
	open    chan struct{}
}

func newGateProber() *gateProber {
	return &gateProber{entered: make(chan struct{}), open: make(chan struct{})}
}

func (p *gateProber) Probe(ctx context.Context) bool {
	switch p.calls.Add(1) {
	case 1:
		return false
	case 2:
		close(p.entered)
		<-p.open
	}
	return true
}

func startGated(t *testing.T, pool *bridge.Pool) (*Supervisor, *gateProber, tea.Cmd, int) {
	t.Helper()
	pidFile := filepath.Join(t.TempDir(), "pid")
	bin := writeScript(t, t.TempDir(), "echo $$ > "+pidFile+"\nexec sleep 30")
	prober := newGateProber()
	s := New(testOptions(t), pool, WithLocator(staticLocator(bin)), WithProber(prober))
	cmd := s.Start()

	select {
	case <-prober.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("startup never reached the health poll")
	}
	return s, prober, cmd, readPID(t, pidFile)
}

func TestStopWhileProbeSucceedsKillsChild(t *testing.T) {
	pool := bridge.NewPool(2)
	defer pool.Close()

	s, prober, cmd, pid := startGated(t, pool)
	deliver(s, runCmd(t, s.Stop(), time.Second))
	close(prober.open)

	msgs := runCmd(t, cmd, 5*time.Second)
	deliver(s, msgs)
	require.Equal(t, State{Phase: Stopped}, s.State())

	s.Shutdown()
	require.Eventually(t, func() bool { return processGone(pid) }, 5*time.Second, 10*time.Millisecond)
	require.Zero(t, s.PID())
}

func TestShutdownWaitsForAbandonedChild(t *testing.T) {
	pool := bridge.NewPool(2)
	defer pool.Close()

	s, prober, _, pid := startGated(t, pool)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(prober.open)
	}()

	s.Shutdown()
	require.True(t, processGone(pid), "Shutdown returned with the child still alive")
	require.Equal(t, Stopped, s.State().Phase)
}

func TestStaleStartupResultIgnored(t *testing.T) {
	s := New(testOptions(t), bridge.Inline{}, WithLocator(missingLocator), WithProber(&countingProber{}))

	s.Start()
	staleEpoch := s.epoch
	s.Stop()
	require.Equal(t, Stopped, s.State().Phase)

	require.Nil(t, s.Update(startupResultMsg{epoch: staleEpoch, outcome: Outcome{Kind: AlreadyRunning}}))
	require.Equal(t, State{Phase: Stopped}, s.State())

	// A newer attempt still applies its own result.
	deliver(s, runCmd(t, s.Start(), time.Second))
	require.Equal(t, State{Phase: Failed, Reason: ReasonBinaryNotFound}, s.State())
}

func TestOwnedDaemonExitAfterRunning(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "sleep 0.2\nexit 1")
	s := New(testOptions(t), bridge.Inline{}, WithLocator(staticLocator(bin)), WithProber(&countingProber{okAt: 2}))
	defer s.Shutdown()

	start := runCmd(t, s.Start(), 5*time.Second)
	cmds := deliver(s, start)
	require.Equal(t, Running, s.State().Phase)

	msgs := runCmd(t, tea.Batch(cmds...), 5*time.Second)
	deliver(s, msgs)
	require.Equal(t, State{Phase: Failed, Reason: "Daemon exited with: exit status 1"}, s.State())
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "running", State{Phase: Running}.String())
	require.Equal(t, "failed: boom", State{Phase: Failed, Reason: "boom"}.String())
	require.True(t, State{Phase: Stopped}.CanStart())
	require.True(t, State{Phase: Failed}.CanStart())
	require.False(t, State{Phase: Starting}.CanStart())
	require.False(t, State{Phase: Running}.CanStart())
}

func TestAccessors(t *testing.T) {
	opts := testOptions(t)
	s := New(opts, bridge.Inline{})
	require.Equal(t, opts.HealthSocket, s.HealthSocket())
	require.Equal(t, opts.RPCSocket, s.RPCSocket())
	require.Equal(t, opts.DataDir, s.DataDir())
	require.IsType(t, RawProber{}, s.prober)

	opts.HealthProbe = "engine"
	require.IsType(t, EngineProber{}, New(opts, bridge.Inline{}).prober)
}
