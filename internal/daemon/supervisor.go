// Package daemon supervises the container runtime daemon: it finds the
// binary, starts it if nothing healthy is answering, and tracks its state.
//
// Supervisor state is owned by the bubbletea Update loop. Start and Stop are
// called from Update and return commands; the startup sequence itself runs on
// the bridge executor and reports back through Update.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/config"
	"github.com/drewfead/arcbox-desktop/internal/logging"
)

// Options configures a Supervisor.
type Options struct {
	Binary       string
	BinaryPath   string
	DataDir      string
	HealthSocket string
	RPCSocket    string

	StartupTimeout time.Duration
	PingInterval   time.Duration
	ProbeTimeout   time.Duration
	HealthProbe    string
}

// OptionsFromConfig maps the daemon config section onto Options.
func OptionsFromConfig(c config.DaemonConfig) Options {
	return Options{
		Binary:         c.Binary,
		BinaryPath:     c.BinaryPath,
		DataDir:        c.DataDir,
		HealthSocket:   c.HealthSocket,
		RPCSocket:      c.RPCSocket,
		StartupTimeout: c.StartupTimeout,
		PingInterval:   c.PingInterval,
		ProbeTimeout:   c.ProbeTimeout,
		HealthProbe:    c.HealthProbe,
	}
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithProber replaces the health probe chosen from Options.
func WithProber(p Prober) Option {
	return func(s *Supervisor) { s.prober = p }
}

// WithLocator replaces binary discovery.
func WithLocator(l Locator) Option {
	return func(s *Supervisor) { s.locator = l }
}

// WithLogger sets the logger. The default is the global logger tagged with
// component=daemon.
func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// Supervisor owns the daemon lifecycle.
type Supervisor struct {
	opts    Options
	exec    bridge.Executor
	prober  Prober
	locator Locator
	log     *slog.Logger

	state   State
	epoch   uint64
	startup *bridge.Handle[Outcome]
	proc    *Process
}

// New creates a supervisor in the Stopped state.
func New(opts Options, exec bridge.Executor, options ...Option) *Supervisor {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 200 * time.Millisecond
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 30 * time.Second
	}

	s := &Supervisor{
		opts:    opts,
		exec:    exec,
		log:     logging.With("component", "daemon"),
		locator: BinaryLocator{Name: opts.Binary, Path: opts.BinaryPath},
	}
	if opts.HealthProbe == config.ProbeEngine {
		s.prober = EngineProber{Socket: opts.HealthSocket, Timeout: opts.ProbeTimeout}
	} else {
		s.prober = RawProber{Socket: opts.HealthSocket, Timeout: opts.ProbeTimeout}
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// startupResultMsg carries an Outcome back to Update. epoch ties it to the
// Start call that produced it.
type startupResultMsg struct {
	epoch   uint64
	outcome Outcome
}

// processExitedMsg reports that the owned daemon died after becoming healthy.
type processExitedMsg struct {
	proc   *Process
	status string
}

// Start begins a startup attempt unless one is running or the daemon is
// already up. It returns nil when there is nothing to do.
func (s *Supervisor) Start() tea.Cmd {
	if !s.state.CanStart() {
		return nil
	}

	changed := s.setState(State{Phase: Starting})
	s.epoch++
	epoch := s.epoch

	h, cmd := bridge.Go(context.Background(), s.exec, s.runStartup, func(o Outcome, err error) tea.Msg {
		if err != nil {
			o = failed(fmt.Sprintf("Daemon startup crashed: %v", err))
		}
		return startupResultMsg{epoch: epoch, outcome: o}
	})
	s.startup = h
	return tea.Batch(changed, cmd)
}

// Stop abandons any startup in flight and moves to Stopped. A daemon that is
// already healthy keeps running; Shutdown is what tears down an owned child.
// A child spawned by the abandoned attempt is killed.
func (s *Supervisor) Stop() tea.Cmd {
	s.epoch++
	s.abandonStartup()
	return s.setState(State{Phase: Stopped})
}

// Shutdown is the application exit hook. It cancels startup, waits for the
// background sequence to finish, and kills the daemon if this supervisor
// spawned it.
func (s *Supervisor) Shutdown() {
	s.epoch++
	<-s.abandonStartup()
	if s.proc != nil {
		s.log.Info("stopping daemon", "pid", s.proc.PID())
		s.proc.Kill()
		s.proc = nil
	}
	s.state = State{Phase: Stopped}
}

// abandonStartup releases the startup handle. The returned channel closes
// once the sequence has returned and any child it spawned is dead.
func (s *Supervisor) abandonStartup() <-chan struct{} {
	h := s.startup
	if h == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	s.startup = nil
	return h.Discard(func(o Outcome) {
		if o.Kind == Spawned && o.Process != nil {
			s.log.Info("killing daemon from abandoned startup", "pid", o.Process.PID())
			o.Process.Kill()
		}
	})
}

// Update applies background results. Results from a superseded Start are
// dropped.
func (s *Supervisor) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case startupResultMsg:
		if msg.epoch != s.epoch || s.state.Phase != Starting {
			s.log.Debug("dropping stale startup result", "epoch", msg.epoch, "current", s.epoch)
			s.adopt(msg.outcome)
			return nil
		}
		s.startup = nil
		return s.apply(msg.outcome)

	case processExitedMsg:
		if msg.proc != s.proc {
			return nil
		}
		s.proc = nil
		if s.state.Phase != Running {
			return nil
		}
		s.log.Warn("daemon exited", "status", msg.status)
		return s.setState(State{Phase: Failed, Reason: "Daemon exited with: " + msg.status})
	}
	return nil
}

func (s *Supervisor) apply(o Outcome) tea.Cmd {
	switch o.Kind {
	case AlreadyRunning:
		return s.setState(State{Phase: Running})
	case Spawned:
		s.proc = o.Process
		return tea.Batch(s.setState(State{Phase: Running}), s.watch(o.Process))
	default:
		s.log.Error("daemon startup failed", "reason", o.Reason)
		return s.setState(State{Phase: Failed, Reason: o.Reason})
	}
}

// adopt takes ownership of a spawned child whose result arrived too late to
// change state, so that Shutdown still stops it.
func (s *Supervisor) adopt(o Outcome) {
	if o.Kind == Spawned && o.Process != nil && s.proc == nil {
		s.proc = o.Process
	}
}

// watch waits on the command goroutine for the owned child to exit.
func (s *Supervisor) watch(p *Process) tea.Cmd {
	return func() tea.Msg {
		<-p.Done()
		status, _ := p.Exited()
		return processExitedMsg{proc: p, status: status}
	}
}

func (s *Supervisor) setState(st State) tea.Cmd {
	if st == s.state {
		return nil
	}
	s.log.Info("daemon state changed", "from", s.state.String(), "to", st.String())
	s.state = st
	return func() tea.Msg { return StateChangedMsg{State: st} }
}

// State returns the current state.
func (s *Supervisor) State() State { return s.state }

// IsRunning reports whether the daemon is healthy.
func (s *Supervisor) IsRunning() bool { return s.state.Phase == Running }

// HealthSocket is the socket probed for liveness.
func (s *Supervisor) HealthSocket() string { return s.opts.HealthSocket }

// RPCSocket is the control socket the connection bridge dials.
func (s *Supervisor) RPCSocket() string { return s.opts.RPCSocket }

// DataDir is the daemon's data directory.
func (s *Supervisor) DataDir() string { return s.opts.DataDir }

// PID returns the owned child's process ID, or 0 when this supervisor did not
// spawn the running daemon.
func (s *Supervisor) PID() int {
	if s.proc == nil {
		return 0
	}
	return s.proc.PID()
}

// Probe runs the configured health probe once. It blocks; call it from a
// command or a CLI, not from Update.
func (s *Supervisor) Probe(ctx context.Context) bool {
	return s.prober.Probe(ctx)
}
