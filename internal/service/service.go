// Package service is the foreground's view of the daemon's control socket.
//
// A Service is owned by the bubbletea Update loop. Connect and the typed
// operations return commands; the dial and every call run on the bridge
// executor and come back as messages. Update applies connection results and
// refreshes a listing after each successful mutation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/control"
	"github.com/drewfead/arcbox-desktop/internal/logging"
)

// ErrNotConnected is reported by mutations issued without a connection.
var ErrNotConnected = errors.New("not connected")

// ConnStatus is the coarse connection state.
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connecting
	Connected
	ConnError
)

func (s ConnStatus) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ConnError:
		return "error"
	default:
		return fmt.Sprintf("ConnStatus(%d)", int(s))
	}
}

// ConnectionState is the status plus, for ConnError, the reason.
type ConnectionState struct {
	Status ConnStatus
	Reason string
}

func (s ConnectionState) String() string {
	if s.Status == ConnError && s.Reason != "" {
		return "error: " + s.Reason
	}
	return s.Status.String()
}

// CanConnect reports whether Connect would start a new attempt.
func (s ConnectionState) CanConnect() bool {
	return s.Status == Disconnected || s.Status == ConnError
}

const (
	defaultStopTimeout = 10 * time.Second
	defaultTail        = 100
	defaultQueueSize   = 256
	probeTimeout       = 2 * time.Second
)

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithQueueSize bounds how many log entries a subscription buffers.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithDefaultTail sets the tail used when a log subscription leaves it unset.
func WithDefaultTail(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.tail = n
		}
	}
}

// Service holds the shared control client and the connection state.
type Service struct {
	socket string
	exec   bridge.Executor
	log    *slog.Logger

	queueSize int
	tail      int

	scope  context.Context
	cancel context.CancelFunc

	// conn scopes the operations of one connection. Disconnect and a lost
	// connection cancel it, so their results are never delivered.
	conn       context.Context
	connCancel context.CancelFunc

	state      ConnectionState
	gen        uint64
	connecting *bridge.Handle[*control.Client]
	client     *control.Client
	subs       map[string]*LogSubscription
}

// New creates a disconnected service for the control socket at socket.
func New(socket string, exec bridge.Executor, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		socket:    socket,
		exec:      exec,
		log:       logging.With("component", "service"),
		queueSize: defaultQueueSize,
		tail:      defaultTail,
		scope:     ctx,
		cancel:    cancel,
		subs:      make(map[string]*LogSubscription),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// connectResultMsg carries a dial result back to Update.
type connectResultMsg struct {
	gen    uint64
	client *control.Client
	err    error
}

// Connect starts a connection attempt. It is a no-op unless the service is
// Disconnected or in ConnError.
func (s *Service) Connect() tea.Cmd {
	if !s.state.CanConnect() {
		return nil
	}

	s.gen++
	gen := s.gen
	changed := s.setState(ConnectionState{Status: Connecting})

	socket := s.socket
	h, cmd := bridge.Go(s.scope, s.exec, func(ctx context.Context) (*control.Client, error) {
		return dial(ctx, socket)
	}, func(c *control.Client, err error) tea.Msg {
		return connectResultMsg{gen: gen, client: c, err: err}
	})
	s.connecting = h
	return tea.Batch(changed, cmd)
}

// dial checks that something listens on socket before handing the
// connection to the control client.
func dial(ctx context.Context, socket string) (*control.Client, error) {
	d := net.Dialer{Timeout: probeTimeout}
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, &UnreachableError{Socket: socket, Err: err}
	}
	return control.NewClient(conn), nil
}

// UnreachableError reports that nothing accepted a connection on the
// control socket.
type UnreachableError struct {
	Socket string
	Err    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Socket, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// connectReason is the state reason shown for a failed attempt.
func connectReason(err error) string {
	var ue *UnreachableError
	if errors.As(err, &ue) {
		return "Cannot connect to socket: " + ue.Socket
	}
	return err.Error()
}

// Disconnect drops the client and any open log subscriptions. An attempt in
// flight is abandoned and its result discarded.
func (s *Service) Disconnect() tea.Cmd {
	s.gen++
	if h := s.connecting; h != nil {
		s.connecting = nil
		h.Discard(func(c *control.Client) {
			if c != nil {
				c.Close()
			}
		})
	}
	s.dropClient()
	return s.setState(ConnectionState{Status: Disconnected})
}

// dropClient closes the client and abandons everything issued on it.
func (s *Service) dropClient() {
	s.closeSubscriptions()
	if s.connCancel != nil {
		s.connCancel()
		s.conn, s.connCancel = nil, nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

// Close tears the service down: every operation in flight is released and
// the connection is closed. The service must not be used afterwards.
func (s *Service) Close() {
	s.cancel()
	s.Disconnect()
}

// Update applies connection results and reacts to mutations.
func (s *Service) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case connectResultMsg:
		if msg.gen != s.gen || s.state.Status != Connecting {
			if msg.client != nil {
				msg.client.Close()
			}
			return nil
		}
		s.connecting = nil
		if msg.err != nil {
			s.log.Warn("connect failed", "socket", s.socket, "error", msg.err)
			return s.setState(ConnectionState{Status: ConnError, Reason: connectReason(msg.err)})
		}
		s.client = msg.client
		s.conn, s.connCancel = context.WithCancel(s.scope)
		s.log.Info("connected", "socket", s.socket)
		return tea.Batch(s.setState(ConnectionState{Status: Connected}), s.watch(msg.client, msg.gen))

	case ConnectionLostMsg:
		if msg.gen != s.gen || s.state.Status != Connected {
			return nil
		}
		s.log.Warn("connection lost", "error", msg.Err)
		s.dropClient()
		return s.setState(ConnectionState{Status: ConnError, Reason: "connection lost"})

	case EntityMutatedMsg:
		return s.Refresh(msg.Kind)

	case LogStreamEndedMsg:
		s.Unsubscribe(msg.SubscriptionID)
	}
	return nil
}

// watch reports the connection dropping. A client closed by Disconnect also
// fires, but by then the generation has moved on.
func (s *Service) watch(c *control.Client, gen uint64) tea.Cmd {
	return func() tea.Msg {
		<-c.Done()
		return ConnectionLostMsg{Err: c.Err(), gen: gen}
	}
}

func (s *Service) setState(st ConnectionState) tea.Cmd {
	if st == s.state {
		return nil
	}
	s.log.Debug("connection state changed", "from", s.state.String(), "to", st.String())
	s.state = st
	return func() tea.Msg { return ConnectionStateChangedMsg{State: st} }
}

// State returns the connection state.
func (s *Service) State() ConnectionState { return s.state }

// IsConnected reports whether calls can be dispatched.
func (s *Service) IsConnected() bool { return s.state.Status == Connected && s.client != nil }

// Socket is the control socket path.
func (s *Service) Socket() string { return s.socket }

func (s *Service) closeSubscriptions() {
	for id, sub := range s.subs {
		sub.Close()
		delete(s.subs, id)
	}
}
