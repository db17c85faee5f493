// Package control is the daemon control plane: a multiplexed request/response
// protocol over a unix socket with CBOR framing.
//
// The desktop client uses Client. Server is the daemon side; the mock daemon
// and the tests run it.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/drewfead/arcbox-desktop/internal/logging"
)

// HandlerFunc serves a unary method.
type HandlerFunc func(ctx context.Context, params RawMessage) (any, error)

// StreamHandlerFunc serves a server-streaming method. It calls send for every
// item and returns when the stream is finished. ctx is cancelled when the
// client cancels the stream or disconnects.
type StreamHandlerFunc func(ctx context.Context, params RawMessage, send func(any) error) error

// Server handles incoming connections on the unix socket.
type Server struct {
	socketPath string
	listener   net.Listener

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	streams  map[string]StreamHandlerFunc
	clients  map[net.Conn]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewServer creates a control server for socketPath.
func NewServer(socketPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		streams:    make(map[string]StreamHandlerFunc),
		clients:    make(map[net.Conn]struct{}),
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.With("component", "control"),
	}
}

// Handle registers a unary handler for method.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleStream registers a streaming handler for method.
func (s *Server) HandleStream(method string, h StreamHandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[method] = h
}

// Start removes any stale socket file and begins accepting connections.
func (s *Server) Start() error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	_ = os.Chmod(s.socketPath, 0700)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every client connection, cancels running
// handlers and waits for them to return.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		s.clients[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// serverConn is the per-connection state: one encoder shared by every
// request goroutine, and the cancel funcs of open streams.
type serverConn struct {
	writeMu sync.Mutex
	enc     *cbor.Encoder

	mu      sync.Mutex
	streams map[string]context.CancelFunc
}

func (sc *serverConn) write(resp Response) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.enc.Encode(resp)
}

func (s *Server) handleConnection(conn net.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	sc := &serverConn{enc: newEncoder(conn), streams: make(map[string]context.CancelFunc)}
	var reqs sync.WaitGroup

	defer func() {
		cancel()
		conn.Close()
		reqs.Wait()
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	dec := newDecoder(bufio.NewReader(conn))
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				s.log.Debug("connection closed", "error", err)
			}
			return
		}

		if req.Cancel {
			sc.mu.Lock()
			if stop, ok := sc.streams[req.ID]; ok {
				stop()
			}
			sc.mu.Unlock()
			continue
		}

		reqs.Add(1)
		if req.Stream {
			go func() {
				defer reqs.Done()
				s.serveStream(ctx, sc, req)
			}()
		} else {
			go func() {
				defer reqs.Done()
				s.serveUnary(ctx, sc, req)
			}()
		}
	}
}

func (s *Server) serveUnary(ctx context.Context, sc *serverConn, req Request) {
	s.mu.RLock()
	h, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		_ = sc.write(Response{ID: req.ID, Error: "unknown method: " + req.Method})
		return
	}

	data, err := s.invoke(func() (any, error) { return h(ctx, req.Params) }, req.Method)
	if err != nil {
		_ = sc.write(Response{ID: req.ID, Error: err.Error()})
		return
	}

	resp := Response{ID: req.ID}
	if data != nil {
		encoded, err := Marshal(data)
		if err != nil {
			_ = sc.write(Response{ID: req.ID, Error: "encode reply: " + err.Error()})
			return
		}
		resp.Data = encoded
	}
	if err := sc.write(resp); err != nil {
		s.log.Debug("write reply failed", "method", req.Method, "error", err)
	}
}

func (s *Server) serveStream(ctx context.Context, sc *serverConn, req Request) {
	s.mu.RLock()
	h, ok := s.streams[req.Method]
	s.mu.RUnlock()
	if !ok {
		_ = sc.write(Response{ID: req.ID, End: true, Error: "unknown method: " + req.Method})
		return
	}

	sctx, stop := context.WithCancel(ctx)
	sc.mu.Lock()
	sc.streams[req.ID] = stop
	sc.mu.Unlock()
	defer func() {
		sc.mu.Lock()
		delete(sc.streams, req.ID)
		sc.mu.Unlock()
		stop()
	}()

	send := func(v any) error {
		if err := sctx.Err(); err != nil {
			return err
		}
		data, err := Marshal(v)
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		return sc.write(Response{ID: req.ID, Data: data})
	}

	_, err := s.invoke(func() (any, error) { return nil, h(sctx, req.Params, send) }, req.Method)

	// A cancelled stream was abandoned by the client; no end frame is owed.
	if sctx.Err() != nil {
		return
	}
	end := Response{ID: req.ID, End: true}
	if err != nil {
		end.Error = err.Error()
	}
	_ = sc.write(end)
}

func (s *Server) invoke(fn func() (any, error), method string) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.CapturePanic(r, "component", "control", "method", method)
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn()
}
