package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// ErrClosed is returned by calls made on a client that has been closed or
// whose connection has dropped.
var ErrClosed = errors.New("control: client closed")

// ErrStreamLagged ends a stream whose reader let its buffer fill up. The
// read loop never waits for a stream reader, so one slow stream cannot hold
// up replies to other calls on the connection.
var ErrStreamLagged = errors.New("control: stream reader fell behind")

// DefaultStreamBuffer is how many undelivered frames a stream may hold.
const DefaultStreamBuffer = 16

// Client is a multiplexed connection to the daemon's control socket. It is
// safe for concurrent use: every call carries its own request ID and the read
// loop routes responses back by ID.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex
	enc     *cbor.Encoder

	mu      sync.Mutex
	pending map[string]*waiter

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

type waiter struct {
	ch     chan *Response
	gone   chan struct{}
	stream bool

	lagOnce sync.Once
	lagged  chan struct{}
}

func (w *waiter) isLagged() bool {
	select {
	case <-w.lagged:
		return true
	default:
		return false
	}
}

// Dial connects to the control socket at socketPath.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection and starts its read loop.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		enc:     newEncoder(conn),
		pending: make(map[string]*waiter),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close disconnects from the daemon. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// Done is closed when the connection is gone, either through Close or
// because the daemon went away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		c.conn.Close()
	})
}

// Call sends method with params and decodes the reply into out, which may be
// nil when the reply carries no data.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	id := uuid.NewString()
	w := c.register(id, 1, false)
	defer c.unregister(id, w)

	if err := c.send(Request{ID: id, Method: method}, params); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case resp := <-w.ch:
		if resp.Error != "" {
			return &RemoteError{Method: method, Message: resp.Error}
		}
		if out != nil && len(resp.Data) > 0 {
			if err := Unmarshal(resp.Data, out); err != nil {
				return fmt.Errorf("%s: decode reply: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("%s: %w", method, c.err)
	}
}

// Ping checks that the daemon answers on the control socket.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, MethodSystemPing, nil, nil)
}

// StreamOption configures a stream.
type StreamOption func(*streamConfig)

type streamConfig struct {
	buffer int
}

// WithBuffer sets how many undelivered frames the stream may hold. A frame
// arriving at a full buffer ends the stream with ErrStreamLagged.
func WithBuffer(n int) StreamOption {
	return func(c *streamConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Stream opens a server-streaming call. The stream lives until the server
// ends it, ctx is done, or Close is called.
func (c *Client) Stream(ctx context.Context, method string, params any, opts ...StreamOption) (*Stream, error) {
	cfg := streamConfig{buffer: DefaultStreamBuffer}
	for _, o := range opts {
		o(&cfg)
	}

	id := uuid.NewString()
	w := c.register(id, cfg.buffer, true)

	if err := c.send(Request{ID: id, Method: method, Stream: true}, params); err != nil {
		c.unregister(id, w)
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return &Stream{c: c, ctx: ctx, id: id, method: method, w: w}, nil
}

func (c *Client) send(req Request, params any) error {
	if params != nil {
		data, err := Marshal(params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		req.Params = data
	}

	select {
	case <-c.done:
		return c.err
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *Client) register(id string, buf int, stream bool) *waiter {
	w := &waiter{
		ch:     make(chan *Response, buf),
		gone:   make(chan struct{}),
		stream: stream,
		lagged: make(chan struct{}),
	}
	c.mu.Lock()
	c.pending[id] = w
	c.mu.Unlock()
	return w
}

func (c *Client) unregister(id string, w *waiter) {
	c.mu.Lock()
	if c.pending[id] == w {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	close(w.gone)
}

func (c *Client) readLoop() {
	dec := newDecoder(bufio.NewReader(c.conn))
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.shutdown(fmt.Errorf("connection lost: %w", ErrClosed))
			} else {
				c.shutdown(fmt.Errorf("connection lost: %w", err))
			}
			return
		}

		c.mu.Lock()
		w, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			continue
		}

		if w.stream {
			select {
			case w.ch <- &resp:
			case <-w.gone:
			default:
				c.lag(resp.ID, w)
			}
			continue
		}

		select {
		case w.ch <- &resp:
		case <-w.gone:
		case <-c.done:
			return
		}
	}
}

// lag ends a stream whose buffer is full: later frames for it are dropped
// and the server is asked to stop producing.
func (c *Client) lag(id string, w *waiter) {
	w.lagOnce.Do(func() {
		c.mu.Lock()
		if c.pending[id] == w {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		close(w.lagged)
		go c.send(Request{ID: id, Cancel: true}, nil)
	})
}

// Stream reads the frames of one server-streaming call.
type Stream struct {
	c      *Client
	ctx    context.Context
	id     string
	method string
	w      *waiter

	closeOnce sync.Once
	ended     atomic.Bool
}

// Recv decodes the next frame into out. It returns io.EOF once the server
// ends the stream cleanly and a *RemoteError if the server ended it with a
// failure. Recv must not be called concurrently.
func (s *Stream) Recv(out any) error {
	if s.ended.Load() {
		return io.EOF
	}
	select {
	case resp := <-s.w.ch:
		return s.frame(resp, out)
	case <-s.w.lagged:
		// Frames buffered before the overflow are still delivered.
		select {
		case resp := <-s.w.ch:
			return s.frame(resp, out)
		default:
			s.ended.Store(true)
			return fmt.Errorf("%s: %w", s.method, ErrStreamLagged)
		}
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-s.c.done:
		return fmt.Errorf("%s: %w", s.method, s.c.err)
	}
}

func (s *Stream) frame(resp *Response, out any) error {
	if resp.End {
		s.ended.Store(true)
		if resp.Error != "" {
			return &RemoteError{Method: s.method, Message: resp.Error}
		}
		return io.EOF
	}
	if err := Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s: decode frame: %w", s.method, err)
	}
	return nil
}

// Close stops the stream. If the server has not ended it yet, a cancel frame
// is sent so the server-side producer stops too. Close is idempotent and may
// be called while another goroutine is blocked in Recv.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.c.unregister(s.id, s.w)
		if !s.ended.Load() && !s.w.isLagged() {
			err = s.c.send(Request{ID: s.id, Cancel: true}, nil)
			if errors.Is(err, ErrClosed) {
				err = nil
			}
		}
	})
	return err
}
