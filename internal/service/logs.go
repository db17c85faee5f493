package service

import (
	"context"
	"errors"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/control"
)

// LogOptions selects what a log subscription streams. With neither Stdout
// nor Stderr set both are streamed. Tail 0 uses the service default and a
// negative Tail streams the whole log.
type LogOptions struct {
	ContainerID string
	Follow      bool
	Stdout      bool
	Stderr      bool
	Timestamps  bool
	Tail        int
}

func (o LogOptions) request(defaultTail int) control.LogsRequest {
	req := control.LogsRequest{
		ID:         o.ContainerID,
		Follow:     o.Follow,
		Stdout:     o.Stdout,
		Stderr:     o.Stderr,
		Timestamps: o.Timestamps,
		Tail:       o.Tail,
	}
	if !req.Stdout && !req.Stderr {
		req.Stdout, req.Stderr = true, true
	}
	switch {
	case o.Tail == 0:
		req.Tail = defaultTail
	case o.Tail < 0:
		req.Tail = 0
	}
	return req
}

// LogSubscription is one open container log stream. Entries queue in the
// stream's bounded buffer until Next hands them to Update. A reader that lets
// the buffer fill up gets a LogStreamEndedMsg carrying control.ErrStreamLagged;
// the connection itself never waits for it.
type LogSubscription struct {
	ID          string
	ContainerID string

	open   *bridge.Handle[*control.Stream]
	ctx    context.Context
	cancel context.CancelFunc

	endOnce sync.Once
}

// SubscribeLogs opens a log stream for a container. The returned command
// yields the first entry; each LogLineReceivedMsg should be followed by
// another call to Next.
func (s *Service) SubscribeLogs(opts LogOptions) (*LogSubscription, tea.Cmd) {
	if opts.ContainerID == "" {
		return nil, fail(KindContainer, ActionLogs, "", control.ErrMissingID)
	}
	if !s.IsConnected() {
		return nil, fail(KindContainer, ActionLogs, opts.ContainerID, ErrNotConnected)
	}

	ctx, cancel := context.WithCancel(s.conn)
	sub := &LogSubscription{
		ID:          uuid.NewString(),
		ContainerID: opts.ContainerID,
		ctx:         ctx,
		cancel:      cancel,
	}

	c := s.client
	req := opts.request(s.tail)
	buffer := control.WithBuffer(s.queueSize)
	sub.open = bridge.Spawn(ctx, s.exec, func(context.Context) (*control.Stream, error) {
		st, err := c.Stream(ctx, control.MethodContainerLogs, req, buffer)
		if err != nil {
			return nil, err
		}
		// Runs immediately if the subscription was closed while opening.
		context.AfterFunc(ctx, func() { st.Close() })
		return st, nil
	})

	s.subs[sub.ID] = sub
	s.log.Debug("log subscription opened", "subscription", sub.ID, "container", sub.ContainerID)
	return sub, sub.Next()
}

// Next waits for the next entry. It yields LogLineReceivedMsg for an entry,
// LogStreamEndedMsg once when the stream finishes, and nothing at all after
// Close.
func (sub *LogSubscription) Next() tea.Cmd {
	return func() tea.Msg {
		st, err := sub.open.Await(context.Background())
		if bridge.IsCancelled(err) || sub.ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return sub.end(err)
		}

		var entry control.LogEntry
		err = st.Recv(&entry)
		if sub.ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
			return LogLineReceivedMsg{SubscriptionID: sub.ID, ContainerID: sub.ContainerID, Line: entry}
		case errors.Is(err, io.EOF):
			return sub.end(nil)
		default:
			return sub.end(err)
		}
	}
}

func (sub *LogSubscription) end(err error) tea.Msg {
	var msg tea.Msg
	sub.endOnce.Do(func() {
		msg = LogStreamEndedMsg{SubscriptionID: sub.ID, ContainerID: sub.ContainerID, Err: err}
	})
	return msg
}

// Close stops the stream and releases the background open. Close is
// idempotent.
func (sub *LogSubscription) Close() {
	sub.cancel()
	sub.open.Release()
}

// Closed reports whether Close has been called.
func (sub *LogSubscription) Closed() bool {
	return sub.ctx.Err() != nil
}

// Unsubscribe closes the subscription with the given ID, if it is open.
func (s *Service) Unsubscribe(id string) {
	if sub, ok := s.subs[id]; ok {
		sub.Close()
		delete(s.subs, id)
	}
}
