package main

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/arcbox-desktop/internal/daemon"
	"github.com/drewfead/arcbox-desktop/internal/service"
)

// session drives the supervisor and the service without a tea.Program:
// commands run on goroutines and every message is applied on the calling
// goroutine, the same way the dashboard sees them.
type session struct {
	sup  *daemon.Supervisor
	svc  *service.Service
	inv  *service.Inventory
	msgs chan tea.Msg
	done chan struct{}
}

func newSession(sup *daemon.Supervisor, svc *service.Service) *session {
	return &session{
		sup:  sup,
		svc:  svc,
		inv:  service.NewInventory(),
		msgs: make(chan tea.Msg, 64),
		done: make(chan struct{}),
	}
}

// close stops delivering messages. Commands still running are abandoned.
func (s *session) close() {
	close(s.done)
}

func (s *session) exec(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		switch msg := cmd().(type) {
		case nil:
		case tea.BatchMsg:
			for _, c := range msg {
				s.exec(c)
			}
		default:
			select {
			case s.msgs <- msg:
			case <-s.done:
			}
		}
	}()
}

func (s *session) apply(msg tea.Msg) {
	s.exec(s.sup.Update(msg))
	s.exec(s.svc.Update(msg))
	s.inv.Update(msg)
}

// run executes cmd and applies messages until until accepts one.
func (s *session) run(ctx context.Context, cmd tea.Cmd, until func(tea.Msg) bool) (tea.Msg, error) {
	s.exec(cmd)
	for {
		select {
		case msg := <-s.msgs:
			s.apply(msg)
			if until(msg) {
				return msg, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// connect dials the control socket.
func (s *session) connect(ctx context.Context) error {
	if s.svc.IsConnected() {
		return nil
	}
	msg, err := s.run(ctx, s.svc.Connect(), func(msg tea.Msg) bool {
		sc, ok := msg.(service.ConnectionStateChangedMsg)
		return ok && sc.State.Status != service.Connecting
	})
	if err != nil {
		return err
	}
	if st := msg.(service.ConnectionStateChangedMsg).State; st.Status != service.Connected {
		return fmt.Errorf("%s (is the daemon running? try: arcbox-desktop start)", st.Reason)
	}
	return nil
}

// startDaemon runs a startup attempt to completion.
func (s *session) startDaemon(ctx context.Context) (daemon.State, error) {
	cmd := s.sup.Start()
	if cmd == nil {
		return s.sup.State(), nil
	}
	msg, err := s.run(ctx, cmd, func(msg tea.Msg) bool {
		sc, ok := msg.(daemon.StateChangedMsg)
		return ok && sc.State.Phase != daemon.Starting
	})
	if err != nil {
		return s.sup.State(), err
	}
	return msg.(daemon.StateChangedMsg).State, nil
}

// do runs one service operation and returns the message that settled it:
// a listing, a mutation, or a failure.
func (s *session) do(ctx context.Context, cmd tea.Cmd, kind service.Kind) (tea.Msg, error) {
	if cmd == nil {
		return nil, errors.New("nothing to do")
	}
	msg, err := s.run(ctx, cmd, func(msg tea.Msg) bool {
		switch msg := msg.(type) {
		case service.OperationFailedMsg:
			return msg.Kind == kind
		case service.EntityMutatedMsg:
			return msg.Kind == kind
		}
		return isListing(msg, kind)
	})
	if err != nil {
		return nil, err
	}
	if failed, ok := msg.(service.OperationFailedMsg); ok {
		return nil, failed
	}
	return msg, nil
}

func isListing(msg tea.Msg, kind service.Kind) bool {
	switch msg := msg.(type) {
	case service.ContainersLoadedMsg:
		return msg.Kind == kind
	case service.ImagesLoadedMsg:
		return msg.Kind == kind
	case service.MachinesLoadedMsg:
		return msg.Kind == kind
	case service.NetworksLoadedMsg:
		return msg.Kind == kind
	case service.VolumesLoadedMsg:
		return msg.Kind == kind
	}
	return false
}
