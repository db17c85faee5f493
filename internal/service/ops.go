package service

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/arcbox-desktop/internal/bridge"
	"github.com/drewfead/arcbox-desktop/internal/control"
)

// fail is a command that reports an operation rejected before dispatch.
func fail(kind Kind, action Action, id string, err error) tea.Cmd {
	return func() tea.Msg {
		return OperationFailedMsg{Kind: kind, Action: action, ID: id, Err: err}
	}
}

func list[T any](s *Service, kind Kind, method string, params any) tea.Cmd {
	c := s.client
	if !s.IsConnected() {
		s.log.Warn("not connected, skipping list", "kind", kind)
		return nil
	}
	_, cmd := bridge.Go(s.conn, s.exec, func(ctx context.Context) ([]T, error) {
		var items []T
		err := c.Call(ctx, method, params, &items)
		return items, err
	}, func(items []T, err error) tea.Msg {
		if err != nil {
			return OperationFailedMsg{Kind: kind, Action: ActionList, Err: err}
		}
		return EntitiesLoadedMsg[T]{Kind: kind, Items: items}
	})
	return cmd
}

type validator interface {
	Validate() error
}

// mutate runs the validate, guard, dispatch sequence shared by every
// create/start/stop/remove. Creates report the ID the daemon assigned.
func (s *Service) mutate(kind Kind, action Action, id, method string, params validator) tea.Cmd {
	if err := params.Validate(); err != nil {
		return fail(kind, action, id, err)
	}
	if !s.IsConnected() {
		return fail(kind, action, id, ErrNotConnected)
	}

	c := s.client
	_, cmd := bridge.Go(s.conn, s.exec, func(ctx context.Context) (string, error) {
		if action == ActionCreated {
			var resp control.CreatedResponse
			if err := c.Call(ctx, method, params, &resp); err != nil {
				return "", err
			}
			if resp.ID != "" {
				return resp.ID, nil
			}
			return id, nil
		}
		return id, c.Call(ctx, method, params, nil)
	}, func(got string, err error) tea.Msg {
		if err != nil {
			return OperationFailedMsg{Kind: kind, Action: action, ID: id, Err: err}
		}
		return EntityMutatedMsg{Kind: kind, Action: action, ID: got}
	})
	return cmd
}

// Refresh re-lists one kind, including stopped containers, dangling images
// and stopped machines.
func (s *Service) Refresh(kind Kind) tea.Cmd {
	switch kind {
	case KindContainer:
		return s.ListContainers(true)
	case KindImage:
		return s.ListImages(true)
	case KindMachine:
		return s.ListMachines(true)
	case KindNetwork:
		return s.ListNetworks()
	case KindVolume:
		return s.ListVolumes()
	}
	return nil
}

// RefreshAll re-lists every kind.
func (s *Service) RefreshAll() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(Kinds))
	for _, k := range Kinds {
		cmds = append(cmds, s.Refresh(k))
	}
	return tea.Batch(cmds...)
}

// Containers

func (s *Service) ListContainers(all bool) tea.Cmd {
	return list[control.Container](s, KindContainer, control.MethodContainerList, control.ListRequest{All: all})
}

func (s *Service) CreateContainer(req control.CreateContainerRequest) tea.Cmd {
	return s.mutate(KindContainer, ActionCreated, req.Name, control.MethodContainerCreate, req)
}

func (s *Service) StartContainer(id string) tea.Cmd {
	return s.mutate(KindContainer, ActionStarted, id, control.MethodContainerStart, control.IDRequest{ID: id})
}

// StopContainer stops a container, killing it after timeout. Zero means ten
// seconds.
func (s *Service) StopContainer(id string, timeout time.Duration) tea.Cmd {
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	req := control.StopContainerRequest{ID: id, Timeout: stopSeconds(timeout)}
	return s.mutate(KindContainer, ActionStopped, id, control.MethodContainerStop, req)
}

// stopSeconds rounds a stop timeout up to whole seconds, never below one.
func stopSeconds(timeout time.Duration) uint32 {
	secs := (timeout + time.Second - 1) / time.Second
	return uint32(max(secs, 1))
}

func (s *Service) RemoveContainer(id string, force bool) tea.Cmd {
	return s.mutate(KindContainer, ActionRemoved, id, control.MethodContainerRemove, control.RemoveRequest{ID: id, Force: force})
}

// Images

func (s *Service) ListImages(all bool) tea.Cmd {
	return list[control.Image](s, KindImage, control.MethodImageList, control.ListRequest{All: all})
}

// PullImage fetches reference. A pull is reported as ActionCreated.
func (s *Service) PullImage(reference string) tea.Cmd {
	return s.mutate(KindImage, ActionCreated, reference, control.MethodImagePull, control.PullImageRequest{Reference: reference})
}

func (s *Service) RemoveImage(id string, force bool) tea.Cmd {
	return s.mutate(KindImage, ActionRemoved, id, control.MethodImageRemove, control.RemoveRequest{ID: id, Force: force})
}

// Machines

func (s *Service) ListMachines(all bool) tea.Cmd {
	return list[control.Machine](s, KindMachine, control.MethodMachineList, control.ListRequest{All: all})
}

func (s *Service) CreateMachine(req control.CreateMachineRequest) tea.Cmd {
	return s.mutate(KindMachine, ActionCreated, req.Name, control.MethodMachineCreate, req)
}

func (s *Service) StartMachine(id string) tea.Cmd {
	return s.mutate(KindMachine, ActionStarted, id, control.MethodMachineStart, control.IDRequest{ID: id})
}

func (s *Service) StopMachine(id string) tea.Cmd {
	return s.mutate(KindMachine, ActionStopped, id, control.MethodMachineStop, control.IDRequest{ID: id})
}

func (s *Service) RemoveMachine(id string, force bool) tea.Cmd {
	return s.mutate(KindMachine, ActionRemoved, id, control.MethodMachineRemove, control.RemoveRequest{ID: id, Force: force})
}

// Networks

func (s *Service) ListNetworks() tea.Cmd {
	return list[control.Network](s, KindNetwork, control.MethodNetworkList, nil)
}

func (s *Service) CreateNetwork(req control.CreateNetworkRequest) tea.Cmd {
	return s.mutate(KindNetwork, ActionCreated, req.Name, control.MethodNetworkCreate, req)
}

func (s *Service) RemoveNetwork(id string) tea.Cmd {
	return s.mutate(KindNetwork, ActionRemoved, id, control.MethodNetworkRemove, control.RemoveRequest{ID: id})
}

// Volumes

func (s *Service) ListVolumes() tea.Cmd {
	return list[control.Volume](s, KindVolume, control.MethodVolumeList, nil)
}

func (s *Service) CreateVolume(req control.CreateVolumeRequest) tea.Cmd {
	return s.mutate(KindVolume, ActionCreated, req.Name, control.MethodVolumeCreate, req)
}

// RemoveVolume removes the volume called name.
func (s *Service) RemoveVolume(name string, force bool) tea.Cmd {
	return s.mutate(KindVolume, ActionRemoved, name, control.MethodVolumeRemove, control.RemoveRequest{ID: name, Force: force})
}
