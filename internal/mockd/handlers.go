package mockd

import (
	"context"
	"fmt"

	"github.com/drewfead/arcbox-desktop/internal/control"
)

func (d *Daemon) registerHandlers() {
	d.server.Handle(control.MethodSystemPing, func(context.Context, control.RawMessage) (any, error) {
		return "pong", nil
	})

	// Containers
	d.server.Handle(control.MethodContainerList, unary(func(req control.ListRequest) (any, error) {
		return d.store.ListContainers(req.All), nil
	}))
	d.server.Handle(control.MethodContainerCreate, unary(func(req control.CreateContainerRequest) (any, error) {
		return created(d.store.CreateContainer(req))
	}))
	d.server.Handle(control.MethodContainerStart, unary(func(req control.IDRequest) (any, error) {
		return nil, d.store.StartContainer(req.ID)
	}))
	d.server.Handle(control.MethodContainerStop, unary(func(req control.StopContainerRequest) (any, error) {
		return nil, d.store.StopContainer(req.ID)
	}))
	d.server.Handle(control.MethodContainerRemove, unary(func(req control.RemoveRequest) (any, error) {
		return nil, d.store.RemoveContainer(req.ID, req.Force)
	}))
	d.server.HandleStream(control.MethodContainerLogs, d.handleLogs)

	// Images
	d.server.Handle(control.MethodImageList, unary(func(req control.ListRequest) (any, error) {
		return d.store.ListImages(req.All), nil
	}))
	d.server.Handle(control.MethodImagePull, unary(func(req control.PullImageRequest) (any, error) {
		return created(d.store.PullImage(req.Reference))
	}))
	d.server.Handle(control.MethodImageRemove, unary(func(req control.RemoveRequest) (any, error) {
		return nil, d.store.RemoveImage(req.ID, req.Force)
	}))

	// Machines
	d.server.Handle(control.MethodMachineList, unary(func(req control.ListRequest) (any, error) {
		return d.store.ListMachines(req.All), nil
	}))
	d.server.Handle(control.MethodMachineCreate, unary(func(req control.CreateMachineRequest) (any, error) {
		return created(d.store.CreateMachine(req))
	}))
	d.server.Handle(control.MethodMachineStart, unary(func(req control.IDRequest) (any, error) {
		return nil, d.store.StartMachine(req.ID)
	}))
	d.server.Handle(control.MethodMachineStop, unary(func(req control.IDRequest) (any, error) {
		return nil, d.store.StopMachine(req.ID)
	}))
	d.server.Handle(control.MethodMachineRemove, unary(func(req control.RemoveRequest) (any, error) {
		return nil, d.store.RemoveMachine(req.ID, req.Force)
	}))

	// Networks
	d.server.Handle(control.MethodNetworkList, func(context.Context, control.RawMessage) (any, error) {
		return d.store.ListNetworks(), nil
	})
	d.server.Handle(control.MethodNetworkCreate, unary(func(req control.CreateNetworkRequest) (any, error) {
		return created(d.store.CreateNetwork(req))
	}))
	d.server.Handle(control.MethodNetworkRemove, unary(func(req control.RemoveRequest) (any, error) {
		return nil, d.store.RemoveNetwork(req.ID)
	}))

	// Volumes
	d.server.Handle(control.MethodVolumeList, func(context.Context, control.RawMessage) (any, error) {
		return d.store.ListVolumes(), nil
	})
	d.server.Handle(control.MethodVolumeCreate, unary(func(req control.CreateVolumeRequest) (any, error) {
		return created(d.store.CreateVolume(req))
	}))
	d.server.Handle(control.MethodVolumeRemove, unary(func(req control.RemoveRequest) (any, error) {
		return nil, d.store.RemoveVolume(req.ID, req.Force)
	}))
}

// unary decodes and validates params before calling fn.
func unary[Req any](fn func(Req) (any, error)) control.HandlerFunc {
	return func(_ context.Context, params control.RawMessage) (any, error) {
		var req Req
		if err := control.DecodeParams(params, &req); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
		if v, ok := any(req).(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
		return fn(req)
	}
}

func created(id string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return control.CreatedResponse{ID: id}, nil
}

func (d *Daemon) handleLogs(ctx context.Context, params control.RawMessage, send func(any) error) error {
	var req control.LogsRequest
	if err := control.DecodeParams(params, &req); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if req.ID == "" {
		return control.ErrMissingID
	}
	c, err := d.store.Container(req.ID)
	if err != nil {
		return err
	}
	d.log.Debug("streaming logs", "container", c.Name, "follow", req.Follow, "tail", req.Tail)
	return d.logs.Stream(ctx, c, req, send)
}
