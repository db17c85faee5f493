package control

import (
	"errors"
	"fmt"
	"regexp"
)

// Method names served by the daemon.
const (
	MethodSystemPing = "system.ping"

	MethodContainerList   = "container.list"
	MethodContainerCreate = "container.create"
	MethodContainerStart  = "container.start"
	MethodContainerStop   = "container.stop"
	MethodContainerRemove = "container.remove"
	MethodContainerLogs   = "container.logs" // streaming

	MethodImageList   = "image.list"
	MethodImagePull   = "image.pull"
	MethodImageRemove = "image.remove"

	MethodMachineList   = "machine.list"
	MethodMachineCreate = "machine.create"
	MethodMachineStart  = "machine.start"
	MethodMachineStop   = "machine.stop"
	MethodMachineRemove = "machine.remove"

	MethodNetworkList   = "network.list"
	MethodNetworkCreate = "network.create"
	MethodNetworkRemove = "network.remove"

	MethodVolumeList   = "volume.list"
	MethodVolumeCreate = "volume.create"
	MethodVolumeRemove = "volume.remove"
)

var (
	ErrMissingID   = errors.New("id is required")
	ErrMissingName = errors.New("name is required")
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

func validName(name string) error {
	if name == "" {
		return ErrMissingName
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

// ListRequest filters a listing. All includes stopped containers, unused
// images and stopped machines.
type ListRequest struct {
	All bool `json:"all"`
}

// IDRequest addresses one entity.
type IDRequest struct {
	ID string `json:"id"`
}

// Validate reports a missing ID.
func (r IDRequest) Validate() error {
	if r.ID == "" {
		return ErrMissingID
	}
	return nil
}

// RemoveRequest removes one entity. For volumes ID is the volume name.
type RemoveRequest struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
}

// Validate reports a missing ID.
func (r RemoveRequest) Validate() error {
	if r.ID == "" {
		return ErrMissingID
	}
	return nil
}

// CreatedResponse is the reply to every create call.
type CreatedResponse struct {
	ID string `json:"id"`
}

// CreateContainerRequest describes a new container.
type CreateContainerRequest struct {
	Name  string        `json:"name,omitempty"`
	Image string        `json:"image"`
	Cmd   []string      `json:"cmd,omitempty"`
	Env   []string      `json:"env,omitempty"`
	Ports []PortMapping `json:"ports,omitempty"`
}

// Validate checks the image and optional name.
func (r CreateContainerRequest) Validate() error {
	if r.Image == "" {
		return errors.New("image is required")
	}
	if r.Name != "" {
		if err := validName(r.Name); err != nil {
			return err
		}
	}
	for _, p := range r.Ports {
		if p.ContainerPort == 0 {
			return errors.New("container port must be set")
		}
	}
	return nil
}

// StopContainerRequest stops a container, killing it after Timeout seconds.
type StopContainerRequest struct {
	ID      string `json:"id"`
	Timeout uint32 `json:"timeout"`
}

// Validate reports a missing ID.
func (r StopContainerRequest) Validate() error {
	if r.ID == "" {
		return ErrMissingID
	}
	return nil
}

// LogsRequest opens a container log stream.
type LogsRequest struct {
	ID         string `json:"id"`
	Follow     bool   `json:"follow"`
	Stdout     bool   `json:"stdout"`
	Stderr     bool   `json:"stderr"`
	Timestamps bool   `json:"timestamps"`
	Tail       int    `json:"tail"` // 0 means all
}

// PullImageRequest pulls an image by reference, e.g. "nginx:latest".
type PullImageRequest struct {
	Reference string `json:"reference"`
}

// Validate reports a missing reference.
func (r PullImageRequest) Validate() error {
	if r.Reference == "" {
		return errors.New("image reference is required")
	}
	return nil
}

// CreateMachineRequest describes a new Linux machine.
type CreateMachineRequest struct {
	Name     string `json:"name"`
	Distro   string `json:"distro"`
	CPUCores uint32 `json:"cpu_cores,omitempty"`
	MemoryGB uint32 `json:"memory_gb,omitempty"`
	DiskGB   uint32 `json:"disk_gb,omitempty"`
}

// Validate checks the name and distro.
func (r CreateMachineRequest) Validate() error {
	if err := validName(r.Name); err != nil {
		return err
	}
	if r.Distro == "" {
		return errors.New("distro is required")
	}
	return nil
}

// CreateNetworkRequest describes a new network.
type CreateNetworkRequest struct {
	Name       string `json:"name"`
	Driver     string `json:"driver,omitempty"`
	Internal   bool   `json:"internal,omitempty"`
	Attachable bool   `json:"attachable,omitempty"`
}

// Validate checks the name.
func (r CreateNetworkRequest) Validate() error {
	return validName(r.Name)
}

// CreateVolumeRequest describes a new volume.
type CreateVolumeRequest struct {
	Name   string            `json:"name"`
	Driver string            `json:"driver,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// Validate checks the name.
func (r CreateVolumeRequest) Validate() error {
	return validName(r.Name)
}
