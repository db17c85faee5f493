package mockd

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drewfead/arcbox-desktop/internal/control"
)

// Store is the mock daemon's in-memory inventory.
type Store struct {
	mu         sync.Mutex
	containers []control.Container
	images     []control.Image
	machines   []control.Machine
	networks   []control.Network
	volumes    []control.Volume

	now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func ptr[T any](v T) *T { return &v }

// Seed fills the store with a small, plausible inventory.
func (s *Store) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.images = []control.Image{
		{ID: "sha256:" + newID(), Repository: "nginx", Tag: "latest", SizeBytes: 187_000_000, CreatedAt: now.Add(-72 * time.Hour), InUse: true, OS: "linux", Architecture: "arm64"},
		{ID: "sha256:" + newID(), Repository: "postgres", Tag: "16", SizeBytes: 432_000_000, CreatedAt: now.Add(-240 * time.Hour), InUse: true, OS: "linux", Architecture: "arm64"},
		{ID: "sha256:" + newID(), Repository: "alpine", Tag: "3.20", SizeBytes: 8_800_000, CreatedAt: now.Add(-720 * time.Hour), OS: "linux", Architecture: "arm64"},
	}
	s.containers = []control.Container{
		{ID: newID(), Name: "web", Image: "nginx:latest", State: control.ContainerRunning, CreatedAt: now.Add(-2 * time.Hour),
			Ports: []control.PortMapping{{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}}, ComposeProject: "demo", CPUPercent: 0.4, MemoryMB: 12, MemoryLimitMB: 512},
		{ID: newID(), Name: "db", Image: "postgres:16", State: control.ContainerRunning, CreatedAt: now.Add(-2 * time.Hour),
			Ports: []control.PortMapping{{HostPort: 5432, ContainerPort: 5432, Protocol: "tcp"}}, ComposeProject: "demo", CPUPercent: 1.2, MemoryMB: 64, MemoryLimitMB: 1024},
		{ID: newID(), Name: "migrate", Image: "alpine:3.20", State: control.ContainerStopped, CreatedAt: now.Add(-26 * time.Hour)},
	}
	s.machines = []control.Machine{
		{ID: newID(), Name: "ubuntu", Distro: control.Distro{Name: "ubuntu", Version: "24.04", DisplayName: "Ubuntu 24.04 LTS"},
			State: control.MachineRunning, CPUCores: 4, MemoryGB: 8, DiskGB: 64, IPAddress: "192.168.64.2", CreatedAt: now.Add(-480 * time.Hour)},
	}
	s.networks = []control.Network{
		{ID: newID(), Name: "bridge", Driver: "bridge", Scope: "local", CreatedAt: now.Add(-720 * time.Hour), ContainerCount: 1},
		{ID: newID(), Name: "host", Driver: "host", Scope: "local", CreatedAt: now.Add(-720 * time.Hour)},
		{ID: newID(), Name: "none", Driver: "null", Scope: "local", CreatedAt: now.Add(-720 * time.Hour)},
		{ID: newID(), Name: "demo_default", Driver: "bridge", Scope: "local", CreatedAt: now.Add(-2 * time.Hour), Attachable: true, ContainerCount: 2},
	}
	s.volumes = []control.Volume{
		{Name: "demo_pgdata", Driver: "local", MountPoint: "/var/lib/arcbox/volumes/demo_pgdata", SizeBytes: ptr(uint64(52_400_000)),
			CreatedAt: now.Add(-2 * time.Hour), InUse: true, ContainerNames: []string{"db"}},
		{Name: "scratch", Driver: "local", MountPoint: "/var/lib/arcbox/volumes/scratch", CreatedAt: now.Add(-96 * time.Hour)},
	}
}

// notFound matches the daemon's wording so clients see realistic errors.
func notFound(kind, id string) error {
	return fmt.Errorf("No such %s: %s", kind, id)
}

// matchID accepts a full ID, a unique prefix of at least four characters,
// or a name.
func matchID(id, fullID, name string) bool {
	if id == fullID || id == name {
		return true
	}
	return len(id) >= 4 && strings.HasPrefix(fullID, id)
}

// Containers

func (s *Store) ListContainers(all bool) []control.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]control.Container, 0, len(s.containers))
	for _, c := range s.containers {
		if all || c.IsRunning() {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) container(id string) (int, error) {
	for i, c := range s.containers {
		if matchID(id, c.ID, c.Name) {
			return i, nil
		}
	}
	return -1, notFound("container", id)
}

// Container returns one container.
func (s *Store) Container(id string) (control.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.container(id)
	if err != nil {
		return control.Container{}, err
	}
	return s.containers[i], nil
}

func (s *Store) CreateContainer(req control.CreateContainerRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasImage(req.Image) {
		return "", fmt.Errorf("No such image: %s", req.Image)
	}
	name := req.Name
	if name == "" {
		name = "arcbox_" + newID()[:8]
	}
	for _, c := range s.containers {
		if c.Name == name {
			return "", fmt.Errorf("Conflict. The container name %q is already in use", name)
		}
	}
	c := control.Container{
		ID:        newID(),
		Name:      name,
		Image:     req.Image,
		State:     control.ContainerCreated,
		Ports:     req.Ports,
		CreatedAt: s.now(),
	}
	s.containers = append(s.containers, c)
	return c.ID, nil
}

func (s *Store) StartContainer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.container(id)
	if err != nil {
		return err
	}
	s.containers[i].State = control.ContainerRunning
	return nil
}

func (s *Store) StopContainer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.container(id)
	if err != nil {
		return err
	}
	s.containers[i].State = control.ContainerStopped
	s.containers[i].CPUPercent = 0
	s.containers[i].MemoryMB = 0
	return nil
}

func (s *Store) RemoveContainer(id string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.container(id)
	if err != nil {
		return err
	}
	if s.containers[i].IsRunning() && !force {
		return fmt.Errorf("cannot remove running container %s: stop the container before removing or force remove", s.containers[i].Name)
	}
	s.containers = slices.Delete(s.containers, i, i+1)
	return nil
}

// Images

func (s *Store) hasImage(ref string) bool {
	for _, img := range s.images {
		if img.FullName() == ref || img.Repository == ref || img.ID == ref {
			return true
		}
	}
	return false
}

func (s *Store) ListImages(all bool) []control.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]control.Image, 0, len(s.images))
	for _, img := range s.images {
		if all || img.Repository != "" {
			out = append(out, img)
		}
	}
	return out
}

// PullImage adds reference to the store, or refreshes it if present.
func (s *Store) PullImage(reference string) (string, error) {
	repo, tag, ok := strings.Cut(reference, ":")
	if !ok {
		tag = "latest"
	}
	if repo == "" {
		return "", fmt.Errorf("invalid reference format: %q", reference)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, img := range s.images {
		if img.Repository == repo && img.Tag == tag {
			s.images[i].CreatedAt = s.now()
			return img.ID, nil
		}
	}
	img := control.Image{
		ID:           "sha256:" + newID(),
		Repository:   repo,
		Tag:          tag,
		SizeBytes:    uint64(len(reference)) * 3_000_000,
		CreatedAt:    s.now(),
		OS:           "linux",
		Architecture: "arm64",
	}
	s.images = append(s.images, img)
	return img.ID, nil
}

func (s *Store) RemoveImage(id string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, img := range s.images {
		if matchID(id, img.ID, img.FullName()) || matchID(id, strings.TrimPrefix(img.ID, "sha256:"), "") {
			if img.InUse && !force {
				return fmt.Errorf("conflict: unable to remove image %s: image is being used by a container", img.FullName())
			}
			s.images = slices.Delete(s.images, i, i+1)
			return nil
		}
	}
	return notFound("image", id)
}

// Machines

func (s *Store) ListMachines(all bool) []control.Machine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]control.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		if all || m.IsRunning() {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) machine(id string) (int, error) {
	for i, m := range s.machines {
		if matchID(id, m.ID, m.Name) {
			return i, nil
		}
	}
	return -1, notFound("machine", id)
}

func (s *Store) CreateMachine(req control.CreateMachineRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.machines {
		if m.Name == req.Name {
			return "", fmt.Errorf("machine %q already exists", req.Name)
		}
	}
	m := control.Machine{
		ID:        newID(),
		Name:      req.Name,
		Distro:    control.Distro{Name: req.Distro, DisplayName: req.Distro},
		State:     control.MachineStopped,
		CPUCores:  orDefault(req.CPUCores, 2),
		MemoryGB:  orDefault(req.MemoryGB, 4),
		DiskGB:    orDefault(req.DiskGB, 32),
		CreatedAt: s.now(),
	}
	s.machines = append(s.machines, m)
	return m.ID, nil
}

func orDefault(v, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}

func (s *Store) setMachineState(id string, st control.MachineState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.machine(id)
	if err != nil {
		return err
	}
	s.machines[i].State = st
	if st == control.MachineRunning {
		s.machines[i].IPAddress = fmt.Sprintf("192.168.64.%d", i+2)
	} else {
		s.machines[i].IPAddress = ""
	}
	return nil
}

func (s *Store) StartMachine(id string) error { return s.setMachineState(id, control.MachineRunning) }

func (s *Store) StopMachine(id string) error { return s.setMachineState(id, control.MachineStopped) }

func (s *Store) RemoveMachine(id string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.machine(id)
	if err != nil {
		return err
	}
	if s.machines[i].IsRunning() && !force {
		return fmt.Errorf("machine %s is running", s.machines[i].Name)
	}
	s.machines = slices.Delete(s.machines, i, i+1)
	return nil
}

// Networks

func (s *Store) ListNetworks() []control.Network {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.networks)
}

func (s *Store) CreateNetwork(req control.CreateNetworkRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.networks {
		if n.Name == req.Name {
			return "", fmt.Errorf("network with name %s already exists", req.Name)
		}
	}
	driver := req.Driver
	if driver == "" {
		driver = "bridge"
	}
	n := control.Network{
		ID:         newID(),
		Name:       req.Name,
		Driver:     driver,
		Scope:      "local",
		CreatedAt:  s.now(),
		Internal:   req.Internal,
		Attachable: req.Attachable,
	}
	s.networks = append(s.networks, n)
	return n.ID, nil
}

func (s *Store) RemoveNetwork(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.networks {
		if !matchID(id, n.ID, n.Name) {
			continue
		}
		if n.IsSystem() {
			return fmt.Errorf("%s is a pre-defined network and cannot be removed", n.Name)
		}
		if n.ContainerCount > 0 {
			return fmt.Errorf("error while removing network: network %s has active endpoints", n.Name)
		}
		s.networks = slices.Delete(s.networks, i, i+1)
		return nil
	}
	return notFound("network", id)
}

// Volumes

func (s *Store) ListVolumes() []control.Volume {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.volumes)
}

func (s *Store) CreateVolume(req control.CreateVolumeRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.volumes {
		if v.Name == req.Name {
			return v.Name, nil
		}
	}
	driver := req.Driver
	if driver == "" {
		driver = "local"
	}
	s.volumes = append(s.volumes, control.Volume{
		Name:       req.Name,
		Driver:     driver,
		MountPoint: "/var/lib/arcbox/volumes/" + req.Name,
		CreatedAt:  s.now(),
	})
	return req.Name, nil
}

func (s *Store) RemoveVolume(name string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.volumes {
		if v.Name != name {
			continue
		}
		if v.InUse && !force {
			return fmt.Errorf("remove %s: volume is in use", name)
		}
		s.volumes = slices.Delete(s.volumes, i, i+1)
		return nil
	}
	return notFound("volume", name)
}
