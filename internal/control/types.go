package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// ContainerState is the lifecycle state the daemon reports for a container.
type ContainerState string

const (
	ContainerCreated    ContainerState = "created"
	ContainerRunning    ContainerState = "running"
	ContainerStopped    ContainerState = "stopped"
	ContainerRestarting ContainerState = "restarting"
	ContainerPaused     ContainerState = "paused"
	ContainerDead       ContainerState = "dead"
)

// IsRunning reports whether the container is up.
func (s ContainerState) IsRunning() bool { return s == ContainerRunning }

// Label is the capitalized state name shown in lists.
func (s ContainerState) Label() string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// PortMapping publishes a container port on the host.
type PortMapping struct {
	HostPort      uint16 `json:"host_port"`
	ContainerPort uint16 `json:"container_port"`
	Protocol      string `json:"protocol,omitempty"`
}

// Container is a container as listed by the daemon.
type Container struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Image          string         `json:"image"`
	State          ContainerState `json:"state"`
	Ports          []PortMapping  `json:"ports,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ComposeProject string         `json:"compose_project,omitempty"`
	CPUPercent     float64        `json:"cpu_percent"`
	MemoryMB       float64        `json:"memory_mb"`
	MemoryLimitMB  float64        `json:"memory_limit_mb"`
}

// IsRunning reports whether the container is up.
func (c Container) IsRunning() bool { return c.State.IsRunning() }

// ShortID is the first 12 characters of the ID.
func (c Container) ShortID() string { return shortID(c.ID) }

// PortsDisplay renders the port mappings as "8080:80, 443:443", or "-".
func (c Container) PortsDisplay() string {
	if len(c.Ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(c.Ports))
	for _, p := range c.Ports {
		parts = append(parts, fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort))
	}
	return strings.Join(parts, ", ")
}

// CreatedAgo renders the creation time relative to now.
func (c Container) CreatedAgo() string { return ago(c.CreatedAt) }

// Image is a local image.
type Image struct {
	ID           string    `json:"id"`
	Repository   string    `json:"repository"`
	Tag          string    `json:"tag"`
	SizeBytes    uint64    `json:"size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
	InUse        bool      `json:"in_use"`
	OS           string    `json:"os,omitempty"`
	Architecture string    `json:"architecture,omitempty"`
}

// FullName is "repository:tag". Dangling images show as "<none>:tag".
func (i Image) FullName() string {
	repo := i.Repository
	if repo == "" {
		repo = "<none>"
	}
	return repo + ":" + i.Tag
}

// ShortID is the digest without its algorithm prefix, cut to 12 characters.
func (i Image) ShortID() string { return shortID(strings.TrimPrefix(i.ID, "sha256:")) }

// SizeDisplay renders the size in decimal units.
func (i Image) SizeDisplay() string { return humanSize(i.SizeBytes) }

// CreatedAgo renders the creation time relative to now.
func (i Image) CreatedAgo() string { return ago(i.CreatedAt) }

// ImageStats summarises a list of images.
type ImageStats struct {
	TotalSize   uint64
	UnusedSize  uint64
	TotalCount  int
	UnusedCount int
}

// CalculateImageStats totals sizes and counts, split by whether an image is
// used by any container.
func CalculateImageStats(images []Image) ImageStats {
	var s ImageStats
	for _, img := range images {
		s.TotalSize += img.SizeBytes
		s.TotalCount++
		if !img.InUse {
			s.UnusedSize += img.SizeBytes
			s.UnusedCount++
		}
	}
	return s
}

// MachineState is the lifecycle state of a Linux machine.
type MachineState string

const (
	MachineRunning  MachineState = "running"
	MachineStopped  MachineState = "stopped"
	MachineStarting MachineState = "starting"
	MachineStopping MachineState = "stopping"
)

// IsRunning reports whether the machine is up.
func (s MachineState) IsRunning() bool { return s == MachineRunning }

// Distro identifies a machine's Linux distribution.
type Distro struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	DisplayName string `json:"display_name"`
}

// Machine is a Linux machine managed by the daemon.
type Machine struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Distro    Distro       `json:"distro"`
	State     MachineState `json:"state"`
	CPUCores  uint32       `json:"cpu_cores"`
	MemoryGB  uint32       `json:"memory_gb"`
	DiskGB    uint32       `json:"disk_gb"`
	IPAddress string       `json:"ip_address,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// IsRunning reports whether the machine is up.
func (m Machine) IsRunning() bool { return m.State.IsRunning() }

// ResourcesDisplay renders the machine's allocation.
func (m Machine) ResourcesDisplay() string {
	return fmt.Sprintf("%d cores, %d GB RAM, %d GB disk", m.CPUCores, m.MemoryGB, m.DiskGB)
}

// Network is a container network.
type Network struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Driver         string    `json:"driver"`
	Scope          string    `json:"scope"`
	CreatedAt      time.Time `json:"created_at"`
	Internal       bool      `json:"internal"`
	Attachable     bool      `json:"attachable"`
	ContainerCount int       `json:"container_count"`
}

// ShortID is the first 12 characters of the ID.
func (n Network) ShortID() string { return shortID(n.ID) }

// DriverDisplay renders "driver (scope)".
func (n Network) DriverDisplay() string { return fmt.Sprintf("%s (%s)", n.Driver, n.Scope) }

// UsageDisplay renders how many containers are attached.
func (n Network) UsageDisplay() string {
	switch n.ContainerCount {
	case 0:
		return "No containers"
	case 1:
		return "1 container"
	default:
		return fmt.Sprintf("%d containers", n.ContainerCount)
	}
}

// IsSystem reports whether this is one of the built-in networks.
func (n Network) IsSystem() bool {
	switch n.Name {
	case "bridge", "host", "none":
		return true
	}
	return false
}

// Volume is a named volume. SizeBytes is nil when the daemon has not
// measured it.
type Volume struct {
	Name           string    `json:"name"`
	Driver         string    `json:"driver"`
	MountPoint     string    `json:"mount_point"`
	SizeBytes      *uint64   `json:"size_bytes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	InUse          bool      `json:"in_use"`
	ContainerNames []string  `json:"container_names,omitempty"`
}

// SizeDisplay renders the size, or "N/A" when unknown.
func (v Volume) SizeDisplay() string {
	if v.SizeBytes == nil {
		return "N/A"
	}
	return humanSize(*v.SizeBytes)
}

// UsageDisplay names the container using the volume, or counts them.
func (v Volume) UsageDisplay() string {
	if !v.InUse {
		return "Unused"
	}
	if len(v.ContainerNames) == 1 {
		return "Used by " + v.ContainerNames[0]
	}
	return fmt.Sprintf("Used by %d containers", len(v.ContainerNames))
}

// LogEntry is one chunk of container output. Data may hold several lines.
type LogEntry struct {
	Stream    string `json:"stream"` // "stdout" or "stderr"
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds, 0 when not requested
}

// Time converts the timestamp, returning the zero time when it is unset.
func (e LogEntry) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(0, e.Timestamp)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func humanSize(b uint64) string {
	return units.HumanSizeWithPrecision(float64(b), 3)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	if d < time.Minute {
		return "just now"
	}
	return units.HumanDuration(d) + " ago"
}
