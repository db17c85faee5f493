package service

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/drewfead/arcbox-desktop/internal/control"
)

// Inventory is the foreground cache of the latest listing per kind. It is
// updated from Update and read by views; it has no locking.
type Inventory struct {
	Containers []control.Container
	Images     []control.Image
	Machines   []control.Machine
	Networks   []control.Network
	Volumes    []control.Volume

	// LastError is the most recent failed operation, if any.
	LastError *OperationFailedMsg

	loaded map[Kind]bool
}

// NewInventory returns an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{loaded: make(map[Kind]bool)}
}

// Loaded reports whether kind has been listed at least once.
func (inv *Inventory) Loaded(kind Kind) bool {
	return inv.loaded[kind]
}

// Count returns the number of cached items of kind.
func (inv *Inventory) Count(kind Kind) int {
	switch kind {
	case KindContainer:
		return len(inv.Containers)
	case KindImage:
		return len(inv.Images)
	case KindMachine:
		return len(inv.Machines)
	case KindNetwork:
		return len(inv.Networks)
	case KindVolume:
		return len(inv.Volumes)
	}
	return 0
}

// Update applies listings and failures. It reports whether msg was one the
// inventory consumes.
func (inv *Inventory) Update(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case ContainersLoadedMsg:
		inv.Containers = msg.Items
	case ImagesLoadedMsg:
		inv.Images = msg.Items
	case MachinesLoadedMsg:
		inv.Machines = msg.Items
	case NetworksLoadedMsg:
		inv.Networks = msg.Items
	case VolumesLoadedMsg:
		inv.Volumes = msg.Items
	case OperationFailedMsg:
		inv.LastError = &msg
		return true
	default:
		return false
	}
	if kind, ok := loadedKind(msg); ok {
		inv.loaded[kind] = true
	}
	inv.LastError = nil
	return true
}

// Clear drops every cached listing, e.g. after a disconnect.
func (inv *Inventory) Clear() {
	*inv = Inventory{loaded: make(map[Kind]bool)}
}

func loadedKind(msg tea.Msg) (Kind, bool) {
	switch msg := msg.(type) {
	case ContainersLoadedMsg:
		return msg.Kind, true
	case ImagesLoadedMsg:
		return msg.Kind, true
	case MachinesLoadedMsg:
		return msg.Kind, true
	case NetworksLoadedMsg:
		return msg.Kind, true
	case VolumesLoadedMsg:
		return msg.Kind, true
	}
	return "", false
}
