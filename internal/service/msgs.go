package service

import (
	"fmt"

	"github.com/drewfead/arcbox-desktop/internal/control"
)

// Kind names an entity collection.
type Kind string

const (
	KindContainer Kind = "container"
	KindImage     Kind = "image"
	KindMachine   Kind = "machine"
	KindNetwork   Kind = "network"
	KindVolume    Kind = "volume"
)

// Kinds lists every entity kind in display order.
var Kinds = []Kind{KindContainer, KindImage, KindMachine, KindNetwork, KindVolume}

// Action is what a successful mutation did.
type Action string

const (
	ActionCreated Action = "created"
	ActionStarted Action = "started"
	ActionStopped Action = "stopped"
	ActionRemoved Action = "removed"
)

// verb is the imperative form used in failure messages.
func (a Action) verb() string {
	switch a {
	case ActionCreated:
		return "create"
	case ActionStarted:
		return "start"
	case ActionStopped:
		return "stop"
	case ActionRemoved:
		return "remove"
	default:
		return string(a)
	}
}

// ActionList marks a failed listing in OperationFailedMsg.
const ActionList Action = "list"

// ActionLogs marks a failed log subscription in OperationFailedMsg.
const ActionLogs Action = "logs"

// ConnectionStateChangedMsg is emitted whenever the connection state moves.
type ConnectionStateChangedMsg struct {
	State ConnectionState
}

// ConnectionLostMsg reports that an established connection dropped.
type ConnectionLostMsg struct {
	Err error

	gen uint64
}

// EntitiesLoadedMsg carries a fresh listing.
type EntitiesLoadedMsg[T any] struct {
	Kind  Kind
	Items []T
}

// ContainersLoadedMsg and friends name the concrete listing messages.
type (
	ContainersLoadedMsg = EntitiesLoadedMsg[control.Container]
	ImagesLoadedMsg     = EntitiesLoadedMsg[control.Image]
	MachinesLoadedMsg   = EntitiesLoadedMsg[control.Machine]
	NetworksLoadedMsg   = EntitiesLoadedMsg[control.Network]
	VolumesLoadedMsg    = EntitiesLoadedMsg[control.Volume]
)

// EntityMutatedMsg reports a successful create, start, stop or remove.
type EntityMutatedMsg struct {
	Kind   Kind
	Action Action
	ID     string
}

// OperationFailedMsg reports an operation that was rejected before dispatch,
// failed in transport, or was refused by the daemon. Nothing is retried.
type OperationFailedMsg struct {
	Kind   Kind
	Action Action
	ID     string
	Err    error
}

func (m OperationFailedMsg) Error() string {
	return fmt.Sprintf("Failed to %s %s: %v", m.Action.verb(), m.Kind, m.Err)
}

func (m OperationFailedMsg) Unwrap() error { return m.Err }

// LogLineReceivedMsg carries one log entry from a subscription.
type LogLineReceivedMsg struct {
	SubscriptionID string
	ContainerID    string
	Line           control.LogEntry
}

// LogStreamEndedMsg is delivered once when a subscription's stream finishes.
// Err is nil when the daemon ended the stream cleanly.
type LogStreamEndedMsg struct {
	SubscriptionID string
	ContainerID    string
	Err            error
}
