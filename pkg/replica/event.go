package replica

import (
	"fmt"
	"strings"

	"github.com/aretw0/concord/pkg/core"
)

// EventKind is the type of change a replica reports.
type EventKind string

const (
	EventIssued   EventKind = "ISSUED"
	EventApplied  EventKind = "APPLIED"
	EventSkipped  EventKind = "SKIPPED"
	EventConflict EventKind = "CONFLICT"
)

// Event is emitted on the replica's Events channel.
type Event struct {
	Kind      EventKind
	Device    core.DeviceID
	Operation core.OperationID
	Path      string
	// Conflict is set for EventConflict.
	Conflict core.ConflictType
	// Err is the reason of an EventSkipped.
	Err error
}

func (e Event) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s on %s", e.Device, e.Kind, e.Operation, e.Path)
	if e.Conflict != "" {
		fmt.Fprintf(&sb, " (%s)", e.Conflict)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}
