package replica

import (
	"strconv"

	"github.com/aretw0/introspection"
)

// ReplicaState exposes internal state for observability.
type ReplicaState struct {
	Device    string `json:"device"`
	Clock     string `json:"clock"`
	LogSize   int    `json:"log_size"`
	Targets   int    `json:"targets"`
	SeenCache int    `json:"seen_cache"`
	Digest    string `json:"digest"`
	Closed    bool   `json:"closed"`
}

// State implements introspection.Introspectable.
func (r *Replica) State() any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return ReplicaState{
		Device:    string(r.device),
		Clock:     r.clock.String(),
		LogSize:   len(r.log),
		Targets:   len(r.doc),
		SeenCache: r.seen.Len(),
		Digest:    strconv.FormatUint(Digest(r.doc), 16),
		Closed:    r.closed,
	}
}

// ComponentType implements introspection.Component.
func (r *Replica) ComponentType() string {
	return "replica"
}

var _ introspection.Introspectable = (*Replica)(nil)
var _ introspection.Component = (*Replica)(nil)
