// Package core holds the operation coordination engine: vector clocks,
// operations, conflicts and the stateless Service that orders, transforms and
// classifies them.
package core

import (
	"fmt"
	"sort"
)

// DeviceID identifies one replica (device) taking part in an editing session.
type DeviceID string

// OperationID identifies an operation.
type OperationID string

// NewOperationID builds the identifier of the counter-th operation issued by device.
func NewOperationID(device DeviceID, counter uint64) OperationID {
	return OperationID(fmt.Sprintf("%s-%d", device, counter))
}

// State is the opaque keyed document store that operations mutate.
// Keys are target paths.
type State map[string]Payload

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Has reports whether path is present.
func (s State) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Paths returns the keys in lexical order.
func (s State) Paths() []string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
