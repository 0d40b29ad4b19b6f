package core

import "fmt"

// OperationType is the closed set of edits the engine understands.
type OperationType uint8

const (
	OpUnknown OperationType = iota
	OpCreateStatement
	OpUpdateStatement
	OpDeleteStatement
	OpCreateArgument
	OpUpdateArgument
	OpDeleteArgument
	OpCreateTree
	OpUpdateTree
	OpDeleteTree
	OpCreateConnection
	OpUpdateConnection
	OpDeleteConnection
)

// TargetKind is the kind of document element an operation addresses.
type TargetKind string

const (
	KindStatement  TargetKind = "statement"
	KindArgument   TargetKind = "argument"
	KindTree       TargetKind = "tree"
	KindConnection TargetKind = "connection"
)

type action uint8

const (
	actionNone action = iota
	actionCreate
	actionUpdate
	actionDelete
)

type typeInfo struct {
	tag    string
	kind   TargetKind
	action action
}

var operationTypes = map[OperationType]typeInfo{
	OpCreateStatement:  {"CREATE_STATEMENT", KindStatement, actionCreate},
	OpUpdateStatement:  {"UPDATE_STATEMENT", KindStatement, actionUpdate},
	OpDeleteStatement:  {"DELETE_STATEMENT", KindStatement, actionDelete},
	OpCreateArgument:   {"CREATE_ARGUMENT", KindArgument, actionCreate},
	OpUpdateArgument:   {"UPDATE_ARGUMENT", KindArgument, actionUpdate},
	OpDeleteArgument:   {"DELETE_ARGUMENT", KindArgument, actionDelete},
	OpCreateTree:       {"CREATE_TREE", KindTree, actionCreate},
	OpUpdateTree:       {"UPDATE_TREE", KindTree, actionUpdate},
	OpDeleteTree:       {"DELETE_TREE", KindTree, actionDelete},
	OpCreateConnection: {"CREATE_CONNECTION", KindConnection, actionCreate},
	OpUpdateConnection: {"UPDATE_CONNECTION", KindConnection, actionUpdate},
	OpDeleteConnection: {"DELETE_CONNECTION", KindConnection, actionDelete},
}

var operationTags = func() map[string]OperationType {
	m := make(map[string]OperationType, len(operationTypes))
	for t, info := range operationTypes {
		m[info.tag] = t
	}
	return m
}()

// ParseOperationType maps a wire tag such as "CREATE_STATEMENT" to its type.
func ParseOperationType(tag string) (OperationType, error) {
	t, ok := operationTags[tag]
	if !ok {
		return OpUnknown, fmt.Errorf("%w: %q", ErrUnsupportedOperationType, tag)
	}
	return t, nil
}

// Valid reports whether t is one of the known operation types.
func (t OperationType) Valid() bool {
	_, ok := operationTypes[t]
	return ok
}

func (t OperationType) String() string {
	if info, ok := operationTypes[t]; ok {
		return info.tag
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// Kind returns the element kind addressed by t, or "" for unknown types.
func (t OperationType) Kind() TargetKind {
	return operationTypes[t].kind
}

func (t OperationType) IsCreation() bool { return operationTypes[t].action == actionCreate }
func (t OperationType) IsUpdate() bool   { return operationTypes[t].action == actionUpdate }
func (t OperationType) IsDeletion() bool { return operationTypes[t].action == actionDelete }

// IsStructural reports whether t changes the shape of the proof graph:
// adding or removing arguments, trees and connections, or moving a tree.
func (t OperationType) IsStructural() bool {
	switch t {
	case OpCreateArgument, OpDeleteArgument,
		OpCreateTree, OpUpdateTree, OpDeleteTree,
		OpCreateConnection, OpDeleteConnection:
		return true
	}
	return false
}

// IsSemantic reports whether t changes what the proof means: rewriting an
// argument's inference or rewiring a connection.
func (t OperationType) IsSemantic() bool {
	return t == OpUpdateArgument || t == OpUpdateConnection
}

// CanCommuteWith reports whether two operations of these types on the same
// target may be applied in either order after transformation. Only structural
// pairs commute: two creations, or two tree moves.
func (t OperationType) CanCommuteWith(other OperationType) bool {
	if !t.IsStructural() || !other.IsStructural() {
		return false
	}
	if t.IsCreation() && other.IsCreation() {
		return true
	}
	return t == OpUpdateTree && other == OpUpdateTree
}

func (t OperationType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedOperationType, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *OperationType) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
