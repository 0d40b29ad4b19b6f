package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Operation is an immutable edit record. Transformations return new values.
type Operation struct {
	id        OperationID
	device    DeviceID
	opType    OperationType
	path      string
	payload   Payload
	clock     VectorClock
	timestamp LogicalTimestamp
	parent    OperationID
}

// OperationOption customises NewOperation.
type OperationOption func(*Operation)

// WithID overrides the identifier derived from the author's counter.
func WithID(id OperationID) OperationOption {
	return func(o *Operation) {
		o.id = id
	}
}

// WithParent records the operation this one was derived from.
func WithParent(id OperationID) OperationOption {
	return func(o *Operation) {
		o.parent = id
	}
}

// NewOperation builds an operation authored by device. The clock must be the
// author's snapshot including its own increment for this operation.
func NewOperation(device DeviceID, t OperationType, path string, payload Payload, clock VectorClock, opts ...OperationOption) (Operation, error) {
	if device == "" {
		return Operation{}, invalid("device id", "must not be empty")
	}
	if path == "" {
		return Operation{}, invalid("target path", "must not be empty")
	}

	op := Operation{
		id:      NewOperationID(device, clock.Get(device)),
		device:  device,
		opType:  t,
		path:    path,
		payload: payload,
		clock:   clock,
	}
	for _, opt := range opts {
		opt(&op)
	}
	if op.id == "" {
		return Operation{}, invalid("operation id", "must not be empty")
	}
	op.timestamp = TimestampFromClock(clock)
	return op, nil
}

func (o Operation) ID() OperationID             { return o.id }
func (o Operation) Device() DeviceID            { return o.device }
func (o Operation) Type() OperationType         { return o.opType }
func (o Operation) TargetPath() string          { return o.path }
func (o Operation) Payload() Payload            { return o.payload }
func (o Operation) Clock() VectorClock          { return o.clock }
func (o Operation) Timestamp() LogicalTimestamp { return o.timestamp }

// Parent returns the operation this one derives from, if any.
func (o Operation) Parent() (OperationID, bool) {
	return o.parent, o.parent != ""
}

// IsZero reports whether o was never constructed.
func (o Operation) IsZero() bool {
	return o.id == ""
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s %s @{%s}", o.id, o.opType, o.path, o.clock)
}

// CanCommuteWith is true for operations on different targets, and for
// structural operations on the same target whose types commute.
func (o Operation) CanCommuteWith(other Operation) bool {
	if o.path != other.path {
		return true
	}
	return o.opType.CanCommuteWith(other.opType)
}

// HasCausalDependencyOn reports whether other happened before o.
func (o Operation) HasCausalDependencyOn(other Operation) bool {
	return o.clock.HappensAfter(other.clock)
}

// IsConcurrentWith reports whether neither operation's clock happens before the other's.
func (o Operation) IsConcurrentWith(other Operation) bool {
	return o.clock.IsConcurrentWith(other.clock)
}

// TransformWith rewrites o so it can be applied after other. Operations on
// different targets do not interact: o is returned as is and its payload is
// not consulted. The same holds when o already causally follows other.
func (o Operation) TransformWith(other Operation) (result Operation, err error) {
	if !o.CanCommuteWith(other) {
		return Operation{}, fmt.Errorf("%w: %s (%s) and %s (%s) on %q",
			ErrCannotCommute, o.id, o.opType, other.id, other.opType, o.path)
	}
	if o.path != other.path || o.HasCausalDependencyOn(other) {
		return o, nil
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = Operation{}, recovered("transform "+string(o.id), r)
		}
	}()

	var next Payload
	if o.payload != nil {
		next, err = o.payload.Transform(other.payload, TransformOperational)
		if err != nil {
			return Operation{}, fmt.Errorf("%w: %s against %s: %w", ErrTransformFailed, o.id, other.id, err)
		}
	}

	transformed := o
	transformed.id = OperationID(string(o.device) + "-" + uuid.NewString())
	transformed.payload = next
	return transformed, nil
}

// TransformAgainstOperations folds TransformWith over every operation in ops
// that is concurrent with the running result. The first failure aborts.
func (o Operation) TransformAgainstOperations(ops []Operation) (Operation, error) {
	current := o
	for _, other := range ops {
		if other.id == o.id || !current.IsConcurrentWith(other) {
			continue
		}
		next, err := current.TransformWith(other)
		if err != nil {
			return Operation{}, err
		}
		current = next
	}
	return current, nil
}

// ApplyTo checks o's preconditions against state and returns a new state with
// the edit applied. The input state is never modified.
func (o Operation) ApplyTo(state State) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = nil, recovered("apply "+string(o.id), r)
		}
	}()

	exists := state.Has(o.path)
	switch operationTypes[o.opType].action {
	case actionCreate:
		if exists {
			return nil, &NotApplicableError{OperationID: o.id, Path: o.path, Reason: ReasonTargetAlreadyExists}
		}
		next = state.Clone()
		next[o.path] = o.payload
	case actionUpdate:
		if !exists {
			return nil, &NotApplicableError{OperationID: o.id, Path: o.path, Reason: ReasonTargetNotFound}
		}
		next = state.Clone()
		next[o.path] = o.payload
	case actionDelete:
		if !exists {
			return nil, &NotApplicableError{OperationID: o.id, Path: o.path, Reason: ReasonTargetNotFound}
		}
		next = state.Clone()
		delete(next, o.path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperationType, o.opType)
	}
	return next, nil
}

// DetectConflictWith classifies the conflict between two concurrent
// operations on the same target. Deletions take precedence over semantic
// edits, which take precedence over structural ones.
func (o Operation) DetectConflictWith(other Operation) (ConflictType, bool) {
	if o.id == other.id || o.path != other.path || !o.IsConcurrentWith(other) {
		return "", false
	}
	switch {
	case o.opType.IsDeletion() || other.opType.IsDeletion():
		return ConflictDeletion, true
	case o.opType.IsSemantic() || other.opType.IsSemantic():
		return ConflictSemantic, true
	case o.opType.IsStructural() || other.opType.IsStructural():
		return ConflictStructural, true
	}
	return ConflictConcurrentModification, true
}
