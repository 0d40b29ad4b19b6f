package core

// TransformMode tells a payload why it is being transformed.
type TransformMode string

const (
	// TransformOperational adjusts a payload so it can be applied after a
	// concurrent sibling has already been applied.
	TransformOperational TransformMode = "OPERATIONAL_TRANSFORM"
)

// Payload is the data carried by an operation. Implementations must be
// immutable: Transform returns a new value and never modifies the receiver.
type Payload interface {
	Transform(other Payload, mode TransformMode) (Payload, error)
}
