package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrValidation               = errors.New("validation failed")
	ErrConflictAlreadyResolved  = errors.New("conflict already resolved")
	ErrInvalidStrategy          = errors.New("invalid resolution strategy")
	ErrManualResolution         = errors.New("conflict requires a user decision")
	ErrOperationNotApplicable   = errors.New("operation not applicable")
	ErrUnsupportedOperationType = errors.New("unsupported operation type")
	ErrCircularDependency       = errors.New("circular dependency")
	ErrCannotCommute            = errors.New("operations cannot commute")
	ErrTransformFailed          = errors.New("transform failed")
	ErrUnexpected               = errors.New("unexpected failure")
)

// ValidationError reports a malformed value at construction time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Reasons carried by NotApplicableError.
const (
	ReasonTargetNotFound      = "target not found"
	ReasonTargetAlreadyExists = "target already exists"
)

// NotApplicableError is returned when an operation's preconditions do not hold
// against the document state.
type NotApplicableError struct {
	OperationID OperationID
	Path        string
	Reason      string
}

func (e *NotApplicableError) Error() string {
	return fmt.Sprintf("operation %s not applicable to %q: %s", e.OperationID, e.Path, e.Reason)
}

func (e *NotApplicableError) Is(target error) bool {
	return target == ErrOperationNotApplicable
}

// CircularDependencyError lists the operations that could not be placed in a
// causal order.
type CircularDependencyError struct {
	Operations []OperationID
}

func (e *CircularDependencyError) Error() string {
	ids := make([]string, len(e.Operations))
	for i, id := range e.Operations {
		ids[i] = string(id)
	}
	return fmt.Sprintf("circular dependency between operations [%s]", strings.Join(ids, ", "))
}

func (e *CircularDependencyError) Is(target error) bool {
	return target == ErrCircularDependency
}

// recovered converts a recovered panic value into an error wrapping ErrUnexpected.
func recovered(where string, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %s: %w", ErrUnexpected, where, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnexpected, where, r)
}
