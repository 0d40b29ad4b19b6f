package core

import (
	"fmt"
	"sort"
	"time"
)

// Conflict groups two or more concurrent operations on the same target
// together with the ways it may be resolved. Values are immutable; ResolveWith
// returns a resolved copy.
type Conflict struct {
	id           string
	conflictType ConflictType
	path         string
	operations   []Operation
	detectedAt   time.Time
	options      []ResolutionOption

	resolvedAt time.Time
	selected   ResolutionStrategy
	result     any
}

// NewConflict validates its input and generates the resolution options for
// conflictType.
func NewConflict(id string, conflictType ConflictType, path string, ops []Operation) (Conflict, error) {
	if id == "" {
		return Conflict{}, invalid("conflict id", "must not be empty")
	}
	if path == "" {
		return Conflict{}, invalid("target path", "must not be empty")
	}
	if len(ops) < 2 {
		return Conflict{}, invalid("conflicting operations", fmt.Sprintf("need at least 2, got %d", len(ops)))
	}

	c := Conflict{
		id:           id,
		conflictType: conflictType,
		path:         path,
		operations:   append([]Operation(nil), ops...),
		detectedAt:   time.Now().UTC(),
	}
	c.options = c.generateOptions()
	return c, nil
}

func (c Conflict) generateOptions() []ResolutionOption {
	switch c.conflictType {
	case ConflictStructural:
		return []ResolutionOption{
			{
				Strategy:    MergeOperations,
				Description: "Apply all structural changes; they commute after transformation",
				Automatic:   true,
			},
			{
				Strategy:      LastWriterWins,
				Description:   "Keep the most recent change",
				ResultPreview: c.LatestOperation(),
				Automatic:     true,
			},
		}
	case ConflictSemantic:
		return []ResolutionOption{
			{
				Strategy:    UserDecisionRequired,
				Description: "The changes alter the meaning of the proof; a person must choose",
			},
			{
				Strategy:      LastWriterWins,
				Description:   "Keep the most recent change",
				ResultPreview: c.LatestOperation(),
				Automatic:     true,
			},
		}
	case ConflictDeletion:
		return []ResolutionOption{
			{
				Strategy:    UserDecisionRequired,
				Description: "An element was deleted while being edited elsewhere",
			},
			{
				Strategy:      FirstWriterWins,
				Description:   "Keep the earliest change",
				ResultPreview: c.EarliestOperation(),
				Automatic:     true,
			},
		}
	case ConflictConcurrentModification:
		return []ResolutionOption{
			{
				Strategy:      LastWriterWins,
				Description:   "Keep the most recent change",
				ResultPreview: c.LatestOperation(),
				Automatic:     true,
			},
			{
				Strategy:    UserDecisionRequired,
				Description: "Let a person pick the surviving change",
			},
		}
	}
	return nil
}

func (c Conflict) ID() string            { return c.id }
func (c Conflict) Type() ConflictType    { return c.conflictType }
func (c Conflict) TargetPath() string    { return c.path }
func (c Conflict) DetectedAt() time.Time { return c.detectedAt }

// Operations returns a copy of the conflicting operations.
func (c Conflict) Operations() []Operation {
	return append([]Operation(nil), c.operations...)
}

// ResolutionOptions returns a copy of the generated options.
func (c Conflict) ResolutionOptions() []ResolutionOption {
	return append([]ResolutionOption(nil), c.options...)
}

func (c Conflict) IsResolved() bool {
	return !c.resolvedAt.IsZero()
}

func (c Conflict) ResolvedAt() (time.Time, bool) {
	return c.resolvedAt, c.IsResolved()
}

func (c Conflict) SelectedResolution() (ResolutionStrategy, bool) {
	return c.selected, c.IsResolved()
}

func (c Conflict) ResolutionResult() any {
	return c.result
}

// HasOption reports whether strategy is among the generated options.
func (c Conflict) HasOption(strategy ResolutionStrategy) bool {
	for _, opt := range c.options {
		if opt.Strategy == strategy {
			return true
		}
	}
	return false
}

func (c Conflict) CanBeAutomaticallyResolved() bool {
	for _, opt := range c.options {
		if opt.Automatic {
			return true
		}
	}
	return false
}

func (c Conflict) RequiresUserDecision() bool {
	return c.conflictType.IsSemantic() || !c.CanBeAutomaticallyResolved()
}

// InvolvedDevices returns the distinct authors, sorted.
func (c Conflict) InvolvedDevices() []DeviceID {
	seen := make(map[DeviceID]struct{}, len(c.operations))
	devices := make([]DeviceID, 0, len(c.operations))
	for _, op := range c.operations {
		if _, ok := seen[op.device]; ok {
			continue
		}
		seen[op.device] = struct{}{}
		devices = append(devices, op.device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i] < devices[j] })
	return devices
}

// Severity is a heuristic: semantic conflicts are high, crowded ones medium.
func (c Conflict) Severity() Severity {
	switch {
	case c.conflictType.IsSemantic():
		return SeverityHigh
	case len(c.operations) > 3:
		return SeverityMedium
	}
	return SeverityLow
}

// LatestOperation picks, among operations no other operation causally
// follows, the one with the greatest logical timestamp. The result does not
// depend on the order of the operations.
func (c Conflict) LatestOperation() Operation {
	return pickExtreme(c.operations, func(a, b Operation) bool { return b.HasCausalDependencyOn(a) }, 1)
}

// EarliestOperation is the mirror of LatestOperation.
func (c Conflict) EarliestOperation() Operation {
	return pickExtreme(c.operations, func(a, b Operation) bool { return a.HasCausalDependencyOn(b) }, -1)
}

// pickExtreme drops every op dominated by another (per dominated(op, other))
// and returns the survivor whose timestamp compares as sign against the rest.
func pickExtreme(ops []Operation, dominated func(op, other Operation) bool, sign int) Operation {
	var best Operation
	for i, op := range ops {
		skip := false
		for j, other := range ops {
			if i != j && dominated(op, other) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if best.IsZero() || compareOperations(op, best)*sign > 0 {
			best = op
		}
	}
	return best
}

// compareOperations is the deterministic tie-break: timestamp, then id.
func compareOperations(a, b Operation) int {
	if c := a.timestamp.Compare(b.timestamp); c != 0 {
		return c
	}
	switch {
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	}
	return 0
}

// ResolveWith settles the conflict with one of its offered strategies.
// Resolution happens once; the receiver is left untouched.
func (c Conflict) ResolveWith(strategy ResolutionStrategy, result any) (Conflict, error) {
	if c.IsResolved() {
		return Conflict{}, fmt.Errorf("%w: %s", ErrConflictAlreadyResolved, c.id)
	}
	if !c.HasOption(strategy) {
		return Conflict{}, fmt.Errorf("%w: %w", ErrInvalidStrategy,
			invalid("resolution strategy", fmt.Sprintf("%s is not offered for %s conflict %s", strategy, c.conflictType, c.id)))
	}
	resolved := c
	resolved.resolvedAt = time.Now().UTC()
	resolved.selected = strategy
	resolved.result = result
	return resolved, nil
}
