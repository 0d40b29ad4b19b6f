package core

// ConflictType classifies a conflict between concurrent operations.
type ConflictType string

const (
	ConflictStructural             ConflictType = "STRUCTURAL"
	ConflictSemantic               ConflictType = "SEMANTIC"
	ConflictDeletion               ConflictType = "DELETION"
	ConflictConcurrentModification ConflictType = "CONCURRENT_MODIFICATION"
)

func (c ConflictType) IsStructural() bool { return c == ConflictStructural }
func (c ConflictType) IsSemantic() bool   { return c == ConflictSemantic }

// priority orders classifications when several apply to one group.
func (c ConflictType) priority() int {
	switch c {
	case ConflictDeletion:
		return 3
	case ConflictSemantic:
		return 2
	case ConflictStructural:
		return 1
	}
	return 0
}

// Severity is a coarse urgency hint for conflict handlers.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ResolutionStrategy names a way of settling a conflict.
type ResolutionStrategy string

const (
	LastWriterWins       ResolutionStrategy = "LAST_WRITER_WINS"
	FirstWriterWins      ResolutionStrategy = "FIRST_WRITER_WINS"
	MergeOperations      ResolutionStrategy = "MERGE_OPERATIONS"
	UserDecisionRequired ResolutionStrategy = "USER_DECISION_REQUIRED"
)

// ResolutionOption is one strategy offered for a conflict.
type ResolutionOption struct {
	Strategy    ResolutionStrategy
	Description string
	// ResultPreview shows what the strategy would keep, when known.
	ResultPreview any
	Automatic     bool
}
