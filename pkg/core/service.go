package core

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ClusteringMode selects how DetectConflicts groups concurrent operations
// that share a target.
type ClusteringMode string

const (
	// ClusterPairwise emits one conflict per concurrent pair. Every conflict
	// holds operations that are mutually concurrent.
	ClusterPairwise ClusteringMode = "pairwise"
	// ClusterConnected emits one conflict per connected component of the
	// "is concurrent with" graph. Members of a component are not necessarily
	// pairwise concurrent.
	ClusterConnected ClusteringMode = "connected"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Logger     *slog.Logger
	Clustering ClusteringMode
}

// Service coordinates collections of operations: conflict detection,
// causal ordering, transformation and dependency analysis. It holds no
// operation state and is safe for concurrent use.
type Service struct {
	logger     *slog.Logger
	clustering ClusteringMode
	newID      func() string
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clustering := cfg.Clustering
	if clustering == "" {
		clustering = ClusterPairwise
	}
	return &Service{
		logger:     logger,
		clustering: clustering,
		newID:      uuid.NewString,
	}
}

// ApplyOperation applies op to state and returns the new state.
func (s *Service) ApplyOperation(ctx context.Context, op Operation, state State) (State, error) {
	next, err := op.ApplyTo(state)
	if err != nil {
		s.logger.DebugContext(ctx, "operation not applied", "operation", op.ID(), "path", op.TargetPath(), "error", err)
		return nil, err
	}
	return next, nil
}

// TransformOperation transforms op against every concurrent operation in against.
func (s *Service) TransformOperation(ctx context.Context, op Operation, against []Operation) (Operation, error) {
	return op.TransformAgainstOperations(against)
}

func (s *Service) CanOperationsCommute(a, b Operation) bool {
	return a.CanCommuteWith(b)
}

func validateOperations(ops []Operation) error {
	for i, op := range ops {
		if op.IsZero() {
			return invalid("operations", fmt.Sprintf("element %d is not a constructed operation", i))
		}
	}
	return nil
}

// DetectConflicts groups ops by target path and reports a Conflict for every
// set of concurrent operations, according to the configured clustering.
// A pair whose classification fails is logged and skipped.
func (s *Service) DetectConflicts(ctx context.Context, ops []Operation) ([]Conflict, error) {
	if err := validateOperations(ops); err != nil {
		return nil, err
	}

	var paths []string
	groups := make(map[string][]Operation)
	seen := make(map[OperationID]struct{}, len(ops))
	for _, op := range ops {
		if _, dup := seen[op.id]; dup {
			continue
		}
		seen[op.id] = struct{}{}
		if _, ok := groups[op.path]; !ok {
			paths = append(paths, op.path)
		}
		groups[op.path] = append(groups[op.path], op)
	}

	var conflicts []Conflict
	for _, path := range paths {
		group := groups[path]
		if len(group) < 2 {
			continue
		}
		switch s.clustering {
		case ClusterConnected:
			conflicts = append(conflicts, s.connectedConflicts(ctx, path, group)...)
		default:
			conflicts = append(conflicts, s.pairwiseConflicts(ctx, path, group)...)
		}
	}

	if len(conflicts) > 0 {
		s.logger.DebugContext(ctx, "conflicts detected", "count", len(conflicts), "operations", len(ops))
	}
	return conflicts, nil
}

func (s *Service) pairwiseConflicts(ctx context.Context, path string, group []Operation) []Conflict {
	var out []Conflict
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			a, b := group[i], group[j]
			ct, ok, err := classify(a, b)
			if err != nil {
				s.logger.WarnContext(ctx, "skipping conflict check", "path", path, "a", a.id, "b", b.id, "error", err)
				continue
			}
			if !ok {
				continue
			}
			c, err := NewConflict(s.newID(), ct, path, []Operation{a, b})
			if err != nil {
				s.logger.WarnContext(ctx, "skipping conflict", "path", path, "error", err)
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) connectedConflicts(ctx context.Context, path string, group []Operation) []Conflict {
	parent := make([]int, len(group))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	types := make(map[int]ConflictType)
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			ct, ok, err := classify(group[i], group[j])
			if err != nil {
				s.logger.WarnContext(ctx, "skipping conflict check", "path", path, "a", group[i].id, "b", group[j].id, "error", err)
				continue
			}
			if !ok {
				continue
			}
			ri, rj := find(i), find(j)
			if ri != rj {
				parent[rj] = ri
				if types[rj].priority() > types[ri].priority() {
					types[ri] = types[rj]
				}
				delete(types, rj)
			}
			if _, set := types[ri]; !set || ct.priority() > types[ri].priority() {
				types[ri] = ct
			}
		}
	}

	var roots []int
	members := make(map[int][]Operation)
	for i, op := range group {
		r := find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], op)
	}

	var out []Conflict
	for _, r := range roots {
		if len(members[r]) < 2 {
			continue
		}
		c, err := NewConflict(s.newID(), types[r], path, members[r])
		if err != nil {
			s.logger.WarnContext(ctx, "skipping conflict", "path", path, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

// classify guards DetectConflictWith so a misbehaving pair cannot abort a batch.
func classify(a, b Operation) (ct ConflictType, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, recovered("classify "+string(a.id)+"/"+string(b.id), r)
		}
	}()
	ct, ok = a.DetectConflictWith(b)
	return ct, ok, nil
}

// CalculateOperationDependencies maps every operation to the operations it
// causally depends on, in input order.
func (s *Service) CalculateOperationDependencies(ctx context.Context, ops []Operation) map[OperationID][]OperationID {
	deps := make(map[OperationID][]OperationID, len(ops))
	for _, op := range ops {
		list := deps[op.id]
		if list == nil {
			list = []OperationID{}
		}
		for _, other := range ops {
			if other.id == op.id {
				continue
			}
			if op.HasCausalDependencyOn(other) {
				list = append(list, other.id)
			}
		}
		deps[op.id] = list
	}
	return deps
}

// OrderOperations returns ops in an order where every operation comes after
// the operations it causally depends on. Causally unrelated operations are
// ordered by logical timestamp, then id, then input position. Operations that
// cannot be placed are reported as a CircularDependencyError.
func (s *Service) OrderOperations(ctx context.Context, ops []Operation) ([]Operation, error) {
	if err := validateOperations(ops); err != nil {
		return nil, err
	}

	n := len(ops)
	successors := make([][]int, n)
	indegree := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && ops[i].HasCausalDependencyOn(ops[j]) {
				successors[j] = append(successors[j], i)
				indegree[i]++
			}
		}
	}

	ready := &readyQueue{ops: ops}
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	ordered := make([]Operation, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		ordered = append(ordered, ops[i])
		for _, k := range successors[i] {
			indegree[k]--
			if indegree[k] == 0 {
				heap.Push(ready, k)
			}
		}
	}

	if len(ordered) < n {
		var stuck []OperationID
		for i := 0; i < n; i++ {
			if indegree[i] > 0 {
				stuck = append(stuck, ops[i].id)
			}
		}
		err := &CircularDependencyError{Operations: stuck}
		s.logger.ErrorContext(ctx, "cannot order operations", "error", err)
		return nil, err
	}

	s.logger.DebugContext(ctx, "operations ordered", "count", n)
	return ordered, nil
}

// readyQueue is a min-heap of operation indices.
type readyQueue struct {
	ops []Operation
	idx []int
}

func (q *readyQueue) Len() int { return len(q.idx) }

func (q *readyQueue) Less(a, b int) bool {
	i, j := q.idx[a], q.idx[b]
	if c := compareOperations(q.ops[i], q.ops[j]); c != 0 {
		return c < 0
	}
	return i < j
}

func (q *readyQueue) Swap(a, b int) { q.idx[a], q.idx[b] = q.idx[b], q.idx[a] }

func (q *readyQueue) Push(x any) { q.idx = append(q.idx, x.(int)) }

func (q *readyQueue) Pop() any {
	n := len(q.idx) - 1
	x := q.idx[n]
	q.idx = q.idx[:n]
	return x
}

// ResolveConflict computes the outcome of an automatic strategy and records it
// on a resolved copy of c:
//   - LAST_WRITER_WINS keeps LatestOperation,
//   - FIRST_WRITER_WINS keeps EarliestOperation,
//   - MERGE_OPERATIONS yields every operation in causal order, each transformed
//     against the ones placed before it.
func (s *Service) ResolveConflict(ctx context.Context, c Conflict, strategy ResolutionStrategy) (Conflict, error) {
	var result any
	switch strategy {
	case LastWriterWins:
		result = c.LatestOperation()
	case FirstWriterWins:
		result = c.EarliestOperation()
	case MergeOperations:
		ordered, err := s.OrderOperations(ctx, c.operations)
		if err != nil {
			return Conflict{}, err
		}
		merged := make([]Operation, 0, len(ordered))
		for _, op := range ordered {
			next, err := op.TransformAgainstOperations(merged)
			if err != nil {
				return Conflict{}, err
			}
			merged = append(merged, next)
		}
		result = merged
	case UserDecisionRequired:
		return Conflict{}, fmt.Errorf("%w: %s", ErrManualResolution, c.id)
	default:
		return Conflict{}, fmt.Errorf("%w: %w", ErrInvalidStrategy, invalid("resolution strategy", string(strategy)))
	}

	resolved, err := c.ResolveWith(strategy, result)
	if err != nil {
		return Conflict{}, err
	}
	s.logger.DebugContext(ctx, "conflict resolved", "conflict", c.id, "type", c.conflictType, "strategy", strategy)
	return resolved, nil
}

// AutoResolve settles c with the first automatic option that succeeds. A
// merge of operations that do not commute fails, so the next option is tried.
func (s *Service) AutoResolve(ctx context.Context, c Conflict) (Conflict, error) {
	if c.IsResolved() {
		return Conflict{}, fmt.Errorf("%w: %s", ErrConflictAlreadyResolved, c.id)
	}
	var lastErr error
	for _, opt := range c.options {
		if !opt.Automatic {
			continue
		}
		resolved, err := s.ResolveConflict(ctx, c, opt.Strategy)
		if err == nil {
			return resolved, nil
		}
		s.logger.DebugContext(ctx, "automatic option failed", "conflict", c.id, "strategy", opt.Strategy, "error", err)
		lastErr = err
	}
	if lastErr != nil {
		return Conflict{}, lastErr
	}
	return Conflict{}, fmt.Errorf("%w: %s", ErrManualResolution, c.id)
}
