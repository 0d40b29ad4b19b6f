// Package replica integrates operations authored locally and received from
// peers into one document, using the coordination service to detect, order,
// transform and resolve.
package replica

import (
	"context"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/aretw0/concord/pkg/core"
)

// ErrSuperseded marks a received operation that lost a conflict.
var ErrSuperseded = errors.New("superseded by a concurrent operation")

// ErrClosed is returned by operations on a closed replica.
var ErrClosed = errors.New("replica closed")

// Skipped is a received operation that was not integrated.
type Skipped struct {
	Operation core.OperationID
	Err       error
}

// Report summarizes one Receive call.
type Report struct {
	Applied    []core.OperationID
	Skipped    []Skipped
	Duplicates int
	// Conflicts holds every conflict the received operations took part in.
	// Automatically settled conflicts are resolved; the rest await a user
	// decision.
	Conflicts []core.Conflict
}

// Replica is one participant of a collaborative session. It is safe for
// concurrent use.
type Replica struct {
	device  core.DeviceID
	service *core.Service
	logger  *slog.Logger
	metrics *Metrics
	events  chan Event

	mu     sync.Mutex
	clock  core.VectorClock
	doc    core.State
	log    []core.Operation
	index  map[core.OperationID]int
	seen   *lru.Cache[core.OperationID, struct{}]
	closed bool
}

// New creates a replica authoring operations as device.
func New(device core.DeviceID, opts ...Option) (*Replica, error) {
	if device == "" {
		return nil, errors.Wrap(core.ErrValidation, "replica device must not be empty")
	}
	o := options{
		seenSize:    DefaultSeenCacheSize,
		eventBuffer: DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.service == nil {
		o.service = core.NewService(core.ServiceConfig{Logger: o.logger})
	}
	if o.eventBuffer < 0 {
		o.eventBuffer = 0
	}

	seen, err := lru.New[core.OperationID, struct{}](o.seenSize)
	if err != nil {
		return nil, errors.Wrap(err, "seen cache")
	}

	doc := o.document.Clone()
	return &Replica{
		device:  device,
		service: o.service,
		logger:  o.logger.With("device", string(device)),
		metrics: NewMetrics(o.registerer, string(device)),
		events:  make(chan Event, o.eventBuffer),
		clock:   core.NewVectorClock(),
		doc:     doc,
		index:   make(map[core.OperationID]int),
		seen:    seen,
	}, nil
}

func (r *Replica) Device() core.DeviceID { return r.device }

// Events returns the channel replica events are published on. It is closed
// by Close.
func (r *Replica) Events() <-chan Event { return r.events }

// Metrics returns the replica collectors.
func (r *Replica) Metrics() *Metrics { return r.metrics }

// Clock returns the replica's current vector clock.
func (r *Replica) Clock() core.VectorClock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock
}

// Document returns a copy of the current document.
func (r *Replica) Document() core.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Clone()
}

// Log returns the integrated operations in integration order, as authored.
// A received operation that was transformed before being applied is listed
// under its original id and payload, so the log can be relayed to peers.
func (r *Replica) Log() []core.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Operation(nil), r.log...)
}

// Digest hashes the current document. See Digest.
func (r *Replica) Digest() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Digest(r.doc)
}

// Close closes the Events channel. Further Issue and Receive calls fail.
func (r *Replica) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.events)
	return nil
}

// Issue authors a local operation: the replica clock is incremented, the
// operation applied to the document and appended to the log. Nothing changes
// when the operation does not apply.
func (r *Replica) Issue(ctx context.Context, t core.OperationType, path string, p core.Payload) (core.Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.Operation{}, ErrClosed
	}

	clock := r.clock.Increment(r.device)
	op, err := core.NewOperation(r.device, t, path, p, clock)
	if err != nil {
		return core.Operation{}, err
	}
	next, err := r.service.ApplyOperation(ctx, op, r.doc)
	if err != nil {
		return core.Operation{}, errors.Wrapf(err, "issue %s", op.ID())
	}

	r.clock = clock
	r.commit(op, next)
	r.metrics.Issued.Inc()
	r.logger.DebugContext(ctx, "operation issued", "operation", op.ID(), "type", op.Type(), "path", path)
	r.emit(Event{Kind: EventIssued, Device: r.device, Operation: op.ID(), Path: path})
	return op, nil
}

// Receive integrates operations from peers. Re-delivered operations are
// dropped. The rest are placed in causal order and, one by one:
//   - applied as they are when nothing concurrent touched their target,
//   - transformed against the concurrent local operations they commute with,
//   - or settled through the automatic resolution of their conflicts; the
//     loser of a conflict is skipped.
//
// The replica clock absorbs every received clock, integrated or not.
func (r *Replica) Receive(ctx context.Context, ops ...core.Operation) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Report{}, ErrClosed
	}
	for i, op := range ops {
		if op.IsZero() {
			return Report{}, errors.Wrapf(core.ErrValidation, "received operation %d is not constructed", i)
		}
	}

	var report Report
	fresh := make([]core.Operation, 0, len(ops))
	batch := make(map[core.OperationID]struct{}, len(ops))
	for _, op := range ops {
		_, inBatch := batch[op.ID()]
		if inBatch || r.known(op.ID()) {
			report.Duplicates++
			r.metrics.Duplicates.Inc()
			continue
		}
		batch[op.ID()] = struct{}{}
		fresh = append(fresh, op)
	}

	ordered, err := r.service.OrderOperations(ctx, fresh)
	if err != nil {
		return report, err
	}
	for _, op := range ordered {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.integrate(ctx, op, &report)
	}

	r.logger.DebugContext(ctx, "operations received",
		"applied", len(report.Applied), "skipped", len(report.Skipped),
		"duplicates", report.Duplicates, "conflicts", len(report.Conflicts))
	return report, nil
}

func (r *Replica) known(id core.OperationID) bool {
	if _, ok := r.index[id]; ok {
		return true
	}
	return r.seen.Contains(id)
}

func (r *Replica) integrate(ctx context.Context, op core.Operation, report *Report) {
	r.seen.Add(op.ID(), struct{}{})
	r.clock = r.clock.Merge(op.Clock())

	var concurrent []core.Operation
	commuting := true
	for _, local := range r.log {
		if local.TargetPath() == op.TargetPath() && local.IsConcurrentWith(op) {
			concurrent = append(concurrent, local)
			commuting = commuting && commutesOnDocument(local, op)
		}
	}

	if len(concurrent) == 0 {
		r.apply(ctx, op, op, false, report)
		return
	}

	conflicts, err := r.service.DetectConflicts(ctx, append(append([]core.Operation(nil), concurrent...), op))
	if err != nil {
		r.skip(ctx, op, err, report)
		return
	}
	var involved []core.Conflict
	for _, c := range conflicts {
		if involves(c, op.ID()) {
			involved = append(involved, c)
			r.metrics.Conflicts.WithLabelValues(string(c.Type())).Inc()
			r.emit(Event{Kind: EventConflict, Device: r.device, Operation: op.ID(), Path: op.TargetPath(), Conflict: c.Type()})
		}
	}

	if commuting {
		report.Conflicts = append(report.Conflicts, involved...)
		transformed, err := op.TransformAgainstOperations(concurrent)
		if err != nil {
			r.skip(ctx, op, err, report)
			return
		}
		r.apply(ctx, op, transformed, false, report)
		return
	}

	wins := true
	var lost error
	for _, c := range involved {
		resolved, err := r.settle(ctx, c)
		if err != nil {
			report.Conflicts = append(report.Conflicts, c)
			wins, lost = false, err
			continue
		}
		report.Conflicts = append(report.Conflicts, resolved)
		if winner, ok := resolved.ResolutionResult().(core.Operation); ok && winner.ID() != op.ID() {
			wins, lost = false, errors.Wrapf(ErrSuperseded, "%s wins", winner.ID())
		}
	}
	if !wins {
		r.skip(ctx, op, lost, report)
		return
	}
	r.apply(ctx, op, op, true, report)
}

// commutesOnDocument reports whether a and b can both be applied to the
// document. Two creations of one target commute as operations, but the target
// holds a single payload.
func commutesOnDocument(a, b core.Operation) bool {
	if a.Type().IsCreation() && b.Type().IsCreation() {
		return false
	}
	return a.CanCommuteWith(b)
}

// settle resolves c with its first automatic option that keeps a single
// operation. A merge keeps all of them, which one target cannot hold.
func (r *Replica) settle(ctx context.Context, c core.Conflict) (core.Conflict, error) {
	for _, opt := range c.ResolutionOptions() {
		if !opt.Automatic || opt.Strategy == core.MergeOperations {
			continue
		}
		return r.service.ResolveConflict(ctx, c, opt.Strategy)
	}
	return core.Conflict{}, errors.Wrapf(core.ErrManualResolution, "conflict %s", c.ID())
}

// apply integrates op, writing the payload of effective, which is op itself or
// its transformed form. op is what the log and the report record. A conflict
// winner overrides the preconditions of its type: a creation replaces an
// existing target, an update recreates a deleted one and a deletion of a
// missing target is a no-op.
func (r *Replica) apply(ctx context.Context, op, effective core.Operation, winner bool, report *Report) {
	var next core.State
	if winner {
		next = r.doc.Clone()
		if effective.Type().IsDeletion() {
			delete(next, effective.TargetPath())
		} else {
			next[effective.TargetPath()] = effective.Payload()
		}
	} else {
		var err error
		next, err = r.service.ApplyOperation(ctx, effective, r.doc)
		if err != nil {
			r.skip(ctx, op, err, report)
			return
		}
	}

	r.commit(op, next)
	report.Applied = append(report.Applied, op.ID())
	r.metrics.Applied.Inc()
	r.emit(Event{Kind: EventApplied, Device: r.device, Operation: op.ID(), Path: op.TargetPath()})
}

func (r *Replica) commit(op core.Operation, next core.State) {
	r.doc = next
	r.index[op.ID()] = len(r.log)
	r.log = append(r.log, op)
	r.seen.Add(op.ID(), struct{}{})
	r.metrics.LogSize.Set(float64(len(r.log)))
}

func (r *Replica) skip(ctx context.Context, op core.Operation, err error, report *Report) {
	report.Skipped = append(report.Skipped, Skipped{Operation: op.ID(), Err: err})
	r.metrics.Skipped.WithLabelValues(skipReason(err)).Inc()
	r.logger.DebugContext(ctx, "operation skipped", "operation", op.ID(), "path", op.TargetPath(), "error", err)
	r.emit(Event{Kind: EventSkipped, Device: r.device, Operation: op.ID(), Path: op.TargetPath(), Err: err})
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, core.ErrManualResolution):
		return "manual"
	case errors.Is(err, core.ErrOperationNotApplicable):
		return "not_applicable"
	case errors.Is(err, core.ErrCannotCommute), errors.Is(err, core.ErrTransformFailed):
		return "transform"
	}
	return "error"
}

func involves(c core.Conflict, id core.OperationID) bool {
	for _, op := range c.Operations() {
		if op.ID() == id {
			return true
		}
	}
	return false
}

// emit publishes e without blocking; a full channel drops the event.
func (r *Replica) emit(e Event) {
	if r.closed {
		return
	}
	select {
	case r.events <- e:
	default:
		r.metrics.DroppedEvents.Inc()
	}
}
