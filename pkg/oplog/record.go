// Package oplog reads and writes operation logs: the files replicas exchange
// to replay each other's edits.
package oplog

import (
	"encoding/json"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/payload"
)

// Record is the wire form of a core.Operation.
type Record struct {
	ID      core.OperationID   `json:"id"`
	Device  core.DeviceID      `json:"device"`
	Type    core.OperationType `json:"type"`
	Path    string             `json:"path"`
	Payload json.RawMessage    `json:"payload,omitempty"`
	Clock   core.VectorClock   `json:"clock"`
	Parent  core.OperationID   `json:"parent,omitempty"`
}

// FromOperation encodes op, including its payload envelope.
func FromOperation(op core.Operation) (Record, error) {
	raw, err := payload.Encode(op.Payload())
	if err != nil {
		return Record{}, errors.Wrapf(err, "operation %s", op.ID())
	}
	if string(raw) == "null" {
		raw = nil
	}
	parent, _ := op.Parent()
	return Record{
		ID:      op.ID(),
		Device:  op.Device(),
		Type:    op.Type(),
		Path:    op.TargetPath(),
		Payload: raw,
		Clock:   op.Clock(),
		Parent:  parent,
	}, nil
}

// Operation validates r and builds the operation it describes.
func (r Record) Operation() (core.Operation, error) {
	p, err := payload.Decode(r.Payload)
	if err != nil {
		return core.Operation{}, errors.Wrapf(err, "record %s", r.ID)
	}
	var opts []core.OperationOption
	if r.ID != "" {
		opts = append(opts, core.WithID(r.ID))
	}
	if r.Parent != "" {
		opts = append(opts, core.WithParent(r.Parent))
	}
	op, err := core.NewOperation(r.Device, r.Type, r.Path, p, r.Clock, opts...)
	if err != nil {
		return core.Operation{}, errors.Wrapf(err, "record %s", r.ID)
	}
	return op, nil
}

// Records encodes ops in order.
func Records(ops []core.Operation) ([]Record, error) {
	out := make([]Record, 0, len(ops))
	for _, op := range ops {
		r, err := FromOperation(op)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Operations decodes records in order. The first invalid record aborts.
func Operations(records []Record) ([]core.Operation, error) {
	out := make([]core.Operation, 0, len(records))
	for i, r := range records {
		op, err := r.Operation()
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		out = append(out, op)
	}
	return out, nil
}

// Select keeps the operations whose target path matches a doublestar pattern
// such as "/arguments/**". An empty pattern keeps everything.
func Select(ops []core.Operation, pattern string) ([]core.Operation, error) {
	if pattern == "" {
		return ops, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Wrapf(doublestar.ErrBadPattern, "pattern %q", pattern)
	}
	var out []core.Operation
	for _, op := range ops {
		ok, err := doublestar.Match(pattern, op.TargetPath())
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", pattern)
		}
		if ok {
			out = append(out, op)
		}
	}
	return out, nil
}
