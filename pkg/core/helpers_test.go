package core_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/concord/pkg/core"
)

// text is a minimal payload: transforming bumps a shift counter so tests can
// see how many times it went through OT.
type text struct {
	Value string
	Shift int
}

func (p text) Transform(other core.Payload, mode core.TransformMode) (core.Payload, error) {
	if _, ok := other.(text); !ok {
		return nil, errors.New("incompatible payload")
	}
	return text{Value: p.Value, Shift: p.Shift + 1}, nil
}

type failing struct{}

func (failing) Transform(core.Payload, core.TransformMode) (core.Payload, error) {
	return nil, errors.New("boom")
}

type panicking struct{}

func (panicking) Transform(core.Payload, core.TransformMode) (core.Payload, error) {
	panic("payload exploded")
}

func vc(t *testing.T, counters map[core.DeviceID]int64) core.VectorClock {
	t.Helper()
	c, err := core.VectorClockFromMap(counters)
	require.NoError(t, err)
	return c
}

func op(t *testing.T, device core.DeviceID, typ core.OperationType, path string, payload core.Payload, clock core.VectorClock, opts ...core.OperationOption) core.Operation {
	t.Helper()
	o, err := core.NewOperation(device, typ, path, payload, clock, opts...)
	require.NoError(t, err)
	return o
}
