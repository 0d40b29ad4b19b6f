package core_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/concord/pkg/core"
)

func ids(ops []core.Operation) []core.OperationID {
	out := make([]core.OperationID, len(ops))
	for i, o := range ops {
		out[i] = o.ID()
	}
	return out
}

func permute(ops []core.Operation) [][]core.Operation {
	if len(ops) <= 1 {
		return [][]core.Operation{append([]core.Operation(nil), ops...)}
	}
	var out [][]core.Operation
	for i := range ops {
		rest := make([]core.Operation, 0, len(ops)-1)
		rest = append(rest, ops[:i]...)
		rest = append(rest, ops[i+1:]...)
		for _, p := range permute(rest) {
			out = append(out, append([]core.Operation{ops[i]}, p...))
		}
	}
	return out
}

func TestService_DetectConflicts(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(core.ServiceConfig{})

	t.Run("concurrent edits on the same target", func(t *testing.T) {
		a := op(t, "A", core.OpUpdateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"A": 1}))
		b := op(t, "B", core.OpUpdateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"B": 1}))

		conflicts, err := svc.DetectConflicts(ctx, []core.Operation{a, b})
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, core.ConflictConcurrentModification, conflicts[0].Type())
		assert.Equal(t, "/s1", conflicts[0].TargetPath())
		assert.NotEmpty(t, conflicts[0].ID())
	})

	t.Run("causal follow-up is not a conflict", func(t *testing.T) {
		a := op(t, "A", core.OpCreateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"A": 1}))
		b := op(t, "B", core.OpUpdateStatement, "/s1", text{}, a.Clock().Increment("B"))

		conflicts, err := svc.DetectConflicts(ctx, []core.Operation{a, b})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("different targets are not a conflict", func(t *testing.T) {
		a := op(t, "A", core.OpUpdateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"A": 1}))
		b := op(t, "B", core.OpUpdateStatement, "/s2", text{}, vc(t, map[core.DeviceID]int64{"B": 1}))

		conflicts, err := svc.DetectConflicts(ctx, []core.Operation{a, b})
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("duplicates are ignored", func(t *testing.T) {
		a := op(t, "A", core.OpUpdateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"A": 1}))
		b := op(t, "B", core.OpUpdateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"B": 1}))

		conflicts, err := svc.DetectConflicts(ctx, []core.Operation{a, a, b, b})
		require.NoError(t, err)
		assert.Len(t, conflicts, 1)
	})

	t.Run("rejects zero operations", func(t *testing.T) {
		_, err := svc.DetectConflicts(ctx, []core.Operation{{}})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("empty input", func(t *testing.T) {
		conflicts, err := svc.DetectConflicts(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})
}

func TestService_DetectConflicts_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(core.ServiceConfig{})

	create := op(t, "A", core.OpCreateStatement, "/s1", text{Value: "P"}, vc(t, map[core.DeviceID]int64{"A": 1}))
	update := op(t, "B", core.OpUpdateStatement, "/s1", text{Value: "Q"}, vc(t, map[core.DeviceID]int64{"B": 1}))

	conflicts, err := svc.DetectConflicts(ctx, []core.Operation{create, update})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	c := conflicts[0]
	assert.Equal(t, core.ConflictConcurrentModification, c.Type())
	assert.Len(t, c.Operations(), 2)
	assert.Equal(t, []core.DeviceID{"A", "B"}, c.InvolvedDevices())
	assert.True(t, c.CanBeAutomaticallyResolved())
	assert.False(t, c.IsResolved())
}

func TestService_DetectConflicts_Clustering(t *testing.T) {
	ctx := context.Background()

	first := op(t, "a", core.OpUpdateTree, "/p", text{}, vc(t, map[core.DeviceID]int64{"a": 1}))
	after := op(t, "b", core.OpDeleteTree, "/p", text{}, first.Clock().Increment("b"))
	other := op(t, "c", core.OpUpdateTree, "/p", text{}, vc(t, map[core.DeviceID]int64{"c": 1}))
	ops := []core.Operation{first, after, other}

	t.Run("pairwise", func(t *testing.T) {
		svc := core.NewService(core.ServiceConfig{})
		conflicts, err := svc.DetectConflicts(ctx, ops)
		require.NoError(t, err)
		require.Len(t, conflicts, 2)

		assert.Equal(t, core.ConflictStructural, conflicts[0].Type())
		assert.Equal(t, []core.OperationID{first.ID(), other.ID()}, ids(conflicts[0].Operations()))
		assert.Equal(t, core.ConflictDeletion, conflicts[1].Type())
		assert.Equal(t, []core.OperationID{after.ID(), other.ID()}, ids(conflicts[1].Operations()))
	})

	t.Run("connected components", func(t *testing.T) {
		svc := core.NewService(core.ServiceConfig{Clustering: core.ClusterConnected})
		conflicts, err := svc.DetectConflicts(ctx, ops)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, core.ConflictDeletion, conflicts[0].Type(), "component takes the strongest classification")
		assert.Len(t, conflicts[0].Operations(), 3)
	})
}

func TestService_OrderOperations(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(core.ServiceConfig{})

	c1 := op(t, "a", core.OpCreateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"a": 1}))
	c2 := op(t, "b", core.OpUpdateStatement, "/s1", text{}, c1.Clock().Increment("b"))
	c3 := op(t, "a", core.OpUpdateStatement, "/s1", text{}, c2.Clock().Increment("a"))
	x := op(t, "c", core.OpCreateStatement, "/s9", text{}, vc(t, map[core.DeviceID]int64{"c": 1}))

	want := []core.OperationID{c1.ID(), c2.ID(), x.ID(), c3.ID()}
	for _, input := range permute([]core.Operation{c1, c2, c3, x}) {
		got, err := svc.OrderOperations(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, want, ids(got), "input %v", ids(input))
	}

	t.Run("equal clocks keep input order", func(t *testing.T) {
		clock := vc(t, map[core.DeviceID]int64{"a": 1})
		p := op(t, "a", core.OpCreateStatement, "/s1", text{}, clock, core.WithID("same"))
		q := op(t, "a", core.OpCreateStatement, "/s2", text{}, clock, core.WithID("same"))

		got, err := svc.OrderOperations(ctx, []core.Operation{p, q})
		require.NoError(t, err)
		assert.Equal(t, "/s1", got[0].TargetPath())
		assert.Equal(t, "/s2", got[1].TargetPath())
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := svc.OrderOperations(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("rejects zero operations", func(t *testing.T) {
		_, err := svc.OrderOperations(ctx, []core.Operation{c1, {}})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestService_CalculateOperationDependencies(t *testing.T) {
	svc := core.NewService(core.ServiceConfig{})

	c1 := op(t, "a", core.OpCreateStatement, "/s1", text{}, vc(t, map[core.DeviceID]int64{"a": 1}))
	c2 := op(t, "b", core.OpUpdateStatement, "/s1", text{}, c1.Clock().Increment("b"))
	c3 := op(t, "a", core.OpUpdateStatement, "/s2", text{}, c2.Clock().Increment("a"))
	x := op(t, "c", core.OpCreateStatement, "/s9", text{}, vc(t, map[core.DeviceID]int64{"c": 1}))

	deps := svc.CalculateOperationDependencies(context.Background(), []core.Operation{c3, x, c1, c2})
	assert.Equal(t, map[core.OperationID][]core.OperationID{
		c1.ID(): {},
		c2.ID(): {c1.ID()},
		c3.ID(): {c1.ID(), c2.ID()},
		x.ID():  {},
	}, deps)
}

func TestService_ResolveConflict(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(core.ServiceConfig{})

	x := op(t, "a", core.OpUpdateTree, "/t1", text{Value: "x"}, vc(t, map[core.DeviceID]int64{"a": 1}))
	y := op(t, "b", core.OpUpdateTree, "/t1", text{Value: "y"}, vc(t, map[core.DeviceID]int64{"b": 1}))

	structural, err := core.NewConflict("c1", core.ConflictStructural, "/t1", []core.Operation{y, x})
	require.NoError(t, err)

	t.Run("merge transforms in causal order", func(t *testing.T) {
		resolved, err := svc.ResolveConflict(ctx, structural, core.MergeOperations)
		require.NoError(t, err)
		strategy, _ := resolved.SelectedResolution()
		assert.Equal(t, core.MergeOperations, strategy)

		merged, ok := resolved.ResolutionResult().([]core.Operation)
		require.True(t, ok)
		require.Len(t, merged, 2)
		assert.Equal(t, x, merged[0])
		assert.Equal(t, text{Value: "y", Shift: 1}, merged[1].Payload())
	})

	t.Run("merge surfaces transform failures", func(t *testing.T) {
		bad := op(t, "b", core.OpCreateTree, "/t1", failing{}, vc(t, map[core.DeviceID]int64{"b": 1}))
		good := op(t, "a", core.OpCreateTree, "/t1", text{}, vc(t, map[core.DeviceID]int64{"a": 1}))
		c, err := core.NewConflict("c2", core.ConflictStructural, "/t1", []core.Operation{good, bad})
		require.NoError(t, err)

		_, err = svc.ResolveConflict(ctx, c, core.MergeOperations)
		assert.ErrorIs(t, err, core.ErrTransformFailed)
	})

	t.Run("last writer wins", func(t *testing.T) {
		resolved, err := svc.ResolveConflict(ctx, structural, core.LastWriterWins)
		require.NoError(t, err)
		assert.Equal(t, y, resolved.ResolutionResult())
	})

	t.Run("first writer wins", func(t *testing.T) {
		c, err := core.NewConflict("c3", core.ConflictDeletion, "/t1", []core.Operation{y, x})
		require.NoError(t, err)
		resolved, err := svc.ResolveConflict(ctx, c, core.FirstWriterWins)
		require.NoError(t, err)
		assert.Equal(t, x, resolved.ResolutionResult())
	})

	t.Run("strategy must be offered", func(t *testing.T) {
		_, err := svc.ResolveConflict(ctx, structural, core.FirstWriterWins)
		assert.ErrorIs(t, err, core.ErrInvalidStrategy)
	})

	t.Run("manual strategy", func(t *testing.T) {
		_, err := svc.ResolveConflict(ctx, structural, core.UserDecisionRequired)
		assert.ErrorIs(t, err, core.ErrManualResolution)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := svc.ResolveConflict(ctx, structural, core.ResolutionStrategy("COIN_FLIP"))
		assert.ErrorIs(t, err, core.ErrInvalidStrategy)
	})
}

func TestService_AutoResolve(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(core.ServiceConfig{})

	x := op(t, "a", core.OpUpdateArgument, "/a1", text{}, vc(t, map[core.DeviceID]int64{"a": 1}))
	y := op(t, "b", core.OpUpdateArgument, "/a1", text{}, vc(t, map[core.DeviceID]int64{"b": 1}))

	semantic, err := core.NewConflict("c1", core.ConflictSemantic, "/a1", []core.Operation{x, y})
	require.NoError(t, err)
	resolved, err := svc.AutoResolve(ctx, semantic)
	require.NoError(t, err)
	strategy, ok := resolved.SelectedResolution()
	require.True(t, ok)
	assert.Equal(t, core.LastWriterWins, strategy)

	_, err = svc.AutoResolve(ctx, resolved)
	assert.ErrorIs(t, err, core.ErrConflictAlreadyResolved)

	t1 := op(t, "a", core.OpCreateTree, "/t1", text{}, vc(t, map[core.DeviceID]int64{"a": 1}))
	t2 := op(t, "b", core.OpUpdateTree, "/t1", text{}, vc(t, map[core.DeviceID]int64{"b": 1}))
	structural, err := core.NewConflict("c3", core.ConflictStructural, "/t1", []core.Operation{t1, t2})
	require.NoError(t, err)
	resolved, err = svc.AutoResolve(ctx, structural)
	require.NoError(t, err, "merge cannot commute, falls back to last writer wins")
	strategy, _ = resolved.SelectedResolution()
	assert.Equal(t, core.LastWriterWins, strategy)
	assert.Equal(t, t2, resolved.ResolutionResult())

	unknown, err := core.NewConflict("c2", core.ConflictType("UNHEARD_OF"), "/a1", []core.Operation{x, y})
	require.NoError(t, err)
	_, err = svc.AutoResolve(ctx, unknown)
	assert.ErrorIs(t, err, core.ErrManualResolution)
}

func TestService_ApplyOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	svc := core.NewService(core.ServiceConfig{Logger: logger})
	ctx := context.Background()
	clock := vc(t, map[core.DeviceID]int64{"a": 1})

	state, err := svc.ApplyOperation(ctx, op(t, "a", core.OpCreateStatement, "/s1", text{Value: "P"}, clock), core.State{})
	require.NoError(t, err)
	assert.Equal(t, []string{"/s1"}, state.Paths())

	_, err = svc.ApplyOperation(ctx, op(t, "a", core.OpCreateStatement, "/s1", text{Value: "P"}, clock), state)
	assert.ErrorIs(t, err, core.ErrOperationNotApplicable)
	assert.Contains(t, buf.String(), "operation not applied")
}

func TestService_Introspection(t *testing.T) {
	svc := core.NewService(core.ServiceConfig{Clustering: core.ClusterConnected})
	assert.Equal(t, "coordination-service", svc.ComponentType())
	assert.Equal(t, core.ServiceState{Clustering: "connected"}, svc.State())

	assert.Equal(t, core.ServiceState{Clustering: "pairwise"}, core.NewService(core.ServiceConfig{}).State())
}
