package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aretw0/concord/pkg/adapters/fs"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/oplog"
	"github.com/aretw0/concord/pkg/payload"
)

func writeLog(t *testing.T, path string, device core.DeviceID, counter int64) core.Operation {
	t.Helper()
	clock, err := core.VectorClockFromMap(map[core.DeviceID]int64{device: counter})
	require.NoError(t, err)
	op, err := core.NewOperation(device, core.OpCreateStatement, "/s/"+string(device), payload.Value{Content: "P"}, clock)
	require.NoError(t, err)
	require.NoError(t, oplog.WriteFile(path, []core.Operation{op}))
	return op
}

func TestNewInbox(t *testing.T) {
	_, err := fs.NewInbox(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file.json")
	require.NoError(t, os.WriteFile(file, []byte("[]"), 0o644))
	_, err = fs.NewInbox(file)
	assert.Error(t, err)

	_, err = fs.NewInbox(t.TempDir(), fs.WithPattern("[bad"))
	assert.Error(t, err)
}

func TestInbox_Drain(t *testing.T) {
	dir := t.TempDir()
	var reported []error
	inbox, err := fs.NewInbox(dir, fs.WithErrorHandler(func(err error) { reported = append(reported, err) }))
	require.NoError(t, err)

	bob := writeLog(t, filepath.Join(dir, "bob.ndjson"), "bob", 1)
	alice := writeLog(t, filepath.Join(dir, "alice.yaml"), "alice", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	batches, err := inbox.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, "alice.yaml", batches[0].File)
	assert.Equal(t, alice.ID(), batches[0].Operations[0].ID())
	assert.Equal(t, "bob.ndjson", batches[1].File)
	assert.Equal(t, bob.ID(), batches[1].Operations[0].ID())
	require.Len(t, reported, 1, "broken file is reported")

	again, err := inbox.Drain(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again, "unchanged files are not read twice")
	assert.Len(t, reported, 1)

	// Rewrite with different content so size and mtime move.
	clock, err := core.VectorClockFromMap(map[core.DeviceID]int64{"bob": 2})
	require.NoError(t, err)
	extra, err := core.NewOperation("bob", core.OpCreateTree, "/t/longer-path", nil, clock)
	require.NoError(t, err)
	require.NoError(t, oplog.WriteFile(filepath.Join(dir, "bob.ndjson"), []core.Operation{bob, extra}))

	changed, err := inbox.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Len(t, changed[0].Operations, 2)

	state := inbox.State().(fs.InboxState)
	assert.Equal(t, dir, state.Dir)
	assert.Equal(t, 3, state.Indexed)
	assert.NotNil(t, state.LastDrain)
	assert.False(t, state.WatcherActive)
	assert.Equal(t, "inbox", inbox.ComponentType())
}

func TestInbox_DrainPattern(t *testing.T) {
	dir := t.TempDir()
	inbox, err := fs.NewInbox(dir, fs.WithPattern("alice-*"))
	require.NoError(t, err)

	writeLog(t, filepath.Join(dir, "alice-1.json"), "alice", 1)
	writeLog(t, filepath.Join(dir, "bob-1.json"), "bob", 1)

	batches, err := inbox.Drain(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "alice-1.json", batches[0].File)
}

type collector struct {
	mu      sync.Mutex
	batches []fs.Batch
	arrived chan struct{}
}

func newCollector() *collector {
	return &collector{arrived: make(chan struct{}, 16)}
}

func (c *collector) handle(_ context.Context, b fs.Batch) error {
	c.mu.Lock()
	c.batches = append(c.batches, b)
	c.mu.Unlock()
	c.arrived <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, label string) {
	t.Helper()
	select {
	case <-c.arrived:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", label)
	}
}

func TestInbox_Watch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	inbox, err := fs.NewInbox(dir, fs.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	existing := writeLog(t, filepath.Join(dir, "alice.json"), "alice", 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := newCollector()
	go func() { done <- inbox.Watch(ctx, c.handle) }()

	c.wait(t, "initial drain")

	dropped := writeLog(t, filepath.Join(dir, "bob.ndjson"), "bob", 1)
	c.wait(t, "dropped file")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.batches, 2)
	assert.Equal(t, existing.ID(), c.batches[0].Operations[0].ID())
	assert.Equal(t, "bob.ndjson", c.batches[1].File)
	assert.Equal(t, dropped.ID(), c.batches[1].Operations[0].ID())
}
