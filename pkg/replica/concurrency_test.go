package replica_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/payload"
	"github.com/aretw0/concord/pkg/replica"
)

// TestConcurrency_IssueVsReceive has a replica author operations while peers
// deliver theirs from several goroutines, some of them twice. Every delivered
// operation must be accounted for exactly once.
func TestConcurrency_IssueVsReceive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stress test in short mode")
	}
	ctx := context.Background()
	const peers, perPeer = 4, 50

	var feeds [][]core.Operation
	for p := 0; p < peers; p++ {
		peer := newReplica(t, core.DeviceID(fmt.Sprintf("peer-%d", p)))
		for i := 0; i < perPeer; i++ {
			issue(t, peer, core.OpCreateStatement, fmt.Sprintf("/p%d/s%d", p, i), payload.Value{Content: i})
		}
		feeds = append(feeds, peer.Log())
	}

	local := newReplica(t, "local", replica.WithEventBuffer(0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	integrated, duplicates := 0, 0

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < perPeer; i++ {
			_, err := local.Issue(ctx, core.OpCreateStatement, fmt.Sprintf("/local/s%d", i), payload.Value{Content: i})
			assert.NoError(t, err)
		}
	}()

	for _, feed := range feeds {
		for round := 0; round < 2; round++ {
			wg.Add(1)
			go func(ops []core.Operation) {
				defer wg.Done()
				for _, op := range ops {
					report, err := local.Receive(ctx, op)
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					integrated += len(report.Applied) + len(report.Skipped)
					duplicates += report.Duplicates
					mu.Unlock()
				}
			}(feed)
		}
	}
	wg.Wait()

	require.Equal(t, peers*perPeer, integrated)
	assert.Equal(t, peers*perPeer, duplicates)
	assert.Len(t, local.Log(), peers*perPeer+perPeer)
	assert.Len(t, local.Document(), peers*perPeer+perPeer)
	assert.Equal(t, uint64(perPeer), local.Clock().Get("local"))
	for p := 0; p < peers; p++ {
		assert.Equal(t, uint64(perPeer), local.Clock().Get(core.DeviceID(fmt.Sprintf("peer-%d", p))))
	}
}
