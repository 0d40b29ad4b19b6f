package platform

import (
	"context"

	"github.com/pkg/errors"

	"github.com/aretw0/concord/pkg/adapters/fs"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/oplog"
	"github.com/aretw0/concord/pkg/replica"
)

// Load reads every log file in paths, in order, and keeps the operations
// whose target matches pattern (all when empty).
func Load(pattern string, paths ...string) ([]core.Operation, error) {
	var ops []core.Operation
	for _, path := range paths {
		batch, err := oplog.ReadFile(path)
		if err != nil {
			return nil, err
		}
		ops = append(ops, batch...)
	}
	return oplog.Select(ops, pattern)
}

// Replay feeds the logs in paths to r, one Receive per file, and merges the
// reports.
func Replay(ctx context.Context, r *replica.Replica, paths ...string) (replica.Report, error) {
	var total replica.Report
	for _, path := range paths {
		ops, err := oplog.ReadFile(path)
		if err != nil {
			return total, err
		}
		report, err := r.Receive(ctx, ops...)
		merge(&total, report)
		if err != nil {
			return total, errors.Wrapf(err, "replay %s", path)
		}
	}
	return total, nil
}

// Sync feeds r with every log already in the inbox at dir and every log that
// lands there later, until ctx is cancelled. onReport, when not nil, sees the
// outcome of each file.
func Sync(ctx context.Context, r *replica.Replica, dir string, onReport func(file string, report replica.Report), opts ...Option) error {
	inbox, err := OpenInbox(dir, opts...)
	if err != nil {
		return err
	}
	return inbox.Watch(ctx, func(ctx context.Context, b fs.Batch) error {
		report, err := r.Receive(ctx, b.Operations...)
		if onReport != nil {
			onReport(b.File, report)
		}
		return err
	})
}

func merge(total *replica.Report, r replica.Report) {
	total.Applied = append(total.Applied, r.Applied...)
	total.Skipped = append(total.Skipped, r.Skipped...)
	total.Duplicates += r.Duplicates
	total.Conflicts = append(total.Conflicts, r.Conflicts...)
}
