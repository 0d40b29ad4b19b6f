package concord

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/concord/internal/platform"
	"github.com/aretw0/concord/pkg/adapters/fs"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/replica"
)

// --- Types ---

// Replica is a public alias for a collaborative session participant.
type Replica = replica.Replica

// Report is a public alias for the outcome of integrating received operations.
type Report = replica.Report

// Inbox is a public alias for a directory of operation logs.
type Inbox = fs.Inbox

// --- Configuration ---

// Option defines a functional option for configuring Concord.
type Option = platform.Option

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithClustering selects how concurrent operations on one target become conflicts.
func WithClustering(mode core.ClusteringMode) Option {
	return platform.WithClustering(mode)
}

// WithRegisterer registers replica metrics with a Prometheus registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return platform.WithRegisterer(reg)
}

// WithSeenCacheSize bounds how many operation ids a replica remembers.
func WithSeenCacheSize(n int) Option {
	return platform.WithSeenCacheSize(n)
}

// WithEventBuffer allows specifying the size of the replica event buffer.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithInboxPattern restricts an inbox to file names matching a glob.
func WithInboxPattern(pattern string) Option {
	return platform.WithInboxPattern(pattern)
}

// WithDebounce sets how long an inbox file must stay quiet before it is read.
func WithDebounce(d time.Duration) Option {
	return platform.WithDebounce(d)
}

// WithWatcherErrorHandler registers a callback for non-fatal watcher errors.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// --- Factory ---

// NewService creates a coordination service.
func NewService(opts ...Option) (*core.Service, error) {
	return platform.NewService(opts...)
}

// NewReplica creates a replica authoring operations as device.
func NewReplica(device core.DeviceID, opts ...Option) (*Replica, error) {
	return platform.NewReplica(device, opts...)
}

// OpenInbox opens a directory of operation logs.
func OpenInbox(dir string, opts ...Option) (*Inbox, error) {
	return platform.OpenInbox(dir, opts...)
}

// --- Operations ---

// Load reads operation logs, keeping the operations whose target matches pattern.
func Load(pattern string, paths ...string) ([]core.Operation, error) {
	return platform.Load(pattern, paths...)
}

// Replay feeds operation logs to a replica.
func Replay(ctx context.Context, r *Replica, paths ...string) (Report, error) {
	return platform.Replay(ctx, r, paths...)
}

// Sync feeds a replica from an inbox directory until ctx is cancelled.
func Sync(ctx context.Context, r *Replica, dir string, onReport func(file string, report Report), opts ...Option) error {
	return platform.Sync(ctx, r, dir, onReport, opts...)
}

// --- Utils ---

// FindRoot recursively looks upwards for a session root indicator.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
