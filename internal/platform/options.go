package platform

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/concord/pkg/core"
)

// options holds the internal configuration shared by the service, replica
// and inbox factories.
type options struct {
	logger       *slog.Logger
	clustering   core.ClusteringMode
	registerer   prometheus.Registerer
	seenSize     int
	eventBuffer  int
	pattern      string
	debounce     time.Duration
	errorHandler func(error)
}

// Option defines a functional option for configuring Concord.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		clustering: core.ClusterPairwise,
	}
}

func apply(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClustering selects how concurrent operations on one target are grouped
// into conflicts. Defaults to core.ClusterPairwise.
func WithClustering(mode core.ClusteringMode) Option {
	return func(o *options) {
		o.clustering = mode
	}
}

// WithRegisterer registers replica metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithSeenCacheSize bounds the operation ids a replica remembers.
// Zero means default.
func WithSeenCacheSize(n int) Option {
	return func(o *options) {
		o.seenSize = n
	}
}

// WithEventBuffer sets the capacity of the replica event channel.
// Zero means default.
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// WithInboxPattern restricts an inbox to file names matching a doublestar
// pattern.
func WithInboxPattern(pattern string) Option {
	return func(o *options) {
		o.pattern = pattern
	}
}

// WithDebounce sets how long an inbox file must stay quiet before it is read.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		o.debounce = d
	}
}

// WithWatcherErrorHandler registers a callback for errors that do not stop
// the inbox watcher, such as an unreadable log file.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}
