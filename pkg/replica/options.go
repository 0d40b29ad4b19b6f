package replica

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/concord/pkg/core"
)

const (
	// DefaultSeenCacheSize bounds the ids remembered for duplicate detection.
	DefaultSeenCacheSize = 4096
	// DefaultEventBuffer is the capacity of the Events channel.
	DefaultEventBuffer = 64
)

type options struct {
	logger      *slog.Logger
	service     *core.Service
	registerer  prometheus.Registerer
	seenSize    int
	eventBuffer int
	document    core.State
}

// Option configures a Replica.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithService sets the coordination service used to detect, order and
// resolve. The default is a pairwise service sharing the replica logger.
func WithService(svc *core.Service) Option {
	return func(o *options) {
		o.service = svc
	}
}

// WithRegisterer registers the replica metrics with reg. Without it the
// metrics are still maintained but not exported.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithSeenCacheSize bounds how many operation ids are remembered to drop
// re-deliveries of operations that never made it into the log.
func WithSeenCacheSize(n int) Option {
	return func(o *options) {
		o.seenSize = n
	}
}

// WithEventBuffer sets the capacity of the Events channel. Events are dropped
// when it is full.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		o.eventBuffer = n
	}
}

// WithDocument seeds the replica with an initial document.
func WithDocument(doc core.State) Option {
	return func(o *options) {
		o.document = doc
	}
}
