package platform

import (
	"fmt"

	"github.com/aretw0/concord/pkg/adapters/fs"
	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/replica"
)

// NewService creates a coordination service.
func NewService(opts ...Option) (*core.Service, error) {
	return newService(apply(opts))
}

func newService(o *options) (*core.Service, error) {
	switch o.clustering {
	case core.ClusterPairwise, core.ClusterConnected:
	default:
		return nil, fmt.Errorf("%w: unknown clustering %q", core.ErrValidation, o.clustering)
	}
	return core.NewService(core.ServiceConfig{
		Logger:     o.logger,
		Clustering: o.clustering,
	}), nil
}

// NewReplica creates a replica for device wired to a service built from the
// same options.
func NewReplica(device core.DeviceID, opts ...Option) (*replica.Replica, error) {
	o := apply(opts)
	svc, err := newService(o)
	if err != nil {
		return nil, err
	}

	ropts := []replica.Option{
		replica.WithService(svc),
		replica.WithLogger(o.logger),
		replica.WithRegisterer(o.registerer),
	}
	if o.seenSize > 0 {
		ropts = append(ropts, replica.WithSeenCacheSize(o.seenSize))
	}
	if o.eventBuffer > 0 {
		ropts = append(ropts, replica.WithEventBuffer(o.eventBuffer))
	}
	return replica.New(device, ropts...)
}

// OpenInbox opens the inbox directory dir.
func OpenInbox(dir string, opts ...Option) (*fs.Inbox, error) {
	o := apply(opts)

	var fopts []fs.Option
	if o.logger != nil {
		fopts = append(fopts, fs.WithLogger(o.logger))
	}
	if o.pattern != "" {
		fopts = append(fopts, fs.WithPattern(o.pattern))
	}
	if o.debounce > 0 {
		fopts = append(fopts, fs.WithDebounce(o.debounce))
	}
	if o.errorHandler != nil {
		fopts = append(fopts, fs.WithErrorHandler(o.errorHandler))
	}
	return fs.NewInbox(dir, fopts...)
}
