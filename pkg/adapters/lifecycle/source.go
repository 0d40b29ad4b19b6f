// Package lifecycle bridges replica events to github.com/aretw0/lifecycle.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/concord/pkg/replica"
)

type replicaSource struct {
	events <-chan replica.Event
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits replica events. The source
// stops when its context is cancelled or the replica channel is closed.
func NewSource(events <-chan replica.Event) lifecycle.Source {
	return &replicaSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *replicaSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *replicaSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
