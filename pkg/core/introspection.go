package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Clustering string `json:"clustering"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	return ServiceState{
		Clustering: string(s.clustering),
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "coordination-service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
