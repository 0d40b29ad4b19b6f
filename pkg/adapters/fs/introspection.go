package fs

import (
	"sort"
	"time"

	"github.com/aretw0/introspection"

	"github.com/aretw0/concord/pkg/oplog"
)

// InboxState exposes internal state for observability.
type InboxState struct {
	Dir           string     `json:"dir"`
	Pattern       string     `json:"pattern"`
	Serializers   []string   `json:"serializers"`
	Indexed       int        `json:"indexed_files"`
	WatcherActive bool       `json:"watcher_active"`
	LastDrain     *time.Time `json:"last_drain,omitempty"`
}

// State implements introspection.Introspectable.
func (in *Inbox) State() any {
	in.mu.RLock()
	defer in.mu.RUnlock()

	serializers := make([]string, 0, 4)
	for ext := range oplog.DefaultSerializers() {
		serializers = append(serializers, ext)
	}
	sort.Strings(serializers)

	return InboxState{
		Dir:           in.Dir,
		Pattern:       in.pattern,
		Serializers:   serializers,
		Indexed:       in.cache.Len(),
		WatcherActive: in.watcherActive,
		LastDrain:     in.lastDrain,
	}
}

// ComponentType implements introspection.Component.
func (in *Inbox) ComponentType() string {
	return "inbox"
}

var _ introspection.Introspectable = (*Inbox)(nil)
var _ introspection.Component = (*Inbox)(nil)
