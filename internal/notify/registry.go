package notify

import (
	"sync"

	"github.com/gosuda/helpdesk/internal/messenger"
)

// Registry is a map-based MessengerRegistry keyed by Messenger.Platform.
type Registry struct {
	mu         sync.RWMutex
	messengers map[string]messenger.Messenger
}

// NewRegistry creates a Registry holding ms.
func NewRegistry(ms ...messenger.Messenger) *Registry {
	r := &Registry{
		messengers: make(map[string]messenger.Messenger),
	}
	for _, m := range ms {
		r.Register(m)
	}
	return r
}

// Register adds m under its platform name, replacing any previous one.
func (r *Registry) Register(m messenger.Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messengers[m.Platform()] = m
}

// Get returns the messenger for the given platform, or false if not registered.
func (r *Registry) Get(platform string) (messenger.Messenger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messengers[platform]
	return m, ok
}
