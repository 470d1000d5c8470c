package wishlist

import (
	"sync"

	"github.com/jawad0110/taqa-bff/internal/backend"
)

// Registry owns one wishlist container per session.
type Registry struct {
	client *backend.Client

	mu         sync.Mutex
	containers map[string]*Container
}

// NewRegistry creates an empty registry.
func NewRegistry(client *backend.Client) *Registry {
	return &Registry{
		client:     client,
		containers: make(map[string]*Container),
	}
}

// For returns the container for sessionID, creating it if needed.
func (r *Registry) For(sessionID string) *Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	container, ok := r.containers[sessionID]
	if !ok {
		container = NewContainer(r.client)
		r.containers[sessionID] = container
	}
	return container
}

// Drop discards the container for sessionID, if any.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers, sessionID)
}
