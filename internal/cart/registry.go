package cart

import (
	"sync"

	"github.com/jawad0110/taqa-bff/internal/backend"
	"github.com/jawad0110/taqa-bff/internal/logging"
)

// Registry owns one cart container per session. Containers are created on
// first use and dropped on sign-out; they are mirrors only and cheap to lose.
type Registry struct {
	client *backend.Client
	log    *logging.Logger

	mu         sync.Mutex
	containers map[string]*Container
}

// NewRegistry creates an empty registry.
func NewRegistry(client *backend.Client, log *logging.Logger) *Registry {
	return &Registry{
		client:     client,
		log:        log,
		containers: make(map[string]*Container),
	}
}

// For returns the container for sessionID, creating it if needed.
func (r *Registry) For(sessionID string) *Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	container, ok := r.containers[sessionID]
	if !ok {
		container = NewContainer(r.client, r.log)
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
