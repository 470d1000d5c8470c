package session

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Store persists sessions for the configured lifetime. Implementations must
// treat expired entries as absent.
type Store interface {
	Put(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	sess      Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Suitable for development and
// single-instance deployments; production uses the Redis store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	lifetime time.Duration
	cron     *cron.Cron
}

// NewMemoryStore creates a memory store whose entries live for lifetime.
func NewMemoryStore(lifetime time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		lifetime: lifetime,
	}
}

// StartSweeper schedules periodic removal of expired entries.
func (m *MemoryStore) StartSweeper(interval time.Duration) error {
	if m.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc("@every "+interval.String(), m.sweep); err != nil {
		return err
	}
	c.Start()
	m.cron = c
	return nil
}

// StopSweeper halts the sweep schedule.
func (m *MemoryStore) StopSweeper() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

func (m *MemoryStore) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, entry := range m.sessions {
		if now.After(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
}

// Put stores a copy of sess.
func (m *MemoryStore) Put(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = memoryEntry{
		sess:      *sess,
		expiresAt: time.Now().Add(m.lifetime),
	}
	return nil
}

// Get returns a copy of the stored session, or ErrNoSession.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNoSession
	}
	sess := entry.sess
	return &sess, nil
}

// Delete removes the session if present.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
