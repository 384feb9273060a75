// Package credential persists the console's authentication token. Exactly one
// item is stored; its absence means the console is logged out.
package credential

import (
	"context"
	"sync"
)

// Store holds the current authentication token across process restarts.
// Load never fails: backend errors are logged by the implementation and
// reported as absence.
type Store interface {
	Save(ctx context.Context, token string) error
	Load(ctx context.Context) (string, bool)
	Clear(ctx context.Context) error
}

// MemoryStore keeps the token in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the stored token.
func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Load returns the stored token, if any.
func (s *MemoryStore) Load(_ context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Clear removes the stored token.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	return nil
}
