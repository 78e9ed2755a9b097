package repository

import (
	"sync"

	"go-passkey-server/internal/models"
)

// MemoryStore keeps user records in a map. Intended for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*models.User)}
}

// Get retrieves a user by username.
func (s *MemoryStore) Get(username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

// Put creates or replaces a user record.
func (s *MemoryStore) Put(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.Username] = user.Clone()
	return nil
}

// All returns every stored record keyed by username.
func (s *MemoryStore) All() (map[string]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.User, len(s.users))
	for name, u := range s.users {
		out[name] = u.Clone()
	}
	return out, nil
}

// HasCredential reports whether any user holds the given credential ID.
func (s *MemoryStore) HasCredential(credentialID []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.HasCredential(credentialID) {
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
