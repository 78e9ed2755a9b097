package repository

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/recoilme/pudge"

	"go-passkey-server/internal/models"
)

// PudgeStore persists user records in an embedded pudge key/value database,
// one JSON-encoded record per username key.
type PudgeStore struct {
	mu sync.Mutex
	db *pudge.Db
}

// OpenPudgeStore opens (or creates) the database at path.
func OpenPudgeStore(path string) (*PudgeStore, error) {
	db, err := pudge.Open(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open user db: %w", err)
	}
	return &PudgeStore{db: db}, nil
}

// Get retrieves a user by username.
func (s *PudgeStore) Get(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(username)
}

func (s *PudgeStore) get(username string) (*models.User, error) {
	ok, err := s.db.Has([]byte(username))
	if err != nil {
		return nil, fmt.Errorf("read user db: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	var raw []byte
	if err := s.db.Get([]byte(username), &raw); err != nil {
		return nil, fmt.Errorf("read user db: %w", err)
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode user record: %w", err)
	}
	return &user, nil
}

// Put creates or replaces a user record.
func (s *PudgeStore) Put(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	if err := s.db.Set([]byte(user.Username), raw); err != nil {
		return fmt.Errorf("write user db: %w", err)
	}
	return nil
}

// All returns every stored record keyed by username.
func (s *PudgeStore) All() (map[string]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.db.Keys(nil, 0, 0, true)
	if err != nil {
		return nil, fmt.Errorf("list user db: %w", err)
	}

	out := make(map[string]*models.User, len(keys))
	for _, key := range keys {
		user, err := s.get(string(key))
		if err != nil {
			return nil, err
		}
		out[user.Username] = user
	}
	return out, nil
}

// HasCredential reports whether any user holds the given credential ID.
func (s *PudgeStore) HasCredential(credentialID []byte) (bool, error) {
	users, err := s.All()
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.HasCredential(credentialID) {
			return true, nil
		}
	}
	return false, nil
}

// Close closes the underlying database file.
func (s *PudgeStore) Close() error {
	return s.db.Close()
}
