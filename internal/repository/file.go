package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go-passkey-server/internal/models"
)

// FileStore keeps the full user map in memory and snapshots it to a JSON file
// on every mutation, so records survive process restarts.
type FileStore struct {
	mu    sync.RWMutex
	path  string
	users map[string]*models.User
}

// OpenFileStore loads the snapshot at path, or starts empty if none exists.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:  path,
		users: make(map[string]*models.User),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open user db: %w", err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&s.users); err != nil {
		return fmt.Errorf("decode user db: %w", err)
	}
	return nil
}

// snapshot writes the whole map to a temp file and renames it into place, so
// a crash mid-write never leaves a truncated database behind.
func (s *FileStore) snapshot() error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("snapshot user db: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(s.users); err != nil {
		tmp.Close()
		return fmt.Errorf("encode user db: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot user db: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("snapshot user db: %w", err)
	}
	return nil
}

// Get retrieves a user by username.
func (s *FileStore) Get(username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

// Put creates or replaces a user record and snapshots the database.
func (s *FileStore) Put(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.Username] = user.Clone()
	return s.snapshot()
}

// All returns every stored record keyed by username.
func (s *FileStore) All() (map[string]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.User, len(s.users))
	for name, u := range s.users {
		out[name] = u.Clone()
	}
	return out, nil
}

// HasCredential reports whether any user holds the given credential ID.
func (s *FileStore) HasCredential(credentialID []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.HasCredential(credentialID) {
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op; every Put already left a consistent snapshot on disk.
func (s *FileStore) Close() error { return nil }
