// Package repository persists user records. The ceremony engine only depends
// on the Store contract; the backend (in-memory, JSON snapshot file or
// embedded pudge database) is chosen by configuration.
package repository

import (
	"errors"
	"fmt"

	"go-passkey-server/internal/models"
)

// ErrUserNotFound is returned by Get for an unknown username.
var ErrUserNotFound = errors.New("user not found")

// Store is the user persistence contract. Implementations must serialize
// concurrent writes to the same record so credential lists and sign counters
// are never lost to a racing update.
type Store interface {
	// Get retrieves a user by username. Returns ErrUserNotFound when absent.
	Get(username string) (*models.User, error)

	// Put creates or replaces a user record.
	Put(user *models.User) error

	// All returns every stored record keyed by username.
	All() (map[string]*models.User, error)

	// HasCredential reports whether any user, regardless of owner, holds a
	// credential with the given ID. Credential IDs are globally unique.
	HasCredential(credentialID []byte) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Open creates a store for the given backend name.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return OpenFileStore(path)
	case "pudge":
		return OpenPudgeStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
