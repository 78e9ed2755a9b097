package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-passkey-server/internal/models"
)

func testUser(username string, credentialIDs ...string) *models.User {
	user := models.NewUser(username)
	for _, id := range credentialIDs {
		user.AddCredential(webauthn.Credential{ID: []byte(id)})
	}
	return user
}

// storeContract runs the behavior every Store implementation must share.
func storeContract(t *testing.T, open func(t *testing.T) Store) {
	t.Run("get missing user", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		_, err := store.Get("nobody")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		alice := testUser("alice", "cred-a")
		alice.Pending = &models.PendingCeremony{
			Kind:      models.CeremonyRegistration,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, store.Put(alice))

		got, err := store.Get("alice")
		require.NoError(t, err)
		assert.Equal(t, alice.Username, got.Username)
		assert.Equal(t, alice.ID, got.ID)
		require.Len(t, got.Credentials, 1)
		assert.Equal(t, []byte("cred-a"), got.Credentials[0].ID)
		require.NotNil(t, got.Pending)
		assert.Equal(t, models.CeremonyRegistration, got.Pending.Kind)
	})

	t.Run("put overwrites", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		require.NoError(t, store.Put(testUser("alice")))
		require.NoError(t, store.Put(testUser("alice", "cred-a")))

		got, err := store.Get("alice")
		require.NoError(t, err)
		assert.Len(t, got.Credentials, 1)
	})

	t.Run("all", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		require.NoError(t, store.Put(testUser("alice", "cred-a")))
		require.NoError(t, store.Put(testUser("bob", "cred-b")))

		users, err := store.All()
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Contains(t, users, "alice")
		assert.Contains(t, users, "bob")
	})

	t.Run("has credential across users", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		require.NoError(t, store.Put(testUser("alice", "cred-a")))
		require.NoError(t, store.Put(testUser("bob", "cred-b")))

		for _, id := range []string{"cred-a", "cred-b"} {
			found, err := store.HasCredential([]byte(id))
			require.NoError(t, err)
			assert.True(t, found, "credential %q should be known", id)
		}
		found, err := store.HasCredential([]byte("cred-x"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("get returns an independent copy", func(t *testing.T) {
		store := open(t)
		defer store.Close()

		require.NoError(t, store.Put(testUser("alice", "cred-a")))

		got, err := store.Get("alice")
		require.NoError(t, err)
		got.Credentials[0].ID = []byte("mutated")

		again, err := store.Get("alice")
		require.NoError(t, err)
		assert.Equal(t, []byte("cred-a"), again.Credentials[0].ID)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		store, err := OpenFileStore(filepath.Join(t.TempDir(), "users.json"))
		require.NoError(t, err)
		return store
	})
}

func TestPudgeStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		store, err := OpenPudgeStore(filepath.Join(t.TempDir(), "users.db"))
		require.NoError(t, err)
		return store
	})
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(testUser("alice", "cred-a")))
	require.NoError(t, store.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("alice")
	require.NoError(t, err)
	require.Len(t, got.Credentials, 1)
	assert.Equal(t, []byte("cred-a"), got.Credentials[0].ID)
}

func TestFileStoreSnapshotIsValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(testUser("alice", "cred-a")))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var users map[string]*models.User
	require.NoError(t, json.Unmarshal(raw, &users))
	assert.Contains(t, users, "alice")
}

func TestPudgeStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.db")

	store, err := OpenPudgeStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(testUser("alice", "cred-a")))
	require.NoError(t, store.Close())

	reopened, err := OpenPudgeStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("alice")
	require.NoError(t, err)
	require.Len(t, got.Credentials, 1)
	assert.Equal(t, []byte("cred-a"), got.Credentials[0].ID)
}

func TestOpenBackendSelection(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		path    string
		wantErr bool
	}{
		{backend: "memory"},
		{backend: "file", path: filepath.Join(dir, "users.json")},
		{backend: "pudge", path: filepath.Join(dir, "users.db")},
		{backend: "cassandra", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.backend, func(t *testing.T) {
			store, err := Open(tc.backend, tc.path)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, store.Close())
		})
	}
}
