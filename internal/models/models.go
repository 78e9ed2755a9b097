package models

import (
	"bytes"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// CeremonyKind distinguishes the two WebAuthn ceremonies a pending challenge
// can belong to.
type CeremonyKind string

const (
	CeremonyRegistration   CeremonyKind = "registration"
	CeremonyAuthentication CeremonyKind = "authentication"
)

// PendingCeremony is the server-side half of an in-flight challenge–response
// ceremony. A user holds at most one at a time; starting a new ceremony
// replaces it, and the matching verify call consumes it regardless of outcome.
type PendingCeremony struct {
	Kind      CeremonyKind         `json:"kind"`
	Session   webauthn.SessionData `json:"session"`
	CreatedAt time.Time            `json:"created_at"`
}

// Expired reports whether the ceremony is older than ttl at the given time.
// A non-positive ttl disables expiry.
func (p *PendingCeremony) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(p.CreatedAt) > ttl
}

// User is the stored user record: a username, its derived user handle, the
// registered credentials and the pending ceremony, if any.
type User struct {
	ID          []byte                `json:"id"`
	Username    string                `json:"username"`
	Credentials []webauthn.Credential `json:"credentials"`
	Pending     *PendingCeremony      `json:"pending,omitempty"`
}

// NewUser creates a user with an empty credential list. The user handle is
// derived deterministically from the username so repeated registration starts
// for the same name always address the same account.
func NewUser(username string) *User {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(username))
	return &User{
		ID:          id[:],
		Username:    username,
		Credentials: []webauthn.Credential{},
	}
}

// WebAuthnID returns the user handle.
func (u *User) WebAuthnID() []byte { return u.ID }

// WebAuthnName returns the user's username.
func (u *User) WebAuthnName() string { return u.Username }

// WebAuthnDisplayName returns the user's display name (same as username here).
func (u *User) WebAuthnDisplayName() string { return u.Username }

// WebAuthnIcon returns the user's icon (not used).
func (u *User) WebAuthnIcon() string { return "" }

// WebAuthnCredentials returns the user's registered WebAuthn credentials.
func (u *User) WebAuthnCredentials() []webauthn.Credential { return u.Credentials }

// AddCredential appends a credential to the user's list.
func (u *User) AddCredential(cred webauthn.Credential) {
	u.Credentials = append(u.Credentials, cred)
}

// FindCredential returns a pointer into the user's credential list for the
// given credential ID, or nil when the user does not own it.
func (u *User) FindCredential(id []byte) *webauthn.Credential {
	for i := range u.Credentials {
		if bytes.Equal(u.Credentials[i].ID, id) {
			return &u.Credentials[i]
		}
	}
	return nil
}

// HasCredential reports whether the user owns a credential with the given ID.
func (u *User) HasCredential(id []byte) bool {
	return u.FindCredential(id) != nil
}

// Clone returns a deep copy so store implementations can hand out records
// without aliasing their internal state.
func (u *User) Clone() *User {
	c := &User{
		ID:          append([]byte(nil), u.ID...),
		Username:    u.Username,
		Credentials: append([]webauthn.Credential(nil), u.Credentials...),
	}
	if u.Pending != nil {
		pending := *u.Pending
		c.Pending = &pending
	}
	return c
}
