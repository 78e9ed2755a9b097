package ceremony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"go-passkey-server/internal/models"
	"go-passkey-server/internal/repository"
)

// BeginRegistration starts a credential-creation ceremony for username,
// creating the user on first contact. Any previous pending ceremony is
// superseded. Repeated calls always succeed and reset the challenge.
func (s *Service) BeginRegistration(ctx context.Context, username string) (*protocol.CredentialCreation, error) {
	const op = "begin registration"

	if username == "" {
		return nil, newError(op, fmt.Errorf("%w: empty username", ErrInvalidRequest))
	}

	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.Get(username)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		user = models.NewUser(username)
	case err != nil:
		return nil, newError(op, err)
	}

	challenge, err := NewChallenge()
	if err != nil {
		return nil, newError(op, err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(user.Credentials))
	for _, cred := range user.Credentials {
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transport,
		})
	}

	options, session, err := s.rp.BeginRegistration(user,
		webauthn.WithAuthenticatorSelection(authenticatorSelection()),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, newError(op, err)
	}

	// The issued challenge is ours: install it in both the client-facing
	// options and the stored session so verification binds to this exact
	// value.
	options.Response.Challenge = challenge
	session.Challenge = EncodeChallenge(challenge)

	user.Pending = &models.PendingCeremony{
		Kind:      models.CeremonyRegistration,
		Session:   *session,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Put(user); err != nil {
		return nil, newError(op, err)
	}

	s.logger.InfoContext(ctx, "registration ceremony started", "username", username)
	return options, nil
}

// FinishRegistration verifies the authenticator's attestation response against
// the pending registration ceremony and, on success, commits the new
// credential. The pending ceremony is consumed whatever the outcome.
func (s *Service) FinishRegistration(ctx context.Context, username string, response json.RawMessage) error {
	const op = "finish registration"

	if username == "" {
		return newError(op, fmt.Errorf("%w: empty username", ErrInvalidRequest))
	}

	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.Get(username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return newError(op, ErrChallengeNotFound)
	}
	if err != nil {
		return newError(op, err)
	}

	pending := user.Pending
	if pending == nil || pending.Kind != models.CeremonyRegistration {
		return newError(op, ErrChallengeNotFound)
	}

	// Single use: the challenge is consumed now, success or failure.
	user.Pending = nil

	if pending.Expired(time.Now().UTC(), s.ttl) {
		if err := s.store.Put(user); err != nil {
			return newError(op, err)
		}
		return newError(op, fmt.Errorf("%w: challenge expired", ErrChallengeNotFound))
	}

	credential, verifyErr := s.verifyRegistration(user, pending.Session, response)
	if verifyErr != nil {
		if err := s.store.Put(user); err != nil {
			return newError(op, err)
		}
		s.logger.WarnContext(ctx, "registration verification failed",
			"username", username, "error", verifyErr)
		return verifyErr
	}

	// Credential IDs are globally unique, not just per user.
	taken, err := s.store.HasCredential(credential.ID)
	if err != nil {
		return newError(op, err)
	}
	if taken {
		if err := s.store.Put(user); err != nil {
			return newError(op, err)
		}
		return newError(op, ErrDuplicateCredential)
	}

	user.AddCredential(*credential)
	if err := s.store.Put(user); err != nil {
		return newError(op, err)
	}

	s.logger.InfoContext(ctx, "credential registered",
		"username", username,
		"credential_id", base64.RawURLEncoding.EncodeToString(credential.ID))
	return nil
}
