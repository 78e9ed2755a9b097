package ceremony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"go-passkey-server/internal/models"
	"go-passkey-server/internal/repository"
)

// BeginLogin starts an assertion ceremony for a registered user. Users with no
// credentials on file are rejected before any challenge is generated.
func (s *Service) BeginLogin(ctx context.Context, username string) (*protocol.CredentialAssertion, error) {
	const op = "begin login"

	if username == "" {
		return nil, newError(op, fmt.Errorf("%w: empty username", ErrInvalidRequest))
	}

	lock := s.userLock(username)
	lock.Lock()
	defer lock.Unlock()

	user, err := s.store.Get(username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, newError(op, ErrNotRegistered)
	}
	if err != nil {
		return nil, newError(op, err)
	}
	if len(user.Credentials) == 0 {
		return nil, newError(op, ErrNotRegistered)
	}

	challenge, err := NewChallenge()
	if err != nil {
		return nil, newError(op, err)
	}

	options, session, err := s.rp.BeginLogin(user)
	if err != nil {
		return nil, newError(op, err)
	}

	options.Response.Challenge = challenge
	session.Challenge = EncodeChallenge(challenge)

	user.Pending = &models.PendingCeremony{
		Kind:      models.CeremonyAuthentication,
		Session:   *session,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Put(user); err != nil {
		return nil, newError(op, err)
	}

	s.logger.InfoContext(ctx, "authentication ceremony started", "username", username)
	return options, nil
}

// FinishLogin verifies the signed assertion against the pending authentication
// ceremony. On success the credential's sign counter is advanced and
// persisted; the pending ceremony is consumed whatever the outcome.
func (s *Service) FinishLogin(ctx context.Context, username string, response json.RawMessage) error {
	const op = "finish login"

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
	if pending == nil || pending.Kind != models.CeremonyAuthentication {
		return newError(op, ErrChallengeNotFound)
	}

	user.Pending = nil

	if pending.Expired(time.Now().UTC(), s.ttl) {
		if err := s.store.Put(user); err != nil {
			return newError(op, err)
		}
		return newError(op, fmt.Errorf("%w: challenge expired", ErrChallengeNotFound))
	}

	verified, counter, verifyErr := s.verifyAssertion(user, pending.Session, response)
	if verifyErr != nil {
		if err := s.store.Put(user); err != nil {
			return newError(op, err)
		}
		s.logger.WarnContext(ctx, "authentication verification failed",
			"username", username, "error", verifyErr)
		return verifyErr
	}

	stored := user.FindCredential(verified.ID)
	if stored == nil {
		if err := s.store.Put(user); err != nil {
			return newError(op, err)
		}
		return newError(op, ErrUnknownCredential)
	}

	// The counter must advance strictly, except for authenticators that do
	// not implement one and report zero persistently.
	previous := stored.Authenticator.SignCount
	if verified.Authenticator.CloneWarning || (counter <= previous && (counter != 0 || previous != 0)) {
		if err := s.store.Put(user); err != nil {
			return newError(op, err)
		}
		return newError(op, fmt.Errorf("%w: got %d, stored %d", ErrCounterReplay, counter, previous))
	}

	stored.Authenticator.SignCount = counter
	if err := s.store.Put(user); err != nil {
		return newError(op, err)
	}

	s.logger.InfoContext(ctx, "authentication succeeded",
		"username", username,
		"credential_id", base64.RawURLEncoding.EncodeToString(verified.ID),
		"sign_count", counter)
	return nil
}
