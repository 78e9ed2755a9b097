// Package ceremony implements the WebAuthn challenge–response state machine:
// issuing single-use challenges bound to a user and a time-bounded pending
// ceremony, and verifying the authenticator's signed response against the
// issued challenge, origin and relying-party identity.
package ceremony

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"go-passkey-server/internal/repository"
)

// DefaultChallengeTTL bounds how long an issued challenge stays valid. The
// observed upstream behavior kept challenges alive indefinitely; the expiry is
// a deliberate hardening deviation.
const DefaultChallengeTTL = 5 * time.Minute

// Config holds the relying-party identity the ceremonies verify against.
// Origin and RP ID must match exactly what the client-side ceremony uses.
type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
	ChallengeTTL  time.Duration
}

// Validate reports whether the configuration is usable.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("rp id is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("rp display name is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one origin is required")
	}
	return nil
}

// Service orchestrates registration and authentication ceremonies against a
// user store.
type Service struct {
	rp     *webauthn.WebAuthn
	store  repository.Store
	logger *slog.Logger
	ttl    time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ceremony service for the given relying-party configuration.
func New(cfg Config, store repository.Store, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ceremony config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.ChallengeTTL
	if ttl == 0 {
		ttl = DefaultChallengeTTL
	}

	rp, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("create webauthn relying party: %w", err)
	}

	return &Service{
		rp:     rp,
		store:  store,
		logger: logger,
		ttl:    ttl,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// userLock returns the mutex serializing ceremony operations for one user, so
// a start racing a verify for the same username cannot interleave between the
// store read and the store write.
func (s *Service) userLock(username string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[username]
	if !ok {
		l = &sync.Mutex{}
		s.locks[username] = l
	}
	return l
}

// authenticatorSelection is fixed to the platform-authenticator passkey
// profile: resident key required, user verification required.
func authenticatorSelection() protocol.AuthenticatorSelection {
	return protocol.AuthenticatorSelection{
		AuthenticatorAttachment: protocol.Platform,
		UserVerification:        protocol.VerificationRequired,
		ResidentKey:             protocol.ResidentKeyRequirementRequired,
		RequireResidentKey:      protocol.ResidentKeyRequired(),
	}
}
