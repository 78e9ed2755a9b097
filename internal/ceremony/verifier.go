package ceremony

import (
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"go-passkey-server/internal/models"
)

// The response verifier is the shared cryptographic core of both ceremonies.
// Challenge, origin and RP ID hash comparison, attestation parsing and
// assertion signature verification are delegated to go-webauthn against the
// session stored in the pending ceremony. A negative verification is a normal
// result (ErrVerificationFailed); only unparseable input is a fault
// (ErrMalformedResponse).

// verifyRegistration checks an attestation response and returns the credential
// to commit: credential ID, COSE public key, transports and an initial sign
// count of zero.
func (s *Service) verifyRegistration(user *models.User, session webauthn.SessionData, response json.RawMessage) (*webauthn.Credential, error) {
	const op = "verify attestation"

	var ccr protocol.CredentialCreationResponse
	if err := json.Unmarshal(response, &ccr); err != nil {
		return nil, newError(op, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	parsed, err := ccr.Parse()
	if err != nil {
		return nil, newError(op, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	credential, err := s.rp.CreateCredential(user, session, parsed)
	if err != nil {
		return nil, failVerification(op, err)
	}
	return credential, nil
}

// verifyAssertion checks a signed assertion and returns the validated
// credential along with the sign counter extracted from the authenticator
// data.
func (s *Service) verifyAssertion(user *models.User, session webauthn.SessionData, response json.RawMessage) (*webauthn.Credential, uint32, error) {
	const op = "verify assertion"

	var car protocol.CredentialAssertionResponse
	if err := json.Unmarshal(response, &car); err != nil {
		return nil, 0, newError(op, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	parsed, err := car.Parse()
	if err != nil {
		return nil, 0, newError(op, fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	// Resolve the referenced credential within the user's own list before
	// touching any cryptography, so an unknown ID fails distinctly.
	if user.FindCredential(parsed.RawID) == nil {
		return nil, 0, newError(op, ErrUnknownCredential)
	}

	credential, err := s.rp.ValidateLogin(user, session, parsed)
	if err != nil {
		return nil, 0, failVerification(op, err)
	}
	return credential, parsed.Response.AuthenticatorData.Counter, nil
}
