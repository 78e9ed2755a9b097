package ceremony

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations. The HTTP layer maps each of these
// to a client error; anything else is treated as a server fault.
var (
	// ErrNotRegistered is returned when login starts for a user with no
	// credentials on file.
	ErrNotRegistered = errors.New("not registered")

	// ErrChallengeNotFound is returned when a verify call has no matching
	// pending ceremony, or the pending ceremony has expired.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrDuplicateCredential is returned when a registration would commit a
	// credential ID that already exists anywhere in the store.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrUnknownCredential is returned when an assertion references a
	// credential ID not on file for that user.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrCounterReplay is returned when an assertion's sign counter did not
	// advance past the stored value.
	ErrCounterReplay = errors.New("sign counter did not advance")

	// ErrMalformedResponse is returned when the input cannot be parsed as a
	// WebAuthn response at all.
	ErrMalformedResponse = errors.New("malformed authenticator response")

	// ErrVerificationFailed is returned for challenge, origin, RP ID or
	// signature mismatches. This is a normal negative result, not a fault.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrInvalidRequest is returned for requests that fail basic validation,
	// such as an empty username.
	ErrInvalidRequest = errors.New("invalid request")
)

// Error wraps a sentinel error with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether the target error matches.
func (e *Error) Is(target error) bool { return errors.Is(e.Err, target) }

func newError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// failVerification wraps a negative verification result so callers can match
// ErrVerificationFailed while keeping the specific reason in the message.
func failVerification(op string, cause error) error {
	return newError(op, fmt.Errorf("%w: %v", ErrVerificationFailed, cause))
}
