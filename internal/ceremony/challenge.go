package ceremony

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
)

// ChallengeLength is the number of random bytes in a ceremony challenge.
// 32 bytes gives 256 bits of unpredictability; WebAuthn requires at least 16.
const ChallengeLength = 32

// NewChallenge draws a fresh challenge from the system CSPRNG. The returned
// value marshals as unpadded base64url on the wire.
func NewChallenge() (protocol.URLEncodedBase64, error) {
	buf := make([]byte, ChallengeLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	return protocol.URLEncodedBase64(buf), nil
}

// EncodeChallenge returns the unpadded base64url text of a challenge, the form
// stored in session state and echoed back inside clientDataJSON.
func EncodeChallenge(c protocol.URLEncodedBase64) string {
	return base64.RawURLEncoding.EncodeToString(c)
}
