// Command smoketest drives a full passkey registration and login round trip
// against a running server, using a virtual authenticator in place of a
// browser. Intended for local development and deployment checks.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/descope/virtualwebauthn"
)

var (
	baseURL  = flag.String("url", "http://localhost:5000", "server base URL")
	username = flag.String("username", "demo-user", "username to register and log in")
	rpID     = flag.String("rp-id", "localhost", "relying party ID the server is configured with")
	rpName   = flag.String("rp-name", "Fingerprint Demo", "relying party display name")
	origin   = flag.String("origin", "http://localhost:5000", "origin the server expects")
)

type optionsEnvelope struct {
	PublicKey json.RawMessage `json:"publicKey"`
}

type verifyRequest struct {
	Username string          `json:"username"`
	Cred     json.RawMessage `json:"cred"`
}

type okResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func main() {
	flag.Parse()

	rp := virtualwebauthn.RelyingParty{Name: *rpName, ID: *rpID, Origin: *origin}
	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	// 1. Register
	attOptions, err := startCeremony("/register")
	if err != nil {
		log.Fatalf("Failed to start registration: %v", err)
	}
	parsedAtt, err := virtualwebauthn.ParseAttestationOptions(string(attOptions))
	if err != nil {
		log.Fatalf("Failed to parse attestation options: %v", err)
	}
	attResponse := virtualwebauthn.CreateAttestationResponse(rp, authenticator, credential, *parsedAtt)
	if err := verifyCeremony("/register/verify", attResponse); err != nil {
		log.Fatalf("Registration verify failed: %v", err)
	}
	authenticator.AddCredential(credential)
	fmt.Println("✅ Registered", *username)

	// 2. Login twice to exercise the sign counter
	for i := 1; i <= 2; i++ {
		credential.Counter++

		assertOptions, err := startCeremony("/login")
		if err != nil {
			log.Fatalf("Failed to start login: %v", err)
		}
		parsedAssert, err := virtualwebauthn.ParseAssertionOptions(string(assertOptions))
		if err != nil {
			log.Fatalf("Failed to parse assertion options: %v", err)
		}
		assertResponse := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsedAssert)
		if err := verifyCeremony("/login/verify", assertResponse); err != nil {
			log.Fatalf("Login verify failed: %v", err)
		}
		fmt.Printf("✅ Login %d succeeded (counter %d)\n", i, credential.Counter)
	}

	fmt.Println("✅ Smoke test passed")
}

func startCeremony(path string) (json.RawMessage, error) {
	body, _ := json.Marshal(map[string]string{"username": *username})
	resp, err := client().Post(*baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e okResponse
		json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, e.Error)
	}

	var envelope optionsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return envelope.PublicKey, nil
}

func verifyCeremony(path, credJSON string) error {
	body, err := json.Marshal(verifyRequest{
		Username: *username,
		Cred:     json.RawMessage(credJSON),
	})
	if err != nil {
		return err
	}
	resp, err := client().Post(*baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result okResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK || !result.OK {
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, result.Error)
	}
	return nil
}

func client() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
