package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-passkey-server/internal/ceremony"
	"go-passkey-server/internal/config"
	"go-passkey-server/internal/handlers"
	"go-passkey-server/internal/repository"
	"go-passkey-server/internal/router"
)

const (
	testRPID   = "localhost"
	testRPName = "Fingerprint Demo"
)

type optionsEnvelope struct {
	PublicKey json.RawMessage `json:"publicKey"`
}

func newTestServer(t *testing.T, debug bool) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := repository.NewMemoryStore()

	cfg := &config.AppConfig{}
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Debug = debug

	// The test server's own origin is not known before it starts, so wire the
	// routes first and register the origin afterwards.
	srv := httptest.NewServer(nil)
	t.Cleanup(srv.Close)

	svc, err := ceremony.New(ceremony.Config{
		RPID:          testRPID,
		RPDisplayName: testRPName,
		RPOrigins:     []string{srv.URL},
	}, store, logger)
	require.NoError(t, err)

	h := handlers.New(svc, store, []byte("0123456789abcdef0123456789abcdef"), logger)
	srv.Config.Handler = router.New(h, cfg)
	return srv
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func postJSON(t *testing.T, client *http.Client, url string, body any) (int, []byte) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func getJSON(t *testing.T, client *http.Client, url string) (int, []byte) {
	t.Helper()

	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// registerOverHTTP drives a full registration ceremony through the HTTP API.
func registerOverHTTP(t *testing.T, client *http.Client, baseURL, username string, authenticator *virtualwebauthn.Authenticator, credential virtualwebauthn.Credential) {
	t.Helper()

	status, raw := postJSON(t, client, baseURL+"/register", map[string]string{"username": username})
	require.Equal(t, http.StatusOK, status, "begin registration: %s", raw)

	var envelope optionsEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))

	rp := virtualwebauthn.RelyingParty{Name: testRPName, ID: testRPID, Origin: baseURL}
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(envelope.PublicKey))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(rp, *authenticator, credential, *parsed)

	status, raw = postJSON(t, client, baseURL+"/register/verify", map[string]any{
		"username": username,
		"cred":     json.RawMessage(attestation),
	})
	require.Equal(t, http.StatusOK, status, "verify registration: %s", raw)
	authenticator.AddCredential(credential)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, false)

	status, raw := getJSON(t, newClient(t), srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok"}`, string(raw))
}

func TestFullCeremonyFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, false)
	client := newClient(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerOverHTTP(t, client, srv.URL, "alice", &authenticator, credential)

	// The verify established a login session.
	status, raw := getJSON(t, client, srv.URL+"/me")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"username":"alice"}`, string(raw))

	// Log in with the registered credential.
	credential.Counter++
	status, raw = postJSON(t, client, srv.URL+"/login", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusOK, status, "begin login: %s", raw)

	var envelope optionsEnvelope
	require.NoError(t, json.Unmarshal(raw, &envelope))

	rp := virtualwebauthn.RelyingParty{Name: testRPName, ID: testRPID, Origin: srv.URL}
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(envelope.PublicKey))
	require.NoError(t, err)
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, credential, *parsed)

	status, raw = postJSON(t, client, srv.URL+"/login/verify", map[string]any{
		"username": "alice",
		"cred":     json.RawMessage(assertion),
	})
	require.Equal(t, http.StatusOK, status, "verify login: %s", raw)
	assert.JSONEq(t, `{"ok":true}`, string(raw))

	// Logout clears the session.
	status, _ = postJSON(t, client, srv.URL+"/logout", struct{}{})
	require.Equal(t, http.StatusOK, status)

	status, _ = getJSON(t, client, srv.URL+"/me")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLoginUnregisteredUser(t *testing.T) {
	srv := newTestServer(t, false)

	status, raw := postJSON(t, newClient(t), srv.URL+"/login", map[string]string{"username": "ghost"})
	assert.Equal(t, http.StatusBadRequest, status)

	var body map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Contains(t, body["error"], "not registered")
}

func TestVerifyWithoutPendingChallenge(t *testing.T) {
	srv := newTestServer(t, false)

	status, raw := postJSON(t, newClient(t), srv.URL+"/register/verify", map[string]any{
		"username": "alice",
		"cred":     json.RawMessage(`{}`),
	})
	assert.Equal(t, http.StatusBadRequest, status)

	var body map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Contains(t, body["error"], "challenge")
}

func TestInvalidRequestBody(t *testing.T) {
	srv := newTestServer(t, false)
	client := newClient(t)

	resp, err := client.Post(srv.URL+"/register", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMeWithoutSession(t *testing.T) {
	srv := newTestServer(t, false)

	status, raw := getJSON(t, newClient(t), srv.URL+"/me")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"not logged in"}`, string(raw))
}

func TestDebugUsersOnlyMountedInDebugMode(t *testing.T) {
	srv := newTestServer(t, false)
	status, _ := getJSON(t, newClient(t), srv.URL+"/debug-users")
	assert.Equal(t, http.StatusNotFound, status)

	debugSrv := newTestServer(t, true)
	client := newClient(t)

	authenticator := virtualwebauthn.NewAuthenticator()
	credential := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	registerOverHTTP(t, client, debugSrv.URL, "alice", &authenticator, credential)

	status, raw := getJSON(t, client, debugSrv.URL+"/debug-users")
	require.Equal(t, http.StatusOK, status)

	var body struct {
		Total int                        `json:"total"`
		Users map[string]json.RawMessage `json:"users"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, 1, body.Total)
	assert.Contains(t, body.Users, "alice")
}
