package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"

	"go-passkey-server/internal/ceremony"
	"go-passkey-server/internal/repository"
)

const sessionName = "passkey-session"

// ceremonyRequest is the body shared by all four ceremony endpoints; Cred is
// only present on the verify calls and is passed through opaquely.
type ceremonyRequest struct {
	Username string          `json:"username"`
	Cred     json.RawMessage `json:"cred,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler exposes the ceremony engine over HTTP.
type Handler struct {
	ceremonies *ceremony.Service
	store      repository.Store
	sessions   *sessions.CookieStore
	logger     *slog.Logger
}

// New creates the HTTP handler set. The session secret signs the login cookie
// issued after a successful verify.
func New(svc *ceremony.Service, store repository.Store, sessionSecret []byte, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cookieStore := sessions.NewCookieStore(sessionSecret)
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Handler{
		ceremonies: svc,
		store:      store,
		sessions:   cookieStore,
		logger:     logger,
	}
}

// Register handles POST /register: starts a registration ceremony and returns
// the credential-creation options.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	options, err := h.ceremonies.BeginRegistration(r.Context(), req.Username)
	if err != nil {
		h.writeCeremonyError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

// RegisterVerify handles POST /register/verify: verifies the attestation
// response and commits the new credential.
func (h *Handler) RegisterVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.ceremonies.FinishRegistration(r.Context(), req.Username, req.Cred); err != nil {
		h.writeCeremonyError(w, r, err)
		return
	}
	h.establishSession(w, r, req.Username)
	h.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Login handles POST /login: starts an authentication ceremony and returns the
// assertion options with the user's allowed credential IDs.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	options, err := h.ceremonies.BeginLogin(r.Context(), req.Username)
	if err != nil {
		h.writeCeremonyError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, options)
}

// LoginVerify handles POST /login/verify: verifies the signed assertion,
// advances the sign counter and establishes a login session.
func (h *Handler) LoginVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if err := h.ceremonies.FinishLogin(r.Context(), req.Username, req.Cred); err != nil {
		h.writeCeremonyError(w, r, err)
		return
	}
	h.establishSession(w, r, req.Username)
	h.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Me handles GET /me: returns the username bound to the login session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	username, ok := session.Values["username"].(string)
	if !ok || username == "" {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not logged in"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"username": username})
}

// Logout handles POST /logout: clears the login session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to clear session", "error", err)
	}
	h.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DebugUsers handles GET /debug-users: dumps the full user store. Only mounted
// when debug mode is enabled.
func (h *Handler) DebugUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.All()
	if err != nil {
		h.logger.Error("failed to dump user store", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"total": len(users),
		"users": users,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (ceremonyRequest, bool) {
	var req ceremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return req, false
	}
	return req, true
}

func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, username string) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["username"] = username
	if err := session.Save(r, w); err != nil {
		h.logger.Error("failed to save session", "username", username, "error", err)
	}
}

// writeCeremonyError maps ceremony errors to client errors and everything else
// (store faults included) to a server error.
func (h *Handler) writeCeremonyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ceremony.ErrNotRegistered),
		errors.Is(err, ceremony.ErrChallengeNotFound),
		errors.Is(err, ceremony.ErrDuplicateCredential),
		errors.Is(err, ceremony.ErrUnknownCredential),
		errors.Is(err, ceremony.ErrCounterReplay),
		errors.Is(err, ceremony.ErrMalformedResponse),
		errors.Is(err, ceremony.ErrVerificationFailed),
		errors.Is(err, ceremony.ErrInvalidRequest):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("ceremony operation failed",
			"path", r.URL.Path, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
