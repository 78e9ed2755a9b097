package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	gorilla "github.com/gorilla/handlers"

	"go-passkey-server/internal/config"
	"go-passkey-server/internal/handlers"
)

// New builds the HTTP routing tree: ceremony endpoints, session endpoints and
// the debug dump when enabled, wrapped in CORS and panic recovery middleware.
func New(h *handlers.Handler, cfg *config.AppConfig) http.Handler {
	r := chi.NewRouter()

	r.Post("/register", h.Register)
	r.Post("/register/verify", h.RegisterVerify)
	r.Post("/login", h.Login)
	r.Post("/login/verify", h.LoginVerify)

	r.Get("/me", h.Me)
	r.Post("/logout", h.Logout)
	r.Get("/healthz", h.Healthz)

	if cfg.Debug {
		r.Get("/debug-users", h.DebugUsers)
	}

	cors := gorilla.CORS(
		gorilla.AllowedOrigins(cfg.Server.CORSOrigins),
		gorilla.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		gorilla.AllowedHeaders([]string{"Content-Type"}),
	)

	return gorilla.RecoveryHandler()(cors(r))
}
