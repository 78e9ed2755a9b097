package main

import (
	"crypto/rand"
	"flag"
	"log/slog"
	"net/http"
	"os"

	"go-passkey-server/internal/ceremony"
	"go-passkey-server/internal/config"
	"go-passkey-server/internal/handlers"
	"go-passkey-server/internal/repository"
	"go-passkey-server/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Open User Store
	store, err := repository.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open user store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. Init Ceremony Engine
	svc, err := ceremony.New(ceremony.Config{
		RPID:          cfg.WebAuthn.RPID,
		RPDisplayName: cfg.WebAuthn.RPDisplayName,
		RPOrigins:     cfg.WebAuthn.RPOrigins,
		ChallengeTTL:  cfg.WebAuthn.ChallengeTTL,
	}, store, logger)
	if err != nil {
		logger.Error("failed to create ceremony service", "error", err)
		os.Exit(1)
	}

	// 4. Session Secret
	secret := []byte(cfg.Session.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Error("failed to generate session secret", "error", err)
			os.Exit(1)
		}
		logger.Warn("session.secret not set, sessions will not survive a restart")
	}

	// 5. Setup Routes
	h := handlers.New(svc, store, secret, logger)
	mux := router.New(h, cfg)

	if cfg.Debug {
		logger.Warn("debug mode enabled, /debug-users dumps the full store")
	}

	// 6. Start Server
	logger.Info("server starting",
		"addr", cfg.Server.Addr,
		"rp_id", cfg.WebAuthn.RPID,
		"origins", cfg.WebAuthn.RPOrigins,
		"backend", cfg.Storage.Backend)
	if err := http.ListenAndServe(cfg.Server.Addr, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
