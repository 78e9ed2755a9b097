package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the application configuration. Values come from an optional
// YAML file overridden by PASSKEY_* environment variables; the relying-party
// origin and ID in particular are environment-derived in deployments and must
// match exactly what the browser-side ceremony uses.
type AppConfig struct {
	Server struct {
		Addr        string   `mapstructure:"addr"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`

	WebAuthn struct {
		RPID          string        `mapstructure:"rp_id"`
		RPDisplayName string        `mapstructure:"rp_display_name"`
		RPOrigins     []string      `mapstructure:"rp_origins"`
		ChallengeTTL  time.Duration `mapstructure:"challenge_ttl"`
	} `mapstructure:"webauthn"`

	Storage struct {
		// Backend is one of "file", "pudge" or "memory".
		Backend string `mapstructure:"backend"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"storage"`

	Session struct {
		// Secret signs the login session cookie. Generated at startup when
		// empty, which invalidates sessions across restarts.
		Secret string `mapstructure:"secret"`
	} `mapstructure:"session"`

	// Debug mounts the /debug-users store dump. Never enable in production.
	Debug bool `mapstructure:"debug"`
}

// Load reads the configuration from the given file path (optional, may be
// empty) and the environment.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("webauthn.rp_id", "localhost")
	v.SetDefault("webauthn.rp_display_name", "Fingerprint Demo")
	v.SetDefault("webauthn.rp_origins", []string{"http://localhost:5000"})
	v.SetDefault("webauthn.challenge_ttl", 5*time.Minute)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.path", "users.json")
	v.SetDefault("session.secret", "")
	v.SetDefault("debug", false)

	v.SetEnvPrefix("PASSKEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run without.
func (c *AppConfig) Validate() error {
	if c.WebAuthn.RPID == "" {
		return fmt.Errorf("webauthn.rp_id is required")
	}
	if len(c.WebAuthn.RPOrigins) == 0 {
		return fmt.Errorf("webauthn.rp_origins is required")
	}
	switch c.Storage.Backend {
	case "file", "pudge", "memory":
	default:
		return fmt.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend != "memory" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
	}
	return nil
}
