// Package auth covers the identity boundary: the Google OIDC login exchange,
// the HMAC session cookie the service issues afterwards, and the middleware
// that turns a request into an Identity.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/virtlab-edu/virtlab-go/internal/platform/env"
)

type Mode string

const (
	ModeOIDC Mode = "oidc"
	ModeDev  Mode = "dev"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type Config struct {
	Mode Mode

	SessionSecret         string
	SessionCookieName     string
	SessionCookieSecure   bool
	SessionCookieMaxAge   time.Duration
	SessionCookieSameSite string

	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	OIDCScopes       []string

	// FrontendURL is where the callback redirects once the session is issued.
	FrontendURL string

	DevUserID string
	DevEmail  string
	DevRole   string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeOIDC))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: oidc, dev (got %q)", modeRaw)
	}

	sessionCookieSecure, err := env.Bool("AUTH_SESSION_COOKIE_SECURE", true)
	if err != nil {
		return Config{}, err
	}
	maxAgeSeconds, err := env.Int("AUTH_SESSION_MAX_AGE_SECONDS", 7*24*3600)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode:                  mode,
		SessionSecret:         env.String("AUTH_SESSION_SECRET", ""),
		SessionCookieName:     env.String("AUTH_SESSION_COOKIE_NAME", "virtlab_session"),
		SessionCookieSecure:   sessionCookieSecure,
		SessionCookieMaxAge:   time.Duration(maxAgeSeconds) * time.Second,
		SessionCookieSameSite: env.String("AUTH_SESSION_COOKIE_SAMESITE", "Lax"),
		OIDCIssuerURL:         env.String("OIDC_ISSUER_URL", "https://accounts.google.com"),
		OIDCClientID:          env.String("OIDC_CLIENT_ID", ""),
		OIDCClientSecret:      env.String("OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:       env.String("OIDC_REDIRECT_URL", ""),
		OIDCScopes:            env.CSV("OIDC_SCOPES", "openid,profile,email"),
		FrontendURL:           env.String("FRONTEND_URL", "http://localhost:5173"),
		DevUserID:             env.String("DEV_AUTH_USER_ID", "dev-user"),
		DevEmail:              env.String("DEV_AUTH_EMAIL", "dev-user@example.local"),
		DevRole:               env.String("DEV_AUTH_ROLE", "admin"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.SessionSecret) == "" {
			return errors.New("AUTH_SESSION_SECRET is required in oidc mode")
		}
		if strings.TrimSpace(c.SessionCookieName) == "" {
			return errors.New("AUTH_SESSION_COOKIE_NAME is required")
		}
		if c.SessionCookieMaxAge <= 0 {
			return errors.New("AUTH_SESSION_MAX_AGE_SECONDS must be positive")
		}
	case ModeDev:
	default:
		return fmt.Errorf("unknown auth mode %q", c.Mode)
	}
	return nil
}

// ValidateForLogin checks the fields only the login/callback handlers need.
func (c Config) ValidateForLogin() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.OIDCIssuerURL) == "" {
		return errors.New("OIDC_ISSUER_URL is required")
	}
	if strings.TrimSpace(c.OIDCClientID) == "" {
		return errors.New("OIDC_CLIENT_ID is required")
	}
	if strings.TrimSpace(c.OIDCClientSecret) == "" {
		return errors.New("OIDC_CLIENT_SECRET is required")
	}
	if strings.TrimSpace(c.OIDCRedirectURL) == "" {
		return errors.New("OIDC_REDIRECT_URL is required")
	}
	return nil
}
