package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
)

// UserUpserter provisions the account on first login and refreshes it on
// subsequent ones.
type UserUpserter interface {
	UpsertByGoogleSubject(ctx context.Context, user domain.User) (domain.User, error)
}

// OIDCService drives the Google login exchange and hands out session cookies.
type OIDCService struct {
	cfg          Config
	verifier     *oidc.IDTokenVerifier
	oauth2Config oauth2.Config
	users        UserUpserter
}

func NewOIDCService(ctx context.Context, cfg Config, users UserUpserter) (*OIDCService, error) {
	if err := cfg.ValidateForLogin(); err != nil {
		return nil, err
	}
	if users == nil {
		return nil, errors.New("user upserter is required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}

	return &OIDCService{
		cfg:      cfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID}),
		oauth2Config: oauth2.Config{
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.OIDCRedirectURL,
			Scopes:       cfg.OIDCScopes,
		},
		users: users,
	}, nil
}

func (s *OIDCService) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := randomBase64URL(32)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
			return
		}
		verifier, err := randomBase64URL(32)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
			return
		}
		nonce, err := randomBase64URL(32)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "internal error"})
			return
		}
		challenge := pkceS256Challenge(verifier)

		setShortCookie(w, "virtlab_oidc_state", state, s.cfg)
		setShortCookie(w, "virtlab_oidc_verifier", verifier, s.cfg)
		setShortCookie(w, "virtlab_oidc_nonce", nonce, s.cfg)

		redirectURL := s.oauth2Config.AuthCodeURL(
			state,
			oauth2.AccessTypeOnline,
			oauth2.SetAuthURLParam("code_challenge", challenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
			oauth2.SetAuthURLParam("nonce", nonce),
		)
		http.Redirect(w, r, redirectURL, http.StatusFound)
	}
}

// CallbackHandler exchanges the code, verifies the ID token, upserts the user
// and issues the session cookie before redirecting to the frontend.
func (s *OIDCService) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stateQuery := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if stateQuery == "" || code == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "missing code or state"})
			return
		}

		stateCookie := tokenFromCookie(r, "virtlab_oidc_state")
		if stateCookie == "" || stateCookie != stateQuery {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "invalid state"})
			return
		}
		codeVerifier := tokenFromCookie(r, "virtlab_oidc_verifier")
		nonceCookie := tokenFromCookie(r, "virtlab_oidc_nonce")
		if codeVerifier == "" || nonceCookie == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "missing pkce or nonce"})
			return
		}

		exchangeCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		token, err := s.oauth2Config.Exchange(exchangeCtx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token exchange failed"})
			return
		}
		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok || rawIDToken == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "missing id token"})
			return
		}
		idToken, err := s.verifier.Verify(exchangeCtx, rawIDToken)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid id token"})
			return
		}

		var claims struct {
			Nonce      string `json:"nonce"`
			Email      string `json:"email"`
			GivenName  string `json:"given_name"`
			FamilyName string `json:"family_name"`
		}
		if err := idToken.Claims(&claims); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid id token claims"})
			return
		}
		if claims.Nonce == "" || claims.Nonce != nonceCookie {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid nonce"})
			return
		}

		user, err := s.users.UpsertByGoogleSubject(r.Context(), domain.User{
			ID:            uuid.NewString(),
			GoogleSubject: idToken.Subject,
			Email:         claims.Email,
			FirstName:     claims.GivenName,
			LastName:      claims.FamilyName,
		})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "failed to provision user", "error": err.Error()})
			return
		}

		now := time.Now().UTC()
		sessionToken, err := GenerateSessionToken(s.cfg.SessionSecret, SessionClaims{
			UserID:        user.ID,
			ExpiresAtUnix: now.Add(s.cfg.SessionCookieMaxAge).Unix(),
		}, now)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "failed to issue session", "error": err.Error()})
			return
		}

		setSessionCookie(w, s.cfg.SessionCookieName, sessionToken, s.cfg)
		clearCookie(w, "virtlab_oidc_state", s.cfg)
		clearCookie(w, "virtlab_oidc_verifier", s.cfg)
		clearCookie(w, "virtlab_oidc_nonce", s.cfg)

		http.Redirect(w, r, s.cfg.FrontendURL+"/home", http.StatusFound)
	}
}

func (s *OIDCService) LogoutHandler() http.HandlerFunc {
	return LogoutHandler(s.cfg)
}

func LogoutHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clearCookie(w, cfg.SessionCookieName, cfg)
		writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
	}
}

func randomBase64URL(nBytes int) (string, error) {
	if nBytes <= 0 {
		return "", errors.New("nBytes must be positive")
	}
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func setShortCookie(w http.ResponseWriter, name string, value string, cfg Config) {
	setCookie(w, name, value, 10*time.Minute, cfg)
}

func setSessionCookie(w http.ResponseWriter, name string, value string, cfg Config) {
	setCookie(w, name, value, cfg.SessionCookieMaxAge, cfg)
}

func setCookie(w http.ResponseWriter, name string, value string, ttl time.Duration, cfg Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SessionCookieSecure,
		SameSite: parseSameSite(cfg.SessionCookieSameSite),
	})
}

func clearCookie(w http.ResponseWriter, name string, cfg Config) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SessionCookieSecure,
		SameSite: parseSameSite(cfg.SessionCookieSameSite),
	})
}

func parseSameSite(raw string) http.SameSite {
	switch raw {
	case "Strict", "strict":
		return http.SameSiteStrictMode
	case "None", "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
