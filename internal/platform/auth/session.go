package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
)

const sessionTokenPrefix = "virtlab_session_v1"

var (
	ErrSessionTokenInvalid = errors.New("session token is invalid")
	ErrSessionTokenExpired = errors.New("session token is expired")
)

type SessionClaims struct {
	UserID        string `json:"user_id"`
	IssuedAtUnix  int64  `json:"iat"`
	ExpiresAtUnix int64  `json:"exp"`
}

func GenerateSessionToken(secret string, claims SessionClaims, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("secret is required")
	}
	claims.UserID = strings.TrimSpace(claims.UserID)
	if claims.UserID == "" {
		return "", errors.New("user_id is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	if claims.IssuedAtUnix == 0 {
		claims.IssuedAtUnix = now.UTC().Unix()
	}
	if claims.ExpiresAtUnix == 0 {
		return "", errors.New("exp is required")
	}
	if claims.ExpiresAtUnix <= now.UTC().Unix() {
		return "", errors.New("exp must be in the future")
	}

	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)
	sigB64 := computeSessionSignature(secret, payloadB64)
	return strings.Join([]string{sessionTokenPrefix, payloadB64, sigB64}, "."), nil
}

func VerifySessionToken(secret string, token string, now time.Time) (SessionClaims, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return SessionClaims{}, errors.New("secret is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, ErrSessionTokenInvalid
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] != sessionTokenPrefix {
		return SessionClaims{}, ErrSessionTokenInvalid
	}
	payloadB64 := strings.TrimSpace(parts[1])
	sigB64 := strings.TrimSpace(parts[2])
	if payloadB64 == "" || sigB64 == "" {
		return SessionClaims{}, ErrSessionTokenInvalid
	}

	expectedSig, err := base64.RawURLEncoding.DecodeString(computeSessionSignature(secret, payloadB64))
	if err != nil {
		return SessionClaims{}, ErrSessionTokenInvalid
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return SessionClaims{}, ErrSessionTokenInvalid
	}
	if !hmac.Equal(expectedSig, gotSig) {
		return SessionClaims{}, ErrSessionTokenInvalid
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return SessionClaims{}, ErrSessionTokenInvalid
	}
	var claims SessionClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return SessionClaims{}, ErrSessionTokenInvalid
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return SessionClaims{}, ErrSessionTokenInvalid
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	if claims.ExpiresAtUnix != 0 && claims.ExpiresAtUnix <= now.UTC().Unix() {
		return SessionClaims{}, ErrSessionTokenExpired
	}
	return claims, nil
}

func computeSessionSignature(secret string, payloadB64 string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionTokenPrefix + "." + payloadB64))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// UserGetter loads the account behind a verified session token.
type UserGetter interface {
	Get(ctx context.Context, id string) (domain.User, error)
}

// SessionAuthenticator verifies the session cookie (or bearer token) and loads
// the user it names.
type SessionAuthenticator struct {
	cfg   Config
	users UserGetter
}

func NewSessionAuthenticator(cfg Config, users UserGetter) *SessionAuthenticator {
	if users == nil {
		return nil
	}
	return &SessionAuthenticator{cfg: cfg, users: users}
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	rawToken := tokenFromHeader(r)
	if rawToken == "" {
		rawToken = tokenFromCookie(r, a.cfg.SessionCookieName)
	}
	if rawToken == "" {
		return Identity{}, ErrUnauthenticated
	}

	claims, err := VerifySessionToken(a.cfg.SessionSecret, rawToken, time.Time{})
	if err != nil {
		return Identity{}, err
	}
	user, err := a.users.Get(ctx, claims.UserID)
	if err != nil {
		return Identity{}, fmt.Errorf("load session user: %w", err)
	}
	return Identity{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.DisplayName(),
		Role:   user.Role,
	}, nil
}

func tokenFromHeader(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func tokenFromCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
