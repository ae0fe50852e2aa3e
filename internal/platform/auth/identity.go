package auth

import (
	"context"
	"net/http"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
)

// Identity is the authenticated caller attached to every API request.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == domain.RoleAdmin
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

// DevAuthenticator short-circuits authentication for local development.
type DevAuthenticator struct {
	identity Identity
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{
		identity: Identity{
			UserID: cfg.DevUserID,
			Email:  cfg.DevEmail,
			Role:   cfg.DevRole,
		},
	}
}

func (a *DevAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return a.identity, nil
}
