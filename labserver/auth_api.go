package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/virtlab-edu/virtlab-go/internal/domain"
	"github.com/virtlab-edu/virtlab-go/internal/platform/auth"
	"github.com/virtlab-edu/virtlab-go/internal/platform/httpserver"
	"github.com/virtlab-edu/virtlab-go/internal/repo"
	"github.com/virtlab-edu/virtlab-go/internal/service"
)

type authAPI struct {
	logger *slog.Logger
	cfg    auth.Config
	users  repo.UserRepository
	oidc   *auth.OIDCService
}

func newAuthAPI(logger *slog.Logger, cfg auth.Config, users repo.UserRepository, oidc *auth.OIDCService) *authAPI {
	return &authAPI{
		logger: logger,
		cfg:    cfg,
		users:  users,
		oidc:   oidc,
	}
}

func (api *authAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/check", api.handleCheck)
	mux.HandleFunc("POST /auth/role", api.handleSelectRole)
	mux.HandleFunc("POST /logout", auth.LogoutHandler(api.cfg))
	if api.oidc != nil {
		mux.HandleFunc("GET /auth/google/login", api.oidc.LoginHandler())
		mux.HandleFunc("GET /auth/google/callback", api.oidc.CallbackHandler())
	}
}

func (api *authAPI) handleCheck(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
		return
	}
	user, err := api.users.Get(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			httpserver.WriteJSON(w, http.StatusUnauthorized, errorResponse{Message: "unauthorized"})
			return
		}
		writeServiceError(api.logger, w, r, "Failed to load user", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          userToResponse(user),
	})
}

type selectRoleRequest struct {
	Role string `json:"role"`
}

// handleSelectRole records the role chosen on first login. A role can only be
// set while it is still empty; later attempts conflict.
func (api *authAPI) handleSelectRole(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Message: "missing identity"})
		return
	}
	var req selectRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if !domain.ValidRole(req.Role) {
		writeBadRequest(w, "role must be student or admin")
		return
	}

	if err := api.users.SetRole(r.Context(), identity.UserID, req.Role); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeServiceError(api.logger, w, r, "Role is already set", fmt.Errorf("user %s: %w", identity.UserID, service.ErrRoleAlreadySet))
			return
		}
		writeServiceError(api.logger, w, r, "Failed to set role", err)
		return
	}

	user, err := api.users.Get(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(api.logger, w, r, "Failed to load user", err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, userToResponse(user))
}
