package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kamrulh4/auraops/internal/core/auth"
	"github.com/kamrulh4/auraops/internal/core/domain"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Auth Handlers
// =============================================================================

// handleRegister creates an account. The first account on a fresh install
// becomes the admin; everyone after that registers as a developer.
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	count, err := h.store.CountUsers(r.Context())
	if err != nil {
		h.logger.Error("failed to count users", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to register", "internal_error")
		return
	}
	role := domain.RoleDeveloper
	if count == 0 {
		role = domain.RoleAdmin
	}

	user, err := domain.NewUser(req.Email, req.Password, role)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			h.writeError(w, http.StatusConflict, "email already registered", "duplicate_email")
			return
		}
		h.logger.Error("failed to create user", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to register", "internal_error")
		return
	}

	h.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	h.writeJSON(w, http.StatusCreated, userToResponse(user))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		// Same answer for unknown email and wrong password.
		h.writeError(w, http.StatusUnauthorized, "invalid credentials", "invalid_credentials")
		return
	}

	token, err := h.sessions.Mint(user.ID)
	if err != nil {
		h.logger.Error("failed to mint session token", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to log in", "internal_error")
		return
	}

	user.TouchLogin()
	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		h.logger.Error("failed to record login", "user_id", user.ID, "error", err)
	}

	h.writeJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresIn: int(h.sessions.TTL().Seconds()),
		User:      userToResponse(user),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx.Kind != auth.PrincipalUser {
		h.writeForbidden(w)
		return
	}

	user, err := h.store.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load user", "internal_error")
		return
	}
	h.writeJSON(w, http.StatusOK, userToResponse(user))
}

// =============================================================================
// User Management Handlers
// =============================================================================

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !auth.CanManageUsers(auth.FromContext(r.Context())) {
		h.writeForbidden(w)
		return
	}

	users, err := h.store.ListUsers(r.Context(), listOptionsFromQuery(r))
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list users", "internal_error")
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for i := range users {
		resp = append(resp, userToResponse(&users[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if !auth.CanManageUsers(authCtx) {
		h.writeForbidden(w)
		return
	}

	var req UpdateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role := domain.Role(req.Role)
	if !domain.ValidRole(role) {
		h.writeError(w, http.StatusBadRequest, "unknown role", "validation_error")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == authCtx.UserID {
		h.writeError(w, http.StatusBadRequest, "cannot change own role", "validation_error")
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		if isNotFound(err) {
			h.writeError(w, http.StatusNotFound, "user not found", "user_not_found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "failed to load user", "internal_error")
		return
	}

	user.Role = role
	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		h.logger.Error("failed to update user role", "user_id", userID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to update user", "internal_error")
		return
	}

	h.logger.Info("user role changed", "user_id", userID, "role", role)
	h.writeJSON(w, http.StatusOK, userToResponse(user))
}
