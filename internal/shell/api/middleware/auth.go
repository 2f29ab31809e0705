// Package middleware provides HTTP middleware for the AuraOps API.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kamrulh4/auraops/internal/core/auth"
	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Authenticator
// =============================================================================

// TokenVerifier validates a session token and returns the user ID it carries.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserSource looks up users for token resolution.
type UserSource interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Authenticator resolves bearer tokens into an auth context on the request.
// Requests without an Authorization header pass through unauthenticated;
// RequireAuth decides whether that matters for the route.
type Authenticator struct {
	tokens TokenVerifier
	users  UserSource
	logger *slog.Logger
}

// NewAuthenticator creates the bearer-token middleware.
func NewAuthenticator(tokens TokenVerifier, users UserSource, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

// Handler returns the middleware handler function.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "malformed authorization header", "unauthorized")
			return
		}

		userID, err := a.tokens.Verify(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid or expired token", "unauthorized")
			return
		}

		user, err := a.users.GetUser(r.Context(), userID)
		if err != nil {
			// A valid token for a deleted user is indistinguishable from a
			// forged one to the caller.
			writeJSONError(w, http.StatusUnauthorized, "invalid or expired token", "unauthorized")
			return
		}

		authCtx := auth.UserContext(user.ID, user.Role)
		next.ServeHTTP(w, r.WithContext(auth.WithContext(r.Context(), authCtx)))
	})
}

// =============================================================================
// Require Auth
// =============================================================================

// RequireAuth rejects unauthenticated requests. Must run after Authenticator.
func RequireAuth(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.FromContext(r.Context()).Authenticated {
				logger.Warn("unauthenticated request to protected endpoint",
					"path", r.URL.Path,
					"method", r.Method,
				)
				writeJSONError(w, http.StatusUnauthorized, "authentication required", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// JSON Error Response
// =============================================================================

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}
