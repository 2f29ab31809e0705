// Package auth provides authentication context and authorization decisions.
// All functions are pure; token parsing and user lookup happen in the API
// middleware, which builds a Context and stores it on the request.
package auth

import (
	"context"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

// =============================================================================
// Context Key
// =============================================================================

type contextKey string

const authContextKey contextKey = "auth"

// =============================================================================
// Types
// =============================================================================

// PrincipalKind distinguishes session users from webhook tokens.
type PrincipalKind string

const (
	// PrincipalUser is an interactive session authenticated with a bearer token.
	PrincipalUser PrincipalKind = "user"
	// PrincipalWebhook is a project-scoped deploy token. It can trigger a
	// deployment of its project and nothing else.
	PrincipalWebhook PrincipalKind = "webhook"
)

// Context represents the authentication and authorization context for a request.
type Context struct {
	// Authenticated indicates whether the request carries a valid principal.
	Authenticated bool

	// Kind is the principal type. Zero value means unauthenticated.
	Kind PrincipalKind

	// UserID is set for PrincipalUser.
	UserID string

	// Role is set for PrincipalUser.
	Role domain.Role

	// ProjectID is set for PrincipalWebhook: the only project the token may deploy.
	ProjectID string
}

// UserContext builds an authenticated user context.
func UserContext(userID string, role domain.Role) Context {
	return Context{Authenticated: true, Kind: PrincipalUser, UserID: userID, Role: role}
}

// WebhookContext builds a webhook-token context scoped to one project.
func WebhookContext(projectID string) Context {
	return Context{Authenticated: true, Kind: PrincipalWebhook, ProjectID: projectID}
}

// =============================================================================
// Context Storage
// =============================================================================

// WithContext stores the auth context in the request context.
func WithContext(ctx context.Context, authCtx Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth context from the request context.
// If no auth context is found, returns an unauthenticated context.
func FromContext(ctx context.Context) Context {
	if authCtx, ok := ctx.Value(authContextKey).(Context); ok {
		return authCtx
	}
	return Context{Authenticated: false}
}
