package auth

import (
	"github.com/kamrulh4/auraops/internal/core/domain"
)

// Authorization rules:
//   - admins may do everything
//   - developers manage projects they own and view the rest
//   - viewers are read-only
//   - webhook principals may only deploy their own project
//
// Handlers must render every denial identically so callers cannot probe
// which rule rejected them.

// =============================================================================
// Project Authorization
// =============================================================================

// CanViewProject checks if the principal can read a project.
func CanViewProject(ctx Context, project domain.Project) bool {
	if !ctx.Authenticated {
		return false
	}
	if ctx.Kind == PrincipalWebhook {
		return ctx.ProjectID == project.ID
	}
	// Any authenticated user may read project metadata.
	return true
}

// CanManageProject checks if the principal can modify or delete a project.
func CanManageProject(ctx Context, project domain.Project) bool {
	if !ctx.Authenticated || ctx.Kind != PrincipalUser {
		return false
	}
	if ctx.Role == domain.RoleAdmin {
		return true
	}
	return ctx.Role == domain.RoleDeveloper && ctx.UserID == project.OwnerID
}

// CanCreateProject checks if the principal can create projects.
func CanCreateProject(ctx Context) bool {
	if !ctx.Authenticated || ctx.Kind != PrincipalUser {
		return false
	}
	return ctx.Role == domain.RoleAdmin || ctx.Role == domain.RoleDeveloper
}

// CanDeployProject checks if the principal can trigger a deployment.
// This is the one operation open to webhook principals.
func CanDeployProject(ctx Context, project domain.Project) bool {
	if !ctx.Authenticated {
		return false
	}
	if ctx.Kind == PrincipalWebhook {
		return ctx.ProjectID == project.ID
	}
	return CanManageProject(ctx, project)
}

// =============================================================================
// Domain Authorization
// =============================================================================

// CanManageDomains checks if the principal can attach or remove hostnames
// and request certificates for a project.
func CanManageDomains(ctx Context, project domain.Project) bool {
	return CanManageProject(ctx, project)
}

// =============================================================================
// Credential Authorization
// =============================================================================

// CanViewCredentials checks if the principal can read a project's generated
// service credentials. Viewers cannot: credentials are secrets, not metadata.
func CanViewCredentials(ctx Context, project domain.Project) bool {
	return CanManageProject(ctx, project)
}

// =============================================================================
// Platform Authorization
// =============================================================================

// CanProvisionService checks if the principal can provision a managed service.
func CanProvisionService(ctx Context) bool {
	return CanCreateProject(ctx)
}

// CanViewStats checks if the principal can read platform-wide statistics.
func CanViewStats(ctx Context) bool {
	return ctx.Authenticated && ctx.Kind == PrincipalUser && ctx.Role == domain.RoleAdmin
}

// CanManageUsers checks if the principal can change user roles.
func CanManageUsers(ctx Context) bool {
	return ctx.Authenticated && ctx.Kind == PrincipalUser && ctx.Role == domain.RoleAdmin
}
