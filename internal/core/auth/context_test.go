package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kamrulh4/auraops/internal/core/domain"
)

func TestContextRoundTrip(t *testing.T) {
	authCtx := UserContext("user-1", domain.RoleDeveloper)
	ctx := WithContext(context.Background(), authCtx)

	got := FromContext(ctx)
	assert.Equal(t, authCtx, got)
	assert.True(t, got.Authenticated)
	assert.Equal(t, PrincipalUser, got.Kind)
}

func TestFromContextMissing(t *testing.T) {
	got := FromContext(context.Background())
	assert.False(t, got.Authenticated)
	assert.Empty(t, got.UserID)
}

func TestWebhookContext(t *testing.T) {
	got := WebhookContext("proj-1")
	assert.True(t, got.Authenticated)
	assert.Equal(t, PrincipalWebhook, got.Kind)
	assert.Equal(t, "proj-1", got.ProjectID)
	assert.Empty(t, got.UserID)
}
