package domain

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Credential
// =============================================================================

// Credential is a secret attached to a project, generated once when a
// managed service is provisioned. The value is encrypted before it reaches
// the store; this type carries plaintext only in memory.
type Credential struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCredential creates a credential with the given plaintext value.
func NewCredential(projectID, key, value string) *Credential {
	return &Credential{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Key:       key,
		Value:     value,
		CreatedAt: time.Now().UTC(),
	}
}

// GenerateSecret returns a URL-safe random secret of n bytes of entropy.
func GenerateSecret(n int) string {
	buf := make([]byte, n)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
