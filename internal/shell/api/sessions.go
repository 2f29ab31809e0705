package api

import (
	"errors"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/kamrulh4/auraops/internal/core/crypto"
)

// =============================================================================
// Session Tokens
// =============================================================================

// ErrInvalidToken is returned for expired, forged, or malformed tokens.
var ErrInvalidToken = errors.New("invalid or expired session token")

// Sessions mints and verifies fernet session tokens. The payload is just the
// user ID; everything else is looked up per request so role changes take
// effect immediately.
type Sessions struct {
	key *fernet.Key
	ttl time.Duration
}

// NewSessions derives the signing key from the platform master secret.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	var key fernet.Key
	copy(key[:], crypto.DeriveKey(secret))
	return &Sessions{key: &key, ttl: ttl}
}

// Mint issues a token for a user.
func (s *Sessions) Mint(userID string) (string, error) {
	token, err := fernet.EncryptAndSign([]byte(userID), s.key)
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// Verify returns the user ID carried by a valid token.
func (s *Sessions) Verify(token string) (string, error) {
	payload := fernet.VerifyAndDecrypt([]byte(token), s.ttl, []*fernet.Key{s.key})
	if payload == nil {
		return "", ErrInvalidToken
	}
	return string(payload), nil
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}
