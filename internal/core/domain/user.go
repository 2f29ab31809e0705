package domain

import (
	"errors"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// User Errors
// =============================================================================

var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrPasswordTooWeak = errors.New("password must be at least 8 characters")
	ErrInvalidRole     = errors.New("invalid role")
)

// =============================================================================
// Roles
// =============================================================================

// Role determines what a user may do on the platform.
type Role string

const (
	// RoleAdmin may manage every project, user, and platform setting.
	RoleAdmin Role = "admin"
	// RoleDeveloper may create projects and manage the ones they own.
	RoleDeveloper Role = "developer"
	// RoleViewer has read-only access.
	RoleViewer Role = "viewer"
)

// ValidRole reports whether r is one of the defined roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleViewer:
		return true
	}
	return false
}

// =============================================================================
// User
// =============================================================================

// User is an account that authenticates against the API.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// NewUser creates a user with a bcrypt password hash.
// The first account registered on a fresh install should be created with
// RoleAdmin; the store's user count decides that, not this constructor.
func NewUser(email, password string, role Role) (*User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < 8 {
		return nil, ErrPasswordTooWeak
	}
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// CheckPassword reports whether the candidate password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// TouchLogin records a successful login.
func (u *User) TouchLogin() {
	now := time.Now().UTC()
	u.LastLogin = &now
}
