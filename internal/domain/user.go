package domain

import (
	"fmt"
	"time"
)

// UserRole distinguishes course owners from learners
type UserRole string

const (
	UserRoleInstructor UserRole = "instructor"
	UserRoleStudent    UserRole = "student"
)

// User is an account that can authenticate with a password or API key.
type User struct {
	ID           string
	Username     string
	Role         UserRole
	PasswordHash string // bcrypt, never plaintext
	CreatedAt    time.Time
}

// NewUser creates a new User instance
func NewUser(id, username string, role UserRole, passwordHash string, createdAt time.Time) *User {
	return &User{
		ID:           id,
		Username:     username,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
	}
}

// IsInstructor reports whether the user may manage courses.
func (u *User) IsInstructor() bool {
	return u.Role == UserRoleInstructor
}

// ValidateUser validates a User instance
func ValidateUser(u *User) error {
	if u == nil {
		return fmt.Errorf("user cannot be nil")
	}

	if u.ID == "" {
		return fmt.Errorf("user ID is required")
	}

	if u.Username == "" {
		return fmt.Errorf("user Username is required")
	}

	if !IsValidUserRole(u.Role) {
		return fmt.Errorf("user Role is invalid: %s", u.Role)
	}

	if u.PasswordHash == "" {
		return fmt.Errorf("user PasswordHash is required")
	}

	return nil
}

// IsValidUserRole checks if a UserRole is valid
func IsValidUserRole(r UserRole) bool {
	switch r {
	case UserRoleInstructor, UserRoleStudent:
		return true
	default:
		return false
	}
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID string
	Role   UserRole
}

// IsInstructor reports whether the caller may manage courses.
func (p Principal) IsInstructor() bool {
	return p.Role == UserRoleInstructor
}
