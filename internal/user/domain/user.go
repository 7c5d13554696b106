// Package domain holds the core User entity for the User Directory.
package domain

import (
	"errors"
	"time"
)

// User is the core identity entity: one row per registered principal, with roles attached
// directly (no separate organization/membership indirection — see SPEC_FULL.md §3).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Roles        []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the user has the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validate checks required fields before persistence.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}
